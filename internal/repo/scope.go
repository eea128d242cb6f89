package repo

import "fmt"

// Scope selects which copy of the data a repository reads and writes: the
// master dataset or one replicated session. The zero value is the master
// scope.
type Scope struct {
	sessionID string
}

// Master is the scope of the authoritative dataset.
var Master = Scope{}

// Session returns the scope of one replicated session.
func Session(sessionID string) Scope {
	return Scope{sessionID: sessionID}
}

// IsMaster reports whether this is the master scope.
func (s Scope) IsMaster() bool {
	return s.sessionID == ""
}

// SessionID returns the session id, or "" for the master scope.
func (s Scope) SessionID() string {
	return s.sessionID
}

// Col maps a base collection name into this scope.
func (s Scope) Col(base string) string {
	if s.sessionID == "" {
		return base
	}
	return fmt.Sprintf("sessions_%s_%s", s.sessionID, base)
}
