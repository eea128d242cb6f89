package domain

import "time"

// ImportRunStatus is the lifecycle state of one file import.
type ImportRunStatus string

const (
	ImportRunning   ImportRunStatus = "running"
	ImportCompleted ImportRunStatus = "completed"
	ImportPartial   ImportRunStatus = "partial"
	ImportFailed    ImportRunStatus = "failed"
	ImportSkipped   ImportRunStatus = "skipped"
)

// RowError records why one source row was rejected during import.
type RowError struct {
	Row     int    `json:"row" firestore:"row"`
	Field   string `json:"field,omitempty" firestore:"field,omitempty"`
	Message string `json:"message" firestore:"message"`
}

// ImportRun is the audit record of one file import: what file, which
// template, and how many rows made it. A run whose file hash matches an
// earlier completed run is skipped as a duplicate.
type ImportRun struct {
	ID         string          `json:"id" firestore:"id"`
	OwnerID    string          `json:"ownerId" firestore:"ownerId"`
	Filename   string          `json:"filename" firestore:"filename"`
	FileHash   string          `json:"fileHash" firestore:"fileHash"`
	TemplateID string          `json:"templateId,omitempty" firestore:"templateId,omitempty"`
	Status     ImportRunStatus `json:"status" firestore:"status"`

	RowsTotal    int        `json:"rowsTotal" firestore:"rowsTotal"`
	RowsImported int        `json:"rowsImported" firestore:"rowsImported"`
	RowsFailed   int        `json:"rowsFailed" firestore:"rowsFailed"`
	RowErrors    []RowError `json:"rowErrors,omitempty" firestore:"rowErrors,omitempty"`
	Warnings     []string   `json:"warnings,omitempty" firestore:"warnings,omitempty"`

	StartedAt  time.Time `json:"startedAt" firestore:"startedAt"`
	FinishedAt time.Time `json:"finishedAt" firestore:"finishedAt"`
}
