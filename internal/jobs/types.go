// Package jobs defines the asynchronous task model shared by the API and
// the worker. Imports, reconciliation runs and session clones are
// independently schedulable tasks; no task relies on shared in-process
// state beyond the queue itself.
package jobs

import (
	"context"
	"time"
)

// TaskType selects what a task does.
type TaskType string

const (
	// TaskTypeImport ingests an uploaded tabular file.
	TaskTypeImport TaskType = "import_file"
	// TaskTypeExtract runs AI extraction over an unstructured upload and
	// imports the result.
	TaskTypeExtract TaskType = "extract_document"
	// TaskTypeReconcile runs the matcher over an owner's open documents.
	TaskTypeReconcile TaskType = "reconcile"
	// TaskTypeClone replicates the master dataset into a session.
	TaskTypeClone TaskType = "clone_session"
	// TaskTypeReset restores a session to its initial state.
	TaskTypeReset TaskType = "reset_session"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskRetrying  TaskStatus = "retrying"
)

// Task is one unit of asynchronous work. The payload fields are a union
// across task types; each type reads the fields it needs.
type Task struct {
	ID      string   `json:"id"`
	Type    TaskType `json:"type"`
	OwnerID string   `json:"ownerId"`

	// import_file / extract_document
	FileURI   string `json:"fileUri,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Direction string `json:"direction,omitempty"`
	MIMEType  string `json:"mimeType,omitempty"`

	// clone_session / reset_session / reconcile
	SessionID string `json:"sessionId,omitempty"`

	Status      TaskStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retryCount"`
	MaxRetries  int        `json:"maxRetries"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Publisher enqueues tasks. The abstraction keeps the API server unaware
// of whether the queue is in-memory or an external broker.
type Publisher interface {
	Publish(ctx context.Context, task *Task) error
	Close() error
}

// Consumer drains tasks into a handler.
type Consumer interface {
	// Start launches the worker pool. The handler is called once per
	// task, concurrently up to the pool size.
	Start(ctx context.Context, handler Handler) error
	// Stop stops consuming and waits for in-flight tasks to finish.
	Stop(ctx context.Context) error
}

// Handler processes one task. A returned error requeues the task until
// its retry budget runs out.
type Handler func(ctx context.Context, task *Task) error

// Store tracks task state so callers can poll progress.
type Store interface {
	SaveTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, filter Filter) ([]*Task, error)
}

// Filter selects tasks for listing.
type Filter struct {
	OwnerID string
	Type    TaskType
	Status  TaskStatus
	Limit   int
	Offset  int
}
