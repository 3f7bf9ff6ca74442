// ABOUTME: Migration status machine, progress snapshots, and observer registry
// ABOUTME: Progress is engine-owned; observers receive defensive copies
package migration

import (
	"time"
)

// Status is the migration state machine.
// not_started → in_progress → validating → uploading → verifying → completed,
// with failed reachable from any in-flight state and rolled_back after failed.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusValidating Status = "validating"
	StatusUploading  Status = "uploading"
	StatusVerifying  Status = "verifying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// Terminal reports whether the status admits no further transitions
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRolledBack
}

// TotalSteps is the number of tracked pipeline steps:
// export, validate, connect, upload, verify, finalize.
const TotalSteps = 6

// Progress is a snapshot of one migration attempt
type Progress struct {
	Status                 Status    `json:"status"`
	CurrentStep            string    `json:"current_step"`
	TotalSteps             int       `json:"total_steps"`
	CompletedSteps         int       `json:"completed_steps"`
	TotalConversations     int       `json:"total_conversations"`
	ProcessedConversations int       `json:"processed_conversations"`
	TotalMessages          int       `json:"total_messages"`
	ProcessedMessages      int       `json:"processed_messages"`
	Errors                 []string  `json:"errors,omitempty"`
	StartedAt              time.Time `json:"started_at"`
	CompletedAt            time.Time `json:"completed_at,omitempty"`
}

// clone returns a defensive copy safe to hand to observers
func (p Progress) clone() Progress {
	cp := p
	cp.Errors = append([]string(nil), p.Errors...)
	return cp
}

// Result is the outcome of one migrate() call
type Result struct {
	Success               bool          `json:"success"`
	MigratedConversations int           `json:"migrated_conversations"`
	MigratedMessages      int           `json:"migrated_messages"`
	Errors                []string      `json:"errors,omitempty"`
	Duration              time.Duration `json:"duration"`
	RollbackPerformed     bool          `json:"rollback_performed"`
	RunID                 string        `json:"run_id"`
}

// Observer receives migration lifecycle callbacks. All callbacks fire
// synchronously within the engine's own flow, never batched or debounced.
type Observer interface {
	OnProgress(p Progress)
	OnError(message string)
	OnComplete(r Result)
}

// ObserverFuncs adapts plain functions to the Observer interface.
// Nil fields are skipped.
type ObserverFuncs struct {
	Progress func(Progress)
	Error    func(string)
	Complete func(Result)
}

func (o ObserverFuncs) OnProgress(p Progress) {
	if o.Progress != nil {
		o.Progress(p)
	}
}

func (o ObserverFuncs) OnError(message string) {
	if o.Error != nil {
		o.Error(message)
	}
}

func (o ObserverFuncs) OnComplete(r Result) {
	if o.Complete != nil {
		o.Complete(r)
	}
}
