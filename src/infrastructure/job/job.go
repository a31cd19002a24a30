package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scribe/src/core/ingest"
)

// Status defines the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the durable record of one asynchronous processing request.
//
// Transitions are one-directional: queued -> running -> completed|failed,
// with queued -> failed allowed for failures discovered before start.
// Progress never moves backward while running and is pinned to 100 on
// completion. Result fields are written exactly once, on the terminal
// transition.
type Job struct {
	ID            string            `json:"id" gorm:"primaryKey"`
	Status        Status            `json:"status"`
	Progress      int               `json:"progress_percentage"`
	StatusMessage string            `json:"status_message"`
	ResultText    string            `json:"result_text,omitempty"`
	ResultFiles   []string          `json:"result_files,omitempty" gorm:"serializer:json"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	Descriptor    ingest.Descriptor `json:"input_descriptor" gorm:"serializer:json"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

var (
	// ErrNotFound is returned when no job exists for the given ID.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a caller attempts an illegal
	// state change: begin on a non-queued job, progress or terminal calls
	// on a terminal job, or a second terminal call losing the race to the
	// first. The job's recorded state is never corrupted by such a call.
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// StorageError wraps a fault of the durable store itself. Callers should
// treat it as retryable and must not confuse it with ErrNotFound.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("job storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Repository defines the persistence operations of the job tracker. Every
// mutation is atomic with respect to concurrent calls on the same ID:
// conflicting terminal transitions resolve to first writer wins, with the
// loser receiving ErrInvalidTransition.
type Repository interface {
	// Create persists a fresh job. No partial record is left on failure.
	Create(ctx context.Context, j *Job) error

	// Get returns the latest committed snapshot of a job. It never blocks
	// on in-flight work.
	Get(ctx context.Context, id string) (*Job, error)

	// Begin transitions queued -> running.
	Begin(ctx context.Context, id string) error

	// ReportProgress updates progress and the status message of a running
	// job. Percentage is clamped to [current, 100]; attempts to move
	// progress backward are tolerated but logged.
	ReportProgress(ctx context.Context, id string, percentage int, message string) error

	// Complete transitions running -> completed, pins progress to 100 and
	// records the result exactly once. Files must be non-nil even when
	// empty, so "no output produced" stays distinguishable from a crash.
	Complete(ctx context.Context, id string, resultText string, resultFiles []string) error

	// Fail transitions running -> failed, or queued -> failed for
	// pre-start failures, and records the error message exactly once.
	Fail(ctx context.Context, id string, errorMessage string) error

	// ListStuckRunning returns running jobs whose last update is older
	// than the given cutoff.
	ListStuckRunning(ctx context.Context, updatedBefore time.Time) ([]Job, error)
}
