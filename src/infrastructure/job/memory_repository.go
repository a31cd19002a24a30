package job

import (
	"context"
	"sync"
	"time"

	"scribe/src/infrastructure/log"
)

// MemoryRepository keeps jobs in process memory. It backs single-instance
// deployments and tests; it implements the same first-writer-wins transition
// semantics as the durable store.
type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[string]*Job)}
}

func (r *MemoryRepository) Create(ctx context.Context, j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *j
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.jobs[cp.ID] = &cp
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	cp.ResultFiles = append([]string(nil), j.ResultFiles...)
	return &cp, nil
}

func (r *MemoryRepository) Begin(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status != StatusQueued {
		return ErrInvalidTransition
	}
	j.Status = StatusRunning
	j.StatusMessage = "processing started"
	j.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) ReportProgress(ctx context.Context, id string, percentage int, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status != StatusRunning {
		return ErrInvalidTransition
	}
	if percentage > 100 {
		percentage = 100
	}
	if percentage < j.Progress {
		log.Debug("backward progress update clamped",
			"job_id", id, "current", j.Progress, "reported", percentage)
		percentage = j.Progress
	}
	j.Progress = percentage
	j.StatusMessage = message
	j.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) Complete(ctx context.Context, id string, resultText string, resultFiles []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status != StatusRunning {
		return ErrInvalidTransition
	}
	if resultFiles == nil {
		resultFiles = []string{}
	}
	j.Status = StatusCompleted
	j.Progress = 100
	j.StatusMessage = "completed"
	j.ResultText = resultText
	j.ResultFiles = append([]string(nil), resultFiles...)
	j.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) Fail(ctx context.Context, id string, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status.Terminal() {
		return ErrInvalidTransition
	}
	j.Status = StatusFailed
	j.StatusMessage = "failed"
	j.ErrorMessage = errorMessage
	j.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) ListStuckRunning(ctx context.Context, updatedBefore time.Time) ([]Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stuck []Job
	for _, j := range r.jobs {
		if j.Status == StatusRunning && j.UpdatedAt.Before(updatedBefore) {
			stuck = append(stuck, *j)
		}
	}
	return stuck, nil
}
