package job_test

import (
	"context"
	"testing"
	"time"

	"scribe/src/infrastructure/job"
)

// stuckRepo serves a canned stuck-job list and records Fail calls.
type stuckRepo struct {
	job.Repository
	stuck  []job.Job
	failed map[string]string
}

func (r *stuckRepo) ListStuckRunning(ctx context.Context, updatedBefore time.Time) ([]job.Job, error) {
	return r.stuck, nil
}

func (r *stuckRepo) Fail(ctx context.Context, id, errorMessage string) error {
	if r.failed == nil {
		r.failed = make(map[string]string)
	}
	r.failed[id] = errorMessage
	return r.Repository.Fail(ctx, id, errorMessage)
}

func TestReaperFailsStuckJobs(t *testing.T) {
	mem := job.NewMemoryRepository()
	ctx := context.Background()

	stale := newQueuedJob(t, mem)
	if err := mem.Begin(ctx, stale.ID); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	repo := &stuckRepo{Repository: mem, stuck: []job.Job{*stale}}
	reaper := job.NewReaper(repo, 30*time.Minute, time.Minute)

	if err := reaper.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	if _, ok := repo.failed[stale.ID]; !ok {
		t.Fatalf("stuck job %s was not failed", stale.ID)
	}
	got, err := mem.Get(ctx, stale.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != job.StatusFailed {
		t.Errorf("Status = %v, want %v", got.Status, job.StatusFailed)
	}
	if got.ErrorMessage != "processing timed out" {
		t.Errorf("ErrorMessage = %q, want %q", got.ErrorMessage, "processing timed out")
	}
}

func TestReaperToleratesFinishedJob(t *testing.T) {
	mem := job.NewMemoryRepository()
	ctx := context.Background()

	j := newQueuedJob(t, mem)
	if err := mem.Begin(ctx, j.ID); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := mem.Complete(ctx, j.ID, "done", []string{}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	// The sweep list is stale: the job finished between listing and failing.
	repo := &stuckRepo{Repository: mem, stuck: []job.Job{*j}}
	reaper := job.NewReaper(repo, 30*time.Minute, time.Minute)

	if err := reaper.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	got, _ := mem.Get(ctx, j.ID)
	if got.Status != job.StatusCompleted {
		t.Errorf("Status = %v, completed job must stay completed", got.Status)
	}
}
