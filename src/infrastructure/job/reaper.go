package job

import (
	"context"
	"errors"
	"time"

	"scribe/src/infrastructure/log"
)

// Reaper fails running jobs whose worker has stopped reporting. A job with
// no update for longer than StuckAfter is presumed abandoned (worker crash,
// lost connection) and moved to failed so polling clients stop waiting.
type Reaper struct {
	repo       Repository
	stuckAfter time.Duration
	interval   time.Duration
}

func NewReaper(repo Repository, stuckAfter, interval time.Duration) *Reaper {
	return &Reaper{
		repo:       repo,
		stuckAfter: stuckAfter,
		interval:   interval,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				log.Error(err, "stuck job sweep failed")
			}
		}
	}
}

// Sweep fails every running job idle past the cutoff. Races with a worker
// finishing at the same moment are benign: the terminal CAS means whoever
// writes first wins, and the loser here is just logged.
func (r *Reaper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-r.stuckAfter)
	stuck, err := r.repo.ListStuckRunning(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, j := range stuck {
		err := r.repo.Fail(ctx, j.ID, "processing timed out")
		switch {
		case err == nil:
			log.Info("failed stuck job", "job_id", j.ID, "idle_since", j.UpdatedAt)
		case errors.Is(err, ErrInvalidTransition):
			log.Info("stuck job finished before reaping", "job_id", j.ID)
		default:
			log.Error(err, "could not fail stuck job", "job_id", j.ID)
		}
	}
	return nil
}
