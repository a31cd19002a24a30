package job

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"scribe/src/infrastructure/log"
)

// PostgresRepository persists jobs through gorm. All transitions use a
// compare-and-swap on status so that concurrent writers on the same job
// resolve to first writer wins.
type PostgresRepository struct {
	db *gorm.DB
}

func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, j *Job) error {
	result := r.db.WithContext(ctx).Create(j)
	if result.Error != nil {
		return &StorageError{Op: "create", Err: result.Error}
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Job, error) {
	var j Job
	result := r.db.WithContext(ctx).First(&j, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "get", Err: result.Error}
	}
	return &j, nil
}

func (r *PostgresRepository) Begin(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusQueued).
		Updates(map[string]interface{}{
			"status":         StatusRunning,
			"status_message": "processing started",
		})
	if result.Error != nil {
		return &StorageError{Op: "begin", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return r.transitionConflict(ctx, id)
	}
	return nil
}

func (r *PostgresRepository) ReportProgress(ctx context.Context, id string, percentage int, message string) error {
	if percentage > 100 {
		percentage = 100
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var j Job
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&j, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return &StorageError{Op: "report progress", Err: err}
		}
		if j.Status != StatusRunning {
			return ErrInvalidTransition
		}
		if percentage < j.Progress {
			// Tolerate out-of-order worker updates by clamping, but
			// leave a trace for diagnosis.
			log.Debug("backward progress update clamped",
				"job_id", id, "current", j.Progress, "reported", percentage)
			percentage = j.Progress
		}
		result := tx.Model(&Job{}).Where("id = ?", id).Updates(map[string]interface{}{
			"progress":       percentage,
			"status_message": message,
		})
		if result.Error != nil {
			return &StorageError{Op: "report progress", Err: result.Error}
		}
		return nil
	})
	return err
}

func (r *PostgresRepository) Complete(ctx context.Context, id string, resultText string, resultFiles []string) error {
	if resultFiles == nil {
		resultFiles = []string{}
	}
	result := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusRunning).
		Select("status", "progress", "status_message", "result_text", "result_files").
		Updates(Job{
			Status:        StatusCompleted,
			Progress:      100,
			StatusMessage: "completed",
			ResultText:    resultText,
			ResultFiles:   resultFiles,
		})
	if result.Error != nil {
		return &StorageError{Op: "complete", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return r.transitionConflict(ctx, id)
	}
	return nil
}

func (r *PostgresRepository) Fail(ctx context.Context, id string, errorMessage string) error {
	result := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status IN ?", id, []Status{StatusQueued, StatusRunning}).
		Select("status", "status_message", "error_message").
		Updates(Job{
			Status:        StatusFailed,
			StatusMessage: "failed",
			ErrorMessage:  errorMessage,
		})
	if result.Error != nil {
		return &StorageError{Op: "fail", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return r.transitionConflict(ctx, id)
	}
	return nil
}

func (r *PostgresRepository) ListStuckRunning(ctx context.Context, updatedBefore time.Time) ([]Job, error) {
	var jobs []Job
	result := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", StatusRunning, updatedBefore).
		Find(&jobs)
	if result.Error != nil {
		return nil, &StorageError{Op: "list stuck running", Err: result.Error}
	}
	return jobs, nil
}

// transitionConflict distinguishes an unknown job from a CAS loss after an
// update matched zero rows.
func (r *PostgresRepository) transitionConflict(ctx context.Context, id string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return &StorageError{Op: "transition check", Err: err}
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrInvalidTransition
}
