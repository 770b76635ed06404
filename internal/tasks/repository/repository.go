package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tariron/saasodoo-sub008/internal/tasks/domain"
	"gorm.io/gorm"
)

type gormRepository struct{}

// Provide constructs the gorm-backed task repository.
func Provide() domain.Repository {
	return &gormRepository{}
}

func (r *gormRepository) Enqueue(ctx context.Context, db *gorm.DB, task *domain.Task) (*domain.Task, error) {
	now := time.Now().UTC()
	if task.RunAt.IsZero() {
		task.RunAt = now
	}
	if task.Status == "" {
		task.Status = domain.StatusQueued
	}

	result := db.WithContext(ctx).Exec(
		`INSERT INTO provisioning_tasks
			(id, instance_id, task_type, status, attempts, max_attempts, run_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		task.ID,
		task.InstanceID,
		task.Type,
		task.Status,
		task.Attempts,
		task.MaxAttempts,
		task.RunAt,
		now,
		now,
	)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		return task, nil
	}

	existing, err := r.FindActiveByInstance(ctx, db, task.InstanceID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		// The in-flight task finished between the insert and the read;
		// one more attempt inserts cleanly or finds the new occupant.
		return r.Enqueue(ctx, db, task)
	}
	if existing.Type != task.Type {
		return existing, domain.ErrTaskConflict
	}
	return existing, nil
}

func (r *gormRepository) EnqueueSuperseding(ctx context.Context, db *gorm.DB, task *domain.Task) (*domain.Task, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE provisioning_tasks
		 SET status = ?, last_error = ?, updated_at = ?
		 WHERE instance_id = ? AND status = ? AND task_type <> ?`,
		domain.StatusFailed, "superseded by "+string(task.Type), time.Now().UTC(),
		task.InstanceID, domain.StatusQueued, task.Type,
	)
	if result.Error != nil {
		return nil, result.Error
	}
	return r.Enqueue(ctx, db, task)
}

func (r *gormRepository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Task, error) {
	var task domain.Task
	err := db.WithContext(ctx).First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *gormRepository) FindActiveByInstance(ctx context.Context, db *gorm.DB, instanceID snowflake.ID) (*domain.Task, error) {
	var task domain.Task
	err := db.WithContext(ctx).
		Where("instance_id = ? AND status IN ?", instanceID, []domain.Status{domain.StatusQueued, domain.StatusRunning}).
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *gormRepository) ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 10
	}

	var candidates []snowflake.ID
	query := `SELECT id FROM provisioning_tasks
		 WHERE status = ? AND run_at <= ?
		 ORDER BY run_at, id
		 LIMIT ?`
	if db.Dialector.Name() == "postgres" {
		query += ` FOR UPDATE SKIP LOCKED`
	}
	if err := db.WithContext(ctx).Raw(query, domain.StatusQueued, now, limit).Scan(&candidates).Error; err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	claimed := make([]snowflake.ID, 0, len(candidates))
	for _, id := range candidates {
		result := db.WithContext(ctx).Exec(
			`UPDATE provisioning_tasks
			 SET status = ?, attempts = attempts + 1, updated_at = ?
			 WHERE id = ? AND status = ?`,
			domain.StatusRunning, now, id, domain.StatusQueued,
		)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected > 0 {
			claimed = append(claimed, id)
		}
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	var tasks []domain.Task
	if err := db.WithContext(ctx).Where("id IN ?", claimed).Order("run_at, id").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *gormRepository) MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE provisioning_tasks
		 SET status = ?, last_error = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusSucceeded, now, id, domain.StatusRunning,
	).Error
}

func (r *gormRepository) Requeue(ctx context.Context, db *gorm.DB, id snowflake.ID, runAt time.Time, lastError string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE provisioning_tasks
		 SET status = ?, run_at = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusQueued, runAt, lastError, time.Now().UTC(), id, domain.StatusRunning,
	).Error
}

func (r *gormRepository) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE provisioning_tasks
		 SET status = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusFailed, lastError, now, id, domain.StatusRunning,
	).Error
}
