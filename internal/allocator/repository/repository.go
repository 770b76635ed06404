package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tariron/saasodoo-sub008/internal/allocator/domain"
	"gorm.io/gorm"
)

type gormRepository struct{}

// Provide constructs the gorm-backed allocation repository.
func Provide() domain.Repository {
	return &gormRepository{}
}

func (r *gormRepository) FindByInstanceID(ctx context.Context, db *gorm.DB, instanceID snowflake.ID) (*domain.Allocation, error) {
	var allocation domain.Allocation
	err := db.WithContext(ctx).First(&allocation, "instance_id = ?", instanceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &allocation, nil
}

// Insert records the projection; a concurrent duplicate loses silently
// and reports false.
func (r *gormRepository) Insert(ctx context.Context, db *gorm.DB, allocation *domain.Allocation) (bool, error) {
	if allocation.CreatedAt.IsZero() {
		allocation.CreatedAt = time.Now().UTC()
	}
	result := db.WithContext(ctx).Exec(
		`INSERT INTO database_allocations (id, instance_id, server_id, db_type, handle, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		allocation.ID,
		allocation.InstanceID,
		allocation.ServerID,
		allocation.DBType,
		allocation.Handle,
		allocation.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormRepository) Delete(ctx context.Context, db *gorm.DB, instanceID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM database_allocations WHERE instance_id = ?`,
		instanceID,
	).Error
}
