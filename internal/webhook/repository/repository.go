package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tariron/saasodoo-sub008/internal/webhook/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormRepository struct{}

// Provide constructs the gorm-backed webhook event repository.
func Provide() domain.Repository {
	return &gormRepository{}
}

func (r *gormRepository) Insert(ctx context.Context, db *gorm.DB, record *domain.EventRecord) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (id, event_id, event_type, payload, received_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (event_id) DO NOTHING`,
		record.ID,
		record.EventID,
		record.EventType,
		record.Payload,
		record.ReceivedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormRepository) FindByEventID(ctx context.Context, db *gorm.DB, eventID string) (*domain.EventRecord, error) {
	var record domain.EventRecord
	err := db.WithContext(ctx).First(&record, "event_id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *gormRepository) LockByEventID(ctx context.Context, db *gorm.DB, eventID string) (*domain.EventRecord, error) {
	query := db.WithContext(ctx)
	if db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var record domain.EventRecord
	err := query.First(&record, "event_id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *gormRepository) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events SET processed_at = ? WHERE id = ? AND processed_at IS NULL`,
		processedAt, id,
	).Error
}
