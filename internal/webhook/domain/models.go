package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidPayload = errors.New("invalid_payload")
	ErrInvalidEvent   = errors.New("invalid_event")

	// ErrEventAlreadyProcessed marks a replay of an event whose side
	// effects are already applied. Callers ack it as success.
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)

// EventRecord is one inbound ledger event. The unique index on
// event_id is what makes ingestion idempotent: replays lose the insert
// and short-circuit on processed_at.
type EventRecord struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	EventID     string         `gorm:"type:text;not null;uniqueIndex:ux_webhook_events_event_id"`
	EventType   string         `gorm:"type:text;not null"`
	Payload     datatypes.JSON `gorm:"type:jsonb"`
	ReceivedAt  time.Time      `gorm:"not null"`
	ProcessedAt *time.Time
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "webhook_events" }

// Repository persists inbound events.
type Repository interface {
	// Insert stores the record unless its event_id is already known,
	// reporting whether this call won the insert.
	Insert(ctx context.Context, db *gorm.DB, record *EventRecord) (bool, error)
	FindByEventID(ctx context.Context, db *gorm.DB, eventID string) (*EventRecord, error)

	// LockByEventID reads the record under a row lock so that two
	// deliveries processing the same event inside transactions
	// serialize: the loser blocks until the winner commits and then
	// sees processed_at set.
	LockByEventID(ctx context.Context, db *gorm.DB, eventID string) (*EventRecord, error)

	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

// Service ingests ledger events.
type Service interface {
	Ingest(ctx context.Context, payload []byte) error
}
