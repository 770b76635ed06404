package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ErrTaskConflict reports that the instance already has a task of a
// different type in flight. The in-flight task is returned alongside
// so callers can report what blocked them.
var ErrTaskConflict = errors.New("task_conflict")

// Type names a unit of work the substrate knows how to run.
type Type string

const (
	TypeProvision Type = "provision"
	TypeStart     Type = "start"
	TypeStop      Type = "stop"
	TypeTeardown  Type = "teardown"
)

// Status is the queue state of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Task is one durable unit of work. Delivery is at-least-once: every
// handler must be idempotent against redelivery.
type Task struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	InstanceID  snowflake.ID `gorm:"not null" json:"instance_id"`
	Type        Type         `gorm:"column:task_type;type:text;not null" json:"task_type"`
	Status      Status       `gorm:"type:text;not null" json:"status"`
	Attempts    int          `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int          `gorm:"not null;default:5" json:"max_attempts"`
	RunAt       time.Time    `gorm:"not null" json:"run_at"`
	LastError   *string      `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Task) TableName() string { return "provisioning_tasks" }

// Repository is the durable queue. A partial unique index on
// instance_id over non-terminal statuses enforces single-flight.
type Repository interface {
	// Enqueue inserts the task unless the instance already has one in
	// flight. An in-flight task of the same type is returned as-is, so
	// redelivered commands collapse onto it; a different type returns
	// the in-flight task with ErrTaskConflict.
	Enqueue(ctx context.Context, db *gorm.DB, task *Task) (*Task, error)

	// EnqueueSuperseding first fails any queued task of another type for
	// the instance, then enqueues. A running task cannot be superseded
	// and surfaces as ErrTaskConflict, same as Enqueue.
	EnqueueSuperseding(ctx context.Context, db *gorm.DB, task *Task) (*Task, error)

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Task, error)
	FindActiveByInstance(ctx context.Context, db *gorm.DB, instanceID snowflake.ID) (*Task, error)

	// ClaimDue atomically moves up to limit due tasks from queued to
	// running and increments their attempt count. Claims are CAS-guarded
	// so concurrent worker processes never run the same task twice.
	ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Task, error)

	MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	Requeue(ctx context.Context, db *gorm.DB, id snowflake.ID, runAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, now time.Time) error
}
