package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// SubscriptionState mirrors the ledger's subscription lifecycle. The
// ledger owns these records; this side only projects them.
type SubscriptionState string

const (
	SubscriptionPending         SubscriptionState = "PENDING"
	SubscriptionTrial           SubscriptionState = "TRIAL"
	SubscriptionActive          SubscriptionState = "ACTIVE"
	SubscriptionPaymentRequired SubscriptionState = "PAYMENT_REQUIRED"
	SubscriptionCancelled       SubscriptionState = "CANCELLED"
	SubscriptionPaused          SubscriptionState = "PAUSED"
)

// Subscription is the read-mostly projection of one ledger
// subscription, keyed to the instance it pays for.
type Subscription struct {
	ID            string            `gorm:"primaryKey" json:"id"`
	AccountID     string            `gorm:"type:text;not null" json:"account_id"`
	InstanceID    *snowflake.ID     `gorm:"index" json:"instance_id,omitempty"`
	PlanName      string            `gorm:"type:text;not null;default:''" json:"plan_name"`
	State         SubscriptionState `gorm:"type:text;not null" json:"state"`
	BillingPeriod string            `gorm:"type:text;not null;default:''" json:"billing_period"`
	TrialStart    *time.Time        `json:"trial_start,omitempty"`
	TrialEnd      *time.Time        `json:"trial_end,omitempty"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Repository persists the projection.
type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Subscription, error)
	FindByInstanceID(ctx context.Context, db *gorm.DB, instanceID snowflake.ID) (*Subscription, error)
}

// LedgerClient is the narrow outbound contract with the subscription
// ledger, used for webhook callback management. The ledger's own
// registration state is authoritative: registration is check-then-create
// against it, which makes startup registration safe from any number of
// replicas.
type LedgerClient interface {
	ListCallbacks(ctx context.Context) ([]string, error)
	// RegisterCallback returns ErrCallbackExists when the URL is
	// already registered; callers treat that as success.
	RegisterCallback(ctx context.Context, url string) error
}
