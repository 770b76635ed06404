package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists instances. Methods take an explicit *gorm.DB so
// callers can run them inside an enclosing transaction.
type Repository interface {
	Create(ctx context.Context, db *gorm.DB, instance *Instance) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Instance, error)
	FindBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID string) (*Instance, error)
	List(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]Instance, error)

	// Transition moves the instance from one of the given states to
	// next, writing status and provisioning_status together. It reports
	// false when the guard did not match, which callers treat as a lost
	// race rather than an error.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, next Status, errorMessage *string) (bool, error)

	SetBillingStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status BillingStatus) error
	SetAllocationRef(ctx context.Context, db *gorm.DB, id snowflake.ID, ref string) error
	SetWorkloadHandle(ctx context.Context, db *gorm.DB, id snowflake.ID, handle *string) error

	// LinkSubscription writes subscription_id only when the instance is
	// not yet linked, so a concurrent double-link cannot rebind it.
	LinkSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, subscriptionID string) error
}
