package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	instancedomain "github.com/tariron/saasodoo-sub008/internal/instance/domain"
	"gorm.io/gorm"
)

// Client speaks the allocator's HTTP contract. Allocate is idempotent
// keyed by instance id: repeated calls return the existing backend.
type Client interface {
	Allocate(ctx context.Context, instanceID snowflake.ID, dbType instancedomain.DBType) (*AllocateResult, error)
	Release(ctx context.Context, instanceID snowflake.ID) error
}

// Repository persists the allocation projection.
type Repository interface {
	FindByInstanceID(ctx context.Context, db *gorm.DB, instanceID snowflake.ID) (*Allocation, error)
	Insert(ctx context.Context, db *gorm.DB, allocation *Allocation) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, instanceID snowflake.ID) error
}

// Service is what the orchestrator uses: allocation plus the local
// projection that lets it detect idempotency violations.
type Service interface {
	// Allocate fetches (or re-fetches) the backend for the instance.
	// Credentials are fresh on every call; the returned Allocation is
	// stable across calls for the same instance.
	Allocate(ctx context.Context, instanceID snowflake.ID, dbType instancedomain.DBType) (*Credentials, *Allocation, error)

	// Release tears the backend down. Called on terminate only;
	// failed provisioning keeps its allocation for the retry path.
	Release(ctx context.Context, instanceID snowflake.ID) error
}
