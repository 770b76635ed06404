package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// CreateRequest carries the validated input for a new instance.
type CreateRequest struct {
	CustomerID     snowflake.ID
	Name           string
	DBType         DBType
	SubscriptionID string
	Trial          bool
	CPULimit       float64
	MemoryMB       int
	StorageGB      int
}

// Service is the provisioning orchestrator's command surface. Commands
// that do work downstream are asynchronous: they enqueue a task and
// return its handle, never a final state.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Instance, error)
	Get(ctx context.Context, id snowflake.ID) (*Instance, error)
	List(ctx context.Context, customerID snowflake.ID) ([]Instance, error)

	// Retry is valid only for instances in error. It re-enters the
	// provisioning path; there is no separate retry code path.
	Retry(ctx context.Context, id snowflake.ID) (snowflake.ID, error)

	Start(ctx context.Context, id snowflake.ID) (snowflake.ID, error)
	Stop(ctx context.Context, id snowflake.ID) (snowflake.ID, error)
	Terminate(ctx context.Context, id snowflake.ID) (snowflake.ID, error)
}
