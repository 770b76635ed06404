package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// State reports where a compute object is in its startup.
type State string

const (
	StateReady   State = "ready"
	StatePending State = "pending"
	StateFailed  State = "failed"
)

// Spec describes the compute object for one instance: the application
// container plus its storage claim. Database credentials enter through
// Env and exist only for the duration of the create call.
type Spec struct {
	Name      string            `json:"name"`
	Image     string            `json:"image,omitempty"`
	CPULimit  float64           `json:"cpu_limit"`
	MemoryMB  int               `json:"memory_mb"`
	StorageGB int               `json:"storage_gb"`
	Env       map[string]string `json:"env,omitempty"`
}

// Scheduler is the narrow contract with the external workload
// scheduler. Create is idempotent per instance: re-creating an
// existing workload returns its handle.
type Scheduler interface {
	Create(ctx context.Context, instanceID snowflake.ID, spec Spec) (string, error)
	Status(ctx context.Context, handle string) (State, error)
	// Delete removes the compute object and its ephemeral storage
	// claim. It must be attempted on every failure path so partially
	// created workloads are never orphaned.
	Delete(ctx context.Context, handle string) error
}
