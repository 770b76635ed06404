package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the externally visible lifecycle state of an instance.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProvisioning Status = "provisioning"
	StatusRunning      Status = "running"
	StatusStopping     Status = "stopping"
	StatusStopped      Status = "stopped"
	StatusError        Status = "error"
	StatusTerminated   Status = "terminated"
)

// BillingStatus tracks the payment side of an instance, driven by
// ledger events, never by the provisioning workers.
type BillingStatus string

const (
	BillingPendingPayment  BillingStatus = "pending_payment"
	BillingTrial           BillingStatus = "trial"
	BillingPaid            BillingStatus = "paid"
	BillingPaymentRequired BillingStatus = "payment_required"
	BillingSuspended       BillingStatus = "suspended"
)

// ProvisioningStatus is the projection of the lifecycle state onto the
// provisioning outcome column. It is never written independently of
// Status; see ProvisioningStatusFor.
type ProvisioningStatus string

const (
	ProvisioningPending    ProvisioningStatus = "pending"
	ProvisioningInProgress ProvisioningStatus = "provisioning"
	ProvisioningCompleted  ProvisioningStatus = "completed"
	ProvisioningFailed     ProvisioningStatus = "failed"
)

// DBType selects the backend placement policy for the instance database.
type DBType string

const (
	DBTypeShared    DBType = "shared"
	DBTypeDedicated DBType = "dedicated"
)

// Instance is one tenant workload plus its database binding.
type Instance struct {
	ID                 snowflake.ID       `gorm:"primaryKey" json:"id"`
	CustomerID         snowflake.ID       `gorm:"not null;index" json:"customer_id"`
	SubscriptionID     *string            `gorm:"index" json:"subscription_id,omitempty"`
	Name               string             `gorm:"type:text;not null" json:"name"`
	Status             Status             `gorm:"type:text;not null" json:"status"`
	BillingStatus      BillingStatus      `gorm:"type:text;not null" json:"billing_status"`
	ProvisioningStatus ProvisioningStatus `gorm:"type:text;not null" json:"provisioning_status"`
	DBType             DBType             `gorm:"type:text;not null" json:"db_type"`
	DBAllocationRef    *string            `gorm:"type:text" json:"db_allocation_ref,omitempty"`
	WorkloadHandle     *string            `gorm:"type:text" json:"-"`
	CPULimit           float64            `gorm:"not null;default:1.0" json:"cpu_limit"`
	MemoryMB           int                `gorm:"not null;default:1024" json:"memory_mb"`
	StorageGB          int                `gorm:"not null;default:10" json:"storage_gb"`
	ErrorMessage       *string            `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Instance) TableName() string { return "instances" }

// BillingAllowsProvisioning reports whether the billing state permits
// spending resources on this instance.
func (i *Instance) BillingAllowsProvisioning() bool {
	return i.BillingStatus == BillingTrial || i.BillingStatus == BillingPaid
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool { return s == StatusTerminated }

// ProvisioningStatusFor derives the provisioning_status column for a
// lifecycle transition. Keeping the derivation in one place is what
// makes the status/provisioning_status pair impossible to update out
// of step: repositories write both columns from this function in a
// single statement.
func ProvisioningStatusFor(next Status, prev ProvisioningStatus) ProvisioningStatus {
	switch next {
	case StatusPending:
		return ProvisioningPending
	case StatusProvisioning:
		return ProvisioningInProgress
	case StatusRunning, StatusStopping, StatusStopped:
		return ProvisioningCompleted
	case StatusError:
		return ProvisioningFailed
	default:
		return prev
	}
}

var validTransitions = map[Status][]Status{
	StatusPending:      {StatusProvisioning, StatusTerminated},
	StatusProvisioning: {StatusRunning, StatusError},
	StatusRunning:      {StatusStopping, StatusTerminated},
	StatusStopping:     {StatusStopped, StatusError},
	StatusStopped:      {StatusRunning, StatusTerminated},
	StatusError:        {StatusProvisioning, StatusTerminated},
}

// CanTransition reports whether the state machine allows from → to.
func CanTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
