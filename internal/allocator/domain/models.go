package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	instancedomain "github.com/tariron/saasodoo-sub008/internal/instance/domain"
)

// Credentials is the connection material returned by the allocator.
// It lives only for the duration of one task execution; nothing below
// the handle is ever persisted or logged.
type Credentials struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// Allocation is the local projection of a backend assignment. It holds
// the opaque handle, never the password.
type Allocation struct {
	ID         snowflake.ID          `gorm:"primaryKey"`
	InstanceID snowflake.ID          `gorm:"not null;uniqueIndex:ux_database_allocations_instance"`
	ServerID   string                `gorm:"type:text;not null"`
	DBType     instancedomain.DBType `gorm:"type:text;not null"`
	Handle     string                `gorm:"type:text;not null"`
	CreatedAt  time.Time             `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Allocation) TableName() string { return "database_allocations" }

// AllocateResult is the allocator's answer for one instance.
type AllocateResult struct {
	ServerID    string      `json:"server_id"`
	Credentials Credentials `json:"credentials"`
}

// Handle derives the persistable reference for the allocation.
func (r AllocateResult) Handle() string {
	return fmt.Sprintf("%s/%s", r.ServerID, r.Credentials.Database)
}
