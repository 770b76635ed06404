package repository

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/tariron/saasodoo-sub008/internal/billing/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestUpsertCreatesThenUpdates(t *testing.T) {
	db := setupSubscriptionTestDB(t)
	repo := Provide()
	ctx := context.Background()

	subscription := &domain.Subscription{
		ID:        "sub_1",
		AccountID: "acct_1",
		PlanName:  "standard",
		State:     domain.SubscriptionPending,
	}
	if err := repo.Upsert(ctx, db, subscription); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	subscription.State = domain.SubscriptionActive
	subscription.PlanName = "premium"
	if err := repo.Upsert(ctx, db, subscription); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.FindByID(ctx, db, "sub_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.State != domain.SubscriptionActive {
		t.Fatalf("state = %s, want ACTIVE", got.State)
	}
	if got.PlanName != "premium" {
		t.Fatalf("plan_name = %s, want premium", got.PlanName)
	}

	var count int64
	if err := db.Table("subscriptions").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestFindByInstanceIDCachesAndInvalidates(t *testing.T) {
	db := setupSubscriptionTestDB(t)
	repo := Provide()
	ctx := context.Background()

	instanceID := snowflake.ID(900)
	subscription := &domain.Subscription{
		ID:         "sub_2",
		AccountID:  "acct_1",
		InstanceID: &instanceID,
		State:      domain.SubscriptionActive,
	}
	if err := repo.Upsert(ctx, db, subscription); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.FindByInstanceID(ctx, db, instanceID)
	if err != nil {
		t.Fatalf("find by instance: %v", err)
	}
	if got == nil || got.ID != "sub_2" {
		t.Fatalf("expected sub_2, got %+v", got)
	}

	// Served from the cache: a write that bypasses the repository is
	// invisible until the TTL lapses or a repository write invalidates.
	if err := db.Exec(`UPDATE subscriptions SET state = ? WHERE id = ?`, domain.SubscriptionPaused, "sub_2").Error; err != nil {
		t.Fatalf("raw update: %v", err)
	}
	got, err = repo.FindByInstanceID(ctx, db, instanceID)
	if err != nil {
		t.Fatalf("cached find: %v", err)
	}
	if got.State != domain.SubscriptionActive {
		t.Fatalf("state = %s, want the cached ACTIVE", got.State)
	}

	// A repository write invalidates the entry.
	subscription.State = domain.SubscriptionCancelled
	if err := repo.Upsert(ctx, db, subscription); err != nil {
		t.Fatalf("invalidating upsert: %v", err)
	}
	got, err = repo.FindByInstanceID(ctx, db, instanceID)
	if err != nil {
		t.Fatalf("find after invalidate: %v", err)
	}
	if got.State != domain.SubscriptionCancelled {
		t.Fatalf("state = %s, want CANCELLED", got.State)
	}
}

func TestFindByInstanceIDUnknownIsNil(t *testing.T) {
	db := setupSubscriptionTestDB(t)
	repo := Provide()
	ctx := context.Background()

	got, err := repo.FindByInstanceID(ctx, db, snowflake.ID(999))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown instance, got %+v", got)
	}
}

func setupSubscriptionTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec(
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			instance_id BIGINT,
			plan_name TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			billing_period TEXT NOT NULL DEFAULT '',
			trial_start TIMESTAMP,
			trial_end TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	).Error; err != nil {
		t.Fatalf("create subscriptions: %v", err)
	}
	return db
}
