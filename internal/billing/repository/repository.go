package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tariron/saasodoo-sub008/internal/billing/domain"
	"github.com/tariron/saasodoo-sub008/internal/cache"
	"gorm.io/gorm"
)

const cacheTTL = 30 * time.Second

// gormRepository persists the subscription projection. Reads by
// instance are hot (the instance detail endpoint joins them onto the
// response), so they go through a small TTL cache that writes
// invalidate.
type gormRepository struct {
	byInstance *cache.TTLCache[snowflake.ID, domain.Subscription]
}

// Provide constructs the gorm-backed subscription repository.
func Provide() domain.Repository {
	return &gormRepository{
		byInstance: cache.NewTTLCache[snowflake.ID, domain.Subscription](),
	}
}

func (r *gormRepository) Upsert(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	subscription.UpdatedAt = time.Now().UTC()
	err := db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (id, account_id, instance_id, plan_name, state, billing_period, trial_start, trial_end, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			account_id = excluded.account_id,
			instance_id = excluded.instance_id,
			plan_name = excluded.plan_name,
			state = excluded.state,
			billing_period = excluded.billing_period,
			trial_start = excluded.trial_start,
			trial_end = excluded.trial_end,
			updated_at = excluded.updated_at`,
		subscription.ID,
		subscription.AccountID,
		subscription.InstanceID,
		subscription.PlanName,
		subscription.State,
		subscription.BillingPeriod,
		subscription.TrialStart,
		subscription.TrialEnd,
		subscription.UpdatedAt,
	).Error
	if err != nil {
		return err
	}
	if subscription.InstanceID != nil {
		r.byInstance.Delete(*subscription.InstanceID)
	}
	return nil
}

func (r *gormRepository) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := db.WithContext(ctx).First(&subscription, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *gormRepository) FindByInstanceID(ctx context.Context, db *gorm.DB, instanceID snowflake.ID) (*domain.Subscription, error) {
	if cached, ok := r.byInstance.Get(instanceID); ok {
		hit := cached
		return &hit, nil
	}

	var subscription domain.Subscription
	err := db.WithContext(ctx).First(&subscription, "instance_id = ?", instanceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.byInstance.Set(instanceID, subscription, cacheTTL)
	return &subscription, nil
}
