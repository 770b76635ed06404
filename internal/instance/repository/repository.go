package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tariron/saasodoo-sub008/internal/instance/domain"
	"gorm.io/gorm"
)

type gormRepository struct{}

// Provide constructs the gorm-backed instance repository.
func Provide() domain.Repository {
	return &gormRepository{}
}

func (r *gormRepository) Create(ctx context.Context, db *gorm.DB, instance *domain.Instance) error {
	return db.WithContext(ctx).Create(instance).Error
}

func (r *gormRepository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Instance, error) {
	var instance domain.Instance
	err := db.WithContext(ctx).First(&instance, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *gormRepository) FindBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID string) (*domain.Instance, error) {
	var instance domain.Instance
	err := db.WithContext(ctx).First(&instance, "subscription_id = ?", subscriptionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *gormRepository) List(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]domain.Instance, error) {
	var instances []domain.Instance
	query := db.WithContext(ctx).Order("id")
	if customerID != 0 {
		query = query.Where("customer_id = ?", customerID)
	}
	if err := query.Find(&instances).Error; err != nil {
		return nil, err
	}
	return instances, nil
}

// Transition writes status and provisioning_status in a single guarded
// statement; the pair can never diverge because neither column is
// writable through any other path.
func (r *gormRepository) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.Status, next domain.Status, errorMessage *string) (bool, error) {
	now := time.Now().UTC()

	var result *gorm.DB
	if next == domain.StatusTerminated {
		// Terminated keeps the last provisioning outcome.
		result = db.WithContext(ctx).Exec(
			`UPDATE instances
			 SET status = ?, error_message = NULL, updated_at = ?
			 WHERE id = ? AND status IN ?`,
			next, now, id, from,
		)
	} else {
		result = db.WithContext(ctx).Exec(
			`UPDATE instances
			 SET status = ?, provisioning_status = ?, error_message = ?, updated_at = ?
			 WHERE id = ? AND status IN ?`,
			next, domain.ProvisioningStatusFor(next, ""), errorMessage, now, id, from,
		)
	}
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormRepository) SetBillingStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.BillingStatus) error {
	return db.WithContext(ctx).Exec(
		`UPDATE instances SET billing_status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	).Error
}

func (r *gormRepository) SetAllocationRef(ctx context.Context, db *gorm.DB, id snowflake.ID, ref string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE instances SET db_allocation_ref = ?, updated_at = ? WHERE id = ?`,
		ref, time.Now().UTC(), id,
	).Error
}

func (r *gormRepository) SetWorkloadHandle(ctx context.Context, db *gorm.DB, id snowflake.ID, handle *string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE instances SET workload_handle = ?, updated_at = ? WHERE id = ?`,
		handle, time.Now().UTC(), id,
	).Error
}

func (r *gormRepository) LinkSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, subscriptionID string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE instances SET subscription_id = ?, updated_at = ? WHERE id = ? AND subscription_id IS NULL`,
		subscriptionID, time.Now().UTC(), id,
	).Error
}
