package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	allocatordomain "github.com/tariron/saasodoo-sub008/internal/allocator/domain"
	"github.com/tariron/saasodoo-sub008/internal/clock"
	"github.com/tariron/saasodoo-sub008/internal/config"
	"github.com/tariron/saasodoo-sub008/internal/faults"
	"github.com/tariron/saasodoo-sub008/internal/instance/domain"
	tasksdomain "github.com/tariron/saasodoo-sub008/internal/tasks/domain"
	workloaddomain "github.com/tariron/saasodoo-sub008/internal/workload/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cfg       config.Config
	Repo      domain.Repository
	Tasks     tasksdomain.Repository
	Allocator allocatordomain.Service
	Scheduler workloaddomain.Scheduler
}

// Service owns the instance lifecycle. API commands mutate the record
// and enqueue work; the task handlers in provisioner.go do the actual
// driving of the allocator and the workload scheduler.
type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       config.Config
	repo      domain.Repository
	tasks     tasksdomain.Repository
	allocator allocatordomain.Service
	scheduler workloaddomain.Scheduler
}

func NewService(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("provisioning.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Cfg,
		repo:      p.Repo,
		tasks:     p.Tasks,
		allocator: p.Allocator,
		scheduler: p.Scheduler,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Instance, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("name is required: %w", faults.ErrValidation)
	}
	if req.CustomerID == 0 {
		return nil, fmt.Errorf("customer_id is required: %w", faults.ErrValidation)
	}
	if req.DBType != domain.DBTypeShared && req.DBType != domain.DBTypeDedicated {
		return nil, fmt.Errorf("db_type must be shared or dedicated: %w", faults.ErrValidation)
	}
	if req.CPULimit <= 0 {
		req.CPULimit = 1.0
	}
	if req.MemoryMB <= 0 {
		req.MemoryMB = 1024
	}
	if req.StorageGB <= 0 {
		req.StorageGB = 10
	}

	billing := domain.BillingPendingPayment
	if req.Trial {
		billing = domain.BillingTrial
	}

	instance := &domain.Instance{
		ID:                 s.genID.Generate(),
		CustomerID:         req.CustomerID,
		Name:               req.Name,
		Status:             domain.StatusPending,
		BillingStatus:      billing,
		ProvisioningStatus: domain.ProvisioningPending,
		DBType:             req.DBType,
		CPULimit:           req.CPULimit,
		MemoryMB:           req.MemoryMB,
		StorageGB:          req.StorageGB,
	}
	if req.SubscriptionID != "" {
		subID := req.SubscriptionID
		instance.SubscriptionID = &subID
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Create(ctx, tx, instance); err != nil {
			return err
		}
		if !instance.BillingAllowsProvisioning() {
			// Held until the ledger confirms payment.
			return nil
		}
		_, err := s.enqueue(ctx, tx, instance.ID, tasksdomain.TypeProvision)
		return err
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Instance, error) {
	instance, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("instance %s: %w", id, faults.ErrNotFound)
	}
	return instance, nil
}

func (s *Service) List(ctx context.Context, customerID snowflake.ID) ([]domain.Instance, error) {
	return s.repo.List(ctx, s.db, customerID)
}

// Retry re-enters the provisioning path for an errored instance. The
// task it enqueues is the same provision task the create path uses;
// the handler itself figures out which steps are already satisfied.
func (s *Service) Retry(ctx context.Context, id snowflake.ID) (snowflake.ID, error) {
	instance, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if instance.Status != domain.StatusError {
		return 0, fmt.Errorf("instance %s is %s, retry requires error: %w", id, instance.Status, faults.ErrInvalidState)
	}
	task, err := s.enqueue(ctx, s.db, id, tasksdomain.TypeProvision)
	if err != nil {
		return 0, err
	}
	return task.ID, nil
}

func (s *Service) Start(ctx context.Context, id snowflake.ID) (snowflake.ID, error) {
	instance, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if instance.Status != domain.StatusStopped {
		return 0, fmt.Errorf("instance %s is %s, start requires stopped: %w", id, instance.Status, faults.ErrInvalidState)
	}
	task, err := s.enqueue(ctx, s.db, id, tasksdomain.TypeStart)
	if err != nil {
		return 0, err
	}
	return task.ID, nil
}

func (s *Service) Stop(ctx context.Context, id snowflake.ID) (snowflake.ID, error) {
	instance, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if instance.Status != domain.StatusRunning {
		return 0, fmt.Errorf("instance %s is %s, stop requires running: %w", id, instance.Status, faults.ErrInvalidState)
	}

	var task *tasksdomain.Task
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.repo.Transition(ctx, tx, id, []domain.Status{domain.StatusRunning}, domain.StatusStopping, nil)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("instance %s changed state concurrently: %w", id, faults.ErrInvalidState)
		}
		task, err = s.enqueue(ctx, tx, id, tasksdomain.TypeStop)
		return err
	})
	if err != nil {
		return 0, err
	}
	return task.ID, nil
}

func (s *Service) Terminate(ctx context.Context, id snowflake.ID) (snowflake.ID, error) {
	instance, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	switch instance.Status {
	case domain.StatusPending, domain.StatusRunning, domain.StatusStopped, domain.StatusError:
	case domain.StatusTerminated:
		return 0, fmt.Errorf("instance %s is already terminated: %w", id, faults.ErrInvalidState)
	default:
		return 0, fmt.Errorf("instance %s is %s, terminate requires a settled state: %w", id, instance.Status, faults.ErrInvalidState)
	}
	task, err := s.enqueueTeardown(ctx, s.db, id)
	if errors.Is(err, tasksdomain.ErrTaskConflict) {
		// A task is mid-run and cannot be superseded; it finishes within
		// its execution timeout, after which terminate goes through.
		return 0, fmt.Errorf("instance %s has a %s task mid-run, retry shortly: %w", id, task.Type, faults.ErrBusy)
	}
	if err != nil {
		return 0, err
	}
	return task.ID, nil
}

// ReleasePendingPayment is invoked by the webhook gateway when the
// ledger confirms payment for a subscription: flip billing and kick
// provisioning for any instance that was held.
func (s *Service) ReleasePendingPayment(ctx context.Context, tx *gorm.DB, subscriptionID string) error {
	instance, err := s.repo.FindBySubscriptionID(ctx, tx, subscriptionID)
	if err != nil {
		return err
	}
	if instance == nil {
		return nil
	}
	if err := s.repo.SetBillingStatus(ctx, tx, instance.ID, domain.BillingPaid); err != nil {
		return err
	}
	if instance.Status == domain.StatusPending {
		if _, err := s.enqueue(ctx, tx, instance.ID, tasksdomain.TypeProvision); err != nil {
			if errors.Is(err, tasksdomain.ErrTaskConflict) {
				// A teardown or stop is in flight; payment does not
				// resurrect the instance.
				s.log.Info("provisioning not scheduled, another task in flight",
					zap.String("instance_id", instance.ID.String()),
					zap.String("subscription_id", subscriptionID),
				)
				return nil
			}
			return err
		}
	}
	return nil
}

// SuspendForCancellation is invoked when the ledger cancels the
// subscription: mark billing suspended and schedule teardown. The two
// writes commit together or not at all; a queued task of another type
// is superseded, and a task mid-run fails the whole event application
// so the ledger redelivers once the task has drained.
func (s *Service) SuspendForCancellation(ctx context.Context, tx *gorm.DB, subscriptionID string) error {
	instance, err := s.repo.FindBySubscriptionID(ctx, tx, subscriptionID)
	if err != nil {
		return err
	}
	if instance == nil || instance.Status.Terminal() {
		return nil
	}
	if err := s.repo.SetBillingStatus(ctx, tx, instance.ID, domain.BillingSuspended); err != nil {
		return err
	}
	_, err = s.enqueueTeardown(ctx, tx, instance.ID)
	if errors.Is(err, tasksdomain.ErrTaskConflict) {
		return fmt.Errorf("teardown for instance %s blocked by a task mid-run: %w", instance.ID, faults.ErrBusy)
	}
	return err
}

// LinkSubscription attaches a ledger subscription to an instance that
// was created before the subscription existed. Linking is one-shot: an
// already linked instance keeps its subscription, and an unknown
// instance id is ignored so a stale ledger reference cannot fail the
// event.
func (s *Service) LinkSubscription(ctx context.Context, tx *gorm.DB, id snowflake.ID, subscriptionID string) error {
	if subscriptionID == "" {
		return nil
	}
	instance, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return err
	}
	if instance == nil || instance.SubscriptionID != nil {
		return nil
	}
	s.log.Info("linking subscription to instance",
		zap.String("instance_id", id.String()),
		zap.String("subscription_id", subscriptionID),
	)
	return s.repo.LinkSubscription(ctx, tx, id, subscriptionID)
}

// GetBySubscription returns the instance paying under the subscription,
// or nil when none is linked.
func (s *Service) GetBySubscription(ctx context.Context, tx *gorm.DB, subscriptionID string) (*domain.Instance, error) {
	return s.repo.FindBySubscriptionID(ctx, tx, subscriptionID)
}

// MarkPaymentRequired is invoked on a failed invoice payment.
func (s *Service) MarkPaymentRequired(ctx context.Context, tx *gorm.DB, subscriptionID string) error {
	instance, err := s.repo.FindBySubscriptionID(ctx, tx, subscriptionID)
	if err != nil {
		return err
	}
	if instance == nil {
		return nil
	}
	return s.repo.SetBillingStatus(ctx, tx, instance.ID, domain.BillingPaymentRequired)
}

func (s *Service) enqueue(ctx context.Context, db *gorm.DB, instanceID snowflake.ID, taskType tasksdomain.Type) (*tasksdomain.Task, error) {
	return s.tasks.Enqueue(ctx, db, s.newTask(instanceID, taskType))
}

// enqueueTeardown replaces any queued task for the instance so a
// pending provision or start cannot outlive the decision to tear down.
func (s *Service) enqueueTeardown(ctx context.Context, db *gorm.DB, instanceID snowflake.ID) (*tasksdomain.Task, error) {
	return s.tasks.EnqueueSuperseding(ctx, db, s.newTask(instanceID, tasksdomain.TypeTeardown))
}

func (s *Service) newTask(instanceID snowflake.ID, taskType tasksdomain.Type) *tasksdomain.Task {
	return &tasksdomain.Task{
		ID:          s.genID.Generate(),
		InstanceID:  instanceID,
		Type:        taskType,
		MaxAttempts: s.cfg.TaskMaxAttempts,
		RunAt:       s.clock.Now(),
	}
}
