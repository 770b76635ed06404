package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	allocatordomain "github.com/tariron/saasodoo-sub008/internal/allocator/domain"
	"github.com/tariron/saasodoo-sub008/internal/faults"
	"github.com/tariron/saasodoo-sub008/internal/instance/domain"
	tasksdomain "github.com/tariron/saasodoo-sub008/internal/tasks/domain"
	workloaddomain "github.com/tariron/saasodoo-sub008/internal/workload/domain"
	"go.uber.org/zap"
)

// HandleProvision drives one instance from pending (or error, on
// retry) to running. Every step is idempotent, so the substrate can
// redeliver the task after a crash at any point:
//   - the allocator returns the existing backend for a known instance,
//   - workload creation returns the existing handle on conflict,
//   - state transitions are CAS-guarded.
//
// Credentials obtained here never outlive this call.
func (s *Service) HandleProvision(ctx context.Context, task tasksdomain.Task) error {
	instance, err := s.repo.FindByID(ctx, s.db, task.InstanceID)
	if err != nil {
		return err
	}
	if instance == nil || instance.Status.Terminal() {
		return nil
	}
	if instance.Status == domain.StatusRunning {
		// Redelivery after a completed run.
		return nil
	}
	if !instance.BillingAllowsProvisioning() {
		s.log.Info("provisioning held by billing status",
			zap.String("instance_id", instance.ID.String()),
			zap.String("billing_status", string(instance.BillingStatus)),
		)
		return nil
	}

	moved, err := s.repo.Transition(ctx, s.db, instance.ID,
		[]domain.Status{domain.StatusPending, domain.StatusError},
		domain.StatusProvisioning, nil)
	if err != nil {
		return err
	}
	if !moved && instance.Status != domain.StatusProvisioning {
		// Another path changed the state; nothing for this task to do.
		return nil
	}

	if err := s.provision(ctx, instance); err != nil {
		return s.failProvisioning(ctx, instance.ID, err)
	}
	return nil
}

func (s *Service) provision(ctx context.Context, instance *domain.Instance) error {
	creds, allocation, err := s.allocator.Allocate(ctx, instance.ID, instance.DBType)
	if err != nil {
		return fmt.Errorf("allocate database: %w", err)
	}
	if err := s.repo.SetAllocationRef(ctx, s.db, instance.ID, allocation.Handle); err != nil {
		return err
	}

	handle, err := s.scheduler.Create(ctx, instance.ID, s.buildSpec(instance, creds))
	if err != nil {
		return fmt.Errorf("create workload: %w", err)
	}
	if err := s.repo.SetWorkloadHandle(ctx, s.db, instance.ID, &handle); err != nil {
		return err
	}

	if err := s.waitReady(ctx, handle); err != nil {
		// Partially created compute must not be orphaned. The database
		// allocation stays: it is expensive to recreate and the retry
		// path reuses it.
		if delErr := s.scheduler.Delete(ctx, handle); delErr != nil {
			s.log.Warn("workload cleanup after failure",
				zap.String("instance_id", instance.ID.String()),
				zap.Error(delErr),
			)
		}
		return err
	}

	moved, err := s.repo.Transition(ctx, s.db, instance.ID,
		[]domain.Status{domain.StatusProvisioning}, domain.StatusRunning, nil)
	if err != nil {
		return err
	}
	if !moved {
		return fmt.Errorf("instance %s left provisioning concurrently: %w", instance.ID, faults.ErrInvalidState)
	}
	return nil
}

// waitReady polls the scheduler until the workload reports ready, it
// reports failed, or the readiness window elapses.
func (s *Service) waitReady(ctx context.Context, handle string) error {
	deadline := s.clock.Now().Add(s.cfg.ReadinessTimeout)
	poll := s.cfg.ReadinessPoll
	if poll <= 0 {
		poll = 5 * time.Second
	}

	for {
		state, err := s.scheduler.Status(ctx, handle)
		if err != nil {
			return fmt.Errorf("workload status: %w", err)
		}
		switch state {
		case workloaddomain.StateReady:
			return nil
		case workloaddomain.StateFailed:
			return fmt.Errorf("workload failed to start: %w", faults.ErrResourceUnavailable)
		}

		if !s.clock.Now().Add(poll).Before(deadline) {
			return fmt.Errorf("workload not ready within %s: %w", s.cfg.ReadinessTimeout, faults.ErrDownstreamTimeout)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("workload readiness wait: %w", faults.ErrDownstreamTimeout)
		case <-time.After(poll):
		}
	}
}

// failProvisioning records the failure atomically (status=error and
// provisioning_status=failed are one write) and passes the original
// error to the substrate so transient causes get backoff and retry.
func (s *Service) failProvisioning(ctx context.Context, id snowflake.ID, cause error) error {
	message := cause.Error()
	if _, err := s.repo.Transition(ctx, s.db, id,
		[]domain.Status{domain.StatusProvisioning}, domain.StatusError, &message); err != nil {
		s.log.Error("record provisioning failure", zap.String("instance_id", id.String()), zap.Error(err))
	}
	return cause
}

// HandleStart brings a stopped instance back. The allocator call is
// the same idempotent fetch the provision path uses; the backend and
// its data are untouched by stop/start.
func (s *Service) HandleStart(ctx context.Context, task tasksdomain.Task) error {
	instance, err := s.repo.FindByID(ctx, s.db, task.InstanceID)
	if err != nil {
		return err
	}
	if instance == nil || instance.Status != domain.StatusStopped {
		return nil
	}

	creds, _, err := s.allocator.Allocate(ctx, instance.ID, instance.DBType)
	if err != nil {
		return fmt.Errorf("refetch allocation: %w", err)
	}

	handle, err := s.scheduler.Create(ctx, instance.ID, s.buildSpec(instance, creds))
	if err != nil {
		return fmt.Errorf("create workload: %w", err)
	}
	if err := s.repo.SetWorkloadHandle(ctx, s.db, instance.ID, &handle); err != nil {
		return err
	}
	if err := s.waitReady(ctx, handle); err != nil {
		if delErr := s.scheduler.Delete(ctx, handle); delErr != nil {
			s.log.Warn("workload cleanup after failed start",
				zap.String("instance_id", instance.ID.String()),
				zap.Error(delErr),
			)
		}
		return err
	}

	_, err = s.repo.Transition(ctx, s.db, instance.ID,
		[]domain.Status{domain.StatusStopped}, domain.StatusRunning, nil)
	return err
}

// HandleStop deletes the compute object and keeps the allocation.
func (s *Service) HandleStop(ctx context.Context, task tasksdomain.Task) error {
	instance, err := s.repo.FindByID(ctx, s.db, task.InstanceID)
	if err != nil {
		return err
	}
	if instance == nil {
		return nil
	}
	switch instance.Status {
	case domain.StatusRunning, domain.StatusStopping:
	default:
		return nil
	}

	if _, err := s.repo.Transition(ctx, s.db, instance.ID,
		[]domain.Status{domain.StatusRunning}, domain.StatusStopping, nil); err != nil {
		return err
	}

	if instance.WorkloadHandle != nil {
		if err := s.scheduler.Delete(ctx, *instance.WorkloadHandle); err != nil {
			return fmt.Errorf("delete workload: %w", err)
		}
		if err := s.repo.SetWorkloadHandle(ctx, s.db, instance.ID, nil); err != nil {
			return err
		}
	}

	_, err = s.repo.Transition(ctx, s.db, instance.ID,
		[]domain.Status{domain.StatusStopping}, domain.StatusStopped, nil)
	return err
}

// HandleTeardown removes the compute object and the database backend.
// This is the only path that releases an allocation.
func (s *Service) HandleTeardown(ctx context.Context, task tasksdomain.Task) error {
	instance, err := s.repo.FindByID(ctx, s.db, task.InstanceID)
	if err != nil {
		return err
	}
	if instance == nil || instance.Status.Terminal() {
		return nil
	}

	if instance.WorkloadHandle != nil {
		if err := s.scheduler.Delete(ctx, *instance.WorkloadHandle); err != nil {
			return fmt.Errorf("delete workload: %w", err)
		}
		if err := s.repo.SetWorkloadHandle(ctx, s.db, instance.ID, nil); err != nil {
			return err
		}
	}

	if err := s.allocator.Release(ctx, instance.ID); err != nil {
		return fmt.Errorf("release allocation: %w", err)
	}

	_, err = s.repo.Transition(ctx, s.db, instance.ID,
		[]domain.Status{domain.StatusPending, domain.StatusRunning, domain.StatusStopped, domain.StatusError},
		domain.StatusTerminated, nil)
	return err
}

func (s *Service) buildSpec(instance *domain.Instance, creds *allocatordomain.Credentials) workloaddomain.Spec {
	return workloaddomain.Spec{
		Name:      instance.Name,
		Image:     s.cfg.WorkloadImage,
		CPULimit:  instance.CPULimit,
		MemoryMB:  instance.MemoryMB,
		StorageGB: instance.StorageGB,
		Env: map[string]string{
			"DB_HOST":     creds.Host,
			"DB_PORT":     strconv.Itoa(creds.Port),
			"DB_USER":     creds.User,
			"DB_PASSWORD": creds.Password,
			"DB_NAME":     creds.Database,
		},
	}
}
