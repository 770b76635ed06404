package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/tariron/saasodoo-sub008/internal/allocator/domain"
	"github.com/tariron/saasodoo-sub008/internal/faults"
	instancedomain "github.com/tariron/saasodoo-sub008/internal/instance/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Client domain.Client
	Repo   domain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	client domain.Client
	repo   domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("allocator.service"),
		genID:  p.GenID,
		client: p.Client,
		repo:   p.Repo,
	}
}

// Allocate asks the allocator for the instance's backend and reconciles
// the answer with the local projection. Calling it again for the same
// instance is the normal retry path: the allocator returns the existing
// backend and fresh credentials, which are handed to the caller and
// forgotten.
func (s *Service) Allocate(ctx context.Context, instanceID snowflake.ID, dbType instancedomain.DBType) (*domain.Credentials, *domain.Allocation, error) {
	result, err := s.client.Allocate(ctx, instanceID, dbType)
	if err != nil {
		return nil, nil, err
	}

	existing, err := s.repo.FindByInstanceID(ctx, s.db, instanceID)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		if existing.ServerID != result.ServerID || existing.Handle != result.Handle() {
			// The allocator broke its idempotency contract. This is a
			// bug on one side or the other, never something to retry.
			s.log.Error("allocator returned a different backend for a known instance",
				zap.String("instance_id", instanceID.String()),
				zap.String("recorded_server", existing.ServerID),
				zap.String("returned_server", result.ServerID),
			)
			return nil, nil, fmt.Errorf("instance %s: %w", instanceID, faults.ErrIdempotencyViolation)
		}
		creds := result.Credentials
		return &creds, existing, nil
	}

	allocation := &domain.Allocation{
		ID:         s.genID.Generate(),
		InstanceID: instanceID,
		ServerID:   result.ServerID,
		DBType:     dbType,
		Handle:     result.Handle(),
	}
	inserted, err := s.repo.Insert(ctx, s.db, allocation)
	if err != nil {
		return nil, nil, err
	}
	if !inserted {
		// Lost a race with another worker; the recorded row wins.
		allocation, err = s.repo.FindByInstanceID(ctx, s.db, instanceID)
		if err != nil {
			return nil, nil, err
		}
		if allocation == nil {
			return nil, nil, fmt.Errorf("instance %s: allocation vanished: %w", instanceID, faults.ErrIdempotencyViolation)
		}
	}

	creds := result.Credentials
	return &creds, allocation, nil
}

func (s *Service) Release(ctx context.Context, instanceID snowflake.ID) error {
	if err := s.client.Release(ctx, instanceID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, s.db, instanceID)
}
