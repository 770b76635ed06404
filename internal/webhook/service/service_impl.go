package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/tariron/saasodoo-sub008/internal/billing/domain"
	"github.com/tariron/saasodoo-sub008/internal/clock"
	"github.com/tariron/saasodoo-sub008/internal/events"
	instanceservice "github.com/tariron/saasodoo-sub008/internal/instance/service"
	"github.com/tariron/saasodoo-sub008/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	Subs         billingdomain.Repository
	Orchestrator *instanceservice.Service
}

// Service applies ledger events exactly once. Side effects and the
// processed_at mark are written in one transaction, so a crash between
// the two is impossible and replays short-circuit.
type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	subs         billingdomain.Repository
	orchestrator *instanceservice.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("webhook.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		subs:         p.Subs,
		orchestrator: p.Orchestrator,
	}
}

func (s *Service) Ingest(ctx context.Context, payload []byte) error {
	if !json.Valid(payload) {
		return domain.ErrInvalidPayload
	}
	var event events.BillingEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.ErrInvalidPayload
	}
	event.EventID = strings.TrimSpace(event.EventID)
	event.EventType = strings.TrimSpace(event.EventType)
	if event.EventID == "" || event.EventType == "" {
		return domain.ErrInvalidEvent
	}

	now := s.clock.Now()
	record := &domain.EventRecord{
		ID:         s.genID.Generate(),
		EventID:    event.EventID,
		EventType:  event.EventType,
		Payload:    datatypes.JSON(payload),
		ReceivedAt: now,
	}

	inserted, err := s.repo.Insert(ctx, s.db, record)
	if err != nil {
		return err
	}
	if !inserted {
		stored, err := s.repo.FindByEventID(ctx, s.db, event.EventID)
		if err != nil {
			return err
		}
		if stored != nil && stored.ProcessedAt != nil {
			s.log.Info("duplicate ledger event ignored",
				zap.String("event_id", event.EventID),
				zap.String("event_type", event.EventType),
			)
			return domain.ErrEventAlreadyProcessed
		}
		// A previous delivery recorded the event but crashed before
		// finishing; this delivery picks the work up.
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Re-read under a row lock: a concurrent delivery of the same
		// event blocks here until the winner commits, then bails out on
		// processed_at instead of applying the side effects again.
		locked, err := s.repo.LockByEventID(ctx, tx, event.EventID)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrInvalidEvent
		}
		if locked.ProcessedAt != nil {
			return domain.ErrEventAlreadyProcessed
		}
		if err := s.apply(ctx, tx, event); err != nil {
			return err
		}
		return s.repo.MarkProcessed(ctx, tx, locked.ID, now)
	})
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, event events.BillingEvent) error {
	if err := s.linkInstance(ctx, tx, event); err != nil {
		return err
	}
	switch event.EventType {
	case events.EventInvoicePaymentSuccess:
		return s.applyPaymentSuccess(ctx, tx, event)
	case events.EventInvoicePaymentFailed:
		return s.applyPaymentFailed(ctx, tx, event)
	case events.EventSubscriptionCancelled:
		return s.applyCancelled(ctx, tx, event)
	default:
		s.log.Info("unhandled ledger event type acked",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
		)
		return nil
	}
}

func (s *Service) applyPaymentSuccess(ctx context.Context, tx *gorm.DB, event events.BillingEvent) error {
	if event.SubscriptionID == "" {
		return domain.ErrInvalidEvent
	}
	if err := s.upsertSubscription(ctx, tx, event, billingdomain.SubscriptionActive); err != nil {
		return err
	}
	return s.orchestrator.ReleasePendingPayment(ctx, tx, event.SubscriptionID)
}

func (s *Service) applyPaymentFailed(ctx context.Context, tx *gorm.DB, event events.BillingEvent) error {
	if event.SubscriptionID == "" {
		return domain.ErrInvalidEvent
	}
	if err := s.upsertSubscription(ctx, tx, event, billingdomain.SubscriptionPaymentRequired); err != nil {
		return err
	}
	return s.orchestrator.MarkPaymentRequired(ctx, tx, event.SubscriptionID)
}

func (s *Service) applyCancelled(ctx context.Context, tx *gorm.DB, event events.BillingEvent) error {
	if event.SubscriptionID == "" {
		return domain.ErrInvalidEvent
	}
	if err := s.upsertSubscription(ctx, tx, event, billingdomain.SubscriptionCancelled); err != nil {
		return err
	}
	return s.orchestrator.SuspendForCancellation(ctx, tx, event.SubscriptionID)
}

// linkInstance binds the event's subscription to the instance named in
// the ledger metadata, covering instances created before their
// subscription existed.
func (s *Service) linkInstance(ctx context.Context, tx *gorm.DB, event events.BillingEvent) error {
	if event.SubscriptionID == "" {
		return nil
	}
	raw, ok := event.Metadata["instance_id"].(string)
	if !ok || raw == "" {
		return nil
	}
	instanceID, err := snowflake.ParseString(raw)
	if err != nil {
		s.log.Warn("ledger event carries an unparseable instance_id",
			zap.String("event_id", event.EventID),
			zap.String("instance_id", raw),
		)
		return nil
	}
	return s.orchestrator.LinkSubscription(ctx, tx, instanceID, event.SubscriptionID)
}

func (s *Service) upsertSubscription(ctx context.Context, tx *gorm.DB, event events.BillingEvent, state billingdomain.SubscriptionState) error {
	subscription, err := s.subs.FindByID(ctx, tx, event.SubscriptionID)
	if err != nil {
		return err
	}
	if subscription == nil {
		subscription = &billingdomain.Subscription{
			ID:        event.SubscriptionID,
			AccountID: event.AccountID,
		}
	}
	if subscription.InstanceID == nil {
		instance, err := s.orchestrator.GetBySubscription(ctx, tx, event.SubscriptionID)
		if err != nil {
			return err
		}
		if instance != nil {
			id := instance.ID
			subscription.InstanceID = &id
		}
	}
	subscription.State = state
	if plan, ok := event.Metadata["plan_name"].(string); ok && plan != "" {
		subscription.PlanName = plan
	}
	if err := s.subs.Upsert(ctx, tx, subscription); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", event.SubscriptionID, err)
	}
	return nil
}

var _ domain.Service = (*Service)(nil)
