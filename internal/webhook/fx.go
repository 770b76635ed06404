package webhook

import (
	"context"

	billingdomain "github.com/tariron/saasodoo-sub008/internal/billing/domain"
	"github.com/tariron/saasodoo-sub008/internal/config"
	"github.com/tariron/saasodoo-sub008/internal/webhook/domain"
	"github.com/tariron/saasodoo-sub008/internal/webhook/repository"
	"github.com/tariron/saasodoo-sub008/internal/webhook/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("webhook",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
	fx.Provide(func(ledger billingdomain.LedgerClient, log *zap.Logger, cfg config.Config) *Registrar {
		return NewRegistrar(ledger, log, cfg.WebhookCallbackURL)
	}),
	fx.Invoke(runRegistrar),
)

func runRegistrar(lc fx.Lifecycle, registrar *Registrar) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, c := context.WithCancel(context.Background())
			cancel = c
			go registrar.EnsureRegistrationWithRetry(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}
