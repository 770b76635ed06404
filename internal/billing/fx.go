package billing

import (
	"github.com/tariron/saasodoo-sub008/internal/billing/domain"
	"github.com/tariron/saasodoo-sub008/internal/billing/httpclient"
	"github.com/tariron/saasodoo-sub008/internal/billing/repository"
	"github.com/tariron/saasodoo-sub008/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("billing",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) domain.LedgerClient {
		return httpclient.New(httpclient.Config{
			BaseURL: cfg.LedgerURL,
			APIKey:  cfg.LedgerAPIKey,
			Timeout: cfg.DownstreamTimeout,
		})
	}),
)
