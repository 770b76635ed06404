package allocator

import (
	"github.com/tariron/saasodoo-sub008/internal/allocator/domain"
	"github.com/tariron/saasodoo-sub008/internal/allocator/httpclient"
	"github.com/tariron/saasodoo-sub008/internal/allocator/repository"
	"github.com/tariron/saasodoo-sub008/internal/allocator/service"
	"github.com/tariron/saasodoo-sub008/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("allocator",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) domain.Client {
		return httpclient.New(httpclient.Config{
			BaseURL:     cfg.AllocatorURL,
			MaxInFlight: cfg.AllocatorMaxInFlight,
			Timeout:     cfg.DownstreamTimeout,
		})
	}),
	fx.Provide(service.NewService),
)
