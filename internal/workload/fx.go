package workload

import (
	"github.com/tariron/saasodoo-sub008/internal/config"
	"github.com/tariron/saasodoo-sub008/internal/workload/domain"
	"github.com/tariron/saasodoo-sub008/internal/workload/httpclient"
	"go.uber.org/fx"
)

var Module = fx.Module("workload",
	fx.Provide(func(cfg config.Config) domain.Scheduler {
		return httpclient.New(httpclient.Config{
			BaseURL:     cfg.SchedulerURL,
			MaxInFlight: cfg.SchedulerMaxInFlight,
			Timeout:     cfg.DownstreamTimeout,
		})
	}),
)
