package tasks

import (
	"context"

	"github.com/tariron/saasodoo-sub008/internal/config"
	"github.com/tariron/saasodoo-sub008/internal/tasks/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("tasks",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) Config {
		return Config{
			Workers:      cfg.Workers,
			PollInterval: cfg.TaskPollInterval,
			MaxAttempts:  cfg.TaskMaxAttempts,
			BackoffBase:  cfg.TaskBackoffBase,
		}
	}),
	fx.Provide(NewWorker),
	fx.Provide(NewPool),
	fx.Invoke(runPool),
)

func runPool(lc fx.Lifecycle, pool *Pool) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			pool.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return pool.Stop(ctx)
		},
	})
}
