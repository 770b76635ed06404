// The worker binary runs the task substrate without the API surface.
// Any number of worker processes may point at the same database; the
// queue claim protocol keeps them from stepping on each other.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/tariron/saasodoo-sub008/internal/allocator"
	"github.com/tariron/saasodoo-sub008/internal/billing"
	"github.com/tariron/saasodoo-sub008/internal/clock"
	"github.com/tariron/saasodoo-sub008/internal/config"
	"github.com/tariron/saasodoo-sub008/internal/instance"
	"github.com/tariron/saasodoo-sub008/internal/observability/logger"
	"github.com/tariron/saasodoo-sub008/internal/tasks"
	"github.com/tariron/saasodoo-sub008/internal/workload"
	"github.com/tariron/saasodoo-sub008/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(2)
			if err != nil {
				panic(err)
			}
			return node
		}),
		db.Module,
		clock.Module,

		allocator.Module,
		workload.Module,
		billing.Module,
		instance.Module,
		tasks.Module,
	)
	app.Run()
}
