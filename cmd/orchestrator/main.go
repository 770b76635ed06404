package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/tariron/saasodoo-sub008/internal/allocator"
	"github.com/tariron/saasodoo-sub008/internal/billing"
	"github.com/tariron/saasodoo-sub008/internal/clock"
	"github.com/tariron/saasodoo-sub008/internal/config"
	"github.com/tariron/saasodoo-sub008/internal/instance"
	"github.com/tariron/saasodoo-sub008/internal/migration"
	"github.com/tariron/saasodoo-sub008/internal/observability/logger"
	"github.com/tariron/saasodoo-sub008/internal/server"
	"github.com/tariron/saasodoo-sub008/internal/tasks"
	"github.com/tariron/saasodoo-sub008/internal/webhook"
	"github.com/tariron/saasodoo-sub008/internal/workload"
	"github.com/tariron/saasodoo-sub008/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var version = "dev"

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		fx.Invoke(func(conn *gorm.DB) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return migration.RunMigrations(sqlDB)
		}),
		clock.Module,

		allocator.Module,
		workload.Module,
		billing.Module,
		instance.Module,
		tasks.Module,
		webhook.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
