package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/novabot503/novacat/internal/cache"
	"github.com/novabot503/novacat/internal/catalog"
	"github.com/novabot503/novacat/internal/clock"
	"github.com/novabot503/novacat/internal/config"
	"github.com/novabot503/novacat/internal/migration"
	"github.com/novabot503/novacat/internal/notification"
	"github.com/novabot503/novacat/internal/observability"
	"github.com/novabot503/novacat/internal/order"
	"github.com/novabot503/novacat/internal/providers"
	"github.com/novabot503/novacat/internal/ratelimit"
	"github.com/novabot503/novacat/internal/retention"
	"github.com/novabot503/novacat/internal/server"
	"github.com/novabot503/novacat/internal/upload"
	"github.com/novabot503/novacat/pkg/db"
	"go.uber.org/fx"
)

func main() {
	cfg := config.Load()

	options := []fx.Option{
		// Core Infrastructure
		fx.Supply(cfg),
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		cache.Module,
		ratelimit.Module,
		providers.Module,

		// Functional Domains
		catalog.Module,
		notification.Module,
		order.Module,
		upload.Module,
		retention.Module,

		server.Module,
	}

	// The database is only opened when orders are stored in it.
	if cfg.OrderStore == config.OrderStoreSQL {
		options = append(options, db.Module, migration.Module)
	}

	fx.New(options...).Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
