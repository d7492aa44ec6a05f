package main

import (
	"github.com/MnbNwz/aab-platform-sub003/internal/access"
	"github.com/MnbNwz/aab-platform-sub003/internal/bid"
	"github.com/MnbNwz/aab-platform-sub003/internal/cache"
	"github.com/MnbNwz/aab-platform-sub003/internal/clock"
	"github.com/MnbNwz/aab-platform-sub003/internal/config"
	"github.com/MnbNwz/aab-platform-sub003/internal/job"
	"github.com/MnbNwz/aab-platform-sub003/internal/lead"
	"github.com/MnbNwz/aab-platform-sub003/internal/membership"
	"github.com/MnbNwz/aab-platform-sub003/internal/migration"
	"github.com/MnbNwz/aab-platform-sub003/internal/observability"
	"github.com/MnbNwz/aab-platform-sub003/internal/ratelimit"
	"github.com/MnbNwz/aab-platform-sub003/internal/scheduler"
	"github.com/MnbNwz/aab-platform-sub003/internal/server"
	"github.com/MnbNwz/aab-platform-sub003/internal/user"
	"github.com/MnbNwz/aab-platform-sub003/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,

		// Domains
		user.Module,
		job.Module,
		membership.Module,
		lead.Module,
		access.Module,
		bid.Module,

		// Schema, seed and maintenance
		migration.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		panic(err)
	}
	return node
}
