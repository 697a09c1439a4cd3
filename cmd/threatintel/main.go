package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/threatintel/internal/clock"
	"github.com/smallbiznis/threatintel/internal/config"
	"github.com/smallbiznis/threatintel/internal/feed"
	"github.com/smallbiznis/threatintel/internal/indicator"
	"github.com/smallbiznis/threatintel/internal/malware"
	"github.com/smallbiznis/threatintel/internal/migration"
	"github.com/smallbiznis/threatintel/internal/observability"
	"github.com/smallbiznis/threatintel/internal/server"
	"github.com/smallbiznis/threatintel/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		indicator.Module,
		malware.Module,
		feed.Module,
		feed.WatcherModule,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
