package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/threatintel/internal/clock"
	"github.com/smallbiznis/threatintel/internal/config"
	"github.com/smallbiznis/threatintel/internal/feed"
	"github.com/smallbiznis/threatintel/internal/indicator"
	"github.com/smallbiznis/threatintel/internal/malware"
	"github.com/smallbiznis/threatintel/internal/migration"
	"github.com/smallbiznis/threatintel/internal/observability"
	"github.com/smallbiznis/threatintel/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	files := os.Args[1:]
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: feedloader <batch.json>...")
		os.Exit(2)
	}

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

		fx.Supply(files),
		fx.Invoke(run),
	)
	app.Run()
}

// run loads every file once in argument order and stops the app. A failing
// file does not prevent the rest from loading; the exit code reports it.
func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, loader *feed.Loader, files []string, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				failed := 0
				for _, path := range files {
					if ctx.Err() != nil {
						break
					}
					result, err := loader.LoadFile(ctx, path)
					if err != nil {
						failed++
						log.Error("feed file failed", zap.String("file", path), zap.Error(err))
						continue
					}
					log.Info("feed file loaded",
						zap.String("file", path),
						zap.String("run_id", result.RunID),
						zap.Int("indicators", len(result.IndicatorIDs)),
						zap.Int("malware", len(result.MalwareIDs)),
					)
				}

				code := 0
				if failed > 0 {
					code = 1
				}
				_ = shutdowner.Shutdown(fx.ExitCode(code))
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
