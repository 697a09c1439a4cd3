package feed

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/threatintel/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the batch loader and, when redis is configured, the file locker.
var Module = fx.Module("feed",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
	fx.Provide(NewLoader),
)

// WatcherModule runs the inbox watcher for the lifetime of the app.
var WatcherModule = fx.Module("feed.watcher",
	fx.Provide(NewWatcher),
	fx.Invoke(runWatcher),
)

// NewRedisClient returns nil when no redis address is configured.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func runWatcher(lc fx.Lifecycle, ingest *config.IngestConfigHolder, watcher *Watcher, log *zap.Logger) {
	if strings.TrimSpace(ingest.Get().InboxDir) == "" {
		log.Info("feed inbox not configured, watcher disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := watcher.Run(ctx); err != nil {
					log.Error("feed watcher stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
