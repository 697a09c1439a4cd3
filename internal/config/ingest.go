package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// IngestConfig tunes feed ingestion. It is reloaded at runtime when the
// backing ingest.yml changes.
type IngestConfig struct {
	InboxDir     string
	Workers      int
	MaxBatchSize int
	LockTTL      time.Duration
	FileTimeout  time.Duration
}

func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		InboxDir:     "",
		Workers:      4,
		MaxBatchSize: 5000,
		LockTTL:      5 * time.Minute,
		FileTimeout:  2 * time.Minute,
	}
}

type IngestConfigHolder struct {
	current atomic.Value // holds IngestConfig
}

// NewStaticIngestConfigHolder wraps a fixed config, mostly for tests and
// one-shot tools.
func NewStaticIngestConfigHolder(cfg IngestConfig) *IngestConfigHolder {
	holder := &IngestConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewIngestConfigHolder(cfg Config) (*IngestConfigHolder, error) {
	v := viper.New()

	if path := strings.TrimSpace(cfg.IngestConfigPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ingest")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/threatintel")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("THREATINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return newIngestConfigHolder(v, true)
}

func newIngestConfigHolder(v *viper.Viper, watch bool) (*IngestConfigHolder, error) {
	defaults := DefaultIngestConfig()
	v.SetDefault("ingest.inboxDir", defaults.InboxDir)
	v.SetDefault("ingest.workers", defaults.Workers)
	v.SetDefault("ingest.maxBatchSize", defaults.MaxBatchSize)
	v.SetDefault("ingest.lockTTL", defaults.LockTTL)
	v.SetDefault("ingest.fileTimeout", defaults.FileTimeout)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	cfg := readIngestConfig(v)
	if err := validateIngestConfig(cfg); err != nil {
		return nil, err
	}

	holder := &IngestConfigHolder{}
	holder.current.Store(cfg)

	if watch && fileLoaded {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated := readIngestConfig(v)
			if err := validateIngestConfig(updated); err != nil {
				zap.L().Warn("invalid ingest config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			zap.L().Info("ingest config reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *IngestConfigHolder) Get() IngestConfig {
	return h.current.Load().(IngestConfig)
}

func readIngestConfig(v *viper.Viper) IngestConfig {
	return IngestConfig{
		InboxDir:     strings.TrimSpace(v.GetString("ingest.inboxDir")),
		Workers:      v.GetInt("ingest.workers"),
		MaxBatchSize: v.GetInt("ingest.maxBatchSize"),
		LockTTL:      v.GetDuration("ingest.lockTTL"),
		FileTimeout:  v.GetDuration("ingest.fileTimeout"),
	}
}

func validateIngestConfig(cfg IngestConfig) error {
	if cfg.Workers <= 0 {
		return errors.New("ingest.workers must be positive")
	}
	if cfg.MaxBatchSize <= 0 {
		return errors.New("ingest.maxBatchSize must be positive")
	}
	if cfg.LockTTL <= 0 {
		return errors.New("ingest.lockTTL must be positive")
	}
	if cfg.FileTimeout <= 0 {
		return errors.New("ingest.fileTimeout must be positive")
	}
	return nil
}
