package feed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallbiznis/threatintel/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestRunWatcher_StopsWithApp(t *testing.T) {
	inbox := t.TempDir()
	cfg := config.DefaultIngestConfig()
	cfg.InboxDir = inbox
	cfg.Workers = 1
	loader, _ := setupLoader(t, cfg)

	holder := config.NewStaticIngestConfigHolder(cfg)
	watcher := NewWatcher(WatcherParams{
		Log:    zap.NewNop(),
		Loader: loader,
		Ingest: holder,
	})

	app := fxtest.New(t,
		fx.Supply(holder, watcher, zap.NewNop()),
		fx.Invoke(runWatcher),
	)
	app.RequireStart()

	writeFeed(t, inbox, "before_stop.json", `{"indicators":[{"type":"domain","value":"before.example"}]}`)
	require.Eventually(t, func() bool {
		return exists(filepath.Join(inbox, doneDir, "before_stop.json"))
	}, 5*time.Second, 20*time.Millisecond)

	app.RequireStop()

	writeFeed(t, inbox, "after_stop.json", `{"indicators":[{"type":"domain","value":"after.example"}]}`)
	time.Sleep(300 * time.Millisecond)

	assert.True(t, exists(filepath.Join(inbox, "after_stop.json")))
	assert.False(t, exists(filepath.Join(inbox, doneDir, "after_stop.json")))
	assert.False(t, exists(filepath.Join(inbox, failedDir, "after_stop.json")))
}

func TestRunWatcher_DisabledWithoutInbox(t *testing.T) {
	holder := config.NewStaticIngestConfigHolder(config.DefaultIngestConfig())
	loader, _ := setupLoader(t, config.DefaultIngestConfig())
	watcher := NewWatcher(WatcherParams{Log: zap.NewNop(), Loader: loader, Ingest: holder})

	app := fxtest.New(t,
		fx.Supply(holder, watcher, zap.NewNop()),
		fx.Invoke(runWatcher),
	)
	app.RequireStart()
	app.RequireStop()

	_, err := os.Stat(filepath.Join(".", doneDir))
	assert.True(t, os.IsNotExist(err))
}
