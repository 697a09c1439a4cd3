package feed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/threatintel/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	doneDir   = "done"
	failedDir = "failed"
	feedExt   = ".json"
)

type WatcherParams struct {
	fx.In

	Log    *zap.Logger
	Loader *Loader
	Ingest *config.IngestConfigHolder
	Locker *Locker `optional:"true"`
}

// Watcher feeds batch files dropped into the inbox to a pool of workers.
// Producers should write elsewhere and rename into the inbox so a file is
// complete when its create event fires.
type Watcher struct {
	log    *zap.Logger
	loader *Loader
	ingest *config.IngestConfigHolder
	locker *Locker

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewWatcher(p WatcherParams) *Watcher {
	return &Watcher{
		log:      p.Log.Named("feed.watcher"),
		loader:   p.Loader,
		ingest:   p.Ingest,
		locker:   p.Locker,
		inflight: make(map[string]struct{}),
	}
}

// Run blocks until ctx is cancelled. Files already in the inbox are queued
// on start.
func (w *Watcher) Run(ctx context.Context) error {
	cfg := w.ingest.Get()
	inbox := strings.TrimSpace(cfg.InboxDir)
	if inbox == "" {
		return errors.New("ingest inbox dir is empty")
	}
	for _, dir := range []string{inbox, filepath.Join(inbox, doneDir), filepath.Join(inbox, failedDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	if err := fsw.Add(inbox); err != nil {
		return err
	}

	paths := make(chan string, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				w.process(ctx, inbox, path)
			}
		}()
	}
	defer func() {
		close(paths)
		wg.Wait()
	}()

	w.log.Info("feed watcher started", zap.String("inbox", inbox), zap.Int("workers", cfg.Workers))

	entries, err := os.ReadDir(inbox)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !w.enqueue(ctx, paths, filepath.Join(inbox, entry.Name())) {
			return nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !w.enqueue(ctx, paths, event.Name) {
				return nil
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("inbox watch error", zap.Error(err))
		}
	}
}

// enqueue reports false once ctx is done.
func (w *Watcher) enqueue(ctx context.Context, paths chan<- string, path string) bool {
	if !strings.EqualFold(filepath.Ext(path), feedExt) {
		return true
	}

	w.mu.Lock()
	if _, busy := w.inflight[path]; busy {
		w.mu.Unlock()
		return true
	}
	w.inflight[path] = struct{}{}
	w.mu.Unlock()

	select {
	case paths <- path:
		return true
	case <-ctx.Done():
		w.done(path)
		return false
	}
}

func (w *Watcher) done(path string) {
	w.mu.Lock()
	delete(w.inflight, path)
	w.mu.Unlock()
}

func (w *Watcher) process(ctx context.Context, inbox, path string) {
	defer w.done(path)
	if ctx.Err() != nil {
		return
	}

	cfg := w.ingest.Get()
	name := filepath.Base(path)
	log := w.log.With(zap.String("file", name))

	if w.locker != nil {
		token, ok, err := w.locker.TryLock(ctx, name, cfg.LockTTL)
		if err != nil {
			log.Warn("feed lock failed", zap.Error(err))
			return
		}
		if !ok {
			log.Debug("feed file claimed by another instance")
			return
		}
		defer func() {
			if err := w.locker.Release(context.Background(), name, token); err != nil {
				log.Warn("feed lock release failed", zap.Error(err))
			}
		}()
	}

	// Another instance may have finished and moved the file already.
	if _, err := os.Stat(path); err != nil {
		return
	}

	fileCtx, cancel := context.WithTimeout(ctx, cfg.FileTimeout)
	defer cancel()

	target := doneDir
	if _, err := w.loader.LoadFile(fileCtx, path); err != nil {
		if ctx.Err() != nil {
			// Shutting down; leave the file for the next start.
			return
		}
		target = failedDir
		log.Warn("feed file failed", zap.Error(err))
	}

	if err := os.Rename(path, filepath.Join(inbox, target, name)); err != nil {
		log.Error("move feed file failed", zap.String("target", target), zap.Error(err))
	}
}
