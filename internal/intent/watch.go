package intent

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDebounce = 250 * time.Millisecond

// Watcher reloads a library file into a Store whenever it changes on disk.
// An invalid file is logged and ignored; the previous library stays live.
type Watcher struct {
	path     string
	store    *Store
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload func(*Library)
	logger   *slog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for writes to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithReloadHook registers a callback invoked after every successful reload.
func WithReloadHook(fn func(*Library)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// NewWatcher watches path. The parent directory is watched so editors that
// save by rename are picked up.
func NewWatcher(path string, store *Store, logger *slog.Logger, opts ...WatcherOption) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve library path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:     abs,
		store:    store,
		watcher:  fw,
		debounce: defaultReloadDebounce,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn("[LIBRARY] Failed to close watcher", "error", err)
		}
	}()

	w.logger.Info("[LIBRARY] Watching library file", "path", w.path)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Stop()
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("[LIBRARY] Watcher error", "error", err)

		case <-fire:
			fire = nil
			if err := w.Reload(); err != nil {
				w.logger.Warn("[LIBRARY] Reload rejected, keeping previous library", "path", w.path, "error", err)
			}
		}
	}
}

// Reload reads the file now and swaps it in if valid.
func (w *Watcher) Reload() error {
	lib, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	w.store.Swap(lib)
	w.logger.Info("[LIBRARY] Library reloaded", "path", w.path, "rules", len(lib.Rules))
	if w.onReload != nil {
		w.onReload(lib)
	}
	return nil
}
