package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadCallback receives every configuration that loaded and validated
// after the watched file changed.
type ReloadCallback func(*Config)

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	path          string
	cli           *CLI
	watcher       *fsnotify.Watcher
	callback      ReloadCallback
	logger        *slog.Logger
	debounceDelay time.Duration

	mu         sync.Mutex
	lastConfig *Config
	running    bool
	stopCh     chan struct{}
	stoppedCh  chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets how long the watcher waits for the file to settle.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithLogger sets the watcher's logger.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger.With("component", "config_watcher")
	}
}

// NewWatcher creates a Watcher for path. CLI overrides in cli are applied to
// every reloaded config; cli may be nil.
func NewWatcher(path string, cli *CLI, callback ReloadCallback, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}

	w := &Watcher{
		path:          absPath,
		cli:           cli,
		watcher:       fsWatcher,
		callback:      callback,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		debounceDelay: 200 * time.Millisecond,
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches the directory of the config file until ctx is done or Stop
// is called. The directory is watched so that editors replacing the file
// are noticed.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(w.path), err)
	}
	w.running = true

	w.logger.Info("watching configuration file", "path", w.path)
	go w.watch(ctx)
	return nil
}

// Stop stops watching and releases the underlying watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh

	return w.watcher.Close()
}

// LastConfig returns the last configuration delivered to the callback.
func (w *Watcher) LastConfig() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastConfig
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped due to context cancellation")
			return

		case <-w.stopCh:
			w.logger.Info("config watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.logger.Debug("config file changed", "path", event.Name, "op", event.Op.String())
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounceDelay)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "err", err)
		}
	}
}

// reload loads the file and hands it to the callback. Files that fail to
// load or validate are logged and otherwise ignored.
func (w *Watcher) reload() {
	w.logger.Info("reloading configuration", "path", w.path)

	cfg, err := LoadFile(w.path, w.cli)
	if err != nil {
		w.logger.Error("configuration reload failed; keeping current configuration", "err", err)
		return
	}

	w.mu.Lock()
	w.lastConfig = cfg
	w.mu.Unlock()

	if w.callback != nil {
		w.callback(cfg)
	}
}
