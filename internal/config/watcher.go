package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the file.
const DefaultWatchInterval = 5 * time.Second

// Reload describes an accepted change of the config file.
type Reload struct {
	Old, New *Config
	Diff     ConfigDiff
}

// Watcher polls a config file and reports effective changes. A rewrite that
// fails to parse or validate is logged and ignored; so is one whose
// [ConfigDiff] is empty, such as an edited comment.
type Watcher struct {
	path      string
	env       LookupFunc
	interval  time.Duration
	overrides func(*Config)
	onReload  func(Reload)

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	current *Config
	stamp   fileStamp
}

// fileStamp identifies one version of the file.
type fileStamp struct {
	mtime time.Time
	size  int64
	sum   [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithOverrides applies fn to every loaded config before defaults and
// validation, so command-line overrides survive reloads.
func WithOverrides(fn func(*Config)) WatcherOption {
	return func(w *Watcher) { w.overrides = fn }
}

// NewWatcher loads path with env overrides and starts polling it. onReload
// runs on the polling goroutine; it may call [Watcher.Current]. Call
// [Watcher.Stop] to release the goroutine.
func NewWatcher(path string, env LookupFunc, onReload func(Reload), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		env:      env,
		interval: DefaultWatchInterval,
		onReload: onReload,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.stamp = cfg, stamp

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.run(ctx)
	return w, nil
}

// Current returns the last accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling and waits for an in-progress reload to finish. It may be
// called more than once.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config file unreadable; keeping current configuration", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	prev := w.stamp
	w.mu.Unlock()
	if info.ModTime().Equal(prev.mtime) && info.Size() == prev.size {
		return
	}

	cfg, stamp, err := w.load()
	if err != nil {
		slog.Warn("config file rejected; keeping current configuration", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	w.stamp = stamp
	if stamp.sum == prev.sum {
		w.mu.Unlock()
		return
	}
	old := w.current
	diff := Diff(old, cfg)
	if diff.IsEmpty() {
		w.mu.Unlock()
		slog.Debug("config file changed without effect", "path", w.path)
		return
	}
	w.current = cfg
	w.mu.Unlock()

	slog.Info("config file reloaded", "path", w.path,
		"log_level_changed", diff.LogLevelChanged,
		"tools_changed", diff.ToolsChanged,
		"restart_required", diff.RestartRequired,
	)
	if w.onReload != nil {
		w.onReload(Reload{Old: old, New: cfg, Diff: diff})
	}
}

// load reads, decodes, overrides and validates the file.
func (w *Watcher) load() (*Config, fileStamp, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := decode(bytes.NewReader(data), w.env, w.overrides)
	if err != nil {
		return nil, fileStamp{}, err
	}
	return cfg, fileStamp{mtime: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}, nil
}
