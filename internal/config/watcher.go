package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Reload describes a config file change that produced a new valid config.
type Reload struct {
	Old  *Config
	New  *Config
	Diff ConfigDiff
}

// Watcher polls a config file and hands every valid change to a callback.
// An edit that fails to parse or validate is logged and the previous config
// stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onReload func(Reload)

	current atomic.Pointer[Config]
	stamp   fileStamp

	stop     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

// fileStamp identifies one version of the file on disk.
type fileStamp struct {
	modTime time.Time
	sum     [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it. onReload may be nil when only
// [Watcher.Current] is needed.
func NewWatcher(path string, onReload func(Reload), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onReload: onReload,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, err := readStamped(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current.Store(cfg)
	w.stamp = stamp

	go w.loop()
	return w, nil
}

// Current returns the latest valid config.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Stop ends polling and waits for an in-flight callback to return. Safe to
// call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.stopped
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			if r, ok := w.poll(); ok && w.onReload != nil {
				w.onReload(r)
			}
		}
	}
}

// poll is only called from loop, so stamp needs no lock.
func (w *Watcher) poll() (Reload, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
		return Reload{}, false
	}
	if info.ModTime().Equal(w.stamp.modTime) {
		return Reload{}, false
	}

	cfg, stamp, err := readStamped(w.path)
	if err != nil {
		slog.Warn("config: keeping previous config, reload failed", "path", w.path, "err", err)
		w.stamp.modTime = info.ModTime()
		return Reload{}, false
	}
	unchanged := stamp.sum == w.stamp.sum
	w.stamp = stamp
	if unchanged {
		return Reload{}, false
	}

	old := w.current.Swap(cfg)
	slog.Info("config: reloaded", "path", w.path)
	return Reload{Old: old, New: cfg, Diff: Diff(old, cfg)}, true
}

// readStamped parses and validates the file at path and fingerprints its
// contents.
func readStamped(path string) (*Config, fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileStamp{}, err
	}
	return cfg, fileStamp{modTime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
