package config

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher keeps a config file and the running service in step. It polls the
// file and hands every edit that validates and changes a setting to onChange
// as an (old, new) pair. Edits that fail validation are logged and dropped.
// Edits that only touch comments or formatting are absorbed silently.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	// reloadMu serialises reloads between the poll loop and [Watcher.Reload].
	reloadMu sync.Mutex
	seen     fileState

	mu      sync.Mutex
	current *Config

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// fileState identifies one version of the watched file.
type fileState struct {
	mtime time.Time
	size  int64
	sum   [sha256.Size]byte
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

// NewWatcher loads path and starts polling it. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, st, err := read(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.seen = cfg, st

	go w.run()
	return w, nil
}

// Current returns the config of the last accepted edit.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. After Stop returns, onChange is not called again by
// the poll loop.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stop) })
	<-w.stopped
}

// Reload reads the file now, bypassing the modification time check. It
// returns the load or validation error of a rejected edit.
func (w *Watcher) Reload() error {
	if err := w.reload(true); !errors.Is(err, errUnchanged) {
		return err
	}
	return nil
}

func (w *Watcher) run() {
	defer close(w.stopped)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			if err := w.reload(false); err != nil && !errors.Is(err, errUnchanged) {
				slog.Warn("config watcher: edit rejected, keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// errUnchanged reports a poll that found nothing to do.
var errUnchanged = errors.New("config: file unchanged")

func (w *Watcher) reload(force bool) error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	if !force && info.ModTime().Equal(w.seen.mtime) && info.Size() == w.seen.size {
		return errUnchanged
	}

	cfg, st, err := read(w.path)
	if err != nil {
		// A rejected version is reported once, not on every poll.
		w.seen.mtime, w.seen.size = info.ModTime(), info.Size()
		return err
	}
	if st.sum == w.seen.sum {
		w.seen = st
		return errUnchanged
	}
	w.seen = st

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.mu.Unlock()

	d := Diff(old, cfg)
	if !d.Changed() {
		slog.Debug("config watcher: edit changes no setting", "path", w.path)
		return nil
	}
	slog.Info("config watcher: configuration reloaded", "path", w.path, "sections", d.Sections())
	if err := cfg.Analysis.CheckWindow(cfg.Recording.DurationSeconds); err != nil {
		slog.Warn("config watcher: default recording window too short", "err", err)
	}

	// Outside the state lock, so onChange may call Current.
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return nil
}

// read loads and validates path, returning the config and the state of the
// bytes it was parsed from.
func read(path string) (*Config, fileState, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, fileState{mtime: info.ModTime(), size: int64(len(data)), sum: sha256.Sum256(data)}, nil
}
