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

// fileState identifies one version of the watched file. The modification
// time is the cheap test; the digest decides whether the content changed.
type fileState struct {
	mtime  time.Time
	digest [sha256.Size]byte
}

// Watcher polls a config file and calls onChange with the previous and the
// new config whenever the content changes and still validates. Invalid edits
// are logged and skipped, so [Watcher.Current] always returns a good config.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	log      *slog.Logger

	mu      sync.Mutex
	current *Config
	state   fileState
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 2 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger for reload events.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher loads path and returns a Watcher for it. Nothing is polled
// until [Watcher.Run].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 2 * time.Second,
		onChange: onChange,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.state = cfg, st
	return w, nil
}

// Current returns the last config that loaded and validated.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run calls [Watcher.Check] every interval until ctx is done. It returns nil
// so it can share an errgroup with the components it reconfigures.
func (w *Watcher) Run(ctx context.Context) error {
	tick := time.NewTicker(w.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			w.Check()
		}
	}
}

// Check looks at the file once. A new, valid content replaces the current
// config and fires onChange outside the lock, so the callback may call
// [Watcher.Current].
func (w *Watcher) Check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config watcher: stat failed", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	same := info.ModTime().Equal(w.state.mtime)
	w.mu.Unlock()
	if same {
		return
	}

	cfg, st, err := w.read()
	if err != nil {
		w.log.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	edited := st.digest != w.state.digest
	w.state = st
	old := w.current
	if edited {
		w.current = cfg
	}
	w.mu.Unlock()

	if !edited {
		return
	}
	w.log.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// read parses and validates the file and reports the state it was read in.
func (w *Watcher) read() (*Config, fileState, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, fileState{mtime: info.ModTime(), digest: sha256.Sum256(data)}, nil
}
