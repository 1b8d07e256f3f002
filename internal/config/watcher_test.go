package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/hark/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
vad:
  energy_threshold: 0.6
`

const watcherUpdatedYAML = `
server:
  log_level: debug
vad:
  energy_threshold: 0.8
`

const watcherInvalidYAML = `
vad:
  max_silence_ms: -1
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// rewrite writes content and moves the mtime forward so Check notices the
// edit regardless of filesystem timestamp granularity.
func rewrite(t *testing.T, path, content string, step int) {
	t.Helper()
	writeFile(t, path, content)
	mt := time.Now().Add(time.Duration(step) * time.Second)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

type changeRecorder struct {
	mu    sync.Mutex
	pairs [][2]*config.Config
}

func (r *changeRecorder) onChange(old, new *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs = append(r.pairs, [2]*config.Config{old, new})
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pairs)
}

func newWatcher(t *testing.T, content string, onChange func(old, new *config.Config)) (*config.Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hark.yaml")
	writeFile(t, path, content)
	w, err := config.NewWatcher(path, onChange, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _ := newWatcher(t, watcherValidYAML, nil)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	_, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	rec := &changeRecorder{}
	w, path := newWatcher(t, watcherValidYAML, rec.onChange)

	rewrite(t, path, watcherUpdatedYAML, 1)
	w.Check()

	if rec.count() != 1 {
		t.Fatalf("onChange called %d times, want 1", rec.count())
	}
	old, new := rec.pairs[0][0], rec.pairs[0][1]
	if old.Server.LogLevel != config.LogInfo || new.Server.LogLevel != config.LogDebug {
		t.Errorf("log levels: old %q new %q", old.Server.LogLevel, new.Server.LogLevel)
	}
	d := config.Diff(old, new)
	if !d.VADChanged || d.NewVAD.EnergyThreshold != 0.8 {
		t.Errorf("diff = %+v, want energy threshold 0.8", d)
	}
	if w.Current() != new {
		t.Error("Current() does not return the reloaded config")
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	rec := &changeRecorder{}
	w, path := newWatcher(t, watcherValidYAML, rec.onChange)
	before := w.Current()

	rewrite(t, path, watcherInvalidYAML, 1)
	w.Check()

	if rec.count() != 0 {
		t.Errorf("onChange called %d times for an invalid file", rec.count())
	}
	if w.Current() != before {
		t.Error("Current() changed after an invalid edit")
	}

	// A later valid edit is still picked up.
	rewrite(t, path, watcherUpdatedYAML, 2)
	w.Check()
	if rec.count() != 1 {
		t.Errorf("onChange called %d times after fix, want 1", rec.count())
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	rec := &changeRecorder{}
	w, path := newWatcher(t, watcherValidYAML, rec.onChange)

	rewrite(t, path, watcherValidYAML, 1)
	w.Check()
	if rec.count() != 0 {
		t.Errorf("onChange called %d times for identical content", rec.count())
	}
}

func TestWatcher_RunStopsWithContext(t *testing.T) {
	t.Parallel()
	rec := &changeRecorder{}
	w, path := newWatcher(t, watcherValidYAML, rec.onChange)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	rewrite(t, path, watcherUpdatedYAML, 1)
	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.count() == 0 {
		t.Error("Run did not pick up the change")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
