package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxgate/voxgate/internal/config"
)

const watcherBaseYAML = `
server:
  log_level: info
providers:
  llm:
    name: openai
  stt:
    name: deepgram
  tts:
    name: elevenlabs
agents:
  - name: reception
    system_prompt: You answer the phone for a dental practice.
    greeting: Hello, how can I help?
`

const watcherDebugYAML = `
server:
  log_level: debug
providers:
  llm:
    name: openai
  stt:
    name: deepgram
  tts:
    name: elevenlabs
agents:
  - name: reception
    system_prompt: You answer the phone for a dental practice.
    greeting: Good morning, how can I help?
`

// startWatcher writes content to a temp config file and watches it with a
// short poll interval. The returned path can be rewritten to trigger reloads.
func startWatcher(t *testing.T, content string, onChange func(old, new *config.Config)) (string, *config.Watcher) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	rewrite(t, path, content)

	w, err := config.NewWatcher(path, onChange, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return path, w
}

func rewrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	_, w := startWatcher(t, watcherBaseYAML, nil)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var gotOld, gotNew *config.Config
	fired := make(chan struct{}, 1)

	path, w := startWatcher(t, watcherBaseYAML, func(old, new *config.Config) {
		mu.Lock()
		gotOld, gotNew = old, new
		mu.Unlock()
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	// Let the first poll pass before rewriting.
	time.Sleep(100 * time.Millisecond)
	rewrite(t, path, watcherDebugYAML)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("reload callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotOld == nil || gotNew == nil {
		t.Fatal("callback received nil configs")
	}
	if gotOld.Server.LogLevel != config.LogInfo {
		t.Errorf("old log_level = %q, want %q", gotOld.Server.LogLevel, config.LogInfo)
	}
	if gotNew.Server.LogLevel != config.LogDebug {
		t.Errorf("new log_level = %q, want %q", gotNew.Server.LogLevel, config.LogDebug)
	}
	if cur := w.Current(); cur.Server.LogLevel != config.LogDebug {
		t.Errorf("Current() log_level = %q, want %q", cur.Server.LogLevel, config.LogDebug)
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	path, w := startWatcher(t, watcherBaseYAML, func(_, _ *config.Config) {
		calls.Add(1)
	})

	time.Sleep(100 * time.Millisecond)
	rewrite(t, path, "server:\n  log_level: bananas\n")

	// Several poll intervals to let the watcher see the bad file.
	time.Sleep(300 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("callback fired %d times for an invalid config, want 0", n)
	}
	if cur := w.Current(); cur.Server.LogLevel != config.LogInfo {
		t.Errorf("Current() log_level = %q, want the previous config kept", cur.Server.LogLevel)
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	path, _ := startWatcher(t, watcherBaseYAML, func(_, _ *config.Config) {
		calls.Add(1)
	})

	// Bump the mtime only.
	time.Sleep(100 * time.Millisecond)
	now := time.Now().Add(time.Second)
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("touch file: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("callback fired %d times for a touch-only change, want 0", n)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("NewWatcher on a missing file should fail")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	_, w := startWatcher(t, watcherBaseYAML, nil)

	w.Stop()
	w.Stop()
	w.Stop()
}
