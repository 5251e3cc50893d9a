// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collector records OnChange batches and signals each one on a channel.
type collector struct {
	mu      sync.Mutex
	batches [][]string
	ch      chan []string
}

func newCollector() *collector {
	return &collector{ch: make(chan []string, 16)}
}

func (c *collector) onChange(_ context.Context, changed []string) error {
	c.mu.Lock()
	c.batches = append(c.batches, changed)
	c.mu.Unlock()
	c.ch <- changed
	return nil
}

func (c *collector) wait(t *testing.T) []string {
	t.Helper()
	select {
	case b := <-c.ch:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change batch")
		return nil
	}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func runWatcher(t *testing.T, cfg Config) (*Watcher, context.CancelFunc) {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Run() error: %v", err)
		}
	})
	return w, cancel
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestWatcher_Debounce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := newCollector()
	runWatcher(t, Config{Dir: dir, Debounce: 150 * time.Millisecond, OnChange: c.onChange})

	for _, name := range []string{"c.zip", "a.zip", "b.zip"} {
		writeFile(t, filepath.Join(dir, name))
		time.Sleep(10 * time.Millisecond)
	}

	got := c.wait(t)
	if want := []string{"a.zip", "b.zip", "c.zip"}; !slices.Equal(got, want) {
		t.Errorf("batch = %v, want %v", got, want)
	}

	time.Sleep(300 * time.Millisecond)
	if n := c.count(); n != 1 {
		t.Errorf("OnChange called %d times, want 1", n)
	}
}

func TestWatcher_IgnoresPartialDrops(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := newCollector()
	runWatcher(t, Config{
		Dir:      dir,
		Debounce: 100 * time.Millisecond,
		Ignore:   []string{"**/*.log"},
		OnChange: c.onChange,
	})

	for _, name := range []string{".hidden", "upload.part", "copy.tmp", "debug.log", "edit.zip~"} {
		writeFile(t, filepath.Join(dir, name))
	}
	writeFile(t, filepath.Join(dir, "real.zip"))

	got := c.wait(t)
	if want := []string{"real.zip"}; !slices.Equal(got, want) {
		t.Errorf("batch = %v, want %v", got, want)
	}
}

func TestWatcher_PatternFiltering(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "modules"), 0o755); err != nil {
		t.Fatal(err)
	}
	c := newCollector()
	runWatcher(t, Config{
		Dir:      dir,
		Patterns: InboxPatterns,
		Debounce: 100 * time.Millisecond,
		OnChange: c.onChange,
	})

	writeFile(t, filepath.Join(dir, "notes.txt"))
	writeFile(t, filepath.Join(dir, "stray.zip"))
	writeFile(t, filepath.Join(dir, "modules", "com.example.pay.zip"))

	got := c.wait(t)
	if want := []string{"modules/com.example.pay.zip"}; !slices.Equal(got, want) {
		t.Errorf("batch = %v, want %v", got, want)
	}
}

func TestWatcher_NewDirectoriesAreWatched(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := newCollector()
	runWatcher(t, Config{Dir: dir, Debounce: 100 * time.Millisecond, OnChange: c.onChange})

	sub := filepath.Join(dir, "patches")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// fsnotify needs the new directory registered before the write lands.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(sub, "fix.zip"))

	got := c.wait(t)
	if !slices.Contains(got, "patches/fix.zip") {
		t.Errorf("batch = %v, want it to contain patches/fix.zip", got)
	}
}

func TestWatcher_SkipsWhileBusy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	release := make(chan struct{})
	started := make(chan struct{}, 4)

	var (
		mu      sync.Mutex
		running int
		maxSeen int
		seen    []string
	)
	runWatcher(t, Config{
		Dir:      dir,
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			mu.Lock()
			running++
			maxSeen = max(maxSeen, running)
			seen = append(seen, changed...)
			mu.Unlock()
			started <- struct{}{}
			<-release
			mu.Lock()
			running--
			mu.Unlock()
			return nil
		},
	})

	writeFile(t, filepath.Join(dir, "first.zip"))
	<-started
	writeFile(t, filepath.Join(dir, "second.zip"))
	time.Sleep(200 * time.Millisecond)
	close(release)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("deferred batch never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	if maxSeen != 1 {
		t.Errorf("max concurrent OnChange = %d, want 1", maxSeen)
	}
	if !slices.Contains(seen, "second.zip") {
		t.Errorf("second.zip was dropped: %v", seen)
	}
}

func TestWatcher_RunTwice(t *testing.T) {
	t.Parallel()

	w, cancel := runWatcher(t, Config{Dir: t.TempDir()})
	defer cancel()

	// Give the first Run a chance to claim the watcher.
	deadline := time.Now().Add(5 * time.Second)
	for !w.started.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := w.Run(t.Context()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() = %v, want ErrAlreadyRunning", err)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing dir", cfg: Config{}},
		{name: "nonexistent dir", cfg: Config{Dir: filepath.Join(t.TempDir(), "absent")}},
		{name: "bad pattern", cfg: Config{Dir: t.TempDir(), Patterns: []string{"[unclosed"}}},
		{name: "bad ignore", cfg: Config{Dir: t.TempDir(), Ignore: []string{"{a,b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.cfg.Logger = discardLogger()
			if w, err := New(tt.cfg); err == nil {
				_ = w.fsw.Close()
				t.Error("New() succeeded, want error")
			}
		})
	}
}

func TestDefaultIgnores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rel  string
		want bool
	}{
		{rel: ".DS_Store", want: true},
		{rel: "modules/.stage/x.zip", want: true},
		{rel: "modules/x.zip.part", want: true},
		{rel: "patches/fix.tmp", want: true},
		{rel: "patches/fix.zip~", want: true},
		{rel: "patches/.fix.zip.swp", want: true},
		{rel: "modules/x.zip", want: false},
		{rel: "patches/fix.zip", want: false},
	}

	patterns := DefaultIgnores()
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			t.Parallel()
			if got := matchAny(patterns, tt.rel); got != tt.want {
				t.Errorf("ignored(%q) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}

	patterns[0] = "mutated"
	if DefaultIgnores()[0] == "mutated" {
		t.Error("DefaultIgnores returned shared slice")
	}
}
