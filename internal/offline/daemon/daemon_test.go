package daemon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/daycast/syncengine/internal/offline/cache"
	"github.com/daycast/syncengine/internal/offline/db"
	"github.com/daycast/syncengine/internal/offline/queue"
	"github.com/daycast/syncengine/internal/offline/remote/remotetest"
	"github.com/daycast/syncengine/internal/offline/repository"
	"github.com/daycast/syncengine/internal/offline/schema"
	"github.com/daycast/syncengine/internal/offline/sync"
)

// switchMonitor is a reachability signal the test flips by hand.
type switchMonitor struct {
	up atomic.Bool
}

func (m *switchMonitor) Operational() bool   { return m.up.Load() }
func (m *switchMonitor) ReportSuccess()      {}
func (m *switchMonitor) ReportFailure(error) {}

type testEnv struct {
	repo      *repository.Repository
	processor sync.Processor
	cache     *cache.Cache
	queue     *queue.Queue
	fake      *remotetest.Fake
	monitor   *switchMonitor
	inbox     string
	now       func() time.Time
	logger    *log.Logger
}

// setupTestEnv wires a repository and processor to a fresh store and a
// fake server. The monitor starts offline.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := db.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := store.InitSchema(); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	quiet := log.New(io.Discard)
	var mu gosync.Mutex
	clock := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Millisecond)
		return clock
	}

	q := queue.NewWithConfig(store, &queue.Config{
		AttachmentDir: filepath.Join(dir, "pending_images"),
		MaxRetries:    queue.DefaultMaxRetries,
		Logger:        quiet,
		Now:           now,
	})
	c := cache.NewWithConfig(store, &cache.Config{RetentionDays: 20, Logger: quiet, Now: now})
	fake := remotetest.New()
	fake.SetClock(now)
	monitor := &switchMonitor{}

	repo := repository.NewWithConfig(fake, c, q, monitor, &repository.Config{Logger: quiet, Now: now})
	return &testEnv{
		repo:      repo,
		processor: sync.NewWithConfig(repo.API(), q, c, &sync.Config{Logger: quiet}),
		cache:     c,
		queue:     q,
		fake:      fake,
		monitor:   monitor,
		inbox:     filepath.Join(dir, "inbox"),
		now:       now,
		logger:    quiet,
	}
}

func (e *testEnv) config() *Config {
	return &Config{
		PollInterval:     10 * time.Millisecond,
		EvictionInterval: time.Hour,
		RetentionDays:    20,
		PrefetchDays:     3,
		DebounceInterval: 20 * time.Millisecond,
		InboxDir:         e.inbox,
		Logger:           e.logger,
		Now:              e.now,
	}
}

// startDaemon runs the daemon until the test ends.
func startDaemon(t *testing.T, d *Daemon) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Daemon error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Daemon did not stop")
		}
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestNew(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name      string
		repo      *repository.Repository
		processor sync.Processor
		cache     *cache.Cache
		wantErr   bool
	}{
		{"valid configuration", env.repo, env.processor, env.cache, false},
		{"nil repository", nil, env.processor, env.cache, true},
		{"nil processor", env.repo, nil, env.cache, true},
		{"nil cache", env.repo, env.processor, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewWithConfig(tt.repo, tt.processor, tt.cache, env.config())
			if (err != nil) != tt.wantErr {
				t.Errorf("NewWithConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if d != nil {
				d.Stop()
			}
		})
	}
}

func TestDaemon_DrainsOnReconnect(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	if _, err := env.repo.CreateItem(ctx, schema.ItemText, "Buy milk", "2025-01-10"); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	d, err := NewWithConfig(env.repo, env.processor, env.cache, env.config())
	if err != nil {
		t.Fatalf("Failed to create daemon: %v", err)
	}
	startDaemon(t, d)

	time.Sleep(50 * time.Millisecond)
	if n := env.fake.CallCount("CreateItem"); n != 0 {
		t.Fatalf("CreateItem calls while offline = %d, want 0", n)
	}

	env.monitor.up.Store(true)
	waitFor(t, "queue to drain", func() bool { return env.queue.Count(ctx) == 0 })

	if n := env.fake.CallCount("CreateItem"); n != 1 {
		t.Errorf("CreateItem calls = %d, want 1", n)
	}
	items := env.cache.Items(ctx, "2025-01-10")
	if len(items) != 1 || schema.IsTempID(items[0].ID) {
		t.Errorf("cached items = %+v, want the synced item", items)
	}
}

func TestDaemon_DrainsOnlyOnTransition(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	if _, err := env.repo.CreateItem(ctx, schema.ItemText, "note", "2025-01-10"); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	env.monitor.up.Store(true)

	d, err := NewWithConfig(env.repo, env.processor, env.cache, env.config())
	if err != nil {
		t.Fatalf("Failed to create daemon: %v", err)
	}
	startDaemon(t, d)

	time.Sleep(100 * time.Millisecond)
	if n := env.queue.Count(ctx); n != 1 {
		t.Errorf("queue count = %d, want 1 without a transition", n)
	}

	env.monitor.up.Store(false)
	time.Sleep(50 * time.Millisecond)
	env.monitor.up.Store(true)
	waitFor(t, "queue to drain", func() bool { return env.queue.Count(ctx) == 0 })
}

func TestDaemon_Drain(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.repo.CreateItem(ctx, schema.ItemText, "a", "2025-01-10")
	env.repo.CreateItem(ctx, schema.ItemText, "b", "2025-01-10")
	env.monitor.up.Store(true)

	d, err := NewWithConfig(env.repo, env.processor, env.cache, env.config())
	if err != nil {
		t.Fatalf("Failed to create daemon: %v", err)
	}
	defer d.Stop()

	res, err := d.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if res.Applied != 2 {
		t.Errorf("Drain() = %s, want 2 applied", res)
	}
	if n := env.fake.CallCount("FetchDay"); n != 3 {
		t.Errorf("FetchDay calls = %d, want 3 recent days refreshed", n)
	}
}

func TestDaemon_ImportsInbox(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	if err := os.MkdirAll(env.inbox, 0700); err != nil {
		t.Fatalf("Failed to create inbox: %v", err)
	}
	waiting := filepath.Join(env.inbox, "2025-01-09_note.txt")
	if err := os.WriteFile(waiting, []byte("  written yesterday \n"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	d, err := NewWithConfig(env.repo, env.processor, env.cache, env.config())
	if err != nil {
		t.Fatalf("Failed to create daemon: %v", err)
	}
	startDaemon(t, d)

	waitFor(t, "waiting file import", func() bool {
		_, err := os.Stat(waiting)
		return os.IsNotExist(err)
	})
	items := env.cache.Items(ctx, "2025-01-09")
	if len(items) != 1 || items[0].Content != "written yesterday" || !items[0].IsLocal {
		t.Fatalf("items for 2025-01-09 = %+v", items)
	}

	link := filepath.Join(env.inbox, "article.url")
	if err := os.WriteFile(link, []byte("[InternetShortcut]\nURL=https://example.com/a\n"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	photo := filepath.Join(env.inbox, "2025-01-10 Beach Day.jpg")
	if err := os.WriteFile(photo, []byte("jpeg"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	waitFor(t, "new files import", func() bool { return len(env.cache.Items(ctx, "2025-01-10")) == 2 })

	var sawURL, sawImage bool
	for _, item := range env.cache.Items(ctx, "2025-01-10") {
		switch item.Type {
		case schema.ItemURL:
			sawURL = item.Content == "https://example.com/a"
		case schema.ItemImage:
			sawImage = item.Content == schema.PendingImageContent
		}
	}
	if !sawURL || !sawImage {
		t.Errorf("imported url = %v, image = %v", sawURL, sawImage)
	}
	if n := env.queue.Count(ctx); n != 3 {
		t.Errorf("queue count = %d, want 3 offline imports", n)
	}
}

func TestDaemon_Evict(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	old := schema.Item{ID: "srv_old", Type: schema.ItemText, Content: "old", Date: "2024-11-01",
		CreatedAt: "2024-11-01T08:00:00Z", UpdatedAt: "2024-11-01T08:00:00Z"}
	recent := schema.Item{ID: "srv_new", Type: schema.ItemText, Content: "new", Date: "2025-01-09",
		CreatedAt: "2025-01-09T08:00:00Z", UpdatedAt: "2025-01-09T08:00:00Z"}
	env.cache.UpsertItem(ctx, old)
	env.cache.UpsertItem(ctx, recent)

	d, err := NewWithConfig(env.repo, env.processor, env.cache, env.config())
	if err != nil {
		t.Fatalf("Failed to create daemon: %v", err)
	}
	defer d.Stop()

	d.Evict()
	if _, ok := env.cache.Item(ctx, "srv_old"); ok {
		t.Error("item outside the retention window was not evicted")
	}
	if _, ok := env.cache.Item(ctx, "srv_new"); !ok {
		t.Error("recent item was evicted")
	}
}

func TestDaemon_GracefulShutdown(t *testing.T) {
	env := setupTestEnv(t)

	d, err := NewWithConfig(env.repo, env.processor, env.cache, env.config())
	if err != nil {
		t.Fatalf("Failed to create daemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned error on shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Daemon did not shut down in time")
	}
}

func TestInboxDate(t *testing.T) {
	now := time.Date(2025, 1, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		want string
	}{
		{"2025-01-09_note.txt", "2025-01-09"},
		{"2025-01-09.txt", "2025-01-09"},
		{"2025-13-09_note.txt", "2025-01-10"},
		{"note.txt", "2025-01-10"},
		{"2025.txt", "2025-01-10"},
	}

	for _, tt := range tests {
		if got := InboxDate(tt.name, now); got != tt.want {
			t.Errorf("InboxDate(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestUploadName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Beach Day.JPG", "beach-day.jpg"},
		{"IMG_0042.heic", "img_0042.heic"},
		{"???.png", "image.png"},
	}

	for _, tt := range tests {
		if got := UploadName(tt.name); got != tt.want {
			t.Errorf("UploadName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestParseURLFile(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"internet shortcut", "[InternetShortcut]\r\nURL=https://example.com/x\r\n", "https://example.com/x"},
		{"plain link", "\n https://example.com/y \nsecond line\n", "https://example.com/y"},
		{"empty", "\n\n", ""},
		{"section only", "[InternetShortcut]\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseURLFile([]byte(tt.data)); got != tt.want {
				t.Errorf("ParseURLFile() = %q, want %q", got, tt.want)
			}
		})
	}
}
