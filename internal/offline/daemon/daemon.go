package daemon

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	gosync "sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gosimple/slug"

	"github.com/daycast/syncengine/internal/offline/cache"
	"github.com/daycast/syncengine/internal/offline/repository"
	"github.com/daycast/syncengine/internal/offline/schema"
	"github.com/daycast/syncengine/internal/offline/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// PollInterval is how often connectivity is checked for an
	// offline-to-online transition (default: 2s)
	PollInterval time.Duration

	// EvictionInterval is how often the cache retention window is applied
	// (default: 1h)
	EvictionInterval time.Duration

	// RetentionDays is the cache retention window (default: 20)
	RetentionDays int

	// PrefetchDays is how many recent days are refreshed after a clean
	// drain; 0 disables the refresh (default: 3)
	PrefetchDays int

	// InboxDir is the share inbox to import files from; empty disables it
	InboxDir string

	// DebounceInterval is how long an inbox file must be quiet before it is
	// imported, so that a copy in progress is not read half-written
	DebounceInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger

	// Now overrides the clock (optional, for tests)
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:     2 * time.Second,
		EvictionInterval: time.Hour,
		RetentionDays:    20,
		PrefetchDays:     3,
		DebounceInterval: 250 * time.Millisecond,
		Logger:           log.Default().WithPrefix("daemon"),
		Now:              time.Now,
	}
}

// Daemon drains the pending operation queue when connectivity returns,
// applies the cache retention window, and imports files dropped into the
// share inbox.
type Daemon struct {
	repo      *repository.Repository
	processor sync.Processor
	cache     *cache.Cache
	config    *Config
	logger    *log.Logger

	watcher       *InboxWatcher
	changeQueue   map[string]time.Time // path -> last event
	changeQueueMu gosync.Mutex

	stateMu        gosync.Mutex
	wasOperational bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// New creates a new Daemon instance.
//
// The daemon requires:
//   - repo: the data repository; its reachability drives draining
//   - processor: the sync processor to drain with
//   - c: the cache to apply the retention window to
//
// Use Start() to begin.
func New(repo *repository.Repository, processor sync.Processor, c *cache.Cache) (*Daemon, error) {
	return NewWithConfig(repo, processor, c, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(repo *repository.Repository, processor sync.Processor, c *cache.Cache, config *Config) (*Daemon, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository cannot be nil")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor cannot be nil")
	}
	if c == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.EvictionInterval <= 0 {
		config.EvictionInterval = defaults.EvictionInterval
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = defaults.RetentionDays
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = defaults.DebounceInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	var watcher *InboxWatcher
	if config.InboxDir != "" {
		var err error
		watcher, err = NewInboxWatcher()
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		repo:        repo,
		processor:   processor,
		cache:       c,
		config:      config,
		logger:      config.Logger,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
//  1. Apply the cache retention window
//  2. Import files already waiting in the inbox
//  3. Check connectivity every PollInterval and drain the queue on each
//     offline-to-online transition
//  4. Re-apply the retention window every EvictionInterval
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info("Starting daemon")

	d.Evict()

	d.stateMu.Lock()
	d.wasOperational = d.repo.Operational()
	d.stateMu.Unlock()

	if d.watcher != nil {
		if err := os.MkdirAll(d.config.InboxDir, 0700); err != nil {
			return fmt.Errorf("failed to create inbox: %w", err)
		}
		if err := d.watcher.Start(d.config.InboxDir); err != nil {
			return err
		}
		if n, err := d.ImportInbox(d.ctx); err != nil {
			d.logger.Warn("Failed to scan inbox", "error", err)
		} else if n > 0 {
			d.logger.Info("Imported inbox files", "count", n)
		}
		d.logger.Info("Watching inbox", "dir", d.config.InboxDir)

		d.wg.Add(2)
		go d.watchInbox()
		go d.processChangeQueue()
	}

	d.wg.Add(2)
	go d.watchConnectivity()
	go d.evictPeriodically()

	select {
	case <-ctx.Done():
		d.logger.Info("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.logger.Info("Stopping daemon")

	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.logger.Warn("Error closing watcher", "error", err)
		}
	}

	d.wg.Wait()

	d.logger.Info("Daemon stopped")
	return nil
}

// Drain processes the queue once. A drain already in progress makes this a
// no-op returning sync.ErrBusy.
func (d *Daemon) Drain(ctx context.Context) (*sync.Result, error) {
	res, err := d.processor.ProcessQueue(ctx)
	if err != nil {
		if errors.Is(err, sync.ErrBusy) {
			d.logger.Debug("Drain already running")
		}
		return nil, err
	}
	if res.Applied+res.Abandoned+res.Skipped > 0 || res.Halted() {
		d.logger.Info("Drained queue", "result", res.String())
	}
	if !res.Halted() && res.Applied > 0 {
		d.prefetch(ctx)
	}
	return res, nil
}

// prefetch refreshes the most recent days so that the cache reflects what
// the drain just wrote.
func (d *Daemon) prefetch(ctx context.Context) {
	if d.config.PrefetchDays <= 0 {
		return
	}
	now := d.config.Now()
	dates := make([]string, 0, d.config.PrefetchDays)
	for i := 0; i < d.config.PrefetchDays; i++ {
		dates = append(dates, schema.FormatDate(now.AddDate(0, 0, -i)))
	}
	n := d.repo.Prefetch(ctx, dates)
	d.logger.Debug("Refreshed recent days", "count", n)
}

// Evict applies the cache retention window.
func (d *Daemon) Evict() {
	stats := d.cache.EvictOlderThan(d.ctx, d.config.RetentionDays)
	if stats.Total() > 0 {
		d.logger.Info("Evicted old cache records",
			"items", stats.Items, "generations", stats.Generations, "summaries", stats.Summaries)
	}
}

// checkConnectivity drains the queue if the server became operational
// since the previous check.
func (d *Daemon) checkConnectivity() {
	now := d.repo.Operational()

	d.stateMu.Lock()
	was := d.wasOperational
	d.wasOperational = now
	d.stateMu.Unlock()

	if !now || was {
		return
	}
	d.logger.Info("Connectivity restored, draining queue")
	if _, err := d.Drain(d.ctx); err != nil && !errors.Is(err, sync.ErrBusy) {
		d.logger.Warn("Drain failed", "error", err)
	}
}

func (d *Daemon) watchConnectivity() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.checkConnectivity()
		}
	}
}

func (d *Daemon) evictPeriodically() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.EvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.Evict()
		}
	}
}

// watchInbox queues inbox events for debounced import.
func (d *Daemon) watchInbox() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.logger.Debug("Inbox event", "kind", event.Kind, "path", event.Path)
			d.queueChange(event.Path)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.logger.Warn("Watcher error", "error", err)
		}
	}
}

func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges imports files that have been quiet for long enough.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	now := time.Now()
	var ready []string
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(d.changeQueue, path)
	}
	d.changeQueueMu.Unlock()

	sort.Strings(ready)
	for _, path := range ready {
		if err := d.importFile(d.ctx, path); err != nil {
			d.logger.Warn("Failed to import inbox file", "path", path, "error", err)
		}
	}
}

// ImportInbox imports every importable file currently in the inbox and
// returns how many were imported.
func (d *Daemon) ImportInbox(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(d.config.InboxDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read inbox: %w", err)
	}

	n := 0
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(d.config.InboxDir, entry.Name())
		if _, ok := KindOf(path); !ok {
			continue
		}
		if err := d.importFile(ctx, path); err != nil {
			d.logger.Warn("Failed to import inbox file", "path", path, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// importFile turns an inbox file into an item and removes it. The item is
// dated from a yyyy-MM-dd filename prefix, or today. Empty files are left
// for a later write event.
func (d *Daemon) importFile(ctx context.Context, path string) error {
	kind, ok := KindOf(path)
	if !ok {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	date := InboxDate(filepath.Base(path), d.config.Now())

	var item *schema.Item
	switch kind {
	case KindImage:
		item, err = d.repo.UploadImage(ctx, data, date, UploadName(filepath.Base(path)))
	case KindURL:
		content := ParseURLFile(data)
		if content == "" {
			d.logger.Debug("Inbox file has no URL yet", "path", path)
			return nil
		}
		item, err = d.repo.CreateItem(ctx, schema.ItemURL, content, date)
	default:
		content := strings.TrimSpace(string(data))
		if content == "" {
			return nil
		}
		item, err = d.repo.CreateItem(ctx, schema.ItemText, content, date)
	}
	if err != nil {
		return err
	}

	d.logger.Info("Imported inbox file", "file", filepath.Base(path), "kind", kind, "id", item.ID, "date", date)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove imported file: %w", err)
	}
	return nil
}

// InboxDate returns the owning date of an inbox file: a leading
// yyyy-MM-dd in its name, or the date of now.
func InboxDate(name string, now time.Time) string {
	if len(name) >= len(schema.DateLayout) && schema.ValidDate(name[:len(schema.DateLayout)]) {
		return name[:len(schema.DateLayout)]
	}
	return schema.FormatDate(now)
}

// UploadName returns the filename sent with an uploaded inbox image.
func UploadName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	stem := slug.Make(strings.TrimSuffix(name, filepath.Ext(name)))
	if stem == "" {
		stem = "image"
	}
	return stem + ext
}

// ParseURLFile extracts the link from a shared URL file. Internet shortcut
// files carry it on a URL= line; anything else is taken from the first
// non-empty line.
func ParseURLFile(data []byte) string {
	var first string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if v, ok := strings.CutPrefix(line, "URL="); ok {
			return strings.TrimSpace(v)
		}
		if first == "" && !strings.HasPrefix(line, "[") {
			first = line
		}
	}
	return first
}
