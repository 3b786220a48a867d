// Package repository is the single entry point the UI layer uses for data.
//
// Reads go to the server when it is operational, refresh the cache, and fall
// back to cached data otherwise. Item and settings writes are applied to the
// cache first, then sent to the server; when the server cannot be reached
// they are queued for the sync processor. Generation, publishing and export
// have no offline path and fail fast with an *OfflineError.
//
// Every server call goes through remote.Reporting, so reachability is
// updated from the outcome of real traffic.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/daycast/syncengine/internal/offline/cache"
	"github.com/daycast/syncengine/internal/offline/queue"
	"github.com/daycast/syncengine/internal/offline/remote"
	"github.com/daycast/syncengine/internal/offline/schema"
)

// Monitor is the reachability state the repository routes on. Call outcomes
// are reported back to it.
type Monitor interface {
	Operational() bool
	remote.Reporter
}

// Config holds repository configuration.
type Config struct {
	// PrefetchConcurrency bounds concurrent day fetches in Prefetch (default: 4)
	PrefetchConcurrency int

	// Logger for fallbacks and absorbed queue failures
	Logger *log.Logger

	// Now overrides the clock used for local timestamps (optional, for tests)
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PrefetchConcurrency: 4,
		Logger:              log.Default().WithPrefix("repository"),
		Now:                 time.Now,
	}
}

// Repository routes data operations between the server, the cache and the
// pending operation queue.
type Repository struct {
	api     remote.API
	cache   *cache.Cache
	queue   *queue.Queue
	monitor Monitor
	config  *Config
	logger  *log.Logger
}

// New creates a repository with default configuration.
func New(api remote.API, c *cache.Cache, q *queue.Queue, monitor Monitor) *Repository {
	return NewWithConfig(api, c, q, monitor, DefaultConfig())
}

// NewWithConfig creates a repository. api is wrapped so that every call
// outcome is reported to monitor.
func NewWithConfig(api remote.API, c *cache.Cache, q *queue.Queue, monitor Monitor, config *Config) *Repository {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default().WithPrefix("repository")
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.PrefetchConcurrency <= 0 {
		config.PrefetchConcurrency = 4
	}
	return &Repository{
		api:     remote.Reporting(api, monitor),
		cache:   c,
		queue:   q,
		monitor: monitor,
		config:  config,
		logger:  config.Logger,
	}
}

// API returns the reporting API the repository calls. The sync processor
// should be built on it so that drain traffic also updates reachability.
func (r *Repository) API() remote.API {
	return r.api
}

// Operational reports whether the server is currently considered usable.
func (r *Repository) Operational() bool {
	return r.monitor.Operational()
}

// PendingCount returns the number of queued operations.
func (r *Repository) PendingCount(ctx context.Context) int {
	return r.queue.Count(ctx)
}

func (r *Repository) now() string {
	return schema.FormatTimestamp(r.config.Now())
}

func (r *Repository) fallback(what string, err error) {
	r.logger.Debug("Serving cached data", "op", what, "error", err)
}

func (r *Repository) enqueued(what, id string, err error) {
	if err != nil {
		r.logger.Error("Failed to queue operation", "op", what, "id", id, "error", err)
		return
	}
	r.logger.Debug("Queued operation", "op", what, "id", id)
}

// direct reports whether a write for id may go straight to the server.
// Temp IDs have no server record, and an entity with queued operations must
// wait for them so that the server sees writes in order.
func (r *Repository) direct(ctx context.Context, id string) bool {
	if !r.monitor.Operational() || schema.IsTempID(id) {
		return false
	}
	return !r.queue.HasPending(ctx, id)
}

func (r *Repository) itemDate(ctx context.Context, id string) string {
	if item, ok := r.cache.Item(ctx, id); ok {
		return item.Date
	}
	return ""
}

// FetchItems returns the items of a day. When the server answers, its
// items are written through to the cache and returned together with the
// unsynced local changes of that day. Otherwise the cached view is served.
func (r *Repository) FetchItems(ctx context.Context, date string) []schema.Item {
	if r.monitor.Operational() {
		items, err := r.api.FetchItems(ctx, date)
		if err == nil {
			return r.cache.ReplaceItems(ctx, date, items)
		}
		r.fallback("fetch items", err)
	}
	return r.cache.Items(ctx, date)
}

// CreateItem creates an item. If the server cannot take it, a local item
// with a temp ID is cached and a create is queued. Only invalid input is an
// error.
func (r *Repository) CreateItem(ctx context.Context, typ schema.ItemType, content, date string) (*schema.Item, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("invalid item type %q", typ)
	}
	if !schema.ValidDate(date) {
		return nil, fmt.Errorf("date must be yyyy-MM-dd (got %q)", date)
	}

	if r.monitor.Operational() {
		item, err := r.api.CreateItem(ctx, schema.CreateItemRequest{Type: typ, Content: content, Date: date})
		if err == nil {
			r.cache.UpsertItem(ctx, *item)
			return item, nil
		}
		r.logger.Warn("Create failed, saving locally", "date", date, "error", err)
	}

	now := r.now()
	item := schema.Item{
		ID:                  schema.NewTempID(),
		Type:                typ,
		Content:             content,
		Date:                date,
		CreatedAt:           now,
		UpdatedAt:           now,
		Edits:               schema.Edits{},
		IncludeInGeneration: true,
		IsLocal:             true,
	}
	r.cache.InsertLocalItem(ctx, item)
	r.enqueued("create", item.ID, r.queue.EnqueueCreate(ctx, item))
	return &item, nil
}

// UpdateItem replaces an item's content. The cache keeps the previous
// content in the edit history.
func (r *Repository) UpdateItem(ctx context.Context, id, content string) {
	date := r.itemDate(ctx, id)
	r.cache.ApplyContentEdit(ctx, id, content)

	if r.direct(ctx, id) {
		item, err := r.api.UpdateItem(ctx, id, content)
		if err == nil {
			r.cache.UpsertItem(ctx, *item)
			return
		}
		r.logger.Warn("Update failed, queueing", "id", id, "error", err)
	}
	r.enqueued("update", id, r.queue.EnqueueUpdate(ctx, id, date, content))
}

// UpdateItemImportance sets an item's importance rank (1-5); nil clears it.
func (r *Repository) UpdateItemImportance(ctx context.Context, id string, importance *int) error {
	if importance != nil && (*importance < 1 || *importance > 5) {
		return fmt.Errorf("importance must be between 1 and 5 (got %d)", *importance)
	}
	r.updateFields(ctx, id, schema.ImportanceFields(importance))
	return nil
}

// UpdateItemIncludeInGeneration sets whether an item feeds generation.
func (r *Repository) UpdateItemIncludeInGeneration(ctx context.Context, id string, include bool) {
	r.updateFields(ctx, id, schema.IncludeFields(include))
}

func (r *Repository) updateFields(ctx context.Context, id string, fields schema.ItemFields) {
	date := r.itemDate(ctx, id)
	r.cache.ApplyFields(ctx, id, fields)

	if r.direct(ctx, id) {
		item, err := r.api.UpdateItemFields(ctx, id, fields)
		if err == nil {
			r.cache.UpsertItem(ctx, *item)
			return
		}
		r.logger.Warn("Field update failed, queueing", "id", id, "error", err)
	}
	r.enqueued("update fields", id, r.queue.EnqueueUpdateFields(ctx, id, date, fields))
}

// DeleteItem removes an item. Deleting an item that never reached the
// server only discards its queued work.
func (r *Repository) DeleteItem(ctx context.Context, id string) {
	date := r.itemDate(ctx, id)
	r.cache.DeleteItem(ctx, id)

	if r.direct(ctx, id) {
		err := r.api.DeleteItem(ctx, id)
		if err == nil {
			return
		}
		r.logger.Warn("Delete failed, queueing", "id", id, "error", err)
	}
	r.enqueued("delete", id, r.queue.EnqueueDelete(ctx, id, date))
}

// ClearDay removes every item of a day.
func (r *Repository) ClearDay(ctx context.Context, date string) {
	r.cache.ClearDay(ctx, date)

	if r.monitor.Operational() {
		err := r.api.ClearDay(ctx, date)
		if err == nil {
			r.discardItemOps(ctx, date)
			return
		}
		r.logger.Warn("Clear failed, queueing", "date", date, "error", err)
	}
	r.enqueued("clear day", date, r.queue.EnqueueClearDay(ctx, date))
}

// discardItemOps drops queued item work for a day the server has already
// cleared, so a later drain cannot bring cleared items back.
func (r *Repository) discardItemOps(ctx context.Context, date string) {
	if r.queue.Count(ctx) == 0 {
		return
	}
	if err := r.queue.EnqueueClearDay(ctx, date); err != nil {
		r.enqueued("clear day", date, err)
		return
	}
	ops, err := r.queue.Pending(ctx)
	if err != nil {
		return
	}
	for _, op := range ops {
		if op.Kind == schema.OpClearDay && op.Date == date {
			if err := r.queue.Complete(ctx, op); err != nil {
				r.logger.Warn("Failed to drop applied clear", "date", date, "error", err)
			}
		}
	}
}

// UploadImage stores an image item. Offline, a placeholder item is cached
// and the bytes are kept on disk until the upload is replayed. An error
// means the image could not be kept at all.
func (r *Repository) UploadImage(ctx context.Context, data []byte, date, filename string) (*schema.Item, error) {
	if !schema.ValidDate(date) {
		return nil, fmt.Errorf("date must be yyyy-MM-dd (got %q)", date)
	}

	if r.monitor.Operational() {
		item, err := r.api.UploadImage(ctx, data, date, filename)
		if err == nil {
			r.cache.UpsertItem(ctx, *item)
			return item, nil
		}
		r.logger.Warn("Upload failed, saving locally", "date", date, "error", err)
	}

	now := r.now()
	item := schema.Item{
		ID:                  schema.NewTempID(),
		Type:                schema.ItemImage,
		Content:             schema.PendingImageContent,
		Date:                date,
		CreatedAt:           now,
		UpdatedAt:           now,
		Edits:               schema.Edits{},
		IncludeInGeneration: true,
		IsLocal:             true,
	}
	if err := r.queue.EnqueueUploadImage(ctx, item.ID, date, filename, data); err != nil {
		return nil, fmt.Errorf("failed to keep image for upload: %w", err)
	}
	r.cache.InsertLocalItem(ctx, item)
	return &item, nil
}

// FetchDays lists day summaries. A search is answered by the server only;
// offline it yields an empty list.
func (r *Repository) FetchDays(ctx context.Context, search string) []schema.DaySummary {
	if search != "" {
		if !r.monitor.Operational() {
			return []schema.DaySummary{}
		}
		list, err := r.api.FetchDays(ctx, search)
		if err != nil {
			r.logger.Warn("Day search failed", "error", err)
			return []schema.DaySummary{}
		}
		return list.Items
	}

	if r.monitor.Operational() {
		list, err := r.api.FetchDays(ctx, "")
		if err == nil {
			r.cache.ReplaceDaySummaries(ctx, list.Items)
			return list.Items
		}
		r.fallback("fetch days", err)
	}
	return r.cache.DaySummaries(ctx)
}

// FetchDay returns a day's items and generations. A fresh server copy is
// written through to the cache; the cached copy is served when the server
// cannot be reached.
func (r *Repository) FetchDay(ctx context.Context, date string) *schema.DayResponse {
	if r.monitor.Operational() {
		day, err := r.refreshDay(ctx, date)
		if err == nil {
			return day
		}
		r.fallback("fetch day", err)
	}
	return &schema.DayResponse{
		Date:        date,
		InputItems:  r.cache.Items(ctx, date),
		Generations: r.cache.Generations(ctx, date),
	}
}

// refreshDay fetches a day and stores it, returning the merged view.
func (r *Repository) refreshDay(ctx context.Context, date string) (*schema.DayResponse, error) {
	day, err := r.api.FetchDay(ctx, date)
	if err != nil {
		return nil, err
	}
	day.InputItems = r.cache.ReplaceItems(ctx, date, day.InputItems)
	r.cache.ReplaceGenerations(ctx, date, day.Generations)
	if day.Date == "" {
		day.Date = date
	}
	if day.Generations == nil {
		day.Generations = []schema.Generation{}
	}
	return day, nil
}

// Prefetch refreshes the cached content of several days concurrently and
// returns how many were refreshed. It stops early once the server stops
// answering.
func (r *Repository) Prefetch(ctx context.Context, dates []string) int {
	if !r.monitor.Operational() || len(dates) == 0 {
		return 0
	}

	results := make([]bool, len(dates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.PrefetchConcurrency)
	for i, date := range dates {
		g.Go(func() error {
			if !r.monitor.Operational() {
				return nil
			}
			if _, err := r.refreshDay(gctx, date); err != nil {
				if remote.IsNetworkError(err) {
					return err
				}
				r.logger.Warn("Prefetch failed", "date", date, "error", err)
				return nil
			}
			results[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Warn("Prefetch stopped", "error", err)
	}

	n := 0
	for _, ok := range results {
		if ok {
			n++
		}
	}
	return n
}

// DeleteDay removes a day's items, generations and summary.
func (r *Repository) DeleteDay(ctx context.Context, date string) {
	r.cache.DeleteDay(ctx, date)

	if r.monitor.Operational() {
		err := r.api.DeleteDay(ctx, date)
		if err == nil {
			r.discardItemOps(ctx, date)
			return
		}
		r.logger.Warn("Day delete failed, queueing clear", "date", date, "error", err)
	}
	r.enqueued("clear day", date, r.queue.EnqueueClearDay(ctx, date))
}

// Generate asks the server for posts from a day's items and caches the
// result.
func (r *Repository) Generate(ctx context.Context, req schema.GenerateRequest) (*schema.Generation, error) {
	if !r.monitor.Operational() {
		return nil, offline("You're offline. Connect to generate content.")
	}
	gen, err := r.api.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate: %w", err)
	}
	r.cache.UpsertGeneration(ctx, *gen)
	return gen, nil
}

// Regenerate re-runs a generation for the given channels.
func (r *Repository) Regenerate(ctx context.Context, generationID string, channels []string) (*schema.Generation, error) {
	if !r.monitor.Operational() {
		return nil, offline("You're offline. Connect to regenerate content.")
	}
	gen, err := r.api.Regenerate(ctx, generationID, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to regenerate: %w", err)
	}
	r.cache.UpsertGeneration(ctx, *gen)
	return gen, nil
}

// PublishPost publishes a generation result to the public blog.
func (r *Repository) PublishPost(ctx context.Context, resultID string) (*schema.PublishedPost, error) {
	if !r.monitor.Operational() {
		return nil, offline("You're offline. Connect to publish.")
	}
	post, err := r.api.PublishPost(ctx, resultID)
	if err != nil {
		return nil, fmt.Errorf("failed to publish: %w", err)
	}
	r.cache.UpsertPosts(ctx, []schema.PublishedPost{*post})
	return post, nil
}

// UnpublishPost removes a post from the public blog.
func (r *Repository) UnpublishPost(ctx context.Context, postID string) error {
	if !r.monitor.Operational() {
		return offline("You're offline. Connect to unpublish.")
	}
	if err := r.api.UnpublishPost(ctx, postID); err != nil {
		return fmt.Errorf("failed to unpublish: %w", err)
	}
	return nil
}

// PublishStatus maps generation result IDs to their post slug, nil when
// unpublished.
func (r *Repository) PublishStatus(ctx context.Context, resultIDs []string) (map[string]*string, error) {
	if !r.monitor.Operational() {
		return nil, offline("Publish status unavailable offline.")
	}
	status, err := r.api.PublishStatus(ctx, resultIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch publish status: %w", err)
	}
	return status, nil
}

// PublishInputItem publishes a single item as a note.
func (r *Repository) PublishInputItem(ctx context.Context, itemID string) (*schema.PublishedPost, error) {
	if !r.monitor.Operational() {
		return nil, offline("You're offline. Connect to publish.")
	}
	post, err := r.api.PublishInputItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to publish item: %w", err)
	}
	r.cache.UpsertPosts(ctx, []schema.PublishedPost{*post})
	return post, nil
}

// InputPublishStatus maps published item IDs to their post slug. Items that
// are not published are left out; offline the map is empty.
func (r *Repository) InputPublishStatus(ctx context.Context, itemIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	if !r.monitor.Operational() {
		return out, nil
	}
	status, err := r.api.InputPublishStatus(ctx, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch item publish status: %w", err)
	}
	for id, slug := range status {
		if slug != nil {
			out[id] = *slug
		}
	}
	return out, nil
}

// FetchChannelSettings returns the per-channel generation defaults.
func (r *Repository) FetchChannelSettings(ctx context.Context) []schema.ChannelSetting {
	if r.direct(ctx, schema.ChannelSettingsEntityID) {
		settings, err := r.api.FetchChannelSettings(ctx)
		if err == nil {
			r.cache.ReplaceChannelSettings(ctx, settings)
			return settings
		}
		r.fallback("fetch channel settings", err)
	}
	return r.cache.ChannelSettings(ctx)
}

// SaveChannelSettings stores the per-channel generation defaults.
func (r *Repository) SaveChannelSettings(ctx context.Context, settings []schema.ChannelSetting) {
	r.cache.ReplaceChannelSettings(ctx, settings)

	if r.direct(ctx, schema.ChannelSettingsEntityID) {
		err := r.api.SaveChannelSettings(ctx, settings)
		if err == nil {
			return
		}
		r.logger.Warn("Settings save failed, queueing", "error", err)
	}
	r.enqueued("save channel settings", schema.ChannelSettingsEntityID, r.queue.EnqueueSaveChannelSettings(ctx, settings))
}

// FetchGenerationSettings returns account-wide generation preferences.
func (r *Repository) FetchGenerationSettings(ctx context.Context) (*schema.GenerationSettings, error) {
	if !r.monitor.Operational() {
		return nil, offline("Settings unavailable offline.")
	}
	settings, err := r.api.FetchGenerationSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch generation settings: %w", err)
	}
	return settings, nil
}

// SaveGenerationSettings stores account-wide generation preferences.
func (r *Repository) SaveGenerationSettings(ctx context.Context, settings schema.GenerationSettings) (*schema.GenerationSettings, error) {
	if !r.monitor.Operational() {
		return nil, offline("You're offline. Connect to save settings.")
	}
	saved, err := r.api.SaveGenerationSettings(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to save generation settings: %w", err)
	}
	return saved, nil
}

// ExportDay renders a day for export.
func (r *Repository) ExportDay(ctx context.Context, date string) (*schema.Export, error) {
	if !r.monitor.Operational() {
		return nil, offline("Export unavailable offline.")
	}
	export, err := r.api.ExportDay(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to export day: %w", err)
	}
	return export, nil
}

// FetchPublicPosts returns a page of public posts. The first page replaces
// the cached posts of the channel; later pages are merged in. Offline, the
// cached posts are returned as a single page.
func (r *Repository) FetchPublicPosts(ctx context.Context, q schema.PostQuery) *schema.PostList {
	if r.monitor.Operational() {
		list, err := r.api.FetchPublicPosts(ctx, q)
		if err == nil {
			if q.FirstPage() {
				r.cache.ReplacePosts(ctx, q.Channel, list.Posts)
			} else {
				r.cache.UpsertPosts(ctx, list.Posts)
			}
			return list
		}
		r.fallback("fetch public posts", err)
	}
	if !q.FirstPage() {
		return &schema.PostList{Posts: []schema.PublishedPost{}}
	}
	return &schema.PostList{Posts: r.cache.Posts(ctx, q.Channel)}
}

// FetchPublicPost returns a public post by slug, from the cache when the
// server cannot provide it.
func (r *Repository) FetchPublicPost(ctx context.Context, slug string) (*schema.PublishedPost, error) {
	if !r.monitor.Operational() {
		if post, ok := r.cache.PostBySlug(ctx, slug); ok {
			return post, nil
		}
		return nil, offline("This post is not available offline.")
	}

	post, err := r.api.FetchPublicPost(ctx, slug)
	if err == nil {
		r.cache.UpsertPosts(ctx, []schema.PublishedPost{*post})
		return post, nil
	}
	if cached, ok := r.cache.PostBySlug(ctx, slug); ok {
		r.fallback("fetch public post", err)
		return cached, nil
	}
	return nil, fmt.Errorf("failed to fetch post: %w", err)
}
