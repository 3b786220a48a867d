// Package remotetest provides an in-memory remote.API for tests and load
// harnesses.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/daycast/syncengine/internal/offline/remote"
	"github.com/daycast/syncengine/internal/offline/schema"
)

// Fake is an in-memory server. Zero value is not usable; call New.
type Fake struct {
	mu sync.Mutex

	items       map[string]*schema.Item
	generations map[string][]schema.Generation
	settings    []schema.ChannelSetting
	genSettings schema.GenerationSettings
	posts       []schema.PublishedPost
	uploads     map[string][]byte
	published   map[string]string

	errAll  error
	errFor  map[string]error
	calls   []string
	nextID  int
	clock   func() time.Time
	latency time.Duration
}

// New returns an empty fake server.
func New() *Fake {
	return &Fake{
		items:       make(map[string]*schema.Item),
		generations: make(map[string][]schema.Generation),
		uploads:     make(map[string][]byte),
		published:   make(map[string]string),
		errFor:      make(map[string]error),
		clock:       time.Now,
	}
}

// SetClock overrides the time source used for server timestamps.
func (f *Fake) SetClock(clock func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = clock
}

// SetLatency adds a fixed delay to every call.
func (f *Fake) SetLatency(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = d
}

// FailAll makes every call return err; nil restores normal behavior.
func (f *Fake) FailAll(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errAll = err
}

// Fail makes calls to method (e.g. "CreateItem") return err; nil clears it.
func (f *Fake) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errFor, method)
		return
	}
	f.errFor[method] = err
}

// Calls returns the methods invoked so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many times method was invoked.
func (f *Fake) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

// Item returns the server's copy of an item.
func (f *Fake) Item(id string) (*schema.Item, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, false
	}
	cp := *item
	return &cp, true
}

// Items returns the server's items for a date in creation order.
func (f *Fake) Items(date string) []schema.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.itemsLocked(date)
}

// Seed stores an item on the server as is.
func (f *Fake) Seed(item schema.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[item.ID] = &item
}

// SeedPosts stores public posts on the server.
func (f *Fake) SeedPosts(posts ...schema.PublishedPost) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, posts...)
}

// Upload returns the bytes uploaded for an item.
func (f *Fake) Upload(id string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.uploads[id]
	return data, ok
}

// Settings returns the stored channel settings.
func (f *Fake) Settings() []schema.ChannelSetting {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schema.ChannelSetting(nil), f.settings...)
}

// begin records the call and returns the configured failure, if any.
// Callers hold f.mu.
func (f *Fake) begin(method string) error {
	if f.latency > 0 {
		f.mu.Unlock()
		time.Sleep(f.latency)
		f.mu.Lock()
	}
	f.calls = append(f.calls, method)
	if err, ok := f.errFor[method]; ok {
		return err
	}
	return f.errAll
}

func (f *Fake) now() string {
	return schema.FormatTimestamp(f.clock())
}

func (f *Fake) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s_%d", prefix, f.nextID)
}

func (f *Fake) itemsLocked(date string) []schema.Item {
	var out []schema.Item
	for _, item := range f.items {
		if item.Date == date {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}

func notFound(what, id string) error {
	return fmt.Errorf("%w: %s %s not found", remote.ErrInvalidRequest, what, id)
}

// FetchItems implements remote.API.
func (f *Fake) FetchItems(ctx context.Context, date string) ([]schema.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchItems"); err != nil {
		return nil, err
	}
	return f.itemsLocked(date), nil
}

// CreateItem implements remote.API.
func (f *Fake) CreateItem(ctx context.Context, req schema.CreateItemRequest) (*schema.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateItem"); err != nil {
		return nil, err
	}
	now := f.now()
	item := &schema.Item{
		ID:                  f.newID("srv"),
		Type:                req.Type,
		Content:             req.Content,
		Date:                req.Date,
		CreatedAt:           now,
		UpdatedAt:           now,
		IncludeInGeneration: true,
	}
	f.items[item.ID] = item
	cp := *item
	return &cp, nil
}

// UpdateItem implements remote.API.
func (f *Fake) UpdateItem(ctx context.Context, id, content string) (*schema.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateItem"); err != nil {
		return nil, err
	}
	item, ok := f.items[id]
	if !ok {
		return nil, notFound("item", id)
	}
	item.ApplyEdit(content, f.now())
	cp := *item
	return &cp, nil
}

// UpdateItemFields implements remote.API.
func (f *Fake) UpdateItemFields(ctx context.Context, id string, fields schema.ItemFields) (*schema.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateItemFields"); err != nil {
		return nil, err
	}
	item, ok := f.items[id]
	if !ok {
		return nil, notFound("item", id)
	}
	item.ApplyFields(fields, f.now())
	cp := *item
	return &cp, nil
}

// DeleteItem implements remote.API.
func (f *Fake) DeleteItem(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteItem"); err != nil {
		return err
	}
	if _, ok := f.items[id]; !ok {
		return notFound("item", id)
	}
	delete(f.items, id)
	return nil
}

// ClearDay implements remote.API.
func (f *Fake) ClearDay(ctx context.Context, date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ClearDay"); err != nil {
		return err
	}
	for id, item := range f.items {
		if item.Date == date {
			delete(f.items, id)
		}
	}
	return nil
}

// UploadImage implements remote.API.
func (f *Fake) UploadImage(ctx context.Context, data []byte, date, filename string) (*schema.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UploadImage"); err != nil {
		return nil, err
	}
	now := f.now()
	item := &schema.Item{
		ID:                  f.newID("img"),
		Type:                schema.ItemImage,
		Content:             "/uploads/" + filename,
		Date:                date,
		CreatedAt:           now,
		UpdatedAt:           now,
		IncludeInGeneration: true,
	}
	f.items[item.ID] = item
	f.uploads[item.ID] = append([]byte(nil), data...)
	cp := *item
	return &cp, nil
}

// Generate implements remote.API.
func (f *Fake) Generate(ctx context.Context, req schema.GenerateRequest) (*schema.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Generate"); err != nil {
		return nil, err
	}
	gen := schema.Generation{
		ID:        f.newID("gen"),
		Date:      req.Date,
		CreatedAt: f.now(),
		Results: schema.Results{{
			ID:        f.newID("res"),
			ChannelID: "blog",
			Style:     "casual",
			Language:  "en",
			Text:      fmt.Sprintf("%d notes", len(f.itemsLocked(req.Date))),
			Model:     "fake",
		}},
	}
	f.generations[req.Date] = append(f.generations[req.Date], gen)
	return &gen, nil
}

// Regenerate implements remote.API.
func (f *Fake) Regenerate(ctx context.Context, generationID string, channels []string) (*schema.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Regenerate"); err != nil {
		return nil, err
	}
	for date, gens := range f.generations {
		for _, g := range gens {
			if g.ID != generationID {
				continue
			}
			gen := schema.Generation{ID: f.newID("gen"), Date: date, CreatedAt: f.now(), Results: g.Results}
			f.generations[date] = append(f.generations[date], gen)
			return &gen, nil
		}
	}
	return nil, notFound("generation", generationID)
}

// FetchDays implements remote.API.
func (f *Fake) FetchDays(ctx context.Context, search string) (*schema.DayList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchDays"); err != nil {
		return nil, err
	}
	counts := map[string]*schema.DaySummary{}
	for _, item := range f.items {
		if search != "" && !strings.Contains(item.Content, search) {
			continue
		}
		s, ok := counts[item.Date]
		if !ok {
			s = &schema.DaySummary{Date: item.Date}
			counts[item.Date] = s
		}
		s.InputCount++
	}
	for date, gens := range f.generations {
		if s, ok := counts[date]; ok {
			s.GenerationCount = len(gens)
		}
	}
	list := &schema.DayList{Items: []schema.DaySummary{}}
	for _, s := range counts {
		list.Items = append(list.Items, *s)
	}
	sort.Slice(list.Items, func(i, j int) bool { return list.Items[i].Date > list.Items[j].Date })
	return list, nil
}

// FetchDay implements remote.API.
func (f *Fake) FetchDay(ctx context.Context, date string) (*schema.DayResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchDay"); err != nil {
		return nil, err
	}
	return &schema.DayResponse{
		Date:        date,
		InputItems:  f.itemsLocked(date),
		Generations: append([]schema.Generation{}, f.generations[date]...),
	}, nil
}

// DeleteDay implements remote.API.
func (f *Fake) DeleteDay(ctx context.Context, date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteDay"); err != nil {
		return err
	}
	for id, item := range f.items {
		if item.Date == date {
			delete(f.items, id)
		}
	}
	delete(f.generations, date)
	return nil
}

// PublishPost implements remote.API.
func (f *Fake) PublishPost(ctx context.Context, resultID string) (*schema.PublishedPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("PublishPost"); err != nil {
		return nil, err
	}
	post := schema.PublishedPost{
		ID:          f.newID("post"),
		Slug:        "post-" + resultID,
		Text:        "published " + resultID,
		Date:        schema.FormatDate(f.clock()),
		PublishedAt: f.now(),
	}
	f.posts = append(f.posts, post)
	f.published[resultID] = post.Slug
	return &post, nil
}

// UnpublishPost implements remote.API.
func (f *Fake) UnpublishPost(ctx context.Context, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UnpublishPost"); err != nil {
		return err
	}
	for i, p := range f.posts {
		if p.ID == postID {
			f.posts = append(f.posts[:i], f.posts[i+1:]...)
			return nil
		}
	}
	return notFound("post", postID)
}

func (f *Fake) statuses(ids []string) map[string]*string {
	out := make(map[string]*string, len(ids))
	for _, id := range ids {
		if slug, ok := f.published[id]; ok {
			s := slug
			out[id] = &s
		} else {
			out[id] = nil
		}
	}
	return out
}

// PublishStatus implements remote.API.
func (f *Fake) PublishStatus(ctx context.Context, resultIDs []string) (map[string]*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("PublishStatus"); err != nil {
		return nil, err
	}
	return f.statuses(resultIDs), nil
}

// PublishInputItem implements remote.API.
func (f *Fake) PublishInputItem(ctx context.Context, itemID string) (*schema.PublishedPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("PublishInputItem"); err != nil {
		return nil, err
	}
	item, ok := f.items[itemID]
	if !ok {
		return nil, notFound("item", itemID)
	}
	post := schema.PublishedPost{
		ID:          f.newID("post"),
		Slug:        "note-" + itemID,
		Text:        item.Content,
		Date:        item.Date,
		PublishedAt: f.now(),
	}
	f.posts = append(f.posts, post)
	f.published[itemID] = post.Slug
	return &post, nil
}

// InputPublishStatus implements remote.API.
func (f *Fake) InputPublishStatus(ctx context.Context, itemIDs []string) (map[string]*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("InputPublishStatus"); err != nil {
		return nil, err
	}
	return f.statuses(itemIDs), nil
}

// FetchPublicPosts implements remote.API. The cursor is the index of the
// next post.
func (f *Fake) FetchPublicPosts(ctx context.Context, q schema.PostQuery) (*schema.PostList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchPublicPosts"); err != nil {
		return nil, err
	}
	var matching []schema.PublishedPost
	for _, p := range f.posts {
		if q.Channel == "" || p.ChannelID == q.Channel {
			matching = append(matching, p)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool { return matching[i].PublishedAt > matching[j].PublishedAt })

	start := 0
	if q.Cursor != "" {
		fmt.Sscanf(q.Cursor, "%d", &start)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	list := &schema.PostList{Posts: []schema.PublishedPost{}}
	for i := start; i < len(matching) && i < start+limit; i++ {
		list.Posts = append(list.Posts, matching[i])
	}
	if next := start + limit; next < len(matching) {
		cursor := fmt.Sprintf("%d", next)
		list.Cursor = &cursor
	}
	return list, nil
}

// FetchPublicPost implements remote.API.
func (f *Fake) FetchPublicPost(ctx context.Context, slug string) (*schema.PublishedPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchPublicPost"); err != nil {
		return nil, err
	}
	for _, p := range f.posts {
		if p.Slug == slug {
			cp := p
			return &cp, nil
		}
	}
	return nil, notFound("post", slug)
}

// FetchChannelSettings implements remote.API.
func (f *Fake) FetchChannelSettings(ctx context.Context) ([]schema.ChannelSetting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchChannelSettings"); err != nil {
		return nil, err
	}
	return append([]schema.ChannelSetting{}, f.settings...), nil
}

// SaveChannelSettings implements remote.API.
func (f *Fake) SaveChannelSettings(ctx context.Context, settings []schema.ChannelSetting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("SaveChannelSettings"); err != nil {
		return err
	}
	f.settings = append([]schema.ChannelSetting(nil), settings...)
	return nil
}

// FetchGenerationSettings implements remote.API.
func (f *Fake) FetchGenerationSettings(ctx context.Context) (*schema.GenerationSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchGenerationSettings"); err != nil {
		return nil, err
	}
	s := f.genSettings
	return &s, nil
}

// SaveGenerationSettings implements remote.API.
func (f *Fake) SaveGenerationSettings(ctx context.Context, settings schema.GenerationSettings) (*schema.GenerationSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("SaveGenerationSettings"); err != nil {
		return nil, err
	}
	f.genSettings = settings
	s := settings
	return &s, nil
}

// ExportDay implements remote.API.
func (f *Fake) ExportDay(ctx context.Context, date string) (*schema.Export, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ExportDay"); err != nil {
		return nil, err
	}
	content := ""
	for _, item := range f.itemsLocked(date) {
		content += "- " + item.Content + "\n"
	}
	return &schema.Export{Date: date, Format: "markdown", Content: content}, nil
}

// Health implements remote.HealthChecker.
func (f *Fake) Health(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.begin("Health")
}

var (
	_ remote.API           = (*Fake)(nil)
	_ remote.HealthChecker = (*Fake)(nil)
)
