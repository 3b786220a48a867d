package remote

import (
	"context"

	"github.com/daycast/syncengine/internal/offline/schema"
)

// Reporter receives the outcome of every API call.
type Reporter interface {
	ReportSuccess()
	ReportFailure(err error)
}

// Reporting wraps api so that each call's outcome is reported to r. This is
// the one place API errors are classified for reachability.
func Reporting(api API, r Reporter) API {
	return &reportingAPI{next: api, reporter: r}
}

type reportingAPI struct {
	next     API
	reporter Reporter
}

func (a *reportingAPI) report(err error) {
	if err == nil {
		a.reporter.ReportSuccess()
		return
	}
	a.reporter.ReportFailure(err)
}

func call[T any](a *reportingAPI, fn func() (T, error)) (T, error) {
	v, err := fn()
	a.report(err)
	return v, err
}

func (a *reportingAPI) FetchItems(ctx context.Context, date string) ([]schema.Item, error) {
	return call(a, func() ([]schema.Item, error) { return a.next.FetchItems(ctx, date) })
}

func (a *reportingAPI) CreateItem(ctx context.Context, req schema.CreateItemRequest) (*schema.Item, error) {
	return call(a, func() (*schema.Item, error) { return a.next.CreateItem(ctx, req) })
}

func (a *reportingAPI) UpdateItem(ctx context.Context, id, content string) (*schema.Item, error) {
	return call(a, func() (*schema.Item, error) { return a.next.UpdateItem(ctx, id, content) })
}

func (a *reportingAPI) UpdateItemFields(ctx context.Context, id string, fields schema.ItemFields) (*schema.Item, error) {
	return call(a, func() (*schema.Item, error) { return a.next.UpdateItemFields(ctx, id, fields) })
}

func (a *reportingAPI) DeleteItem(ctx context.Context, id string) error {
	err := a.next.DeleteItem(ctx, id)
	a.report(err)
	return err
}

func (a *reportingAPI) ClearDay(ctx context.Context, date string) error {
	err := a.next.ClearDay(ctx, date)
	a.report(err)
	return err
}

func (a *reportingAPI) UploadImage(ctx context.Context, data []byte, date, filename string) (*schema.Item, error) {
	return call(a, func() (*schema.Item, error) { return a.next.UploadImage(ctx, data, date, filename) })
}

func (a *reportingAPI) Generate(ctx context.Context, req schema.GenerateRequest) (*schema.Generation, error) {
	return call(a, func() (*schema.Generation, error) { return a.next.Generate(ctx, req) })
}

func (a *reportingAPI) Regenerate(ctx context.Context, generationID string, channels []string) (*schema.Generation, error) {
	return call(a, func() (*schema.Generation, error) { return a.next.Regenerate(ctx, generationID, channels) })
}

func (a *reportingAPI) FetchDays(ctx context.Context, search string) (*schema.DayList, error) {
	return call(a, func() (*schema.DayList, error) { return a.next.FetchDays(ctx, search) })
}

func (a *reportingAPI) FetchDay(ctx context.Context, date string) (*schema.DayResponse, error) {
	return call(a, func() (*schema.DayResponse, error) { return a.next.FetchDay(ctx, date) })
}

func (a *reportingAPI) DeleteDay(ctx context.Context, date string) error {
	err := a.next.DeleteDay(ctx, date)
	a.report(err)
	return err
}

func (a *reportingAPI) PublishPost(ctx context.Context, resultID string) (*schema.PublishedPost, error) {
	return call(a, func() (*schema.PublishedPost, error) { return a.next.PublishPost(ctx, resultID) })
}

func (a *reportingAPI) UnpublishPost(ctx context.Context, postID string) error {
	err := a.next.UnpublishPost(ctx, postID)
	a.report(err)
	return err
}

func (a *reportingAPI) PublishStatus(ctx context.Context, resultIDs []string) (map[string]*string, error) {
	return call(a, func() (map[string]*string, error) { return a.next.PublishStatus(ctx, resultIDs) })
}

func (a *reportingAPI) PublishInputItem(ctx context.Context, itemID string) (*schema.PublishedPost, error) {
	return call(a, func() (*schema.PublishedPost, error) { return a.next.PublishInputItem(ctx, itemID) })
}

func (a *reportingAPI) InputPublishStatus(ctx context.Context, itemIDs []string) (map[string]*string, error) {
	return call(a, func() (map[string]*string, error) { return a.next.InputPublishStatus(ctx, itemIDs) })
}

func (a *reportingAPI) FetchPublicPosts(ctx context.Context, q schema.PostQuery) (*schema.PostList, error) {
	return call(a, func() (*schema.PostList, error) { return a.next.FetchPublicPosts(ctx, q) })
}

func (a *reportingAPI) FetchPublicPost(ctx context.Context, slug string) (*schema.PublishedPost, error) {
	return call(a, func() (*schema.PublishedPost, error) { return a.next.FetchPublicPost(ctx, slug) })
}

func (a *reportingAPI) FetchChannelSettings(ctx context.Context) ([]schema.ChannelSetting, error) {
	return call(a, func() ([]schema.ChannelSetting, error) { return a.next.FetchChannelSettings(ctx) })
}

func (a *reportingAPI) SaveChannelSettings(ctx context.Context, settings []schema.ChannelSetting) error {
	err := a.next.SaveChannelSettings(ctx, settings)
	a.report(err)
	return err
}

func (a *reportingAPI) FetchGenerationSettings(ctx context.Context) (*schema.GenerationSettings, error) {
	return call(a, func() (*schema.GenerationSettings, error) { return a.next.FetchGenerationSettings(ctx) })
}

func (a *reportingAPI) SaveGenerationSettings(ctx context.Context, settings schema.GenerationSettings) (*schema.GenerationSettings, error) {
	return call(a, func() (*schema.GenerationSettings, error) { return a.next.SaveGenerationSettings(ctx, settings) })
}

func (a *reportingAPI) ExportDay(ctx context.Context, date string) (*schema.Export, error) {
	return call(a, func() (*schema.Export, error) { return a.next.ExportDay(ctx, date) })
}
