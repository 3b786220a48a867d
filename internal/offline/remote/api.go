// Package remote is the client side of the daycast HTTP API.
//
// API is the capability the offline core consumes; Client implements it over
// HTTP and Reporting wraps any API so that every call outcome feeds the
// reachability monitor.
package remote

import (
	"context"

	"github.com/daycast/syncengine/internal/offline/schema"
)

// API mirrors the server resources used by the offline core. Every method
// returns a decoded record or one of the errors in this package.
type API interface {
	FetchItems(ctx context.Context, date string) ([]schema.Item, error)
	CreateItem(ctx context.Context, req schema.CreateItemRequest) (*schema.Item, error)
	UpdateItem(ctx context.Context, id, content string) (*schema.Item, error)
	UpdateItemFields(ctx context.Context, id string, fields schema.ItemFields) (*schema.Item, error)
	DeleteItem(ctx context.Context, id string) error
	ClearDay(ctx context.Context, date string) error
	UploadImage(ctx context.Context, data []byte, date, filename string) (*schema.Item, error)

	Generate(ctx context.Context, req schema.GenerateRequest) (*schema.Generation, error)
	Regenerate(ctx context.Context, generationID string, channels []string) (*schema.Generation, error)

	FetchDays(ctx context.Context, search string) (*schema.DayList, error)
	FetchDay(ctx context.Context, date string) (*schema.DayResponse, error)
	DeleteDay(ctx context.Context, date string) error

	PublishPost(ctx context.Context, resultID string) (*schema.PublishedPost, error)
	UnpublishPost(ctx context.Context, postID string) error
	PublishStatus(ctx context.Context, resultIDs []string) (map[string]*string, error)
	PublishInputItem(ctx context.Context, itemID string) (*schema.PublishedPost, error)
	InputPublishStatus(ctx context.Context, itemIDs []string) (map[string]*string, error)

	FetchPublicPosts(ctx context.Context, q schema.PostQuery) (*schema.PostList, error)
	FetchPublicPost(ctx context.Context, slug string) (*schema.PublishedPost, error)

	FetchChannelSettings(ctx context.Context) ([]schema.ChannelSetting, error)
	SaveChannelSettings(ctx context.Context, settings []schema.ChannelSetting) error
	FetchGenerationSettings(ctx context.Context) (*schema.GenerationSettings, error)
	SaveGenerationSettings(ctx context.Context, settings schema.GenerationSettings) (*schema.GenerationSettings, error)

	ExportDay(ctx context.Context, date string) (*schema.Export, error)
}

// HealthChecker issues the liveness request used by reachability probes.
type HealthChecker interface {
	Health(ctx context.Context) error
}
