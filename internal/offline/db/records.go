package db

import (
	"context"
	"fmt"

	"github.com/daycast/syncengine/internal/offline/schema"
)

// GenerationsByDate returns a day's generations in creation order.
func (db *DB) GenerationsByDate(ctx context.Context, date string) ([]schema.Generation, error) {
	gens := []schema.Generation{}
	query := `SELECT id, date, results, created_at FROM generations WHERE date = ? ORDER BY created_at ASC, id ASC`
	if err := db.conn.SelectContext(ctx, &gens, query, date); err != nil {
		return nil, fmt.Errorf("failed to query generations for %s: %w", date, err)
	}
	return gens, nil
}

// UpsertGeneration replaces any generation with the same ID.
func (t *Tx) UpsertGeneration(ctx context.Context, gen *schema.Generation) error {
	if err := gen.Validate(); err != nil {
		return fmt.Errorf("invalid generation: %w", err)
	}
	if gen.Results == nil {
		gen.Results = schema.Results{}
	}
	query := `INSERT OR REPLACE INTO generations (id, date, results, created_at) VALUES (:id, :date, :results, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, gen); err != nil {
		return fmt.Errorf("failed to upsert generation %s: %w", gen.ID, err)
	}
	return nil
}

// DeleteGenerationsByDate removes a day's generations.
func (t *Tx) DeleteGenerationsByDate(ctx context.Context, date string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM generations WHERE date = ?`, date); err != nil {
		return fmt.Errorf("failed to delete generations for %s: %w", date, err)
	}
	return nil
}

// DaySummaries returns all cached summaries, newest date first.
func (db *DB) DaySummaries(ctx context.Context) ([]schema.DaySummary, error) {
	sums := []schema.DaySummary{}
	query := `SELECT date, input_count, generation_count FROM day_summaries ORDER BY date DESC`
	if err := db.conn.SelectContext(ctx, &sums, query); err != nil {
		return nil, fmt.Errorf("failed to query day summaries: %w", err)
	}
	return sums, nil
}

// DeleteAllDaySummaries empties the summaries table.
func (t *Tx) DeleteAllDaySummaries(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM day_summaries`); err != nil {
		return fmt.Errorf("failed to delete day summaries: %w", err)
	}
	return nil
}

// DeleteDaySummary removes one day's summary.
func (t *Tx) DeleteDaySummary(ctx context.Context, date string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM day_summaries WHERE date = ?`, date); err != nil {
		return fmt.Errorf("failed to delete day summary %s: %w", date, err)
	}
	return nil
}

// UpsertDaySummary replaces the summary for the same date.
func (t *Tx) UpsertDaySummary(ctx context.Context, sum *schema.DaySummary) error {
	if !schema.ValidDate(sum.Date) {
		return fmt.Errorf("invalid day summary date %q", sum.Date)
	}
	query := `INSERT OR REPLACE INTO day_summaries (date, input_count, generation_count) VALUES (:date, :input_count, :generation_count)`
	if _, err := t.tx.NamedExecContext(ctx, query, sum); err != nil {
		return fmt.Errorf("failed to upsert day summary %s: %w", sum.Date, err)
	}
	return nil
}

// ChannelSettings returns the cached channel settings in saved order.
func (db *DB) ChannelSettings(ctx context.Context) ([]schema.ChannelSetting, error) {
	settings := []schema.ChannelSetting{}
	query := `
	SELECT channel_id, is_active, default_style, default_language, default_length
	FROM channel_settings ORDER BY position ASC
	`
	if err := db.conn.SelectContext(ctx, &settings, query); err != nil {
		return nil, fmt.Errorf("failed to query channel settings: %w", err)
	}
	return settings, nil
}

// ReplaceChannelSettings swaps the whole settings set.
func (t *Tx) ReplaceChannelSettings(ctx context.Context, settings []schema.ChannelSetting) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM channel_settings`); err != nil {
		return fmt.Errorf("failed to clear channel settings: %w", err)
	}
	query := `
	INSERT INTO channel_settings (channel_id, position, is_active, default_style, default_language, default_length)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	for i, s := range settings {
		if s.ChannelID == "" {
			return fmt.Errorf("channel setting %d has no channel_id", i)
		}
		if _, err := t.tx.ExecContext(ctx, query, s.ChannelID, i, s.IsActive, s.DefaultStyle, s.DefaultLanguage, s.DefaultLength); err != nil {
			return fmt.Errorf("failed to insert channel setting %s: %w", s.ChannelID, err)
		}
	}
	return nil
}

const postColumns = `id, slug, channel_id, style, language, text, date, published_at, input_items_preview, source`

// PostsByChannel returns cached public posts, newest first. An empty
// channel returns posts of every channel.
func (db *DB) PostsByChannel(ctx context.Context, channel string) ([]schema.PublishedPost, error) {
	posts := []schema.PublishedPost{}
	query := `SELECT ` + postColumns + ` FROM published_posts`
	args := []any{}
	if channel != "" {
		query += ` WHERE channel_id = ?`
		args = append(args, channel)
	}
	query += ` ORDER BY published_at DESC, id ASC`
	if err := db.conn.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	return posts, nil
}

// PostBySlug retrieves a cached post.
// Returns sql.ErrNoRows if the post is not cached.
func (db *DB) PostBySlug(ctx context.Context, slug string) (*schema.PublishedPost, error) {
	var post schema.PublishedPost
	query := `SELECT ` + postColumns + ` FROM published_posts WHERE slug = ?`
	if err := db.conn.GetContext(ctx, &post, query, slug); err != nil {
		return nil, err
	}
	return &post, nil
}

// UpsertPost replaces any post sharing the ID or the slug.
func (t *Tx) UpsertPost(ctx context.Context, post *schema.PublishedPost) error {
	if post.ID == "" || post.Slug == "" {
		return fmt.Errorf("post requires id and slug")
	}
	if post.InputItemsPreview == nil {
		post.InputItemsPreview = schema.StringList{}
	}
	query := `
	INSERT OR REPLACE INTO published_posts (` + postColumns + `)
	VALUES (:id, :slug, :channel_id, :style, :language, :text, :date, :published_at, :input_items_preview, :source)
	`
	if _, err := t.tx.NamedExecContext(ctx, query, post); err != nil {
		return fmt.Errorf("failed to upsert post %s: %w", post.Slug, err)
	}
	return nil
}

// DeletePostsByChannel removes cached posts of a channel, or every post
// when channel is empty.
func (t *Tx) DeletePostsByChannel(ctx context.Context, channel string) error {
	query := `DELETE FROM published_posts`
	args := []any{}
	if channel != "" {
		query += ` WHERE channel_id = ?`
		args = append(args, channel)
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete posts: %w", err)
	}
	return nil
}
