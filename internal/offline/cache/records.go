package cache

import (
	"context"

	"github.com/daycast/syncengine/internal/offline/db"
	"github.com/daycast/syncengine/internal/offline/schema"
)

// Generations returns the cached generations of a day, oldest first.
func (c *Cache) Generations(ctx context.Context, date string) []schema.Generation {
	gens, err := c.store.GenerationsByDate(ctx, date)
	if err != nil {
		c.readFailed("generations", err)
		return []schema.Generation{}
	}
	return gens
}

// ReplaceGenerations swaps the cached generations of a day. Generations
// only exist on the server, so the fresh set is the view.
func (c *Cache) ReplaceGenerations(ctx context.Context, date string, gens []schema.Generation) {
	c.update(ctx, "replace generations", func(tx *db.Tx) error {
		if err := tx.DeleteGenerationsByDate(ctx, date); err != nil {
			return err
		}
		for i := range gens {
			if err := tx.UpsertGeneration(ctx, &gens[i]); err != nil {
				return err
			}
		}
		return nil
	})
	c.evict(ctx)
}

// UpsertGeneration stores one generation.
func (c *Cache) UpsertGeneration(ctx context.Context, gen schema.Generation) {
	c.update(ctx, "upsert generation", func(tx *db.Tx) error {
		return tx.UpsertGeneration(ctx, &gen)
	})
}

// DaySummaries returns the cached day list, newest first.
func (c *Cache) DaySummaries(ctx context.Context) []schema.DaySummary {
	sums, err := c.store.DaySummaries(ctx)
	if err != nil {
		c.readFailed("day summaries", err)
		return []schema.DaySummary{}
	}
	return sums
}

// ReplaceDaySummaries swaps the whole cached day list.
func (c *Cache) ReplaceDaySummaries(ctx context.Context, sums []schema.DaySummary) {
	c.update(ctx, "replace day summaries", func(tx *db.Tx) error {
		if err := tx.DeleteAllDaySummaries(ctx); err != nil {
			return err
		}
		for i := range sums {
			if err := tx.UpsertDaySummary(ctx, &sums[i]); err != nil {
				return err
			}
		}
		return nil
	})
	c.evict(ctx)
}

// DeleteDay removes everything cached for a day.
func (c *Cache) DeleteDay(ctx context.Context, date string) {
	c.update(ctx, "delete day", func(tx *db.Tx) error {
		if _, err := tx.DeleteItemsByDate(ctx, date, false); err != nil {
			return err
		}
		if err := tx.DeleteGenerationsByDate(ctx, date); err != nil {
			return err
		}
		return tx.DeleteDaySummary(ctx, date)
	})
}

// ChannelSettings returns the cached channel settings in display order.
func (c *Cache) ChannelSettings(ctx context.Context) []schema.ChannelSetting {
	settings, err := c.store.ChannelSettings(ctx)
	if err != nil {
		c.readFailed("channel settings", err)
		return []schema.ChannelSetting{}
	}
	return settings
}

// ReplaceChannelSettings swaps the cached channel settings.
func (c *Cache) ReplaceChannelSettings(ctx context.Context, settings []schema.ChannelSetting) {
	c.update(ctx, "replace channel settings", func(tx *db.Tx) error {
		return tx.ReplaceChannelSettings(ctx, settings)
	})
}

// Posts returns cached public posts, newest first. An empty channel
// returns every channel.
func (c *Cache) Posts(ctx context.Context, channel string) []schema.PublishedPost {
	posts, err := c.store.PostsByChannel(ctx, channel)
	if err != nil {
		c.readFailed("posts", err)
		return []schema.PublishedPost{}
	}
	return posts
}

// PostBySlug returns a cached public post.
func (c *Cache) PostBySlug(ctx context.Context, slug string) (*schema.PublishedPost, bool) {
	post, err := c.store.PostBySlug(ctx, slug)
	if err != nil {
		if !db.IsNotFound(err) {
			c.readFailed("post", err)
		}
		return nil, false
	}
	return post, true
}

// ReplacePosts swaps the cached posts of a channel (all channels when
// channel is empty) for the newest page.
func (c *Cache) ReplacePosts(ctx context.Context, channel string, posts []schema.PublishedPost) {
	c.update(ctx, "replace posts", func(tx *db.Tx) error {
		if err := tx.DeletePostsByChannel(ctx, channel); err != nil {
			return err
		}
		for i := range posts {
			if err := tx.UpsertPost(ctx, &posts[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertPosts stores a later page of posts.
func (c *Cache) UpsertPosts(ctx context.Context, posts []schema.PublishedPost) {
	c.update(ctx, "upsert posts", func(tx *db.Tx) error {
		for i := range posts {
			if err := tx.UpsertPost(ctx, &posts[i]); err != nil {
				return err
			}
		}
		return nil
	})
}
