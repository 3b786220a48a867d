package cache

import (
	"context"

	"github.com/daycast/syncengine/internal/offline/db"
	"github.com/daycast/syncengine/internal/offline/schema"
)

// Items returns the cached items of a day in creation order.
func (c *Cache) Items(ctx context.Context, date string) []schema.Item {
	items, err := c.store.ItemsByDate(ctx, date)
	if err != nil {
		c.readFailed("items", err)
		return []schema.Item{}
	}
	return items
}

// Item returns a cached item.
func (c *Cache) Item(ctx context.Context, id string) (*schema.Item, bool) {
	item, err := c.store.ItemByID(ctx, id)
	if err != nil {
		if !db.IsNotFound(err) {
			c.readFailed("item", err)
		}
		return nil, false
	}
	return item, true
}

// ReplaceItems swaps the cached items of a day for a fresh server set and
// returns the resulting view of the day. Local items and items with queued
// operations keep their cached version, items with a queued delete stay
// gone, and nothing is written while a clear of the day is queued. If the
// store cannot be used the server set is returned as is.
func (c *Cache) ReplaceItems(ctx context.Context, date string, items []schema.Item) []schema.Item {
	var view []schema.Item
	ok := c.update(ctx, "replace items", func(tx *db.Tx) error {
		pending, err := tx.FindOperations(ctx, db.OpFilter{EntityType: schema.EntityItem, Date: date})
		if err != nil {
			return err
		}
		held := make(map[string]bool, len(pending))
		deleted := make(map[string]bool)
		cleared := false
		for _, op := range pending {
			switch op.Kind {
			case schema.OpClearDay:
				cleared = true
			case schema.OpDelete:
				deleted[op.EntityID] = true
			}
			held[op.EntityID] = true
		}

		if !cleared {
			if _, err := tx.DeleteItemsByDate(ctx, date, true); err != nil {
				return err
			}
			for i := range items {
				item := items[i]
				if deleted[item.ID] {
					continue
				}
				if held[item.ID] {
					if _, err := tx.ItemByID(ctx, item.ID); err == nil {
						continue
					}
				}
				item.IsLocal = false
				if err := tx.UpsertItem(ctx, &item); err != nil {
					return err
				}
			}
		}

		view, err = tx.ItemsByDate(ctx, date)
		return err
	})
	if !ok {
		return items
	}
	c.evict(ctx)
	return view
}

// UpsertItem stores an item acknowledged by the server.
func (c *Cache) UpsertItem(ctx context.Context, item schema.Item) {
	item.IsLocal = false
	c.update(ctx, "upsert item", func(tx *db.Tx) error {
		return tx.UpsertItem(ctx, &item)
	})
}

// InsertLocalItem stores an item the server has not seen yet.
func (c *Cache) InsertLocalItem(ctx context.Context, item schema.Item) {
	item.IsLocal = true
	c.update(ctx, "insert local item", func(tx *db.Tx) error {
		return tx.UpsertItem(ctx, &item)
	})
}

// DeleteItem removes an item.
func (c *Cache) DeleteItem(ctx context.Context, id string) {
	c.update(ctx, "delete item", func(tx *db.Tx) error {
		return tx.DeleteItem(ctx, id)
	})
}

// ClearDay removes every item of a day.
func (c *Cache) ClearDay(ctx context.Context, date string) {
	c.update(ctx, "clear day", func(tx *db.Tx) error {
		_, err := tx.DeleteItemsByDate(ctx, date, false)
		return err
	})
}

// ApplyContentEdit replaces an item's content, recording the old content in
// its edit history. It returns the edited item, or false if the item is not
// cached.
func (c *Cache) ApplyContentEdit(ctx context.Context, id, content string) (*schema.Item, bool) {
	now := schema.FormatTimestamp(c.config.Now())
	return c.modifyItem(ctx, "edit item", id, func(item *schema.Item) {
		item.ApplyEdit(content, now)
	})
}

// ApplyFields applies a partial flag update. It returns the updated item,
// or false if the item is not cached.
func (c *Cache) ApplyFields(ctx context.Context, id string, fields schema.ItemFields) (*schema.Item, bool) {
	now := schema.FormatTimestamp(c.config.Now())
	return c.modifyItem(ctx, "update item fields", id, func(item *schema.Item) {
		item.ApplyFields(fields, now)
	})
}

func (c *Cache) modifyItem(ctx context.Context, what, id string, fn func(*schema.Item)) (*schema.Item, bool) {
	var out *schema.Item
	ok := c.update(ctx, what, func(tx *db.Tx) error {
		item, err := tx.ItemByID(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				return nil
			}
			return err
		}
		fn(item)
		if err := tx.UpsertItem(ctx, item); err != nil {
			return err
		}
		out = item
		return nil
	})
	return out, ok && out != nil
}

// RemapItemID rekeys a local item under its server ID. The local content
// is kept and the item is marked acknowledged.
func (c *Cache) RemapItemID(ctx context.Context, tempID, serverID string) bool {
	var remapped bool
	c.update(ctx, "remap item", func(tx *db.Tx) error {
		var err error
		remapped, err = tx.RemapItemID(ctx, tempID, serverID)
		return err
	})
	return remapped
}

// AcceptServerItem stores the server's version of an item unless the
// cached version is newer. It reports whether the server version was kept.
func (c *Cache) AcceptServerItem(ctx context.Context, item schema.Item) bool {
	item.IsLocal = false
	var accepted bool
	c.update(ctx, "accept server item", func(tx *db.Tx) error {
		cached, err := tx.ItemByID(ctx, item.ID)
		switch {
		case err == nil:
			if schema.CompareTimestamps(item.UpdatedAt, cached.UpdatedAt) < 0 {
				c.logger.Debug("kept newer local item", "id", item.ID,
					"server_updated_at", item.UpdatedAt, "local_updated_at", cached.UpdatedAt)
				return nil
			}
		case !db.IsNotFound(err):
			return err
		}
		if err := tx.UpsertItem(ctx, &item); err != nil {
			return err
		}
		accepted = true
		return nil
	})
	return accepted
}
