package db

import (
	"context"
	"fmt"

	"github.com/daycast/syncengine/internal/offline/schema"
)

const itemColumns = `id, type, content, extracted_text, extract_error, date, cleared,
	created_at, updated_at, edits, importance, include_in_generation, is_local`

// ItemsByDate returns the items owned by date in creation order.
func (db *DB) ItemsByDate(ctx context.Context, date string) ([]schema.Item, error) {
	items := []schema.Item{}
	query := `SELECT ` + itemColumns + ` FROM items WHERE date = ? ORDER BY created_at ASC, id ASC`
	if err := db.conn.SelectContext(ctx, &items, query, date); err != nil {
		return nil, fmt.Errorf("failed to query items for %s: %w", date, err)
	}
	return items, nil
}

// ItemByID retrieves a single item.
// Returns sql.ErrNoRows if the item is not cached.
func (db *DB) ItemByID(ctx context.Context, id string) (*schema.Item, error) {
	var item schema.Item
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = ?`
	if err := db.conn.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// LocalItems returns every item that has not been acknowledged by the server.
func (db *DB) LocalItems(ctx context.Context) ([]schema.Item, error) {
	items := []schema.Item{}
	query := `SELECT ` + itemColumns + ` FROM items WHERE is_local = 1 ORDER BY created_at ASC, id ASC`
	if err := db.conn.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("failed to query local items: %w", err)
	}
	return items, nil
}

// CountItems returns the number of cached items.
func (db *DB) CountItems(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.GetContext(ctx, &count, `SELECT COUNT(*) FROM items`); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

// ItemByID retrieves a single item inside the transaction.
func (t *Tx) ItemByID(ctx context.Context, id string) (*schema.Item, error) {
	var item schema.Item
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = ?`
	if err := t.tx.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// ItemsByDate returns the items owned by date inside the transaction.
func (t *Tx) ItemsByDate(ctx context.Context, date string) ([]schema.Item, error) {
	items := []schema.Item{}
	query := `SELECT ` + itemColumns + ` FROM items WHERE date = ? ORDER BY created_at ASC, id ASC`
	if err := t.tx.SelectContext(ctx, &items, query, date); err != nil {
		return nil, fmt.Errorf("failed to query items for %s: %w", date, err)
	}
	return items, nil
}

// UpsertItem replaces any item with the same ID.
func (t *Tx) UpsertItem(ctx context.Context, item *schema.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}
	if item.Edits == nil {
		item.Edits = schema.Edits{}
	}

	query := `
	INSERT OR REPLACE INTO items (` + itemColumns + `)
	VALUES (:id, :type, :content, :extracted_text, :extract_error, :date, :cleared,
		:created_at, :updated_at, :edits, :importance, :include_in_generation, :is_local)
	`
	if _, err := t.tx.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("failed to upsert item %s: %w", item.ID, err)
	}
	return nil
}

// DeleteItem removes an item. Deleting a missing item is not an error.
func (t *Tx) DeleteItem(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	return nil
}

// DeleteItemsByDate removes the items of a day. When keepUnsynced is set,
// items the server has not acknowledged yet and items a queued operation
// still targets are left in place.
func (t *Tx) DeleteItemsByDate(ctx context.Context, date string, keepUnsynced bool) (int64, error) {
	query := `DELETE FROM items WHERE date = ?`
	if keepUnsynced {
		query += ` AND is_local = 0 AND id NOT IN (SELECT entity_id FROM pending_operations)`
	}
	res, err := t.tx.ExecContext(ctx, query, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete items for %s: %w", date, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RemapItemID rekeys a local item under its server ID and marks it
// acknowledged. A row already stored under newID is dropped first so only
// one record remains for the logical item.
func (t *Tx) RemapItemID(ctx context.Context, oldID, newID string) (bool, error) {
	var exists int
	if err := t.tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM items WHERE id = ?`, oldID); err != nil {
		return false, fmt.Errorf("failed to look up item %s: %w", oldID, err)
	}
	if exists == 0 {
		return false, nil
	}

	if _, err := t.tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, newID); err != nil {
		return false, fmt.Errorf("failed to clear item %s: %w", newID, err)
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE items SET id = ?, is_local = 0 WHERE id = ?`, newID, oldID); err != nil {
		return false, fmt.Errorf("failed to remap item %s -> %s: %w", oldID, newID, err)
	}
	return true, nil
}
