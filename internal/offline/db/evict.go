package db

import (
	"context"
	"fmt"
)

// EvictStats reports how many rows an eviction removed per table.
type EvictStats struct {
	Items       int64
	Generations int64
	Summaries   int64
}

// Total returns the number of rows removed.
func (s EvictStats) Total() int64 {
	return s.Items + s.Generations + s.Summaries
}

// EvictBefore deletes items, generations and day summaries dated strictly
// before cutoff (yyyy-MM-dd). Local items and items referenced by a queued
// operation are kept regardless of date.
func (t *Tx) EvictBefore(ctx context.Context, cutoff string) (EvictStats, error) {
	var stats EvictStats

	res, err := t.tx.ExecContext(ctx, `
	DELETE FROM items
	WHERE date < ?
	  AND is_local = 0
	  AND id NOT IN (SELECT entity_id FROM pending_operations)
	`, cutoff)
	if err != nil {
		return stats, fmt.Errorf("failed to evict items: %w", err)
	}
	stats.Items, _ = res.RowsAffected()

	res, err = t.tx.ExecContext(ctx, `DELETE FROM generations WHERE date < ?`, cutoff)
	if err != nil {
		return stats, fmt.Errorf("failed to evict generations: %w", err)
	}
	stats.Generations, _ = res.RowsAffected()

	res, err = t.tx.ExecContext(ctx, `DELETE FROM day_summaries WHERE date < ?`, cutoff)
	if err != nil {
		return stats, fmt.Errorf("failed to evict day summaries: %w", err)
	}
	stats.Summaries, _ = res.RowsAffected()

	return stats, nil
}
