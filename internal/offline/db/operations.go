package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/daycast/syncengine/internal/offline/schema"
)

const opColumns = `seq, kind, entity_type, entity_id, payload, attachment_path, date, retry_count, last_error, created_at`

// OpFilter selects pending operations. Zero-valued fields match everything.
type OpFilter struct {
	EntityType schema.EntityType
	EntityID   string
	Date       string
	Kinds      []schema.OpKind
}

func (f OpFilter) where() (string, []any) {
	var clauses []string
	var args []any
	if f.EntityType != "" {
		clauses = append(clauses, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.Date != "" {
		clauses = append(clauses, "date = ?")
		args = append(args, f.Date)
	}
	if len(f.Kinds) > 0 {
		clauses = append(clauses, "kind IN (?)")
		args = append(args, f.Kinds)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// PendingOperations returns every queued operation in insertion order.
func (db *DB) PendingOperations(ctx context.Context) ([]schema.PendingOperation, error) {
	return db.FindOperations(ctx, OpFilter{})
}

// FindOperations returns the queued operations matching f in insertion
// order. The sequence number is the order; created_at is informational.
func (db *DB) FindOperations(ctx context.Context, f OpFilter) ([]schema.PendingOperation, error) {
	where, args := f.where()
	query, args, err := inClause(`SELECT `+opColumns+` FROM pending_operations`+where+` ORDER BY seq ASC`, args...)
	if err != nil {
		return nil, err
	}
	ops := []schema.PendingOperation{}
	if err := db.conn.SelectContext(ctx, &ops, db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query pending operations: %w", err)
	}
	return ops, nil
}

// CountPending returns the queue length.
func (db *DB) CountPending(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.GetContext(ctx, &count, `SELECT COUNT(*) FROM pending_operations`); err != nil {
		return 0, fmt.Errorf("failed to count pending operations: %w", err)
	}
	return count, nil
}

// FindOperations returns the matching operations inside the transaction.
func (t *Tx) FindOperations(ctx context.Context, f OpFilter) ([]schema.PendingOperation, error) {
	where, args := f.where()
	query, args, err := inClause(`SELECT `+opColumns+` FROM pending_operations`+where+` ORDER BY seq ASC`, args...)
	if err != nil {
		return nil, err
	}
	ops := []schema.PendingOperation{}
	if err := t.tx.SelectContext(ctx, &ops, t.tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query pending operations: %w", err)
	}
	return ops, nil
}

// InsertOperation appends op to the queue and sets op.Seq.
func (t *Tx) InsertOperation(ctx context.Context, op *schema.PendingOperation) error {
	if err := op.Validate(); err != nil {
		return fmt.Errorf("invalid operation: %w", err)
	}
	if len(op.Payload) == 0 {
		op.Payload = []byte("{}")
	}

	query := `
	INSERT INTO pending_operations (kind, entity_type, entity_id, payload, attachment_path, date, retry_count, last_error, created_at)
	VALUES (:kind, :entity_type, :entity_id, :payload, :attachment_path, :date, :retry_count, :last_error, :created_at)
	`
	res, err := t.tx.NamedExecContext(ctx, query, op)
	if err != nil {
		return fmt.Errorf("failed to insert %s operation: %w", op.Kind, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read operation seq: %w", err)
	}
	op.Seq = seq
	return nil
}

// DeleteOperation removes one operation by sequence number.
func (t *Tx) DeleteOperation(ctx context.Context, seq int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM pending_operations WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("failed to delete operation %d: %w", seq, err)
	}
	return nil
}

// DeleteOperations removes every operation matching f and returns them.
func (t *Tx) DeleteOperations(ctx context.Context, f OpFilter) ([]schema.PendingOperation, error) {
	ops, err := t.FindOperations(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, op := range ops {
		if err := t.DeleteOperation(ctx, op.Seq); err != nil {
			return nil, err
		}
	}
	return ops, nil
}

// RecordFailure increments an operation's retry count, stores the error
// text and returns the new count.
func (t *Tx) RecordFailure(ctx context.Context, seq int64, message string) (int, error) {
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE pending_operations SET retry_count = retry_count + 1, last_error = ? WHERE seq = ?`,
		message, seq,
	); err != nil {
		return 0, fmt.Errorf("failed to record failure for operation %d: %w", seq, err)
	}
	var count int
	if err := t.tx.GetContext(ctx, &count, `SELECT retry_count FROM pending_operations WHERE seq = ?`, seq); err != nil {
		return 0, fmt.Errorf("failed to read retry count for operation %d: %w", seq, err)
	}
	return count, nil
}

// RemapEntityID points every operation targeting oldID at newID.
func (t *Tx) RemapEntityID(ctx context.Context, oldID, newID string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `UPDATE pending_operations SET entity_id = ? WHERE entity_id = ?`, newID, oldID)
	if err != nil {
		return 0, fmt.Errorf("failed to remap operations %s -> %s: %w", oldID, newID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteAllOperations empties the queue and returns what was removed.
func (t *Tx) DeleteAllOperations(ctx context.Context) ([]schema.PendingOperation, error) {
	return t.DeleteOperations(ctx, OpFilter{})
}
