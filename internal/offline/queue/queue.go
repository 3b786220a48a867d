// Package queue is the durable log of mutations waiting to reach the server.
//
// Operations are applied oldest first; creation order is the only ordering
// guarantee. The enqueue rules keep the log minimal at write time:
//
//   - a delete prunes queued create/update/updateFields/uploadImage and
//     earlier delete operations for the same item, and is dropped entirely
//     when the item only ever existed locally;
//   - a clearDay prunes every other item operation of that date;
//   - an updateFields merges into the queued updateFields for the item;
//   - a saveChannelSettings replaces any queued settings save.
//
// Image uploads keep their bytes in a file under the pending_images
// directory; the file is removed with its operation.
package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gosimple/slug"

	"github.com/daycast/syncengine/internal/offline/db"
	"github.com/daycast/syncengine/internal/offline/schema"
)

// DefaultMaxRetries is the number of failed attempts after which an
// operation is abandoned.
const DefaultMaxRetries = 5

// Config holds queue configuration.
type Config struct {
	// AttachmentDir holds pending image files (default: <data dir>/pending_images)
	AttachmentDir string

	// MaxRetries is the abandonment ceiling (default: 5)
	MaxRetries int

	// Logger for pruning and abandonment
	Logger *log.Logger

	// Now overrides the clock (optional, for tests)
	Now func() time.Time
}

// DefaultConfig returns defaults for a data directory.
func DefaultConfig(dataDir string) *Config {
	return &Config{
		AttachmentDir: filepath.Join(dataDir, "pending_images"),
		MaxRetries:    DefaultMaxRetries,
		Logger:        log.Default().WithPrefix("queue"),
		Now:           time.Now,
	}
}

// Queue applies the enqueue rules on top of the store. All writes run
// through the store's serialized Update.
type Queue struct {
	store  *db.DB
	config *Config
	logger *log.Logger
}

// New creates a queue keeping attachments under dataDir.
func New(store *db.DB, dataDir string) *Queue {
	return NewWithConfig(store, DefaultConfig(dataDir))
}

// NewWithConfig creates a queue with custom configuration.
func NewWithConfig(store *db.DB, config *Config) *Queue {
	defaults := DefaultConfig(".")
	if config == nil {
		config = defaults
	}
	if config.AttachmentDir == "" {
		config.AttachmentDir = defaults.AttachmentDir
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}
	return &Queue{store: store, config: config, logger: config.Logger}
}

// MaxRetries returns the abandonment ceiling.
func (q *Queue) MaxRetries() int {
	return q.config.MaxRetries
}

// AttachmentDir returns the directory holding pending image files.
func (q *Queue) AttachmentDir() string {
	return q.config.AttachmentDir
}

func (q *Queue) newOp(kind schema.OpKind, entity schema.EntityType, id, date string, payload any) (*schema.PendingOperation, error) {
	data, err := schema.EncodePayload(payload)
	if err != nil {
		return nil, err
	}
	return &schema.PendingOperation{
		Kind:       kind,
		EntityType: entity,
		EntityID:   id,
		Payload:    data,
		Date:       date,
		CreatedAt:  schema.FormatTimestamp(q.config.Now()),
	}, nil
}

func (q *Queue) insert(ctx context.Context, op *schema.PendingOperation) error {
	err := q.store.Update(ctx, func(tx *db.Tx) error {
		return tx.InsertOperation(ctx, op)
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue %s for %s: %w", op.Kind, op.EntityID, err)
	}
	return nil
}

// EnqueueCreate queues the server create of a local item.
func (q *Queue) EnqueueCreate(ctx context.Context, item schema.Item) error {
	op, err := q.newOp(schema.OpCreate, schema.EntityItem, item.ID, item.Date, schema.CreateItemRequest{
		Type:    item.Type,
		Content: item.Content,
		Date:    item.Date,
	})
	if err != nil {
		return err
	}
	return q.insert(ctx, op)
}

// EnqueueUpdate queues a content update.
func (q *Queue) EnqueueUpdate(ctx context.Context, id, date, content string) error {
	op, err := q.newOp(schema.OpUpdate, schema.EntityItem, id, date, schema.UpdatePayload{Content: content})
	if err != nil {
		return err
	}
	return q.insert(ctx, op)
}

// EnqueueDelete queues an item delete. Queued mutations of the item are
// pruned first; for an item that never reached the server nothing is
// queued at all.
func (q *Queue) EnqueueDelete(ctx context.Context, id, date string) error {
	op, err := q.newOp(schema.OpDelete, schema.EntityItem, id, date, nil)
	if err != nil {
		return err
	}

	var pruned []schema.PendingOperation
	err = q.store.Update(ctx, func(tx *db.Tx) error {
		var err error
		pruned, err = tx.DeleteOperations(ctx, db.OpFilter{
			EntityType: schema.EntityItem,
			EntityID:   id,
			Kinds:      []schema.OpKind{schema.OpCreate, schema.OpUpdate, schema.OpUpdateFields, schema.OpUploadImage, schema.OpDelete},
		})
		if err != nil {
			return err
		}
		if schema.IsTempID(id) {
			return nil
		}
		return tx.InsertOperation(ctx, op)
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue delete for %s: %w", id, err)
	}

	q.removeAttachments(pruned)
	if len(pruned) > 0 {
		q.logger.Debug("pruned operations superseded by delete", "id", id, "count", len(pruned))
	}
	return nil
}

// EnqueueClearDay queues a clear of a day, pruning every other item
// operation of that date.
func (q *Queue) EnqueueClearDay(ctx context.Context, date string) error {
	op, err := q.newOp(schema.OpClearDay, schema.EntityItem, "", date, nil)
	if err != nil {
		return err
	}

	var pruned []schema.PendingOperation
	err = q.store.Update(ctx, func(tx *db.Tx) error {
		var err error
		pruned, err = tx.DeleteOperations(ctx, db.OpFilter{EntityType: schema.EntityItem, Date: date})
		if err != nil {
			return err
		}
		return tx.InsertOperation(ctx, op)
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue clearDay for %s: %w", date, err)
	}

	q.removeAttachments(pruned)
	if len(pruned) > 0 {
		q.logger.Debug("pruned operations superseded by clearDay", "date", date, "count", len(pruned))
	}
	return nil
}

// EnqueueUpdateFields queues a partial flag update, merged with any
// updateFields already queued for the item.
func (q *Queue) EnqueueUpdateFields(ctx context.Context, id, date string, fields schema.ItemFields) error {
	err := q.store.Update(ctx, func(tx *db.Tx) error {
		prior, err := tx.DeleteOperations(ctx, db.OpFilter{
			EntityType: schema.EntityItem,
			EntityID:   id,
			Kinds:      []schema.OpKind{schema.OpUpdateFields},
		})
		if err != nil {
			return err
		}

		merged := schema.ItemFields{}
		for _, p := range prior {
			var f schema.ItemFields
			if err := p.DecodePayload(&f); err != nil {
				q.logger.Warn("dropping unreadable queued fields", "seq", p.Seq, "err", err)
				continue
			}
			merged = merged.Merge(f)
		}
		merged = merged.Merge(fields)

		op, err := q.newOp(schema.OpUpdateFields, schema.EntityItem, id, date, merged)
		if err != nil {
			return err
		}
		return tx.InsertOperation(ctx, op)
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue updateFields for %s: %w", id, err)
	}
	return nil
}

// EnqueueUploadImage stores the image bytes and queues their upload for
// the local item tempID.
func (q *Queue) EnqueueUploadImage(ctx context.Context, tempID, date, filename string, data []byte) error {
	if err := os.MkdirAll(q.config.AttachmentDir, 0700); err != nil {
		return fmt.Errorf("failed to create attachment directory: %w", err)
	}
	path := filepath.Join(q.config.AttachmentDir, AttachmentName(tempID, filename))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write attachment: %w", err)
	}

	op, err := q.newOp(schema.OpUploadImage, schema.EntityItem, tempID, date, schema.UploadPayload{Filename: filename})
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	op.AttachmentPath = &path
	if err := q.insert(ctx, op); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

// EnqueueSaveChannelSettings queues a full settings save, replacing any
// save already queued.
func (q *Queue) EnqueueSaveChannelSettings(ctx context.Context, settings []schema.ChannelSetting) error {
	op, err := q.newOp(schema.OpSaveChannelSettings, schema.EntityChannelSettings, schema.ChannelSettingsEntityID, "",
		schema.ChannelSettingsPayload{Channels: settings})
	if err != nil {
		return err
	}

	err = q.store.Update(ctx, func(tx *db.Tx) error {
		if _, err := tx.DeleteOperations(ctx, db.OpFilter{Kinds: []schema.OpKind{schema.OpSaveChannelSettings}}); err != nil {
			return err
		}
		return tx.InsertOperation(ctx, op)
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue channel settings: %w", err)
	}
	return nil
}

// Pending returns every queued operation, oldest first.
func (q *Queue) Pending(ctx context.Context) ([]schema.PendingOperation, error) {
	return q.store.PendingOperations(ctx)
}

// Count returns the queue length, or 0 if the store cannot be read.
func (q *Queue) Count(ctx context.Context) int {
	n, err := q.store.CountPending(ctx)
	if err != nil {
		q.logger.Warn("failed to count pending operations", "err", err)
		return 0
	}
	return n
}

// Complete removes an applied operation and its attachment.
func (q *Queue) Complete(ctx context.Context, op schema.PendingOperation) error {
	err := q.store.Update(ctx, func(tx *db.Tx) error {
		return tx.DeleteOperation(ctx, op.Seq)
	})
	if err != nil {
		return err
	}
	q.removeAttachments([]schema.PendingOperation{op})
	return nil
}

// RecordFailure stores a failed attempt. Once the retry count reaches the
// ceiling the operation is removed and abandoned is true.
func (q *Queue) RecordFailure(ctx context.Context, op schema.PendingOperation, cause error) (abandoned bool, retries int, err error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}

	err = q.store.Update(ctx, func(tx *db.Tx) error {
		var err error
		retries, err = tx.RecordFailure(ctx, op.Seq, msg)
		if err != nil {
			return err
		}
		if retries >= q.config.MaxRetries {
			abandoned = true
			return tx.DeleteOperation(ctx, op.Seq)
		}
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	if abandoned {
		q.removeAttachments([]schema.PendingOperation{op})
		q.logger.Warn("abandoned operation", "seq", op.Seq, "kind", op.Kind, "id", op.EntityID, "retries", retries, "err", msg)
	}
	return abandoned, retries, nil
}

// Abandon removes an operation that can never be applied, with its
// attachment.
func (q *Queue) Abandon(ctx context.Context, op schema.PendingOperation, cause error) error {
	err := q.store.Update(ctx, func(tx *db.Tx) error {
		return tx.DeleteOperation(ctx, op.Seq)
	})
	if err != nil {
		return fmt.Errorf("failed to drop operation %d: %w", op.Seq, err)
	}
	q.removeAttachments([]schema.PendingOperation{op})
	q.logger.Warn("abandoned operation", "seq", op.Seq, "kind", op.Kind, "id", op.EntityID, "err", cause)
	return nil
}

// RemapEntityID points queued operations for a local ID at the server ID.
func (q *Queue) RemapEntityID(ctx context.Context, tempID, serverID string) (int64, error) {
	var n int64
	err := q.store.Update(ctx, func(tx *db.Tx) error {
		var err error
		n, err = tx.RemapEntityID(ctx, tempID, serverID)
		return err
	})
	return n, err
}

// HasPending reports whether any operation targets id.
func (q *Queue) HasPending(ctx context.Context, id string) bool {
	ops, err := q.store.FindOperations(ctx, db.OpFilter{EntityID: id})
	if err != nil {
		q.logger.Warn("failed to look up pending operations", "id", id, "err", err)
		return true
	}
	return len(ops) > 0
}

// ReadAttachment loads the image bytes of an uploadImage operation.
func (q *Queue) ReadAttachment(op schema.PendingOperation) ([]byte, error) {
	if op.AttachmentPath == nil || *op.AttachmentPath == "" {
		return nil, fmt.Errorf("operation %d has no attachment", op.Seq)
	}
	data, err := os.ReadFile(*op.AttachmentPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	return data, nil
}

// Import appends an operation taken from another queue, writing its
// attachment bytes (if any) into this queue's attachment directory.
func (q *Queue) Import(ctx context.Context, op schema.PendingOperation, attachment []byte) error {
	op.Seq = 0
	op.AttachmentPath = nil
	if attachment != nil {
		if err := os.MkdirAll(q.config.AttachmentDir, 0700); err != nil {
			return fmt.Errorf("failed to create attachment directory: %w", err)
		}
		var up schema.UploadPayload
		_ = op.DecodePayload(&up)
		path := filepath.Join(q.config.AttachmentDir, AttachmentName(op.EntityID, up.Filename))
		if err := os.WriteFile(path, attachment, 0600); err != nil {
			return fmt.Errorf("failed to write attachment: %w", err)
		}
		op.AttachmentPath = &path
	}
	if err := q.insert(ctx, &op); err != nil {
		if op.AttachmentPath != nil {
			_ = os.Remove(*op.AttachmentPath)
		}
		return err
	}
	return nil
}

// Clear empties the queue and returns how many operations were dropped.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	var removed []schema.PendingOperation
	err := q.store.Update(ctx, func(tx *db.Tx) error {
		var err error
		removed, err = tx.DeleteAllOperations(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clear queue: %w", err)
	}
	q.removeAttachments(removed)
	return len(removed), nil
}

func (q *Queue) removeAttachments(ops []schema.PendingOperation) {
	for _, op := range ops {
		if op.AttachmentPath == nil || *op.AttachmentPath == "" {
			continue
		}
		if err := os.Remove(*op.AttachmentPath); err != nil && !os.IsNotExist(err) {
			q.logger.Warn("failed to remove attachment", "path", *op.AttachmentPath, "err", err)
		}
	}
}

// AttachmentName returns the file name used for a pending image:
// <id>_<slugged base name><extension>.
func AttachmentName(id, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := slug.Make(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	if base == "" {
		base = "image"
	}
	if ext == "" {
		ext = ".jpg"
	}
	return id + "_" + base + ext
}
