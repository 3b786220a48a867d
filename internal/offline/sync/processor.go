package sync

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/daycast/syncengine/internal/offline/cache"
	"github.com/daycast/syncengine/internal/offline/queue"
	"github.com/daycast/syncengine/internal/offline/remote"
	"github.com/daycast/syncengine/internal/offline/schema"
)

// Config holds processor configuration.
type Config struct {
	// Listener receives drain events (optional)
	Listener Listener

	// Logger for drain activity
	Logger *log.Logger
}

// processor implements the Processor interface.
type processor struct {
	api      remote.API
	queue    *queue.Queue
	cache    *cache.Cache
	listener Listener
	logger   *log.Logger

	busy        atomic.Bool
	authExpired atomic.Bool
}

// New creates a Processor.
//
// api should be the reachability-reporting API (see remote.Reporting) so
// that drain traffic feeds the monitor like any other call.
//
// If logger is nil, a prefixed default logger is used.
//
// Example:
//
//	api := remote.Reporting(client, monitor)
//	processor := sync.New(api, queue.New(store, dataDir), cache.New(store), nil)
func New(api remote.API, q *queue.Queue, c *cache.Cache, logger *log.Logger) Processor {
	return NewWithConfig(api, q, c, &Config{Logger: logger})
}

// NewWithConfig creates a Processor with custom configuration.
func NewWithConfig(api remote.API, q *queue.Queue, c *cache.Cache, config *Config) Processor {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("sync")
	}
	return &processor{
		api:      api,
		queue:    q,
		cache:    c,
		listener: config.Listener,
		logger:   logger,
	}
}

// Draining implements Processor.Draining.
func (p *processor) Draining() bool {
	return p.busy.Load()
}

// AuthExpired implements Processor.AuthExpired.
func (p *processor) AuthExpired() bool {
	return p.authExpired.Load()
}

// ResetAuthExpired implements Processor.ResetAuthExpired.
func (p *processor) ResetAuthExpired() {
	p.authExpired.Store(false)
}

// ProcessQueue implements Processor.ProcessQueue.
func (p *processor) ProcessQueue(ctx context.Context) (*Result, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer p.busy.Store(false)

	ops, err := p.queue.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	result := &Result{}
	if len(ops) > 0 {
		p.logger.Info("draining queue", "operations", len(ops))
	}

	// IDs remapped during this drain; ops read above still carry the
	// temporary ones.
	remapped := make(map[string]string)

	// Temp IDs whose create or upload is still queued. Operations on any
	// other temp ID can never be applied.
	created := make(map[string]bool)
	for _, op := range ops {
		if op.Kind.Creates() {
			created[op.EntityID] = true
		}
	}

	for _, op := range ops {
		if ctx.Err() != nil {
			break
		}
		if id, ok := remapped[op.EntityID]; ok {
			op.EntityID = id
		}

		if op.Kind.TargetsExisting() && schema.IsTempID(op.EntityID) {
			if created[op.EntityID] {
				result.Skipped++
				continue
			}
			p.abandon(ctx, op, ErrNeverCreated, result)
			continue
		}

		item, err := p.apply(ctx, op)
		if err == nil {
			if err := p.queue.Complete(ctx, op); err != nil {
				p.logger.Warn("failed to remove applied operation", "seq", op.Seq, "err", err)
			}
			result.Applied++
			if item != nil {
				p.remap(ctx, op.EntityID, *item)
				remapped[op.EntityID] = item.ID
				result.Remapped++
			}
			continue
		}

		if ctx.Err() != nil {
			break
		}

		if remote.IsUnauthorized(err) {
			p.logger.Warn("session expired, stopping drain", "seq", op.Seq, "kind", op.Kind)
			p.authExpired.Store(true)
			result.AuthHalted = true
			if p.listener != nil {
				p.listener.AuthExpired()
			}
			break
		}

		abandoned, retries, recErr := p.queue.RecordFailure(ctx, op, err)
		switch {
		case recErr != nil:
			p.logger.Warn("failed to record operation failure", "seq", op.Seq, "err", recErr)
			result.Failed++
		case abandoned:
			result.Abandoned++
			if p.listener != nil {
				p.listener.OperationAbandoned(op, err)
			}
			if op.Kind.Creates() {
				delete(created, op.EntityID)
			}
		default:
			p.logger.Debug("operation failed", "seq", op.Seq, "kind", op.Kind, "id", op.EntityID, "retries", retries, "err", err)
			result.Failed++
		}

		if remote.IsNetworkError(err) {
			result.NetworkHalted = true
			break
		}
	}

	result.Remaining = p.queue.Count(ctx)
	if len(ops) > 0 {
		p.logger.Info("drain complete", "result", result.String())
	}
	if p.listener != nil {
		p.listener.DrainComplete(*result)
	}
	return result, nil
}

// apply sends one operation to the server and reconciles the cache. For
// creates and uploads it returns the server's record of the new item.
func (p *processor) apply(ctx context.Context, op schema.PendingOperation) (*schema.Item, error) {
	switch op.Kind {
	case schema.OpCreate:
		var req schema.CreateItemRequest
		if err := op.DecodePayload(&req); err != nil {
			return nil, err
		}
		return p.api.CreateItem(ctx, req)

	case schema.OpUploadImage:
		var up schema.UploadPayload
		if err := op.DecodePayload(&up); err != nil {
			return nil, err
		}
		data, err := p.queue.ReadAttachment(op)
		if err != nil {
			return nil, err
		}
		return p.api.UploadImage(ctx, data, op.Date, up.Filename)

	case schema.OpUpdate:
		var up schema.UpdatePayload
		if err := op.DecodePayload(&up); err != nil {
			return nil, err
		}
		item, err := p.api.UpdateItem(ctx, op.EntityID, up.Content)
		if err != nil {
			return nil, err
		}
		p.cache.AcceptServerItem(ctx, *item)
		return nil, nil

	case schema.OpUpdateFields:
		var fields schema.ItemFields
		if err := op.DecodePayload(&fields); err != nil {
			return nil, err
		}
		item, err := p.api.UpdateItemFields(ctx, op.EntityID, fields)
		if err != nil {
			return nil, err
		}
		p.cache.AcceptServerItem(ctx, *item)
		return nil, nil

	case schema.OpDelete:
		return nil, p.api.DeleteItem(ctx, op.EntityID)

	case schema.OpClearDay:
		return nil, p.api.ClearDay(ctx, op.Date)

	case schema.OpSaveChannelSettings:
		var payload schema.ChannelSettingsPayload
		if err := op.DecodePayload(&payload); err != nil {
			return nil, err
		}
		return nil, p.api.SaveChannelSettings(ctx, payload.Channels)
	}
	return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
}

// remap replaces tempID with the server's ID in the queue and the cache.
// It runs after the create itself left the queue. While later operations
// for the item are still queued the cached record keeps its local content;
// otherwise the server's record replaces it.
func (p *processor) remap(ctx context.Context, tempID string, item schema.Item) {
	n, err := p.queue.RemapEntityID(ctx, tempID, item.ID)
	if err != nil {
		p.logger.Warn("failed to remap queued operations", "temp_id", tempID, "id", item.ID, "err", err)
	}
	p.cache.RemapItemID(ctx, tempID, item.ID)
	p.logger.Debug("remapped id", "temp_id", tempID, "id", item.ID, "operations", n)

	if n == 0 {
		p.cache.UpsertItem(ctx, item)
	}
}

// abandon drops an operation that can never be applied.
func (p *processor) abandon(ctx context.Context, op schema.PendingOperation, cause error, result *Result) {
	if err := p.queue.Abandon(ctx, op, cause); err != nil {
		p.logger.Warn("failed to drop operation", "seq", op.Seq, "err", err)
		result.Failed++
		return
	}
	result.Abandoned++
	if p.listener != nil {
		p.listener.OperationAbandoned(op, cause)
	}
}
