package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/daycast/syncengine/internal/offline/reachability"
	"github.com/daycast/syncengine/internal/offline/schema"
	offsync "github.com/daycast/syncengine/internal/offline/sync"
)

// QueueSource lists the operations waiting to reach the server.
type QueueSource interface {
	Pending(ctx context.Context) ([]schema.PendingOperation, error)
}

// Handler turns engine events into dashboard messages. It implements
// sync.Listener so it can be passed to the sync processor directly.
type Handler struct {
	server *Server
	queue  QueueSource
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
	reach ReachabilityData
	depth QueueData
}

var _ offsync.Listener = (*Handler)(nil)

// NewHandler creates a new event handler connected to a dashboard server.
// The handler registers itself as the server's snapshot source.
func NewHandler(server *Server, queue QueueSource, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default().WithPrefix("dashboard")
	}

	h := &Handler{
		server: server,
		queue:  queue,
		logger: logger,
		depth:  QueueData{ByKind: map[string]int{}},
	}
	server.SetSnapshot(h.Snapshot)
	return h
}

// OnReachability records and broadcasts a reachability state.
func (h *Handler) OnReachability(state reachability.State) {
	data := ReachabilityData{
		HasNetwork:      state.HasNetwork,
		ServerReachable: state.ServerReachable,
		Probing:         state.Probing,
		Operational:     state.Operational(),
	}

	h.mu.Lock()
	h.reach = data
	h.stats.Operational = data.Operational
	h.mu.Unlock()

	h.logger.Debug("Reachability changed", "network", data.HasNetwork, "server", data.ServerReachable)
	h.broadcast(MessageTypeReachability, data)
	h.broadcastStats()
}

// WatchReachability forwards states from a monitor subscription until the
// channel closes or ctx is done.
func (h *Handler) WatchReachability(ctx context.Context, states <-chan reachability.State) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			h.OnReachability(state)
		}
	}
}

// RefreshQueue reads the queue and broadcasts its depth. It reports
// whether the depth differs from the last broadcast.
func (h *Handler) RefreshQueue(ctx context.Context) (bool, error) {
	if h.queue == nil {
		return false, nil
	}
	ops, err := h.queue.Pending(ctx)
	if err != nil {
		return false, err
	}

	data := QueueData{Pending: len(ops), ByKind: make(map[string]int)}
	for _, op := range ops {
		data.ByKind[string(op.Kind)]++
	}
	if len(ops) > 0 {
		data.Oldest = ops[0].CreatedAt
	}

	h.mu.Lock()
	changed := !sameDepth(h.depth, data)
	h.depth = data
	h.stats.Pending = data.Pending
	h.mu.Unlock()

	if changed {
		h.broadcast(MessageTypeQueue, data)
		h.broadcastStats()
	}
	return changed, nil
}

// PollQueue refreshes the queue depth every interval until ctx is done.
// Offline writes do not pass through the processor, so polling is how the
// dashboard notices them.
func (h *Handler) PollQueue(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := h.RefreshQueue(ctx); err != nil && ctx.Err() == nil {
			h.logger.Warn("Failed to read queue", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// OperationAbandoned implements sync.Listener.
func (h *Handler) OperationAbandoned(op schema.PendingOperation, err error) {
	h.logger.Warn("Operation abandoned", "seq", op.Seq, "kind", op.Kind, "entity", op.EntityID, "error", err)

	data := OpAbandonedData{
		Seq:      op.Seq,
		Kind:     string(op.Kind),
		EntityID: op.EntityID,
		Date:     op.Date,
		Retries:  op.RetryCount + 1,
	}
	if err != nil {
		data.Error = err.Error()
	}

	h.mu.Lock()
	h.stats.Abandoned++
	h.mu.Unlock()

	h.broadcast(MessageTypeOpAbandoned, data)
}

// AuthExpired implements sync.Listener.
func (h *Handler) AuthExpired() {
	h.logger.Warn("Session expired, queue held until sign-in")

	h.mu.Lock()
	h.stats.AuthExpired = true
	h.mu.Unlock()

	h.broadcast(MessageTypeAuthExpired, nil)
	h.broadcastStats()
}

// DrainComplete implements sync.Listener.
func (h *Handler) DrainComplete(result offsync.Result) {
	h.logger.Info("Drain complete", "result", result.String())

	h.mu.Lock()
	h.stats.Drains++
	h.stats.Applied += result.Applied
	h.stats.Failed += result.Failed
	h.stats.Pending = result.Remaining
	if result.Applied > 0 && !result.AuthHalted {
		h.stats.AuthExpired = false
	}
	h.mu.Unlock()

	h.broadcast(MessageTypeDrainComplete, result)
	h.broadcastStats()
}

// Snapshot returns the messages a newly connected client starts from.
func (h *Handler) Snapshot() []Message {
	h.mu.Lock()
	reach, depth, stats := h.reach, h.depth, h.stats
	h.mu.Unlock()

	var msgs []Message
	for _, part := range []struct {
		typ  MessageType
		data any
	}{
		{MessageTypeReachability, reach},
		{MessageTypeQueue, depth},
		{MessageTypeStats, stats},
	} {
		msg, err := NewMessage(part.typ, part.data)
		if err != nil {
			h.logger.Error("Failed to build snapshot", "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// GetStats returns a copy of the running totals.
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) broadcastStats() {
	h.broadcast(MessageTypeStats, h.GetStats())
}

func (h *Handler) broadcast(typ MessageType, data any) {
	msg, err := NewMessage(typ, data)
	if err != nil {
		h.logger.Error("Failed to build message", "error", err)
		return
	}
	h.server.Broadcast(msg)
}

func sameDepth(a, b QueueData) bool {
	if a.Pending != b.Pending || a.Oldest != b.Oldest || len(a.ByKind) != len(b.ByKind) {
		return false
	}
	for k, v := range a.ByKind {
		if b.ByKind[k] != v {
			return false
		}
	}
	return true
}
