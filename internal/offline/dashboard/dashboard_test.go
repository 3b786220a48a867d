package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"

	"github.com/daycast/syncengine/internal/offline/reachability"
	"github.com/daycast/syncengine/internal/offline/schema"
	offsync "github.com/daycast/syncengine/internal/offline/sync"
)

// fakeQueue is a QueueSource backed by a slice.
type fakeQueue struct {
	mu  sync.Mutex
	ops []schema.PendingOperation
	err error
}

func (q *fakeQueue) Pending(ctx context.Context) ([]schema.PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	return append([]schema.PendingOperation(nil), q.ops...), nil
}

func (q *fakeQueue) set(ops ...schema.PendingOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = ops
}

func testConfig() *Config {
	return &Config{
		Port:   0,
		Host:   "127.0.0.1",
		Logger: log.New(io.Discard),
	}
}

// startTestServer starts a server on a free port and stops it on cleanup.
func startTestServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(testConfig())
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

// dial connects a client and closes it on cleanup.
func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func waitForClients(t *testing.T, server *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", want, server.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

// drain collects every message waiting in the broadcast buffer of a
// server that was never started.
func drain(server *Server) []Message {
	var msgs []Message
	for {
		select {
		case msg := <-server.broadcast:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func types(msgs []Message) []MessageType {
	out := make([]MessageType, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func decode[T any](t *testing.T, msg Message) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		t.Fatalf("Failed to decode %s data: %v", msg.Type, err)
	}
	return v
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(testConfig())

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	if addr := server.GetAddr(); addr == "" || addr == "127.0.0.1:0" {
		t.Fatalf("GetAddr() = %q, want a bound address", addr)
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestServerStartPortInUse(t *testing.T) {
	first := startTestServer(t)

	config := testConfig()
	_, port, err := net.SplitHostPort(first.GetAddr())
	if err != nil {
		t.Fatalf("SplitHostPort() failed: %v", err)
	}
	config.Port, _ = strconv.Atoi(port)

	if err := NewServer(config).Start(); err == nil {
		t.Error("Start() should fail when the port is taken")
	}
}

func TestMultipleClients(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const numClients = 3
	clients := make([]*websocket.Conn, numClients)
	for i := range clients {
		clients[i] = dial(t, ctx, server)
	}
	waitForClients(t, server, numClients)

	msg, err := NewMessage(MessageTypeAuthExpired, nil)
	if err != nil {
		t.Fatalf("NewMessage() failed: %v", err)
	}
	server.Broadcast(msg)

	for i, conn := range clients {
		if got := readMessage(t, ctx, conn); got.Type != MessageTypeAuthExpired {
			t.Errorf("client %d: got %s, want %s", i, got.Type, MessageTypeAuthExpired)
		}
	}
}

func TestClientDisconnect(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	waitForClients(t, server, 1)

	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	waitForClients(t, server, 0)
}

func TestMessageBroadcast(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	waitForClients(t, server, 1)

	sent := OpAbandonedData{Seq: 7, Kind: "update", EntityID: "item-1", Date: "2025-01-10", Retries: 5, Error: "boom"}
	msg, err := NewMessage(MessageTypeOpAbandoned, sent)
	if err != nil {
		t.Fatalf("NewMessage() failed: %v", err)
	}
	server.Broadcast(msg)

	received := readMessage(t, ctx, conn)
	if received.Type != MessageTypeOpAbandoned {
		t.Fatalf("Expected message type %s, got %s", MessageTypeOpAbandoned, received.Type)
	}
	if got := decode[OpAbandonedData](t, received); got != sent {
		t.Errorf("Data = %+v, want %+v", got, sent)
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	server := NewServer(testConfig())
	defer server.cancel()

	for i := 0; i < cap(server.broadcast)+10; i++ {
		server.Broadcast(Message{Type: MessageTypeStats})
	}
	if got := len(server.broadcast); got != cap(server.broadcast) {
		t.Errorf("buffered = %d, want %d", got, cap(server.broadcast))
	}
}

func TestSnapshotOnConnect(t *testing.T) {
	server := startTestServer(t)
	q := &fakeQueue{}
	q.set(
		schema.PendingOperation{Seq: 1, Kind: schema.OpCreate, CreatedAt: "2025-01-10T08:00:00.000Z"},
		schema.PendingOperation{Seq: 2, Kind: schema.OpUpdate, CreatedAt: "2025-01-10T08:01:00.000Z"},
	)
	handler := NewHandler(server, q, log.New(io.Discard))
	handler.OnReachability(reachability.State{HasNetwork: true, ServerReachable: true})
	if _, err := handler.RefreshQueue(context.Background()); err != nil {
		t.Fatalf("RefreshQueue() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)

	first := readMessage(t, ctx, conn)
	if first.Type != MessageTypeReachability {
		t.Fatalf("first message = %s, want %s", first.Type, MessageTypeReachability)
	}
	if r := decode[ReachabilityData](t, first); !r.Operational {
		t.Errorf("snapshot reachability = %+v, want operational", r)
	}

	second := readMessage(t, ctx, conn)
	if second.Type != MessageTypeQueue {
		t.Fatalf("second message = %s, want %s", second.Type, MessageTypeQueue)
	}
	depth := decode[QueueData](t, second)
	if depth.Pending != 2 || depth.ByKind["create"] != 1 || depth.Oldest != "2025-01-10T08:00:00.000Z" {
		t.Errorf("snapshot queue = %+v", depth)
	}

	if third := readMessage(t, ctx, conn); third.Type != MessageTypeStats {
		t.Errorf("third message = %s, want %s", third.Type, MessageTypeStats)
	}
}

func TestHandlerReachability(t *testing.T) {
	server := NewServer(testConfig())
	defer server.cancel()
	handler := NewHandler(server, nil, log.New(io.Discard))

	handler.OnReachability(reachability.State{HasNetwork: true, Probing: true})

	msgs := drain(server)
	if len(msgs) != 2 || msgs[0].Type != MessageTypeReachability || msgs[1].Type != MessageTypeStats {
		t.Fatalf("messages = %v, want [reachability stats]", types(msgs))
	}
	got := decode[ReachabilityData](t, msgs[0])
	want := ReachabilityData{HasNetwork: true, Probing: true}
	if got != want {
		t.Errorf("data = %+v, want %+v", got, want)
	}
	if handler.GetStats().Operational {
		t.Error("stats should not be operational while the server is unreachable")
	}
}

func TestHandlerWatchReachability(t *testing.T) {
	server := NewServer(testConfig())
	defer server.cancel()
	handler := NewHandler(server, nil, log.New(io.Discard))

	states := make(chan reachability.State, 2)
	states <- reachability.State{HasNetwork: false}
	states <- reachability.State{HasNetwork: true, ServerReachable: true}
	close(states)

	done := make(chan struct{})
	go func() {
		handler.WatchReachability(context.Background(), states)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WatchReachability did not return after the channel closed")
	}
	if !handler.GetStats().Operational {
		t.Error("last state should leave the stats operational")
	}
}

func TestHandlerRefreshQueue(t *testing.T) {
	server := NewServer(testConfig())
	defer server.cancel()
	q := &fakeQueue{}
	handler := NewHandler(server, q, log.New(io.Discard))
	ctx := context.Background()

	tests := []struct {
		name        string
		ops         []schema.PendingOperation
		wantChanged bool
		wantPending int
	}{
		{"empty queue", nil, false, 0},
		{"one create", []schema.PendingOperation{{Seq: 1, Kind: schema.OpCreate}}, true, 1},
		{"unchanged", []schema.PendingOperation{{Seq: 1, Kind: schema.OpCreate}}, false, 1},
		{"create becomes delete", []schema.PendingOperation{{Seq: 2, Kind: schema.OpDelete}}, true, 1},
		{"drained", nil, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drain(server)
			q.set(tt.ops...)

			changed, err := handler.RefreshQueue(ctx)
			if err != nil {
				t.Fatalf("RefreshQueue() failed: %v", err)
			}
			if changed != tt.wantChanged {
				t.Errorf("changed = %v, want %v", changed, tt.wantChanged)
			}
			if got := handler.GetStats().Pending; got != tt.wantPending {
				t.Errorf("Pending = %d, want %d", got, tt.wantPending)
			}
			msgs := drain(server)
			if tt.wantChanged && (len(msgs) == 0 || msgs[0].Type != MessageTypeQueue) {
				t.Errorf("messages = %v, want a queue message first", types(msgs))
			}
			if !tt.wantChanged && len(msgs) != 0 {
				t.Errorf("messages = %v, want none", types(msgs))
			}
		})
	}
}

func TestHandlerRefreshQueueError(t *testing.T) {
	server := NewServer(testConfig())
	defer server.cancel()
	q := &fakeQueue{err: errors.New("database is locked")}
	handler := NewHandler(server, q, log.New(io.Discard))

	if _, err := handler.RefreshQueue(context.Background()); err == nil {
		t.Error("RefreshQueue() should return the queue error")
	}
}

func TestHandlerPollQueue(t *testing.T) {
	server := NewServer(testConfig())
	defer server.cancel()
	q := &fakeQueue{}
	handler := NewHandler(server, q, log.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		handler.PollQueue(ctx, 5*time.Millisecond)
		close(done)
	}()

	q.set(schema.PendingOperation{Seq: 1, Kind: schema.OpClearDay})
	deadline := time.Now().Add(2 * time.Second)
	for handler.GetStats().Pending != 1 {
		if time.Now().After(deadline) {
			t.Fatal("PollQueue did not pick up the new operation")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PollQueue did not stop on cancel")
	}
}

func TestHandlerDrainEvents(t *testing.T) {
	server := NewServer(testConfig())
	defer server.cancel()
	handler := NewHandler(server, nil, log.New(io.Discard))

	op := schema.PendingOperation{Seq: 3, Kind: schema.OpUpdate, EntityID: "item-9", Date: "2025-01-10", RetryCount: 4}
	handler.OperationAbandoned(op, errors.New("server returned 500"))
	handler.AuthExpired()
	handler.DrainComplete(offsync.Result{Applied: 2, Failed: 1, Abandoned: 1, AuthHalted: true, Remaining: 4})

	msgs := drain(server)
	want := []MessageType{
		MessageTypeOpAbandoned,
		MessageTypeAuthExpired, MessageTypeStats,
		MessageTypeDrainComplete, MessageTypeStats,
	}
	if got := types(msgs); len(got) != len(want) {
		t.Fatalf("messages = %v, want %v", got, want)
	} else {
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("messages = %v, want %v", got, want)
			}
		}
	}

	abandoned := decode[OpAbandonedData](t, msgs[0])
	if abandoned.Retries != 5 || abandoned.Error != "server returned 500" || abandoned.EntityID != "item-9" {
		t.Errorf("abandoned = %+v", abandoned)
	}

	result := decode[offsync.Result](t, msgs[3])
	if result.Applied != 2 || !result.AuthHalted || result.Remaining != 4 {
		t.Errorf("drain result = %+v", result)
	}

	stats := handler.GetStats()
	want2 := StatsData{Drains: 1, Applied: 2, Failed: 1, Abandoned: 1, Pending: 4, AuthExpired: true}
	if stats != want2 {
		t.Errorf("stats = %+v, want %+v", stats, want2)
	}

	// A later successful drain clears the expired flag
	handler.DrainComplete(offsync.Result{Applied: 1})
	if handler.GetStats().AuthExpired {
		t.Error("AuthExpired should clear after a successful drain")
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(testConfig())
	defer server.cancel()

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body.Status != "ok" || body.Clients != 0 {
		t.Errorf("health = %+v", body)
	}
}

func TestRootEndpoint(t *testing.T) {
	server := NewServer(testConfig())
	defer server.cancel()

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	tests := []struct {
		path string
		want int
	}{
		{"/", http.StatusOK},
		{"/missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := http.Get(ts.URL + tt.path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s status = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}
