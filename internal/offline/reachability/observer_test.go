package reachability

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordingSetter struct {
	mu     sync.Mutex
	values []bool
}

func (r *recordingSetter) SetNetwork(up bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, up)
}

func (r *recordingSetter) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.values...)
}

func TestInterfaceObserverReportsChanges(t *testing.T) {
	setter := &recordingSetter{}
	var up atomic.Bool
	up.Store(true)

	obs := NewInterfaceObserver(setter, 5*time.Millisecond, nil)
	obs.detect = up.Load

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		obs.Run(ctx)
		close(done)
	}()

	waitFor(t, "initial report", func() bool { return len(setter.snapshot()) == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := setter.snapshot(); len(got) != 1 {
		t.Fatalf("unchanged state reported again: %v", got)
	}

	up.Store(false)
	waitFor(t, "down report", func() bool { return len(setter.snapshot()) == 2 })

	cancel()
	<-done

	got := setter.snapshot()
	if !got[0] || got[1] {
		t.Errorf("reports = %v, want [true false]", got)
	}
}

func TestInterfaceObserverDrivesMonitor(t *testing.T) {
	m, _ := setupTestMonitor(t, time.Hour)
	obs := NewInterfaceObserver(m, time.Millisecond, nil)
	obs.detect = func() bool { return false }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go obs.Run(ctx)

	waitFor(t, "network down", func() bool { return !m.HasNetwork() })
}
