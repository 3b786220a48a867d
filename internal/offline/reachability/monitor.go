// Package reachability tracks whether the daycast server can be used.
//
// Two signals are kept apart: whether the device has a usable network
// interface, and whether the server answered recently. The second is
// derived from the outcome of real API calls (see remote.Reporting) and,
// while the server is marked unreachable, from a background probe of its
// health endpoint. Operational is true only when both hold.
package reachability

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/daycast/syncengine/internal/offline/remote"
)

// Config holds probe timing.
type Config struct {
	// ProbeTimeout bounds each health request (default: 5s)
	ProbeTimeout time.Duration

	// ProbeStep is the first probe delay and the amount added after each
	// failed probe (default: 5s)
	ProbeStep time.Duration

	// ProbeMax caps the delay between probes (default: 15s)
	ProbeMax time.Duration

	// Logger for state changes
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ProbeTimeout: 5 * time.Second,
		ProbeStep:    5 * time.Second,
		ProbeMax:     15 * time.Second,
		Logger:       log.Default().WithPrefix("reachability"),
	}
}

// State is a snapshot of the monitor.
type State struct {
	HasNetwork      bool `json:"has_network"`
	ServerReachable bool `json:"server_reachable"`
	Probing         bool `json:"probing"`
}

// Operational reports whether both signals are up.
func (s State) Operational() bool {
	return s.HasNetwork && s.ServerReachable
}

// Monitor is the process-wide reachability state. It implements
// remote.Reporter. All methods return without waiting on the network.
type Monitor struct {
	prober remote.HealthChecker
	config *Config

	hasNetwork atomic.Bool
	reachable  atomic.Bool

	mu          sync.Mutex
	probeCancel context.CancelFunc
	probeGen    uint64
	subs        map[int]chan State
	nextSub     int
	closed      bool
	wg          sync.WaitGroup
}

// New creates a monitor that probes with prober. Both signals start up.
func New(prober remote.HealthChecker) *Monitor {
	return NewWithConfig(prober, DefaultConfig())
}

// NewWithConfig creates a monitor with custom probe timing.
func NewWithConfig(prober remote.HealthChecker, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = defaults.ProbeTimeout
	}
	if config.ProbeStep <= 0 {
		config.ProbeStep = defaults.ProbeStep
	}
	if config.ProbeMax < config.ProbeStep {
		config.ProbeMax = config.ProbeStep
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	m := &Monitor{
		prober: prober,
		config: config,
		subs:   make(map[int]chan State),
	}
	m.hasNetwork.Store(true)
	m.reachable.Store(true)
	return m
}

// Operational reports whether the device has network and the server is
// reachable.
func (m *Monitor) Operational() bool {
	return m.hasNetwork.Load() && m.reachable.Load()
}

// HasNetwork reports the transport-level signal.
func (m *Monitor) HasNetwork() bool {
	return m.hasNetwork.Load()
}

// ServerReachable reports the application-level signal.
func (m *Monitor) ServerReachable() bool {
	return m.reachable.Load()
}

// Probing reports whether a probe loop is running.
func (m *Monitor) Probing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probeCancel != nil
}

// State returns a snapshot of all signals.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Monitor) stateLocked() State {
	return State{
		HasNetwork:      m.hasNetwork.Load(),
		ServerReachable: m.reachable.Load(),
		Probing:         m.probeCancel != nil,
	}
}

// ReportSuccess records a call the server answered successfully.
func (m *Monitor) ReportSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markReachableLocked("request succeeded")
}

// ReportFailure records a failed call. Network-level failures mark the
// server unreachable and start probing; application-level failures prove
// the server answered.
func (m *Monitor) ReportFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch remote.Classify(err) {
	case remote.ClassNetwork:
		if m.closed || !m.reachable.Load() {
			return
		}
		m.reachable.Store(false)
		m.config.Logger.Warn("server unreachable", "err", err)
		m.startProbeLocked(false)
		m.notifyLocked()
	case remote.ClassApplication:
		m.markReachableLocked("server answered")
	}
}

// SetNetwork updates the transport-level signal. Regaining the network
// while the server is marked unreachable probes right away.
func (m *Monitor) SetNetwork(up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.hasNetwork.Load() == up {
		return
	}
	m.hasNetwork.Store(up)
	m.config.Logger.Info("network changed", "up", up)
	if up && !m.reachable.Load() {
		m.startProbeLocked(true)
	}
	m.notifyLocked()
}

// Subscribe returns a channel that receives the latest state after each
// change. Slow readers only see the newest state. Call the returned
// function to unsubscribe.
func (m *Monitor) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan State, 1)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// Close stops probing and closes all subscriptions.
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stopProbeLocked()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Monitor) markReachableLocked(reason string) {
	if m.closed || m.reachable.Load() {
		return
	}
	m.reachable.Store(true)
	m.stopProbeLocked()
	m.config.Logger.Info("server reachable", "reason", reason)
	m.notifyLocked()
}

func (m *Monitor) notifyLocked() {
	state := m.stateLocked()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}

func (m *Monitor) stopProbeLocked() {
	if m.probeCancel != nil {
		m.probeCancel()
		m.probeCancel = nil
	}
}

// startProbeLocked replaces any running probe loop. An immediate loop
// probes before its first wait.
func (m *Monitor) startProbeLocked(immediate bool) {
	m.stopProbeLocked()
	if m.prober == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.probeCancel = cancel
	m.probeGen++
	gen := m.probeGen

	m.wg.Add(1)
	go m.probeLoop(ctx, gen, immediate)
}

func (m *Monitor) probeLoop(ctx context.Context, gen uint64, immediate bool) {
	defer m.wg.Done()

	delay := m.config.ProbeStep
	if immediate {
		delay = 0
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if !m.hasNetwork.Load() {
			timer.Reset(m.config.ProbeStep)
			continue
		}

		if m.probeOnce(ctx) {
			m.mu.Lock()
			if m.probeGen == gen && m.probeCancel != nil {
				m.markReachableLocked("health probe succeeded")
			}
			m.mu.Unlock()
			return
		}

		delay = nextDelay(delay, m.config.ProbeStep, m.config.ProbeMax)
		m.config.Logger.Debug("health probe failed", "retry_in", delay)
		timer.Reset(delay)
	}
}

func (m *Monitor) probeOnce(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()
	return m.prober.Health(ctx) == nil
}

// nextDelay grows the probe delay linearly up to max.
func nextDelay(cur, step, max time.Duration) time.Duration {
	next := cur + step
	if next < step {
		next = step
	}
	if next > max {
		return max
	}
	return next
}

var _ remote.Reporter = (*Monitor)(nil)
