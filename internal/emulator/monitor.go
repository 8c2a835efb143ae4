package emulator

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Defaults for the emulator probe.
const (
	// DefaultAddr is the local emulator gRPC endpoint.
	DefaultAddr = "127.0.0.1:3569"

	// DefaultInterval is the time between probes.
	DefaultInterval = 1 * time.Second

	// DefaultProbeTimeout bounds a single connection attempt. It also
	// bounds how long a tick holds the shared lock.
	DefaultProbeTimeout = 300 * time.Millisecond
)

// TransitionFunc is invoked outside the shared lock when reachability
// changes, with the new reading.
type TransitionFunc func(reachable bool)

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the probe interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithProbeTimeout sets the per-probe connection timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// Monitor periodically probes the emulator port and reports transitions.
//
// Each tick holds the shared supervisor lock for the probe and the
// comparison only; the transition callback runs after the lock is
// released, because restarting the client acquires the same lock again.
type Monitor struct {
	mu *sync.Mutex // shared with the client supervisor

	addr     string
	interval time.Duration
	timeout  time.Duration

	log          *log.Logger
	onTransition TransitionFunc

	// Last known reading. Written under mu; stored atomically so
	// Reachable can be read by a caller already holding mu.
	reachable atomic.Bool

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a monitor probing addr. The shared mutex must be the same
// lock the client supervisor serializes on.
func New(shared *sync.Mutex, addr string, logger *log.Logger, onTransition TransitionFunc, opts ...Option) *Monitor {
	m := &Monitor{
		mu:           shared,
		addr:         addr,
		interval:     DefaultInterval,
		timeout:      DefaultProbeTimeout,
		log:          logger,
		onTransition: onTransition,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins the probe loop. Starting a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.lifecycleMu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.lifecycleMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
}

// Reachable returns the last known reading. It does not take the shared
// lock, so the client supervisor can call it while holding that lock.
func (m *Monitor) Reachable() bool {
	return m.reachable.Load()
}

// Addr returns the probed address.
func (m *Monitor) Addr() string {
	return m.addr
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick runs one reconciliation step. Returns true if it observed a
// transition and invoked the callback.
func (m *Monitor) tick() bool {
	m.mu.Lock()
	reachable := m.probe()
	if reachable == m.reachable.Load() {
		m.mu.Unlock()
		return false
	}
	m.reachable.Store(reachable)
	m.mu.Unlock()

	m.log.Info("emulator connectivity changed", "addr", m.addr, "reachable", reachable)
	if m.onTransition != nil {
		m.onTransition(reachable)
	}
	return true
}

// probe attempts one connection. Any failure is the "unreachable"
// reading; probe never returns an error.
func (m *Monitor) probe() bool {
	conn, err := net.DialTimeout("tcp", m.addr, m.timeout)
	if err != nil {
		m.log.Debug("emulator probe failed", "addr", m.addr, "err", err)
		return false
	}
	_ = conn.Close()
	return true
}
