package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/muurk/esp32ctl/internal/logging"
	"github.com/muurk/esp32ctl/internal/transport"
)

const (
	// DefaultProbeTimeout bounds one reachability probe
	DefaultProbeTimeout = 5 * time.Second

	// DefaultRestoreWindow is how long "connection restored" stays visible
	DefaultRestoreWindow = 2 * time.Second
)

// Prober issues one reachability probe. A nil error means the device
// answered with a success status.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc is a function adapter for Prober
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// TransportProber probes a device through the transport client
func TransportProber(c *transport.Client, path string) Prober {
	return ProberFunc(func(ctx context.Context) error {
		return c.Probe(ctx, path, DefaultProbeTimeout)
	})
}

// Snapshot is a consistent view of the monitor published to subscribers
type Snapshot struct {
	State  State
	Banner Banner
}

// Option configures a Monitor
type Option func(*Monitor)

// WithClock sets the clock used for backoff and restore timers
func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) {
		m.logger = l
	}
}

// WithProbeTimeout overrides the per-probe timeout
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		m.probeTimeout = d
	}
}

// WithRestoreWindow overrides how long the restored banner stays visible
func WithRestoreWindow(d time.Duration) Option {
	return func(m *Monitor) {
		m.restoreWindow = d
	}
}

// Monitor owns the connection state of one device session. It reacts to
// transport outcomes and drives the reconnection probe loop. Every handler
// runs under one lock, so transitions never interleave.
type Monitor struct {
	prober        Prober
	clock         clockwork.Clock
	logger        *zap.Logger
	probeTimeout  time.Duration
	restoreWindow time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	state        State
	epoch        uint64 // identifies the current probe chain
	retryTimer   clockwork.Timer
	restoreTimer clockwork.Timer
	restoreGen   uint64
	closed       bool
	subs         map[int]func(Snapshot)
	nextSub      int

	// notifyMu keeps subscriber deliveries in transition order
	notifyMu sync.Mutex

	chains atomic.Int64
	probes atomic.Int64
}

// NewMonitor creates a monitor in the initial connected state
func NewMonitor(prober Prober, opts ...Option) *Monitor {
	m := &Monitor{
		prober:        prober,
		clock:         clockwork.NewRealClock(),
		probeTimeout:  DefaultProbeTimeout,
		restoreWindow: DefaultRestoreWindow,
		state:         InitialState(),
		subs:          make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.Named("connection")
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// RecordSuccess is called after any transport-level success, whatever the
// application-level result was.
func (m *Monitor) RecordSuccess() {
	m.apply(EventSuccess)
}

// RecordFailure is called after a transport-level failure. It starts
// reconnection if the session was connected; otherwise the running loop
// already owns recovery.
func (m *Monitor) RecordFailure() {
	m.apply(EventFailure)
}

// StartReconnection starts the probe loop. It is a no-op while a loop is
// already running.
func (m *Monitor) StartReconnection() {
	m.apply(EventStartReconnection)
}

// StopReconnection halts the probe loop without reaching the device. The
// banner shows the error state until the next success.
func (m *Monitor) StopReconnection() {
	m.apply(EventHalt)
}

// ObserveTransport implements transport.Observer
func (m *Monitor) ObserveTransport(err error) {
	switch {
	case err == nil, transport.IsApplicationFailure(err):
		m.RecordSuccess()
	case transport.IsTransportFailure(err):
		m.RecordFailure()
	}
}

// State returns the current state
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Banner returns the current display projection
func (m *Monitor) Banner() Banner {
	return Project(m.State())
}

// Snapshot returns state and banner read under one lock
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Chains returns how many probe chains have been started
func (m *Monitor) Chains() int64 {
	return m.chains.Load()
}

// Probes returns how many probes have been issued
func (m *Monitor) Probes() int64 {
	return m.probes.Load()
}

// Subscribe registers fn to receive a snapshot after every observable
// transition, in order. fn must not call back into the monitor's mutating
// methods synchronously. The returned function unsubscribes.
func (m *Monitor) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Close stops timers, cancels any in-flight probe and waits for the probe
// goroutine to exit. The monitor ignores all events afterwards.
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.epoch++
	m.stopTimersLocked()
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

func (m *Monitor) apply(ev Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	changed := m.stepLocked(ev)
	m.publishAndUnlock(changed)
}

// stepLocked applies one event and performs its effects. It reports whether
// anything subscribers can see has changed.
func (m *Monitor) stepLocked(ev Event) bool {
	prev := m.state
	next, eff := Next(prev, ev, m.clock.Now())
	m.state = next

	if eff.StartLoop {
		m.epoch++
		m.chains.Inc()
		m.logger.Warn("connection lost, starting reconnection",
			zap.Uint64("chain", m.epoch),
		)
		m.beginAttemptLocked(m.epoch)
	}

	if eff.ScheduleRestoreClear {
		m.scheduleRestoreClearLocked()
	}

	if ev == EventHalt && eff.Changed {
		m.epoch++
		if m.retryTimer != nil {
			m.retryTimer.Stop()
			m.retryTimer = nil
		}
		m.logger.Warn("reconnection halted")
	}

	changed := significant(prev, m.state)
	if changed {
		logging.LogStateChange(m.logger, Project(prev).String(), Project(m.state).String(), m.state.RetryCount)
	}
	return changed
}

// beginAttemptLocked counts one attempt and launches its probe
func (m *Monitor) beginAttemptLocked(epoch uint64) {
	m.state, _ = Next(m.state, EventProbeAttempt, m.clock.Now())
	retry := m.state.RetryCount
	m.probes.Inc()

	m.wg.Add(1)
	go m.runProbe(epoch, retry)
}

func (m *Monitor) runProbe(epoch uint64, retry int) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(m.ctx, m.probeTimeout)
	err := m.safeProbe(ctx)
	cancel()

	m.mu.Lock()
	if m.closed || epoch != m.epoch || !m.state.Reconnecting {
		// superseded: success arrived by another path, or halted
		m.mu.Unlock()
		return
	}

	if err == nil {
		m.logger.Info("device reachable again", zap.Int("retry", retry))
		changed := m.stepLocked(EventSuccess)
		m.publishAndUnlock(changed)
		return
	}

	delay := DelayForAttempt(retry)
	m.logger.Warn("reconnection probe failed",
		zap.Int("retry", retry),
		zap.Duration("next_delay", delay),
		zap.Error(err),
	)
	m.retryTimer = m.clock.AfterFunc(delay, func() {
		m.onRetryTimer(epoch)
	})
	m.mu.Unlock()
}

func (m *Monitor) onRetryTimer(epoch uint64) {
	m.mu.Lock()
	if m.closed || epoch != m.epoch || !m.state.Reconnecting {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	m.beginAttemptLocked(epoch)
	m.publishAndUnlock(true)
}

// safeProbe converts probe panics into probe failures
func (m *Monitor) safeProbe(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	if m.prober == nil {
		return fmt.Errorf("no prober configured")
	}
	return m.prober.Probe(ctx)
}

func (m *Monitor) scheduleRestoreClearLocked() {
	if m.restoreTimer != nil {
		m.restoreTimer.Stop()
	}
	m.restoreGen++
	gen := m.restoreGen
	m.restoreTimer = m.clock.AfterFunc(m.restoreWindow, func() {
		m.mu.Lock()
		if m.closed || gen != m.restoreGen {
			m.mu.Unlock()
			return
		}
		m.restoreTimer = nil
		changed := m.stepLocked(EventRestoreElapsed)
		m.publishAndUnlock(changed)
	})
}

func (m *Monitor) stopTimersLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.restoreTimer != nil {
		m.restoreTimer.Stop()
		m.restoreTimer = nil
	}
}

func (m *Monitor) snapshotLocked() Snapshot {
	return Snapshot{State: m.state, Banner: Project(m.state)}
}

// publishAndUnlock releases m.mu and, if changed, delivers the new snapshot
// to subscribers. notifyMu is taken before m.mu is released so deliveries
// keep transition order.
func (m *Monitor) publishAndUnlock(changed bool) {
	if !changed || len(m.subs) == 0 {
		m.mu.Unlock()
		return
	}

	snap := m.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(m.subs))
	for id := 0; id < m.nextSub; id++ {
		if fn, ok := m.subs[id]; ok {
			subs = append(subs, fn)
		}
	}

	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// significant reports whether two states differ in anything but the ping
// timestamp, which changes on every successful call.
func significant(a, b State) bool {
	a.LastSuccessfulPing = b.LastSuccessfulPing
	return a != b
}
