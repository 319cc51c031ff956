package poller

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/muurk/esp32ctl/internal/deviceapi"
	"github.com/muurk/esp32ctl/internal/logging"
	"github.com/muurk/esp32ctl/internal/transport"
)

// StatusSource fetches the device status summary
type StatusSource interface {
	Status(ctx context.Context) (*deviceapi.Status, error)
}

// StatusSourceFunc is a function adapter for StatusSource
type StatusSourceFunc func(ctx context.Context) (*deviceapi.Status, error)

func (f StatusSourceFunc) Status(ctx context.Context) (*deviceapi.Status, error) {
	return f(ctx)
}

// Recorder receives the connectivity outcome of each poll
type Recorder interface {
	RecordSuccess()
	RecordFailure()
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 10s)
	Timeout  time.Duration // Per-poll timeout (default: 5s)
}

// DefaultConfig returns the defaults used by the control panel.
func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// Result is the outcome of one poll
type Result struct {
	Status *deviceapi.Status // nil unless the poll succeeded
	Err    error
	At     time.Time
}

// Stats holds poll counters
type Stats struct {
	Polls    int64
	Failures int64
}

// Option configures a Poller
type Option func(*Poller)

// WithClock sets the clock that drives the ticker
func WithClock(c clockwork.Clock) Option {
	return func(p *Poller) {
		p.clock = c
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) {
		p.logger = l
	}
}

// Poller periodically fetches the device status and reports whether the
// device answered. Its cadence is independent of reconnection probing.
type Poller struct {
	cfg      Config
	source   StatusSource
	recorder Recorder
	clock    clockwork.Clock
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	last    Result
	hasLast bool
	subs    map[int]func(Result)
	nextSub int

	polls    atomic.Int64
	failures atomic.Int64
}

// New creates a new Poller. recorder may be nil.
func New(cfg Config, source StatusSource, recorder Recorder, opts ...Option) *Poller {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	p := &Poller{
		cfg:      cfg,
		source:   source,
		recorder: recorder,
		clock:    clockwork.NewRealClock(),
		subs:     make(map[int]func(Result)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.Named("poller")
	}
	return p
}

// Start begins the polling loop. The first poll runs immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("status poller started", zap.Duration("interval", p.cfg.Interval))
	return nil
}

// Stop shuts down the poller and waits for an in-flight poll, or until ctx
// expires.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("status poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.Poll(p.ctx)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.Chan():
			p.Poll(p.ctx)
		}
	}
}

// Poll fetches the status once and feeds the outcome to the recorder.
// Any reply from the device, including a device-reported error, counts as
// a success; a transport failure counts as a failure; cancellation is not
// recorded. It may be called at any time, also while the loop runs.
func (p *Poller) Poll(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	p.polls.Inc()
	status, err := p.source.Status(ctx)
	res := Result{Status: status, Err: err, At: p.clock.Now()}

	switch {
	case err == nil, transport.IsApplicationFailure(err):
		p.record(true)
	case transport.IsCanceled(err):
		p.logger.Debug("status poll canceled")
		return res
	case transport.IsTransportFailure(err):
		p.failures.Inc()
		p.logger.Warn("status poll failed", zap.Error(err))
		p.record(false)
	default:
		p.failures.Inc()
		p.logger.Warn("status poll error", zap.Error(err))
	}

	p.publish(res)
	return res
}

func (p *Poller) record(ok bool) {
	if p.recorder == nil {
		return
	}
	if ok {
		p.recorder.RecordSuccess()
		return
	}
	p.recorder.RecordFailure()
}

func (p *Poller) publish(res Result) {
	p.mu.Lock()
	p.last = res
	p.hasLast = true
	subs := make([]func(Result), 0, len(p.subs))
	for id := 0; id < p.nextSub; id++ {
		if fn, ok := p.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(res)
	}
}

// Subscribe registers fn to receive every poll result. The returned
// function unsubscribes.
func (p *Poller) Subscribe(fn func(Result)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Last returns the most recent result, if any
func (p *Poller) Last() (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// Stats returns poll counters
func (p *Poller) Stats() Stats {
	return Stats{
		Polls:    p.polls.Load(),
		Failures: p.failures.Load(),
	}
}
