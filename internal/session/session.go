package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/muurk/esp32ctl/internal/connection"
	"github.com/muurk/esp32ctl/internal/deviceapi"
	"github.com/muurk/esp32ctl/internal/logging"
	"github.com/muurk/esp32ctl/internal/modules"
	"github.com/muurk/esp32ctl/internal/poller"
	"github.com/muurk/esp32ctl/internal/tabs"
	"github.com/muurk/esp32ctl/internal/transport"
)

// CommunicationErrorMessage is announced once when the device stops
// answering
const CommunicationErrorMessage = "Communication error"

// Config holds session configuration
type Config struct {
	BaseURL        string
	PollInterval   time.Duration   // default 10s
	PollTimeout    time.Duration   // default 5s
	ProbeTimeout   time.Duration   // default 5s
	RequestTimeout time.Duration   // default transport.DefaultTimeout
	LEDSlaveID     int             // default 10
	AssetRoot      string          // default "/tabs"
	HTTPClient     *http.Client    // optional
	Clock          clockwork.Clock // optional
	Logger         *zap.Logger     // optional
}

// Notice is a user notification raised by the session
type Notice struct {
	Level   modules.NoticeLevel
	Message string
	At      time.Time
}

// Session owns every component of one device connection and wires them
// together. It is constructed once per device; independent sessions do
// not share state.
type Session struct {
	id     string
	cfg    Config
	clock  clockwork.Clock
	logger *zap.Logger

	transport *transport.Client
	api       *deviceapi.Client
	monitor   *connection.Monitor
	poller    *poller.Poller
	loader    *modules.Loader
	tabs      *tabs.Set

	mu           sync.Mutex
	active       modules.Name
	wasConnected bool
	started      bool
	stopped      bool
	subs         map[int]func(Notice)
	nextSub      int
	unsubMonitor func()

	// notifyMu keeps notice deliveries in order
	notifyMu sync.Mutex
}

// New builds a session. Nothing touches the network until Start or
// SwitchTab.
func New(cfg Config) (*Session, error) {
	id := uuid.NewString()

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}
	logger = logger.With(zap.String("session", id))

	topts := []transport.Option{transport.WithLogger(logger.Named("transport"))}
	if cfg.HTTPClient != nil {
		topts = append(topts, transport.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.RequestTimeout > 0 {
		topts = append(topts, transport.WithTimeout(cfg.RequestTimeout))
	}
	tc, err := transport.NewClient(cfg.BaseURL, topts...)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:           id,
		cfg:          cfg,
		clock:        clock,
		logger:       logger,
		transport:    tc,
		api:          deviceapi.New(tc),
		active:       modules.Actuators,
		wasConnected: true,
		subs:         make(map[int]func(Notice)),
	}

	mopts := []connection.Option{
		connection.WithClock(clock),
		connection.WithLogger(logger.Named("connection")),
	}
	if cfg.ProbeTimeout > 0 {
		mopts = append(mopts, connection.WithProbeTimeout(cfg.ProbeTimeout))
	}
	s.monitor = connection.NewMonitor(connection.TransportProber(tc, transport.DefaultProbePath), mopts...)
	tc.AddObserver(s.monitor)
	s.unsubMonitor = s.monitor.Subscribe(s.onConnection)

	// status reads by the poller feed the monitor through the recorder,
	// not through the transport observer
	s.poller = poller.New(
		poller.Config{Interval: cfg.PollInterval, Timeout: cfg.PollTimeout},
		deviceapi.New(tc.Unobserved()),
		s.monitor,
		poller.WithClock(clock),
		poller.WithLogger(logger.Named("poller")),
	)

	s.tabs = tabs.NewSet(s.api, tabs.Options{
		LEDSlaveID: cfg.LEDSlaveID,
		Clock:      clock,
		Logger:     logger.Named("tabs"),
	})
	rt := modules.NewBuiltinRuntime()
	s.tabs.Provide(rt)

	root := cfg.AssetRoot
	if root == "" {
		root = modules.DefaultAssetRoot
	}
	s.loader = modules.NewLoader(
		modules.NewHTTPAssetHost(tc.Unobserved(), root),
		rt,
		modules.WithView(s.tabs),
		modules.WithNotifier(modules.NotifierFunc(s.notify)),
		modules.WithLogger(logger.Named("modules")),
	)

	return s, nil
}

// ID returns the session identifier used in logs
func (s *Session) ID() string { return s.id }

// BaseURL returns the device base URL
func (s *Session) BaseURL() string { return s.transport.BaseURL() }

// API returns the observed device API client
func (s *Session) API() *deviceapi.Client { return s.api }

// Monitor returns the connection monitor
func (s *Session) Monitor() *connection.Monitor { return s.monitor }

// Poller returns the status poller
func (s *Session) Poller() *poller.Poller { return s.poller }

// Loader returns the module loader
func (s *Session) Loader() *modules.Loader { return s.loader }

// Tabs returns the tab set
func (s *Session) Tabs() *tabs.Set { return s.tabs }

// Transport returns the transport client
func (s *Session) Transport() *transport.Client { return s.transport }

// Start begins status polling
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("session %s already started", s.id)
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("session started", zap.String("device", s.transport.BaseURL()))
	return s.poller.Start(ctx)
}

// Stop stops polling and reconnection and waits for background work, or
// until ctx expires.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	var err error
	if started {
		err = s.poller.Stop(ctx)
	}
	s.unsubMonitor()
	s.monitor.Close()

	s.logger.Info("session stopped",
		zap.Int64("requests", s.transport.Stats().Requests),
		zap.Int64("reconnect_chains", s.monitor.Chains()),
	)
	return err
}

// Active returns the tab currently shown
func (s *Session) Active() modules.Name {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SwitchTab makes name the active tab, activates its module and refreshes
// the status badges with an on-demand poll. The returned error is the
// activation's; load failures have already been shown and announced.
func (s *Session) SwitchTab(ctx context.Context, name modules.Name) error {
	if !name.Valid() {
		return fmt.Errorf("unknown tab %s", name)
	}
	s.mu.Lock()
	s.active = name
	s.mu.Unlock()

	err := s.loader.Activate(ctx, name)
	if err != nil && !modules.IsLoadError(err) && !transport.IsCanceled(err) {
		s.logger.Debug("tab init failed", zap.String("module", name.String()), zap.Error(err))
	}

	s.poller.Poll(ctx)
	return err
}

// Refresh re-initializes the active tab if its module is loaded
func (s *Session) Refresh(ctx context.Context) error {
	name := s.Active()
	if !s.loader.Loaded(name) {
		return nil
	}
	return s.tabs.Tab(name).Init(ctx)
}

// Run executes a tab action and announces its outcome. Transport failures
// are not announced here: the connection banner and the one-time
// communication error notice cover them.
func (s *Session) Run(ctx context.Context, action tabs.Action) {
	if action == nil {
		return
	}
	notice, err := action(ctx)
	switch {
	case err == nil:
		if notice != "" {
			s.notify(modules.NoticeSuccess, notice)
		}
	case transport.IsCanceled(err), transport.IsTransportFailure(err):
	default:
		s.notify(modules.NoticeError, transport.ShortMessage(err))
	}
}

// Subscribe registers fn for notices, delivered in order. The returned
// function unsubscribes.
func (s *Session) Subscribe(fn func(Notice)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// onConnection announces the transition out of the connected state once
func (s *Session) onConnection(snap connection.Snapshot) {
	s.mu.Lock()
	lost := s.wasConnected && !snap.State.Connected
	s.wasConnected = snap.State.Connected
	s.mu.Unlock()

	if lost {
		s.notify(modules.NoticeError, CommunicationErrorMessage)
	}
}

func (s *Session) notify(level modules.NoticeLevel, message string) {
	n := Notice{Level: level, Message: message, At: s.clock.Now()}

	s.mu.Lock()
	subs := make([]func(Notice), 0, len(s.subs))
	for id := 0; id < s.nextSub; id++ {
		if fn, ok := s.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.logger.Debug("notice", zap.String("level", level.String()), zap.String("message", message))
	for _, fn := range subs {
		fn(n)
	}
}
