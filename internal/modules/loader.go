package modules

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/muurk/esp32ctl/internal/logging"
	"github.com/muurk/esp32ctl/internal/transport"
)

// PlaceholderMessage is shown in a module's view when it fails to load
const PlaceholderMessage = "Failed to load module"

// InitFunc (re)initializes a loaded module, typically by refreshing its
// data from the device.
type InitFunc func(ctx context.Context) error

// AssetHost fetches a module's markup fragment and code unit
type AssetHost interface {
	FetchMarkup(ctx context.Context, name Name) ([]byte, error)
	FetchCode(ctx context.Context, name Name) ([]byte, error)
}

// Registrar receives a module's initializer
type Registrar interface {
	Register(name Name, init InitFunc)
}

// Runtime executes a fetched code unit. The code unit is expected to call
// reg.Register for its own name while it runs.
type Runtime interface {
	Execute(ctx context.Context, name Name, code []byte, reg Registrar) error
}

// View is the rendering side of the loader
type View interface {
	// Inject places a module's markup into its container
	Inject(name Name, markup []byte)
	// ShowLoadFailure replaces a module's container with a failure placeholder
	ShowLoadFailure(name Name, err error)
}

// NoticeLevel is the severity of a user notification
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeSuccess
	NoticeError
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeSuccess:
		return "success"
	case NoticeError:
		return "error"
	default:
		return "info"
	}
}

// Notifier shows short-lived user notifications
type Notifier interface {
	Notify(level NoticeLevel, message string)
}

// NotifierFunc is a function adapter for Notifier
type NotifierFunc func(level NoticeLevel, message string)

func (f NotifierFunc) Notify(level NoticeLevel, message string) {
	f(level, message)
}

// Stats holds per-module fetch counters
type Stats struct {
	MarkupFetches int64
	CodeFetches   int64
	Inits         int64
	Failures      int64
}

type record struct {
	loaded bool
	init   InitFunc
	// pending is set when the code unit finished without registering;
	// the next Register call then runs init itself.
	pending bool
}

type counters struct {
	markup   atomic.Int64
	code     atomic.Int64
	inits    atomic.Int64
	failures atomic.Int64
}

// Option configures a Loader
type Option func(*Loader)

// WithView sets the view that receives markup and failure placeholders
func WithView(v View) Option {
	return func(l *Loader) {
		l.view = v
	}
}

// WithNotifier sets the notifier for load failures
func WithNotifier(n Notifier) Option {
	return func(l *Loader) {
		l.notifier = n
	}
}

// WithLogger sets the logger
func WithLogger(lg *zap.Logger) Option {
	return func(l *Loader) {
		l.logger = lg
	}
}

// Loader lazily loads feature modules on first activation and
// re-initializes them on later activations. Concurrent activations of the
// same module share a single load.
type Loader struct {
	assets   AssetHost
	runtime  Runtime
	view     View
	notifier Notifier
	logger   *zap.Logger

	group singleflight.Group

	mu      sync.Mutex
	records [numNames]record

	stats [numNames]counters
}

// NewLoader creates a loader with every module unloaded
func NewLoader(assets AssetHost, runtime Runtime, opts ...Option) *Loader {
	l := &Loader{
		assets:  assets,
		runtime: runtime,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logging.Named("modules")
	}
	return l
}

// Activate makes a module ready for display. A loaded module is
// re-initialized without network activity. Otherwise its markup and code
// unit are fetched, the code unit is executed and the registered
// initializer is invoked once. A failed load leaves the module unloaded,
// so a later Activate retries it; the failure has already been reported
// to the view and notifier when the *LoadError is returned.
func (l *Loader) Activate(ctx context.Context, name Name) error {
	if !name.Valid() {
		return fmt.Errorf("activate: invalid module %s", name)
	}

	l.mu.Lock()
	rec := l.records[name]
	l.mu.Unlock()

	if rec.loaded {
		return l.runInit(ctx, name, rec.init)
	}

	_, err, shared := l.group.Do(name.String(), func() (any, error) {
		return nil, l.load(ctx, name)
	})
	if shared {
		l.logger.Debug("joined in-flight module load", zap.String("module", name.String()))
	}
	return err
}

// Register stores a module's initializer and marks it loaded. It is called
// by the module's code unit while it executes. If the load already
// completed without an initializer, Register runs init itself so a first
// activation still initializes the module exactly once.
func (l *Loader) Register(name Name, init InitFunc) {
	if !name.Valid() {
		l.logger.Warn("register: invalid module", zap.Int("module", int(name)))
		return
	}

	l.mu.Lock()
	rec := &l.records[name]
	rec.init = init
	rec.loaded = true
	runNow := rec.pending && init != nil
	rec.pending = false
	l.mu.Unlock()

	l.logger.Debug("module registered", zap.String("module", name.String()))

	if runNow {
		if err := l.runInit(context.Background(), name, init); err != nil {
			l.logger.Warn("late module init failed", zap.String("module", name.String()), zap.Error(err))
		}
	}
}

// Loaded reports whether a module has been loaded
func (l *Loader) Loaded(name Name) bool {
	if !name.Valid() {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records[name].loaded
}

// Stats returns the counters for one module
func (l *Loader) Stats(name Name) Stats {
	if !name.Valid() {
		return Stats{}
	}
	c := &l.stats[name]
	return Stats{
		MarkupFetches: c.markup.Load(),
		CodeFetches:   c.code.Load(),
		Inits:         c.inits.Load(),
		Failures:      c.failures.Load(),
	}
}

func (l *Loader) load(ctx context.Context, name Name) error {
	// a load that finished just before this flight started
	l.mu.Lock()
	rec := l.records[name]
	l.mu.Unlock()
	if rec.loaded {
		return l.runInit(ctx, name, rec.init)
	}

	logger := l.logger.With(zap.String("module", name.String()))
	logger.Debug("loading module")

	l.stats[name].markup.Inc()
	markup, err := l.assets.FetchMarkup(ctx, name)
	if err != nil {
		return l.fail(name, StageMarkup, err)
	}
	if l.view != nil {
		l.view.Inject(name, markup)
	}

	l.stats[name].code.Inc()
	code, err := l.assets.FetchCode(ctx, name)
	if err != nil {
		return l.fail(name, StageCode, err)
	}

	if err := l.runtime.Execute(ctx, name, code, l); err != nil {
		// drop anything the unit registered before it failed
		l.mu.Lock()
		l.records[name] = record{}
		l.mu.Unlock()
		return l.fail(name, StageExecute, err)
	}

	// read init now, not before Execute: Register may have landed during it
	l.mu.Lock()
	r := &l.records[name]
	r.loaded = true
	init := r.init
	r.pending = init == nil
	l.mu.Unlock()

	logger.Info("module loaded", zap.Bool("registered", init != nil))
	return l.runInit(ctx, name, init)
}

func (l *Loader) fail(name Name, stage Stage, err error) error {
	if transport.IsCanceled(err) || errors.Is(err, context.Canceled) {
		return err
	}

	l.stats[name].failures.Inc()
	lErr := &LoadError{Module: name, Stage: stage, Err: err}
	l.logger.Warn("module load failed",
		zap.String("module", name.String()),
		zap.String("stage", stage.String()),
		zap.Error(err),
	)

	if l.view != nil {
		l.view.ShowLoadFailure(name, lErr)
	}
	if l.notifier != nil {
		l.notifier.Notify(NoticeError, fmt.Sprintf("Failed to load %s module", name))
	}
	return lErr
}

// runInit invokes init, converting a panic into an error
func (l *Loader) runInit(ctx context.Context, name Name, init InitFunc) (err error) {
	if init == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s init panicked: %v", name, r)
			l.logger.Error("module init panicked", zap.String("module", name.String()), zap.Any("panic", r))
		}
	}()

	l.stats[name].inits.Inc()
	return init(ctx)
}
