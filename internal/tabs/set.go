package tabs

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/muurk/esp32ctl/internal/deviceapi"
	"github.com/muurk/esp32ctl/internal/logging"
	"github.com/muurk/esp32ctl/internal/modules"
)

// Options configures the tab set
type Options struct {
	LEDSlaveID int
	Clock      clockwork.Clock
	Logger     *zap.Logger
}

// Set holds one tab per module. It is the loader's view: injected markup
// is parsed into the tab's fragment and load failures are kept so the
// interface can show a placeholder instead of the tab.
type Set struct {
	tabs   map[modules.Name]Tab
	logger *zap.Logger

	mu       sync.RWMutex
	failures map[modules.Name]error
}

// NewSet creates every tab against api
func NewSet(api *deviceapi.Client, opts Options) *Set {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Named("tabs")
	}
	s := &Set{
		tabs:     make(map[modules.Name]Tab),
		logger:   logger,
		failures: make(map[modules.Name]error),
	}
	for _, t := range []Tab{
		NewActuators(api, opts.Clock),
		NewSystem(api, opts.Clock),
		NewTasks(api, opts.Clock),
		NewConfig(api, opts.Clock),
		NewFiles(api, opts.Clock),
		NewLEDModbus(api, opts.LEDSlaveID, opts.Clock),
	} {
		s.tabs[t.Name()] = t
	}
	return s
}

// Tab returns the tab for name
func (s *Set) Tab(name modules.Name) Tab {
	return s.tabs[name]
}

// Provide installs each tab as the native feature behind its module's
// code unit. Executing the code unit registers the tab's Init.
func (s *Set) Provide(rt *modules.BuiltinRuntime) {
	for name, t := range s.tabs {
		rt.Provide(name, func(ctx context.Context, reg modules.Registrar) error {
			reg.Register(name, t.Init)
			return nil
		})
	}
}

// Inject implements modules.View
func (s *Set) Inject(name modules.Name, markup []byte) {
	t, ok := s.tabs[name]
	if !ok {
		return
	}

	s.mu.Lock()
	delete(s.failures, name)
	s.mu.Unlock()

	f, err := modules.ParseFragment(markup)
	if err != nil {
		s.logger.Warn("unreadable module markup", zap.String("module", name.String()), zap.Error(err))
		return
	}
	t.SetFragment(f)
}

// ShowLoadFailure implements modules.View
func (s *Set) ShowLoadFailure(name modules.Name, err error) {
	s.mu.Lock()
	s.failures[name] = err
	s.mu.Unlock()
}

// Failure returns the load failure shown for name, if any
func (s *Set) Failure(name modules.Name) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures[name]
}
