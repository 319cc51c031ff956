package modules

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/esp32ctl/internal/transport"
)

// fakeAssets serves canned assets and counts fetches. When gate is set,
// markup fetches block until it is closed.
type fakeAssets struct {
	mu        sync.Mutex
	markup    map[Name]int
	code      map[Name]int
	markupErr error
	codeErr   error
	gate      chan struct{}
	started   chan struct{}
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{markup: map[Name]int{}, code: map[Name]int{}}
}

func (a *fakeAssets) FetchMarkup(ctx context.Context, name Name) ([]byte, error) {
	a.mu.Lock()
	a.markup[name]++
	gate, started, err := a.gate, a.started, a.markupErr
	a.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return []byte("<h2>" + name.Title() + "</h2>"), nil
}

func (a *fakeAssets) FetchCode(ctx context.Context, name Name) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.code[name]++
	if a.codeErr != nil {
		return nil, a.codeErr
	}
	return []byte("registerModule('" + name.String() + "', init);"), nil
}

func (a *fakeAssets) counts(name Name) (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.markup[name], a.code[name]
}

type fakeView struct {
	mu       sync.Mutex
	injected map[Name]string
	failures map[Name]error
}

func newFakeView() *fakeView {
	return &fakeView{injected: map[Name]string{}, failures: map[Name]error{}}
}

func (v *fakeView) Inject(name Name, markup []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.injected[name] = string(markup)
	delete(v.failures, name)
}

func (v *fakeView) ShowLoadFailure(name Name, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures[name] = err
}

func (v *fakeView) failure(name Name) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.failures[name]
}

type notices struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notices) Notify(level NoticeLevel, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, level.String()+": "+message)
}

func (n *notices) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

// initCounter returns a Feature that registers an init counting its calls
func initCounter(name Name, calls *int, mu *sync.Mutex) Feature {
	return func(ctx context.Context, reg Registrar) error {
		reg.Register(name, func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			*calls++
			return nil
		})
		return nil
	}
}

type loaderFixture struct {
	loader  *Loader
	assets  *fakeAssets
	runtime *BuiltinRuntime
	view    *fakeView
	notices *notices
}

func newFixture() *loaderFixture {
	f := &loaderFixture{
		assets:  newFakeAssets(),
		runtime: NewBuiltinRuntime(),
		view:    newFakeView(),
		notices: &notices{},
	}
	f.loader = NewLoader(f.assets, f.runtime,
		WithView(f.view),
		WithNotifier(f.notices),
		WithLogger(zap.NewNop()),
	)
	return f
}

func TestParseName(t *testing.T) {
	tests := []struct {
		in      string
		want    Name
		wantErr bool
	}{
		{"actuators", Actuators, false},
		{"System", System, false},
		{" ledmodbus ", LEDModbus, false},
		{"files", Files, false},
		{"wifi", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseName(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseName(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseName(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if len(Names()) != 6 {
		t.Errorf("Names() = %v, want 6 modules", Names())
	}
	if Name(42).Valid() {
		t.Error("Name(42) should be invalid")
	}
}

func TestActivate_LoadsOnceAndReinitializes(t *testing.T) {
	f := newFixture()
	var mu sync.Mutex
	calls := 0
	f.runtime.Provide(System, initCounter(System, &calls, &mu))
	ctx := context.Background()

	if err := f.loader.Activate(ctx, System); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if !f.loader.Loaded(System) {
		t.Fatal("module should be loaded")
	}
	if calls != 1 {
		t.Errorf("init calls after first activation = %d, want 1", calls)
	}
	if f.view.injected[System] != "<h2>System</h2>" {
		t.Errorf("injected markup = %q", f.view.injected[System])
	}

	if err := f.loader.Activate(ctx, System); err != nil {
		t.Fatalf("second Activate() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("init calls after second activation = %d, want 2", calls)
	}

	markup, code := f.assets.counts(System)
	if markup != 1 || code != 1 {
		t.Errorf("fetches = %d markup, %d code, want 1 and 1", markup, code)
	}
}

func TestActivate_ConcurrentCallsShareOneLoad(t *testing.T) {
	f := newFixture()
	f.assets.gate = make(chan struct{})
	f.assets.started = make(chan struct{}, 4)
	var mu sync.Mutex
	calls := 0
	f.runtime.Provide(Tasks, initCounter(Tasks, &calls, &mu))

	errs := make(chan error, 2)
	go func() { errs <- f.loader.Activate(context.Background(), Tasks) }()
	<-f.assets.started

	go func() { errs <- f.loader.Activate(context.Background(), Tasks) }()
	// give the second call time to join the flight
	time.Sleep(50 * time.Millisecond)
	close(f.assets.gate)

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Activate() error = %v", err)
		}
	}

	markup, code := f.assets.counts(Tasks)
	if markup != 1 || code != 1 {
		t.Errorf("fetches = %d markup, %d code, want 1 and 1", markup, code)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("init calls = %d, want 1", calls)
	}
}

func TestActivate_MarkupFailure(t *testing.T) {
	f := newFixture()
	f.assets.markupErr = transport.NewStatusError("GET /tabs/files.html", http.StatusNotFound, nil)
	var mu sync.Mutex
	calls := 0
	f.runtime.Provide(Files, initCounter(Files, &calls, &mu))
	ctx := context.Background()

	err := f.loader.Activate(ctx, Files)
	var lErr *LoadError
	if !errors.As(err, &lErr) || lErr.Stage != StageMarkup || lErr.Module != Files {
		t.Fatalf("Activate() error = %v, want markup LoadError", err)
	}

	if f.loader.Loaded(Files) {
		t.Error("module must stay unloaded after a failed load")
	}
	if f.view.failure(Files) == nil {
		t.Error("failure placeholder should be shown")
	}
	if _, code := f.assets.counts(Files); code != 0 {
		t.Errorf("code fetches = %d, want 0", code)
	}
	if got := f.notices.all(); len(got) != 1 || got[0] != "error: Failed to load files module" {
		t.Errorf("notices = %v", got)
	}

	// retry succeeds once the markup is served
	f.assets.mu.Lock()
	f.assets.markupErr = nil
	f.assets.mu.Unlock()

	if err := f.loader.Activate(ctx, Files); err != nil {
		t.Fatalf("retry Activate() error = %v", err)
	}
	if markup, _ := f.assets.counts(Files); markup != 2 {
		t.Errorf("markup fetches = %d, want 2", markup)
	}
	if !f.loader.Loaded(Files) || calls != 1 {
		t.Errorf("after retry loaded = %v, init calls = %d", f.loader.Loaded(Files), calls)
	}
}

func TestActivate_CodeAndExecuteFailures(t *testing.T) {
	t.Run("code fetch", func(t *testing.T) {
		f := newFixture()
		f.assets.codeErr = &transport.Error{Kind: transport.KindTimeout}
		f.runtime.Provide(Config, func(ctx context.Context, reg Registrar) error { return nil })

		err := f.loader.Activate(context.Background(), Config)
		var lErr *LoadError
		if !errors.As(err, &lErr) || lErr.Stage != StageCode {
			t.Fatalf("Activate() error = %v, want code LoadError", err)
		}
		if f.loader.Loaded(Config) || f.view.failure(Config) == nil {
			t.Error("failed code fetch should leave module unloaded with a placeholder")
		}
	})

	t.Run("no implementation", func(t *testing.T) {
		f := newFixture()

		err := f.loader.Activate(context.Background(), LEDModbus)
		var lErr *LoadError
		if !errors.As(err, &lErr) || lErr.Stage != StageExecute {
			t.Fatalf("Activate() error = %v, want execute LoadError", err)
		}
	})

	t.Run("registers then fails", func(t *testing.T) {
		f := newFixture()
		var mu sync.Mutex
		inits, runs := 0, 0
		f.runtime.Provide(Files, func(ctx context.Context, reg Registrar) error {
			reg.Register(Files, func(ctx context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				inits++
				return nil
			})
			mu.Lock()
			defer mu.Unlock()
			runs++
			if runs == 1 {
				return errors.New("unit failed after registering")
			}
			return nil
		})

		err := f.loader.Activate(context.Background(), Files)
		var lErr *LoadError
		if !errors.As(err, &lErr) || lErr.Stage != StageExecute {
			t.Fatalf("Activate() error = %v, want execute LoadError", err)
		}
		if f.loader.Loaded(Files) {
			t.Error("Loaded(files) = true after execute failure, want false")
		}
		if f.view.failure(Files) == nil {
			t.Error("expected failure placeholder")
		}

		if err := f.loader.Activate(context.Background(), Files); err != nil {
			t.Fatalf("second Activate() error = %v", err)
		}
		if markup, code := f.assets.counts(Files); markup != 2 || code != 2 {
			t.Errorf("fetches = %d markup, %d code, want 2 and 2", markup, code)
		}
		mu.Lock()
		defer mu.Unlock()
		if inits != 1 {
			t.Errorf("init ran %d times, want 1", inits)
		}
	})

	t.Run("panicking code unit", func(t *testing.T) {
		f := newFixture()
		f.runtime.Provide(Actuators, func(ctx context.Context, reg Registrar) error { panic("bad unit") })

		if err := f.loader.Activate(context.Background(), Actuators); !IsLoadError(err) {
			t.Fatalf("Activate() error = %v, want LoadError", err)
		}
		if f.loader.Loaded(Actuators) {
			t.Error("module must stay unloaded")
		}
	})
}

func TestActivate_CanceledLoadShowsNoPlaceholder(t *testing.T) {
	f := newFixture()
	f.assets.markupErr = &transport.Error{Kind: transport.KindCanceled, Err: context.Canceled}

	err := f.loader.Activate(context.Background(), System)
	if IsLoadError(err) {
		t.Fatalf("Activate() error = %v, canceled loads are not load failures", err)
	}
	if f.view.failure(System) != nil || len(f.notices.all()) != 0 {
		t.Error("canceled load should not be reported to the user")
	}
}

func TestRegister_AfterLoadCompletion(t *testing.T) {
	f := newFixture()
	var late Registrar
	f.runtime.Provide(Tasks, func(ctx context.Context, reg Registrar) error {
		late = reg // registers after the code unit finished
		return nil
	})

	if err := f.loader.Activate(context.Background(), Tasks); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if !f.loader.Loaded(Tasks) {
		t.Fatal("module should be loaded once its code unit ran")
	}

	calls := 0
	late.Register(Tasks, func(ctx context.Context) error {
		calls++
		return nil
	})
	if calls != 1 {
		t.Errorf("late Register init calls = %d, want 1", calls)
	}

	// a second registration is not a pending load
	late.Register(Tasks, func(ctx context.Context) error {
		calls++
		return nil
	})
	if calls != 1 {
		t.Errorf("init calls after re-registration = %d, want 1", calls)
	}
}

func TestActivate_InitErrorAndPanic(t *testing.T) {
	f := newFixture()
	boom := errors.New("refresh failed")
	f.runtime.Provide(System, func(ctx context.Context, reg Registrar) error {
		reg.Register(System, func(ctx context.Context) error { return boom })
		return nil
	})
	f.runtime.Provide(Files, func(ctx context.Context, reg Registrar) error {
		reg.Register(Files, func(ctx context.Context) error { panic("nil listing") })
		return nil
	})

	if err := f.loader.Activate(context.Background(), System); !errors.Is(err, boom) {
		t.Errorf("Activate() error = %v, want %v", err, boom)
	}
	if !f.loader.Loaded(System) {
		t.Error("init failure must not unload the module")
	}

	if err := f.loader.Activate(context.Background(), Files); err == nil {
		t.Error("Activate() should report a panicking init")
	}
}

func TestHTTPAssetHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tabs/system.html":
			w.Write([]byte("<h2>System</h2><button>Restart</button>"))
		case "/tabs/system.js":
			w.Write([]byte("registerModule('system', initSystem);"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client, err := transport.NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	host := NewHTTPAssetHost(client.Unobserved(), "")
	ctx := context.Background()

	markup, err := host.FetchMarkup(ctx, System)
	if err != nil {
		t.Fatalf("FetchMarkup() error = %v", err)
	}
	frag, err := ParseFragment(markup)
	if err != nil {
		t.Fatalf("ParseFragment() error = %v", err)
	}
	if frag.Title() != "System" || len(frag.Buttons) != 1 || frag.Buttons[0] != "Restart" {
		t.Errorf("fragment = %+v", frag)
	}

	if code, err := host.FetchCode(ctx, System); err != nil || len(code) == 0 {
		t.Errorf("FetchCode() = %q, %v", code, err)
	}

	if _, err := host.FetchMarkup(ctx, Files); !transport.IsTransportFailure(err) {
		t.Errorf("FetchMarkup(files) error = %v, want HTTP status failure", err)
	}
}

func TestBuiltinRuntime_EmptyCodeUnit(t *testing.T) {
	rt := NewBuiltinRuntime()
	rt.Provide(System, func(ctx context.Context, reg Registrar) error { return nil })

	if err := rt.Execute(context.Background(), System, []byte("  \n"), nil); err == nil {
		t.Error("Execute() with empty code unit should fail")
	}
}

func TestParseFragment(t *testing.T) {
	markup := []byte(`
		<div class="card">
			<h3>  WiFi
			Configuration </h3>
			<script>var x = "<h2>not a heading</h2>";</script>
			<button onclick="scan()">Scan</button>
		</div>
		<div class="card"><h3>RS485</h3></div>`)

	f, err := ParseFragment(markup)
	if err != nil {
		t.Fatalf("ParseFragment() error = %v", err)
	}
	if len(f.Headings) != 2 || f.Headings[0] != "WiFi Configuration" || f.Headings[1] != "RS485" {
		t.Errorf("Headings = %q", f.Headings)
	}
	if len(f.Buttons) != 1 || f.Buttons[0] != "Scan" {
		t.Errorf("Buttons = %q", f.Buttons)
	}

	if empty, _ := ParseFragment(nil); empty.Title() != "" {
		t.Errorf("Title() of empty fragment = %q", empty.Title())
	}
}
