package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/muurk/esp32ctl/internal/modules"
	"github.com/muurk/esp32ctl/internal/tabs"
)

// device serves the status endpoint, the actuators module assets and
// whatever extra routes a test adds.
type device struct {
	mu     sync.Mutex
	routes map[string]func(w http.ResponseWriter)
	hits   map[string]int
}

func newDevice(t *testing.T) (*device, string) {
	t.Helper()
	d := &device{
		routes: map[string]func(w http.ResponseWriter){
			"/api/status":          text(`{"heap_free":1000,"uptime_ms":5000,"wifi_status":3,"modbus_ready":true}`),
			"/api/actuator/status": text(`{"actuators":[],"count":0}`),
			"/tabs/actuators.html": text(`<div><h2>Actuators</h2></div>`),
			"/tabs/actuators.js":   text(`init()`),
		},
		hits: make(map[string]int),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.hits[r.URL.Path]++
		h, ok := d.routes[r.URL.Path]
		d.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w)
	}))
	t.Cleanup(server.Close)
	return d, server.URL
}

func text(body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) { w.Write([]byte(body)) }
}

func (d *device) count(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hits[path]
}

func (d *device) route(path string, h func(w http.ResponseWriter)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes[path] = h
}

func newSession(t *testing.T, url string) (*Session, chan Notice) {
	t.Helper()
	s, err := New(Config{
		BaseURL: url,
		Clock:   clockwork.NewFakeClock(),
		Logger:  zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	notices := make(chan Notice, 16)
	s.Subscribe(func(n Notice) { notices <- n })
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s, notices
}

func expectNotice(t *testing.T, notices chan Notice, level modules.NoticeLevel, want string) {
	t.Helper()
	select {
	case n := <-notices:
		if n.Level != level || n.Message != want {
			t.Fatalf("notice = %s %q, want %s %q", n.Level, n.Message, level, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for notice %q", want)
	}
}

func expectNoNotice(t *testing.T, notices chan Notice) {
	t.Helper()
	select {
	case n := <-notices:
		t.Fatalf("unexpected notice %s %q", n.Level, n.Message)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNew_InvalidURL(t *testing.T) {
	if _, err := New(Config{BaseURL: "://bad"}); err == nil {
		t.Error("New() error = nil, want error")
	}
}

func TestSwitchTab_LoadsOnceAndPolls(t *testing.T) {
	d, url := newDevice(t)
	s, notices := newSession(t, url)
	ctx := context.Background()

	if s.Active() != modules.Actuators {
		t.Errorf("Active() = %s, want %s", s.Active(), modules.Actuators)
	}

	for i := 0; i < 2; i++ {
		if err := s.SwitchTab(ctx, modules.Actuators); err != nil {
			t.Fatalf("SwitchTab() #%d error = %v", i, err)
		}
	}

	if got := d.count("/tabs/actuators.js"); got != 1 {
		t.Errorf("code fetched %d times, want 1", got)
	}
	if got := d.count("/api/actuator/status"); got != 2 {
		t.Errorf("init ran %d times, want 2", got)
	}
	if got := d.count("/api/status"); got != 2 {
		t.Errorf("status polled %d times, want 2", got)
	}
	if res, ok := s.Poller().Last(); !ok || res.Status == nil {
		t.Errorf("Poller().Last() = %+v, %v, want a status", res, ok)
	}
	if view := s.Tabs().Tab(modules.Actuators).View(80); !strings.Contains(view, "Actuators") {
		t.Errorf("actuators view missing title:\n%s", view)
	}
	expectNoNotice(t, notices)
}

func TestSwitchTab_MissingModule(t *testing.T) {
	_, url := newDevice(t)
	s, notices := newSession(t, url)

	err := s.SwitchTab(context.Background(), modules.Files)
	if !modules.IsLoadError(err) {
		t.Fatalf("SwitchTab() error = %v, want load error", err)
	}
	if s.Active() != modules.Files {
		t.Errorf("Active() = %s, want %s", s.Active(), modules.Files)
	}
	if s.Tabs().Failure(modules.Files) == nil {
		t.Error("Failure(files) = nil, want load failure")
	}
	expectNotice(t, notices, modules.NoticeError, "Failed to load files module")

	// asset misses are not connection failures
	if !s.Monitor().State().Connected {
		t.Errorf("State() = %+v, want connected", s.Monitor().State())
	}
}

func TestRun_Notices(t *testing.T) {
	d, url := newDevice(t)
	s, notices := newSession(t, url)
	ctx := context.Background()

	s.Run(ctx, func(context.Context) (string, error) { return "Config saved", nil })
	expectNotice(t, notices, modules.NoticeSuccess, "Config saved")

	s.Run(ctx, func(context.Context) (string, error) { return "", nil })
	s.Run(ctx, func(context.Context) (string, error) { return "", context.Canceled })
	s.Run(ctx, nil)
	expectNoNotice(t, notices)

	d.route("/api/actuator/remove", text(`{"success":false,"message":"not found"}`))
	s.Run(ctx, func(ctx context.Context) (string, error) {
		return "", s.API().RemoveActuator(ctx, 7)
	})
	select {
	case n := <-notices:
		if n.Level != modules.NoticeError || !strings.Contains(n.Message, "not found") {
			t.Errorf("notice = %s %q, want error mentioning the device message", n.Level, n.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for application error notice")
	}
	if !s.Monitor().State().Connected {
		t.Errorf("application failure disconnected the session: %+v", s.Monitor().State())
	}
}

func TestRun_TransportFailureAnnouncedOnce(t *testing.T) {
	d, url := newDevice(t)
	s, notices := newSession(t, url)
	ctx := context.Background()

	d.route("/api/status", func(w http.ResponseWriter) { w.WriteHeader(http.StatusServiceUnavailable) })
	d.route("/api/actuator/remove", func(w http.ResponseWriter) { w.WriteHeader(http.StatusBadGateway) })

	fail := func(ctx context.Context) (string, error) {
		return "", s.API().RemoveActuator(ctx, 3)
	}
	s.Run(ctx, fail)
	expectNotice(t, notices, modules.NoticeError, CommunicationErrorMessage)

	s.Run(ctx, fail)
	expectNoNotice(t, notices)

	if s.Monitor().State().Connected {
		t.Errorf("State() = %+v, want disconnected", s.Monitor().State())
	}
}

func TestRefresh(t *testing.T) {
	d, url := newDevice(t)
	s, _ := newSession(t, url)
	ctx := context.Background()

	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() before load error = %v", err)
	}
	if got := d.count("/api/actuator/status"); got != 0 {
		t.Errorf("Refresh() before load ran init %d times, want 0", got)
	}

	if err := s.SwitchTab(ctx, modules.Actuators); err != nil {
		t.Fatalf("SwitchTab() error = %v", err)
	}
	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := d.count("/api/actuator/status"); got != 2 {
		t.Errorf("init ran %d times, want 2", got)
	}
}

func TestStartStop(t *testing.T) {
	_, url := newDevice(t)
	s, _ := newSession(t, url)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Error("second Start() error = nil, want error")
	}
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestTabsShareSessionAPI(t *testing.T) {
	_, url := newDevice(t)
	s, _ := newSession(t, url)

	led, ok := s.Tabs().Tab(modules.LEDModbus).(*tabs.LEDModbus)
	if !ok {
		t.Fatalf("LED tab has type %T", s.Tabs().Tab(modules.LEDModbus))
	}
	if led.SlaveID() != tabs.DefaultLEDSlaveID {
		t.Errorf("SlaveID() = %d, want %d", led.SlaveID(), tabs.DefaultLEDSlaveID)
	}
}
