package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/muurk/esp32ctl/internal/transport"
)

// scriptedProber hands every probe to the test, which decides its outcome
type scriptedProber struct {
	calls chan chan error
}

func newScriptedProber() *scriptedProber {
	return &scriptedProber{calls: make(chan chan error, 16)}
}

func (p *scriptedProber) Probe(ctx context.Context) error {
	reply := make(chan error, 1)
	p.calls <- reply
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// next waits for the next probe and answers it with err
func (p *scriptedProber) answer(t *testing.T, err error) {
	t.Helper()
	select {
	case reply := <-p.calls:
		reply <- err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a probe")
	}
}

func (p *scriptedProber) expectNoProbe(t *testing.T) {
	t.Helper()
	select {
	case <-p.calls:
		t.Fatal("unexpected probe")
	case <-time.After(50 * time.Millisecond):
	}
}

type harness struct {
	monitor   *Monitor
	clock     clockwork.FakeClock
	prober    *scriptedProber
	snapshots chan Snapshot
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:     clockwork.NewFakeClock(),
		prober:    newScriptedProber(),
		snapshots: make(chan Snapshot, 64),
	}
	h.monitor = NewMonitor(h.prober,
		WithClock(h.clock),
		WithLogger(zap.NewNop()),
	)
	cancel := h.monitor.Subscribe(func(s Snapshot) { h.snapshots <- s })
	t.Cleanup(func() {
		cancel()
		h.monitor.Close()
	})
	return h
}

func (h *harness) expectBanner(t *testing.T, want string) Snapshot {
	t.Helper()
	select {
	case s := <-h.snapshots:
		if s.Banner.String() != want {
			t.Fatalf("banner = %s, want %s (state %+v)", s.Banner, want, s.State)
		}
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for banner %s", want)
	}
	return Snapshot{}
}

func TestMonitor_InitialState(t *testing.T) {
	h := newHarness(t)

	s := h.monitor.State()
	if !s.Connected || s.Reconnecting || s.RetryCount != 0 || !s.LastSuccessfulPing.IsZero() {
		t.Errorf("initial state = %+v", s)
	}
	if h.monitor.Banner().Visible() {
		t.Errorf("initial banner = %s, want hidden", h.monitor.Banner())
	}
}

func TestMonitor_ReconnectAfterTwoFailedProbes(t *testing.T) {
	h := newHarness(t)
	down := errors.New("connection refused")

	h.monitor.RecordFailure()
	s := h.expectBanner(t, "warning(1)")
	if s.State.Connected || s.State.RetryCount != 1 {
		t.Errorf("after failure state = %+v", s.State)
	}

	h.prober.answer(t, down)
	h.clock.BlockUntil(1)
	h.clock.Advance(999 * time.Millisecond)
	h.prober.expectNoProbe(t)
	h.clock.Advance(1 * time.Millisecond)
	s = h.expectBanner(t, "warning(2)")
	if s.State.Connected || s.State.RetryCount != 2 {
		t.Errorf("second attempt state = %+v", s.State)
	}

	h.prober.answer(t, down)
	h.clock.BlockUntil(1)
	h.clock.Advance(1500 * time.Millisecond)
	s = h.expectBanner(t, "warning(3)")
	if s.State.Connected || s.State.RetryCount != 3 {
		t.Errorf("third attempt state = %+v", s.State)
	}

	h.prober.answer(t, nil)
	s = h.expectBanner(t, "success-transient")
	if !s.State.Connected || s.State.Reconnecting || s.State.RetryCount != 0 {
		t.Errorf("restored state = %+v", s.State)
	}
	if s.State.LastSuccessfulPing.IsZero() {
		t.Error("LastSuccessfulPing should be set after success")
	}

	h.clock.BlockUntil(1)
	h.clock.Advance(DefaultRestoreWindow)
	h.expectBanner(t, "hidden")

	if got := h.monitor.Chains(); got != 1 {
		t.Errorf("Chains() = %d, want 1", got)
	}
	if got := h.monitor.Probes(); got != 3 {
		t.Errorf("Probes() = %d, want 3", got)
	}
}

func TestMonitor_StartReconnectionIsIdempotent(t *testing.T) {
	h := newHarness(t)

	h.monitor.StartReconnection()
	h.monitor.StartReconnection()
	h.monitor.RecordFailure()
	h.expectBanner(t, "warning(1)")

	h.prober.answer(t, errors.New("down"))
	h.prober.expectNoProbe(t)

	if got := h.monitor.Chains(); got != 1 {
		t.Errorf("Chains() = %d, want 1", got)
	}
	if got := h.monitor.Probes(); got != 1 {
		t.Errorf("Probes() = %d, want 1", got)
	}
}

func TestMonitor_ConcurrentFailuresStartOneChain(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.monitor.RecordFailure()
		}()
	}
	wg.Wait()

	h.expectBanner(t, "warning(1)")
	h.prober.answer(t, errors.New("down"))
	h.prober.expectNoProbe(t)

	if got := h.monitor.Chains(); got != 1 {
		t.Errorf("Chains() = %d, want 1", got)
	}
}

func TestMonitor_SuccessFromAnotherCallEndsLoop(t *testing.T) {
	h := newHarness(t)

	h.monitor.RecordFailure()
	h.expectBanner(t, "warning(1)")

	h.monitor.RecordSuccess()
	h.expectBanner(t, "success-transient")

	// the in-flight probe result belongs to a finished chain
	h.prober.answer(t, errors.New("down"))
	h.prober.expectNoProbe(t)
	h.clock.Advance(MaxRetryDelay)
	h.prober.expectNoProbe(t)

	if s := h.monitor.State(); !s.Connected || s.Reconnecting {
		t.Errorf("state = %+v, want connected", s)
	}
}

func TestMonitor_StopReconnection(t *testing.T) {
	h := newHarness(t)

	h.monitor.RecordFailure()
	h.expectBanner(t, "warning(1)")
	h.prober.answer(t, errors.New("down"))
	h.clock.BlockUntil(1)

	h.monitor.StopReconnection()
	h.expectBanner(t, "error")

	h.clock.Advance(MaxRetryDelay)
	h.prober.expectNoProbe(t)

	// failures while halted do not restart the loop
	h.monitor.RecordFailure()
	h.prober.expectNoProbe(t)

	h.monitor.RecordSuccess()
	h.expectBanner(t, "hidden")
}

func TestMonitor_ProbePanicIsAFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	calls := make(chan struct{}, 4)
	m := NewMonitor(ProberFunc(func(ctx context.Context) error {
		calls <- struct{}{}
		panic("boom")
	}), WithClock(clock), WithLogger(zap.NewNop()))
	defer m.Close()

	m.RecordFailure()
	<-calls
	clock.BlockUntil(1)

	clock.Advance(InitialRetryDelay)
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("second probe was not issued after a panicking probe")
	}
	if got := m.State().RetryCount; got != 2 {
		t.Errorf("RetryCount = %d, want 2", got)
	}
}

func TestMonitor_ProbeTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	done := make(chan error, 1)
	m := NewMonitor(ProberFunc(func(ctx context.Context) error {
		<-ctx.Done()
		done <- ctx.Err()
		return ctx.Err()
	}), WithClock(clock), WithLogger(zap.NewNop()), WithProbeTimeout(20*time.Millisecond))
	defer m.Close()

	m.RecordFailure()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("probe context error = %v, want deadline exceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("probe was not bounded by the probe timeout")
	}
	clock.BlockUntil(1)
}

func TestMonitor_ObserveTransport(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantConnected bool
	}{
		{"success", nil, true},
		{"application failure", &transport.ApplicationError{Message: "Modbus not initialized"}, true},
		{"canceled", &transport.Error{Kind: transport.KindCanceled}, true},
		{"network failure", &transport.Error{Kind: transport.KindNetwork}, false},
		{"timeout", &transport.Error{Kind: transport.KindTimeout}, false},
		{"server error", transport.NewStatusError("GET /api/status", 500, nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			h.monitor.ObserveTransport(tt.err)
			if got := h.monitor.State().Connected; got != tt.wantConnected {
				t.Errorf("Connected = %v, want %v", got, tt.wantConnected)
			}
		})
	}
}

func TestMonitor_CloseStopsLoop(t *testing.T) {
	h := newHarness(t)

	h.monitor.RecordFailure()
	h.expectBanner(t, "warning(1)")

	// Close cancels the in-flight probe and waits for it
	h.monitor.Close()
	h.monitor.RecordSuccess()
	if s := h.monitor.State(); s.Connected {
		t.Errorf("closed monitor accepted an event: %+v", s)
	}
}
