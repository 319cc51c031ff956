package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/muurk/esp32ctl/internal/connection"
	"github.com/muurk/esp32ctl/internal/modules"
	"github.com/muurk/esp32ctl/internal/transport"
)

func TestRenderBanner(t *testing.T) {
	tests := []struct {
		banner connection.Banner
		want   string
	}{
		{connection.Banner{Kind: connection.BannerHidden}, ""},
		{connection.Banner{Kind: connection.BannerWarning, Attempt: 3}, "Reconnecting... (attempt 3)"},
		{connection.Banner{Kind: connection.BannerError}, "Connection lost"},
		{connection.Banner{Kind: connection.BannerRestored}, "Connection restored"},
	}

	for _, tt := range tests {
		t.Run(tt.banner.String(), func(t *testing.T) {
			got := RenderBanner(tt.banner, 80)
			if tt.want == "" {
				if got != "" {
					t.Errorf("RenderBanner() = %q, want empty", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("RenderBanner() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestRenderTabBar(t *testing.T) {
	bar := RenderTabBar(modules.Tasks)
	for i, name := range modules.Names() {
		label := string(rune('1'+i)) + " " + name.Title()
		if !strings.Contains(bar, label) {
			t.Errorf("tab bar missing %q: %q", label, bar)
		}
	}
}

func TestTroubleshooting(t *testing.T) {
	if got := Troubleshooting(nil); got != nil {
		t.Errorf("Troubleshooting(nil) = %v, want nil", got)
	}

	timeout := &transport.Error{Kind: transport.KindTimeout}
	tips := Troubleshooting(timeout)
	if len(tips) == 0 {
		t.Fatal("Troubleshooting(timeout) returned no tips")
	}
	for _, tip := range tips {
		if strings.HasPrefix(tip, "•") {
			t.Errorf("tip %q should not keep its bullet", tip)
		}
	}
}

func TestResult_Failure(t *testing.T) {
	err := &transport.ApplicationError{Op: "POST /api/ledmodbus/control", Message: "Modbus not initialized"}
	out := NewErrorResult("LED command", err).SetWidth(80).Render()

	for _, want := range []string{"FAILED", "LED command", "Modbus not initialized"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q:\n%s", want, out)
		}
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"yes\n", true},
		{"YES\n", true},
		{"y\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			got := ConfirmRestart(strings.NewReader(tt.input), &out, "192.168.4.1")
			if got != tt.want {
				t.Errorf("ConfirmRestart(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "192.168.4.1") {
				t.Errorf("prompt should name the device: %q", out.String())
			}
		})
	}
}

func TestRunner(t *testing.T) {
	var out bytes.Buffer
	r := NewRunner(RunnerConfig{
		Title:     "Device Discovery",
		Command:   "esp32ctl scan",
		StepNames: []string{"Browse mDNS", "Verify candidates"},
		Output:    &out,
	})

	details, err := r.Run(context.Background(), func(ctx context.Context, onStep StepCallback) (map[string]string, error) {
		onStep(1, "", StepRunning, "")
		onStep(1, "", StepComplete, "2 found")
		onStep(2, "", StepComplete, "1 verified")
		return map[string]string{"Devices": "1"}, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if details["Duration"] == "" {
		t.Error("Run() should add a Duration detail")
	}
	for _, want := range []string{"DEVICE DISCOVERY", "2 found", "1 verified", "SUCCESS"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q", want)
		}
	}

	out.Reset()
	wantErr := errors.New("boom")
	if _, err := r.Run(context.Background(), func(ctx context.Context, onStep StepCallback) (map[string]string, error) {
		return nil, wantErr
	}); !errors.Is(err, wantErr) {
		t.Errorf("Run() error = %v, want %v", err, wantErr)
	}
	if !strings.Contains(out.String(), "FAILED") {
		t.Error("failed run should render a failure box")
	}
}
