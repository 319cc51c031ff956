package tabs

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"

	"github.com/muurk/esp32ctl/internal/deviceapi"
	"github.com/muurk/esp32ctl/internal/modules"
	"github.com/muurk/esp32ctl/internal/ui"
)

// System shows device health and can restart the device
type System struct {
	base
	api              *deviceapi.Client
	refreshKey       key.Binding
	restartKey       key.Binding
	status           *deviceapi.Status
	restartRequested bool
}

// NewSystem creates the system tab
func NewSystem(api *deviceapi.Client, clock clockwork.Clock) *System {
	return &System{
		base:       newBase(modules.System, clock),
		api:        api,
		refreshKey: binding("r", "refresh", "r"),
		restartKey: binding("R", "restart device", "R"),
	}
}

// Init reads /api/status
func (t *System) Init(ctx context.Context) error {
	s, err := t.api.Status(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordLocked(err)
	if err == nil {
		t.status = s
		t.restartRequested = false
	}
	return err
}

func (t *System) Keys() []key.Binding {
	return []key.Binding{t.refreshKey, t.restartKey}
}

func (t *System) Handle(msg tea.KeyMsg) Action {
	switch {
	case key.Matches(msg, t.refreshKey):
		return func(ctx context.Context) (string, error) {
			return "", t.Init(ctx)
		}
	case key.Matches(msg, t.restartKey):
		return t.restart
	}
	return nil
}

// Confirm asks before restarting
func (t *System) Confirm(msg tea.KeyMsg) string {
	if key.Matches(msg, t.restartKey) {
		return "Restart the device?"
	}
	return ""
}

// restart asks the device to reboot. The device drops the connection
// while it restarts, which the connection banner reports.
func (t *System) restart(ctx context.Context) (string, error) {
	if err := t.api.Restart(ctx); err != nil {
		return "", err
	}
	t.mu.Lock()
	t.restartRequested = true
	t.mu.Unlock()
	return "Restarting...", nil
}

func (t *System) View(width int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	b.WriteString(t.headerLocked())

	if t.restartRequested {
		b.WriteString(ui.WarningTitleStyle.Render("Restart requested"))
		b.WriteString("\n\n")
	}

	s := t.status
	if s == nil {
		b.WriteString(ui.MutedStyle.Render("Loading..."))
		return b.String()
	}

	rssi := "--"
	if s.WiFiRSSI != 0 {
		rssi = fmt.Sprintf("%d dBm (%s)", s.WiFiRSSI, deviceapi.SignalQuality(s.WiFiRSSI))
	}
	rows := [][2]string{
		{"IP", orDash(s.WiFiIP)},
		{"SSID", orDash(s.WiFiSSID)},
		{"Signal", rssi},
		{"Uptime", deviceapi.FormatUptime(s.Uptime())},
		{"Free heap", deviceapi.FormatBytes(s.HeapFree)},
		{"Modbus", ui.Badge(readiness(s.ModbusReady), s.ModbusReady)},
	}
	for _, r := range rows {
		b.WriteString(ui.ResultKeyStyle.Render(r[0]+":") + " " + r[1] + "\n")
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "--"
	}
	return s
}

func readiness(ok bool) string {
	if ok {
		return "ready"
	}
	return "not ready"
}
