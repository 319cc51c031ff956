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

const (
	// DefaultLEDSlaveID is the Modbus address of a factory-fresh controller
	DefaultLEDSlaveID = 10

	// PeriodStep is how much +/- change the blink period, in ms
	PeriodStep = 100
)

type ledKeys struct {
	refresh, on, off, blink, faster, slower, save key.Binding
}

// LEDModbus controls the LED controller on the Modbus bus
type LEDModbus struct {
	base
	api     *deviceapi.Client
	keys    ledKeys
	slaveID int
	status  *deviceapi.LEDStatus
}

// NewLEDModbus creates the LED tab for the controller at slaveID. Zero
// selects DefaultLEDSlaveID.
func NewLEDModbus(api *deviceapi.Client, slaveID int, clock clockwork.Clock) *LEDModbus {
	if slaveID == 0 {
		slaveID = DefaultLEDSlaveID
	}
	return &LEDModbus{
		base:    newBase(modules.LEDModbus, clock),
		api:     api,
		slaveID: slaveID,
		keys: ledKeys{
			refresh: binding("r", "refresh", "r"),
			on:      binding("o", "led on", "o"),
			off:     binding("f", "led off", "f"),
			blink:   binding("b", "toggle blink", "b"),
			faster:  binding("-", "shorter period", "-"),
			slower:  binding("+", "longer period", "+", "="),
			save:    binding("S", "save config", "S"),
		},
	}
}

// SlaveID returns the controller address
func (t *LEDModbus) SlaveID() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.slaveID
}

// Init reads the controller state
func (t *LEDModbus) Init(ctx context.Context) error {
	id := t.SlaveID()
	s, err := t.api.LEDStatus(ctx, id)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordLocked(err)
	if err == nil && id == t.slaveID {
		t.status = s
	}
	return err
}

func (t *LEDModbus) Keys() []key.Binding {
	k := t.keys
	return []key.Binding{k.refresh, k.on, k.off, k.blink, k.faster, k.slower, k.save}
}

func (t *LEDModbus) Handle(msg tea.KeyMsg) Action {
	switch {
	case key.Matches(msg, t.keys.refresh):
		return func(ctx context.Context) (string, error) {
			return "", t.Init(ctx)
		}
	case key.Matches(msg, t.keys.on):
		return t.setLED(true)
	case key.Matches(msg, t.keys.off):
		return t.setLED(false)
	case key.Matches(msg, t.keys.blink):
		return t.toggleBlink
	case key.Matches(msg, t.keys.faster):
		return t.adjustPeriod(-PeriodStep)
	case key.Matches(msg, t.keys.slower):
		return t.adjustPeriod(PeriodStep)
	case key.Matches(msg, t.keys.save):
		return t.saveConfig
	}
	return nil
}

func (t *LEDModbus) setLED(on bool) Action {
	return func(ctx context.Context) (string, error) {
		if err := t.api.ControlLED(ctx, deviceapi.LEDCommand{SlaveID: t.SlaveID(), LEDOn: &on}); err != nil {
			return "", err
		}
		_ = t.Init(ctx)
		if on {
			return "LED ON", nil
		}
		return "LED OFF", nil
	}
}

func (t *LEDModbus) toggleBlink(ctx context.Context) (string, error) {
	t.mu.RLock()
	blink := t.status == nil || !t.status.BlinkMode
	t.mu.RUnlock()

	if err := t.api.ControlLED(ctx, deviceapi.LEDCommand{SlaveID: t.SlaveID(), BlinkMode: &blink}); err != nil {
		return "", err
	}
	_ = t.Init(ctx)
	if blink {
		return "Blink enabled", nil
	}
	return "Blink disabled", nil
}

func (t *LEDModbus) adjustPeriod(delta int) Action {
	return func(ctx context.Context) (string, error) {
		t.mu.RLock()
		if t.status == nil {
			t.mu.RUnlock()
			return "", noticeError("LED controller state unknown")
		}
		period := t.status.BlinkPeriod + delta
		t.mu.RUnlock()

		period = max(deviceapi.MinBlinkPeriod, min(period, deviceapi.MaxBlinkPeriod))
		if err := t.api.ControlLED(ctx, deviceapi.LEDCommand{SlaveID: t.SlaveID(), BlinkPeriod: &period}); err != nil {
			return "", err
		}
		_ = t.Init(ctx)
		return fmt.Sprintf("Period set to %dms", period), nil
	}
}

func (t *LEDModbus) saveConfig(ctx context.Context) (string, error) {
	if err := t.api.ConfigureLED(ctx, deviceapi.LEDConfig{SlaveID: t.SlaveID(), SaveConfig: true}); err != nil {
		return "", err
	}
	return "Config saved", nil
}

func (t *LEDModbus) View(width int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	b.WriteString(t.headerLocked())

	if t.status == nil {
		b.WriteString(ui.MutedStyle.Render(fmt.Sprintf("Reading controller %d...", t.slaveID)))
		return b.String()
	}

	b.WriteString(ui.Badge("controller", t.status.Online()))
	b.WriteString("\n")
	b.WriteString(t.status.FormatLED(t.slaveID))
	if t.status.Online() {
		b.WriteString(deviceapi.FormatBar(float64(t.status.BlinkPeriod)*100/deviceapi.MaxBlinkPeriod, 30))
		b.WriteString(ui.MutedStyle.Render(fmt.Sprintf("  period %d ms", t.status.BlinkPeriod)))
		b.WriteString("\n")
	}
	return b.String()
}
