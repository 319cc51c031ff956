package tabs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"

	"github.com/muurk/esp32ctl/internal/deviceapi"
	"github.com/muurk/esp32ctl/internal/modules"
	"github.com/muurk/esp32ctl/internal/ui"
)

// Motion defaults for keyboard jogging
const (
	JogStep        = 100
	DefaultSpeed   = 500
	DefaultCurrent = 800

	actuatorRefresh = 3 * time.Second
)

type actuatorKeys struct {
	refresh, scan, up, down, forceOn, forceOff, remove, back, forward key.Binding
}

// Actuators lists the actuators on the bus and drives the selected one
type Actuators struct {
	base
	api  *deviceapi.Client
	keys actuatorKeys

	list     *deviceapi.ActuatorList
	selected int
}

// NewActuators creates the actuators tab
func NewActuators(api *deviceapi.Client, clock clockwork.Clock) *Actuators {
	return &Actuators{
		base: newBase(modules.Actuators, clock),
		api:  api,
		keys: actuatorKeys{
			refresh:  binding("r", "refresh", "r"),
			scan:     binding("s", "scan bus", "s"),
			up:       binding("↑/k", "select", "up", "k"),
			down:     binding("↓/j", "select", "down", "j"),
			forceOn:  binding("f", "force on", "f"),
			forceOff: binding("F", "force off", "F"),
			remove:   binding("x", "remove", "x"),
			back:     binding("[", "retract", "["),
			forward:  binding("]", "extend", "]"),
		},
	}
}

// Init refreshes the actuator list
func (t *Actuators) Init(ctx context.Context) error {
	list, err := t.api.Actuators(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordLocked(err)
	if err != nil {
		return err
	}
	t.list = list
	if t.selected >= len(list.Actuators) {
		t.selected = max(0, len(list.Actuators)-1)
	}
	return nil
}

// RefreshInterval keeps live positions current without flooding the bus
func (t *Actuators) RefreshInterval() time.Duration {
	return actuatorRefresh
}

func (t *Actuators) Keys() []key.Binding {
	k := t.keys
	return []key.Binding{k.refresh, k.scan, k.up, k.down, k.forceOn, k.forceOff, k.remove, k.back, k.forward}
}

func (t *Actuators) Handle(msg tea.KeyMsg) Action {
	switch {
	case key.Matches(msg, t.keys.refresh):
		return t.refresh
	case key.Matches(msg, t.keys.scan):
		return t.scan
	case key.Matches(msg, t.keys.up):
		t.move(-1)
	case key.Matches(msg, t.keys.down):
		t.move(1)
	case key.Matches(msg, t.keys.forceOn):
		return t.force(true)
	case key.Matches(msg, t.keys.forceOff):
		return t.force(false)
	case key.Matches(msg, t.keys.remove):
		return t.remove
	case key.Matches(msg, t.keys.back):
		return t.jog(-JogStep)
	case key.Matches(msg, t.keys.forward):
		return t.jog(JogStep)
	}
	return nil
}

func (t *Actuators) move(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.list == nil || len(t.list.Actuators) == 0 {
		return
	}
	t.selected = max(0, min(t.selected+delta, len(t.list.Actuators)-1))
}

// current returns the selected actuator
func (t *Actuators) current() (deviceapi.Actuator, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.list == nil || t.selected >= len(t.list.Actuators) {
		return deviceapi.Actuator{}, false
	}
	return t.list.Actuators[t.selected], true
}

const errNoSelection = noticeError("No actuator selected")

func (t *Actuators) refresh(ctx context.Context) (string, error) {
	return "", t.Init(ctx)
}

func (t *Actuators) scan(ctx context.Context) (string, error) {
	res, err := t.api.ScanActuators(ctx)
	if err != nil {
		return "", err
	}
	if res.Count == 0 {
		return "", noticeError("No actuators found")
	}
	if err := t.Init(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("Found %d actuator(s)", res.Count), nil
}

func (t *Actuators) force(on bool) Action {
	return func(ctx context.Context) (string, error) {
		a, ok := t.current()
		if !ok {
			return "", errNoSelection
		}
		if err := t.api.SetForce(ctx, a.ID, on); err != nil {
			return "", err
		}
		if on {
			return "Force enabled", nil
		}
		return "Force disabled", nil
	}
}

// Confirm asks before removing the selected actuator
func (t *Actuators) Confirm(msg tea.KeyMsg) string {
	if !key.Matches(msg, t.keys.remove) {
		return ""
	}
	a, ok := t.current()
	if !ok {
		return ""
	}
	return fmt.Sprintf("Remove %s from the bus list?", a.Label())
}

func (t *Actuators) remove(ctx context.Context) (string, error) {
	a, ok := t.current()
	if !ok {
		return "", errNoSelection
	}
	if err := t.api.RemoveActuator(ctx, a.ID); err != nil {
		return "", err
	}
	_ = t.Init(ctx)
	return fmt.Sprintf("Actuator %d removed", a.ID), nil
}

func (t *Actuators) jog(delta int) Action {
	return func(ctx context.Context) (string, error) {
		a, ok := t.current()
		if !ok {
			return "", errNoSelection
		}
		if !a.Connected {
			return "", noticeError(a.Label() + " is disconnected")
		}
		pos := max(0, a.Position+delta)
		goal := deviceapi.Goal{Position: pos, Speed: DefaultSpeed, Current: DefaultCurrent}
		if err := t.api.MoveActuator(ctx, a.ID, goal); err != nil {
			return "", err
		}
		return fmt.Sprintf("Moving to %d", pos), nil
	}
}

func (t *Actuators) View(width int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	b.WriteString(t.headerLocked())

	if t.list == nil {
		b.WriteString(ui.MutedStyle.Render("Loading..."))
		return b.String()
	}
	if len(t.list.Actuators) == 0 {
		b.WriteString("No actuators\n")
		b.WriteString(ui.MutedStyle.Render("Press s to scan the bus"))
		return b.String()
	}

	for i, a := range t.list.Actuators {
		stats := "Disconnected"
		if a.Connected {
			stats = fmt.Sprintf("Pos: %d | %dmA | %.1fV", a.Position, a.Current, a.Voltage)
			if a.Moving {
				stats += " | moving"
			}
		}
		line := fmt.Sprintf("%3d  %-20s %s %s", a.ID, a.Label(), ui.Badge("", a.Connected), stats)
		b.WriteString(selectionLine(i == t.selected, line))
		b.WriteString("\n")
	}
	return b.String()
}
