package tabs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"

	"github.com/muurk/esp32ctl/internal/modules"
	"github.com/muurk/esp32ctl/internal/transport"
	"github.com/muurk/esp32ctl/internal/ui"
)

// Action is a device operation triggered by a key. It returns the text of a
// success notification, or an error for a failure notification.
type Action func(ctx context.Context) (notice string, err error)

// Tab is the native side of one feature module
type Tab interface {
	Name() modules.Name

	// Init refreshes the tab from the device. It is registered with the
	// loader and runs on every activation.
	Init(ctx context.Context) error

	// View renders the tab's content for the given width
	View(width int) string

	// Keys lists the tab-specific bindings for the help view
	Keys() []key.Binding

	// Handle maps a key press to an action. Local changes such as moving a
	// selection happen immediately and return nil.
	Handle(msg tea.KeyMsg) Action

	// SetFragment applies the parsed markup fragment of the module
	SetFragment(f modules.Fragment)
}

// Refresher is implemented by tabs that want periodic re-initialization
// while they are shown. A zero interval disables it.
type Refresher interface {
	RefreshInterval() time.Duration
}

// Confirmer is implemented by tabs with keys that must be confirmed before
// their action runs. Confirm returns the question to ask, or "" when msg
// needs no confirmation.
type Confirmer interface {
	Confirm(msg tea.KeyMsg) string
}

// noticeError is a failure whose text is shown to the user as is
type noticeError string

func (e noticeError) Error() string {
	return string(e)
}

func binding(help, desc string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(help, desc))
}

// base carries what every tab shares: markup, last refresh outcome and
// the lock guarding tab state.
type base struct {
	name  modules.Name
	clock clockwork.Clock

	mu       sync.RWMutex
	fragment modules.Fragment
	err      error
	updated  time.Time
}

func newBase(name modules.Name, clock clockwork.Clock) base {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return base{name: name, clock: clock}
}

func (b *base) Name() modules.Name {
	return b.name
}

func (b *base) SetFragment(f modules.Fragment) {
	b.mu.Lock()
	b.fragment = f
	b.mu.Unlock()
}

// recordLocked stores a refresh outcome. Canceled refreshes are dropped.
func (b *base) recordLocked(err error) {
	if transport.IsCanceled(err) {
		return
	}
	b.err = err
	if err == nil {
		b.updated = b.clock.Now()
	}
}

// headerLocked renders the title, the fragment's section headings and the
// last refresh error.
func (b *base) headerLocked() string {
	title := b.fragment.Title()
	if title == "" {
		title = b.name.Title()
	}

	var sb strings.Builder
	sb.WriteString(ui.SectionTitleStyle.Render(title))
	if len(b.fragment.Headings) > 1 {
		sb.WriteString("  ")
		sb.WriteString(ui.MutedStyle.Render(strings.Join(b.fragment.Headings[1:], " · ")))
	}
	if !b.updated.IsZero() {
		sb.WriteString("  ")
		sb.WriteString(ui.MutedStyle.Render("updated " + b.updated.Format("15:04:05")))
	}
	sb.WriteString("\n")
	if b.err != nil {
		sb.WriteString(ui.ErrorMessageStyle.Render(ui.FailureMarker + " " + transport.ShortMessage(b.err)))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

// selectionLine prefixes the selected row with a cursor
func selectionLine(selected bool, line string) string {
	if selected {
		return ui.SelectedStyle.Render("> " + line)
	}
	return "  " + line
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
