package tabs

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"

	"github.com/muurk/esp32ctl/internal/deviceapi"
	"github.com/muurk/esp32ctl/internal/modules"
	"github.com/muurk/esp32ctl/internal/ui"
)

const (
	// TasksRefreshInterval is the auto-refresh cadence of the tasks tab
	TasksRefreshInterval = 2 * time.Second

	// busiest non-idle tasks shown under the per-core bars
	taskChartOthers = 4
	taskBarWidth    = 30
)

// Tasks shows the FreeRTOS task report with a CPU chart
type Tasks struct {
	base
	api         *deviceapi.Client
	refreshKey  key.Binding
	viewKey     key.Binding
	autoKey     key.Binding
	report      *deviceapi.TaskReport
	perCore     bool
	autoRefresh bool
}

// NewTasks creates the tasks tab. It starts in the per-core view with
// auto-refresh on.
func NewTasks(api *deviceapi.Client, clock clockwork.Clock) *Tasks {
	return &Tasks{
		base:        newBase(modules.Tasks, clock),
		api:         api,
		refreshKey:  binding("r", "refresh", "r"),
		viewKey:     binding("v", "core/flat view", "v"),
		autoKey:     binding("a", "auto-refresh", "a"),
		perCore:     true,
		autoRefresh: true,
	}
}

// Init reads /api/tasks
func (t *Tasks) Init(ctx context.Context) error {
	r, err := t.api.Tasks(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordLocked(err)
	if err == nil {
		t.report = r
	}
	return err
}

// RefreshInterval is TasksRefreshInterval while auto-refresh is on
func (t *Tasks) RefreshInterval() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.autoRefresh {
		return TasksRefreshInterval
	}
	return 0
}

func (t *Tasks) Keys() []key.Binding {
	return []key.Binding{t.refreshKey, t.viewKey, t.autoKey}
}

func (t *Tasks) Handle(msg tea.KeyMsg) Action {
	switch {
	case key.Matches(msg, t.refreshKey):
		return func(ctx context.Context) (string, error) {
			return "", t.Init(ctx)
		}
	case key.Matches(msg, t.viewKey):
		t.mu.Lock()
		t.perCore = !t.perCore
		t.mu.Unlock()
	case key.Matches(msg, t.autoKey):
		t.mu.Lock()
		t.autoRefresh = !t.autoRefresh
		t.mu.Unlock()
	}
	return nil
}

func (t *Tasks) View(width int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	b.WriteString(t.headerLocked())

	if t.report == nil {
		b.WriteString(ui.MutedStyle.Render("Loading..."))
		return b.String()
	}

	var bars []deviceapi.CPUBar
	chart := "CPU per core"
	if t.perCore {
		bars = deviceapi.CoreUsage(t.report.Tasks, taskChartOthers)
	} else {
		chart = "CPU per task"
		bars = deviceapi.TopTasks(t.report.Tasks, taskChartOthers+2)
	}

	auto := "off"
	if t.autoRefresh {
		auto = "every " + TasksRefreshInterval.String()
	}
	b.WriteString(ui.Section(chart, deviceapi.FormatBars(bars, taskBarWidth)))
	b.WriteString("\n\n")
	b.WriteString(t.report.FormatTable())
	b.WriteString(ui.MutedStyle.Render("auto-refresh " + auto))
	return b.String()
}
