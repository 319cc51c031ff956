package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/esp32ctl/internal/connection"
	"github.com/muurk/esp32ctl/internal/deviceapi"
	"github.com/muurk/esp32ctl/internal/modules"
	"github.com/muurk/esp32ctl/internal/poller"
	"github.com/muurk/esp32ctl/internal/session"
	"github.com/muurk/esp32ctl/internal/tabs"
	"github.com/muurk/esp32ctl/internal/ui"
)

const (
	// ToastDuration is how long a notification stays visible
	ToastDuration = 2500 * time.Millisecond

	// idleRecheck is how often a tab with refresh switched off is
	// checked for it being switched back on
	idleRecheck = time.Second
)

// Messages from the session and from background commands
type (
	connMsg   connection.Snapshot
	pollMsg   poller.Result
	noticeMsg session.Notice

	tabActivatedMsg struct {
		name modules.Name
		gen  int
		err  error
	}
	refreshTickMsg  struct{ gen int }
	refreshDoneMsg  struct{ gen int }
	actionDoneMsg   struct{}
	toastExpiredMsg struct{ seq int }
)

// events turns session callbacks into tea messages
type events struct {
	ch    chan tea.Msg
	done  chan struct{}
	unsub []func()
}

func subscribe(s *session.Session) *events {
	e := &events{
		ch:   make(chan tea.Msg, 64),
		done: make(chan struct{}),
	}
	send := func(m tea.Msg) {
		select {
		case e.ch <- m:
		case <-e.done:
		}
	}
	e.unsub = []func(){
		s.Monitor().Subscribe(func(snap connection.Snapshot) { send(connMsg(snap)) }),
		s.Poller().Subscribe(func(r poller.Result) { send(pollMsg(r)) }),
		s.Subscribe(func(n session.Notice) { send(noticeMsg(n)) }),
	}
	return e
}

// next waits for the next session event
func (e *events) next() tea.Cmd {
	return func() tea.Msg {
		select {
		case m := <-e.ch:
			return m
		case <-e.done:
			return nil
		}
	}
}

func (e *events) close() {
	select {
	case <-e.done:
		return
	default:
	}
	close(e.done)
	for _, fn := range e.unsub {
		fn()
	}
}

// consoleKeyMap holds the bindings available on every tab
type consoleKeyMap struct {
	Tabs   []key.Binding
	Next   key.Binding
	Prev   key.Binding
	Scroll key.Binding
	Help   key.Binding
	Quit   key.Binding
	Yes    key.Binding
	No     key.Binding
	PageUp key.Binding
	PageDn key.Binding
}

func newConsoleKeyMap() consoleKeyMap {
	k := consoleKeyMap{
		Next:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next tab")),
		Prev:   key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous tab")),
		Scroll: key.NewBinding(key.WithKeys("pgup", "pgdown"), key.WithHelp("pgup/pgdn", "scroll")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Yes:    key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "yes")),
		No:     key.NewBinding(key.WithKeys("n", "N", "esc"), key.WithHelp("n", "no")),
		PageUp: key.NewBinding(key.WithKeys("pgup")),
		PageDn: key.NewBinding(key.WithKeys("pgdown")),
	}
	for i, name := range modules.Names() {
		n := string(rune('1' + i))
		k.Tabs = append(k.Tabs, key.NewBinding(key.WithKeys(n), key.WithHelp(n, strings.ToLower(name.Title()))))
	}
	return k
}

// tabHelp combines the active tab's bindings with the global ones
type tabHelp struct {
	global consoleKeyMap
	tab    []key.Binding
}

func (h tabHelp) ShortHelp() []key.Binding {
	return append(append([]key.Binding{}, h.tab...), h.global.Next, h.global.Help, h.global.Quit)
}

func (h tabHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		h.tab,
		h.global.Tabs,
		{h.global.Next, h.global.Prev, h.global.Scroll, h.global.Help, h.global.Quit},
	}
}

type confirmHelp struct{ k consoleKeyMap }

func (h confirmHelp) ShortHelp() []key.Binding  { return []key.Binding{h.k.Yes, h.k.No} }
func (h confirmHelp) FullHelp() [][]key.Binding { return [][]key.Binding{h.ShortHelp()} }

type pendingConfirm struct {
	prompt string
	action tabs.Action
}

// ConsoleModel is the tabbed control panel for one connected device
type ConsoleModel struct {
	Width  int
	Height int

	sess   *session.Session
	ctx    context.Context
	events *events

	active     modules.Name
	banner     connection.Banner
	status     *deviceapi.Status
	statusErr  error
	toast      *session.Notice
	toastSeq   int
	busy       int
	refreshGen int
	confirm    *pendingConfirm
	showHelp   bool
	quitting   bool

	Spinner  spinner.Model
	Viewport viewport.Model
	Help     help.Model
	Keys     consoleKeyMap
}

// NewConsoleModel creates the console for a started session
func NewConsoleModel(ctx context.Context, s *session.Session) ConsoleModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SpinnerStyle

	vp := viewport.New(DefaultWidth-4, contentHeight(DefaultHeight))
	// the console owns the keys; scrolling goes through PageUp/PageDn
	vp.KeyMap = viewport.KeyMap{
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
	}

	m := ConsoleModel{
		sess:     s,
		ctx:      ctx,
		events:   subscribe(s),
		active:   s.Active(),
		banner:   s.Monitor().Banner(),
		Spinner:  sp,
		Viewport: vp,
		Help:     help.New(),
		Keys:     newConsoleKeyMap(),
	}
	if last, ok := s.Poller().Last(); ok {
		m.status, m.statusErr = last.Status, last.Err
	}
	return m
}

// Session returns the session shown by the console
func (m ConsoleModel) Session() *session.Session { return m.sess }

// Active returns the tab being shown
func (m ConsoleModel) Active() modules.Name { return m.active }

// Close stops event delivery
func (m ConsoleModel) Close() {
	m.events.close()
}

// Init activates the first tab and starts listening for session events
func (m ConsoleModel) Init() tea.Cmd {
	return tea.Batch(
		m.events.next(),
		m.Spinner.Tick,
		m.activate(m.active, m.refreshGen),
	)
}

func (m ConsoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
		m.Viewport.Width = max(MinTerminalWidth, msg.Width) - 4
		m.Viewport.Height = contentHeight(msg.Height)
		m.Help.Width = msg.Width - 4
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)

	case connMsg:
		m.banner = msg.Banner
		return m, m.events.next()

	case pollMsg:
		m.status, m.statusErr = msg.Status, msg.Err
		return m, m.events.next()

	case noticeMsg:
		n := session.Notice(msg)
		m.toast = &n
		m.toastSeq++
		seq := m.toastSeq
		return m, tea.Batch(
			m.events.next(),
			tea.Tick(ToastDuration, func(time.Time) tea.Msg { return toastExpiredMsg{seq: seq} }),
		)

	case toastExpiredMsg:
		if msg.seq == m.toastSeq {
			m.toast = nil
		}
		return m, nil

	case tabActivatedMsg:
		if msg.gen != m.refreshGen {
			return m, nil
		}
		return m, m.scheduleRefresh(msg.gen)

	case refreshTickMsg:
		if msg.gen != m.refreshGen {
			return m, nil
		}
		if m.refreshInterval() == 0 {
			return m, m.scheduleRefresh(msg.gen)
		}
		s, gen := m.sess, msg.gen
		return m, func() tea.Msg {
			_ = s.Refresh(m.ctx)
			return refreshDoneMsg{gen: gen}
		}

	case refreshDoneMsg:
		if msg.gen != m.refreshGen {
			return m, nil
		}
		return m, m.scheduleRefresh(msg.gen)

	case actionDoneMsg:
		m.busy = max(0, m.busy-1)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m ConsoleModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}

	if m.confirm != nil {
		switch {
		case key.Matches(msg, m.Keys.Yes):
			action := m.confirm.action
			m.confirm = nil
			return m.run(action)
		case key.Matches(msg, m.Keys.No):
			m.confirm = nil
		}
		return m, nil
	}

	if m.showHelp {
		m.showHelp = false
		if key.Matches(msg, m.Keys.Quit) {
			return m.quit()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.Keys.Quit):
		return m.quit()
	case key.Matches(msg, m.Keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.Keys.Next):
		return m.switchTo(m.offset(1))
	case key.Matches(msg, m.Keys.Prev):
		return m.switchTo(m.offset(-1))
	case key.Matches(msg, m.Keys.PageUp), key.Matches(msg, m.Keys.PageDn):
		var cmd tea.Cmd
		m.Viewport, cmd = m.Viewport.Update(msg)
		return m, cmd
	}
	for i, b := range m.Keys.Tabs {
		if key.Matches(msg, b) {
			return m.switchTo(modules.Names()[i])
		}
	}

	if !m.sess.Loader().Loaded(m.active) {
		return m, nil
	}
	tab := m.sess.Tabs().Tab(m.active)
	action := tab.Handle(msg)
	if action == nil {
		return m, nil
	}
	if c, ok := tab.(tabs.Confirmer); ok {
		if prompt := c.Confirm(msg); prompt != "" {
			m.confirm = &pendingConfirm{prompt: prompt, action: action}
			return m, nil
		}
	}
	return m.run(action)
}

func (m ConsoleModel) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.events.close()
	return m, tea.Quit
}

// run executes action off the UI goroutine
func (m ConsoleModel) run(action tabs.Action) (tea.Model, tea.Cmd) {
	m.busy++
	s, ctx := m.sess, m.ctx
	return m, func() tea.Msg {
		s.Run(ctx, action)
		return actionDoneMsg{}
	}
}

func (m ConsoleModel) offset(delta int) modules.Name {
	names := modules.Names()
	for i, n := range names {
		if n == m.active {
			return names[(i+delta+len(names))%len(names)]
		}
	}
	return names[0]
}

func (m ConsoleModel) switchTo(name modules.Name) (tea.Model, tea.Cmd) {
	m.active = name
	m.refreshGen++
	m.Viewport.GotoTop()
	return m, m.activate(name, m.refreshGen)
}

// activate switches the session's tab, loading the module on first use
func (m ConsoleModel) activate(name modules.Name, gen int) tea.Cmd {
	s, ctx := m.sess, m.ctx
	return func() tea.Msg {
		err := s.SwitchTab(ctx, name)
		return tabActivatedMsg{name: name, gen: gen, err: err}
	}
}

func (m ConsoleModel) refreshInterval() time.Duration {
	if r, ok := m.sess.Tabs().Tab(m.active).(tabs.Refresher); ok {
		return r.RefreshInterval()
	}
	return 0
}

func (m ConsoleModel) scheduleRefresh(gen int) tea.Cmd {
	if _, ok := m.sess.Tabs().Tab(m.active).(tabs.Refresher); !ok {
		return nil
	}
	if !m.sess.Loader().Loaded(m.active) {
		return nil
	}
	d := m.refreshInterval()
	if d == 0 {
		d = idleRecheck
	}
	return tea.Tick(d, func(time.Time) tea.Msg { return refreshTickMsg{gen: gen} })
}

// View renders the console
func (m ConsoleModel) View() string {
	if m.quitting {
		return ""
	}
	width, height := m.Width, m.Height
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	if m.confirm != nil {
		box := ConfirmStyle.Render(ui.WarningMarker + " " + m.confirm.prompt + "\n\n" + m.Help.View(confirmHelp{m.Keys}))
		return RenderModal(box, width, height)
	}

	keys := tabHelp{global: m.Keys, tab: m.sess.Tabs().Tab(m.active).Keys()}
	if m.showHelp {
		full := m.Help
		full.ShowAll = true
		return RenderModal(ModalStyle.Render(TitleStyle.Render("Keys")+"\n"+full.View(keys)), width, height)
	}

	inner := width - 4
	var b strings.Builder
	if banner := ui.RenderBanner(m.banner, inner); banner != "" {
		b.WriteString(banner)
		b.WriteString("\n")
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, ui.RenderTabBar(m.active), "  ", m.badges()))
	b.WriteString("\n\n")

	vp := m.Viewport
	vp.SetContent(m.body(inner))
	b.WriteString(vp.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())

	return RenderApplicationContainer(BuildHeaderContent(m.sess.BaseURL()), b.String(), m.Help.View(keys), width, height)
}

// body renders the active tab, its loading state or the load failure
func (m ConsoleModel) body(width int) string {
	if err := m.sess.Tabs().Failure(m.active); err != nil {
		return ui.RenderPlaceholder(modules.PlaceholderMessage, err.Error(), width)
	}
	if !m.sess.Loader().Loaded(m.active) {
		return m.Spinner.View() + " " + ui.MutedStyle.Render("Loading "+m.active.Title()+"...")
	}
	return m.sess.Tabs().Tab(m.active).View(width)
}

func (m ConsoleModel) badges() string {
	if m.status == nil {
		return ui.Badge("WiFi", false) + ui.Badge("Modbus", false)
	}
	return ui.Badge("WiFi", m.status.WiFiConnected()) + ui.Badge("Modbus", m.status.ModbusReady)
}

func (m ConsoleModel) statusLine() string {
	var parts []string
	if m.busy > 0 {
		parts = append(parts, m.Spinner.View())
	}
	if m.toast != nil {
		parts = append(parts, ui.RenderToast(m.toast.Level, m.toast.Message))
	}
	return strings.Join(parts, " ")
}
