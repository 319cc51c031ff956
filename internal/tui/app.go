package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/esp32ctl/internal/discovery"
	"github.com/muurk/esp32ctl/internal/session"
	"github.com/muurk/esp32ctl/internal/ui"
)

// Screen represents the current active screen in the application
type Screen string

const (
	ScreenDiscovery  Screen = "discovery"
	ScreenConnecting Screen = "connecting"
	ScreenConsole    Screen = "console"
)

// Connector opens and starts a session for a discovered device
type Connector func(ctx context.Context, device *discovery.Device) (*session.Session, error)

type sessionReadyMsg struct {
	session *session.Session
	err     error
}

// Options configures the application model
type Options struct {
	// Session starts the application on the console. Without it the
	// application starts on device discovery.
	Session *session.Session

	// Connect is required when starting on discovery
	Connect Connector

	// Scanner overrides the discovery scanner
	Scanner *discovery.Scanner
}

// AppModel is the top-level coordinator model that manages screen transitions
type AppModel struct {
	CurrentScreen Screen

	DiscoveryModel DiscoveryModel
	ConsoleModel   ConsoleModel

	SelectedDevice *discovery.Device
	LastError      error

	Width  int
	Height int

	ctx     context.Context
	connect Connector
	scanner *discovery.Scanner
	session *session.Session
}

// NewAppModel creates the application model
func NewAppModel(ctx context.Context, opts Options) AppModel {
	m := AppModel{
		ctx:     ctx,
		connect: opts.Connect,
		scanner: opts.Scanner,
		session: opts.Session,
	}
	if opts.Session != nil {
		m.CurrentScreen = ScreenConsole
		m.ConsoleModel = NewConsoleModel(ctx, opts.Session)
	} else {
		m.CurrentScreen = ScreenDiscovery
		m.DiscoveryModel = NewDiscoveryModel(ctx, opts.Scanner)
	}
	return m
}

// Session returns the session opened by the application, if any. The
// caller stops it after the program exits.
func (m AppModel) Session() *session.Session {
	return m.session
}

// Init initializes the application
func (m AppModel) Init() tea.Cmd {
	switch m.CurrentScreen {
	case ScreenDiscovery:
		return m.DiscoveryModel.Init()
	case ScreenConsole:
		return m.ConsoleModel.Init()
	}
	return nil
}

// Update handles all messages and routes them to the appropriate screen
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
		dm, _ := m.DiscoveryModel.Update(msg)
		m.DiscoveryModel = dm.(DiscoveryModel)
		if m.session != nil {
			cm, _ := m.ConsoleModel.Update(msg)
			m.ConsoleModel = cm.(ConsoleModel)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && m.CurrentScreen != ScreenConsole {
			return m, tea.Quit
		}

	case sessionReadyMsg:
		if msg.err != nil {
			m.LastError = msg.err
			m.CurrentScreen = ScreenDiscovery
			m.DiscoveryModel.Selected = false
			return m, nil
		}
		m.session = msg.session
		m.CurrentScreen = ScreenConsole
		m.ConsoleModel = NewConsoleModel(m.ctx, msg.session)
		cm, _ := m.ConsoleModel.Update(tea.WindowSizeMsg{Width: m.Width, Height: m.Height})
		m.ConsoleModel = cm.(ConsoleModel)
		return m, m.ConsoleModel.Init()
	}

	return m.updateCurrentScreen(msg)
}

func (m AppModel) updateCurrentScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.CurrentScreen {
	case ScreenDiscovery:
		if km, ok := msg.(tea.KeyMsg); ok && !m.DiscoveryModel.ManualMode && key.Matches(km, m.DiscoveryModel.Keys.Quit) {
			return m, tea.Quit
		}
		if _, ok := msg.(tea.KeyMsg); ok {
			m.LastError = nil
		}

		updated, c := m.DiscoveryModel.Update(msg)
		m.DiscoveryModel = updated.(DiscoveryModel)
		cmd = c

		if device := m.DiscoveryModel.GetSelectedDevice(); device != nil {
			m.SelectedDevice = device
			m.DiscoveryModel.Selected = false
			return m.connectTo(device)
		}

	case ScreenConnecting:
		// waiting for sessionReadyMsg

	case ScreenConsole:
		updated, c := m.ConsoleModel.Update(msg)
		m.ConsoleModel = updated.(ConsoleModel)
		cmd = c
	}

	return m, cmd
}

func (m AppModel) connectTo(device *discovery.Device) (tea.Model, tea.Cmd) {
	if m.connect == nil {
		m.LastError = fmt.Errorf("no connector configured")
		return m, nil
	}
	m.CurrentScreen = ScreenConnecting
	ctx, connect := m.ctx, m.connect
	return m, func() tea.Msg {
		s, err := connect(ctx, device)
		return sessionReadyMsg{session: s, err: err}
	}
}

// View renders the current screen
func (m AppModel) View() string {
	switch m.CurrentScreen {
	case ScreenDiscovery:
		view := m.DiscoveryModel.View()
		if m.LastError != nil {
			width := m.Width
			if width <= 0 {
				width = DefaultWidth
			}
			box := ui.ErrorBoxStyle(min(width, 70)).Render(ui.FailureMarker + " Connection failed\n\n" + m.LastError.Error())
			return RenderModal(box, m.Width, m.Height)
		}
		return view
	case ScreenConnecting:
		name := ""
		if m.SelectedDevice != nil {
			name = m.SelectedDevice.Address()
		}
		content := TitleStyle.Render("Connecting to " + name + "...")
		return RenderApplicationContainer(BuildHeaderContent(""), content, "", m.Width, m.Height)
	case ScreenConsole:
		return m.ConsoleModel.View()
	}
	return "Unknown screen"
}
