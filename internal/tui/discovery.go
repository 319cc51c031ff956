package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/esp32ctl/internal/deviceapi"
	"github.com/muurk/esp32ctl/internal/discovery"
	"github.com/muurk/esp32ctl/internal/ui"
)

// Messages for async operations
type scanStartMsg struct{}
type scanCompleteMsg struct {
	devices []*discovery.Device
	err     error
}

// discoveryKeyMap defines key bindings for the discovery screen
type discoveryKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Rescan key.Binding
	Manual key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k discoveryKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Rescan, k.Manual, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k discoveryKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Rescan, k.Manual, k.Quit},
	}
}

// manualModeKeyMap defines key bindings for manual address entry
type manualModeKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

func (m manualModeKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{m.Confirm, m.Cancel}
}

func (m manualModeKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{m.Confirm, m.Cancel}}
}

// deviceItem wraps a Device for use with bubbles/list
type deviceItem struct {
	device *discovery.Device
}

func (d deviceItem) FilterValue() string {
	return d.device.Name() + " " + d.device.IP + " " + d.device.Hostname
}

func (d deviceItem) Title() string { return d.device.Name() }

func (d deviceItem) Description() string { return d.device.Address() }

// deviceDelegate renders each device as a card
type deviceDelegate struct {
	width int
}

func (d deviceDelegate) Height() int { return 6 }

func (d deviceDelegate) Spacing() int { return 1 }

func (d deviceDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d deviceDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(deviceItem)
	if !ok {
		return
	}
	device := it.device
	selected := index == m.Index()

	var content strings.Builder
	if selected {
		content.WriteString(SelectedMenuItemStyle.Render("→ " + device.Name()))
	} else {
		content.WriteString("  " + device.Name())
	}
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("  Address:  %s\n", device.Address()))
	if s := device.Status; s != nil {
		content.WriteString(fmt.Sprintf("  Uptime:   %s   Heap: %s\n",
			deviceapi.FormatUptime(s.Uptime()), deviceapi.FormatBytes(s.HeapFree)))
		content.WriteString("  " + ui.Badge("WiFi", s.WiFiConnected()) + ui.Badge("Modbus", s.ModbusReady))
	} else {
		content.WriteString(ui.MutedStyle.Render("  Not verified"))
	}

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ui.MutedColor).
		Padding(0, 1).
		MarginLeft(2).
		Width(max(MinTerminalWidth, d.width) - 8)
	if selected {
		cardStyle = cardStyle.BorderForeground(ui.SuccessColor)
	}

	fmt.Fprint(w, cardStyle.Render(content.String()))
}

// DiscoveryModel represents the device discovery screen state
type DiscoveryModel struct {
	Scanning   bool
	DeviceList list.Model
	Selected   bool
	Err        error

	ManualMode   bool
	AddressInput textinput.Model

	Width         int
	Height        int
	Spinner       spinner.Model
	ProgressBar   progress.Model
	ScanStartTime time.Time
	Help          help.Model
	Keys          discoveryKeyMap
	ManualKeys    manualModeKeyMap

	scanner *discovery.Scanner
	ctx     context.Context
}

// NewDiscoveryModel creates a new discovery screen model
func NewDiscoveryModel(ctx context.Context, scanner *discovery.Scanner) DiscoveryModel {
	if scanner == nil {
		scanner = discovery.NewScanner()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	input := textinput.New()
	input.Placeholder = "192.168.4.1"
	input.CharLimit = 64
	input.Width = 30

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	deviceList := list.New([]list.Item{}, deviceDelegate{width: DefaultWidth}, 0, 0)
	deviceList.Title = "Discovered Devices"
	deviceList.SetShowStatusBar(false)
	deviceList.SetFilteringEnabled(true)
	deviceList.SetShowHelp(false)
	deviceList.Styles.Title = TitleStyle

	return DiscoveryModel{
		DeviceList:   deviceList,
		AddressInput: input,
		Spinner:      s,
		ProgressBar:  bar,
		Help:         help.New(),
		Keys: discoveryKeyMap{
			Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
			Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
			Enter:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "connect")),
			Rescan: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
			Manual: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "enter address")),
			Quit:   key.NewBinding(key.WithKeys("q", "esc"), key.WithHelp("q", "quit")),
		},
		ManualKeys: manualModeKeyMap{
			Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "connect")),
			Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		},
		scanner: scanner,
		ctx:     ctx,
	}
}

// Init starts scanning immediately
func (m DiscoveryModel) Init() tea.Cmd {
	return m.startScan()
}

func (m DiscoveryModel) startScan() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return scanStartMsg{} },
		m.scanDevices(),
		m.Spinner.Tick,
	)
}

// Update handles messages and updates the model
func (m DiscoveryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.ManualMode {
			return m.updateManualMode(msg)
		}
		return m.updateNormalMode(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.DeviceList.SetDelegate(deviceDelegate{width: msg.Width})
		m.DeviceList.SetWidth(msg.Width - 4)
		m.DeviceList.SetHeight(max(6, msg.Height-8))
		return m, nil

	case scanStartMsg:
		m.Scanning = true
		m.ScanStartTime = time.Now()
		return m, nil

	case scanCompleteMsg:
		m.Scanning = false
		m.Err = msg.err
		items := make([]list.Item, len(msg.devices))
		for i, dev := range msg.devices {
			items[i] = deviceItem{device: dev}
		}
		return m, m.DeviceList.SetItems(items)

	case spinner.TickMsg:
		if !m.Scanning {
			return m, nil
		}
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m DiscoveryModel) updateNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case key.Matches(msg, m.Keys.Enter):
		if !m.Scanning && m.DeviceList.SelectedItem() != nil {
			m.Selected = true
		}
		return m, nil

	case key.Matches(msg, m.Keys.Rescan):
		if m.Scanning {
			return m, nil
		}
		m.Err = nil
		return m, tea.Batch(m.DeviceList.SetItems(nil), m.startScan())

	case key.Matches(msg, m.Keys.Manual):
		m.ManualMode = true
		m.AddressInput.SetValue("")
		return m, m.AddressInput.Focus()
	}

	if !m.Scanning {
		m.DeviceList, cmd = m.DeviceList.Update(msg)
	}
	return m, cmd
}

func (m DiscoveryModel) updateManualMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch {
	case key.Matches(msg, m.ManualKeys.Cancel):
		m.ManualMode = false
		m.AddressInput.Blur()
		return m, nil

	case key.Matches(msg, m.ManualKeys.Confirm):
		value := strings.TrimSpace(m.AddressInput.Value())
		if value == "" {
			return m, nil
		}
		device := manualDevice(value)
		items := append([]list.Item{deviceItem{device: device}}, m.DeviceList.Items()...)
		setCmd := m.DeviceList.SetItems(items)
		m.DeviceList.Select(0)
		m.ManualMode = false
		m.AddressInput.Blur()
		m.Selected = true
		return m, setCmd
	}

	m.AddressInput, cmd = m.AddressInput.Update(msg)
	return m, cmd
}

// manualDevice builds a device from a typed address, optionally host:port
func manualDevice(value string) *discovery.Device {
	d := &discovery.Device{
		Instance:     value,
		Hostname:     value,
		IP:           value,
		Port:         discovery.DefaultPort,
		DiscoveredAt: time.Now(),
	}
	if i := strings.LastIndex(value, ":"); i > 0 && !strings.Contains(value[:i], ":") {
		var port int
		if _, err := fmt.Sscanf(value[i+1:], "%d", &port); err == nil && port > 0 {
			d.IP, d.Hostname, d.Port = value[:i], value[:i], port
		}
	}
	return d
}

// View renders the discovery screen
func (m DiscoveryModel) View() string {
	width := m.Width
	if width == 0 {
		width = DefaultWidth
	}

	var content, helpText string
	switch {
	case m.ManualMode:
		content = m.renderManualEntry()
		helpText = m.Help.View(m.ManualKeys)
	case m.Scanning:
		content = m.renderScanning(width)
		helpText = m.Help.View(m.Keys)
	default:
		content = m.renderDeviceResults()
		helpText = m.Help.View(m.Keys)
	}

	return RenderApplicationContainer(BuildHeaderContent(""), content, helpText, m.Width, m.Height)
}

func (m DiscoveryModel) renderScanning(width int) string {
	elapsed := time.Since(m.ScanStartTime)
	timeout := m.scanner.Timeout
	if timeout <= 0 {
		timeout = discovery.DefaultScanTimeout
	}
	percent := min(1.0, float64(elapsed)/float64(timeout))

	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		TitleStyle.Render(m.Spinner.View()+" SEARCHING FOR DEVICES"),
		SubtitleStyle.Render("Browsing mDNS for ESP32 control panels..."),
		"",
		m.ProgressBar.ViewAs(percent),
		"",
		SubtitleStyle.Render(fmt.Sprintf("Elapsed: %ds", int(elapsed.Seconds()))),
	)
	return lipgloss.Place(width-4, 0, lipgloss.Center, lipgloss.Top, content)
}

func (m DiscoveryModel) renderDeviceResults() string {
	var b strings.Builder
	b.WriteString("\n")

	switch {
	case m.Err != nil:
		b.WriteString(ui.ErrorTitleStyle.Render(fmt.Sprintf("  %s Scan failed: %v", ui.FailureMarker, m.Err)))
		b.WriteString("\n\n")
		b.WriteString(troubleshooting)

	case len(m.DeviceList.Items()) == 0:
		b.WriteString(ui.WarningTitleStyle.Render("  " + ui.WarningMarker + " No devices found on your network"))
		b.WriteString("\n\n")
		b.WriteString(troubleshooting)

	default:
		b.WriteString(m.DeviceList.View())
	}
	return b.String()
}

const troubleshooting = `  Troubleshooting:
    • Ensure the device is powered on and joined to this network
    • Multicast (UDP 5353) must not be blocked
    • On the device's own access point, press m and enter 192.168.4.1
`

func (m DiscoveryModel) renderManualEntry() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Enter device address"))
	b.WriteString("\n")
	b.WriteString("  Address: ")
	b.WriteString(m.AddressInput.View())
	b.WriteString("\n\n")
	return b.String()
}

// GetSelectedDevice returns the selected device (if any)
func (m DiscoveryModel) GetSelectedDevice() *discovery.Device {
	if !m.Selected {
		return nil
	}
	if item, ok := m.DeviceList.SelectedItem().(deviceItem); ok {
		return item.device
	}
	return nil
}

// scanDevices performs device discovery
func (m DiscoveryModel) scanDevices() tea.Cmd {
	scanner, ctx := m.scanner, m.ctx
	return func() tea.Msg {
		devices, err := scanner.ScanForDevices(ctx)
		return scanCompleteMsg{devices: devices, err: err}
	}
}
