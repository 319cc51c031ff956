package tabs

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/esp32ctl/internal/deviceapi"
	"github.com/muurk/esp32ctl/internal/modules"
	"github.com/muurk/esp32ctl/internal/ui"
)

type configKeys struct {
	refresh, scan, up, down, join, baud, save key.Binding
}

// Config shows WiFi and RS485 settings
type Config struct {
	base
	api  *deviceapi.Client
	keys configKeys

	wifi     *deviceapi.WiFiStatus
	rs485    *deviceapi.RS485Config
	networks []deviceapi.WiFiNetwork
	selected int
	baud     int // pending baud rate, 0 when unchanged
}

// NewConfig creates the config tab
func NewConfig(api *deviceapi.Client, clock clockwork.Clock) *Config {
	return &Config{
		base: newBase(modules.Config, clock),
		api:  api,
		keys: configKeys{
			refresh: binding("r", "refresh", "r"),
			scan:    binding("w", "scan wifi", "w"),
			up:      binding("↑/k", "select", "up", "k"),
			down:    binding("↓/j", "select", "down", "j"),
			join:    binding("enter", "join open network", "enter"),
			baud:    binding("b", "next baud rate", "b"),
			save:    binding("S", "save rs485 + restart", "S"),
		},
	}
}

// Init reads WiFi status and RS485 configuration concurrently
func (t *Config) Init(ctx context.Context) error {
	var (
		wifi  *deviceapi.WiFiStatus
		rs485 *deviceapi.RS485Config
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		wifi, err = t.api.WiFiStatus(gctx)
		return err
	})
	g.Go(func() (err error) {
		rs485, err = t.api.RS485Config(gctx)
		return err
	})
	err := g.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordLocked(err)
	if wifi != nil {
		t.wifi = wifi
	}
	if rs485 != nil {
		t.rs485 = rs485
	}
	return err
}

func (t *Config) Keys() []key.Binding {
	k := t.keys
	return []key.Binding{k.refresh, k.scan, k.up, k.down, k.join, k.baud, k.save}
}

// Confirm asks before saving the RS485 settings, which restarts the device
func (t *Config) Confirm(msg tea.KeyMsg) string {
	if key.Matches(msg, t.keys.save) {
		return "Save RS485 settings and restart the device?"
	}
	return ""
}

func (t *Config) Handle(msg tea.KeyMsg) Action {
	switch {
	case key.Matches(msg, t.keys.refresh):
		return func(ctx context.Context) (string, error) {
			return "", t.Init(ctx)
		}
	case key.Matches(msg, t.keys.scan):
		return t.scan
	case key.Matches(msg, t.keys.up):
		t.moveSelection(-1)
	case key.Matches(msg, t.keys.down):
		t.moveSelection(1)
	case key.Matches(msg, t.keys.join):
		return t.join
	case key.Matches(msg, t.keys.baud):
		t.nextBaud()
	case key.Matches(msg, t.keys.save):
		return t.saveRS485
	}
	return nil
}

func (t *Config) moveSelection(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.networks) == 0 {
		return
	}
	t.selected = max(0, min(t.selected+delta, len(t.networks)-1))
}

func (t *Config) nextBaud() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.baud
	if cur == 0 && t.rs485 != nil {
		cur = t.rs485.BaudRate
	}
	rates := deviceapi.SupportedBaudRates
	next := rates[0]
	for i, r := range rates {
		if r == cur {
			next = rates[(i+1)%len(rates)]
			break
		}
	}
	if t.rs485 != nil && next == t.rs485.BaudRate {
		next = 0
	}
	t.baud = next
}

func (t *Config) scan(ctx context.Context) (string, error) {
	nets, err := t.api.ScanWiFi(ctx)
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	t.networks = nets
	t.selected = 0
	t.mu.Unlock()
	return fmt.Sprintf("Found %d networks", len(nets)), nil
}

func (t *Config) join(ctx context.Context) (string, error) {
	t.mu.RLock()
	if t.selected >= len(t.networks) {
		t.mu.RUnlock()
		return "", noticeError("Select a network")
	}
	n := t.networks[t.selected]
	t.mu.RUnlock()

	if !n.Open() {
		return "", noticeError("Secured network: use esp32ctl wifi connect")
	}
	if err := t.api.ConnectWiFi(ctx, deviceapi.WiFiCredentials{SSID: n.SSID}); err != nil {
		return "", err
	}
	return "Connected!", nil
}

// saveRS485 stores the pending baud rate and restarts the device so it
// takes effect
func (t *Config) saveRS485(ctx context.Context) (string, error) {
	t.mu.RLock()
	baud := t.baud
	t.mu.RUnlock()
	if baud == 0 {
		return "", noticeError("Baud rate unchanged")
	}

	if err := t.api.SetRS485Config(ctx, deviceapi.RS485Config{BaudRate: baud}); err != nil {
		return "", err
	}
	t.mu.Lock()
	if t.rs485 != nil {
		t.rs485.BaudRate = baud
	}
	t.baud = 0
	t.mu.Unlock()

	if err := t.api.Restart(ctx); err != nil {
		return "", err
	}
	return "Saved! Restarting...", nil
}

func (t *Config) View(width int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	b.WriteString(t.headerLocked())

	var wifi strings.Builder
	if w := t.wifi; w != nil {
		state := ui.Badge("disconnected", false)
		if w.Connected {
			state = ui.Badge("connected", true)
		}
		fmt.Fprintf(&wifi, "%s %s  %s  %s\n", state, orDash(w.SSID), orDash(w.IP), rssiText(w.RSSI))
	} else {
		wifi.WriteString(ui.MutedStyle.Render("Loading...") + "\n")
	}
	for i, n := range t.networks {
		lock := "secured"
		if n.Open() {
			lock = "open"
		}
		line := fmt.Sprintf("%-32s %4d dBm  %s", n.SSID, n.RSSI, lock)
		wifi.WriteString(selectionLine(i == t.selected, line) + "\n")
	}
	b.WriteString(ui.Section("WiFi", wifi.String()))
	b.WriteString("\n\n")

	var bus strings.Builder
	if c := t.rs485; c != nil {
		fmt.Fprintf(&bus, "Baud rate: %d", c.BaudRate)
		if t.baud != 0 {
			bus.WriteString(ui.WarningTitleStyle.Render(fmt.Sprintf(" → %d (press S to save)", t.baud)))
		}
		fmt.Fprintf(&bus, "\nPins: TX GPIO%d  RX GPIO%d  DE GPIO%d\n", c.TXPin, c.RXPin, c.DEPin)
	} else {
		bus.WriteString(ui.MutedStyle.Render("Loading..."))
	}
	b.WriteString(ui.Section("RS485", bus.String()))
	return b.String()
}

func rssiText(rssi int) string {
	if rssi == 0 {
		return "--"
	}
	return fmt.Sprintf("%d dBm", rssi)
}
