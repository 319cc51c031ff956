package discovery

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

// staticBrowser replays a fixed set of entries
type staticBrowser struct {
	entries []*zeroconf.ServiceEntry
	err     error
}

func (b *staticBrowser) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	if b.err != nil {
		return b.err
	}
	go func() {
		for _, e := range b.entries {
			select {
			case entries <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func entry(instance, host, ip string, port int) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceType, ServiceDomain)
	e.HostName = host
	e.Port = port
	if ip != "" {
		e.AddrIPv4 = []net.IP{net.ParseIP(ip)}
	}
	return e
}

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("url.Parse() error = %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("port %q: %v", u.Port(), err)
	}
	return u.Hostname(), port
}

func newTestScanner(b Browser) *Scanner {
	s := NewScanner()
	s.Timeout = 200 * time.Millisecond
	s.VerifyTimeout = time.Second
	s.Browser = b
	s.Logger = zap.NewNop()
	return s
}

func TestScanner_parseServiceEntry(t *testing.T) {
	scanner := NewScanner()

	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantIP   string
		wantPort int
	}{
		{
			name:     "IPv4 device",
			entry:    entry("esp32-panel", "esp32-panel.local.", "192.168.4.16", 80),
			wantIP:   "192.168.4.16",
			wantPort: 80,
		},
		{
			name:     "custom port",
			entry:    entry("bench", "bench.local", "192.168.1.100", 8080),
			wantIP:   "192.168.1.100",
			wantPort: 8080,
		},
		{
			name:     "no port defaults to 80",
			entry:    entry("lab", "lab.local", "172.16.0.1", 0),
			wantIP:   "172.16.0.1",
			wantPort: 80,
		},
		{
			name:    "empty hostname",
			entry:   entry("x", "", "192.168.1.1", 80),
			wantNil: true,
		},
		{
			name:    "no IP address",
			entry:   entry("x", "x.local", "", 80),
			wantNil: true,
		},
		{
			name: "IPv6 only",
			entry: func() *zeroconf.ServiceEntry {
				e := entry("v6", "v6.local", "", 80)
				e.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
				return e
			}(),
			wantIP:   "fe80::1",
			wantPort: 80,
		},
		{
			name: "prefers IPv4",
			entry: func() *zeroconf.ServiceEntry {
				e := entry("dual", "dual.local", "192.168.1.50", 80)
				e.AddrIPv6 = []net.IP{net.ParseIP("fe80::2")}
				return e
			}(),
			wantIP:   "192.168.1.50",
			wantPort: 80,
		},
		{
			name:    "nil entry",
			entry:   nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := scanner.parseServiceEntry(tt.entry)

			if tt.wantNil {
				if device != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", device)
				}
				return
			}
			if device == nil {
				t.Fatal("parseServiceEntry() = nil, want non-nil device")
			}
			if device.IP != tt.wantIP {
				t.Errorf("device.IP = %v, want %v", device.IP, tt.wantIP)
			}
			if device.Port != tt.wantPort {
				t.Errorf("device.Port = %v, want %v", device.Port, tt.wantPort)
			}
			if device.Instance != tt.entry.Instance {
				t.Errorf("device.Instance = %v, want %v", device.Instance, tt.entry.Instance)
			}
			if time.Since(device.DiscoveredAt) > time.Second {
				t.Errorf("device.DiscoveredAt is not recent: %v", device.DiscoveredAt)
			}
		})
	}
}

func TestScanner_parseServiceEntry_Metadata(t *testing.T) {
	e := entry("esp32", "esp32.local", "192.168.4.16", 80)
	e.Text = []string{"path=/", "board=esp32s3", "flag"}

	device := NewScanner().parseServiceEntry(e)
	if device == nil {
		t.Fatal("parseServiceEntry() = nil, want device")
	}

	want := map[string]string{"path": "/", "board": "esp32s3", "flag": ""}
	if len(device.Metadata) != len(want) {
		t.Errorf("device.Metadata has %d entries, want %d", len(device.Metadata), len(want))
	}
	for k, v := range want {
		if got, ok := device.Metadata[k]; !ok || got != v {
			t.Errorf("device.Metadata[%q] = %q, %v, want %q", k, got, ok, v)
		}
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
	if !scanner.Verify {
		t.Error("scanner.Verify = false, want true")
	}
}

func TestScanForDevices_VerifiesCandidates(t *testing.T) {
	device := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"heap_free":1000,"uptime_ms":1000,"wifi_ip":"10.0.0.2","wifi_status":3}`))
	}))
	defer device.Close()

	printer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer printer.Close()

	ip, port := hostPort(t, device.URL)
	pip, pport := hostPort(t, printer.URL)

	scanner := newTestScanner(&staticBrowser{entries: []*zeroconf.ServiceEntry{
		entry("office-printer", "printer.local.", pip, pport),
		entry("esp32-panel", "esp32-panel.local.", ip, port),
		entry("esp32-panel", "esp32-panel.local.", ip, port),
	}})

	devices, err := scanner.ScanForDevices(context.Background())
	if err != nil {
		t.Fatalf("ScanForDevices() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("ScanForDevices() returned %d devices, want 1: %v", len(devices), devices)
	}
	d := devices[0]
	if d.Instance != "esp32-panel" {
		t.Errorf("Instance = %v, want esp32-panel", d.Instance)
	}
	if !d.Verified() || d.Status.WiFiIP != "10.0.0.2" {
		t.Errorf("Status = %+v, want verified status", d.Status)
	}
}

func TestScanForDevices_WithoutVerification(t *testing.T) {
	scanner := newTestScanner(&staticBrowser{entries: []*zeroconf.ServiceEntry{
		entry("b-panel", "b.local.", "192.168.1.20", 80),
		entry("a-panel", "a.local.", "192.168.1.10", 80),
	}})
	scanner.Verify = false

	devices, err := scanner.ScanForDevices(context.Background())
	if err != nil {
		t.Fatalf("ScanForDevices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("ScanForDevices() returned %d devices, want 2", len(devices))
	}
	if devices[0].Name() != "a-panel" || devices[1].Name() != "b-panel" {
		t.Errorf("devices = %v, %v, want sorted by name", devices[0].Name(), devices[1].Name())
	}
	if devices[0].Verified() {
		t.Error("Verified() = true without verification")
	}
}

func TestScanForDevices_BrowseError(t *testing.T) {
	scanner := newTestScanner(&staticBrowser{err: errors.New("no multicast interface")})

	if _, err := scanner.ScanForDevices(context.Background()); err == nil {
		t.Error("ScanForDevices() error = nil, want error")
	}
}

func TestWaitForDevice(t *testing.T) {
	scanner := newTestScanner(&staticBrowser{entries: []*zeroconf.ServiceEntry{
		entry("other", "other.local.", "192.168.1.30", 80),
		entry("esp32-panel", "esp32-panel.local.", "192.168.1.40", 80),
	}})
	scanner.Verify = false
	scanner.Timeout = 5 * time.Second

	start := time.Now()
	d, err := scanner.WaitForDevice(context.Background(), "esp32-panel.local")
	if err != nil {
		t.Fatalf("WaitForDevice() error = %v", err)
	}
	if d.IP != "192.168.1.40" {
		t.Errorf("IP = %v, want 192.168.1.40", d.IP)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("WaitForDevice() did not return when the device was found")
	}

	scanner.Timeout = 100 * time.Millisecond
	if _, err := scanner.WaitForDevice(context.Background(), "missing"); err == nil {
		t.Error("WaitForDevice(missing) error = nil, want error")
	}
}
