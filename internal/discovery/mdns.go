package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/esp32ctl/internal/deviceapi"
	"github.com/muurk/esp32ctl/internal/logging"
	"github.com/muurk/esp32ctl/internal/transport"
)

const (
	// ServiceType is the mDNS service type the device web server advertises
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 10 * time.Second

	// DefaultVerifyTimeout bounds the status request sent to each candidate
	DefaultVerifyTimeout = 3 * time.Second

	// DefaultPort is the default HTTP port of the device
	DefaultPort = 80

	// maxVerifiers caps concurrent verification requests
	maxVerifiers = 8
)

// Browser browses for mDNS service entries. *zeroconf.Resolver
// implements it.
type Browser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// Scanner handles mDNS device discovery. Every "_http._tcp" service is a
// candidate; with Verify set only candidates that answer the device
// status endpoint are reported.
type Scanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration

	// Verify probes each candidate's status endpoint
	Verify bool

	// VerifyTimeout bounds one verification request
	VerifyTimeout time.Duration

	// Browser overrides the zeroconf resolver
	Browser Browser

	// Logger overrides the package logger
	Logger *zap.Logger
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout:       DefaultScanTimeout,
		Verify:        true,
		VerifyTimeout: DefaultVerifyTimeout,
	}
}

func (s *Scanner) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logging.Named("discovery")
}

func (s *Scanner) browser() (Browser, error) {
	if s.Browser != nil {
		return s.Browser, nil
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	return resolver, nil
}

// browse collects parsed entries until the scan timeout expires. When
// stop returns true for a device the scan ends early.
func (s *Scanner) browse(ctx context.Context, stop func(*Device) bool) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	b, err := s.browser()
	if err != nil {
		return nil, err
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	seen := make(map[string]bool)
	var devices []*Device

	go func() {
		defer close(done)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				device := s.parseServiceEntry(entry)
				if device == nil || seen[device.Address()] {
					continue
				}
				seen[device.Address()] = true
				devices = append(devices, device)
				s.logger().Debug("mDNS candidate",
					zap.String("instance", device.Instance),
					zap.String("address", device.Address()),
				)
				if stop != nil && stop(device) {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := b.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	<-done
	return devices, nil
}

// ScanForDevices discovers all devices on the local network until the
// scan timeout expires. Devices are sorted by name.
func (s *Scanner) ScanForDevices(ctx context.Context) ([]*Device, error) {
	candidates, err := s.browse(ctx, nil)
	if err != nil {
		return nil, err
	}

	devices := candidates
	if s.Verify {
		devices = s.verifyAll(ctx, candidates)
	}
	sort.Slice(devices, func(i, j int) bool {
		return strings.ToLower(devices[i].Name()) < strings.ToLower(devices[j].Name())
	})
	return devices, nil
}

// WaitForDevice waits for the device named by query (instance name,
// hostname or IP)
func (s *Scanner) WaitForDevice(ctx context.Context, query string) (*Device, error) {
	var found *Device
	_, err := s.browse(ctx, func(d *Device) bool {
		if !d.Matches(query) {
			return false
		}
		found = d
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("device %s not found within %s", query, s.Timeout)
	}
	if s.Verify {
		if err := s.verify(ctx, found); err != nil {
			return nil, fmt.Errorf("device %s found but not responding: %w", query, err)
		}
	}
	return found, nil
}

// verifyAll keeps the candidates that answer the status endpoint
func (s *Scanner) verifyAll(ctx context.Context, candidates []*Device) []*Device {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxVerifiers)

	var mu sync.Mutex
	verified := make([]*Device, 0, len(candidates))
	for _, d := range candidates {
		g.Go(func() error {
			if err := s.verify(gctx, d); err != nil {
				s.logger().Debug("candidate rejected",
					zap.String("address", d.Address()),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			verified = append(verified, d)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return verified
}

// verify reads the device status and stores it on d
func (s *Scanner) verify(ctx context.Context, d *Device) error {
	timeout := s.VerifyTimeout
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	tc, err := transport.NewClient(d.BaseURL(),
		transport.WithTimeout(timeout),
		transport.WithLogger(s.logger()),
	)
	if err != nil {
		return err
	}
	status, err := deviceapi.New(tc.Unobserved()).Status(ctx)
	if err != nil {
		return err
	}
	d.Status = status
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a Device.
// Returns nil if the entry has no usable address.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	if entry == nil {
		return nil
	}
	hostname := entry.HostName
	if hostname == "" {
		return nil
	}

	// prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	return &Device{
		Instance:     entry.Instance,
		Hostname:     hostname,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// ScanForDevices is a convenience function to scan for devices with a custom timeout
func ScanForDevices(ctx context.Context, timeout time.Duration) ([]*Device, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.ScanForDevices(ctx)
}

// QuickScan performs a fast scan with a 3-second timeout
func QuickScan(ctx context.Context) ([]*Device, error) {
	return ScanForDevices(ctx, 3*time.Second)
}

// FindDevice searches for one device with the default timeout
func FindDevice(ctx context.Context, query string) (*Device, error) {
	return NewScanner().WaitForDevice(ctx, query)
}
