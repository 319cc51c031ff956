package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/esp32ctl/internal/deviceapi"
)

// Device represents an ESP32 control panel found on the network
type Device struct {
	// Instance is the advertised mDNS service instance name
	Instance string

	// Hostname is the mDNS hostname (e.g., "esp32-actuators.local.")
	Hostname string

	// IP is the device address, IPv4 when one was advertised
	IP string

	// Port is the HTTP port (typically 80)
	Port int

	// Metadata contains the mDNS TXT record data
	Metadata map[string]string

	// Status is the device status read during verification. Nil when the
	// scan ran without verification.
	Status *deviceapi.Status

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("ESP32 device %s (%s) at %s", d.Name(), d.Hostname, d.Address())
}

// Name returns the instance name, or the short hostname when the service
// has no instance name
func (d *Device) Name() string {
	if d.Instance != "" {
		return d.Instance
	}
	return ShortHostname(d.Hostname)
}

// Address returns host:port for the device
func (d *Device) Address() string {
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// BaseURL returns the HTTP base URL for the device
func (d *Device) BaseURL() string {
	return "http://" + d.Address()
}

// Verified reports whether the device answered a status request
func (d *Device) Verified() bool {
	return d.Status != nil
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}

// Matches reports whether query names this device: its instance name,
// hostname (with or without ".local") or IP address
func (d *Device) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSuffix(query, "."))
	switch {
	case q == "":
		return false
	case q == d.IP:
		return true
	case q == strings.ToLower(d.Instance):
		return true
	}
	host := strings.ToLower(strings.TrimSuffix(d.Hostname, "."))
	return q == host || q == ShortHostname(host)
}

// ShortHostname strips the ".local" suffix from an mDNS hostname
func ShortHostname(host string) string {
	host = strings.TrimSuffix(host, ".")
	return strings.TrimSuffix(host, ".local")
}
