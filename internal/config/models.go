package config

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// CurrentVersion is the registry file format version
	CurrentVersion = 1

	// DefaultLEDSlaveID is the Modbus address used for the LED controller
	DefaultLEDSlaveID = 10

	// DefaultPort is the HTTP port of the device web server
	DefaultPort = 80
)

// Registry represents the entire user configuration file.
// This stores the known devices and application preferences.
type Registry struct {
	Version       int                `yaml:"version"`
	DefaultDevice string             `yaml:"default_device,omitempty"` // Name of the device used without --device
	Devices       map[string]*Device `yaml:"devices,omitempty"`        // Keyed by device name
	Preferences   *Preferences       `yaml:"preferences,omitempty"`
}

// Device represents one known device
type Device struct {
	Address    string    `yaml:"address"`                // Hostname or IP address
	Port       int       `yaml:"port,omitempty"`         // HTTP port (default 80)
	Nickname   string    `yaml:"nickname,omitempty"`     // User-friendly name
	LEDSlaveID int       `yaml:"led_slave_id,omitempty"` // Overrides the preference for this device
	LastSeen   time.Time `yaml:"last_seen,omitempty"`    // Last discovery/connection time
}

// BaseURL returns the HTTP base URL for the device
func (d *Device) BaseURL() string {
	port := d.Port
	if port == 0 {
		port = DefaultPort
	}
	return "http://" + net.JoinHostPort(d.Address, strconv.Itoa(port))
}

// Preferences represents application-wide user preferences.
// Durations are stored in seconds.
type Preferences struct {
	AutoDiscover    bool `yaml:"auto_discover"`    // Scan for devices when none is configured
	DiscoverTimeout int  `yaml:"discover_timeout"` // mDNS discovery timeout
	PollInterval    int  `yaml:"poll_interval"`    // Status poll cadence
	ProbeTimeout    int  `yaml:"probe_timeout"`    // Reconnection probe timeout
	LEDSlaveID      int  `yaml:"led_slave_id"`     // Default LED controller address
}

// DefaultPreferences returns the preferences of a fresh registry
func DefaultPreferences() *Preferences {
	return &Preferences{
		AutoDiscover:    true,
		DiscoverTimeout: 10,
		PollInterval:    10,
		ProbeTimeout:    5,
		LEDSlaveID:      DefaultLEDSlaveID,
	}
}

// normalize replaces unset or invalid values with defaults
func (p *Preferences) normalize() {
	def := DefaultPreferences()
	if p.DiscoverTimeout <= 0 {
		p.DiscoverTimeout = def.DiscoverTimeout
	}
	if p.PollInterval <= 0 {
		p.PollInterval = def.PollInterval
	}
	if p.ProbeTimeout <= 0 {
		p.ProbeTimeout = def.ProbeTimeout
	}
	if p.LEDSlaveID <= 0 || p.LEDSlaveID > 247 {
		p.LEDSlaveID = def.LEDSlaveID
	}
}

func (p *Preferences) DiscoverTimeoutDuration() time.Duration {
	return time.Duration(p.DiscoverTimeout) * time.Second
}

func (p *Preferences) PollIntervalDuration() time.Duration {
	return time.Duration(p.PollInterval) * time.Second
}

func (p *Preferences) ProbeTimeoutDuration() time.Duration {
	return time.Duration(p.ProbeTimeout) * time.Second
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     CurrentVersion,
		Devices:     make(map[string]*Device),
		Preferences: DefaultPreferences(),
	}
}

// GetDevice retrieves a device by name.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(name string) *Device {
	return r.Devices[name]
}

// DeviceNames returns the known device names in sorted order
func (r *Registry) DeviceNames() []string {
	names := make([]string, 0, len(r.Devices))
	for name := range r.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnsureDevice ensures a device entry exists in the registry.
// If the device doesn't exist, creates a new entry for address.
// Returns the device entry (existing or newly created).
func (r *Registry) EnsureDevice(name, address string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[name]; exists {
		return device
	}

	device := &Device{Address: address}
	r.Devices[name] = device
	return device
}

// UpdateDeviceLastSeen updates the last seen timestamp and address for a device.
func (r *Registry) UpdateDeviceLastSeen(name, address string, port int) {
	device := r.EnsureDevice(name, address)
	device.Address = address
	device.Port = port
	device.LastSeen = time.Now()
}

// SetDeviceNickname sets a user-friendly nickname for a device.
func (r *Registry) SetDeviceNickname(name, nickname string) error {
	device := r.GetDevice(name)
	if device == nil {
		return fmt.Errorf("unknown device %q", name)
	}
	device.Nickname = nickname
	return nil
}

// SetDefaultDevice records address as the device used without --device,
// adding it under name when it is not known yet.
func (r *Registry) SetDefaultDevice(name, address string, port int) {
	device := r.EnsureDevice(name, address)
	device.Address = address
	if port != 0 {
		device.Port = port
	}
	r.DefaultDevice = name
}

// RemoveDevice forgets a device
func (r *Registry) RemoveDevice(name string) bool {
	if _, ok := r.Devices[name]; !ok {
		return false
	}
	delete(r.Devices, name)
	if r.DefaultDevice == name {
		r.DefaultDevice = ""
	}
	return true
}

// Target is a resolved device to connect to
type Target struct {
	Name       string // registry name, empty for ad-hoc addresses
	BaseURL    string
	LEDSlaveID int
}

// Resolve turns a --device value into a connection target. target may be
// a registry name, a nickname or an address; empty selects the default
// device. A non-zero port overrides the stored one.
func (r *Registry) Resolve(target string, port int) (Target, error) {
	prefs := r.Preferences
	if prefs == nil {
		prefs = DefaultPreferences()
	}

	if target == "" {
		target = r.DefaultDevice
	}
	if target == "" {
		return Target{}, fmt.Errorf("no device selected: pass --device or run 'esp32ctl config set-device'")
	}

	name, device := r.lookup(target)
	if device == nil {
		addr := strings.TrimSuffix(strings.TrimPrefix(target, "http://"), "/")
		device = &Device{Address: addr}
		if host, p, err := net.SplitHostPort(addr); err == nil {
			device.Address = host
			device.Port, _ = strconv.Atoi(p)
		}
	}
	if port != 0 {
		d := *device
		d.Port = port
		device = &d
	}

	slave := prefs.LEDSlaveID
	if device.LEDSlaveID != 0 {
		slave = device.LEDSlaveID
	}
	return Target{Name: name, BaseURL: device.BaseURL(), LEDSlaveID: slave}, nil
}

func (r *Registry) lookup(target string) (string, *Device) {
	if d, ok := r.Devices[target]; ok {
		return target, d
	}
	for _, name := range r.DeviceNames() {
		if strings.EqualFold(r.Devices[name].Nickname, target) {
			return name, r.Devices[name]
		}
	}
	return "", nil
}
