package modules

import (
	"fmt"
	"strings"
)

// Name identifies one feature module. The set is closed.
type Name int

const (
	Actuators Name = iota
	System
	Tasks
	Config
	Files
	LEDModbus

	numNames
)

var names = [numNames]string{
	Actuators: "actuators",
	System:    "system",
	Tasks:     "tasks",
	Config:    "config",
	Files:     "files",
	LEDModbus: "ledmodbus",
}

var titles = [numNames]string{
	Actuators: "Actuators",
	System:    "System",
	Tasks:     "Tasks",
	Config:    "Config",
	Files:     "Files",
	LEDModbus: "LED Modbus",
}

// Names returns every module in tab order
func Names() []Name {
	out := make([]Name, 0, numNames)
	for n := Name(0); n < numNames; n++ {
		out = append(out, n)
	}
	return out
}

// Valid reports whether n is one of the known modules
func (n Name) Valid() bool {
	return n >= 0 && n < numNames
}

// String returns the module key used in asset paths, e.g. "ledmodbus"
func (n Name) String() string {
	if !n.Valid() {
		return fmt.Sprintf("Name(%d)", int(n))
	}
	return names[n]
}

// Title returns the display name of the module's tab
func (n Name) Title() string {
	if !n.Valid() {
		return n.String()
	}
	return titles[n]
}

// ParseName maps a module key to its Name
func ParseName(s string) (Name, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for n := Name(0); n < numNames; n++ {
		if names[n] == key {
			return n, nil
		}
	}
	return 0, fmt.Errorf("unknown module %q (valid: %s)", s, strings.Join(names[:], ", "))
}

// MarshalText implements encoding.TextMarshaler
func (n Name) MarshalText() ([]byte, error) {
	if !n.Valid() {
		return nil, fmt.Errorf("invalid module name %d", int(n))
	}
	return []byte(names[n]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (n *Name) UnmarshalText(text []byte) error {
	parsed, err := ParseName(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
