package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/esp32ctl/internal/config"
	"github.com/muurk/esp32ctl/internal/deviceapi"
	"github.com/muurk/esp32ctl/internal/discovery"
	"github.com/muurk/esp32ctl/internal/logging"
	"github.com/muurk/esp32ctl/internal/session"
	"github.com/muurk/esp32ctl/internal/transport"
)

// Global flags
var (
	deviceFlag   string
	portFlag     int
	outputFormat string
	logLevel     string
)

const (
	formatDetailed = "detailed"
	formatCompact  = "compact"
	formatJSON     = "json"
)

// loadRegistry is swapped in tests
var loadRegistry = config.LoadRegistry

// resolveTarget picks the device a command talks to: --device, then the
// registry default, then auto-discovery when exactly one device answers.
func resolveTarget(ctx context.Context, out io.Writer) (config.Target, *config.Registry, error) {
	registry, err := loadRegistry()
	if err != nil {
		return config.Target{}, nil, err
	}

	if deviceFlag != "" || registry.DefaultDevice != "" || !registry.Preferences.AutoDiscover {
		target, err := registry.Resolve(deviceFlag, portFlag)
		return target, registry, err
	}

	fmt.Fprintln(out, "No device specified, attempting auto-discovery...")
	devices, err := discovery.ScanForDevices(ctx, registry.Preferences.DiscoverTimeoutDuration())
	if err != nil {
		return config.Target{}, registry, fmt.Errorf("discovery failed: %w", err)
	}

	switch len(devices) {
	case 0:
		return config.Target{}, registry, fmt.Errorf("no devices found. Use --device to specify an address")
	case 1:
		fmt.Fprintf(out, "Found %s\n\n", devices[0])
		target, err := registry.Resolve(devices[0].Address(), portFlag)
		return target, registry, err
	default:
		fmt.Fprintf(out, "Found %d devices:\n", len(devices))
		for i, d := range devices {
			fmt.Fprintf(out, "%d. %s (%s)\n", i+1, d.Name(), d.Address())
		}
		return config.Target{}, registry, fmt.Errorf("multiple devices found. Use --device to specify which one")
	}
}

// connect resolves the target and returns an API client for it
func connect(cmd *cobra.Command) (*deviceapi.Client, config.Target, error) {
	target, _, err := resolveTarget(cmd.Context(), cmd.OutOrStdout())
	if err != nil {
		return nil, target, err
	}
	tc, err := transport.NewClient(target.BaseURL, transport.WithLogger(logging.Named("transport")))
	if err != nil {
		return nil, target, err
	}
	return deviceapi.New(tc), target, nil
}

// openSession builds a session for target using the registry preferences
func openSession(target config.Target, prefs *config.Preferences) (*session.Session, error) {
	if prefs == nil {
		prefs = config.DefaultPreferences()
	}
	return session.New(session.Config{
		BaseURL:      target.BaseURL,
		PollInterval: prefs.PollIntervalDuration(),
		ProbeTimeout: prefs.ProbeTimeoutDuration(),
		LEDSlaveID:   target.LEDSlaveID,
		Logger:       logging.Named("session"),
	})
}

// render prints v as JSON for --format json, otherwise the text for the
// selected format
func render(w io.Writer, v any, detailed, compact func() string) error {
	switch outputFormat {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))
	case formatCompact:
		if compact != nil {
			fmt.Fprintln(w, compact())
			return nil
		}
		fallthrough
	default:
		fmt.Fprintln(w, detailed())
	}
	return nil
}

// done prints the outcome of a device command
func done(w io.Writer, message string) error {
	if outputFormat == formatJSON {
		return render(w, map[string]any{"success": true, "message": message}, nil, nil)
	}
	fmt.Fprintf(w, "✓ %s\n", message)
	return nil
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid actuator id %q: %w", arg, err)
	}
	return id, deviceapi.ValidateActuatorID(id)
}

// parseSwitch accepts on/off style arguments
func parseSwitch(arg string) (bool, error) {
	switch arg {
	case "on", "1", "true", "yes":
		return true, nil
	case "off", "0", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid value %q (use on/off)", arg)
}
