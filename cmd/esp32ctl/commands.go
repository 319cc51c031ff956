package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/esp32ctl/internal/config"
	"github.com/muurk/esp32ctl/internal/connection"
	"github.com/muurk/esp32ctl/internal/deviceapi"
	"github.com/muurk/esp32ctl/internal/discovery"
	"github.com/muurk/esp32ctl/internal/logging"
	"github.com/muurk/esp32ctl/internal/modules"
	"github.com/muurk/esp32ctl/internal/poller"
	"github.com/muurk/esp32ctl/internal/session"
	"github.com/muurk/esp32ctl/internal/transport"
	"github.com/muurk/esp32ctl/internal/tui"
	"github.com/muurk/esp32ctl/internal/ui"
)

// Command flags
var (
	scanTimeout   int
	scanSave      bool
	watchInterval time.Duration
	assumeYes     bool
)

// stopTimeout bounds how long a session may take to shut down
const stopTimeout = 5 * time.Second

func init() {
	rootCmd.AddCommand(panelCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(scanCmd)
}

// panelCmd launches the interactive control panel
var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Launch the interactive control panel",
	Long: `Launch the full-screen control panel.

The panel shows one tab per feature module (Actuators, System, Tasks,
Config, Files, LED Modbus), loading each from the device the first time it
is opened. Device status is polled every 10 seconds and a banner reports
lost connections while the panel reconnects in the background.

Without --device or a default device the panel starts on discovery.`,
	Example: `  # Launch with discovery
  esp32ctl
  esp32ctl panel

  # Launch for a specific device
  esp32ctl --device 192.168.4.1`,
	RunE: runPanel,
}

func runPanel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// the panel owns the terminal; logs go to a file
	if os.Getenv(logging.LogFileEnvVar) == "" && (logLevel != "" || os.Getenv(logging.LogLevelEnvVar) != "") {
		path := filepath.Join(os.TempDir(), "esp32ctl.log")
		if err := logging.InitializeWithOutput(logLevel, path); err != nil {
			return err
		}
	}

	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	prefs := registry.Preferences

	var opts tui.Options
	if deviceFlag != "" || registry.DefaultDevice != "" {
		target, err := registry.Resolve(deviceFlag, portFlag)
		if err != nil {
			return err
		}
		s, err := startSession(ctx, target, prefs)
		if err != nil {
			return err
		}
		opts.Session = s
	} else {
		scanner := discovery.NewScanner()
		scanner.Timeout = prefs.DiscoverTimeoutDuration()
		scanner.Logger = logging.Named("discovery")
		opts.Scanner = scanner
		opts.Connect = func(ctx context.Context, d *discovery.Device) (*session.Session, error) {
			target, err := registry.Resolve(d.Address(), 0)
			if err != nil {
				return nil, err
			}
			s, err := startSession(ctx, target, prefs)
			if err != nil {
				return nil, err
			}
			registry.UpdateDeviceLastSeen(d.Name(), d.IP, d.Port)
			if err := registry.Save(); err != nil {
				logging.Warn("failed to save device", zap.Error(err))
			}
			return s, nil
		}
	}

	final, err := tea.NewProgram(tui.NewAppModel(ctx, opts), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if m, ok := final.(tui.AppModel); ok && m.Session() != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = m.Session().Stop(stopCtx)
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("control panel error: %w", err)
	}
	return nil
}

func startSession(ctx context.Context, target config.Target, prefs *config.Preferences) (*session.Session, error) {
	s, err := openSession(target, prefs)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// statusCmd shows the device status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show device status",
	Long: `Display heap, uptime, WiFi and Modbus state of a device.

This is the same endpoint the control panel polls for its status badges.`,
	Example: `  esp32ctl status --device 192.168.4.1
  esp32ctl status --format compact
  esp32ctl status --format json`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	api, target, err := connect(cmd)
	if err != nil {
		return err
	}

	status, err := api.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get status from %s: %w", target.BaseURL, err)
	}
	return render(cmd.OutOrStdout(), status, status.FormatDetailed, status.Summary)
}

// watchCmd follows the device like the control panel does, line by line
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow device status and connection changes",
	Long: `Poll the device status and print every result, connection banner
and notice until interrupted.

When the device stops answering the connection is retried with
exponential backoff (1s, 1.5s, 2.25s, ... up to 30s).`,
	Example: `  esp32ctl watch --device 192.168.4.1
  esp32ctl watch --interval 2s`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Poll interval (default: preference, 10s)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	target, registry, err := resolveTarget(ctx, out)
	if err != nil {
		return err
	}
	prefs := *registry.Preferences
	if watchInterval > 0 {
		prefs.PollInterval = max(1, int(watchInterval.Seconds()))
	}

	s, err := openSession(target, &prefs)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	printf := func(format string, a ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, a...)
	}

	s.Poller().Subscribe(func(r poller.Result) {
		stamp := r.At.Format("15:04:05")
		if r.Err != nil {
			printf("%s  %s %s\n", stamp, ui.FailureMarker, transport.ShortMessage(r.Err))
			return
		}
		printf("%s  %s %s\n", stamp, ui.SuccessMarker, r.Status.Summary())
	})
	s.Monitor().Subscribe(func(snap connection.Snapshot) {
		if snap.Banner.Visible() {
			printf("%s  %s %s\n", time.Now().Format("15:04:05"), ui.WarningMarker, snap.Banner.Message())
		}
	})
	s.Subscribe(func(n session.Notice) {
		printf("%s  %s %s\n", n.At.Format("15:04:05"), n.Level, n.Message)
	})

	printf("Watching %s (every %ds, Ctrl+C to stop)\n\n", target.BaseURL, prefs.PollInterval)
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}

// modulesCmd loads every feature module the way the panel does
var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Check that every feature module loads",
	Long: `Fetch and initialize every feature module served by the device.

Each module is a markup fragment and a code unit under /tabs/. A module
that fails to load shows a placeholder in the control panel.`,
	RunE: runModules,
}

func runModules(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	target, registry, err := resolveTarget(ctx, out)
	if err != nil {
		return err
	}
	s, err := openSession(target, registry.Preferences)
	if err != nil {
		return err
	}
	defer s.Stop(context.Background())

	names := modules.Names()
	steps := make([]string, len(names))
	for i, name := range names {
		steps[i] = name.Title()
	}

	runner := ui.NewRunner(ui.RunnerConfig{
		Title:     "Module Check",
		Command:   "esp32ctl modules",
		Params:    map[string]string{"Device": target.BaseURL},
		StepNames: steps,
		Output:    out,
	})
	_, err = runner.Run(ctx, func(ctx context.Context, onStep ui.StepCallback) (map[string]string, error) {
		var failed []string
		for i, name := range names {
			onStep(i+1, "", ui.StepRunning, "loading")
			err := s.Loader().Activate(ctx, name)
			switch {
			case modules.IsLoadError(err):
				failed = append(failed, name.String())
				onStep(i+1, "", ui.StepFailed, err.Error())
			case err != nil:
				onStep(i+1, "", ui.StepComplete, "loaded, init failed: "+transport.ShortMessage(err))
			default:
				onStep(i+1, "", ui.StepComplete, "loaded")
			}
		}

		details := map[string]string{
			"Loaded": fmt.Sprintf("%d/%d", len(names)-len(failed), len(names)),
		}
		if len(failed) > 0 {
			return details, fmt.Errorf("modules failed to load: %s", strings.Join(failed, ", "))
		}
		return details, nil
	})
	return err
}

// restartCmd reboots the device
var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the device",
	Example: `  esp32ctl restart --device 192.168.4.1
  esp32ctl restart --yes`,
	RunE: runRestart,
}

func init() {
	restartCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runRestart(cmd *cobra.Command, args []string) error {
	api, target, err := connect(cmd)
	if err != nil {
		return err
	}
	if !assumeYes && !ui.ConfirmRestart(cmd.InOrStdin(), cmd.OutOrStdout(), target.BaseURL) {
		return nil
	}
	if err := api.Restart(cmd.Context()); err != nil {
		return fmt.Errorf("restart failed: %w", err)
	}
	return done(cmd.OutOrStdout(), "Restarting...")
}

// scanCmd discovers devices on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for devices on the network",
	Long: `Scan for devices using mDNS/DNS-SD discovery.

Every HTTP service found on the network is probed on /api/status; only
services that answer like an ESP32 control panel are listed.`,
	Example: `  # Scan for 10 seconds (default)
  esp32ctl scan

  # Quick 3-second scan
  esp32ctl scan --timeout 3

  # Remember the devices found
  esp32ctl scan --save`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 0, "Scan timeout in seconds (default: preference, 10)")
	scanCmd.Flags().BoolVar(&scanSave, "save", false, "Add the devices found to the config file")
}

func runScan(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	timeout := registry.Preferences.DiscoverTimeoutDuration()
	if scanTimeout > 0 {
		timeout = time.Duration(scanTimeout) * time.Second
	}

	scanner := discovery.NewScanner()
	scanner.Timeout = timeout
	scanner.Logger = logging.Named("discovery")

	var devices []*discovery.Device
	runner := ui.NewRunner(ui.RunnerConfig{
		Title:     "Device Discovery",
		Command:   "esp32ctl scan",
		Params:    map[string]string{"Timeout": timeout.String()},
		StepNames: []string{"Browse and verify devices"},
		Output:    out,
	})
	_, err = runner.Run(cmd.Context(), func(ctx context.Context, onStep ui.StepCallback) (map[string]string, error) {
		onStep(1, "", ui.StepRunning, "browsing "+discovery.ServiceType)
		found, err := scanner.ScanForDevices(ctx)
		if err != nil {
			onStep(1, "", ui.StepFailed, err.Error())
			return nil, err
		}
		devices = found
		onStep(1, "", ui.StepComplete, fmt.Sprintf("%d found", len(found)))
		return map[string]string{"Devices": fmt.Sprint(len(found))}, nil
	})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	fmt.Fprintln(out)

	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices found.")
		fmt.Fprintln(out, "\nTroubleshooting:")
		fmt.Fprintln(out, "  - Ensure the device is powered on and joined to this network")
		fmt.Fprintln(out, "  - Multicast (UDP 5353) must not be blocked")
		fmt.Fprintln(out, "  - On the device's own access point, use --device 192.168.4.1")
		fmt.Fprintln(out, "  - Try increasing --timeout for slower networks")
		return nil
	}

	for i, d := range devices {
		fmt.Fprintf(out, "%d. %s\n", i+1, d.Name())
		fmt.Fprintf(out, "   Address: %s\n", d.Address())
		if d.Status != nil {
			fmt.Fprintf(out, "   Status:  %s\n", d.Status.Summary())
		}
		fmt.Fprintln(out)
		if scanSave {
			registry.UpdateDeviceLastSeen(d.Name(), d.IP, d.Port)
		}
	}

	if scanSave {
		if err := registry.Save(); err != nil {
			return fmt.Errorf("failed to save devices: %w", err)
		}
		fmt.Fprintf(out, "Saved %d device(s) to the config file\n", len(devices))
	}
	fmt.Fprintln(out, "Use 'esp32ctl status --device <name>' to query a device")
	fmt.Fprintln(out, "Use 'esp32ctl --device <name>' to open the control panel")
	return nil
}

// formatTasks renders the CPU chart for view "core" or "top"
func formatTasks(r *deviceapi.TaskReport, view string) string {
	var bars []deviceapi.CPUBar
	if view == "top" {
		bars = deviceapi.TopTasks(r.Tasks, 8)
	} else {
		bars = deviceapi.CoreUsage(r.Tasks, 4)
	}
	return deviceapi.FormatBars(bars, 30) + "\n" + r.FormatTable()
}
