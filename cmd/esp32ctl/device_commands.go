package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/muurk/esp32ctl/internal/deviceapi"
	"github.com/muurk/esp32ctl/internal/tabs"
	"github.com/muurk/esp32ctl/internal/ui"
)

// Device command flags
var (
	wifiOpen      bool
	ledSlave      int
	goalSpeed     int
	goalCurrent   int
	taskView      string
	filePartition string
)

func init() {
	wifiCmd.AddCommand(wifiScanCmd, wifiConnectCmd, wifiStatusCmd)
	actuatorCmd.AddCommand(actuatorListCmd, actuatorScanCmd, actuatorAddCmd, actuatorRemoveCmd,
		actuatorNameCmd, actuatorForceCmd, actuatorMoveCmd)
	ledCmd.AddCommand(ledStatusCmd, ledOnCmd, ledOffCmd, ledBlinkCmd, ledPeriodCmd)
	rs485Cmd.AddCommand(rs485GetCmd, rs485SetCmd)
	filesCmd.AddCommand(filesListCmd, filesCatCmd, filesInfoCmd)

	rootCmd.AddCommand(wifiCmd, actuatorCmd, ledCmd, rs485Cmd, tasksCmd, filesCmd)

	wifiConnectCmd.Flags().BoolVar(&wifiOpen, "open", false, "Join an open network without a password")
	wifiConnectCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	ledCmd.PersistentFlags().IntVar(&ledSlave, "slave", 0, "LED controller Modbus address (default: configured, 10)")
	actuatorMoveCmd.Flags().IntVar(&goalSpeed, "speed", tabs.DefaultSpeed, "Motion speed")
	actuatorMoveCmd.Flags().IntVar(&goalCurrent, "current", tabs.DefaultCurrent, "Motor current limit")
	tasksCmd.Flags().StringVar(&taskView, "view", "core", "CPU chart (core: per-core load and top tasks, top: busiest tasks)")
	filesCmd.PersistentFlags().StringVar(&filePartition, "partition", string(deviceapi.PartitionUserdata), "Filesystem (www, userdata)")
}

// WiFi

var wifiCmd = &cobra.Command{
	Use:   "wifi",
	Short: "Scan and join WiFi networks",
}

var wifiScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List WiFi networks visible to the device",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, _, err := connect(cmd)
		if err != nil {
			return err
		}
		nets, err := api.ScanWiFi(cmd.Context())
		if err != nil {
			return fmt.Errorf("WiFi scan failed: %w", err)
		}
		return render(cmd.OutOrStdout(), nets, func() string {
			if len(nets) == 0 {
				return "No networks found"
			}
			var b strings.Builder
			b.WriteString(fmt.Sprintf("%-32s %6s %-10s %s\n", "SSID", "RSSI", "SIGNAL", "SECURITY"))
			for _, n := range nets {
				security := "secured"
				if n.Open() {
					security = "open"
				}
				b.WriteString(fmt.Sprintf("%-32s %6d %-10s %s\n", n.SSID, n.RSSI, deviceapi.SignalQuality(n.RSSI), security))
			}
			return b.String()
		}, nil)
	},
}

var wifiConnectCmd = &cobra.Command{
	Use:   "connect <ssid> [password]",
	Short: "Join a WiFi network",
	Long: `Ask the device to join a WiFi network as a station.

Without a password argument the password is read from the terminal, unless
--open is given.`,
	Example: `  esp32ctl wifi connect HomeNet
  esp32ctl wifi connect CafeGuest --open`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		creds := deviceapi.WiFiCredentials{SSID: args[0]}
		switch {
		case len(args) == 2:
			creds.Password = args[1]
		case !wifiOpen:
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			creds.Password = password
		}
		if err := deviceapi.ValidateWiFiCredentials(creds); err != nil {
			return err
		}

		api, _, err := connect(cmd)
		if err != nil {
			return err
		}
		if !assumeYes && !ui.ConfirmWiFiConnect(cmd.InOrStdin(), cmd.OutOrStdout(), creds.SSID) {
			return nil
		}
		if err := api.ConnectWiFi(cmd.Context(), creds); err != nil {
			return fmt.Errorf("WiFi connect failed: %w", err)
		}
		return done(cmd.OutOrStdout(), "Connecting to "+creds.SSID+"...")
	},
}

func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("password required: pass it as an argument or use --open")
	}
	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

var wifiStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the station connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, _, err := connect(cmd)
		if err != nil {
			return err
		}
		s, err := api.WiFiStatus(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get WiFi status: %w", err)
		}
		return render(cmd.OutOrStdout(), s, func() string {
			if !s.Connected {
				return "Not connected"
			}
			return fmt.Sprintf("SSID:   %s\nIP:     %s\nSignal: %d dBm (%s)",
				s.SSID, s.IP, s.RSSI, deviceapi.SignalQuality(s.RSSI))
		}, func() string {
			if !s.Connected {
				return "disconnected"
			}
			return fmt.Sprintf("%s %s %ddBm", s.SSID, s.IP, s.RSSI)
		})
	},
}

// Actuators

var actuatorCmd = &cobra.Command{
	Use:     "actuator",
	Aliases: []string{"actuators"},
	Short:   "Manage linear actuators on the RS485 bus",
}

var actuatorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered actuators",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, _, err := connect(cmd)
		if err != nil {
			return err
		}
		list, err := api.Actuators(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list actuators: %w", err)
		}
		return render(cmd.OutOrStdout(), list, list.FormatActuators, nil)
	},
}

var actuatorScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Probe the bus and register every actuator that answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, _, err := connect(cmd)
		if err != nil {
			return err
		}
		res, err := api.ScanActuators(cmd.Context())
		if err != nil {
			return fmt.Errorf("bus scan failed: %w", err)
		}
		return render(cmd.OutOrStdout(), res, func() string {
			ids := make([]string, len(res.Found))
			for i, f := range res.Found {
				ids[i] = strconv.Itoa(f.ID)
			}
			if len(ids) == 0 {
				return "No actuators answered"
			}
			return fmt.Sprintf("Found %d actuator(s): %s", res.Count, strings.Join(ids, ", "))
		}, nil)
	},
}

// actuatorIDCommand builds a command taking an actuator id and extra args
func actuatorIDCommand(use, short string, nargs int, run func(cmd *cobra.Command, api *deviceapi.Client, id int, args []string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			api, _, err := connect(cmd)
			if err != nil {
				return err
			}
			message, err := run(cmd, api, id, args[1:])
			if err != nil {
				return err
			}
			return done(cmd.OutOrStdout(), message)
		},
	}
}

var actuatorAddCmd = actuatorIDCommand("add <id>", "Register an actuator by bus address", 1,
	func(cmd *cobra.Command, api *deviceapi.Client, id int, _ []string) (string, error) {
		return fmt.Sprintf("Actuator %d added", id), api.AddActuator(cmd.Context(), id)
	})

var actuatorRemoveCmd = actuatorIDCommand("remove <id>", "Unregister an actuator", 1,
	func(cmd *cobra.Command, api *deviceapi.Client, id int, _ []string) (string, error) {
		return fmt.Sprintf("Actuator %d removed", id), api.RemoveActuator(cmd.Context(), id)
	})

var actuatorNameCmd = actuatorIDCommand("name <id> <name>", "Rename an actuator", 2,
	func(cmd *cobra.Command, api *deviceapi.Client, id int, args []string) (string, error) {
		return fmt.Sprintf("Actuator %d renamed to %s", id, args[0]), api.RenameActuator(cmd.Context(), id, args[0])
	})

var actuatorForceCmd = actuatorIDCommand("force <id> on|off", "Switch the holding force of an actuator", 2,
	func(cmd *cobra.Command, api *deviceapi.Client, id int, args []string) (string, error) {
		on, err := parseSwitch(args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Actuator %d force %s", id, args[0]), api.SetForce(cmd.Context(), id, on)
	})

var actuatorMoveCmd = actuatorIDCommand("move <id> <position>", "Move an actuator to a position", 2,
	func(cmd *cobra.Command, api *deviceapi.Client, id int, args []string) (string, error) {
		pos, err := strconv.Atoi(args[0])
		if err != nil {
			return "", fmt.Errorf("invalid position %q: %w", args[0], err)
		}
		goal := deviceapi.Goal{Position: pos, Speed: goalSpeed, Current: goalCurrent}
		return fmt.Sprintf("Actuator %d moving to %d", id, pos), api.MoveActuator(cmd.Context(), id, goal)
	})

// LED controller

var ledCmd = &cobra.Command{
	Use:   "led",
	Short: "Control the Modbus LED controller",
}

// ledCommand builds an LED subcommand around the control request build returns
func ledCommand(use, short string, nargs int, build func(args []string) (deviceapi.LEDCommand, string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, message, err := build(args)
			if err != nil {
				return err
			}
			api, target, err := connect(cmd)
			if err != nil {
				return err
			}
			c.SlaveID = slaveID(target.LEDSlaveID)
			if err := api.ControlLED(cmd.Context(), c); err != nil {
				return fmt.Errorf("LED command failed: %w", err)
			}
			return done(cmd.OutOrStdout(), message)
		},
	}
}

func slaveID(configured int) int {
	if ledSlave != 0 {
		return ledSlave
	}
	return configured
}

var ledStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the LED controller state",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, target, err := connect(cmd)
		if err != nil {
			return err
		}
		id := slaveID(target.LEDSlaveID)
		s, err := api.LEDStatus(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("failed to read LED controller %d: %w", id, err)
		}
		return render(cmd.OutOrStdout(), s, func() string { return s.FormatLED(id) }, nil)
	},
}

var ledOnCmd = ledCommand("on", "Switch the LED on", 0, func([]string) (deviceapi.LEDCommand, string, error) {
	on := true
	return deviceapi.LEDCommand{LEDOn: &on}, "LED on", nil
})

var ledOffCmd = ledCommand("off", "Switch the LED off", 0, func([]string) (deviceapi.LEDCommand, string, error) {
	off := false
	return deviceapi.LEDCommand{LEDOn: &off}, "LED off", nil
})

var ledBlinkCmd = ledCommand("blink on|off", "Switch blink mode", 1, func(args []string) (deviceapi.LEDCommand, string, error) {
	on, err := parseSwitch(args[0])
	if err != nil {
		return deviceapi.LEDCommand{}, "", err
	}
	return deviceapi.LEDCommand{BlinkMode: &on}, "Blink " + args[0], nil
})

var ledPeriodCmd = ledCommand("period <ms>", "Set the blink period", 1, func(args []string) (deviceapi.LEDCommand, string, error) {
	ms, err := strconv.Atoi(args[0])
	if err != nil {
		return deviceapi.LEDCommand{}, "", fmt.Errorf("invalid period %q: %w", args[0], err)
	}
	if err := deviceapi.ValidateBlinkPeriod(ms); err != nil {
		return deviceapi.LEDCommand{}, "", err
	}
	return deviceapi.LEDCommand{BlinkPeriod: &ms}, fmt.Sprintf("Blink period %d ms", ms), nil
})

// RS485

var rs485Cmd = &cobra.Command{
	Use:   "rs485",
	Short: "Read and change the RS485 bus settings",
}

var rs485GetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the bus configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, _, err := connect(cmd)
		if err != nil {
			return err
		}
		c, err := api.RS485Config(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read RS485 config: %w", err)
		}
		return render(cmd.OutOrStdout(), c, func() string {
			return fmt.Sprintf("Baud rate: %d\nTX pin:    %d\nRX pin:    %d\nDE pin:    %d", c.BaudRate, c.TXPin, c.RXPin, c.DEPin)
		}, func() string {
			return strconv.Itoa(c.BaudRate)
		})
	},
}

var rs485SetCmd = &cobra.Command{
	Use:   "set <baud>",
	Short: "Change the bus baud rate",
	Long: fmt.Sprintf(`Change the RS485 baud rate. The device saves the setting and restarts.

Supported rates: %s`, baudList()),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		baud, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid baud rate %q: %w", args[0], err)
		}
		if err := deviceapi.ValidateBaudRate(baud); err != nil {
			return err
		}
		api, _, err := connect(cmd)
		if err != nil {
			return err
		}
		if err := api.SetRS485Config(cmd.Context(), deviceapi.RS485Config{BaudRate: baud}); err != nil {
			return fmt.Errorf("failed to set RS485 config: %w", err)
		}
		return done(cmd.OutOrStdout(), fmt.Sprintf("Baud rate set to %d, device restarting", baud))
	},
}

func baudList() string {
	rates := make([]string, len(deviceapi.SupportedBaudRates))
	for i, r := range deviceapi.SupportedBaudRates {
		rates[i] = strconv.Itoa(r)
	}
	return strings.Join(rates, ", ")
}

// Tasks

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Show FreeRTOS tasks and CPU load",
	Example: `  esp32ctl tasks
  esp32ctl tasks --view top`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if taskView != "core" && taskView != "top" {
			return fmt.Errorf("invalid view %q (use core or top)", taskView)
		}
		api, _, err := connect(cmd)
		if err != nil {
			return err
		}
		r, err := api.Tasks(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read tasks: %w", err)
		}
		return render(cmd.OutOrStdout(), r, func() string { return formatTasks(r, taskView) }, r.FormatTable)
	},
}

// Files

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Browse the flash filesystems",
}

func partition() (deviceapi.Partition, error) {
	switch p := deviceapi.Partition(filePartition); p {
	case deviceapi.PartitionWWW, deviceapi.PartitionUserdata:
		return p, nil
	}
	return "", fmt.Errorf("invalid partition %q (use www or userdata)", filePartition)
}

var filesListCmd = &cobra.Command{
	Use:     "ls [dir]",
	Aliases: []string{"list"},
	Short:   "List a directory",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := partition()
		if err != nil {
			return err
		}
		dir := "/"
		if len(args) == 1 {
			dir = args[0]
		}
		api, _, err := connect(cmd)
		if err != nil {
			return err
		}
		l, err := api.ListFiles(cmd.Context(), p, dir)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", dir, err)
		}
		return render(cmd.OutOrStdout(), l, l.FormatListing, nil)
	},
}

var filesCatCmd = &cobra.Command{
	Use:   "cat <file>",
	Short: "Print a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := partition()
		if err != nil {
			return err
		}
		api, _, err := connect(cmd)
		if err != nil {
			return err
		}
		f, err := api.ReadFile(cmd.Context(), p, args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		return render(cmd.OutOrStdout(), f, func() string { return f.Content }, nil)
	},
}

var filesInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show partition usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, _, err := connect(cmd)
		if err != nil {
			return err
		}
		s, err := api.StorageInfo(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read storage info: %w", err)
		}
		return render(cmd.OutOrStdout(), s, s.FormatStorage, nil)
	},
}
