// Esp32ctl is a control panel for ESP32 actuator controllers.
//
// It talks to the device's HTTP API: status, WiFi, RS485 bus settings,
// linear actuators, the Modbus LED controller, FreeRTOS tasks and the
// flash filesystems. Running without arguments opens the full-screen
// control panel, which keeps watching the connection and reconnects with
// exponential backoff when the device stops answering.
//
// Usage:
//
//	esp32ctl [command] [flags]
//
// See 'esp32ctl --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/esp32ctl/internal/logging"
	"github.com/muurk/esp32ctl/internal/transport"
	"github.com/muurk/esp32ctl/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := transport.Hint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "esp32ctl",
	Short: "ESP32 Actuator Controller Control Panel",
	Long: `A control panel for ESP32 actuator controllers.

Provides device discovery, an interactive full-screen control panel and
direct commands for status, WiFi, RS485, actuators, the LED controller,
tasks and files.

If no command is specified, the control panel launches automatically.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
	RunE: runPanel,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&deviceFlag, "device", "", "Device name, nickname or address (skips discovery)")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 0, "Device HTTP port (default: stored port or 80)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", formatDetailed, "Output format (detailed, compact, json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides "+logging.LogLevelEnvVar)

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "esp32ctl %s\n", version.Full())
	},
}
