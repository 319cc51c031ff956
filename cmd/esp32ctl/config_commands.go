package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/esp32ctl/internal/config"
)

var deviceNickname string

func init() {
	configCmd.AddCommand(configShowCmd, configSetDeviceCmd, configRemoveCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)

	configSetDeviceCmd.Flags().StringVar(&deviceNickname, "nickname", "", "User-friendly name, usable with --device")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage known devices and preferences",
	Long: fmt.Sprintf(`Manage the configuration file.

The file lives in the user config directory (esp32ctl/config.yaml) unless
%s points elsewhere. Flags always override it.`, config.PathEnvVar),
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		path, _ := config.GetConfigPath()
		return render(cmd.OutOrStdout(), registry, func() string {
			data, err := yaml.Marshal(registry)
			if err != nil {
				return err.Error()
			}
			return "# " + path + "\n" + string(data)
		}, func() string {
			var b strings.Builder
			for _, name := range registry.DeviceNames() {
				marker := " "
				if name == registry.DefaultDevice {
					marker = "*"
				}
				fmt.Fprintf(&b, "%s %-16s %s\n", marker, name, registry.Devices[name].BaseURL())
			}
			return strings.TrimSuffix(b.String(), "\n")
		})
	},
}

var configSetDeviceCmd = &cobra.Command{
	Use:   "set-device <name> <address>",
	Short: "Remember a device and make it the default",
	Example: `  esp32ctl config set-device bench 192.168.1.42
  esp32ctl config set-device ap 192.168.4.1 --port 8080 --nickname "Setup AP"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		name, address := args[0], args[1]
		registry.SetDefaultDevice(name, address, portFlag)
		if deviceNickname != "" {
			if err := registry.SetDeviceNickname(name, deviceNickname); err != nil {
				return err
			}
		}
		if err := registry.Save(); err != nil {
			return err
		}
		return done(cmd.OutOrStdout(), fmt.Sprintf("Default device set to %s (%s)", name, registry.Devices[name].BaseURL()))
	},
}

var configRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Forget a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		if !registry.RemoveDevice(args[0]) {
			return fmt.Errorf("unknown device %q", args[0])
		}
		if err := registry.Save(); err != nil {
			return err
		}
		return done(cmd.OutOrStdout(), "Removed "+args[0])
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.CreateDefaultConfig()
		if err != nil {
			return err
		}
		return done(cmd.OutOrStdout(), "Created "+path)
	},
}
