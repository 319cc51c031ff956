// Package config manages the esp32ctl configuration file.
//
// The file is YAML and stores the known devices (address, port, nickname
// and LED controller address), the default device, and preferences such as
// the status poll interval and the discovery timeout. Command line flags
// override what is stored here.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/esp32ctl/config.yaml or $HOME/.config/esp32ctl/config.yaml
//   - macOS: $HOME/.config/esp32ctl/config.yaml
//   - Windows: %LOCALAPPDATA%\esp32ctl\config.yaml
//
// ESP32CTL_CONFIG overrides the location.
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    return err
//	}
//	target, err := registry.Resolve(deviceFlag, portFlag)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(target.BaseURL)
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File writes are protected by a mutex and are atomic.
package config
