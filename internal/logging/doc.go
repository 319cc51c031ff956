// Package logging provides structured logging for esp32ctl.
//
// This package wraps zap with a process-wide logger and convenience
// functions. Logging is silent unless a level is requested, so CLI output and
// the terminal UI are never interleaved with log lines by accident.
//
// # Log Levels
//
//   - Debug: every device request, probe results, module fetches
//   - Info: connection state changes, module activation
//   - Warn: reconnection attempts, asset load failures
//   - Error: unexpected failures
//
// # Configuration
//
// The level comes from the --log-level flag or ESP32CTL_LOG_LEVEL. Output
// goes to stdout unless ESP32CTL_LOG_FILE names a file:
//
//	ESP32CTL_LOG_LEVEL=debug ESP32CTL_LOG_FILE=/tmp/esp32ctl.log esp32ctl
//
// Components take a *zap.Logger in their constructors and fall back to
// Named(component) when none is given:
//
//	logger := logging.Named("connection")
//	logger.Info("probe failed", zap.Int("retry", 3))
package logging
