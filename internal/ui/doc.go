// Package ui provides terminal rendering for esp32ctl.
//
// Two kinds of output live here. Command output follows a "run once and
// exit" pattern:
//
//   - Header: command banner showing operation name and parameters
//   - Progress / Runner: step list for multi-step operations (discovery,
//     bus scans)
//   - Result: success/failure boxes, with troubleshooting tips derived from
//     transport errors
//   - Confirm: typed confirmation before disruptive operations
//
// Interactive pieces are consumed by the TUI:
//
//   - RenderBanner: the connection banner projection as styled text
//   - Badge, RenderToast, RenderTabBar, RenderPlaceholder
//
// # Logging Integration
//
// zap logging is silent unless ESP32CTL_LOG_LEVEL is set, so the curated
// output stays clean. Set ESP32CTL_LOG_FILE when running the TUI so log
// lines do not fight with the renderer for the terminal.
package ui
