// Package tui implements the full-screen terminal control panel for an
// ESP32 device.
//
// The application has three screens:
//   - Discovery: browse mDNS for devices or type an address
//   - Connecting: a session is being opened for the chosen device
//   - Console: the tabbed control panel for one session
//
// The console mirrors the device's web interface: a tab bar with WiFi and
// Modbus badges, the connection banner, the active tab's body in a
// scrolling viewport and a status line carrying toasts. Tabs load lazily
// through the session's module loader the first time they are shown. A
// tab that fails to load shows a placeholder instead of its content.
//
// Session callbacks (connection changes, status polls and notices) arrive
// on background goroutines. They are forwarded into the Bubble Tea loop
// through a buffered channel that the model drains one message at a time.
//
// # Usage Example
//
//	s, _ := session.New(session.Config{BaseURL: "http://192.168.4.1"})
//	_ = s.Start(ctx)
//	defer s.Stop(context.Background())
//
//	app := tui.NewAppModel(ctx, tui.Options{Session: s})
//	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// Without a session the application starts on discovery and opens one
// through Options.Connect once a device is picked.
package tui
