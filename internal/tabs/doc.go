// Package tabs implements the feature modules of the device console:
// actuators, system, tasks, config, files and LED Modbus.
//
// Each tab is the native code behind a module's code unit. When the
// loader executes a code unit, the tab registers its Init, which refreshes
// the tab from the device and runs again on every activation. Key presses
// are mapped to Actions that the interface runs off the UI goroutine and
// reports as notifications.
//
// Set ties the tabs to the loader:
//
//	set := tabs.NewSet(api, tabs.Options{LEDSlaveID: 10})
//	rt := modules.NewBuiltinRuntime()
//	set.Provide(rt)
//	loader := modules.NewLoader(assets, rt, modules.WithView(set))
package tabs
