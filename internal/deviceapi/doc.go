// Package deviceapi is a typed client for the ESP32 control API.
//
// The device exposes a small JSON API over plain HTTP:
//
//	GET  /api/status                 heap, uptime, WiFi and Modbus state
//	POST /api/restart                reboot
//	GET  /api/wifi/scan|status       WiFi networks and station state
//	POST /api/wifi/connect           join a network
//	GET  /api/ledmodbus/status?id=N  LED controller on the Modbus bus
//	POST /api/ledmodbus/control      LED on/off, blink mode and period
//	POST /api/ledmodbus/config       change address, save, reboot
//	GET  /api/rs485/config           bus configuration (POST to change)
//	GET  /api/actuator/status|scan   linear actuators on the bus
//	POST /api/actuator/add|remove|set-name|control
//	GET  /api/tasks                  FreeRTOS task report
//	GET  /api/files/list|read|info   flash filesystem browser
//
// Commands answer with {"success": bool, "message": string}. A false
// success is returned as *transport.ApplicationError; the device was
// reachable, so it does not count against the connection.
//
// Arguments are validated before a request is made and rejected with
// *ValidationError.
package deviceapi
