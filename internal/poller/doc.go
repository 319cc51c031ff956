// Package poller periodically reads the device status.
//
// Every result is fed to a Recorder (the connection monitor) and to
// subscribers, which use it for the WiFi and Modbus badges. The poller
// does not decide when the device is lost; it only reports what each poll
// saw. Because starting reconnection is idempotent, a failed poll during
// an active reconnection never starts a second probe loop.
package poller
