package deviceapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// WiFiConnectedStatus is the lowest wifi_status value that means the
// station is associated and has an address.
const WiFiConnectedStatus = 3

// Status is the response of GET /api/status
type Status struct {
	HeapFree    int64  `json:"heap_free"`
	UptimeMS    int64  `json:"uptime_ms"`
	WiFiIP      string `json:"wifi_ip"`
	WiFiSSID    string `json:"wifi_ssid"`
	WiFiRSSI    int    `json:"wifi_rssi"`
	WiFiStatus  int    `json:"wifi_status"`
	ModbusReady bool   `json:"modbus_ready"`
}

// WiFiConnected reports whether the device is on a WiFi network
func (s *Status) WiFiConnected() bool {
	return s.WiFiStatus >= WiFiConnectedStatus
}

// WiFiNetwork is one entry of GET /api/wifi/scan
type WiFiNetwork struct {
	SSID string `json:"ssid"`
	RSSI int    `json:"rssi"`
	Auth int    `json:"auth"`
}

// Open reports whether the network needs no password
func (n WiFiNetwork) Open() bool {
	return n.Auth == 0
}

// WiFiStatus is the response of GET /api/wifi/status
type WiFiStatus struct {
	IP        string `json:"ip"`
	SSID      string `json:"ssid"`
	RSSI      int    `json:"rssi"`
	Status    int    `json:"status"`
	Connected bool   `json:"connected"`
}

// WiFiCredentials is the body of POST /api/wifi/connect
type WiFiCredentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// Actuator is one linear actuator on the RS485 bus
type Actuator struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Connected bool    `json:"connected"`
	Position  int     `json:"position"`
	Current   int     `json:"current"`
	Voltage   float64 `json:"voltage"` // volts
	Moving    bool    `json:"moving"`
}

// Label returns the actuator name, or a generic label when it has none
func (a Actuator) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("Actuator %d", a.ID)
}

// ActuatorList is the response of GET /api/actuator/status
type ActuatorList struct {
	Actuators []Actuator `json:"actuators"`
	Count     int        `json:"count"`
}

// FoundActuator is one actuator answering a bus scan
type FoundActuator struct {
	ID    int `json:"id"`
	Model int `json:"model,omitempty"`
}

// ScanResult is the response of GET /api/actuator/scan
type ScanResult struct {
	Found []FoundActuator `json:"found"`
	Count int             `json:"count"`
	Error string          `json:"error,omitempty"`
}

// Goal is a motion target for one actuator
type Goal struct {
	Position int `json:"position"`
	Speed    int `json:"speed"`
	Current  int `json:"current"`
}

// LEDStatus is the response of GET /api/ledmodbus/status and of the older
// GET /api/led/status, which reports "error" as a bool next to "message".
type LEDStatus struct {
	Connected   bool   `json:"connected"`
	LEDOn       bool   `json:"led_on"`
	BlinkMode   bool   `json:"blink_mode"`
	BlinkPeriod int    `json:"blink_period"`
	FWVersion   Text   `json:"fw_version"`
	DeviceID    int    `json:"device_id,omitempty"`
	Error       Text   `json:"error,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Online reports whether the LED controller answered. The older endpoint
// has no "connected" field and signals success with "error": false.
func (s *LEDStatus) Online() bool {
	return s.Connected || s.Error == "false"
}

// Problem returns the reason the LED controller is unavailable, if any
func (s *LEDStatus) Problem() string {
	switch {
	case s.Error != "" && s.Error != "false" && s.Error != "true":
		return string(s.Error)
	case s.Message != "" && s.Error == "true":
		return s.Message
	case s.Error == "true":
		return "Slave not responding"
	}
	return ""
}

// Text is a string field the firmware sometimes sends as a number or bool
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	switch string(data) {
	case "true", "false":
		*t = Text(data)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("unexpected value %s", data)
	}
	*t = Text(data)
	return nil
}

// LEDCommand is the body of POST /api/ledmodbus/control. Only the set
// fields are sent.
type LEDCommand struct {
	SlaveID     int   `json:"slave_id"`
	LEDOn       *bool `json:"led_on,omitempty"`
	BlinkMode   *bool `json:"blink_mode,omitempty"`
	BlinkPeriod *int  `json:"blink_period,omitempty"`
}

// LEDConfig is the body of POST /api/ledmodbus/config
type LEDConfig struct {
	SlaveID    int  `json:"slave_id"`
	NewSlaveID int  `json:"new_slave_id,omitempty"`
	SaveConfig bool `json:"save_config,omitempty"`
	Reboot     bool `json:"reboot,omitempty"`
}

// RS485Config is the bus configuration. The pins are read-only.
type RS485Config struct {
	BaudRate int `json:"baud_rate"`
	TXPin    int `json:"tx_pin,omitempty"`
	RXPin    int `json:"rx_pin,omitempty"`
	DEPin    int `json:"de_pin,omitempty"`
}

// Task is one FreeRTOS task
type Task struct {
	Name       string  `json:"name"`
	State      string  `json:"state"`
	Priority   int     `json:"priority"`
	CPUPercent float64 `json:"cpu_percent"`
	StackHWM   int     `json:"stack_hwm"` // in words
}

// StackFreeBytes is the stack high-water mark in bytes
func (t Task) StackFreeBytes() int64 {
	return int64(t.StackHWM) * 4
}

// TaskReport is the response of GET /api/tasks
type TaskReport struct {
	HeapFree  int64  `json:"heap_free"`
	HeapMin   int64  `json:"heap_min"`
	UptimeS   int64  `json:"uptime_s"`
	TaskCount int    `json:"task_count"`
	Tasks     []Task `json:"tasks"`
}

// Partition selects a flash filesystem
type Partition string

const (
	PartitionWWW      Partition = "www"
	PartitionUserdata Partition = "userdata"
)

// FileEntry is one entry of a directory listing
type FileEntry struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"isDir"`
}

// Listing is the response of GET /api/files/list
type Listing struct {
	Path  string      `json:"path,omitempty"`
	Files []FileEntry `json:"files"`
}

// FileContent is the response of GET /api/files/read
type FileContent struct {
	Content string `json:"content"`
}

// Usage is the space used on one partition
type Usage struct {
	Used  int64 `json:"used"`
	Total int64 `json:"total"`
}

// Percent returns used space as a percentage of the total
func (u Usage) Percent() float64 {
	if u.Total <= 0 {
		return 0
	}
	return float64(u.Used) * 100 / float64(u.Total)
}

// StorageInfo is the response of GET /api/files/info
type StorageInfo struct {
	WWW      Usage `json:"www"`
	Userdata Usage `json:"userdata"`
}
