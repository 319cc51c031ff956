package deviceapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/muurk/esp32ctl/internal/transport"
)

// Client is a typed client for the device control API. Every call goes
// through the transport client, so its outcome reaches the transport's
// observers.
type Client struct {
	t *transport.Client
}

// New creates a device API client over t
func New(t *transport.Client) *Client {
	return &Client{t: t}
}

// Transport returns the underlying transport client
func (c *Client) Transport() *transport.Client {
	return c.t
}

// Status fetches the device health summary
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.t.Get(ctx, "/api/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Restart asks the device to reboot. The device may drop the connection
// before answering.
func (c *Client) Restart(ctx context.Context) error {
	return c.command(ctx, "/api/restart", nil)
}

// ScanWiFi lists visible WiFi networks
func (c *Client) ScanWiFi(ctx context.Context) ([]WiFiNetwork, error) {
	var nets []WiFiNetwork
	if err := c.t.Get(ctx, "/api/wifi/scan", &nets); err != nil {
		return nil, err
	}
	return nets, nil
}

// ConnectWiFi joins the device to a WiFi network
func (c *Client) ConnectWiFi(ctx context.Context, creds WiFiCredentials) error {
	if err := ValidateWiFiCredentials(creds); err != nil {
		return err
	}
	return c.command(ctx, "/api/wifi/connect", creds)
}

// WiFiStatus returns the station connection state
func (c *Client) WiFiStatus(ctx context.Context) (*WiFiStatus, error) {
	var s WiFiStatus
	if err := c.t.Get(ctx, "/api/wifi/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// LEDStatus reads the LED controller at Modbus address slaveID
func (c *Client) LEDStatus(ctx context.Context, slaveID int) (*LEDStatus, error) {
	if err := ValidateSlaveID(slaveID); err != nil {
		return nil, err
	}
	var s LEDStatus
	path := "/api/ledmodbus/status?id=" + strconv.Itoa(slaveID)
	if err := c.t.Get(ctx, path, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ControlLED switches the LED or changes its blink settings
func (c *Client) ControlLED(ctx context.Context, cmd LEDCommand) error {
	if err := ValidateSlaveID(cmd.SlaveID); err != nil {
		return err
	}
	if cmd.BlinkPeriod != nil {
		if err := ValidateBlinkPeriod(*cmd.BlinkPeriod); err != nil {
			return err
		}
	}
	if cmd.LEDOn == nil && cmd.BlinkMode == nil && cmd.BlinkPeriod == nil {
		return NewValidationError("", "LED command changes nothing")
	}
	return c.command(ctx, "/api/ledmodbus/control", cmd)
}

// ConfigureLED changes the controller address, persists its configuration
// or reboots it.
func (c *Client) ConfigureLED(ctx context.Context, cfg LEDConfig) error {
	if err := ValidateSlaveID(cfg.SlaveID); err != nil {
		return err
	}
	if cfg.NewSlaveID != 0 {
		if err := ValidateSlaveID(cfg.NewSlaveID); err != nil {
			return fmt.Errorf("new address: %w", err)
		}
	}
	return c.command(ctx, "/api/ledmodbus/config", cfg)
}

// RS485Config reads the bus configuration
func (c *Client) RS485Config(ctx context.Context) (*RS485Config, error) {
	var cfg RS485Config
	if err := c.t.Get(ctx, "/api/rs485/config", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetRS485Config stores a new bus configuration. It takes effect after a
// restart.
func (c *Client) SetRS485Config(ctx context.Context, cfg RS485Config) error {
	if err := ValidateBaudRate(cfg.BaudRate); err != nil {
		return err
	}
	return c.command(ctx, "/api/rs485/config", RS485Config{BaudRate: cfg.BaudRate})
}

// Actuators returns the status of every registered actuator
func (c *Client) Actuators(ctx context.Context) (*ActuatorList, error) {
	var list ActuatorList
	if err := c.t.Get(ctx, "/api/actuator/status", &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ScanActuators probes the bus and registers every actuator that answers
func (c *Client) ScanActuators(ctx context.Context) (*ScanResult, error) {
	var res ScanResult
	if err := c.t.Get(ctx, "/api/actuator/scan", &res); err != nil {
		return nil, err
	}
	if res.Error != "" {
		return &res, &transport.ApplicationError{Op: "GET /api/actuator/scan", StatusCode: 200, Message: res.Error}
	}
	return &res, nil
}

// AddActuator registers an actuator by bus address
func (c *Client) AddActuator(ctx context.Context, id int) error {
	if err := ValidateActuatorID(id); err != nil {
		return err
	}
	return c.command(ctx, "/api/actuator/add", map[string]int{"id": id})
}

// RemoveActuator unregisters an actuator
func (c *Client) RemoveActuator(ctx context.Context, id int) error {
	if err := ValidateActuatorID(id); err != nil {
		return err
	}
	return c.command(ctx, "/api/actuator/remove", map[string]int{"id": id})
}

// RenameActuator sets an actuator's display name
func (c *Client) RenameActuator(ctx context.Context, id int, name string) error {
	if err := ValidateActuatorID(id); err != nil {
		return err
	}
	if err := ValidateActuatorName(name); err != nil {
		return err
	}
	return c.command(ctx, "/api/actuator/set-name", struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}{id, name})
}

// SetForce enables or disables an actuator's motor drive
func (c *Client) SetForce(ctx context.Context, id int, on bool) error {
	if err := ValidateActuatorID(id); err != nil {
		return err
	}
	return c.command(ctx, "/api/actuator/control", struct {
		ID    int  `json:"id"`
		Force bool `json:"force"`
	}{id, on})
}

// MoveActuator sends a motion goal
func (c *Client) MoveActuator(ctx context.Context, id int, goal Goal) error {
	if err := ValidateActuatorID(id); err != nil {
		return err
	}
	if err := ValidateGoal(goal); err != nil {
		return err
	}
	return c.command(ctx, "/api/actuator/control", struct {
		ID   int  `json:"id"`
		Goal Goal `json:"goal"`
	}{id, goal})
}

// Tasks returns the FreeRTOS task report
func (c *Client) Tasks(ctx context.Context) (*TaskReport, error) {
	var r TaskReport
	if err := c.t.Get(ctx, "/api/tasks", &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListFiles lists dir on partition
func (c *Client) ListFiles(ctx context.Context, partition Partition, dir string) (*Listing, error) {
	if dir == "" {
		dir = "/"
	}
	q := url.Values{}
	q.Set("partition", string(partition))
	q.Set("dir", dir)

	var l Listing
	if err := c.t.Get(ctx, "/api/files/list?"+q.Encode(), &l); err != nil {
		return nil, err
	}
	if l.Path == "" {
		l.Path = dir
	}
	return &l, nil
}

// ReadFile returns the content of file on partition
func (c *Client) ReadFile(ctx context.Context, partition Partition, file string) (*FileContent, error) {
	q := url.Values{}
	q.Set("partition", string(partition))
	q.Set("file", file)

	var fc FileContent
	if err := c.t.Get(ctx, "/api/files/read?"+q.Encode(), &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

// StorageInfo returns used and total space per partition
func (c *Client) StorageInfo(ctx context.Context) (*StorageInfo, error) {
	var info StorageInfo
	if err := c.t.Get(ctx, "/api/files/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// command POSTs body. A {"success": false} reply comes back as a
// *transport.ApplicationError; an empty reply is accepted.
func (c *Client) command(ctx context.Context, path string, body any) error {
	return c.t.Post(ctx, path, body, nil)
}
