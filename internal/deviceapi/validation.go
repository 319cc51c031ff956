package deviceapi

import (
	"errors"
	"fmt"
)

// Limits enforced before a command is sent
const (
	MinSlaveID     = 1
	MaxSlaveID     = 247
	MinBlinkPeriod = 100   // ms
	MaxBlinkPeriod = 10000 // ms
	MinActuatorID  = 1
	MaxActuatorID  = 253
	MaxNameLength  = 31
	MaxSSIDLength  = 32
)

// SupportedBaudRates are the RS485 rates the firmware accepts
var SupportedBaudRates = []int{9600, 19200, 38400, 57600, 115200}

// ValidationError reports a command rejected before it reached the device
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// ValidateSlaveID checks a Modbus slave address
func ValidateSlaveID(id int) error {
	if id < MinSlaveID || id > MaxSlaveID {
		return NewValidationError("slave_id", fmt.Sprintf("must be %d-%d, got %d", MinSlaveID, MaxSlaveID, id))
	}
	return nil
}

// ValidateBlinkPeriod checks an LED blink period in milliseconds
func ValidateBlinkPeriod(ms int) error {
	if ms < MinBlinkPeriod || ms > MaxBlinkPeriod {
		return NewValidationError("blink_period", fmt.Sprintf("must be %d-%d ms, got %d", MinBlinkPeriod, MaxBlinkPeriod, ms))
	}
	return nil
}

// ValidateActuatorID checks an actuator bus address
func ValidateActuatorID(id int) error {
	if id < MinActuatorID || id > MaxActuatorID {
		return NewValidationError("id", fmt.Sprintf("must be %d-%d, got %d", MinActuatorID, MaxActuatorID, id))
	}
	return nil
}

// ValidateActuatorName checks a display name. Empty clears the name.
func ValidateActuatorName(name string) error {
	if len(name) > MaxNameLength {
		return NewValidationError("name", fmt.Sprintf("too long (max %d chars): %d chars", MaxNameLength, len(name)))
	}
	return nil
}

// ValidateGoal checks a motion target
func ValidateGoal(g Goal) error {
	if g.Position < 0 {
		return NewValidationError("position", fmt.Sprintf("must not be negative, got %d", g.Position))
	}
	if g.Speed < 0 {
		return NewValidationError("speed", fmt.Sprintf("must not be negative, got %d", g.Speed))
	}
	if g.Current < 0 {
		return NewValidationError("current", fmt.Sprintf("must not be negative, got %d", g.Current))
	}
	return nil
}

// ValidateBaudRate checks an RS485 baud rate
func ValidateBaudRate(baud int) error {
	for _, b := range SupportedBaudRates {
		if b == baud {
			return nil
		}
	}
	return NewValidationError("baud_rate", fmt.Sprintf("unsupported rate %d (supported: %v)", baud, SupportedBaudRates))
}

// ValidateWiFiCredentials checks a WiFi join request.
// WPA passwords are 8-63 characters; open networks take an empty one.
func ValidateWiFiCredentials(c WiFiCredentials) error {
	if c.SSID == "" {
		return NewValidationError("ssid", "cannot be empty")
	}
	if len(c.SSID) > MaxSSIDLength {
		return NewValidationError("ssid", fmt.Sprintf("too long (max %d chars): %d chars", MaxSSIDLength, len(c.SSID)))
	}
	if c.Password != "" && (len(c.Password) < 8 || len(c.Password) > 63) {
		return NewValidationError("password", fmt.Sprintf("must be 8-63 chars, got %d", len(c.Password)))
	}
	return nil
}
