package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// Kind is the category of a transport-level failure
type Kind int

const (
	// KindNetwork indicates a network-level error (unreachable host, reset, ...)
	KindNetwork Kind = iota
	// KindTimeout indicates the request did not complete in time
	KindTimeout
	// KindConnectionRefused indicates the device refused the connection
	KindConnectionRefused
	// KindDNS indicates a DNS resolution failure
	KindDNS
	// KindHTTPStatus indicates a non-2xx response without a usable error body
	KindHTTPStatus
	// KindParse indicates a response body that could not be decoded
	KindParse
	// KindCanceled indicates the caller canceled the request. It says
	// nothing about the device's reachability.
	KindCanceled
)

// NetworkSubtype provides more specific network error classification
type NetworkSubtype int

const (
	NetworkGeneral NetworkSubtype = iota
	NetworkHostUnreachable
	NetworkNetworkUnreachable
)

// String returns a human-readable name for the kind
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "Network Error"
	case KindTimeout:
		return "Timeout"
	case KindConnectionRefused:
		return "Connection Refused"
	case KindDNS:
		return "DNS Error"
	case KindHTTPStatus:
		return "HTTP Error"
	case KindParse:
		return "Parse Error"
	case KindCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Error is a transport failure: the request could not complete or the
// response was not usable. Only this error kind affects connectivity state.
type Error struct {
	Kind       Kind
	Op         string // "GET /api/status"
	Message    string
	StatusCode int
	Err        error
	Subtype    NetworkSubtype
	Host       string
	Retryable  bool
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := e.Kind.String()
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// ApplicationError means the transport succeeded but the device reported
// that the requested operation failed. It never affects connectivity state.
type ApplicationError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ApplicationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "operation failed"
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Classify analyzes a client error and returns a transport Error
func Classify(err error, host string) *Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCanceled, Message: "request canceled", Err: err, Host: host}
	}

	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Kind:      KindTimeout,
			Message:   "request timed out",
			Err:       err,
			Host:      host,
			Retryable: true,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{
			Kind:    KindDNS,
			Message: fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:     err,
			Host:    host,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &Error{
				Kind:      KindConnectionRefused,
				Message:   "device refused connection",
				Err:       err,
				Host:      host,
				Retryable: true,
			}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &Error{
				Kind:      KindNetwork,
				Message:   "host unreachable",
				Err:       err,
				Subtype:   NetworkHostUnreachable,
				Host:      host,
				Retryable: true,
			}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &Error{
				Kind:      KindNetwork,
				Message:   "network unreachable",
				Err:       err,
				Subtype:   NetworkNetworkUnreachable,
				Host:      host,
				Retryable: true,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return Classify(urlErr.Err, host)
	}

	return &Error{
		Kind:      KindNetwork,
		Message:   "network error occurred",
		Err:       err,
		Host:      host,
		Retryable: true,
	}
}

// NewStatusError creates an error for a non-2xx response
func NewStatusError(op string, statusCode int, body []byte) *Error {
	msg := fmt.Sprintf("unexpected status code: %d", statusCode)
	if snippet := strings.TrimSpace(string(body)); snippet != "" {
		if len(snippet) > 120 {
			snippet = snippet[:120] + "..."
		}
		msg = fmt.Sprintf("%s: %s", msg, snippet)
	}
	return &Error{
		Kind:       KindHTTPStatus,
		Op:         op,
		Message:    msg,
		StatusCode: statusCode,
		Retryable:  statusCode >= 500,
	}
}

// NewParseError creates a parsing error
func NewParseError(op, message string, err error) *Error {
	return &Error{
		Kind:    KindParse,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// IsTransportFailure reports whether err is a transport failure that says
// the device may be unreachable. Cancellation by the caller is not one.
func IsTransportFailure(err error) bool {
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.Kind != KindCanceled
	}
	return false
}

// IsApplicationFailure reports whether err is a device-reported failure
func IsApplicationFailure(err error) bool {
	var appErr *ApplicationError
	return errors.As(err, &appErr)
}

// IsCanceled reports whether err comes from caller cancellation
func IsCanceled(err error) bool {
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.Kind == KindCanceled
	}
	return errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err is a transport timeout
func IsTimeout(err error) bool {
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.Kind == KindTimeout
	}
	return false
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.Retryable
	}
	return false
}

// ShortMessage returns a concise, user-friendly error message
func ShortMessage(err error) string {
	if err == nil {
		return ""
	}

	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		if appErr.Message == "" {
			return "Failed"
		}
		return appErr.Message
	}

	var tErr *Error
	if !errors.As(err, &tErr) {
		return err.Error()
	}

	switch tErr.Kind {
	case KindTimeout:
		return "Device not responding (timeout)"
	case KindConnectionRefused:
		return "Device refused connection"
	case KindDNS:
		return "Cannot resolve device hostname"
	case KindNetwork:
		switch tErr.Subtype {
		case NetworkHostUnreachable:
			return "Device unreachable - check network connection"
		case NetworkNetworkUnreachable:
			return "Network unreachable - check WiFi connection"
		default:
			return "Communication error"
		}
	case KindHTTPStatus:
		return fmt.Sprintf("Device error (HTTP %d)", tErr.StatusCode)
	case KindParse:
		return "Failed to parse device response"
	case KindCanceled:
		return "Canceled"
	default:
		return tErr.Message
	}
}

// Hint returns troubleshooting advice for an error
func Hint(err error) string {
	var tErr *Error
	if !errors.As(err, &tErr) {
		if IsApplicationFailure(err) {
			return "The device rejected the request. Check the values and try again."
		}
		return "An unexpected error occurred. Please try again."
	}

	switch tErr.Kind {
	case KindTimeout:
		return strings.Join([]string{
			"The device did not respond in time.",
			"Troubleshooting:",
			"  • Check that the device is powered on",
			"  • Verify you're on the same network as the device",
			"  • Move closer to the access point to improve signal strength",
		}, "\n")

	case KindConnectionRefused:
		return strings.Join([]string{
			"The device refused the connection.",
			"Troubleshooting:",
			"  • The device's HTTP server may still be starting - wait a few seconds",
			"  • Verify the port number (default is 80)",
		}, "\n")

	case KindDNS:
		return strings.Join([]string{
			"Could not resolve the device hostname.",
			"Troubleshooting:",
			"  • Use the IP address instead of hostname",
			"  • Run 'esp32ctl scan' to discover devices",
		}, "\n")

	case KindNetwork:
		hint := []string{"Network communication failed."}
		switch tErr.Subtype {
		case NetworkHostUnreachable:
			hint = append(hint, "The device is not reachable on the network.",
				"Troubleshooting:",
				"  • Verify the device IP address is correct",
				"  • Try pinging the device: ping "+tErr.Host)
		case NetworkNetworkUnreachable:
			hint = append(hint, "Your computer cannot reach the device's network.",
				"Troubleshooting:",
				"  • Connect to the device's WiFi access point",
				"  • Check your network adapter settings")
		default:
			hint = append(hint, "Troubleshooting:",
				"  • Check your network connection",
				"  • Verify the device is powered on")
		}
		return strings.Join(hint, "\n")

	case KindHTTPStatus:
		if tErr.StatusCode >= 500 {
			return fmt.Sprintf("The device returned an error (HTTP %d). Try restarting it.", tErr.StatusCode)
		}
		return fmt.Sprintf("The device returned HTTP error %d. Check the firmware version supports this request.", tErr.StatusCode)

	case KindParse:
		return "Failed to parse the device's response. The firmware may be incompatible."

	default:
		return "An error occurred. Please check the error message for details."
	}
}
