package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantKind    Kind
		wantSubtype NetworkSubtype
		retryable   bool
	}{
		{
			name:      "timeout",
			err:       &url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}},
			wantKind:  KindTimeout,
			retryable: true,
		},
		{
			name:      "deadline exceeded",
			err:       fmt.Errorf("wrapped: %w", context.DeadlineExceeded),
			wantKind:  KindTimeout,
			retryable: true,
		},
		{
			name:     "canceled",
			err:      &url.Error{Op: "Get", URL: "http://x", Err: context.Canceled},
			wantKind: KindCanceled,
		},
		{
			name:     "dns",
			err:      &net.DNSError{Name: "esp32.local", Err: "no such host"},
			wantKind: KindDNS,
		},
		{
			name:      "connection refused",
			err:       &url.Error{Op: "Get", URL: "http://x", Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}},
			wantKind:  KindConnectionRefused,
			retryable: true,
		},
		{
			name:        "host unreachable",
			err:         &net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH},
			wantKind:    KindNetwork,
			wantSubtype: NetworkHostUnreachable,
			retryable:   true,
		},
		{
			name:        "network unreachable",
			err:         &net.OpError{Op: "dial", Err: syscall.ENETUNREACH},
			wantKind:    KindNetwork,
			wantSubtype: NetworkNetworkUnreachable,
			retryable:   true,
		},
		{
			name:      "generic",
			err:       errors.New("connection reset"),
			wantKind:  KindNetwork,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, "192.168.4.1")
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Subtype != tt.wantSubtype {
				t.Errorf("Subtype = %v, want %v", got.Subtype, tt.wantSubtype)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if !errors.Is(got, tt.err) && got.Err != tt.err {
				t.Errorf("classified error should wrap the original")
			}
		})
	}

	if Classify(nil, "") != nil {
		t.Error("Classify(nil) should return nil")
	}
}

func TestFailureKinds(t *testing.T) {
	transportErr := NewStatusError("GET /api/status", 503, nil)
	appErr := &ApplicationError{Op: "POST /api/restart", Message: "busy"}
	wrapped := fmt.Errorf("refresh: %w", transportErr)

	if !IsTransportFailure(transportErr) || !IsTransportFailure(wrapped) {
		t.Error("status errors should be transport failures, also when wrapped")
	}
	if IsTransportFailure(appErr) {
		t.Error("application errors are not transport failures")
	}
	if !IsApplicationFailure(fmt.Errorf("x: %w", appErr)) {
		t.Error("wrapped application errors should be detected")
	}
	if IsTransportFailure(errors.New("plain")) {
		t.Error("unknown errors are not transport failures")
	}
	if !IsRetryable(transportErr) {
		t.Error("5xx should be retryable")
	}
	if IsRetryable(NewStatusError("GET /x", 404, nil)) {
		t.Error("4xx should not be retryable")
	}
}

func TestErrorMessages(t *testing.T) {
	err := NewStatusError("GET /api/tasks", 500, []byte("internal"))
	if !strings.Contains(err.Error(), "GET /api/tasks") || !strings.Contains(err.Error(), "internal") {
		t.Errorf("Error() = %q", err.Error())
	}
	if got := ShortMessage(err); got != "Device error (HTTP 500)" {
		t.Errorf("ShortMessage() = %q", got)
	}
	if !strings.Contains(Hint(err), "restarting") {
		t.Errorf("Hint() = %q", Hint(err))
	}
	if got := ShortMessage(&ApplicationError{}); got != "Failed" {
		t.Errorf("ShortMessage(empty app error) = %q, want Failed", got)
	}
	if got := (&ApplicationError{}).Error(); got != "operation failed" {
		t.Errorf("ApplicationError.Error() = %q", got)
	}
}
