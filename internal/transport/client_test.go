package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

type recordingObserver struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingObserver) ObserveTransport(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingObserver) outcomes() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *recordingObserver) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	obs := &recordingObserver{}
	client.AddObserver(obs)
	return client, obs
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://192.168.4.1", "http://192.168.4.1", false},
		{"192.168.4.1", "http://192.168.4.1", false},
		{"192.168.4.1:8080/", "http://192.168.4.1:8080", false},
		{"http://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			client, err := NewClient(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NewClient(%q) error = nil, want error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient(%q) error = %v", tt.in, err)
			}
			if client.BaseURL() != tt.want {
				t.Errorf("BaseURL() = %s, want %s", client.BaseURL(), tt.want)
			}
		})
	}
}

func TestDo_Success(t *testing.T) {
	client, obs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			t.Errorf("path = %s, want /api/status", r.URL.Path)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("X-Request-ID header should be set")
		}
		w.Write([]byte(`{"heap_free": 1234, "modbus_ready": true}`))
	})

	var out struct {
		HeapFree    int  `json:"heap_free"`
		ModbusReady bool `json:"modbus_ready"`
	}
	if err := client.Get(context.Background(), "/api/status", &out); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if out.HeapFree != 1234 || !out.ModbusReady {
		t.Errorf("decoded = %+v", out)
	}

	outcomes := obs.outcomes()
	if len(outcomes) != 1 || outcomes[0] != nil {
		t.Errorf("observer outcomes = %v, want [nil]", outcomes)
	}
}

func TestDo_ApplicationFailure(t *testing.T) {
	client, obs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["led_on"] != true {
			t.Errorf("request body = %v", body)
		}
		w.Write([]byte(`{"success": false, "message": "Modbus not initialized"}`))
	})

	err := client.Post(context.Background(), "/api/led/control", map[string]bool{"led_on": true}, nil)
	if !IsApplicationFailure(err) {
		t.Fatalf("Post() error = %v, want application failure", err)
	}
	if IsTransportFailure(err) {
		t.Error("application failure must not be a transport failure")
	}
	if got := ShortMessage(err); got != "Modbus not initialized" {
		t.Errorf("ShortMessage() = %q", got)
	}

	outcomes := obs.outcomes()
	if len(outcomes) != 1 || !IsApplicationFailure(outcomes[0]) {
		t.Errorf("observer outcomes = %v, want one application failure", outcomes)
	}
}

func TestDo_ApplicationFailureErrorField(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error": "not found"}`))
	})

	err := client.Post(context.Background(), "/api/actuator/remove", map[string]int{"id": 7}, nil)
	var appErr *ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("Post() error = %v, want *ApplicationError", err)
	}
	if appErr.Message != "not found" {
		t.Errorf("Message = %q, want %q", appErr.Message, "not found")
	}
}

func TestWithTimeout_LeavesCallerClient(t *testing.T) {
	hc := &http.Client{Timeout: time.Minute}
	client, err := NewClient("192.168.4.1", WithHTTPClient(hc), WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if hc.Timeout != time.Minute {
		t.Errorf("caller client Timeout = %v, want %v", hc.Timeout, time.Minute)
	}
	if client.http.Timeout != 2*time.Second {
		t.Errorf("client Timeout = %v, want %v", client.http.Timeout, 2*time.Second)
	}
}

func TestDo_StatusErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantApp     bool
		wantTranspt bool
	}{
		{"500 plain text", http.StatusInternalServerError, "boom", false, true},
		{"404 html", http.StatusNotFound, "<h1>Not found</h1>", false, true},
		{"404 json error", http.StatusNotFound, `{"error":"File not found"}`, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			err := client.Get(context.Background(), "/api/files/read", nil)
			if IsApplicationFailure(err) != tt.wantApp {
				t.Errorf("IsApplicationFailure(%v) = %v, want %v", err, !tt.wantApp, tt.wantApp)
			}
			if IsTransportFailure(err) != tt.wantTranspt {
				t.Errorf("IsTransportFailure(%v) = %v, want %v", err, !tt.wantTranspt, tt.wantTranspt)
			}
		})
	}
}

func TestDo_ParseError(t *testing.T) {
	client, obs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"heap_free": `))
	})

	var out map[string]any
	err := client.Get(context.Background(), "/api/status", &out)

	var tErr *Error
	if !IsTransportFailure(err) {
		t.Fatalf("Get() error = %v, want transport failure", err)
	}
	if !errors.As(err, &tErr) || tErr.Kind != KindParse {
		t.Errorf("error kind = %v, want %v", tErr, KindParse)
	}

	outcomes := obs.outcomes()
	if len(outcomes) != 1 || !IsTransportFailure(outcomes[0]) {
		t.Errorf("observer outcomes = %v, want one transport failure", outcomes)
	}
}

func TestDo_ArrayResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"ssid":"home","rssi":-40,"auth":3}]`))
	})

	var nets []map[string]any
	if err := client.Get(context.Background(), "/api/wifi/scan", &nets); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(nets) != 1 || nets[0]["ssid"] != "home" {
		t.Errorf("decoded = %v", nets)
	}
}

func TestPerform_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := NewClient(url)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	obs := &recordingObserver{}
	client.AddObserver(obs)

	_, err = client.Perform(context.Background(), http.MethodGet, "/api/status", nil)
	if !IsTransportFailure(err) {
		t.Fatalf("Perform() error = %v, want transport failure", err)
	}

	if got := client.Stats().Failures; got != 1 {
		t.Errorf("Stats().Failures = %d, want 1", got)
	}
	if len(obs.outcomes()) != 1 {
		t.Errorf("observer should be notified of the failure")
	}
}

func TestPerform_Canceled(t *testing.T) {
	client, obs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Perform(ctx, http.MethodGet, "/api/status", nil)
	if !IsCanceled(err) {
		t.Fatalf("Perform() error = %v, want canceled", err)
	}
	if IsTransportFailure(err) {
		t.Error("cancellation must not count as a transport failure")
	}
	if len(obs.outcomes()) != 0 {
		t.Errorf("observer should not be notified of cancellation, got %v", obs.outcomes())
	}
}

func TestUnobserved(t *testing.T) {
	client, obs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	if err := client.Unobserved().Get(context.Background(), "/api/status", nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(obs.outcomes()) != 0 {
		t.Errorf("unobserved client notified observers: %v", obs.outcomes())
	}
	if client.Stats().Requests != 1 {
		t.Errorf("unobserved client should share counters, Requests = %d", client.Stats().Requests)
	}
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr bool
		timeout bool
	}{
		{
			name:    "ok",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("not json at all")) },
		},
		{
			name: "non-success status with json body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"error":"busy"}`))
			},
			wantErr: true,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			wantErr: true,
			timeout: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, obs := newTestClient(t, tt.handler)

			err := client.Probe(context.Background(), "", 50*time.Millisecond)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Probe() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !IsTransportFailure(err) {
				t.Errorf("Probe() error = %v, want transport failure", err)
			}
			if tt.timeout && !IsTimeout(err) {
				t.Errorf("Probe() error = %v, want timeout", err)
			}
			if len(obs.outcomes()) != 0 {
				t.Error("probes must not notify observers")
			}
		})
	}
}

func TestPerform_GzipBody(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("<h2>System</h2>"))
	gz.Close()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != "gzip" {
			t.Errorf("Accept-Encoding = %q, want gzip", r.Header.Get("Accept-Encoding"))
		}
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	})

	resp, err := client.Perform(context.Background(), http.MethodGet, "/tabs/system.html", nil)
	if err != nil {
		t.Fatalf("Perform() error = %v", err)
	}
	if string(resp.Body) != "<h2>System</h2>" {
		t.Errorf("Body = %q", string(resp.Body))
	}
}
