package deviceapi

import (
	"encoding/json"
	"testing"
)

func TestText_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Text
	}{
		{`{"v":"1.4"}`, "1.4"},
		{`{"v":3}`, "3"},
		{`{"v":true}`, "true"},
		{`{"v":null}`, ""},
		{`{}`, ""},
	}

	for _, tt := range tests {
		var out struct {
			V Text `json:"v"`
		}
		if err := json.Unmarshal([]byte(tt.in), &out); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", tt.in, err)
			continue
		}
		if out.V != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, out.V, tt.want)
		}
	}

	var bad struct {
		V Text `json:"v"`
	}
	if err := json.Unmarshal([]byte(`{"v":[1]}`), &bad); err == nil {
		t.Error("Unmarshal of an array should fail")
	}
}

func TestLEDStatus_Variants(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantOnline  bool
		wantProblem string
	}{
		{"modbus endpoint online", `{"connected":true,"led_on":true,"fw_version":2}`, true, ""},
		{"modbus endpoint offline", `{"connected":false,"error":"Timeout"}`, false, "Timeout"},
		{"legacy endpoint online", `{"error":false,"led_on":false,"device_id":10}`, true, ""},
		{"legacy endpoint offline", `{"error":true,"message":"Slave not responding"}`, false, "Slave not responding"},
		{"legacy without message", `{"error":true}`, false, "Slave not responding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s LEDStatus
			if err := json.Unmarshal([]byte(tt.body), &s); err != nil {
				t.Fatalf("Unmarshal error = %v", err)
			}
			if s.Online() != tt.wantOnline {
				t.Errorf("Online() = %v, want %v", s.Online(), tt.wantOnline)
			}
			if s.Problem() != tt.wantProblem {
				t.Errorf("Problem() = %q, want %q", s.Problem(), tt.wantProblem)
			}
		})
	}
}

func TestValidateBaudRate(t *testing.T) {
	for _, b := range SupportedBaudRates {
		if err := ValidateBaudRate(b); err != nil {
			t.Errorf("ValidateBaudRate(%d) error = %v", b, err)
		}
	}
	if err := ValidateBaudRate(0); !IsValidationError(err) {
		t.Errorf("ValidateBaudRate(0) error = %v, want validation error", err)
	}
}

func TestValidateWiFiCredentials(t *testing.T) {
	tests := []struct {
		name    string
		creds   WiFiCredentials
		wantErr bool
	}{
		{"open network", WiFiCredentials{SSID: "cafe"}, false},
		{"wpa network", WiFiCredentials{SSID: "home", Password: "correcthorse"}, false},
		{"empty ssid", WiFiCredentials{Password: "correcthorse"}, true},
		{"ssid too long", WiFiCredentials{SSID: "abcdefghijklmnopqrstuvwxyz0123456"}, true},
		{"password too short", WiFiCredentials{SSID: "home", Password: "short"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWiFiCredentials(tt.creds)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWiFiCredentials() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
