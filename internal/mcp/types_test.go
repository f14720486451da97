package mcp

import (
	"encoding/json"
	"strings"
	"testing"
)

// TestResponse_NullIDOnWire verifies a nil id marshals as an explicit null,
// never disappearing from the payload.
func TestResponse_NullIDOnWire(t *testing.T) {
	resp := NewError(nil, CodeParseError, "Parse error", "Invalid JSON")
	payload, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(payload), `"id":null`) {
		t.Errorf("expected explicit null id, got %s", payload)
	}
}

// TestResponse_OmitsAbsentMembers checks result and error never coexist and
// empty members stay off the wire.
func TestResponse_OmitsAbsentMembers(t *testing.T) {
	success := NewResult(1, map[string]interface{}{"ok": true})
	payload, err := json.Marshal(success)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(payload), `"error"`) {
		t.Errorf("success response must not carry an error member: %s", payload)
	}
	if strings.Contains(string(payload), `"method"`) {
		t.Errorf("plain response must not carry a method member: %s", payload)
	}

	failure := NewError(2, CodeInternalError, "Internal error", "")
	payload, err = json.Marshal(failure)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(payload), `"result"`) {
		t.Errorf("error response must not carry a result member: %s", payload)
	}
	if strings.Contains(string(payload), `"data"`) {
		t.Errorf("empty data must stay off the wire: %s", payload)
	}
}

// TestRequest_IsNotification covers the id-presence rule.
func TestRequest_IsNotification(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"numeric id", `{"jsonrpc": "2.0", "id": 1, "method": "x"}`, false},
		{"string id", `{"jsonrpc": "2.0", "id": "a", "method": "x"}`, false},
		{"zero id", `{"jsonrpc": "2.0", "id": 0, "method": "x"}`, false},
		{"no id", `{"jsonrpc": "2.0", "method": "x"}`, true},
		{"explicit null id", `{"jsonrpc": "2.0", "id": null, "method": "x"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			if err := json.Unmarshal([]byte(tt.line), &req); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if got := req.IsNotification(); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
