package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRESTAdapterConnectRequiresRobotID(t *testing.T) {
	a := NewRESTAdapter("http://example.invalid", zap.NewNop())
	if err := a.Connect(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected an error for a missing robot_id")
	}
}

func TestRESTAdapterConnectAndSendCommand(t *testing.T) {
	var gotCommand map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/robots/robot-1/ping":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/robots/robot-1/command":
			_ = json.NewDecoder(r.Body).Decode(&gotCommand)
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/robots/robot-1/status":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"battery": 88})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := NewRESTAdapter(srv.URL, zap.NewNop())
	if err := a.Connect(context.Background(), map[string]any{"robot_id": "robot-1"}); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if !a.IsConnected() {
		t.Fatal("expected adapter to report connected")
	}

	cmd := Command{RobotID: "robot-1", Type: "velocity", Payload: map[string]any{"linear_x": 0.5}, Timestamp: time.Now().UnixMilli()}
	if err := a.SendCommand(context.Background(), cmd); err != nil {
		t.Fatalf("send command failed: %v", err)
	}
	if gotCommand["type"] != "velocity" {
		t.Errorf("expected server to receive the command type, got %+v", gotCommand)
	}

	if err := a.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	if a.IsConnected() {
		t.Error("expected adapter to report disconnected")
	}
}

func TestRESTAdapterConnectFailsOnUnreachablePing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewRESTAdapter(srv.URL, zap.NewNop())
	if err := a.Connect(context.Background(), map[string]any{"robot_id": "robot-1"}); err == nil {
		t.Fatal("expected connect to fail when the ping endpoint is unreachable")
	}
}

func TestRESTAdapterCapabilitiesAndName(t *testing.T) {
	a := NewRESTAdapter("http://example.invalid", zap.NewNop())
	if a.Name() != "rest" {
		t.Errorf("expected name rest, got %s", a.Name())
	}
	caps := a.GetCapabilities()
	if !caps.SupportsEStop || !caps.SupportsVelocityControl {
		t.Error("expected rest adapter to support velocity control and e-stop")
	}
}
