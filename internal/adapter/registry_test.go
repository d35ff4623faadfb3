package adapter

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

// stubAdapter is a minimal RobotAdapter used only to exercise the registry,
// without reaching into the mock package and risking an import cycle with
// an internal test file.
type stubAdapter struct {
	connected bool
	dataCh    chan SensorData
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{dataCh: make(chan SensorData)}
}

func (s *stubAdapter) Name() string                                 { return "stub" }
func (s *stubAdapter) Connect(ctx context.Context, _ map[string]any) error { s.connected = true; return nil }
func (s *stubAdapter) Disconnect(ctx context.Context) error          { s.connected = false; return nil }
func (s *stubAdapter) IsConnected() bool                             { return s.connected }
func (s *stubAdapter) SendCommand(ctx context.Context, cmd Command) error { return nil }
func (s *stubAdapter) SensorDataChannel() <-chan SensorData          { return s.dataCh }
func (s *stubAdapter) GetCapabilities() Capabilities                 { return Capabilities{} }
func (s *stubAdapter) EmergencyStop(ctx context.Context) error       { return nil }

func TestRegistryCreateAdapterUnknownKindFails(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	if _, err := r.CreateAdapter("robot-1", "nope"); err == nil {
		t.Error("expected error for unknown adapter kind")
	}
}

func TestRegistryCreateGetRemoveAdapter(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.RegisterFactory("stub", func(logger *zap.Logger) RobotAdapter { return newStubAdapter() })

	adp, err := r.CreateAdapter("robot-1", "stub")
	if err != nil {
		t.Fatalf("CreateAdapter failed: %v", err)
	}

	got, ok := r.GetAdapter("robot-1")
	if !ok || got != adp {
		t.Fatal("expected GetAdapter to return the created adapter")
	}

	if len(r.GetAllActive()) != 1 {
		t.Errorf("expected 1 active adapter, got %d", len(r.GetAllActive()))
	}

	r.RemoveAdapter("robot-1")
	if _, ok := r.GetAdapter("robot-1"); ok {
		t.Error("expected adapter to be removed")
	}
}

func TestRegistryListFactories(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.RegisterFactory("stub", func(logger *zap.Logger) RobotAdapter { return newStubAdapter() })

	kinds := r.ListFactories()
	if len(kinds) != 1 || kinds[0] != "stub" {
		t.Errorf("expected [stub], got %v", kinds)
	}
}
