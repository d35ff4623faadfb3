package forwarder

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/robot-ai-webapp/gateway/internal/adapter"
	"github.com/robot-ai-webapp/gateway/internal/rpcapi"
	"go.uber.org/zap"
)

type fakeSink struct {
	mu       sync.Mutex
	sensors  []rpcapi.SensorRecord
	commands []rpcapi.CommandRecord
	failNext bool
	closed   bool
}

func (f *fakeSink) RecordSensor(ctx context.Context, records []rpcapi.SensorRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return 0, errors.New("sink unavailable")
	}
	f.sensors = append(f.sensors, records...)
	return len(records), nil
}

func (f *fakeSink) RecordCommand(ctx context.Context, records []rpcapi.CommandRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, records...)
	return len(records), nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestForwarderCloseFlushesPendingRecords(t *testing.T) {
	sink := &fakeSink{}
	fwd := New(sink, 100, zap.NewNop().Sugar())

	fwd.BufferSensor("robot-1", adapter.SensorData{Topic: "odom", DataType: "pose", Timestamp: 1})
	fwd.BufferCommand("robot-1", adapter.Command{Type: "nav_goal", Timestamp: 2}, true, "")

	if err := fwd.Close(); err != nil {
		t.Fatalf("close returned error: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.sensors) != 1 {
		t.Errorf("expected 1 sensor record flushed, got %d", len(sink.sensors))
	}
	if len(sink.commands) != 1 {
		t.Errorf("expected 1 command record flushed, got %d", len(sink.commands))
	}
	if !sink.closed {
		t.Error("expected sink to be closed")
	}
}

func TestForwarderRequeuesOnFlushFailure(t *testing.T) {
	sink := &fakeSink{failNext: true}
	fwd := New(sink, 100, zap.NewNop().Sugar())

	fwd.BufferSensor("robot-1", adapter.SensorData{Topic: "odom", DataType: "pose", Timestamp: 1})
	fwd.flushSensor()

	if got := fwd.sensorBuf.drain(); len(got) != 1 {
		t.Fatalf("expected the failed record to be requeued, got %d records", len(got))
	}

	if err := fwd.Close(); err != nil {
		t.Fatalf("close returned error: %v", err)
	}
}
