package forwarder

import (
	"context"
	"testing"

	"github.com/robot-ai-webapp/gateway/internal/rpcapi"
	"go.uber.org/zap"
)

func TestMultiSinkFansOutToMirrorAndPrimary(t *testing.T) {
	primary := &fakeSink{}
	mirror := &fakeSink{}
	m := NewMultiSink(primary, mirror, zap.NewNop().Sugar())

	records := []rpcapi.SensorRecord{{RobotID: "robot-1", Topic: "odom"}}
	count, err := m.RecordSensor(context.Background(), records)
	if err != nil {
		t.Fatalf("record sensor failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected primary count 1, got %d", count)
	}
	if len(primary.sensors) != 1 || len(mirror.sensors) != 1 {
		t.Errorf("expected both sinks to receive the batch, primary=%d mirror=%d", len(primary.sensors), len(mirror.sensors))
	}
}

func TestMultiSinkIgnoresMirrorFailure(t *testing.T) {
	primary := &fakeSink{}
	mirror := &fakeSink{failNext: true}
	m := NewMultiSink(primary, mirror, zap.NewNop().Sugar())

	records := []rpcapi.SensorRecord{{RobotID: "robot-1", Topic: "odom"}}
	count, err := m.RecordSensor(context.Background(), records)
	if err != nil {
		t.Fatalf("expected mirror failure not to propagate, got %v", err)
	}
	if count != 1 {
		t.Errorf("expected primary count 1 despite mirror failure, got %d", count)
	}
}

func TestMultiSinkPrimaryFailurePropagates(t *testing.T) {
	primary := &fakeSink{failNext: true}
	m := NewMultiSink(primary, nil, zap.NewNop().Sugar())

	_, err := m.RecordSensor(context.Background(), []rpcapi.SensorRecord{{RobotID: "robot-1"}})
	if err == nil {
		t.Fatal("expected primary sink failure to propagate")
	}
}

func TestMultiSinkCloseClosesBothSinksWithNoMirror(t *testing.T) {
	primary := &fakeSink{}
	m := NewMultiSink(primary, nil, zap.NewNop().Sugar())

	if err := m.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !primary.closed {
		t.Error("expected primary sink to be closed")
	}
}
