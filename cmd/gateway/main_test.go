package main

import (
	"context"
	"testing"
	"time"

	"github.com/robot-ai-webapp/gateway/internal/robot"
	"github.com/robot-ai-webapp/gateway/internal/safety"
	"go.uber.org/zap"
)

func TestRunHeartbeatSweepReleasesLockOnTimeout(t *testing.T) {
	logger := zap.NewNop()
	manager := robot.NewManager(logger.Sugar())
	manager.Register("robot-1", "bot", "acme", "r1", robot.Capabilities{})

	opLock := safety.NewOperationLock(time.Minute, logger)
	if _, err := opLock.Acquire("robot-1", "user-1"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go runHeartbeatSweep(ctx, manager, opLock, -1*time.Second, logger)

	deadline := time.After(2 * time.Second)
	for {
		if !opLock.CheckLock("robot-1", "user-1") {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatal("expected heartbeat sweep to release the lock after timeout")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	r, err := manager.Get("robot-1")
	if err != nil {
		t.Fatalf("get robot: %v", err)
	}
	if r.IsOnline {
		t.Error("expected robot to be marked offline")
	}
}
