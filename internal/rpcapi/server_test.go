package rpcapi

import (
	"context"
	"testing"
	"time"

	"github.com/robot-ai-webapp/gateway/internal/adapter"
	"github.com/robot-ai-webapp/gateway/internal/adapter/mock"
	"github.com/robot-ai-webapp/gateway/internal/robot"
	"github.com/robot-ai-webapp/gateway/internal/safety"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newTestServer(t *testing.T) (*GatewayServer, *robot.Manager, *adapter.Registry) {
	t.Helper()
	logger := zap.NewNop()
	manager := robot.NewManager(logger.Sugar())
	registry := adapter.NewRegistry(logger)
	registry.RegisterFactory("mock", mock.Factory)

	estop := safety.NewEStopManager(registry, logger)
	lock := safety.NewOperationLock(time.Minute, logger)
	limiter := safety.NewVelocityLimiter(1.0, 2.0, logger)
	watchdog := safety.NewTimeoutWatchdog(time.Second, registry, estop, logger)
	pipeline := safety.NewPipeline(estop, lock, limiter, watchdog, logger)

	return NewGatewayServer(manager, registry, pipeline, logger), manager, registry
}

func TestGatewayServerListAndGetRobot(t *testing.T) {
	srv, manager, _ := newTestServer(t)
	manager.Register("robot-1", "Unit One", "acme", "v1", robot.Capabilities{})

	listResp, err := srv.ListRobots(context.Background(), &ListRobotsRequest{})
	if err != nil {
		t.Fatalf("ListRobots failed: %v", err)
	}
	if len(listResp.Robots) != 1 {
		t.Fatalf("expected 1 robot, got %d", len(listResp.Robots))
	}

	getResp, err := srv.GetRobot(context.Background(), &GetRobotRequest{RobotID: "robot-1"})
	if err != nil {
		t.Fatalf("GetRobot failed: %v", err)
	}
	if getResp.Robot.ID != "robot-1" {
		t.Errorf("expected robot-1, got %s", getResp.Robot.ID)
	}

	_, err = srv.GetRobot(context.Background(), &GetRobotRequest{RobotID: "missing"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("expected NotFound for missing robot, got %v", err)
	}
}

func TestGatewayServerSendCommandWithoutAdapterIsUnavailable(t *testing.T) {
	srv, manager, _ := newTestServer(t)
	manager.Register("robot-1", "Unit One", "acme", "v1", robot.Capabilities{})

	_, err := srv.SendCommand(context.Background(), &SendCommandRequest{
		RobotID: "robot-1", UserID: "u1", Role: "operator", Type: "nav_goal",
	})
	if status.Code(err) != codes.Unavailable {
		t.Errorf("expected Unavailable with no connected adapter, got %v", err)
	}
}

func TestGatewayServerSendCommandDispatchesThroughAdapter(t *testing.T) {
	srv, manager, registry := newTestServer(t)
	manager.Register("robot-1", "Unit One", "acme", "v1", robot.Capabilities{})
	if _, err := registry.CreateAdapter("robot-1", "mock"); err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}

	resp, err := srv.SendCommand(context.Background(), &SendCommandRequest{
		RobotID: "robot-1", UserID: "u1", Role: "operator", Type: "nav_goal",
		Payload: map[string]any{"x": 1.0, "y": 2.0},
	})
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if !resp.Success {
		t.Errorf("expected success, got reason %q", resp.Reason)
	}
}

func TestGatewayServerHealthCheck(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := srv.HealthCheck(context.Background(), &HealthCheckRequest{})
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if !resp.Healthy {
		t.Error("expected healthy")
	}
	if resp.Version == "" {
		t.Error("expected a non-empty version")
	}
	if resp.UptimeSeconds < 0 {
		t.Errorf("expected non-negative uptime, got %f", resp.UptimeSeconds)
	}
}
