package server

import (
	"context"
	"testing"
	"time"

	"github.com/robot-ai-webapp/gateway/internal/adapter"
	"github.com/robot-ai-webapp/gateway/internal/adapter/mock"
	"github.com/robot-ai-webapp/gateway/internal/auth"
	"github.com/robot-ai-webapp/gateway/internal/protocol"
	"github.com/robot-ai-webapp/gateway/internal/robot"
	"github.com/robot-ai-webapp/gateway/internal/safety"
	"go.uber.org/zap"
)

type fakeForwarder struct {
	sensorCalls  int
	commandCalls int
	lastApproved bool
}

func (f *fakeForwarder) BufferSensor(robotID string, data adapter.SensorData) {
	f.sensorCalls++
}

func (f *fakeForwarder) BufferCommand(robotID string, cmd adapter.Command, approved bool, reason string) {
	f.commandCalls++
	f.lastApproved = approved
}

func newTestHandler(t *testing.T) (*Handler, *adapter.Registry, *fakeForwarder) {
	t.Helper()
	logger := zap.NewNop()
	hub := NewHub(logger)
	registry := adapter.NewRegistry(logger)
	registry.RegisterFactory("mock", mock.Factory)
	manager := robot.NewManager(zap.NewNop().Sugar())
	estop := safety.NewEStopManager(registry, logger)
	lock := safety.NewOperationLock(time.Minute, logger)
	limiter := safety.NewVelocityLimiter(1.0, 2.0, logger)
	watchdog := safety.NewTimeoutWatchdog(time.Second, registry, estop, logger)
	pipeline := safety.NewPipeline(estop, lock, limiter, watchdog, logger)
	verifier, err := auth.NewVerifier("", "test-secret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	fwd := &fakeForwarder{}
	return NewHandler(hub, registry, manager, pipeline, verifier, fwd, true, logger), registry, fwd
}

func TestHandleMessageRequiresAuthenticationFirst(t *testing.T) {
	h, _, _ := newTestHandler(t)
	session := NewSession("sess-1", nil)

	msg := protocol.NewMessage(protocol.MsgTypePing, "")
	h.HandleMessage(session, msg)

	f, ok := session.dequeue()
	if !ok {
		t.Fatal("expected an error frame for an unauthenticated ping")
	}
	_ = f
}

func TestHandlePingRepliesWithPong(t *testing.T) {
	h, _, _ := newTestHandler(t)
	session := NewSession("sess-1", nil)
	session.Authenticate("user-1", "operator")

	h.handlePing(session, protocol.NewMessage(protocol.MsgTypePing, ""))

	if session.queueEmpty() {
		t.Fatal("expected a pong frame to be queued")
	}
}

func TestGuardedRejectsDisallowedRole(t *testing.T) {
	h, _, _ := newTestHandler(t)
	session := NewSession("sess-1", nil)
	session.Authenticate("viewer-1", "viewer")

	called := false
	h.guarded(session, protocol.NewMessage(protocol.MsgTypeVelocityCommand, "robot-1"), func(*Session, *protocol.Message) {
		called = true
	}, "operator", "admin")

	if called {
		t.Error("expected viewer role to be rejected")
	}
	if session.queueEmpty() {
		t.Fatal("expected a FORBIDDEN error frame")
	}
}

func TestHandleVelocityDispatchesThroughAdapter(t *testing.T) {
	h, registry, fwd := newTestHandler(t)
	adp, err := registry.CreateAdapter("robot-1", "mock")
	if err != nil {
		t.Fatalf("create adapter: %v", err)
	}
	if err := adp.Connect(context.Background(), nil); err != nil {
		t.Fatalf("connect: %v", err)
	}

	session := NewSession("sess-1", nil)
	session.Authenticate("user-1", "operator")

	msg := protocol.NewMessage(protocol.MsgTypeVelocityCommand, "robot-1")
	msg.Payload["linear_x"] = 0.3
	h.handleVelocity(session, msg)

	if session.queueEmpty() {
		t.Fatal("expected a command ack frame")
	}
	if fwd.commandCalls != 1 || !fwd.lastApproved {
		t.Errorf("expected one approved forwarded command, got calls=%d approved=%v", fwd.commandCalls, fwd.lastApproved)
	}
}

func TestHandleVelocityRejectsMissingRobotID(t *testing.T) {
	h, _, fwd := newTestHandler(t)
	session := NewSession("sess-1", nil)
	session.Authenticate("user-1", "operator")

	h.handleVelocity(session, protocol.NewMessage(protocol.MsgTypeVelocityCommand, ""))

	if session.queueEmpty() {
		t.Fatal("expected a BAD_REQUEST error frame")
	}
	if fwd.commandCalls != 0 {
		t.Error("expected no forwarded command for a rejected request")
	}
}

func TestHandleOpLockAcquireAndUnlock(t *testing.T) {
	h, _, _ := newTestHandler(t)
	session := NewSession("sess-1", nil)
	session.Authenticate("user-1", "operator")

	h.handleOpLock(session, protocol.NewMessage(protocol.MsgTypeOperationLock, "robot-1"))
	if session.queueEmpty() {
		t.Fatal("expected a lock status frame")
	}
	session.dequeue()

	h.handleOpUnlock(session, protocol.NewMessage(protocol.MsgTypeOperationUnlock, "robot-1"))
	if session.queueEmpty() {
		t.Fatal("expected an unlock status frame")
	}
}

func TestHandleSubscribeUnsubscribeRoundTrip(t *testing.T) {
	h, _, _ := newTestHandler(t)
	session := NewSession("sess-1", nil)
	session.Authenticate("user-1", "viewer")
	h.hub.AddSession(session)

	h.handleSubscribe(session, &protocol.Message{RobotID: "robot-1", Topic: "odom"})
	h.hub.Publish("robot-1", "odom", protocol.NewMessage(protocol.MsgTypeSensorData, "robot-1"))
	if session.queueEmpty() {
		t.Fatal("expected a published frame after subscribing")
	}
	session.dequeue()

	h.handleUnsubscribe(session, &protocol.Message{RobotID: "robot-1", Topic: "odom"})
	h.hub.Publish("robot-1", "odom", protocol.NewMessage(protocol.MsgTypeSensorData, "robot-1"))
	if !session.queueEmpty() {
		t.Error("expected no frame after unsubscribing")
	}
}

func TestOnSessionCloseReleasesHeldLocks(t *testing.T) {
	h, _, _ := newTestHandler(t)
	if _, err := h.pipeline.Lock.Acquire("robot-1", "user-1"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	h.manager.Register("robot-1", "test-robot", "acme", "r1", robot.Capabilities{})

	session := NewSession("sess-1", nil)
	session.Authenticate("user-1", "operator")
	h.hub.AddSession(session)

	h.OnSessionClose(session)

	if h.pipeline.Lock.CheckLock("robot-1", "user-1") {
		t.Error("expected lock to be released on session close")
	}
}
