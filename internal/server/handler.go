package server

import (
	"context"
	"fmt"
	"time"

	"github.com/robot-ai-webapp/gateway/internal/adapter"
	"github.com/robot-ai-webapp/gateway/internal/auth"
	"github.com/robot-ai-webapp/gateway/internal/protocol"
	"github.com/robot-ai-webapp/gateway/internal/robot"
	"github.com/robot-ai-webapp/gateway/internal/safety"
	"go.uber.org/zap"
)

// Forwarder buffers sensor records and command outcomes (approved or
// rejected) for the recording service; implemented by internal/forwarder.
type Forwarder interface {
	BufferSensor(robotID string, data adapter.SensorData)
	BufferCommand(robotID string, cmd adapter.Command, approved bool, reason string)
}

// roleAllowed reports whether role is in allowed. An empty allowed list
// means any authenticated role passes.
func roleAllowed(role string, allowed ...string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == role {
			return true
		}
	}
	return false
}

// Handler dispatches authenticated session messages to the robot catalog,
// the safety pipeline, and the adapter registry, per spec §4.5's dispatch
// table.
type Handler struct {
	hub       *Hub
	registry  *adapter.Registry
	manager   *robot.Manager
	pipeline  *safety.Pipeline
	verifier  *auth.Verifier
	forwarder Forwarder
	releaseLockOnClose bool
	logger    *zap.Logger
}

// NewHandler wires together the collaborators a session needs to process messages.
func NewHandler(hub *Hub, registry *adapter.Registry, manager *robot.Manager, pipeline *safety.Pipeline, verifier *auth.Verifier, forwarder Forwarder, releaseLockOnClose bool, logger *zap.Logger) *Handler {
	return &Handler{
		hub:                hub,
		registry:           registry,
		manager:            manager,
		pipeline:           pipeline,
		verifier:           verifier,
		forwarder:          forwarder,
		releaseLockOnClose: releaseLockOnClose,
		logger:             logger,
	}
}

// HandleMessage dispatches one decoded frame for session.
func (h *Handler) HandleMessage(session *Session, msg *protocol.Message) {
	if msg.Type == protocol.MsgTypeAuth {
		h.handleAuth(session, msg)
		return
	}
	if session.State() != StateAuthenticated {
		h.sendError(session, msg.RobotID, "AUTH_REQUIRED", "session is not authenticated")
		return
	}

	switch msg.Type {
	case protocol.MsgTypePing:
		h.handlePing(session, msg)
	case protocol.MsgTypeVelocityCommand:
		h.guarded(session, msg, h.handleVelocity, "operator", "admin")
	case protocol.MsgTypeNavigationGoal:
		h.guarded(session, msg, h.handleNavGoal, "operator", "admin")
	case protocol.MsgTypeNavigationCancel:
		h.guarded(session, msg, h.handleNavCancel, "operator", "admin")
	case protocol.MsgTypeEStop:
		h.handleEStop(session, msg)
	case protocol.MsgTypeOperationLock:
		h.guarded(session, msg, h.handleOpLock, "operator", "admin")
	case protocol.MsgTypeOperationUnlock:
		h.guarded(session, msg, h.handleOpUnlock, "operator", "admin")
	case protocol.MsgTypeSubscribe:
		h.guarded(session, msg, h.handleSubscribe, "viewer", "operator", "admin")
	case protocol.MsgTypeUnsubscribe:
		h.guarded(session, msg, h.handleUnsubscribe, "viewer", "operator", "admin")
	default:
		h.logger.Warn("unknown message type", zap.String("type", string(msg.Type)))
		h.sendError(session, msg.RobotID, "UNKNOWN_TYPE", fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (h *Handler) guarded(session *Session, msg *protocol.Message, fn func(*Session, *protocol.Message), allowedRoles ...string) {
	if !roleAllowed(session.Role, allowedRoles...) {
		h.sendError(session, msg.RobotID, "FORBIDDEN", "role does not permit this action")
		return
	}
	fn(session, msg)
}

func (h *Handler) handleAuth(session *Session, msg *protocol.Message) {
	token, _ := msg.Payload["token"].(string)
	if token == "" {
		h.sendError(session, "", "AUTH_FAILED", "missing auth token")
		return
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		h.sendError(session, "", "AUTH_FAILED", "token verification failed")
		return
	}
	session.Authenticate(claims.UserID, claims.Role)
	h.logger.Info("session authenticated", zap.String("session_id", session.ID), zap.String("user_id", claims.UserID), zap.String("role", claims.Role))

	resp := protocol.NewMessage(protocol.MsgTypeConnectionStatus, "")
	resp.Payload["authenticated"] = true
	resp.Payload["session_id"] = session.ID
	resp.Payload["role"] = claims.Role
	h.sendDirect(session, resp)
}

func (h *Handler) handlePing(session *Session, msg *protocol.Message) {
	pong := protocol.NewMessage(protocol.MsgTypePong, "")
	pong.Payload["ts"] = msg.Ts
	h.sendDirect(session, pong)
}

func (h *Handler) handleVelocity(session *Session, msg *protocol.Message) {
	robotID := msg.RobotID
	if robotID == "" {
		h.sendError(session, "", "BAD_REQUEST", "missing robot_id")
		return
	}
	verdict := h.pipeline.Evaluate(safety.Command{
		RobotID: robotID,
		UserID:  session.UserID,
		Role:    session.Role,
		Type:    "velocity",
		Payload: msg.Payload,
	})
	h.deliverVerdict(session, "velocity", verdict)
}

func (h *Handler) handleNavGoal(session *Session, msg *protocol.Message) {
	verdict := h.pipeline.Evaluate(safety.Command{
		RobotID: msg.RobotID,
		UserID:  session.UserID,
		Role:    session.Role,
		Type:    "nav_goal",
		Payload: msg.Payload,
	})
	h.deliverVerdict(session, "nav_goal", verdict)
}

func (h *Handler) handleNavCancel(session *Session, msg *protocol.Message) {
	verdict := h.pipeline.Evaluate(safety.Command{
		RobotID: msg.RobotID,
		UserID:  session.UserID,
		Role:    session.Role,
		Type:    "nav_cancel",
		Payload: msg.Payload,
	})
	h.deliverVerdict(session, "nav_cancel", verdict)
}

func (h *Handler) deliverVerdict(session *Session, kind string, verdict safety.Verdict) {
	ack := protocol.NewMessage(protocol.MsgTypeCommandAck, verdict.Command.RobotID)
	ack.Payload["command"] = kind
	ack.Payload["success"] = verdict.Approved

	if !verdict.Approved {
		ack.Error = verdict.Message
		ack.Payload["reason"] = verdict.Code
		h.sendDirect(session, ack)
		if h.forwarder != nil {
			h.forwarder.BufferCommand(verdict.Command.RobotID, adapter.Command{
				RobotID: verdict.Command.RobotID, Type: kind, Payload: verdict.Command.Payload, Timestamp: time.Now().UnixMilli(),
			}, false, verdict.Code)
		}
		return
	}

	adp, ok := h.registry.GetAdapter(verdict.Command.RobotID)
	if !ok {
		ack.Payload["success"] = false
		ack.Error = "robot not found"
		h.sendDirect(session, ack)
		return
	}

	cmd := adapter.Command{
		RobotID:   verdict.Command.RobotID,
		Type:      kind,
		Payload:   verdict.Command.Payload,
		Timestamp: time.Now().UnixMilli(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := adp.SendCommand(ctx, cmd); err != nil {
		ack.Payload["success"] = false
		ack.Error = err.Error()
		h.sendDirect(session, ack)
		return
	}

	ack.Payload["clamped"] = verdict.Clamped
	if verdict.LockOverride {
		ack.Payload["lock_override"] = true
	}
	h.sendDirect(session, ack)

	if h.forwarder != nil {
		h.forwarder.BufferCommand(cmd.RobotID, cmd, true, "")
	}

	if verdict.Clamped {
		alert := protocol.NewMessage(protocol.MsgTypeSafetyAlert, cmd.RobotID)
		alert.Payload["type"] = "velocity_clamped"
		h.hub.BroadcastAlert(alert)
	}
}

func (h *Handler) handleEStop(session *Session, msg *protocol.Message) {
	activate, _ := msg.Payload["activate"].(bool)
	reason, _ := msg.Payload["reason"].(string)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if activate {
		if msg.RobotID != "" {
			if err := h.pipeline.EStop.Activate(ctx, msg.RobotID, session.UserID, reason); err != nil {
				h.sendError(session, msg.RobotID, "ESTOP_FAILED", err.Error())
				return
			}
		} else {
			h.pipeline.EStop.ActivateGlobal(ctx, session.UserID, reason)
		}
		alert := protocol.NewMessage(protocol.MsgTypeSafetyAlert, msg.RobotID)
		alert.Payload["type"] = "estop_activated"
		alert.Payload["reason"] = reason
		alert.Payload["user_id"] = session.UserID
		h.hub.BroadcastAlert(alert)
		return
	}

	if msg.RobotID != "" {
		h.pipeline.EStop.Release(msg.RobotID, session.UserID)
	} else {
		h.pipeline.EStop.ReleaseGlobal(session.UserID)
	}
	alert := protocol.NewMessage(protocol.MsgTypeSafetyAlert, msg.RobotID)
	alert.Payload["type"] = "estop_released"
	alert.Payload["user_id"] = session.UserID
	h.hub.BroadcastAlert(alert)
}

func (h *Handler) handleOpLock(session *Session, msg *protocol.Message) {
	lock, err := h.pipeline.Lock.Acquire(msg.RobotID, session.UserID)
	if err != nil {
		h.sendError(session, msg.RobotID, "LOCKED_BY_OTHER", err.Error())
		return
	}
	resp := protocol.NewMessage(protocol.MsgTypeLockStatus, msg.RobotID)
	resp.Payload["locked"] = true
	resp.Payload["user_id"] = lock.UserID
	resp.Payload["expires_at"] = lock.ExpiresAt.Format(time.RFC3339)
	h.sendDirect(session, resp)
}

func (h *Handler) handleOpUnlock(session *Session, msg *protocol.Message) {
	if err := h.pipeline.Lock.Release(msg.RobotID, session.UserID); err != nil {
		h.sendError(session, msg.RobotID, "FORBIDDEN", err.Error())
		return
	}
	resp := protocol.NewMessage(protocol.MsgTypeLockStatus, msg.RobotID)
	resp.Payload["locked"] = false
	h.sendDirect(session, resp)
}

func (h *Handler) handleSubscribe(session *Session, msg *protocol.Message) {
	h.hub.Subscribe(session, msg.RobotID, msg.Topic)
}

func (h *Handler) handleUnsubscribe(session *Session, msg *protocol.Message) {
	h.hub.Unsubscribe(session, msg.RobotID, msg.Topic)
}

// RunSensorReader consumes adp's sensor stream and publishes each sample to
// the hub until ctx is cancelled. One reader task runs per connected robot,
// per spec §4.5, so a slow subscriber can never stall the adapter itself.
func (h *Handler) RunSensorReader(ctx context.Context, robotID string, adp adapter.RobotAdapter) {
	ch := adp.SensorDataChannel()
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-ch:
			if !ok {
				return
			}
			msg := protocol.NewMessage(protocol.MsgTypeSensorData, robotID)
			msg.Topic = sample.Topic
			msg.Payload["data_type"] = sample.DataType
			msg.Payload["frame_id"] = sample.FrameID
			msg.Payload["data"] = sample.Data
			h.hub.Publish(robotID, sample.Topic, msg)

			if h.forwarder != nil {
				h.forwarder.BufferSensor(robotID, sample)
			}
		}
	}
}

// BroadcastStatusLoop publishes every robot's status to its "status" topic
// subscribers on a fixed tick, until ctx is cancelled.
func (h *Handler) BroadcastStatusLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, r := range h.manager.All() {
				msg := protocol.NewMessage(protocol.MsgTypeRobotStatus, r.ID)
				msg.Topic = "status"
				msg.Payload["state"] = string(r.State)
				msg.Payload["battery"] = r.Battery
				msg.Payload["x"] = r.X
				msg.Payload["y"] = r.Y
				msg.Payload["theta"] = r.Theta
				msg.Payload["is_online"] = r.IsOnline
				h.hub.Publish(r.ID, "status", msg)
			}
		}
	}
}

// OnSessionClose releases locks held by session if the gateway is configured
// to, per spec §4.5's Closing state (default: persist until expiry).
func (h *Handler) OnSessionClose(session *Session) {
	h.hub.RemoveSession(session)
	if !h.releaseLockOnClose || session.UserID == "" {
		return
	}
	for _, r := range h.manager.All() {
		if h.pipeline.Lock.CheckLock(r.ID, session.UserID) {
			_ = h.pipeline.Lock.Release(r.ID, session.UserID)
		}
	}
}

func (h *Handler) sendError(session *Session, robotID, code, message string) {
	msg := protocol.NewMessage(protocol.MsgTypeError, robotID)
	msg.Error = message
	msg.Payload["code"] = code
	h.sendDirect(session, msg)
}

func (h *Handler) sendDirect(session *Session, msg *protocol.Message) {
	data, err := h.hub.codec.Encode(msg, session.Encoding())
	if err != nil {
		h.logger.Error("failed to encode direct message", zap.Error(err))
		return
	}
	session.enqueue(subKey{RobotID: msg.RobotID, Topic: "__direct__"}, data)
}
