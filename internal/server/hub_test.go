package server

import (
	"testing"

	"github.com/robot-ai-webapp/gateway/internal/protocol"
	"go.uber.org/zap"
)

func TestHubPublishDeliversToSubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop())
	session := NewSession("sess-1", nil)
	hub.AddSession(session)
	hub.Subscribe(session, "robot-1", "odom")

	hub.Publish("robot-1", "odom", protocol.NewMessage(protocol.MsgTypeSensorData, "robot-1"))

	if session.queueEmpty() {
		t.Fatal("expected a frame to be queued for the subscriber")
	}
}

func TestHubPublishSkipsUnsubscribedSession(t *testing.T) {
	hub := NewHub(zap.NewNop())
	session := NewSession("sess-1", nil)
	hub.AddSession(session)
	hub.Subscribe(session, "robot-1", "odom")

	hub.Publish("robot-2", "odom", protocol.NewMessage(protocol.MsgTypeSensorData, "robot-2"))

	if !session.queueEmpty() {
		t.Error("expected no frame for a topic the session isn't subscribed to")
	}
}

func TestHubCatchAllTopicSubscriptionReceivesEverything(t *testing.T) {
	hub := NewHub(zap.NewNop())
	session := NewSession("sess-1", nil)
	hub.AddSession(session)
	hub.Subscribe(session, "robot-1", "")

	hub.Publish("robot-1", "lidar", protocol.NewMessage(protocol.MsgTypeSensorData, "robot-1"))

	if session.queueEmpty() {
		t.Fatal("expected catch-all subscriber to receive messages on any topic")
	}
}

func TestHubRemoveSessionDropsAllSubscriptions(t *testing.T) {
	hub := NewHub(zap.NewNop())
	session := NewSession("sess-1", nil)
	hub.AddSession(session)
	hub.Subscribe(session, "robot-1", "odom")

	hub.RemoveSession(session)
	hub.Publish("robot-1", "odom", protocol.NewMessage(protocol.MsgTypeSensorData, "robot-1"))

	if !session.queueEmpty() {
		t.Error("expected removed session to receive nothing")
	}
}

func TestHubBroadcastAlertReachesAllConnectedSessions(t *testing.T) {
	hub := NewHub(zap.NewNop())
	s1 := NewSession("sess-1", nil)
	s2 := NewSession("sess-2", nil)
	hub.AddSession(s1)
	hub.AddSession(s2)

	hub.BroadcastAlert(protocol.NewMessage(protocol.MsgTypeSafetyAlert, "robot-1"))

	if s1.queueEmpty() || s2.queueEmpty() {
		t.Error("expected both sessions to receive the broadcast alert")
	}
}
