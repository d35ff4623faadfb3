package server

import (
	"sync"

	"github.com/robot-ai-webapp/gateway/internal/protocol"
	"go.uber.org/zap"
)

// subKey identifies one (robot, topic) delivery stream.
type subKey struct {
	RobotID string
	Topic   string
}

// Hub is the process-wide (robot, topic) -> subscribers mapping. Adapter
// sensor readers and status updates publish here; the hub fans each message
// out to every subscribed session's own bounded queue, per spec §4.5.
type Hub struct {
	mu       sync.RWMutex
	subs     map[subKey]map[*Session]struct{}
	sessions map[*Session]struct{}
	logger   *zap.Logger
	codec    *protocol.Codec
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:     make(map[subKey]map[*Session]struct{}),
		sessions: make(map[*Session]struct{}),
		logger:   logger,
		codec:    protocol.NewCodec(),
	}
}

// AddSession registers session as connected, independent of its subscriptions.
func (h *Hub) AddSession(session *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[session] = struct{}{}
}

// Subscribe adds session to the (robotID, topic) stream. An empty topic
// subscribes to every topic for that robot.
func (h *Hub) Subscribe(session *Session, robotID, topic string) {
	key := subKey{RobotID: robotID, Topic: topic}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*Session]struct{})
	}
	h.subs[key][session] = struct{}{}
	session.addSubscription(key)
}

// Unsubscribe removes session from the (robotID, topic) stream.
func (h *Hub) Unsubscribe(session *Session, robotID, topic string) {
	key := subKey{RobotID: robotID, Topic: topic}
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[key]; ok {
		delete(set, session)
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
	session.removeSubscription(key)
}

// RemoveSession drops every subscription session holds, on disconnect.
func (h *Hub) RemoveSession(session *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, session)
	for key := range session.subscriptionSnapshot() {
		if set, ok := h.subs[key]; ok {
			delete(set, session)
			if len(set) == 0 {
				delete(h.subs, key)
			}
		}
	}
}

// subscribers returns a snapshot of sessions subscribed to (robotID, topic)
// plus those subscribed to robotID with an empty (catch-all) topic.
func (h *Hub) subscribers(robotID, topic string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[*Session]struct{})
	for _, key := range []subKey{{RobotID: robotID, Topic: topic}, {RobotID: robotID, Topic: ""}} {
		for s := range h.subs[key] {
			seen[s] = struct{}{}
		}
	}
	out := make([]*Session, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	return out
}

// Publish fans msg out to every session subscribed to (robotID, topic). Each
// session's pending-drop count for this stream is stamped onto the
// envelope's payload as "dropped" and reset, per spec §4.5.
func (h *Hub) Publish(robotID, topic string, msg *protocol.Message) {
	key := subKey{RobotID: robotID, Topic: topic}
	for _, session := range h.subscribers(robotID, topic) {
		dropped := session.takeDropped(key)
		out := *msg
		if dropped > 0 {
			payload := make(map[string]any, len(msg.Payload)+1)
			for k, v := range msg.Payload {
				payload[k] = v
			}
			payload["dropped"] = dropped
			out.Payload = payload
		}
		data, err := h.codec.Encode(&out, session.Encoding())
		if err != nil {
			h.logger.Error("hub: encode failed", zap.Error(err))
			continue
		}
		session.enqueue(key, data)
	}
}

// BroadcastAlert delivers msg to every currently connected session,
// authenticated or not, regardless of subscription (used for safety alerts
// and E-Stop).
func (h *Hub) BroadcastAlert(msg *protocol.Message) {
	h.mu.RLock()
	seen := make(map[*Session]struct{}, len(h.sessions))
	for s := range h.sessions {
		seen[s] = struct{}{}
	}
	h.mu.RUnlock()

	key := subKey{RobotID: msg.RobotID, Topic: "safety_alert"}
	for session := range seen {
		data, err := h.codec.Encode(msg, session.Encoding())
		if err != nil {
			h.logger.Error("hub: encode alert failed", zap.Error(err))
			continue
		}
		session.enqueue(key, data)
	}
}
