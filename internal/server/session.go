package server

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/robot-ai-webapp/gateway/internal/protocol"
)

// SessionState is a position in the WebSocket session lifecycle, per spec §4.5.
type SessionState int

const (
	StateAccepted SessionState = iota
	StateAuthenticating
	StateAuthenticated
	StateClosing
)

// sendQueueCap bounds each session's pending-message queue. Once full, the
// oldest queued message for the incoming (robot, topic) pair is dropped.
const sendQueueCap = 128

type queuedFrame struct {
	key  subKey
	data []byte
}

// Session is one authenticated (or authenticating) WebSocket connection.
type Session struct {
	ID     string
	Conn   *websocket.Conn
	UserID string
	Role   string

	mu            sync.Mutex
	encoding      protocol.Encoding
	state         SessionState
	queue         []queuedFrame
	dropped       map[subKey]int
	subscriptions map[subKey]struct{}
	notify        chan struct{}
	closed        bool
}

// NewSession wraps conn in a fresh, unauthenticated session.
func NewSession(id string, conn *websocket.Conn) *Session {
	return &Session{
		ID:            id,
		Conn:          conn,
		state:         StateAccepted,
		dropped:       make(map[subKey]int),
		subscriptions: make(map[subKey]struct{}),
		notify:        make(chan struct{}, 1),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the session's lifecycle state.
func (s *Session) SetState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Encoding reports the wire encoding this session expects replies in.
func (s *Session) Encoding() protocol.Encoding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encoding
}

// SetEncoding fixes the session's reply encoding, sticky for its lifetime.
func (s *Session) SetEncoding(enc protocol.Encoding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encoding = enc
}

// Authenticate marks the session authenticated under userID/role.
func (s *Session) Authenticate(userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserID = userID
	s.Role = role
	s.state = StateAuthenticated
}

func (s *Session) addSubscription(key subKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[key] = struct{}{}
}

func (s *Session) removeSubscription(key subKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, key)
	delete(s.dropped, key)
}

func (s *Session) subscriptionSnapshot() map[subKey]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[subKey]struct{}, len(s.subscriptions))
	for k := range s.subscriptions {
		out[k] = struct{}{}
	}
	return out
}

// takeDropped reads and resets the pending-drop count for key.
func (s *Session) takeDropped(key subKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.dropped[key]
	delete(s.dropped, key)
	return n
}

// enqueue appends data for delivery. If the queue is full, the oldest queued
// message for the same (robot, topic) pair is evicted first; if none is
// queued for that pair, the oldest message overall is evicted. Either way
// the eviction increments that pair's drop counter, surfaced on the next
// delivered message for that pair.
func (s *Session) enqueue(key subKey, data []byte) {
	s.mu.Lock()
	if len(s.queue) >= sendQueueCap {
		idx := -1
		for i, f := range s.queue {
			if f.key == key {
				idx = i
				break
			}
		}
		if idx == -1 {
			idx = 0
		}
		evicted := s.queue[idx]
		s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
		s.dropped[evicted.key]++
	}
	s.queue = append(s.queue, queuedFrame{key: key, data: data})
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// dequeue pops the oldest queued frame, if any.
func (s *Session) dequeue() (queuedFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return queuedFrame{}, false
	}
	f := s.queue[0]
	s.queue = s.queue[1:]
	return f, true
}

// queueEmpty reports whether there are no frames left to deliver.
func (s *Session) queueEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) == 0
}

// markClosed stops further enqueues from waking the write pump.
func (s *Session) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
