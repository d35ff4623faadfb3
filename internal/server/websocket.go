package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/robot-ai-webapp/gateway/internal/protocol"
	"go.uber.org/zap"
)

const (
	authTimeout    = 10 * time.Second
	keepaliveEvery = 20 * time.Second
	// silenceLimit must exceed two missed keepalive intervals (§4.5: two
	// missed pongs, i.e. >=60s silence) to give the client room to answer.
	silenceLimit   = 60 * time.Second
	writeWait      = 10 * time.Second
	closeDrainWait = 2 * time.Second
	maxMessageSize = 64 * 1024
)

// WebSocketServer upgrades HTTP connections and runs each session's
// read/write pumps.
type WebSocketServer struct {
	hub      *Hub
	handler  *Handler
	codec    *protocol.Codec
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketServer creates a server that upgrades requests into sessions
// dispatched through handler.
func NewWebSocketServer(hub *Hub, handler *Handler, logger *zap.Logger) *WebSocketServer {
	return &WebSocketServer{
		hub:     hub,
		handler: handler,
		codec:   protocol.NewCodec(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// HandleWebSocket is the http.HandlerFunc that accepts new connections.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	session := NewSession(uuid.NewString(), conn)
	s.hub.AddSession(session)
	s.logger.Info("session accepted", zap.String("session_id", session.ID), zap.String("remote_addr", conn.RemoteAddr().String()))

	authDeadline := time.AfterFunc(authTimeout, func() {
		if session.State() != StateAuthenticated {
			s.failAuth(session)
		}
	})
	defer authDeadline.Stop()

	go s.writePump(session)
	s.readPump(session, authDeadline)
}

func (s *WebSocketServer) failAuth(session *Session) {
	msg := protocol.NewMessage(protocol.MsgTypeError, "")
	msg.Error = "authentication timed out"
	msg.Payload["code"] = "AUTH_FAILED"
	data, _ := s.codec.Encode(msg, protocol.EncodingBinary)
	session.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	session.Conn.WriteMessage(websocket.BinaryMessage, data)
	session.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(4401, "auth timeout"), time.Now().Add(writeWait))
	session.Conn.Close()
}

func (s *WebSocketServer) readPump(session *Session, authDeadline *time.Timer) {
	defer func() {
		session.SetState(StateClosing)
		s.handler.OnSessionClose(session)
		s.drainClose(session)
	}()

	session.Conn.SetReadLimit(maxMessageSize)
	session.Conn.SetReadDeadline(time.Now().Add(silenceLimit))
	session.Conn.SetPongHandler(func(string) error {
		session.Conn.SetReadDeadline(time.Now().Add(silenceLimit))
		return nil
	})

	encodingPinned := false
	for {
		msgType, data, err := session.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", zap.String("session_id", session.ID), zap.Error(err))
			}
			return
		}

		if session.State() == StateAccepted {
			session.SetState(StateAuthenticating)
		}
		// Reply encoding is fixed by the first inbound frame's opcode
		// (normally the auth frame) and never re-evaluated afterward, per
		// spec §4.1/§4.5.
		if !encodingPinned {
			if msgType == websocket.TextMessage {
				session.SetEncoding(protocol.EncodingText)
			}
			encodingPinned = true
		}

		msg, err := s.codec.Decode(data)
		if err != nil {
			s.logger.Warn("message decode failed", zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		s.handler.HandleMessage(session, msg)
		if session.State() == StateAuthenticated {
			authDeadline.Stop()
		}
	}
}

// drainClose gives the write pump up to closeDrainWait to flush whatever is
// still queued before the connection is torn down, per spec §4.5's Closing
// state.
func (s *WebSocketServer) drainClose(session *Session) {
	deadline := time.Now().Add(closeDrainWait)
	for time.Now().Before(deadline) {
		if session.queueEmpty() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	session.markClosed()
	session.Conn.Close()
}

func (s *WebSocketServer) writePump(session *Session) {
	ticker := time.NewTicker(keepaliveEvery)
	defer func() {
		ticker.Stop()
		session.Conn.Close()
	}()

	for {
		select {
		case <-session.notify:
			for {
				frame, ok := session.dequeue()
				if !ok {
					break
				}
				session.Conn.SetWriteDeadline(time.Now().Add(writeWait))
				opcode := websocket.BinaryMessage
				if session.Encoding() == protocol.EncodingText {
					opcode = websocket.TextMessage
				}
				if err := session.Conn.WriteMessage(opcode, frame.data); err != nil {
					return
				}
			}
		case <-ticker.C:
			session.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := session.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HealthHandler is a minimal liveness probe for the WS listener.
func (s *WebSocketServer) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok","service":"gateway"}`))
}
