package internal

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"chatroom/internal/storage"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameBytes = 16 * 1024
	sendQueueSize = 256
)

// SessionState is the lifecycle position of a chat session.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateActive
	StateClosed
)

func (state SessionState) String() string {
	switch state {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Session is one connected participant. The hub only ever offers payloads to
// its send queue; the write pump is the single writer on the connection.
type Session struct {
	id         SessionID
	name       string
	remoteAddr string
	conn       *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32

	// highest message id included in this session's history replay
	replayedThrough atomic.Int64
}

func newSession(name, remoteAddr string) *Session {
	return &Session{
		name:       name,
		remoteAddr: remoteAddr,
		send:       make(chan []byte, sendQueueSize),
		done:       make(chan struct{}),
	}
}

func (session *Session) ID() SessionID { return session.id }

func (session *Session) Name() string { return session.name }

func (session *Session) State() SessionState {
	return SessionState(session.state.Load())
}

// offer queues payload without blocking. It fails when the session is closed
// or its queue is full.
func (session *Session) offer(payload []byte) bool {
	select {
	case <-session.done:
		return false
	default:
	}
	select {
	case session.send <- payload:
		return true
	default:
		return false
	}
}

// Close moves the session to CLOSED and stops its write pump. Safe to call
// more than once and from any goroutine.
func (session *Session) Close() {
	session.closeOnce.Do(func() {
		session.state.Store(int32(StateClosed))
		close(session.done)
	})
}

func (session *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		session.conn.Close()
	}()
	for {
		select {
		case message := <-session.send:
			_ = session.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := session.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-session.done:
			_ = session.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = session.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			_ = session.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := session.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades the request and runs the session until the peer goes away.
// The optional username query parameter becomes the display name.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	session := newSession(NormalizeUsername(r.URL.Query().Get("username")), r.RemoteAddr)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		session.Close()
		s.logger.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	session.conn = conn
	ctx := r.Context()

	id, joined := s.hub.Join(session, func() ([]storage.Message, error) {
		return s.store.Recent(ctx, s.historyLimit)
	})
	if !joined {
		session.Close()
		conn.Close()
		return
	}
	session.state.Store(int32(StateActive))
	s.metrics.SessionOpened()
	logger := s.logger.With().
		Uint64("session_id", uint64(id)).
		Str("username", session.Name()).
		Str("remote_addr", session.remoteAddr).
		Logger()
	logger.Info().Msg("session joined")

	go session.writePump()
	s.readLoop(ctx, session)

	s.registry.Unregister(id)
	session.Close()
	conn.Close()
	s.metrics.SessionClosed()
	logger.Info().Msg("session left")
}

func (s *Server) readLoop(ctx context.Context, session *Session) {
	conn := session.conn
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			// read error ends the loop so the caller can clean up.
			return
		}
		if messageType != websocket.TextMessage {
			s.metrics.MessageDropped(dropMalformed)
			continue
		}
		s.handleFrame(ctx, session, payload)
	}
}

// handleFrame turns one inbound frame into a stored and broadcast message.
// Bad frames are discarded without telling the sender.
func (s *Server) handleFrame(ctx context.Context, session *Session, payload []byte) {
	frame, err := decodeFrame(payload)
	if err != nil {
		s.metrics.MessageDropped(dropMalformed)
		s.logger.Debug().Err(err).Uint64("session_id", uint64(session.ID())).Msg("frame discarded")
		return
	}
	text, err := NormalizeText(*frame.Text)
	if err != nil {
		s.metrics.MessageDropped(dropRejected)
		return
	}
	username := session.Name()
	if strings.TrimSpace(frame.Username) != "" {
		username = NormalizeUsername(frame.Username)
	}
	_, _ = s.publish(ctx, username, storage.KindText, text)
}

// publish persists a message and broadcasts the stored record. On a storage
// failure the message is dropped and nothing is broadcast.
func (s *Server) publish(ctx context.Context, username string, kind storage.Kind, content string) (storage.Message, error) {
	var stored storage.Message
	err := s.hub.Commit(func() (Envelope, error) {
		message, err := s.store.Append(ctx, username, kind, content)
		if err != nil {
			return Envelope{}, err
		}
		stored = message
		return Envelope{Type: EnvelopeMessage, Message: &message}, nil
	})
	if err != nil {
		s.metrics.MessageDropped(dropStorage)
		s.logger.Warn().Err(err).Str("username", username).Str("kind", string(kind)).Msg("message dropped")
		return storage.Message{}, err
	}
	s.metrics.MessagePersisted(kind)
	return stored, nil
}
