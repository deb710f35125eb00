package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// writeWait bounds how long one outbound write may block before the
// connection is considered dead.
const writeWait = 10 * time.Second

// maxFrameBytes caps inbound payload size.
const maxFrameBytes = 64 * 1024

// Conn is the subset of *websocket.Conn the registry needs. Tests
// substitute an in-memory implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session wraps one accepted connection with a generated identity. Writes
// are serialized by a mutex so the relay and the ping reply path cannot
// interleave partial frames.
type Session struct {
	id   string
	conn Conn
	lim  *rate.Limiter
	log  zerolog.Logger

	writeMu sync.Mutex
}

func newSession(conn Conn, lim *rate.Limiter, log zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:   id,
		conn: conn,
		lim:  lim,
		log:  log.With().Str("session_id", id).Logger(),
	}
}

// ID returns the generated session identifier.
func (s *Session) ID() string { return s.id }

// Send relays a chat message to the peer. It is a best-effort write: a
// failure is reported to the caller and never retried internally.
func (s *Session) Send(text string) error {
	return s.sendFrame(Frame{Type: FrameMsg, Text: text})
}

func (s *Session) sendFrame(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		sendFailures.Inc()
		return err
	}
	return nil
}
