package ws

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// MessageHandler receives valid inbound chat messages. It is the boundary
// to the conversation engine: the registry forwards the frame text upward
// and does not interpret it.
type MessageHandler func(s *Session, text string)

// Registry tracks the active sessions. One handler goroutine serves each
// connection; the only state they share is the active set, so additions
// and removals are serialized by a mutex: no lost or duplicate entries
// under concurrent connects and disconnects.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	onMessage MessageHandler
	onClose   func(s *Session)
	frameRPS  rate.Limit
	burst     int
	log       zerolog.Logger
}

// NewRegistry constructs a registry. frameRPS and burst bound how fast one
// session may deliver msg frames; frames over the budget are dropped, not
// queued. onMessage may be nil, in which case msg frames are dropped.
func NewRegistry(onMessage MessageHandler, frameRPS float64, burst int) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		onMessage: onMessage,
		frameRPS:  rate.Limit(frameRPS),
		burst:     burst,
		log:       log.With().Str("component", "ws").Logger(),
	}
}

// NotifyClose registers a callback invoked after a session leaves the
// active set, at most once per session. Set it before serving traffic.
func (r *Registry) NotifyClose(fn func(s *Session)) {
	r.onClose = fn
}

// Accept wraps a raw connection in a Session, assigns it an identifier,
// and registers it in the active set.
func (r *Registry) Accept(conn Conn) *Session {
	s := newSession(conn, rate.NewLimiter(r.frameRPS, r.burst), r.log)

	r.mu.Lock()
	r.sessions[s.id] = s
	n := len(r.sessions)
	r.mu.Unlock()

	activeConnections.Set(float64(n))
	s.log.Info().Int("active", n).Msg("client connected")
	return s
}

// Remove drops a session from the active set exactly once. Calling it again
// for the same session is a no-op, so close paths may race harmlessly.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	_, present := r.sessions[s.id]
	if present {
		delete(r.sessions, s.id)
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if !present {
		return
	}
	activeConnections.Set(float64(n))
	s.log.Info().Int("active", n).Msg("client disconnected")
	if r.onClose != nil {
		r.onClose(s)
	}
}

// Len reports the current number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Serve runs the read loop for one session until the connection fails or
// closes, then removes the session from the active set and closes the
// underlying connection. It is intended to be called from the connection's
// handler goroutine.
func (r *Registry) Serve(s *Session) {
	defer func() {
		r.Remove(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxFrameBytes)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Debug().Err(err).Msg("read loop ended")
			return
		}
		r.HandleFrame(s, data)
	}
}

// HandleFrame parses one inbound payload and dispatches it. Malformed
// payloads are dropped and logged, never fatal; ping frames are answered
// in kind so liveness is observable from the client; msg frames are
// forwarded to the message handler.
func (r *Registry) HandleFrame(s *Session, payload []byte) {
	f, err := ParseFrame(payload)
	if err != nil {
		framesTotal.WithLabelValues("malformed").Inc()
		s.log.Warn().Err(err).Msg("dropping malformed frame")
		return
	}
	switch f.Type {
	case FramePing:
		framesTotal.WithLabelValues(FramePing).Inc()
		if err := s.sendFrame(Frame{Type: FramePing}); err != nil {
			s.log.Debug().Err(err).Msg("ping reply failed")
		}
	case FrameMsg:
		if !s.lim.Allow() {
			framesTotal.WithLabelValues("throttled").Inc()
			s.log.Warn().Msg("dropping frame over rate budget")
			return
		}
		framesTotal.WithLabelValues(FrameMsg).Inc()
		if r.onMessage != nil {
			r.onMessage(s, f.Text)
		}
	}
}
