package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/souschef/recipe-assistant/internal/ws"
)

// State is the session's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// Conn is the client's view of the realtime channel. *websocket.Conn
// satisfies it; tests substitute an in-memory implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens one realtime channel to the server.
type DialFunc func(ctx context.Context) (Conn, error)

// connEvent is what the per-connection reader goroutine feeds back into
// the event loop. gen identifies which connection it came from so frames
// arriving after a reconnect-from-scratch are discarded instead of acted
// on (ordering of ticks versus replies is not guaranteed).
type connEvent struct {
	gen   int
	frame ws.Frame
	err   error
}

// Session is the client-side state machine: connect → keepalive →
// disconnect, with the offline flow overlaid whenever user input arrives
// while disconnected. A single event loop (Run) owns all state; the only
// concurrency is the reader goroutine per connection, which communicates
// exclusively through the events channel.
type Session struct {
	dial    DialFunc
	offline *OfflineFlow
	ticks   <-chan time.Time
	log     zerolog.Logger

	state State
	conn  Conn
	gen   int

	in     chan string
	out    chan string
	events chan connEvent

	// pending is true while a msg frame awaits its reply; lastInput is
	// what triggers the offline flow immediately if the channel drops
	// before the reply arrives.
	pending   bool
	lastInput string
}

// NewSession constructs a session. ticks drives both the reconnect
// attempts and the keepalive probes; the caller owns the ticker.
func NewSession(dial DialFunc, offline *OfflineFlow, ticks <-chan time.Time) *Session {
	return &Session{
		dial:    dial,
		offline: offline,
		ticks:   ticks,
		log:     log.With().Str("component", "session").Logger(),
		in:      make(chan string),
		out:     make(chan string, 8),
		events:  make(chan connEvent, 8),
	}
}

// Input is where user utterances are submitted.
func (s *Session) Input() chan<- string { return s.in }

// Replies delivers assistant replies and offline-flow answers in order.
func (s *Session) Replies() <-chan string { return s.out }

// Run drives the state machine until ctx is cancelled. It must be the
// only goroutine touching session state.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.closeConn()
			return
		case <-s.ticks:
			s.tick(ctx)
		case input := <-s.in:
			s.handleInput(ctx, input)
		case ev := <-s.events:
			s.handleEvent(ctx, ev)
		}
	}
}

// tick is the periodic connectivity check: dial when disconnected, probe
// liveness with a ping frame when connected.
func (s *Session) tick(ctx context.Context) {
	switch s.state {
	case StateDisconnected:
		s.connect(ctx)
	case StateConnected:
		if err := s.writeFrame(ws.Frame{Type: ws.FramePing}); err != nil {
			s.log.Debug().Err(err).Msg("keepalive write failed")
			s.dropConnection(ctx)
		}
	}
}

func (s *Session) connect(ctx context.Context) {
	s.state = StateConnecting
	conn, err := s.dial(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("dial failed")
		s.state = StateDisconnected
		return
	}
	s.conn = conn
	s.gen++
	s.state = StateConnected
	s.offline.Reset()
	s.log.Info().Msg("channel connected")

	gen := s.gen
	go s.readLoop(conn, gen)
}

// readLoop feeds inbound frames into the event loop until the connection
// fails. Malformed server frames are dropped here, mirroring the server's
// tolerance for malformed client frames.
func (s *Session) readLoop(conn Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.events <- connEvent{gen: gen, err: err}
			return
		}
		f, err := ws.ParseFrame(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping malformed server frame")
			continue
		}
		s.events <- connEvent{gen: gen, frame: f}
	}
}

func (s *Session) handleInput(ctx context.Context, input string) {
	if s.state == StateConnected {
		s.lastInput = input
		s.pending = true
		if err := s.writeFrame(ws.Frame{Type: ws.FrameMsg, Text: input}); err != nil {
			s.log.Debug().Err(err).Msg("send failed")
			s.dropConnection(ctx)
		}
		return
	}
	// Offline: answer from the local replica.
	s.answerOffline(ctx, input)
}

func (s *Session) handleEvent(ctx context.Context, ev connEvent) {
	if ev.gen != s.gen {
		// A reply or close from a connection that has already been
		// replaced; discard rather than act on stale state.
		return
	}
	if ev.err != nil {
		s.dropConnection(ctx)
		return
	}
	switch ev.frame.Type {
	case ws.FrameMsg:
		s.pending = false
		s.out <- ev.frame.Text
	case ws.FramePing:
		// Liveness signal only; no reply required.
	}
}

// dropConnection transitions to DISCONNECTED. If a request was in flight
// awaiting a reply, the offline flow is triggered immediately with the
// last input rather than waiting for the user to speak again.
func (s *Session) dropConnection(ctx context.Context) {
	s.closeConn()
	s.state = StateDisconnected
	s.log.Info().Msg("channel disconnected")
	if s.pending {
		s.pending = false
		s.answerOffline(ctx, s.lastInput)
	}
}

func (s *Session) answerOffline(ctx context.Context, input string) {
	reply, err := s.offline.Handle(ctx, input)
	if err != nil {
		s.log.Error().Err(err).Msg("offline flow failed")
		s.out <- "I'm offline and my local recipe book isn't answering either. Try again in a moment."
		return
	}
	s.out <- reply
}

func (s *Session) writeFrame(f ws.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) closeConn() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
