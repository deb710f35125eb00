package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeConn is an in-memory Conn. Reads are fed through a channel; writes
// are recorded for inspection.
type fakeConn struct {
	in chan []byte

	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 8)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.in
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return 1, data, nil
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed connection")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *fakeConn) SetReadLimit(int64)             {}
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sentFrames(t *testing.T) []Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, 0, len(c.writes))
	for _, w := range c.writes {
		var f Frame
		if err := json.Unmarshal(w, &f); err != nil {
			t.Fatalf("non-JSON write %q: %v", w, err)
		}
		out = append(out, f)
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestAcceptThenRemove_LeavesEmptySet(t *testing.T) {
	r := NewRegistry(nil, 100, 100)
	s := r.Accept(newFakeConn())
	if r.Len() != 1 {
		t.Fatalf("expected 1 active session, got %d", r.Len())
	}
	if s.ID() == "" {
		t.Fatal("session has no identity")
	}
	r.Remove(s)
	if r.Len() != 0 {
		t.Fatalf("expected empty set, got %d", r.Len())
	}
}

func TestRemove_Twice_IsNoOp(t *testing.T) {
	r := NewRegistry(nil, 100, 100)
	a := r.Accept(newFakeConn())
	b := r.Accept(newFakeConn())

	r.Remove(a)
	r.Remove(a) // second removal must not panic or shrink below the remaining set
	if r.Len() != 1 {
		t.Fatalf("expected 1 session after double remove, got %d", r.Len())
	}
	r.Remove(b)
	if r.Len() != 0 {
		t.Fatalf("expected empty set, got %d", r.Len())
	}
}

func TestNotifyClose_FiresOncePerSession(t *testing.T) {
	r := NewRegistry(nil, 100, 100)
	var closed []string
	r.NotifyClose(func(s *Session) { closed = append(closed, s.ID()) })

	s := r.Accept(newFakeConn())
	r.Remove(s)
	r.Remove(s)
	if len(closed) != 1 || closed[0] != s.ID() {
		t.Fatalf("close notifications = %v", closed)
	}
}

func TestHandleFrame_MalformedPayloadKeepsConnectionOpen(t *testing.T) {
	forwarded := 0
	r := NewRegistry(func(*Session, string) { forwarded++ }, 100, 100)
	conn := newFakeConn()
	s := r.Accept(conn)

	r.HandleFrame(s, []byte("not json at all"))
	r.HandleFrame(s, []byte(`{"type":"selfdestruct"}`))

	if conn.isClosed() {
		t.Fatal("malformed frame closed the connection")
	}
	if forwarded != 0 {
		t.Fatalf("malformed frames were forwarded: %d", forwarded)
	}
	if r.Len() != 1 {
		t.Fatalf("session dropped from active set: %d", r.Len())
	}
}

func TestHandleFrame_MsgForwardedToHandler(t *testing.T) {
	var gotText string
	var gotSession *Session
	r := NewRegistry(func(s *Session, text string) {
		gotSession, gotText = s, text
	}, 100, 100)
	conn := newFakeConn()
	s := r.Accept(conn)

	r.HandleFrame(s, []byte(`{"type":"msg","text":"pasta with basil"}`))
	if gotText != "pasta with basil" {
		t.Fatalf("handler got %q", gotText)
	}
	if gotSession != s {
		t.Fatal("handler got wrong session")
	}
}

func TestHandleFrame_PingAnsweredInKind(t *testing.T) {
	r := NewRegistry(nil, 100, 100)
	conn := newFakeConn()
	s := r.Accept(conn)

	r.HandleFrame(s, []byte(`{"type":"ping"}`))
	frames := conn.sentFrames(t)
	if len(frames) != 1 || frames[0].Type != FramePing {
		t.Fatalf("expected one ping reply, got %+v", frames)
	}
}

func TestHandleFrame_OverRateBudgetDropped(t *testing.T) {
	forwarded := 0
	// Burst of 1 and effectively no refill within the test window.
	r := NewRegistry(func(*Session, string) { forwarded++ }, 0.001, 1)
	s := r.Accept(newFakeConn())

	r.HandleFrame(s, []byte(`{"type":"msg","text":"one"}`))
	r.HandleFrame(s, []byte(`{"type":"msg","text":"two"}`))
	if forwarded != 1 {
		t.Fatalf("expected exactly one forwarded frame, got %d", forwarded)
	}
}

func TestServe_RemovesSessionOnConnectionClose(t *testing.T) {
	r := NewRegistry(nil, 100, 100)
	conn := newFakeConn()
	s := r.Accept(conn)

	done := make(chan struct{})
	go func() {
		r.Serve(s)
		close(done)
	}()

	conn.in <- []byte(`{"type":"ping"}`)
	close(conn.in)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after connection close")
	}
	if r.Len() != 0 {
		t.Fatalf("session still registered: %d", r.Len())
	}
	if !conn.isClosed() {
		t.Fatal("underlying connection left open")
	}
}

func TestSend_BestEffortReportsFailure(t *testing.T) {
	r := NewRegistry(nil, 100, 100)
	conn := newFakeConn()
	s := r.Accept(conn)
	_ = conn.Close()

	if err := s.Send("hello"); err == nil {
		t.Fatal("expected write failure to be reported")
	}
}
