// Package ws implements the realtime message relay: a registry of active
// websocket sessions and the typed frame envelope exchanged with clients.
//
// The wire format is a small JSON envelope in both directions:
//
//	{"type":"msg","text":"..."}  — a chat message
//	{"type":"ping"}              — a liveness probe, answered in kind
//
// Unrecognized or malformed payloads are dropped and logged; they are never
// fatal to the connection.
package ws

import (
	"encoding/json"
	"fmt"
)

// Frame type discriminants.
const (
	FrameMsg  = "msg"
	FramePing = "ping"
)

// Frame is the wire envelope for both directions of the relay channel.
type Frame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ParseFrame decodes and validates one inbound payload. It returns an error
// for non-JSON payloads and for unknown type discriminants; callers drop
// such frames without closing the connection.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Type {
	case FrameMsg, FramePing:
		return f, nil
	default:
		return Frame{}, fmt.Errorf("unknown frame type %q", f.Type)
	}
}
