package protocol

import "encoding/json"

// FrameKind labels a hub relay frame.
type FrameKind string

const (
	// FrameOpen asks the target to open a logical connection back to From.
	FrameOpen FrameKind = "open"
	// FrameAccept completes the open handshake.
	FrameAccept FrameKind = "accept"
	// FrameData carries an encoded Message for an open logical connection.
	FrameData FrameKind = "data"
	// FrameClose tears a logical connection down.
	FrameClose FrameKind = "close"
)

// Frame is the envelope relayed through the hub. The hub routes purely
// on To and never inspects Conn or Payload. Conn names the logical
// connection the frame belongs to (chosen by the initiator), so a pair
// of nodes can carry their two symmetric connection attempts apart.
type Frame struct {
	To      string          `json:"to"`
	From    string          `json:"from"`
	Kind    FrameKind       `json:"kind"`
	Conn    string          `json:"conn"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
