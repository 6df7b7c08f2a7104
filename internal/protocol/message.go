package protocol

import "time"

type MsgType string

const (
	MsgPing          MsgType = "ping"
	MsgPong          MsgType = "pong"
	MsgSyncRequest   MsgType = "sync-request"
	MsgSyncResponse  MsgType = "sync-response"
	MsgSyncBroadcast MsgType = "sync-broadcast"
)

// SyncState is the clock state carried by sync messages. Optional fields
// are pointers so that an omitted field keeps its previous value on the
// receiving clock.
type SyncState struct {
	Position     *float64 `json:"position,omitempty"`
	Velocity     *float64 `json:"velocity,omitempty"`
	Acceleration *float64 `json:"acceleration,omitempty"`
}

// Message is the envelope exchanged over an open peer connection.
// Time is the sender's stamp for ping (echoed verbatim in pong) and the
// send instant for sync-response.
type Message struct {
	Type  MsgType    `json:"type"`
	Time  time.Time  `json:"time,omitempty"`
	From  string     `json:"from,omitempty"`
	State *SyncState `json:"state,omitempty"`
}
