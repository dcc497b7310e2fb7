// Package wire defines the messages exchanged between a participant and the
// relay, and the codecs that put them on a websocket frame.
package wire

import "encoding/json"

// Message type constants of the race protocol.
const (
	TypeHello    = "hello"
	TypeWelcome  = "welcome"
	TypeState    = "state"
	TypePeerLeft = "peer_left"
	TypeFull     = "full"
)

// Envelope wraps every JSON message sent over the websocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// State is one tick of a participant's vehicle. Only the newest one matters.
type State struct {
	Slot    int64   `json:"slot"`
	Tick    uint64  `json:"tick"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	VX      float64 `json:"vx"`
	VY      float64 `json:"vy"`
	Heading float64 `json:"heading"`
	Lap     int64   `json:"lap"`
}

// Welcome is the relay's answer to a connecting participant.
type Welcome struct {
	Slot    int64  `json:"slot"`
	Session string `json:"session"`
}

// Message is the decoded form of any frame. At most one of the payload
// pointers is set, matching Type.
type Message struct {
	Type    string
	State   *State
	Welcome *Welcome
}

// NewState wraps a state payload.
func NewState(s State) Message {
	return Message{Type: TypeState, State: &s}
}

// NewWelcome wraps a welcome payload.
func NewWelcome(slot int64, session string) Message {
	return Message{Type: TypeWelcome, Welcome: &Welcome{Slot: slot, Session: session}}
}

// Control builds a payload-less message such as hello, peer_left or full.
func Control(typ string) Message {
	return Message{Type: typ}
}
