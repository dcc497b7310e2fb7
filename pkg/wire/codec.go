package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.dedis.ch/protobuf"
)

var (
	// ErrUnknownCodec is returned by ParseCodec for an unsupported name
	ErrUnknownCodec = errors.New("unknown codec")
	// ErrMalformed is returned when a frame cannot be decoded
	ErrMalformed = errors.New("malformed message")
)

// Codec turns messages into frame bodies and back.
type Codec interface {
	Name() string
	// Binary reports whether frames must be sent as binary websocket messages.
	Binary() bool
	Encode(m Message) ([]byte, error)
	Decode(b []byte) (Message, error)
}

// ParseCodec returns the codec with the given name ("json" or "protobuf").
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON{}, nil
	case "protobuf", "proto", "pb":
		return Protobuf{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

// JSON encodes messages as Envelope text frames.
type JSON struct{}

// Name returns "json".
func (JSON) Name() string { return "json" }

// Binary reports false: JSON frames are sent as websocket text messages.
func (JSON) Binary() bool { return false }

// Encode wraps the message payload in an Envelope.
func (JSON) Encode(m Message) ([]byte, error) {
	env := Envelope{Type: m.Type}

	var payload any
	switch {
	case m.State != nil:
		payload = m.State
	case m.Welcome != nil:
		payload = m.Welcome
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", m.Type, err)
		}
		env.Payload = raw
	}

	return json.Marshal(env)
}

// Decode parses an Envelope and its payload for the envelope type.
func (JSON) Decode(b []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	m := Message{Type: env.Type}
	switch env.Type {
	case TypeState:
		var s State
		if err := json.Unmarshal(env.Payload, &s); err != nil {
			return Message{}, fmt.Errorf("%w: state payload: %v", ErrMalformed, err)
		}
		m.State = &s
	case TypeWelcome:
		var w Welcome
		if err := json.Unmarshal(env.Payload, &w); err != nil {
			return Message{}, fmt.Errorf("%w: welcome payload: %v", ErrMalformed, err)
		}
		m.Welcome = &w
	}
	return m, nil
}

// packet is the protobuf layout of a Message. Field order defines the tags.
type packet struct {
	Type    string
	State   *State
	Welcome *Welcome
}

// Protobuf encodes messages as binary frames with dedis/protobuf.
type Protobuf struct{}

// Name returns "protobuf".
func (Protobuf) Name() string { return "protobuf" }

// Binary reports true: protobuf frames are sent as websocket binary messages.
func (Protobuf) Binary() bool { return true }

// Encode serializes the message as a single packet.
func (Protobuf) Encode(m Message) ([]byte, error) {
	p := packet{Type: m.Type, State: m.State, Welcome: m.Welcome}
	b, err := protobuf.Encode(&p)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type, err)
	}
	return b, nil
}

// Decode parses a packet. A packet without a type is malformed.
func (Protobuf) Decode(b []byte) (Message, error) {
	var p packet
	if err := protobuf.Decode(b, &p); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return Message{Type: p.Type, State: p.State, Welcome: p.Welcome}, nil
}
