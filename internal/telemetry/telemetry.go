// Package telemetry records a per-tick diagnostic trace of a session and
// hands it to a pluggable backend in batches.
package telemetry

import "time"

// Info identifies the session a trace belongs to.
type Info struct {
	ID        string         `json:"id"`
	Slot      int            `json:"slot"`
	Solo      bool           `json:"solo"`
	StartedAt time.Time      `json:"startedAt"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Sample is one tick of the local car plus what was known about the peer.
type Sample struct {
	Session      string    `json:"session"`
	Slot         int       `json:"slot"`
	Tick         uint64    `json:"tick"`
	Time         time.Time `json:"time"`
	X            float64   `json:"x"`
	Y            float64   `json:"y"`
	VX           float64   `json:"vx"`
	VY           float64   `json:"vy"`
	Heading      float64   `json:"heading"`
	Steering     float64   `json:"steering"`
	Acceleration float64   `json:"acceleration"`
	Lap          int       `json:"lap"`
	OffTrack     bool      `json:"offTrack"`
	Peer         string    `json:"peer"`
	PeerTick     uint64    `json:"peerTick,omitempty"`
}

// Backend is the interface all trace sinks must satisfy
type Backend interface {
	Init() error
	Close() error

	StartSession(info Info) error
	EndSession() error

	RecordSamples(samples []Sample) error
}
