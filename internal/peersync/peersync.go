// Package peersync exchanges vehicle state with the other participant.
//
// The exchange is latest-wins in both directions: an outgoing state that has
// not been written yet is replaced by the next one, and the most recently
// received peer state replaces the previous one wholesale. Exchange never
// blocks on the network.
package peersync

import (
	"errors"
	"time"

	"github.com/iamyashm/pyRace/internal/geo"
	"github.com/iamyashm/pyRace/internal/vehicle"
	"github.com/iamyashm/pyRace/pkg/wire"
)

var (
	// ErrClosed is returned when using a channel that has been closed
	ErrClosed = errors.New("sync channel closed")
	// ErrRelayFull is returned when the relay has no free slot
	ErrRelayFull = errors.New("relay is full")
)

// Status describes how current a Snapshot is.
type Status int

const (
	// NoPeer means no peer message has ever been received.
	NoPeer Status = iota
	// Live means the link to the peer is up.
	Live
	// Stale means the link was lost or the peer left; the state is the last one seen.
	Stale
)

func (s Status) String() string {
	switch s {
	case NoPeer:
		return "no_peer"
	case Live:
		return "live"
	case Stale:
		return "stale"
	}
	return "unknown"
}

// Snapshot is the most recent peer state known locally.
type Snapshot struct {
	Status   Status
	Slot     int
	Tick     uint64
	Received time.Time
	State    vehicle.State
}

// Channel sends the local state and returns the latest peer snapshot.
type Channel interface {
	Exchange(local vehicle.State, tick uint64) Snapshot
	Close() error
}

// ToWire converts a local vehicle state into its wire form.
func ToWire(slot int, tick uint64, s vehicle.State) wire.State {
	return wire.State{
		Slot:    int64(slot),
		Tick:    tick,
		X:       s.Position.X,
		Y:       s.Position.Y,
		VX:      s.Velocity.X,
		VY:      s.Velocity.Y,
		Heading: s.Heading,
		Lap:     int64(s.Lap),
	}
}

// FromWire builds a live snapshot from a received state.
func FromWire(w wire.State, received time.Time) Snapshot {
	return Snapshot{
		Status:   Live,
		Slot:     int(w.Slot),
		Tick:     w.Tick,
		Received: received,
		State: vehicle.State{
			Position: geo.Vec{X: w.X, Y: w.Y},
			Velocity: geo.Vec{X: w.VX, Y: w.VY},
			Heading:  w.Heading,
			Lap:      int(w.Lap),
		},
	}
}

// stale returns a copy of snap marked Stale. Snapshots that never saw a peer
// stay NoPeer.
func stale(snap Snapshot) Snapshot {
	if snap.Status == Live {
		snap.Status = Stale
	}
	return snap
}
