package peersync

import (
	"sync/atomic"
	"time"

	"github.com/iamyashm/pyRace/internal/channel"
	"github.com/iamyashm/pyRace/internal/vehicle"
)

// PipeEnd is one side of an in-memory channel created by Pipe.
type PipeEnd struct {
	slot   int
	inbox  *channel.Latest[Snapshot]
	other  *PipeEnd
	closed atomic.Bool
	now    func() time.Time
}

// Pipe returns two connected channel ends occupying slots 1 and 2. States
// pass through the same field mapping as the network link, so a pipe peer
// carries exactly what a remote one would.
func Pipe() (*PipeEnd, *PipeEnd) {
	a := &PipeEnd{slot: 1, inbox: channel.NewLatest[Snapshot](), now: time.Now}
	b := &PipeEnd{slot: 2, inbox: channel.NewLatest[Snapshot](), now: time.Now}
	a.other, b.other = b, a
	return a, b
}

// Slot returns the slot of this end.
func (p *PipeEnd) Slot() int { return p.slot }

// Exchange delivers local to the other end and returns the latest state it
// delivered to this one.
func (p *PipeEnd) Exchange(local vehicle.State, tick uint64) Snapshot {
	if !p.closed.Load() && !p.other.closed.Load() {
		p.other.inbox.Store(FromWire(ToWire(p.slot, tick, local), p.now()))
	}
	return p.snapshot()
}

func (p *PipeEnd) snapshot() Snapshot {
	snap, ok := p.inbox.Load()
	if !ok {
		return Snapshot{Status: NoPeer}
	}
	if p.closed.Load() || p.other.closed.Load() {
		return stale(snap)
	}
	return snap
}

// Close disconnects this end. The other end keeps its last snapshot as Stale.
func (p *PipeEnd) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	p.inbox.Close()
	return nil
}
