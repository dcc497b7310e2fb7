package main

import (
	"log/slog"

	"github.com/iamyashm/pyRace/internal/peersync"
	"github.com/iamyashm/pyRace/internal/race"
)

// logRenderer stands in for a window in headless runs. It logs a HUD line
// once per second of ticks and every lap or off-track event.
type logRenderer struct {
	logger *slog.Logger
	every  uint64

	frames  uint64
	last    race.Frame
	peerWas peersync.Status
}

func newLogRenderer(logger *slog.Logger, tickRate int) *logRenderer {
	if tickRate <= 0 {
		tickRate = race.DefaultTickRate
	}
	return &logRenderer{logger: logger, every: uint64(tickRate)}
}

func (r *logRenderer) Render(f race.Frame) {
	r.frames++
	r.last = f

	if f.Peer.Status != r.peerWas {
		r.logger.Info("Peer status changed", "from", r.peerWas.String(), "to", f.Peer.Status.String())
		r.peerWas = f.Peer.Status
	}
	if f.Lapped {
		r.logger.Info("LAP", "lap", f.Local.Lap, "speed", f.SpeedKMH)
	}
	if f.Penalty {
		r.logger.Info("OFF TRACK", "x", f.Local.Position.X, "y", f.Local.Position.Y)
	}
	if f.Tick%r.every != 0 {
		return
	}

	attrs := []any{
		"lap", f.Local.Lap,
		"speed", f.SpeedKMH,
		"x", f.Local.Position.X,
		"y", f.Local.Position.Y,
		"heading", f.Local.Heading,
		"peer", f.Peer.Status.String(),
	}
	if f.Peer.Status != peersync.NoPeer {
		attrs = append(attrs,
			"peerLap", f.Peer.State.Lap,
			"peerX", f.Peer.State.Position.X,
			"peerY", f.Peer.State.Position.Y,
			"peerTick", f.Peer.Tick,
		)
	}
	r.logger.Debug("HUD", attrs...)
}

// summary logs the final state after the loop returns.
func (r *logRenderer) summary() {
	if r.frames == 0 {
		r.logger.Info("No frames rendered")
		return
	}
	r.logger.Info("Race summary",
		"frames", r.frames,
		"lap", r.last.Local.Lap,
		"speed", r.last.SpeedKMH,
		"peer", r.last.Peer.Status.String(),
		"peerLap", r.last.Peer.State.Lap,
	)
}
