// Package lap turns level conditions on the track (on the finish line, off the
// band) into edge-triggered events on a car.
package lap

import (
	"github.com/iamyashm/pyRace/internal/track"
	"github.com/iamyashm/pyRace/internal/vehicle"
)

// Tracker counts laps. A lap is credited when a car moving forward enters the
// finish region; staying on the line or crossing it in reverse credits nothing.
type Tracker struct {
	finish track.FinishRegion
}

// NewTracker creates a lap tracker for the given finish region.
func NewTracker(finish track.FinishRegion) *Tracker {
	return &Tracker{finish: finish}
}

// Update recomputes s.OnFinish from the current position and returns true if
// a lap was credited on this call.
func (t *Tracker) Update(s *vehicle.State) bool {
	if !t.finish.IsOnFinish(s.Position) {
		s.OnFinish = false
		return false
	}
	if s.OnFinish || s.Velocity.X <= 0 {
		return false
	}
	s.OnFinish = true
	s.Lap++
	return true
}

// Penalty slows a car down once each time it leaves the drivable band.
type Penalty struct {
	surface track.Surface
	damping float64
}

// NewPenalty creates an off-track penalty. damping scales the velocity on
// the tick the car leaves the band; 0 stops the car dead.
func NewPenalty(surface track.Surface, damping float64) *Penalty {
	return &Penalty{surface: surface, damping: vehicle.Clamp(damping, 0, 1)}
}

// Update recomputes s.OffTrack and returns true if the penalty fired on
// this call.
func (p *Penalty) Update(s *vehicle.State) bool {
	if !p.surface.IsOffTrack(s.Position) {
		s.OffTrack = false
		return false
	}
	if s.OffTrack {
		return false
	}
	s.OffTrack = true
	s.Velocity = s.Velocity.Scale(p.damping)
	s.Acceleration = 0
	return true
}
