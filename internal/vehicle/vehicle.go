// Package vehicle implements the kinematic single-track (bicycle) model that
// advances one car per tick.
package vehicle

import (
	"math"

	"github.com/iamyashm/pyRace/internal/geo"
)

// Params holds the physical limits of a car.
type Params struct {
	Length            float64 `json:"length" mapstructure:"length"`
	MaxSteering       float64 `json:"maxSteering" mapstructure:"maxSteering"`
	MaxAcceleration   float64 `json:"maxAcceleration" mapstructure:"maxAcceleration"`
	MaxVelocity       float64 `json:"maxVelocity" mapstructure:"maxVelocity"`
	BrakeDeceleration float64 `json:"brakeDeceleration" mapstructure:"brakeDeceleration"`
	FreeDeceleration  float64 `json:"freeDeceleration" mapstructure:"freeDeceleration"`
}

// DefaultParams returns the limits used when nothing is configured.
func DefaultParams() Params {
	return Params{
		Length:            4,
		MaxSteering:       30,
		MaxAcceleration:   5.0,
		MaxVelocity:       30.0,
		BrakeDeceleration: 15.0,
		FreeDeceleration:  3.0,
	}
}

// State is one car at an instant.
//
// Velocity.X is the longitudinal component in the car's frame; Velocity.Y is
// lateral and stays zero unless the whole vector is scaled by a penalty.
type State struct {
	Position     geo.Vec `json:"position"`
	Velocity     geo.Vec `json:"velocity"`
	Heading      float64 `json:"heading"`
	Steering     float64 `json:"steering"`
	Acceleration float64 `json:"acceleration"`
	Lap          int     `json:"lap"`
	OnFinish     bool    `json:"onFinish"`
	OffTrack     bool    `json:"offTrack"`
}

// New returns a car at rest at the given pose.
func New(position geo.Vec, heading float64) State {
	return State{Position: position, Heading: heading}
}

// Update advances the car by dt seconds using its current Acceleration and
// Steering. Both must already be clamped by the caller.
func (s *State) Update(dt float64, p Params) {
	s.Velocity.X += s.Acceleration * dt
	s.Velocity.X = clamp(s.Velocity.X, -p.MaxVelocity, p.MaxVelocity)

	var angularVelocity float64
	if s.Steering != 0 {
		turningRadius := p.Length / math.Sin(radians(s.Steering))
		angularVelocity = s.Velocity.X / turningRadius
	}

	s.Position = s.Position.Add(s.Velocity.Rotate(-s.Heading).Scale(dt))
	s.Heading += degrees(angularVelocity) * dt
}

// Speed returns the magnitude of the velocity in units per second.
func (s State) Speed() float64 {
	return s.Velocity.Len()
}

// SpeedKMH returns the HUD speed, truncated to whole km/h.
func (s State) SpeedKMH() int {
	return int(s.Speed() * 3.6)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return clamp(v, lo, hi)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
