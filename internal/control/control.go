// Package control maps the per-tick directional signals onto a car's
// acceleration and steering inputs.
package control

import (
	"math"

	"github.com/iamyashm/pyRace/internal/vehicle"
)

// Signals are the logical inputs sampled once per tick.
type Signals struct {
	Accelerate bool `json:"accelerate"`
	Brake      bool `json:"brake"`
	Left       bool `json:"left"`
	Right      bool `json:"right"`
	HardBrake  bool `json:"hardBrake"`
}

// Config tunes how quickly inputs ramp.
type Config struct {
	ThrottleRate       float64 `json:"throttleRate" mapstructure:"throttleRate"`
	SteerRate          float64 `json:"steerRate" mapstructure:"steerRate"`
	OffTrackAccelLimit float64 `json:"offTrackAccelLimit" mapstructure:"offTrackAccelLimit"`
}

// DefaultConfig returns the stock input ramps.
func DefaultConfig() Config {
	return Config{
		ThrottleRate:       3,
		SteerRate:          30,
		OffTrackAccelLimit: 1.0,
	}
}

// Controller applies Signals to a vehicle.State.
type Controller struct {
	cfg    Config
	params vehicle.Params
}

// NewController creates a controller for a car with the given limits.
func NewController(cfg Config, params vehicle.Params) *Controller {
	return &Controller{cfg: cfg, params: params}
}

// Apply sets s.Acceleration and s.Steering from sig for a tick of dt seconds.
// Out-of-range values are clamped, never rejected. Hard braking is the only
// input allowed to exceed MaxAcceleration.
func (c *Controller) Apply(s *vehicle.State, sig Signals, dt float64) {
	v := s.Velocity.X
	p := c.params

	switch {
	case sig.Accelerate:
		if v < 0 {
			s.Acceleration = p.BrakeDeceleration
		} else {
			s.Acceleration += c.cfg.ThrottleRate * dt
		}
	case sig.Brake:
		if v > 0 {
			s.Acceleration = -p.BrakeDeceleration
		} else {
			s.Acceleration -= c.cfg.ThrottleRate * dt
		}
	case sig.HardBrake:
		if math.Abs(v) > dt*p.BrakeDeceleration {
			s.Acceleration = -math.Copysign(p.BrakeDeceleration, v)
		} else if dt > 0 {
			s.Acceleration = -v / dt
		} else {
			s.Acceleration = 0
		}
	default:
		if math.Abs(v) > dt*p.FreeDeceleration {
			s.Acceleration = -math.Copysign(p.FreeDeceleration, v)
		} else if dt > 0 {
			s.Acceleration = -v / dt
		}
	}

	if !sig.HardBrake {
		s.Acceleration = vehicle.Clamp(s.Acceleration, -p.MaxAcceleration, p.MaxAcceleration)
	}
	if s.OffTrack {
		s.Acceleration = vehicle.Clamp(s.Acceleration, -c.cfg.OffTrackAccelLimit, c.cfg.OffTrackAccelLimit)
	}

	switch {
	case sig.Right:
		s.Steering -= c.cfg.SteerRate * dt
	case sig.Left:
		s.Steering += c.cfg.SteerRate * dt
	default:
		s.Steering = 0
	}
	s.Steering = vehicle.Clamp(s.Steering, -p.MaxSteering, p.MaxSteering)
}
