package vehicle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iamyashm/pyRace/internal/geo"
)

func TestUpdate_StraightLineAcceleration(t *testing.T) {
	p := DefaultParams()
	s := New(geo.Vec{X: 23.4, Y: 23.4}, 0)
	s.Acceleration = 5.0

	for i := 0; i < 60; i++ {
		s.Update(1.0/60.0, p)
	}

	assert.InDelta(t, 5.0, s.Velocity.X, 1e-9)
	assert.LessOrEqual(t, s.Velocity.X, p.MaxVelocity)
	assert.Equal(t, 0.0, s.Heading)
	assert.Equal(t, 0.0, s.Velocity.Y)
	assert.Greater(t, s.Position.X, 23.4)
	assert.InDelta(t, 23.4, s.Position.Y, 1e-12)
}

func TestUpdate_VelocityClamped(t *testing.T) {
	p := DefaultParams()

	forward := New(geo.Vec{}, 0)
	forward.Acceleration = p.MaxAcceleration
	backward := New(geo.Vec{}, 0)
	backward.Acceleration = -p.MaxAcceleration

	for i := 0; i < 10_000; i++ {
		forward.Update(1.0/60.0, p)
		backward.Update(1.0/60.0, p)
		assert.LessOrEqual(t, math.Abs(forward.Velocity.X), p.MaxVelocity)
		assert.LessOrEqual(t, math.Abs(backward.Velocity.X), p.MaxVelocity)
	}

	assert.Equal(t, p.MaxVelocity, forward.Velocity.X)
	assert.Equal(t, -p.MaxVelocity, backward.Velocity.X)
}

func TestUpdate_ZeroSteeringKeepsHeading(t *testing.T) {
	p := DefaultParams()

	for _, dt := range []float64{0, 1e-9, 1.0 / 120, 1.0 / 60, 0.5, 2} {
		s := New(geo.Vec{X: 10, Y: 10}, 42.5)
		s.Velocity.X = 12
		s.Acceleration = 3
		s.Update(dt, p)
		assert.Equal(t, 42.5, s.Heading, "dt=%v", dt)
	}
}

func TestUpdate_ZeroDt(t *testing.T) {
	p := DefaultParams()
	s := New(geo.Vec{X: 1, Y: 2}, 10)
	s.Velocity.X = 20
	s.Steering = 15
	s.Acceleration = 5

	s.Update(0, p)

	assert.Equal(t, geo.Vec{X: 1, Y: 2}, s.Position)
	assert.Equal(t, 10.0, s.Heading)
	assert.Equal(t, 20.0, s.Velocity.X)
	assert.False(t, math.IsNaN(s.Heading))
}

func TestUpdate_SteeringTurnsLeft(t *testing.T) {
	p := DefaultParams()
	s := New(geo.Vec{}, 0)
	s.Velocity.X = 10
	s.Steering = 30

	s.Update(0.1, p)

	// radius = 4 / sin(30deg) = 8, angular = 10 / 8 rad/s
	want := (10.0 / 8.0) * 180 / math.Pi * 0.1
	assert.InDelta(t, want, s.Heading, 1e-9)
}

func TestUpdate_HeadingMovesAlongScreenAxes(t *testing.T) {
	p := DefaultParams()
	s := New(geo.Vec{}, 90)
	s.Velocity.X = 10

	s.Update(1, p)

	// heading 90 points up the screen, which is -Y in track space
	assert.InDelta(t, 0, s.Position.X, 1e-9)
	assert.InDelta(t, -10, s.Position.Y, 1e-9)
}

func TestUpdate_ReverseSteeringTurnsOtherWay(t *testing.T) {
	p := DefaultParams()
	s := New(geo.Vec{}, 0)
	s.Velocity.X = -10
	s.Steering = 30

	s.Update(0.1, p)

	assert.Less(t, s.Heading, 0.0)
}

func TestSpeedKMH(t *testing.T) {
	s := State{Velocity: geo.Vec{X: 10}}
	assert.Equal(t, 36, s.SpeedKMH())

	s.Velocity.X = -10
	assert.Equal(t, 36, s.SpeedKMH())
	assert.Equal(t, 10.0, s.Speed())

	s.Velocity = geo.Vec{X: 3, Y: 4}
	assert.Equal(t, 5.0, s.Speed())
	assert.Equal(t, 18, s.SpeedKMH())
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5.0, Clamp(7, -5, 5))
	assert.Equal(t, -5.0, Clamp(-7, -5, 5))
	assert.Equal(t, 1.5, Clamp(1.5, -5, 5))
}
