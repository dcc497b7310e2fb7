package control

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamyashm/pyRace/internal/vehicle"
)

const dt = 1.0 / 60.0

func newController() *Controller {
	return NewController(DefaultConfig(), vehicle.DefaultParams())
}

func TestApply_AccelerateRampsAndClamps(t *testing.T) {
	c := newController()
	s := vehicle.State{}

	c.Apply(&s, Signals{Accelerate: true}, dt)
	assert.InDelta(t, 3*dt, s.Acceleration, 1e-12)

	for i := 0; i < 1000; i++ {
		c.Apply(&s, Signals{Accelerate: true}, dt)
	}
	assert.Equal(t, 5.0, s.Acceleration)
}

func TestApply_AccelerateWhileReversingBrakes(t *testing.T) {
	c := newController()
	s := vehicle.State{}
	s.Velocity.X = -10

	c.Apply(&s, Signals{Accelerate: true}, dt)

	// brake deceleration is clamped back down to the acceleration limit
	assert.Equal(t, 5.0, s.Acceleration)
}

func TestApply_BrakeWhileMovingForward(t *testing.T) {
	c := newController()
	s := vehicle.State{}
	s.Velocity.X = 10

	c.Apply(&s, Signals{Brake: true}, dt)
	assert.Equal(t, -5.0, s.Acceleration)
}

func TestApply_BrakeFromRestReverses(t *testing.T) {
	c := newController()
	s := vehicle.State{}

	c.Apply(&s, Signals{Brake: true}, dt)
	assert.InDelta(t, -3*dt, s.Acceleration, 1e-12)
}

func TestApply_HardBrakeExceedsLimit(t *testing.T) {
	c := newController()
	s := vehicle.State{}
	s.Velocity.X = 20

	c.Apply(&s, Signals{HardBrake: true}, dt)
	assert.Equal(t, -15.0, s.Acceleration, "hard brake is not clamped")

	s.Velocity.X = -20
	c.Apply(&s, Signals{HardBrake: true}, dt)
	assert.Equal(t, 15.0, s.Acceleration)
}

func TestApply_HardBrakeStopsExactly(t *testing.T) {
	c := newController()
	s := vehicle.State{}
	s.Velocity.X = 0.1

	c.Apply(&s, Signals{HardBrake: true}, dt)
	assert.InDelta(t, -0.1/dt, s.Acceleration, 1e-9)

	s.Update(dt, vehicle.DefaultParams())
	assert.InDelta(t, 0, s.Velocity.X, 1e-12)
}

func TestApply_ZeroDtNeverDivides(t *testing.T) {
	c := newController()

	for _, sig := range []Signals{{}, {HardBrake: true}, {Accelerate: true}, {Brake: true}} {
		s := vehicle.State{}
		c.Apply(&s, sig, 0)
		assert.False(t, math.IsNaN(s.Acceleration), "signals %+v", sig)
		assert.False(t, math.IsInf(s.Acceleration, 0), "signals %+v", sig)
	}
}

func TestApply_CoastDecelerates(t *testing.T) {
	c := newController()
	s := vehicle.State{}
	s.Velocity.X = 10

	c.Apply(&s, Signals{}, dt)
	assert.Equal(t, -3.0, s.Acceleration)

	s.Velocity.X = -10
	c.Apply(&s, Signals{}, dt)
	assert.Equal(t, 3.0, s.Acceleration)
}

func TestApply_OffTrackLimitsAcceleration(t *testing.T) {
	c := newController()
	s := vehicle.State{OffTrack: true}
	s.Velocity.X = 10

	c.Apply(&s, Signals{Brake: true}, dt)
	assert.Equal(t, -1.0, s.Acceleration)

	s.Velocity.X = 20
	c.Apply(&s, Signals{HardBrake: true}, dt)
	assert.Equal(t, -1.0, s.Acceleration)
}

func TestApply_Steering(t *testing.T) {
	c := newController()
	s := vehicle.State{}

	c.Apply(&s, Signals{Left: true}, dt)
	assert.InDelta(t, 30*dt, s.Steering, 1e-12)

	for i := 0; i < 1000; i++ {
		c.Apply(&s, Signals{Left: true}, dt)
		assert.LessOrEqual(t, math.Abs(s.Steering), 30.0)
	}
	assert.Equal(t, 30.0, s.Steering)

	for i := 0; i < 1000; i++ {
		c.Apply(&s, Signals{Right: true}, dt)
		assert.LessOrEqual(t, math.Abs(s.Steering), 30.0)
	}
	assert.Equal(t, -30.0, s.Steering)

	c.Apply(&s, Signals{}, dt)
	assert.Equal(t, 0.0, s.Steering, "released wheel recenters")
}

func TestApply_RightWinsOverLeft(t *testing.T) {
	c := newController()
	s := vehicle.State{}

	c.Apply(&s, Signals{Left: true, Right: true}, dt)
	assert.Less(t, s.Steering, 0.0)
}

func TestParseScript(t *testing.T) {
	s, err := ParseScript("accelerate:2, up+left:1,coast:1", false)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())

	want := []Signals{
		{Accelerate: true},
		{Accelerate: true},
		{Accelerate: true, Left: true},
		{},
	}
	for i, w := range want {
		got, ok := s.Poll()
		require.True(t, ok, "tick %d", i)
		assert.Equal(t, w, got, "tick %d", i)
	}

	_, ok := s.Poll()
	assert.False(t, ok, "script is exhausted")
}

func TestParseScript_Loop(t *testing.T) {
	s, err := ParseScript("hardbrake:1,right:1", true)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		got, ok := s.Poll()
		require.True(t, ok)
		if i%2 == 0 {
			assert.True(t, got.HardBrake)
		} else {
			assert.True(t, got.Right)
		}
	}
}

func TestParseScript_Errors(t *testing.T) {
	for _, input := range []string{"", "accelerate", "accelerate:0", "accelerate:x", "jump:3"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseScript(input, false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidScript))
		})
	}
}
