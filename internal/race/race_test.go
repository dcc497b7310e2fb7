package race

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamyashm/pyRace/internal/control"
	"github.com/iamyashm/pyRace/internal/geo"
	"github.com/iamyashm/pyRace/internal/peersync"
	"github.com/iamyashm/pyRace/internal/session"
	"github.com/iamyashm/pyRace/internal/telemetry"
	"github.com/iamyashm/pyRace/internal/telemetry/memory"
	"github.com/iamyashm/pyRace/internal/track"
	"github.com/iamyashm/pyRace/internal/vehicle"
)

const dt = 1.0 / 60

// straight is an endless strip y in [0, 10] with the finish at x in [50, 52].
type straight struct{}

func (straight) IsOffTrack(p geo.Vec) bool { return p.Y < 0 || p.Y > 10 }
func (straight) IsOnFinish(p geo.Vec) bool { return p.X >= 50 && p.X <= 52 }

type collect struct {
	frames []Frame
}

func (c *collect) Render(f Frame) { c.frames = append(c.frames, f) }

func newSession(t *testing.T, geom session.Geometry, ch peersync.Channel, slot int) *session.Session {
	t.Helper()
	ses, err := session.New(session.Config{
		Slot:    slot,
		Grid:    []session.Pose{{Position: geo.Vec{X: 5, Y: 5}}, {Position: geo.Vec{X: 5, Y: 2}}},
		Params:  vehicle.DefaultParams(),
		Control: control.DefaultConfig(),
		Track:   geom,
		Damping: 0.2,
		Channel: ch,
	})
	require.NoError(t, err)
	return ses
}

func newLoop(t *testing.T, ses *session.Session, opts ...Option) *Loop {
	t.Helper()
	l, err := New(ses, opts...)
	require.NoError(t, err)
	return l
}

func TestStep_AcceleratingStraightOnDefaultTrack(t *testing.T) {
	g, err := track.New(track.Default())
	require.NoError(t, err)
	ses, err := session.New(session.Config{
		Params:  vehicle.DefaultParams(),
		Control: control.DefaultConfig(),
		Track:   g,
	})
	require.NoError(t, err)
	l := newLoop(t, ses)

	var f Frame
	for i := 0; i < 60; i++ {
		f = l.Step(dt, control.Signals{Accelerate: true})
	}

	assert.Equal(t, uint64(60), f.Tick)
	assert.Greater(t, f.Local.Velocity.X, 0.0)
	assert.LessOrEqual(t, f.Local.Velocity.X, 30.0)
	assert.Equal(t, 0.0, f.Local.Heading)
	assert.False(t, f.Local.OffTrack)
	assert.Equal(t, f.Local.SpeedKMH(), f.SpeedKMH)
}

func TestStep_SoloReportsNoPeer(t *testing.T) {
	l := newLoop(t, newSession(t, straight{}, nil, 1))

	f := l.Step(dt, control.Signals{})
	assert.Equal(t, peersync.NoPeer, f.Peer.Status)
	assert.Equal(t, uint64(1), f.Tick)
}

func TestStep_NegativeDtTreatedAsZero(t *testing.T) {
	l := newLoop(t, newSession(t, straight{}, nil, 1))

	f := l.Step(-1, control.Signals{Accelerate: true})
	assert.Equal(t, 0.0, f.Dt)
	assert.Equal(t, geo.Vec{X: 5, Y: 5}, f.Local.Position)
}

func TestStep_CountsLapsOnForwardPasses(t *testing.T) {
	l := newLoop(t, newSession(t, straight{}, nil, 1))

	lapped := 0
	for i := 0; i < 60*20; i++ {
		f := l.Step(dt, control.Signals{Accelerate: true})
		if f.Lapped {
			lapped++
			assert.Equal(t, 1, f.Local.Lap)
		}
	}
	assert.Equal(t, 1, lapped, "one pass over the finish")
}

func TestStep_PenaltyFiresOnLeavingTheBand(t *testing.T) {
	ses := newSession(t, straight{}, nil, 1)
	ses.Vehicle.Heading = -90
	l := newLoop(t, ses)

	fired := 0
	for i := 0; i < 60*10; i++ {
		if l.Step(dt, control.Signals{Accelerate: true}).Penalty {
			fired++
		}
	}
	assert.Equal(t, 1, fired)
	assert.True(t, ses.Vehicle.OffTrack)
	assert.LessOrEqual(t, ses.Vehicle.Acceleration, 1.0)
}

func TestStep_ExchangesWithPeer(t *testing.T) {
	a, b := peersync.Pipe()
	la := newLoop(t, newSession(t, straight{}, a, 1))
	lb := newLoop(t, newSession(t, straight{}, b, 2))

	fa := la.Step(dt, control.Signals{Accelerate: true})
	assert.Equal(t, peersync.NoPeer, fa.Peer.Status)

	fb := lb.Step(dt, control.Signals{})
	require.Equal(t, peersync.Live, fb.Peer.Status)
	assert.Equal(t, 1, fb.Peer.Slot)
	assert.Equal(t, fa.Local.Position, fb.Peer.State.Position)

	fa = la.Step(dt, control.Signals{})
	require.Equal(t, peersync.Live, fa.Peer.Status)
	assert.Equal(t, 2, fa.Peer.Slot)
	assert.Equal(t, geo.Vec{X: 5, Y: 2}, fa.Peer.State.Position)

	require.NoError(t, b.Close())
	fa = la.Step(dt, control.Signals{})
	assert.Equal(t, peersync.Stale, fa.Peer.Status)
	assert.Equal(t, geo.Vec{X: 5, Y: 2}, fa.Peer.State.Position, "last snapshot retained")
}

func TestRun_StopsWhenInputExhausted(t *testing.T) {
	l := newLoop(t, newSession(t, straight{}, nil, 1), WithTickRate(500), WithFixedStep())
	script, err := control.ParseScript("accelerate:20,coast:5", false)
	require.NoError(t, err)
	out := &collect{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Run(ctx, script, out))

	require.Len(t, out.frames, 25)
	for i, f := range out.frames {
		assert.Equal(t, uint64(i+1), f.Tick)
		assert.InDelta(t, 1.0/500, f.Dt, 1e-12)
	}
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	l := newLoop(t, newSession(t, straight{}, nil, 1), WithTickRate(200))
	script := control.NewScript([]control.Step{{Ticks: 1}}, true)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.Run(ctx, script, &collect{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStep_OffersTelemetry(t *testing.T) {
	backend := memory.New(memory.Config{})
	require.NoError(t, backend.Init())
	rec, err := telemetry.NewRecorder(backend, telemetry.RecorderConfig{FlushInterval: time.Hour}, nil)
	require.NoError(t, err)

	ses := newSession(t, straight{}, nil, 1)
	require.NoError(t, rec.Start(telemetry.Info{ID: ses.ID, Slot: ses.Slot, Solo: true}))
	l := newLoop(t, ses, WithRecorder(rec))

	for i := 0; i < 10; i++ {
		l.Step(dt, control.Signals{Accelerate: true})
	}
	require.NoError(t, rec.Stop())

	samples := backend.Samples()
	require.Len(t, samples, 10)
	assert.Equal(t, ses.ID, samples[0].Session)
	assert.Equal(t, uint64(10), samples[9].Tick)
	assert.Equal(t, "no_peer", samples[9].Peer)
}
