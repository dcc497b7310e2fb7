// Package race drives one participant's session tick by tick: sample the
// inputs, advance the car, apply track rules, swap state with the peer and
// hand the result to a renderer.
package race

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/iamyashm/pyRace/internal/control"
	"github.com/iamyashm/pyRace/internal/peersync"
	"github.com/iamyashm/pyRace/internal/session"
	"github.com/iamyashm/pyRace/internal/telemetry"
	"github.com/iamyashm/pyRace/internal/vehicle"
)

const instrumentationName = "github.com/iamyashm/pyRace/internal/race"

// DefaultTickRate is the loop frequency in Hz.
const DefaultTickRate = 60

// Frame is everything a renderer needs for one tick.
type Frame struct {
	Tick     uint64
	Dt       float64
	Local    vehicle.State
	Peer     peersync.Snapshot
	Lapped   bool
	Penalty  bool
	SpeedKMH int
}

// InputSource supplies the signals for each tick. ok is false when the
// participant quits.
type InputSource interface {
	Poll() (sig control.Signals, ok bool)
}

// Renderer consumes frames.
type Renderer interface {
	Render(Frame)
}

// Option configures a Loop.
type Option func(*Loop)

// WithTickRate sets the loop frequency in Hz.
func WithTickRate(hz int) Option {
	return func(l *Loop) {
		if hz > 0 {
			l.tickRate = hz
		}
	}
}

// WithFixedStep makes Run advance by exactly 1/tickRate per tick instead of
// the measured wall time.
func WithFixedStep() Option {
	return func(l *Loop) {
		l.fixedStep = true
	}
}

// WithRecorder offers a telemetry sample for every frame.
func WithRecorder(r *telemetry.Recorder) Option {
	return func(l *Loop) {
		l.recorder = r
	}
}

// WithLogger sets the loop logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// Loop runs a session.
type Loop struct {
	ses       *session.Session
	tickRate  int
	fixedStep bool
	recorder  *telemetry.Recorder
	logger    *slog.Logger

	ticks    metric.Int64Counter
	laps     metric.Int64Counter
	offTrack metric.Int64Counter
}

// New creates a loop for ses.
func New(ses *session.Session, opts ...Option) (*Loop, error) {
	l := &Loop{
		ses:      ses,
		tickRate: DefaultTickRate,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	m := otel.Meter(instrumentationName)
	var err error
	if l.ticks, err = m.Int64Counter("race.ticks",
		metric.WithDescription("Ticks simulated")); err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}
	if l.laps, err = m.Int64Counter("race.laps",
		metric.WithDescription("Laps credited")); err != nil {
		return nil, fmt.Errorf("creating laps counter: %w", err)
	}
	if l.offTrack, err = m.Int64Counter("race.off_track",
		metric.WithDescription("Off-track excursions")); err != nil {
		return nil, fmt.Errorf("creating off-track counter: %w", err)
	}
	return l, nil
}

// Step advances the session by one tick of dt seconds.
func (l *Loop) Step(dt float64, sig control.Signals) Frame {
	if dt < 0 {
		dt = 0
	}
	ses := l.ses
	car := &ses.Vehicle

	ses.Controller.Apply(car, sig, dt)
	car.Update(dt, ses.Params)
	penalty := ses.Penalty.Update(car)
	lapped := ses.Laps.Update(car)
	tick := ses.Advance()

	peer := peersync.Snapshot{Status: peersync.NoPeer}
	if ses.Channel != nil {
		peer = ses.Channel.Exchange(*car, tick)
	}

	f := Frame{
		Tick:     tick,
		Dt:       dt,
		Local:    *car,
		Peer:     peer,
		Lapped:   lapped,
		Penalty:  penalty,
		SpeedKMH: car.SpeedKMH(),
	}

	ctx := context.Background()
	l.ticks.Add(ctx, 1)
	if lapped {
		l.laps.Add(ctx, 1)
		l.logger.Info("Lap completed", "lap", car.Lap, "tick", tick)
	}
	if penalty {
		l.offTrack.Add(ctx, 1)
		l.logger.Debug("Off track", "tick", tick, "x", car.Position.X, "y", car.Position.Y)
	}
	if l.recorder != nil {
		l.recorder.Offer(l.sample(f))
	}
	return f
}

func (l *Loop) sample(f Frame) telemetry.Sample {
	s := telemetry.Sample{
		Session:      l.ses.ID,
		Slot:         l.ses.Slot,
		Tick:         f.Tick,
		Time:         time.Now(),
		X:            f.Local.Position.X,
		Y:            f.Local.Position.Y,
		VX:           f.Local.Velocity.X,
		VY:           f.Local.Velocity.Y,
		Heading:      f.Local.Heading,
		Steering:     f.Local.Steering,
		Acceleration: f.Local.Acceleration,
		Lap:          f.Local.Lap,
		OffTrack:     f.Local.OffTrack,
		Peer:         f.Peer.Status.String(),
	}
	if f.Peer.Status != peersync.NoPeer {
		s.PeerTick = f.Peer.Tick
	}
	return s
}

// Run ticks until ctx is done or in reports that the participant quit.
// Quitting returns nil; cancellation returns the context error.
func (l *Loop) Run(ctx context.Context, in InputSource, out Renderer) error {
	period := time.Second / time.Duration(l.tickRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	l.logger.Info("Race started", "tickRate", l.tickRate, "solo", l.ses.Solo())
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Race stopped", "ticks", l.ses.Tick(), "lap", l.ses.Vehicle.Lap)
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if l.fixedStep {
				dt = period.Seconds()
			}

			sig, ok := in.Poll()
			if !ok {
				l.logger.Info("Race finished", "ticks", l.ses.Tick(), "lap", l.ses.Vehicle.Lap)
				return nil
			}
			out.Render(l.Step(dt, sig))
		}
	}
}
