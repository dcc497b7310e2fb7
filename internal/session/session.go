// Package session holds everything one participant needs for a race: its car,
// the rules applied to it every tick and the optional link to the peer.
package session

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/iamyashm/pyRace/internal/control"
	"github.com/iamyashm/pyRace/internal/geo"
	"github.com/iamyashm/pyRace/internal/lap"
	"github.com/iamyashm/pyRace/internal/peersync"
	"github.com/iamyashm/pyRace/internal/track"
	"github.com/iamyashm/pyRace/internal/vehicle"
)

// Pose is a starting position on the grid.
type Pose struct {
	Position geo.Vec `json:"position" mapstructure:"position"`
	Heading  float64 `json:"heading" mapstructure:"heading"`
}

// DefaultGrid returns the start poses of slots 1 and 2, both on the first
// straight facing the finish line.
func DefaultGrid() []Pose {
	return []Pose{
		{Position: geo.Vec{X: 23.4, Y: 23.4}},
		{Position: geo.Vec{X: 23.4, Y: 18.0}},
	}
}

// Geometry is what a session needs to know about the track.
type Geometry interface {
	track.Surface
	track.FinishRegion
}

// Config describes a session to build.
type Config struct {
	ID      string
	Slot    int
	Grid    []Pose
	Params  vehicle.Params
	Control control.Config
	Track   Geometry
	Damping float64
	// Channel is nil for solo play.
	Channel peersync.Channel
}

// Session is one participant's race. Vehicle is owned by the tick loop.
type Session struct {
	ID        string
	Slot      int
	StartedAt time.Time

	Vehicle    vehicle.State
	Params     vehicle.Params
	Controller *control.Controller
	Laps       *lap.Tracker
	Penalty    *lap.Penalty
	Channel    peersync.Channel

	tick atomic.Uint64
}

// New creates a session with the car placed on the grid pose for cfg.Slot.
func New(cfg Config) (*Session, error) {
	if cfg.Track == nil {
		return nil, fmt.Errorf("session needs a track")
	}
	if cfg.Slot < 1 {
		cfg.Slot = 1
	}
	grid := cfg.Grid
	if len(grid) == 0 {
		grid = DefaultGrid()
	}
	if cfg.Slot > len(grid) {
		return nil, fmt.Errorf("no grid pose for slot %d (grid has %d)", cfg.Slot, len(grid))
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	pose := grid[cfg.Slot-1]
	return &Session{
		ID:         cfg.ID,
		Slot:       cfg.Slot,
		StartedAt:  time.Now(),
		Vehicle:    vehicle.New(pose.Position, pose.Heading),
		Params:     cfg.Params,
		Controller: control.NewController(cfg.Control, cfg.Params),
		Laps:       lap.NewTracker(cfg.Track),
		Penalty:    lap.NewPenalty(cfg.Track, cfg.Damping),
		Channel:    cfg.Channel,
	}, nil
}

// Solo reports whether the session runs without a peer.
func (s *Session) Solo() bool {
	return s.Channel == nil
}

// Tick returns the number of ticks advanced so far.
func (s *Session) Tick() uint64 {
	return s.tick.Load()
}

// Advance increments the tick counter and returns the new tick.
func (s *Session) Advance() uint64 {
	return s.tick.Add(1)
}

// LogAttrs returns the attributes identifying this session in log records.
func (s *Session) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("session", s.ID),
		slog.Int("slot", s.Slot),
		slog.Uint64("tick", s.Tick()),
	}
}

// Close tears down the peer channel, if any.
func (s *Session) Close() error {
	if s.Channel == nil {
		return nil
	}
	if err := s.Channel.Close(); err != nil {
		return fmt.Errorf("closing sync channel: %w", err)
	}
	return nil
}
