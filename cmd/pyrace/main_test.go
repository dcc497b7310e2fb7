package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamyashm/pyRace/internal/config"
	"github.com/iamyashm/pyRace/internal/geo"
	"github.com/iamyashm/pyRace/internal/logging"
	"github.com/iamyashm/pyRace/internal/peersync"
	"github.com/iamyashm/pyRace/internal/race"
	"github.com/iamyashm/pyRace/internal/session"
	"github.com/iamyashm/pyRace/internal/telemetry/memory"
	"github.com/iamyashm/pyRace/internal/vehicle"
)

func testApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	m := logging.NewSlogManager()
	m.Setup(&buf, "debug", nil)
	return &app{
		role:      "drive",
		startedAt: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC),
		slog:      m,
		logger:    m.Logger(),
	}, &buf
}

func TestOverrideGrid(t *testing.T) {
	pos := geo.Vec{X: 5, Y: 6}

	got := overrideGrid(nil, pos)
	require.Len(t, got, len(session.DefaultGrid()))
	for _, p := range got {
		assert.Equal(t, pos, p.Position)
	}

	got = overrideGrid([]session.Pose{{Heading: 90}}, pos)
	require.Len(t, got, 1)
	assert.Equal(t, session.Pose{Position: pos, Heading: 90}, got[0])
}

func TestCreateTelemetryBackend(t *testing.T) {
	a, _ := testApp(t)

	t.Run("memory", func(t *testing.T) {
		b, err := createTelemetryBackend(a, config.TelemetryConfig{
			Type:   "memory",
			Memory: config.MemoryConfig{OutputDir: t.TempDir()},
		})
		require.NoError(t, err)
		assert.IsType(t, &memory.Backend{}, b)
	})

	t.Run("empty type defaults to memory", func(t *testing.T) {
		b, err := createTelemetryBackend(a, config.TelemetryConfig{})
		require.NoError(t, err)
		assert.IsType(t, &memory.Backend{}, b)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := createTelemetryBackend(a, config.TelemetryConfig{Type: "cassandra"})
		assert.ErrorContains(t, err, "cassandra")
	})
}

func TestLogRenderer(t *testing.T) {
	a, buf := testApp(t)
	r := newLogRenderer(a.logger, 2)

	r.Render(race.Frame{Tick: 1, Peer: peersync.Snapshot{Status: peersync.NoPeer}})
	r.Render(race.Frame{
		Tick:   2,
		Local:  vehicle.State{Lap: 1},
		Lapped: true,
		Peer: peersync.Snapshot{
			Status: peersync.Live,
			Tick:   7,
			State:  vehicle.State{Lap: 2},
		},
	})
	r.summary()

	out := buf.String()
	assert.Contains(t, out, "msg=LAP lap=1")
	assert.Contains(t, out, "to=live")
	assert.Contains(t, out, "msg=HUD")
	assert.Contains(t, out, "peerTick=7")
	assert.Contains(t, out, "msg=\"Race summary\" frames=2 lap=1")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("msg=HUD")))
}

func TestLogRenderer_NoFrames(t *testing.T) {
	a, buf := testApp(t)
	newLogRenderer(a.logger, 0).summary()
	assert.Contains(t, buf.String(), "No frames rendered")
}

func TestSlotWatcher(t *testing.T) {
	a, buf := testApp(t)
	watch := slotWatcher(a.logger, 1)

	watch(1, "r-1")
	assert.Contains(t, buf.String(), "Relay slot confirmed")
	assert.NotContains(t, buf.String(), "different slot")

	watch(2, "r-2")
	out := buf.String()
	assert.Contains(t, out, "Relay assigned a different slot than the session uses")
	assert.Contains(t, out, "sessionSlot=1 relaySlot=2 relaySession=r-2")
}
