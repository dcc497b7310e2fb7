package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/iamyashm/pyRace/internal/config"
	"github.com/iamyashm/pyRace/internal/control"
	"github.com/iamyashm/pyRace/internal/geo"
	"github.com/iamyashm/pyRace/internal/peersync"
	"github.com/iamyashm/pyRace/internal/race"
	"github.com/iamyashm/pyRace/internal/session"
	"github.com/iamyashm/pyRace/internal/telemetry"
	"github.com/iamyashm/pyRace/internal/track"
	"github.com/iamyashm/pyRace/pkg/wire"
)

func runDrive(args []string) error {
	fs := pflag.NewFlagSet("drive", pflag.ContinueOnError)
	configDir := commonFlags(fs)
	fs.String("relay", "", "relay websocket URL")
	fs.String("codec", "", "wire codec (json or protobuf)")
	fs.Bool("solo", false, "race alone without a relay")
	fs.String("script", "", `input script, e.g. "accelerate:120,accelerate+left:45"`)
	fs.Bool("loop", false, "repeat the input script until interrupted")
	fs.Int("tick-rate", 0, "ticks per second")
	fs.Bool("telemetry", false, "record a per-tick trace")
	start := fs.String("start", "", `override the grid pose position as "x,y" in track units`)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := setup("drive", fs, *configDir, map[string]string{
		"relay":     "sync.relayUrl",
		"codec":     "sync.codec",
		"solo":      "race.solo",
		"script":    "race.script",
		"loop":      "race.loop",
		"tick-rate": "race.tickRate",
		"telemetry": "telemetry.enabled",
	})
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	raceCfg, err := config.GetRaceConfig()
	if err != nil {
		return err
	}
	if *start != "" {
		pos, err := geo.ParseVec(*start)
		if err != nil {
			return fmt.Errorf("--start %q: %w", *start, err)
		}
		raceCfg.Grid = overrideGrid(raceCfg.Grid, pos)
	}

	surface, err := buildTrack(a.logger)
	if err != nil {
		return err
	}

	input, err := control.ParseScript(raceCfg.Script, raceCfg.Loop)
	if err != nil {
		return err
	}

	var (
		channel peersync.Channel
		link    *peersync.Link
		slot    = 1
		id      string
	)
	if !raceCfg.Solo {
		var joined bool
		link, joined, err = joinRelay(ctx, a.logger)
		if err != nil {
			return err
		}
		channel = link
		if joined {
			slot = link.Slot()
			id = link.Session()
		}
	}

	params, err := config.GetVehicleParams()
	if err != nil {
		return err
	}
	controlCfg, err := config.GetControlConfig()
	if err != nil {
		return err
	}

	ses, err := session.New(session.Config{
		ID:      id,
		Slot:    slot,
		Grid:    raceCfg.Grid,
		Params:  params,
		Control: controlCfg,
		Track:   surface,
		Damping: config.GetPenaltyDamping(),
		Channel: channel,
	})
	if err != nil {
		if channel != nil {
			_ = channel.Close()
		}
		return fmt.Errorf("creating session: %w", err)
	}
	defer func() {
		if err := ses.Close(); err != nil && !errors.Is(err, peersync.ErrClosed) {
			a.logger.Warn("Failed to close session", "error", err)
		}
	}()
	a.context = ses.LogAttrs
	if link != nil {
		watch := slotWatcher(a.logger, ses.Slot)
		link.OnWelcome(watch)
		// a welcome may have landed between joinRelay and OnWelcome
		if id == "" && link.Slot() != 0 {
			watch(link.Slot(), link.Session())
		}
	}

	opts := []race.Option{
		race.WithTickRate(raceCfg.TickRate),
		race.WithLogger(a.logger),
	}
	if raceCfg.FixedStep {
		opts = append(opts, race.WithFixedStep())
	}

	recorder, err := startTelemetry(a, ses)
	if err != nil {
		a.logger.Error("Telemetry disabled", "error", err)
	} else if recorder != nil {
		opts = append(opts, race.WithRecorder(recorder.Recorder))
		defer recorder.close(a.logger)
	}

	loop, err := race.New(ses, opts...)
	if err != nil {
		return err
	}

	renderer := newLogRenderer(a.logger, raceCfg.TickRate)
	err = loop.Run(ctx, input, renderer)
	renderer.summary()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// overrideGrid replaces the position of every grid pose, keeping headings.
func overrideGrid(grid []session.Pose, pos geo.Vec) []session.Pose {
	if len(grid) == 0 {
		grid = session.DefaultGrid()
	}
	out := make([]session.Pose, len(grid))
	for i, p := range grid {
		out[i] = session.Pose{Position: pos, Heading: p.Heading}
	}
	return out
}

// buildTrack builds the track geometry, rasterized when configured.
func buildTrack(logger *slog.Logger) (session.Geometry, error) {
	tc, err := config.GetTrackConfig()
	if err != nil {
		return nil, err
	}
	g, err := track.New(tc.Layout)
	if err != nil {
		return nil, fmt.Errorf("building track: %w", err)
	}
	if tc.Raster <= 0 {
		logger.Info("Track ready", "segments", len(tc.Layout.Segments), "mode", "analytic")
		return g, nil
	}

	r, err := track.Rasterize(g, tc.Raster)
	if err != nil {
		return nil, fmt.Errorf("rasterizing track: %w", err)
	}
	logger.Info("Track ready",
		"segments", len(tc.Layout.Segments),
		"mode", "raster",
		"step", tc.Raster,
		"coverage", r.Coverage(),
	)
	return r, nil
}

// joinRelay dials the relay and waits for a slot. A relay that cannot be
// reached is not fatal: the link keeps redialing and the race starts
// without a peer. joined reports whether a slot was assigned.
func joinRelay(ctx context.Context, logger *slog.Logger) (link *peersync.Link, joined bool, err error) {
	sc := config.GetSyncConfig()
	codec, err := wire.ParseCodec(sc.Codec)
	if err != nil {
		return nil, false, err
	}

	link, err = peersync.NewLink(peersync.LinkConfig{
		URL:            sc.RelayURL,
		Codec:          codec,
		MaxReconnect:   sc.MaxReconnect,
		InitialBackoff: sc.InitialBackoff,
		MaxBackoff:     sc.MaxBackoff,
	}, logger)
	if err != nil {
		return nil, false, fmt.Errorf("creating relay link: %w", err)
	}

	if err := link.Dial(ctx); err != nil {
		logger.Warn("Relay unavailable, racing without a peer for now", "url", sc.RelayURL, "error", err)
		return link, false, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, sc.JoinTimeout)
	defer cancel()
	slot, err := link.WaitWelcome(waitCtx)
	switch {
	case errors.Is(err, peersync.ErrRelayFull):
		_ = link.Close()
		return nil, false, fmt.Errorf("joining %s: %w", sc.RelayURL, err)
	case err != nil:
		logger.Warn("No welcome from relay, racing without a peer for now", "error", err)
		return link, false, nil
	}

	logger.Info("Joined race", "slot", slot, "session", link.Session(), "codec", codec.Name())
	return link, true, nil
}

// slotWatcher warns when the relay assigns a slot other than the one the
// session was built for. This happens when the first welcome arrives after
// the race started, or a reconnect lands in the other slot. The car keeps
// its grid pose and telemetry keeps the local slot.
func slotWatcher(logger *slog.Logger, local int) func(slot int, session string) {
	return func(slot int, session string) {
		if slot == local {
			logger.Info("Relay slot confirmed", "slot", slot, "relaySession", session)
			return
		}
		logger.Warn("Relay assigned a different slot than the session uses",
			"sessionSlot", local,
			"relaySlot", slot,
			"relaySession", session,
		)
	}
}

// traceRecorder pairs a recorder with the backend it owns.
type traceRecorder struct {
	*telemetry.Recorder
	backend telemetry.Backend
}

func (r *traceRecorder) close(logger *slog.Logger) {
	if err := r.Stop(); err != nil {
		logger.Warn("Failed to stop telemetry", "error", err)
	}
	if err := r.backend.Close(); err != nil {
		logger.Warn("Failed to close telemetry backend", "error", err)
	}
}

// startTelemetry returns nil when tracing is disabled.
func startTelemetry(a *app, ses *session.Session) (*traceRecorder, error) {
	tc := config.GetTelemetryConfig()
	if !tc.Enabled {
		return nil, nil
	}

	backend, err := createTelemetryBackend(a, tc)
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("initializing %s telemetry: %w", tc.Type, err)
	}

	rec, err := telemetry.NewRecorder(backend, telemetry.RecorderConfig{
		Buffer:        tc.Buffer,
		FlushInterval: tc.FlushInterval,
		MaxPending:    tc.MaxPending,
	}, a.logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	if err := rec.Start(telemetry.Info{
		ID:        ses.ID,
		Slot:      ses.Slot,
		Solo:      ses.Solo(),
		StartedAt: ses.StartedAt,
		Meta: map[string]any{
			"version": Version,
			"backend": tc.Type,
		},
	}); err != nil {
		_ = backend.Close()
		return nil, err
	}

	a.logger.Info("Telemetry recording", "backend", tc.Type)
	return &traceRecorder{Recorder: rec, backend: backend}, nil
}
