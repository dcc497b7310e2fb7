// Package influx writes session traces to InfluxDB as time series points.
// When the server cannot be reached, points go to a gzip line-protocol
// backup file instead.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/iamyashm/pyRace/internal/telemetry"
)

// Measurement is the measurement name of every written point.
const Measurement = "vehicle"

// Config holds InfluxDB connection settings.
type Config struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	BackupPath    string
	RetentionDays int
	PingTimeout   time.Duration
}

// Backend implements telemetry.Backend on the InfluxDB write API.
type Backend struct {
	cfg    Config
	logger zerolog.Logger

	client influxdb2.Client
	writer influxdb2_api.WriteAPI

	mu         sync.Mutex
	backupFile *os.File
	backup     *gzip.Writer
	session    *telemetry.Info
}

// New creates an InfluxDB backend.
func New(cfg Config, logger zerolog.Logger) *Backend {
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	return &Backend{cfg: cfg, logger: logger}
}

// Init connects to InfluxDB, making sure the bucket exists. If the server
// is unreachable the backup writer is used instead and Init still succeeds.
func (b *Backend) Init() error {
	b.client = influxdb2.NewClientWithOptions(
		b.cfg.URL,
		b.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.PingTimeout)
	defer cancel()
	running, err := b.client.Ping(ctx)
	if err != nil || !running {
		b.logger.Warn().Err(err).Str("backupPath", b.cfg.BackupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		b.client.Close()
		b.client = nil
		return b.openBackup()
	}

	if err := b.ensureBucket(context.Background()); err != nil {
		return err
	}

	b.writer = b.client.WriteAPI(b.cfg.Org, b.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			b.logger.Error().Err(writeErr).Str("bucket", b.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(b.writer.Errors())

	b.logger.Info().Str("bucket", b.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (b *Backend) openBackup() error {
	if b.cfg.BackupPath == "" {
		return errors.New("influxdb unreachable and no backup path configured")
	}
	file, err := os.OpenFile(b.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	b.backupFile = file
	b.backup = gzip.NewWriter(file)
	return nil
}

func (b *Backend) ensureBucket(ctx context.Context) error {
	orgs := b.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, b.cfg.Org)
	if err != nil {
		b.logger.Info().Str("org", b.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, b.cfg.Org)
		if err != nil {
			return fmt.Errorf("creating organization %q: %w", b.cfg.Org, err)
		}
	}

	buckets := b.client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, b.cfg.Bucket); err == nil {
		return nil
	}

	b.logger.Info().Str("bucket", b.cfg.Bucket).Msg("Bucket not found, creating")
	rule := domain.RetentionRuleTypeExpire
	_, err = buckets.CreateBucketWithName(ctx, org, b.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: int64(b.cfg.RetentionDays) * 24 * 60 * 60,
	})
	if err != nil {
		return fmt.Errorf("creating bucket %q: %w", b.cfg.Bucket, err)
	}
	return nil
}

// UsingBackup reports whether points are going to the backup file.
func (b *Backend) UsingBackup() bool {
	return b.backup != nil
}

// Close flushes and releases the client or backup file.
func (b *Backend) Close() error {
	if b.writer != nil {
		b.writer.Flush()
	}
	if b.client != nil {
		b.client.Close()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.backup != nil {
		if err := b.backup.Close(); err != nil {
			return fmt.Errorf("closing backup writer: %w", err)
		}
		b.backup = nil
		return b.backupFile.Close()
	}
	return nil
}

// StartSession sets the tags for subsequent points.
func (b *Backend) StartSession(info telemetry.Info) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = &info
	return nil
}

// EndSession flushes buffered points.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return errors.New("no session started")
	}
	b.session = nil

	if b.writer != nil {
		b.writer.Flush()
	}
	if b.backup != nil {
		return b.backup.Flush()
	}
	return nil
}

// RecordSamples writes one point per sample.
func (b *Backend) RecordSamples(samples []telemetry.Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return errors.New("no session started")
	}

	for _, s := range samples {
		p := Point(*b.session, s)
		if b.writer != nil {
			b.writer.WritePoint(p)
			continue
		}
		if b.backup == nil {
			return errors.New("influxdb client not initialized and backup writer not available")
		}
		line := strings.TrimRight(influxdb2_write.PointToLineProtocol(p, time.Nanosecond), "\n")
		if _, err := b.backup.Write([]byte(line + "\n")); err != nil {
			return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
		}
	}
	return nil
}

// Point converts a sample into an InfluxDB point tagged with its session.
func Point(info telemetry.Info, s telemetry.Sample) *influxdb2_write.Point {
	return influxdb2.NewPoint(
		Measurement,
		map[string]string{
			"session": info.ID,
			"slot":    strconv.Itoa(info.Slot),
			"peer":    s.Peer,
		},
		map[string]any{
			"tick":         int64(s.Tick),
			"x":            s.X,
			"y":            s.Y,
			"vx":           s.VX,
			"vy":           s.VY,
			"heading":      s.Heading,
			"steering":     s.Steering,
			"acceleration": s.Acceleration,
			"lap":          s.Lap,
			"off_track":    s.OffTrack,
		},
		s.Time,
	)
}
