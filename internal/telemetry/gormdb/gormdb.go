// Package gormdb stores session traces in a relational database through
// GORM. SQLite runs in memory with periodic VACUUM INTO dumps; postgres is
// written to directly.
package gormdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/iamyashm/pyRace/internal/telemetry"
)

// Config holds GORM backend configuration.
type Config struct {
	// DumpPath and DumpInterval only apply to SQLite.
	DumpPath     string
	DumpInterval time.Duration
	BatchSize    int
}

// Backend implements telemetry.Backend on a *gorm.DB.
type Backend struct {
	db     *gorm.DB
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	session string
	count   int

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a backend on db.
func New(db *gorm.DB, cfg Config, logger *slog.Logger) *Backend {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		db:       db,
		cfg:      cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

func (b *Backend) isSQLite() bool {
	return b.db.Dialector.Name() == "sqlite"
}

// Init migrates the schema and starts the dump goroutine for SQLite.
func (b *Backend) Init() error {
	if err := b.db.AutoMigrate(&SessionRow{}, &SampleRow{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	if b.isSQLite() && b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}
	return nil
}

// Close stops the dump goroutine and closes the connection.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() { close(b.stopChan) })
	b.wg.Wait()

	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StartSession inserts the session row.
func (b *Backend) StartSession(info telemetry.Info) error {
	meta, err := json.Marshal(info.Meta)
	if err != nil {
		return fmt.Errorf("marshal session meta: %w", err)
	}

	row := SessionRow{
		ID:        info.ID,
		Slot:      info.Slot,
		Solo:      info.Solo,
		StartedAt: info.StartedAt,
		Meta:      datatypes.JSON(meta),
	}
	if err := b.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	b.mu.Lock()
	b.session = info.ID
	b.count = 0
	b.mu.Unlock()
	return nil
}

// RecordSamples writes a batch in one transaction.
func (b *Backend) RecordSamples(samples []telemetry.Sample) error {
	b.mu.Lock()
	session := b.session
	b.mu.Unlock()
	if session == "" {
		return errors.New("no session started")
	}
	if len(samples) == 0 {
		return nil
	}

	rows := make([]SampleRow, len(samples))
	for i, s := range samples {
		rows[i] = SampleRow{
			SessionID:    session,
			Tick:         s.Tick,
			Time:         s.Time,
			X:            s.X,
			Y:            s.Y,
			VX:           s.VX,
			VY:           s.VY,
			Heading:      s.Heading,
			Steering:     s.Steering,
			Acceleration: s.Acceleration,
			Lap:          s.Lap,
			OffTrack:     s.OffTrack,
			Peer:         s.Peer,
			PeerTick:     s.PeerTick,
		}
	}

	err := b.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&rows, b.cfg.BatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("error creating samples: %w", err)
	}

	b.mu.Lock()
	b.count += len(rows)
	b.mu.Unlock()
	return nil
}

// EndSession stamps the session row and takes a final dump for SQLite.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	session, count := b.session, b.count
	b.session = ""
	b.mu.Unlock()
	if session == "" {
		return errors.New("no session started")
	}

	now := time.Now()
	err := b.db.Model(&SessionRow{}).Where("id = ?", session).
		Updates(map[string]any{"ended_at": now, "samples": count}).Error
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	if b.isSQLite() && b.cfg.DumpPath != "" {
		return DumpToDisk(b.db, b.cfg.DumpPath)
	}
	return nil
}

// dumpLoop periodically dumps the in-memory SQLite database to disk.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := DumpToDisk(b.db, b.cfg.DumpPath); err != nil {
				b.logger.Error("Error dumping trace database", "error", err)
			} else {
				b.logger.Debug("Dumped trace database", "path", b.cfg.DumpPath, "duration", time.Since(start))
			}
		}
	}
}
