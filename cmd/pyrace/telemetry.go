package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iamyashm/pyRace/internal/config"
	"github.com/iamyashm/pyRace/internal/telemetry"
	"github.com/iamyashm/pyRace/internal/telemetry/gormdb"
	"github.com/iamyashm/pyRace/internal/telemetry/influx"
	"github.com/iamyashm/pyRace/internal/telemetry/memory"
)

func createTelemetryBackend(a *app, tc config.TelemetryConfig) (telemetry.Backend, error) {
	stamp := a.startedAt.Format("20060102_150405")

	switch tc.Type {
	case "postgres":
		db, err := gormdb.OpenPostgres(gormdb.PostgresConfig{
			Host:     tc.Postgres.Host,
			Port:     tc.Postgres.Port,
			Username: tc.Postgres.Username,
			Password: tc.Postgres.Password,
			Database: tc.Postgres.Database,
			SSLMode:  tc.Postgres.SSLMode,
		})
		if err != nil {
			return nil, err
		}
		a.logger.Info("Postgres telemetry backend initialized", "host", tc.Postgres.Host)
		return gormdb.New(db, gormdb.Config{}, a.logger), nil

	case "sqlite":
		if err := os.MkdirAll(tc.SQLite.DumpDir, 0755); err != nil {
			return nil, fmt.Errorf("creating sqlite dump dir: %w", err)
		}
		db, err := gormdb.OpenSQLite("")
		if err != nil {
			return nil, err
		}
		dumpPath := filepath.Join(tc.SQLite.DumpDir, fmt.Sprintf("%s_%s.db", AppName, stamp))
		a.logger.Info("SQLite telemetry backend initialized", "dump", dumpPath)
		return gormdb.New(db, gormdb.Config{
			DumpPath:     dumpPath,
			DumpInterval: tc.SQLite.DumpInterval,
		}, a.logger), nil

	case "influx":
		lc := config.GetLoggingConfig()
		backup := filepath.Join(lc.Dir, fmt.Sprintf("%s_influx_backup.%s.log.gz", AppName, stamp))
		logger := a.slog.Zerolog(a.fileWriter(), lc.Level, "influx")
		a.logger.Info("InfluxDB telemetry backend initialized", "url", tc.Influx.URL())
		return influx.New(influx.Config{
			URL:           tc.Influx.URL(),
			Token:         tc.Influx.Token,
			Org:           tc.Influx.Org,
			Bucket:        tc.Influx.Bucket,
			BackupPath:    backup,
			RetentionDays: tc.Influx.RetentionDays,
		}, logger), nil

	case "memory", "":
		a.logger.Info("Memory telemetry backend initialized", "outputDir", tc.Memory.OutputDir)
		return memory.New(memory.Config{
			OutputDir:      tc.Memory.OutputDir,
			CompressOutput: tc.Memory.CompressOutput,
		}), nil
	}

	return nil, fmt.Errorf("unknown telemetry backend %q", tc.Type)
}
