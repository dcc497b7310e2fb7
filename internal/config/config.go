package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/iamyashm/pyRace/internal/control"
	"github.com/iamyashm/pyRace/internal/session"
	"github.com/iamyashm/pyRace/internal/track"
	"github.com/iamyashm/pyRace/internal/vehicle"
)

// FileName is the config file looked up in the config directory.
const FileName = "pyrace.cfg.json"

// MemoryConfig holds in-memory/JSON trace backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite trace backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpDir      string        `json:"dumpDir" mapstructure:"dumpDir"`
}

// PostgresConfig holds postgres connection settings
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslMode" mapstructure:"sslMode"`
}

// InfluxConfig holds InfluxDB trace backend settings
type InfluxConfig struct {
	Protocol      string `json:"protocol" mapstructure:"protocol"`
	Host          string `json:"host" mapstructure:"host"`
	Port          string `json:"port" mapstructure:"port"`
	Token         string `json:"token" mapstructure:"token"`
	Org           string `json:"org" mapstructure:"org"`
	Bucket        string `json:"bucket" mapstructure:"bucket"`
	RetentionDays int    `json:"retentionDays" mapstructure:"retentionDays"`
}

// URL returns the server address built from protocol, host and port.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// TelemetryConfig holds the diagnostic trace settings
type TelemetryConfig struct {
	Enabled       bool           `json:"enabled" mapstructure:"enabled"`
	Type          string         `json:"type" mapstructure:"type"`
	Buffer        int            `json:"buffer" mapstructure:"buffer"`
	FlushInterval time.Duration  `json:"flushInterval" mapstructure:"flushInterval"`
	MaxPending    int            `json:"maxPending" mapstructure:"maxPending"`
	Memory        MemoryConfig   `json:"memory" mapstructure:"memory"`
	SQLite        SQLiteConfig   `json:"sqlite" mapstructure:"sqlite"`
	Postgres      PostgresConfig `json:"postgres" mapstructure:"postgres"`
	Influx        InfluxConfig   `json:"influx" mapstructure:"influx"`
}

// SyncConfig holds the participant side of the relay connection
type SyncConfig struct {
	RelayURL       string        `json:"relayUrl" mapstructure:"relayUrl"`
	Codec          string        `json:"codec" mapstructure:"codec"`
	JoinTimeout    time.Duration `json:"joinTimeout" mapstructure:"joinTimeout"`
	MaxReconnect   int           `json:"maxReconnect" mapstructure:"maxReconnect"`
	InitialBackoff time.Duration `json:"initialBackoff" mapstructure:"initialBackoff"`
	MaxBackoff     time.Duration `json:"maxBackoff" mapstructure:"maxBackoff"`
}

// RelayConfig holds relay server settings
type RelayConfig struct {
	Listen       string        `json:"listen" mapstructure:"listen"`
	Path         string        `json:"path" mapstructure:"path"`
	HelloTimeout time.Duration `json:"helloTimeout" mapstructure:"helloTimeout"`
}

// RaceConfig holds tick loop settings
type RaceConfig struct {
	TickRate  int            `json:"tickRate" mapstructure:"tickRate"`
	FixedStep bool           `json:"fixedStep" mapstructure:"fixedStep"`
	Solo      bool           `json:"solo" mapstructure:"solo"`
	Script    string         `json:"script" mapstructure:"script"`
	Loop      bool           `json:"loop" mapstructure:"loop"`
	Grid      []session.Pose `json:"grid" mapstructure:"grid"`
}

// TrackConfig selects how the off-track surface is built
type TrackConfig struct {
	Layout track.Layout
	// Raster, when positive, samples the layout on a grid of that many
	// pixels instead of testing segments analytically.
	Raster float64
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level          string
	Dir            string
	GraylogEnabled bool
	GraylogAddress string
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./pyracelogs")

	p := vehicle.DefaultParams()
	viper.SetDefault("vehicle.length", p.Length)
	viper.SetDefault("vehicle.maxSteering", p.MaxSteering)
	viper.SetDefault("vehicle.maxAcceleration", p.MaxAcceleration)
	viper.SetDefault("vehicle.maxVelocity", p.MaxVelocity)
	viper.SetDefault("vehicle.brakeDeceleration", p.BrakeDeceleration)
	viper.SetDefault("vehicle.freeDeceleration", p.FreeDeceleration)

	c := control.DefaultConfig()
	viper.SetDefault("control.throttleRate", c.ThrottleRate)
	viper.SetDefault("control.steerRate", c.SteerRate)
	viper.SetDefault("control.offTrackAccelLimit", c.OffTrackAccelLimit)

	viper.SetDefault("penalty.damping", 0.2)
	viper.SetDefault("track.raster", 0)

	viper.SetDefault("race.tickRate", 60)
	viper.SetDefault("race.fixedStep", false)
	viper.SetDefault("race.solo", false)
	viper.SetDefault("race.script", "accelerate:600")
	viper.SetDefault("race.loop", false)

	viper.SetDefault("sync.relayUrl", "ws://localhost:8765/race")
	viper.SetDefault("sync.codec", "json")
	viper.SetDefault("sync.joinTimeout", "5s")
	viper.SetDefault("sync.maxReconnect", 10)
	viper.SetDefault("sync.initialBackoff", "1s")
	viper.SetDefault("sync.maxBackoff", "30s")

	viper.SetDefault("relay.listen", ":8765")
	viper.SetDefault("relay.path", "/race")
	viper.SetDefault("relay.helloTimeout", "5s")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.type", "memory")
	viper.SetDefault("telemetry.buffer", 1024)
	viper.SetDefault("telemetry.flushInterval", "1s")
	viper.SetDefault("telemetry.maxPending", 0)
	viper.SetDefault("telemetry.memory.outputDir", "./traces")
	viper.SetDefault("telemetry.memory.compressOutput", true)
	viper.SetDefault("telemetry.sqlite.dumpInterval", "1m")
	viper.SetDefault("telemetry.sqlite.dumpDir", "./traces")
	viper.SetDefault("telemetry.postgres.host", "localhost")
	viper.SetDefault("telemetry.postgres.port", 5432)
	viper.SetDefault("telemetry.postgres.username", "postgres")
	viper.SetDefault("telemetry.postgres.password", "postgres")
	viper.SetDefault("telemetry.postgres.database", "pyrace")
	viper.SetDefault("telemetry.postgres.sslMode", "disable")
	viper.SetDefault("telemetry.influx.protocol", "http")
	viper.SetDefault("telemetry.influx.host", "localhost")
	viper.SetDefault("telemetry.influx.port", "8086")
	viper.SetDefault("telemetry.influx.token", "supersecrettoken")
	viper.SetDefault("telemetry.influx.org", "pyrace")
	viper.SetDefault("telemetry.influx.bucket", "pyrace-trace")
	viper.SetDefault("telemetry.influx.retentionDays", 30)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "pyrace")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// BindFlags binds command line flags onto config keys. Only flags that
// were set on the command line override the config file.
func BindFlags(fs *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		f := fs.Lookup(flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", flag)
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %q: %w", flag, err)
		}
	}
	return nil
}

// GetVehicleParams returns the physical limits of the car.
func GetVehicleParams() (vehicle.Params, error) {
	p := vehicle.DefaultParams()
	if err := viper.UnmarshalKey("vehicle", &p); err != nil {
		return vehicle.Params{}, fmt.Errorf("decoding vehicle config: %w", err)
	}
	if p.MaxVelocity <= 0 || p.MaxSteering <= 0 || p.Length <= 0 {
		return vehicle.Params{}, fmt.Errorf("vehicle length, maxVelocity and maxSteering must be positive")
	}
	return p, nil
}

// GetControlConfig returns the input ramp settings.
func GetControlConfig() (control.Config, error) {
	c := control.DefaultConfig()
	if err := viper.UnmarshalKey("control", &c); err != nil {
		return control.Config{}, fmt.Errorf("decoding control config: %w", err)
	}
	return c, nil
}

// GetPenaltyDamping returns the velocity factor applied on leaving the track.
func GetPenaltyDamping() float64 {
	return viper.GetFloat64("penalty.damping")
}

// GetTrackConfig returns the track layout. Without configured segments the
// stock loop is used; other layout fields override the stock values.
func GetTrackConfig() (TrackConfig, error) {
	layout := track.Default()
	if viper.IsSet("track.segments") {
		layout.Segments = nil
	}
	if err := viper.UnmarshalKey("track", &layout); err != nil {
		return TrackConfig{}, fmt.Errorf("decoding track config: %w", err)
	}
	return TrackConfig{
		Layout: layout,
		Raster: viper.GetFloat64("track.raster"),
	}, nil
}

// GetRaceConfig returns the tick loop settings.
func GetRaceConfig() (RaceConfig, error) {
	c := RaceConfig{
		TickRate:  viper.GetInt("race.tickRate"),
		FixedStep: viper.GetBool("race.fixedStep"),
		Solo:      viper.GetBool("race.solo"),
		Script:    viper.GetString("race.script"),
		Loop:      viper.GetBool("race.loop"),
	}
	if viper.IsSet("race.grid") {
		if err := viper.UnmarshalKey("race.grid", &c.Grid); err != nil {
			return RaceConfig{}, fmt.Errorf("decoding race grid: %w", err)
		}
	}
	return c, nil
}

// GetSyncConfig returns the relay connection settings.
func GetSyncConfig() SyncConfig {
	return SyncConfig{
		RelayURL:       viper.GetString("sync.relayUrl"),
		Codec:          viper.GetString("sync.codec"),
		JoinTimeout:    viper.GetDuration("sync.joinTimeout"),
		MaxReconnect:   viper.GetInt("sync.maxReconnect"),
		InitialBackoff: viper.GetDuration("sync.initialBackoff"),
		MaxBackoff:     viper.GetDuration("sync.maxBackoff"),
	}
}

// GetRelayConfig returns the relay server settings.
func GetRelayConfig() RelayConfig {
	return RelayConfig{
		Listen:       viper.GetString("relay.listen"),
		Path:         viper.GetString("relay.path"),
		HelloTimeout: viper.GetDuration("relay.helloTimeout"),
	}
}

// GetTelemetryConfig returns the trace settings.
func GetTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:       viper.GetBool("telemetry.enabled"),
		Type:          viper.GetString("telemetry.type"),
		Buffer:        viper.GetInt("telemetry.buffer"),
		FlushInterval: viper.GetDuration("telemetry.flushInterval"),
		MaxPending:    viper.GetInt("telemetry.maxPending"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("telemetry.memory.outputDir"),
			CompressOutput: viper.GetBool("telemetry.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("telemetry.sqlite.dumpInterval"),
			DumpDir:      viper.GetString("telemetry.sqlite.dumpDir"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("telemetry.postgres.host"),
			Port:     viper.GetInt("telemetry.postgres.port"),
			Username: viper.GetString("telemetry.postgres.username"),
			Password: viper.GetString("telemetry.postgres.password"),
			Database: viper.GetString("telemetry.postgres.database"),
			SSLMode:  viper.GetString("telemetry.postgres.sslMode"),
		},
		Influx: InfluxConfig{
			Protocol:      viper.GetString("telemetry.influx.protocol"),
			Host:          viper.GetString("telemetry.influx.host"),
			Port:          viper.GetString("telemetry.influx.port"),
			Token:         viper.GetString("telemetry.influx.token"),
			Org:           viper.GetString("telemetry.influx.org"),
			Bucket:        viper.GetString("telemetry.influx.bucket"),
			RetentionDays: viper.GetInt("telemetry.influx.retentionDays"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetLoggingConfig returns the log level, log directory and Graylog settings.
func GetLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:          viper.GetString("logLevel"),
		Dir:            viper.GetString("logsDir"),
		GraylogEnabled: viper.GetBool("graylog.enabled"),
		GraylogAddress: viper.GetString("graylog.address"),
	}
}
