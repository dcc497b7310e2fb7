package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/iamyashm/pyRace/internal/config"
	"github.com/iamyashm/pyRace/internal/logging"
	intOtel "github.com/iamyashm/pyRace/internal/otel"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	AppName string = "pyrace"
)

// app is the process-wide state built before a subcommand runs and torn
// down after it returns.
type app struct {
	role        string
	startedAt   time.Time
	logFile     *os.File
	logFilePath string

	slog   *logging.SlogManager
	logger *slog.Logger
	otel   *intOtel.Provider

	// context is swapped in once a session exists, so that every record
	// carries the session id, slot and tick.
	context logging.ContextProvider
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `%s %s (built %s)

Usage:
  %s drive [flags]   race one car, against a peer through the relay or solo
  %s relay [flags]   run the relay the two participants connect to

Run "%s <command> --help" for the flags of a command.
`, AppName, Version, BuildDate, AppName, AppName, AppName)
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var err error
	switch strings.ToLower(os.Args[1]) {
	case "drive":
		err = runDrive(os.Args[2:])
	case "relay":
		err = runRelay(os.Args[2:])
	case "version":
		fmt.Printf("%s %s (built %s)\n", AppName, Version, BuildDate)
	case "help", "-h", "--help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// commonFlags registers the flags every subcommand takes.
func commonFlags(fs *pflag.FlagSet) *string {
	configDir := fs.StringP("config", "c", ".", "directory containing "+config.FileName)
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("logs-dir", "", "directory for log files")
	return configDir
}

// setup loads config, binds flags and initializes logging and OTel.
func setup(role string, fs *pflag.FlagSet, configDir string, bindings map[string]string) (*app, error) {
	a := &app{role: role, startedAt: time.Now()}

	// console logging until the log file is known
	a.slog = logging.NewSlogManager()
	a.slog.Setup(nil, "info", nil)
	a.logger = a.slog.Logger()

	if err := config.Load(configDir); err != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		a.logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}

	bindings["log-level"] = "logLevel"
	bindings["logs-dir"] = "logsDir"
	if err := config.BindFlags(fs, bindings); err != nil {
		return nil, err
	}

	lc := config.GetLoggingConfig()
	if err := os.MkdirAll(lc.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}
	a.logFilePath = logging.LogFilePath(lc.Dir, AppName+"_"+role, a.startedAt)
	if _, err := os.Stat(a.logFilePath); err == nil {
		_ = os.Rename(a.logFilePath, a.logFilePath+".old")
	}
	f, err := os.OpenFile(a.logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		a.logger.Error("Failed to create/open log file!", "error", err, "path", a.logFilePath)
	} else {
		a.logFile = f
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		a.otel, err = intOtel.New(intOtel.Config{
			Enabled:      true,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    a.fileWriter(),
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
			Role:         role,
			InstanceID:   role + "-" + uuid.NewString(),
		})
		if err != nil {
			a.logger.Error("Failed to initialize OTel provider", "error", err)
			a.otel = nil
		}
	}

	if lc.GraylogEnabled {
		if err := a.slog.EnableGraylog(lc.GraylogAddress); err != nil {
			a.logger.Warn("Graylog disabled", "error", err)
		}
	}

	a.slog.Context = func() []slog.Attr {
		if a.context == nil {
			return nil
		}
		return a.context()
	}
	a.setupLogger()
	return a, nil
}

func (a *app) setupLogger() {
	var provider *sdklog.LoggerProvider
	if a.otel != nil {
		provider = a.otel.LoggerProvider()
	}
	a.slog.Setup(a.fileWriter(), config.GetLoggingConfig().Level, provider)
	a.logger = a.slog.Logger().With("role", a.role)
	slog.SetDefault(a.logger)
	a.logger.Info("Starting up", "version", Version, "build", BuildDate, "log", a.logFilePath)
}

// fileWriter returns the log file, or nil so that output goes to stdout.
func (a *app) fileWriter() io.Writer {
	if a.logFile == nil {
		return nil
	}
	return a.logFile
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			a.logger.Warn("Failed to shut down OTel", "error", err)
		}
	}
	if err := a.slog.Close(); err != nil {
		a.logger.Warn("Failed to close graylog writer", "error", err)
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
