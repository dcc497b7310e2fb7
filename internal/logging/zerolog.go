package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// zerologLevel maps a config log level onto zerolog.
func zerologLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Zerolog builds a console-format zerolog logger for components that log
// through zerolog. It writes to file without colors, or to stdout when file
// is nil, and stamps every event with component and the current context
// attributes.
func (m *SlogManager) Zerolog(file io.Writer, level, component string) zerolog.Logger {
	var out io.Writer = zerolog.ConsoleWriter{Out: osStdout, TimeFormat: time.RFC3339}
	if file != nil {
		out = zerolog.ConsoleWriter{Out: file, TimeFormat: time.RFC3339, NoColor: true}
	}

	logger := zerolog.New(out).
		Level(zerologLevel(level)).
		With().Timestamp().Str("component", component).Logger()

	provider := m.Context
	if provider == nil {
		return logger
	}
	return logger.Hook(zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
		for _, a := range provider() {
			e.Interface(a.Key, a.Value.Any())
		}
	}))
}
