// Package dispatcher routes decoded relay messages to handlers by message type.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/iamyashm/pyRace/pkg/wire"
)

// ErrUnknownType is returned by Dispatch when no handler is registered
var ErrUnknownType = errors.New("unknown message type")

// Event is one message received from a connected client.
type Event struct {
	Type      string
	Slot      int
	Frame     []byte
	Binary    bool
	Message   wire.Message
	Timestamp time.Time
}

// HandlerFunc processes an event.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	logged bool
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to registered handlers. Handlers run on the
// caller's goroutine, which for the relay is the client's read loop.
type Dispatcher struct {
	logger Logger

	processed metric.Int64Counter
	failed    metric.Int64Counter
	unknown   metric.Int64Counter

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	closed   bool
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}

	m := meter()

	var err error

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.events.failed",
		metric.WithDescription("Events whose handler returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	d.unknown, err = m.Int64Counter(
		"dispatcher.events.unknown",
		metric.WithDescription("Events with no registered handler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating unknown counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given message type with optional configuration.
func (d *Dispatcher) Register(typ string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h
	if cfg.logged {
		handler = d.withLogging(typ, handler)
	}
	handler = d.counted(typ, handler)

	d.mu.Lock()
	d.handlers[typ] = handler
	d.mu.Unlock()
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) error {
	d.mu.RLock()
	h, ok := d.handlers[e.Type]
	closed := d.closed
	d.mu.RUnlock()

	if closed {
		return fmt.Errorf("dispatch %s: dispatcher closed", e.Type)
	}
	if !ok {
		d.unknown.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", e.Type)))
		return fmt.Errorf("%w: %s", ErrUnknownType, e.Type)
	}
	return h(e)
}

// Close stops accepting events. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *Dispatcher) counted(typ string, h HandlerFunc) HandlerFunc {
	typAttr := metric.WithAttributes(attribute.String("type", typ))
	return func(e Event) error {
		err := h(e)
		d.processed.Add(context.Background(), 1, typAttr)
		if err != nil {
			d.failed.Add(context.Background(), 1, typAttr)
		}
		return err
	}
}

func (d *Dispatcher) withLogging(typ string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "type", typ, "slot", e.Slot, "bytes", len(e.Frame))

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "type", typ, "slot", e.Slot, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "type", typ, "slot", e.Slot, "duration", time.Since(start))
		}

		return err
	}
}
