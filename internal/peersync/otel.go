package peersync

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/iamyashm/pyRace/internal/peersync"

type metrics struct {
	sent         metric.Int64Counter
	received     metric.Int64Counter
	overwritten  metric.Int64Counter
	decodeErrors metric.Int64Counter
	reconnects   metric.Int64Counter
}

// newMetrics creates the link instruments from the global meter provider
// (no-op if not configured).
func newMetrics() (*metrics, error) {
	m := otel.Meter(instrumentationName)
	var (
		ms  metrics
		err error
	)

	if ms.sent, err = m.Int64Counter("peersync.messages.sent",
		metric.WithDescription("State messages written to the relay")); err != nil {
		return nil, fmt.Errorf("creating sent counter: %w", err)
	}
	if ms.received, err = m.Int64Counter("peersync.messages.received",
		metric.WithDescription("Peer state messages received")); err != nil {
		return nil, fmt.Errorf("creating received counter: %w", err)
	}
	if ms.overwritten, err = m.Int64Counter("peersync.messages.overwritten",
		metric.WithDescription("Outgoing states replaced before they were written")); err != nil {
		return nil, fmt.Errorf("creating overwritten counter: %w", err)
	}
	if ms.decodeErrors, err = m.Int64Counter("peersync.decode_errors",
		metric.WithDescription("Frames that could not be decoded")); err != nil {
		return nil, fmt.Errorf("creating decode error counter: %w", err)
	}
	if ms.reconnects, err = m.Int64Counter("peersync.reconnects",
		metric.WithDescription("Successful reconnects to the relay")); err != nil {
		return nil, fmt.Errorf("creating reconnect counter: %w", err)
	}
	return &ms, nil
}

func (m *metrics) add(c metric.Int64Counter) {
	c.Add(context.Background(), 1)
}
