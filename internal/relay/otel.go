package relay

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/iamyashm/pyRace/internal/relay"

type metrics struct {
	clients   metric.Int64UpDownCounter
	rejected  metric.Int64Counter
	forwarded metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	m := otel.Meter(instrumentationName)
	var (
		ms  metrics
		err error
	)

	ms.clients, err = m.Int64UpDownCounter("relay.clients",
		metric.WithDescription("Clients currently holding a slot"))
	if err != nil {
		return nil, fmt.Errorf("creating clients gauge: %w", err)
	}
	ms.rejected, err = m.Int64Counter("relay.clients.rejected",
		metric.WithDescription("Clients turned away because both slots were taken"))
	if err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}
	ms.forwarded, err = m.Int64Counter("relay.frames.forwarded",
		metric.WithDescription("State frames forwarded to the other slot"))
	if err != nil {
		return nil, fmt.Errorf("creating forwarded counter: %w", err)
	}
	return &ms, nil
}
