package parking

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/iliyamo/garage-parking/internal/parking"

// Metrics are recorded through the global meter provider, which is a no-op
// until telemetry.Init installs an exporter.
type Metrics struct {
	entries      metric.Int64Counter
	placements   metric.Int64Counter
	exits        metric.Int64Counter
	chargedCents metric.Int64Counter
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	entries, err := meter.Int64Counter("parking.entries",
		metric.WithDescription("Entry events by outcome"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	placements, err := meter.Int64Counter("parking.placements",
		metric.WithDescription("Placement attempts by result"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	exits, err := meter.Int64Counter("parking.exits",
		metric.WithDescription("Closed sessions"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	chargedCents, err := meter.Int64Counter("parking.charged_cents",
		metric.WithDescription("Amount charged at exit"),
		metric.WithUnit("{cent}"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		entries:      entries,
		placements:   placements,
		exits:        exits,
		chargedCents: chargedCents,
	}, nil
}

func (m *Metrics) entry(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.entries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) placement(ctx context.Context, result PlacementResult) {
	if m == nil {
		return
	}
	m.placements.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result.String())))
}

func (m *Metrics) exit(ctx context.Context, sectorCode string, cents int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("sector", sectorCode))
	m.exits.Add(ctx, 1, attrs)
	m.chargedCents.Add(ctx, cents, attrs)
}
