package cartstore

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Operation names recorded on cartstore.mutations.
const (
	opAdd      = "add"
	opRemove   = "remove"
	opIncrease = "increase"
	opDecrease = "decrease"
	opClear    = "clear"
)

type storeMetrics struct {
	mutations       metric.Int64Counter
	persistFailures metric.Int64Counter
	lines           metric.Int64Gauge
	units           metric.Int64Gauge
}

func newStoreMetrics(meter metric.Meter) (storeMetrics, error) {
	var m storeMetrics
	var err error

	m.mutations, err = meter.Int64Counter("cartstore.mutations",
		metric.WithDescription("Cart changes, by operation"))
	if err != nil {
		return m, errors.Wrap(err, "failed to create mutations counter")
	}
	m.persistFailures, err = meter.Int64Counter("cartstore.persist.failures",
		metric.WithDescription("Failed writes of the cart to storage"))
	if err != nil {
		return m, errors.Wrap(err, "failed to create persist failures counter")
	}
	m.lines, err = meter.Int64Gauge("cartstore.lines",
		metric.WithDescription("Distinct products in the cart"))
	if err != nil {
		return m, errors.Wrap(err, "failed to create lines gauge")
	}
	m.units, err = meter.Int64Gauge("cartstore.units",
		metric.WithDescription("Units across all cart lines"))
	if err != nil {
		return m, errors.Wrap(err, "failed to create units gauge")
	}
	return m, nil
}

func (m storeMetrics) recordChange(ctx context.Context, op string, cart []CartItem) {
	m.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	m.recordSize(ctx, cart)
}

func (m storeMetrics) recordSize(ctx context.Context, cart []CartItem) {
	units := 0
	for _, item := range cart {
		units += item.Quantity
	}
	m.lines.Record(ctx, int64(len(cart)))
	m.units.Record(ctx, int64(units))
}
