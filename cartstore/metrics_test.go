package cartstore_test

import (
	"context"
	"testing"

	"github.com/ReploidGI0/storefront-cart/cartstore"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func countsByOp(t *testing.T, data metricdata.Aggregation) map[string]int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected an int64 sum, got %T", data)

	out := map[string]int64{}
	for _, dp := range sum.DataPoints {
		op, _ := dp.Attributes.Value("op")
		out[op.AsString()] = dp.Value
	}
	return out
}

func gaugeValue(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	g, ok := data.(metricdata.Gauge[int64])
	require.True(t, ok, "expected an int64 gauge, got %T", data)
	require.Len(t, g.DataPoints, 1)
	return g.DataPoints[0].Value
}

func TestCartStore_Metrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	log, _ := test.NewNullLogger()
	backend := newRecordingStorage()
	s, err := cartstore.NewCartStore(ctx, fakeSource{products: testCatalog}, backend,
		cartstore.WithLogger(log),
		cartstore.WithMeter(mp.Meter("cartstore")),
	)
	require.NoError(t, err)

	require.NoError(t, s.AddToCart(ctx, product(1, "20")))
	require.NoError(t, s.AddToCart(ctx, product(1, "20")))
	require.NoError(t, s.AddToCart(ctx, product(2, "10")))
	require.NoError(t, s.IncreaseQuantity(ctx, 2))
	require.NoError(t, s.DecreaseQuantity(ctx, 2))
	require.NoError(t, s.DecreaseQuantity(ctx, 2))
	require.NoError(t, s.RemoveFromCart(ctx, 1))

	got := collectMetrics(t, reader)
	assert.Equal(t, map[string]int64{"add": 3, "increase": 1, "decrease": 1, "remove": 1},
		countsByOp(t, got["cartstore.mutations"]), "no-ops are not counted")
	assert.Equal(t, int64(1), gaugeValue(t, got["cartstore.lines"]))
	assert.Equal(t, int64(1), gaugeValue(t, got["cartstore.units"]))
	assert.NotContains(t, got, "cartstore.persist.failures")

	t.Run("failed_write_is_counted", func(t *testing.T) {
		backend.setErr = errors.New("disk full")
		require.Error(t, s.ClearCart(ctx))

		got := collectMetrics(t, reader)
		failures, ok := got["cartstore.persist.failures"].(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, failures.DataPoints, 1)
		assert.Equal(t, int64(1), failures.DataPoints[0].Value)
		assert.Equal(t, int64(1), countsByOp(t, got["cartstore.mutations"])["clear"])
		assert.Equal(t, int64(0), gaugeValue(t, got["cartstore.lines"]))
		assert.Equal(t, int64(0), gaugeValue(t, got["cartstore.units"]))
	})
}
