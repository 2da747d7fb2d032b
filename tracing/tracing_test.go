package tracing_test

import (
	"context"
	"testing"
	"time"

	"github.com/ReploidGI0/storefront-cart/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// No collector listens on this address; the exporters connect lazily.
const endpoint = "127.0.0.1:4317"

func restoreGlobals(t *testing.T) {
	tp, mp, prop := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestInitTracerProvider(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()

	tp, err := tracing.InitTracerProvider(ctx, endpoint, "cartservice", "test")
	require.NoError(t, err)
	assert.Same(t, tp, otel.GetTracerProvider())
	assert.Equal(t, propagation.TraceContext{}, otel.GetTextMapPropagator())

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	assert.NoError(t, tp.Shutdown(shutdownCtx), "nothing was recorded, so nothing is exported")
}

func TestInitMeterProvider(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()

	mp, err := tracing.InitMeterProvider(ctx, endpoint, "cartservice", "test")
	require.NoError(t, err)
	assert.Same(t, mp, otel.GetMeterProvider())

	counter, err := otel.Meter("tracing_test").Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(ctx, 1)

	start := time.Now()
	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	// The final export fails without a collector; shutdown must still return in time.
	_ = mp.Shutdown(shutdownCtx)
	assert.Less(t, time.Since(start), 5*time.Second)
}
