package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestInitTracerWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "task-sender", "  ")
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, ok := otel.GetTracerProvider().(noop.TracerProvider)
	assert.True(t, ok)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracerWithEndpoint(t *testing.T) {
	for _, endpoint := range []string{"localhost:4318", "http://localhost:4318/v1/traces"} {
		t.Run(endpoint, func(t *testing.T) {
			shutdown, err := InitTracer(context.Background(), "task-sender", endpoint)
			require.NoError(t, err)
			t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

			_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
			assert.True(t, ok)

			// nothing was recorded, so shutdown has nothing to flush
			assert.NoError(t, shutdown(context.Background()))
		})
	}
}
