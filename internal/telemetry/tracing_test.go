package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/netgraph-crawler/internal/config"
)

func TestInitTracerProviderDisabled(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), config.TracingConfig{}, "test")
	require.NoError(t, err)
	require.Nil(t, tp)
	require.NoError(t, Shutdown(context.Background(), tp))
}

func TestInitTracerProviderWithoutExporter(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), config.TracingConfig{
		Enabled:     true,
		ServiceName: "netgraph-test",
		SampleRatio: 1,
	}, "test")
	require.NoError(t, err)
	require.NotNil(t, tp)

	_, span := tp.Tracer("test").Start(context.Background(), "probe")
	require.True(t, span.SpanContext().IsSampled())
	span.End()

	require.NoError(t, Shutdown(context.Background(), tp))
}
