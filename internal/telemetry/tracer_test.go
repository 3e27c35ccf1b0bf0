// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

func TestNewProviderDisabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		Enabled:      false,
		ServiceName:  "moodpulse",
		ExporterType: "grpc",
	})
	require.NoError(t, err)
	assert.Nil(t, provider.tp, "disabled tracing installs the noop provider")

	tracer := otel.Tracer("test")
	_, span := tracer.Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()
}

func TestNewProviderInvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "moodpulse",
		ExporterType: "invalid",
	})
	require.Error(t, err)
	assert.EqualError(t, err, "unsupported exporter type: invalid (supported: grpc, http)")
}

func TestProviderShutdownNoop(t *testing.T) {
	provider := &Provider{tp: nil}
	assert.NoError(t, provider.Shutdown(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestTracerProducesSpans(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: false, ServiceName: "moodpulse"})
	require.NoError(t, err)

	tracer := Tracer("pipeline")
	require.NotNil(t, tracer)

	ctx, span := tracer.Start(context.Background(), "classify")
	require.NotNil(t, span)
	span.End()

	assert.NotNil(t, trace.SpanFromContext(ctx))
}
