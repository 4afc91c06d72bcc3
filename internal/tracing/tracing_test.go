package tracing

import (
	"context"
	"testing"

	"bookpoint/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: false}, config.AppConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")
}

func TestSetupEnabled(t *testing.T) {
	cfg := config.TracingConfig{Enabled: true, Endpoint: "127.0.0.1:4317", Insecure: true, SampleRatio: 1, ServiceName: "bookpoint-test"}
	shutdown, err := Setup(context.Background(), cfg, config.AppConfig{Version: "1.0.0", Environment: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { otel.SetTracerProvider(sdktrace.NewTracerProvider()) })

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

func TestNewResource(t *testing.T) {
	res := newResource(config.TracingConfig{ServiceName: "svc"}, config.AppConfig{Version: "2.0", Environment: "prod"})
	attrs := res.Set()

	v, ok := attrs.Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "svc", v.AsString())
	v, ok = attrs.Value(semconv.ServiceVersionKey)
	require.True(t, ok)
	assert.Equal(t, "2.0", v.AsString())
}
