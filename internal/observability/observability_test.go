package observability

import (
	"context"
	"testing"

	"polluted/internal/models"
	"polluted/internal/version"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name        string
		metrics     bool
		tracing     bool
		exporter    string
		wantTracer  bool
		wantMetrics bool
	}{
		{name: "metrics only", metrics: true, wantMetrics: true},
		{name: "tracing only", tracing: true, exporter: "stdout", wantTracer: true},
		{name: "both", metrics: true, tracing: true, exporter: "stdout", wantTracer: true, wantMetrics: true},
		{name: "neither"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := Setup(
				models.MetricsConfig{Enabled: tt.metrics, Path: "/metrics", Port: 9090},
				models.ObservabilityConfig{
					ServiceName: "polluted",
					Tracing:     models.TracingConfig{Enabled: tt.tracing, Exporter: tt.exporter, SampleRate: 1},
				},
				version.Info{Version: "test", InstanceID: "replica-a"},
			)
			require.NoError(t, err)

			assert.Equal(t, tt.wantTracer, provider.tracerProvider != nil)
			assert.Equal(t, tt.wantMetrics, provider.PrometheusExporter() != nil)
			assert.NoError(t, provider.Shutdown(context.Background()))
		})
	}
}

func TestSetup_UnsupportedExporter(t *testing.T) {
	provider, err := Setup(models.MetricsConfig{}, models.ObservabilityConfig{
		ServiceName: "polluted",
		Tracing:     models.TracingConfig{Enabled: true, Exporter: "zipkin"},
	}, version.Info{})

	require.Error(t, err)
	assert.Nil(t, provider)
	assert.Contains(t, err.Error(), "unsupported trace exporter: zipkin")
}

func TestSetup_InstallsPropagator(t *testing.T) {
	provider, err := Setup(models.MetricsConfig{}, models.ObservabilityConfig{
		ServiceName: "polluted",
		Tracing:     models.TracingConfig{Enabled: true, Exporter: "stdout", SampleRate: 1},
	}, version.Info{Version: "test"})
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "root:AlwaysOnSampler"},
		{2, "root:AlwaysOnSampler"},
		{0, "root:AlwaysOffSampler"},
		{-1, "root:AlwaysOffSampler"},
		{0.25, "root:TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		desc := newSampler(tt.rate).Description()
		assert.Contains(t, desc, "ParentBased")
		assert.Contains(t, desc, tt.want, "rate %v", tt.rate)
	}
}

func TestProvider_ShutdownWithoutProviders(t *testing.T) {
	assert.NoError(t, (&Provider{}).Shutdown(context.Background()))
}

func TestDeploymentEnvironment(t *testing.T) {
	t.Setenv("POLLUTED_ENV", "")
	t.Setenv("ENV", "")
	t.Setenv("ENVIRONMENT", "")
	assert.Equal(t, "development", deploymentEnvironment())

	t.Setenv("ENVIRONMENT", "ci")
	assert.Equal(t, "ci", deploymentEnvironment())

	t.Setenv("ENV", "staging")
	assert.Equal(t, "staging", deploymentEnvironment())

	t.Setenv("POLLUTED_ENV", "production")
	assert.Equal(t, "production", deploymentEnvironment())
}
