package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"polluted/internal/models"
	"polluted/internal/storage"
	"polluted/internal/version"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricsOnlyProvider(t *testing.T) *Provider {
	t.Helper()
	obs := models.ObservabilityConfig{
		ServiceName: "test",
		Tracing:     models.TracingConfig{Enabled: false},
	}
	provider, err := Setup(models.MetricsConfig{Enabled: true, Path: "/metrics"}, obs, version.Info{})
	require.NoError(t, err)
	t.Cleanup(func() { provider.Shutdown(context.Background()) })
	return provider
}

func TestNewMetricsServer(t *testing.T) {
	provider := metricsOnlyProvider(t)

	ms := NewMetricsServer(models.MetricsConfig{Enabled: true, Path: "/metrics", Port: 9090}, provider)
	require.NotNil(t, ms)
	assert.Equal(t, ":9090", ms.server.Addr)
}

func TestMetricsServer_ExposesStorageMetrics(t *testing.T) {
	provider := metricsOnlyProvider(t)

	inner := storage.NewMemoryStorage(0)
	instrumented, err := NewInstrumentedStorage(inner, "memory")
	require.NoError(t, err)
	defer instrumented.Close()

	ctx := context.Background()
	_, _ = instrumented.Get(ctx, "missing")
	require.NoError(t, instrumented.Set(ctx, "present", "v", time.Minute))
	_, err = instrumented.Get(ctx, "present")
	require.NoError(t, err)

	ms := NewMetricsServer(models.MetricsConfig{Path: "/metrics", Port: 0}, provider)
	rr := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "storage_operation_duration")
	assert.Contains(t, body, "storage_lookups")
}

func findFamily(families []*dto.MetricFamily, prefix string) *dto.MetricFamily {
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), prefix) {
			return mf
		}
	}
	return nil
}

func TestMetricsServer_LookupCounterByResult(t *testing.T) {
	metricsOnlyProvider(t)

	instrumented, err := NewInstrumentedStorage(storage.NewMemoryStorage(0), "memory")
	require.NoError(t, err)
	defer instrumented.Close()

	ctx := context.Background()
	for range 3 {
		_, _ = instrumented.Get(ctx, "wiki:desc:Nowhere")
	}

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	lookups := findFamily(families, "storage_lookups")
	require.NotNil(t, lookups)
	assert.Equal(t, dto.MetricType_COUNTER, lookups.GetType())

	var misses float64
	for _, m := range lookups.GetMetric() {
		for _, label := range m.GetLabel() {
			if label.GetName() == "result" && label.GetValue() == "miss" {
				misses += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(3), misses)
}

func TestMetricsServer_StartAndShutdown(t *testing.T) {
	provider := metricsOnlyProvider(t)
	ms := NewMetricsServer(models.MetricsConfig{Path: "/metrics", Port: 0}, provider)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ms.Start()
	}()

	// Give the server time to start
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, ms.Shutdown(ctx))

	assert.Equal(t, http.ErrServerClosed, <-errCh)
}

func TestNewMetricsServer_NilProvider(t *testing.T) {
	ms := NewMetricsServer(models.MetricsConfig{Path: "/metrics", Port: 9090}, nil)
	require.NotNil(t, ms)

	rr := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
