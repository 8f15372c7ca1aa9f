package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"polluted/internal/cache"
	"polluted/internal/models"
	"polluted/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCitiesClient(t *testing.T, handler http.HandlerFunc) (*CitiesClient, *cache.Cache, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := models.CitiesConfig{BaseURL: srv.URL, Timeout: 5 * time.Second, CacheTTL: time.Hour}
	c := newTestCache(t)
	return NewCitiesClient(cfg, c, srv.Client()), c, &calls
}

func TestCitiesClient_ListCities(t *testing.T) {
	client, c, calls := newTestCitiesClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v0.1/countries/cities", r.URL.Path)

		var body citiesRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "germany", body.Country)

		w.Write([]byte(`{"error":false,"msg":"cities retrieved","data":["Berlin","Munich","Hamburg"]}`))
	})
	ctx := context.Background()

	cities, err := client.ListCities(ctx, "germany")
	require.NoError(t, err)
	assert.Equal(t, []string{"Berlin", "Munich", "Hamburg"}, cities)

	cities, err = client.ListCities(ctx, "germany")
	require.NoError(t, err)
	assert.Equal(t, []string{"Berlin", "Munich", "Hamburg"}, cities)
	assert.Equal(t, int32(1), calls.Load())

	ttl, err := c.TimeToLive(ctx, "cities:germany")
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestCitiesClient_EmptyList(t *testing.T) {
	client, _, _ := newTestCitiesClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":false,"msg":"","data":null}`))
	})

	cities, err := client.ListCities(context.Background(), "atlantis")
	require.NoError(t, err)
	assert.NotNil(t, cities)
	assert.Empty(t, cities)
}

func TestCitiesClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantLogic string
		wantCode  int
	}{
		{
			name:      "error flag on success status",
			status:    http.StatusOK,
			body:      `{"error":true,"msg":"country not found","data":[]}`,
			wantLogic: "country not found",
		},
		{
			name:      "error flag on not found status",
			status:    http.StatusNotFound,
			body:      `{"error":true,"msg":"country not found"}`,
			wantLogic: "country not found",
		},
		{
			name:     "plain server error",
			status:   http.StatusBadGateway,
			body:     `upstream down`,
			wantCode: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _, calls := newTestCitiesClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			ctx := context.Background()

			_, err := client.ListCities(ctx, "nowhere")
			require.Error(t, err)

			if tt.wantLogic != "" {
				var logicErr *LogicError
				require.True(t, errors.As(err, &logicErr))
				assert.Equal(t, tt.wantLogic, logicErr.Message)
			} else {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, tt.wantCode, se.StatusCode)
			}

			// Failures are not cached.
			_, _ = client.ListCities(ctx, "nowhere")
			assert.Equal(t, int32(2), calls.Load())
		})
	}
}

func TestCitiesClient_CacheWriteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":false,"msg":"cities retrieved","data":["Berlin"]}`))
	}))
	defer srv.Close()

	cfg := models.CitiesConfig{BaseURL: srv.URL, Timeout: 5 * time.Second, CacheTTL: time.Hour}
	client := NewCitiesClient(cfg, newReadOnlyCache(t), srv.Client())

	cities, err := client.ListCities(context.Background(), "germany")
	assert.Nil(t, cities)
	var storeErr *storage.Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "cities:germany", storeErr.Key)
}
