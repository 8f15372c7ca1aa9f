package upstream

import (
	"context"
	"errors"
	"fmt"
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

const samplePage = `{"results":[{"name":"Berlin","pollutionValue":51.3},{"name":"Munich","pollutionValue":45.1}],"meta":{"page":1,"totalPages":5}}`

// pollutionServer serves the login endpoint and delegates /pollution to handle.
type pollutionServer struct {
	*httptest.Server
	logins   atomic.Int32
	requests atomic.Int32
}

func newPollutionServer(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, n int32)) *pollutionServer {
	t.Helper()
	ps := &pollutionServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		n := ps.logins.Add(1)
		fmt.Fprintf(w, `{"token":"token-%d"}`, n)
	})
	mux.HandleFunc("/pollution", func(w http.ResponseWriter, r *http.Request) {
		handle(w, r, ps.requests.Add(1))
	})
	ps.Server = httptest.NewServer(mux)
	t.Cleanup(ps.Close)
	return ps
}

func newTestPollutionClient(t *testing.T, srv *pollutionServer) (*PollutionClient, *countingAdmitter, *sleepRecorder, *cache.Cache) {
	t.Helper()
	c := newTestCache(t)
	cfg := testPollutionConfig(srv.URL)
	admitter := &countingAdmitter{}
	sleeper := &sleepRecorder{}
	tokens := NewTokenManager(cfg, c, srv.Client())
	client := NewPollutionClient(cfg, c, tokens, admitter, srv.Client(), WithBackoffSleeper(sleeper.Sleep))
	return client, admitter, sleeper, c
}

var deQuery = models.PollutionQuery{Country: "DE", Page: 1, Limit: 2}

func TestPollutionClient_FetchCities(t *testing.T) {
	srv := newPollutionServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "DE", r.URL.Query().Get("country"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Write([]byte(samplePage))
	})
	client, admitter, sleeper, c := newTestPollutionClient(t, srv)

	page, err := client.FetchCities(context.Background(), deQuery)
	require.NoError(t, err)
	require.NotNil(t, page)
	require.Len(t, page.Results, 2)
	assert.Equal(t, "Berlin", page.Results[0].Name)
	assert.Equal(t, 51.3, page.Results[0].PollutionValue)
	assert.Equal(t, 1, page.Meta.Page)
	assert.Equal(t, 5, page.Meta.TotalPages)

	assert.Equal(t, int32(1), admitter.calls.Load())
	assert.Empty(t, sleeper.Recorded())

	var cached models.PollutionPage
	found, err := c.Get(context.Background(), deQuery.CacheKey(), &cached)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, *page, cached)
}

func TestPollutionClient_CacheHitSkipsLimiter(t *testing.T) {
	srv := newPollutionServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		w.Write([]byte(samplePage))
	})
	client, admitter, _, _ := newTestPollutionClient(t, srv)
	ctx := context.Background()

	first, err := client.FetchCities(ctx, deQuery)
	require.NoError(t, err)
	second, err := client.FetchCities(ctx, deQuery)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), srv.requests.Load())
	assert.Equal(t, int32(1), admitter.calls.Load())
	assert.Equal(t, int32(1), srv.logins.Load())
}

func TestPollutionClient_CachedForThirtySeconds(t *testing.T) {
	srv := newPollutionServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		w.Write([]byte(samplePage))
	})
	client, _, _, c := newTestPollutionClient(t, srv)

	_, err := client.FetchCities(context.Background(), deQuery)
	require.NoError(t, err)

	ttl, err := c.TimeToLive(context.Background(), deQuery.CacheKey())
	require.NoError(t, err)
	assert.Greater(t, ttl, 25*time.Second)
	assert.LessOrEqual(t, ttl, 30*time.Second)
}

func TestPollutionClient_UnauthorizedRefreshesToken(t *testing.T) {
	srv := newPollutionServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		if n == 1 {
			assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer token-2", r.Header.Get("Authorization"))
		w.Write([]byte(samplePage))
	})
	client, admitter, sleeper, _ := newTestPollutionClient(t, srv)

	page, err := client.FetchCities(context.Background(), deQuery)
	require.NoError(t, err)
	require.NotNil(t, page)

	assert.Equal(t, int32(2), srv.logins.Load())
	assert.Equal(t, int32(2), srv.requests.Load())
	assert.Equal(t, int32(2), admitter.calls.Load())
	assert.Empty(t, sleeper.Recorded())
}

func TestPollutionClient_RateLimitedBacksOffExponentially(t *testing.T) {
	srv := newPollutionServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	client, admitter, sleeper, c := newTestPollutionClient(t, srv)

	page, err := client.FetchCities(context.Background(), deQuery)
	require.Error(t, err)
	assert.Nil(t, page)
	assert.True(t, errors.Is(err, ErrRateLimitExceeded))

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeper.Recorded())
	assert.Equal(t, int32(4), srv.requests.Load())
	assert.Equal(t, int32(4), admitter.calls.Load())

	var cached models.PollutionPage
	found, err := c.Get(context.Background(), deQuery.CacheKey(), &cached)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPollutionClient_HonorsRetryAfter(t *testing.T) {
	srv := newPollutionServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		if n == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(samplePage))
	})
	client, _, sleeper, _ := newTestPollutionClient(t, srv)

	page, err := client.FetchCities(context.Background(), deQuery)
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, []time.Duration{3 * time.Second}, sleeper.Recorded())
}

func TestPollutionClient_PersistentUnauthorized(t *testing.T) {
	srv := newPollutionServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	client, _, _, _ := newTestPollutionClient(t, srv)

	_, err := client.FetchCities(context.Background(), deQuery)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, int32(4), srv.requests.Load())
	// One initial login plus one refresh per rejected call.
	assert.Equal(t, int32(5), srv.logins.Load())
}

func TestPollutionClient_FinalUnauthorizedLeavesFreshToken(t *testing.T) {
	srv := newPollutionServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		if n <= 2 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer token-3", r.Header.Get("Authorization"))
		w.Write([]byte(samplePage))
	})
	c := newTestCache(t)
	cfg := testPollutionConfig(srv.URL)
	cfg.MaxRetries = 1
	tokens := NewTokenManager(cfg, c, srv.Client())
	client := NewPollutionClient(cfg, c, tokens, &countingAdmitter{}, srv.Client())
	ctx := context.Background()

	_, err := client.FetchCities(ctx, deQuery)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(2), srv.requests.Load())

	var cached string
	found, err := c.Get(ctx, TokenCacheKey, &cached)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "token-3", cached)

	// The next request starts with the refreshed token.
	page, err := client.FetchCities(ctx, deQuery)
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, int32(3), srv.requests.Load())
	assert.Equal(t, int32(3), srv.logins.Load())
}

func TestPollutionClient_AttemptsBoundedByMaxRetries(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		wantCalls  int32
	}{
		{name: "no retries", maxRetries: 0, wantCalls: 1},
		{name: "one retry", maxRetries: 1, wantCalls: 2},
		{name: "negative treated as none", maxRetries: -1, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newPollutionServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
				w.WriteHeader(http.StatusTooManyRequests)
			})
			c := newTestCache(t)
			cfg := testPollutionConfig(srv.URL)
			cfg.MaxRetries = tt.maxRetries
			sleeper := &sleepRecorder{}
			client := NewPollutionClient(cfg, c, NewTokenManager(cfg, c, srv.Client()), &countingAdmitter{}, srv.Client(), WithBackoffSleeper(sleeper.Sleep))

			_, err := client.FetchCities(context.Background(), deQuery)
			require.ErrorIs(t, err, ErrRateLimitExceeded)
			assert.Equal(t, tt.wantCalls, srv.requests.Load())
			assert.Len(t, sleeper.Recorded(), int(tt.wantCalls)-1)
		})
	}
}

func TestPollutionClient_CacheWriteFailure(t *testing.T) {
	srv := newPollutionServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		w.Write([]byte(samplePage))
	})
	c := newReadOnlyCache(t)
	cfg := testPollutionConfig(srv.URL)
	client := NewPollutionClient(cfg, c, NewTokenManager(cfg, c, srv.Client()), &countingAdmitter{}, srv.Client())

	page, err := client.FetchCities(context.Background(), deQuery)
	assert.Nil(t, page)
	var storeErr *storage.Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, deQuery.CacheKey(), storeErr.Key)
}

func TestPollutionClient_ServerErrorIsNotRetried(t *testing.T) {
	srv := newPollutionServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})
	client, _, sleeper, _ := newTestPollutionClient(t, srv)

	_, err := client.FetchCities(context.Background(), deQuery)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "boom", se.Body)
	assert.Equal(t, int32(1), srv.requests.Load())
	assert.Empty(t, sleeper.Recorded())
}

func TestPollutionClient_NullPayload(t *testing.T) {
	srv := newPollutionServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		w.Write([]byte("null"))
	})
	client, _, _, c := newTestPollutionClient(t, srv)

	page, err := client.FetchCities(context.Background(), deQuery)
	require.NoError(t, err)
	assert.Nil(t, page)

	var cached models.PollutionPage
	found, err := c.Get(context.Background(), deQuery.CacheKey(), &cached)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPollutionClient_LimiterFailure(t *testing.T) {
	srv := newPollutionServer(t, func(w http.ResponseWriter, r *http.Request, n int32) {
		w.Write([]byte(samplePage))
	})
	c := newTestCache(t)
	cfg := testPollutionConfig(srv.URL)
	limiterErr := errors.New("limiter unavailable")
	client := NewPollutionClient(cfg, c, NewTokenManager(cfg, c, srv.Client()), &countingAdmitter{err: limiterErr}, srv.Client())

	_, err := client.FetchCities(context.Background(), deQuery)
	assert.ErrorIs(t, err, limiterErr)
	assert.Equal(t, int32(0), srv.requests.Load())
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "empty", value: "", want: 0},
		{name: "seconds", value: "7", want: 7 * time.Second},
		{name: "zero", value: "0", want: 0},
		{name: "negative", value: "-3", want: 0},
		{name: "http date", value: now.Add(90 * time.Second).Format(http.TimeFormat), want: 90 * time.Second},
		{name: "past date", value: now.Add(-time.Minute).Format(http.TimeFormat), want: 0},
		{name: "garbage", value: "soon", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.value, now))
		})
	}
}
