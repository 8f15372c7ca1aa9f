package upstream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"polluted/internal/models"
	"polluted/internal/ratelimit"

	"go.opentelemetry.io/otel/attribute"
)

// Admitter gates outgoing calls. *ratelimit.FixedWindow satisfies it.
type Admitter interface {
	Acquire(ctx context.Context) error
}

// PollutionClient fetches pollution listings. Every network call goes
// through the shared fixed-window limiter, 401 answers trigger a token
// refresh and 429 answers are retried with exponential backoff.
type PollutionClient struct {
	client      *http.Client
	baseURL     string
	cache       Cache
	tokens      TokenSource
	limiter     Admitter
	cacheTTL    time.Duration
	maxRetries  int
	backoffBase time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// PollutionOption configures a PollutionClient.
type PollutionOption func(*PollutionClient)

// WithBackoffSleeper replaces the sleep used between retries.
func WithBackoffSleeper(sleep func(ctx context.Context, d time.Duration) error) PollutionOption {
	return func(p *PollutionClient) {
		p.sleep = sleep
	}
}

// NewPollutionClient creates a client for the pollution API described by cfg.
func NewPollutionClient(cfg models.PollutionConfig, c Cache, tokens TokenSource, limiter Admitter, client *http.Client, opts ...PollutionOption) *PollutionClient {
	p := &PollutionClient{
		client:      client,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		cache:       c,
		tokens:      tokens,
		limiter:     limiter,
		cacheTTL:    cfg.CacheTTL,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		sleep:       ratelimit.Sleep,
	}
	if p.maxRetries < 0 {
		p.maxRetries = 0
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchCities returns one page of the pollution listing for q. A nil page
// with a nil error means the API answered without a usable payload.
func (p *PollutionClient) FetchCities(ctx context.Context, q models.PollutionQuery) (page *models.PollutionPage, err error) {
	key := q.CacheKey()

	var cached models.PollutionPage
	found, err := p.cache.Get(ctx, key, &cached)
	if err != nil {
		return nil, err
	}
	if found {
		slog.Debug("Pollution cache hit", "key", key)
		return &cached, nil
	}

	ctx, span := startSpan(ctx, "pollution.fetch",
		attribute.String("pollution.country", q.Country),
		attribute.Int("pollution.page", q.Page),
		attribute.Int("pollution.limit", q.Limit),
	)
	defer func() { endSpan(span, err) }()

	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := p.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		page, err = p.fetch(ctx, q, token)
		if err == nil {
			return p.remember(ctx, key, page)
		}
		lastErr = err

		var se *StatusError
		if !errors.As(err, &se) {
			return nil, err
		}
		final := attempt == p.maxRetries

		switch se.StatusCode {
		case http.StatusUnauthorized:
			// Refresh even on the last attempt so the rejected token does
			// not stay in the shared cache.
			slog.Info("Pollution API rejected token, refreshing", "attempt", attempt+1)
			token, err = p.tokens.Refresh(ctx)
			if err != nil {
				return nil, err
			}
		case http.StatusTooManyRequests:
			if final {
				continue
			}
			delay := se.RetryAfter
			if delay <= 0 {
				delay = p.backoffBase << attempt
			}
			slog.Warn("Pollution API rate limited, backing off",
				"attempt", attempt+1,
				"delay", delay,
			)
			if err := p.sleep(ctx, delay); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}

	return nil, lastErr
}

// remember stores a fetched page. A nil page is not cached.
func (p *PollutionClient) remember(ctx context.Context, key string, page *models.PollutionPage) (*models.PollutionPage, error) {
	if page == nil {
		return nil, nil
	}
	if err := p.cache.Set(ctx, key, page, p.cacheTTL); err != nil {
		return nil, err
	}
	return page, nil
}

func (p *PollutionClient) fetch(ctx context.Context, q models.PollutionQuery, token string) (*models.PollutionPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("country", q.Country)

	req, err := newJSONRequest(ctx, http.MethodGet, p.baseURL+"/pollution?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	// A JSON null leaves page nil.
	var page *models.PollutionPage
	if err := doJSON(p.client, req, "pollution", &page); err != nil {
		return nil, err
	}
	return page, nil
}
