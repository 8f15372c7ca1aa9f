package upstream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"polluted/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

const wikiKeyPrefix = "wiki:desc:"

// WikiClient looks up short city descriptions. Lookups never fail: any
// problem yields "no description", which is cached for a shorter time.
type WikiClient struct {
	client      *http.Client
	baseURL     string
	userAgent   string
	cache       Cache
	cacheTTL    time.Duration
	negativeTTL time.Duration
}

// NewWikiClient creates a client for the description API described by cfg.
func NewWikiClient(cfg models.WikiConfig, c Cache, client *http.Client) *WikiClient {
	return &WikiClient{
		client:      client,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		cache:       c,
		cacheTTL:    cfg.CacheTTL,
		negativeTTL: cfg.NegativeTTL,
	}
}

type pageSummary struct {
	Type    string `json:"type"`
	Extract string `json:"extract"`
}

type titleSearch struct {
	Pages []struct {
		Key   string `json:"key"`
		Title string `json:"title"`
	} `json:"pages"`
}

// Describe returns the description for city and whether one was found.
func (w *WikiClient) Describe(ctx context.Context, city string) (string, bool) {
	if strings.TrimSpace(city) == "" {
		return "", false
	}
	key := wikiKeyPrefix + city

	var text string
	found, err := w.cache.Get(ctx, key, &text)
	if err != nil {
		slog.Warn("Description cache unavailable", "city", city, "error", err)
	} else if found {
		return text, text != ""
	}

	text, err = w.lookup(ctx, city)
	if err != nil {
		slog.Debug("Description lookup failed", "city", city, "error", err)
		text = ""
	}

	ttl := w.cacheTTL
	if text == "" {
		ttl = w.negativeTTL
	}
	if err := w.cache.Set(ctx, key, text, ttl); err != nil {
		slog.Warn("Failed to cache description", "city", city, "error", err)
	}
	return text, text != ""
}

// lookup tries the page summary for the name first. A missing extract or a
// disambiguation page falls back to a title search.
func (w *WikiClient) lookup(ctx context.Context, city string) (desc string, err error) {
	ctx, span := startSpan(ctx, "wiki.describe", attribute.String("wiki.city", city))
	defer func() { endSpan(span, err) }()

	summary, err := w.summary(ctx, pageTitle(city))
	if err != nil {
		return "", err
	}
	if summary != nil && summary.Extract != "" && summary.Type != "disambiguation" {
		return summary.Extract, nil
	}

	var fallback string
	if summary != nil {
		fallback = summary.Extract
	}

	best, err := w.search(ctx, city)
	if err != nil {
		return "", err
	}
	if best == "" {
		return fallback, nil
	}

	summary, err = w.summary(ctx, best)
	if err != nil {
		return "", err
	}
	if summary != nil && summary.Extract != "" {
		return summary.Extract, nil
	}
	return fallback, nil
}

// summary returns nil when the page does not exist.
func (w *WikiClient) summary(ctx context.Context, title string) (*pageSummary, error) {
	req, err := w.request(ctx, w.baseURL+"/page/summary/"+url.PathEscape(title))
	if err != nil {
		return nil, err
	}
	var s pageSummary
	err = doJSON(w.client, req, "wiki", &s)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (w *WikiClient) search(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", "1")

	req, err := w.request(ctx, w.baseURL+"/search/title?"+params.Encode())
	if err != nil {
		return "", err
	}
	var res titleSearch
	if err := doJSON(w.client, req, "wiki", &res); err != nil {
		return "", err
	}
	if len(res.Pages) == 0 {
		return "", nil
	}
	if res.Pages[0].Key != "" {
		return res.Pages[0].Key, nil
	}
	return res.Pages[0].Title, nil
}

func (w *WikiClient) request(ctx context.Context, target string) (*http.Request, error) {
	req, err := newJSONRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Language", "en")
	if w.userAgent != "" {
		req.Header.Set("User-Agent", w.userAgent)
	}
	return req, nil
}

// pageTitle turns a city name into a page title: whitespace runs become underscores.
func pageTitle(city string) string {
	return strings.Join(strings.Fields(city), "_")
}
