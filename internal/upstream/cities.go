package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"polluted/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

const citiesKeyPrefix = "cities:"

// CitiesClient fetches the list of known city names for a country. The
// list is the allowlist pollution results are filtered against.
type CitiesClient struct {
	client   *http.Client
	baseURL  string
	cache    Cache
	cacheTTL time.Duration
}

// NewCitiesClient creates a client for the city list API described by cfg.
func NewCitiesClient(cfg models.CitiesConfig, c Cache, client *http.Client) *CitiesClient {
	return &CitiesClient{
		client:   client,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		cache:    c,
		cacheTTL: cfg.CacheTTL,
	}
}

type citiesRequest struct {
	Country string `json:"country"`
}

type citiesResponse struct {
	Error bool     `json:"error"`
	Msg   string   `json:"msg"`
	Data  []string `json:"data"`
}

// ListCities returns the city names for a full, lowercase country name.
func (c *CitiesClient) ListCities(ctx context.Context, country string) (cities []string, err error) {
	key := citiesKeyPrefix + country
	found, err := c.cache.Get(ctx, key, &cities)
	if err != nil {
		return nil, err
	}
	if found {
		return cities, nil
	}

	ctx, span := startSpan(ctx, "cities.list", attribute.String("cities.country", country))
	defer func() { endSpan(span, err) }()

	req, err := newJSONRequest(ctx, http.MethodPost, c.baseURL+"/api/v0.1/countries/cities", citiesRequest{Country: country})
	if err != nil {
		return nil, err
	}

	var resp citiesResponse
	err = doJSON(c.client, req, "cities", &resp)
	var se *StatusError
	if errors.As(err, &se) {
		// Unknown countries come back as a non-2xx status with the error flag set.
		var body citiesResponse
		if json.Unmarshal([]byte(se.Body), &body) == nil && body.Error {
			return nil, &LogicError{Service: "cities", Message: body.Msg}
		}
	}
	if err != nil {
		return nil, err
	}
	if resp.Error {
		return nil, &LogicError{Service: "cities", Message: resp.Msg}
	}

	cities = resp.Data
	if cities == nil {
		cities = []string{}
	}
	if err := c.cache.Set(ctx, key, cities, c.cacheTTL); err != nil {
		return nil, err
	}
	return cities, nil
}
