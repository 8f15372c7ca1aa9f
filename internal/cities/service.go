// Package cities assembles the polluted cities listing: pollution results
// filtered against the per-country allowlist and enriched with descriptions.
package cities

import (
	"context"
	"log/slog"
	"strings"

	"polluted/internal/models"

	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 8

// Service composes the pollution, allowlist and description clients
type Service struct {
	pollution   PollutionSource
	allowlist   CityLister
	describer   Describer
	concurrency int
}

// NewService creates a new cities service. concurrency bounds the number of
// description lookups in flight for one request.
func NewService(pollution PollutionSource, allowlist CityLister, describer Describer, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Service{
		pollution:   pollution,
		allowlist:   allowlist,
		describer:   describer,
		concurrency: concurrency,
	}
}

// GetCities returns one page of allowlisted cities. ErrNoContent means the
// pollution API had no payload; every other failure is a *ServiceError.
func (s *Service) GetCities(ctx context.Context, req *models.CitiesRequest) (*models.CitiesResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	page, err := s.pollution.FetchCities(ctx, req.Query())
	if err != nil {
		slog.Error("Failed to fetch pollution data", "country", req.Country, "page", req.Page, "error", err)
		return nil, classify("pollution", err)
	}
	if page == nil {
		return nil, ErrNoContent
	}

	country, ok := models.CountryName(req.Country)
	if !ok {
		return nil, NewUnknownCountryError(req.Country)
	}

	known, err := s.allowlist.ListCities(ctx, strings.ToLower(country))
	if err != nil {
		slog.Error("Failed to fetch city allowlist", "country", country, "error", err)
		return nil, classify("cities", err)
	}

	allowed := make(map[string]struct{}, len(known))
	for _, name := range known {
		allowed[name] = struct{}{}
	}

	cities := make([]models.City, 0, len(page.Results))
	for _, result := range page.Results {
		if _, ok := allowed[result.Name]; !ok {
			continue
		}
		cities = append(cities, models.City{
			Name:           result.Name,
			Country:        country,
			PollutionValue: result.PollutionValue,
		})
	}

	s.describe(ctx, cities)

	slog.Debug("Assembled cities page",
		"country", req.Country,
		"page", page.Meta.Page,
		"upstream_results", len(page.Results),
		"cities", len(cities),
	)

	return &models.CitiesResponse{
		Page:   page.Meta.Page,
		Limit:  req.Limit,
		Total:  page.Meta.TotalPages,
		Cities: cities,
	}, nil
}

// describe fills in descriptions concurrently. Each goroutine writes only
// its own element, so order follows the filtered results.
func (s *Service) describe(ctx context.Context, cities []models.City) {
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range cities {
		g.Go(func() error {
			desc, _ := s.describer.Describe(ctx, cities[i].Name)
			cities[i].Description = desc
			return nil
		})
	}
	_ = g.Wait()
}
