package cities

import (
	"context"

	"polluted/internal/models"
)

// ServiceInterface defines the operations the HTTP layer needs from the aggregator
type ServiceInterface interface {
	// GetCities returns the allowlisted, described page of polluted cities for the request
	GetCities(ctx context.Context, req *models.CitiesRequest) (*models.CitiesResponse, error)
}

// PollutionSource fetches raw pollution listings. *upstream.PollutionClient satisfies it.
type PollutionSource interface {
	FetchCities(ctx context.Context, q models.PollutionQuery) (*models.PollutionPage, error)
}

// CityLister returns the known city names for a lowercase country name.
type CityLister interface {
	ListCities(ctx context.Context, country string) ([]string, error)
}

// Describer looks up a short description for a city. Lookups never fail.
type Describer interface {
	Describe(ctx context.Context, city string) (string, bool)
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)
