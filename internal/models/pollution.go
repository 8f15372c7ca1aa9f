package models

import "fmt"

// PollutionQuery identifies one page of the upstream pollution listing. Its
// shape is also the cache key scope.
type PollutionQuery struct {
	Country string
	Page    int
	Limit   int
}

// CacheKey returns the namespaced cache key for this query.
func (q PollutionQuery) CacheKey() string {
	return fmt.Sprintf("polluted:cities:%s:%d:%d", q.Country, q.Page, q.Limit)
}

// PollutionPage is the upstream pollution response body.
type PollutionPage struct {
	Results []PollutionResult `json:"results"`
	Meta    PageMeta          `json:"meta"`
}

type PollutionResult struct {
	Name           string  `json:"name"`
	PollutionValue float64 `json:"pollutionValue"`
}

type PageMeta struct {
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
}

// City is an allowlisted pollution result enriched with its description.
type City struct {
	Name           string  `json:"name"`
	Country        string  `json:"country"`
	PollutionValue float64 `json:"pollutionValue"`
	Description    string  `json:"description"`
}
