// Package models - API request types and input validation.
// This file defines the incoming cities query and its validation rules.
//
// Validation Philosophy:
// - Malformed input never reaches the service layer
// - Every invalid field is reported at once, keyed by parameter name
// - Defaults (page 1, limit 50) are applied before validation
package models

import (
	"fmt"
	"sort"
	"strings"
)

const (
	DefaultPage  = 1
	DefaultLimit = 50
	MaxLimit     = 50
)

// CitiesRequest is the query behind GET /v1/cities.
type CitiesRequest struct {
	Country string `json:"country"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
}

// ValidationError collects per-field validation messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a message for field unless one is already present.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// HasErrors reports whether any field failed validation.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// Normalize applies defaults and canonical casing.
func (r *CitiesRequest) Normalize() {
	r.Country = strings.ToUpper(strings.TrimSpace(r.Country))
	if r.Page == 0 {
		r.Page = DefaultPage
	}
	if r.Limit == 0 {
		r.Limit = DefaultLimit
	}
}

// Validate checks the request against the allowed ranges and the country table.
// It returns a *ValidationError listing every invalid field.
func (r *CitiesRequest) Validate() error {
	verr := &ValidationError{}

	if r.Limit < 1 {
		verr.Add("limit", "Limit must be at least 1")
	} else if r.Limit > MaxLimit {
		verr.Add("limit", fmt.Sprintf("Limit cannot exceed %d", MaxLimit))
	}

	if r.Page < 1 {
		verr.Add("page", "Page must be at least 1")
	}

	if r.Country == "" {
		verr.Add("country", "Country is required")
	} else if _, ok := CountryName(r.Country); !ok {
		verr.Add("country", "Country must be one of the allowed values")
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// Query converts the request into the upstream pollution query shape.
func (r *CitiesRequest) Query() PollutionQuery {
	return PollutionQuery{Country: r.Country, Page: r.Page, Limit: r.Limit}
}
