// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Pagination echoes the upstream pollution metadata
// - Machine-readable error codes next to human-readable messages
// - RFC3339 timestamps
package models

import (
	"time"
)

// CitiesResponse is the enriched, allowlist-filtered page of polluted cities.
//
// Pagination Semantics:
// - Page and Total come from the pollution API metadata (current page, total pages)
// - Limit echoes the requested page size
// - Cities may hold fewer than Limit entries after allowlist filtering
type CitiesResponse struct {
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
	Total  int    `json:"total"`
	Cities []City `json:"cities"`
}

// ErrorResponse provides structured error information.
//
// Error Categories:
// - Validation errors: query parameters outside the accepted ranges
// - Upstream errors: the pollution, allowlist or auth API failed terminally
// - Store errors: the shared cache store is unreachable
// - Internal errors: server-side issues
type ErrorResponse struct {
	Error     string            `json:"error"`                // Error type (always "error")
	Message   string            `json:"message"`              // Human-readable error description
	Code      string            `json:"code,omitempty"`       // Machine-readable error code
	Details   map[string]string `json:"details,omitempty"`    // Field-specific error details
	Timestamp time.Time         `json:"timestamp"`            // Error occurrence time
	RequestID string            `json:"request_id,omitempty"` // Unique request identifier
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Maps to standard HTTP status codes
// - Upstream failures are distinguished by cause so clients can decide whether to retry
const (
	ErrorCodeNotFound            = "NOT_FOUND"             // 404: Resource doesn't exist
	ErrorCodeBadRequest          = "BAD_REQUEST"           // 400: Invalid request format
	ErrorCodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"    // 405: Route exists for other methods
	ErrorCodeValidation          = "VALIDATION_ERROR"      // 400: Input validation failed
	ErrorCodeUnknownCountry      = "UNKNOWN_COUNTRY"       // 400: Country code not in the table
	ErrorCodeInternalError       = "INTERNAL_ERROR"        // 500: Server-side error
	ErrorCodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"   // 429: Inbound rate limit
	ErrorCodeUpstreamError       = "UPSTREAM_ERROR"        // 502: Upstream failed terminally
	ErrorCodeUpstreamAuthFailed  = "UPSTREAM_AUTH_FAILED"  // 502: Upstream credentials rejected
	ErrorCodeUpstreamRateLimited = "UPSTREAM_RATE_LIMITED" // 503: Upstream retry budget exhausted on 429
	ErrorCodeStoreUnavailable    = "STORE_UNAVAILABLE"     // 503: Shared cache store unreachable
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}
