package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"polluted/internal/cities"
	"polluted/internal/models"
)

// Pinger reports whether the shared cache store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers contains HTTP handlers for the polluted cities API
type Handlers struct {
	citiesService cities.ServiceInterface
	store         Pinger
	version       string
	pingTimeout   time.Duration
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handlers)

// WithStore enables the store component of the health check.
func WithStore(store Pinger) HandlerOption {
	return func(h *Handlers) {
		h.store = store
	}
}

// WithVersion sets the version reported by the health check.
func WithVersion(version string) HandlerOption {
	return func(h *Handlers) {
		h.version = version
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(citiesService cities.ServiceInterface, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		citiesService: citiesService,
		pingTimeout:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// GetCities handles polluted cities requests
// GET /v1/cities?country=DE&page=1&limit=10
func (h *Handlers) GetCities(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	verr := &models.ValidationError{}

	req := &models.CitiesRequest{Country: query.Get("country")}
	req.Page = parseIntParam(query.Get("page"), "page", verr)
	req.Limit = parseIntParam(query.Get("limit"), "limit", verr)

	req.Normalize()
	if err := req.Validate(); err != nil {
		var fieldErrs *models.ValidationError
		if errors.As(err, &fieldErrs) {
			for field, msg := range fieldErrs.Fields {
				verr.Add(field, msg)
			}
		}
	}
	if verr.HasErrors() {
		h.writeValidationError(w, verr)
		return
	}

	response, err := h.citiesService.GetCities(r.Context(), req)
	if errors.Is(err, cities.ErrNoContent) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// HealthCheck handles health check requests
// GET /health, GET /v1/health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version
	response.AddComponent("api", models.StatusHealthy, "API is operational")

	statusCode := http.StatusOK
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.pingTimeout)
		defer cancel()

		if err := h.store.Ping(ctx); err != nil {
			slog.Warn("Health check: cache store unreachable", "error", err)
			response.Status = models.StatusUnhealthy
			response.AddComponent("store", models.StatusUnhealthy, err.Error())
			statusCode = http.StatusServiceUnavailable
		} else {
			response.AddComponent("store", models.StatusHealthy, "Cache store is reachable")
		}
	}

	h.writeJSONResponse(w, statusCode, response)
}

// parseIntParam parses an optional integer query parameter. Zero means
// "not given" so defaults apply later.
func parseIntParam(raw, field string, verr *models.ValidationError) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		verr.Add(field, strings.ToUpper(field[:1])+field[1:]+" must be an integer")
		return 0
	}
	if n == 0 {
		// An explicit zero is out of range, not a request for the default.
		verr.Add(field, strings.ToUpper(field[:1])+field[1:]+" must be at least 1")
	}
	return n
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing more to send.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	resp := models.NewErrorResponse(message, errorCode)
	resp.RequestID = w.Header().Get(requestIDHeader)
	h.writeJSONResponse(w, statusCode, resp)
}

func (h *Handlers) writeValidationError(w http.ResponseWriter, verr *models.ValidationError) {
	resp := models.NewErrorResponse("Validation failed", models.ErrorCodeValidation)
	resp.Details = verr.Fields
	resp.RequestID = w.Header().Get(requestIDHeader)
	h.writeJSONResponse(w, http.StatusBadRequest, resp)
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	var se *cities.ServiceError
	if !errors.As(err, &se) {
		slog.Error("Unhandled service error", "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
		return
	}

	if se.Code == models.ErrorCodeValidation {
		var verr *models.ValidationError
		if errors.As(se, &verr) {
			h.writeValidationError(w, verr)
			return
		}
	}
	h.writeErrorResponse(w, se.StatusCode, se.Code, se.Message)
}
