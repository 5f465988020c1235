// Package http exposes the forecast API: GET /forecast, GET /health and the
// Prometheus endpoint, plus the middleware chain they run behind.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dailytemp/forecast-service/internal/cache"
	"github.com/dailytemp/forecast-service/internal/client"
	"github.com/dailytemp/forecast-service/internal/geocode"
	"github.com/dailytemp/forecast-service/internal/models"
	"github.com/dailytemp/forecast-service/internal/service"
	"github.com/dailytemp/forecast-service/internal/validation"
)

// ForecastService is the slice of the pipeline the handlers need.
type ForecastService interface {
	GetForecast(ctx context.Context, lat, lon float64, opts service.Options) (models.Forecast, error)
}

// UpstreamProbe reports whether yr.no is reachable. Used by the health handler.
type UpstreamProbe interface {
	CheckAvailability(ctx context.Context) bool
}

// DefaultLocation is served when the request names no location at all.
type DefaultLocation struct {
	Lat  float64
	Lon  float64
	Name string
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	forecasts ForecastService
	geocoder  geocode.Resolver
	probe     UpstreamProbe
	cache     *cache.ForecastCache
	defaults  DefaultLocation
	version   string
	startTime time.Time
	logger    *zap.Logger
	// CachePing, when set, checks geocode cache reachability (memcached backend).
	CachePing func() error

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	forecasts ForecastService,
	geocoder geocode.Resolver,
	probe UpstreamProbe,
	fc *cache.ForecastCache,
	defaults DefaultLocation,
	version string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		forecasts: forecasts,
		geocoder:  geocoder,
		probe:     probe,
		cache:     fc,
		defaults:  defaults,
		version:   version,
		startTime: time.Now(),
		logger:    logger,
	}
}

// GetForecast handles GET /forecast. Coordinates win over location_name; a
// request naming neither falls back to the configured default location.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	q, err := validation.ParseForecastQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}

	lat, lon, name, ok := h.resolveLocation(w, r, q)
	if !ok {
		return
	}

	result, err := h.forecasts.GetForecast(r.Context(), lat, lon, service.Options{
		LocationName:     name,
		Days:             q.Days,
		Unit:             models.Unit(q.Unit),
		TimezoneOverride: q.Timezone,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCoordinate):
			writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATE", err.Error())
		case errors.Is(err, client.ErrUpstreamUnavailable):
			writeUpstreamError(w, r, err)
		default:
			writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected error")
			if logger := requestLogger(r); logger != nil {
				logger.Error("forecast request failed", zap.Error(err))
			}
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// resolveLocation turns the validated query into concrete coordinates,
// writing the error response itself when resolution fails.
func (h *Handler) resolveLocation(w http.ResponseWriter, r *http.Request, q validation.ForecastQuery) (lat, lon float64, name string, ok bool) {
	if q.HasCoordinates() {
		return *q.Latitude, *q.Longitude, q.LocationName, true
	}
	if q.LocationName == "" {
		return h.defaults.Lat, h.defaults.Lon, h.defaults.Name, true
	}
	place, found, err := h.geocoder.Resolve(r.Context(), q.LocationName)
	if err != nil {
		writeUpstreamError(w, r, err)
		return 0, 0, "", false
	}
	if !found {
		writeError(w, r, http.StatusNotFound, "LOCATION_NOT_FOUND",
			"no coordinates found for "+q.LocationName)
		return 0, 0, "", false
	}
	return place.Lat, place.Lon, q.LocationName, true
}

// GetHealth handles GET /health. Always 200: a degraded upstream is reported
// in the body, not the status code.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	yrnoAvailable := true
	if h.probe != nil && !h.probe.CheckAvailability(r.Context()) {
		status = "degraded"
		yrnoAvailable = false
	}

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != status && h.logger != nil {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", status))
	}
	h.healthStatusPrev = status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"yrno": checkLabel(yrnoAvailable)}
	if h.CachePing != nil {
		checks["geocodeCache"] = checkLabel(h.CachePing() == nil)
	}

	resp := map[string]interface{}{
		"status":         status,
		"service":        "daily-temp-service",
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"yrno_available": yrnoAvailable,
		"checks":         checks,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	if h.cache != nil {
		resp["cache"] = h.cache.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func checkLabel(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope with code, message, and the
// request's correlation ID when present.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeUpstreamError writes a 504 for upstream failures that could not be
// served from stale cache.
func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusGatewayTimeout, "UPSTREAM_UNAVAILABLE", "unable to fetch forecast data")
	if logger := requestLogger(r); logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}

func requestLogger(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok {
		return logger
	}
	return nil
}
