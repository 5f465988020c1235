// Package geocode resolves free-text place names to coordinates via the
// Nominatim search API. Results, including negative ones, are cached.
package geocode

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/dailytemp/forecast-service/internal/models"
	"github.com/dailytemp/forecast-service/internal/observability"
)

// Result is a successful geocoding outcome. Coordinates are 4-decimal rounded.
type Result struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name"`
}

// Resolver resolves a place name to coordinates. Absence is a normal outcome,
// not an error; err is reserved for infrastructure failures.
type Resolver interface {
	Resolve(ctx context.Context, name string) (Result, bool, error)
}

// NominatimResolver implements Resolver against a Nominatim endpoint with a
// TTL cache in front of it.
type NominatimResolver struct {
	http     *resty.Client
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewNominatimResolver creates a resolver. cache may not be nil; userAgent is
// required by Nominatim's usage policy.
func NewNominatimResolver(baseURL, userAgent string, timeout time.Duration, cache Cache, cacheTTL time.Duration, logger *zap.Logger) *NominatimResolver {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent)
	return &NominatimResolver{
		http:     httpClient,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Resolve returns the best match for name, or found=false when Nominatim has
// no result. Both outcomes are cached under the normalized name.
func (r *NominatimResolver) Resolve(ctx context.Context, name string) (Result, bool, error) {
	key := normalizeName(name)

	if lookup, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		observability.GeocodeLookupsTotal.WithLabelValues("cached").Inc()
		return lookup.Result, lookup.Found, nil
	} else if err != nil && r.logger != nil {
		r.logger.Warn("geocode cache get failed", zap.String("name", key), zap.Error(err))
	}

	var places []nominatimPlace
	resp, err := r.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":      name,
			"format": "json",
			"limit":  "1",
		}).
		SetResult(&places).
		Get("/search")
	if err != nil {
		observability.GeocodeLookupsTotal.WithLabelValues("error").Inc()
		return Result{}, false, fmt.Errorf("geocode %q: %w", name, err)
	}
	if resp.IsError() {
		observability.GeocodeLookupsTotal.WithLabelValues("error").Inc()
		return Result{}, false, fmt.Errorf("geocode %q: HTTP %d", name, resp.StatusCode())
	}

	if len(places) == 0 {
		observability.GeocodeLookupsTotal.WithLabelValues("not_found").Inc()
		r.cacheSet(ctx, key, Lookup{})
		return Result{}, false, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return Result{}, false, fmt.Errorf("geocode %q: parse lat %q: %w", name, places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return Result{}, false, fmt.Errorf("geocode %q: parse lon %q: %w", name, places[0].Lon, err)
	}

	result := Result{
		Lat:         models.Round4(lat),
		Lon:         models.Round4(lon),
		DisplayName: places[0].DisplayName,
	}
	observability.GeocodeLookupsTotal.WithLabelValues("found").Inc()
	r.cacheSet(ctx, key, Lookup{Result: result, Found: true})
	if r.logger != nil {
		r.logger.Info("geocoded location",
			zap.String("name", key),
			zap.Float64("lat", result.Lat),
			zap.Float64("lon", result.Lon))
	}
	return result, true, nil
}

func (r *NominatimResolver) cacheSet(ctx context.Context, key string, lookup Lookup) {
	if err := r.cache.Set(ctx, key, lookup, r.cacheTTL); err != nil && r.logger != nil {
		r.logger.Warn("geocode cache set failed", zap.String("name", key), zap.Error(err))
	}
}

// normalizeName normalizes place names so equivalent inputs share a cache key.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
