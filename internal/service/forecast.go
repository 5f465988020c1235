// Package service holds the forecast pipeline: cache-first retrieval with
// per-key fetch locking, daily sampling of the raw upstream timeseries, and
// stale-cache fallback when yr.no is down.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dailytemp/forecast-service/internal/cache"
	"github.com/dailytemp/forecast-service/internal/client"
	"github.com/dailytemp/forecast-service/internal/models"
	"github.com/dailytemp/forecast-service/internal/observability"
)

// TimeZoneResolver converts a UTC instant to local wall-clock time for a
// coordinate, honoring an optional IANA zone override.
type TimeZoneResolver interface {
	ToLocal(utc time.Time, lat, lon float64, override string) time.Time
}

// Options are the caller-facing knobs of a forecast lookup. Zero values mean
// no location label, no day limit, Celsius, and auto-detected timezone.
type Options struct {
	LocationName     string
	Days             int
	Unit             models.Unit
	TimezoneOverride string
}

// Pipeline answers "forecast for (lat, lon)" using cache-aside retrieval with
// a per-key lock so concurrent requests for the same coordinate collapse into
// one upstream fetch.
type Pipeline struct {
	client       client.ForecastClient
	tz           TimeZoneResolver
	cache        *cache.ForecastCache
	locks        *keyLocks
	targetHour   int
	targetMinute int
	logger       *zap.Logger

	now func() time.Time // test hook
}

// NewPipeline creates a Pipeline. targetHour/targetMinute define the local
// time-of-day each daily reading is sampled against (14:00 by default
// upstream in config).
func NewPipeline(c client.ForecastClient, tz TimeZoneResolver, fc *cache.ForecastCache, targetHour, targetMinute int, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		client:       c,
		tz:           tz,
		cache:        fc,
		locks:        newKeyLocks(),
		targetHour:   targetHour,
		targetMinute: targetMinute,
		logger:       logger,
		now:          time.Now,
	}
}

// GetForecast returns the forecast for the coordinate, serving from cache
// when possible. Cached entries are stored in Celsius; unit conversion and
// day limiting are applied to a clone, never to the stored value. On upstream
// failure the last-known stale entry is served if one exists.
func (p *Pipeline) GetForecast(ctx context.Context, lat, lon float64, opts Options) (models.Forecast, error) {
	coord, err := models.NewCoordinate(lat, lon)
	if err != nil {
		return models.Forecast{}, err
	}
	observability.ForecastRequestsTotal.Inc()
	key := coord.CacheKey()
	logger := p.requestLogger(ctx)

	if rec, ok := p.cache.Get(key); ok {
		observability.CacheHitsTotal.Inc()
		if logger != nil {
			logger.Debug("serving from cache", zap.String("key", key))
		}
		return p.serveRecord(rec, opts, false), nil
	}
	observability.CacheMissesTotal.Inc()

	// Thundering-herd guard: one fetch per key, other keys unaffected.
	mu := p.locks.get(key)
	mu.Lock()
	defer mu.Unlock()

	// Another caller may have populated the cache while we waited.
	if rec, ok := p.cache.Get(key); ok {
		observability.CacheHitsTotal.Inc()
		if logger != nil {
			logger.Debug("serving from cache after lock", zap.String("key", key))
		}
		return p.serveRecord(rec, opts, false), nil
	}

	samples, err := p.client.FetchForecast(ctx, coord)
	if err != nil {
		if rec, ok := p.cache.GetStale(key); ok {
			age := p.now().Sub(rec.CreatedAt)
			observability.StaleServesTotal.Inc()
			observability.StaleAgeSeconds.Observe(age.Seconds())
			if logger != nil {
				logger.Warn("serving stale cache after upstream failure",
					zap.String("key", key), zap.Duration("age", age), zap.Error(err))
			}
			return p.serveRecord(rec, opts, true), nil
		}
		return models.Forecast{}, fmt.Errorf("fetch forecast for %s: %w", key, err)
	}

	readings := p.selectDailyReadings(samples, coord, opts.TimezoneOverride)
	fresh := models.Forecast{
		Location: models.Location{
			Latitude:  coord.Latitude,
			Longitude: coord.Longitude,
			Name:      opts.LocationName,
		},
		Forecasts:    readings,
		DaysReturned: len(readings),
		GeneratedAt:  p.now().UTC(),
	}
	p.cache.Set(key, fresh)
	if logger != nil {
		logger.Info("forecast computed",
			zap.String("key", key), zap.Int("days", len(readings)))
	}
	return shape(fresh, opts), nil
}

// Prefetch primes the cache for a coordinate, discarding the result. Used by
// the cache warmer.
func (p *Pipeline) Prefetch(ctx context.Context, lat, lon float64, name string) error {
	_, err := p.GetForecast(ctx, lat, lon, Options{LocationName: name})
	return err
}

// serveRecord builds the caller-facing response from a cache record: clone,
// stamp cache metadata, then convert and limit the clone.
func (p *Pipeline) serveRecord(rec *cache.Record, opts Options, stale bool) models.Forecast {
	out := rec.Value.Clone()
	out.Cached = true
	out.Stale = stale
	cachedAt := rec.CreatedAt
	out.CachedAt = &cachedAt
	return shape(out, opts)
}

// shape applies unit conversion and day limiting. Both operate on copies.
func shape(f models.Forecast, opts Options) models.Forecast {
	unit := opts.Unit
	if unit == "" {
		unit = models.UnitCelsius
	}
	out := models.ConvertUnits(f, unit)
	return models.LimitDays(out, opts.Days)
}

// requestLogger prefers the correlation-scoped logger from the request
// context, falling back to the pipeline's own.
func (p *Pipeline) requestLogger(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return p.logger
}
