package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dailytemp/forecast-service/internal/observability"
)

// Fetcher is implemented by the pipeline to prime the cache for a coordinate.
// Declared here to avoid a circular dependency on the service package.
type Fetcher interface {
	Prefetch(ctx context.Context, lat, lon float64, name string) error
}

// WarmLocation is one coordinate to prefetch, with its display name.
type WarmLocation struct {
	Lat  float64
	Lon  float64
	Name string
}

// Warmer primes the forecast cache by prefetching a list of coordinates.
type Warmer struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// NewWarmer creates a Warmer that uses the given fetcher and logger.
func NewWarmer(fetcher Fetcher, logger *zap.Logger) *Warmer {
	return &Warmer{fetcher: fetcher, logger: logger}
}

// Warm prefetches each location concurrently, populating the cache through
// the fetcher. Returns an aggregated error if any location failed.
func (w *Warmer) Warm(ctx context.Context, locations []WarmLocation) error {
	start := time.Now()
	if w.logger != nil {
		w.logger.Info("warming forecast cache", zap.Int("locations", len(locations)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(locations))
	for _, loc := range locations {
		loc := loc
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.fetcher.Prefetch(ctx, loc.Lat, loc.Lon, loc.Name); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", loc.Name, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete",
			zap.Int("locations", len(locations)),
			zap.Int("errors", len(errs)),
			zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		return fmt.Errorf("cache warming: %v", errs)
	}
	return nil
}
