package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/gorilla/mux"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dailytemp/forecast-service/internal/cache"
	"github.com/dailytemp/forecast-service/internal/client"
	"github.com/dailytemp/forecast-service/internal/config"
	"github.com/dailytemp/forecast-service/internal/geocode"
	httphandler "github.com/dailytemp/forecast-service/internal/http"
	"github.com/dailytemp/forecast-service/internal/models"
	"github.com/dailytemp/forecast-service/internal/observability"
	"github.com/dailytemp/forecast-service/internal/service"
	"github.com/dailytemp/forecast-service/internal/timezone"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	tzResolver, err := timezone.NewResolver(logger)
	if err != nil {
		logger.Fatal("timezone resolver", zap.Error(err))
	}

	refCoord, err := models.NewCoordinate(cfg.DefaultLat, cfg.DefaultLon)
	if err != nil {
		logger.Fatal("default location", zap.Error(err))
	}
	yrnoClient, err := client.NewYrNoClient(cfg.YrNoBaseURL, cfg.YrNoUserAgent, cfg.YrNoTimeout, refCoord)
	if err != nil {
		logger.Fatal("yr.no client", zap.Error(err))
	}
	if cfg.BreakerEnabled {
		cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "yrno",
			Interval: cfg.BreakerInterval,
			Timeout:  cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state change",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		yrnoClient.SetCircuitBreaker(cb)
		logger.Info("circuit breaker enabled",
			zap.Uint32("max_failures", cfg.BreakerMaxFailures),
			zap.Duration("timeout", cfg.BreakerTimeout))
	}

	var geocodeCache geocode.Cache
	var memcacheCloser *geocode.MemcachedCache
	switch cfg.GeocodeCacheBackend {
	case "memcached":
		mc, err := geocode.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		geocodeCache = mc
		logger.Info("geocode cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		geocodeCache = geocode.NewInMemoryCache()
		logger.Info("geocode cache backend: in_memory")
	}
	geocoder := geocode.NewNominatimResolver(
		cfg.NominatimBaseURL, cfg.YrNoUserAgent, cfg.NominatimTimeout,
		geocodeCache, cfg.GeocodeCacheTTL, logger)

	forecastCache := cache.New(cfg.ForecastCacheTTL, cfg.ForecastCacheMaxSize)
	pipeline := service.NewPipeline(yrnoClient, tzResolver, forecastCache,
		cfg.SampleHour, cfg.SampleMinute, logger)

	defaults := httphandler.DefaultLocation{Lat: cfg.DefaultLat, Lon: cfg.DefaultLon, Name: cfg.DefaultName}
	handler := httphandler.NewHandler(pipeline, geocoder, yrnoClient, forecastCache, defaults, cfg.Version, logger)
	if memcacheCloser != nil {
		handler.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	warmer := cache.NewWarmer(pipeline, logger)
	warmTargets := make([]cache.WarmLocation, 0, len(cfg.WarmTargets))
	for _, t := range cfg.WarmTargets {
		warmTargets = append(warmTargets, cache.WarmLocation{Lat: t.Lat, Lon: t.Lon, Name: t.Name})
	}
	if cfg.WarmOnStart {
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := warmer.Warm(warmCtx, warmTargets); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
	}
	var scheduler *gocron.Scheduler
	if cfg.WarmInterval > 0 {
		scheduler = gocron.NewScheduler(time.UTC)
		_, err := scheduler.Every(cfg.WarmInterval).Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := warmer.Warm(ctx, warmTargets); err != nil {
				logger.Warn("periodic cache warming failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Fatal("schedule cache warming", zap.Error(err))
		}
		scheduler.StartAsync()
		logger.Info("periodic cache warming scheduled", zap.Duration("interval", cfg.WarmInterval))
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	forecastRouter := router.Path("/forecast").Subrouter()
	forecastRouter.Use(httphandler.RateLimitMiddleware(limiter))
	forecastRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	forecastRouter.Methods("GET").HandlerFunc(handler.GetForecast)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	if scheduler != nil {
		scheduler.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed",
			zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
