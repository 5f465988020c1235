// Package config loads service configuration from config/{ENV_NAME}.yaml
// with environment-variable overrides for the operational knobs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// WarmTarget is one coordinate the warmer keeps primed.
type WarmTarget struct {
	Lat  float64
	Lon  float64
	Name string
}

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string
	Version    string

	YrNoBaseURL   string
	YrNoUserAgent string
	YrNoTimeout   time.Duration

	NominatimBaseURL string
	NominatimTimeout time.Duration

	RequestTimeout time.Duration

	SampleHour   int
	SampleMinute int

	ForecastCacheTTL     time.Duration
	ForecastCacheMaxSize int

	GeocodeCacheBackend   string // "in_memory" or "memcached"
	GeocodeCacheTTL       time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	BreakerEnabled     bool
	BreakerMaxFailures uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DefaultLat  float64
	DefaultLon  float64
	DefaultName string

	WarmOnStart  bool
	WarmInterval time.Duration
	WarmTargets  []WarmTarget
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Version string `yaml:"version"`

	YrNo struct {
		URL       string `yaml:"url"`
		UserAgent string `yaml:"user_agent"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"yrno"`

	Nominatim struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"nominatim"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Sampling struct {
		Hour   *int `yaml:"hour"`
		Minute *int `yaml:"minute"`
	} `yaml:"sampling"`

	Cache struct {
		TTL     string `yaml:"ttl"`
		MaxSize int    `yaml:"max_size"`
	} `yaml:"cache"`

	Geocode struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"geocode"`

	Breaker struct {
		Enabled     *bool  `yaml:"enabled"`
		MaxFailures uint32 `yaml:"max_failures"`
		Interval    string `yaml:"interval"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"breaker"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	DefaultLocation struct {
		Lat  *float64 `yaml:"lat"`
		Lon  *float64 `yaml:"lon"`
		Name string   `yaml:"name"`
	} `yaml:"default_location"`

	Warming struct {
		OnStart  *bool  `yaml:"on_start"`
		Interval string `yaml:"interval"`
		Targets  []struct {
			Lat  float64 `yaml:"lat"`
			Lon  float64 `yaml:"lon"`
			Name string  `yaml:"name"`
		} `yaml:"targets"`
	} `yaml:"warming"`
}

// Load reads .env (when present), then config/{ENV_NAME}.yaml (default dev),
// then applies env overrides. Call from project root.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = envOr("PORT", fc.Server.Port)
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.Version = fc.Version
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	cfg.YrNoBaseURL = envOr("YRNO_BASE_URL", fc.YrNo.URL)
	if cfg.YrNoBaseURL == "" {
		cfg.YrNoBaseURL = "https://api.met.no/weatherapi/locationforecast/2.0"
	}
	cfg.YrNoUserAgent = envOr("YRNO_USER_AGENT", fc.YrNo.UserAgent)
	if cfg.YrNoUserAgent == "" {
		return nil, fmt.Errorf("yrno.user_agent required (met.no rejects unidentified clients)")
	}
	cfg.YrNoTimeout = parseDuration(fc.YrNo.Timeout, 10*time.Second)

	cfg.NominatimBaseURL = envOr("NOMINATIM_BASE_URL", fc.Nominatim.URL)
	if cfg.NominatimBaseURL == "" {
		cfg.NominatimBaseURL = "https://nominatim.openstreetmap.org"
	}
	cfg.NominatimTimeout = parseDuration(fc.Nominatim.Timeout, 10*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)

	cfg.SampleHour = 14
	if fc.Sampling.Hour != nil {
		cfg.SampleHour = *fc.Sampling.Hour
	}
	if fc.Sampling.Minute != nil {
		cfg.SampleMinute = *fc.Sampling.Minute
	}
	if cfg.SampleHour < 0 || cfg.SampleHour > 23 || cfg.SampleMinute < 0 || cfg.SampleMinute > 59 {
		return nil, fmt.Errorf("sampling time %02d:%02d out of range", cfg.SampleHour, cfg.SampleMinute)
	}

	cfg.ForecastCacheTTL = parseDuration(fc.Cache.TTL, 30*time.Minute)
	cfg.ForecastCacheMaxSize = fc.Cache.MaxSize
	if cfg.ForecastCacheMaxSize <= 0 {
		cfg.ForecastCacheMaxSize = 1000
	}

	cfg.GeocodeCacheBackend = strings.TrimSpace(strings.ToLower(envOr("GEOCODE_CACHE_BACKEND", fc.Geocode.Backend)))
	if cfg.GeocodeCacheBackend == "" {
		cfg.GeocodeCacheBackend = "in_memory"
	}
	cfg.GeocodeCacheTTL = parseDuration(fc.Geocode.TTL, 24*time.Hour)
	cfg.MemcachedAddrs = strings.TrimSpace(envOr("MEMCACHED_ADDRS", fc.Geocode.Memcached.Addrs))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Geocode.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Geocode.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.BreakerEnabled = true
	if fc.Breaker.Enabled != nil {
		cfg.BreakerEnabled = *fc.Breaker.Enabled
	}
	cfg.BreakerMaxFailures = fc.Breaker.MaxFailures
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	cfg.BreakerInterval = parseDuration(fc.Breaker.Interval, time.Minute)
	cfg.BreakerTimeout = parseDuration(fc.Breaker.Timeout, 30*time.Second)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS < 0 {
		cfg.RateLimitRPS = 0
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 2 * cfg.RateLimitRPS
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DefaultLat = 44.8125
	cfg.DefaultLon = 20.4612
	cfg.DefaultName = "Belgrade"
	if fc.DefaultLocation.Lat != nil && fc.DefaultLocation.Lon != nil {
		cfg.DefaultLat = *fc.DefaultLocation.Lat
		cfg.DefaultLon = *fc.DefaultLocation.Lon
		cfg.DefaultName = fc.DefaultLocation.Name
	}

	cfg.WarmOnStart = false
	if fc.Warming.OnStart != nil {
		cfg.WarmOnStart = *fc.Warming.OnStart
	}
	cfg.WarmInterval = parseDuration(fc.Warming.Interval, 0)
	for _, t := range fc.Warming.Targets {
		cfg.WarmTargets = append(cfg.WarmTargets, WarmTarget{Lat: t.Lat, Lon: t.Lon, Name: t.Name})
	}
	if len(cfg.WarmTargets) == 0 {
		cfg.WarmTargets = []WarmTarget{{Lat: cfg.DefaultLat, Lon: cfg.DefaultLon, Name: cfg.DefaultName}}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseDuration parses a duration string and returns defaultVal on empty
// string, parse error, or non-positive result.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load checks. RequestTimeout is widened to cover the
// upstream timeout so handlers don't cancel a fetch that would have finished.
func validate(cfg *Config) error {
	if cfg.YrNoTimeout <= 0 {
		return fmt.Errorf("yrno.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.YrNoTimeout {
		cfg.RequestTimeout = cfg.YrNoTimeout + time.Second
	}
	switch cfg.GeocodeCacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("geocode.backend must be in_memory or memcached, got %q", cfg.GeocodeCacheBackend)
	}
	if _, err := strconv.Atoi(cfg.ServerPort); err != nil {
		return fmt.Errorf("server.port must be numeric, got %q", cfg.ServerPort)
	}
	return nil
}
