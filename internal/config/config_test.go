package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
yrno:
  user_agent: daily-temp-service-test/1.0 dev@example.com
`

// writeConfigFile writes config/dev.yaml under dir.
func writeConfigFile(t *testing.T, dir, content string) {
	t.Helper()
	cfgDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "dev.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

// chdirTemp moves the test into a fresh temp dir and restores on cleanup.
func chdirTemp(t *testing.T) string {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := chdirTemp(t)
	writeConfigFile(t, dir, minimalYAML)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.YrNoBaseURL != "https://api.met.no/weatherapi/locationforecast/2.0" {
		t.Errorf("YrNoBaseURL = %q", cfg.YrNoBaseURL)
	}
	if cfg.SampleHour != 14 || cfg.SampleMinute != 0 {
		t.Errorf("sampling time = %02d:%02d, want 14:00", cfg.SampleHour, cfg.SampleMinute)
	}
	if cfg.ForecastCacheTTL != 30*time.Minute {
		t.Errorf("ForecastCacheTTL = %v, want 30m", cfg.ForecastCacheTTL)
	}
	if cfg.GeocodeCacheBackend != "in_memory" {
		t.Errorf("GeocodeCacheBackend = %q, want in_memory", cfg.GeocodeCacheBackend)
	}
	if cfg.DefaultLat != 44.8125 || cfg.DefaultLon != 20.4612 || cfg.DefaultName != "Belgrade" {
		t.Errorf("default location = (%v, %v, %q)", cfg.DefaultLat, cfg.DefaultLon, cfg.DefaultName)
	}
	if len(cfg.WarmTargets) != 1 || cfg.WarmTargets[0].Name != "Belgrade" {
		t.Errorf("WarmTargets = %+v, want the default location", cfg.WarmTargets)
	}
	if !cfg.BreakerEnabled || cfg.BreakerMaxFailures != 5 {
		t.Errorf("breaker defaults = enabled=%v maxFailures=%d", cfg.BreakerEnabled, cfg.BreakerMaxFailures)
	}
}

func TestLoad_FailsWithoutUserAgent(t *testing.T) {
	dir := chdirTemp(t)
	writeConfigFile(t, dir, "server:\n  port: \"9090\"\n")

	_, err := Load()
	if err == nil {
		t.Fatal("Load succeeded without a yr.no user agent")
	}
	if !strings.Contains(err.Error(), "user_agent") {
		t.Errorf("error = %v, want mention of user_agent", err)
	}
}

func TestLoad_FullFile(t *testing.T) {
	dir := chdirTemp(t)
	writeConfigFile(t, dir, `
server:
  port: "9090"
version: "1.2.3"
yrno:
  url: http://localhost:9100/weatherapi
  user_agent: test-agent/1.0
  timeout: 3s
nominatim:
  url: http://localhost:9101
  timeout: 2s
request:
  timeout: 8s
sampling:
  hour: 12
  minute: 30
cache:
  ttl: 10m
  max_size: 50
geocode:
  backend: memcached
  ttl: 1h
  memcached:
    addrs: "cache1:11211,cache2:11211"
    timeout: 250ms
    max_idle_conns: 4
breaker:
  enabled: false
reliability:
  rate_limit_rps: 20
  rate_limit_burst: 40
shutdown:
  timeout: 15s
  in_flight_timeout: 5s
default_location:
  lat: 59.9139
  lon: 10.7522
  name: Oslo
warming:
  on_start: true
  interval: 20m
  targets:
    - lat: 59.9139
      lon: 10.7522
      name: Oslo
    - lat: 35.6762
      lon: 139.6503
      name: Tokyo
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != "9090" || cfg.Version != "1.2.3" {
		t.Errorf("server = %q version = %q", cfg.ServerPort, cfg.Version)
	}
	if cfg.YrNoTimeout != 3*time.Second || cfg.YrNoUserAgent != "test-agent/1.0" {
		t.Errorf("yrno = %v %q", cfg.YrNoTimeout, cfg.YrNoUserAgent)
	}
	if cfg.SampleHour != 12 || cfg.SampleMinute != 30 {
		t.Errorf("sampling = %02d:%02d", cfg.SampleHour, cfg.SampleMinute)
	}
	if cfg.ForecastCacheTTL != 10*time.Minute || cfg.ForecastCacheMaxSize != 50 {
		t.Errorf("cache = %v %d", cfg.ForecastCacheTTL, cfg.ForecastCacheMaxSize)
	}
	if cfg.GeocodeCacheBackend != "memcached" || cfg.MemcachedAddrs != "cache1:11211,cache2:11211" {
		t.Errorf("geocode = %q %q", cfg.GeocodeCacheBackend, cfg.MemcachedAddrs)
	}
	if cfg.BreakerEnabled {
		t.Error("breaker should be disabled")
	}
	if cfg.RateLimitRPS != 20 || cfg.RateLimitBurst != 40 {
		t.Errorf("rate limit = %d/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.DefaultName != "Oslo" {
		t.Errorf("default location name = %q", cfg.DefaultName)
	}
	if !cfg.WarmOnStart || cfg.WarmInterval != 20*time.Minute || len(cfg.WarmTargets) != 2 {
		t.Errorf("warming = %v %v %+v", cfg.WarmOnStart, cfg.WarmInterval, cfg.WarmTargets)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := chdirTemp(t)
	writeConfigFile(t, dir, minimalYAML)
	t.Setenv("PORT", "7070")
	t.Setenv("YRNO_BASE_URL", "http://localhost:9100")
	t.Setenv("GEOCODE_CACHE_BACKEND", "memcached")
	t.Setenv("MEMCACHED_ADDRS", "envhost:11211")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != "7070" {
		t.Errorf("ServerPort = %q, want env override 7070", cfg.ServerPort)
	}
	if cfg.YrNoBaseURL != "http://localhost:9100" {
		t.Errorf("YrNoBaseURL = %q", cfg.YrNoBaseURL)
	}
	if cfg.GeocodeCacheBackend != "memcached" || cfg.MemcachedAddrs != "envhost:11211" {
		t.Errorf("geocode cache = %q %q", cfg.GeocodeCacheBackend, cfg.MemcachedAddrs)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			"bad geocode backend",
			minimalYAML + "geocode:\n  backend: redis\n",
			"geocode.backend",
		},
		{
			"sampling hour out of range",
			minimalYAML + "sampling:\n  hour: 25\n",
			"sampling time",
		},
		{
			"non-numeric port",
			minimalYAML + "server:\n  port: abc\n",
			"server.port",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := chdirTemp(t)
			writeConfigFile(t, dir, tc.yaml)
			_, err := Load()
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error = %v, want it to contain %q", err, tc.wantMsg)
			}
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	chdirTemp(t)
	_, err := Load()
	if err == nil {
		t.Fatal("Load succeeded with no config file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error = %v", err)
	}
}

func TestLoad_RequestTimeoutWidened(t *testing.T) {
	dir := chdirTemp(t)
	writeConfigFile(t, dir, minimalYAML+"request:\n  timeout: 1s\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RequestTimeout <= cfg.YrNoTimeout {
		t.Errorf("RequestTimeout %v not widened past YrNoTimeout %v", cfg.RequestTimeout, cfg.YrNoTimeout)
	}
}
