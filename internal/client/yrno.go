package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dailytemp/forecast-service/internal/models"
	"github.com/dailytemp/forecast-service/internal/observability"
)

// ErrUpstreamUnavailable is returned when the yr.no fetch fails for any
// reason (transport error, timeout, non-2xx). It always carries the cause.
var ErrUpstreamUnavailable = errors.New("yr.no unavailable")

// Sample is one (UTC instant, temperature) observation from the provider.
// Provider ordering is not guaranteed; consumers must not assume sortedness.
type Sample struct {
	Time         time.Time
	TemperatureC float64
}

// ForecastClient fetches raw forecast samples for a coordinate.
type ForecastClient interface {
	FetchForecast(ctx context.Context, coord models.Coordinate) ([]Sample, error)
	CheckAvailability(ctx context.Context) bool
}

// YrNoClient talks to the yr.no Locationforecast 2.0 compact endpoint.
// yr.no terms require an identifying User-Agent on every request.
type YrNoClient struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker
	refCoord  models.Coordinate // fixed coordinate for availability probes
}

// NewYrNoClient creates a client with a bounded request timeout. refCoord is
// the coordinate used by CheckAvailability probes.
func NewYrNoClient(baseURL, userAgent string, timeout time.Duration, refCoord models.Coordinate) (*YrNoClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("yr.no base URL is required")
	}
	if userAgent == "" {
		return nil, fmt.Errorf("yr.no user agent is required")
	}
	return &YrNoClient{
		baseURL:   baseURL,
		userAgent: userAgent,
		timeout:   timeout,
		refCoord:  refCoord,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker wraps fetches with cb. An open breaker fails fast into
// the caller's stale-fallback path without touching the network.
func (c *YrNoClient) SetCircuitBreaker(cb *gobreaker.CircuitBreaker) {
	c.breaker = cb
}

// yrnoResponse mirrors the subset of the compact payload we consume.
type yrnoResponse struct {
	Properties struct {
		Timeseries []struct {
			Time time.Time `json:"time"`
			Data struct {
				Instant struct {
					Details struct {
						AirTemperature float64 `json:"air_temperature"`
					} `json:"details"`
				} `json:"instant"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"properties"`
}

// FetchForecast fetches the raw timeseries for coord. Exactly one attempt per
// call; resilience lives in the cache layer, not in retries here.
func (c *YrNoClient) FetchForecast(ctx context.Context, coord models.Coordinate) ([]Sample, error) {
	if c.breaker != nil {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.fetch(ctx, coord)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, fmt.Errorf("%w: circuit breaker open", ErrUpstreamUnavailable)
			}
			return nil, err
		}
		return result.([]Sample), nil
	}
	return c.fetch(ctx, coord)
}

func (c *YrNoClient) fetch(ctx context.Context, coord models.Coordinate) ([]Sample, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, coord)
	if err != nil {
		observability.YrNoCallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstreamUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.YrNoCallsTotal.WithLabelValues("error").Inc()
		observability.YrNoDuration.WithLabelValues("error").Observe(duration)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: request timeout: %v", ErrUpstreamUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.YrNoCallsTotal.WithLabelValues(status).Inc()
	observability.YrNoDuration.WithLabelValues(status).Observe(duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrUpstreamUnavailable, err)
	}

	var apiResp yrnoResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrUpstreamUnavailable, err)
	}

	samples := make([]Sample, 0, len(apiResp.Properties.Timeseries))
	for _, entry := range apiResp.Properties.Timeseries {
		samples = append(samples, Sample{
			Time:         entry.Time,
			TemperatureC: entry.Data.Instant.Details.AirTemperature,
		})
	}
	return samples, nil
}

func (c *YrNoClient) buildRequest(ctx context.Context, coord models.Coordinate) (*http.Request, error) {
	baseURL, err := url.Parse(c.baseURL + "/compact")
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%.4f", coord.Latitude))
	params.Set("lon", fmt.Sprintf("%.4f", coord.Longitude))
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// CheckAvailability probes the compact endpoint with the reference coordinate
// on a short timeout. Transport errors are reported as false, never raised.
func (c *YrNoClient) CheckAvailability(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, c.refCoord)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
