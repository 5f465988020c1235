package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

const belgradePayload = `[{"lat": "44.81254321", "lon": "20.46123456", "display_name": "Belgrade, Serbia"}]`

func newTestResolver(t *testing.T, baseURL string) *NominatimResolver {
	t.Helper()
	return NewNominatimResolver(baseURL, "forecast-service-test/1.0", 2*time.Second, NewInMemoryCache(), time.Hour, nil)
}

// TestResolve_Found verifies parsing, 4-decimal rounding of the returned
// coordinates, and the query parameters sent to Nominatim.
func TestResolve_Found(t *testing.T) {
	var gotQ, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQ = r.URL.Query().Get("q")
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(belgradePayload))
	}))
	defer srv.Close()

	r := newTestResolver(t, srv.URL)
	result, found, err := r.Resolve(context.Background(), "Belgrade")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !found {
		t.Fatal("found = false, want true")
	}
	if result.Lat != 44.8125 || result.Lon != 20.4612 {
		t.Errorf("coords = (%v, %v), want rounded (44.8125, 20.4612)", result.Lat, result.Lon)
	}
	if result.DisplayName != "Belgrade, Serbia" {
		t.Errorf("DisplayName = %q", result.DisplayName)
	}
	if gotQ != "Belgrade" || gotLimit != "1" {
		t.Errorf("query = q=%q limit=%q", gotQ, gotLimit)
	}
}

// TestResolve_NotFound verifies an empty result set is a normal found=false
// outcome, not an error.
func TestResolve_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	r := newTestResolver(t, srv.URL)
	_, found, err := r.Resolve(context.Background(), "Nowhere That Exists")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if found {
		t.Error("found = true for empty result, want false")
	}
}

// TestResolve_CachesResults verifies positive and negative outcomes are both
// served from cache on repeat lookups, including case-insensitive names.
func TestResolve_CachesResults(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("q") == "Belgrade" {
			_, _ = w.Write([]byte(belgradePayload))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	r := newTestResolver(t, srv.URL)
	ctx := context.Background()

	if _, found, _ := r.Resolve(ctx, "Belgrade"); !found {
		t.Fatal("first lookup not found")
	}
	if _, found, _ := r.Resolve(ctx, "  BELGRADE "); !found {
		t.Fatal("cached lookup not found")
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d after repeat lookup, want 1", calls)
	}

	r.Resolve(ctx, "Atlantis")
	r.Resolve(ctx, "Atlantis")
	if calls != 2 {
		t.Errorf("upstream calls = %d, want 2 (negative result cached)", calls)
	}
}

// TestResolve_UpstreamError verifies a 5xx from Nominatim surfaces as an
// error, not as not-found.
func TestResolve_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := newTestResolver(t, srv.URL)
	if _, _, err := r.Resolve(context.Background(), "Belgrade"); err == nil {
		t.Error("err = nil for 500 response, want error")
	}
}

// TestInMemoryCache_TTL verifies entries expire and negative lookups are
// representable.
func TestInMemoryCache_TTL(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "oslo", Lookup{Result: Result{Lat: 59.9139, Lon: 10.7522}, Found: true}, 50*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "oslo"); !ok {
		t.Fatal("Get missed before expiry")
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "oslo"); ok {
		t.Error("Get hit after expiry")
	}

	if err := c.Set(ctx, "atlantis", Lookup{}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	lookup, ok, _ := c.Get(ctx, "atlantis")
	if !ok || lookup.Found {
		t.Errorf("negative lookup = (%+v, %v), want cached Found=false", lookup, ok)
	}
}

// TestMemcachedCache_RoundTrip exercises the memcached backend against a real
// server. Skipped unless MEMCACHED_ADDRS is set.
func TestMemcachedCache_RoundTrip(t *testing.T) {
	addrs := os.Getenv("MEMCACHED_ADDRS")
	if addrs == "" {
		t.Skip("MEMCACHED_ADDRS not set")
	}
	c, err := NewMemcachedCache(addrs, time.Second, 2)
	if err != nil {
		t.Fatalf("NewMemcachedCache: %v", err)
	}
	defer c.Close()
	if err := c.Ping(); err != nil {
		t.Skipf("memcached not reachable: %v", err)
	}

	ctx := context.Background()
	want := Lookup{Result: Result{Lat: 44.8125, Lon: 20.4612, DisplayName: "Belgrade, Serbia"}, Found: true}
	if err := c.Set(ctx, "belgrade", want, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := c.Get(ctx, "belgrade")
	if err != nil || !ok {
		t.Fatalf("Get = (%v, %v, %v)", got, ok, err)
	}
	if got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}
