package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dailytemp/forecast-service/internal/models"
)

func forecastFor(name string) models.Forecast {
	return models.Forecast{
		Location: models.Location{Latitude: 44.8125, Longitude: 20.4612, Name: name},
		Forecasts: []models.Reading{
			{Date: "2026-01-15", Temperature: 5.3, Unit: models.UnitCelsius},
		},
		DaysReturned: 1,
		GeneratedAt:  time.Now().UTC(),
	}
}

// TestGetSet_HitAndMiss verifies basic hit/miss behavior and the counters
// behind Stats.
func TestGetSet_HitAndMiss(t *testing.T) {
	c := New(time.Hour, 10)
	key := "forecast:44.8125:20.4612"

	if _, ok := c.Get(key); ok {
		t.Fatal("Get on empty cache returned a record")
	}

	c.Set(key, forecastFor("Belgrade"))
	rec, ok := c.Get(key)
	if !ok {
		t.Fatal("Get after Set missed")
	}
	if rec.Value.Location.Name != "Belgrade" {
		t.Errorf("record name = %q, want Belgrade", rec.Value.Location.Name)
	}
	if rec.HitCount != 1 {
		t.Errorf("HitCount = %d, want 1", rec.HitCount)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats hits=%d misses=%d, want 1/1", stats.Hits, stats.Misses)
	}
	if stats.HitRate == nil || *stats.HitRate != 50 {
		t.Errorf("hit rate = %v, want 50", stats.HitRate)
	}
}

// TestStats_NoLookups verifies HitRate is nil before any lookup, never a
// division by zero.
func TestStats_NoLookups(t *testing.T) {
	c := New(time.Hour, 10)
	stats := c.Stats()
	if stats.HitRate != nil {
		t.Errorf("HitRate = %v before any lookup, want nil", *stats.HitRate)
	}
	if stats.Size != 0 || stats.MaxSize != 10 || stats.TTLSeconds != 3600 {
		t.Errorf("stats = %+v", stats)
	}
}

// TestGet_ExpiredDemotesToStale verifies an expired live entry misses on Get
// but remains reachable through GetStale.
func TestGet_ExpiredDemotesToStale(t *testing.T) {
	c := New(time.Hour, 10)
	now := time.Now()
	c.now = func() time.Time { return now }

	key := "forecast:59.9139:10.7522"
	c.Set(key, forecastFor("Oslo"))

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get(key); ok {
		t.Fatal("Get returned expired entry")
	}
	stale, ok := c.GetStale(key)
	if !ok {
		t.Fatal("GetStale missed after expiry")
	}
	if stale.Value.Location.Name != "Oslo" {
		t.Errorf("stale name = %q, want Oslo", stale.Value.Location.Name)
	}
	if c.Stats().Size != 0 {
		t.Errorf("live size = %d after expiry, want 0", c.Stats().Size)
	}
}

// TestSet_DemotesPriorLiveEntry verifies Set moves the previous live entry
// into the stale slot, overwriting any earlier stale generation.
func TestSet_DemotesPriorLiveEntry(t *testing.T) {
	c := New(time.Hour, 10)
	key := "forecast:44.8125:20.4612"

	c.Set(key, forecastFor("gen1"))
	c.Set(key, forecastFor("gen2"))
	c.Set(key, forecastFor("gen3"))

	rec, ok := c.Get(key)
	if !ok || rec.Value.Location.Name != "gen3" {
		t.Fatalf("live entry = %+v, want gen3", rec)
	}
	stale, ok := c.GetStale(key)
	if !ok {
		t.Fatal("GetStale missed")
	}
	// Only one stale generation retained: gen2, not gen1.
	if stale.Value.Location.Name != "gen2" {
		t.Errorf("stale name = %q, want gen2", stale.Value.Location.Name)
	}
}

// TestGetStale_NoStatsEffect verifies the fallback path leaves hit/miss
// counters untouched.
func TestGetStale_NoStatsEffect(t *testing.T) {
	c := New(time.Hour, 10)
	c.Set("k", forecastFor("x"))
	c.GetStale("k")
	c.GetStale("absent")
	stats := c.Stats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("stats hits=%d misses=%d after GetStale, want 0/0", stats.Hits, stats.Misses)
	}
}

// TestSet_CapacityEviction verifies the oldest-inserted entry is evicted
// when the live table is full, and distinct keys keep their stale slots.
func TestSet_CapacityEviction(t *testing.T) {
	c := New(time.Hour, 2)

	c.Set("a", forecastFor("a"))
	c.Set("b", forecastFor("b"))
	c.Set("c", forecastFor("c"))

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry a survived eviction")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("entry b evicted, want kept")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("entry c evicted, want kept")
	}
	if c.Stats().Size != 2 {
		t.Errorf("size = %d, want 2", c.Stats().Size)
	}
}

// TestConcurrentAccess verifies Get/Set/GetStale/Stats are race-free under
// concurrent callers touching distinct and shared keys.
func TestConcurrentAccess(t *testing.T) {
	c := New(time.Hour, 100)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("forecast:%d", i%5)
			for j := 0; j < 50; j++ {
				c.Set(key, forecastFor(key))
				c.Get(key)
				c.GetStale(key)
				c.Stats()
			}
		}()
	}
	wg.Wait()

	stats := c.Stats()
	if stats.Hits+stats.Misses != 1000 {
		t.Errorf("lookups = %d, want 1000", stats.Hits+stats.Misses)
	}
}
