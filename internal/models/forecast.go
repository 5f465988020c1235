package models

import "time"

// Unit is a temperature measurement unit.
type Unit string

const (
	UnitCelsius    Unit = "celsius"
	UnitFahrenheit Unit = "fahrenheit"
)

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	return u == UnitCelsius || u == UnitFahrenheit
}

// FromCelsius converts a Celsius temperature to this unit.
func (u Unit) FromCelsius(c float64) float64 {
	if u == UnitFahrenheit {
		return c*9/5 + 32
	}
	return c
}

// Reading is the single temperature chosen for one local calendar date,
// the sample closest to the configured target time (default 14:00 local).
type Reading struct {
	Date        string    `json:"date"` // local calendar date, 2006-01-02
	Temperature float64   `json:"temperature"`
	Unit        Unit      `json:"unit"`
	Time        string    `json:"time"`        // local wall-clock time of the chosen sample, 15:04:05
	SourceTime  time.Time `json:"source_time"` // original UTC timestamp from yr.no
}

// Forecast is the caller-facing forecast result. Cached entries are always
// stored in Celsius; unit conversion and day limiting operate on copies.
type Forecast struct {
	Location     Location   `json:"location"`
	Forecasts    []Reading  `json:"forecasts"` // sorted ascending by Date
	DaysReturned int        `json:"days_returned"`
	Cached       bool       `json:"cached"`
	Stale        bool       `json:"stale"`
	CachedAt     *time.Time `json:"cached_at,omitempty"`
	GeneratedAt  time.Time  `json:"generated_at"`
}

// Clone returns a deep copy. Response shaping must never touch the cached
// original, so every served forecast goes through here first.
func (f Forecast) Clone() Forecast {
	out := f
	out.Forecasts = make([]Reading, len(f.Forecasts))
	copy(out.Forecasts, f.Forecasts)
	if f.CachedAt != nil {
		t := *f.CachedAt
		out.CachedAt = &t
	}
	return out
}

// ConvertUnits returns a copy of f with all readings converted from Celsius
// to unit. A no-op copy for Celsius.
func ConvertUnits(f Forecast, unit Unit) Forecast {
	out := f.Clone()
	if unit == UnitCelsius {
		return out
	}
	for i := range out.Forecasts {
		out.Forecasts[i].Temperature = unit.FromCelsius(out.Forecasts[i].Temperature)
		out.Forecasts[i].Unit = unit
	}
	return out
}

// LimitDays returns a copy of f truncated to the first n readings, with
// DaysReturned recomputed. Fewer than n readings is not an error.
func LimitDays(f Forecast, n int) Forecast {
	out := f.Clone()
	if n > 0 && len(out.Forecasts) > n {
		out.Forecasts = out.Forecasts[:n]
	}
	out.DaysReturned = len(out.Forecasts)
	return out
}
