// Package timezone maps coordinates to IANA zones and converts instants to
// local wall-clock time. Zone data is embedded so lookups work without a
// system tz database.
package timezone

import (
	"time"
	_ "time/tzdata"

	"github.com/ringsaturn/tzf"
	"go.uber.org/zap"
)

// Resolver resolves coordinates (plus an optional override) to a time.Location.
type Resolver struct {
	finder tzf.F
	logger *zap.Logger
}

// NewResolver builds a Resolver backed by the embedded tzf polygon index.
func NewResolver(logger *zap.Logger) (*Resolver, error) {
	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, err
	}
	return &Resolver{finder: finder, logger: logger}, nil
}

// ZoneName returns the IANA zone name for the coordinates, or "UTC" when no
// zone can be determined (open ocean, polar regions).
func (r *Resolver) ZoneName(lat, lon float64) string {
	name := r.finder.GetTimezoneName(lon, lat)
	if name == "" {
		if r.logger != nil {
			r.logger.Warn("no timezone for coordinates, using UTC",
				zap.Float64("lat", lat), zap.Float64("lon", lon))
		}
		return "UTC"
	}
	return name
}

// Location resolves the zone to use for the coordinates. A non-empty override
// that is not a valid IANA name falls back to auto-detection, not to UTC.
func (r *Resolver) Location(lat, lon float64, override string) *time.Location {
	if override != "" {
		loc, err := time.LoadLocation(override)
		if err == nil {
			return loc
		}
		if r.logger != nil {
			r.logger.Warn("invalid timezone override, falling back to auto-detection",
				zap.String("override", override), zap.Error(err))
		}
	}
	loc, err := time.LoadLocation(r.ZoneName(lat, lon))
	if err != nil {
		return time.UTC
	}
	return loc
}

// ToLocal converts a UTC instant to wall-clock time in the zone for the
// coordinates, honoring the override rules of Location.
func (r *Resolver) ToLocal(utc time.Time, lat, lon float64, override string) time.Time {
	return utc.In(r.Location(lat, lon, override))
}

// Validate reports whether name is a loadable IANA zone name.
func (r *Resolver) Validate(name string) bool {
	_, err := time.LoadLocation(name)
	return err == nil
}
