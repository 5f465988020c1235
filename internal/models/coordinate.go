package models

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinate is returned when latitude or longitude is out of range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is a latitude/longitude pair rounded to exactly 4 decimal digits
// (yr.no requirement). Rounding happens at construction so two numerically
// close inputs always map to the same cache key.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewCoordinate validates ranges and rounds both values to 4 decimals.
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	if lat < -90 || lat > 90 {
		return Coordinate{}, fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidCoordinate, lat)
	}
	if lon < -180 || lon > 180 {
		return Coordinate{}, fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidCoordinate, lon)
	}
	return Coordinate{
		Latitude:  Round4(lat),
		Longitude: Round4(lon),
	}, nil
}

// Round4 rounds v to 4 decimal digits.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// CacheKey returns the deterministic cache key for the rounded pair.
func (c Coordinate) CacheKey() string {
	return fmt.Sprintf("forecast:%.4f:%.4f", c.Latitude, c.Longitude)
}

// Location is a coordinate with an optional display name.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
}
