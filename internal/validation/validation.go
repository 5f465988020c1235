// Package validation parses and validates the forecast query parameters.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ForecastQuery is the parsed input of GET /forecast. Latitude and Longitude
// are pointers so "absent" is distinguishable from zero; they must be given
// as a pair.
type ForecastQuery struct {
	Latitude     *float64 `validate:"omitempty,min=-90,max=90"`
	Longitude    *float64 `validate:"omitempty,min=-180,max=180"`
	LocationName string   `validate:"omitempty,min=2,max=200"`
	Days         int      `validate:"omitempty,min=1,max=10"`
	Unit         string   `validate:"oneof=celsius fahrenheit"`
	Timezone     string   `validate:"omitempty,max=64"`
}

// HasCoordinates reports whether both latitude and longitude were supplied.
func (q ForecastQuery) HasCoordinates() bool {
	return q.Latitude != nil && q.Longitude != nil
}

// ParseForecastQuery decodes and validates the query string. Unit defaults to
// celsius; Days of zero means no limit. Errors are suitable for 400 bodies.
func ParseForecastQuery(values url.Values) (ForecastQuery, error) {
	q := ForecastQuery{
		LocationName: strings.TrimSpace(values.Get("location_name")),
		Unit:         strings.ToLower(strings.TrimSpace(values.Get("unit"))),
		Timezone:     strings.TrimSpace(values.Get("timezone")),
	}
	if q.Unit == "" {
		q.Unit = "celsius"
	}

	var err error
	if q.Latitude, err = parseFloatParam(values, "lat"); err != nil {
		return ForecastQuery{}, err
	}
	if q.Longitude, err = parseFloatParam(values, "lon"); err != nil {
		return ForecastQuery{}, err
	}
	if (q.Latitude == nil) != (q.Longitude == nil) {
		return ForecastQuery{}, errors.New("lat and lon must be provided together")
	}

	if raw := strings.TrimSpace(values.Get("days")); raw != "" {
		days, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return ForecastQuery{}, fmt.Errorf("days must be an integer, got %q", raw)
		}
		q.Days = days
	}

	if err := validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return ForecastQuery{}, errors.New(fieldMessage(verrs[0]))
		}
		return ForecastQuery{}, err
	}
	return q, nil
}

func parseFloatParam(values url.Values, name string) (*float64, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number, got %q", name, raw)
	}
	return &v, nil
}

// fieldMessage renders one validator failure as a client-facing message.
func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "Latitude":
		return "lat must be between -90 and 90"
	case "Longitude":
		return "lon must be between -180 and 180"
	case "Days":
		return "days must be between 1 and 10"
	case "Unit":
		return "unit must be celsius or fahrenheit"
	case "LocationName":
		return "location_name must be between 2 and 200 characters"
	case "Timezone":
		return "timezone must be at most 64 characters"
	}
	return fmt.Sprintf("invalid value for %s", fe.Field())
}
