package service

import (
	"sort"
	"time"

	"github.com/dailytemp/forecast-service/internal/client"
	"github.com/dailytemp/forecast-service/internal/models"
)

// selectDailyReadings reduces the raw timeseries to one reading per local
// calendar date: the sample whose local wall-clock time is closest to the
// target time-of-day. Ties keep the first-seen sample. Input order is not
// trusted; output is sorted ascending by date. Empty input yields an empty
// slice, not an error.
func (p *Pipeline) selectDailyReadings(samples []client.Sample, coord models.Coordinate, tzOverride string) []models.Reading {
	type champion struct {
		distance time.Duration
		reading  models.Reading
	}
	best := make(map[string]champion)

	for _, s := range samples {
		local := p.tz.ToLocal(s.Time, coord.Latitude, coord.Longitude, tzOverride)
		date := local.Format("2006-01-02")

		target := time.Date(local.Year(), local.Month(), local.Day(),
			p.targetHour, p.targetMinute, 0, 0, local.Location())
		distance := local.Sub(target)
		if distance < 0 {
			distance = -distance
		}

		cur, seen := best[date]
		if !seen || distance < cur.distance {
			best[date] = champion{
				distance: distance,
				reading: models.Reading{
					Date:        date,
					Temperature: s.TemperatureC,
					Unit:        models.UnitCelsius,
					Time:        local.Format("15:04:05"),
					SourceTime:  s.Time,
				},
			}
		}
	}

	readings := make([]models.Reading, 0, len(best))
	for _, c := range best {
		readings = append(readings, c.reading)
	}
	sort.Slice(readings, func(i, j int) bool {
		return readings[i].Date < readings[j].Date
	})
	return readings
}
