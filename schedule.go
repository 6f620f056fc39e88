package shadowcaster

import (
	"time"

	"github.com/subtlepseudonym/shadowcaster/solar"
)

const boundaryRetry = time.Hour

// BoundarySchedule fires at each sunrise and sunset for a location so
// that day/night state flips on time rather than on the next periodic
// refresh.
//
// This implements robfig/cron.Schedule
type BoundarySchedule struct {
	Location  Location
	Ephemeris solar.Ephemeris
}

// Next returns the first sunrise or sunset strictly after now. During
// polar day or night there is no boundary to wait for, so it checks
// again in an hour.
func (b BoundarySchedule) Next(now time.Time) time.Time {
	for day := 0; day < 3; day++ {
		at := now.AddDate(0, 0, day)
		times, ok := solar.Times(b.Ephemeris, b.Location.Latitude, b.Location.Longitude, at)
		if !ok {
			return now.Add(boundaryRetry)
		}

		if times.Sunrise.After(now) {
			return times.Sunrise
		}
		if times.Sunset.After(now) {
			return times.Sunset
		}
	}

	return now.Add(boundaryRetry)
}
