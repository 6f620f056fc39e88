package solar

import (
	"time"
)

// SunTimes is the sunrise and sunset for a place on a given day
type SunTimes struct {
	Sunrise time.Time `json:"sunrise"`
	Sunset  time.Time `json:"sunset"`
}

// Times returns the sunrise and sunset around t. The result is not ok
// during polar day or night, when the ephemeris has no crossing to
// report.
func Times(eph Ephemeris, latitude, longitude float64, t time.Time) (SunTimes, bool) {
	rise, set := eph.Times(t, latitude, longitude)
	if rise.IsZero() || set.IsZero() || !rise.Before(set) {
		return SunTimes{}, false
	}

	return SunTimes{Sunrise: rise, Sunset: set}, true
}

// IsNight reports whether t falls before sunrise or after sunset.
//
// When sunrise and sunset cannot be determined (perpetual day or night
// at high latitudes) it reports false: an unclassifiable instant is
// treated as day.
func IsNight(eph Ephemeris, latitude, longitude float64, t time.Time) bool {
	times, ok := Times(eph, latitude, longitude, t)
	if !ok {
		return false
	}

	return t.Before(times.Sunrise) || t.After(times.Sunset)
}
