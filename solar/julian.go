package solar

import (
	"time"
)

const (
	EpochJulianDate       = 2440587.5
	TerrestrialTimeOffset = 42.184 // TT - UTC before the first leap second, in seconds
	SecondsPerDay         = 86400  // not including leap seconds
)

// JulianDate returns the Julian ephemeris date for a particular time,
// including leap seconds. The result is on the Terrestrial Time scale,
// which is what the solar coordinate series in meeus expect.
//
// The time package does not count leap seconds, so they must be added
// here. Unix time smears them away entirely
// https://developers.google.com/time/smear
func JulianDate(t time.Time) float64 {
	seconds := float64(t.Unix()) + float64(t.Nanosecond())/1e9
	terrestrial := seconds + float64(NumLeapSeconds(t)) + TerrestrialTimeOffset
	return terrestrial/SecondsPerDay + EpochJulianDate
}
