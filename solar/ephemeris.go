package solar

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/sixdouglas/suncalc"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/sidereal"
	msolar "github.com/soniakeys/meeus/v3/solar"
)

const (
	EphemerisSunCalc = "suncalc"
	EphemerisMeeus   = "meeus"
)

var ErrUnknownEphemeris = errors.New("unknown ephemeris")

// Horizontal is the sun's position in the local horizontal frame, in
// radians. Azimuth is measured from south, positive toward west.
type Horizontal struct {
	Altitude float64
	Azimuth  float64
}

// Ephemeris computes raw sun positions and rise/set times for a place
type Ephemeris interface {
	Position(t time.Time, latitude, longitude float64) Horizontal

	// Times returns the sunrise and sunset bracketing the solar day
	// that contains t. Either value is the zero time when the sun does
	// not cross the horizon that day.
	Times(t time.Time, latitude, longitude float64) (rise, set time.Time)
}

// NewEphemeris returns the named ephemeris, defaulting to SunCalc
func NewEphemeris(name string) (Ephemeris, error) {
	switch name {
	case "", EphemerisSunCalc:
		return SunCalc{}, nil
	case EphemerisMeeus:
		return Meeus{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEphemeris, name)
	}
}

// SunCalc uses the suncalc position model, which is accurate to about
// a degree and cheap enough to run on every refresh.
type SunCalc struct{}

func (SunCalc) Position(t time.Time, latitude, longitude float64) Horizontal {
	pos := suncalc.GetPosition(t, latitude, longitude)
	return Horizontal{
		Altitude: pos.Altitude,
		Azimuth:  pos.Azimuth,
	}
}

func (SunCalc) Times(t time.Time, latitude, longitude float64) (time.Time, time.Time) {
	return riseSet(t, latitude, longitude)
}

// Meeus computes apparent solar coordinates from the VSOP87 derived
// series in Astronomical Algorithms and converts them to the horizontal
// frame using apparent sidereal time.
type Meeus struct{}

func (Meeus) Position(t time.Time, latitude, longitude float64) Horizontal {
	t = t.UTC()
	ra, dec := msolar.ApparentEquatorial(JulianDate(t))

	// local hour angle, with longitude positive east
	st := sidereal.Apparent(julian.TimeToJD(t)).Rad()
	hourAngle := st + longitude*math.Pi/180 - ra.Rad()

	phi := latitude * math.Pi / 180
	delta := dec.Rad()

	sinAlt := math.Sin(phi)*math.Sin(delta) + math.Cos(phi)*math.Cos(delta)*math.Cos(hourAngle)
	azimuth := math.Atan2(
		math.Sin(hourAngle),
		math.Cos(hourAngle)*math.Sin(phi)-math.Tan(delta)*math.Cos(phi),
	)

	return Horizontal{
		Altitude: math.Asin(sinAlt),
		Azimuth:  azimuth,
	}
}

func (Meeus) Times(t time.Time, latitude, longitude float64) (time.Time, time.Time) {
	return riseSet(t, latitude, longitude)
}

// riseSet looks up sunrise and sunset for the local mean solar date of
// t. Using the UTC date instead would pick the wrong day for evenings
// far from the prime meridian.
func riseSet(t time.Time, latitude, longitude float64) (time.Time, time.Time) {
	offset := time.Duration(longitude / 15 * float64(time.Hour))
	date := t.UTC().Add(offset)

	return sunrise.SunriseSunset(latitude, longitude, date.Year(), date.Month(), date.Day())
}
