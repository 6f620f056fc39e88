// Package solar converts a place and an instant into the spherical
// light source used by the building lighting model, and classifies the
// instant as day or night.
package solar

import (
	"math"
	"time"
)

// Radius is the radial distance of the light source. It only affects
// intensity falloff in the lighting model, never shadow geometry.
const Radius = 1.5

const twoPi = 2 * math.Pi

// Position is the sun as a spherical light source. Azimuthal is the
// direction the light comes from, clockwise from north, in [0, 2π).
// Polar is the zenith distance: 0 overhead, π/2 on the horizon and
// greater than π/2 below it.
type Position struct {
	R         float64 `json:"r"`
	Azimuthal float64 `json:"azimuthal"`
	Polar     float64 `json:"polar"`
}

// Default stands in for the sun when the viewer's location is unknown.
// It puts a mid-afternoon sun in the west.
var Default = Position{
	R:         1,
	Azimuthal: 1.5 * math.Pi,
	Polar:     0.3 * math.Pi,
}

// Compute returns the light source for the sun as seen from latitude
// and longitude (degrees) at t. Out of range coordinates yield whatever
// the ephemeris produces, NaN included.
func Compute(eph Ephemeris, latitude, longitude float64, t time.Time) Position {
	hz := eph.Position(t, latitude, longitude)
	return FromHorizontal(hz)
}

// FromHorizontal reframes a raw ephemeris position. The ephemeris
// azimuth is zero at south, so it is rotated by π to be zero at north.
func FromHorizontal(hz Horizontal) Position {
	return Position{
		R:         Radius,
		Azimuthal: NormalizeAzimuth(hz.Azimuth + math.Pi),
		Polar:     math.Pi/2 - hz.Altitude,
	}
}

// NormalizeAzimuth wraps a into [0, 2π)
func NormalizeAzimuth(a float64) float64 {
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}

	// a tiny negative remainder rounds back up to exactly 2π
	if a >= twoPi {
		a = 0
	}
	return a
}

// Altitude is the elevation above the horizon in radians
func (p Position) Altitude() float64 {
	return math.Pi/2 - p.Polar
}

func (p Position) AboveHorizon() bool {
	return p.Polar < math.Pi/2
}

// Vector returns the [r, azimuthal, polar] triple expected by spherical
// light position properties.
func (p Position) Vector() [3]float64 {
	return [3]float64{p.R, p.Azimuthal, p.Polar}
}

// Cartesian returns the unit direction toward the sun with x east,
// y north and z up.
func (p Position) Cartesian() [3]float64 {
	horizontal := math.Sin(p.Polar)
	return [3]float64{
		math.Sin(p.Azimuthal) * horizontal,
		math.Cos(p.Azimuthal) * horizontal,
		math.Cos(p.Polar),
	}
}
