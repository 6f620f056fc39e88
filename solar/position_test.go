package solar

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedEphemeris struct {
	hz        Horizontal
	rise, set time.Time
}

func (f fixedEphemeris) Position(time.Time, float64, float64) Horizontal {
	return f.hz
}

func (f fixedEphemeris) Times(time.Time, float64, float64) (time.Time, time.Time) {
	return f.rise, f.set
}

func TestComputeReframesEphemeris(t *testing.T) {
	eph := fixedEphemeris{hz: Horizontal{Altitude: 0.3, Azimuth: 2.0}}
	pos := Compute(eph, 40.0, -74.0, time.Now())

	assert.Equal(t, Radius, pos.R)
	assert.Equal(t, math.Pi/2-0.3, pos.Polar)
	assert.InDelta(t, 1.2708, pos.Polar, 1e-4)
	assert.InDelta(t, math.Mod(2.0+math.Pi, 2*math.Pi), pos.Azimuthal, 1e-12)
	assert.InDelta(t, 5.1416, pos.Azimuthal, 1e-4)
}

func TestPolarAngleIsComplementOfAltitude(t *testing.T) {
	for _, alt := range []float64{-math.Pi / 2, -0.4, 0, 0.01, 0.3, 1.2, math.Pi / 2} {
		pos := FromHorizontal(Horizontal{Altitude: alt})
		assert.Equal(t, math.Pi/2-alt, pos.Polar, "altitude %v", alt)
		assert.InDelta(t, alt, pos.Altitude(), 1e-15)
	}
}

func TestNormalizeAzimuth(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{2 * math.Pi, 0},
		{3 * math.Pi, math.Pi},
		{-math.Pi / 2, 1.5 * math.Pi},
		{-4 * math.Pi, 0},
		{-1e-18, 0},
	}

	for _, tt := range tests {
		got := NormalizeAzimuth(tt.in)
		assert.InDelta(t, tt.want, got, 1e-12, "normalize %v", tt.in)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.Less(t, got, 2*math.Pi)
	}

	assert.True(t, math.IsNaN(NormalizeAzimuth(math.NaN())))
}

func TestAzimuthalRangeAcrossPlaces(t *testing.T) {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	for _, eph := range []Ephemeris{SunCalc{}, Meeus{}} {
		for lat := -90.0; lat <= 90; lat += 30 {
			for lon := -180.0; lon <= 180; lon += 45 {
				for h := 0; h < 24; h += 5 {
					pos := Compute(eph, lat, lon, start.Add(time.Duration(h)*time.Hour))
					require.GreaterOrEqual(t, pos.Azimuthal, 0.0, "%T %v,%v", eph, lat, lon)
					require.Less(t, pos.Azimuthal, 2*math.Pi, "%T %v,%v", eph, lat, lon)
				}
			}
		}
	}
}

func TestEphemeridesNearSolarNoon(t *testing.T) {
	// New York around solar noon on the June solstice: the sun is due
	// south at about 90 - 40.7 + 23.4 degrees.
	noon := time.Date(2024, time.June, 21, 16, 58, 0, 0, time.UTC)
	wantAltitude := (90 - 40.7128 + 23.44) * math.Pi / 180

	for _, eph := range []Ephemeris{SunCalc{}, Meeus{}} {
		hz := eph.Position(noon, 40.7128, -74.0060)
		assert.InDelta(t, wantAltitude, hz.Altitude, 1*math.Pi/180, "%T altitude", eph)
		assert.InDelta(t, 0, hz.Azimuth, 5*math.Pi/180, "%T azimuth", eph)

		pos := FromHorizontal(hz)
		assert.InDelta(t, math.Pi, pos.Azimuthal, 5*math.Pi/180, "%T light from the south", eph)
	}
}

func TestEphemeridesAgree(t *testing.T) {
	at := time.Date(2023, time.October, 3, 8, 30, 0, 0, time.UTC)
	places := [][2]float64{{51.5, -0.12}, {-33.9, 151.2}, {35.7, 139.7}, {0, 0}}

	for _, p := range places {
		a := SunCalc{}.Position(at, p[0], p[1])
		b := Meeus{}.Position(at, p[0], p[1])
		assert.InDelta(t, a.Altitude, b.Altitude, 0.5*math.Pi/180, "altitude at %v", p)

		// compare azimuths on the circle
		diff := math.Abs(NormalizeAzimuth(a.Azimuth - b.Azimuth + math.Pi) - math.Pi)
		assert.Less(t, diff, 0.5*math.Pi/180, "azimuth at %v", p)
	}
}

func TestNewEphemeris(t *testing.T) {
	eph, err := NewEphemeris("")
	require.NoError(t, err)
	assert.IsType(t, SunCalc{}, eph)

	eph, err = NewEphemeris(EphemerisMeeus)
	require.NoError(t, err)
	assert.IsType(t, Meeus{}, eph)

	_, err = NewEphemeris("vsop")
	assert.ErrorIs(t, err, ErrUnknownEphemeris)
}

func TestVectorAndCartesian(t *testing.T) {
	pos := Position{R: Radius, Azimuthal: math.Pi / 2, Polar: math.Pi / 4}
	assert.Equal(t, [3]float64{Radius, math.Pi / 2, math.Pi / 4}, pos.Vector())

	c := pos.Cartesian()
	assert.InDelta(t, math.Sqrt2/2, c[0], 1e-12)
	assert.InDelta(t, 0, c[1], 1e-12)
	assert.InDelta(t, math.Sqrt2/2, c[2], 1e-12)
	assert.InDelta(t, 1, math.Sqrt(c[0]*c[0]+c[1]*c[1]+c[2]*c[2]), 1e-12)

	assert.True(t, pos.AboveHorizon())
	assert.False(t, Position{Polar: 1.6}.AboveHorizon())
}

func TestJulianDate(t *testing.T) {
	// J2000.0 is 2000-01-01 12:00 TT, which is 11:58:55.816 UTC
	j2000 := time.Date(2000, time.January, 1, 11, 58, 55, 816000000, time.UTC)
	assert.InDelta(t, 2451545.0, JulianDate(j2000), 1e-6)

	assert.Equal(t, int64(0), NumLeapSeconds(time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(22), NumLeapSeconds(j2000))
	assert.Equal(t, int64(27), NumLeapSeconds(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)))
}
