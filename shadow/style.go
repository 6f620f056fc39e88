package shadow

import (
	"math"

	"github.com/subtlepseudonym/shadowcaster/solar"
)

// SunHeight maps the polar angle to 0 at the horizon and 1 at the
// zenith. It goes negative below the horizon and is not clamped.
func SunHeight(sun solar.Position) float64 {
	return 1 - sun.Polar/(math.Pi/2)
}

// Opacity is faint with a low sun and strongest with the sun overhead
func (c Config) Opacity(sun solar.Position) float64 {
	return c.OpacityBase + SunHeight(sun)*c.OpacityRange
}

// Blur grows as the sun nears the horizon and as the map zooms out
func (c Config) Blur(sun solar.Position, zoom float64) float64 {
	return (c.BlurBase - SunHeight(sun)*c.BlurRange) + math.Max(0, c.BlurZoomPivot-zoom)/2
}
