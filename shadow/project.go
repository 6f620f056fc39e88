package shadow

import (
	"math"

	"github.com/subtlepseudonym/shadowcaster/solar"
)

// Project returns how far a building of the given height should be
// displaced to draw its shadow.
//
// No shadow is cast once the sun is within the horizon threshold, which
// sits slightly above the geometric horizon so that shadows fade out
// before they become extreme. Shadow length is scaled down
// geometrically as the map zooms out so that it approximates a constant
// ground length, and is capped at MaxLength pixels.
//
// The offset points along the light's azimuthal direction with zero
// toward positive Y. NaN inputs propagate to NaN outputs.
func (c Config) Project(sun solar.Position, zoom, height float64) Offset {
	if sun.Polar >= c.HorizonThreshold {
		return Offset{}
	}

	length := math.Tan(sun.Polar) * height
	zoomScale := math.Pow(c.ZoomBase, zoom-c.ZoomPivot)

	adjusted := math.Min(length*zoomScale, c.MaxLength)
	adjusted = math.Max(adjusted, -c.MaxLength) // negative heights

	return Offset{
		X: math.Sin(sun.Azimuthal) * adjusted,
		Y: math.Cos(sun.Azimuthal) * adjusted,
	}
}
