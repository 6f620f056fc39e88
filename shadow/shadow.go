// Package shadow turns a sun position into the screen space offset,
// opacity and blur used to draw a single global cast shadow under
// extruded buildings.
package shadow

import (
	"math"

	"github.com/subtlepseudonym/shadowcaster/solar"
)

const (
	DefaultBuildingHeight = 20

	// outer shadow multipliers
	outerOffsetScale  = 1.25
	outerOpacityScale = 0.6
	outerBlurScale    = 1.5
)

// Config holds the tuning constants for shadow projection and styling.
// The horizon threshold and maximum length are aesthetic choices rather
// than physical ones, so they are configurable.
type Config struct {
	HorizonThreshold float64 `yaml:"horizon_threshold"` // polar angle at which shadows vanish
	MaxLength        float64 `yaml:"max_length"`        // in pixels
	ZoomBase         float64 `yaml:"zoom_base"`
	ZoomPivot        float64 `yaml:"zoom_pivot"`
	BuildingHeight   float64 `yaml:"building_height"`

	OpacityBase   float64 `yaml:"opacity_base"`
	OpacityRange  float64 `yaml:"opacity_range"`
	BlurBase      float64 `yaml:"blur_base"`
	BlurRange     float64 `yaml:"blur_range"`
	BlurZoomPivot float64 `yaml:"blur_zoom_pivot"`
}

func DefaultConfig() Config {
	return Config{
		HorizonThreshold: 0.49 * math.Pi,
		MaxLength:        300,
		ZoomBase:         0.8,
		ZoomPivot:        10,
		BuildingHeight:   DefaultBuildingHeight,

		OpacityBase:   0.1,
		OpacityRange:  0.3,
		BlurBase:      6,
		BlurRange:     4,
		BlurZoomPivot: 18,
	}
}

// Offset is a screen space translation in pixels. Positive Y is north.
type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (o Offset) Scale(f float64) Offset {
	return Offset{X: o.X * f, Y: o.Y * f}
}

func (o Offset) Length() float64 {
	return math.Hypot(o.X, o.Y)
}

// Translate returns the offset as a [x, y] pair, the form expected by
// fill-translate paint properties.
func (o Offset) Translate() [2]float64 {
	return [2]float64{o.X, o.Y}
}

// Params describes one shadow treatment
type Params struct {
	Offset  Offset  `json:"offset"`
	Opacity float64 `json:"opacity"`
	Blur    float64 `json:"blur"`
}

// Outer derives the softer, wider secondary shadow from a primary one
func (p Params) Outer() Params {
	return Params{
		Offset:  p.Offset.Scale(outerOffsetScale),
		Opacity: p.Opacity * outerOpacityScale,
		Blur:    p.Blur * outerBlurScale,
	}
}

// Pair is a primary shadow and the outer shadow derived from it
type Pair struct {
	Primary Params `json:"primary"`
	Outer   Params `json:"outer"`
}

func NewPair(primary Params) Pair {
	return Pair{
		Primary: primary,
		Outer:   primary.Outer(),
	}
}

// Compute returns the primary shadow treatment for the sun at the given
// zoom level and building height.
func (c Config) Compute(sun solar.Position, zoom, height float64) Params {
	return Params{
		Offset:  c.Project(sun, zoom, height),
		Opacity: c.Opacity(sun),
		Blur:    c.Blur(sun, zoom),
	}
}

// Pair computes the primary treatment and derives the outer one
func (c Config) Pair(sun solar.Position, zoom, height float64) Pair {
	return NewPair(c.Compute(sun, zoom, height))
}

// Project calls DefaultConfig().Project
func Project(sun solar.Position, zoom, height float64) Offset {
	return DefaultConfig().Project(sun, zoom, height)
}

func Opacity(sun solar.Position) float64 {
	return DefaultConfig().Opacity(sun)
}

func Blur(sun solar.Position, zoom float64) float64 {
	return DefaultConfig().Blur(sun, zoom)
}

func Compute(sun solar.Position, zoom, height float64) Params {
	return DefaultConfig().Compute(sun, zoom, height)
}
