package surface

import (
	"go.uber.org/zap"

	"github.com/subtlepseudonym/shadowcaster"
)

// Log writes each update to a logger at debug level
type Log struct {
	Logger *zap.Logger
}

func (l Log) Update(state shadowcaster.State) error {
	light := state.Sun.Vector()
	primary := state.Shadows.Primary
	translate := primary.Offset.Translate()

	l.Logger.Debug("shadow update",
		zap.Stringer("location", state.Location),
		zap.Bool("located", state.Located),
		zap.Float64s("light", light[:]),
		zap.Bool("night", state.Night),
		zap.Float64("zoom", state.Viewport.Zoom),
		zap.Float64s("translate", translate[:]),
		zap.Float64("opacity", primary.Opacity),
		zap.Float64("blur", primary.Blur),
	)
	return nil
}
