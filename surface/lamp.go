package surface

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.yhsif.com/lifxlan"
	"go.yhsif.com/lifxlan/light"

	"github.com/subtlepseudonym/shadowcaster"
	"github.com/subtlepseudonym/shadowcaster/shadow"
)

const (
	defaultLifxPort         = 56700
	defaultLampTransition   = 2 * time.Second
	defaultRetryBackoff     = 250 * time.Millisecond
	defaultRetryLimit       = 5
	defaultDeviceTimeout    = 10 * time.Second
	defaultHandshakeTimeout = time.Second

	MinKelvin = 2500
	MaxKelvin = 6500
)

type Color struct {
	Hue        uint16
	Saturation uint16
	Brightness uint16
	Kelvin     uint16
}

// Bulb is a light that can fade between colors
type Bulb interface {
	Transition(Color, time.Duration) error
	Label() string
}

// LampColor maps the sun to a white light: dark at night or when the sun
// is below the horizon, otherwise brighter and cooler the higher it is.
func LampColor(state shadowcaster.State) Color {
	if state.Night || !state.Sun.AboveHorizon() {
		return Color{Kelvin: MinKelvin}
	}

	h := math.Max(0, math.Min(1, shadow.SunHeight(state.Sun)))
	return Color{
		Brightness: uint16(math.Floor(h * math.MaxUint16)),
		Kelvin:     uint16(MinKelvin + math.Round(h*(MaxKelvin-MinKelvin))),
	}
}

// Lamp mirrors every state to a bulb. Colors are handed to a worker
// started by Run so that slow bulb I/O never blocks the caller. Only the
// newest color waits while a transition is in flight, and repeated
// colors are not resent.
type Lamp struct {
	mu         sync.Mutex
	bulb       Bulb
	transition time.Duration
	queued     *Color
	pending    chan Color
	log        *zap.Logger
}

func NewLamp(bulb Bulb, transition time.Duration, log *zap.Logger) *Lamp {
	if transition <= 0 {
		transition = defaultLampTransition
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Lamp{
		bulb:       bulb,
		transition: transition,
		pending:    make(chan Color, 1),
		log:        log.With(zap.String("lamp", bulb.Label())),
	}
}

// Update queues the state's color for the worker and returns immediately
func (l *Lamp) Update(state shadowcaster.State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	color := LampColor(state)
	if l.queued != nil && *l.queued == color {
		return nil
	}
	l.queued = &color

	// Update is the only sender, so a drained slot stays free
	select {
	case l.pending <- color:
	default:
		select {
		case <-l.pending:
		default:
		}
		l.pending <- color
	}
	return nil
}

// Run sends queued colors to the bulb until ctx is done
func (l *Lamp) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case color := <-l.pending:
			l.send(color)
		}
	}
}

func (l *Lamp) send(color Color) {
	err := l.bulb.Transition(color, l.transition)
	if err != nil {
		// forget the color so that the next update retries it
		l.mu.Lock()
		if l.queued != nil && *l.queued == color {
			l.queued = nil
		}
		l.mu.Unlock()

		l.log.Error("transition lamp", zap.Error(err))
		return
	}

	l.log.Debug("lamp updated",
		zap.Uint16("brightness", color.Brightness),
		zap.Uint16("kelvin", color.Kelvin),
	)
}

type LifxBulb struct {
	light.Device
	label string // prevent need to contact device for logging
}

// ConnectLifx takes a label (for logging), a host in ip or ip:port
// format and a mac address to locate a bulb on the network, connect
// to it, and retrieve the label and hardware version
func ConnectLifx(label, host, mac string) (*LifxBulb, error) {
	target, err := lifxlan.ParseTarget(mac)
	if err != nil {
		return nil, fmt.Errorf("%s: parse mac address: %w", label, err)
	}

	if _, _, err := net.SplitHostPort(host); err != nil {
		host = fmt.Sprintf("%s:%d", host, defaultLifxPort)
	}

	dev := lifxlan.NewDevice(host, lifxlan.ServiceUDP, target)
	conn, err := dev.Dial()
	if err != nil {
		return nil, fmt.Errorf("%s: dial device: %w", label, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), defaultHandshakeTimeout)
	defer cancel()

	err = dev.Echo(ctx, conn, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: echo device: %w", label, err)
	}

	bulb, err := light.Wrap(ctx, dev, false)
	if err != nil {
		return nil, fmt.Errorf("%s: device is not a light: %w", label, err)
	}

	b := &LifxBulb{
		Device: bulb,
		label:  label,
	}

	err = b.GetHardwareVersion(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("%s: get hardware version: %w", label, err)
	}

	if b.Device.Label().String() != lifxlan.EmptyLabel {
		b.label = strings.ToLower(b.Device.Label().String())
	}

	return b, nil
}

// echo wraps the underlying method of the same name and adds retry logic
func (b *LifxBulb) echo(ctx context.Context, conn net.Conn, payload []byte) error {
	var err error
	for i := 0; i < defaultRetryLimit; i++ {
		err = b.Device.Echo(ctx, conn, payload)
		if err == nil || !errors.Is(err, context.DeadlineExceeded) {
			break
		}

		time.Sleep(time.Duration(i+1) * defaultRetryBackoff)
	}

	return err
}

func (b *LifxBulb) Transition(color Color, transition time.Duration) error {
	conn, err := b.Dial()
	if err != nil {
		return fmt.Errorf("%s: dial: %w", b.label, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), defaultDeviceTimeout)
	defer cancel()

	err = b.echo(ctx, conn, nil)
	if err != nil {
		return fmt.Errorf("%s: echo device: %w", b.label, err)
	}

	if color.Brightness == 0 {
		err = b.SetLightPower(ctx, conn, lifxlan.PowerOff, transition, true)
		if err != nil {
			return fmt.Errorf("%s: set light power: %w", b.label, err)
		}
		return nil
	}

	power, err := b.GetPower(ctx, conn)
	if err != nil {
		return fmt.Errorf("%s: get power: %w", b.label, err)
	}

	lifxColor := b.Device.SanitizeColor(lifxlan.Color{
		Hue:        color.Hue,
		Saturation: color.Saturation,
		Brightness: color.Brightness,
		Kelvin:     color.Kelvin,
	})

	// Bring a powered off bulb up from zero brightness
	if power == lifxlan.PowerOff {
		clr := lifxColor
		clr.Brightness = 0

		err = b.SetColor(ctx, conn, &clr, time.Millisecond, true)
		if err != nil {
			return fmt.Errorf("%s: reset color: %w", b.label, err)
		}

		err = b.SetPower(ctx, conn, lifxlan.PowerOn, true)
		if err != nil {
			return fmt.Errorf("%s: set power: %w", b.label, err)
		}
	}

	err = b.SetColor(ctx, conn, &lifxColor, transition, true)
	if err != nil {
		return fmt.Errorf("%s: set color: %w", b.label, err)
	}

	return nil
}

func (b *LifxBulb) Label() string {
	return b.label
}

func (b *LifxBulb) String() string {
	return b.Device.HardwareVersion().String()
}
