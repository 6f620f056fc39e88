package surface

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/subtlepseudonym/shadowcaster"
	"github.com/subtlepseudonym/shadowcaster/shadow"
	"github.com/subtlepseudonym/shadowcaster/solar"
)

type recorder struct {
	mu     sync.Mutex
	states []shadowcaster.State
	err    error
}

func (r *recorder) Update(s shadowcaster.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.states = append(r.states, s)
	return nil
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *recorder) latest() (shadowcaster.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return shadowcaster.State{}, false
	}
	return r.states[len(r.states)-1], true
}

func testState(sun solar.Position, night bool) shadowcaster.State {
	cfg := shadow.DefaultConfig()
	return shadowcaster.State{
		Location:       shadowcaster.Location{Latitude: 40.7128, Longitude: -74.006},
		Located:        true,
		Sun:            sun,
		Night:          night,
		Viewport:       shadowcaster.Viewport{Latitude: 40.7128, Longitude: -74.006, Zoom: 13},
		BuildingHeight: cfg.BuildingHeight,
		Shadows:        cfg.Pair(sun, 13, cfg.BuildingHeight),
		ComputedAt:     time.Date(2024, 6, 21, 16, 0, 0, 0, time.UTC),
	}
}

func TestQueueHoldsUntilReady(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(rec)

	first := testState(solar.Default, false)
	second := testState(solar.Position{R: solar.Radius, Azimuthal: 1, Polar: 0.8}, false)

	require.NoError(t, q.Update(first))
	require.NoError(t, q.Update(second))
	assert.False(t, q.IsReady())
	assert.Equal(t, 0, rec.len())

	require.NoError(t, q.Ready())
	assert.True(t, q.IsReady())
	require.Equal(t, 1, rec.len())
	assert.Equal(t, second, rec.states[0], "only the newest pending state is delivered")

	require.NoError(t, q.Update(first))
	assert.Equal(t, 2, rec.len())
}

func TestQueueReadyWithoutPending(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(rec)

	require.NoError(t, q.Ready())
	assert.Equal(t, 0, rec.len())
}

func TestQueueForwardsErrors(t *testing.T) {
	failure := errors.New("renderer gone")
	rec := &recorder{err: failure}
	q := NewQueue(rec)

	require.NoError(t, q.Update(testState(solar.Default, false)))
	assert.ErrorIs(t, q.Ready(), failure)
	assert.ErrorIs(t, q.Update(testState(solar.Default, false)), failure)
}

func TestLogSurface(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Log{Logger: zap.New(core)}

	require.NoError(t, l.Update(testState(solar.Default, false)))

	entries := logs.FilterMessage("shadow update").All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "40.7128,-74.0060", fields["location"])
	assert.Equal(t, false, fields["night"])
	assert.Equal(t, 13.0, fields["zoom"])
	assert.Contains(t, fields, "translate")
	assert.Contains(t, fields, "light")
}

func TestLampColor(t *testing.T) {
	tests := []struct {
		name       string
		sun        solar.Position
		night      bool
		brightness uint16
		kelvin     uint16
	}{
		{
			name:       "night",
			sun:        solar.Position{R: solar.Radius, Polar: 0.5},
			night:      true,
			brightness: 0,
			kelvin:     MinKelvin,
		},
		{
			name:       "below horizon",
			sun:        solar.Position{R: solar.Radius, Polar: math.Pi/2 + 0.1},
			brightness: 0,
			kelvin:     MinKelvin,
		},
		{
			name:       "zenith",
			sun:        solar.Position{R: solar.Radius, Polar: 0},
			brightness: math.MaxUint16,
			kelvin:     MaxKelvin,
		},
		{
			name:       "halfway",
			sun:        solar.Position{R: solar.Radius, Polar: math.Pi / 4},
			brightness: uint16(math.Floor(0.5 * math.MaxUint16)),
			kelvin:     4500,
		},
		{
			name:       "horizon",
			sun:        solar.Position{R: solar.Radius, Polar: math.Pi / 2},
			brightness: 0,
			kelvin:     MinKelvin,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			color := LampColor(testState(test.sun, test.night))
			assert.Equal(t, test.brightness, color.Brightness)
			assert.Equal(t, test.kelvin, color.Kelvin)
			assert.Zero(t, color.Hue)
			assert.Zero(t, color.Saturation)
		})
	}
}

type fakeBulb struct {
	mu          sync.Mutex
	colors      []Color
	transitions []time.Duration
	err         error

	// when set, Transition reports each color on entered and waits for
	// release to be closed
	entered chan Color
	release chan struct{}
}

func (b *fakeBulb) Transition(c Color, d time.Duration) error {
	if b.entered != nil {
		b.entered <- c
		<-b.release
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.colors = append(b.colors, c)
	b.transitions = append(b.transitions, d)
	return nil
}

func (b *fakeBulb) Label() string {
	return "desk"
}

func (b *fakeBulb) setErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *fakeBulb) sent() ([]Color, []time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Color(nil), b.colors...), append([]time.Duration(nil), b.transitions...)
}

func runLamp(t *testing.T, lamp *Lamp) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		lamp.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestLampSkipsUnchangedColor(t *testing.T) {
	bulb := &fakeBulb{}
	lamp := NewLamp(bulb, 0, nil)
	runLamp(t, lamp)

	noon := testState(solar.Position{R: solar.Radius, Polar: 0.2}, false)
	require.NoError(t, lamp.Update(noon))
	require.NoError(t, lamp.Update(noon))
	require.NoError(t, lamp.Update(testState(noon.Sun, true)))

	// the worker sends in order, so the night color arrives last
	require.Eventually(t, func() bool {
		colors, _ := bulb.sent()
		return len(colors) > 0 && colors[len(colors)-1].Brightness == 0
	}, time.Second, 5*time.Millisecond)

	colors, transitions := bulb.sent()
	require.Len(t, colors, 2)
	assert.Equal(t, LampColor(noon), colors[0])
	assert.Equal(t, defaultLampTransition, transitions[0])
}

func TestLampRetriesAfterError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	bulb := &fakeBulb{err: errors.New("no route to host")}
	lamp := NewLamp(bulb, time.Second, zap.New(core))
	runLamp(t, lamp)

	state := testState(solar.Position{R: solar.Radius, Polar: 0.2}, false)
	require.NoError(t, lamp.Update(state))
	require.Eventually(t, func() bool {
		return logs.FilterMessage("transition lamp").Len() == 1
	}, time.Second, 5*time.Millisecond)

	entry := logs.FilterMessage("transition lamp").All()[0]
	assert.Equal(t, "desk", entry.ContextMap()["lamp"])
	assert.Contains(t, entry.ContextMap()["error"], "no route to host")

	bulb.setErr(nil)
	require.NoError(t, lamp.Update(state))
	require.Eventually(t, func() bool {
		colors, _ := bulb.sent()
		return len(colors) == 1
	}, time.Second, 5*time.Millisecond)

	_, transitions := bulb.sent()
	assert.Equal(t, time.Second, transitions[0])
}

func TestLampUpdateDoesNotWaitForBulb(t *testing.T) {
	bulb := &fakeBulb{
		entered: make(chan Color, 4),
		release: make(chan struct{}),
	}
	lamp := NewLamp(bulb, 0, nil)
	runLamp(t, lamp)

	first := testState(solar.Position{R: solar.Radius, Polar: 0.2}, false)
	second := testState(solar.Position{R: solar.Radius, Polar: 0.6}, false)
	third := testState(solar.Position{R: solar.Radius, Polar: 1.0}, false)

	require.NoError(t, lamp.Update(first))
	select {
	case c := <-bulb.entered:
		assert.Equal(t, LampColor(first), c)
	case <-time.After(time.Second):
		t.Fatal("worker did not start a transition")
	}

	// the bulb is stuck on the first color
	updated := make(chan struct{})
	go func() {
		lamp.Update(second)
		lamp.Update(third)
		close(updated)
	}()
	select {
	case <-updated:
	case <-time.After(time.Second):
		t.Fatal("update blocked on a busy bulb")
	}

	close(bulb.release)
	require.Eventually(t, func() bool {
		colors, _ := bulb.sent()
		return len(colors) == 2
	}, time.Second, 5*time.Millisecond)

	colors, _ := bulb.sent()
	assert.Equal(t, []Color{LampColor(first), LampColor(third)}, colors, "only the newest waiting color is sent")
}

func TestLampDoesNotStallScheduler(t *testing.T) {
	bulb := &fakeBulb{
		entered: make(chan Color, 4),
		release: make(chan struct{}),
	}
	defer close(bulb.release)

	log := zaptest.NewLogger(t)
	lamp := NewLamp(bulb, 0, log)
	runLamp(t, lamp)

	rec := &recorder{}
	sched := shadowcaster.NewScheduler(solar.SunCalc{}, shadowcaster.DefaultSchedulerConfig(), log, lamp, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sched.Run(ctx, nil)
	}()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	select {
	case <-bulb.entered:
	case <-time.After(time.Second):
		t.Fatal("lamp never received the first state")
	}

	sched.Notify(shadowcaster.Viewport{Zoom: 15})
	require.Eventually(t, func() bool {
		state, ok := rec.latest()
		return ok && state.Viewport.Zoom == 15
	}, time.Second, 5*time.Millisecond, "viewport change waited on the bulb")
}
