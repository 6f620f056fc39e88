// Package shadowcaster keeps the sun and building shadow state for a
// map viewer in step with the clock, the viewer's location and the map
// viewport, and pushes every change to rendering surfaces.
package shadowcaster

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/subtlepseudonym/shadowcaster/shadow"
	"github.com/subtlepseudonym/shadowcaster/solar"
)

const (
	DefaultInterval = time.Minute
	DefaultZoom     = 13
)

// Viewport is the map camera as reported by the renderer
type Viewport struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Zoom      float64 `json:"zoom"`
}

// State is everything a surface needs to light and shade buildings
type State struct {
	Location       Location       `json:"location"`
	Located        bool           `json:"located"`
	Sun            solar.Position `json:"sun"`
	Night          bool           `json:"night"`
	SunTimes       solar.SunTimes `json:"sun_times"`
	Viewport       Viewport       `json:"viewport"`
	BuildingHeight float64        `json:"building_height"`
	Shadows        shadow.Pair    `json:"shadows"`
	ComputedAt     time.Time      `json:"computed_at"`
}

// Surface receives every recomputed State
type Surface interface {
	Update(State) error
}

// SurfaceFunc adapts a function to a Surface
type SurfaceFunc func(State) error

func (f SurfaceFunc) Update(s State) error {
	return f(s)
}

type SchedulerConfig struct {
	Interval time.Duration
	Shadow   shadow.Config
	Zoom     float64
	Clock    func() time.Time
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval: DefaultInterval,
		Shadow:   shadow.DefaultConfig(),
		Zoom:     DefaultZoom,
		Clock:    time.Now,
	}
}

// Scheduler owns the current State. Its handlers (Tick, Locate,
// Unlocated, Move and SetBuildingHeight) are synchronous and must all be
// called from one goroutine; Run does exactly that. Notify and
// NotifyHeight may be called from anywhere.
type Scheduler struct {
	eph      solar.Ephemeris
	shadows  shadow.Config
	interval time.Duration
	clock    func() time.Time
	surfaces []Surface
	log      *zap.Logger

	state   State
	started bool // set once a location, or its absence, is known

	ticks     chan struct{}
	viewports chan Viewport
	heights   chan float64
}

func NewScheduler(eph solar.Ephemeris, cfg SchedulerConfig, log *zap.Logger, surfaces ...Surface) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Scheduler{
		eph:      eph,
		shadows:  cfg.Shadow,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		surfaces: surfaces,
		log:      log,
		state: State{
			Sun:            solar.Default,
			Viewport:       Viewport{Zoom: cfg.Zoom},
			BuildingHeight: cfg.Shadow.BuildingHeight,
		},
		ticks:     make(chan struct{}, 1),
		viewports: make(chan Viewport, 1),
		heights:   make(chan float64, 1),
	}
}

// State returns a copy of the current state. It must not be called
// concurrently with Run.
func (s *Scheduler) State() State {
	return s.state
}

// Tick recomputes the sun and day/night state for the last known
// location, then the shadows.
func (s *Scheduler) Tick() {
	if s.state.Located {
		s.computeSun()
	}
	s.refresh()
}

// Locate records a new location and recomputes everything
func (s *Scheduler) Locate(loc Location) {
	s.state.Location = loc
	s.state.Located = true
	s.started = true

	if s.state.Viewport.Latitude == 0 && s.state.Viewport.Longitude == 0 {
		s.state.Viewport.Latitude = loc.Latitude
		s.state.Viewport.Longitude = loc.Longitude
	}

	s.log.Info("location resolved", zap.Stringer("location", loc))
	s.computeSun()
	s.refresh()
}

// Unlocated falls back to the default sun when no location could be
// found. A previously known location is kept.
func (s *Scheduler) Unlocated(err error) {
	if s.state.Located {
		s.log.Warn("locate failed, keeping last location", zap.Error(err))
		return
	}

	s.log.Warn("location unavailable, using default sun", zap.Error(err))
	s.started = true
	s.state.Sun = solar.Default
	s.state.Night = false
	s.state.SunTimes = solar.SunTimes{}
	s.refresh()
}

// Move recomputes shadows for a new viewport using the current sun,
// without querying the ephemeris.
func (s *Scheduler) Move(vp Viewport) {
	s.state.Viewport = vp
	s.refresh()
}

func (s *Scheduler) SetBuildingHeight(height float64) {
	s.state.BuildingHeight = height
	s.refresh()
}

func (s *Scheduler) computeSun() {
	now := s.clock()
	lat, lon := s.state.Location.Latitude, s.state.Location.Longitude

	s.state.Sun = solar.Compute(s.eph, lat, lon, now)
	s.state.Night = solar.IsNight(s.eph, lat, lon, now)
	s.state.SunTimes, _ = solar.Times(s.eph, lat, lon, now)

	s.log.Debug("sun position",
		zap.Float64("azimuthal", s.state.Sun.Azimuthal),
		zap.Float64("polar", s.state.Sun.Polar),
		zap.Bool("night", s.state.Night),
	)
}

func (s *Scheduler) refresh() {
	s.state.Shadows = s.shadows.Pair(s.state.Sun, s.state.Viewport.Zoom, s.state.BuildingHeight)
	s.state.ComputedAt = s.clock()

	if !s.started {
		return
	}

	for _, surface := range s.surfaces {
		err := surface.Update(s.state)
		if err != nil {
			s.log.Error("update surface", zap.Error(err))
		}
	}
}

// Notify submits a viewport change to a running scheduler. Only the
// latest pending viewport is kept.
func (s *Scheduler) Notify(vp Viewport) {
	offer(s.viewports, vp)
}

// NotifyHeight submits a building height change to a running scheduler
func (s *Scheduler) NotifyHeight(height float64) {
	offer(s.heights, height)
}

func (s *Scheduler) requestTick() {
	offer(s.ticks, struct{}{})
}

// offer replaces any pending value in a single slot channel
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}

		select {
		case <-ch:
		default:
		}
	}
}

type locateResult struct {
	loc Location
	err error
}

// Run acquires the location once, then serializes periodic ticks,
// sunrise/sunset ticks and viewport changes until ctx is done. The
// timers are released before Run returns.
func (s *Scheduler) Run(ctx context.Context, locator Locator) error {
	c := cron.New(cron.WithLogger(cronLogger{s.log.Sugar()}))
	c.Schedule(cron.Every(s.interval), cron.FuncJob(s.requestTick))
	c.Start()
	defer func() {
		<-c.Stop().Done()
		s.log.Debug("refresh timers stopped")
	}()

	located := make(chan locateResult, 1)
	if locator == nil {
		located <- locateResult{err: ErrLocationUnavailable}
	} else {
		go func() {
			loc, err := locator.Locate(ctx)
			located <- locateResult{loc: loc, err: err}
		}()
	}

	var boundary cron.EntryID
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ticks:
			s.Tick()
		case res := <-located:
			located = nil
			if res.err != nil {
				s.Unlocated(res.err)
				continue
			}

			s.Locate(res.loc)
			if boundary != 0 {
				c.Remove(boundary)
			}
			schedule := BoundarySchedule{Location: res.loc, Ephemeris: s.eph}
			boundary = c.Schedule(schedule, cron.FuncJob(s.requestTick))
			s.log.Debug("next sun boundary", zap.Time("at", schedule.Next(s.clock())))
		case vp := <-s.viewports:
			s.handleViewport(vp)
		case height := <-s.heights:
			s.drainTick()
			s.SetBuildingHeight(height)
		}
	}
}

// handleViewport applies a pending tick before the viewport so shadows
// are always computed from the newest sun.
func (s *Scheduler) handleViewport(vp Viewport) {
	s.drainTick()
	s.Move(vp)
}

func (s *Scheduler) drainTick() {
	select {
	case <-s.ticks:
		s.Tick()
	default:
	}
}

// cronLogger sends cron's logs through zap
//
// This implements robfig/cron.Logger
type cronLogger struct {
	*zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, append(keysAndValues, "error", err)...)
}
