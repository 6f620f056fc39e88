package surface

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/subtlepseudonym/shadowcaster"
	"github.com/subtlepseudonym/shadowcaster/shadow"
	"github.com/subtlepseudonym/shadowcaster/solar"
)

// Notifier forwards renderer events to the scheduler
type Notifier interface {
	Notify(shadowcaster.Viewport)
	NotifyHeight(float64)
}

// HTTP keeps the latest state and serves it as JSON to map clients.
// Clients report their viewport back with POST /viewport.
type HTTP struct {
	mu    sync.RWMutex
	state shadowcaster.State
	ok    bool

	eph      solar.Ephemeris
	shadows  shadow.Config
	notifier Notifier
	log      *zap.Logger
}

func NewHTTP(eph solar.Ephemeris, shadows shadow.Config, notifier Notifier, log *zap.Logger) *HTTP {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTP{
		eph:      eph,
		shadows:  shadows,
		notifier: notifier,
		log:      log,
	}
}

func (h *HTTP) Update(state shadowcaster.State) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
	h.ok = true
	return nil
}

// SetNotifier routes viewport and height requests to n. Until it is
// called those requests are rejected.
func (h *HTTP) SetNotifier(n Notifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifier = n
}

func (h *HTTP) getNotifier() Notifier {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.notifier
}

func (h *HTTP) current() (shadowcaster.State, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state, h.ok
}

func (h *HTTP) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.HealthHandler)
	mux.HandleFunc("GET /state", h.StateHandler)
	mux.HandleFunc("GET /shadow", h.ShadowHandler)
	mux.HandleFunc("GET /sun", h.SunHandler)
	mux.HandleFunc("POST /viewport", h.ViewportHandler)
	mux.HandleFunc("POST /height", h.HeightHandler)
	return mux
}

type lightResponse struct {
	Anchor    string     `json:"anchor"`
	Position  [3]float64 `json:"position"` // [r, azimuthal, polar]
	Direction [3]float64 `json:"direction"`
}

type shadowResponse struct {
	Translate [2]float64 `json:"translate"`
	Opacity   float64    `json:"opacity"`
	Blur      float64    `json:"blur"`
}

type stateResponse struct {
	Location   *shadowcaster.Location `json:"location,omitempty"`
	Light      lightResponse          `json:"light"`
	Night      bool                   `json:"night"`
	Sunrise    *time.Time             `json:"sunrise,omitempty"`
	Sunset     *time.Time             `json:"sunset,omitempty"`
	Viewport   shadowcaster.Viewport  `json:"viewport"`
	Shadow     shadowResponse         `json:"shadow"`
	Outer      shadowResponse         `json:"outer_shadow"`
	ComputedAt time.Time              `json:"computed_at"`
}

func newLightResponse(sun solar.Position) lightResponse {
	return lightResponse{
		Anchor:    "map",
		Position:  sun.Vector(),
		Direction: sun.Cartesian(),
	}
}

func newShadowResponse(p shadow.Params) shadowResponse {
	return shadowResponse{
		Translate: p.Offset.Translate(),
		Opacity:   p.Opacity,
		Blur:      p.Blur,
	}
}

func newStateResponse(state shadowcaster.State) stateResponse {
	res := stateResponse{
		Light:      newLightResponse(state.Sun),
		Night:      state.Night,
		Viewport:   state.Viewport,
		Shadow:     newShadowResponse(state.Shadows.Primary),
		Outer:      newShadowResponse(state.Shadows.Outer),
		ComputedAt: state.ComputedAt,
	}

	if state.Located {
		loc := state.Location
		res.Location = &loc
	}
	if !state.SunTimes.Sunrise.IsZero() {
		sunrise, sunset := state.SunTimes.Sunrise, state.SunTimes.Sunset
		res.Sunrise, res.Sunset = &sunrise, &sunset
	}

	return res
}

func (h *HTTP) HealthHandler(w http.ResponseWriter, r *http.Request) {
	_, ok := h.current()
	h.writeJSON(w, http.StatusOK, map[string]bool{"ready": ok})
}

func (h *HTTP) StateHandler(w http.ResponseWriter, r *http.Request) {
	state, ok := h.current()
	if !ok {
		h.writeError(w, http.StatusServiceUnavailable, "sun position not computed yet")
		return
	}

	h.writeJSON(w, http.StatusOK, newStateResponse(state))
}

// ShadowHandler projects shadows from the current sun for the zoom and
// height in the query, defaulting to the current viewport and height.
func (h *HTTP) ShadowHandler(w http.ResponseWriter, r *http.Request) {
	state, ok := h.current()
	if !ok {
		h.writeError(w, http.StatusServiceUnavailable, "sun position not computed yet")
		return
	}

	zoom, err := floatParam(r, "zoom", state.Viewport.Zoom)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	height, err := floatParam(r, "height", state.BuildingHeight)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pair := h.shadows.Pair(state.Sun, zoom, height)
	h.writeJSON(w, http.StatusOK, map[string]shadowResponse{
		"shadow":       newShadowResponse(pair.Primary),
		"outer_shadow": newShadowResponse(pair.Outer),
	})
}

type sunResponse struct {
	Location shadowcaster.Location `json:"location"`
	At       time.Time             `json:"at"`
	Light    lightResponse         `json:"light"`
	Altitude float64               `json:"altitude"`
	Night    bool                  `json:"night"`
	Sunrise  *time.Time            `json:"sunrise,omitempty"`
	Sunset   *time.Time            `json:"sunset,omitempty"`
}

// SunHandler computes the sun for any place and time without touching
// the scheduler's state.
func (h *HTTP) SunHandler(w http.ResponseWriter, r *http.Request) {
	state, _ := h.current()

	lat, err := floatParam(r, "lat", state.Location.Latitude)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lon, err := floatParam(r, "lon", state.Location.Longitude)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	loc := shadowcaster.Location{Latitude: lat, Longitude: lon}
	if !loc.Valid() {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("location %s out of range", loc))
		return
	}

	at := time.Now()
	if param := r.FormValue("at"); param != "" {
		at, err = time.Parse(time.RFC3339, param)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("parse at param %q: %s", param, err))
			return
		}
	}

	sun := solar.Compute(h.eph, lat, lon, at)
	res := sunResponse{
		Location: loc,
		At:       at,
		Light:    newLightResponse(sun),
		Altitude: sun.Altitude(),
		Night:    solar.IsNight(h.eph, lat, lon, at),
	}
	if times, ok := solar.Times(h.eph, lat, lon, at); ok {
		res.Sunrise, res.Sunset = &times.Sunrise, &times.Sunset
	}

	h.writeJSON(w, http.StatusOK, res)
}

// ViewportHandler accepts lat, lon and zoom form values from a map
// client's move and zoom events.
func (h *HTTP) ViewportHandler(w http.ResponseWriter, r *http.Request) {
	notifier := h.getNotifier()
	if notifier == nil {
		h.writeError(w, http.StatusServiceUnavailable, "scheduler not attached")
		return
	}
	state, _ := h.current()

	if r.FormValue("zoom") == "" {
		h.writeError(w, http.StatusBadRequest, "zoom parameter is required")
		return
	}

	var vp shadowcaster.Viewport
	var err error
	for _, p := range []struct {
		name string
		dst  *float64
		def  float64
	}{
		{"lat", &vp.Latitude, state.Viewport.Latitude},
		{"lon", &vp.Longitude, state.Viewport.Longitude},
		{"zoom", &vp.Zoom, state.Viewport.Zoom},
	} {
		*p.dst, err = floatParam(r, p.name, p.def)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	notifier.Notify(vp)
	h.writeJSON(w, http.StatusAccepted, vp)
}

func (h *HTTP) HeightHandler(w http.ResponseWriter, r *http.Request) {
	notifier := h.getNotifier()
	if notifier == nil {
		h.writeError(w, http.StatusServiceUnavailable, "scheduler not attached")
		return
	}
	if r.FormValue("height") == "" {
		h.writeError(w, http.StatusBadRequest, "height parameter is required")
		return
	}

	height, err := floatParam(r, "height", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	notifier.NotifyHeight(height)
	h.writeJSON(w, http.StatusAccepted, map[string]float64{"height": height})
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	param := r.FormValue(name)
	if param == "" {
		return def, nil
	}

	f, err := strconv.ParseFloat(param, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s param %q: %w", name, param, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s param %q must be finite", name, param)
	}
	return f, nil
}

// writeJSON encodes v before writing the header so that an encoding
// failure can still be reported as a 500
func (h *HTTP) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	err := json.NewEncoder(&buf).Encode(v)
	if err != nil {
		h.log.Error("encode response", zap.Error(err))
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(`{"error": "unable to encode response"}` + "\n")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (h *HTTP) writeError(w http.ResponseWriter, status int, msg string) {
	h.log.Debug("request failed", zap.Int("status", status), zap.String("error", msg))
	h.writeJSON(w, status, map[string]string{"error": msg})
}
