package shadowcaster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	cerrors "cloudeng.io/errors"
)

const (
	DefaultGeoIPURL      = "http://ip-api.com/json/?fields=status,message,lat,lon"
	defaultLocateTimeout = 5 * time.Second
)

// ErrLocationUnavailable is returned when a Locator cannot determine
// the viewer's position. Callers fall back to a default sun rather
// than failing.
var ErrLocationUnavailable = errors.New("location unavailable")

type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

func (l Location) String() string {
	return fmt.Sprintf("%.4f,%.4f", l.Latitude, l.Longitude)
}

// Locator is a one shot source of the viewer's location
type Locator interface {
	Locate(ctx context.Context) (Location, error)
}

// StaticLocator always returns the configured location
type StaticLocator struct {
	Location Location
}

func (s StaticLocator) Locate(context.Context) (Location, error) {
	if !s.Location.Valid() {
		return Location{}, fmt.Errorf("%w: invalid static location %s", ErrLocationUnavailable, s.Location)
	}
	return s.Location, nil
}

// HTTPLocator resolves the host's approximate location with an IP
// geolocation service that answers with ip-api.com style JSON.
type HTTPLocator struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

type geoIPResponse struct {
	Status    string  `json:"status"`
	Message   string  `json:"message"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

func (h HTTPLocator) Locate(ctx context.Context) (Location, error) {
	url := h.URL
	if url == "" {
		url = DefaultGeoIPURL
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultLocateTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Location{}, fmt.Errorf("new request: %w", err)
	}

	res, err := client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("%w: geoip request: %s", ErrLocationUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("%w: geoip response: %s", ErrLocationUnavailable, res.Status)
	}

	var geo geoIPResponse
	err = json.NewDecoder(res.Body).Decode(&geo)
	if err != nil {
		return Location{}, fmt.Errorf("%w: decode response: %s", ErrLocationUnavailable, err)
	}

	if geo.Status != "" && geo.Status != "success" {
		return Location{}, fmt.Errorf("%w: geoip status %q: %s", ErrLocationUnavailable, geo.Status, geo.Message)
	}

	loc := Location{Latitude: geo.Latitude, Longitude: geo.Longitude}
	if (loc == Location{}) || !loc.Valid() {
		return Location{}, fmt.Errorf("%w: geoip returned %s", ErrLocationUnavailable, loc)
	}

	return loc, nil
}

// FallbackLocator tries each locator in order and returns the first
// location found.
type FallbackLocator []Locator

func (f FallbackLocator) Locate(ctx context.Context) (Location, error) {
	errs := &cerrors.M{}
	for _, locator := range f {
		loc, err := locator.Locate(ctx)
		if err == nil {
			return loc, nil
		}
		errs.Append(err)

		if ctx.Err() != nil {
			break
		}
	}

	if err := errs.Err(); err != nil {
		if !errors.Is(err, ErrLocationUnavailable) {
			return Location{}, fmt.Errorf("%w: %s", ErrLocationUnavailable, err)
		}
		return Location{}, err
	}

	return Location{}, fmt.Errorf("%w: no locators configured", ErrLocationUnavailable)
}
