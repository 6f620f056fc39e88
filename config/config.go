// Package config loads shadowcaster settings from YAML
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	cerrors "cloudeng.io/errors"
	"gopkg.in/yaml.v3"

	"github.com/subtlepseudonym/shadowcaster"
	"github.com/subtlepseudonym/shadowcaster/shadow"
	"github.com/subtlepseudonym/shadowcaster/solar"
)

const defaultFilename = "shadowcaster.yaml"

type Config struct {
	// Location pins the viewer's location. When unset the location is
	// looked up with GeoIP, and failing that the default sun is used.
	Location  *shadowcaster.Location `yaml:"location,omitempty"`
	GeoIP     GeoIP                  `yaml:"geoip"`
	Ephemeris string                 `yaml:"ephemeris"`
	Refresh   Refresh                `yaml:"refresh"`
	Shadow    shadow.Config          `yaml:"shadow"`
	Viewport  Viewport               `yaml:"viewport"`
	HTTP      HTTP                   `yaml:"http"`
	Lamps     map[string]Lamp        `yaml:"lamps,omitempty"`
	Logging   Logging                `yaml:"logging"`
}

type GeoIP struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Refresh struct {
	Interval time.Duration `yaml:"interval"`
}

type Viewport struct {
	Zoom float64 `yaml:"zoom"`
}

type HTTP struct {
	Listen string `yaml:"listen"`
}

// Lamp is a LIFX bulb that mirrors the sun
type Lamp struct {
	Host       string        `yaml:"host"` // ip or ip:port
	MAC        string        `yaml:"mac"`
	Transition time.Duration `yaml:"transition"`
}

type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func Default() *Config {
	return &Config{
		GeoIP: GeoIP{
			Enabled: true,
			URL:     shadowcaster.DefaultGeoIPURL,
			Timeout: 5 * time.Second,
		},
		Ephemeris: solar.EphemerisSunCalc,
		Refresh: Refresh{
			Interval: shadowcaster.DefaultInterval,
		},
		Shadow: shadow.DefaultConfig(),
		Viewport: Viewport{
			Zoom: shadowcaster.DefaultZoom,
		},
		HTTP: HTTP{
			Listen: ":9000",
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// Open reads the YAML file at filename over the default settings
func Open(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	return config, nil
}

// Load opens filename, or the first config file found in the working
// directory or ConfigDir. With no file at all the defaults are used.
func Load(filename string) (*Config, error) {
	if filename == "" {
		filename = findConfigFile()
	}
	if filename == "" {
		return Default(), nil
	}

	config, err := Open(filename)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filename, err)
	}
	return config, nil
}

func findConfigFile() string {
	candidates := []string{
		defaultFilename,
		filepath.Join(ConfigDir(), defaultFilename),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the user's shadowcaster config directory
func ConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "shadowcaster")
}

// Save writes the config to filename as YAML
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	err = os.MkdirAll(filepath.Dir(filename), 0755)
	if err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	return os.WriteFile(filename, data, 0644)
}

func (c *Config) Validate() error {
	errs := &cerrors.M{}

	if c.Location != nil && !c.Location.Valid() {
		errs.Append(fmt.Errorf("location %s out of range", c.Location))
	}

	if _, err := solar.NewEphemeris(c.Ephemeris); err != nil {
		errs.Append(err)
	}

	if c.Refresh.Interval < time.Second {
		errs.Append(fmt.Errorf("refresh interval %s is shorter than 1s", c.Refresh.Interval))
	}

	if c.Shadow.HorizonThreshold <= 0 || c.Shadow.HorizonThreshold > math.Pi/2 {
		errs.Append(fmt.Errorf("shadow horizon threshold %v is outside (0, π/2]", c.Shadow.HorizonThreshold))
	}
	if c.Shadow.MaxLength <= 0 {
		errs.Append(fmt.Errorf("shadow max length must be positive"))
	}
	if c.Shadow.ZoomBase <= 0 {
		errs.Append(fmt.Errorf("shadow zoom base must be positive"))
	}

	for _, field := range []struct {
		name  string
		value float64
	}{
		{"viewport.zoom", c.Viewport.Zoom},
		{"shadow.horizon_threshold", c.Shadow.HorizonThreshold},
		{"shadow.max_length", c.Shadow.MaxLength},
		{"shadow.zoom_base", c.Shadow.ZoomBase},
		{"shadow.zoom_pivot", c.Shadow.ZoomPivot},
		{"shadow.building_height", c.Shadow.BuildingHeight},
		{"shadow.opacity_base", c.Shadow.OpacityBase},
		{"shadow.opacity_range", c.Shadow.OpacityRange},
		{"shadow.blur_base", c.Shadow.BlurBase},
		{"shadow.blur_range", c.Shadow.BlurRange},
		{"shadow.blur_zoom_pivot", c.Shadow.BlurZoomPivot},
	} {
		if math.IsNaN(field.value) || math.IsInf(field.value, 0) {
			errs.Append(fmt.Errorf("%s must be a finite number, got %v", field.name, field.value))
		}
	}

	if c.GeoIP.Enabled && c.GeoIP.URL == "" {
		errs.Append(fmt.Errorf("geoip enabled without url"))
	}

	for label, lamp := range c.Lamps {
		if lamp.Host == "" || lamp.MAC == "" {
			errs.Append(fmt.Errorf("lamp %q requires host and mac", label))
		}
	}

	return errs.Err()
}
