package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultReportInterval = 3 * time.Second
	DefaultRequestTimeout = 5 * time.Second
	DefaultBufferSize     = 100
	DefaultUnitType       = "Mobile"
)

// Config is the top-level configuration for the agent. Other top-level keys
// (such as `server:`) are ignored so one file can serve both binaries.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerURL is the base URL of fleetpulse-server, e.g. http://localhost:5000.
	ServerURL string `yaml:"server_url"`

	// ReportInterval controls how often every unit reports its position.
	ReportInterval time.Duration `yaml:"report_interval"`

	// RequestTimeout bounds each HTTP call to the server.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// BufferSize is the maximum number of reports held in memory when
	// the server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// RemoveOnExit deletes every unit from the server on shutdown, the
	// equivalent of a user pressing "stop sharing".
	RemoveOnExit *bool `yaml:"remove_on_exit"`

	// Units is the list of simulated vehicles to report.
	Units []Unit `yaml:"units"`
}

// RemovesOnExit reports whether units are removed on shutdown (default true).
func (a AgentConfig) RemovesOnExit() bool {
	return a.RemoveOnExit == nil || *a.RemoveOnExit
}

// Unit describes one simulated vehicle.
type Unit struct {
	// ID is the vehicle identifier sent to the server.
	ID string `yaml:"id"`

	// Name is the display name. Empty means the server applies its default.
	Name string `yaml:"name"`

	// Type is a free-form label such as Mobile or Truck.
	Type string `yaml:"type"`

	// SpeedKmh is the constant speed along the route.
	SpeedKmh float64 `yaml:"speed_kmh"`

	// Route is the polyline the unit follows, looping back to the start.
	Route []Point `yaml:"route"`

	// Extra fields are copied into every report unchanged.
	Extra map[string]any `yaml:"extra"`
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	for i := range cfg.Agent.Units {
		if cfg.Agent.Units[i].Type == "" {
			cfg.Agent.Units[i].Type = DefaultUnitType
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			ReportInterval: DefaultReportInterval,
			RequestTimeout: DefaultRequestTimeout,
			BufferSize:     DefaultBufferSize,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerURL == "" {
		return fmt.Errorf("agent.server_url is required")
	}
	u, err := url.Parse(a.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("agent.server_url %q must be an absolute http(s) URL", a.ServerURL)
	}
	if a.ReportInterval <= 0 {
		return fmt.Errorf("agent.report_interval must be positive")
	}
	if a.RequestTimeout <= 0 {
		return fmt.Errorf("agent.request_timeout must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}

	seen := make(map[string]bool, len(a.Units))
	for i, u := range a.Units {
		if u.ID == "" {
			return fmt.Errorf("units[%d]: id is required", i)
		}
		if seen[u.ID] {
			return fmt.Errorf("units[%d]: duplicate id %q", i, u.ID)
		}
		seen[u.ID] = true
		if len(u.Route) == 0 {
			return fmt.Errorf("units[%d] %q: route needs at least one point", i, u.ID)
		}
		if u.SpeedKmh < 0 {
			return fmt.Errorf("units[%d] %q: speed_kmh must not be negative", i, u.ID)
		}
		for j, p := range u.Route {
			if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
				return fmt.Errorf("units[%d] %q: route[%d] (%v, %v) out of range", i, u.ID, j, p.Lat, p.Lng)
			}
		}
	}
	return nil
}
