package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
agent:
  server_url: "http://localhost:5000"
  report_interval: 1s
  request_timeout: 2s
  buffer_size: 50
  remove_on_exit: false
  units:
    - id: truck-1
      name: Truck A
      type: Truck
      speed_kmh: 40
      route:
        - {lat: 12.97, lng: 77.59}
        - {lat: 12.98, lng: 77.60}
      extra:
        battery: 100
        isOwner: true
`
	cfg := loadFromString(t, yaml)

	if cfg.Agent.ServerURL != "http://localhost:5000" {
		t.Errorf("server_url: got %q", cfg.Agent.ServerURL)
	}
	if cfg.Agent.ReportInterval != time.Second {
		t.Errorf("report_interval: got %v", cfg.Agent.ReportInterval)
	}
	if cfg.Agent.RequestTimeout != 2*time.Second {
		t.Errorf("request_timeout: got %v", cfg.Agent.RequestTimeout)
	}
	if cfg.Agent.BufferSize != 50 {
		t.Errorf("buffer_size: got %d", cfg.Agent.BufferSize)
	}
	if cfg.Agent.RemovesOnExit() {
		t.Error("remove_on_exit: got true, want false")
	}
	if len(cfg.Agent.Units) != 1 {
		t.Fatalf("units: got %d, want 1", len(cfg.Agent.Units))
	}
	u := cfg.Agent.Units[0]
	if u.ID != "truck-1" || u.Name != "Truck A" || u.Type != "Truck" || u.SpeedKmh != 40 {
		t.Errorf("unit: got %+v", u)
	}
	if len(u.Route) != 2 || u.Route[1].Lng != 77.60 {
		t.Errorf("route: got %+v", u.Route)
	}
	if u.Extra["battery"] != 100 || u.Extra["isOwner"] != true {
		t.Errorf("extra: got %v", u.Extra)
	}
}

func TestLoad_Defaults(t *testing.T) {
	yaml := `
agent:
  server_url: "http://localhost:5000"
  units:
    - id: phone
      route: [{lat: 1, lng: 2}]
`
	cfg := loadFromString(t, yaml)

	if cfg.Agent.ReportInterval != DefaultReportInterval {
		t.Errorf("default report_interval: got %v, want %v", cfg.Agent.ReportInterval, DefaultReportInterval)
	}
	if cfg.Agent.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("default request_timeout: got %v, want %v", cfg.Agent.RequestTimeout, DefaultRequestTimeout)
	}
	if cfg.Agent.BufferSize != DefaultBufferSize {
		t.Errorf("default buffer_size: got %d, want %d", cfg.Agent.BufferSize, DefaultBufferSize)
	}
	if !cfg.Agent.RemovesOnExit() {
		t.Error("default remove_on_exit: got false, want true")
	}
	if cfg.Agent.Units[0].Type != DefaultUnitType {
		t.Errorf("default type: got %q, want %q", cfg.Agent.Units[0].Type, DefaultUnitType)
	}
}

func TestLoad_IgnoresServerSection(t *testing.T) {
	yaml := `
server:
  http_port: 5000
agent:
  server_url: "http://localhost:5000"
`
	cfg := loadFromString(t, yaml)
	if len(cfg.Agent.Units) != 0 {
		t.Errorf("units: got %d, want 0", len(cfg.Agent.Units))
	}
}

func TestLoad_MissingServerURL(t *testing.T) {
	_, err := loadStringErr(t, "agent:\n  buffer_size: 10\n")
	if err == nil || !strings.Contains(err.Error(), "server_url") {
		t.Fatalf("expected server_url error, got %v", err)
	}
}

func TestLoad_RelativeServerURL(t *testing.T) {
	_, err := loadStringErr(t, "agent:\n  server_url: \"localhost:5000\"\n")
	if err == nil {
		t.Fatal("expected error for URL without scheme")
	}
}

func TestLoad_UnitWithoutID(t *testing.T) {
	yaml := `
agent:
  server_url: "http://localhost:5000"
  units:
    - name: nobody
      route: [{lat: 1, lng: 2}]
`
	if _, err := loadStringErr(t, yaml); err == nil {
		t.Fatal("expected error for unit without id")
	}
}

func TestLoad_DuplicateUnitID(t *testing.T) {
	yaml := `
agent:
  server_url: "http://localhost:5000"
  units:
    - id: a
      route: [{lat: 1, lng: 2}]
    - id: a
      route: [{lat: 3, lng: 4}]
`
	_, err := loadStringErr(t, yaml)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestLoad_EmptyRoute(t *testing.T) {
	yaml := `
agent:
  server_url: "http://localhost:5000"
  units:
    - id: a
`
	if _, err := loadStringErr(t, yaml); err == nil {
		t.Fatal("expected error for empty route")
	}
}

func TestLoad_CoordinateOutOfRange(t *testing.T) {
	yaml := `
agent:
  server_url: "http://localhost:5000"
  units:
    - id: a
      route: [{lat: 91, lng: 0}]
`
	if _, err := loadStringErr(t, yaml); err == nil {
		t.Fatal("expected error for latitude 91")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	write := func(interval string) {
		t.Helper()
		content := "agent:\n  server_url: \"http://localhost:5000\"\n  report_interval: " + interval + "\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	write("3s")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan time.Duration, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- Watch(ctx, path, func(c *Config) { got <- c.Agent.ReportInterval })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	write("7s")

	deadline := time.After(3 * time.Second)
	for {
		select {
		case d := <-got:
			if d == 7*time.Second {
				cancel()
				if err := <-errc; err != nil {
					t.Errorf("Watch returned %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
