package main

import (
	"context"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/fleetpulse/fleetpulse/agent/internal/config"
	"github.com/fleetpulse/fleetpulse/agent/internal/shipper"
	"github.com/fleetpulse/fleetpulse/agent/internal/track"
	"github.com/fleetpulse/fleetpulse/pkg/types"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to config file")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("fleetpulse-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"server_url", cfg.Agent.ServerURL,
		"units", len(cfg.Agent.Units),
		"report_interval", cfg.Agent.ReportInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ship := shipper.New(cfg.Agent)
	sim := newSimulator(track.NewTracker(time.Now()))
	sim.apply(cfg.Agent.Units)

	if len(cfg.Agent.Units) == 0 {
		slog.Warn("no units configured, agent will idle")
	}

	// Hot reload replaces the unit list. Reloads are applied on the report
	// loop so no report for a dropped unit is produced after its removal.
	reloads := make(chan *config.Config, 1)
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			select {
			case reloads <- updated:
			case <-ctx.Done():
			}
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	shipDone := make(chan struct{})
	go func() {
		ship.Run(ctx)
		close(shipDone)
	}()

	// Report loop: every ReportInterval, move each unit along its route and ship.
	ticker := time.NewTicker(cfg.Agent.ReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-shipDone
			slog.Info("fleetpulse-agent shutting down", "pending", ship.Pending())
			if cfg.Agent.RemovesOnExit() {
				removeAll(ship, sim.ids(), cfg.Agent.RequestTimeout)
			}
			return
		case updated := <-reloads:
			gone := sim.apply(updated.Agent.Units)
			for _, id := range gone {
				if err := ship.Remove(ctx, id); err != nil {
					slog.Warn("remove failed", "id", id, "err", err)
				}
			}
			slog.Info("config hot-reloaded", "units", len(updated.Agent.Units), "removed", len(gone))
		case t := <-ticker.C:
			for _, rec := range sim.reports(t) {
				ship.Ship(rec)
				slog.Debug("shipped report",
					"id", rec[types.FieldID],
					"lat", rec[types.FieldLat],
					"lng", rec[types.FieldLng],
				)
			}
		}
	}
}

// removeAll tells the server every unit stopped sharing. It uses a fresh
// context since the run context is already cancelled.
func removeAll(ship *shipper.Shipper, ids []string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, id := range ids {
		if err := ship.Remove(ctx, id); err != nil {
			slog.Warn("remove on exit failed", "id", id, "err", err)
			continue
		}
		slog.Info("unit stopped sharing", "id", id)
	}
}

// simulator holds the configured units and their routes.
type simulator struct {
	mu      sync.Mutex
	units   []config.Unit
	tracker *track.Tracker
}

func newSimulator(tr *track.Tracker) *simulator {
	return &simulator{tracker: tr}
}

// apply installs units and returns the ids that are no longer configured.
func (s *simulator) apply(units []config.Unit) []string {
	keep := make(map[string]bool, len(units))
	var kept []config.Unit
	for _, u := range units {
		pts := make([]track.Point, len(u.Route))
		for i, p := range u.Route {
			pts[i] = track.Point{Lat: p.Lat, Lng: p.Lng}
		}
		r, err := track.NewRoute(pts, u.SpeedKmh)
		if err != nil {
			slog.Error("skipping unit, bad route", "id", u.ID, "err", err)
			continue
		}
		s.tracker.Set(u.ID, r)
		keep[u.ID] = true
		kept = append(kept, u)
	}
	s.tracker.Retain(keep)

	s.mu.Lock()
	defer s.mu.Unlock()
	var gone []string
	for _, u := range s.units {
		if !keep[u.ID] {
			gone = append(gone, u.ID)
		}
	}
	s.units = kept
	return gone
}

func (s *simulator) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.units))
	for i, u := range s.units {
		out[i] = u.ID
	}
	return out
}

// reports builds one record per unit for time now.
func (s *simulator) reports(now time.Time) []types.Record {
	s.mu.Lock()
	units := append([]config.Unit(nil), s.units...)
	s.mu.Unlock()

	out := make([]types.Record, 0, len(units))
	for _, u := range units {
		p, speed, ok := s.tracker.Position(u.ID, now)
		if !ok {
			continue
		}
		out = append(out, buildReport(u, p, speed))
	}
	return out
}

// buildReport turns a unit position into the record posted to the server.
// Extras are copied first so the core fields always win.
func buildReport(u config.Unit, p track.Point, speedKmh float64) types.Record {
	rec := make(types.Record, len(u.Extra)+7)
	for k, v := range u.Extra {
		rec[k] = v
	}
	rec[types.FieldID] = u.ID
	if u.Name != "" {
		rec[types.FieldName] = u.Name
	}
	rec[types.FieldType] = u.Type
	rec[types.FieldLat] = round(p.Lat, 6)
	rec[types.FieldLng] = round(p.Lng, 6)
	rec[types.FieldSpeed] = round(speedKmh, 1)
	rec[types.FieldStatus] = "Active"
	return rec
}

func round(v float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(v*f) / f
}
