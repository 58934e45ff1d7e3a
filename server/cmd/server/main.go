package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fleetpulse/fleetpulse/server/internal/api"
	"github.com/fleetpulse/fleetpulse/server/internal/config"
	"github.com/fleetpulse/fleetpulse/server/internal/fleet"
	"github.com/fleetpulse/fleetpulse/server/internal/metrics"
	"github.com/fleetpulse/fleetpulse/server/internal/store"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (defaults are used when empty)")
	port := pflag.IntP("port", "p", 0, "HTTP port; overrides server.http_port")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// The logger is not configured yet; fall back to the default JSON handler.
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load config", "config", *configPath, "err", err)
		os.Exit(1)
	}
	if *port != 0 {
		if *port < 0 || *port > 65535 {
			slog.Error("invalid --port", "port", *port)
			os.Exit(1)
		}
		cfg.Server.HTTPPort = *port
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Server.Log.SlogLevel())
	logSink := setupLogging(cfg.Server.Log, level)
	if logSink != nil {
		defer logSink.Close()
	}

	slog.Info("fleetpulse-server starting", "config", *configPath)
	slog.Info("config loaded",
		"addr", cfg.Server.Addr(),
		"store_backend", cfg.Server.Store.Backend,
		"stale_timeout", cfg.Server.Fleet.StaleTimeout,
		"sweep_interval", cfg.Server.Fleet.SweepInterval,
		"serialize", cfg.Server.Store.Serialize,
		"strict_writes", cfg.Server.Store.StrictWrites,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()

	backend, err := store.Open(ctx, cfg.Server.Store)
	if err != nil {
		slog.Error("failed to open snapshot store", "backend", cfg.Server.Store.Backend, "err", err)
		os.Exit(1)
	}
	storeOpts := []store.Option{store.WithMetrics(m)}
	if cfg.Server.Store.Serialize {
		storeOpts = append(storeOpts, store.WithSerializedUpdates())
	}
	st := store.New(backend, storeOpts...)
	defer st.Close() //nolint:errcheck

	svc := fleet.New(st, fleet.Options{
		StaleTimeout: cfg.Server.Fleet.StaleTimeout,
		DefaultName:  cfg.Server.Fleet.DefaultName,
		StrictWrites: cfg.Server.Store.StrictWrites,
		Metrics:      m,
	})

	// Optional background sweep in addition to the cleanup done on every list.
	if cfg.Server.Fleet.SweepInterval > 0 {
		go svc.Run(ctx, cfg.Server.Fleet.SweepInterval)
	}

	// Hot reload: log level and stale timeout apply live.
	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				level.Set(next.Server.Log.SlogLevel())
				svc.SetStaleTimeout(next.Server.Fleet.StaleTimeout)
				slog.Info("config reloaded",
					"log_level", next.Server.Log.Level,
					"stale_timeout", next.Server.Fleet.StaleTimeout,
				)
			})
			if err != nil {
				slog.Warn("config watch stopped", "err", err)
			}
		}()
	}

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(svc, api.Options{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		Backend:        st.Backend(),
		Metrics:        m,
	}))
	httpMux.Handle("/metrics", m)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner(os.Stdout, cfg.Server.HTTPPort)

	go func() {
		slog.Info("HTTP server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("fleetpulse-server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

// setupLogging installs the default slog logger. When a log file is
// configured, lines go to both stdout and a rotating file; the returned
// closer releases that file.
func setupLogging(lc config.LogConfig, level *slog.LevelVar) io.Closer {
	var (
		out  io.Writer = os.Stdout
		sink *lumberjack.Logger
	)
	if lc.File != "" {
		sink = &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAgeDays,
			Compress:   lc.Compress,
		}
		out = io.MultiWriter(os.Stdout, sink)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(lc.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))

	if sink == nil {
		return nil
	}
	return sink
}

func printBanner(w io.Writer, port int) {
	rule := strings.Repeat("=", 40)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "FLEETPULSE COMMAND CENTER ACTIVE")
	fmt.Fprintf(w, "Port: %d | Mode: Multi-User Identification\n", port)
	fmt.Fprintln(w, rule)
}
