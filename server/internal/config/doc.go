// Package config loads the server configuration from the `server:` section
// of a YAML file (other top-level keys are ignored by the server binary).
//
// Config fields:
//   - Host, HTTPPort         : listen address (default 0.0.0.0:5000)
//   - Log.Level, Log.Format  : slog level and handler (info, json)
//   - Log.File and rotation  : optional lumberjack-rotated copy of the log
//   - Fleet.StaleTimeout     : liveness window for vehicles (default 20s)
//   - Fleet.SweepInterval    : optional timed stale removal (default off)
//   - Fleet.DefaultName      : name stored for unnamed units ("Unknown Unit")
//   - Store.Backend          : memory | file | sqlite | redis (default file)
//   - Store.Serialize        : lock each load-modify-save cycle
//   - Store.StrictWrites     : report snapshot write failures as 500s
//   - CORS.AllowedOrigins    : origins allowed on /api/* (default "*")
//
// Load(path) applies defaults before unmarshalling, then validates; an empty
// path yields the defaults. Watch(ctx, path, onChange) reloads on change.
package config
