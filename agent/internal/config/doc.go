// Package config loads and watches the agent configuration file.
//
// Top-level types:
//   - Config{Agent}: config tree parsed from YAML (the `server:` section is ignored)
//   - AgentConfig: server_url, report_interval, request_timeout, buffer_size,
//     remove_on_exit, units []
//   - Unit: id, name, type, speed_kmh, route [] {lat, lng}, extra
//
// Load(path) reads the YAML file, applies defaults (3s report interval, 5s
// request timeout, 100 buffer, remove_on_exit true, type Mobile), then
// validates required fields and coordinate ranges.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config.
package config
