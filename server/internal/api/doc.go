// Package api implements the HTTP JSON API of the fleet server.
//
// New(service, opts) returns an http.Handler that serves:
//
//	GET    /api/vehicles     : live vehicles as a JSON array
//	POST   /api/update       : upsert one vehicle; 400 without an id
//	DELETE /api/remove/{id}  : {"status":"removed"} or 404 {"status":"not_found"}
//	GET    /api/health       : backend name and liveness window
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for unsupported methods
//   - Allow cross-origin GET/POST/DELETE/OPTIONS from the configured origins
//   - Carry an X-Request-ID header (generated when the client sends none)
//
// JSON types are defined in types.go. Routing uses net/http's ServeMux.
package api
