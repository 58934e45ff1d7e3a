// Package metrics keeps the server's operational counters and exposes them in
// the Prometheus exposition format.
//
// Families are assembled as client_model MetricFamily values on every scrape
// and encoded with expfmt, negotiated from the request's Accept header.
// All Metrics methods are nil-safe so components can run without a registry.
package metrics
