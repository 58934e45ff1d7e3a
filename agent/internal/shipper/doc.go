// Package shipper sends vehicle reports to fleetpulse-server over HTTP
// (POST /api/update, one JSON object per report).
//
// Shipper.Ship() is non-blocking: reports are placed in an in-memory channel
// (default capacity 100). When the buffer is full the oldest entry is evicted
// so the latest position is always preserved.
//
// Shipper.Run() drains the buffer in a loop, retrying a failed report with
// truncated exponential backoff (1s→60s, ±25% jitter) on transport errors and
// 5xx answers. 4xx answers discard the report immediately rather than retrying.
//
// Shipper.Remove() sends DELETE /api/remove/{id}, used when a unit stops
// sharing. Every request carries a fresh X-Request-ID.
package shipper
