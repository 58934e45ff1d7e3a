// Package fleet implements the vehicle operations: list the live fleet,
// upsert a vehicle's reported state, remove a vehicle, and sweep stale ones.
//
// Every operation is one store transaction over the whole snapshot. A vehicle
// is live while now - lastUpdate < stale timeout; List drops stale vehicles
// from the persisted snapshot as a side effect, so a read may write.
//
// Snapshot write failures are logged by the store and, unless strict writes
// are enabled, not reported to the caller.
package fleet
