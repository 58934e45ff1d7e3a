// Package track computes simulated vehicle positions.
//
// route.go provides the pure Route type: a polyline walked at constant speed,
// looping from the last point back to the first. Distances use the haversine
// formula on a spherical earth; positions inside a leg are interpolated
// linearly, which is accurate enough for legs of a few kilometres.
//
// tracker.go provides the stateful Tracker that maps unit IDs to routes and
// a common start time. Tracker.Position accepts an explicit time.Time so
// tests are deterministic.
package track
