package track

import (
	"sync"
	"time"
)

// Tracker holds the routes of all simulated units.
//
// All exported methods are safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	start  time.Time
	routes map[string]*Route
}

// NewTracker returns a Tracker whose units all start their routes at start.
func NewTracker(start time.Time) *Tracker {
	return &Tracker{start: start, routes: make(map[string]*Route)}
}

// Set assigns r to the unit id, replacing any previous route.
func (t *Tracker) Set(id string, r *Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[id] = r
}

// Retain drops every unit whose id is not in keep.
func (t *Tracker) Retain(keep map[string]bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.routes {
		if !keep[id] {
			delete(t.routes, id)
		}
	}
}

// Position returns where unit id is at now. ok is false for unknown units.
func (t *Tracker) Position(id string, now time.Time) (p Point, speedKmh float64, ok bool) {
	t.mu.Lock()
	r, found := t.routes[id]
	start := t.start
	t.mu.Unlock()

	if !found {
		return Point{}, 0, false
	}
	return r.At(now.Sub(start)), r.SpeedKmh(), true
}
