package track

import (
	"testing"
	"time"
)

func TestTracker_Position(t *testing.T) {
	start := time.Unix(1700000000, 0)
	tr := NewTracker(start)
	r, _ := NewRoute([]Point{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 0}}, 3.6)
	tr.Set("truck-1", r)

	p, speed, ok := tr.Position("truck-1", start)
	if !ok {
		t.Fatal("truck-1 not found")
	}
	if p != (Point{}) {
		t.Errorf("at start: got %+v", p)
	}
	if !approx(speed, 3.6, 1e-9) {
		t.Errorf("speed: got %v", speed)
	}

	p, _, _ = tr.Position("truck-1", start.Add(time.Minute))
	if p.Lat <= 0 {
		t.Errorf("after a minute: got %+v, want north of start", p)
	}
}

func TestTracker_UnknownUnit(t *testing.T) {
	tr := NewTracker(time.Now())
	if _, _, ok := tr.Position("ghost", time.Now()); ok {
		t.Error("expected ok=false for unknown unit")
	}
}

func TestTracker_Retain(t *testing.T) {
	tr := NewTracker(time.Now())
	r, _ := NewRoute([]Point{{}}, 0)
	tr.Set("a", r)
	tr.Set("b", r)

	tr.Retain(map[string]bool{"a": true})

	if _, _, ok := tr.Position("a", time.Now()); !ok {
		t.Error("a was dropped")
	}
	if _, _, ok := tr.Position("b", time.Now()); ok {
		t.Error("b was kept")
	}
}
