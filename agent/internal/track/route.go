package track

import (
	"errors"
	"math"
	"time"
)

// earthRadiusM is the mean earth radius used by Distance.
const earthRadiusM = 6371008.8

// ErrEmptyRoute is returned by NewRoute for a route with no points.
var ErrEmptyRoute = errors.New("track: route has no points")

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Distance returns the great-circle distance between a and b in metres.
func Distance(a, b Point) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Route is a closed polyline walked at constant speed.
type Route struct {
	points []Point
	cum    []float64 // cum[i] is the distance from points[0] to the start of leg i
	total  float64   // loop length including the closing leg
	speed  float64   // metres per second
}

// NewRoute builds a Route over points at speedKmh. A single-point route, or
// a zero speed, yields a stationary unit.
func NewRoute(points []Point, speedKmh float64) (*Route, error) {
	if len(points) == 0 {
		return nil, ErrEmptyRoute
	}
	r := &Route{
		points: append([]Point(nil), points...),
		cum:    make([]float64, len(points)),
		speed:  math.Max(0, speedKmh) / 3.6,
	}
	for i := range r.points {
		r.cum[i] = r.total
		r.total += Distance(r.points[i], r.points[(i+1)%len(r.points)])
	}
	return r, nil
}

// Length returns the loop length in metres.
func (r *Route) Length() float64 { return r.total }

// SpeedKmh returns the speed the route is walked at.
func (r *Route) SpeedKmh() float64 { return r.speed * 3.6 }

// At returns the position after walking the route for elapsed time.
func (r *Route) At(elapsed time.Duration) Point {
	if r.total == 0 || r.speed == 0 || elapsed <= 0 {
		return r.points[0]
	}

	d := math.Mod(r.speed*elapsed.Seconds(), r.total)

	// Find the leg containing d; routes are short so a linear scan is fine.
	leg := len(r.cum) - 1
	for i := 1; i < len(r.cum); i++ {
		if d < r.cum[i] {
			leg = i - 1
			break
		}
	}

	from := r.points[leg]
	to := r.points[(leg+1)%len(r.points)]
	legLen := Distance(from, to)
	if legLen == 0 {
		return from
	}
	f := (d - r.cum[leg]) / legLen
	return Point{
		Lat: from.Lat + (to.Lat-from.Lat)*f,
		Lng: from.Lng + (to.Lng-from.Lng)*f,
	}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
