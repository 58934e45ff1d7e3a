package metrics

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metric names.
const (
	nameUpdates       = "fleetpulse_vehicle_updates_total"
	nameRemovals      = "fleetpulse_vehicle_removals_total"
	nameEvictions     = "fleetpulse_vehicle_evictions_total"
	nameActive        = "fleetpulse_active_vehicles"
	nameReadFailures  = "fleetpulse_snapshot_read_failures_total"
	nameWriteFailures = "fleetpulse_snapshot_write_failures_total"
	nameRequests      = "fleetpulse_http_requests_total"
)

type requestKey struct {
	route  string
	method string
	code   int
}

// Metrics holds the server counters.
type Metrics struct {
	updates       atomic.Uint64
	removals      atomic.Uint64
	evictions     atomic.Uint64
	readFailures  atomic.Uint64
	writeFailures atomic.Uint64
	active        atomic.Int64

	mu       sync.Mutex
	requests map[requestKey]uint64
}

// New returns an empty Metrics.
func New() *Metrics {
	return &Metrics{requests: make(map[requestKey]uint64)}
}

// VehicleUpdated counts one accepted upsert.
func (m *Metrics) VehicleUpdated() {
	if m != nil {
		m.updates.Add(1)
	}
}

// VehicleRemoved counts one explicit delete.
func (m *Metrics) VehicleRemoved() {
	if m != nil {
		m.removals.Add(1)
	}
}

// VehiclesEvicted counts n records dropped by the staleness sweep.
func (m *Metrics) VehiclesEvicted(n int) {
	if m != nil && n > 0 {
		m.evictions.Add(uint64(n))
	}
}

// SetActive records the number of live vehicles seen by the latest list or sweep.
func (m *Metrics) SetActive(n int) {
	if m != nil {
		m.active.Store(int64(n))
	}
}

// SnapshotReadFailed counts an unreadable or corrupt snapshot.
func (m *Metrics) SnapshotReadFailed() {
	if m != nil {
		m.readFailures.Add(1)
	}
}

// SnapshotWriteFailed counts a snapshot that could not be persisted.
func (m *Metrics) SnapshotWriteFailed() {
	if m != nil {
		m.writeFailures.Add(1)
	}
}

// ObserveRequest counts one served HTTP request.
func (m *Metrics) ObserveRequest(route, method string, code int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.requests[requestKey{route: route, method: method, code: code}]++
	m.mu.Unlock()
}

// Gather builds the current metric families, sorted by name.
func (m *Metrics) Gather() []*dto.MetricFamily {
	if m == nil {
		return nil
	}
	out := []*dto.MetricFamily{
		counter(nameUpdates, "Vehicle updates accepted.", m.updates.Load()),
		counter(nameRemovals, "Vehicles removed on request.", m.removals.Load()),
		counter(nameEvictions, "Vehicles dropped after going stale.", m.evictions.Load()),
		gauge(nameActive, "Live vehicles at the latest list or sweep.", float64(m.active.Load())),
		counter(nameReadFailures, "Snapshot reads that failed and were treated as empty.", m.readFailures.Load()),
		counter(nameWriteFailures, "Snapshot writes that failed.", m.writeFailures.Load()),
	}
	// The encoder rejects families without samples; requests start empty.
	if rf := m.requestFamily(); len(rf.GetMetric()) > 0 {
		out = append(out, rf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// ServeHTTP writes all families in the format negotiated from r.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	format := expfmt.Negotiate(r.Header)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range m.Gather() {
		if err := enc.Encode(mf); err != nil {
			slog.Warn("metrics: encode failed", "family", mf.GetName(), "err", err)
		}
	}
	if c, ok := enc.(expfmt.Closer); ok {
		c.Close() //nolint:errcheck
	}
}

func (m *Metrics) requestFamily() *dto.MetricFamily {
	m.mu.Lock()
	keys := make([]requestKey, 0, len(m.requests))
	for k := range m.requests {
		keys = append(keys, k)
	}
	counts := make(map[requestKey]uint64, len(m.requests))
	for k, v := range m.requests {
		counts[k] = v
	}
	m.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.route != b.route {
			return a.route < b.route
		}
		if a.method != b.method {
			return a.method < b.method
		}
		return a.code < b.code
	})

	mf := &dto.MetricFamily{
		Name: ptr(nameRequests),
		Help: ptr("HTTP requests served, by route, method and status code."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, k := range keys {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label: []*dto.LabelPair{
				{Name: ptr("code"), Value: ptr(strconv.Itoa(k.code))},
				{Name: ptr("method"), Value: ptr(k.method)},
				{Name: ptr("route"), Value: ptr(k.route)},
			},
			Counter: &dto.Counter{Value: ptr(float64(counts[k]))},
		})
	}
	return mf
}

func counter(name, help string, v uint64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(name),
		Help:   ptr(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: ptr(float64(v))}}},
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(name),
		Help:   ptr(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: ptr(v)}}},
	}
}

func ptr[T any](v T) *T { return &v }
