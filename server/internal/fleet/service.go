package fleet

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/fleetpulse/fleetpulse/pkg/types"
	"github.com/fleetpulse/fleetpulse/server/internal/metrics"
	"github.com/fleetpulse/fleetpulse/server/internal/store"
)

// DefaultStaleTimeout is how long a vehicle stays live without an update.
const DefaultStaleTimeout = 20 * time.Second

var (
	// ErrMissingID is returned by Upsert when the payload has no usable id.
	ErrMissingID = types.ErrNoID

	// ErrInvalidID is returned by Upsert when the id is not a string or number.
	ErrInvalidID = types.ErrInvalidID

	// ErrNotFound is returned by Remove for an unknown vehicle.
	ErrNotFound = errors.New("fleet: vehicle not found")
)

// Options configures a Service. Zero values select the defaults.
type Options struct {
	StaleTimeout time.Duration
	DefaultName  string

	// StrictWrites makes operations return snapshot write failures.
	StrictWrites bool

	Metrics *metrics.Metrics

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Service runs fleet operations against a Store.
type Service struct {
	store        *store.Store
	metrics      *metrics.Metrics
	defaultName  string
	strictWrites bool
	staleAfter   atomic.Int64 // nanoseconds
	now          func() time.Time
}

// New creates a Service over st.
func New(st *store.Store, opts Options) *Service {
	s := &Service{
		store:        st,
		metrics:      opts.Metrics,
		defaultName:  opts.DefaultName,
		strictWrites: opts.StrictWrites,
		now:          opts.Now,
	}
	if s.defaultName == "" {
		s.defaultName = types.DefaultName
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.SetStaleTimeout(opts.StaleTimeout)
	return s
}

// SetStaleTimeout changes the liveness window. Non-positive values restore
// the default. Safe to call while requests are in flight.
func (s *Service) SetStaleTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultStaleTimeout
	}
	s.staleAfter.Store(int64(d))
}

// StaleTimeout returns the current liveness window.
func (s *Service) StaleTimeout() time.Duration {
	return time.Duration(s.staleAfter.Load())
}

// List returns the live vehicles sorted by key. Stale vehicles found along
// the way are removed from the persisted snapshot.
func (s *Service) List(ctx context.Context) ([]types.Record, error) {
	var active []types.Record
	err := s.store.Update(ctx, func(snap types.Snapshot) (bool, error) {
		removed := s.expire(snap)
		keys := make([]string, 0, len(snap))
		for k := range snap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		active = make([]types.Record, 0, len(keys))
		for _, k := range keys {
			active = append(active, snap[k])
		}
		return removed > 0, nil
	})
	s.metrics.SetActive(len(active))
	if err := s.writeResult(err); err != nil {
		return nil, err
	}
	return active, nil
}

// Upsert stores payload as the vehicle's full state, replacing any previous
// record. The server stamps lastUpdate and fills an absent name. It returns
// the stored record.
func (s *Service) Upsert(ctx context.Context, payload types.Record) (types.Record, error) {
	key, err := payload.Key()
	if err != nil {
		return nil, err
	}

	rec := payload.Clone()
	// An explicit null is stored as sent; only an absent name gets the default.
	if _, ok := rec[types.FieldName]; !ok {
		rec[types.FieldName] = s.defaultName
	}
	rec.Stamp(s.now())

	err = s.store.Update(ctx, func(snap types.Snapshot) (bool, error) {
		snap[key] = rec
		return true, nil
	})

	slog.Info("fleet: update",
		"id", key,
		"name", rec.NameOr(s.defaultName),
		"lat", rec[types.FieldLat],
		"lng", rec[types.FieldLng],
	)
	s.metrics.VehicleUpdated()

	if err := s.writeResult(err); err != nil {
		return nil, err
	}
	return rec, nil
}

// Remove deletes the vehicle stored under key. It returns ErrNotFound, without
// writing, when there is no such vehicle.
func (s *Service) Remove(ctx context.Context, key string) error {
	var (
		name  string
		found bool
	)
	err := s.store.Update(ctx, func(snap types.Snapshot) (bool, error) {
		r, ok := snap[key]
		if !ok {
			return false, nil
		}
		name = r.NameOr(key)
		found = true
		delete(snap, key)
		return true, nil
	})
	if !found {
		if err != nil {
			return err
		}
		return ErrNotFound
	}

	slog.Info("fleet: vehicle stopped sharing", "id", key, "name", name)
	s.metrics.VehicleRemoved()
	return s.writeResult(err)
}

// Sweep removes stale vehicles and returns how many were dropped.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	var removed, remaining int
	err := s.store.Update(ctx, func(snap types.Snapshot) (bool, error) {
		removed = s.expire(snap)
		remaining = len(snap)
		return removed > 0, nil
	})
	s.metrics.SetActive(remaining)
	return removed, s.writeResult(err)
}

// Run sweeps stale vehicles every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := s.Sweep(ctx); err != nil {
				slog.Warn("fleet: sweep failed", "err", err)
			} else if n > 0 {
				slog.Debug("fleet: swept stale vehicles", "count", n)
			}
		}
	}
}

// expire deletes every record whose age is at least the stale timeout and
// returns the number deleted.
func (s *Service) expire(snap types.Snapshot) int {
	now := s.now().UnixMilli()
	limit := s.StaleTimeout().Milliseconds()
	removed := 0
	for k, r := range snap {
		if now-r.LastUpdate() < limit {
			continue
		}
		slog.Info("fleet: auto-cleanup, removing stale vehicle", "id", k, "name", r.NameOr(k))
		delete(snap, k)
		removed++
	}
	s.metrics.VehiclesEvicted(removed)
	return removed
}

// writeResult drops snapshot write failures unless strict writes are on. The
// store has already logged them.
func (s *Service) writeResult(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrWrite) && !s.strictWrites {
		return nil
	}
	return err
}
