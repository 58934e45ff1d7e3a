package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fleetpulse/fleetpulse/pkg/types"
	"github.com/fleetpulse/fleetpulse/server/internal/metrics"
)

var (
	// ErrNoSnapshot is returned by a Backend when nothing has been persisted yet.
	ErrNoSnapshot = errors.New("store: no snapshot persisted")

	// ErrWrite wraps every failure to persist a snapshot.
	ErrWrite = errors.New("store: snapshot write failed")
)

// Backend reads and writes the serialized snapshot.
type Backend interface {
	// Read returns the persisted bytes, or ErrNoSnapshot.
	Read(ctx context.Context) ([]byte, error)

	// Write replaces the persisted bytes.
	Write(ctx context.Context, data []byte) error

	// Name identifies the backend in logs and health output.
	Name() string

	Close() error
}

// Store loads and saves whole snapshots through a Backend.
type Store struct {
	backend   Backend
	metrics   *metrics.Metrics
	serialize bool
	mu        sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithSerializedUpdates makes Update hold a mutex from load to save so
// concurrent transactions cannot lose each other's writes.
func WithSerializedUpdates() Option {
	return func(s *Store) { s.serialize = true }
}

// WithMetrics counts read and write failures in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a Store over b.
func New(b Backend, opts ...Option) *Store {
	s := &Store{backend: b}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Backend returns the name of the underlying backend.
func (s *Store) Backend() string {
	return s.backend.Name()
}

// Load returns the persisted snapshot. It never fails: a missing, unreadable
// or corrupt snapshot yields an empty one.
func (s *Store) Load(ctx context.Context) types.Snapshot {
	data, err := s.backend.Read(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return types.Snapshot{}
	}
	if err != nil {
		slog.Warn("store: snapshot read failed, using empty snapshot",
			"backend", s.backend.Name(), "err", err)
		s.metrics.SnapshotReadFailed()
		return types.Snapshot{}
	}

	snap, err := Decode(data)
	if err != nil {
		slog.Warn("store: snapshot is corrupt, using empty snapshot",
			"backend", s.backend.Name(), "err", err)
		s.metrics.SnapshotReadFailed()
		return types.Snapshot{}
	}
	return snap
}

// Save persists snap in full. On failure the previous snapshot is left in
// place and the error, wrapping ErrWrite, is logged and returned.
func (s *Store) Save(ctx context.Context, snap types.Snapshot) error {
	data, err := Encode(snap)
	if err == nil {
		err = s.backend.Write(ctx, data)
	}
	if err != nil {
		slog.Error("store: error saving snapshot", "backend", s.backend.Name(), "err", err)
		s.metrics.SnapshotWriteFailed()
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// Update loads the snapshot, passes it to fn, and saves it if fn reports a
// change. An error from fn aborts the transaction without saving.
func (s *Store) Update(ctx context.Context, fn func(types.Snapshot) (bool, error)) error {
	if s.serialize {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	snap := s.Load(ctx)
	changed, err := fn(snap)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.Save(ctx, snap)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Encode serializes snap as JSON indented by four spaces.
func Encode(snap types.Snapshot) ([]byte, error) {
	if snap == nil {
		snap = types.Snapshot{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(snap); err != nil {
		return nil, fmt.Errorf("store: encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a serialized snapshot. Numbers are kept as json.Number so
// reported fields survive a round trip unchanged. Blank input is an empty
// snapshot; null entries are dropped.
func Decode(data []byte) (types.Snapshot, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return types.Snapshot{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var snap types.Snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("store: decode snapshot: %w", err)
	}
	if snap == nil {
		return types.Snapshot{}, nil
	}
	for k, r := range snap {
		if r == nil {
			delete(snap, k)
		}
	}
	return snap, nil
}
