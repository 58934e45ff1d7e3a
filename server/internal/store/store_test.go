package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/fleetpulse/fleetpulse/pkg/types"
	"github.com/fleetpulse/fleetpulse/server/internal/metrics"
)

// failingBackend returns its configured errors from Read and Write.
type failingBackend struct {
	readErr  error
	writeErr error
	data     []byte
}

func (f *failingBackend) Read(context.Context) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.data, nil
}

func (f *failingBackend) Write(_ context.Context, data []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.data = data
	return nil
}

func (f *failingBackend) Name() string { return "failing" }
func (f *failingBackend) Close() error { return nil }

func TestLoad_NoSnapshot(t *testing.T) {
	st := New(NewMemory())
	snap := st.Load(context.Background())
	if snap == nil || len(snap) != 0 {
		t.Fatalf("Load on empty backend: got %v, want empty map", snap)
	}
}

func TestLoad_CorruptIsEmpty(t *testing.T) {
	mem := NewMemory()
	mem.Write(context.Background(), []byte("{not json")) //nolint:errcheck
	m := metrics.New()
	st := New(mem, WithMetrics(m))

	if snap := st.Load(context.Background()); len(snap) != 0 {
		t.Fatalf("Load corrupt: got %d records, want 0", len(snap))
	}
	if got := counterValue(t, m, "fleetpulse_snapshot_read_failures_total"); got != 1 {
		t.Errorf("read failures: got %v, want 1", got)
	}
}

func TestLoad_ReadErrorIsEmpty(t *testing.T) {
	st := New(&failingBackend{readErr: errors.New("disk on fire")})
	if snap := st.Load(context.Background()); len(snap) != 0 {
		t.Fatalf("Load with read error: got %d records, want 0", len(snap))
	}
}

func TestSaveLoad_RoundTripKeepsNumbers(t *testing.T) {
	st := New(NewMemory())
	ctx := context.Background()

	in := types.Snapshot{
		"v1": {"id": "v1", "name": "Truck A", "lat": json.Number("51.50735"), "lng": json.Number("-0.12776"), "lastUpdate": int64(1700000000000)},
	}
	if err := st.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out := st.Load(ctx)
	r, ok := out["v1"]
	if !ok {
		t.Fatal("v1 missing after round trip")
	}
	if r["lat"] != json.Number("51.50735") {
		t.Errorf("lat: got %#v", r["lat"])
	}
	if r.LastUpdate() != 1700000000000 {
		t.Errorf("lastUpdate: got %d", r.LastUpdate())
	}
}

func TestEncode_IndentedAndUnescaped(t *testing.T) {
	data, err := Encode(types.Snapshot{"a&b": {"id": "a&b", "name": "<Van>"}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, "\n    \"a&b\": {\n        ") {
		t.Errorf("expected four-space indentation, got:\n%s", s)
	}
	if !strings.Contains(s, "<Van>") {
		t.Errorf("expected unescaped HTML characters, got:\n%s", s)
	}
}

func TestDecode_BlankAndNull(t *testing.T) {
	snap, err := Decode([]byte("  \n"))
	if err != nil || len(snap) != 0 {
		t.Errorf("blank: got %v, %v", snap, err)
	}
	snap, err = Decode([]byte("null"))
	if err != nil || snap == nil || len(snap) != 0 {
		t.Errorf("null: got %v, %v", snap, err)
	}
	snap, err = Decode([]byte(`{"v1": null, "v2": {"id": "v2"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := snap["v1"]; ok {
		t.Error("null entry v1 should be dropped")
	}
	if _, ok := snap["v2"]; !ok {
		t.Error("v2 missing")
	}
}

func TestDecode_NonObjectEntryIsCorrupt(t *testing.T) {
	if _, err := Decode([]byte(`{"v1": 5}`)); err == nil {
		t.Fatal("expected error for non-object record")
	}
}

func TestSave_FailureKeepsPrevious(t *testing.T) {
	fb := &failingBackend{data: []byte(`{"v1": {"id": "v1"}}`)}
	m := metrics.New()
	st := New(fb, WithMetrics(m))

	fb.writeErr = errors.New("read-only filesystem")
	err := st.Save(context.Background(), types.Snapshot{})
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("Save: got %v, want ErrWrite", err)
	}
	if !strings.Contains(err.Error(), "read-only filesystem") {
		t.Errorf("Save error should carry the cause: %v", err)
	}
	if got := st.Load(context.Background()); len(got) != 1 {
		t.Errorf("previous snapshot lost: got %d records", len(got))
	}
	if got := counterValue(t, m, "fleetpulse_snapshot_write_failures_total"); got != 1 {
		t.Errorf("write failures: got %v, want 1", got)
	}
}

func TestUpdate_NoChangeSkipsWrite(t *testing.T) {
	mem := NewMemory()
	st := New(mem)
	err := st.Update(context.Background(), func(types.Snapshot) (bool, error) { return false, nil })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if mem.Bytes() != nil {
		t.Errorf("unchanged Update wrote %q", mem.Bytes())
	}
}

func TestUpdate_ErrorAborts(t *testing.T) {
	mem := NewMemory()
	st := New(mem)
	boom := errors.New("boom")
	err := st.Update(context.Background(), func(s types.Snapshot) (bool, error) {
		s["v1"] = types.Record{"id": "v1"}
		return true, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update: got %v, want boom", err)
	}
	if mem.Bytes() != nil {
		t.Errorf("aborted Update wrote %q", mem.Bytes())
	}
}

func TestUpdate_ChangePersists(t *testing.T) {
	st := New(NewMemory())
	ctx := context.Background()
	err := st.Update(ctx, func(s types.Snapshot) (bool, error) {
		s["v1"] = types.Record{"id": "v1"}
		return true, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, ok := st.Load(ctx)["v1"]; !ok {
		t.Error("v1 not persisted")
	}
}

func TestUpdate_SerializedKeepsAllWrites(t *testing.T) {
	st := New(NewMemory(), WithSerializedUpdates())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("v%d", n)
			st.Update(ctx, func(s types.Snapshot) (bool, error) { //nolint:errcheck
				s[id] = types.Record{"id": id}
				return true, nil
			})
		}(i)
	}
	wg.Wait()

	if got := len(st.Load(ctx)); got != 50 {
		t.Errorf("records after serialized updates: got %d, want 50", got)
	}
}

func TestBackendName(t *testing.T) {
	if got := New(NewMemory()).Backend(); got != "memory" {
		t.Errorf("Backend: got %q, want memory", got)
	}
}

func counterValue(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	for _, mf := range m.Gather() {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
