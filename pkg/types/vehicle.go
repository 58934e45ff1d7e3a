package types

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// Well-known record fields.
const (
	FieldID         = "id"
	FieldName       = "name"
	FieldType       = "type"
	FieldLat        = "lat"
	FieldLng        = "lng"
	FieldSpeed      = "speed"
	FieldStatus     = "status"
	FieldLastUpdate = "lastUpdate"
)

// DefaultName is stored for records reported without a name.
const DefaultName = "Unknown Unit"

var (
	// ErrNoID is returned by Key when the id field is absent or empty.
	ErrNoID = errors.New("no id provided")

	// ErrInvalidID is returned by Key when the id is neither a string nor a number.
	ErrInvalidID = errors.New("id must be a string or number")
)

// Record is one vehicle's latest reported state.
type Record map[string]any

// Snapshot maps a vehicle key to its record.
type Snapshot map[string]Record

// Key returns the snapshot key for the record's id field. String ids are used
// as-is; numeric ids are keyed by their literal text. Empty values (0, false,
// "", [], {}) count as missing.
func (r Record) Key() (string, error) {
	v, ok := r[FieldID]
	if !ok || v == nil {
		return "", ErrNoID
	}
	switch id := v.(type) {
	case string:
		if id == "" {
			return "", ErrNoID
		}
		return id, nil
	case json.Number:
		f, err := id.Float64()
		if err != nil {
			return "", ErrInvalidID
		}
		if f == 0 {
			return "", ErrNoID
		}
		return id.String(), nil
	case float64:
		if id == 0 {
			return "", ErrNoID
		}
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	case bool:
		if !id {
			return "", ErrNoID
		}
		return "", ErrInvalidID
	case []any:
		if len(id) == 0 {
			return "", ErrNoID
		}
		return "", ErrInvalidID
	case map[string]any:
		if len(id) == 0 {
			return "", ErrNoID
		}
		return "", ErrInvalidID
	default:
		return "", ErrInvalidID
	}
}

// Name returns the record's display name, or "" when it has none.
func (r Record) Name() string {
	s, _ := r[FieldName].(string)
	return s
}

// NameOr returns the display name, or fallback when the record has none.
func (r Record) NameOr(fallback string) string {
	if n := r.Name(); n != "" {
		return n
	}
	return fallback
}

// LastUpdate returns the server-assigned timestamp in Unix milliseconds.
// A missing or non-numeric value reads as 0.
func (r Record) LastUpdate() int64 {
	switch v := r[FieldLastUpdate].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// Stamp sets lastUpdate to t.
func (r Record) Stamp(t time.Time) {
	r[FieldLastUpdate] = t.UnixMilli()
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
