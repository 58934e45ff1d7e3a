package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetpulse/fleetpulse/agent/internal/config"
	"github.com/fleetpulse/fleetpulse/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0

	requestIDHeader = "X-Request-ID"
	userAgent       = "fleetpulse-agent"
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// Shipper buffers vehicle reports and POSTs them to fleetpulse-server.
// Ship() is non-blocking; when the buffer is full the oldest report is evicted.
// Run() must be called in a goroutine to drain the buffer.
type Shipper struct {
	cfg    config.AgentConfig
	base   string
	buf    chan types.Record
	client *http.Client

	// sendMu is held across every request so a removal cannot overtake an
	// update that is already on the wire.
	sendMu sync.Mutex

	mu      sync.Mutex
	removed map[string]bool // units whose buffered reports must not be sent

	// backoff bounds; overridden by tests
	boInitial time.Duration
	boMax     time.Duration
}

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) *Shipper {
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	return &Shipper{
		cfg:  cfg,
		base: strings.TrimRight(cfg.ServerURL, "/"),
		buf:  make(chan types.Record, size),
		client: &http.Client{
			Transport: &headerRoundTripper{base: http.DefaultTransport},
			Timeout:   cfg.RequestTimeout,
		},
		removed:   make(map[string]bool),
		boInitial: backoffInitial,
		boMax:     backoffMax,
	}
}

// Ship enqueues rec for delivery. If the buffer is full the oldest entry is
// evicted to make room. Shipping a unit that was removed makes it live again.
func (s *Shipper) Ship(rec types.Record) {
	if key, err := rec.Key(); err == nil {
		s.mu.Lock()
		delete(s.removed, key)
		s.mu.Unlock()
	}

	select {
	case s.buf <- rec:
	default:
		// Buffer full: drop the oldest report, keep the newest.
		select {
		case old := <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest report",
				"id", old[types.FieldID], "buffer_cap", cap(s.buf))
		default:
		}
		select {
		case s.buf <- rec:
		default:
		}
	}
}

// Pending returns the number of buffered reports.
func (s *Shipper) Pending() int { return len(s.buf) }

// Run drains the buffer, posting reports to the server. A report that fails
// with a transport error or a 5xx is retried with exponential backoff; a 4xx
// discards it. Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff(s.boInitial, s.boMax)

	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-s.buf:
			if !s.deliver(ctx, rec, bo) {
				return
			}
		}
	}
}

// deliver sends rec until it succeeds, is rejected, or ctx ends. It returns
// false only when ctx was cancelled.
func (s *Shipper) deliver(ctx context.Context, rec types.Record, bo *backoff) bool {
	for {
		skipped, err := s.postUnlessRemoved(ctx, rec)
		if skipped {
			slog.Debug("shipper: dropped report for removed unit", "id", rec[types.FieldID])
			return true
		}
		if err == nil {
			bo.reset()
			slog.Debug("shipper: report delivered", "id", rec[types.FieldID])
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		if isPermanent(err) {
			slog.Error("shipper: server rejected report, discarding",
				"id", rec[types.FieldID], "err", err)
			return true
		}

		wait := bo.next()
		slog.Warn("shipper: send failed, will retry",
			"id", rec[types.FieldID],
			"err", err,
			"retry_in", wait)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

// postUnlessRemoved posts rec unless its unit has been removed since it was
// shipped.
func (s *Shipper) postUnlessRemoved(ctx context.Context, rec types.Record) (skipped bool, err error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if key, kerr := rec.Key(); kerr == nil && s.isRemoved(key) {
		return true, nil
	}
	return false, s.post(ctx, rec)
}

func (s *Shipper) isRemoved(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removed[key]
}

// post sends one report to POST /api/update.
func (s *Shipper) post(ctx context.Context, rec types.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return &StatusError{Code: http.StatusBadRequest, Body: "encode: " + err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/api/update", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

// Remove asks the server to forget unit id (DELETE /api/remove/{id}).
// Reports for id still in the buffer are dropped, and an update already in
// flight finishes first, so the unit does not reappear after removal. A unit
// the server no longer knows counts as removed.
func (s *Shipper) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	s.removed[id] = true
	s.mu.Unlock()

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.base+"/api/remove/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	err = s.do(req)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		slog.Debug("shipper: unit already gone", "id", id)
		return nil
	}
	return err
}

func (s *Shipper) do(req *http.Request) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
}

// isPermanent reports whether err means the report itself is bad and should
// not be retried.
func isPermanent(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

// headerRoundTripper tags every outgoing request with a request ID and the
// agent's user agent.
type headerRoundTripper struct {
	base http.RoundTripper
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set(requestIDHeader, uuid.NewString())
	req.Header.Set("User-Agent", userAgent)
	return t.base.RoundTrip(req)
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, ceiling time.Duration) *backoff {
	return &backoff{initial: initial, max: ceiling, current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	// Advance for next call.
	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.initial
}
