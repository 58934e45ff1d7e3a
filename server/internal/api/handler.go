package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rs/cors"

	"github.com/fleetpulse/fleetpulse/pkg/types"
	"github.com/fleetpulse/fleetpulse/server/internal/fleet"
	"github.com/fleetpulse/fleetpulse/server/internal/metrics"
)

// maxBodyBytes caps the size of an update payload.
const maxBodyBytes = 1 << 20

// Options configures the API handler.
type Options struct {
	// AllowedOrigins lists origins allowed cross-origin access; nil means "*".
	AllowedOrigins []string

	// Backend is reported by /api/health.
	Backend string

	Metrics *metrics.Metrics
}

// Handler is the HTTP handler for all /api/* endpoints.
type Handler struct {
	fleet   *fleet.Service
	backend string
	metrics *metrics.Metrics
	mux     *http.ServeMux
	chain   http.Handler
}

// New creates a Handler wired to svc and registers all routes.
func New(svc *fleet.Service, opts Options) http.Handler {
	h := &Handler{
		fleet:   svc,
		backend: opts.Backend,
		metrics: opts.Metrics,
		mux:     http.NewServeMux(),
	}

	h.mux.HandleFunc("/api/vehicles", h.listVehicles)
	h.mux.HandleFunc("/api/update", h.updateVehicle)
	h.mux.HandleFunc("/api/remove/", h.removeVehicle) // subtree: extracts {id}
	h.mux.HandleFunc("/api/health", h.health)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{requestIDHeader},

		OptionsSuccessStatus: http.StatusOK,
	})
	h.chain = h.logRequests(c.Handler(answerOptions(h.mux)))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.chain.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// listVehicles returns GET /api/vehicles: all live vehicles.
func (h *Handler) listVehicles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	vehicles, err := h.fleet.List(r.Context())
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, vehicles)
}

// updateVehicle handles POST /api/update: store a vehicle's reported state.
func (h *Handler) updateVehicle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	payload, err := decodeRecord(w, r)
	if err != nil {
		slog.Debug("api: rejected update body", "err", err)
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := h.fleet.Upsert(r.Context(), payload)
	switch {
	case errors.Is(err, fleet.ErrMissingID):
		jsonErr(w, http.StatusBadRequest, "No ID provided")
		return
	case errors.Is(err, fleet.ErrInvalidID):
		jsonErr(w, http.StatusBadRequest, "id must be a string or number")
		return
	case err != nil:
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	jsonResp(w, http.StatusOK, UpdateResponse{Status: "success", ID: rec[types.FieldID]})
}

// removeVehicle handles DELETE /api/remove/{id}.
func (h *Handler) removeVehicle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/remove/")
	if id == "" {
		jsonResp(w, http.StatusNotFound, StatusResponse{Status: "not_found"})
		return
	}

	err := h.fleet.Remove(r.Context(), id)
	switch {
	case errors.Is(err, fleet.ErrNotFound):
		jsonResp(w, http.StatusNotFound, StatusResponse{Status: "not_found"})
	case err != nil:
		jsonErr(w, http.StatusInternalServerError, err.Error())
	default:
		jsonResp(w, http.StatusOK, StatusResponse{Status: "removed"})
	}
}

// health returns GET /api/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		Backend:        h.backend,
		StaleTimeoutMs: h.fleet.StaleTimeout().Milliseconds(),
	})
}

// --- helpers ----------------------------------------------------------------

// decodeRecord parses the request body as one JSON object. Numbers are kept
// as json.Number so they are stored exactly as sent.
func decodeRecord(w http.ResponseWriter, r *http.Request) (types.Record, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var rec types.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON object")
	}
	if rec == nil {
		return nil, fmt.Errorf("body is null")
	}
	return rec, nil
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
