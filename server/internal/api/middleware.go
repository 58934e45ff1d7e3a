package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests tags each request with an ID, counts it and logs it at debug.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.metrics.ObserveRequest(routeOf(r.URL.Path), r.Method, rec.status)
		slog.Debug("api: request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// allowedMethods lists what each route answers, for OPTIONS requests that
// are not CORS preflights.
var allowedMethods = map[string]string{
	"/api/vehicles": "GET, OPTIONS",
	"/api/update":   "OPTIONS, POST",
	"/api/remove":   "DELETE, OPTIONS",
	"/api/health":   "GET, OPTIONS",
}

// answerOptions replies 200 with an Allow header to a plain OPTIONS on a
// known route. Preflights never reach it; the CORS middleware answers them.
func answerOptions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allow, ok := allowedMethods[routeOf(r.URL.Path)]
		if r.Method != http.MethodOptions || !ok {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allow)
		w.WriteHeader(http.StatusOK)
	})
}

// routeOf maps a request path to its route pattern so vehicle ids do not
// become metric labels.
func routeOf(path string) string {
	switch {
	case path == "/api/vehicles", path == "/api/update", path == "/api/health":
		return path
	case strings.HasPrefix(path, "/api/remove/"):
		return "/api/remove"
	default:
		return "other"
	}
}
