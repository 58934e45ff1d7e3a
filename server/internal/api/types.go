package api

// UpdateResponse is the payload for a successful POST /api/update.
type UpdateResponse struct {
	Status string `json:"status"`
	ID     any    `json:"id"` // echoes the id exactly as sent
}

// StatusResponse is the payload for DELETE /api/remove/{id}.
type StatusResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the payload for GET /api/health.
type HealthResponse struct {
	Status         string `json:"status"`
	Backend        string `json:"backend"`
	StaleTimeoutMs int64  `json:"stale_timeout_ms"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
