package handlers

import (
	"context"
	"net/http"
	"time"
)

// Version is reported by the health endpoint.
var Version = "dev"

// Pinger is a store that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	timeout time.Duration
	store   Pinger
}

func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{timeout: 5 * time.Second, store: store}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Store   string `json:"store,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Handle reports ok, or unhealthy when the store cannot be reached.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok", Version: Version}
	if h.store == nil {
		respond(w, r, response, http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Store = "unreachable"
		response.Error = err.Error()
		respond(w, r, response, http.StatusServiceUnavailable)
		return
	}
	response.Store = "ok"
	respond(w, r, response, http.StatusOK)
}
