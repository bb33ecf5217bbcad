package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store     Pinger
	responder responder
	logger    *slog.Logger
}

func NewHealthHandler(store Pinger, logger *slog.Logger) *HealthHandler {
	base := defaultLogger(logger)
	return &HealthHandler{store: store, responder: newResponder(base), logger: base}
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet, http.MethodHead)
		return
	}
	if h.store == nil {
		h.responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		handlerLogger(r.Context(), h.logger, "HealthHandler", "Check").WarnContext(r.Context(), "store ping failed", "error", err)
		h.responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Store: "unreachable"})
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok", Store: "ok"})
}
