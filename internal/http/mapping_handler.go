package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/session-planner/internal/application"
	"github.com/example/session-planner/internal/persistence"
)

type mappingService interface {
	Mappings(ctx context.Context, eventID, scheduleID string) (persistence.MappingSet, error)
	MappingSets(ctx context.Context, eventID string) ([]persistence.MappingSet, error)
	ClearMappings(ctx context.Context, eventID, scheduleID string) error
}

type MappingHandler struct {
	service   mappingService
	responder responder
	logger    *slog.Logger
}

func NewMappingHandler(service mappingService, logger *slog.Logger) *MappingHandler {
	base := defaultLogger(logger)
	return &MappingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *MappingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "MappingHandler", operation, attrs...)
}

func (h *MappingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	key, ok := ScheduleKeyFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}

	set, err := h.service.Mappings(r.Context(), key.EventID, key.ScheduleID)
	if err != nil {
		h.log(r.Context(), "Get", "event_id", key.EventID, "schedule_id", key.ScheduleID).
			InfoContext(r.Context(), "mappings unavailable", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, set)
}

func (h *MappingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	key, ok := ScheduleKeyFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}

	if err := h.service.ClearMappings(r.Context(), key.EventID, key.ScheduleID); err != nil {
		h.log(r.Context(), "Delete", "event_id", key.EventID, "schedule_id", key.ScheduleID).
			ErrorContext(r.Context(), "clearing mappings failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// ListEvent responds with every stored mapping set of the event in the path.
func (h *MappingHandler) ListEvent(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	eventID := strings.TrimSpace(r.PathValue("eventID"))

	sets, err := h.service.MappingSets(r.Context(), eventID)
	if err != nil {
		h.log(r.Context(), "ListEvent", "event_id", eventID).
			ErrorContext(r.Context(), "listing mappings failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if sets == nil {
		sets = []persistence.MappingSet{}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, mappingSetsResponse{MappingSets: sets})
}

type mappingSetsResponse struct {
	MappingSets []persistence.MappingSet `json:"mappingSets"`
}
