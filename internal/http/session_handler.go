package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/session-planner/internal/application"
	"github.com/example/session-planner/internal/calendar"
	"github.com/example/session-planner/internal/reconcile"
	"github.com/example/session-planner/internal/sessiontime"
)

type sessionService interface {
	Sessions(ctx context.Context, eventID, scheduleID string) (application.Snapshot, error)
	ResolveTimezone(ctx context.Context, eventID string) *time.Location
}

type SessionHandler struct {
	service   sessionService
	responder responder
	logger    *slog.Logger
}

func NewSessionHandler(service sessionService, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

// List responds with the reconciled snapshot of the schedule in the path.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, ok := ScheduleKeyFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}
	logger := h.log(r.Context(), "List", "event_id", key.EventID, "schedule_id", key.ScheduleID)

	day := strings.TrimSpace(r.URL.Query().Get("date"))
	if day != "" {
		if _, err := time.Parse(sessiontime.DayLayout, day); err != nil {
			logger.WarnContext(r.Context(), "invalid date filter", "date", day, "error_kind", "bad_request")
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return
		}
	}

	snapshot, err := h.service.Sessions(r.Context(), key.EventID, key.ScheduleID)
	if err != nil {
		logger.ErrorContext(r.Context(), "session listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	if day != "" {
		snapshot.Sessions = sessionsOnDay(snapshot.Sessions, day)
	}
	if snapshot.Stale {
		w.Header().Set("Warning", `110 - "Response is Stale"`)
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, snapshot)
}

// Calendar responds with the schedule as an iCalendar feed.
func (h *SessionHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, ok := ScheduleKeyFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}
	logger := h.log(r.Context(), "Calendar", "event_id", key.EventID, "schedule_id", key.ScheduleID)

	snapshot, err := h.service.Sessions(r.Context(), key.EventID, key.ScheduleID)
	if err != nil {
		logger.ErrorContext(r.Context(), "calendar export failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", key.ScheduleID+".ics"))
	skipped, err := calendar.Write(w, snapshot.Sessions, calendar.Options{
		Name:     key.ScheduleID,
		Location: h.service.ResolveTimezone(r.Context(), key.EventID),
		Domain:   key.EventID + ".session-planner",
		Stamp:    snapshot.RefreshedAt,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to write calendar", "error", err)
		return
	}
	if skipped > 0 {
		logger.InfoContext(r.Context(), "sessions without a day left out of calendar", "skipped", skipped)
	}
}

func sessionsOnDay(sessions []reconcile.Session, day string) []reconcile.Session {
	out := make([]reconcile.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.DayKey() == day {
			out = append(out, s)
		}
	}
	return out
}
