package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/example/session-planner/internal/application"
)

type liveService interface {
	Sessions(ctx context.Context, eventID, scheduleID string) (application.Snapshot, error)
	Subscribe(eventID, scheduleID string) (<-chan application.Snapshot, func())
}

// LiveOptions configures websocket acceptance.
type LiveOptions struct {
	// OriginPatterns lists the host patterns allowed to connect cross origin.
	OriginPatterns []string
	// InsecureSkipVerify disables origin checks. Development only.
	InsecureSkipVerify bool
	WriteTimeout       time.Duration
}

// LiveHandler streams snapshots of one schedule over a websocket.
type LiveHandler struct {
	service   liveService
	opts      LiveOptions
	responder responder
	logger    *slog.Logger
}

func NewLiveHandler(service liveService, opts LiveOptions, logger *slog.Logger) *LiveHandler {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	base := defaultLogger(logger)
	return &LiveHandler{service: service, opts: opts, responder: newResponder(base), logger: base}
}

type liveMessage struct {
	Type     string                `json:"type"`
	Snapshot *application.Snapshot `json:"snapshot,omitempty"`
	Message  string                `json:"message,omitempty"`
}

func (h *LiveHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	key, ok := ScheduleKeyFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}
	logger := handlerLogger(r.Context(), h.logger, "LiveHandler", "Serve", "event_id", key.EventID, "schedule_id", key.ScheduleID)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.opts.OriginPatterns,
		InsecureSkipVerify: h.opts.InsecureSkipVerify,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "failed to accept websocket", "error", err)
		return
	}
	defer conn.CloseNow()

	updates, unsubscribe := h.service.Subscribe(key.EventID, key.ScheduleID)
	defer unsubscribe()

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// once the peer goes away.
	ctx := conn.CloseRead(r.Context())
	logger.InfoContext(ctx, "live subscriber connected")

	snapshot, err := h.service.Sessions(ctx, key.EventID, key.ScheduleID)
	if err != nil {
		logger.WarnContext(ctx, "initial snapshot unavailable", "error", err, "error_kind", application.ErrorKind(err))
		if writeErr := h.send(ctx, conn, liveMessage{Type: "error", Message: "セッション一覧を取得できませんでした。"}); writeErr != nil {
			return
		}
	} else if err := h.send(ctx, conn, liveMessage{Type: "snapshot", Snapshot: &snapshot}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(r.Context(), "live subscriber disconnected")
			return
		case next, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "subscription closed")
				return
			}
			if err := h.send(ctx, conn, liveMessage{Type: "snapshot", Snapshot: &next}); err != nil {
				logger.DebugContext(r.Context(), "live write failed", "error", err)
				return
			}
		}
	}
}

func (h *LiveHandler) send(ctx context.Context, conn *websocket.Conn, msg liveMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
