package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/session-planner/internal/application"
	"github.com/example/session-planner/internal/persistence"
)

const (
	maxUploadBytes       = 32 << 20
	maxUploadMemoryBytes = 8 << 20
)

type importService interface {
	Import(ctx context.Context, params application.ImportParams) (application.ImportResult, error)
	Imports(ctx context.Context, eventID, scheduleID string, limit int) ([]persistence.ImportRecord, error)
}

type ImportHandler struct {
	service   importService
	responder responder
	logger    *slog.Logger
}

func NewImportHandler(service importService, logger *slog.Logger) *ImportHandler {
	base := defaultLogger(logger)
	return &ImportHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ImportHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ImportHandler", operation, attrs...)
}

// Create accepts a multipart upload in the "file" field.
func (h *ImportHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, ok := ScheduleKeyFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}
	logger := h.log(r.Context(), "Create", "event_id", key.EventID, "schedule_id", key.ScheduleID)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.responder.writeError(r.Context(), w, http.StatusRequestEntityTooLarge, errUploadTooLarge)
			return
		}
		logger.WarnContext(r.Context(), "failed to parse multipart form", "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingFile)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to read upload", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.Import(r.Context(), application.ImportParams{
		EventID:    key.EventID,
		ScheduleID: key.ScheduleID,
		Filename:   header.Filename,
		Content:    content,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "import failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("import_id", result.ImportID).InfoContext(r.Context(), "import accepted")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, result)
}

// List responds with the import history of the schedule in the path.
func (h *ImportHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, ok := ScheduleKeyFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}

	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidLimit)
			return
		}
		limit = parsed
	}

	records, err := h.service.Imports(r.Context(), key.EventID, key.ScheduleID, limit)
	if err != nil {
		h.log(r.Context(), "List", "event_id", key.EventID, "schedule_id", key.ScheduleID).
			ErrorContext(r.Context(), "import history failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if records == nil {
		records = []persistence.ImportRecord{}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, importsResponse{Imports: records})
}

type importsResponse struct {
	Imports []persistence.ImportRecord `json:"imports"`
}
