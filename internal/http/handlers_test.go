package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/session-planner/internal/application"
	"github.com/example/session-planner/internal/persistence"
	"github.com/example/session-planner/internal/reconcile"
	"github.com/example/session-planner/internal/sessiontime"
)

type stubPlanner struct {
	mu sync.Mutex

	snapshot    application.Snapshot
	sessionsErr error

	importParams application.ImportParams
	importResult application.ImportResult
	importErr    error

	mappings    persistence.MappingSet
	mappingsErr error
	cleared     []application.ScheduleKey

	imports    []persistence.ImportRecord
	importsArg int

	updates chan application.Snapshot
}

func (s *stubPlanner) Sessions(_ context.Context, eventID, scheduleID string) (application.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionsErr != nil {
		return application.Snapshot{}, s.sessionsErr
	}
	snap := s.snapshot
	snap.EventID, snap.ScheduleID = eventID, scheduleID
	return snap, nil
}

func (s *stubPlanner) ResolveTimezone(context.Context, string) *time.Location {
	return time.UTC
}

func (s *stubPlanner) Import(_ context.Context, params application.ImportParams) (application.ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.importParams = params
	return s.importResult, s.importErr
}

func (s *stubPlanner) Imports(_ context.Context, _, _ string, limit int) ([]persistence.ImportRecord, error) {
	s.importsArg = limit
	return s.imports, nil
}

func (s *stubPlanner) Mappings(context.Context, string, string) (persistence.MappingSet, error) {
	return s.mappings, s.mappingsErr
}

func (s *stubPlanner) MappingSets(_ context.Context, eventID string) ([]persistence.MappingSet, error) {
	if s.mappingsErr != nil {
		return nil, s.mappingsErr
	}
	return []persistence.MappingSet{s.mappings}, nil
}

func (s *stubPlanner) ClearMappings(_ context.Context, eventID, scheduleID string) error {
	s.cleared = append(s.cleared, application.ScheduleKey{EventID: eventID, ScheduleID: scheduleID})
	return nil
}

func (s *stubPlanner) Subscribe(string, string) (<-chan application.Snapshot, func()) {
	var once sync.Once
	return s.updates, func() { once.Do(func() {}) }
}

func testSnapshot() application.Snapshot {
	day := time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)
	mk := func(id, title, start, end string, date time.Time, hasDate bool) reconcile.Session {
		return reconcile.Session{
			ID:      id,
			Title:   title,
			Start:   sessiontime.NormalizeTime(start, time.UTC),
			End:     sessiontime.NormalizeTime(end, time.UTC),
			Date:    date,
			HasDate: hasDate,
			Type:    reconcile.TypeParent,
		}
	}
	keynote := mk("k", "Keynote", "09:00", "10:00", day, true)
	qa := mk("q", "Q&A", "09:30", "09:45", day, true)
	qa.Type, qa.ParentID = reconcile.TypeChild, "k"
	second := mk("d2", "Closing", "17:00", "18:00", day.AddDate(0, 0, 1), true)
	return application.Snapshot{
		Timezone:    "UTC",
		Sessions:    []reconcile.Session{keynote, qa, second},
		Report:      reconcile.Report{Strategy: reconcile.StrategyHeuristic, Records: 3},
		RefreshedAt: time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC),
	}
}

func newTestRouter(planner *stubPlanner, auth TokenAuthenticator) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := RouterConfig{
		Sessions:   NewSessionHandler(planner, logger),
		Imports:    NewImportHandler(planner, logger),
		Mappings:   NewMappingHandler(planner, logger),
		Live:       NewLiveHandler(planner, LiveOptions{InsecureSkipVerify: true}, logger),
		Health:     NewHealthHandler(nil, logger),
		Middleware: []func(http.Handler) http.Handler{RequestLogger(logger)},
	}
	if auth != nil {
		cfg.Auth = RequireToken(auth, logger)
	}
	return NewRouter(cfg)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestSessionHandlerList(t *testing.T) {
	t.Parallel()

	planner := &stubPlanner{snapshot: testSnapshot()}
	router := newTestRouter(planner, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/e1/schedules/s1/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		EventID    string           `json:"eventId"`
		ScheduleID string           `json:"scheduleId"`
		Sessions   []map[string]any `json:"sessions"`
		Report     reconcile.Report `json:"report"`
	}
	decodeBody(t, rec, &body)
	if body.EventID != "e1" || body.ScheduleID != "s1" || len(body.Sessions) != 3 {
		t.Fatalf("unexpected body %+v", body)
	}
	qa := body.Sessions[1]
	if qa["parentId"] != "k" || qa["date"] != "2025-01-13" {
		t.Fatalf("unexpected child payload %v", qa)
	}
	start, _ := qa["startTime"].(map[string]any)
	if start["time"] != "09:30" || start["period"] != "AM" {
		t.Fatalf("unexpected start payload %v", qa["startTime"])
	}
}

func TestSessionHandlerDayFilter(t *testing.T) {
	t.Parallel()

	planner := &stubPlanner{snapshot: testSnapshot()}
	router := newTestRouter(planner, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/e1/schedules/s1/sessions?date=2025-01-14", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var raw struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
	}
	decodeBody(t, rec, &raw)
	if len(raw.Sessions) != 1 || raw.Sessions[0].ID != "d2" {
		t.Fatalf("expected only the second day, got %+v", raw.Sessions)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/e1/schedules/s1/sessions?date=tomorrow", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid date, got %d", rec.Code)
	}
}

func TestSessionHandlerMapsServiceErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "source unavailable", err: application.ErrSourceUnavailable, status: http.StatusServiceUnavailable},
		{name: "not found", err: application.ErrNotFound, status: http.StatusNotFound},
		{name: "validation", err: &application.ValidationError{FieldErrors: map[string]string{"eventId": "event id is required"}}, status: http.StatusUnprocessableEntity},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			router := newTestRouter(&stubPlanner{sessionsErr: tc.err}, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/e1/schedules/s1/sessions", nil))
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			var body errorResponse
			decodeBody(t, rec, &body)
			if body.Message == "" {
				t.Fatalf("expected localized message")
			}
			if tc.status == http.StatusUnprocessableEntity && body.Errors["eventId"] != "イベント ID は必須です。" {
				t.Fatalf("expected translated field error, got %v", body.Errors)
			}
		})
	}
}

func TestSessionHandlerCalendar(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&stubPlanner{snapshot: testSnapshot()}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/e1/schedules/s1/sessions.ics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	if strings.Count(body, "BEGIN:VEVENT") != 3 {
		t.Fatalf("expected 3 events:\n%s", body)
	}
	if !strings.Contains(body, "RELATED-TO:k@e1.session-planner") {
		t.Fatalf("expected child relation in feed:\n%s", body)
	}
}

func multipartUpload(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestImportHandlerCreate(t *testing.T) {
	t.Parallel()

	planner := &stubPlanner{importResult: application.ImportResult{ImportID: "imp-1", Rows: 2, Mappings: 2, MappingsSaved: true, Uploaded: true}}
	router := newTestRouter(planner, nil)

	body, contentType := multipartUpload(t, "file", "sessions.csv", "Title,Date\n")
	req := httptest.NewRequest(http.MethodPost, "/events/e1/schedules/s1/import", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var result application.ImportResult
	decodeBody(t, rec, &result)
	if result.ImportID != "imp-1" || !result.MappingsSaved {
		t.Fatalf("unexpected result %+v", result)
	}
	if planner.importParams.EventID != "e1" || planner.importParams.ScheduleID != "s1" ||
		planner.importParams.Filename != "sessions.csv" || string(planner.importParams.Content) != "Title,Date\n" {
		t.Fatalf("unexpected import params %+v", planner.importParams)
	}
}

func TestImportHandlerRejectsBadRequests(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&stubPlanner{}, nil)

	body, contentType := multipartUpload(t, "attachment", "sessions.csv", "x")
	req := httptest.NewRequest(http.MethodPost, "/events/e1/schedules/s1/import", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without file field, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/e1/schedules/s1/import", nil))
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("expected 405 with Allow header, got %d", rec.Code)
	}
}

func TestImportHandlerUploadFailure(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&stubPlanner{importErr: application.ErrUploadFailed}, nil)
	body, contentType := multipartUpload(t, "file", "sessions.csv", "x")
	req := httptest.NewRequest(http.MethodPost, "/events/e1/schedules/s1/import", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestImportHandlerList(t *testing.T) {
	t.Parallel()

	planner := &stubPlanner{imports: []persistence.ImportRecord{{ID: "imp-1", EventID: "e1", ScheduleID: "s1"}}}
	router := newTestRouter(planner, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/e1/schedules/s1/imports?limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body importsResponse
	decodeBody(t, rec, &body)
	if len(body.Imports) != 1 || planner.importsArg != 5 {
		t.Fatalf("unexpected history %+v (limit %d)", body, planner.importsArg)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/e1/schedules/s1/imports?limit=-1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", rec.Code)
	}
}

func TestMappingHandlers(t *testing.T) {
	t.Parallel()

	planner := &stubPlanner{mappings: persistence.MappingSet{EventID: "e1", ScheduleID: "s1", SourceName: "sheet.xlsx"}}
	router := newTestRouter(planner, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/e1/schedules/s1/mappings", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var set persistence.MappingSet
	decodeBody(t, rec, &set)
	if set.SourceName != "sheet.xlsx" {
		t.Fatalf("unexpected mapping set %+v", set)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/e1/mappings", nil))
	var sets mappingSetsResponse
	decodeBody(t, rec, &sets)
	if len(sets.MappingSets) != 1 {
		t.Fatalf("expected one mapping set, got %+v", sets)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/events/e1/schedules/s1/mappings", nil))
	if rec.Code != http.StatusNoContent || len(planner.cleared) != 1 {
		t.Fatalf("expected 204 and one clear, got %d / %v", rec.Code, planner.cleared)
	}

	missing := newTestRouter(&stubPlanner{mappingsErr: application.ErrNotFound}, nil)
	rec = httptest.NewRecorder()
	missing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/e1/schedules/s1/mappings", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing mappings, got %d", rec.Code)
	}
}

func TestRouterAuthSkipsHealth(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&stubPlanner{snapshot: testSnapshot()}, &fakeAuthenticator{accept: "secret"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected health check without token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/e1/schedules/s1/sessions", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/events/e1/schedules/s1/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
}

type failingPinger struct{ err error }

func (p failingPinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewHealthHandler(failingPinger{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	NewHealthHandler(failingPinger{err: errors.New("locked")}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
