package testfixtures

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/example/session-planner/internal/backend"
	"github.com/example/session-planner/internal/reconcile"
)

// Upload is a sheet received by a fake backend.
type Upload struct {
	EventID    string
	ScheduleID string
	Filename   string
	Content    []byte
}

// Backend is an in-process stand-in for the session backend API.
type Backend struct {
	Server *httptest.Server

	mu         sync.Mutex
	sessions   map[string][]reconcile.Record
	eventZones map[string]string
	zones      []backend.Timezone
	uploads    []Upload
	failing    bool
}

// NewBackend starts a fake backend that is closed when tb finishes.
func NewBackend(tb testing.TB) *Backend {
	tb.Helper()

	b := &Backend{
		sessions:   make(map[string][]reconcile.Record),
		eventZones: make(map[string]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events/{eventID}/sessions", b.listSessions)
	mux.HandleFunc("GET /events/{eventID}/schedules", b.listSchedules)
	mux.HandleFunc("GET /events/{eventID}", b.getEvent)
	mux.HandleFunc("GET /timezones", b.listTimezones)
	mux.HandleFunc("POST /events/{eventID}/schedules/{scheduleID}/import", b.upload)
	b.Server = httptest.NewServer(b.guard(mux))
	tb.Cleanup(b.Server.Close)
	return b
}

// Client returns an API client pointed at the fake.
func (b *Backend) Client(tb testing.TB) *backend.Client {
	tb.Helper()
	client, err := backend.New(b.Server.URL,
		backend.WithHTTPClient(b.Server.Client()),
		backend.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		tb.Fatalf("backend client: %v", err)
	}
	return client
}

// SetSessions replaces the records served for eventID.
func (b *Backend) SetSessions(eventID string, records []reconcile.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[eventID] = records
}

// SetEventTimezone stores the timezone identifier of an event.
func (b *Backend) SetEventTimezone(eventID, identifier string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eventZones[eventID] = identifier
}

// SetTimezones replaces the timezone directory.
func (b *Backend) SetTimezones(zones ...backend.Timezone) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.zones = zones
}

// SetFailing makes every request answer 503.
func (b *Backend) SetFailing(failing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing = failing
}

// Uploads returns the sheets received so far.
func (b *Backend) Uploads() []Upload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Upload(nil), b.uploads...)
}

func (b *Backend) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		failing := b.failing
		b.mu.Unlock()
		if failing {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) listSessions(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	records := b.sessions[r.PathValue("eventID")]
	b.mu.Unlock()
	if records == nil {
		records = []reconcile.Record{}
	}
	writeJSON(w, map[string]any{"data": records})
}

func (b *Backend) listSchedules(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	records := b.sessions[r.PathValue("eventID")]
	b.mu.Unlock()

	seen := make(map[string]bool)
	schedules := []backend.Schedule{}
	for _, record := range records {
		id, _ := record["scheduleId"].(string)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		schedules = append(schedules, backend.Schedule{ID: id, Name: id})
	}
	sort.Slice(schedules, func(i, j int) bool { return schedules[i].ID < schedules[j].ID })
	writeJSON(w, schedules)
}

func (b *Backend) getEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	b.mu.Lock()
	zone := b.eventZones[eventID]
	b.mu.Unlock()
	writeJSON(w, map[string]any{"data": map[string]any{"id": eventID, "timezone": zone}})
}

func (b *Backend) listTimezones(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	zones := append([]backend.Timezone{}, b.zones...)
	b.mu.Unlock()
	writeJSON(w, map[string]any{"timezones": zones})
}

func (b *Backend) upload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.uploads = append(b.uploads, Upload{
		EventID:    r.PathValue("eventID"),
		ScheduleID: r.PathValue("scheduleID"),
		Filename:   header.Filename,
		Content:    content,
	})
	b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "queued"})
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
