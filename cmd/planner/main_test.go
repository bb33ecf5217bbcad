package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/session-planner/internal/application"
	"github.com/example/session-planner/internal/backend"
	httptransport "github.com/example/session-planner/internal/http"
	"github.com/example/session-planner/internal/reconcile"
	"github.com/example/session-planner/internal/testfixtures"
)

func testEnv(t *testing.T, fake *testfixtures.Backend) map[string]string {
	t.Helper()
	return map[string]string{
		"PLANNER_BACKEND_URL":  fake.Server.URL,
		"PLANNER_SQLITE_DSN":   filepath.Join(t.TempDir(), "planner.db"),
		"PLANNER_LOG_LEVEL":    "error",
		"PLANNER_REFRESH_CRON": "off",
	}
}

func runCLI(t *testing.T, env map[string]string, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand(func(key string) string { return env[key] }, strings.NewReader(stdin), &stdout, &stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestParseDay(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.January, 13, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "2025-01-15", want: "2025-01-15"},
		{input: " 2025-02-01 ", want: "2025-02-01"},
		{input: "today", want: "2025-01-13"},
		{input: "tomorrow", want: "2025-01-14"},
		{input: "whenever it suits", wantErr: true},
	}

	for _, tc := range cases {
		got, err := parseDay(tc.input, now)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error, got %q", tc.input, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: expected %s, got %q (%v)", tc.input, tc.want, got, err)
		}
	}
}

func TestMissingConfigurationFails(t *testing.T) {
	t.Parallel()

	_, err := runCLI(t, map[string]string{}, "", "reconcile", "event-1", "main")
	if err == nil || !strings.Contains(err.Error(), "PLANNER_BACKEND_URL") {
		t.Fatalf("expected missing backend url error, got %v", err)
	}
}

func TestReconcileCommand(t *testing.T) {
	t.Parallel()

	fake := testfixtures.NewBackend(t)
	fake.SetSessions("event-1", append(testfixtures.KeynoteRecords(),
		testfixtures.NewRecord("Closing", testfixtures.WithID("closing"), testfixtures.WithDate("2025-01-14"))))
	env := testEnv(t, fake)

	out, err := runCLI(t, env, "", "reconcile", "event-1", "main")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	for _, want := range []string{"event-1 / main (UTC)", "Keynote", "Q&A", "Closing", "heuristic"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	out, err = runCLI(t, env, "", "reconcile", "event-1", "main", "--day", "2025-01-14", "--json")
	if err != nil {
		t.Fatalf("reconcile json: %v", err)
	}
	var body struct {
		Sessions []map[string]any `json:"sessions"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(body.Sessions) != 1 || body.Sessions[0]["id"] != "closing" || body.Sessions[0]["date"] != "2025-01-14" {
		t.Fatalf("expected only the closing session, got %+v", body.Sessions)
	}
}

func TestReconcileCommandWritesCalendar(t *testing.T) {
	t.Parallel()

	fake := testfixtures.NewBackend(t)
	fake.SetSessions("event-1", testfixtures.KeynoteRecords())
	icsPath := filepath.Join(t.TempDir(), "main.ics")

	if _, err := runCLI(t, testEnv(t, fake), "", "reconcile", "event-1", "main", "--ics", icsPath); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	data, err := os.ReadFile(icsPath)
	if err != nil {
		t.Fatalf("read calendar: %v", err)
	}
	if !strings.Contains(string(data), "BEGIN:VCALENDAR") || !strings.Contains(string(data), "SUMMARY:Keynote") {
		t.Fatalf("unexpected calendar:\n%s", data)
	}
}

func TestImportMappingsAndHistoryCommands(t *testing.T) {
	t.Parallel()

	fake := testfixtures.NewBackend(t)
	fake.SetSessions("event-1", testfixtures.KeynoteRecords())
	env := testEnv(t, fake)

	sheet := filepath.Join(t.TempDir(), "keynote.csv")
	if err := os.WriteFile(sheet, testfixtures.KeynoteSheet(), 0o600); err != nil {
		t.Fatalf("write sheet: %v", err)
	}

	out, err := runCLI(t, env, "", "import", "event-1", "main", sheet)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "stored 2 mappings") || !strings.Contains(out, "mappings linking") {
		t.Fatalf("unexpected import output:\n%s", out)
	}
	if uploads := fake.Uploads(); len(uploads) != 1 || uploads[0].Filename != "keynote.csv" {
		t.Fatalf("expected the sheet to be uploaded, got %+v", uploads)
	}

	out, err = runCLI(t, env, "", "mappings", "event-1")
	if err != nil {
		t.Fatalf("mappings: %v", err)
	}
	if !strings.Contains(out, "main") || !strings.Contains(out, "keynote.csv") {
		t.Fatalf("unexpected mappings output:\n%s", out)
	}

	out, err = runCLI(t, env, "", "imports", "event-1", "main")
	if err != nil {
		t.Fatalf("imports: %v", err)
	}
	if !strings.Contains(out, "keynote.csv") || !strings.Contains(out, "true") {
		t.Fatalf("unexpected history output:\n%s", out)
	}

	if _, err := runCLI(t, env, "", "mappings", "event-1", "main", "--clear"); err != nil {
		t.Fatalf("clear mappings: %v", err)
	}
	out, err = runCLI(t, env, "", "mappings", "event-1")
	if err != nil || !strings.Contains(out, "No mappings stored.") {
		t.Fatalf("expected mappings to be cleared, got %q %v", out, err)
	}
}

func TestImportCommandReportsValidation(t *testing.T) {
	t.Parallel()

	fake := testfixtures.NewBackend(t)
	notes := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(notes, []byte("not a sheet"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := runCLI(t, testEnv(t, fake), "", "import", "event-1", "main", notes)
	if err == nil || !strings.Contains(err.Error(), "file: unsupported file format") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

func TestHashTokenCommand(t *testing.T) {
	t.Parallel()

	out, err := runCLI(t, nil, "s3cret-token\n", "hash-token", "--memory", "1024", "--iterations", "1")
	if err != nil {
		t.Fatalf("hash-token: %v", err)
	}
	hash := strings.TrimSpace(out)
	if err := application.VerifyToken(hash, "s3cret-token"); err != nil {
		t.Fatalf("expected hash to verify: %v (%s)", err, hash)
	}

	if _, err := runCLI(t, nil, "\n", "hash-token"); err == nil {
		t.Fatalf("expected empty token to be rejected")
	}
}

func TestHandlerRequiresConfiguredToken(t *testing.T) {
	t.Parallel()

	fake := testfixtures.NewBackend(t)
	fake.SetSessions("event-1", testfixtures.KeynoteRecords())
	fake.SetTimezones(backend.Timezone{Identifier: "tokyo", IANAName: "Asia/Tokyo"})
	fake.SetEventTimezone("event-1", "tokyo")

	hash, err := application.HashToken("api-token", application.Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	env := testEnv(t, fake)
	env["PLANNER_API_TOKEN_HASH"] = hash

	var stderr bytes.Buffer
	c := &cli{getenv: func(key string) string { return env[key] }, stdout: &bytes.Buffer{}, stderr: &stderr}
	rt, err := c.open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()

	server := httptest.NewServer(newHandler(rt, newAuthenticator(rt.cfg, rt.logger), httptransport.LiveOptions{}))
	defer server.Close()

	get := func(path, token string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, server.URL+path, nil)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := server.Client().Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	if resp := get("/healthz", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", resp.StatusCode)
	}
	if resp := get("/events/event-1/schedules/main/sessions", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp := get("/events/event-1/schedules/main/sessions", "api-token")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
	var snapshot struct {
		Timezone string `json:"timezone"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot.Timezone != "Asia/Tokyo" {
		t.Fatalf("expected event timezone, got %q", snapshot.Timezone)
	}
}

func TestSchedulesCommand(t *testing.T) {
	t.Parallel()

	fake := testfixtures.NewBackend(t)
	fake.SetSessions("event-1", []reconcile.Record{
		testfixtures.NewRecord("Opening", testfixtures.WithSchedule("track-b")),
		testfixtures.NewRecord("Workshop", testfixtures.WithSchedule("track-a")),
	})
	env := testEnv(t, fake)

	out, err := runCLI(t, env, "", "schedules", "event-1")
	if err != nil {
		t.Fatalf("schedules: %v", err)
	}
	if !strings.Contains(out, "track-a") || !strings.Contains(out, "track-b") ||
		strings.Index(out, "track-a") > strings.Index(out, "track-b") {
		t.Fatalf("expected both schedules in id order:\n%s", out)
	}

	out, err = runCLI(t, env, "", "schedules", "event-2")
	if err != nil || !strings.Contains(out, "No schedules found.") {
		t.Fatalf("expected empty listing, got %q %v", out, err)
	}
}
