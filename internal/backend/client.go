// Package backend is the HTTP client of the event backend: it lists sessions,
// schedules and timezones and forwards uploaded import sheets.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/example/session-planner/internal/reconcile"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 16 << 20
)

// ErrUnavailable wraps transport failures and 5xx responses.
var ErrUnavailable = errors.New("backend: unavailable")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %s %s: %d %s", e.Method, e.Path, e.StatusCode, strings.TrimSpace(e.Body))
}

// Unwrap reports server side failures as ErrUnavailable.
func (e *StatusError) Unwrap() error {
	if e.StatusCode >= http.StatusInternalServerError {
		return ErrUnavailable
	}
	return nil
}

// Timezone is one entry of the backend's timezone directory.
type Timezone struct {
	Identifier string `json:"identifier"`
	IANAName   string `json:"ianaName"`
}

// Schedule is an id/name pair owning sessions.
type Schedule struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client talks to the backend REST API.
type Client struct {
	base   *url.URL
	http   *http.Client
	token  string
	logger *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend: base url must be http or https, got %q", baseURL)
	}

	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: defaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "backend", "host", base.Host)
	return c, nil
}

// ListSessions returns the raw session records of an event. The response may
// be a bare array or an object wrapping it under data, sessions or items.
func (c *Client) ListSessions(ctx context.Context, eventID string) ([]reconcile.Record, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, c.endpoint("events", eventID, "sessions"), &raw); err != nil {
		return nil, err
	}
	items, err := unwrapList(raw, "data", "sessions", "items", "results")
	if err != nil {
		return nil, fmt.Errorf("backend: decode sessions: %w", err)
	}

	records := make([]reconcile.Record, 0, len(items))
	for _, item := range items {
		var record reconcile.Record
		if err := decodeNumbers(item, &record); err != nil {
			// Non-object entries carry no session.
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// ListSchedules returns the schedules of an event.
func (c *Client) ListSchedules(ctx context.Context, eventID string) ([]Schedule, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, c.endpoint("events", eventID, "schedules"), &raw); err != nil {
		return nil, err
	}
	items, err := unwrapList(raw, "data", "schedules", "items", "results")
	if err != nil {
		return nil, fmt.Errorf("backend: decode schedules: %w", err)
	}

	schedules := make([]Schedule, 0, len(items))
	for _, item := range items {
		var fields map[string]any
		if err := decodeNumbers(item, &fields); err != nil {
			continue
		}
		schedule := Schedule{
			ID:   firstString(fields, "id", "_id", "scheduleId"),
			Name: firstString(fields, "name", "title"),
		}
		if schedule.ID != "" {
			schedules = append(schedules, schedule)
		}
	}
	return schedules, nil
}

// ListTimezones returns the timezone directory.
func (c *Client) ListTimezones(ctx context.Context) ([]Timezone, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, c.endpoint("timezones"), &raw); err != nil {
		return nil, err
	}
	items, err := unwrapList(raw, "data", "timezones", "items", "results")
	if err != nil {
		return nil, fmt.Errorf("backend: decode timezones: %w", err)
	}

	zones := make([]Timezone, 0, len(items))
	for _, item := range items {
		var fields map[string]any
		if err := decodeNumbers(item, &fields); err != nil {
			continue
		}
		zone := Timezone{
			Identifier: firstString(fields, "identifier", "id", "value", "key"),
			IANAName:   firstString(fields, "ianaName", "iana_name", "iana", "tzName", "name"),
		}
		if zone.Identifier != "" || zone.IANAName != "" {
			zones = append(zones, zone)
		}
	}
	return zones, nil
}

// EventTimezone returns the timezone identifier stored on an event, or ""
// when the event has none.
func (c *Client) EventTimezone(ctx context.Context, eventID string) (string, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, c.endpoint("events", eventID), &raw); err != nil {
		return "", err
	}
	var fields map[string]any
	if err := decodeNumbers(raw, &fields); err != nil {
		return "", fmt.Errorf("backend: decode event: %w", err)
	}
	if nested, ok := fields["data"].(map[string]any); ok {
		fields = nested
	}
	return firstString(fields, "timezone", "timeZone", "timezoneId", "timezone_id", "tz"), nil
}

// UploadImport forwards an import sheet as multipart form field "file".
func (c *Client) UploadImport(ctx context.Context, eventID, scheduleID, filename string, content []byte) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("eventId", eventID); err != nil {
		return fmt.Errorf("backend: build upload: %w", err)
	}
	part, err := form.CreateFormFile("file", path.Base(filename))
	if err != nil {
		return fmt.Errorf("backend: build upload: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("backend: build upload: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("backend: build upload: %w", err)
	}

	endpoint := c.endpoint("events", eventID, "schedules", scheduleID, "import")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	c.logger.InfoContext(ctx, "import uploaded",
		"event_id", eventID,
		"schedule_id", scheduleID,
		"file", path.Base(filename),
		"bytes", len(content),
	)
	return nil
}

func (c *Client) endpoint(segments ...string) *url.URL {
	return c.base.JoinPath(segments...)
}

func (c *Client) getJSON(ctx context.Context, endpoint *url.URL, out *json.RawMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrUnavailable, endpoint.Path, err)
	}
	*out = data
	return nil
}

// do sends req and converts transport failures and non-2xx statuses into
// errors. The caller closes the body of a successful response.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.ErrorContext(req.Context(), "backend request failed",
			"method", req.Method, "path", req.URL.Path, "error", err)
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, req.Method, req.URL.Path, err)
	}

	c.logger.DebugContext(req.Context(), "backend request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(started),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Method: req.Method, Path: req.URL.Path, StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	return resp, nil
}

// unwrapList accepts a JSON array or an object holding the array under one of
// keys (searched one level deep).
func unwrapList(raw json.RawMessage, keys ...string) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, err
	}
	for _, key := range keys {
		inner, ok := envelope[key]
		if !ok {
			continue
		}
		inner = bytes.TrimSpace(inner)
		if len(inner) > 0 && (inner[0] == '[' || inner[0] == '{') {
			return unwrapList(inner, keys...)
		}
	}
	return nil, fmt.Errorf("no list found under %v", keys)
}

// decodeNumbers keeps numeric fields as json.Number so large ids and
// spreadsheet serials survive decoding.
func decodeNumbers(raw json.RawMessage, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

func firstString(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := fields[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}
