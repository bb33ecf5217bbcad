package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/session-planner/internal/application"
	"github.com/example/session-planner/internal/backend"
	"github.com/example/session-planner/internal/persistence"
	"github.com/example/session-planner/internal/persistence/sqlite"
)

// NewSQLiteStore opens a migrated store in a temporary directory. It is
// closed when tb finishes.
func NewSQLiteStore(tb testing.TB) *sqlite.Store {
	tb.Helper()

	store, err := sqlite.Open(sqlite.Config{DSN: filepath.Join(tb.TempDir(), "planner.db")}, DiscardLogger())
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}
	return store
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Planner bundles a PlannerService wired to a fake backend and a real store.
type Planner struct {
	Service *application.PlannerService
	Backend *Backend
	Store   *sqlite.Store
	Clock   *Clock
	IDs     *IDGenerator
}

// PlannerOption adjusts the service options before construction.
type PlannerOption func(*application.PlannerOptions)

// WithDefaultLocation sets the zone used when an event has none.
func WithDefaultLocation(loc *time.Location) PlannerOption {
	return func(opts *application.PlannerOptions) { opts.DefaultLocation = loc }
}

// NewPlanner wires a PlannerService against a fresh fake backend and store.
func NewPlanner(tb testing.TB, opts ...PlannerOption) *Planner {
	tb.Helper()

	fake := NewBackend(tb)
	store := NewSQLiteStore(tb)
	clock := NewClock(time.Time{})
	ids := NewIDGenerator("")
	client := fake.Client(tb)

	directory := backend.NewDirectory(client)
	options := application.PlannerOptions{
		Timezones:       directory,
		Schedules:       directory,
		Imports:         store,
		DefaultLocation: time.UTC,
		IDGenerator:     ids.NextFunc(),
		Now:             clock.NowFunc(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	service := application.NewPlannerServiceWithLogger(
		client,
		client,
		persistence.NewMappingStore(store),
		options,
		DiscardLogger(),
	)
	return &Planner{Service: service, Backend: fake, Store: store, Clock: clock, IDs: ids}
}
