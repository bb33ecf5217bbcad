// Package scheduler drives periodic reloads of watched schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSpec reloads every fifteen minutes.
const DefaultSpec = "*/15 * * * *"

// ErrDisabled is returned by New when no schedule is configured.
var ErrDisabled = errors.New("scheduler: refresh disabled")

// Refresher reloads every schedule currently being watched.
type Refresher interface {
	RefreshAll(ctx context.Context) (int, error)
}

// Options configures a RefreshScheduler.
type Options struct {
	// Spec is a standard five-field cron expression or a descriptor such as
	// "@hourly" or "@every 5m". An empty Spec disables the scheduler.
	Spec string
	// Location evaluates Spec. Defaults to time.Local.
	Location *time.Location
	// Timeout bounds a single run. Zero means one minute.
	Timeout time.Duration
}

// Validate reports whether spec is an acceptable schedule expression.
func Validate(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return nil
}

// RefreshScheduler runs a Refresher on a cron schedule. Overlapping runs are
// skipped rather than queued.
type RefreshScheduler struct {
	cron      *cron.Cron
	refresher Refresher
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// New builds a scheduler for refresher. It does not start it.
func New(refresher Refresher, opts Options, logger *slog.Logger) (*RefreshScheduler, error) {
	if opts.Spec == "" {
		return nil, ErrDisabled
	}
	if refresher == nil {
		return nil, errors.New("scheduler: refresher is required")
	}
	if err := Validate(opts.Spec); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "refresh_scheduler")
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	s := &RefreshScheduler{
		refresher: refresher,
		timeout:   timeout,
		logger:    logger,
	}
	cronLog := cronLogger{logger: logger}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := s.cron.AddFunc(opts.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("schedule refresh: %w", err)
	}
	return s, nil
}

// Start begins running in the background.
func (s *RefreshScheduler) Start() {
	s.cron.Start()
	s.logger.Info("refresh scheduler started", "next_run", s.Next())
}

// Stop halts the schedule and waits for a running refresh to finish or for
// ctx to end.
func (s *RefreshScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("refresh scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next planned run, or the zero time before Start.
func (s *RefreshScheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// LastRun reports when the most recent run finished and its error.
func (s *RefreshScheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

// RunOnce performs a single refresh outside of the schedule.
func (s *RefreshScheduler) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	refreshed, err := s.refresher.RefreshAll(ctx)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastErr = err
	s.mu.Unlock()

	logger := s.logger.With("refreshed", refreshed, "duration", time.Since(started))
	if err != nil {
		logger.Warn("scheduled refresh finished with errors", "error", err)
	} else {
		logger.Info("scheduled refresh finished")
	}
	return refreshed, err
}

func (s *RefreshScheduler) tick() {
	_, _ = s.RunOnce(context.Background())
}

// cronLogger routes cron's internal messages to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
