// Package watch imports mapping sheets dropped into an inbox directory.
//
// Files must be named "<eventID>__<scheduleID>.<ext>" where ext is one of the
// sheet formats accepted by the importer. Handled files are moved into the
// processed/ or failed/ subdirectory so they are imported once.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/example/session-planner/internal/application"
)

const (
	// DefaultDebounce lets writers finish before a file is read.
	DefaultDebounce = 100 * time.Millisecond

	ProcessedDir = "processed"
	FailedDir    = "failed"

	nameSeparator = "__"
)

var inboxExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".csv":  true,
	".tsv":  true,
	".tab":  true,
}

// Importer accepts an uploaded sheet.
type Importer interface {
	Import(ctx context.Context, params application.ImportParams) (application.ImportResult, error)
}

// Options configures an Inbox.
type Options struct {
	Debounce time.Duration
	Now      func() time.Time
}

// Inbox watches a directory and imports every sheet written into it.
type Inbox struct {
	dir      string
	importer Importer
	debounce time.Duration
	now      func() time.Time
	logger   *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once

	timerMu sync.Mutex
	timers  map[string]*time.Timer
	wg      sync.WaitGroup
}

// NewInbox constructs an Inbox for dir.
func NewInbox(dir string, importer Importer, opts Options, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Inbox{
		dir:      dir,
		importer: importer,
		debounce: debounce,
		now:      now,
		logger:   logger.With("component", "import_inbox", "dir", dir),
		ready:    make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}
}

// ParseInboxName extracts the schedule key from an inbox file name.
func ParseInboxName(name string) (eventID, scheduleID string, ok bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return "", "", false
	}
	ext := filepath.Ext(base)
	if !inboxExtensions[strings.ToLower(ext)] {
		return "", "", false
	}
	stem := strings.TrimSuffix(base, ext)
	eventID, scheduleID, found := strings.Cut(stem, nameSeparator)
	if !found || eventID == "" || scheduleID == "" || strings.Contains(scheduleID, nameSeparator) {
		return "", "", false
	}
	return eventID, scheduleID, true
}

// Ready is closed once the directory is being watched.
func (in *Inbox) Ready() <-chan struct{} {
	return in.ready
}

// Run watches the inbox until ctx ends. Files already present are imported
// first.
func (in *Inbox) Run(ctx context.Context) error {
	for _, sub := range []string{ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(in.dir, sub), 0o755); err != nil {
			return fmt.Errorf("prepare inbox: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(in.dir); err != nil {
		return fmt.Errorf("watch %s: %w", in.dir, err)
	}
	in.readyOnce.Do(func() { close(in.ready) })
	in.logger.Info("import inbox watching")

	if err := in.scan(ctx); err != nil {
		in.logger.Warn("failed to scan inbox", "error", err)
	}

	defer in.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			if shouldProcessEvent(event) {
				in.schedule(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			in.logger.Error("fsnotify error", "error", err)
		}
	}
}

func shouldProcessEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	_, _, ok := ParseInboxName(event.Name)
	return ok
}

func (in *Inbox) scan(ctx context.Context) error {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, _, ok := ParseInboxName(entry.Name()); ok {
			in.schedule(ctx, filepath.Join(in.dir, entry.Name()))
		}
	}
	return nil
}

// schedule debounces work per path; a newer event restarts the timer.
func (in *Inbox) schedule(ctx context.Context, path string) {
	in.timerMu.Lock()
	defer in.timerMu.Unlock()
	if timer, exists := in.timers[path]; exists {
		if timer.Stop() {
			in.wg.Done()
		}
	}
	in.wg.Add(1)
	in.timers[path] = time.AfterFunc(in.debounce, func() {
		defer in.wg.Done()
		in.timerMu.Lock()
		delete(in.timers, path)
		in.timerMu.Unlock()
		in.handle(ctx, path)
	})
}

func (in *Inbox) shutdown() {
	in.timerMu.Lock()
	for path, timer := range in.timers {
		if timer.Stop() {
			in.wg.Done()
		}
		delete(in.timers, path)
	}
	in.timerMu.Unlock()
	in.wg.Wait()
	in.logger.Info("import inbox stopped")
}

func (in *Inbox) handle(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	name := filepath.Base(path)
	eventID, scheduleID, ok := ParseInboxName(name)
	if !ok {
		return
	}
	logger := in.logger.With("file", name, "event_id", eventID, "schedule_id", scheduleID)

	content, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Error("failed to read inbox file", "error", err)
		}
		return
	}

	result, err := in.importer.Import(ctx, application.ImportParams{
		EventID:    eventID,
		ScheduleID: scheduleID,
		Filename:   name,
		Content:    content,
	})
	target := ProcessedDir
	if err != nil {
		target = FailedDir
		logger.Error("inbox import failed", "error", err, "error_kind", application.ErrorKind(err))
	} else {
		logger.Info("inbox import completed",
			"import_id", result.ImportID,
			"mappings", result.Mappings,
			"mappings_saved", result.MappingsSaved,
		)
	}

	archived := filepath.Join(in.dir, target, in.now().UTC().Format("20060102T150405")+"-"+name)
	if err := os.Rename(path, archived); err != nil {
		logger.Error("failed to archive inbox file", "error", err, "target", archived)
	}
}
