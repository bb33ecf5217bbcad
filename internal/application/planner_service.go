package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/session-planner/internal/importsheet"
	"github.com/example/session-planner/internal/persistence"
	"github.com/example/session-planner/internal/reconcile"
)

// SessionSource fetches the raw session records of an event.
type SessionSource interface {
	ListSessions(ctx context.Context, eventID string) ([]reconcile.Record, error)
}

// ImportSink receives uploaded sheets for bulk creation on the backend.
type ImportSink interface {
	UploadImport(ctx context.Context, eventID, scheduleID, filename string, content []byte) error
}

// ScheduleLister lists the schedules of an event.
type ScheduleLister interface {
	ListSchedules(ctx context.Context, eventID string) ([]Schedule, error)
}

// PlannerOptions carries the optional collaborators and tunables of a PlannerService.
type PlannerOptions struct {
	Timezones TimezoneDirectory
	Imports   persistence.ImportLog
	// Schedules lets RefreshAll pick up every schedule of a watched event.
	Schedules ScheduleLister
	// DefaultLocation is used when an event's zone cannot be resolved. Nil
	// means the process-local zone.
	DefaultLocation *time.Location
	// SnapshotTTL bounds how long a last good snapshot may be served after
	// the source starts failing.
	SnapshotTTL  time.Duration
	MaxSnapshots int
	IDGenerator  func() string
	Now          func() time.Time
}

// PlannerService reconciles backend session lists with imported sheets and
// keeps the last good result of every schedule it has served.
type PlannerService struct {
	source    SessionSource
	sink      ImportSink
	mappings  persistence.MappingRepository
	imports   persistence.ImportLog
	schedules ScheduleLister
	timezones *timezoneResolver

	snapshots   *ttlCache[Snapshot]
	hub         *snapshotHub
	locks       *keyedMutex
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewPlannerService constructs a planner service with the provided dependencies.
func NewPlannerService(source SessionSource, sink ImportSink, mappings persistence.MappingRepository, opts PlannerOptions) *PlannerService {
	return NewPlannerServiceWithLogger(source, sink, mappings, opts, nil)
}

// NewPlannerServiceWithLogger constructs a planner service with a specified logger.
func NewPlannerServiceWithLogger(source SessionSource, sink ImportSink, mappings persistence.MappingRepository, opts PlannerOptions, logger *slog.Logger) *PlannerService {
	if opts.IDGenerator == nil {
		opts.IDGenerator = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = 24 * time.Hour
	}
	if opts.MaxSnapshots <= 0 {
		opts.MaxSnapshots = 256
	}
	logger = defaultLogger(logger)
	return &PlannerService{
		source:      source,
		sink:        sink,
		mappings:    mappings,
		imports:     opts.Imports,
		schedules:   opts.Schedules,
		timezones:   newTimezoneResolver(opts.Timezones, opts.DefaultLocation, opts.Now, logger),
		snapshots:   newTTLCache(opts.SnapshotTTL, opts.MaxSnapshots, opts.Now, cloneSnapshot),
		hub:         newSnapshotHub(),
		locks:       newKeyedMutex(),
		idGenerator: opts.IDGenerator,
		now:         opts.Now,
		logger:      logger,
	}
}

func (s *PlannerService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "PlannerService", operation, attrs...)
}

// Sessions fetches and reconciles the sessions of a schedule. When the
// source fails the previous snapshot is returned marked stale; only when
// there is none does the call fail with ErrSourceUnavailable.
func (s *PlannerService) Sessions(ctx context.Context, eventID, scheduleID string) (snapshot Snapshot, err error) {
	if s == nil {
		err = fmt.Errorf("PlannerService is nil")
		return
	}
	key, vErr := validateScheduleKey(eventID, scheduleID)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	logger := s.loggerWith(ctx, "Sessions", "event_id", key.EventID, "schedule_id", key.ScheduleID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to load sessions", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "sessions loaded", "sessions", len(snapshot.Sessions), "stale", snapshot.Stale)
	}()

	snapshot, err = s.refresh(ctx, key, logger)
	return
}

// Cached returns the last snapshot of a schedule without contacting the source.
func (s *PlannerService) Cached(eventID, scheduleID string) (Snapshot, bool) {
	return s.snapshots.Get(ScheduleKey{EventID: eventID, ScheduleID: scheduleID}.String())
}

func (s *PlannerService) refresh(ctx context.Context, key ScheduleKey, logger *slog.Logger) (Snapshot, error) {
	if s.source == nil {
		return Snapshot{}, fmt.Errorf("session source not configured")
	}

	records, err := s.source.ListSessions(ctx, key.EventID)
	if err != nil {
		if previous, ok := s.snapshots.Get(key.String()); ok {
			logger.WarnContext(ctx, "session source failed, serving previous snapshot",
				"error", err,
				"refreshed_at", previous.RefreshedAt,
			)
			previous.Stale = true
			return previous, nil
		}
		return Snapshot{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	var mappings []reconcile.Mapping
	if s.mappings != nil {
		set, loadErr := s.mappings.LoadMappings(ctx, key.EventID, key.ScheduleID)
		switch {
		case loadErr == nil:
			mappings = set.Mappings
		case errors.Is(loadErr, persistence.ErrNotFound):
		default:
			logger.WarnContext(ctx, "mapping store unavailable, linking heuristically", "error", loadErr)
		}
	}

	loc := s.timezones.Resolve(ctx, key.EventID)
	result := reconcile.Pipeline{Location: loc}.Run(key.ScheduleID, records, mappings)

	snapshot := Snapshot{
		EventID:     key.EventID,
		ScheduleID:  key.ScheduleID,
		Timezone:    loc.String(),
		Sessions:    result.Sessions,
		Report:      result.Report,
		RefreshedAt: s.now(),
	}
	if snapshot.Sessions == nil {
		snapshot.Sessions = []reconcile.Session{}
	}

	previous, hadPrevious := s.snapshots.Get(key.String())
	s.snapshots.Store(key.String(), snapshot)
	if !hadPrevious || previous.Stale || !sameContent(previous, snapshot) {
		s.hub.publish(key, cloneSnapshot(snapshot))
	}
	if len(result.Report.Demoted) > 0 {
		logger.InfoContext(ctx, "children demoted to standalone sessions", "demoted", result.Report.Demoted)
	}
	return snapshot, nil
}

// Import parses an uploaded sheet, stores its parent/child mappings, hands
// the file to the import sink and reloads the schedule. A sheet without the
// required columns is still uploaded but leaves the stored mappings alone.
func (s *PlannerService) Import(ctx context.Context, params ImportParams) (result ImportResult, err error) {
	if s == nil {
		err = fmt.Errorf("PlannerService is nil")
		return
	}

	key, vErr := validateImportParams(params)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	result.ImportID = s.idGenerator()
	logger := s.loggerWith(ctx, "Import",
		"event_id", key.EventID,
		"schedule_id", key.ScheduleID,
		"import_id", result.ImportID,
		"filename", params.Filename,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to import sheet", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "sheet imported",
			"rows", result.Rows,
			"mappings", result.Mappings,
			"mappings_saved", result.MappingsSaved,
		)
	}()

	unlock := s.locks.lock(key)
	defer unlock()

	loc := s.timezones.Resolve(ctx, key.EventID)
	sheet, parseErr := importsheet.Parse(bytes.NewReader(params.Content), params.Filename, importsheet.Options{Location: loc})
	switch {
	case parseErr == nil:
		result.Rows, result.Skipped, result.Mappings = sheet.Rows, sheet.Skipped, len(sheet.Mappings)
		if s.mappings != nil {
			set := persistence.MappingSet{
				EventID:    key.EventID,
				ScheduleID: key.ScheduleID,
				SourceName: params.Filename,
				ImportedAt: s.now(),
				Mappings:   sheet.Mappings,
			}
			if err = s.mappings.SaveMappings(ctx, set); err != nil {
				err = fmt.Errorf("save mappings: %w", err)
				return
			}
			result.MappingsSaved = true
		}
	case errors.Is(parseErr, importsheet.ErrMissingColumns), errors.Is(parseErr, importsheet.ErrEmptySheet):
		logger.WarnContext(ctx, "sheet lacks required columns, keeping stored mappings", "reason", parseErr.Error())
	case errors.Is(parseErr, importsheet.ErrUnsupportedFormat):
		vErr.add("file", "unsupported file format")
		err = vErr
		return
	default:
		logger.WarnContext(ctx, "sheet could not be read", "error", parseErr)
		vErr.add("file", "file could not be read")
		err = vErr
		return
	}

	var uploadErr error
	if s.sink != nil {
		uploadErr = s.sink.UploadImport(ctx, key.EventID, key.ScheduleID, params.Filename, params.Content)
	}
	result.Uploaded = s.sink != nil && uploadErr == nil
	s.recordImport(ctx, key, params.Filename, result, uploadErr, logger)

	if uploadErr != nil {
		err = fmt.Errorf("%w: %v", ErrUploadFailed, uploadErr)
		return
	}

	snapshot, refreshErr := s.refresh(ctx, key, logger)
	if refreshErr != nil {
		logger.WarnContext(ctx, "reload after import failed", "error", refreshErr)
		return
	}
	result.Snapshot = &snapshot
	return
}

func (s *PlannerService) recordImport(ctx context.Context, key ScheduleKey, filename string, result ImportResult, uploadErr error, logger *slog.Logger) {
	if s.imports == nil {
		return
	}
	record := persistence.ImportRecord{
		ID:         result.ImportID,
		EventID:    key.EventID,
		ScheduleID: key.ScheduleID,
		SourceName: filename,
		Rows:       result.Rows,
		Mappings:   result.Mappings,
		Uploaded:   result.Uploaded,
		ImportedAt: s.now(),
	}
	if uploadErr != nil {
		record.Error = uploadErr.Error()
	}
	if err := s.imports.RecordImport(ctx, record); err != nil {
		logger.WarnContext(ctx, "failed to record import history", "error", err)
	}
}

// Mappings returns the stored import mappings of a schedule.
func (s *PlannerService) Mappings(ctx context.Context, eventID, scheduleID string) (set persistence.MappingSet, err error) {
	key, vErr := validateScheduleKey(eventID, scheduleID)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if s.mappings == nil {
		err = ErrNotFound
		return
	}
	set, err = s.mappings.LoadMappings(ctx, key.EventID, key.ScheduleID)
	if errors.Is(err, persistence.ErrNotFound) {
		err = ErrNotFound
	}
	return
}

// MappingSets lists every stored mapping set of an event.
func (s *PlannerService) MappingSets(ctx context.Context, eventID string) ([]persistence.MappingSet, error) {
	if strings.TrimSpace(eventID) == "" {
		vErr := &ValidationError{}
		vErr.add("eventId", "event id is required")
		return nil, vErr
	}
	if s.mappings == nil {
		return nil, nil
	}
	return s.mappings.ListMappingSets(ctx, eventID)
}

// ClearMappings forgets the stored mappings of a schedule so it links
// heuristically from then on.
func (s *PlannerService) ClearMappings(ctx context.Context, eventID, scheduleID string) (err error) {
	key, vErr := validateScheduleKey(eventID, scheduleID)
	if vErr.HasErrors() {
		return vErr
	}

	logger := s.loggerWith(ctx, "ClearMappings", "event_id", key.EventID, "schedule_id", key.ScheduleID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to clear mappings", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "mappings cleared")
	}()

	unlock := s.locks.lock(key)
	defer unlock()

	if s.mappings != nil {
		if err = s.mappings.DeleteMappings(ctx, key.EventID, key.ScheduleID); err != nil {
			return err
		}
	}
	if _, cached := s.snapshots.Get(key.String()); cached {
		if _, refreshErr := s.refresh(ctx, key, logger); refreshErr != nil {
			logger.WarnContext(ctx, "reload after clearing mappings failed", "error", refreshErr)
		}
	}
	return nil
}

// Imports lists the import history of a schedule, newest first. An empty
// scheduleID lists the whole event.
func (s *PlannerService) Imports(ctx context.Context, eventID, scheduleID string, limit int) ([]persistence.ImportRecord, error) {
	if strings.TrimSpace(eventID) == "" {
		vErr := &ValidationError{}
		vErr.add("eventId", "event id is required")
		return nil, vErr
	}
	if s.imports == nil {
		return nil, nil
	}
	return s.imports.ListImports(ctx, eventID, scheduleID, limit)
}

// ResolveTimezone returns the display zone of an event.
func (s *PlannerService) ResolveTimezone(ctx context.Context, eventID string) *time.Location {
	return s.timezones.Resolve(ctx, eventID)
}

// Watched lists the schedules with a live snapshot or subscriber.
func (s *PlannerService) Watched() []ScheduleKey {
	seen := make(map[ScheduleKey]struct{})
	var keys []ScheduleKey
	add := func(key ScheduleKey) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	for _, cacheKey := range s.snapshots.Keys() {
		if snapshot, ok := s.snapshots.Get(cacheKey); ok {
			add(snapshot.Key())
		}
	}
	for _, key := range s.hub.keys() {
		add(key)
	}
	slices.SortFunc(keys, func(a, b ScheduleKey) int {
		return strings.Compare(a.String(), b.String())
	})
	return keys
}

// Schedules lists the schedules of an event.
func (s *PlannerService) Schedules(ctx context.Context, eventID string) (schedules []Schedule, err error) {
	if s == nil {
		err = fmt.Errorf("PlannerService is nil")
		return
	}
	key, vErr := validateScheduleKey(eventID, "x")
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if s.schedules == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "Schedules", "event_id", key.EventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list schedules", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	schedules, err = s.schedules.ListSchedules(ctx, key.EventID)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		return nil, err
	}
	slices.SortFunc(schedules, func(a, b Schedule) int {
		return strings.Compare(a.ID, b.ID)
	})
	return schedules, nil
}

// refreshTargets returns the watched schedules plus every other schedule of
// the watched events. A failed schedule listing keeps the watched set as is.
func (s *PlannerService) refreshTargets(ctx context.Context, logger *slog.Logger) []ScheduleKey {
	keys := s.Watched()
	if s.schedules == nil {
		return keys
	}
	seen := make(map[ScheduleKey]struct{}, len(keys))
	var events []string
	for _, key := range keys {
		seen[key] = struct{}{}
		if !slices.Contains(events, key.EventID) {
			events = append(events, key.EventID)
		}
	}
	for _, eventID := range events {
		schedules, err := s.schedules.ListSchedules(ctx, eventID)
		if err != nil {
			logger.WarnContext(ctx, "schedule listing failed, refreshing watched schedules only", "event_id", eventID, "error", err)
			continue
		}
		for _, schedule := range schedules {
			key := ScheduleKey{EventID: eventID, ScheduleID: strings.TrimSpace(schedule.ID)}
			if key.ScheduleID == "" || strings.Contains(key.ScheduleID, "::") {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, b ScheduleKey) int {
		return strings.Compare(a.String(), b.String())
	})
	return keys
}

// RefreshAll re-runs every watched schedule, together with the other
// schedules of the watched events when a ScheduleLister is configured.
// Failures of individual schedules are joined into the returned error.
func (s *PlannerService) RefreshAll(ctx context.Context) (refreshed int, err error) {
	logger := s.loggerWith(ctx, "RefreshAll")
	var errs []error
	for _, key := range s.refreshTargets(ctx, logger) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = append(errs, ctxErr)
			break
		}
		snapshot, refreshErr := s.refresh(ctx, key, logger.With("event_id", key.EventID, "schedule_id", key.ScheduleID))
		if refreshErr != nil {
			errs = append(errs, fmt.Errorf("refresh %s: %w", key, refreshErr))
			continue
		}
		if !snapshot.Stale {
			refreshed++
		}
	}
	err = errors.Join(errs...)
	if err != nil {
		logger.WarnContext(ctx, "refresh completed with errors", "refreshed", refreshed, "error", err)
	} else {
		logger.DebugContext(ctx, "refresh completed", "refreshed", refreshed)
	}
	return refreshed, err
}

// Subscribe registers for snapshots of a schedule. Only the most recent
// undelivered snapshot is kept per subscriber. The returned function
// unsubscribes and closes the channel.
func (s *PlannerService) Subscribe(eventID, scheduleID string) (<-chan Snapshot, func()) {
	return s.hub.subscribe(ScheduleKey{EventID: eventID, ScheduleID: scheduleID})
}

func validateScheduleKey(eventID, scheduleID string) (ScheduleKey, *ValidationError) {
	vErr := &ValidationError{}
	key := ScheduleKey{EventID: strings.TrimSpace(eventID), ScheduleID: strings.TrimSpace(scheduleID)}
	if _, err := persistence.MappingKey(key.EventID, "x"); err != nil {
		vErr.add("eventId", "event id is required and must not contain \"::\"")
	}
	if _, err := persistence.MappingKey("x", key.ScheduleID); err != nil {
		vErr.add("scheduleId", "schedule id is required and must not contain \"::\"")
	}
	return key, vErr
}

func validateImportFile(filename string, content []byte) *ValidationError {
	vErr := &ValidationError{}
	switch {
	case strings.TrimSpace(filename) == "":
		vErr.add("file", "file name is required")
	case len(content) == 0:
		vErr.add("file", "file is empty")
	}
	return vErr
}

func validateImportParams(params ImportParams) (ScheduleKey, *ValidationError) {
	key, vErr := validateScheduleKey(params.EventID, params.ScheduleID)
	vErr.merge(validateImportFile(params.Filename, params.Content))
	return key, vErr
}

func sameContent(a, b Snapshot) bool {
	a.RefreshedAt, b.RefreshedAt = time.Time{}, time.Time{}
	a.Stale, b.Stale = false, false
	return reflect.DeepEqual(a, b)
}

func cloneSnapshot(s Snapshot) Snapshot {
	if s.Sessions != nil {
		sessions := make([]reconcile.Session, len(s.Sessions))
		for i, session := range s.Sessions {
			session.Tags = slices.Clone(session.Tags)
			sessions[i] = session
		}
		s.Sessions = sessions
	}
	s.Report.Demoted = slices.Clone(s.Report.Demoted)
	return s
}
