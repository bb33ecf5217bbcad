package application

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// TimezoneDirectory resolves the stored timezone of an event.
type TimezoneDirectory interface {
	ListTimezones(ctx context.Context) ([]Timezone, error)
	// EventTimezone returns the event's timezone identifier as stored by the backend.
	EventTimezone(ctx context.Context, eventID string) (string, error)
}

const directoryCacheKey = "directory"

// timezoneResolver maps an event to a *time.Location. Every lookup failure
// degrades to the fallback zone.
type timezoneResolver struct {
	directory TimezoneDirectory
	fallback  *time.Location
	entries   *ttlCache[[]Timezone]
	events    *ttlCache[string]
	logger    *slog.Logger
}

func newTimezoneResolver(directory TimezoneDirectory, fallback *time.Location, now func() time.Time, logger *slog.Logger) *timezoneResolver {
	if fallback == nil {
		fallback = time.Local
	}
	return &timezoneResolver{
		directory: directory,
		fallback:  fallback,
		entries: newTTLCache(time.Hour, 1, now, func(list []Timezone) []Timezone {
			return append([]Timezone(nil), list...)
		}),
		events: newTTLCache[string](10*time.Minute, 512, now, nil),
		logger: defaultLogger(logger),
	}
}

func (r *timezoneResolver) Resolve(ctx context.Context, eventID string) *time.Location {
	if r == nil {
		return time.Local
	}
	if r.directory == nil || eventID == "" {
		return r.fallback
	}

	logger := serviceLogger(ctx, r.logger, "PlannerService", "ResolveTimezone", "event_id", eventID)

	if name, ok := r.events.Get(eventID); ok {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}

	identifier, err := r.directory.EventTimezone(ctx, eventID)
	if err != nil {
		logger.WarnContext(ctx, "event timezone lookup failed, using fallback zone", "error", err, "fallback", r.fallback.String())
		return r.fallback
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return r.fallback
	}

	name := r.ianaName(ctx, identifier, logger)
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.WarnContext(ctx, "unknown timezone, using fallback zone", "timezone", name, "error", err, "fallback", r.fallback.String())
		return r.fallback
	}
	r.events.Store(eventID, name)
	return loc
}

// ianaName maps a backend identifier to an IANA name. Identifiers missing from
// the directory are assumed to be IANA names already.
func (r *timezoneResolver) ianaName(ctx context.Context, identifier string, logger *slog.Logger) string {
	list, ok := r.entries.Get(directoryCacheKey)
	if !ok {
		fetched, err := r.directory.ListTimezones(ctx)
		if err != nil {
			logger.WarnContext(ctx, "timezone directory unavailable", "error", err)
			return identifier
		}
		list = fetched
		r.entries.Store(directoryCacheKey, list)
	}
	for _, tz := range list {
		if strings.EqualFold(tz.Identifier, identifier) && tz.IANAName != "" {
			return tz.IANAName
		}
	}
	return identifier
}
