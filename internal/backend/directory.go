package backend

import (
	"context"

	"github.com/example/session-planner/internal/application"
)

// Directory exposes the client's timezone and schedule endpoints to the planner.
type Directory struct {
	client *Client
}

// NewDirectory wraps c as an application.TimezoneDirectory.
func NewDirectory(c *Client) *Directory {
	return &Directory{client: c}
}

// ListTimezones implements application.TimezoneDirectory.
func (d *Directory) ListTimezones(ctx context.Context) ([]application.Timezone, error) {
	zones, err := d.client.ListTimezones(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]application.Timezone, len(zones))
	for i, zone := range zones {
		out[i] = application.Timezone{Identifier: zone.Identifier, IANAName: zone.IANAName}
	}
	return out, nil
}

// EventTimezone implements application.TimezoneDirectory.
func (d *Directory) EventTimezone(ctx context.Context, eventID string) (string, error) {
	return d.client.EventTimezone(ctx, eventID)
}

// ListSchedules implements application.ScheduleLister.
func (d *Directory) ListSchedules(ctx context.Context, eventID string) ([]application.Schedule, error) {
	schedules, err := d.client.ListSchedules(ctx, eventID)
	if err != nil {
		return nil, err
	}
	out := make([]application.Schedule, len(schedules))
	for i, schedule := range schedules {
		out[i] = application.Schedule{ID: schedule.ID, Name: schedule.Name}
	}
	return out, nil
}
