// Package http exposes the session planner over HTTP.
//
// The router serves the following endpoints. Every endpoint except /healthz
// requires an API token when one is configured, sent as a Bearer token, the
// `planner_token` cookie, or for websocket upgrades the `token` query
// parameter.
//   - GET /healthz: liveness of the process and its store.
//   - GET /events/{eventID}/schedules/{scheduleID}/sessions: the reconciled
//     session snapshot. The optional `date` query parameter (YYYY-MM-DD)
//     restricts the sessions to one day.
//   - GET /events/{eventID}/schedules/{scheduleID}/sessions.ics: the same
//     sessions as an iCalendar feed.
//   - GET /events/{eventID}/schedules/{scheduleID}/live: websocket stream of
//     snapshots, starting with the current one.
//   - POST /events/{eventID}/schedules/{scheduleID}/import: multipart upload
//     of an xlsx/csv sheet in the `file` field.
//   - GET /events/{eventID}/schedules/{scheduleID}/imports: import history,
//     newest first, limited by `limit`.
//   - GET, DELETE /events/{eventID}/schedules/{scheduleID}/mappings: the stored
//     import mappings of a schedule.
//   - GET /events/{eventID}/mappings: every stored mapping set of an event.
//
// Error bodies are {"message", "errors"} with Japanese messages.
package http
