package http

import (
	"net/http"
	"strings"

	"github.com/example/session-planner/internal/application"
)

type RouterConfig struct {
	Sessions *SessionHandler
	Imports  *ImportHandler
	Mappings *MappingHandler
	Live     *LiveHandler
	Health   *HealthHandler
	// Auth wraps every endpoint except /healthz.
	Auth       func(http.Handler) http.Handler
	Middleware []func(http.Handler) http.Handler
}

const schedulePrefix = "/events/{eventID}/schedules/{scheduleID}"

func NewRouter(cfg RouterConfig) http.Handler {
	api := http.NewServeMux()

	if cfg.Sessions != nil {
		api.HandleFunc(schedulePrefix+"/sessions", withScheduleKey(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Sessions.List(w, r)
		}))
		api.HandleFunc(schedulePrefix+"/sessions.ics", withScheduleKey(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Sessions.Calendar(w, r)
		}))
	}

	if cfg.Live != nil {
		api.HandleFunc(schedulePrefix+"/live", withScheduleKey(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Live.Serve(w, r)
		}))
	}

	if cfg.Imports != nil {
		api.HandleFunc(schedulePrefix+"/import", withScheduleKey(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Imports.Create(w, r)
		}))
		api.HandleFunc(schedulePrefix+"/imports", withScheduleKey(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Imports.List(w, r)
		}))
	}

	if cfg.Mappings != nil {
		api.HandleFunc(schedulePrefix+"/mappings", withScheduleKey(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Mappings.Get(w, r)
			case http.MethodDelete:
				cfg.Mappings.Delete(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodDelete)
			}
		}))
		api.HandleFunc("/events/{eventID}/mappings", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Mappings.ListEvent(w, r)
		})
	}

	var protected http.Handler = api
	if cfg.Auth != nil {
		protected = cfg.Auth(api)
	}

	mux := http.NewServeMux()
	mux.Handle("/", protected)
	if cfg.Health != nil {
		mux.Handle("/healthz", cfg.Health)
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func withScheduleKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := application.ScheduleKey{
			EventID:    strings.TrimSpace(r.PathValue("eventID")),
			ScheduleID: strings.TrimSpace(r.PathValue("scheduleID")),
		}
		if key.EventID == "" || key.ScheduleID == "" {
			http.NotFound(w, r)
			return
		}
		next(w, r.WithContext(ContextWithScheduleKey(r.Context(), key)))
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
