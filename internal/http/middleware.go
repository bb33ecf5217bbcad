package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/example/session-planner/internal/application"
)

const tokenCookieName = "planner_token"

type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) error
}

// RequireToken rejects requests that do not carry an accepted API token.
func RequireToken(auth TokenAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		if auth == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractTokenFromRequest(r)
			err := auth.Authenticate(r.Context(), token)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, application.ErrUnauthorized) && token == "":
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingToken)
			case errors.Is(err, application.ErrUnauthorized), errors.Is(err, application.ErrInvalidCredentials):
				responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{Message: "API トークンが無効です。"})
			default:
				responder.loggerFor(r.Context()).ErrorContext(r.Context(), "token verification failed", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusInternalServerError, errorResponse{Message: "トークン検証中にエラーが発生しました。"})
			}
		})
	}
}

func extractTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(header, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(header, prefix))
		}
	}
	if cookie, err := r.Cookie(tokenCookieName); err == nil {
		return cookie.Value
	}
	// Browsers cannot set headers on websocket handshakes.
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return strings.TrimSpace(r.URL.Query().Get("token"))
	}
	return ""
}

func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			logger.DebugContext(ctx, "request started")
			next.ServeHTTP(recorder, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", recorder.status, "duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(status int) {
	if !s.wroteHeader {
		s.status = status
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController and websocket upgrades reach the
// underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
