package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/session-planner/internal/application"
)

var (
	errBadRequestBody    = errors.New("無効なリクエスト形式です。")
	errInvalidScheduleID = errors.New("無効なイベント ID またはスケジュール ID です。")
	errMissingFile       = errors.New("file フィールドにインポートファイルを指定してください。")
	errUploadTooLarge    = errors.New("インポートファイルが大きすぎます。")
	errInvalidDate       = errors.New("date は YYYY-MM-DD 形式で指定してください。")
	errInvalidLimit      = errors.New("limit は 0 以上の整数で指定してください。")
	errMissingToken      = errors.New("API トークンを指定してください。")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	switch {
	case errors.Is(err, application.ErrUnauthorized), errors.Is(err, application.ErrInvalidCredentials):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{
			ErrorCode: "AUTH_REQUIRED",
			Message:   "API トークンが無効です。",
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "指定されたリソースが見つかりません。"})
	case errors.Is(err, application.ErrSourceUnavailable):
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{
			ErrorCode: "SOURCE_UNAVAILABLE",
			Message:   "セッション一覧を取得できませんでした。しばらくしてから再度お試しください。",
		})
	case errors.Is(err, application.ErrUploadFailed):
		r.writeJSON(ctx, w, http.StatusBadGateway, errorResponse{
			ErrorCode: "UPLOAD_FAILED",
			Message:   "インポートファイルの送信に失敗しました。",
		})
	case errors.Is(err, context.Canceled):
		// The client went away; nobody reads the body.
		w.WriteHeader(499)
	default:
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
				Message: "入力内容に誤りがあります。",
				Errors:  localizeValidationErrors(vErr),
			})
			return
		}

		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "サーバー内部でエラーが発生しました。"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusUnauthorized:
		return "認証が必要です。"
	case http.StatusForbidden:
		return "この操作を実行する権限がありません。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusRequestEntityTooLarge:
		return "リクエストが大きすぎます。"
	case http.StatusUnprocessableEntity:
		return "入力内容に誤りがあります。"
	case http.StatusServiceUnavailable:
		return "サービスを一時的に利用できません。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "event id is required":
		return "イベント ID は必須です。"
	case `event id is required and must not contain "::"`:
		return "イベント ID は必須です。\"::\" を含めることはできません。"
	case `schedule id is required and must not contain "::"`:
		return "スケジュール ID は必須です。\"::\" を含めることはできません。"
	case "file name is required":
		return "ファイル名は必須です。"
	case "file is empty":
		return "ファイルが空です。"
	case "unsupported file format":
		return "対応していないファイル形式です。xlsx、csv、tsv のいずれかを指定してください。"
	case "file could not be read":
		return "ファイルを読み込めませんでした。"
	default:
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
