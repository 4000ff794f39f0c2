package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jmalhotra98/intervue/backend/repository"
	"github.com/jmalhotra98/intervue/backend/storage"
)

// Kind classifies an error for HTTP mapping and recovery policy.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindUpstreamUnavailable
	KindRateLimited
	KindSchemaMismatch
	KindCancelled
)

// Error is the service-level error carrying a classification and a
// client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and a client-safe message.
func E(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf classifies any error, translating repository and storage
// sentinels and context cancellation.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return KindNotFound
	case errors.Is(err, repository.ErrForbidden):
		return KindForbidden
	case errors.Is(err, repository.ErrBadQuestionIndex):
		return KindValidation
	case errors.Is(err, repository.ErrTurnKindMismatch),
		errors.Is(err, repository.ErrAlreadyAttached),
		errors.Is(err, repository.ErrContentLocked),
		errors.Is(err, repository.ErrFeedbackExists):
		return KindConflict
	}
	return KindInternal
}

// HTTPStatus maps an error to its response code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindSchemaMismatch:
		return http.StatusBadGateway
	case KindCancelled:
		// The client is gone; 499 mirrors the nginx convention.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage returns the text safe to send to the caller.
func clientMessage(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	switch KindOf(err) {
	case KindNotFound:
		return "not found"
	case KindForbidden:
		return "forbidden"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict with current state"
	case KindCancelled:
		return "request cancelled"
	default:
		return "internal error"
	}
}

// WriteError sends the JSON error body. 5xx errors are logged with the
// request correlation id; cancellations are silent.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := KindOf(err)
	if kind == KindCancelled {
		return
	}
	status := HTTPStatus(err)
	if status >= 500 {
		slog.Error("request failed",
			"status", status,
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": clientMessage(err)})
}

// WriteJSON sends a JSON response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}
