package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
	"github.com/Proton-105/lesson-ledger/internal/i18n"
	"github.com/Proton-105/lesson-ledger/internal/idempotency"
	"github.com/Proton-105/lesson-ledger/internal/ratelimit"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

var statusByKind = map[apperrors.Kind]int{
	apperrors.KindInvalidArgument:        http.StatusBadRequest,
	apperrors.KindUnauthorized:           http.StatusForbidden,
	apperrors.KindRecordNotFound:         http.StatusNotFound,
	apperrors.KindAlreadyInitialized:     http.StatusConflict,
	apperrors.KindDerivationExhausted:    http.StatusUnprocessableEntity,
	apperrors.KindAccountLocked:          http.StatusLocked,
	apperrors.KindArithmeticOverflow:     http.StatusUnprocessableEntity,
	apperrors.KindRecordCapacityExceeded: http.StatusUnprocessableEntity,
	apperrors.KindStorage:                http.StatusServiceUnavailable,
	apperrors.KindRateLimited:            http.StatusTooManyRequests,
	apperrors.KindInternal:               http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperrors.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) translator(r *http.Request) i18n.Translator {
	return s.translations.Negotiate(r.Header.Get("Accept-Language"))
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	tr := s.translator(r)

	if errors.Is(err, idempotency.ErrRequestInProgress) {
		w.Header().Set(headerRetryAfter, retryAfterSeconds)
		writeJSON(w, http.StatusConflict, errorBody{Error: errorDetail{
			Code:      apperrors.ErrAccountLocked.Code,
			Kind:      string(apperrors.KindAccountLocked),
			Message:   tr.T("errors.request_in_progress"),
			Retryable: true,
		}})
		return
	}

	appErr := s.errors.Handle(r.Context(), err)

	detail := appErr.Message
	if appErr.Kind == apperrors.KindInternal || appErr.Kind == apperrors.KindStorage {
		detail = ""
	}
	if appErr.Retryable {
		retryAfter := retryAfterSeconds
		if appErr.RetryAfter > 0 {
			retryAfter = strconv.Itoa(appErr.RetryAfter)
		}
		w.Header().Set(headerRetryAfter, retryAfter)
	}

	writeJSON(w, StatusFor(appErr.Kind), errorBody{Error: errorDetail{
		Code:      appErr.Code,
		Kind:      string(appErr.Kind),
		Message:   tr.T(appErr.UserMessage),
		Detail:    detail,
		Retryable: appErr.Retryable,
	}})
}

// writeRateLimited rejects a throttled request with a localized RateLimited error.
func (s *Server) writeRateLimited(w http.ResponseWriter, r *http.Request, result *ratelimit.Result) {
	s.writeError(w, r, apperrors.NewRateLimitError(result.RetryAfter()))
}
