package errors

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RateLimitError struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	RetryAfterSec int64  `json:"retry_after_sec"`
}

func Write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteService maps a service error to its status and code. fallback is the message used
// when the error carries no caller-safe reason.
func WriteService(w http.ResponseWriter, err error, fallback string) {
	kind := apperrors.Classify(err)
	message := apperrors.Reason(err)
	if message == "" {
		message = fallback
	}

	switch kind {
	case apperrors.KindRateLimited:
		retry := apperrors.RetryAfter(err)
		w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
		Write(w, http.StatusTooManyRequests, RateLimitError{Code: string(kind), Message: "too many requests", RetryAfterSec: retry})
		return
	case apperrors.KindInternal:
		Write(w, http.StatusInternalServerError, APIError{Code: string(kind), Message: "internal server error"})
		return
	}
	Write(w, Status(kind), APIError{Code: string(kind), Message: message})
}

func Status(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindRateLimited:
		return http.StatusTooManyRequests
	case apperrors.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
