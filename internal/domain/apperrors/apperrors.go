// Package apperrors holds the error kinds shared by services and both transports.
// Services wrap these sentinels; HTTP handlers and the websocket gateway map them to codes.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate limited")
	ErrTransient       = errors.New("temporarily unavailable")
)

type Kind string

const (
	KindValidation      Kind = "VALIDATION_ERROR"
	KindUnauthenticated Kind = "UNAUTHORIZED"
	KindForbidden       Kind = "FORBIDDEN"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindRateLimited     Kind = "TOO_FAST"
	KindTransient       Kind = "TEMP_UNAVAILABLE"
	KindInternal        Kind = "INTERNAL_ERROR"
)

// ForbiddenError carries a reason that is safe to show to the caller.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return "forbidden: " + e.Reason
}

func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

func Forbidden(reason string) error {
	return &ForbiddenError{Reason: reason}
}

type TooFastError struct {
	RetryAfterSec int64
}

func (e *TooFastError) Error() string {
	return fmt.Sprintf("too fast, retry after %ds", e.RetryAfterSec)
}

func (e *TooFastError) Unwrap() error {
	return ErrRateLimited
}

// Reason extracts the user-readable part of a forbidden error.
func Reason(err error) string {
	var fe *ForbiddenError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}

func RetryAfter(err error) int64 {
	var tf *TooFastError
	if errors.As(err, &tf) {
		return tf.RetryAfterSec
	}
	return 0
}

func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrTransient), IsTransient(err):
		return KindTransient
	default:
		return KindInternal
	}
}

// IsTransient reports store or network failures a client may retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01":
			return true
		case pgErr.Code == "53300", pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03":
			return true
		}
		return false
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
