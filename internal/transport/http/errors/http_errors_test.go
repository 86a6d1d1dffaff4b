package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
)

func TestWriteServiceMapsKinds(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{name: "validation", err: fmt.Errorf("x: %w", apperrors.ErrValidation), wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR", wantMsg: "bad input"},
		{name: "forbidden keeps reason", err: apperrors.Forbidden("wait for approval"), wantStatus: http.StatusForbidden, wantCode: "FORBIDDEN", wantMsg: "wait for approval"},
		{name: "not found", err: apperrors.ErrNotFound, wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND", wantMsg: "bad input"},
		{name: "internal hides details", err: fmt.Errorf("pg exploded"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR", wantMsg: "internal server error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteService(rr, tc.err, "bad input")
			if rr.Code != tc.wantStatus {
				t.Fatalf("unexpected status: got %d want %d", rr.Code, tc.wantStatus)
			}
			var got APIError
			if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if got.Code != tc.wantCode || got.Message != tc.wantMsg {
				t.Fatalf("unexpected body: %+v", got)
			}
		})
	}
}

func TestWriteServiceSetsRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteService(rr, &apperrors.TooFastError{RetryAfterSec: 4}, "")

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusTooManyRequests)
	}
	if rr.Header().Get("Retry-After") != "4" {
		t.Fatalf("unexpected Retry-After: %q", rr.Header().Get("Retry-After"))
	}
	var got RateLimitError
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil || got.RetryAfterSec != 4 || got.Code != "TOO_FAST" {
		t.Fatalf("unexpected body: %+v err=%v", got, err)
	}
}
