package apierror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/verdictech/gavel/pkg/core"
)

func TestFromErrorCanonical(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   core.ErrorType
		wantStatus int
	}{
		{"not found", core.NewNotFoundError("session not found"), core.ErrNotFound, http.StatusNotFound},
		{"auth", core.NewAuthenticationError("invalid token"), core.ErrAuthentication, http.StatusUnauthorized},
		{"invalid state", core.NewInvalidStateError("session has ended", core.CodeSessionEnded), core.ErrInvalidState, http.StatusConflict},
		{"exhausted", core.NewCodeSpaceExhaustedError(5), core.ErrCodeSpaceExhausted, http.StatusServiceUnavailable},
		{"upstream", core.NewUpstreamError("transcribe", errors.New("boom")), core.ErrUpstream, http.StatusBadGateway},
		{"invalid request", core.NewInvalidRequestError("bad"), core.ErrInvalidRequest, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, status := FromError(tt.err, "req_1")
			if got.Type != tt.wantType {
				t.Fatalf("type = %q, want %q", got.Type, tt.wantType)
			}
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d", status, tt.wantStatus)
			}
			if got.RequestID != "req_1" {
				t.Fatalf("request_id = %q, want req_1", got.RequestID)
			}
		})
	}
}

func TestFromErrorWrapped(t *testing.T) {
	err := fmt.Errorf("resolving: %w", core.NewNotFoundError("case not found"))
	got, status := FromError(err, "req_2")
	if got.Type != core.ErrNotFound || status != http.StatusNotFound {
		t.Fatalf("got %q/%d, want not_found/404", got.Type, status)
	}
}

func TestFromErrorUnknownIsOpaque(t *testing.T) {
	got, status := FromError(errors.New("pool exploded"), "req_3")
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if got.Message != "internal error" {
		t.Fatalf("message = %q, should not leak internals", got.Message)
	}
}

func TestFromErrorContext(t *testing.T) {
	if _, status := FromError(context.DeadlineExceeded, ""); status != http.StatusGatewayTimeout {
		t.Fatalf("deadline status = %d, want 504", status)
	}
	if _, status := FromError(context.Canceled, ""); status != http.StatusRequestTimeout {
		t.Fatalf("cancel status = %d, want 408", status)
	}
}

func TestFromErrorNil(t *testing.T) {
	got, status := FromError(nil, "req")
	if got != nil || status != http.StatusOK {
		t.Fatalf("nil err = %+v/%d", got, status)
	}
}
