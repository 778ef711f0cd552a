package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	plain := Rejected("no seats available")
	if plain.Error() != "REJECTED: no seats available" {
		t.Errorf("unexpected message: %s", plain.Error())
	}

	cause := fmt.Errorf("socket closed")
	wrapped := Internal("store write failed", cause)
	if wrapped.Error() != "INTERNAL_ERROR: store write failed (caused by: socket closed)" {
		t.Errorf("unexpected message: %s", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
}

func TestStatusCodes(t *testing.T) {
	cases := []struct {
		err  *AppError
		want int
	}{
		{InvalidInput("bad duration"), http.StatusBadRequest},
		{Validation("invalid tool", nil), http.StatusUnprocessableEntity},
		{NotFound("Tool"), http.StatusNotFound},
		{Rejected("no seats available"), http.StatusConflict},
		{Conflict("lock held"), http.StatusConflict},
		{Unauthorized("missing signature"), http.StatusUnauthorized},
		{Internal("boom", nil), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := tc.err.StatusCode(); got != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.err.Code, got, tc.want)
		}
	}
}

func TestIsCodeDistinguishesRejectionFromStoreFailure(t *testing.T) {
	rejected := Rejected("no seats available")
	storeFailure := Internal("store write failed", fmt.Errorf("timeout"))

	if !IsCode(rejected, CodeRejected) {
		t.Error("expected rejected error to match CodeRejected")
	}
	if IsCode(storeFailure, CodeRejected) {
		t.Error("store failure must not match CodeRejected")
	}
	if IsCode(fmt.Errorf("plain"), CodeRejected) {
		t.Error("plain error must not match any code")
	}
}

func TestAsAppError(t *testing.T) {
	appErr := NotFoundWithID("Tool", "abc123")
	if AsAppError(appErr) != appErr {
		t.Error("expected AsAppError to return the same instance")
	}
	if appErr.Details["id"] != "abc123" {
		t.Errorf("expected id detail, got %v", appErr.Details)
	}

	converted := AsAppError(fmt.Errorf("raw"))
	if converted.Code != CodeInternal {
		t.Errorf("expected internal code, got %s", converted.Code)
	}
}
