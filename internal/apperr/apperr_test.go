package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ErrorString(t *testing.T) {
	e := New(KindValidation, "amount must be positive")
	if e.Error() != "validation: amount must be positive" {
		t.Errorf("unexpected error string: %s", e.Error())
	}
}

func TestError_ErrorStringWithCause(t *testing.T) {
	cause := errors.New("connection refused")
	e := Wrap(KindDependencyFailure, "dependency unavailable", cause)
	want := "dependency_failure: dependency unavailable: connection refused"
	if e.Error() != want {
		t.Errorf("expected %q, got %q", want, e.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("timeout")
	e := Wrap(KindDependencyFailure, "dependency unavailable", cause)
	if !errors.Is(e, cause) {
		t.Error("expected errors.Is to follow Unwrap to the cause")
	}
}

func TestError_WithDetail(t *testing.T) {
	e := New(KindValidation, "bad input").WithDetail("amount")
	if e.Detail != "amount" {
		t.Errorf("expected detail amount, got %s", e.Detail)
	}
}

func TestKindOf_ClassifiedError(t *testing.T) {
	e := New(KindConflict, "already active")
	if KindOf(e) != KindConflict {
		t.Errorf("expected KindConflict, got %s", KindOf(e))
	}
}

func TestKindOf_WrappedClassifiedError(t *testing.T) {
	inner := New(KindNotFound, "profile not found")
	wrapped := fmt.Errorf("lookup failed: %w", inner)
	if KindOf(wrapped) != KindNotFound {
		t.Errorf("expected KindNotFound, got %s", KindOf(wrapped))
	}
}

func TestKindOf_UnclassifiedErrorDefaultsToFatalInternal(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindFatalInternal {
		t.Errorf("expected KindFatalInternal for an unclassified error, got %s", got)
	}
}

func TestKindOf_NilError(t *testing.T) {
	if got := KindOf(nil); got != KindFatalInternal {
		t.Errorf("expected KindFatalInternal for a nil error, got %s", got)
	}
}

func TestValidation(t *testing.T) {
	e := Validation("circle id required")
	if e.Kind != KindValidation || e.Message != "circle id required" {
		t.Errorf("unexpected validation error: %+v", e)
	}
}

func TestNotFound_AppendsNoun(t *testing.T) {
	e := NotFound("vouch")
	if e.Message != "vouch not found" {
		t.Errorf("expected 'vouch not found', got %s", e.Message)
	}
}

func TestConflict(t *testing.T) {
	e := Conflict("vouch already active")
	if e.Kind != KindConflict {
		t.Errorf("expected KindConflict, got %s", e.Kind)
	}
}

func TestUnauthorized(t *testing.T) {
	e := Unauthorized("invalid signature")
	if e.Kind != KindUnauthorized {
		t.Errorf("expected KindUnauthorized, got %s", e.Kind)
	}
}

func TestDependencyFailure_CarriesDependencyNameAsDetail(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	e := DependencyFailure("postgres", cause)
	if e.Kind != KindDependencyFailure {
		t.Errorf("expected KindDependencyFailure, got %s", e.Kind)
	}
	if e.Detail != "postgres" {
		t.Errorf("expected detail postgres, got %s", e.Detail)
	}
	if !errors.Is(e, cause) {
		t.Error("expected the original cause to be reachable via errors.Is")
	}
}

func TestRateLimited_EncodesRetryAfterInDetail(t *testing.T) {
	e := RateLimited(30)
	if e.Kind != KindRateLimited {
		t.Errorf("expected KindRateLimited, got %s", e.Kind)
	}
	if e.Detail != "30" {
		t.Errorf("expected detail '30', got %s", e.Detail)
	}
}

func TestCircuitOpen_EncodesDependencyAndRetryAfter(t *testing.T) {
	e := CircuitOpen("llm", 15)
	if e.Kind != KindCircuitOpen {
		t.Errorf("expected KindCircuitOpen, got %s", e.Kind)
	}
	if e.Detail != "llm:15" {
		t.Errorf("expected detail 'llm:15', got %s", e.Detail)
	}
}
