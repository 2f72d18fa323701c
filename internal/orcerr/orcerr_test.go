package orcerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsByKind(t *testing.T) {
	err := Wrap(KindNotFound, "artifact missing", fmt.Errorf("stat failed"))
	if !errors.Is(err, Sentinel(KindNotFound)) {
		t.Fatalf("expected errors.Is to match on kind")
	}
	if errors.Is(err, Sentinel(KindTimeout)) {
		t.Fatalf("expected errors.Is to not match different kind")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(KindInternal, "wrapped", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected Unwrap to expose the cause")
	}
}

func TestRetryableFlag(t *testing.T) {
	err := New(KindDispatchFailed, "agent crashed").WithDetails(map[string]any{"retryable": true})
	if !err.Retryable() {
		t.Fatalf("expected Retryable() to be true")
	}
	notRetryable := New(KindDispatchFailed, "agent crashed")
	if notRetryable.Retryable() {
		t.Fatalf("expected Retryable() to default to false")
	}
}
