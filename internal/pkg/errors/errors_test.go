package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestActivityError_Error(t *testing.T) {
	e := Transient("UPSTREAM_BUSY", "upstream rejected the request")
	want := "UPSTREAM_BUSY [TRANSIENT]: upstream rejected the request"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}

	wrapped := Wrap(errors.New("dial tcp: refused"), ClassTransient, "UPSTREAM_DOWN", "lookup failed")
	if got := wrapped.Error(); got != "UPSTREAM_DOWN [TRANSIENT]: lookup failed: dial tcp: refused" {
		t.Errorf("Error() = %q", got)
	}
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"timeout", Timeout("SLOW", "no response"), ClassTimeout},
		{"transient", Transient("BUSY", "try later"), ClassTransient},
		{"permanent", Permanent("BAD_INPUT", "rejected"), ClassPermanent},
		{"wrapped in fmt", fmt.Errorf("invoke: %w", Transient("BUSY", "try later")), ClassTransient},
		{"context deadline", context.DeadlineExceeded, ClassTimeout},
		{"plain error", errors.New("boom"), ClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassOf(tt.err); got != tt.want {
				t.Errorf("ClassOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(Timeout("SLOW", "no response")) {
		t.Error("timeout should be retryable")
	}
	if !IsRetryable(Transient("BUSY", "try later")) {
		t.Error("transient should be retryable")
	}
	if IsRetryable(Permanent("BAD_INPUT", "rejected")) {
		t.Error("permanent should not be retryable")
	}
	if IsRetryable(errors.New("boom")) {
		t.Error("unclassified errors should not be retryable")
	}
}

func TestReplayInconsistent(t *testing.T) {
	err := ReplayInconsistent("entry %d: outcome without schedule", 4)
	if !errors.Is(err, ErrReplayInconsistency) {
		t.Error("ReplayInconsistent should match ErrReplayInconsistency")
	}
	if err.Error() != "replay inconsistency: entry 4: outcome without schedule" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("socket closed")
	e := Wrap(inner, ClassTimeout, "NO_RESPONSE", "gone")
	if !errors.Is(e, inner) {
		t.Error("Wrap should preserve the error chain")
	}

	got, ok := IsActivityError(fmt.Errorf("outer: %w", e))
	if !ok || got.Code != "NO_RESPONSE" {
		t.Errorf("IsActivityError = %v, %v", got, ok)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(Permanent("REJECTED", "no")); got != "REJECTED" {
		t.Errorf("CodeOf = %q", got)
	}
	if got := CodeOf(errors.New("boom")); got != "UNCLASSIFIED" {
		t.Errorf("CodeOf = %q, want UNCLASSIFIED", got)
	}
}
