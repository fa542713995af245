package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestWithDetailMatchesSentinel(t *testing.T) {
	err := ErrContentMismatch.WithDetail("offset %d", 17)

	if !stderrors.Is(err, ErrContentMismatch) {
		t.Error("errors.Is(err, ErrContentMismatch) = false, want true")
	}
	if stderrors.Is(err, ErrUnexpectedFailure) {
		t.Error("errors.Is(err, ErrUnexpectedFailure) = true, want false")
	}
	want := "ContentMismatch: retrieved content does not match the reference: offset 17"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if ErrContentMismatch.Detail != "" {
		t.Errorf("sentinel Detail = %q, want it unchanged", ErrContentMismatch.Detail)
	}
}

func TestWrappedErrorMatches(t *testing.T) {
	err := fmt.Errorf("scenario size=1_i=0: %w", ErrInvocationFailure.WithDetail("put-object exit 254"))

	if !stderrors.Is(err, ErrInvocationFailure) {
		t.Error("errors.Is(err, ErrInvocationFailure) = false, want true")
	}

	var he *Error
	if !stderrors.As(err, &he) {
		t.Fatal("errors.As(err, *Error) = false, want true")
	}
	if he.Code != "InvocationFailure" {
		t.Errorf("Code = %q, want %q", he.Code, "InvocationFailure")
	}
	if he.Fatal {
		t.Error("Fatal = true, want false")
	}
}

func TestFatalClassification(t *testing.T) {
	tests := []struct {
		err   *Error
		fatal bool
	}{
		{ErrInvocationFailure, false},
		{ErrInvocationTimeout, false},
		{ErrUnexpectedSuccess, false},
		{ErrUnexpectedFailure, false},
		{ErrContentMismatch, false},
		{ErrMissingRequiredInput, true},
		{ErrInvalidCategory, true},
		{ErrUnsupportedFrequency, true},
		{ErrNoSuchSession, true},
		{ErrMalformedPlan, true},
	}
	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if tt.err.Fatal != tt.fatal {
				t.Errorf("%s.Fatal = %v, want %v", tt.err.Code, tt.err.Fatal, tt.fatal)
			}
		})
	}
}
