package errors_test

import (
	"errors"
	"fmt"
	"testing"

	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

func TestCodeAndVars(t *testing.T) {
	e := berr.Code(berr.ErrCodePublishFailed)
	if e.Error() != berr.ErrCodePublishFailed {
		t.Fatalf("unexpected error string: %s", e.Error())
	}

	// exported variables must carry their codes
	tests := []struct {
		err  error
		code string
	}{
		{berr.ErrHandlerExists, berr.ErrCodeHandlerExists},
		{berr.ErrHandlerNotFound, berr.ErrCodeHandlerNotFound},
		{berr.ErrHandlerTypeMismatch, berr.ErrCodeHandlerTypeMismatch},
		{berr.ErrAsyncNotConfigured, berr.ErrCodeAsyncNotConfigured},
		{berr.ErrEnqueueFailed, berr.ErrCodeEnqueueFailed},
		{berr.ErrPublishFailed, berr.ErrCodePublishFailed},
		{berr.ErrDelayUnsupported, berr.ErrCodeDelayUnsupported},
		{berr.ErrSerializationFailed, berr.ErrCodeSerializationFailed},
		{berr.ErrBusClosed, berr.ErrCodeBusClosed},
		{berr.ErrUnauthorized, berr.ErrCodeUnauthorized},
		{berr.ErrForbidden, berr.ErrCodeForbidden},
		{berr.ErrValidation, berr.ErrCodeValidation},
		{berr.ErrNotFound, berr.ErrCodeNotFound},
		{berr.ErrDuplicateRequest, berr.ErrCodeDuplicateRequest},
		{berr.ErrCircuitOpen, berr.ErrCodeCircuitOpen},
		{berr.ErrAfterCommit, berr.ErrCodeAfterCommit},
	}

	for _, tc := range tests {
		if !errors.Is(tc.err, berr.Code(tc.code)) {
			t.Fatalf("expected %s to be %s", tc.err, tc.code)
		}
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("load order: %w", berr.ErrNotFound)
	if got := berr.CodeOf(wrapped); got != berr.ErrCodeNotFound {
		t.Fatalf("got %q", got)
	}

	joined := errors.Join(errors.New("plain"), berr.ErrForbidden)
	if got := berr.CodeOf(joined); got != berr.ErrCodeForbidden {
		t.Fatalf("got %q", got)
	}

	committed := fmt.Errorf("%w: %w", berr.ErrAfterCommit, berr.ErrPublishFailed)
	if got := berr.CodeOf(committed); got != berr.ErrCodeAfterCommit {
		t.Fatalf("got %q", got)
	}

	if got := berr.CodeOf(errors.New("plain")); got != "" {
		t.Fatalf("expected empty code, got %q", got)
	}
}
