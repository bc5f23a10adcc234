package apperr

import (
	"errors"
	"testing"
)

func TestCodeOfClassifiesTaxonomyErrors(t *testing.T) {
	if got := CodeOf(NotFoundf("no such operator %q", "alice")); got != NotFound {
		t.Fatalf("expected NotFound, got %v", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Fatalf("expected an empty code for a nil error, got %v", got)
	}
	if got := CodeOf(errors.New("boom")); got != Internal {
		t.Fatalf("expected an unclassified error to default to Internal, got %v", got)
	}
}

func TestWrapReturnsNilForNilCause(t *testing.T) {
	if err := Wrap(Conflict, nil); err != nil {
		t.Fatalf("expected Wrap(code, nil) to return nil, got %v", err)
	}
}

func TestWrapPreservesCauseViaUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(Unavailable, cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
	if CodeOf(err) != Unavailable {
		t.Fatalf("expected the wrapped error to classify as Unavailable, got %v", CodeOf(err))
	}
}

func TestErrorMessageIncludesCauseWhenPresent(t *testing.T) {
	cause := errors.New("timeout")
	err := Wrap(Internal, cause)
	if err.Error() == "" {
		t.Fatalf("expected a non-empty error message")
	}
	if errors.Unwrap(err) != cause {
		t.Fatalf("expected Unwrap to return the original cause")
	}
}
