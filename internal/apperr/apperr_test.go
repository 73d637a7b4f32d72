package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := NotFound("equipment %s not found", "e1")
	wrapped := fmt.Errorf("initiating transfer: %w", base)

	if got := KindOf(wrapped); got != KindNotFound {
		t.Errorf("KindOf = %q, want %q", got, KindNotFound)
	}
	if got := Message(wrapped); got != "equipment e1 not found" {
		t.Errorf("Message = %q", got)
	}
	if !Is(wrapped, KindNotFound) {
		t.Error("expected Is(wrapped, NotFound)")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("disk on fire")); got != "" {
		t.Errorf("expected empty kind for plain error, got %q", got)
	}
	if Is(nil, KindNotFound) {
		t.Error("nil error should not match any kind")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("conflict")
	err := Wrap(KindFailedPrecondition, cause, "request already processed")
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable with errors.Is")
	}
	if Message(err) != "request already processed" {
		t.Errorf("unexpected message %q", Message(err))
	}
}
