package cellkit

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesDirectError(t *testing.T) {
	err := E(KindInvalidData, "op", nil)
	if !Is(err, KindInvalidData) {
		t.Error("Is should match a directly-constructed error of the same kind")
	}
	if Is(err, KindCancelled) {
		t.Error("Is should not match a different kind")
	}
}

func TestIsUnwrapsFmtWrapping(t *testing.T) {
	inner := E(KindNotFound, "inner_op", nil)
	wrapped := fmt.Errorf("outer context: %w", inner)
	if !Is(wrapped, KindNotFound) {
		t.Error("Is should see through fmt.Errorf %w wrapping")
	}
}

func TestIsReturnsFalseOnPlainError(t *testing.T) {
	if Is(errors.New("plain"), KindInvalidData) {
		t.Error("Is should not match a plain, non-cellkit error")
	}
	if Is(nil, KindInvalidData) {
		t.Error("Is(nil, ...) must be false")
	}
}

func TestErrorMessageIncludesOpAndKind(t *testing.T) {
	err := E(KindCellUnderflow, "make_tx_proof", errors.New("boom"))
	msg := err.Error()
	if msg == "" {
		t.Fatal("Error() returned empty string")
	}
	if got := errors.Unwrap(err); got == nil || got.Error() != "boom" {
		t.Errorf("Unwrap() = %v, want the wrapped \"boom\" error", got)
	}
}

func TestErrorMessageWithNilWrappedErr(t *testing.T) {
	err := E(KindCancelled, "build_proof", nil)
	if err.Unwrap() != nil {
		t.Error("Unwrap() should be nil when no underlying error was given")
	}
	if err.Error() == "" {
		t.Error("Error() must still produce a readable message with a nil wrapped error")
	}
}
