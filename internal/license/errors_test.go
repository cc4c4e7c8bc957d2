package license

import (
	"errors"
	"fmt"
	"testing"
)

func TestInvalidCodeErrorMatching(t *testing.T) {
	tests := []struct {
		status   Status
		sentinel error
	}{
		{StatusNotFound, ErrNotFound},
		{StatusAlreadyUsed, ErrAlreadyUsed},
		{StatusExpired, ErrExpired},
	}
	for _, tt := range tests {
		err := fmt.Errorf("wrapped: %w", &InvalidCodeError{Status: tt.status})
		if !errors.Is(err, ErrInvalidCode) {
			t.Errorf("%s: expected ErrInvalidCode match", tt.status)
		}
		if !errors.Is(err, tt.sentinel) {
			t.Errorf("%s: expected %v match", tt.status, tt.sentinel)
		}
		if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrPersistence) {
			t.Errorf("%s: unexpected match", tt.status)
		}
		if got := Outcome(err); got != string(tt.status) {
			t.Errorf("Outcome = %q, want %q", got, tt.status)
		}
	}
}

func TestPersistenceErrorMatching(t *testing.T) {
	cause := errors.New("disk full")
	err := persistence("mark code used", cause)

	if !errors.Is(err, ErrPersistence) || !errors.Is(err, cause) {
		t.Fatal("expected persistence error to match sentinel and cause")
	}
	if errors.Is(err, ErrInvalidCode) {
		t.Fatal("persistence error must not look like an invalid code")
	}
	if Outcome(err) != "error" {
		t.Fatalf("unexpected outcome %q", Outcome(err))
	}
}

func TestTxErrorWrapsOnlyUnclassifiedErrors(t *testing.T) {
	if txError("op", nil) != nil {
		t.Fatal("nil must stay nil")
	}
	if err := txError("op", ErrAccountNotFound); err != ErrAccountNotFound {
		t.Fatalf("taxonomy errors pass through, got %v", err)
	}
	if err := txError("op", errors.New("commit failed")); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected wrapping, got %v", err)
	}
}
