package errs

import (
	"errors"
	"testing"
)

func TestWrapIOMatchesSentinel(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapIO(cause)

	if !errors.Is(err, IO) {
		t.Fatalf("expected wrapped error to match IO sentinel")
	}
}

func TestSpaceExhaustedMatchesSentinel(t *testing.T) {
	err := &SpaceExhaustedError{IndexType: "PATH", EntryCount: 1, RemainingSpace: 4, RequiredSpace: 40}

	if !errors.Is(err, ErrSpaceExhausted) {
		t.Fatalf("expected SpaceExhaustedError to match ErrSpaceExhausted sentinel")
	}

	if err.Error() == "" {
		t.Fatalf("expected non-empty diagnostic message")
	}
}

func TestUsagefAndInvariantf(t *testing.T) {
	u := Usagef("cannot insert child at %s", "attribute")
	if !errors.Is(u, Usage) {
		t.Fatalf("expected Usagef result to match Usage sentinel")
	}

	inv := Invariantf("page %d missing from TIL", 7)
	if !errors.Is(inv, Invariant) {
		t.Fatalf("expected Invariantf result to match Invariant sentinel")
	}
}
