// Package errs defines the error taxonomy shared by every layer of the
// store: IO, Corruption, Usage, Invariant, SpaceExhausted and Conflict.
// Callers should use errors.Is/errors.As against the sentinels and typed
// errors below rather than string-matching error messages.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel classes. Wrap a cause with fmt.Errorf("...: %w", cause) and the
// matching sentinel to let callers classify with errors.Is while keeping
// the original cause in the chain.
var (
	// IO marks backing-store read/write/fsync failures.
	IO = errors.New("io failure")
	// Corruption marks a page that fails structural validation or a
	// fragment chain that cannot be reconstructed.
	Corruption = errors.New("corruption")
	// Usage marks an illegal operation for the current node kind/state.
	Usage = errors.New("usage error")
	// Invariant marks an internal contract violation. Never recovered.
	Invariant = errors.New("invariant violation")
	// Conflict marks an attempted second writer on a resource.
	Conflict = errors.New("conflict")
)

// WrapIO wraps cause as an IO error.
func WrapIO(cause error) error { return fmt.Errorf("%w: %w", IO, cause) }

// WrapCorruption wraps cause as a Corruption error.
func WrapCorruption(cause error) error { return fmt.Errorf("%w: %w", Corruption, cause) }

// Usagef builds a Usage error with a formatted message.
func Usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", Usage, fmt.Sprintf(format, args...))
}

// Invariantf builds an Invariant error with a formatted message. Invariant
// violations are raised, never handled — callers should let them propagate
// to the top and crash loudly rather than attempt recovery.
func Invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", Invariant, fmt.Sprintf(format, args...))
}

// SpaceExhaustedError carries the diagnostic payload spec'd for a HOT
// insert that cannot be split or compacted into enough room.
type SpaceExhaustedError struct {
	IndexType      string
	EntryCount     int
	RemainingSpace int
	RequiredSpace  int
}

func (e *SpaceExhaustedError) Error() string {
	return fmt.Sprintf(
		"space exhausted in %s index: %d entries, %d bytes remaining, %d bytes required",
		e.IndexType, e.EntryCount, e.RemainingSpace, e.RequiredSpace,
	)
}

// Is lets errors.Is(err, ErrSpaceExhausted) match any *SpaceExhaustedError.
func (e *SpaceExhaustedError) Is(target error) bool {
	return target == ErrSpaceExhausted
}

// ErrSpaceExhausted is the sentinel matched by SpaceExhaustedError.Is.
var ErrSpaceExhausted = errors.New("space exhausted")
