package challenge

import "errors"

// Request failures. Callers match them with errors.Is.
var (
	// ErrInvalidRequest is returned for a malformed trade request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFoundOrUnauthorized covers both a missing challenge and one owned by another user.
	ErrNotFoundOrUnauthorized = errors.New("challenge not found")
	// ErrChallengeNotTradable is returned when the challenge is no longer active.
	ErrChallengeNotTradable = errors.New("challenge is not tradable")
	// ErrBusy means the per-challenge lock could not be taken in time. Retryable.
	ErrBusy = errors.New("challenge is busy")
	// ErrConflict means the challenge changed state under a concurrent writer. Retryable.
	ErrConflict = errors.New("concurrent modification")
	// ErrPersistence wraps storage faults.
	ErrPersistence = errors.New("persistence failure")
)

// Retryable reports whether err is a contention failure the caller may retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrConflict)
}
