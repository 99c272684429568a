// Package fault declares the storage and generation error taxonomy shared
// by the cache tiers and the coordinator. Callers classify with errors.Is.
package fault

import "errors"

var (
	// ErrNotFound: absent or expired in all tiers. Triggers generation.
	ErrNotFound = errors.New("not found")

	// ErrTransientStorage: retryable I/O fault (overload, rate limit).
	ErrTransientStorage = errors.New("transient storage error")

	// ErrCorruptArchive: unparseable blob. Terminal, never retried.
	ErrCorruptArchive = errors.New("corrupt archive")

	// ErrInvalidInput: malformed key or URL.
	ErrInvalidInput = errors.New("invalid input")

	// ErrGenerationFailure: external generator error, not retried here.
	ErrGenerationFailure = errors.New("generation failure")

	// ErrInconsistentState: metadata row and blob disagree. Surfaced as
	// NotFound to callers but logged loudly for operators.
	ErrInconsistentState = errors.New("inconsistent durable state")
)
