// Package faults defines the error taxonomy shared by the orchestrator,
// the task substrate and the downstream clients. The split that matters
// operationally is transient versus fatal: transient failures are retried
// by the substrate with backoff, fatal ones surface immediately and are
// never re-queued.
package faults

import "errors"

var (
	// ErrResourceUnavailable signals a backend at capacity. Transient.
	ErrResourceUnavailable = errors.New("resource_unavailable")

	// ErrDownstreamTimeout signals a dependency that did not answer in
	// time. Transient.
	ErrDownstreamTimeout = errors.New("downstream_timeout")

	// ErrBusy signals the local concurrency ceiling was hit; the caller
	// is rejected fast instead of queueing unboundedly. Transient.
	ErrBusy = errors.New("downstream_busy")

	// ErrIdempotencyViolation means the allocator returned a different
	// backend for an instance that already has one recorded. This should
	// be unreachable; it is a bug, not a retry candidate.
	ErrIdempotencyViolation = errors.New("allocation_idempotency_violation")

	// ErrValidation covers malformed caller input. Fatal, synchronous.
	ErrValidation = errors.New("validation_error")

	// ErrInvalidState covers transitions the state machine forbids,
	// such as retrying an instance that is not in error. Fatal.
	ErrInvalidState = errors.New("invalid_state")

	// ErrNotFound covers lookups on absent records. Fatal.
	ErrNotFound = errors.New("not_found")
)

// Retryable reports whether the task substrate may re-queue work that
// failed with err.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrResourceUnavailable),
		errors.Is(err, ErrDownstreamTimeout),
		errors.Is(err, ErrBusy):
		return true
	default:
		return false
	}
}
