package shared

import "errors"

var (
	// ErrNotFound indicates the referenced resource does not exist or is not
	// visible to the caller. Ownership misses map here on purpose so the API
	// does not leak existence of other clients' orders.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates an order status change outside the
	// allowed transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidState indicates an operation not legal for the entity's
	// current state, e.g. retrying an extraction that has not failed.
	ErrInvalidState = errors.New("invalid state")
	// ErrPrecondition indicates a guarded operation whose precondition does
	// not hold, e.g. submitting an order without documents.
	ErrPrecondition = errors.New("precondition failed")
	// ErrConflict indicates a uniqueness violation such as a duplicate
	// notification for the same order and type.
	ErrConflict = errors.New("conflict")
	// ErrUpstream indicates a vendor or gateway call failed.
	ErrUpstream = errors.New("upstream failure")
)
