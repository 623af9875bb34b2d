package domain

import "errors"

var (
	// ErrValidation indicates malformed input (bad direction/type, missing
	// required field). Rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates that a requested resource was not found or belongs
	// to a different tenant.
	ErrNotFound = errors.New("resource not found")
	// ErrAccessDenied indicates the actor lacks a required permission or is
	// not the assignee of the conversation.
	ErrAccessDenied = errors.New("access denied")
	// ErrDuplicateEntry indicates a unique constraint violation.
	ErrDuplicateEntry = errors.New("duplicate entry")
	// ErrDuplicateEvent marks a webhook delivery whose provider message id was
	// already processed. A logged no-op, not a failure.
	ErrDuplicateEvent = errors.New("event already processed")
	// ErrProvider marks a timeout or non-success response from the messaging
	// provider, caught at the adapter boundary.
	ErrProvider = errors.New("provider request failed")
	// ErrConflict indicates a state transition that is not defined from the
	// conversation's current status.
	ErrConflict = errors.New("conflicting state transition")
)
