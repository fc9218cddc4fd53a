// Package domain holds the panel's entities and the pure rules that govern them.
// Nothing in this package performs I/O.
package domain

import "errors"

// =============================================================================
// Error Kinds
// =============================================================================

var (
	// ErrValidation is returned when allocation input is incomplete or malformed.
	// Field-specific detail is carried by validation.FieldError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned for unknown (or not visible) servers and plans.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the actor may not perform the operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidTransition is returned when an action has no transition from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidPromoCode is returned for unknown promo codes. It is non-fatal:
	// the accompanying price breakdown is still valid at full price.
	ErrInvalidPromoCode = errors.New("invalid promo code")

	// ErrPersistence wraps storage and transport faults.
	ErrPersistence = errors.New("persistence error")

	// ErrConflict is returned when a concurrent write changed the server first.
	ErrConflict = errors.New("concurrent modification")
)
