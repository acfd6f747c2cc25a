package models

import "errors"

// Business rule violations. These are recoverable: the conversation engine
// converts them to a user-visible reply and re-anchors to the main menu.
// Infrastructure failures (provider HTTP errors, DB errors) are wrapped
// separately and never shown to the customer verbatim.
var (
	// ErrInvalidItem is returned when an order references an item key that
	// is not present in the catalog at finalization time.
	ErrInvalidItem = errors.New("invalid order item")

	// ErrInvalidAmount is returned for zero or negative order amounts.
	// Amounts are never clamped or coerced.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrOrderNotFound is returned for lookups of nonexistent order ids.
	ErrOrderNotFound = errors.New("order not found")

	// ErrUnauthorized is returned when a non-admin attempts an admin step.
	ErrUnauthorized = errors.New("unauthorized action")

	// ErrSessionInconsistent indicates a later flow step executed without a
	// required field from an earlier step, i.e. a stale or corrupted session.
	ErrSessionInconsistent = errors.New("session inconsistent")
)
