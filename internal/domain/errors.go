package domain

import "errors"

// Check-in error taxonomy. Handlers map these onto HTTP codes; nothing in
// the ledger path swallows them.
var (
	// ErrTokenInvalid means the scanned string is not a well-formed token.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenNotFound means the token is well-formed but matches no entity,
	// or is outside its validity window.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTenantMismatch means the token's entity belongs to a different
	// tenant than the caller. Always fails closed.
	ErrTenantMismatch = errors.New("tenant mismatch")

	// ErrAlreadyRedeemed is the losing side of a guest-pass redemption.
	// It signals correct duplicate-scan protection, not a failure.
	ErrAlreadyRedeemed = errors.New("guest pass already redeemed")

	ErrReservationNotFound = errors.New("reservation not found")
	ErrGuestPassNotFound   = errors.New("guest pass not found")
	ErrPromoterNotFound    = errors.New("promoter not found")
	ErrWalkInNotFound      = errors.New("walk-in record not found")

	// ErrInvalidStateTransition covers increments on a cancelled
	// reservation and any other disallowed status move.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrConcurrencyConflict is transient: the caller may safely retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)
