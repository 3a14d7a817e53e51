package internaltypes

import "errors"

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")

	ErrInvalidArgument = errors.New("invalid argument")
	ErrEmptyPool       = errors.New("empty pool")

	// Contention outcomes. Callers treat these as "someone else got it".
	ErrAlreadyClaimed    = errors.New("already claimed")
	ErrDuplicateClaimant = errors.New("claimant already holds an entry")

	ErrNotClaimed       = errors.New("entry not claimed")
	ErrAlreadyDelivered = errors.New("entry already delivered")
	ErrAlreadyScheduled = errors.New("item already scheduled")
)

// IsContention reports whether err is an expected claim race outcome.
func IsContention(err error) bool {
	return errors.Is(err, ErrAlreadyClaimed) || errors.Is(err, ErrDuplicateClaimant)
}
