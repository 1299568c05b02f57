package credits

import "errors"

var (
	// ErrNotFound indicates the user has no credit account yet.
	ErrNotFound = errors.New("credit account not found")
	// ErrInvalidAmount rejects zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)
