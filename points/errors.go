/*
errors.go - Error taxonomy for the points engine

ERROR CATEGORIES:
  1. Not found    - user or payer does not resolve
  2. Client input - invalid input, insufficient balance, duplicate payer
  3. Unexpected   - everything else (storage failures), passed through wrapped

USAGE:
  if errors.Is(err, points.ErrInsufficientBalance) {
      var ib *points.InsufficientBalanceError
      errors.As(err, &ib) // ib.Requested
  }

SEE ALSO:
  - api/errors.go: Maps these errors to HTTP status codes
*/
package points

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUserNotFound is returned when a user id does not resolve.
	ErrUserNotFound = errors.New("user not found")

	// ErrPayerNotFound is returned when no payer matches the given name.
	ErrPayerNotFound = errors.New("payer not found")

	// ErrInsufficientBalance is returned when a spend cannot be covered by
	// the user's eligible transactions.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidInput is returned for malformed or missing request fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPayerExists is returned when creating a payer whose name is already
	// taken, ignoring case.
	ErrPayerExists = errors.New("payer already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports the amount originally requested by a
// failed spend.
type InsufficientBalanceError struct {
	UserID    UserID
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient funds for requested %d points", e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// InvalidInputError names the offending field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing user or payer.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrPayerNotFound)
}

// IsClientError returns true if the error is caused by the request rather
// than by the system.
func IsClientError(err error) bool {
	return IsNotFound(err) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrPayerExists)
}
