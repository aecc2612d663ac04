package fingerprint

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure cases
var (
	// ErrInvalidMAC indicates the address or prefix format is invalid
	ErrInvalidMAC = errors.New("invalid MAC address format")

	// ErrEmptyMAC indicates an empty address was provided
	ErrEmptyMAC = errors.New("empty MAC address")

	// ErrLocallyAdministered indicates a randomized address with no registered vendor
	ErrLocallyAdministered = errors.New("locally administered address")

	ErrVendorNotFound = errors.New("vendor not found")

	// ErrRegistryClosed indicates the vendor registry has been closed
	ErrRegistryClosed = errors.New("vendor registry is closed")
)

// DatabaseError wraps database-specific errors with context
type DatabaseError struct {
	Op  string // Operation that failed (e.g., "lookup", "insert")
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("vendor database %s failed: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// ValidationError wraps validation errors with the invalid value
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
