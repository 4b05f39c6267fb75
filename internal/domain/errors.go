package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// VenueError represents a failure talking to the execution venue.
// Connection-level failures are retriable; venue rejections are not.
type VenueError struct {
	Op        string // Operation that failed (e.g., "connect", "order_send", "close")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *VenueError) Error() string {
	return "venue " + e.Op + ": " + e.Err.Error()
}

func (e *VenueError) IsRetriable() bool {
	return e.Retriable
}

func (e *VenueError) Unwrap() error {
	return e.Err
}

// NewVenueError creates a retriable venue error (connection-level faults)
func NewVenueError(op string, err error) *VenueError {
	return &VenueError{Op: op, Err: err, Retriable: true}
}

// NewVenueRejection creates a non-retriable venue error (explicit rejections)
func NewVenueRejection(op string, err error) *VenueError {
	return &VenueError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable, fatal at startup)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ValidationError describes a malformed order field. The order is dropped,
// never coerced.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid order [" + e.Field + "]: " + e.Reason
}

// DuplicateExposureError signals that an OpenExposure already exists for
// the (symbol, direction) pair. Recoverable: the signal is skipped.
type DuplicateExposureError struct {
	Symbol    string
	Direction Direction
}

func (e *DuplicateExposureError) Error() string {
	return fmt.Sprintf("duplicate exposure for %s %s", e.Symbol, e.Direction)
}

// AuthorizationError rejects an OPEN whose risk token is missing, malformed
// or stale. No venue call is made when this is returned.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "risk authorization rejected: " + e.Reason
}

// PathSecurityError rejects a persistence path that resolves outside the
// configured base directory.
type PathSecurityError struct {
	Path string
}

func (e *PathSecurityError) Error() string {
	return "persistence path escapes base directory: " + e.Path
}

var (
	// ErrIntegrity is returned when the persisted-state checksum does not
	// verify. The state is discarded and treated as empty, never trusted.
	ErrIntegrity = errors.New("persisted state integrity check failed")

	// ErrVenueUnavailable is returned when reconnecting to the venue failed
	// within the configured retry limit.
	ErrVenueUnavailable = errors.New("venue unavailable")

	// ErrInvalidSymbol is returned when a symbol is not supported or malformed. Not retriable.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrTicketNotFound is returned when a CLOSE names an unknown ticket
	ErrTicketNotFound = errors.New("ticket not found")
)
