package custom_errors

import (
	"errors"
	"fmt"
)

var (
	// Job control plane errors.
	ErrJobNotFound       = errors.New("genjob: job not found")
	ErrJobAlreadyExists  = errors.New("genjob: job already exists")
	ErrInvalidTransition = errors.New("genjob: invalid state transition")
	ErrFatalExhaustion   = errors.New("genjob: retry attempts exhausted")

	// Resource pool errors.
	ErrCircuitOpen = errors.New("genjob: database circuit breaker is open")
	ErrPoolClosed  = errors.New("genjob: connection pool closed")

	// Lock errors.
	ErrLockHeld  = errors.New("genjob: lock is held by another holder")
	ErrLeaseLost = errors.New("genjob: lease lost")

	// Asset errors.
	ErrScopeMismatch  = errors.New("genjob: scope and input length mismatch")
	ErrEntityNotFound = errors.New("genjob: owning entity not found")
	ErrAssetNotFound  = errors.New("genjob: asset key not found")
	ErrVersionMissing = errors.New("genjob: asset version does not exist")
)

// ApplicationError is a business-rule or payload failure. It fails the job
// but never counts toward the database circuit breaker.
type ApplicationError struct {
	Op  string
	Err error
}

func NewApplicationError(op string, err error) *ApplicationError {
	return &ApplicationError{Op: op, Err: err}
}

func (e *ApplicationError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ApplicationError) Unwrap() error {
	return e.Err
}

// IsApplicationError reports whether err carries an ApplicationError.
func IsApplicationError(err error) bool {
	var appErr *ApplicationError
	return errors.As(err, &appErr)
}
