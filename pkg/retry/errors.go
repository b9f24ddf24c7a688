package retry

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is matched by every TimeoutError via errors.Is.
	ErrTimeout = errors.New("retry: timeout exceeded")
	// ErrRejected is the reason used when CheckResolve rejects without one.
	ErrRejected = errors.New("retry: result rejected")
)

// InvalidOperationError is returned by Wrap when the operation is nil.
type InvalidOperationError struct {
	Name string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("retry: operation '%s' must be a function", e.Name)
}

// TimeoutError is returned when the overall deadline elapses before the
// session settles.
type TimeoutError struct {
	// Name identifies the wrapped operation
	Name string
	// Timeout is the configured session budget
	Timeout time.Duration
	// Attempts is the number of attempts that failed before the deadline fired
	Attempts int
	// LastError is the most recent attempt error, if any
	LastError error
	// LastResult is the most recent successful result, valid when HasLastResult is set
	LastResult    any
	HasLastResult bool
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("retry: retry '%s' failed: timeout of %dms exceeded", e.Name, e.Timeout.Milliseconds())
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Unwrap exposes the last attempt error for diagnostics.
func (e *TimeoutError) Unwrap() error {
	return e.LastError
}

// IsTimeout reports whether err was produced by an elapsed session deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
