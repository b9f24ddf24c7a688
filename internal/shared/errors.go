package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"retryrelay/pkg/retry"
)

// Common errors that can be used across the application
var (
	// ErrNotFound indicates that an upstream resource was not found
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates that input validation failed
	ErrValidation = errors.New("validation failed")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrDependencyFailure indicates that an upstream dependency failed
	ErrDependencyFailure = errors.New("dependency failure")
)

// Kind represents a category of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindInternal
	KindTimeout
	KindDependencyFailure
	KindCanceled
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindValidation:
		return "Validation"
	case KindInternal:
		return "Internal"
	case KindTimeout:
		return "Timeout"
	case KindDependencyFailure:
		return "DependencyFailure"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

var kindToSentinel = map[Kind]error{
	KindNotFound:          ErrNotFound,
	KindValidation:        ErrValidation,
	KindInternal:          ErrInternal,
	KindTimeout:           ErrTimeout,
	KindDependencyFailure: ErrDependencyFailure,
}

// kindPriorities defines the order in which KindOf checks kinds.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindCanceled, nil},
	{KindTimeout, ErrTimeout},
	{KindValidation, ErrValidation},
	{KindNotFound, ErrNotFound},
	{KindDependencyFailure, ErrDependencyFailure},
	{KindInternal, ErrInternal},
}

// KindOf returns the Kind of err by walking its chain in priority order.
// For errors created with errors.Join the highest priority match wins.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, p := range kindPriorities {
		switch p.kind {
		case KindCanceled:
			if IsCanceled(err) {
				return KindCanceled
			}
		case KindTimeout:
			if IsTimeout(err) {
				return KindTimeout
			}
		default:
			if errors.Is(err, p.err) {
				return p.kind
			}
		}
	}
	return KindUnknown
}

// sentinelOf returns the sentinel error for kind, nil for KindUnknown and KindCanceled.
func sentinelOf(kind Kind) error {
	return kindToSentinel[kind]
}

// MarkKind wraps err with the sentinel of kind, keeping err reachable through
// errors.Is. Marking an error that already has kind returns it unchanged.
// A nil err yields the sentinel itself.
func MarkKind(err error, kind Kind) error {
	sentinel := sentinelOf(kind)
	if err == nil {
		return sentinel
	}
	if sentinel == nil || KindOf(err) == kind {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrap returns err prefixed with context. A nil err stays nil.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf is Wrap with a formatted context.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsCanceled reports whether err indicates a canceled context.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err indicates a timeout: context.DeadlineExceeded,
// an elapsed retry deadline, ErrTimeout or a net.Error timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) || retry.IsTimeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// StatusOf maps the kind of err to an HTTP status code for API responses.
func StatusOf(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindDependencyFailure:
		return http.StatusBadGateway
	case KindCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

type userMessager interface {
	UserMessage() string
}

// MessageOf returns a human readable message for err. A non-empty
// UserMessage() found in the chain wins over Error(); def is used for nil
// errors and empty messages.
func MessageOf(err error, def string) string {
	if err == nil {
		return def
	}
	var um userMessager
	if errors.As(err, &um) {
		if msg := um.UserMessage(); msg != "" {
			return msg
		}
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return def
}
