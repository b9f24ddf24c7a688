package retry

import "time"

// MinTimerWait is the scheduling floor for the retry interval. Intervals at or
// below it are treated as "retry immediately": such short timers add scheduling
// noise without giving the operation any meaningful backoff.
const MinTimerWait = 80 * time.Millisecond

// RuntimeData describes the session when CheckResolve runs. It reflects the
// state before the current attempt is counted.
type RuntimeData struct {
	// RemainingAttempts is the number of attempts left after this one
	RemainingAttempts int
	// IsFinalAttempt is true when no attempt follows this one
	IsFinalAttempt bool
	RetryInterval  time.Duration
	RetryLimit     int
}

// Verdict is the outcome of result validation.
type Verdict struct {
	reason error
}

// Accept keeps the result and settles the call with it.
func Accept() Verdict { return Verdict{} }

// Reject turns a successful attempt into a failed one. The reason becomes the
// attempt error; a nil reason is replaced by ErrRejected.
func Reject(reason error) Verdict {
	if reason == nil {
		reason = ErrRejected
	}
	return Verdict{reason: reason}
}

// Accepted reports whether the verdict keeps the result.
func (v Verdict) Accepted() bool { return v.reason == nil }

// Reason returns the rejection reason, nil for an accepted result.
func (v Verdict) Reason() error { return v.reason }

// Policy defines retry behavior for one wrapped operation. The zero value
// performs no retries.
type Policy[T any] struct {
	// RetryLimit is the number of extra attempts after the first one
	RetryLimit int
	// RetryInterval is the delay before each retry, counted from the end of the previous attempt
	RetryInterval time.Duration
	// Timeout is the budget for the whole call (0 = no limit)
	Timeout time.Duration
	// CheckResolve validates every successful result; a rejection consumes an attempt
	CheckResolve func(result T, rd RuntimeData) Verdict
	// ResolveWithLastResult settles with the last successful result instead of
	// the last error once attempts are exhausted
	ResolveWithLastResult bool
	// OnRetry is called before each retry for observability
	OnRetry func(attempt int, err error, delay time.Duration)
}

// normalize clamps negative numbers to zero.
func (p Policy[T]) normalize() Policy[T] {
	if p.RetryLimit < 0 {
		p.RetryLimit = 0
	}
	if p.RetryInterval < 0 {
		p.RetryInterval = 0
	}
	if p.Timeout < 0 {
		p.Timeout = 0
	}
	return p
}

// delay returns the wait before the next attempt after applying MinTimerWait.
func (p Policy[T]) delay() time.Duration {
	if p.RetryInterval > MinTimerWait {
		return p.RetryInterval
	}
	return 0
}
