package retry

import (
	"context"
	"sync"
	"time"
)

// Operation is a unit of work that can be retried.
type Operation[T any] func(ctx context.Context) (T, error)

const defaultName = "operation"

// Wrap returns op extended with the retry behavior described by policy. The
// returned operation has the same signature as op and may be called
// concurrently; every call runs its own session.
//
// When policy.RetryLimit is zero or negative op is returned unchanged.
func Wrap[T any](name string, op Operation[T], policy Policy[T]) (Operation[T], error) {
	if name == "" {
		name = defaultName
	}
	if op == nil {
		return nil, &InvalidOperationError{Name: name}
	}
	p := policy.normalize()
	if p.RetryLimit == 0 {
		return op, nil
	}
	return func(ctx context.Context) (T, error) {
		return newSession(name, op, p).run(ctx)
	}, nil
}

// WrapFunc is Wrap for operations that take one argument.
func WrapFunc[A, T any](name string, fn func(ctx context.Context, arg A) (T, error), policy Policy[T]) (func(ctx context.Context, arg A) (T, error), error) {
	if name == "" {
		name = defaultName
	}
	if fn == nil {
		return nil, &InvalidOperationError{Name: name}
	}
	p := policy.normalize()
	if p.RetryLimit == 0 {
		return fn, nil
	}
	return func(ctx context.Context, arg A) (T, error) {
		op := func(ctx context.Context) (T, error) { return fn(ctx, arg) }
		return newSession(name, op, p).run(ctx)
	}, nil
}

// Do wraps op and calls it once.
func Do[T any](ctx context.Context, name string, op Operation[T], policy Policy[T]) (T, error) {
	wrapped, err := Wrap(name, op, policy)
	if err != nil {
		var zero T
		return zero, err
	}
	return wrapped(ctx)
}

type sessionState int

const (
	stateRunning sessionState = iota
	stateSettled
	stateCancelled
)

type outcome[T any] struct {
	result T
	err    error
	// panicked is set when the operation or CheckResolve panicked with value
	panicked bool
	value    any
}

// unpack returns the outcome on the caller's goroutine, re-raising a panic
// recovered in the attempt loop.
func (o outcome[T]) unpack() (T, error) {
	if o.panicked {
		panic(o.value)
	}
	return o.result, o.err
}

// session is the bookkeeping for one call of a wrapped operation. The attempt
// loop and the deadline race for the first state transition out of
// stateRunning; only the winner settles the call.
type session[T any] struct {
	name   string
	op     Operation[T]
	policy Policy[T]

	mu            sync.Mutex
	state         sessionState
	remaining     int
	lastErr       error
	lastResult    T
	hasLastResult bool
}

func newSession[T any](name string, op Operation[T], p Policy[T]) *session[T] {
	return &session[T]{
		name:      name,
		op:        op,
		policy:    p,
		remaining: p.RetryLimit + 1,
	}
}

func (s *session[T]) run(ctx context.Context) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan outcome[T], 1)

	var deadline <-chan time.Time
	if s.policy.Timeout > 0 {
		timer := time.NewTimer(s.policy.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	go s.loop(ctx, done)

	var zero T
	select {
	case o := <-done:
		return o.unpack()
	case <-deadline:
		if !s.cancel() {
			return (<-done).unpack()
		}
		return zero, s.timeoutError()
	case <-ctx.Done():
		if !s.cancel() {
			return (<-done).unpack()
		}
		return zero, ctx.Err()
	}
}

func (s *session[T]) loop(ctx context.Context, done chan<- outcome[T]) {
	// a panic after settlement has no caller left to receive it and is dropped
	defer func() {
		if r := recover(); r != nil {
			s.settle(done, outcome[T]{panicked: true, value: r})
		}
	}()

	attempt := 0
	for {
		if !s.isRunning() {
			return
		}
		attempt++

		res, err := s.op(ctx)
		if err == nil {
			verdict := s.record(res)
			if verdict.Accepted() {
				s.settle(done, outcome[T]{result: res})
				return
			}
			err = verdict.Reason()
		}

		remaining, ok := s.fail(err)
		if !ok {
			return
		}
		if remaining == 0 {
			s.settle(done, s.exhausted())
			return
		}

		delay := s.policy.delay()
		if s.policy.OnRetry != nil {
			s.policy.OnRetry(attempt, err, delay)
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}
}

// record stores a successful result and runs CheckResolve on it.
func (s *session[T]) record(res T) Verdict {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return Reject(nil)
	}
	s.lastResult = res
	s.hasLastResult = true
	remaining := s.remaining - 1
	s.mu.Unlock()

	if s.policy.CheckResolve == nil {
		return Accept()
	}
	return s.policy.CheckResolve(res, RuntimeData{
		RemainingAttempts: remaining,
		IsFinalAttempt:    remaining == 0,
		RetryInterval:     s.policy.RetryInterval,
		RetryLimit:        s.policy.RetryLimit,
	})
}

// fail records an attempt error and consumes the attempt. It reports false when
// the session is no longer running.
func (s *session[T]) fail(err error) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning {
		return 0, false
	}
	s.lastErr = err
	s.remaining--
	return s.remaining, true
}

func (s *session[T]) exhausted() outcome[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.policy.ResolveWithLastResult && s.hasLastResult {
		return outcome[T]{result: s.lastResult}
	}
	return outcome[T]{err: s.lastErr}
}

func (s *session[T]) settle(done chan<- outcome[T], o outcome[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning {
		return
	}
	s.state = stateSettled
	done <- o
}

// cancel moves a running session to stateCancelled. It reports false if the
// attempt loop settled first.
func (s *session[T]) cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning {
		return false
	}
	s.state = stateCancelled
	return true
}

func (s *session[T]) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

func (s *session[T]) timeoutError() *TimeoutError {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &TimeoutError{
		Name:          s.name,
		Timeout:       s.policy.Timeout,
		Attempts:      s.policy.RetryLimit + 1 - s.remaining,
		LastError:     s.lastErr,
		HasLastResult: s.hasLastResult,
	}
	if s.hasLastResult {
		e.LastResult = s.lastResult
	}
	return e
}
