// Package retry wraps an operation with bounded retries, an inter-attempt delay,
// an overall deadline and an optional "best result so far" fallback.
//
// Key Features:
//   - Bounded attempts (RetryLimit extra attempts after the first one)
//   - Fixed retry interval measured from the end of the previous attempt
//   - Whole-session deadline with a diagnostic TimeoutError
//   - Result validation (CheckResolve) that can turn a success into a retry
//   - Best-result fallback (ResolveWithLastResult)
//   - Independent session per call, safe for concurrent use
//
// Basic Usage:
//
//	fetch, err := retry.Wrap("fetchProfile", func(ctx context.Context) (Profile, error) {
//	    return api.Profile(ctx)
//	}, retry.Policy[Profile]{
//	    RetryLimit:    3,
//	    RetryInterval: 500 * time.Millisecond,
//	    Timeout:       5 * time.Second,
//	})
//	if err != nil {
//	    return err // operation was nil
//	}
//	profile, err := fetch(ctx)
//
// Prefer-best-result mode:
//
//	policy := retry.Policy[Quote]{
//	    RetryLimit: 2,
//	    CheckResolve: func(q Quote, rd retry.RuntimeData) retry.Verdict {
//	        if q.Stale && !rd.IsFinalAttempt {
//	            return retry.Reject(errStaleQuote)
//	        }
//	        return retry.Accept()
//	    },
//	    ResolveWithLastResult: true,
//	}
//
// A RetryLimit of zero (or less) returns the operation unchanged.
//
// The deadline does not abort an attempt that ignores its context. Such an attempt
// keeps running after the call has failed with a TimeoutError and its result is
// discarded. Operations that may block for long should honor ctx.
//
// For HTTP-specific usage see internal/platform/httpclient.
package retry
