// Package shared contains the error taxonomy used across the relay.
//
// # Error Classification
//
// Every error that crosses a package boundary can be classified with KindOf:
//
//	switch shared.KindOf(err) {
//	case shared.KindTimeout:
//	    // retry budget or context deadline elapsed
//	case shared.KindDependencyFailure:
//	    // upstream answered with an unexpected status or envelope code
//	case shared.KindValidation:
//	    // bad input
//	}
//
// Timeouts produced by pkg/retry (retry.ErrTimeout) are classified as
// KindTimeout without explicit marking.
//
// # Kind Priority Table
//
//	Priority | Kind                  | Description
//	---------|-----------------------|--------------------
//	1        | KindCanceled          | Context cancellation (highest)
//	2        | KindTimeout           | Timeout/deadline errors
//	3        | KindValidation        | Input validation failures
//	4        | KindNotFound          | Upstream resource not found
//	5        | KindDependencyFailure | Upstream failures
//	6        | KindInternal          | Internal errors (lowest)
//
// # Marking and Wrapping
//
//	if resp.StatusCode == http.StatusNotFound {
//	    return shared.MarkKind(statusErr, shared.KindNotFound)
//	}
//	return shared.Wrapf(err, "schedule %q", name)
//
// # Messages
//
// MessageOf returns a message that is safe to show to API clients. Errors
// implementing UserMessage() string take precedence over Error().
//
// Map Kind to transport codes with StatusOf in adapter layers.
package shared
