package shared_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retryrelay/internal/shared"
	"retryrelay/pkg/retry"
)

type netTimeout struct{}

func (netTimeout) Error() string   { return "i/o timeout" }
func (netTimeout) Timeout() bool   { return true }
func (netTimeout) Temporary() bool { return true }

type friendlyError struct{ msg string }

func (e friendlyError) Error() string       { return "raw: " + e.msg }
func (e friendlyError) UserMessage() string { return e.msg }

func TestWrap(t *testing.T) {
	original := errors.New("original")

	assert.Nil(t, shared.Wrap(nil, "context"))
	assert.Same(t, original, shared.Wrap(original, ""))

	err := shared.Wrap(original, "wrapper")
	require.Error(t, err)
	assert.Equal(t, "wrapper: original", err.Error())
	assert.ErrorIs(t, err, original)

	err = shared.Wrapf(original, "schedule %q", "api")
	assert.Equal(t, `schedule "api": original`, err.Error())
	assert.Nil(t, shared.Wrapf(nil, "schedule %q", "api"))
}

func TestKindOf(t *testing.T) {
	timeoutErr := &retry.TimeoutError{Name: "fetch", Timeout: time.Second, LastError: errors.New("boom")}

	tests := []struct {
		name     string
		err      error
		expected shared.Kind
	}{
		{"nil", nil, shared.KindUnknown},
		{"plain", errors.New("plain"), shared.KindUnknown},
		{"canceled", context.Canceled, shared.KindCanceled},
		{"deadline", context.DeadlineExceeded, shared.KindTimeout},
		{"retry timeout", timeoutErr, shared.KindTimeout},
		{"net timeout", netTimeout{}, shared.KindTimeout},
		{"validation", shared.ErrValidation, shared.KindValidation},
		{"not found", fmt.Errorf("user: %w", shared.ErrNotFound), shared.KindNotFound},
		{"dependency", shared.MarkKind(errors.New("502"), shared.KindDependencyFailure), shared.KindDependencyFailure},
		{"internal", shared.ErrInternal, shared.KindInternal},
		{"joined picks priority", errors.Join(shared.ErrInternal, shared.ErrTimeout), shared.KindTimeout},
		{"canceled beats timeout", errors.Join(context.DeadlineExceeded, context.Canceled), shared.KindCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, shared.KindOf(tt.err))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "Timeout", shared.KindTimeout.String())
	assert.Equal(t, "DependencyFailure", shared.KindDependencyFailure.String())
	assert.Equal(t, "Unknown", shared.Kind(100).String())
}

func TestMarkKind(t *testing.T) {
	base := errors.New("status 500")

	marked := shared.MarkKind(base, shared.KindDependencyFailure)
	assert.ErrorIs(t, marked, base)
	assert.ErrorIs(t, marked, shared.ErrDependencyFailure)
	assert.Equal(t, "dependency failure: status 500", marked.Error())

	// idempotent
	assert.Same(t, marked, shared.MarkKind(marked, shared.KindDependencyFailure))

	assert.Same(t, base, shared.MarkKind(base, shared.KindUnknown))
	assert.Same(t, base, shared.MarkKind(base, shared.KindCanceled))
	assert.Equal(t, shared.ErrNotFound, shared.MarkKind(nil, shared.KindNotFound))
	assert.Nil(t, shared.MarkKind(nil, shared.KindUnknown))
}

func TestPredicates(t *testing.T) {
	assert.True(t, shared.IsCanceled(fmt.Errorf("op: %w", context.Canceled)))
	assert.False(t, shared.IsCanceled(nil))
	assert.True(t, shared.IsTimeout(fmt.Errorf("op: %w", shared.ErrTimeout)))
	assert.False(t, shared.IsTimeout(nil))
	assert.True(t, shared.IsTimeout(netTimeout{}))
	assert.False(t, shared.IsTimeout(errors.New("x")))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{shared.ErrValidation, http.StatusBadRequest},
		{shared.ErrNotFound, http.StatusNotFound},
		{&retry.TimeoutError{Name: "x"}, http.StatusGatewayTimeout},
		{shared.ErrDependencyFailure, http.StatusBadGateway},
		{shared.ErrInternal, http.StatusInternalServerError},
		{context.Canceled, 499},
		{errors.New("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			assert.Equal(t, tt.expected, shared.StatusOf(tt.err))
		})
	}
}

func TestMessageOf(t *testing.T) {
	const def = "something went wrong, please try again later"

	assert.Equal(t, def, shared.MessageOf(nil, def))
	assert.Equal(t, "plain", shared.MessageOf(errors.New("plain"), def))
	assert.Equal(t, "quota exceeded", shared.MessageOf(friendlyError{msg: "quota exceeded"}, def))
	assert.Equal(t, "quota exceeded", shared.MessageOf(fmt.Errorf("call: %w", friendlyError{msg: "quota exceeded"}), def))
	assert.Equal(t, "raw: ", shared.MessageOf(friendlyError{}, def))
	assert.Equal(t, def, shared.MessageOf(errors.New(""), def))
}
