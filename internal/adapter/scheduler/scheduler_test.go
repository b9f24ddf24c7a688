package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForAtLeast(t *testing.T, counter *int64, expected int64, timeout time.Duration) {
	t.Helper()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(counter) >= expected
	}, timeout, 10*time.Millisecond, "counter did not reach expected value")
}

func ensureNoIncrement(t *testing.T, counter *int64, baseline int64, duration time.Duration) {
	t.Helper()

	assert.Never(t, func() bool {
		return atomic.LoadInt64(counter) > baseline
	}, duration, 10*time.Millisecond, "counter grew")
}

func stop(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestScheduler_New(t *testing.T) {
	s := New(context.Background(), Config{})

	assert.NotNil(t, s.cron)
	assert.NotNil(t, s.log)
	assert.NoError(t, s.ctx.Err())
}

func TestScheduler_Add(t *testing.T) {
	s := New(context.Background(), Config{})
	defer stop(t, s)

	var counter int64
	id, err := s.Add("* * * * * *", func(ctx context.Context) error {
		atomic.AddInt64(&counter, 1)
		return nil
	}, JobOptions{Name: "tick"})
	require.NoError(t, err)

	s.Start()
	assert.False(t, s.Next(id).IsZero())
	waitForAtLeast(t, &counter, 1, 3*time.Second)
}

func TestScheduler_AddInvalidSpec(t *testing.T) {
	s := New(context.Background(), Config{})
	defer stop(t, s)

	_, err := s.Add("invalid schedule", func(ctx context.Context) error { return nil }, JobOptions{Name: "bad"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), `schedule "bad": `), err.Error())
	assert.Zero(t, s.Next(0))
}

func TestScheduler_KeepsRunningAfterErrorsAndPanics(t *testing.T) {
	var finished []error
	var mu sync.Mutex
	s := New(context.Background(), Config{JobHooks: JobHooks{
		OnJobFinish: func(_ string, _ time.Duration, err error) {
			mu.Lock()
			finished = append(finished, err)
			mu.Unlock()
		},
	}})
	defer stop(t, s)

	var runs int64
	_, err := s.Add("* * * * * *", func(ctx context.Context) error {
		switch atomic.AddInt64(&runs, 1) {
		case 1:
			panic("boom")
		case 2:
			return errors.New("failed")
		}
		return nil
	}, JobOptions{})
	require.NoError(t, err)
	s.Start()

	waitForAtLeast(t, &runs, 3, 5*time.Second)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(finished) >= 3
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.EqualError(t, finished[0], "panic: boom")
	assert.EqualError(t, finished[1], "failed")
	assert.NoError(t, finished[2])
}

func TestScheduler_JobTimeout(t *testing.T) {
	s := New(context.Background(), Config{})
	defer stop(t, s)

	errCh := make(chan error, 1)
	_, err := s.Add("* * * * * *", func(ctx context.Context) error {
		<-ctx.Done()
		select {
		case errCh <- ctx.Err():
		default:
		}
		return ctx.Err()
	}, JobOptions{Timeout: 50 * time.Millisecond, OverlapPolicy: SkipIfRunning})
	require.NoError(t, err)
	s.Start()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(3 * time.Second):
		t.Fatal("job was not timed out")
	}
}

func TestScheduler_SkipIfRunning(t *testing.T) {
	s := New(context.Background(), Config{})

	var starts int64
	release := make(chan struct{})
	_, err := s.Add("* * * * * *", func(ctx context.Context) error {
		atomic.AddInt64(&starts, 1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, JobOptions{Name: "slow", OverlapPolicy: SkipIfRunning})
	require.NoError(t, err)
	s.Start()

	waitForAtLeast(t, &starts, 1, 3*time.Second)
	ensureNoIncrement(t, &starts, 1, 2500*time.Millisecond)
	close(release)
	stop(t, s)
}

func TestScheduler_Hooks(t *testing.T) {
	var started, finished, failed int64
	s := New(context.Background(), Config{JobHooks: JobHooks{
		OnJobStart:  func(string) { atomic.AddInt64(&started, 1) },
		OnJobFinish: func(string, time.Duration, error) { atomic.AddInt64(&finished, 1) },
		OnJobError:  func(string, error) { atomic.AddInt64(&failed, 1) },
	}})
	defer stop(t, s)

	_, err := s.Add("* * * * * *", func(ctx context.Context) error {
		return errors.New("nope")
	}, JobOptions{Name: "hooked"})
	require.NoError(t, err)
	s.Start()

	waitForAtLeast(t, &failed, 1, 3*time.Second)
	assert.GreaterOrEqual(t, atomic.LoadInt64(&started), int64(1))
	assert.GreaterOrEqual(t, atomic.LoadInt64(&finished), int64(1))
}

func TestScheduler_Stop(t *testing.T) {
	s := New(context.Background(), Config{})

	var counter int64
	_, err := s.Add("* * * * * *", func(ctx context.Context) error {
		atomic.AddInt64(&counter, 1)
		return nil
	}, JobOptions{})
	require.NoError(t, err)
	s.Start()
	waitForAtLeast(t, &counter, 1, 3*time.Second)

	stop(t, s)
	assert.Error(t, s.ctx.Err())
	ensureNoIncrement(t, &counter, atomic.LoadInt64(&counter), 1500*time.Millisecond)

	// second stop is a no-op
	stop(t, s)
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	s := New(context.Background(), Config{})
	stop(t, s)
	assert.Error(t, s.ctx.Err())
}

func TestScheduler_StopDeadline(t *testing.T) {
	s := New(context.Background(), Config{})

	var started int64
	release := make(chan struct{})
	defer close(release)
	_, err := s.Add("* * * * * *", func(ctx context.Context) error {
		atomic.AddInt64(&started, 1)
		<-release
		return nil
	}, JobOptions{OverlapPolicy: SkipIfRunning})
	require.NoError(t, err)
	s.Start()
	waitForAtLeast(t, &started, 1, 3*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
}

func TestScheduler_ParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	s := New(parent, Config{})
	s.Start()

	cancel()
	require.Eventually(t, func() bool {
		return s.ctx.Err() != nil
	}, time.Second, 10*time.Millisecond)
	select {
	case <-s.stopped:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after parent cancellation")
	}
}

func TestOverlapPolicy_String(t *testing.T) {
	assert.Equal(t, "allow", AllowOverlap.String())
	assert.Equal(t, "skip", SkipIfRunning.String())
	assert.Equal(t, "delay", DelayIfRunning.String())
}

func TestAttrs(t *testing.T) {
	got := attrs([]any{"a", 1, 2, "b", "dangling"})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Key)
	assert.Equal(t, "2", got[1].Key)
}
