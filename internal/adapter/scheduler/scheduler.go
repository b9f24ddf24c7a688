package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"retryrelay/internal/shared"
)

// JobFunc is a unit of scheduled work.
type JobFunc func(ctx context.Context) error

// JobID identifies a scheduled job.
type JobID = cron.EntryID

// OverlapPolicy decides what happens when a job fires while its previous run is active.
type OverlapPolicy int

const (
	// AllowOverlap runs every firing, concurrently if needed.
	AllowOverlap OverlapPolicy = iota
	// SkipIfRunning drops the firing.
	SkipIfRunning
	// DelayIfRunning queues the firing behind the active run.
	DelayIfRunning
)

func (p OverlapPolicy) String() string {
	switch p {
	case SkipIfRunning:
		return "skip"
	case DelayIfRunning:
		return "delay"
	default:
		return "allow"
	}
}

// JobOptions tune a single job.
type JobOptions struct {
	Name          string
	Timeout       time.Duration
	OverlapPolicy OverlapPolicy
}

// JobHooks are optional observability callbacks.
type JobHooks struct {
	OnJobStart  func(name string)
	OnJobFinish func(name string, took time.Duration, err error)
	OnJobError  func(name string, err error)
}

// Config configures a Scheduler.
type Config struct {
	Logger   *slog.Logger
	JobHooks JobHooks
}

// Scheduler runs jobs on cron schedules with second precision.
type Scheduler struct {
	cron   *cron.Cron
	log    *slog.Logger
	clog   cron.Logger
	hooks  JobHooks
	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
	stopped   chan struct{}
}

// New creates a scheduler bound to parent. Cancelling parent stops it.
func New(parent context.Context, cfg Config) *Scheduler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "scheduler")
	ctx, cancel := context.WithCancel(parent)
	clog := cronLogger{log: log}

	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLogger(clog)),
		log:     log,
		clog:    clog,
		hooks:   cfg.JobHooks,
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
}

// Add registers job under a cron spec such as "*/30 * * * * *" or "@every 5m".
func (s *Scheduler) Add(spec string, job JobFunc, opts JobOptions) (JobID, error) {
	if opts.Name == "" {
		opts.Name = "unnamed"
	}
	var chain cron.Chain
	switch opts.OverlapPolicy {
	case SkipIfRunning:
		chain = cron.NewChain(cron.SkipIfStillRunning(s.clog))
	case DelayIfRunning:
		chain = cron.NewChain(cron.DelayIfStillRunning(s.clog))
	default:
		chain = cron.NewChain()
	}

	id, err := s.cron.AddJob(spec, chain.Then(cron.FuncJob(func() { s.run(job, opts) })))
	if err != nil {
		return 0, shared.Wrapf(err, "schedule %q", opts.Name)
	}
	s.log.Info("job added", "name", opts.Name, "spec", spec, "overlap", opts.OverlapPolicy.String(), "id", id)
	return id, nil
}

// Next reports the next activation time of a job, zero if unknown.
func (s *Scheduler) Next(id JobID) time.Time {
	return s.cron.Entry(id).Next
}

// Start begins dispatching. Calling it more than once is a no-op.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.cron.Start()
		s.log.Info("scheduler started")
		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.shutdown)
		}()
	})
}

// Stop cancels running jobs and waits for them until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	go s.stopOnce.Do(s.shutdown)
	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop deadline exceeded")
		return ctx.Err()
	}
}

func (s *Scheduler) shutdown() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	close(s.stopped)
}

func (s *Scheduler) run(job JobFunc, opts JobOptions) {
	if s.ctx.Err() != nil {
		return
	}
	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(opts.Name)
	}

	ctx := s.ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := safeCall(ctx, job)
	took := time.Since(start)

	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(opts.Name, took, err)
	}
	if err != nil {
		s.log.Error("job failed", "name", opts.Name, "error", err, "duration", took)
		if s.hooks.OnJobError != nil {
			s.hooks.OnJobError(opts.Name, err)
		}
		return
	}
	s.log.Debug("job done", "name", opts.Name, "duration", took)
}

func safeCall(ctx context.Context, job JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job(ctx)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.LogAttrs(context.Background(), slog.LevelError, msg, append([]slog.Attr{slog.Any("error", err)}, attrs(kv)...)...)
}

func attrs(kv []any) []slog.Attr {
	out := make([]slog.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		out = append(out, slog.Any(key, kv[i+1]))
	}
	return out
}
