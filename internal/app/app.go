package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"retryrelay/internal/adapter/httpapi"
	"retryrelay/internal/adapter/scheduler"
	"retryrelay/internal/config"
	"retryrelay/internal/platform/httpclient"
	"retryrelay/internal/platform/logger"
	"retryrelay/internal/shared"
)

const shutdownTimeout = 10 * time.Second

// App wires application components.
type App struct {
	cfg    config.Config
	log    *slog.Logger
	client *httpclient.Client
	book   *scheduler.ProbeBook
}

// New loads configuration and builds the shared components.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, shared.Wrap(err, "load config")
	}
	log := logger.New(logger.Options{
		App:        "retryrelay",
		Env:        cfg.Env,
		Level:      cfg.Log.ConsoleLevel,
		File:       logger.FileOptions{Path: cfg.Log.File, Level: cfg.Log.FileLevel},
		RedactKeys: cfg.Log.RedactKeys,
	})
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	return &App{
		cfg:    cfg,
		log:    log,
		client: httpclient.New(httpclient.WithLogger(log), httpclient.WithURLRedactor(httpclient.StripQuery)),
		book:   scheduler.NewProbeBook(),
	}, nil
}

// Close flushes and releases the log file.
func (a *App) Close() error {
	return logger.Close(a.log)
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Client returns the retrying HTTP client.
func (a *App) Client() *httpclient.Client {
	return a.client
}

// RetryOptions returns the configured default retry policy.
func (a *App) RetryOptions() httpclient.RetryOptions {
	return httpclient.RetryOptions{
		RetryTimes:    a.cfg.Retry.Times,
		RetryInterval: a.cfg.Retry.Interval,
		Timeout:       a.cfg.Retry.Timeout,
	}
}

func (a *App) prober() *scheduler.Prober {
	return scheduler.NewProber(a.client, a.book, scheduler.ProbeConfig{
		Targets: a.cfg.Probe.URLs,
		Code:    a.cfg.Probe.Code,
		Retry:   a.RetryOptions(),
	}, a.log)
}

// ProbeOnce probes all configured targets a single time.
func (a *App) ProbeOnce(ctx context.Context) ([]scheduler.ProbeResult, error) {
	err := a.prober().Run(ctx)
	return a.book.Snapshot(), err
}

// Run serves the relay API and runs scheduled probes until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting")

	sched := scheduler.New(ctx, scheduler.Config{Logger: a.log})
	var nextProbe func() time.Time
	if len(a.cfg.Probe.URLs) > 0 {
		jobTimeout := a.cfg.Retry.Timeout
		if jobTimeout <= 0 {
			jobTimeout = httpclient.DefaultRetryTimeout
		}
		jobTimeout += a.cfg.Request.Timeout
		id, err := sched.Add(a.cfg.Probe.Schedule, a.prober().Run, scheduler.JobOptions{
			Name:          "probe",
			Timeout:       jobTimeout,
			OverlapPolicy: scheduler.SkipIfRunning,
		})
		if err != nil {
			return err
		}
		nextProbe = func() time.Time { return sched.Next(id) }
	}
	sched.Start()

	srv := &http.Server{
		Addr: a.cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Relayer:        a.client,
			Probes:         a.book,
			NextProbe:      nextProbe,
			Log:            a.log,
			Retry:          a.RetryOptions(),
			AttemptTimeout: a.cfg.Request.Timeout,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case runErr = <-errCh:
		a.log.Error("server", slog.Any("err", runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, srv.Shutdown(shutdownCtx), sched.Stop(shutdownCtx))
}
