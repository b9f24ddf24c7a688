// Package scheduler runs periodic background jobs on cron schedules and
// provides the upstream probe job built on them.
//
// Jobs are scheduled with github.com/robfig/cron/v3 using second precision.
// Each job can have a name, a timeout and an overlap policy:
//   - AllowOverlap: firings run concurrently (default)
//   - SkipIfRunning: a firing is dropped while the previous run is active
//   - DelayIfRunning: a firing waits for the previous run to finish
//
// Errors and panics are logged and reported through JobHooks; they never
// stop the scheduler.
//
// Usage:
//
//	book := scheduler.NewProbeBook()
//	prober := scheduler.NewProber(client, book, scheduler.ProbeConfig{
//		Targets: []string{"https://api.example.com/health"},
//		Retry:   httpclient.RetryOptions{RetryTimes: 2, RetryInterval: time.Second},
//	}, log)
//
//	s := scheduler.New(ctx, scheduler.Config{Logger: log})
//	if _, err := s.Add("@every 1m", prober.Run, scheduler.JobOptions{
//		Name:          "probe",
//		Timeout:       30 * time.Second,
//		OverlapPolicy: scheduler.SkipIfRunning,
//	}); err != nil {
//		return err
//	}
//	s.Start()
//	defer s.Stop(shutdownCtx)
//
// Cron specs accept six fields ("0 */5 * * * *") and descriptors such as
// "@hourly" or "@every 30s". Intervals under one second are rounded up.
package scheduler
