// Package scheduler runs named periodic jobs on cron schedules with
// timeouts, panic recovery, and overlap control.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is a unit of periodic work.
type JobFunc func(ctx context.Context) error

// JobID identifies a registered job.
type JobID = cron.EntryID

// JobOptions tunes a single job.
type JobOptions struct {
	// Name is used in logs.
	Name string
	// Timeout bounds a single run. Zero means no limit.
	Timeout time.Duration
	// SkipIfRunning drops a tick when the previous run is still going.
	SkipIfRunning bool
}

type jobWrapper struct {
	job     JobFunc
	options JobOptions
	running sync.Mutex
}

// cronLogger adapts the cron logging interface to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, msg, kvAttrs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	attrs := append([]slog.Attr{slog.Any("error", err)}, kvAttrs(keysAndValues)...)
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

func kvAttrs(keysAndValues []interface{}) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		attrs = append(attrs, slog.Any(key, keysAndValues[i+1]))
	}
	return attrs
}

// Scheduler manages periodic jobs.
type Scheduler struct {
	cron      *cron.Cron
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a scheduler bound to parentCtx. Canceling parentCtx stops it.
func New(parentCtx context.Context, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger{logger: logger.With("component", "cron")}),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob registers a job on a cron schedule. Schedules use the standard
// five-field syntax or descriptors like "@hourly" and "@every 30s".
func (s *Scheduler) AddJob(schedule string, job JobFunc, opts JobOptions) (JobID, error) {
	wrapper := &jobWrapper{job: job, options: opts}

	id, err := s.cron.AddFunc(schedule, func() { s.run(wrapper) })
	if err != nil {
		s.logger.Error("failed to add job", "schedule", schedule, "name", opts.Name, "error", err)
		return 0, err
	}

	s.logger.Info("job added", "schedule", schedule, "name", opts.Name, "id", id)
	return id, nil
}

// RemoveJob unregisters a job.
func (s *Scheduler) RemoveJob(id JobID) {
	s.cron.Remove(id)
	s.logger.Info("job removed", "id", id)
}

// Start begins running jobs. Safe to call once.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("starting scheduler")
		s.cron.Start()

		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	if !s.IsRunning() {
		return
	}
	s.logger.Info("stopping scheduler")
	s.cancel()
	s.stopOnce.Do(s.stop)
}

// StopContext stops the scheduler, returning ctx.Err() when the deadline
// passes before in-flight jobs drain. Shutdown still completes either way.
func (s *Scheduler) StopContext(ctx context.Context) error {
	if !s.IsRunning() {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop deadline exceeded, shutdown continues")
		<-done
		return ctx.Err()
	}
}

func (s *Scheduler) stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the scheduler has not been stopped.
func (s *Scheduler) IsRunning() bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}

func (s *Scheduler) run(wrapper *jobWrapper) {
	jobName := wrapper.options.Name
	if jobName == "" {
		jobName = "unnamed"
	}

	if wrapper.options.SkipIfRunning {
		if !wrapper.running.TryLock() {
			s.logger.Debug("skipping job, previous run still active", "name", jobName)
			return
		}
		defer wrapper.running.Unlock()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "name", jobName, "panic", r)
		}
	}()

	ctx := s.ctx
	if wrapper.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wrapper.options.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := wrapper.job(ctx)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("job failed", "name", jobName, "error", err, "duration", duration)
		return
	}
	s.logger.Debug("job completed", "name", jobName, "duration", duration)
}
