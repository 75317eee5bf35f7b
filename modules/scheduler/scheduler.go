// Package scheduler runs recurring background jobs next to the HTTP server.
//
// A Scheduler implements webmod.Server, so it starts and stops with the
// application. Each run counts as a unit of work on the shared lifecycle,
// which makes graceful shutdown wait for running jobs the same way it waits
// for requests.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GoCodeAlone/webmod"
	"github.com/robfig/cron/v3"
)

// JobFunc defines a function that can be executed as a job
type JobFunc func(ctx context.Context) error

// Job is a recurring job.
type Job struct {
	Name string
	// Schedule is a standard five-field cron expression or a descriptor
	// such as "@every 1m".
	Schedule string
	Run      JobFunc
}

// JobStatus describes the last run of a job.
type JobStatus struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Runs     int       `json:"runs"`
	LastRun  time.Time `json:"lastRun,omitempty"`
	NextRun  time.Time `json:"nextRun,omitempty"`
	LastErr  string    `json:"lastError,omitempty"`
}

type entry struct {
	job    Job
	id     cron.EntryID
	status JobStatus
}

// Scheduler handles scheduling and executing jobs
type Scheduler struct {
	logger    webmod.Logger
	lifecycle *webmod.Lifecycle
	cron      *cron.Cron

	mu      sync.Mutex
	entries map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// SchedulerOption defines a function that can configure a scheduler
type SchedulerOption func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger webmod.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// WithLifecycle counts job runs as running work on l.
func WithLifecycle(l *webmod.Lifecycle) SchedulerOption {
	return func(s *Scheduler) { s.lifecycle = l }
}

// WithLocation evaluates schedules in loc instead of the local time zone.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) { s.cron = cron.New(cron.WithLocation(loc)) }
}

// New creates a scheduler with no jobs.
func New(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		logger:  webmod.NopLogger{},
		cron:    cron.New(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// AddJob schedules job. Jobs may be added before or after Start.
func (s *Scheduler) AddJob(job Job) error {
	if job.Name == "" {
		return ErrJobNameRequired
	}
	schedule, err := cron.ParseStandard(job.Schedule)
	if err != nil {
		return fmt.Errorf("%w '%s': %w", ErrInvalidSchedule, job.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[job.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}
	e := &entry{job: job, status: JobStatus{Name: job.Name, Schedule: job.Schedule}}
	e.id = s.cron.Schedule(schedule, cron.FuncJob(func() { s.execute(e) }))
	s.entries[job.Name] = e
	s.logger.Debug("Scheduled job", "name", job.Name, "schedule", job.Schedule)
	return nil
}

// RunNow executes the named job immediately on the caller's goroutine.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", webmod.ErrProviderNotFound, name)
	}
	return s.execute(e)
}

func (s *Scheduler) execute(e *entry) (err error) {
	if s.lifecycle != nil && s.lifecycle.Unavailable() {
		return nil
	}
	defer s.lifecycle.Track()()

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", e.job.Name, r)
		}
		s.record(e, start, err)
	}()
	return e.job.Run(ctx)
}

func (s *Scheduler) record(e *entry, start time.Time, err error) {
	s.mu.Lock()
	e.status.Runs++
	e.status.LastRun = start
	e.status.LastErr = ""
	if err != nil {
		e.status.LastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Job failed", "name", e.job.Name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("Job completed", "name", e.job.Name, "duration", time.Since(start))
}

// Jobs reports the status of every job.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.entries))
	for _, e := range s.entries {
		status := e.status
		status.NextRun = s.cron.Entry(e.id).Next
		out = append(out, status)
	}
	return out
}

// Start implements webmod.Server.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	s.logger.Info("Starting scheduler", "jobs", len(s.entries))
	s.cron.Start()
	s.started = true
	return nil
}

// Stop implements webmod.Server. It stops scheduling new runs, cancels the
// context of running jobs and waits for them until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler")
	cronCtx := s.cron.Stop()
	cancel()

	select {
	case <-cronCtx.Done():
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler shutdown timed out")
		return ErrShutdownTimeout
	}
}
