// Package scheduler runs background jobs on cron or interval triggers. Every
// job id owns one non-blocking guard: a trigger that fires while the previous
// run of the same job is still in progress is dropped and logged, never queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// JobID names a job; it is also the name of the job's guard
type JobID string

// Action is the body of a job
type Action func(ctx context.Context) error

var (
	// ErrJobBusy is returned when a run is dropped because the job is in progress
	ErrJobBusy = errors.New("job already running")
	// ErrUnknownJob is returned for ids that were never scheduled
	ErrUnknownJob = errors.New("unknown job")
	// ErrStopped is returned for manual runs requested after Stop
	ErrStopped = errors.New("scheduler stopped")
)

// Outcome labels of a trigger
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

// Observer receives the outcome of every trigger
type Observer interface {
	JobFinished(job string, outcome string, duration time.Duration)
}

// JobStatus is a snapshot of one job's state
type JobStatus struct {
	ID          JobID     `json:"id"`
	Trigger     string    `json:"trigger"`
	Running     bool      `json:"running"`
	LastRunID   string    `json:"last_run_id,omitempty"`
	LastStart   time.Time `json:"last_start,omitempty"`
	LastFinish  time.Time `json:"last_finish,omitempty"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Runs        int       `json:"runs"`
	Dropped     int       `json:"dropped"`
	Next        time.Time `json:"next,omitempty"`
}

type job struct {
	id      JobID
	trigger Trigger
	action  Action
	entry   cron.EntryID
	status  JobStatus
}

// Scheduler manages background jobs
type Scheduler struct {
	cron     *cron.Cron
	locks    *Locks
	log      zerolog.Logger
	observer Observer
	baseCtx  context.Context

	mu       sync.Mutex
	jobs     map[JobID]*job
	started  bool
	stopped  bool
	inflight sync.WaitGroup
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithObserver reports trigger outcomes to o
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// WithLocation evaluates cron expressions in loc
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.cron = cron.New(cron.WithSeconds(), cron.WithLocation(loc), cron.WithLogger(cronLogger{s.log}))
	}
}

// New creates a new scheduler. Job guards are taken from locks so that
// coordinators sharing the same Locks see the same guards.
func New(log zerolog.Logger, locks *Locks, opts ...Option) *Scheduler {
	if locks == nil {
		locks = NewLocks()
	}
	s := &Scheduler{
		locks:   locks,
		log:     log.With().Str("component", "scheduler").Logger(),
		baseCtx: context.Background(),
		jobs:    make(map[JobID]*job),
	}
	s.cron = cron.New(cron.WithSeconds(), cron.WithLogger(cronLogger{s.log}))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule registers a job. A manual (zero) trigger registers the job for
// Run/RunAsync only.
func (s *Scheduler) Schedule(id JobID, trigger Trigger, action Action) error {
	if id == "" || action == nil {
		return fmt.Errorf("job id and action are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.jobs[id]; dup {
		return fmt.Errorf("job %s already scheduled", id)
	}
	j := &job{id: id, trigger: trigger, action: action, status: JobStatus{ID: id, Trigger: trigger.String()}}

	if !trigger.Manual() {
		entry, err := s.cron.AddFunc(trigger.spec(), func() {
			s.inflight.Add(1)
			defer s.inflight.Done()
			_ = s.execute(s.baseCtx, j, "schedule")
		})
		if err != nil {
			return fmt.Errorf("invalid trigger %q for job %s: %w", trigger.spec(), id, err)
		}
		j.entry = entry
	}
	s.jobs[id] = j

	s.log.Info().
		Str("schedule", trigger.String()).
		Str("job", string(id)).
		Msg("Job registered")
	return nil
}

// Start starts firing triggers. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		s.log.Warn().Msg("Scheduler already started, ignoring")
		return
	}
	s.started = true
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop stops firing triggers and waits for in-flight runs to finish.
// Runs are not cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.inflight.Wait()
	s.log.Info().Msg("Scheduler stopped")
}

// Run executes a job now, on the caller's goroutine, sharing the job's guard
// with its trigger. ErrJobBusy means the run was dropped.
func (s *Scheduler) Run(ctx context.Context, id JobID) error {
	j, err := s.track(id)
	if err != nil {
		return err
	}
	defer s.inflight.Done()
	return s.execute(ctx, j, "manual")
}

// RunAsync starts a job in the background. The guard is taken before
// returning, so ErrJobBusy is reported synchronously.
func (s *Scheduler) RunAsync(id JobID) (string, error) {
	j, err := s.track(id)
	if err != nil {
		return "", err
	}
	release, ok := s.locks.TryAcquire(string(id))
	if !ok {
		s.inflight.Done()
		s.recordDropped(j, "manual")
		return "", ErrJobBusy
	}

	runID := uuid.NewString()
	go func() {
		defer s.inflight.Done()
		defer release()
		_ = s.invoke(s.baseCtx, j, runID, "manual")
	}()
	return runID, nil
}

// Jobs returns a status snapshot for every job, sorted by id
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := j.status
		if j.entry != 0 {
			st.Next = s.cron.Entry(j.entry).Next
		}
		out = append(out, st)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// Locks exposes the guard manager shared with coordinators
func (s *Scheduler) Locks() *Locks {
	return s.locks
}

// track resolves id and counts the caller as in flight; callers must call
// s.inflight.Done when err is nil.
func (s *Scheduler) track(id JobID) (*job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	s.inflight.Add(1)
	return j, nil
}

func (s *Scheduler) execute(ctx context.Context, j *job, source string) error {
	release, ok := s.locks.TryAcquire(string(j.id))
	if !ok {
		s.recordDropped(j, source)
		return ErrJobBusy
	}
	defer release()
	return s.invoke(ctx, j, uuid.NewString(), source)
}

func (s *Scheduler) recordDropped(j *job, source string) {
	s.mu.Lock()
	j.status.Dropped++
	s.mu.Unlock()

	s.log.Warn().
		Str("job", string(j.id)).
		Str("source", source).
		Msg("Job already running, trigger dropped")
	if s.observer != nil {
		s.observer.JobFinished(string(j.id), OutcomeDropped, 0)
	}
}

// invoke runs the action with the guard already held
func (s *Scheduler) invoke(ctx context.Context, j *job, runID, source string) (err error) {
	log := s.log.With().Str("job", string(j.id)).Str("run_id", runID).Str("source", source).Logger()
	start := time.Now()

	s.mu.Lock()
	j.status.Running = true
	j.status.LastRunID = runID
	j.status.LastStart = start
	s.mu.Unlock()

	log.Info().Msg("Running job")

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", j.id, p)
		}
		elapsed := time.Since(start)
		outcome := OutcomeCompleted
		if err != nil {
			outcome = OutcomeFailed
			log.Error().Err(err).Dur("duration", elapsed).Msg("Job failed")
		} else {
			log.Info().Dur("duration", elapsed).Msg("Job completed")
		}

		s.mu.Lock()
		j.status.Running = false
		j.status.LastFinish = time.Now()
		j.status.LastOutcome = outcome
		j.status.LastError = ""
		if err != nil {
			j.status.LastError = err.Error()
		}
		j.status.Runs++
		s.mu.Unlock()

		if s.observer != nil {
			s.observer.JobFinished(string(j.id), outcome, elapsed)
		}
	}()

	return j.action(log.WithContext(ctx))
}
