/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package scheduler fires recurring jobs against the fleet. One
// evaluation loop walks the job list every tick; executions run on
// their own goroutines with an overlap guard per job.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/carverauto/fleetradar/pkg/audit"
	"github.com/carverauto/fleetradar/pkg/docker"
	"github.com/carverauto/fleetradar/pkg/logger"
	"github.com/carverauto/fleetradar/pkg/models"
)

const (
	// DefaultTickInterval is how often due jobs are evaluated.
	DefaultTickInterval = time.Second

	// retryDelay re-arms a skipped job under the retry policy.
	retryDelay = 5 * time.Minute

	manualActor = "manual"
)

// JobStore is the scheduler's view of the job inventory.
type JobStore interface {
	ListJobs() []*models.Job
	GetJob(id string) (*models.Job, error)
	CommitRun(id string, lastRun time.Time, nextRun *time.Time) error
	AdvanceJob(id string, nextRun *time.Time) error
}

// DeviceStore resolves device IDs for action dispatch.
type DeviceStore interface {
	GetDevice(id string) (*models.Device, error)
}

// SnapshotSource reads cached device status for precondition checks.
// Get never blocks.
type SnapshotSource interface {
	Get(deviceID string) *models.StatusSnapshot
}

// JobNotifier receives finished run records.
type JobNotifier interface {
	JobFinished(ctx context.Context, jobName string, record *models.RunRecord)
}

// Options configures a Scheduler. Jobs, Snapshots and Runner are
// required; the rest default sensibly.
type Options struct {
	Jobs      JobStore
	Snapshots SnapshotSource
	Runner    ActionRunner
	History   *History
	Audit     audit.Sink
	Notifier  JobNotifier
	Clock     Clock
	Tick      time.Duration
	Logger    logger.Logger
}

// Scheduler owns the tick loop and the per-job overlap guard.
type Scheduler struct {
	jobs      JobStore
	snapshots SnapshotSource
	runner    ActionRunner
	history   *History
	audit     audit.Sink
	notifier  JobNotifier
	clock     Clock
	tick      time.Duration
	logger    logger.Logger

	mu      sync.Mutex
	running map[string]bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a stopped scheduler.
func New(opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}

	if opts.Tick <= 0 {
		opts.Tick = DefaultTickInterval
	}

	if opts.History == nil {
		opts.History = NewHistory(DefaultHistorySize)
	}

	if opts.Audit == nil {
		opts.Audit = audit.NopSink{}
	}

	return &Scheduler{
		jobs:      opts.Jobs,
		snapshots: opts.Snapshots,
		runner:    opts.Runner,
		history:   opts.History,
		audit:     opts.Audit,
		notifier:  opts.Notifier,
		clock:     opts.Clock,
		tick:      opts.Tick,
		logger:    opts.Logger,
		running:   make(map[string]bool),
		done:      make(chan struct{}),
	}
}

// History exposes the run log for API listing.
func (s *Scheduler) History() *History {
	return s.history
}

// Start arms idle jobs and begins the evaluation loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info().
		Dur("tick", s.tick).
		Msg("Starting scheduler")

	s.Evaluate(ctx)

	ticker := s.clock.Ticker(s.tick)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.Chan():
				s.Evaluate(ctx)
			}
		}
	}()

	return nil
}

// Stop halts the loop and waits for in-flight executions.
func (s *Scheduler) Stop(_ context.Context) error {
	s.closeOnce.Do(func() {
		close(s.done)
	})

	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")

	return nil
}

// Evaluate runs one pass over the job list, arming fresh jobs and
// dispatching every due one. Exported for deterministic tests.
func (s *Scheduler) Evaluate(ctx context.Context) {
	now := s.clock.Now()

	for _, job := range s.jobs.ListJobs() {
		if !job.Enabled {
			continue
		}

		if job.NextRun == nil {
			s.arm(job, now)
			continue
		}

		if now.Before(*job.NextRun) {
			continue
		}

		s.dispatch(ctx, job, now)
	}
}

// arm gives a newly enabled job its first fire time.
func (s *Scheduler) arm(job *models.Job, now time.Time) {
	next, err := NextRun(&job.Schedule, now)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Msg("Cannot compute first fire time")

		return
	}

	if err := s.jobs.AdvanceJob(job.ID, &next); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to arm job")
		return
	}

	s.logger.Debug().
		Str("job_id", job.ID).
		Time("next_run", next).
		Msg("Armed job")
}

// dispatch handles one due job: overlap guard, precondition, then an
// asynchronous execution. The next fire time is recomputed from the
// actual fire time, so a job missed while the process was down
// catches up exactly once.
func (s *Scheduler) dispatch(ctx context.Context, job *models.Job, now time.Time) {
	s.mu.Lock()
	inFlight := s.running[job.ID]

	if !inFlight {
		s.running[job.ID] = true
	}
	s.mu.Unlock()

	if inFlight {
		s.skip(ctx, job, now, models.SkipAdvance, "previous run still in progress")
		return
	}

	if met, reason := s.preconditionMet(job); !met {
		s.clearRunning(job.ID)

		policy := job.SkipPolicy
		if policy == "" {
			policy = models.SkipAdvance
		}

		s.skip(ctx, job, now, policy, reason)

		return
	}

	next, err := NextRun(&job.Schedule, now)
	if err != nil {
		s.clearRunning(job.ID)
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Cannot compute next fire time")

		return
	}

	if err := s.jobs.CommitRun(job.ID, now, &next); err != nil {
		s.clearRunning(job.ID)
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to commit run")

		return
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer s.clearRunning(job.ID)

		s.execute(ctx, job, now, audit.SystemActor)
	}()
}

// skip records a skipped outcome and re-arms the job per policy
// without touching the executor.
func (s *Scheduler) skip(ctx context.Context, job *models.Job, now time.Time, policy models.SkipPolicy, reason string) {
	record := &models.RunRecord{
		JobID:      job.ID,
		StartedAt:  now,
		FinishedAt: now,
		Outcome:    models.OutcomeSkipped,
		Error:      reason,
	}
	s.history.Append(record)

	next := now.Add(retryDelay)

	if policy == models.SkipAdvance {
		computed, err := NextRun(&job.Schedule, now)
		if err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Cannot compute next fire time")
			return
		}

		next = computed
	}

	if err := s.jobs.AdvanceJob(job.ID, &next); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to advance skipped job")
	}

	s.audit.Record(ctx, audit.Entry{
		Action:    "job_run",
		Target:    job.ID,
		Outcome:   string(models.OutcomeSkipped),
		Actor:     audit.SystemActor,
		Timestamp: now,
	})

	s.logger.Info().
		Str("job_id", job.ID).
		Str("reason", reason).
		Time("next_run", next).
		Msg("Skipped job")
}

// execute runs the action and records the outcome. Non-nil errors
// other than skips are failures; action exit codes were already folded
// into the error by the dispatcher.
func (s *Scheduler) execute(ctx context.Context, job *models.Job, started time.Time, actor string) *models.RunRecord {
	err := s.runner.Run(ctx, job)
	finished := s.clock.Now()

	record := &models.RunRecord{
		JobID:      job.ID,
		StartedAt:  started,
		FinishedAt: finished,
		Outcome:    models.OutcomeSuccess,
	}

	switch {
	case err == nil:
	case errors.Is(err, models.ErrSkipped):
		record.Outcome = models.OutcomeSkipped
		record.Error = err.Error()
	default:
		record.Outcome = models.OutcomeFailure
		record.Error = err.Error()
	}

	s.history.Append(record)

	s.audit.Record(ctx, audit.Entry{
		Action:    "job_run",
		Target:    job.ID,
		Outcome:   string(record.Outcome),
		Actor:     actor,
		Timestamp: finished,
	})

	if s.notifier != nil {
		s.notifier.JobFinished(ctx, job.Name, record)
	}

	event := s.logger.Info()
	if record.Outcome == models.OutcomeFailure {
		event = s.logger.Warn()
	}

	event.
		Str("job_id", job.ID).
		Str("outcome", string(record.Outcome)).
		Dur("elapsed", finished.Sub(started)).
		Msg("Job finished")

	return record
}

// RunNow executes a job immediately and waits for it. The overlap
// guard still applies; the schedule's next fire time is left alone.
// Manual runs bypass the precondition.
func (s *Scheduler) RunNow(ctx context.Context, jobID string) (*models.RunRecord, error) {
	job, err := s.jobs.GetJob(jobID)
	if err != nil {
		return nil, err
	}

	if !job.Enabled {
		return nil, ErrJobDisabled
	}

	now := s.clock.Now()

	s.mu.Lock()
	inFlight := s.running[job.ID]

	if !inFlight {
		s.running[job.ID] = true
	}
	s.mu.Unlock()

	if inFlight {
		record := &models.RunRecord{
			JobID:      job.ID,
			StartedAt:  now,
			FinishedAt: now,
			Outcome:    models.OutcomeSkipped,
			Error:      "previous run still in progress",
		}
		s.history.Append(record)

		return record, nil
	}

	defer s.clearRunning(job.ID)

	if err := s.jobs.CommitRun(job.ID, now, job.NextRun); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record manual run")
	}

	return s.execute(ctx, job, now, manualActor), nil
}

// State reports a job's scheduler-visible lifecycle state.
func (s *Scheduler) State(jobID string) (models.JobState, error) {
	job, err := s.jobs.GetJob(jobID)
	if err != nil {
		return "", err
	}

	if !job.Enabled {
		return models.JobDisabled, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running[jobID] {
		return models.JobRunning, nil
	}

	return models.JobIdle, nil
}

func (s *Scheduler) clearRunning(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, jobID)
}

func (s *Scheduler) preconditionMet(job *models.Job) (met bool, reason string) {
	p := job.Precondition
	if p == nil {
		return true, ""
	}

	snap := s.snapshots.Get(p.DeviceID)
	online := snap != nil && snap.Online

	switch p.Kind {
	case models.PrecondDeviceOnline:
		if !online {
			return false, "device " + p.DeviceID + " is offline"
		}
	case models.PrecondContainerRunning:
		if !online {
			return false, "device " + p.DeviceID + " is offline"
		}

		if snap.Containers[p.Container] != docker.StateRunning {
			return false, "container " + p.Container + " is not running"
		}
	case models.PrecondContainerStopped:
		if online && snap.Containers[p.Container] == docker.StateRunning {
			return false, "container " + p.Container + " is running"
		}
	}

	return true, ""
}
