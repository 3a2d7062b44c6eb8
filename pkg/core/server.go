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

// Package core wires the fleet controller together: registry, status
// cache, poller, scheduler, audit and notifications behind one server
// object.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/fleetradar/pkg/audit"
	"github.com/carverauto/fleetradar/pkg/docker"
	"github.com/carverauto/fleetradar/pkg/executor"
	"github.com/carverauto/fleetradar/pkg/logger"
	"github.com/carverauto/fleetradar/pkg/models"
	"github.com/carverauto/fleetradar/pkg/notify"
	"github.com/carverauto/fleetradar/pkg/registry"
	"github.com/carverauto/fleetradar/pkg/scheduler"
	"github.com/carverauto/fleetradar/pkg/status"
)

// apiActor marks audit entries triggered through the server API
// rather than the scheduler.
const apiActor = "api"

// Server owns every controller component and exposes the fleet API.
type Server struct {
	config    *Config
	logger    logger.Logger
	registry  *registry.Registry
	executor  executor.Executor
	docker    *docker.Client
	runner    scheduler.ActionRunner
	cache     *status.Cache
	poller    *status.Poller
	scheduler *scheduler.Scheduler
	audit     *audit.LogSink

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewServer builds the component graph from config. Nothing runs
// until Start.
func NewServer(cfg *Config, log logger.Logger) (*Server, error) {
	reg, err := registry.Load(cfg.RegistryPath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	var sink *audit.LogSink

	if cfg.AuditLog != "" {
		sink, err = audit.NewFileSink(cfg.AuditLog)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	} else {
		sink = audit.NewSink(log.WithComponent("audit"))
	}

	exec := executor.NewCommandRunner(log)
	dockerClient := docker.NewClient(exec, log)
	collector := status.NewCollector(exec, dockerClient, log)
	notifier := notify.NewManager(reg.Notifications(), log)
	cache := status.NewCache(reg, collector, notifier, nil, log)
	poller := status.NewPoller(cache, reg, cfg.PollInterval.Duration(), nil, log)
	runner := scheduler.NewDispatcher(reg, cache, exec, dockerClient, log)

	sched := scheduler.New(scheduler.Options{
		Jobs:      reg,
		Snapshots: cache,
		Runner:    runner,
		History:   scheduler.NewHistory(cfg.HistorySize),
		Audit:     sink,
		Notifier:  notifier,
		Tick:      cfg.TickInterval.Duration(),
		Logger:    log,
	})

	return &Server{
		config:    cfg,
		logger:    log,
		registry:  reg,
		executor:  exec,
		docker:    dockerClient,
		runner:    runner,
		cache:     cache,
		poller:    poller,
		scheduler: sched,
		audit:     sink,
		done:      make(chan struct{}),
	}, nil
}

// Start implements lifecycle.Service. It starts the poll and schedule
// loops and blocks until Stop or ctx cancellation.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info().
		Str("registry", s.config.RegistryPath).
		Int("devices", len(s.registry.ListDevices())).
		Int("jobs", len(s.registry.ListJobs())).
		Msg("Starting fleet controller")

	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	pollerErr := make(chan error, 1)

	go func() {
		pollerErr <- s.poller.Start(ctx)
	}()

	select {
	case <-ctx.Done():
	case <-s.done:
	case err := <-pollerErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("poller failed: %w", err)
		}
	}

	return nil
}

// Stop implements lifecycle.Service.
func (s *Server) Stop(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.done)
	})

	if err := s.scheduler.Stop(ctx); err != nil {
		return err
	}

	if err := s.poller.Stop(ctx); err != nil {
		return err
	}

	s.wg.Wait()

	return s.audit.Close()
}

// ListDevices returns the fleet inventory.
func (s *Server) ListDevices() []*models.Device {
	return s.registry.ListDevices()
}

// GetDevice returns one device by ID.
func (s *Server) GetDevice(id string) (*models.Device, error) {
	return s.registry.GetDevice(id)
}

// AddDevice registers a device and seeds its cache entry so readers
// see a placeholder before the first poll lands.
func (s *Server) AddDevice(ctx context.Context, device *models.Device) (*models.Device, error) {
	added, err := s.registry.AddDevice(device)
	if err != nil {
		return nil, err
	}

	s.cache.InitDevice(added.ID)
	s.record(ctx, "device_add", added.ID, "success")

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		refreshCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		go func() {
			select {
			case <-s.done:
				cancel()
			case <-refreshCtx.Done():
			}
		}()

		if _, err := s.cache.Refresh(refreshCtx, added.ID); err != nil {
			s.logger.Debug().Err(err).Str("device_id", added.ID).Msg("Initial refresh failed")
		}
	}()

	return added, nil
}

// UpdateDevice replaces a device's mutable fields.
func (s *Server) UpdateDevice(ctx context.Context, device *models.Device) error {
	if err := s.registry.UpdateDevice(device); err != nil {
		return err
	}

	s.record(ctx, "device_update", device.ID, "success")

	return nil
}

// RemoveDevice drops a device and its cached status.
func (s *Server) RemoveDevice(ctx context.Context, id string) error {
	if err := s.registry.RemoveDevice(id); err != nil {
		return err
	}

	s.cache.RemoveDevice(id)
	s.record(ctx, "device_remove", id, "success")

	return nil
}

// GetSnapshot returns the cached status for a device without blocking.
func (s *Server) GetSnapshot(deviceID string) *models.StatusSnapshot {
	return s.cache.Get(deviceID)
}

// GetAllSnapshots returns the cached status of the whole fleet.
func (s *Server) GetAllSnapshots() map[string]*models.StatusSnapshot {
	return s.cache.GetAll()
}

// RefreshDeviceStatus forces a fresh collection, coalescing with any
// refresh already in flight for the device.
func (s *Server) RefreshDeviceStatus(ctx context.Context, deviceID string) (*models.StatusSnapshot, error) {
	return s.cache.Refresh(ctx, deviceID)
}

// ListJobs returns all jobs.
func (s *Server) ListJobs() []*models.Job {
	return s.registry.ListJobs()
}

// GetJob returns one job by ID.
func (s *Server) GetJob(id string) (*models.Job, error) {
	return s.registry.GetJob(id)
}

// AddJob registers a job. The scheduler arms it on its next tick.
func (s *Server) AddJob(ctx context.Context, job *models.Job) (*models.Job, error) {
	added, err := s.registry.AddJob(job)
	if err != nil {
		return nil, err
	}

	s.record(ctx, "job_add", added.ID, "success")

	return added, nil
}

// UpdateJob replaces a job definition.
func (s *Server) UpdateJob(ctx context.Context, job *models.Job) error {
	if err := s.registry.UpdateJob(job); err != nil {
		return err
	}

	s.record(ctx, "job_update", job.ID, "success")

	return nil
}

// RemoveJob drops a job and its run history.
func (s *Server) RemoveJob(ctx context.Context, id string) error {
	if err := s.registry.RemoveJob(id); err != nil {
		return err
	}

	s.scheduler.History().Forget(id)
	s.record(ctx, "job_remove", id, "success")

	return nil
}

// SetJobEnabled toggles a job. Enabling computes the first fire time
// immediately; disabling clears it.
func (s *Server) SetJobEnabled(ctx context.Context, id string, enabled bool) error {
	var nextRun *time.Time

	if enabled {
		job, err := s.registry.GetJob(id)
		if err != nil {
			return err
		}

		next, err := scheduler.NextRun(&job.Schedule, time.Now())
		if err != nil {
			return err
		}

		nextRun = &next
	}

	if err := s.registry.SetJobEnabled(id, enabled, nextRun); err != nil {
		return err
	}

	action := "job_disable"
	if enabled {
		action = "job_enable"
	}

	s.record(ctx, action, id, "success")

	return nil
}

// RunJobNow executes a job immediately and waits for its record.
func (s *Server) RunJobNow(ctx context.Context, id string) (*models.RunRecord, error) {
	return s.scheduler.RunNow(ctx, id)
}

// ListRunHistory returns a job's run records, newest first.
func (s *Server) ListRunHistory(jobID string) ([]*models.RunRecord, error) {
	if _, err := s.registry.GetJob(jobID); err != nil {
		return nil, err
	}

	return s.scheduler.History().List(jobID), nil
}

// JobState reports whether a job is disabled, idle or running.
func (s *Server) JobState(jobID string) (models.JobState, error) {
	return s.scheduler.State(jobID)
}

// ContainerAction starts, stops or restarts a container on a device.
func (s *Server) ContainerAction(ctx context.Context, deviceID, container string, op models.ContainerOp) error {
	device, err := s.registry.GetDevice(deviceID)
	if err != nil {
		return err
	}

	err = s.docker.ContainerAction(ctx, device, container, op)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}

	s.record(ctx, "container_"+string(op), deviceID+"/"+container, outcome)

	return err
}

// ContainerLogs returns recent log output from a container.
func (s *Server) ContainerLogs(ctx context.Context, deviceID, container string, tail int, since string) (string, error) {
	device, err := s.registry.GetDevice(deviceID)
	if err != nil {
		return "", err
	}

	return s.docker.Logs(ctx, device, container, tail, since)
}

// WakeDevice sends a wake-on-lan packet to a device.
func (s *Server) WakeDevice(ctx context.Context, deviceID string) error {
	job := &models.Job{
		Action: models.Action{
			Kind: models.ActionWake,
			Wake: &models.WakeAction{DeviceID: deviceID},
		},
	}

	err := s.runner.Run(ctx, job)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}

	s.record(ctx, "device_wake", deviceID, outcome)

	return err
}

func (s *Server) record(ctx context.Context, action, target, outcome string) {
	s.audit.Record(ctx, audit.Entry{
		Action:    action,
		Target:    target,
		Outcome:   outcome,
		Actor:     apiActor,
		Timestamp: time.Now(),
	})
}
