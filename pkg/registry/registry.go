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

// Package registry holds the set of managed devices and scheduled jobs.
// It is read-mostly: the executor, cache, and scheduler read
// concurrently while mutations are applied atomically and persisted.
package registry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/carverauto/fleetradar/pkg/logger"
	"github.com/carverauto/fleetradar/pkg/models"
	"github.com/google/uuid"
)

// LocalDeviceID is the stable identity of the control host.
const LocalDeviceID = models.LocalDeviceID

// Registry is the managed fleet inventory backed by one JSON file.
type Registry struct {
	mu     sync.RWMutex
	path   string
	logger logger.Logger

	devices       []*models.Device
	jobs          []*models.Job
	notifications models.NotificationConfig
}

// Load opens the registry file, creating a default one (containing only
// the local control host) when the file does not exist yet.
func Load(path string, log logger.Logger) (*Registry, error) {
	r := &Registry{
		path:   path,
		logger: log,
	}

	data, err := os.ReadFile(path)

	switch {
	case os.IsNotExist(err):
		log.Info().Str("path", path).Msg("No registry file, starting with defaults")
	case err != nil:
		return nil, fmt.Errorf("reading registry file %s: %w", path, err)
	default:
		if err := r.decode(data); err != nil {
			return nil, err
		}
	}

	r.ensureLocalDevice()

	if err := r.save(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) ensureLocalDevice() {
	for _, d := range r.devices {
		if d.IsLocal {
			return
		}
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "control host"
	}

	r.devices = append([]*models.Device{{
		ID:      LocalDeviceID,
		Name:    hostname,
		Address: "localhost",
		IsLocal: true,
	}}, r.devices...)
}

// ListDevices returns a copy of all managed devices.
func (r *Registry) ListDevices() []*models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.Clone())
	}

	return out
}

// GetDevice returns the device with the given id.
func (r *Registry) GetDevice(id string) (*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.ID == id {
			return d.Clone(), nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// LocalDevice returns the device marked as the control host.
func (r *Registry) LocalDevice() (*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.IsLocal {
			return d.Clone(), nil
		}
	}

	return nil, fmt.Errorf("%w: local device", ErrDeviceNotFound)
}

// AddDevice validates and stores a new device. A missing id is
// assigned; the new entry is visible to the next evaluation pass.
func (r *Registry) AddDevice(device *models.Device) (*models.Device, error) {
	d := device.Clone()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	if d.IsLocal {
		return nil, fmt.Errorf("%w: only one local device allowed", models.ErrConfigInvalid)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findDevice(d.ID) != nil {
		return nil, fmt.Errorf("%w: device %s", ErrDuplicateID, d.ID)
	}

	r.devices = append(r.devices, d)

	if err := r.save(); err != nil {
		return nil, err
	}

	return d.Clone(), nil
}

// UpdateDevice replaces an existing device definition. Identity is the
// id; address and credentials may change freely.
func (r *Registry) UpdateDevice(device *models.Device) error {
	if err := device.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.findDevice(device.ID)
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, device.ID)
	}

	if existing.IsLocal != device.IsLocal {
		return fmt.Errorf("%w: is_local cannot change", models.ErrConfigInvalid)
	}

	*existing = *device.Clone()

	return r.save()
}

// RemoveDevice deletes a device. The control host cannot be removed.
func (r *Registry) RemoveDevice(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, d := range r.devices {
		if d.ID != id {
			continue
		}

		if d.IsLocal {
			return fmt.Errorf("%w: cannot remove the local device", models.ErrConfigInvalid)
		}

		r.devices = append(r.devices[:i], r.devices[i+1:]...)

		return r.save()
	}

	return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// ListJobs returns a copy of all jobs.
func (r *Registry) ListJobs() []*models.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Clone())
	}

	return out
}

// GetJob returns the job with the given id.
func (r *Registry) GetJob(id string) (*models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if j := r.findJob(id); j != nil {
		return j.Clone(), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

// AddJob validates and stores a new job.
func (r *Registry) AddJob(job *models.Job) (*models.Job, error) {
	j := job.Clone()

	if j.ID == "" {
		j.ID = uuid.NewString()
	}

	if err := j.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findJob(j.ID) != nil {
		return nil, fmt.Errorf("%w: job %s", ErrDuplicateID, j.ID)
	}

	r.jobs = append(r.jobs, j)

	if err := r.save(); err != nil {
		return nil, err
	}

	return j.Clone(), nil
}

// UpdateJob replaces an existing job definition.
func (r *Registry) UpdateJob(job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.findJob(job.ID)
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}

	*existing = *job.Clone()

	return r.save()
}

// RemoveJob deletes a job.
func (r *Registry) RemoveJob(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, j := range r.jobs {
		if j.ID != id {
			continue
		}

		r.jobs = append(r.jobs[:i], r.jobs[i+1:]...)

		return r.save()
	}

	return fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

// SetJobEnabled toggles a job. Disabling clears next_run; the caller
// supplies the recomputed next_run when enabling.
func (r *Registry) SetJobEnabled(id string, enabled bool, nextRun *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j := r.findJob(id)
	if j == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	j.Enabled = enabled

	if enabled {
		j.NextRun = nextRun
	} else {
		j.NextRun = nil
	}

	return r.save()
}

// CommitRun records scheduling bookkeeping after a fire: the actual
// fire time and the recomputed next_run.
func (r *Registry) CommitRun(id string, lastRun time.Time, nextRun *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j := r.findJob(id)
	if j == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	j.LastRun = &lastRun
	j.NextRun = nextRun

	return r.save()
}

// AdvanceJob updates only next_run, used when a fire was suppressed.
func (r *Registry) AdvanceJob(id string, nextRun *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j := r.findJob(id)
	if j == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	j.NextRun = nextRun

	return r.save()
}

// Notifications returns the notification channel configuration.
func (r *Registry) Notifications() models.NotificationConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.notifications
}

func (r *Registry) findDevice(id string) *models.Device {
	for _, d := range r.devices {
		if d.ID == id {
			return d
		}
	}

	return nil
}

func (r *Registry) findJob(id string) *models.Job {
	for _, j := range r.jobs {
		if j.ID == id {
			return j
		}
	}

	return nil
}
