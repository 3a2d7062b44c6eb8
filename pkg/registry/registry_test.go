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

package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/fleetradar/pkg/logger"
	"github.com/carverauto/fleetradar/pkg/models"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fleet.json")

	r, err := Load(path, logger.NewTestLogger())
	require.NoError(t, err)

	return r, path
}

func testDevice(id string) *models.Device {
	return &models.Device{
		ID:      id,
		Name:    id,
		Address: "192.168.1.50",
		SSH:     &models.SSHConfig{User: "admin", Password: "secret"},
	}
}

func testJob(id string) *models.Job {
	return &models.Job{
		ID:      id,
		Name:    id,
		Enabled: true,
		Action: models.Action{
			Kind:    models.ActionCommand,
			Command: &models.CommandAction{DeviceID: "local", Command: "true"},
		},
		Schedule: models.Schedule{
			Kind:  models.ScheduleInterval,
			Every: models.Duration(5 * time.Minute),
		},
	}
}

func TestLoad_CreatesDefaultWithLocalDevice(t *testing.T) {
	r, path := newTestRegistry(t)

	devices := r.ListDevices()
	require.Len(t, devices, 1)
	assert.True(t, devices[0].IsLocal)
	assert.Equal(t, LocalDeviceID, devices[0].ID)

	// The defaults were written out immediately.
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestLoad_RoundTrip(t *testing.T) {
	r, path := newTestRegistry(t)

	_, err := r.AddDevice(testDevice("nas"))
	require.NoError(t, err)
	_, err = r.AddJob(testJob("backup"))
	require.NoError(t, err)

	reloaded, err := Load(path, logger.NewTestLogger())
	require.NoError(t, err)

	device, err := reloaded.GetDevice("nas")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.50", device.Address)
	assert.Equal(t, "admin", device.SSH.User)

	job, err := reloaded.GetJob("backup")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleInterval, job.Schedule.Kind)
	assert.True(t, job.Enabled)
}

func TestLoad_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path, logger.NewTestLogger())
	require.Error(t, err)
}

func TestAddDevice_AssignsID(t *testing.T) {
	r, _ := newTestRegistry(t)

	device := testDevice("nas")
	device.ID = ""

	added, err := r.AddDevice(device)
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
}

func TestAddDevice_RejectsDuplicate(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.AddDevice(testDevice("nas"))
	require.NoError(t, err)

	_, err = r.AddDevice(testDevice("nas"))
	require.ErrorIs(t, err, ErrDuplicateID)
}

func TestAddDevice_RejectsSecondLocal(t *testing.T) {
	r, _ := newTestRegistry(t)

	device := testDevice("imposter")
	device.IsLocal = true

	_, err := r.AddDevice(device)
	require.ErrorIs(t, err, models.ErrConfigInvalid)
}

func TestUpdateDevice(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.AddDevice(testDevice("nas"))
	require.NoError(t, err)

	updated := testDevice("nas")
	updated.Address = "192.168.1.99"
	require.NoError(t, r.UpdateDevice(updated))

	device, err := r.GetDevice("nas")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.99", device.Address)
}

func TestUpdateDevice_LocalFlagImmutable(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.AddDevice(testDevice("nas"))
	require.NoError(t, err)

	mutated := testDevice("nas")
	mutated.IsLocal = true
	mutated.SSH = nil

	require.ErrorIs(t, r.UpdateDevice(mutated), models.ErrConfigInvalid)
}

func TestRemoveDevice_ProtectsLocal(t *testing.T) {
	r, _ := newTestRegistry(t)

	err := r.RemoveDevice(LocalDeviceID)
	require.ErrorIs(t, err, models.ErrConfigInvalid)

	_, err = r.LocalDevice()
	require.NoError(t, err)
}

func TestRemoveDevice(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.AddDevice(testDevice("nas"))
	require.NoError(t, err)

	require.NoError(t, r.RemoveDevice("nas"))

	_, err = r.GetDevice("nas")
	require.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestGetDevice_ReturnsCopies(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.AddDevice(testDevice("nas"))
	require.NoError(t, err)

	first, err := r.GetDevice("nas")
	require.NoError(t, err)
	first.Address = "tampered"

	second, err := r.GetDevice("nas")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.50", second.Address)
}

func TestAddJob_RejectsInvalidSchedule(t *testing.T) {
	r, _ := newTestRegistry(t)

	job := testJob("too-fast")
	job.Schedule.Every = models.Duration(10 * time.Second)

	_, err := r.AddJob(job)
	require.ErrorIs(t, err, models.ErrConfigInvalid)
}

func TestSetJobEnabled(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.AddJob(testJob("backup"))
	require.NoError(t, err)

	next := time.Now().Add(5 * time.Minute).UTC()
	require.NoError(t, r.SetJobEnabled("backup", true, &next))

	job, err := r.GetJob("backup")
	require.NoError(t, err)
	require.NotNil(t, job.NextRun)
	assert.Equal(t, next, *job.NextRun)

	// Disabling clears the pending fire time.
	require.NoError(t, r.SetJobEnabled("backup", false, nil))

	job, err = r.GetJob("backup")
	require.NoError(t, err)
	assert.False(t, job.Enabled)
	assert.Nil(t, job.NextRun)
}

func TestCommitRunAndAdvanceJob(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.AddJob(testJob("backup"))
	require.NoError(t, err)

	fired := time.Now().UTC()
	next := fired.Add(5 * time.Minute)
	require.NoError(t, r.CommitRun("backup", fired, &next))

	job, err := r.GetJob("backup")
	require.NoError(t, err)
	require.NotNil(t, job.LastRun)
	assert.Equal(t, fired, *job.LastRun)
	require.NotNil(t, job.NextRun)
	assert.Equal(t, next, *job.NextRun)

	later := next.Add(5 * time.Minute)
	require.NoError(t, r.AdvanceJob("backup", &later))

	job, err = r.GetJob("backup")
	require.NoError(t, err)
	assert.Equal(t, later, *job.NextRun)
	assert.Equal(t, fired, *job.LastRun)
}

func TestRemoveJob(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.AddJob(testJob("backup"))
	require.NoError(t, err)

	require.NoError(t, r.RemoveJob("backup"))
	require.ErrorIs(t, r.RemoveJob("backup"), ErrJobNotFound)
}
