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

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validJob() *Job {
	return &Job{
		ID:   "restart-plex",
		Name: "Restart Plex",
		Action: Action{
			Kind:   ActionDocker,
			Docker: &DockerAction{DeviceID: "nas", Container: "plex", Op: ContainerRestart},
		},
		Schedule: Schedule{Kind: ScheduleDaily, Time: "04:30"},
	}
}

func TestJobValidate(t *testing.T) {
	require.NoError(t, validJob().Validate())
}

func TestJobValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Job)
	}{
		{"missing id", func(j *Job) { j.ID = "" }},
		{"missing name", func(j *Job) { j.Name = "" }},
		{"unknown action kind", func(j *Job) { j.Action.Kind = "teleport" }},
		{"docker without payload", func(j *Job) { j.Action.Docker = nil }},
		{"bad container name", func(j *Job) { j.Action.Docker.Container = "plex;reboot" }},
		{"bad container op", func(j *Job) { j.Action.Docker.Op = "pause" }},
		{"bad time of day", func(j *Job) { j.Schedule.Time = "25:00" }},
		{"unknown skip policy", func(j *Job) { j.SkipPolicy = "maybe" }},
		{
			"precondition without device",
			func(j *Job) { j.Precondition = &Precondition{Kind: PrecondDeviceOnline} },
		},
		{
			"precondition without container",
			func(j *Job) {
				j.Precondition = &Precondition{Kind: PrecondContainerRunning, DeviceID: "nas"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := validJob()
			tt.mutate(job)
			require.ErrorIs(t, job.Validate(), ErrConfigInvalid)
		})
	}
}

func TestScheduleValidate(t *testing.T) {
	tests := []struct {
		name     string
		schedule Schedule
		wantErr  bool
	}{
		{"interval", Schedule{Kind: ScheduleInterval, Every: Duration(time.Minute)}, false},
		{"interval too short", Schedule{Kind: ScheduleInterval, Every: Duration(30 * time.Second)}, true},
		{"daily", Schedule{Kind: ScheduleDaily, Time: "23:59"}, false},
		{"weekly", Schedule{Kind: ScheduleWeekly, Time: "04:00", Days: []string{"monday", "friday"}}, false},
		{"weekly without days", Schedule{Kind: ScheduleWeekly, Time: "04:00"}, true},
		{"weekly bad day", Schedule{Kind: ScheduleWeekly, Time: "04:00", Days: []string{"someday"}}, true},
		{"cron", Schedule{Kind: ScheduleCron, Expr: "0 4 * * 1-5"}, false},
		{"cron bad expr", Schedule{Kind: ScheduleCron, Expr: "not cron"}, true},
		{"unknown kind", Schedule{Kind: "lunar"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schedule.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrConfigInvalid)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	hour, minute, err := ParseTimeOfDay("04:30")
	require.NoError(t, err)
	assert.Equal(t, 4, hour)
	assert.Equal(t, 30, minute)

	for _, bad := range []string{"", "4:30:00", "24:00", "12:60", "noon"} {
		_, _, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestJobClone_Independent(t *testing.T) {
	job := validJob()
	now := time.Now()
	job.NextRun = &now
	job.Precondition = &Precondition{Kind: PrecondDeviceOnline, DeviceID: "nas"}

	clone := job.Clone()
	clone.Action.Docker.Container = "sonarr"
	clone.Precondition.DeviceID = "other"
	*clone.NextRun = now.Add(time.Hour)

	assert.Equal(t, "plex", job.Action.Docker.Container)
	assert.Equal(t, "nas", job.Precondition.DeviceID)
	assert.Equal(t, now, *job.NextRun)
}
