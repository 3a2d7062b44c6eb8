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
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ActionKind is the closed set of job action variants. Adding a kind
// means adding a variant here and a handler in the scheduler dispatcher.
type ActionKind string

const (
	ActionDocker   ActionKind = "docker"
	ActionCommand  ActionKind = "command"
	ActionHTTP     ActionKind = "http"
	ActionBackup   ActionKind = "backup"
	ActionWake     ActionKind = "wake"
	ActionShutdown ActionKind = "shutdown"
)

// Action is a tagged variant: exactly the payload matching Kind is set.
type Action struct {
	Kind     ActionKind      `json:"kind"`
	Docker   *DockerAction   `json:"docker,omitempty"`
	Command  *CommandAction  `json:"command,omitempty"`
	HTTP     *HTTPAction     `json:"http,omitempty"`
	Backup   *BackupAction   `json:"backup,omitempty"`
	Wake     *WakeAction     `json:"wake,omitempty"`
	Shutdown *ShutdownAction `json:"shutdown,omitempty"`
}

// ContainerOp is a docker lifecycle operation.
type ContainerOp string

const (
	ContainerStart   ContainerOp = "start"
	ContainerStop    ContainerOp = "stop"
	ContainerRestart ContainerOp = "restart"
)

type DockerAction struct {
	DeviceID  string      `json:"device_id"`
	Container string      `json:"container"`
	Op        ContainerOp `json:"op"`
}

type CommandAction struct {
	DeviceID string   `json:"device_id"`
	Command  string   `json:"command"`
	Args     []string `json:"args,omitempty"`
	Timeout  Duration `json:"timeout,omitempty"`
}

type HTTPAction struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Body    string            `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Timeout Duration          `json:"timeout,omitempty"`
}

type BackupAction struct {
	SourceDevice string `json:"source_device"`
	SourcePath   string `json:"source_path"`
	DestDevice   string `json:"dest_device"`
	DestPath     string `json:"dest_path"`
	Delete       bool   `json:"delete,omitempty"`
}

type WakeAction struct {
	DeviceID string `json:"device_id"`
}

type ShutdownAction struct {
	DeviceID string `json:"device_id"`
}

// ScheduleKind is the recurrence shape of a job.
type ScheduleKind string

const (
	ScheduleInterval ScheduleKind = "interval"
	ScheduleDaily    ScheduleKind = "daily"
	ScheduleWeekly   ScheduleKind = "weekly"
	ScheduleCron     ScheduleKind = "cron"
)

// Schedule describes when a job recurs. Time is "HH:MM" for daily and
// weekly shapes; Expr is a standard 5-field cron expression.
type Schedule struct {
	Kind  ScheduleKind `json:"kind"`
	Every Duration     `json:"every,omitempty"`
	Time  string       `json:"time,omitempty"`
	Days  []string     `json:"days,omitempty"`
	Expr  string       `json:"expr,omitempty"`
}

// SkipPolicy controls how next_run advances after a precondition skip.
type SkipPolicy string

const (
	// SkipAdvance keeps the normal recurrence cadence.
	SkipAdvance SkipPolicy = "advance"
	// SkipRetry re-arms the job a short delay after the skipped tick.
	SkipRetry SkipPolicy = "retry"
)

// PreconditionKind selects the check run immediately before dispatch.
type PreconditionKind string

const (
	PrecondDeviceOnline     PreconditionKind = "device_online"
	PrecondContainerRunning PreconditionKind = "container_running"
	PrecondContainerStopped PreconditionKind = "container_stopped"
)

// Precondition gates job dispatch on cached device state. Unmet
// preconditions yield a skipped outcome without touching the executor.
type Precondition struct {
	Kind      PreconditionKind `json:"kind"`
	DeviceID  string           `json:"device_id"`
	Container string           `json:"container,omitempty"`
}

// Job is a schedulable unit of work with a recurrence rule and a typed
// action.
type Job struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Action       Action        `json:"action"`
	Schedule     Schedule      `json:"schedule"`
	Enabled      bool          `json:"enabled"`
	SkipPolicy   SkipPolicy    `json:"skip_policy,omitempty"`
	Precondition *Precondition `json:"precondition,omitempty"`
	LastRun      *time.Time    `json:"last_run,omitempty"`
	NextRun      *time.Time    `json:"next_run,omitempty"`
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}

	out := *j

	if j.Action.Docker != nil {
		a := *j.Action.Docker
		out.Action.Docker = &a
	}

	if j.Action.Command != nil {
		a := *j.Action.Command
		a.Args = append([]string(nil), j.Action.Command.Args...)
		out.Action.Command = &a
	}

	if j.Action.HTTP != nil {
		a := *j.Action.HTTP

		if j.Action.HTTP.Headers != nil {
			a.Headers = make(map[string]string, len(j.Action.HTTP.Headers))
			for k, v := range j.Action.HTTP.Headers {
				a.Headers[k] = v
			}
		}

		out.Action.HTTP = &a
	}

	if j.Action.Backup != nil {
		a := *j.Action.Backup
		out.Action.Backup = &a
	}

	if j.Action.Wake != nil {
		a := *j.Action.Wake
		out.Action.Wake = &a
	}

	if j.Action.Shutdown != nil {
		a := *j.Action.Shutdown
		out.Action.Shutdown = &a
	}

	out.Schedule.Days = append([]string(nil), j.Schedule.Days...)

	if j.Precondition != nil {
		p := *j.Precondition
		out.Precondition = &p
	}

	if j.LastRun != nil {
		t := *j.LastRun
		out.LastRun = &t
	}

	if j.NextRun != nil {
		t := *j.NextRun
		out.NextRun = &t
	}

	return &out
}

// JobState is the scheduler-visible lifecycle state of a job.
type JobState string

const (
	JobDisabled JobState = "disabled"
	JobIdle     JobState = "idle"
	JobRunning  JobState = "running"
)

// Outcome classifies one job execution attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// RunRecord is an immutable record of one job execution attempt.
type RunRecord struct {
	JobID      string    `json:"job_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday maps a lowercase day name to its time.Weekday.
func ParseWeekday(name string) (time.Weekday, bool) {
	d, ok := weekdayNames[name]
	return d, ok
}

// ParseTimeOfDay parses "HH:MM" into hour and minute.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	if _, err := time.Parse("15:04", s); err != nil {
		return 0, 0, fmt.Errorf("%w: invalid time of day %q", ErrConfigInvalid, s)
	}

	_, _ = fmt.Sscanf(s, "%d:%d", &hour, &minute)

	return hour, minute, nil
}

// Validate rejects malformed schedules with ErrConfigInvalid.
func (s *Schedule) Validate() error {
	switch s.Kind {
	case ScheduleInterval:
		if s.Every.Duration() < time.Minute {
			return fmt.Errorf("%w: interval must be at least one minute", ErrConfigInvalid)
		}
	case ScheduleDaily:
		if _, _, err := ParseTimeOfDay(s.Time); err != nil {
			return err
		}
	case ScheduleWeekly:
		if _, _, err := ParseTimeOfDay(s.Time); err != nil {
			return err
		}

		if len(s.Days) == 0 {
			return fmt.Errorf("%w: weekly schedule needs at least one day", ErrConfigInvalid)
		}

		for _, day := range s.Days {
			if _, ok := ParseWeekday(day); !ok {
				return fmt.Errorf("%w: unknown weekday %q", ErrConfigInvalid, day)
			}
		}
	case ScheduleCron:
		if _, err := cron.ParseStandard(s.Expr); err != nil {
			return fmt.Errorf("%w: bad cron expression %q: %v", ErrConfigInvalid, s.Expr, err)
		}
	default:
		return fmt.Errorf("%w: unknown schedule kind %q", ErrConfigInvalid, s.Kind)
	}

	return nil
}

// Validate rejects malformed actions with ErrConfigInvalid.
func (a *Action) Validate() error {
	switch a.Kind {
	case ActionDocker:
		if a.Docker == nil || a.Docker.DeviceID == "" {
			return fmt.Errorf("%w: docker action needs a device", ErrConfigInvalid)
		}

		if !IsValidContainerName(a.Docker.Container) {
			return fmt.Errorf("%w: invalid container name %q", ErrConfigInvalid, a.Docker.Container)
		}

		switch a.Docker.Op {
		case ContainerStart, ContainerStop, ContainerRestart:
		default:
			return fmt.Errorf("%w: unknown container op %q", ErrConfigInvalid, a.Docker.Op)
		}
	case ActionCommand:
		if a.Command == nil || a.Command.DeviceID == "" || a.Command.Command == "" {
			return fmt.Errorf("%w: command action needs a device and a command", ErrConfigInvalid)
		}
	case ActionHTTP:
		if a.HTTP == nil || a.HTTP.URL == "" {
			return fmt.Errorf("%w: http action needs a url", ErrConfigInvalid)
		}
	case ActionBackup:
		if a.Backup == nil || a.Backup.SourceDevice == "" || a.Backup.DestDevice == "" {
			return fmt.Errorf("%w: backup action needs source and destination devices", ErrConfigInvalid)
		}

		if a.Backup.SourcePath == "" || a.Backup.DestPath == "" {
			return fmt.Errorf("%w: backup action needs source and destination paths", ErrConfigInvalid)
		}
	case ActionWake:
		if a.Wake == nil || a.Wake.DeviceID == "" {
			return fmt.Errorf("%w: wake action needs a device", ErrConfigInvalid)
		}
	case ActionShutdown:
		if a.Shutdown == nil || a.Shutdown.DeviceID == "" {
			return fmt.Errorf("%w: shutdown action needs a device", ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown action kind %q", ErrConfigInvalid, a.Kind)
	}

	return nil
}

// Validate rejects malformed jobs with ErrConfigInvalid.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("%w: job id is required", ErrConfigInvalid)
	}

	if j.Name == "" {
		return fmt.Errorf("%w: job name is required", ErrConfigInvalid)
	}

	if err := j.Action.Validate(); err != nil {
		return err
	}

	if err := j.Schedule.Validate(); err != nil {
		return err
	}

	switch j.SkipPolicy {
	case "", SkipAdvance, SkipRetry:
	default:
		return fmt.Errorf("%w: unknown skip policy %q", ErrConfigInvalid, j.SkipPolicy)
	}

	if j.Precondition != nil {
		switch j.Precondition.Kind {
		case PrecondDeviceOnline:
		case PrecondContainerRunning, PrecondContainerStopped:
			if !IsValidContainerName(j.Precondition.Container) {
				return fmt.Errorf("%w: precondition needs a valid container name", ErrConfigInvalid)
			}
		default:
			return fmt.Errorf("%w: unknown precondition kind %q", ErrConfigInvalid, j.Precondition.Kind)
		}

		if j.Precondition.DeviceID == "" {
			return fmt.Errorf("%w: precondition needs a device", ErrConfigInvalid)
		}
	}

	return nil
}
