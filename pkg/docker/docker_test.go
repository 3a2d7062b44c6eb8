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

package docker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/fleetradar/pkg/executor"
	"github.com/carverauto/fleetradar/pkg/logger"
	"github.com/carverauto/fleetradar/pkg/models"
)

type scriptedCall struct {
	command string
	args    []string
	result  *executor.Result
	err     error
}

// scriptedExec returns canned results in order and records what it was
// asked to run.
type scriptedExec struct {
	script []scriptedCall
	calls  []scriptedCall
}

func (s *scriptedExec) Execute(
	_ context.Context, _ *models.Device, command string, args []string, _ time.Duration) (*executor.Result, error) {
	s.calls = append(s.calls, scriptedCall{command: command, args: args})

	if len(s.script) == 0 {
		return &executor.Result{ExitCode: 0}, nil
	}

	next := s.script[0]
	s.script = s.script[1:]

	return next.result, next.err
}

func localDevice() *models.Device {
	return &models.Device{ID: "local", IsLocal: true}
}

func remoteDevice() *models.Device {
	return &models.Device{ID: "nas", Address: "192.168.1.10", SSH: &models.SSHConfig{User: "admin"}}
}

func TestContainerAction(t *testing.T) {
	exec := &scriptedExec{}
	client := NewClient(exec, logger.NewTestLogger())

	err := client.ContainerAction(context.Background(), localDevice(), "plex", models.ContainerRestart)
	require.NoError(t, err)

	require.Len(t, exec.calls, 1)
	assert.Equal(t, "docker", exec.calls[0].command)
	assert.Equal(t, []string{"restart", "plex"}, exec.calls[0].args)
}

func TestContainerAction_InvalidName(t *testing.T) {
	exec := &scriptedExec{}
	client := NewClient(exec, logger.NewTestLogger())

	err := client.ContainerAction(context.Background(), localDevice(), "plex; rm -rf /", models.ContainerStop)
	require.ErrorIs(t, err, ErrInvalidName)
	assert.Empty(t, exec.calls)
}

func TestContainerAction_NonZeroExit(t *testing.T) {
	exec := &scriptedExec{script: []scriptedCall{
		{result: &executor.Result{ExitCode: 1, Stderr: "No such container: plex"}},
	}}
	client := NewClient(exec, logger.NewTestLogger())

	err := client.ContainerAction(context.Background(), localDevice(), "plex", models.ContainerStart)
	require.ErrorIs(t, err, models.ErrActionFailed)
	assert.Contains(t, err.Error(), "No such container")
}

func TestRun_SudoRetryOnRemotePermissionDenied(t *testing.T) {
	exec := &scriptedExec{script: []scriptedCall{
		{result: &executor.Result{
			ExitCode: 1,
			Stderr:   "permission denied while trying to connect to the Docker daemon socket",
		}},
		{result: &executor.Result{ExitCode: 0}},
	}}
	client := NewClient(exec, logger.NewTestLogger())

	err := client.ContainerAction(context.Background(), remoteDevice(), "plex", models.ContainerStart)
	require.NoError(t, err)

	require.Len(t, exec.calls, 2)
	assert.Equal(t, "docker", exec.calls[0].command)
	assert.Equal(t, "sudo", exec.calls[1].command)
	assert.Equal(t, []string{"docker", "start", "plex"}, exec.calls[1].args)
}

func TestRun_NoSudoRetryOnLocal(t *testing.T) {
	exec := &scriptedExec{script: []scriptedCall{
		{result: &executor.Result{ExitCode: 1, Stderr: "permission denied"}},
	}}
	client := NewClient(exec, logger.NewTestLogger())

	err := client.ContainerAction(context.Background(), localDevice(), "plex", models.ContainerStart)
	require.ErrorIs(t, err, models.ErrActionFailed)
	assert.Len(t, exec.calls, 1)
}

func TestState(t *testing.T) {
	exec := &scriptedExec{script: []scriptedCall{
		{result: &executor.Result{ExitCode: 0, Stdout: "running\n"}},
	}}
	client := NewClient(exec, logger.NewTestLogger())

	state, err := client.State(context.Background(), localDevice(), "plex")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, state)
}

func TestState_NotFound(t *testing.T) {
	exec := &scriptedExec{script: []scriptedCall{
		{result: &executor.Result{ExitCode: 1, Stderr: "Error: No such object: ghost"}},
	}}
	client := NewClient(exec, logger.NewTestLogger())

	_, err := client.State(context.Background(), localDevice(), "ghost")
	require.ErrorIs(t, err, ErrContainerNotFound)
}

func TestContainerStatuses(t *testing.T) {
	exec := &scriptedExec{script: []scriptedCall{
		{result: &executor.Result{
			ExitCode: 0,
			Stdout:   "plex:Running\nsonarr:Exited\nunrelated:Running\n",
		}},
	}}
	client := NewClient(exec, logger.NewTestLogger())

	statuses, err := client.ContainerStatuses(
		context.Background(), localDevice(), []string{"plex", "sonarr", "radarr"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"plex":   "running",
		"sonarr": "exited",
		"radarr": StateUnknown,
	}, statuses)
}

func TestContainerStatuses_DaemonDown(t *testing.T) {
	exec := &scriptedExec{script: []scriptedCall{
		{result: &executor.Result{ExitCode: 1, Stderr: "Cannot connect to the Docker daemon"}},
	}}
	client := NewClient(exec, logger.NewTestLogger())

	statuses, err := client.ContainerStatuses(context.Background(), localDevice(), []string{"plex"})
	require.Error(t, err)

	// Unknown, not missing: callers still get an entry per container.
	assert.Equal(t, map[string]string{"plex": StateUnknown}, statuses)
}

func TestContainerStatuses_Empty(t *testing.T) {
	exec := &scriptedExec{}
	client := NewClient(exec, logger.NewTestLogger())

	statuses, err := client.ContainerStatuses(context.Background(), localDevice(), nil)
	require.NoError(t, err)
	assert.Empty(t, statuses)
	assert.Empty(t, exec.calls)
}

func TestLogs(t *testing.T) {
	exec := &scriptedExec{script: []scriptedCall{
		{result: &executor.Result{ExitCode: 0, Stdout: "line one\nline two\n"}},
	}}
	client := NewClient(exec, logger.NewTestLogger())

	out, err := client.Logs(context.Background(), localDevice(), "plex", 100, "30m")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", out)

	require.Len(t, exec.calls, 1)
	assert.Equal(t, []string{"logs", "--tail", "100", "--since", "30m", "plex"}, exec.calls[0].args)
}

func TestLogs_RejectsBadSince(t *testing.T) {
	exec := &scriptedExec{script: []scriptedCall{
		{result: &executor.Result{ExitCode: 0, Stdout: "ok"}},
	}}
	client := NewClient(exec, logger.NewTestLogger())

	_, err := client.Logs(context.Background(), localDevice(), "plex", 10, "30m; reboot")
	require.NoError(t, err)

	assert.NotContains(t, exec.calls[0].args, "--since")
}

func TestLogs_StderrFallback(t *testing.T) {
	exec := &scriptedExec{script: []scriptedCall{
		{result: &executor.Result{ExitCode: 0, Stdout: "", Stderr: "app log on stderr\n"}},
	}}
	client := NewClient(exec, logger.NewTestLogger())

	out, err := client.Logs(context.Background(), localDevice(), "plex", 10, "")
	require.NoError(t, err)
	assert.Equal(t, "app log on stderr\n", out)
}
