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

// Package docker controls containers on managed devices through the
// command executor, so local and remote hosts take the same path.
package docker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/fleetradar/pkg/executor"
	"github.com/carverauto/fleetradar/pkg/logger"
	"github.com/carverauto/fleetradar/pkg/models"
)

const (
	StateUnknown = "unknown"
	StateRunning = "running"

	statusTimeout = 15 * time.Second
	actionTimeout = 60 * time.Second
	logsTimeout   = 30 * time.Second

	maxLogLines = 1000
)

var (
	ErrContainerNotFound = errors.New("container not found")
	ErrInvalidName       = fmt.Errorf("%w: invalid container name", models.ErrConfigInvalid)
)

// Client issues docker CLI commands on a device.
type Client struct {
	exec   executor.Executor
	logger logger.Logger
}

// NewClient creates a docker client backed by the given executor.
func NewClient(exec executor.Executor, log logger.Logger) *Client {
	return &Client{exec: exec, logger: log}
}

// ContainerAction starts, stops, or restarts a named container.
func (c *Client) ContainerAction(ctx context.Context, device *models.Device, name string, op models.ContainerOp) error {
	if !models.IsValidContainerName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	switch op {
	case models.ContainerStart, models.ContainerStop, models.ContainerRestart:
	default:
		return fmt.Errorf("%w: unknown container op %q", models.ErrConfigInvalid, op)
	}

	result, err := c.run(ctx, device, actionTimeout, string(op), name)
	if err != nil {
		return err
	}

	if result.ExitCode != 0 {
		return fmt.Errorf("%w: docker %s %s: %s", models.ErrActionFailed, op, name, firstLine(result.Stderr))
	}

	c.logger.Info().
		Str("device_id", device.ID).
		Str("container", name).
		Str("op", string(op)).
		Msg("Container action completed")

	return nil
}

// State returns the inspect state of one container ("running",
// "exited", ...).
func (c *Client) State(ctx context.Context, device *models.Device, name string) (string, error) {
	if !models.IsValidContainerName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	result, err := c.run(ctx, device, statusTimeout, "inspect", "-f", "{{.State.Status}}", name)
	if err != nil {
		return "", err
	}

	if result.ExitCode != 0 {
		return "", fmt.Errorf("%w: %s", ErrContainerNotFound, name)
	}

	return strings.TrimSpace(result.Stdout), nil
}

// ContainerStatuses resolves the state of every requested container
// with a single docker ps call. Containers docker does not report come
// back as unknown, as does the whole set when docker is unavailable.
func (c *Client) ContainerStatuses(
	ctx context.Context, device *models.Device, names []string) (map[string]string, error) {
	statuses := make(map[string]string, len(names))
	for _, name := range names {
		statuses[name] = StateUnknown
	}

	if len(names) == 0 {
		return statuses, nil
	}

	result, err := c.run(ctx, device, statusTimeout, "ps", "-a", "--format", "{{.Names}}:{{.State}}")
	if err != nil {
		return statuses, err
	}

	if result.ExitCode != 0 {
		return statuses, fmt.Errorf("%w: %s", models.ErrActionFailed, firstLine(result.Stderr))
	}

	reported := parseStatusLines(result.Stdout)

	for _, name := range names {
		if state, ok := reported[name]; ok {
			statuses[name] = state
		}
	}

	return statuses, nil
}

// ListContainers returns the names of all containers on the device.
func (c *Client) ListContainers(ctx context.Context, device *models.Device) ([]string, error) {
	result, err := c.run(ctx, device, statusTimeout, "ps", "-a", "--format", "{{.Names}}")
	if err != nil {
		return nil, err
	}

	if result.ExitCode != 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrActionFailed, firstLine(result.Stderr))
	}

	var names []string

	for _, line := range strings.Split(result.Stdout, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}

	return names, nil
}

// Logs returns up to tail lines of container logs, optionally limited
// to a trailing window such as "30m" or "1h".
func (c *Client) Logs(
	ctx context.Context, device *models.Device, name string, tail int, since string) (string, error) {
	if !models.IsValidContainerName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	if tail <= 0 || tail > maxLogLines {
		tail = maxLogLines
	}

	args := []string{"logs", "--tail", strconv.Itoa(tail)}

	if since != "" && sinceRe.MatchString(since) {
		args = append(args, "--since", since)
	}

	args = append(args, name)

	result, err := c.run(ctx, device, logsTimeout, args...)
	if err != nil {
		return "", err
	}

	if result.ExitCode != 0 {
		return "", fmt.Errorf("%w: %s", models.ErrActionFailed, firstLine(result.Stderr))
	}

	// Some containers log to stderr only.
	if result.Stdout == "" {
		return result.Stderr, nil
	}

	return result.Stdout, nil
}

// run invokes docker on the device, retrying once under sudo when a
// remote daemon rejects the unprivileged socket.
func (c *Client) run(
	ctx context.Context, device *models.Device, timeout time.Duration, args ...string) (*executor.Result, error) {
	result, err := c.exec.Execute(ctx, device, "docker", args, timeout)
	if err != nil {
		return nil, err
	}

	if result.ExitCode != 0 && !device.IsLocal && permissionDenied(result) {
		c.logger.Debug().
			Str("device_id", device.ID).
			Msg("Docker permission denied, retrying with sudo")

		return c.exec.Execute(ctx, device, "sudo", append([]string{"docker"}, args...), timeout)
	}

	return result, nil
}

func permissionDenied(result *executor.Result) bool {
	output := strings.ToLower(result.Stdout + result.Stderr)
	return strings.Contains(output, "permission denied")
}

func parseStatusLines(output string) map[string]string {
	states := make(map[string]string)

	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		name, state, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		states[name] = strings.ToLower(strings.TrimSpace(state))
	}

	return states
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)

	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}

	if s == "" {
		return "docker command failed"
	}

	return s
}

var sinceRe = regexp.MustCompile(`^\d+[smh]$`)
