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

// Package executor runs whitelisted commands against managed devices,
// in-process for the local host and over SSH for remote hosts.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/carverauto/fleetradar/pkg/logger"
	"github.com/carverauto/fleetradar/pkg/models"
)

const (
	// DefaultTimeout bounds a command when the caller does not.
	DefaultTimeout = 5 * time.Minute

	dialTimeout = 5 * time.Second
)

// Result is the structured outcome of one command invocation. A
// non-zero ExitCode is a normal outcome, not an executor error.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor runs one command on a device under a hard timeout. Errors
// are limited to models.ErrUnreachable, models.ErrAuthFailure,
// models.ErrTimeout, and models.ErrActionFailed for commands that
// could not be started at all.
type Executor interface {
	Execute(ctx context.Context, device *models.Device, command string, args []string, timeout time.Duration) (*Result, error)
}

// CommandRunner is the production Executor. Calls are serialized per
// device id; the keyed lock guards only admission, never held state.
type CommandRunner struct {
	logger logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ Executor = (*CommandRunner)(nil)

// NewCommandRunner creates a CommandRunner.
func NewCommandRunner(log logger.Logger) *CommandRunner {
	return &CommandRunner{
		logger: log,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Execute runs command with args on the device. Arguments are always
// passed as a vector and shell-escaped for the remote leg; they are
// never interpolated into a command string.
func (r *CommandRunner) Execute(
	ctx context.Context, device *models.Device, command string, args []string, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// One in-flight call per device id at any time.
	lock := r.deviceLock(device.ID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	var (
		result *Result
		err    error
	)

	if device.IsLocal {
		result, err = r.runLocal(ctx, command, args)
	} else {
		result, err = r.runRemote(ctx, device, command, args)
	}

	evt := r.logger.Debug().
		Str("device_id", device.ID).
		Str("command", command).
		Dur("elapsed", time.Since(start))

	if err != nil {
		evt.Err(err).Msg("Command failed")
		return nil, err
	}

	evt.Int("exit_code", result.ExitCode).Msg("Command completed")

	return result, nil
}

func (r *CommandRunner) deviceLock(deviceID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[deviceID] = lock
	}

	return lock
}
