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

package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"

	"github.com/carverauto/fleetradar/pkg/models"
	"golang.org/x/sys/unix"
)

// runLocal executes a command as an isolated child process. The child
// gets its own process group so a timeout kills the whole tree, not
// just the immediate process.
func (r *CommandRunner) runLocal(ctx context.Context, command string, args []string) (*Result, error) {
	cmd := exec.Command(command, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrActionFailed, err)
	}

	done := make(chan error, 1)

	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		<-done

		return nil, fmt.Errorf("%w: %s", models.ErrTimeout, command)
	case err := <-done:
		result := &Result{
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}

		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				result.ExitCode = exitErr.ExitCode()
				return result, nil
			}

			return nil, fmt.Errorf("%w: %v", models.ErrActionFailed, err)
		}

		return result, nil
	}
}
