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
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/carverauto/fleetradar/pkg/models"
	"golang.org/x/crypto/ssh"
)

var errNoCredentials = errors.New("no ssh credentials configured")

// runRemote wraps the command in a non-interactive SSH invocation bound
// to the device's address and credential reference. Host keys are not
// verified; the deployment model is a trusted LAN.
func (r *CommandRunner) runRemote(
	ctx context.Context, device *models.Device, command string, args []string) (*Result, error) {
	client, err := r.dial(ctx, device)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnreachable, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer

	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)

	go func() {
		done <- session.Run(joinCommand(command, args))
	}()

	select {
	case <-ctx.Done():
		// Best effort: signal the remote process group, then tear the
		// connection down so the call cannot outlive its deadline.
		_ = session.Signal(ssh.SIGKILL)
		_ = client.Close()
		<-done

		return nil, fmt.Errorf("%w: %s on %s", models.ErrTimeout, command, device.ID)
	case err := <-done:
		result := &Result{
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}

		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				result.ExitCode = exitErr.ExitStatus()
				return result, nil
			}

			// Session died without an exit status: connection loss.
			return nil, fmt.Errorf("%w: %v", models.ErrUnreachable, err)
		}

		return result, nil
	}
}

func (r *CommandRunner) dial(ctx context.Context, device *models.Device) (*ssh.Client, error) {
	if !device.HasSSH() {
		return nil, fmt.Errorf("%w: device %s", errNoCredentials, device.ID)
	}

	config, err := clientConfig(device.SSH)
	if err != nil {
		return nil, err
	}

	address := net.JoinHostPort(device.Address, strconv.Itoa(device.SSHPort()))

	dialer := net.Dialer{Timeout: dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: dialing %s", models.ErrTimeout, address)
		}

		return nil, fmt.Errorf("%w: %v", models.ErrUnreachable, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		_ = conn.Close()

		if strings.Contains(err.Error(), "unable to authenticate") ||
			strings.Contains(err.Error(), "no supported methods remain") {
			return nil, fmt.Errorf("%w: %v", models.ErrAuthFailure, err)
		}

		return nil, fmt.Errorf("%w: %v", models.ErrUnreachable, err)
	}

	return ssh.NewClient(clientConn, chans, reqs), nil
}

func clientConfig(cfg *models.SSHConfig) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod

	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading key %s: %v", models.ErrAuthFailure, cfg.KeyFile, err)
		}

		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing key %s: %v", models.ErrAuthFailure, cfg.KeyFile, err)
		}

		methods = append(methods, ssh.PublicKeys(signer))
	}

	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no key file or password", errNoCredentials)
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // trusted LAN
		Timeout:         dialTimeout,
	}, nil
}

// joinCommand builds the remote command line, escaping every argument
// so the remote shell sees an argument vector, never interpolation.
func joinCommand(cmd string, args []string) string {
	var builder strings.Builder

	builder.WriteString(shellEscape(cmd))

	for _, arg := range args {
		builder.WriteByte(' ')
		builder.WriteString(shellEscape(arg))
	}

	return builder.String()
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}

	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
