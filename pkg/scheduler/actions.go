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

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/fleetradar/pkg/docker"
	"github.com/carverauto/fleetradar/pkg/executor"
	"github.com/carverauto/fleetradar/pkg/logger"
	"github.com/carverauto/fleetradar/pkg/models"
	"github.com/carverauto/fleetradar/pkg/wol"
)

const (
	defaultHTTPTimeout     = 30 * time.Second
	shutdownTimeout        = 30 * time.Second
	backupTimeout          = 30 * time.Minute
	httpResponsePreviewMax = 256
)

// ActionRunner executes a job's action.
type ActionRunner interface {
	Run(ctx context.Context, job *models.Job) error
}

// Dispatcher maps each action kind onto the executor, the docker
// client, or the network helpers. Per-device serialization lives in
// the executor, so concurrent jobs against one device queue there.
type Dispatcher struct {
	devices    DeviceStore
	snapshots  SnapshotSource
	exec       executor.Executor
	docker     *docker.Client
	httpClient *http.Client
	logger     logger.Logger
}

var _ ActionRunner = (*Dispatcher)(nil)

// NewDispatcher creates the action dispatcher.
func NewDispatcher(
	devices DeviceStore,
	snapshots SnapshotSource,
	exec executor.Executor,
	dockerClient *docker.Client,
	log logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		devices:    devices,
		snapshots:  snapshots,
		exec:       exec,
		docker:     dockerClient,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     log,
	}
}

// Run implements ActionRunner with an exhaustive switch over the
// action kinds.
func (d *Dispatcher) Run(ctx context.Context, job *models.Job) error {
	switch job.Action.Kind {
	case models.ActionDocker:
		return d.runDocker(ctx, job.Action.Docker)
	case models.ActionCommand:
		return d.runCommand(ctx, job.Action.Command)
	case models.ActionHTTP:
		return d.runHTTP(ctx, job.Action.HTTP)
	case models.ActionBackup:
		return d.runBackup(ctx, job.Action.Backup)
	case models.ActionWake:
		return d.runWake(job.Action.Wake)
	case models.ActionShutdown:
		return d.runShutdown(ctx, job.Action.Shutdown)
	default:
		return fmt.Errorf("%w: unknown action kind %q", models.ErrConfigInvalid, job.Action.Kind)
	}
}

func (d *Dispatcher) runDocker(ctx context.Context, action *models.DockerAction) error {
	device, err := d.devices.GetDevice(action.DeviceID)
	if err != nil {
		return err
	}

	return d.docker.ContainerAction(ctx, device, action.Container, action.Op)
}

func (d *Dispatcher) runCommand(ctx context.Context, action *models.CommandAction) error {
	device, err := d.devices.GetDevice(action.DeviceID)
	if err != nil {
		return err
	}

	result, err := d.exec.Execute(ctx, device, action.Command, action.Args, action.Timeout.Duration())
	if err != nil {
		return err
	}

	if result.ExitCode != 0 {
		return fmt.Errorf("%w: exit %d: %s", models.ErrActionFailed, result.ExitCode, firstLine(result.Stderr))
	}

	return nil
}

func (d *Dispatcher) runHTTP(ctx context.Context, action *models.HTTPAction) error {
	method := action.Method
	if method == "" {
		method = http.MethodGet
	}

	timeout := action.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if action.Body != "" {
		body = strings.NewReader(action.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, action.URL, body)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrConfigInvalid, err)
	}

	for key, value := range action.Headers {
		req.Header.Set(key, value)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s %s", models.ErrTimeout, method, action.URL)
		}

		return fmt.Errorf("%w: %v", models.ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, httpResponsePreviewMax))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: %s returned %d: %s",
			models.ErrActionFailed, action.URL, resp.StatusCode, firstLine(string(preview)))
	}

	return nil
}

// runBackup shells out to rsync on the local device. Remote endpoints
// become user@host:path specs with an explicit ssh transport.
func (d *Dispatcher) runBackup(ctx context.Context, action *models.BackupAction) error {
	source, err := d.devices.GetDevice(action.SourceDevice)
	if err != nil {
		return err
	}

	dest, err := d.devices.GetDevice(action.DestDevice)
	if err != nil {
		return err
	}

	if !source.IsLocal {
		if snap := d.snapshots.Get(source.ID); snap == nil || !snap.Online {
			return fmt.Errorf("%w: source device %s is offline", models.ErrSkipped, source.ID)
		}
	}

	args := []string{"-avz", "--stats"}
	if action.Delete {
		args = append(args, "--delete")
	}

	if transport := rsyncTransport(source, dest); transport != "" {
		args = append(args, "-e", transport)
	}

	args = append(args,
		rsyncEndpoint(source, action.SourcePath),
		rsyncEndpoint(dest, action.DestPath))

	local, err := d.devices.GetDevice(models.LocalDeviceID)
	if err != nil {
		return err
	}

	result, err := d.exec.Execute(ctx, local, "rsync", args, backupTimeout)
	if err != nil {
		return err
	}

	if result.ExitCode != 0 {
		return fmt.Errorf("%w: rsync exit %d: %s", models.ErrActionFailed, result.ExitCode, firstLine(result.Stderr))
	}

	event := d.logger.Info().
		Str("source", action.SourceDevice).
		Str("dest", action.DestDevice)

	if size := parseRsyncSize(result.Stdout); size != "" {
		event = event.Str("total_size", size)
	}

	event.Msg("Backup completed")

	return nil
}

// parseRsyncSize extracts the "Total file size" line from rsync
// --stats output and renders it human readable. Returns "" when the
// stats block is missing or malformed.
func parseRsyncSize(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "Total file size") || strings.Contains(line, "transferred") {
			continue
		}

		_, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		fields := strings.Fields(value)
		if len(fields) == 0 {
			continue
		}

		size, err := strconv.ParseInt(strings.ReplaceAll(fields[0], ",", ""), 10, 64)
		if err != nil {
			return ""
		}

		switch {
		case size >= 1e9:
			return fmt.Sprintf("%.1fGB", float64(size)/1e9)
		case size >= 1e6:
			return fmt.Sprintf("%.0fMB", float64(size)/1e6)
		default:
			return fmt.Sprintf("%.0fKB", float64(size)/1e3)
		}
	}

	return ""
}

func (d *Dispatcher) runWake(action *models.WakeAction) error {
	device, err := d.devices.GetDevice(action.DeviceID)
	if err != nil {
		return err
	}

	if device.WOL == nil || device.WOL.MAC == "" {
		return fmt.Errorf("%w: device %s", errNoWOLConfig, device.ID)
	}

	broadcast := device.WOL.Broadcast
	if broadcast == "" {
		broadcast = wol.DefaultBroadcast
	}

	if err := wol.Wake(device.WOL.MAC, broadcast); err != nil {
		return fmt.Errorf("%w: %v", models.ErrActionFailed, err)
	}

	d.logger.Info().Str("device_id", device.ID).Msg("Sent wake-on-lan packet")

	return nil
}

// runShutdown powers a device off. The SSH session usually dies when
// the remote host halts, so unreachable and timeout results after a
// clean dispatch count as success.
func (d *Dispatcher) runShutdown(ctx context.Context, action *models.ShutdownAction) error {
	device, err := d.devices.GetDevice(action.DeviceID)
	if err != nil {
		return err
	}

	result, err := d.exec.Execute(ctx, device, "sudo", []string{"shutdown", "-h", "now"}, shutdownTimeout)
	if err != nil {
		if !device.IsLocal && (errors.Is(err, models.ErrTimeout) || errors.Is(err, models.ErrUnreachable)) {
			d.logger.Debug().
				Str("device_id", device.ID).
				Err(err).
				Msg("Connection dropped during shutdown, treating as success")

			return nil
		}

		return err
	}

	if result.ExitCode != 0 {
		return fmt.Errorf("%w: shutdown exit %d: %s",
			models.ErrActionFailed, result.ExitCode, firstLine(result.Stderr))
	}

	return nil
}

func rsyncEndpoint(device *models.Device, path string) string {
	if device.IsLocal {
		return path
	}

	user := "root"
	if device.SSH != nil && device.SSH.User != "" {
		user = device.SSH.User
	}

	return fmt.Sprintf("%s@%s:%s", user, device.Address, path)
}

// rsyncTransport builds the ssh command for the remote side of the
// transfer, if any. rsync allows at most one remote endpoint.
func rsyncTransport(source, dest *models.Device) string {
	remote := source
	if remote.IsLocal {
		remote = dest
	}

	if remote.IsLocal {
		return ""
	}

	parts := []string{"ssh", "-o", "StrictHostKeyChecking=no", "-p", fmt.Sprintf("%d", remote.SSHPort())}
	if remote.SSH != nil && remote.SSH.KeyFile != "" {
		parts = append(parts, "-i", remote.SSH.KeyFile)
	}

	return strings.Join(parts, " ")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}

	return s
}
