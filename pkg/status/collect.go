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

package status

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/fleetradar/pkg/docker"
	"github.com/carverauto/fleetradar/pkg/executor"
	"github.com/carverauto/fleetradar/pkg/logger"
	"github.com/carverauto/fleetradar/pkg/models"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	pingTimeout  = 3 * time.Second
	probeTimeout = 10 * time.Second
	dfTimeout    = 5 * time.Second

	minReportedDiskBytes = 1 << 30 // skip tmpfs and boot partitions

	maxSaneTempC = 150
)

// remoteProbe gathers everything the basic metrics need in one round
// trip; sections are split on the marker line.
const remoteProbe = "nproc; echo ---; cat /proc/loadavg; echo ---; head -10 /proc/meminfo; " +
	"echo ---; cat /sys/class/thermal/thermal_zone*/temp 2>/dev/null | head -1; echo ---; cat /proc/uptime"

// DeviceCollector produces status snapshots: gopsutil for the local
// host, a combined SSH probe for remote devices, docker state through
// the executor for both.
type DeviceCollector struct {
	exec   executor.Executor
	docker *docker.Client
	logger logger.Logger
}

var _ Collector = (*DeviceCollector)(nil)

// NewCollector creates a DeviceCollector.
func NewCollector(exec executor.Executor, dockerClient *docker.Client, log logger.Logger) *DeviceCollector {
	return &DeviceCollector{
		exec:   exec,
		docker: dockerClient,
		logger: log,
	}
}

// Collect gathers one snapshot. It never returns an error: anything
// that fails degrades to an offline snapshot or missing metrics.
func (dc *DeviceCollector) Collect(ctx context.Context, device *models.Device) *models.StatusSnapshot {
	snap := &models.StatusSnapshot{
		DeviceID:   device.ID,
		CapturedAt: time.Now(),
	}

	if device.IsLocal {
		snap.Online = true
		snap.Metrics = dc.localMetrics(ctx)
	} else {
		if !dc.reachable(ctx, device) {
			return snap
		}

		snap.Online = true

		if device.HasSSH() {
			metrics, err := dc.remoteMetrics(ctx, device)
			if err != nil {
				dc.logger.Debug().Err(err).Str("device_id", device.ID).Msg("Remote metrics unavailable")
			} else {
				snap.Metrics = metrics
			}
		}
	}

	if len(device.Containers) > 0 {
		statuses, err := dc.docker.ContainerStatuses(ctx, device, device.Containers)
		if err != nil {
			dc.logger.Debug().Err(err).Str("device_id", device.ID).Msg("Container status unavailable")
		}

		snap.Containers = statuses
	}

	return snap
}

// reachable probes the device's SSH port over TCP. ICMP would need raw
// sockets, and every managed remote device speaks SSH anyway.
func (dc *DeviceCollector) reachable(ctx context.Context, device *models.Device) bool {
	address := net.JoinHostPort(device.Address, strconv.Itoa(device.SSHPort()))

	dialer := net.Dialer{Timeout: pingTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return false
	}

	_ = conn.Close()

	return true
}

func (dc *DeviceCollector) localMetrics(ctx context.Context) *models.Metrics {
	metrics := &models.Metrics{}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		cores := runtime.NumCPU()
		if cores < 1 {
			cores = 1
		}

		metrics.CPUPercent = clampPercent(avg.Load1 / float64(cores) * 100)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		metrics.RAMTotal = vm.Total
		metrics.RAMUsed = vm.Total - vm.Available
	}

	if temps, err := host.SensorsTemperaturesWithContext(ctx); err == nil {
		for _, sensor := range temps {
			if sensor.Temperature > 0 && sensor.Temperature < maxSaneTempC {
				t := sensor.Temperature
				metrics.TempC = &t

				break
			}
		}
	}

	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		metrics.Uptime = formatUptime(float64(uptime))
	}

	if partitions, err := disk.PartitionsWithContext(ctx, false); err == nil {
		for _, part := range partitions {
			if !reportedMount(part.Mountpoint) {
				continue
			}

			usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
			if err != nil || usage.Total < minReportedDiskBytes {
				continue
			}

			metrics.Disks = append(metrics.Disks, models.DiskUsage{
				Mount: part.Mountpoint,
				Total: usage.Total,
				Used:  usage.Used,
			})
		}
	}

	return metrics
}

// remoteMetrics runs the combined probe over SSH and parses the
// sections. The basic probe is required; disk usage is best effort.
func (dc *DeviceCollector) remoteMetrics(ctx context.Context, device *models.Device) (*models.Metrics, error) {
	result, err := dc.exec.Execute(ctx, device, "sh", []string{"-c", remoteProbe}, probeTimeout)
	if err != nil {
		return nil, err
	}

	if result.ExitCode != 0 {
		return nil, fmt.Errorf("%w: probe exited %d", models.ErrActionFailed, result.ExitCode)
	}

	metrics, err := parseProbeOutput(result.Stdout)
	if err != nil {
		return nil, err
	}

	dfResult, err := dc.exec.Execute(ctx, device, "df",
		[]string{"-B1", "--output=source,target,size,used"}, dfTimeout)
	if err == nil && dfResult.ExitCode == 0 {
		metrics.Disks = parseDiskUsage(dfResult.Stdout)
	}

	return metrics, nil
}

func parseProbeOutput(output string) (*models.Metrics, error) {
	parts := strings.Split(output, "---")
	if len(parts) < 5 {
		return nil, fmt.Errorf("%w: short probe output", models.ErrActionFailed)
	}

	metrics := &models.Metrics{}

	cores, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || cores < 1 {
		cores = 1
	}

	if fields := strings.Fields(parts[1]); len(fields) > 0 {
		if load1, err := strconv.ParseFloat(fields[0], 64); err == nil {
			metrics.CPUPercent = clampPercent(load1 / float64(cores) * 100)
		}
	}

	meminfo := parseMeminfo(parts[2])
	metrics.RAMTotal = meminfo["MemTotal"]

	if available, ok := meminfo["MemAvailable"]; ok {
		metrics.RAMUsed = metrics.RAMTotal - available
	} else {
		free := meminfo["MemFree"] + meminfo["Buffers"] + meminfo["Cached"]
		metrics.RAMUsed = metrics.RAMTotal - free
	}

	if raw := strings.TrimSpace(parts[3]); raw != "" {
		if milli, err := strconv.Atoi(raw); err == nil && milli > 0 {
			t := float64(milli) / 1000
			if t < maxSaneTempC {
				metrics.TempC = &t
			}
		}
	}

	if fields := strings.Fields(parts[4]); len(fields) > 0 {
		if seconds, err := strconv.ParseFloat(fields[0], 64); err == nil {
			metrics.Uptime = formatUptime(seconds)
		}
	}

	return metrics, nil
}

func parseMeminfo(section string) map[string]uint64 {
	info := make(map[string]uint64)

	for _, line := range strings.Split(section, "\n") {
		key, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}

		if kb, err := strconv.ParseUint(fields[0], 10, 64); err == nil {
			info[strings.TrimSpace(key)] = kb * 1024
		}
	}

	return info
}

func parseDiskUsage(output string) []models.DiskUsage {
	var disks []models.DiskUsage

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) < 2 {
		return nil
	}

	for _, line := range lines[1:] {
		cols := strings.Fields(line)
		if len(cols) < 4 {
			continue
		}

		mount := cols[1]
		if !reportedMount(mount) {
			continue
		}

		total, err1 := strconv.ParseUint(cols[2], 10, 64)
		used, err2 := strconv.ParseUint(cols[3], 10, 64)

		if err1 != nil || err2 != nil || total < minReportedDiskBytes {
			continue
		}

		disks = append(disks, models.DiskUsage{Mount: mount, Total: total, Used: used})
	}

	return disks
}

func reportedMount(mount string) bool {
	if mount == "/" || mount == "/home" {
		return true
	}

	for _, prefix := range []string{"/mnt", "/media", "/srv"} {
		if strings.HasPrefix(mount, prefix) {
			return true
		}
	}

	return false
}

func formatUptime(seconds float64) string {
	days := int(seconds) / 86400
	hours := (int(seconds) % 86400) / 3600

	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}

	return fmt.Sprintf("%dh", hours)
}

func clampPercent(v float64) float64 {
	if v > 100 {
		return 100
	}

	if v < 0 {
		return 0
	}

	return v
}
