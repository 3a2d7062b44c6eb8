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

	"github.com/carverauto/fleetradar/pkg/docker"
	"github.com/carverauto/fleetradar/pkg/models"
)

// checkTransitions compares the freshly committed snapshot against the
// previous one and raises alerts for observed state changes. The first
// completed refresh establishes a baseline and never alerts.
func (c *Cache) checkTransitions(ctx context.Context, device *models.Device, prev, next *models.StatusSnapshot) {
	if c.alerter == nil || prev == nil || prev.CapturedAt.IsZero() {
		return
	}

	onlineAlerts := device.Alerts.Online == nil || *device.Alerts.Online

	if !device.IsLocal && onlineAlerts && prev.Online != next.Online {
		c.alerter.DeviceStateChanged(ctx, device.ID, device.Name, next.Online)
	}

	for name, state := range next.Containers {
		if prev.Containers[name] == docker.StateRunning && state != docker.StateRunning {
			c.alerter.ContainerStopped(ctx, device.ID, device.Name, name)
		}
	}

	if next.Online && next.Metrics != nil {
		c.checkThresholds(ctx, device, next.Metrics)
	}
}

func (c *Cache) checkThresholds(ctx context.Context, device *models.Device, m *models.Metrics) {
	cpuLimit := thresholdOrDefault(device.Alerts.CPU, models.DefaultCPUThreshold)
	if m.CPUPercent > cpuLimit {
		c.alerter.ResourceHigh(ctx, device.ID, device.Name, "cpu", m.CPUPercent, cpuLimit)
	}

	ramLimit := thresholdOrDefault(device.Alerts.RAM, models.DefaultRAMThreshold)
	if ram := m.RAMPercent(); ram > ramLimit {
		c.alerter.ResourceHigh(ctx, device.ID, device.Name, "ram", ram, ramLimit)
	}

	diskLimit := thresholdOrDefault(device.Alerts.Disk, models.DefaultDiskThreshold)

	for _, d := range m.Disks {
		if d.Total == 0 {
			continue
		}

		if used := float64(d.Used) / float64(d.Total) * 100; used > diskLimit {
			c.alerter.ResourceHigh(ctx, device.ID, device.Name, "disk "+d.Mount, used, diskLimit)
			break
		}
	}

	tempLimit := thresholdOrDefault(device.Alerts.TempC, models.DefaultTempThreshold)
	if m.TempC != nil && *m.TempC > tempLimit {
		c.alerter.ResourceHigh(ctx, device.ID, device.Name, "temperature", *m.TempC, tempLimit)
	}
}

func thresholdOrDefault(value, fallback float64) float64 {
	if value > 0 {
		return value
	}

	return fallback
}
