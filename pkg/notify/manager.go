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

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/carverauto/fleetradar/pkg/logger"
	"github.com/carverauto/fleetradar/pkg/models"
)

// Manager fans one alert out to every enabled channel, filtered by the
// per-kind alert selection. A disabled manager swallows everything.
type Manager struct {
	config    models.NotificationConfig
	notifiers []Notifier
	logger    logger.Logger
}

// NewManager builds the channel set from configuration.
func NewManager(cfg models.NotificationConfig, log logger.Logger) *Manager {
	m := &Manager{
		config: cfg,
		logger: log,
	}

	if !cfg.Enabled {
		return m
	}

	if cfg.Ntfy.Enabled && cfg.Ntfy.Topic != "" {
		m.notifiers = append(m.notifiers, NewNtfy(cfg.Ntfy))
	}

	if cfg.Discord.Enabled && cfg.Discord.URL != "" {
		m.notifiers = append(m.notifiers, NewWebhook(StyleDiscord, cfg.Discord))
	}

	if cfg.Slack.Enabled && cfg.Slack.URL != "" {
		m.notifiers = append(m.notifiers, NewWebhook(StyleSlack, cfg.Slack))
	}

	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		m.notifiers = append(m.notifiers, NewWebhook(StyleGeneric, cfg.Webhook))
	}

	return m
}

// DeviceStateChanged implements the status cache's Alerter.
func (m *Manager) DeviceStateChanged(ctx context.Context, deviceID, deviceName string, online bool) {
	if !m.config.Alerts.DeviceOfflineEnabled() {
		return
	}

	if online {
		m.send(ctx, Event{
			Kind:     KindDeviceOnline,
			Title:    "Device online",
			Message:  fmt.Sprintf("%s (%s) is back online", deviceName, deviceID),
			Priority: PriorityDefault,
		})

		return
	}

	m.send(ctx, Event{
		Kind:     KindDeviceOffline,
		Title:    "Device offline",
		Message:  fmt.Sprintf("%s (%s) stopped responding", deviceName, deviceID),
		Priority: PriorityHigh,
	})
}

// ContainerStopped implements the status cache's Alerter.
func (m *Manager) ContainerStopped(ctx context.Context, deviceID, deviceName, container string) {
	if !m.config.Alerts.ContainerStoppedEnabled() {
		return
	}

	m.send(ctx, Event{
		Kind:     KindContainerStopped,
		Title:    "Container stopped",
		Message:  fmt.Sprintf("%s on %s (%s) is no longer running", container, deviceName, deviceID),
		Priority: PriorityHigh,
	})
}

// ResourceHigh implements the status cache's Alerter.
func (m *Manager) ResourceHigh(ctx context.Context, deviceID, deviceName, resource string, value, threshold float64) {
	if !m.config.Alerts.ResourceUsageEnabled() {
		return
	}

	m.send(ctx, Event{
		Kind:  KindResourceUsage,
		Title: "High " + resource,
		Message: fmt.Sprintf("%s (%s): %s at %.0f%% exceeds threshold %.0f%%",
			deviceName, deviceID, resource, value, threshold),
		Priority: PriorityDefault,
	})
}

// JobFinished reports a job outcome when the matching alert kind is on.
func (m *Manager) JobFinished(ctx context.Context, jobName string, record *models.RunRecord) {
	switch record.Outcome {
	case models.OutcomeFailure:
		if !m.config.Alerts.JobFailureEnabled() {
			return
		}

		m.send(ctx, Event{
			Kind:     KindJobFailure,
			Title:    "Job failed",
			Message:  fmt.Sprintf("%s failed: %s", jobName, record.Error),
			Priority: PriorityHigh,
		})
	case models.OutcomeSuccess:
		if !m.config.Alerts.JobSuccessEnabled() {
			return
		}

		m.send(ctx, Event{
			Kind:     KindJobSuccess,
			Title:    "Job completed",
			Message:  fmt.Sprintf("%s completed successfully", jobName),
			Priority: PriorityLow,
		})
	case models.OutcomeSkipped:
		// Skips are routine, never notified.
	}
}

func (m *Manager) send(ctx context.Context, event Event) {
	if len(m.notifiers) == 0 {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, n := range m.notifiers {
		if err := n.Send(ctx, event); err != nil {
			m.logger.Warn().
				Err(err).
				Str("channel", n.Name()).
				Str("kind", string(event.Kind)).
				Msg("Notification delivery failed")
		}
	}
}
