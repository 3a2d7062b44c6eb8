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

// NotificationConfig selects which alert channels are active and which
// event kinds they receive.
type NotificationConfig struct {
	Enabled bool           `json:"enabled"`
	Ntfy    NtfyConfig     `json:"ntfy,omitempty"`
	Discord WebhookConfig  `json:"discord,omitempty"`
	Slack   WebhookConfig  `json:"slack,omitempty"`
	Webhook WebhookConfig  `json:"webhook,omitempty"`
	Alerts  AlertSelection `json:"alerts,omitempty"`
}

// NtfyConfig targets an ntfy server topic.
type NtfyConfig struct {
	Enabled bool   `json:"enabled"`
	Server  string `json:"server,omitempty"`
	Topic   string `json:"topic,omitempty"`
	Token   string `json:"token,omitempty"`
}

// WebhookConfig targets a generic JSON webhook (Discord and Slack use
// their own payload shapes over the same config).
type WebhookConfig struct {
	Enabled bool              `json:"enabled"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// AlertSelection toggles notification kinds. The zero value enables
// failure-class alerts and disables job success notices.
type AlertSelection struct {
	DeviceOffline    *bool `json:"device_offline,omitempty"`
	ContainerStopped *bool `json:"container_stopped,omitempty"`
	ResourceUsage    *bool `json:"resource_usage,omitempty"`
	JobFailure       *bool `json:"job_failure,omitempty"`
	JobSuccess       *bool `json:"job_success,omitempty"`
}

func enabledByDefault(flag *bool) bool {
	return flag == nil || *flag
}

func (a AlertSelection) DeviceOfflineEnabled() bool    { return enabledByDefault(a.DeviceOffline) }
func (a AlertSelection) ContainerStoppedEnabled() bool { return enabledByDefault(a.ContainerStopped) }
func (a AlertSelection) ResourceUsageEnabled() bool    { return enabledByDefault(a.ResourceUsage) }
func (a AlertSelection) JobFailureEnabled() bool       { return enabledByDefault(a.JobFailure) }
func (a AlertSelection) JobSuccessEnabled() bool       { return a.JobSuccess != nil && *a.JobSuccess }
