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

// Package notify dispatches alert events to configured channels.
package notify

import (
	"context"
	"net/http"
	"time"
)

// Kind classifies an alert event.
type Kind string

const (
	KindDeviceOffline    Kind = "device_offline"
	KindDeviceOnline     Kind = "device_online"
	KindContainerStopped Kind = "container_stopped"
	KindResourceUsage    Kind = "resource_usage"
	KindJobFailure       Kind = "job_failure"
	KindJobSuccess       Kind = "job_success"
)

// Priority maps to channel-specific urgency hints.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityDefault
	PriorityHigh
)

// Event is one alert to deliver.
type Event struct {
	Kind      Kind
	Title     string
	Message   string
	Priority  Priority
	Timestamp time.Time
}

// Notifier delivers one event over one channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

const sendTimeout = 10 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: sendTimeout}
}
