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

	"github.com/carverauto/fleetradar/pkg/models"
)

// DeviceSource provides the devices to poll. Implemented by the host
// registry.
type DeviceSource interface {
	ListDevices() []*models.Device
	GetDevice(id string) (*models.Device, error)
}

// Collector gathers one status snapshot for a device. It never fails:
// an unreachable device yields an offline snapshot.
type Collector interface {
	Collect(ctx context.Context, device *models.Device) *models.StatusSnapshot
}

// Alerter receives state-change events observed on snapshot commit.
type Alerter interface {
	DeviceStateChanged(ctx context.Context, deviceID, deviceName string, online bool)
	ContainerStopped(ctx context.Context, deviceID, deviceName, container string)
	ResourceHigh(ctx context.Context, deviceID, deviceName, resource string, value, threshold float64)
}
