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

// Package status caches per-device reachability and resource snapshots
// and refreshes them asynchronously. Readers never block on writers.
package status

import (
	"context"
	"sync"

	"github.com/carverauto/fleetradar/pkg/logger"
	"github.com/carverauto/fleetradar/pkg/models"
)

// flight is the in-flight marker for one device refresh. All callers
// that arrive while it is open receive the same resulting snapshot.
type flight struct {
	done chan struct{}
	snap *models.StatusSnapshot
}

// Cache holds the last committed snapshot per device. Snapshots are
// replaced atomically and never visible half-written.
type Cache struct {
	devices   DeviceSource
	collector Collector
	alerter   Alerter
	clock     Clock
	logger    logger.Logger

	mu        sync.RWMutex
	snapshots map[string]*models.StatusSnapshot
	inflight  map[string]*flight
}

// NewCache creates a status cache. alerter may be nil when no
// notification channels are configured.
func NewCache(devices DeviceSource, collector Collector, alerter Alerter, clock Clock, log logger.Logger) *Cache {
	if clock == nil {
		clock = realClock{}
	}

	return &Cache{
		devices:   devices,
		collector: collector,
		alerter:   alerter,
		clock:     clock,
		logger:    log,
		snapshots: make(map[string]*models.StatusSnapshot),
		inflight:  make(map[string]*flight),
	}
}

// Refresh collects a fresh snapshot for the device and commits it.
// Concurrent calls for the same device coalesce into one collection;
// every caller observes the identical result. Collection failures
// commit an offline snapshot, they are never returned as errors.
func (c *Cache) Refresh(ctx context.Context, deviceID string) (*models.StatusSnapshot, error) {
	device, err := c.devices.GetDevice(deviceID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()

	if f, ok := c.inflight[deviceID]; ok {
		c.mu.Unlock()

		select {
		case <-f.done:
			return f.snap.Clone(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f := &flight{done: make(chan struct{})}
	c.inflight[deviceID] = f
	c.mu.Unlock()

	// Blocking I/O happens outside any lock.
	snap := c.collector.Collect(ctx, device)
	snap.DeviceID = deviceID

	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = c.clock.Now()
	}

	c.commit(ctx, device, f, snap)

	return snap.Clone(), nil
}

// commit atomically replaces the device snapshot, releases the
// in-flight marker, and wakes coalesced waiters.
func (c *Cache) commit(ctx context.Context, device *models.Device, f *flight, snap *models.StatusSnapshot) {
	c.mu.Lock()
	prev := c.snapshots[device.ID]
	c.snapshots[device.ID] = snap
	delete(c.inflight, device.ID)
	c.mu.Unlock()

	f.snap = snap
	close(f.done)

	c.checkTransitions(ctx, device, prev, snap)
}

// Get returns the last committed snapshot without blocking. A device
// that has never completed a refresh gets the default offline
// snapshot. Loading reports whether a refresh is in flight right now.
func (c *Cache) Get(deviceID string) *models.StatusSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, loading := c.inflight[deviceID]

	snap, ok := c.snapshots[deviceID]
	if !ok {
		return &models.StatusSnapshot{DeviceID: deviceID, Loading: loading}
	}

	out := snap.Clone()
	out.Loading = loading

	return out
}

// GetAll returns the current snapshot for every known device.
func (c *Cache) GetAll() map[string]*models.StatusSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]*models.StatusSnapshot, len(c.snapshots))

	for id, snap := range c.snapshots {
		s := snap.Clone()
		_, s.Loading = c.inflight[id]
		out[id] = s
	}

	return out
}

// InitDevice materializes the default offline snapshot for a newly
// registered device.
func (c *Cache) InitDevice(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.snapshots[deviceID]; !ok {
		c.snapshots[deviceID] = &models.StatusSnapshot{DeviceID: deviceID}
	}
}

// RemoveDevice discards the snapshot of a removed device.
func (c *Cache) RemoveDevice(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.snapshots, deviceID)
}
