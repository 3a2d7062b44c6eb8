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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/fleetradar/pkg/logger"
	"github.com/carverauto/fleetradar/pkg/models"
)

type tickClock struct {
	ch chan time.Time
}

func (c *tickClock) Now() time.Time {
	return time.Now()
}

func (c *tickClock) Ticker(time.Duration) Ticker {
	return &chanTicker{ch: c.ch}
}

type chanTicker struct {
	ch chan time.Time
}

func (t *chanTicker) Chan() <-chan time.Time { return t.ch }
func (t *chanTicker) Stop()                  {}

type countingCollector struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingCollector) Collect(_ context.Context, device *models.Device) *models.StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[device.ID]++

	return &models.StatusSnapshot{DeviceID: device.ID, Online: true, CapturedAt: time.Now()}
}

func (c *countingCollector) count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.counts[id]
}

func TestPoller_RefreshesEveryDeviceOnTick(t *testing.T) {
	devices := &staticDevices{devices: map[string]*models.Device{
		"a": {ID: "a", Address: "192.168.1.1"},
		"b": {ID: "b", Address: "192.168.1.2"},
	}}
	collector := &countingCollector{counts: make(map[string]int)}
	cache := NewCache(devices, collector, nil, nil, logger.NewTestLogger())
	clock := &tickClock{ch: make(chan time.Time)}
	poller := NewPoller(cache, devices, time.Minute, clock, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan error, 1)

	go func() {
		started <- poller.Start(ctx)
	}()

	// The initial poll runs before the first tick.
	require.Eventually(t, func() bool {
		return collector.count("a") == 1 && collector.count("b") == 1
	}, time.Second, 5*time.Millisecond)

	clock.ch <- time.Now()

	require.Eventually(t, func() bool {
		return collector.count("a") == 2 && collector.count("b") == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, poller.Stop(context.Background()))
	assert.NoError(t, <-started)

	// Both snapshots are committed and readable.
	assert.True(t, cache.Get("a").Online)
	assert.True(t, cache.Get("b").Online)
}
