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
	"time"

	"github.com/carverauto/fleetradar/pkg/logger"
)

const defaultPollInterval = 30 * time.Second

// Poller drives the status cache on a fixed cadence, fanning out one
// refresh per device. Refreshes across devices run concurrently; the
// cache serializes refreshes of the same device.
type Poller struct {
	cache    *Cache
	devices  DeviceSource
	interval time.Duration
	clock    Clock
	ticker   Ticker
	logger   logger.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPoller creates a poller. A nil clock defaults to the real clock.
func NewPoller(cache *Cache, devices DeviceSource, interval time.Duration, clock Clock, log logger.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	if clock == nil {
		clock = realClock{}
	}

	return &Poller{
		cache:    cache,
		devices:  devices,
		interval: interval,
		clock:    clock,
		logger:   log,
		done:     make(chan struct{}),
	}
}

// Start implements the lifecycle.Service interface. It blocks until
// Stop is called or ctx is canceled.
func (p *Poller) Start(ctx context.Context) error {
	p.ticker = p.clock.Ticker(p.interval)
	defer p.ticker.Stop()

	p.logger.Info().Dur("interval", p.interval).Msg("Starting status poller")

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil
		case <-p.ticker.Chan():
			p.poll(ctx)
		}
	}
}

// poll fans out one refresh per device and returns without waiting;
// a slow device cannot delay the next tick for the others.
func (p *Poller) poll(ctx context.Context) {
	for _, device := range p.devices.ListDevices() {
		deviceID := device.ID

		p.wg.Add(1)

		go func() {
			defer p.wg.Done()

			if _, err := p.cache.Refresh(ctx, deviceID); err != nil {
				// Only a concurrently removed device can fail here.
				p.logger.Debug().Err(err).Str("device_id", deviceID).Msg("Refresh dropped")
			}
		}()
	}
}

// Stop implements the lifecycle.Service interface. It drains in-flight
// refreshes before returning.
func (p *Poller) Stop(_ context.Context) error {
	p.closeOnce.Do(func() {
		close(p.done)
	})

	p.wg.Wait()

	p.logger.Info().Msg("Status poller stopped")

	return nil
}
