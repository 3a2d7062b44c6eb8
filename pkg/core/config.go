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

package core

import (
	"fmt"
	"time"

	"github.com/carverauto/fleetradar/pkg/logger"
	"github.com/carverauto/fleetradar/pkg/models"
	"github.com/carverauto/fleetradar/pkg/scheduler"
)

const (
	defaultPollInterval = 30 * time.Second
	minPollInterval     = 5 * time.Second
)

// Config is the controller's service configuration.
type Config struct {
	RegistryPath string          `json:"registry_path"`
	AuditLog     string          `json:"audit_log,omitempty"`
	PollInterval models.Duration `json:"poll_interval,omitempty"`
	TickInterval models.Duration `json:"tick_interval,omitempty"`
	HistorySize  int             `json:"history_size,omitempty"`
	Logging      *logger.Config  `json:"logging,omitempty"`
}

// Validate implements config.Validator and fills defaults.
func (c *Config) Validate() error {
	if c.RegistryPath == "" {
		return fmt.Errorf("%w: registry_path is required", models.ErrConfigInvalid)
	}

	if c.PollInterval.Duration() == 0 {
		c.PollInterval = models.Duration(defaultPollInterval)
	}

	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("%w: poll_interval below %s", models.ErrConfigInvalid, minPollInterval)
	}

	if c.TickInterval.Duration() == 0 {
		c.TickInterval = models.Duration(scheduler.DefaultTickInterval)
	}

	if c.TickInterval.Duration() < 0 {
		return fmt.Errorf("%w: tick_interval must be positive", models.ErrConfigInvalid)
	}

	if c.HistorySize < 0 {
		return fmt.Errorf("%w: history_size must be positive", models.ErrConfigInvalid)
	}

	if c.HistorySize == 0 {
		c.HistorySize = scheduler.DefaultHistorySize
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}

	return nil
}
