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

package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/carverauto/fleetradar/pkg/models"
)

// fileData is the on-disk shape of the registry.
type fileData struct {
	Devices       []*models.Device          `json:"devices"`
	Jobs          []*models.Job             `json:"jobs"`
	Notifications models.NotificationConfig `json:"notifications"`
}

func (r *Registry) decode(data []byte) error {
	var fd fileData

	if err := json.Unmarshal(data, &fd); err != nil {
		return fmt.Errorf("%w: parsing registry file: %v", models.ErrConfigInvalid, err)
	}

	for _, d := range fd.Devices {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("device %s: %w", d.ID, err)
		}
	}

	for _, j := range fd.Jobs {
		if err := j.Validate(); err != nil {
			return fmt.Errorf("job %s: %w", j.ID, err)
		}
	}

	r.devices = fd.Devices
	r.jobs = fd.Jobs
	r.notifications = fd.Notifications

	return nil
}

// save writes the registry atomically: temp file in the same directory,
// then rename over the old file. Callers hold the write lock.
func (r *Registry) save() error {
	fd := fileData{
		Devices:       r.devices,
		Jobs:          r.jobs,
		Notifications: r.notifications,
	}

	data, err := json.MarshalIndent(fd, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	dir := filepath.Dir(r.path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".registry-*.json")
	if err != nil {
		return fmt.Errorf("creating temp registry file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("writing registry: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing registry file: %w", err)
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replacing registry file: %w", err)
	}

	return nil
}
