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

import (
	"fmt"
	"net"
	"regexp"
	"time"
)

// Device represents one managed host, local or remote. Identity is the
// ID; address and credentials may change without changing identity.
type Device struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Address    string          `json:"address"`
	IsLocal    bool            `json:"is_local,omitempty"`
	SSH        *SSHConfig      `json:"ssh,omitempty"`
	WOL        *WOLConfig      `json:"wol,omitempty"`
	Containers []string        `json:"containers,omitempty"`
	Alerts     AlertThresholds `json:"alerts,omitempty"`
}

// SSHConfig references the credentials used to reach a remote device.
// Key material stays on disk; only the path is stored here.
type SSHConfig struct {
	User     string `json:"user"`
	Port     int    `json:"port,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
	Password string `json:"password,omitempty"`
}

// WOLConfig holds the Wake-on-LAN target for a device.
type WOLConfig struct {
	MAC       string `json:"mac"`
	Broadcast string `json:"broadcast,omitempty"`
}

// AlertThresholds are per-device resource alert limits in percent
// (temperature in degrees C). Zero values fall back to the defaults.
type AlertThresholds struct {
	Online *bool   `json:"online,omitempty"`
	CPU    float64 `json:"cpu,omitempty"`
	RAM    float64 `json:"ram,omitempty"`
	Disk   float64 `json:"disk,omitempty"`
	TempC  float64 `json:"cpu_temp,omitempty"`
}

// LocalDeviceID is the stable identity of the control host.
const LocalDeviceID = "local"

const (
	DefaultSSHPort = 22

	DefaultCPUThreshold  = 90
	DefaultRAMThreshold  = 90
	DefaultDiskThreshold = 90
	DefaultTempThreshold = 80
)

var containerNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// IsValidContainerName reports whether name is a well-formed docker
// container name. Anything else is rejected before it reaches a shell.
func IsValidContainerName(name string) bool {
	return name != "" && len(name) <= 128 && containerNameRe.MatchString(name)
}

// SSHPort returns the configured SSH port or the default.
func (d *Device) SSHPort() int {
	if d.SSH != nil && d.SSH.Port > 0 {
		return d.SSH.Port
	}

	return DefaultSSHPort
}

// HasSSH reports whether the device has remote access configured.
func (d *Device) HasSSH() bool {
	return d.SSH != nil && d.SSH.User != ""
}

// Validate rejects malformed device definitions with ErrConfigInvalid.
func (d *Device) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: device id is required", ErrConfigInvalid)
	}

	if d.Name == "" {
		return fmt.Errorf("%w: device name is required", ErrConfigInvalid)
	}

	if !d.IsLocal {
		if d.Address == "" {
			return fmt.Errorf("%w: remote device %q needs an address", ErrConfigInvalid, d.ID)
		}

		if net.ParseIP(d.Address) == nil {
			// Allow hostnames, but not strings that would break a
			// command line.
			if len(d.Address) > 253 || !hostnameRe.MatchString(d.Address) {
				return fmt.Errorf("%w: invalid address %q", ErrConfigInvalid, d.Address)
			}
		}
	}

	if d.SSH != nil && d.SSH.Port != 0 && (d.SSH.Port < 1 || d.SSH.Port > 65535) {
		return fmt.Errorf("%w: invalid ssh port %d", ErrConfigInvalid, d.SSH.Port)
	}

	for _, name := range d.Containers {
		if !IsValidContainerName(name) {
			return fmt.Errorf("%w: invalid container name %q", ErrConfigInvalid, name)
		}
	}

	if d.WOL != nil {
		if _, err := net.ParseMAC(d.WOL.MAC); err != nil {
			return fmt.Errorf("%w: invalid wol mac %q", ErrConfigInvalid, d.WOL.MAC)
		}
	}

	return nil
}

var hostnameRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?$`)

// Clone returns a deep copy of the device.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	out := *d
	out.Containers = append([]string(nil), d.Containers...)

	if d.SSH != nil {
		ssh := *d.SSH
		out.SSH = &ssh
	}

	if d.WOL != nil {
		wol := *d.WOL
		out.WOL = &wol
	}

	if d.Alerts.Online != nil {
		online := *d.Alerts.Online
		out.Alerts.Online = &online
	}

	return &out
}

// StatusSnapshot is the last committed status record for one device.
// Exactly one snapshot exists per device; it is replaced atomically.
type StatusSnapshot struct {
	DeviceID   string            `json:"device_id"`
	Online     bool              `json:"online"`
	Loading    bool              `json:"loading"`
	Metrics    *Metrics          `json:"metrics,omitempty"`
	Containers map[string]string `json:"containers,omitempty"`
	CapturedAt time.Time         `json:"captured_at"`
}

// Metrics holds one sample of device resource usage.
type Metrics struct {
	CPUPercent float64     `json:"cpu_percent"`
	RAMUsed    uint64      `json:"ram_used"`
	RAMTotal   uint64      `json:"ram_total"`
	TempC      *float64    `json:"temp_c,omitempty"`
	Disks      []DiskUsage `json:"disks,omitempty"`
	Uptime     string      `json:"uptime,omitempty"`
}

// DiskUsage is usage for one mounted filesystem.
type DiskUsage struct {
	Mount string `json:"mount"`
	Total uint64 `json:"total"`
	Used  uint64 `json:"used"`
}

// RAMPercent returns memory usage as a percentage, 0 when total is unknown.
func (m *Metrics) RAMPercent() float64 {
	if m.RAMTotal == 0 {
		return 0
	}

	return float64(m.RAMUsed) / float64(m.RAMTotal) * 100
}

// Clone returns a deep copy so readers never share mutable state with
// the cache.
func (s *StatusSnapshot) Clone() *StatusSnapshot {
	if s == nil {
		return nil
	}

	out := *s

	if s.Metrics != nil {
		m := *s.Metrics
		m.Disks = append([]DiskUsage(nil), s.Metrics.Disks...)

		if s.Metrics.TempC != nil {
			t := *s.Metrics.TempC
			m.TempC = &t
		}

		out.Metrics = &m
	}

	if s.Containers != nil {
		out.Containers = make(map[string]string, len(s.Containers))
		for k, v := range s.Containers {
			out.Containers[k] = v
		}
	}

	return &out
}
