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

// Package wol sends Wake-on-LAN magic packets.
package wol

import (
	"fmt"
	"net"

	"github.com/carverauto/fleetradar/pkg/models"
)

const (
	DefaultBroadcast = "255.255.255.255"

	wolPort     = 9
	macRepeats  = 16
	macLength   = 6
	headerBytes = 6
)

// MagicPacket builds the 102-byte wake frame for the given MAC:
// six 0xFF bytes followed by the MAC repeated sixteen times.
func MagicPacket(mac string) ([]byte, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid mac %q", models.ErrConfigInvalid, mac)
	}

	if len(hw) != macLength {
		return nil, fmt.Errorf("%w: mac %q is not 48-bit", models.ErrConfigInvalid, mac)
	}

	packet := make([]byte, 0, headerBytes+macRepeats*macLength)

	for i := 0; i < headerBytes; i++ {
		packet = append(packet, 0xff)
	}

	for i := 0; i < macRepeats; i++ {
		packet = append(packet, hw...)
	}

	return packet, nil
}

// Wake broadcasts a magic packet for the MAC. An empty broadcast
// address falls back to the limited broadcast.
func Wake(mac, broadcast string) error {
	packet, err := MagicPacket(mac)
	if err != nil {
		return err
	}

	if broadcast == "" {
		broadcast = DefaultBroadcast
	}

	addr := net.JoinHostPort(broadcast, fmt.Sprintf("%d", wolPort))

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrUnreachable, err)
	}
	defer conn.Close()

	if _, err := conn.Write(packet); err != nil {
		return fmt.Errorf("%w: %v", models.ErrUnreachable, err)
	}

	return nil
}
