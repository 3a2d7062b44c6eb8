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

package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/carverauto/fleetradar/pkg/models"
)

const defaultNtfyServer = "https://ntfy.sh"

// NtfyNotifier publishes events to an ntfy topic.
type NtfyNotifier struct {
	server string
	topic  string
	token  string
	client *http.Client
}

var _ Notifier = (*NtfyNotifier)(nil)

// NewNtfy creates an ntfy notifier from its channel config.
func NewNtfy(cfg models.NtfyConfig) *NtfyNotifier {
	server := strings.TrimRight(cfg.Server, "/")
	if server == "" {
		server = defaultNtfyServer
	}

	return &NtfyNotifier{
		server: server,
		topic:  cfg.Topic,
		token:  cfg.Token,
		client: newHTTPClient(),
	}
}

func (n *NtfyNotifier) Name() string {
	return "ntfy"
}

func (n *NtfyNotifier) Send(ctx context.Context, event Event) error {
	url := n.server + "/" + n.topic

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(event.Message))
	if err != nil {
		return err
	}

	req.Header.Set("Title", event.Title)
	req.Header.Set("Priority", ntfyPriority(event.Priority))

	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ntfy returned %s", resp.Status)
	}

	return nil
}

func ntfyPriority(p Priority) string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "default"
	}
}
