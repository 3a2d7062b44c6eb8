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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/carverauto/fleetradar/pkg/models"
)

// WebhookStyle selects the payload shape for a webhook channel.
type WebhookStyle string

const (
	StyleDiscord WebhookStyle = "discord"
	StyleSlack   WebhookStyle = "slack"
	StyleGeneric WebhookStyle = "generic"
)

// WebhookNotifier POSTs events as JSON. Discord and Slack use their
// expected payload shapes; generic webhooks get the full event.
type WebhookNotifier struct {
	style   WebhookStyle
	url     string
	headers map[string]string
	client  *http.Client
}

var _ Notifier = (*WebhookNotifier)(nil)

// NewWebhook creates a webhook notifier from its channel config.
func NewWebhook(style WebhookStyle, cfg models.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		style:   style,
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  newHTTPClient(),
	}
}

func (w *WebhookNotifier) Name() string {
	return string(w.style)
}

func (w *WebhookNotifier) Send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(w.payload(event))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range w.headers {
		req.Header.Set(key, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s webhook returned %s", w.style, resp.Status)
	}

	return nil
}

func (w *WebhookNotifier) payload(event Event) interface{} {
	text := event.Title + "\n" + event.Message

	switch w.style {
	case StyleDiscord:
		return map[string]string{"content": text}
	case StyleSlack:
		return map[string]string{"text": text}
	default:
		return map[string]interface{}{
			"kind":      string(event.Kind),
			"title":     event.Title,
			"message":   event.Message,
			"timestamp": event.Timestamp.Format(time.RFC3339),
		}
	}
}
