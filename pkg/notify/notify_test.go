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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/fleetradar/pkg/logger"
	"github.com/carverauto/fleetradar/pkg/models"
)

func TestNtfySend(t *testing.T) {
	var (
		gotPath     string
		gotTitle    string
		gotPriority string
		gotAuth     string
		gotBody     string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTitle = r.Header.Get("Title")
		gotPriority = r.Header.Get("Priority")
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNtfy(models.NtfyConfig{
		Enabled: true,
		Server:  server.URL,
		Topic:   "homelab",
		Token:   "tk_secret",
	})

	err := n.Send(context.Background(), Event{
		Kind:     KindDeviceOffline,
		Title:    "Device offline",
		Message:  "nas stopped responding",
		Priority: PriorityHigh,
	})
	require.NoError(t, err)

	assert.Equal(t, "/homelab", gotPath)
	assert.Equal(t, "Device offline", gotTitle)
	assert.Equal(t, "high", gotPriority)
	assert.Equal(t, "Bearer tk_secret", gotAuth)
	assert.Equal(t, "nas stopped responding", gotBody)
}

func TestNtfySend_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	n := NewNtfy(models.NtfyConfig{Server: server.URL, Topic: "homelab"})

	err := n.Send(context.Background(), Event{Title: "t", Message: "m"})
	require.Error(t, err)
}

func TestWebhookPayloadShapes(t *testing.T) {
	tests := []struct {
		style   WebhookStyle
		wantKey string
	}{
		{StyleDiscord, "content"},
		{StyleSlack, "text"},
	}

	for _, tt := range tests {
		t.Run(string(tt.style), func(t *testing.T) {
			var got map[string]string

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(http.StatusNoContent)
			}))
			defer server.Close()

			n := NewWebhook(tt.style, models.WebhookConfig{URL: server.URL})

			err := n.Send(context.Background(), Event{Title: "Job failed", Message: "backup failed"})
			require.NoError(t, err)

			assert.Contains(t, got[tt.wantKey], "Job failed")
			assert.Contains(t, got[tt.wantKey], "backup failed")
		})
	}
}

func TestWebhookGenericPayloadAndHeaders(t *testing.T) {
	var (
		got       map[string]interface{}
		gotHeader string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhook(StyleGeneric, models.WebhookConfig{
		URL:     server.URL,
		Headers: map[string]string{"X-Api-Key": "abc123"},
	})

	err := n.Send(context.Background(), Event{
		Kind:    KindResourceUsage,
		Title:   "High cpu",
		Message: "nas: cpu at 95%",
	})
	require.NoError(t, err)

	assert.Equal(t, "abc123", gotHeader)
	assert.Equal(t, "resource_usage", got["kind"])
	assert.Equal(t, "High cpu", got["title"])
	assert.NotEmpty(t, got["timestamp"])
}

func newCountingServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()

	count := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		count++
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	return server, &count
}

func enabledConfig(serverURL string) models.NotificationConfig {
	return models.NotificationConfig{
		Enabled: true,
		Ntfy:    models.NtfyConfig{Enabled: true, Server: serverURL, Topic: "homelab"},
	}
}

func TestManager_DisabledSendsNothing(t *testing.T) {
	server, count := newCountingServer(t)

	cfg := enabledConfig(server.URL)
	cfg.Enabled = false

	m := NewManager(cfg, logger.NewTestLogger())
	m.DeviceStateChanged(context.Background(), "nas", "nas", false)

	assert.Zero(t, *count)
}

func TestManager_DeviceTransitionDelivered(t *testing.T) {
	server, count := newCountingServer(t)
	m := NewManager(enabledConfig(server.URL), logger.NewTestLogger())

	m.DeviceStateChanged(context.Background(), "nas", "nas", false)
	m.DeviceStateChanged(context.Background(), "nas", "nas", true)

	assert.Equal(t, 2, *count)
}

func TestManager_AlertSelectionFilters(t *testing.T) {
	server, count := newCountingServer(t)

	off := false
	cfg := enabledConfig(server.URL)
	cfg.Alerts.DeviceOffline = &off

	m := NewManager(cfg, logger.NewTestLogger())
	m.DeviceStateChanged(context.Background(), "nas", "nas", false)

	assert.Zero(t, *count)
}

func TestManager_JobOutcomes(t *testing.T) {
	server, count := newCountingServer(t)
	m := NewManager(enabledConfig(server.URL), logger.NewTestLogger())

	// Failures notify by default.
	m.JobFinished(context.Background(), "backup", &models.RunRecord{
		Outcome: models.OutcomeFailure,
		Error:   "rsync exit 12",
	})
	assert.Equal(t, 1, *count)

	// Successes are opt-in and off by default.
	m.JobFinished(context.Background(), "backup", &models.RunRecord{Outcome: models.OutcomeSuccess})
	assert.Equal(t, 1, *count)

	// Skips never notify.
	m.JobFinished(context.Background(), "backup", &models.RunRecord{Outcome: models.OutcomeSkipped})
	assert.Equal(t, 1, *count)

	on := true
	cfg := enabledConfig(server.URL)
	cfg.Alerts.JobSuccess = &on

	m = NewManager(cfg, logger.NewTestLogger())
	m.JobFinished(context.Background(), "backup", &models.RunRecord{Outcome: models.OutcomeSuccess})
	assert.Equal(t, 2, *count)
}
