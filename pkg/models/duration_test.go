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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshal(t *testing.T) {
	var cfg struct {
		Every Duration `json:"every"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"every": "5m"}`), &cfg))
	assert.Equal(t, 5*time.Minute, cfg.Every.Duration())

	require.NoError(t, json.Unmarshal([]byte(`{"every": 30000000000}`), &cfg))
	assert.Equal(t, 30*time.Second, cfg.Every.Duration())

	require.Error(t, json.Unmarshal([]byte(`{"every": "fast"}`), &cfg))
	require.Error(t, json.Unmarshal([]byte(`{"every": true}`), &cfg))
}

func TestDurationMarshal(t *testing.T) {
	out, err := json.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))
}
