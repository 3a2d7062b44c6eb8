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

package scheduler

import (
	"sync"

	"github.com/carverauto/fleetradar/pkg/models"
)

// DefaultHistorySize is the per-job run record retention.
const DefaultHistorySize = 50

// History keeps a bounded in-memory run log per job. Oldest records
// fall off once the per-job capacity is reached.
type History struct {
	mu      sync.Mutex
	size    int
	records map[string][]*models.RunRecord
}

// NewHistory creates a run log retaining up to size records per job.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}

	return &History{
		size:    size,
		records: make(map[string][]*models.RunRecord),
	}
}

// Append stores a completed run record.
func (h *History) Append(record *models.RunRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	records := append(h.records[record.JobID], record)
	if len(records) > h.size {
		records = records[len(records)-h.size:]
	}

	h.records[record.JobID] = records
}

// List returns the job's run records, newest first.
func (h *History) List(jobID string) []*models.RunRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	records := h.records[jobID]
	out := make([]*models.RunRecord, 0, len(records))

	for i := len(records) - 1; i >= 0; i-- {
		r := *records[i]
		out = append(out, &r)
	}

	return out
}

// Forget drops a removed job's records.
func (h *History) Forget(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.records, jobID)
}
