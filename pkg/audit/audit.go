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

// Package audit records structured events for mutating actions and job
// outcomes.
package audit

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// SystemActor marks entries produced by the scheduler and poll loops
// rather than an external caller.
const SystemActor = "system"

// Entry is one audit event.
type Entry struct {
	Action    string
	Target    string
	Outcome   string
	Actor     string
	Timestamp time.Time
}

// Sink receives audit entries. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(ctx context.Context, entry Entry)
}

// LogSink appends audit entries as JSON lines. zerolog serializes
// writers internally, so Record is safe from any goroutine.
type LogSink struct {
	logger zerolog.Logger
	file   *os.File
}

var _ Sink = (*LogSink)(nil)

// NewFileSink opens (or creates) an append-only audit log file.
func NewFileSink(path string) (*LogSink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}

	return &LogSink{
		logger: zerolog.New(file).With().Timestamp().Logger(),
		file:   file,
	}, nil
}

// NewSink wraps an arbitrary zerolog logger, used when no dedicated
// audit file is configured.
func NewSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record implements Sink.
func (s *LogSink) Record(_ context.Context, entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	s.logger.Info().
		Str("action", entry.Action).
		Str("target", entry.Target).
		Str("outcome", entry.Outcome).
		Str("actor", entry.Actor).
		Time("at", entry.Timestamp).
		Msg("audit")
}

// Close releases the audit file, if any.
func (s *LogSink) Close() error {
	if s.file == nil {
		return nil
	}

	return s.file.Close()
}

// NopSink discards every entry, for tests.
type NopSink struct{}

func (NopSink) Record(context.Context, Entry) {}
