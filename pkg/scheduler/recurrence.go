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
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/carverauto/fleetradar/pkg/models"
)

// weeklyScanDays bounds the day scan for weekly schedules. Any valid
// day list resolves within one week; the extra day covers a fire time
// earlier today.
const weeklyScanDays = 8

// NextRun computes the first fire time strictly after from. Interval
// schedules are anchored on from, so drift from a slow run carries
// forward instead of bunching catch-up fires.
func NextRun(schedule *models.Schedule, from time.Time) (time.Time, error) {
	switch schedule.Kind {
	case models.ScheduleInterval:
		return from.Add(schedule.Every.Duration()), nil
	case models.ScheduleDaily:
		hour, minute, err := models.ParseTimeOfDay(schedule.Time)
		if err != nil {
			return time.Time{}, err
		}

		next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}

		return next, nil
	case models.ScheduleWeekly:
		hour, minute, err := models.ParseTimeOfDay(schedule.Time)
		if err != nil {
			return time.Time{}, err
		}

		days := make(map[time.Weekday]bool, len(schedule.Days))

		for _, name := range schedule.Days {
			day, ok := models.ParseWeekday(name)
			if !ok {
				return time.Time{}, fmt.Errorf("%w: unknown weekday %q", models.ErrConfigInvalid, name)
			}

			days[day] = true
		}

		for offset := 0; offset < weeklyScanDays; offset++ {
			candidate := time.Date(from.Year(), from.Month(), from.Day()+offset,
				hour, minute, 0, 0, from.Location())

			if days[candidate.Weekday()] && candidate.After(from) {
				return candidate, nil
			}
		}

		return time.Time{}, fmt.Errorf("%w: weekly schedule never fires", models.ErrConfigInvalid)
	case models.ScheduleCron:
		spec, err := cron.ParseStandard(schedule.Expr)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: bad cron expression %q: %v", models.ErrConfigInvalid, schedule.Expr, err)
		}

		return spec.Next(from), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown schedule kind %q", models.ErrConfigInvalid, schedule.Kind)
	}
}
