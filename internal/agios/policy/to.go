// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package policy

import (
	"time"

	"github.com/esalvarez/agios/internal/agios/dispatch"
)

// TO dispatches requests from the shared timeline strictly in arrival
// order, with no aggregation: the simplest fair baseline.
//
// Grounded on TO.c's timeorder(), which loops timeline_oldest_req followed
// by a dispatch until the timeline is empty.
type TO struct{}

func (TO) Descriptor() Descriptor {
	return Descriptor{Name: "TO", NeedsTimeline: true, MaxAggregation: 1}
}

func (TO) Schedule(rt *Runtime) time.Duration {
	return scheduleTimelineFIFO(rt)
}

// SW dispatches requests from the shared timeline, which is kept ordered by
// SWPriority (rather than plain arrival order) by the timeline package's
// PushMainBySWPriority, so SW only needs to repeat TO's oldest-first drain.
//
// Grounded on SW.c, which delegates directly to timeorder() once its window
// priority has reordered the timeline on insertion.
type SW struct{}

func (SW) Descriptor() Descriptor {
	return Descriptor{Name: "SW", NeedsTimeline: true, MaxAggregation: 1}
}

func (SW) Schedule(rt *Runtime) time.Duration {
	return scheduleTimelineFIFO(rt)
}

func scheduleTimelineFIFO(rt *Runtime) time.Duration {
	now := rt.now()
	var batch []dispatch.Dispatched

	rt.TL.Lock()
	for {
		req := rt.TL.OldestMain()
		if req == nil {
			break
		}
		batch = append(batch, dispatch.Step1(req, now, rt.Counters)...)
	}
	rt.TL.Unlock()

	dispatch.Step2(batch, rt.Dispatch)
	if len(batch) == 0 {
		return DefaultIdleSleep
	}
	return NoSleepHint
}

// TOAgg is TO with aggregation enabled: contiguous same-file,
// same-direction requests already folded together by
// Timeline.PushMainAggregating are dispatched as a single virtual request,
// still selected oldest-first.
//
// Grounded on TO.c's aggregated mode, selected when config_agios_algorithm
// is TOAGG instead of TO; the selection loop is identical, only insertion
// differs (handled upstream by the timeline/aggregate packages).
type TOAgg struct{}

func (TOAgg) Descriptor() Descriptor {
	return Descriptor{Name: "TO-agg", NeedsTimeline: true, MaxAggregation: 16}
}

func (TOAgg) Schedule(rt *Runtime) time.Duration {
	return scheduleTimelineFIFO(rt)
}
