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
	"github.com/esalvarez/agios/internal/agios/hashtable"
	"github.com/esalvarez/agios/internal/agios/model"
)

// NOOP dispatches every pending request immediately, in whatever order the
// hashtable buckets happen to hold them, performing no reordering or
// aggregation. It exists as a baseline and as the safe landing policy a
// dynamic switch falls back to while other algorithms drain.
//
// Grounded on NOOP.c, which dispatches synchronously on arrival and, on a
// dynamic switch into NOOP, drains whatever the previous policy had queued.
type NOOP struct{}

func (NOOP) Descriptor() Descriptor {
	return Descriptor{Name: "NOOP", NeedsTimeline: false, MaxAggregation: 1}
}

func (NOOP) Schedule(rt *Runtime) time.Duration {
	now := rt.now()
	var batch []dispatch.Dispatched

	for i := 0; i < hashtable.Entries; i++ {
		files := rt.HT.Lock(i)
		for e := files.Front(); e != nil; e = e.Next() {
			f := e.Value.(*model.File)
			batch = append(batch, drainQueueNOOP(f.ReadQueue, now, rt.Counters)...)
			batch = append(batch, drainQueueNOOP(f.WriteQueue, now, rt.Counters)...)
		}
		rt.HT.Unlock(i)
	}

	dispatch.Step2(batch, rt.Dispatch)
	if len(batch) == 0 {
		return DefaultIdleSleep
	}
	return NoSleepHint
}

func drainQueueNOOP(q *model.Queue, now int64, counters dispatch.Counters) []dispatch.Dispatched {
	var out []dispatch.Dispatched
	for q.List.Len() > 0 {
		req := q.List.Front().Value.(*model.Request)
		out = append(out, dispatch.Step1(req, now, counters)...)
	}
	return out
}
