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

	"github.com/esalvarez/agios/internal/agios/aggregate"
	"github.com/esalvarez/agios/internal/agios/dispatch"
	"github.com/esalvarez/agios/internal/agios/hashtable"
	"github.com/esalvarez/agios/internal/agios/model"
	"github.com/esalvarez/agios/internal/agios/waiting"
)

// mlfQuantum mirrors config_mlf_quantum's default of 8192 bytes: a queue's
// head becomes eligible for dispatch once its SchedFactor times this
// quantum reaches the head's length. SetMLFQuantum overrides it from
// configuration before the policy ever runs.
var mlfQuantum int64 = 8192

// SetMLFQuantum sets the dispatch-eligibility threshold used under MLF.
// Mirrors config_mlf_quantum.
func SetMLFQuantum(bytes int64) {
	if bytes > 0 {
		mlfQuantum = bytes
	}
}

// MLF (multi-level feedback) aggregates pending requests per file and, on
// each pass, dispatches every queue's head whose SchedFactor-scaled quantum
// covers its length, ageing every head it looks at so none starves, and
// deferring to the waiting package's shift/aggregation-belief heuristics
// before committing to a selection.
//
// Grounded on MLF.c: hashtable-indexed, up to MaxAggregationSize per
// aggregation.
type MLF struct{}

func (MLF) Descriptor() Descriptor {
	return Descriptor{
		Name:            "MLF",
		NeedsTimeline:   false,
		MaxAggregation:  aggregate.MaxAggregationSize,
		UsesWaitingTime: true,
	}
}

func (MLF) Schedule(rt *Runtime) time.Duration {
	now := rt.now()
	var batch []dispatch.Dispatched
	shortestWait := int64(1<<63 - 1)

	for i := 0; i < hashtable.Entries; i++ {
		files := rt.HT.Lock(i)
		for e := files.Front(); e != nil; e = e.Next() {
			f := e.Value.(*model.File)
			waiting.UpdateWaitingTimeCounters(f, int64(DefaultIdleSleep), &shortestWait)
			for _, q := range []*model.Queue{f.ReadQueue, f.WriteQueue} {
				batch = append(batch, mlfConsiderQueue(rt, q, f, now)...)
			}
		}
		rt.HT.Unlock(i)
	}

	dispatch.Step2(batch, rt.Dispatch)
	if len(batch) == 0 {
		if shortestWait < 1<<62 {
			return time.Duration(shortestWait)
		}
		return DefaultIdleSleep
	}
	return NoSleepHint
}

// mlfConsiderQueue applies the shared MLF/aIOLi eligibility rule to q's
// single candidate request (its head, the oldest by offset order): its
// SchedFactor is incremented on every look, unconditionally, and it becomes
// eligible once sched_factor*quantum >= length. A request that was already
// eligible before this look stays eligible after the increment, so growth
// never un-selects a request; one that fails simply ages toward eligibility
// for the next pass.
//
// Grounded on MLF.c's applyMLFonlist, which increments every request's
// sched_factor first and only then tests it against mlf_quantum.
func mlfConsiderQueue(rt *Runtime, q *model.Queue, f *model.File, now int64) []dispatch.Dispatched {
	if q.List.Len() == 0 {
		return nil
	}

	front := q.List.Front().Value.(*model.Request)
	waiting.IncrementSchedFactor(front)
	if front.SchedFactor*mlfQuantum < front.Len {
		return nil
	}

	if !waiting.CheckSelection(rt.Waiting, front, f) {
		return nil
	}

	var out []dispatch.Dispatched
	out = append(out, dispatch.Step1(front, now, rt.Counters)...)
	waiting.PostProcess(front)
	return out
}
