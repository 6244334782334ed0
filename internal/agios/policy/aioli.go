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

// aioliDefaultQuantum mirrors config_aioli_quantum's default of 8192 bytes.
// SetAIOLiQuantum overrides it from configuration before the policy ever
// runs; queues seed their own NextQuantum from whatever value is current
// the first time aioliDrainQueue sees them.
var aioliDefaultQuantum int64 = 8192

// SetAIOLiQuantum sets the starting quantum new queues pick up under aIOLi.
// Mirrors config_aioli_quantum.
func SetAIOLiQuantum(bytes int64) {
	if bytes > 0 {
		aioliDefaultQuantum = bytes
	}
}

// aioliQuantumFloor is the smallest a queue's adaptive quantum is ever
// allowed to shrink to, preventing adjustQuantum from driving it to zero
// and stalling dispatch entirely.
const aioliQuantumFloor = 512

// aIOLi picks, across every file in the system, the queue whose head is
// eligible (per a SchedFactor-scaled quantum, same rule as MLF) with the
// earliest timestamp, then drains as many contiguous heads from that one
// queue as its adaptive per-queue quantum allows before picking again. A
// queue whose recent aggregations used up most or more of its quantum grows
// it for next time; one that used little shrinks it back down.
//
// Grounded on aIOLi.c's aIOLi_select_queue (global pick, FIFO tie-break
// across files) and its main aIOLi() loop (per-queue quantum accounting,
// adjust_quantum). The original clamps the adjusted quantum against
// MAX_AGGREG_SIZE, a count of requests (up to 16), while treating the
// quantum itself as a byte threshold comparable to an aggregation's summed
// Len — a unit mismatch in the source that in practice only ever matters
// for very small request sizes. This port keeps the quantum strictly in
// bytes throughout and clamps it against aioliDefaultQuantum*
// MaxAggregationSize instead, which preserves the original's intent (cap
// runaway quantum growth) without mixing a request-count ceiling into a
// byte-valued threshold. See DESIGN.md.
type AIOLi struct{}

func (AIOLi) Descriptor() Descriptor {
	return Descriptor{
		Name:            "aIOLi",
		NeedsTimeline:   false,
		MaxAggregation:  aggregate.MaxAggregationSize,
		UsesWaitingTime: true,
	}
}

func (AIOLi) Schedule(rt *Runtime) time.Duration {
	now := rt.now()

	q, f, shortestWait := aioliSelectQueue(rt)
	if q == nil {
		if shortestWait < 1<<62 {
			return time.Duration(shortestWait)
		}
		return DefaultIdleSleep
	}

	idx := hashtable.Position(f.FileID)
	rt.HT.Lock(idx)
	var batch []dispatch.Dispatched
	if q.List.Len() > 0 {
		front := q.List.Front().Value.(*model.Request)
		if waiting.CheckSelection(rt.Waiting, front, f) {
			batch = aioliDrainQueue(rt, q, now)
		}
	}
	rt.HT.Unlock(idx)

	dispatch.Step2(batch, rt.Dispatch)
	return NoSleepHint
}

// aioliSelectQueue scans every file in the hashtable, ageing and testing the
// read queue before the write queue of each, and returns the eligible queue
// (and its file) whose head has the earliest timestamp across the whole
// scan. Files currently waiting are skipped after their counters are
// updated. shortestWait is the time to sleep if every file turned out to be
// waiting and nothing was selected.
//
// Grounded on aIOLi.c's aIOLi_select_queue.
func aioliSelectQueue(rt *Runtime) (*model.Queue, *model.File, int64) {
	shortestWait := int64(1<<63 - 1)
	var selected *model.Queue
	var selectedFile *model.File
	selectedTimestamp := int64(1<<63 - 1)

	for i := 0; i < hashtable.Entries; i++ {
		files := rt.HT.Lock(i)
		for e := files.Front(); e != nil; e = e.Next() {
			f := e.Value.(*model.File)
			if f.WaitingTime > 0 {
				waiting.UpdateWaitingTimeCounters(f, int64(DefaultIdleSleep), &shortestWait)
				continue
			}
			q, ts, ok := aioliSelectFromFile(f)
			if ok && ts < selectedTimestamp {
				selectedTimestamp = ts
				selected = q
				selectedFile = f
			}
		}
		rt.HT.Unlock(i)
	}
	return selected, selectedFile, shortestWait
}

// aioliSelectFromFile tries f's read queue before its write queue, reporting
// the first one whose head is eligible.
func aioliSelectFromFile(f *model.File) (*model.Queue, int64, bool) {
	if ts, ok := aioliSelectFromList(f.ReadQueue); ok {
		return f.ReadQueue, ts, true
	}
	if ts, ok := aioliSelectFromList(f.WriteQueue); ok {
		return f.WriteQueue, ts, true
	}
	return nil, 0, false
}

// aioliSelectFromList increments every pending request's SchedFactor
// unconditionally (a side effect on every look, whether or not the head
// ends up eligible), and reports whether the head now satisfies
// length <= sched_factor*quantum, returning its timestamp for the
// cross-file FIFO tie-break.
//
// Grounded on aIOLi.c's aIOLi_select_from_list.
func aioliSelectFromList(q *model.Queue) (timestamp int64, ok bool) {
	if q.List.Len() == 0 {
		return 0, false
	}
	for e := q.List.Front(); e != nil; e = e.Next() {
		waiting.IncrementSchedFactor(e.Value.(*model.Request))
	}
	front := q.List.Front().Value.(*model.Request)
	if front.Len <= front.SchedFactor*aioliDefaultQuantum {
		return front.Timestamp, true
	}
	return 0, false
}

// aioliDrainQueue dispatches q's head unconditionally (so a too-small
// quantum can never stall a queue outright), then keeps dispatching further
// contiguous heads from q while they fit the leftover quantum, and finally
// adjusts q.NextQuantum based on how much of the quantum this pass used.
//
// Grounded on aIOLi.c's main aIOLi() loop.
func aioliDrainQueue(rt *Runtime, q *model.Queue, now int64) []dispatch.Dispatched {
	currentQuantum := q.NextQuantum
	var usedQuantum int64
	var out []dispatch.Dispatched

	first := true
	var prevEnd int64
	for q.List.Len() > 0 {
		front := q.List.Front().Value.(*model.Request)
		if !first && (front.Offset > prevEnd || front.Len > currentQuantum-usedQuantum) {
			break
		}
		first = false
		usedQuantum += front.Len
		prevEnd = front.Offset + front.Len

		out = append(out, dispatch.Step1(front, now, rt.Counters)...)
		waiting.PostProcess(front)
	}

	if currentQuantum == 0 {
		q.NextQuantum = aioliDefaultQuantum
	} else {
		q.NextQuantum = aioliAdjustQuantum(usedQuantum, currentQuantum)
	}
	return out
}

// aioliAdjustQuantum maps the fraction of the quantum actually used to a new
// quantum: well under (<75%) halves it, roughly matched (75-125%) leaves it
// alone, and well over (>=125%) grows it, doubling past 175%. Clamped to
// [aioliQuantumFloor, aioliDefaultQuantum*MaxAggregationSize].
//
// Grounded on aIOLi.c's adjust_quantum.
func aioliAdjustQuantum(usedQuantum, quantum int64) int64 {
	rate := usedQuantum * 100 / quantum

	var required int64
	switch {
	case rate >= 175:
		required = quantum * 2
	case rate >= 125:
		required = quantum * 15 / 10
	case rate >= 75:
		required = quantum
	default:
		required = quantum / 2
	}

	if required <= 0 {
		return aioliDefaultQuantum
	}
	if ceiling := aioliDefaultQuantum * aggregate.MaxAggregationSize; required > ceiling {
		required = ceiling
	}
	if required < aioliQuantumFloor {
		required = aioliQuantumFloor
	}
	return required
}
