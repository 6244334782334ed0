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
	"github.com/esalvarez/agios/internal/agios/model"
)

// WFQWeights maps a queue id to its configured weight, read from the weights
// file named by the engine's configuration at init. A queue id absent from
// the map gets DefaultWFQWeight.
type WFQWeights map[int32]int64

// DefaultWFQWeight is the weight assigned to a queue id with no explicit
// entry in WFQWeights, giving it parity with a queue weighted 1.
const DefaultWFQWeight = int64(1)

// WFQ is a credit-based weighted fair queueing policy: every round, the
// current queue id's amount is its weight plus whatever credit it carried
// over from last time it ran dry mid-aggregation, and it dispatches heads
// from its sub-queue for as long as they fit that amount. Whatever is left
// over becomes next round's credit if the sub-queue still has more to give,
// or is discarded if the sub-queue just drained (an idle queue must not
// accumulate unbounded credit). Exactly one queue id is serviced per
// Schedule call, then the cursor advances, mod N.
//
// Grounded on §4.H.7: weight[cur]+credit[cur], drain while amount fits,
// credit[cur] reset to 0 once the sub-queue empties. The repository carries
// several contradictory WFQ.c variants (mismatched modulus, missing initial
// state, credit vs debt terminology); this implements the one credit-based
// algorithm described in the specification rather than any of them.
type WFQ struct {
	Weights WFQWeights

	credits map[int32]int64
	cur     int32
}

func (*WFQ) Descriptor() Descriptor {
	return Descriptor{Name: "WFQ", NeedsTimeline: true, MultiQueue: true, MaxAggregation: 1}
}

func (w *WFQ) weightOf(id int32) int64 {
	if w.Weights != nil {
		if wt, ok := w.Weights[id]; ok && wt > 0 {
			return wt
		}
	}
	return DefaultWFQWeight
}

func (w *WFQ) Schedule(rt *Runtime) time.Duration {
	now := rt.now()
	if w.credits == nil {
		w.credits = make(map[int32]int64)
	}

	rt.TL.Lock()
	size := rt.TL.MultiSize()
	if size == 0 {
		rt.TL.Unlock()
		return DefaultIdleSleep
	}
	if w.cur < 0 || int(w.cur) >= size {
		w.cur = 0
	}

	cur := w.cur
	amount := w.weightOf(cur) + w.credits[cur]
	sub := rt.TL.MultiList(int(cur))

	var batch []dispatch.Dispatched
	for {
		e := sub.Front()
		if e == nil {
			break
		}
		head := e.Value.(*model.Request)
		if amount < head.Len {
			break
		}
		amount -= head.Len
		req := rt.TL.OldestMulti(int(cur))
		batch = append(batch, dispatch.Step1(req, now, rt.Counters)...)
	}

	if sub.Len() > 0 {
		w.credits[cur] = amount
	} else {
		w.credits[cur] = 0
	}
	w.cur = (cur + 1) % int32(size)
	rt.TL.Unlock()

	dispatch.Step2(batch, rt.Dispatch)
	if len(batch) == 0 {
		return DefaultIdleSleep
	}
	return NoSleepHint
}
