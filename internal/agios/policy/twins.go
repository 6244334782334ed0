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

// twinsDefaultWindow mirrors config_twins_window's default of 1_000_000ns
// (1ms): requests are dispatched from the active queue id's list for this
// long before round-robining to the next one.
const twinsDefaultWindow = int64(1_000_000)

// TWINS round-robins dispatch across the timeline's per-queue-id lists, one
// fixed-length time window per queue id, to give every stream (mapped to a
// queue id by the caller) a fair, predictable share of scheduling time
// regardless of how much it is currently offering.
//
// Grounded on TWINS.c: current_queue cycles through multi_timeline,
// draining it for config_twins_window nanoseconds (or until it runs dry,
// whichever comes first) before advancing.
type TWINS struct {
	current int
	window  int64

	windowStart int64
	armed       bool
}

func (*TWINS) Descriptor() Descriptor {
	return Descriptor{Name: "TWINS", NeedsTimeline: true, MultiQueue: true, MaxAggregation: 1}
}

// ConfigureWindow sets the per-queue-id dispatch window, overriding
// twinsDefaultWindow. Must be called before the policy's first Schedule
// pass; mirrors config_twins_window.
func (t *TWINS) ConfigureWindow(nanos int64) {
	if nanos > 0 {
		t.window = nanos
	}
}

func (t *TWINS) Schedule(rt *Runtime) time.Duration {
	if t.window <= 0 {
		t.window = twinsDefaultWindow
	}
	now := rt.now()
	if !t.armed {
		t.windowStart = now
		t.armed = true
	}

	var batch []dispatch.Dispatched
	rt.TL.Lock()
	size := rt.TL.MultiSize()
	if size == 0 {
		rt.TL.Unlock()
		return DefaultIdleSleep
	}

	for tries := 0; tries < size; tries++ {
		req := rt.TL.OldestMulti(t.current)
		if req != nil {
			batch = append(batch, dispatch.Step1(req, now, rt.Counters)...)
			break
		}
		t.advance(size, now)
	}
	if now-t.windowStart >= t.window {
		t.advance(size, now)
	}
	rt.TL.Unlock()

	dispatch.Step2(batch, rt.Dispatch)
	if len(batch) == 0 {
		return DefaultIdleSleep
	}
	return NoSleepHint
}

// advance moves to the next queue id, wrapping around size, and resets the
// window clock.
func (t *TWINS) advance(size int, now int64) {
	t.current = (t.current + 1) % size
	t.windowStart = now
}
