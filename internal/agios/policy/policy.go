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

// Package policy implements the nine selectable scheduling algorithms and
// the shared Runtime each one operates against. A Policy's Schedule method
// runs one scheduling pass: it selects the next request (or aggregation) to
// hand back to the caller according to its own algorithm, dispatches it via
// the two-phase protocol in package dispatch, and returns a hint for how
// long the scheduler thread may sleep before calling Schedule again.
//
// Grounded on the family of per-algorithm source files (NOOP.c, TO.c, SW.c,
// SJF.c, MLF.c, aIOLi.c, TWINS.c) plus agios_thread.c for how the scheduler
// loop drives Schedule and interprets its sleep hint.
package policy

import (
	"time"

	"github.com/esalvarez/agios/internal/agios/alist"
	"github.com/esalvarez/agios/internal/agios/dispatch"
	"github.com/esalvarez/agios/internal/agios/hashtable"
	"github.com/esalvarez/agios/internal/agios/perfring"
	"github.com/esalvarez/agios/internal/agios/timeline"
	"github.com/esalvarez/agios/internal/agios/waiting"
)

// Descriptor is a policy's static properties, used by the scheduler to
// decide whether a dynamic policy switch requires a hashtable<->timeline
// migration and how aggressively to aggregate while it is active.
type Descriptor struct {
	Name string

	// NeedsTimeline reports whether this policy reads/writes the shared
	// Runtime.TL instead of Runtime.HT for pending requests.
	NeedsTimeline bool

	// MultiQueue reports whether this policy uses the timeline's per-queue-id
	// lists (TWINS, WFQ) rather than its single main list.
	MultiQueue bool

	// MaxAggregation is the largest aggregation this policy will form; 1
	// disables aggregation entirely.
	MaxAggregation int

	// UsesWaitingTime reports whether this policy consults the waiting
	// package's shift/aggregation-belief heuristics before dispatching.
	UsesWaitingTime bool
}

// Runtime bundles the shared engine state every Policy.Schedule call needs.
type Runtime struct {
	HT    *hashtable.Table
	TL    *timeline.Timeline
	Clock alist.Clock
	Perf  *perfring.Ring

	Counters dispatch.Counters
	Dispatch func([]dispatch.Dispatched)

	Waiting waiting.Config
}

func (rt *Runtime) now() int64 { return rt.Clock.NowNanos() }

// Policy is one selectable scheduling algorithm.
type Policy interface {
	Descriptor() Descriptor

	// Schedule performs one scheduling pass and returns how long the
	// scheduler thread may sleep before calling Schedule again. A returned
	// duration of 0 means "there is more work, call me again immediately".
	Schedule(rt *Runtime) time.Duration
}

// NoSleepHint is returned by policies that always want to be rescheduled
// immediately while they still have pending work.
const NoSleepHint = time.Duration(0)

// DefaultIdleSleep is returned when a policy finds nothing to do, mirroring
// agios_thread.c falling back to a fixed nanosleep when the active algorithm
// reports no pending work and dynamic scheduling is disabled.
const DefaultIdleSleep = 100 * time.Millisecond
