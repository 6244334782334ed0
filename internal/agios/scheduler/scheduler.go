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

// Package scheduler runs the engine's single long-lived scheduling
// goroutine: it repeatedly asks the active policy for one scheduling pass,
// sleeps for whatever hint that pass returned, and checks for a pending
// dynamic policy change between passes.
//
// Grounded on agios_thread.c's agios_thread function and
// is_time_to_change_scheduler.
package scheduler

import (
	"sync"
	"time"

	"github.com/esalvarez/agios/internal/agios/migrate"
	"github.com/esalvarez/agios/internal/agios/policy"
)

// Scheduler owns the running goroutine, the currently active policy, and
// the machinery to swap policies at runtime.
type Scheduler struct {
	rt      *policy.Runtime
	migrate *migrate.Engine

	mu      sync.Mutex
	active  policy.Policy
	pending string // name of a requested-but-not-yet-applied policy switch

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	// Configure, if set, is called against every freshly constructed policy
	// before it becomes active, letting the engine push config-derived
	// tunables (TWINS's window, WFQ's weights) into a policy the registry
	// otherwise hands out as a zero value.
	Configure func(policy.Policy)
}

// New returns a Scheduler running active as its initial policy. Start must
// be called to begin the goroutine.
func New(rt *policy.Runtime, mig *migrate.Engine, active policy.Policy) *Scheduler {
	return &Scheduler{
		rt:      rt,
		migrate: mig,
		active:  active,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start launches the scheduling goroutine.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop signals the scheduling goroutine to exit and waits for it to do so.
func (s *Scheduler) Stop() {
	close(s.done)
	s.wg.Wait()
}

// Kick wakes the scheduler immediately instead of waiting out its current
// sleep hint, used after AddRequest when the new arrival might let the
// active policy make immediate progress.
func (s *Scheduler) Kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// RequestPolicyChange asks the scheduler to switch to name at its next
// opportunity between passes. The switch itself (and any required
// hashtable<->timeline migration) runs on the scheduling goroutine, never
// concurrently with a scheduling pass.
//
// Grounded on agios_set_algorithm + is_time_to_change_scheduler's dynamic
// check each loop iteration.
func (s *Scheduler) RequestPolicyChange(name string) {
	s.mu.Lock()
	s.pending = name
	s.mu.Unlock()
	s.Kick()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.applyPendingPolicyChange()

		sleepFor := s.currentPolicy().Schedule(s.rt)
		s.sleep(sleepFor)
	}
}

func (s *Scheduler) currentPolicy() policy.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ActiveDescriptor reports the currently active policy's static properties.
// Callers inserting a new request use it to decide whether to route the
// request into the hashtable or the timeline; see pkg/agios's
// acquire-adequate-lock-style retry around a racing dynamic policy switch.
func (s *Scheduler) ActiveDescriptor() policy.Descriptor {
	return s.currentPolicy().Descriptor()
}

func (s *Scheduler) applyPendingPolicyChange() {
	s.mu.Lock()
	name := s.pending
	s.pending = ""
	current := s.active
	s.mu.Unlock()

	if name == "" {
		return
	}
	next, err := policy.New(name)
	if err != nil {
		return
	}
	if s.Configure != nil {
		s.Configure(next)
	}

	currentDesc := current.Descriptor()
	nextDesc := next.Descriptor()

	s.migrate.LockAll()
	switch {
	case !currentDesc.NeedsTimeline && nextDesc.NeedsTimeline:
		s.migrate.ToTimelineLocked(ordererFor(nextDesc), nextDesc.MaxAggregation)
	case currentDesc.NeedsTimeline && !nextDesc.NeedsTimeline:
		s.migrate.ToHashtableLocked(nextDesc.MaxAggregation)
	}
	// Published before the locks are released, so a request path that
	// re-reads ActiveDescriptor after taking its locks sees the new policy.
	s.mu.Lock()
	s.active = next
	s.mu.Unlock()
	s.migrate.UnlockAll()

	s.rt.Perf.StartEpoch(nextDesc.Name, s.rt.Clock.NowNanos())
}

func ordererFor(desc policy.Descriptor) migrate.Orderer {
	switch desc.Name {
	case "TO-agg":
		return migrate.ByAggregation
	case "SW":
		return migrate.BySWPriority
	case "TWINS", "WFQ":
		return migrate.ByQueueID
	default:
		return migrate.ByTimestamp
	}
}

func (s *Scheduler) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.wake:
	case <-s.done:
	}
}
