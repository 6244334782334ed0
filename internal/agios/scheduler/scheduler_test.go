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

package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/esalvarez/agios/internal/agios/alist"
	"github.com/esalvarez/agios/internal/agios/dispatch"
	"github.com/esalvarez/agios/internal/agios/hashtable"
	"github.com/esalvarez/agios/internal/agios/migrate"
	"github.com/esalvarez/agios/internal/agios/model"
	"github.com/esalvarez/agios/internal/agios/perfring"
	"github.com/esalvarez/agios/internal/agios/policy"
	"github.com/esalvarez/agios/internal/agios/timeline"
	"github.com/esalvarez/agios/internal/agios/waiting"
)

type noopCounters struct{}

func (noopCounters) DecRequests(int64)          {}
func (noopCounters) DecFileIfEmpty(*model.File) {}

func TestScheduler_DispatchesAndStops(t *testing.T) {
	ht := hashtable.New()
	tl := timeline.New(0)

	idx := hashtable.Position("/f")
	files := ht.Lock(idx)
	f, _ := ht.FindOrCreateFile(idx, "/f")
	q := f.ReadQueue
	req := &model.Request{FileID: "/f", Offset: 0, Len: 4096, Queue: q}
	req.Container = &q.List
	req.Elem = q.List.PushBack(req)
	_ = files
	ht.Unlock(idx)

	var dispatched int32
	rt := &policy.Runtime{
		HT:       ht,
		TL:       tl,
		Clock:    alist.NewFakeClock(),
		Perf:     perfring.NewRing(4),
		Counters: noopCounters{},
		Dispatch: func(batch []dispatch.Dispatched) {
			atomic.AddInt32(&dispatched, int32(len(batch)))
		},
		Waiting: waiting.DefaultConfig(),
	}
	mig := &migrate.Engine{HT: ht, TL: tl}

	s := New(rt, mig, policy.NOOP{})
	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&dispatched) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if atomic.LoadInt32(&dispatched) == 0 {
		t.Fatalf("expected at least one dispatch before stopping")
	}
}

func TestScheduler_PolicyChangeToTimelineStopsCleanly(t *testing.T) {
	ht := hashtable.New()
	tl := timeline.New(0)
	rt := &policy.Runtime{
		HT:       ht,
		TL:       tl,
		Clock:    alist.NewFakeClock(),
		Perf:     perfring.NewRing(4),
		Counters: noopCounters{},
		Dispatch: func([]dispatch.Dispatched) {},
		Waiting:  waiting.DefaultConfig(),
	}
	mig := &migrate.Engine{HT: ht, TL: tl}

	s := New(rt, mig, policy.SJF{})
	s.Start()
	s.RequestPolicyChange("TO")

	time.Sleep(50 * time.Millisecond)
	s.Stop()
}
