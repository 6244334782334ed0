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
	"testing"
	"time"

	"github.com/esalvarez/agios/internal/agios/aggregate"
	"github.com/esalvarez/agios/internal/agios/alist"
	"github.com/esalvarez/agios/internal/agios/dispatch"
	"github.com/esalvarez/agios/internal/agios/hashtable"
	"github.com/esalvarez/agios/internal/agios/model"
	"github.com/esalvarez/agios/internal/agios/perfring"
	"github.com/esalvarez/agios/internal/agios/timeline"
	"github.com/esalvarez/agios/internal/agios/waiting"
)

type fakeCounters struct {
	decremented int64
}

func (f *fakeCounters) DecRequests(n int64)           { f.decremented += n }
func (f *fakeCounters) DecFileIfEmpty(*model.File)    {}

var _ dispatch.Counters = (*fakeCounters)(nil)

func newTestRuntime(multiQueues int32) (*Runtime, *hashtable.Table, *timeline.Timeline, *[]dispatch.Dispatched) {
	ht := hashtable.New()
	tl := timeline.New(multiQueues)
	var captured []dispatch.Dispatched
	rt := &Runtime{
		HT:      ht,
		TL:      tl,
		Clock:   alist.NewFakeClock(),
		Perf:    perfring.NewRing(8),
		Counters: &fakeCounters{},
		Dispatch: func(batch []dispatch.Dispatched) {
			captured = append(captured, batch...)
		},
		Waiting: waiting.DefaultConfig(),
	}
	return rt, ht, tl, &captured
}

func addFileRequest(ht *hashtable.Table, fileID string, dir model.Dir, offset, length int64) *model.Request {
	idx := hashtable.Position(fileID)
	files := ht.Lock(idx)
	f, _ := ht.FindOrCreateFile(idx, fileID)
	_ = f
	ht.Unlock(idx)

	files = ht.Lock(idx)
	file := hashtable.FindFile(files, fileID)
	q := file.QueueFor(dir)
	req := &model.Request{FileID: fileID, Dir: dir, Offset: offset, Len: length, Queue: q}
	aggregate.Insert(q, req, 1)
	file.TimelineReqNb++
	ht.Unlock(idx)
	return req
}

func TestNOOP_DispatchesEverythingImmediately(t *testing.T) {
	rt, ht, _, captured := newTestRuntime(0)
	addFileRequest(ht, "/data/a", model.Read, 0, 4096)
	addFileRequest(ht, "/data/b", model.Write, 4096, 4096)

	p := NOOP{}
	p.Schedule(rt)

	if len(*captured) != 2 {
		t.Fatalf("expected 2 dispatched requests, got %d", len(*captured))
	}
}

func TestTO_DispatchesOldestFirst(t *testing.T) {
	rt, _, tl, captured := newTestRuntime(0)
	first := &model.Request{FileID: "/f", Offset: 0, Len: 10, Timestamp: 1}
	second := &model.Request{FileID: "/f", Offset: 10, Len: 10, Timestamp: 2}
	q := model.NewQueue(model.Read, model.NewFile("/f"))
	first.Queue, second.Queue = q, q

	tl.Lock()
	tl.PushMain(first)
	tl.PushMain(second)
	tl.Unlock()

	p := TO{}
	p.Schedule(rt)

	if len(*captured) != 2 {
		t.Fatalf("expected 2 dispatched requests, got %d", len(*captured))
	}
	if (*captured)[0].Offset != 0 || (*captured)[1].Offset != 10 {
		t.Fatalf("expected oldest-first order, got %+v", *captured)
	}
}

func TestSJF_PicksSmallestQueueFirst(t *testing.T) {
	rt, ht, _, captured := newTestRuntime(0)
	addFileRequest(ht, "/big", model.Read, 0, 100_000)
	addFileRequest(ht, "/small", model.Read, 0, 10)

	p := SJF{}
	p.Schedule(rt)

	if len(*captured) == 0 {
		t.Fatalf("expected at least one dispatched request")
	}
	if (*captured)[0].FileID != "/small" {
		t.Fatalf("expected smallest queue to be scheduled first, got %s", (*captured)[0].FileID)
	}
}

func TestMLF_DefersUntilQuantumReached(t *testing.T) {
	rt, ht, _, captured := newTestRuntime(0)
	// SchedFactor starts at 0 and is incremented to 1 on the first look, so a
	// request this large needs several more ticks before 2^n*mlfQuantum
	// covers it.
	addFileRequest(ht, "/f", model.Read, 0, 10*mlfQuantum)

	p := MLF{}
	p.Schedule(rt)

	if len(*captured) != 0 {
		t.Fatalf("expected no dispatch on the first look, got %d", len(*captured))
	}
}

func TestMLF_DispatchesOnceQuantumReached(t *testing.T) {
	rt, ht, _, captured := newTestRuntime(0)
	// SchedFactor reaches 1 on the very first look, so anything at or under
	// mlfQuantum is eligible immediately.
	addFileRequest(ht, "/f", model.Read, 0, mlfQuantum)

	p := MLF{}
	p.Schedule(rt)

	if len(*captured) != 1 {
		t.Fatalf("expected 1 dispatched request once quantum reached, got %d", len(*captured))
	}
}

func TestWFQ_RoundRobinsAcrossQueueIDs(t *testing.T) {
	rt, _, tl, captured := newTestRuntime(2)
	q := model.NewQueue(model.Read, model.NewFile("/f"))
	// At the default weight of 1, a round's amount (weight+credit) is 1 on
	// the first look at each queue id, so only a request this small clears
	// the very first round.
	r0 := &model.Request{FileID: "/f", QueueID: 0, Len: 1, Queue: q}
	r1 := &model.Request{FileID: "/f", QueueID: 1, Len: 1, Queue: q}

	tl.Lock()
	r0.Container = tl.MultiList(0)
	r0.Elem = tl.MultiList(0).PushBack(r0)
	r1.Container = tl.MultiList(1)
	r1.Elem = tl.MultiList(1).PushBack(r1)
	tl.Unlock()

	w := &WFQ{}
	w.Schedule(rt)
	w.Schedule(rt)

	if len(*captured) != 2 {
		t.Fatalf("expected both queue ids served across two rounds, got %d", len(*captured))
	}
}

// TestSJF_AggregatesContiguousRequestsInOffsetOrder exercises Scenario S1:
// three contiguous reads to the same file arrive out of offset order and are
// dispatched as a single pass, in offset order.
func TestSJF_AggregatesContiguousRequestsInOffsetOrder(t *testing.T) {
	rt, ht, _, captured := newTestRuntime(0)
	addFileRequest(ht, "/f", model.Read, 200, 100)
	addFileRequest(ht, "/f", model.Read, 0, 100)
	addFileRequest(ht, "/f", model.Read, 100, 100)

	p := SJF{}
	p.Schedule(rt)

	if len(*captured) != 3 {
		t.Fatalf("expected all 3 contiguous requests dispatched, got %d", len(*captured))
	}
	for i, want := range []int64{0, 100, 200} {
		if (*captured)[i].Offset != want {
			t.Fatalf("expected offset-ordered dispatch, got %+v", *captured)
		}
	}
}

// TestMLF_PromotesOnlyAfterSchedFactorDoublingCoversLength exercises
// Scenario S2: at mlfQuantum=8192, a 20100-byte virtual only clears
// sched_factor*quantum >= length on the third look (1*8192, 2*8192, then
// 4*8192).
func TestMLF_PromotesOnlyAfterSchedFactorDoublingCoversLength(t *testing.T) {
	rt, ht, _, captured := newTestRuntime(0)

	idx := hashtable.Position("/f")
	ht.Lock(idx)
	file, _ := ht.FindOrCreateFile(idx, "/f")
	ht.Unlock(idx)

	q := file.QueueFor(model.Read)
	child1 := &model.Request{FileID: "/f", Dir: model.Read, Offset: 0, Len: 20000, Queue: q}
	child2 := &model.Request{FileID: "/f", Dir: model.Read, Offset: 20000, Len: 100, Queue: q}
	virtual := &model.Request{
		FileID:   "/f",
		Dir:      model.Read,
		Offset:   0,
		Len:      20100,
		Queue:    q,
		Children: []*model.Request{child1, child2},
	}
	virtual.Container = &q.List
	virtual.Elem = q.List.PushBack(virtual)
	q.CurrentSize = 2

	p := MLF{}
	for tick := 1; tick <= 2; tick++ {
		p.Schedule(rt)
		if len(*captured) != 0 {
			t.Fatalf("expected no dispatch on tick %d, got %d", tick, len(*captured))
		}
	}
	p.Schedule(rt)
	if len(*captured) != 2 {
		t.Fatalf("expected the virtual's 2 members dispatched on tick 3, got %d", len(*captured))
	}
	if (*captured)[0].Offset != 0 || (*captured)[1].Offset != 20000 {
		t.Fatalf("expected both members dispatched, got %+v", *captured)
	}
}

// TestAIOLiAdjustQuantum_FollowsUsagePercentageTable exercises Testable
// Property 8: the adjusted quantum is a step function of the percentage of
// the prior quantum actually used.
func TestAIOLiAdjustQuantum_FollowsUsagePercentageTable(t *testing.T) {
	const quantum = int64(10000)
	cases := []struct {
		usedPercent int64
		want        int64
	}{
		{usedPercent: 0, want: quantum / 2},
		{usedPercent: 50, want: quantum / 2},
		{usedPercent: 80, want: quantum},
		{usedPercent: 130, want: quantum * 15 / 10},
		{usedPercent: 200, want: quantum * 2},
	}
	for _, c := range cases {
		used := quantum * c.usedPercent / 100
		got := aioliAdjustQuantum(used, quantum)
		if got != c.want {
			t.Fatalf("usage %d%%: expected quantum %d, got %d", c.usedPercent, c.want, got)
		}
	}
}

// TestAggregate_BoundsCoverOverlappingMembers exercises Testable Property 2:
// a virtual's extent spans every member, even when a lower-offset member
// extends past a later-offset one's end.
func TestAggregate_BoundsCoverOverlappingMembers(t *testing.T) {
	q := model.NewQueue(model.Read, model.NewFile("/f"))
	wide := &model.Request{FileID: "/f", Offset: 0, Len: 200, Queue: q}
	narrow := &model.Request{FileID: "/f", Offset: 50, Len: 10, Queue: q}

	aggregate.Insert(q, wide, aggregate.MaxAggregationSize)
	n := aggregate.Insert(q, narrow, aggregate.MaxAggregationSize)

	if n != 2 {
		t.Fatalf("expected a 2-member aggregation, got size %d", n)
	}
	merged := q.List.Front().Value.(*model.Request)
	if merged.Offset != 0 || merged.Len != 200 {
		t.Fatalf("expected bounds [0,200) covering the wider member, got offset=%d len=%d", merged.Offset, merged.Len)
	}
}

// TestAggregate_CapsAtMaxAggregation exercises Testable Property 3: an
// aggregation never grows past the policy's configured cap, and any member
// arriving once it is full starts its own standalone entry.
func TestAggregate_CapsAtMaxAggregation(t *testing.T) {
	q := model.NewQueue(model.Read, model.NewFile("/f"))
	const maxAggregation = 2

	for i, offset := range []int64{0, 100, 200} {
		req := &model.Request{FileID: "/f", Offset: offset, Len: 100, Queue: q}
		n := aggregate.Insert(q, req, maxAggregation)
		if i < 2 && n > maxAggregation {
			t.Fatalf("aggregation grew past the cap: %d", n)
		}
	}

	if q.List.Len() != 2 {
		t.Fatalf("expected a capped aggregation plus a standalone entry, got %d list entries", q.List.Len())
	}
	first := q.List.Front().Value.(*model.Request)
	if first.Count() != maxAggregation {
		t.Fatalf("expected the first entry to be the full 2-member aggregation, got count %d", first.Count())
	}
	last := q.List.Back().Value.(*model.Request)
	if last.Count() != 1 || last.Offset != 200 {
		t.Fatalf("expected the third request to sit standalone, got %+v", last)
	}
}

// TestAggregate_CancelInsideVirtualSplitsRemainingMembers exercises
// Scenario S6: cancelling the middle member of a 3-way aggregation opens a
// gap, so the aggregation splits back into its two remaining members as
// standalone requests, (0,100) and (200,100).
func TestAggregate_CancelInsideVirtualSplitsRemainingMembers(t *testing.T) {
	q := model.NewQueue(model.Read, model.NewFile("/f"))
	r0 := &model.Request{FileID: "/f", Offset: 0, Len: 100, Queue: q}
	r1 := &model.Request{FileID: "/f", Offset: 100, Len: 100, Queue: q}
	r2 := &model.Request{FileID: "/f", Offset: 200, Len: 100, Queue: q}

	aggregate.Insert(q, r0, aggregate.MaxAggregationSize)
	aggregate.Insert(q, r1, aggregate.MaxAggregationSize)
	aggregate.Insert(q, r2, aggregate.MaxAggregationSize)

	if q.List.Len() != 1 {
		t.Fatalf("expected all 3 to fuse into one virtual, got %d entries", q.List.Len())
	}

	if !aggregate.RemoveMatchingPending(&q.List, q, 100, 100) {
		t.Fatalf("expected to find and remove the middle member")
	}

	if q.List.Len() != 2 {
		t.Fatalf("expected the virtual to split into 2 entries, got %d", q.List.Len())
	}
	first := q.List.Front().Value.(*model.Request)
	if first.IsVirtual() || first.Offset != 0 || first.Len != 100 {
		t.Fatalf("expected a standalone (0,100) first, got offset=%d len=%d count=%d", first.Offset, first.Len, first.Count())
	}
	second := q.List.Back().Value.(*model.Request)
	if second.IsVirtual() || second.Offset != 200 || second.Len != 100 {
		t.Fatalf("expected a standalone (200,100) second, got offset=%d len=%d count=%d", second.Offset, second.Len, second.Count())
	}
}

// TestWFQ_ConvergesToConfiguredWeightRatio exercises Testable Property 10 /
// Scenario S4: under saturated traffic, service is split between queue ids
// in proportion to their configured weights.
func TestWFQ_ConvergesToConfiguredWeightRatio(t *testing.T) {
	rt, _, tl, captured := newTestRuntime(1)
	w := &WFQ{Weights: WFQWeights{0: 1, 1: 3}}

	fileByID := map[int32]*model.File{0: model.NewFile("/q0"), 1: model.NewFile("/q1")}
	const reqLen = int64(100)
	const target = 1000

	counts := map[int32]int{}
	for counts[0]+counts[1] < target {
		tl.Lock()
		for id := int32(0); id <= 1; id++ {
			l := tl.MultiList(int(id))
			if l.Len() == 0 {
				queue := fileByID[id].QueueFor(model.Read)
				req := &model.Request{FileID: fileByID[id].FileID, QueueID: id, Len: reqLen, Queue: queue}
				req.Container = l
				req.Elem = l.PushBack(req)
			}
		}
		tl.Unlock()

		before := len(*captured)
		w.Schedule(rt)
		for _, d := range (*captured)[before:] {
			counts[d.QueueID]++
		}
	}

	total := counts[0] + counts[1]
	ratio0 := float64(counts[0]) / float64(total)
	if ratio0 < 0.20 || ratio0 > 0.30 {
		t.Fatalf("expected queue 0 to receive roughly 25%% of service under weights 1:3, got %d/%d (%.3f)", counts[0], total, ratio0)
	}
}

// TestTWINS_WindowBoundsQueueTransitions exercises Testable Property 9:
// across k*twins_window of elapsed time, at most ceil(k) queue-id
// transitions occur, even when every queue id always has pending work.
func TestTWINS_WindowBoundsQueueTransitions(t *testing.T) {
	clock := alist.NewFakeClock()
	ht := hashtable.New()
	tl := timeline.New(2) // ids 0..2
	var captured []dispatch.Dispatched
	rt := &Runtime{
		HT:       ht,
		TL:       tl,
		Clock:    clock,
		Perf:     perfring.NewRing(8),
		Counters: &fakeCounters{},
		Dispatch: func(batch []dispatch.Dispatched) {
			captured = append(captured, batch...)
		},
		Waiting: waiting.DefaultConfig(),
	}

	file := model.NewFile("/f")
	queue := file.QueueFor(model.Read)
	tl.Lock()
	for id := 0; id < 3; id++ {
		for n := 0; n < 1000; n++ {
			req := &model.Request{FileID: "/f", QueueID: int32(id), Offset: int64(n), Len: 1, Queue: queue}
			l := tl.MultiList(id)
			req.Container = l
			req.Elem = l.PushBack(req)
		}
	}
	tl.Unlock()

	tw := &TWINS{}
	tw.ConfigureWindow(1000)

	const step = 200 * time.Nanosecond
	const calls = 25
	transitions := 0
	prev := tw.current
	for i := 0; i < calls; i++ {
		if i > 0 {
			clock.Advance(step)
		}
		tw.Schedule(rt)
		if tw.current != prev {
			transitions++
			prev = tw.current
		}
	}

	elapsed := int64(calls-1) * step.Nanoseconds()
	k := float64(elapsed) / float64(tw.window)
	maxTransitions := int(k) + 1
	if transitions > maxTransitions {
		t.Fatalf("expected at most %d transitions over %d ns (window=%d), got %d", maxTransitions, elapsed, tw.window, transitions)
	}
}

func TestRegistry_UnknownPolicy(t *testing.T) {
	if _, err := New("does-not-exist"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestRegistry_KnownPolicies(t *testing.T) {
	for name := range Registry {
		p, err := New(name)
		if err != nil {
			t.Fatalf("New(%q) returned error: %v", name, err)
		}
		if p.Descriptor().Name == "" {
			t.Fatalf("policy %q has empty descriptor name", name)
		}
	}
}
