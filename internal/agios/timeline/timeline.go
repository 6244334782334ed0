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

// Package timeline implements the single globally-locked request queue used
// by the TO, TO-agg and SW policies, plus the parallel multi_timeline array
// of per-queue-id lists used by TWINS and WFQ.
//
// Grounded on req_timeline.c.
package timeline

import (
	"container/list"
	"sync"

	"github.com/esalvarez/agios/internal/agios/aggregate"
	"github.com/esalvarez/agios/internal/agios/model"
)

// Timeline is the FIFO/priority-ordered request queue shared by TO, TO-agg
// and SW, plus the per-queue-id lists used by TWINS and WFQ.
type Timeline struct {
	mu sync.Mutex

	main list.List // *model.Request, ordered depending on the active policy

	// multi holds one list per queue id, sized by MaxQueueID+1. TWINS and
	// WFQ round-robin across these instead of using main.
	multi []list.List
}

// New returns an initialized Timeline. maxQueueID, if > 0, preallocates the
// multi-queue array used by TWINS/WFQ (index 0..maxQueueID inclusive).
func New(maxQueueID int32) *Timeline {
	tl := &Timeline{}
	tl.main.Init()
	if maxQueueID > 0 {
		tl.multi = make([]list.List, maxQueueID+1)
		for i := range tl.multi {
			tl.multi[i].Init()
		}
	}
	return tl
}

// Lock acquires the timeline mutex and returns the main list.
func (t *Timeline) Lock() *list.List {
	t.mu.Lock()
	return &t.main
}

// Unlock releases the timeline mutex.
func (t *Timeline) Unlock() { t.mu.Unlock() }

// MultiSize returns the number of per-queue-id lists available for
// TWINS/WFQ.
func (t *Timeline) MultiSize() int { return len(t.multi) }

// MultiList returns the list for queue id i. Caller must hold the lock.
func (t *Timeline) MultiList(i int) *list.List { return &t.multi[i] }

// PushMain appends req to the end of the main timeline in FIFO order.
// Caller must hold the lock.
func (t *Timeline) PushMain(req *model.Request) {
	req.Container = &t.main
	req.Elem = t.main.PushBack(req)
}

// PushMainOrderedByTimestamp inserts req into the main timeline keeping it
// sorted by req.Timestamp ascending, used when rebuilding the timeline
// during a migration from the hashtable. Caller must hold the lock.
func (t *Timeline) PushMainOrderedByTimestamp(req *model.Request) {
	req.Container = &t.main
	for e := t.main.Front(); e != nil; e = e.Next() {
		if e.Value.(*model.Request).Timestamp > req.Timestamp {
			req.Elem = t.main.InsertBefore(req, e)
			return
		}
	}
	req.Elem = t.main.PushBack(req)
}

// PushMainBySWPriority inserts req into the main timeline keeping it sorted
// by req.SWPriority ascending, used by the SW policy. Caller must hold the
// lock.
func (t *Timeline) PushMainBySWPriority(req *model.Request) {
	req.Container = &t.main
	for e := t.main.Front(); e != nil; e = e.Next() {
		if e.Value.(*model.Request).SWPriority > req.SWPriority {
			req.Elem = t.main.InsertBefore(req, e)
			return
		}
	}
	req.Elem = t.main.PushBack(req)
}

// PushMainAggregating inserts req into the main timeline the way the TO-agg
// policy wants: folded into an adjacent same-file-and-direction request when
// possible (up to maxAggregation members), otherwise appended in FIFO order.
// Caller must hold the lock.
func (t *Timeline) PushMainAggregating(req *model.Request, maxAggregation int) int {
	n := aggregate.InsertIntoList(&t.main, req, maxAggregation)
	if n == 1 {
		// InsertIntoList places a standalone request by offset; move it to
		// its arrival position instead.
		req.RemoveFromContainer()
		t.PushMainOrderedByTimestamp(req)
	}
	return n
}

// PushMulti appends req to the per-queue-id list for req.QueueID. Caller
// must hold the lock.
func (t *Timeline) PushMulti(req *model.Request) {
	idx := int(req.QueueID)
	if idx < 0 || idx >= len(t.multi) {
		idx = 0
	}
	req.Container = &t.multi[idx]
	req.Elem = t.multi[idx].PushBack(req)
}

// OldestMain removes and returns the oldest (front) request in the main
// timeline, or nil if empty. Caller must hold the lock.
func (t *Timeline) OldestMain() *model.Request {
	e := t.main.Front()
	if e == nil {
		return nil
	}
	req := e.Value.(*model.Request)
	req.RemoveFromContainer()
	return req
}

// RemoveMain removes req from the main timeline. Caller must hold the lock
// and must know req currently lives in the main timeline.
func (t *Timeline) RemoveMain(req *model.Request) {
	req.RemoveFromContainer()
}

// RemoveMulti removes req from its per-queue-id list. Caller must hold the
// lock.
func (t *Timeline) RemoveMulti(req *model.Request) {
	req.RemoveFromContainer()
}

// OldestMulti removes and returns the front request of queue id i, or nil.
// Caller must hold the lock.
func (t *Timeline) OldestMulti(i int) *model.Request {
	e := t.multi[i].Front()
	if e == nil {
		return nil
	}
	req := e.Value.(*model.Request)
	req.RemoveFromContainer()
	return req
}

// Empty reports whether the main timeline has no requests. Caller must hold
// the lock.
func (t *Timeline) Empty() bool { return t.main.Len() == 0 }

// UnsafeMain returns the main list without acquiring the lock. Only safe
// when the caller already holds the timeline lock, e.g. during a migration
// that locked every data structure up front via migrate.Engine.LockAll.
func (t *Timeline) UnsafeMain() *list.List { return &t.main }

// UnsafeMultiList is MultiList without the locking requirement spelled out
// differently; provided for symmetry with UnsafeMain for migration code that
// already holds the lock.
func (t *Timeline) UnsafeMultiList(i int) *list.List { return &t.multi[i] }
