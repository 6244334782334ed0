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

// Package migrate moves pending requests between the hashtable and the
// timeline when the scheduler dynamically switches policies, and splits or
// lets aggregations regrow as the new policy's aggregation cap requires.
//
// File objects always live in the hashtable regardless of which structure
// is holding pending requests at a given moment: the hashtable is the
// engine's only directory of known files, used by AddRequest, Release and
// Cancel to locate a file's queues no matter which policy is active. What
// migrate.Engine moves is only the contents of each queue's pending list
// (model.Queue.List) to or from the shared timeline.
//
// Grounded on data_structures.c's migrate_from_hashtable_to_timeline /
// migrate_from_timeline_to_hashtable / lock_all_data_structures. The
// scheduler holds the timeline lock and every hashtable bucket lock (via
// LockAll/UnlockAll, mirroring lock_all_data_structures's ordering) for a
// migration's whole duration, so nothing in this package retries: a
// concurrent request-path call blocks on the lock it needs until the
// migration finishes. The original's acquire_adequate_lock retry loop, for
// a call that read a stale "current policy" just before a migration and so
// took the wrong lock set, is the request-path side of this and lives in
// pkg/agios's withConsistentLock.
package migrate

import (
	"container/list"

	"github.com/esalvarez/agios/internal/agios/aggregate"
	"github.com/esalvarez/agios/internal/agios/hashtable"
	"github.com/esalvarez/agios/internal/agios/model"
	"github.com/esalvarez/agios/internal/agios/timeline"
)

// Engine owns the lock ordering and request movement needed to migrate
// between the hashtable and the timeline.
type Engine struct {
	HT *hashtable.Table
	TL *timeline.Timeline
}

// LockAll acquires the timeline lock, then every hashtable bucket lock in
// ascending index order. Mirrors lock_all_data_structures's ordering.
func (m *Engine) LockAll() {
	m.TL.Lock()
	for i := 0; i < hashtable.Entries; i++ {
		m.HT.Lock(i)
	}
}

// UnlockAll releases every hashtable bucket lock in descending index order,
// then the timeline lock. Mirrors unlock_all_data_structures.
func (m *Engine) UnlockAll() {
	for i := hashtable.Entries - 1; i >= 0; i-- {
		m.HT.Unlock(i)
	}
	m.TL.Unlock()
}

// Orderer places a request freshly pulled from the hashtable into the
// timeline the way the destination policy wants it ordered.
type Orderer func(tl *timeline.Timeline, req *model.Request, maxAggregation int)

// ByTimestamp orders requests by arrival order in the main timeline (TO).
func ByTimestamp(tl *timeline.Timeline, req *model.Request, maxAggregation int) {
	tl.PushMainOrderedByTimestamp(req)
}

// ByAggregation folds requests into adjacent same-file aggregations before
// falling back to timestamp order (TO-agg).
func ByAggregation(tl *timeline.Timeline, req *model.Request, maxAggregation int) {
	tl.PushMainAggregating(req, maxAggregation)
}

// BySWPriority orders requests by their precomputed SW window priority (SW).
func BySWPriority(tl *timeline.Timeline, req *model.Request, maxAggregation int) {
	tl.PushMainBySWPriority(req)
}

// ByQueueID appends requests to their per-queue-id list (TWINS, WFQ).
func ByQueueID(tl *timeline.Timeline, req *model.Request, maxAggregation int) {
	tl.PushMulti(req)
}

// ToTimelineLocked performs the hashtable -> timeline migration assuming the
// caller already holds every lock via LockAll.
func (m *Engine) ToTimelineLocked(orderer Orderer, maxAggregation int) {
	for i := 0; i < hashtable.Entries; i++ {
		files := m.HT.Files(i)
		for e := files.Front(); e != nil; e = e.Next() {
			f := e.Value.(*model.File)
			drainQueueToTimeline(m.TL, f.ReadQueue, orderer, maxAggregation)
			drainQueueToTimeline(m.TL, f.WriteQueue, orderer, maxAggregation)
		}
	}
}

func drainQueueToTimeline(tl *timeline.Timeline, q *model.Queue, orderer Orderer, maxAggregation int) {
	e := q.List.Front()
	for e != nil {
		next := e.Next()
		req := e.Value.(*model.Request)
		q.List.Remove(e)
		if maxAggregation <= 1 {
			for _, member := range req.Members() {
				member.Queue = q
				orderer(tl, member, maxAggregation)
			}
		} else {
			orderer(tl, req, maxAggregation)
		}
		e = next
	}
}

// ToHashtableLocked performs the timeline -> hashtable migration assuming
// the caller already holds every lock via LockAll. Requests are taken from
// the main timeline (TO/TO-agg/SW) and from every per-queue-id list
// (TWINS/WFQ) and reinserted into their file's read/write queue in offset
// order, respecting maxAggregation.
func (m *Engine) ToHashtableLocked(maxAggregation int) {
	drainTimelineListToHashtable(m, listAccessor{kind: mainList})
	for i := 0; i < m.TL.MultiSize(); i++ {
		drainTimelineListToHashtable(m, listAccessor{kind: multiList, idx: i})
	}
}

type listKind int

const (
	mainList listKind = iota
	multiList
)

type listAccessor struct {
	kind listKind
	idx  int
}

func drainTimelineListToHashtable(m *Engine, acc listAccessor) {
	var l *list.List
	if acc.kind == mainList {
		l = m.TL.UnsafeMain()
	} else {
		l = m.TL.UnsafeMultiList(acc.idx)
	}
	e := l.Front()
	for e != nil {
		next := e.Next()
		req := e.Value.(*model.Request)
		l.Remove(e)
		for _, member := range req.Members() {
			hash := hashtable.Position(member.FileID)
			files := m.HT.Files(hash)
			f := hashtable.FindFile(files, member.FileID)
			if f == nil {
				f = model.NewFile(member.FileID)
				hashtable.InsertFile(files, f)
			}
			q := f.QueueFor(member.Dir)
			member.Queue = q
			aggregate.InsertIntoList(&q.List, member, maxAggregationOrOne(maxAggregation))
		}
		e = next
	}
}

func maxAggregationOrOne(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
