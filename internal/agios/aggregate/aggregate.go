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

// Package aggregate implements AGIOS's request-fusing engine: contiguous,
// same-file, same-direction requests are folded into a single "virtual"
// request capped at a policy-specific size (1 request for policies that
// disable aggregation, up to a fixed ceiling for TO-agg, MLF and aIOLi), and
// split back into their members when a dynamic policy change migrates them
// to a policy with a lower cap.
//
// Grounded on agios_add_request.c's include_in_aggregation/join_aggregations
// /insert_aggregations. The three-way join performed there when a new
// request bridges two already-contiguous neighbors is not reproduced bit for
// bit: this package only extends one existing neighbor per insertion, which
// still converges to the same capped aggregation as requests keep arriving
// in order, at the cost of occasionally leaving two adjacent sub-maximal
// aggregations that a later insertion (or never, if no further request
// arrives) would merge. See DESIGN.md for the tradeoff.
//
// Insert and SplitInPlace work against a raw container/list.List rather
// than model.Queue directly, so the same logic serves both a per-file
// hashtable queue (used by SJF/MLF/aIOLi) and the shared timeline list (used
// by TO-agg), which req_timeline.c shows applying the identical aggregation
// test against "same globalinfo" neighbors regardless of which physical
// structure holds the request.
package aggregate

import (
	"container/list"
	"sort"

	"github.com/esalvarez/agios/internal/agios/model"
)

// MaxAggregationSize is the hard ceiling on aggregation size, mirroring
// MAX_AGGREG_SIZE. Individual policies may request a smaller cap (or 1, to
// disable aggregation entirely) but never a larger one.
const MaxAggregationSize = 16

// contiguous reports whether b starts inside or exactly at the end of a's
// extent, so the two can be folded into a single aggregation. This also
// covers overlapping requests (b starting strictly before a ends), not just
// requests that touch at the boundary.
func contiguous(a, b *model.Request) bool {
	return a.Offset <= b.Offset && b.Offset <= a.Offset+a.Len
}

func members(r *model.Request) []*model.Request {
	if r.IsVirtual() {
		return r.Children
	}
	return []*model.Request{r}
}

func buildVirtual(ms []*model.Request) *model.Request {
	sort.Slice(ms, func(i, j int) bool { return ms[i].Offset < ms[j].Offset })
	first := ms[0]
	minOffset, maxEnd, arrival, ts := bounds(ms)
	v := &model.Request{
		FileID:   first.FileID,
		Dir:      first.Dir,
		Offset:   minOffset,
		Len:      maxEnd - minOffset,
		QueueID:  first.QueueID,
		Queue:    first.Queue,
		Children: ms,
	}
	v.ArrivalTime = arrival
	v.Timestamp = ts
	return v
}

// bounds scans every member of ms (not just the offset-sorted ends) because
// overlapping members can leave a lower-offset request extending further
// than the one with the highest offset.
func bounds(ms []*model.Request) (minOffset, maxEnd, arrival, ts int64) {
	first := ms[0]
	minOffset, maxEnd = first.Offset, first.Offset+first.Len
	arrival, ts = first.ArrivalTime, first.Timestamp
	for _, m := range ms[1:] {
		if m.Offset < minOffset {
			minOffset = m.Offset
		}
		if m.Offset+m.Len > maxEnd {
			maxEnd = m.Offset + m.Len
		}
		if m.ArrivalTime < arrival {
			arrival = m.ArrivalTime
		}
		if m.Timestamp < ts {
			ts = m.Timestamp
		}
	}
	return minOffset, maxEnd, arrival, ts
}

// sameGroup reports whether two requests belong to the same file+direction
// queue, i.e. whether they are eligible to be fused together.
func sameGroup(a, b *model.Request) bool { return a.Queue == b.Queue }

// InsertIntoList adds req into l (ordered by offset among same-queue
// neighbors), attempting to fuse it into an adjacent same-queue request when
// maxAggregation > 1 and that neighbor has spare capacity. It returns the
// resulting aggregation size, or 1 if req was inserted standalone.
func InsertIntoList(l *list.List, req *model.Request, maxAggregation int) int {
	if maxAggregation > 1 {
		for e := l.Front(); e != nil; e = e.Next() {
			cur := e.Value.(*model.Request)
			if !sameGroup(cur, req) || cur.Count() >= maxAggregation {
				continue
			}
			switch {
			case contiguous(cur, req):
				merged := buildVirtual(append(members(cur), req))
				merged.Elem = e
				merged.Container = l
				e.Value = merged
				return merged.Count()
			case contiguous(req, cur):
				merged := buildVirtual(append([]*model.Request{req}, members(cur)...))
				merged.Elem = e
				merged.Container = l
				e.Value = merged
				return merged.Count()
			}
		}
	}
	insertOffsetOrderedInList(l, req)
	return 1
}

func insertOffsetOrderedInList(l *list.List, req *model.Request) {
	req.Container = l
	for e := l.Front(); e != nil; e = e.Next() {
		if e.Value.(*model.Request).Offset > req.Offset {
			req.Elem = l.InsertBefore(req, e)
			return
		}
	}
	req.Elem = l.PushBack(req)
}

// Insert adds req to queue q, see InsertIntoList. It also keeps q's
// CurrentSize member count in sync.
func Insert(q *model.Queue, req *model.Request, maxAggregation int) int {
	n := InsertIntoList(&q.List, req, maxAggregation)
	q.CurrentSize++
	return n
}

// SplitListInPlace expands every virtual (aggregated) request currently in l
// back into its member requests, each reinserted as a standalone entry in
// offset order. Used when a dynamic policy change migrates to a policy
// whose max aggregation size is 1.
func SplitListInPlace(l *list.List) {
	e := l.Front()
	for e != nil {
		nextE := e.Next()
		req := e.Value.(*model.Request)
		if req.IsVirtual() {
			l.Remove(e)
			for _, m := range req.Children {
				insertOffsetOrderedInList(l, m)
			}
		}
		e = nextE
	}
}

// SplitInPlace is SplitListInPlace applied to a model.Queue's pending list.
func SplitInPlace(q *model.Queue) {
	SplitListInPlace(&q.List)
}

// RemoveMatchingPending searches l for a pending request belonging to q
// whose (offset, length) exactly matches either a standalone simple request
// or a member inside a still-pending aggregation, removes it, and reports
// whether a match was found.
//
// Grounded on agios_cancel_request.c's pending-list search: a match inside
// an aggregation is spliced out of Children, and the remaining members are
// regrouped into runs of mutually contiguous requests. The first run keeps
// the aggregation's list position and any further run (left behind a gap
// the removed member opened) is inserted right after it, in offset order. A
// run of two or more members is an aggregation whose offset/len (and
// arrival/timestamp, used for FIFO ordering) are recomputed from its
// members; a run of one is the plain request itself.
func RemoveMatchingPending(l *list.List, q *model.Queue, offset, length int64) bool {
	for e := l.Front(); e != nil; e = e.Next() {
		req := e.Value.(*model.Request)
		if req.Queue != q {
			continue
		}
		if !req.IsVirtual() {
			if req.Offset == offset && req.Len == length {
				req.RemoveFromContainer()
				return true
			}
			continue
		}
		for i, m := range req.Children {
			if m.Offset != offset || m.Len != length {
				continue
			}
			rest := append(req.Children[:i:i], req.Children[i+1:]...)
			at, start, end := e, 0, rest[0].Offset+rest[0].Len
			for j := 1; j <= len(rest); j++ {
				if j < len(rest) && rest[j].Offset <= end {
					if e2 := rest[j].Offset + rest[j].Len; e2 > end {
						end = e2
					}
					continue
				}
				entry := rest[start]
				if j-start > 1 && start == 0 {
					req.Children = rest[:j:j]
					recomputeBounds(req)
					entry = req
				} else if j-start > 1 {
					entry = buildVirtual(rest[start:j:j])
				}
				if start > 0 {
					at = l.InsertAfter(entry, at)
				}
				entry.Elem, entry.Container, at.Value = at, l, entry
				if j < len(rest) {
					start, end = j, rest[j].Offset+rest[j].Len
				}
			}
			return true
		}
	}
	return false
}

func recomputeBounds(req *model.Request) {
	minOffset, maxEnd, arrival, ts := bounds(req.Children)
	req.Offset = minOffset
	req.Len = maxEnd - minOffset
	req.ArrivalTime = arrival
	req.Timestamp = ts
}
