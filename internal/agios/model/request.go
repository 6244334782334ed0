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

// Package model holds the engine's core data types: requests, per-file
// read/write queues and their statistics. It corresponds to the request_t /
// queue_t / file_t structures of the scheduler this engine reimplements,
// adapted to Go idioms: container/list gives O(1) removal given a retained
// *list.Element instead of hand-rolled intrusive list pointers, and the
// C sum-type split between a "simple" and "virtual" (aggregated) request is
// collapsed into a single Request whose Children slice is nil for a simple
// request and non-empty for an aggregated one.
package model

import "container/list"

// Dir is the direction of an I/O request.
type Dir int

const (
	Read Dir = iota
	Write
)

func (d Dir) String() string {
	if d == Read {
		return "R"
	}
	return "W"
}

// Handle identifies the file targeted by a request; it is the key used to
// locate (or create) a File in the hashtable.
type Handle struct {
	FileID string
}

// Request is a single I/O request, or an aggregation of contiguous
// same-file, same-direction requests (when Children is non-empty).
type Request struct {
	FileID  string
	Dir     Dir
	Offset  int64
	Len     int64
	QueueID int32

	// ArrivalTime is the nanosecond timestamp (relative to engine start)
	// at which AddRequest observed this request.
	ArrivalTime int64
	// Timestamp is a strictly increasing insertion-order counter, used to
	// keep the main timeline in arrival order when requests are moved into
	// it and as aIOLi's earliest-head tie-break across files.
	Timestamp int64
	// DispatchTimestamp is set by the two-phase dispatcher right before a
	// request's callback is invoked; it is used to attribute the request to
	// the performance epoch that was active when it was dispatched.
	DispatchTimestamp int64

	// SchedFactor is MLF/aIOLi's per-request "age" counter: every time the
	// queue is scanned without this request being selected, it grows,
	// eventually letting the request qualify under the running quantum.
	SchedFactor int64
	// SWPriority orders requests inside a timeline ran by the SW policy.
	SWPriority int64

	// Queue is the read or write queue this request currently lives in
	// ("globalinfo" in the source this models).
	Queue *Queue
	// Elem is this request's node within whatever container.List currently
	// holds it (Queue.List, Queue.Dispatch, or a timeline list), enabling
	// O(1) removal without a linear scan. Container is that same list,
	// recorded because Cancel/Release need to call List.Remove(Elem) on the
	// exact list.List the element belongs to, and which one that is varies
	// with the active scheduling policy (per-file queue vs. shared
	// timeline).
	Elem      *list.Element
	Container *list.List

	// Children holds the member requests of an aggregation. A Request with
	// a nil Children is a simple request; one with two or more is the
	// "virtual" request produced by the aggregation engine.
	Children []*Request

	// UserData is opaque caller context handed back unchanged on dispatch;
	// it lets callers avoid a side-table keyed by (FileID, Offset, Len).
	UserData interface{}

	// Callback, if set, is invoked instead of the engine-wide process-one
	// callback when this specific request is dispatched, mirroring
	// add_request's optional per-request callback.
	Callback func(userData interface{})
}

// IsVirtual reports whether this request is an aggregation of other
// requests.
func (r *Request) IsVirtual() bool { return len(r.Children) > 0 }

// Count returns the number of original requests folded into r: 1 for a
// simple request, len(Children) for an aggregation.
func (r *Request) Count() int {
	if r.IsVirtual() {
		return len(r.Children)
	}
	return 1
}

// Members returns the individual requests represented by r: []r{r} for a
// simple request, or Children for an aggregation. Used by anything that
// must walk leaf requests regardless of aggregation.
func (r *Request) Members() []*Request {
	if r.IsVirtual() {
		return r.Children
	}
	return []*Request{r}
}

// RemoveFromContainer detaches r from whichever list.List currently holds
// it (a per-file queue's pending list, a timeline list, or a dispatch
// list), regardless of which one that is. A no-op if r is not currently in
// any list. Caller must hold the lock protecting that container.
func (r *Request) RemoveFromContainer() {
	if r.Container != nil && r.Elem != nil {
		r.Container.Remove(r.Elem)
	}
	r.Elem = nil
	r.Container = nil
}

// QueueStats accumulates running statistics for a single read or write
// queue. Average fields are seeded at -1 to mean "no observations yet",
// mirroring init_queue_statistics.
type QueueStats struct {
	ReceivedReqNb  int64
	ProcessedReqNb int64
	ReleasedReqNb  int64

	ProcessedReqSize   int64
	ProcessedBandwidth float64 // bytes/ns running average

	AvgReqSize             float64
	AvgTimeBetweenRequests float64
	AvgDistance            float64

	AggsNo     int64
	AvgAggSize float64
	BestAgg    int64
}

// NewQueueStats returns a QueueStats with all running averages marked
// unset.
func NewQueueStats() QueueStats {
	return QueueStats{
		ProcessedBandwidth:     -1,
		AvgReqSize:             -1,
		AvgTimeBetweenRequests: -1,
		AvgDistance:            -1,
		AvgAggSize:             -1,
	}
}

// Reset clears a QueueStats back to its post-construction state, used when
// the engine resets statistics ahead of a dynamic policy re-selection.
func (s *QueueStats) Reset() {
	*s = NewQueueStats()
}

// Queue is one of a File's two request queues (read or write). Under the
// hashtable-backed policies, pending requests are kept in List in offset
// order; timeline-backed policies leave List empty and hold the queue's
// pending requests in the timeline. Dispatch holds requests that have left
// the pending structures in dispatch phase one but have not yet been
// released by the caller.
type Queue struct {
	Dir  Dir
	File *File

	List     list.List
	Dispatch list.List

	// CurrentSize is the number of member requests (aggregations count for
	// their full membership) currently pending for this queue, whether they
	// sit in List or in a timeline.
	CurrentSize int64

	Stats QueueStats

	LastReqTime              int64
	LastReceivedFinalOffset  int64

	// NextQuantum carries aIOLi/MLF's per-queue quantum across scheduling
	// passes.
	NextQuantum int64

	// LastAggregation records the member count (reqnb) of the most recently
	// dispatched request from this queue, written by dispatch.Step1 right
	// after selection and read by the waiting package's better-aggregation
	// detector on the next request.
	LastAggregation int

	// LastFinalOffset/PredictedOffset/LastStartOffset implement the
	// shift-phenomenon and better-aggregation-belief heuristics used by the
	// MLF and aIOLi policies. They are per-direction (read and write
	// traffic to the same file keep independent shift state), mirroring
	// queue_t rather than file_t in the source this models.
	LastFinalOffset int64
	PredictedOffset int64
	LastStartOffset int64
}

// NewQueue returns an empty, initialized Queue for the given direction.
func NewQueue(dir Dir, f *File) *Queue {
	q := &Queue{Dir: dir, File: f, Stats: NewQueueStats()}
	q.List.Init()
	q.Dispatch.Init()
	return q
}

// Empty reports whether List has no pending requests.
func (q *Queue) Empty() bool { return q.List.Len() == 0 }

// File holds per-file state: its two queues and the shared waiting-time
// bookkeeping used by the MLF and aIOLi policies to detect sequential
// access shifted by a constant offset, or a belief that waiting briefly
// would allow a better aggregation.
type File struct {
	FileID     string
	ReadQueue  *Queue
	WriteQueue *Queue

	// TimelineReqNb is the number of this file's requests currently queued
	// anywhere (read queue, write queue, or a timeline), used to keep the
	// engine's pending-file count. Files are never dropped from the
	// hashtable's ordered file list.
	TimelineReqNb int64

	FirstRequestTime int64

	// WaitingTime is nanoseconds remaining in an imposed wait; <=0 means
	// the file is not currently waiting. Set by the waiting module.
	WaitingTime int64

	// Elem is this file's position in its hashtable bucket's ordered file
	// list, matching find_req_file's linear FileID-ordered scan.
	Elem *list.Element
}

// NewFile allocates a File with empty read/write queues.
func NewFile(fileID string) *File {
	f := &File{FileID: fileID}
	f.ReadQueue = NewQueue(Read, f)
	f.WriteQueue = NewQueue(Write, f)
	return f
}

// QueueFor returns the read or write queue matching dir.
func (f *File) QueueFor(dir Dir) *Queue {
	if dir == Read {
		return f.ReadQueue
	}
	return f.WriteQueue
}

// HasPending reports whether either queue still holds requests.
func (f *File) HasPending() bool {
	return !f.ReadQueue.Empty() || !f.WriteQueue.Empty()
}
