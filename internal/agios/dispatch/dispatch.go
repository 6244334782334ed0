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

// Package dispatch implements the two-phase handoff of a selected request
// (or aggregation) back to the caller: phase one runs under whichever lock
// protects the request's current container (a hashtable bucket or the
// timeline) and only touches in-memory bookkeeping; phase two runs with no
// locks held and invokes the caller-supplied callback, so a slow or
// re-entrant callback can never stall another goroutine trying to add,
// release or cancel a request.
//
// Grounded on process_request.c's process_requests_step1/step2.
package dispatch

import (
	"github.com/esalvarez/agios/internal/agios/model"
	"github.com/esalvarez/agios/internal/agioslog"
)

// Dispatched describes a single leaf request handed back to the caller.
// An aggregated request expands into one Dispatched per member.
type Dispatched struct {
	FileID   string
	Dir      model.Dir
	Offset   int64
	Len      int64
	QueueID  int32
	UserData interface{}
	Callback func(userData interface{})
}

// Counters receives the bookkeeping side effects of moving requests out of
// the active queue: how many member requests left, and whether the file
// they belonged to now has nothing left queued anywhere.
type Counters interface {
	DecRequests(n int64)
	DecFileIfEmpty(f *model.File)
}

// Step1 moves req (a simple or aggregated request) from its queue's pending
// list into its dispatch list, updates the queue/file/global bookkeeping,
// and returns the flattened list of leaf requests ready for the phase-two
// callback. For a virtual (aggregated) request, each member is pushed onto
// the dispatch list individually rather than the aggregate as a whole,
// because release_request/cancel_request locate a request by its own exact
// (length, offset), not the aggregate's combined extent. The caller must
// hold the lock protecting req's current container (hashtable bucket or
// timeline) when calling this.
//
// Every dispatch also records req's member count onto its queue as
// LastAggregation, the one piece of generic_post_process's bookkeeping that
// every policy needs regardless of whether it consults the waiting package.
func Step1(req *model.Request, now int64, counters Counters) []Dispatched {
	q := req.Queue
	if q == nil || q.File == nil {
		agioslog.Fatalf("dispatch: request for %s has no owning queue, selection logic is broken", req.FileID)
	}
	f := q.File

	req.RemoveFromContainer()

	members := req.Members()
	n := int64(len(members))
	q.LastAggregation = len(members)
	out := make([]Dispatched, 0, len(members))
	for _, m := range members {
		m.DispatchTimestamp = now
		m.Container = &q.Dispatch
		m.Elem = q.Dispatch.PushBack(m)
		out = append(out, Dispatched{
			FileID:   m.FileID,
			Dir:      m.Dir,
			Offset:   m.Offset,
			Len:      m.Len,
			QueueID:  m.QueueID,
			UserData: m.UserData,
			Callback: m.Callback,
		})
	}

	q.CurrentSize -= n
	f.TimelineReqNb -= n
	counters.DecRequests(n)
	counters.DecFileIfEmpty(f)

	return out
}

// Step2 invokes cb with the accumulated batch, if non-empty. The caller must
// not hold any data-structure lock at this point.
func Step2(batch []Dispatched, cb func([]Dispatched)) {
	if len(batch) == 0 {
		return
	}
	cb(batch)
}
