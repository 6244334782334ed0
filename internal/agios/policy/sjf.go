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
	"github.com/esalvarez/agios/internal/agios/hashtable"
	"github.com/esalvarez/agios/internal/agios/model"
)

// SJF (shortest job first) picks, among every file's non-empty read and
// write queues, the one whose pending size is smallest, and dispatches its
// entire pending list as one batch before picking again. It is the engine's
// default algorithm.
//
// Grounded on SJF.c, which scans the hashtable for the queue with the
// lowest sum of pending request sizes and dispatches every request in it
// (SJF does not aggregate: it relies on an already-short list per file).
type SJF struct{}

func (SJF) Descriptor() Descriptor {
	return Descriptor{Name: "SJF", NeedsTimeline: false, MaxAggregation: 1}
}

func (SJF) Schedule(rt *Runtime) time.Duration {
	now := rt.now()
	var batch []dispatch.Dispatched

	var best *model.Queue
	var bestSize int64 = -1
	bestBucket := -1
	for i := 0; i < hashtable.Entries; i++ {
		files := rt.HT.Lock(i)
		for e := files.Front(); e != nil; e = e.Next() {
			f := e.Value.(*model.File)
			for _, q := range []*model.Queue{f.ReadQueue, f.WriteQueue} {
				size := queuePendingBytes(q)
				if q.List.Len() == 0 {
					continue
				}
				if bestSize < 0 || size < bestSize {
					best, bestSize, bestBucket = q, size, i
				}
			}
		}
		rt.HT.Unlock(i)
	}

	if best != nil {
		// The bucket lock was dropped after the pick, so best may have
		// changed since; whatever it holds now is dispatched.
		rt.HT.Lock(bestBucket)
		for best.List.Len() > 0 {
			req := best.List.Front().Value.(*model.Request)
			batch = append(batch, dispatch.Step1(req, now, rt.Counters)...)
		}
		rt.HT.Unlock(bestBucket)
	}

	dispatch.Step2(batch, rt.Dispatch)
	if len(batch) == 0 {
		return DefaultIdleSleep
	}
	return NoSleepHint
}

func queuePendingBytes(q *model.Queue) int64 {
	var total int64
	for e := q.List.Front(); e != nil; e = e.Next() {
		total += e.Value.(*model.Request).Len
	}
	return total
}
