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

// Package stats implements the engine-wide and per-queue running
// statistics fed by every request arrival, dispatch and release, plus the
// global in-flight counters, which are read without taking the hashtable or
// timeline locks.
//
// Grounded on statistics.c's update_local_stats/update_global_stats_newreq/
// statistics_newreq/reset_all_statistics.
package stats

import (
	"sync"
	"sync/atomic"

	"github.com/esalvarez/agios/internal/agios/alist"
	"github.com/esalvarez/agios/internal/agios/model"
	"github.com/esalvarez/agios/internal/agios/shardcounter"
)

// Global holds engine-wide counters written on every arrival/dispatch/
// release. PendingRequests and PendingFiles use shardcounter so that
// Snapshot (called from AddRequest's metrics push and from
// GetMetricsAndReset) reads them without contending with their writers. The
// scheduling loop itself does not read them.
type Global struct {
	PendingRequests *shardcounter.Counter
	PendingFiles    *shardcounter.Counter

	mu                 sync.Mutex
	totalArrived       int64
	reads              int64
	writes             int64
	totalDispatched    int64
	totalReleased      int64
	avgTimeBetweenReqs float64
	lastArrival        int64
	policyChanges      int64

	avgReqSize      float64
	maxReqSize      int64
	avgOffsetDist   float64
	offsetDistCount int64
	servedBytes     int64
}

// NewGlobal returns a ready-to-use Global.
func NewGlobal() *Global {
	return &Global{
		PendingRequests:    shardcounter.New(),
		PendingFiles:       shardcounter.New(),
		avgTimeBetweenReqs: -1,
		avgReqSize:         -1,
		avgOffsetDist:      -1,
	}
}

// NewRequest records a newly arrived request's effect on the global
// counters, mirroring update_global_stats_newreq/statistics_newreq: arrival
// count by direction, inter-arrival time, request size and max size.
func (g *Global) NewRequest(now int64, dir model.Dir, size int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.totalArrived++
	if dir == model.Read {
		g.reads++
	} else {
		g.writes++
	}
	if g.lastArrival > 0 {
		delta := float64(now - g.lastArrival)
		g.avgTimeBetweenReqs = alist.UpdateIterativeAverage(g.avgTimeBetweenReqs, delta, g.totalArrived-1)
	}
	g.lastArrival = now
	g.avgReqSize = alist.UpdateIterativeAverage(g.avgReqSize, float64(size), g.totalArrived)
	if size > g.maxReqSize {
		g.maxReqSize = size
	}
}

// NewOffsetDistance folds the distance between this request's offset and
// the previous request's final offset on the same file into the
// engine-wide running average, mirroring update_local_stats's distance
// computation applied globally instead of per queue.
func (g *Global) NewOffsetDistance(distance int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.offsetDistCount++
	g.avgOffsetDist = alist.UpdateIterativeAverage(g.avgOffsetDist, float64(distance), g.offsetDistCount)
}

// Dispatched records n member requests leaving the pending state.
func (g *Global) Dispatched(n int64) {
	atomic.AddInt64(&g.totalDispatched, n)
}

// DecRequests implements dispatch.Counters: it drops PendingRequests by n
// and folds the departures into the dispatched total, mirroring
// process_requests_step1's current_reqnb decrement.
func (g *Global) DecRequests(n int64) {
	g.PendingRequests.Add(-n)
	g.Dispatched(n)
}

// DecFileIfEmpty implements dispatch.Counters: it drops PendingFiles by one
// if f has nothing left queued anywhere, mirroring the hashtable's
// req_file_table_reqcounter bookkeeping.
func (g *Global) DecFileIfEmpty(f *model.File) {
	if f.TimelineReqNb <= 0 {
		g.PendingFiles.Add(-1)
	}
}

// Released records n member requests completing, having served bytes total
// across them.
func (g *Global) Released(n, bytes int64) {
	atomic.AddInt64(&g.totalReleased, n)
	atomic.AddInt64(&g.servedBytes, bytes)
}

// PolicyChanged increments the policy-change counter.
func (g *Global) PolicyChanged() {
	atomic.AddInt64(&g.policyChanges, 1)
}

// Snapshot is a point-in-time read of every Global counter, shaped to feed
// get_metrics_and_reset's Metrics result directly.
type Snapshot struct {
	PendingRequests        int64
	PendingFiles           int64
	TotalArrived           int64
	Reads                  int64
	Writes                 int64
	TotalDispatched        int64
	TotalReleased          int64
	AvgTimeBetweenRequests float64
	PolicyChanges          int64

	AvgRequestSize    float64
	MaxRequestSize    int64
	AvgOffsetDistance float64
	ServedBytes       int64
}

// Snapshot returns the current values of every counter.
func (g *Global) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		PendingRequests:        g.PendingRequests.Load(),
		PendingFiles:           g.PendingFiles.Load(),
		TotalArrived:           g.totalArrived,
		Reads:                  g.reads,
		Writes:                 g.writes,
		TotalDispatched:        atomic.LoadInt64(&g.totalDispatched),
		TotalReleased:          atomic.LoadInt64(&g.totalReleased),
		AvgTimeBetweenRequests: g.avgTimeBetweenReqs,
		PolicyChanges:          atomic.LoadInt64(&g.policyChanges),
		AvgRequestSize:         g.avgReqSize,
		MaxRequestSize:         g.maxReqSize,
		AvgOffsetDistance:      g.avgOffsetDist,
		ServedBytes:            atomic.LoadInt64(&g.servedBytes),
	}
}

// Reset zeroes every running average and counter ahead of a dynamic
// algorithm re-selection window, mirroring reset_all_statistics. Pending
// counters are left untouched since they track live state, not a window.
func (g *Global) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.totalArrived = 0
	g.reads = 0
	g.writes = 0
	g.totalDispatched = 0
	g.totalReleased = 0
	g.avgTimeBetweenReqs = -1
	g.lastArrival = 0
	g.avgReqSize = -1
	g.maxReqSize = 0
	g.avgOffsetDist = -1
	g.offsetDistCount = 0
	g.servedBytes = 0
}

// RecordArrival folds a newly queued request into q's running statistics:
// received count, inter-arrival time and distance from the last request's
// final offset. Mirrors update_local_stats's "new request" branch.
func RecordArrival(q *model.Queue, req *model.Request, now int64) {
	s := &q.Stats
	s.ReceivedReqNb++

	if q.LastReqTime > 0 {
		delta := float64(now - q.LastReqTime)
		s.AvgTimeBetweenRequests = alist.UpdateIterativeAverage(s.AvgTimeBetweenRequests, delta, s.ReceivedReqNb-1)
	}
	q.LastReqTime = now

	if q.LastReceivedFinalOffset > 0 {
		dist := float64(alist.AbsInt64(req.Offset - q.LastReceivedFinalOffset))
		s.AvgDistance = alist.UpdateIterativeAverage(s.AvgDistance, dist, s.ReceivedReqNb-1)
	}
	q.LastReceivedFinalOffset = req.Offset + req.Len

	s.AvgReqSize = alist.UpdateIterativeAverage(s.AvgReqSize, float64(req.Len), s.ReceivedReqNb)
}

// RecordAggregation folds a freshly formed aggregation's size into q's
// running aggregation statistics, mirroring stats_aggregation.
func RecordAggregation(q *model.Queue, memberCount int) {
	if memberCount <= 1 {
		return
	}
	s := &q.Stats
	s.AggsNo++
	s.AvgAggSize = alist.UpdateIterativeAverage(s.AvgAggSize, float64(memberCount), s.AggsNo)
	if int64(memberCount) > s.BestAgg {
		s.BestAgg = int64(memberCount)
	}
}

// RecordRelease folds a completed request's size and bandwidth into q's
// running processed statistics, mirroring agios_release_request.c's
// bandwidth/performance bookkeeping.
func RecordRelease(q *model.Queue, req *model.Request, elapsedNanos int64) {
	s := &q.Stats
	s.ProcessedReqNb++
	s.ReleasedReqNb++
	s.ProcessedReqSize += req.Len

	if elapsedNanos > 0 {
		bw := float64(req.Len) / (float64(elapsedNanos) / 1e9)
		s.ProcessedBandwidth = alist.UpdateIterativeAverage(s.ProcessedBandwidth, bw, s.ProcessedReqNb)
	}
}
