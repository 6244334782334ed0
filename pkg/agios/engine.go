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

// Package agios is the public entry point to the scheduling engine: a
// single Engine, constructed once per process (or per independently
// scheduled subsystem), through which every I/O request is submitted,
// released and cancelled.
//
// Grounded on agios_engine.c's public surface (agios_init/add_request/
// agios_release_request/agios_cancel_request/get_metrics_and_reset/
// agios_exit). The original ABI returns a plain int/bool status from every
// call; this port keeps that shape so a caller that only wants "did it
// work" never has to touch the error package, while still recording the
// underlying typed error on the Engine for callers who want to know why,
// via LastError.
package agios

import (
	"sync"

	"github.com/esalvarez/agios/internal/agios/agioserr"
	"github.com/esalvarez/agios/internal/agios/aggregate"
	"github.com/esalvarez/agios/internal/agioslog"
	"github.com/esalvarez/agios/internal/agios/alist"
	"github.com/esalvarez/agios/internal/agios/config"
	"github.com/esalvarez/agios/internal/agios/dispatch"
	"github.com/esalvarez/agios/internal/agios/hashtable"
	"github.com/esalvarez/agios/internal/agios/metricsexport"
	"github.com/esalvarez/agios/internal/agios/migrate"
	"github.com/esalvarez/agios/internal/agios/model"
	"github.com/esalvarez/agios/internal/agios/perfring"
	"github.com/esalvarez/agios/internal/agios/policy"
	"github.com/esalvarez/agios/internal/agios/scheduler"
	"github.com/esalvarez/agios/internal/agios/stats"
	"github.com/esalvarez/agios/internal/agios/timeline"
	"github.com/esalvarez/agios/internal/agios/trace"
	"github.com/esalvarez/agios/internal/agios/waiting"
)

// ProcessOneFunc is invoked once per dispatched leaf request, unless that
// request carries its own per-request callback (see AddRequest).
type ProcessOneFunc func(userData interface{})

// ProcessBatchFunc, if non-nil, is invoked once per scheduling pass with
// every leaf request dispatched during it, after every per-request
// ProcessOneFunc call for that pass has returned. Mirrors the optional
// process_requests_step2 batch callback some callers of the original
// registered alongside the mandatory per-request one.
type ProcessBatchFunc func(batch []interface{})

// Metrics is the snapshot returned by GetMetricsAndReset, shaped directly
// from the external interface this library's get_metrics_and_reset exposes.
type Metrics struct {
	Total             int64
	Reads             int64
	Writes            int64
	AvgInterArrivalNs float64
	AvgSize           float64
	MaxSize           int64
	FileCount         int64
	AvgOffsetDistance float64
	ServedBytes       int64
}

// Engine is the scheduling engine. The zero value is not usable; construct
// one with Init.
type Engine struct {
	mu     sync.Mutex
	closed bool

	cfg   *config.Config
	clock alist.Clock

	ht  *hashtable.Table
	tl  *timeline.Timeline
	st  *stats.Global
	prf *perfring.Ring

	mig   *migrate.Engine
	sched *scheduler.Scheduler
	rt    *policy.Runtime

	traceSink trace.Sink

	processOne   ProcessOneFunc
	processBatch ProcessBatchFunc

	lastErr error
}

// Init constructs and starts an Engine. processOne is mandatory: it is
// invoked for every dispatched leaf request that does not carry its own
// callback. configPath, if non-empty, is read via config.Load; a missing
// file falls back to defaults. maxQueueID bounds the per-queue-id lists
// TWINS and WFQ round-robin across; pass 0 if neither policy will ever be
// selected.
//
// Grounded on agios_init, which allocates the hashtable, starts the
// scheduling thread under the configured starting algorithm, and opens the
// trace file if tracing is enabled.
func Init(processOne ProcessOneFunc, processBatch ProcessBatchFunc, configPath string, maxQueueID int32) (*Engine, bool) {
	if processOne == nil {
		return nil, false
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, false
	}

	e := &Engine{
		cfg:          cfg,
		clock:        alist.NewSystemClock(),
		ht:           hashtable.New(),
		tl:           timeline.New(maxQueueID),
		st:           stats.NewGlobal(),
		prf:          perfring.NewRing(cfg.PerformanceValues),
		processOne:   processOne,
		processBatch: processBatch,
	}

	initial, err := policy.New(cfg.StartingAlgorithm)
	if err != nil {
		e.lastErr = err
		return nil, false
	}
	applyTunables(initial, cfg)

	e.mig = &migrate.Engine{HT: e.ht, TL: e.tl}
	e.rt = &policy.Runtime{
		HT:       e.ht,
		TL:       e.tl,
		Clock:    e.clock,
		Perf:     e.prf,
		Counters: e.st,
		Dispatch: e.dispatchBatch,
		Waiting:  waiting.Config{WaitingTime: cfg.WaitingTime.Nanoseconds()},
	}
	e.sched = scheduler.New(e.rt, e.mig, initial)
	e.sched.Configure = func(p policy.Policy) { applyTunables(p, cfg) }

	if sink, err := openTraceSink(cfg); err == nil {
		e.traceSink = sink
	} else {
		e.lastErr = err
	}

	if cfg.MetricsAddr != "" {
		metricsexport.Enable(cfg.MetricsAddr)
	}

	e.prf.StartEpoch(initial.Descriptor().Name, e.clock.NowNanos())
	e.sched.Start()
	return e, true
}

// applyTunables pushes config-derived per-policy state into a freshly
// constructed Policy. The registry hands out zero-value instances, so any
// policy carrying a configurable knob beyond its Descriptor must be
// populated here; everything else is self-configuring on first use (e.g.
// aIOLi's NextQuantum, seeded from its own package-level default).
func applyTunables(p policy.Policy, cfg *config.Config) {
	switch v := p.(type) {
	case *policy.TWINS:
		v.ConfigureWindow(cfg.TWINSWindow.Nanoseconds())
	case *policy.WFQ:
		v.Weights = loadWFQWeights(cfg)
	case policy.AIOLi:
		policy.SetAIOLiQuantum(cfg.AIOLiQuantum)
	case policy.MLF:
		policy.SetMLFQuantum(cfg.MLFQuantum)
	}
}

func loadWFQWeights(cfg *config.Config) policy.WFQWeights {
	weights := policy.WFQWeights{}
	if cfg.WFQWeightsFile == "" {
		return weights
	}
	values, err := config.LoadWeights(cfg.WFQWeightsFile)
	if err != nil {
		return weights
	}
	for id, w := range values {
		weights[int32(id)] = w
	}
	return weights
}

func openTraceSink(cfg *config.Config) (trace.Sink, error) {
	if !cfg.Trace {
		return nil, nil
	}
	switch cfg.TraceBackend {
	case "redis":
		return trace.NewRedisSink(cfg.TraceRedisAddr, "agios:trace"), nil
	default:
		path := cfg.TraceFilePrefix + cfg.TraceFileSuffix
		return trace.NewFileSink(path, cfg.MaxTraceBufferSize)
	}
}

// dispatchBatch is policy.Runtime.Dispatch: it runs every dispatched
// request's callback (falling back to the engine-wide processOne) and then,
// if configured, the batch callback. Runs with no data-structure lock held.
func (e *Engine) dispatchBatch(batch []dispatch.Dispatched) {
	userData := make([]interface{}, 0, len(batch))
	for _, d := range batch {
		if d.Callback != nil {
			d.Callback(d.UserData)
		} else {
			e.processOne(d.UserData)
		}
		userData = append(userData, d.UserData)
	}
	if e.processBatch != nil {
		e.processBatch(userData)
	}
}

// lockPlan describes which locks AddRequest/CancelRequest must hold for a
// given policy descriptor.
type lockPlan struct {
	needsTimeline bool
	bucket        int
}

// acquire locks the structures lockPlan names, in the same order migrate.
// Engine.LockAll uses (timeline before any hashtable bucket), so a
// concurrent full-lock migration can never deadlock against a partial lock
// taken here.
func (e *Engine) acquireLocked(plan lockPlan) {
	if plan.needsTimeline {
		e.tl.Lock()
	}
	e.ht.Lock(plan.bucket)
}

func (e *Engine) releaseLocked(plan lockPlan) {
	e.ht.Unlock(plan.bucket)
	if plan.needsTimeline {
		e.tl.Unlock()
	}
}

// planFor derives the lock plan for fileID under desc. Every op needs its
// file's bucket (Files always live in the hashtable); timeline-backed
// policies additionally need the timeline lock to touch pending requests.
func planFor(desc policy.Descriptor, fileID string) lockPlan {
	return lockPlan{needsTimeline: desc.NeedsTimeline, bucket: hashtable.Position(fileID)}
}

// withConsistentLock acquires the locks fileID's current policy needs, then
// re-checks the active descriptor: if a migration completed between the
// speculative read and the lock acquisition, the plan taken may now be
// wrong (e.g. it locked only a bucket when the new policy needs the
// timeline too), so it is released and retried against the corrected
// descriptor. Converges in at most a couple of iterations in practice,
// since dynamic policy changes are rare relative to request traffic.
//
// Grounded on data_structures.c's acquire_adequate_lock, which performs the
// same speculate-lock-verify-retry sequence so add_request/
// release_request/cancel_request never operate against a data structure
// mid-migration.
func (e *Engine) withConsistentLock(fileID string, fn func(desc policy.Descriptor, plan lockPlan)) {
	desc := e.sched.ActiveDescriptor()
	for {
		plan := planFor(desc, fileID)
		e.acquireLocked(plan)

		current := e.sched.ActiveDescriptor()
		if current.Name == desc.Name {
			fn(desc, plan)
			e.releaseLocked(plan)
			return
		}
		e.releaseLocked(plan)
		desc = current
	}
}

// AddRequest submits a new I/O request. dir is model.Read or model.Write.
// queueID identifies the stream this request belongs to, consulted only by
// TWINS and WFQ. perRequestCallback, if non-nil, is invoked instead of the
// engine-wide processOne when this specific request (or, if it gets folded
// into an aggregation, whichever virtual request it ends up a member of)
// is dispatched.
//
// Grounded on agios_add_request.c's add_request: validates the request,
// locates or creates the file, inserts into whichever structure the active
// policy uses, folds the arrival into the statistics module, appends a
// trace line if tracing is enabled, and wakes the scheduler unless NOOP is
// active, in which case dispatch runs inline before returning.
func (e *Engine) AddRequest(fileID string, dir model.Dir, offset, length int64, userData interface{}, queueID int32, perRequestCallback func(interface{})) bool {
	if fileID == "" || length <= 0 || offset < 0 {
		e.setErr(agioserr.ErrInvalidArgument)
		return false
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		e.setErr(agioserr.ErrClosed)
		return false
	}

	now := e.clock.NowNanos()
	req := &model.Request{
		FileID:      fileID,
		Dir:         dir,
		Offset:      offset,
		Len:         length,
		QueueID:     queueID,
		ArrivalTime: now,
		UserData:    userData,
		Callback:    perRequestCallback,
	}

	var aggSize int
	var isNOOP bool
	var batch []dispatch.Dispatched

	e.withConsistentLock(fileID, func(desc policy.Descriptor, plan lockPlan) {
		f, _ := e.ht.FindOrCreateFile(plan.bucket, fileID)
		if f.FirstRequestTime == 0 {
			f.FirstRequestTime = now
		}
		q := f.QueueFor(dir)
		req.Queue = q
		req.Timestamp = nextTimestamp()

		if q.LastReceivedFinalOffset > 0 {
			e.st.NewOffsetDistance(alist.AbsInt64(offset - q.LastReceivedFinalOffset))
		}
		stats.RecordArrival(q, req, now)
		e.st.NewRequest(now, dir, length)

		switch {
		case desc.MultiQueue:
			e.tl.PushMulti(req)
			aggSize = 1
		case desc.Name == "TO-agg":
			aggSize = e.tl.PushMainAggregating(req, desc.MaxAggregation)
		case desc.Name == "SW":
			req.SWPriority = swPriority(now, e.cfg.SWWindow.Nanoseconds(), queueID)
			e.tl.PushMainBySWPriority(req)
			aggSize = 1
		case desc.NeedsTimeline:
			e.tl.PushMain(req)
			aggSize = 1
		default:
			aggSize = aggregate.InsertIntoList(&q.List, req, desc.MaxAggregation)
		}
		q.CurrentSize++
		f.TimelineReqNb++
		stats.RecordAggregation(q, aggSize)

		e.st.PendingRequests.Add(1)
		if f.TimelineReqNb == 1 {
			e.st.PendingFiles.Add(1)
		}

		isNOOP = desc.Name == "NOOP"
		if isNOOP {
			batch = e.noopDrainLocked(f, now)
		}
	})

	if metricsexport.Enabled() {
		metricsexport.ObserveRequest(directionLabel(dir))
		snap := e.st.Snapshot()
		metricsexport.SetPending(snap.PendingRequests, snap.PendingFiles)
		metricsexport.SetAverages(snap.AvgRequestSize, snap.AvgTimeBetweenRequests)
	}

	if e.traceSink != nil {
		_ = e.traceSink.WriteLine(now, fileID, traceOp(dir), offset, length)
	}

	if isNOOP {
		dispatch.Step2(batch, e.dispatchBatch)
	} else {
		e.sched.Kick()
	}
	return true
}

// noopDrainLocked dispatches everything currently queued for f's two
// queues, used when NOOP is active: add_request runs phase one inline
// instead of waking the scheduling thread, since NOOP's own Schedule pass
// would do exactly this on its next tick anyway. Caller must hold f's
// bucket lock.
func (e *Engine) noopDrainLocked(f *model.File, now int64) []dispatch.Dispatched {
	var out []dispatch.Dispatched
	for _, q := range []*model.Queue{f.ReadQueue, f.WriteQueue} {
		for q.List.Len() > 0 {
			req := q.List.Front().Value.(*model.Request)
			out = append(out, dispatch.Step1(req, now, e.st)...)
		}
	}
	return out
}

// ReleaseRequest reports that a previously dispatched request has completed.
// fileID/dir/length/offset must match exactly the extent originally passed
// to AddRequest; an aggregated request's members are released individually.
//
// Grounded on agios_release_request.c: the dispatch list is searched for an
// exact (length, offset) match, removed, and its bandwidth folded into both
// the per-queue and engine-wide statistics and the performance ring.
func (e *Engine) ReleaseRequest(fileID string, dir model.Dir, length, offset int64) bool {
	bucket := hashtable.Position(fileID)
	files := e.ht.Lock(bucket)
	defer e.ht.Unlock(bucket)

	f := hashtable.FindFile(files, fileID)
	if f == nil {
		e.setErr(agioserr.ErrNotFound)
		agioslog.NotFoundf("release: unknown file %s", fileID)
		return false
	}
	q := f.QueueFor(dir)

	now := e.clock.NowNanos()
	for el := q.Dispatch.Front(); el != nil; el = el.Next() {
		req := el.Value.(*model.Request)
		if req.Offset != offset || req.Len != length {
			continue
		}
		req.RemoveFromContainer()
		elapsed := now - req.DispatchTimestamp
		stats.RecordRelease(q, req, elapsed)
		e.st.Released(1, req.Len)
		e.prf.RecordRelease(req.Len)
		return true
	}
	e.setErr(agioserr.ErrNotFound)
	agioslog.NotFoundf("release: no dispatched request %s [%d,%d)", fileID, offset, offset+length)
	return false
}

// CancelRequest removes a still-pending (not yet dispatched) request
// exactly matching fileID/dir/length/offset, whether it sits standalone or
// inside a still-forming aggregation.
//
// Grounded on agios_cancel_request.c, searching whichever structure the
// active policy currently uses for pending requests.
func (e *Engine) CancelRequest(fileID string, dir model.Dir, length, offset int64) bool {
	var found bool
	e.withConsistentLock(fileID, func(desc policy.Descriptor, plan lockPlan) {
		files := e.ht.Files(plan.bucket)
		f := hashtable.FindFile(files, fileID)
		if f == nil {
			return
		}
		q := f.QueueFor(dir)

		var list = &q.List
		if desc.MultiQueue {
			list = e.tl.MultiList(multiIndex(q, e.tl))
		} else if desc.NeedsTimeline {
			list = e.tl.UnsafeMain()
		}

		if aggregate.RemoveMatchingPending(list, q, offset, length) {
			q.CurrentSize--
			f.TimelineReqNb--
			e.st.PendingRequests.Add(-1)
			e.st.DecFileIfEmpty(f)
			found = true
		}
	})
	if !found {
		e.setErr(agioserr.ErrNotFound)
		agioslog.NotFoundf("cancel: no pending request %s [%d,%d)", fileID, offset, offset+length)
	}
	return found
}

// multiIndex resolves which per-queue-id timeline list q's requests were
// routed into. Since requests carry their own QueueID and all of a queue's
// members share the file+direction they arrived under rather than a fixed
// queue id, this scans the pending list for any one member to recover it;
// a queue with nothing pending in the timeline has nothing to cancel
// regardless.
func multiIndex(q *model.Queue, tl *timeline.Timeline) int {
	for i := 0; i < tl.MultiSize(); i++ {
		l := tl.UnsafeMultiList(i)
		for e := l.Front(); e != nil; e = e.Next() {
			if e.Value.(*model.Request).Queue == q {
				return i
			}
		}
	}
	return 0
}

// GetMetricsAndReset returns a snapshot of every engine-wide statistic
// accumulated since the last call (or since Init) and zeroes the running
// window, mirroring get_metrics_and_reset.
func (e *Engine) GetMetricsAndReset() Metrics {
	snap := e.st.Snapshot()
	e.st.Reset()
	return Metrics{
		Total:             snap.TotalArrived,
		Reads:             snap.Reads,
		Writes:            snap.Writes,
		AvgInterArrivalNs: snap.AvgTimeBetweenRequests,
		AvgSize:           snap.AvgRequestSize,
		MaxSize:           snap.MaxRequestSize,
		FileCount:         snap.PendingFiles,
		AvgOffsetDistance: snap.AvgOffsetDistance,
		ServedBytes:       snap.ServedBytes,
	}
}

// RequestAlgorithmChange asks the engine to dynamically switch to the named
// policy at the scheduler's next opportunity, migrating pending requests
// between the hashtable and the timeline as needed.
func (e *Engine) RequestAlgorithmChange(name string) bool {
	if _, err := policy.New(name); err != nil {
		e.setErr(err)
		return false
	}
	e.sched.RequestPolicyChange(name)
	e.st.PolicyChanged()
	if metricsexport.Enabled() {
		metricsexport.ObservePolicyChange()
	}
	return true
}

// Exit stops the scheduling thread and releases any held resources (trace
// sink, metrics endpoint left running). The Engine must not be used
// afterward.
//
// Grounded on agios_exit.
func (e *Engine) Exit() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.sched.Stop()
	if e.traceSink != nil {
		_ = e.traceSink.Flush()
		_ = e.traceSink.Close()
	}
}

// LastError returns the most recent typed error recorded by a failed call,
// or nil. Every public method that can return false sets this first, so
// callers that need errors.Is-level detail beyond the bool result can
// inspect it immediately after a failed call.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) setErr(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

var tsCounter struct {
	mu  sync.Mutex
	cur int64
}

// nextTimestamp hands out a strictly increasing insertion-order counter,
// used to break ties in FIFO-sensitive orderings (TO's timeline order,
// aggregation bound recomputation) independent of clock resolution.
func nextTimestamp() int64 {
	tsCounter.mu.Lock()
	defer tsCounter.mu.Unlock()
	tsCounter.cur++
	return tsCounter.cur
}

// swPriority computes SW's window-bucketed ordering key: requests are
// grouped into fixed-width arrival windows, and within a window ordered by
// queue id, so that streams sharing a window interleave by the caller's own
// stream identifier rather than by raw arrival jitter.
//
// Grounded on req_timeline.c's sw_priority computation.
func swPriority(now, windowNanos int64, queueID int32) int64 {
	if windowNanos <= 0 {
		windowNanos = 1
	}
	return (now/windowNanos)*32768 + int64(queueID)
}

func directionLabel(dir model.Dir) string {
	if dir == model.Read {
		return "read"
	}
	return "write"
}

func traceOp(dir model.Dir) byte {
	if dir == model.Read {
		return 'R'
	}
	return 'W'
}
