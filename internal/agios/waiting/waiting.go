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

// Package waiting implements the shift-phenomenon and
// better-aggregation-belief heuristics used by the MLF and aIOLi policies to
// decide that a file about to be scheduled should instead wait a short,
// bounded amount of time for a request that would let it form a larger
// aggregation or continue a detected access pattern.
//
// Grounded on waiting_common.c. This port keeps its structure (two
// detectors, checked as mutually exclusive branches, either able to arm a
// file's WaitingTime) with no shift-size threshold: any overshoot of the
// predicted offset counts. The only tunable is Config.WaitingTime.
package waiting

import (
	"github.com/esalvarez/agios/internal/agios/model"
)

// Config holds the tunable both detectors use.
type Config struct {
	// WaitingTime is how long (ns) a file is made to wait once a detector
	// fires, mirroring config_waiting_time.
	WaitingTime int64
}

// DefaultConfig mirrors agios_config.c's config_waiting_time default of
// 900000ns.
func DefaultConfig() Config {
	return Config{WaitingTime: 900_000}
}

// IncrementSchedFactor advances req's schedule factor: the first increment
// sets it to 1, every following one doubles it. Used by MLF and aIOLi to
// grow a request's effective quantum the longer it waits unselected.
//
// Grounded on waiting_common.c's increment_sched_factor.
func IncrementSchedFactor(req *model.Request) {
	if req.SchedFactor <= 0 {
		req.SchedFactor = 1
	} else {
		req.SchedFactor *= 2
	}
}

// UpdateWaitingTimeCounters decrements f's remaining wait by elapsedNanos
// (time since this file was last checked) and folds the remainder into
// shortest, the running minimum the caller will sleep for if every file
// turns out to be waiting this pass.
func UpdateWaitingTimeCounters(f *model.File, elapsedNanos int64, shortest *int64) {
	if f.WaitingTime <= 0 {
		return
	}
	if f.WaitingTime > elapsedNanos {
		f.WaitingTime -= elapsedNanos
		if f.WaitingTime < *shortest {
			*shortest = f.WaitingTime
		}
	} else {
		f.WaitingTime = 0
	}
}

// CheckSelection decides whether req may be dispatched now, or whether its
// file should instead be put on a wait in the hope of a better outcome. It
// returns false when it has armed f.WaitingTime and the caller must not
// dispatch req this pass.
//
// Two mutually exclusive heuristics can trigger a wait, checked in order:
//
//   - shift phenomenon: a previous dispatch predicted where the next
//     contiguous request would land (req.Queue.PredictedOffset); if this
//     request's offset overshoots that prediction, one of the processes
//     issuing requests to this queue is running a little behind, and
//     waiting a moment lets the actually-contiguous request arrive and be
//     aggregated in. The prediction is always cleared after this check,
//     whether or not it fired, so a queue that is never rechecked cannot
//     starve with a stale prediction.
//   - better aggregation belief: only consulted when there is no live
//     shift prediction. If the queue's last dispatch was a bigger
//     aggregation than this one and this request's offset has moved past
//     the last dispatched extent, waiting briefly may let a similarly
//     large aggregation form again.
//
// Grounded on waiting_common.c's check_selection.
func CheckSelection(cfg Config, req *model.Request, f *model.File) bool {
	if f.WaitingTime > 0 {
		return false
	}

	q := req.Queue
	if q.PredictedOffset != 0 {
		if req.Offset > q.PredictedOffset {
			f.WaitingTime = cfg.WaitingTime
		}
		// Cleared unconditionally to avoid starvation.
		q.PredictedOffset = 0
	} else if req.Offset > q.LastFinalOffset && q.LastAggregation > req.Count() {
		f.WaitingTime = cfg.WaitingTime
		q.LastAggregation = 0
	}

	return f.WaitingTime <= 0
}

// PostProcess updates a queue's shift-detection bookkeeping after req was
// selected for dispatch (whether or not it came from this package's
// detectors). Called exactly once per dispatched request, right after
// dispatch.Step1 has moved it out of the pending structures; it reads only
// req's offset, length and queue.
//
// Grounded on waiting_common.c's waiting_algorithms_postprocess.
func PostProcess(req *model.Request) {
	q := req.Queue
	q.LastFinalOffset = req.Offset + req.Len
	if req.Offset < q.LastStartOffset && q.PredictedOffset == 0 {
		q.PredictedOffset = q.LastFinalOffset
	}
	q.LastStartOffset = req.Offset
}
