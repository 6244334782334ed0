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

package stats

import (
	"testing"

	"github.com/esalvarez/agios/internal/agios/model"
)

func TestGlobal_NewRequestTracksInterArrival(t *testing.T) {
	g := NewGlobal()
	g.NewRequest(1000, model.Read, 4096)
	g.NewRequest(3000, model.Write, 8192)

	snap := g.Snapshot()
	if snap.TotalArrived != 2 {
		t.Fatalf("expected 2 arrivals, got %d", snap.TotalArrived)
	}
	if snap.Reads != 1 || snap.Writes != 1 {
		t.Fatalf("expected 1 read and 1 write, got %+v", snap)
	}
	if snap.AvgTimeBetweenRequests != 2000 {
		t.Fatalf("expected avg inter-arrival 2000, got %f", snap.AvgTimeBetweenRequests)
	}
	if snap.MaxRequestSize != 8192 {
		t.Fatalf("expected max size 8192, got %d", snap.MaxRequestSize)
	}
}

func TestGlobal_Reset(t *testing.T) {
	g := NewGlobal()
	g.NewRequest(1000, model.Read, 4096)
	g.Dispatched(1)
	g.Released(1, 4096)
	g.Reset()

	snap := g.Snapshot()
	if snap.TotalArrived != 0 || snap.AvgTimeBetweenRequests != -1 {
		t.Fatalf("expected reset counters, got %+v", snap)
	}
}

func TestRecordArrival_ComputesDistance(t *testing.T) {
	f := model.NewFile("/f")
	q := f.ReadQueue
	r1 := &model.Request{Offset: 0, Len: 100}
	r2 := &model.Request{Offset: 200, Len: 100}

	RecordArrival(q, r1, 1000)
	RecordArrival(q, r2, 2000)

	if q.Stats.ReceivedReqNb != 2 {
		t.Fatalf("expected 2 received requests, got %d", q.Stats.ReceivedReqNb)
	}
	if q.Stats.AvgDistance != 100 {
		t.Fatalf("expected avg distance 100, got %f", q.Stats.AvgDistance)
	}
}

func TestRecordAggregation_TracksBest(t *testing.T) {
	f := model.NewFile("/f")
	q := f.ReadQueue

	RecordAggregation(q, 4)
	RecordAggregation(q, 2)

	if q.Stats.BestAgg != 4 {
		t.Fatalf("expected best aggregation 4, got %d", q.Stats.BestAgg)
	}
	if q.Stats.AggsNo != 2 {
		t.Fatalf("expected 2 aggregation events, got %d", q.Stats.AggsNo)
	}
}

func TestRecordRelease_ComputesBandwidth(t *testing.T) {
	f := model.NewFile("/f")
	q := f.ReadQueue
	req := &model.Request{Len: 1_000_000}

	RecordRelease(q, req, 1_000_000_000) // 1s for 1MB

	if q.Stats.ProcessedBandwidth <= 0 {
		t.Fatalf("expected positive bandwidth, got %f", q.Stats.ProcessedBandwidth)
	}
	if q.Stats.ProcessedReqSize != 1_000_000 {
		t.Fatalf("expected processed size 1000000, got %d", q.Stats.ProcessedReqSize)
	}
}
