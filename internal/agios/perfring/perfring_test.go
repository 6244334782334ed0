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

package perfring

import "testing"

func TestRing_StartEpochClosesPrevious(t *testing.T) {
	r := NewRing(4)
	r.StartEpoch("SJF", 0)
	r.RecordRelease(1000)
	r.StartEpoch("MLF", 1_000_000_000) // 1s later

	snap := r.Snapshot(1_000_000_000)
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries (1 closed + 1 in-progress), got %d", len(snap))
	}
	closed := snap[0]
	if closed.Algorithm != "SJF" || closed.ProcessedBytes != 1000 {
		t.Fatalf("unexpected closed epoch: %+v", closed)
	}
	if closed.Bandwidth <= 0 {
		t.Fatalf("expected positive bandwidth, got %f", closed.Bandwidth)
	}
}

func TestRing_WrapsAtCapacity(t *testing.T) {
	r := NewRing(2)
	r.StartEpoch("A", 0)
	r.StartEpoch("B", 1)
	r.StartEpoch("C", 2)
	r.StartEpoch("D", 3)

	snap := r.Snapshot(4)
	if len(snap) != 3 {
		t.Fatalf("expected cap(2)+1 in-progress = 3 entries, got %d", len(snap))
	}
	if snap[0].Algorithm != "B" {
		t.Fatalf("expected oldest retained epoch to be B, got %s", snap[0].Algorithm)
	}
}

func TestRing_AlgorithmAverageBandwidth(t *testing.T) {
	r := NewRing(4)
	r.StartEpoch("SJF", 0)
	r.RecordRelease(1_000_000)
	r.StartEpoch("SJF", 1_000_000_000)
	r.RecordRelease(2_000_000)
	r.StartEpoch("done", 2_000_000_000)

	avg := r.AlgorithmAverageBandwidth("SJF")
	if avg <= 0 {
		t.Fatalf("expected positive average bandwidth for SJF, got %f", avg)
	}
	if r.AlgorithmAverageBandwidth("nonexistent") != 0 {
		t.Fatalf("expected 0 for algorithm with no epochs")
	}
}
