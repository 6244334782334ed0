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

package agios

import (
	"sync"
	"testing"
	"time"

	"github.com/esalvarez/agios/internal/agios/model"
)

func newTestEngine(t *testing.T, policy string, maxQueueID int32) (*Engine, *sync.WaitGroup, *[]interface{}) {
	t.Helper()
	var (
		mu       sync.Mutex
		released []interface{}
		wg       sync.WaitGroup
	)
	e, ok := Init(func(userData interface{}) {
		mu.Lock()
		released = append(released, userData)
		mu.Unlock()
		wg.Done()
	}, nil, "", maxQueueID)
	if !ok {
		t.Fatalf("Init failed: %v", e)
	}
	t.Cleanup(e.Exit)
	if policy != "" && !e.RequestAlgorithmChange(policy) {
		t.Fatalf("RequestAlgorithmChange(%q) failed: %v", policy, e.LastError())
	}
	// The switch is applied by the scheduling goroutine; wait until it is
	// active so each test starts under the policy it asked for.
	for deadline := time.Now().Add(2 * time.Second); policy != "" && e.sched.ActiveDescriptor().Name != policy; {
		if time.Now().After(deadline) {
			t.Fatalf("policy %q never became active", policy)
		}
		time.Sleep(time.Millisecond)
	}
	return e, &wg, &released
}

func TestInit_RejectsNilCallback(t *testing.T) {
	if _, ok := Init(nil, nil, "", 0); ok {
		t.Fatalf("Init with a nil processOne should fail")
	}
}

func TestInit_BadConfigPathFallsBackOrFails(t *testing.T) {
	// A nonexistent path is not an error for config.Load (Default() is
	// returned unchanged), so Init must still succeed.
	e, ok := Init(func(interface{}) {}, nil, "/nonexistent/path/agios.conf", 0)
	if !ok {
		t.Fatalf("Init should tolerate a missing config file, got: %v", e)
	}
	e.Exit()
}

func TestAddRequest_RejectsInvalidArguments(t *testing.T) {
	e, _, _ := newTestEngine(t, "", 0)

	if e.AddRequest("", model.Read, 0, 4096, nil, 0, nil) {
		t.Fatalf("AddRequest with empty fileID should fail")
	}
	if e.AddRequest("f", model.Read, 0, 0, nil, 0, nil) {
		t.Fatalf("AddRequest with zero length should fail")
	}
	if e.AddRequest("f", model.Read, -1, 4096, nil, 0, nil) {
		t.Fatalf("AddRequest with negative offset should fail")
	}
}

func TestAddRequest_NOOPDispatchesInline(t *testing.T) {
	e, wg, released := newTestEngine(t, "NOOP", 0)

	wg.Add(1)
	if !e.AddRequest("file-a", model.Read, 0, 4096, "req-1", 0, nil) {
		t.Fatalf("AddRequest failed: %v", e.LastError())
	}

	// NOOP dispatches synchronously inside AddRequest, so processOne has
	// already run by the time AddRequest returns.
	if len(*released) != 1 || (*released)[0] != "req-1" {
		t.Fatalf("expected req-1 to be dispatched inline, got %v", *released)
	}
}

func TestAddRequestReleaseRequest_SJF(t *testing.T) {
	e, wg, released := newTestEngine(t, "SJF", 0)

	wg.Add(1)
	if !e.AddRequest("file-a", model.Write, 0, 4096, "req-1", 0, nil) {
		t.Fatalf("AddRequest failed: %v", e.LastError())
	}
	waitOrTimeout(t, wg)

	if len(*released) != 1 || (*released)[0] != "req-1" {
		t.Fatalf("expected req-1 to be dispatched, got %v", *released)
	}

	if !e.ReleaseRequest("file-a", model.Write, 4096, 0) {
		t.Fatalf("ReleaseRequest failed: %v", e.LastError())
	}
	if e.ReleaseRequest("file-a", model.Write, 4096, 0) {
		t.Fatalf("releasing the same request twice should fail")
	}
}

func TestAddRequestReleaseRequest_TO(t *testing.T) {
	e, wg, released := newTestEngine(t, "TO", 0)

	wg.Add(1)
	if !e.AddRequest("file-b", model.Read, 8192, 4096, "req-1", 0, nil) {
		t.Fatalf("AddRequest failed: %v", e.LastError())
	}
	waitOrTimeout(t, wg)

	if len(*released) != 1 {
		t.Fatalf("expected one dispatch under TO, got %v", *released)
	}
	if !e.ReleaseRequest("file-b", model.Read, 4096, 8192) {
		t.Fatalf("ReleaseRequest failed: %v", e.LastError())
	}
}

func TestCancelRequest_RemovesPending(t *testing.T) {
	e, _, _ := newTestEngine(t, "aIOLi", 0)

	// aIOLi's eligibility quantum grows with a request's SchedFactor, which
	// only doubles one scheduler tick at a time; a request this large needs
	// dozens of ticks before it could ever become eligible, so it stays
	// pending for the lifetime of this test with no race against the
	// background scheduling goroutine.
	if !e.AddRequest("file-c", model.Write, 0, 1<<40, "short", 0, nil) {
		t.Fatalf("AddRequest failed: %v", e.LastError())
	}

	if !e.CancelRequest("file-c", model.Write, 1<<40, 0) {
		t.Fatalf("CancelRequest failed: %v", e.LastError())
	}
	if e.CancelRequest("file-c", model.Write, 1<<40, 0) {
		t.Fatalf("cancelling an already-cancelled request should fail")
	}
}

func TestCancelRequest_UnknownFile(t *testing.T) {
	e, _, _ := newTestEngine(t, "SJF", 0)
	if e.CancelRequest("never-seen", model.Read, 4096, 0) {
		t.Fatalf("cancelling on an unknown file should fail")
	}
}

func TestAddRequestReleaseRequest_TWINSMultiQueue(t *testing.T) {
	e, wg, released := newTestEngine(t, "TWINS", 3)

	wg.Add(2)
	if !e.AddRequest("file-d", model.Read, 0, 4096, "q0", 0, nil) {
		t.Fatalf("AddRequest(q0) failed: %v", e.LastError())
	}
	if !e.AddRequest("file-d", model.Read, 4096, 4096, "q1", 1, nil) {
		t.Fatalf("AddRequest(q1) failed: %v", e.LastError())
	}
	waitOrTimeout(t, wg)

	if len(*released) != 2 {
		t.Fatalf("expected both queue ids to be dispatched under TWINS, got %v", *released)
	}
}

func TestGetMetricsAndReset(t *testing.T) {
	e, wg, _ := newTestEngine(t, "SJF", 0)

	wg.Add(1)
	if !e.AddRequest("file-e", model.Read, 0, 4096, "req-1", 0, nil) {
		t.Fatalf("AddRequest failed: %v", e.LastError())
	}
	waitOrTimeout(t, wg)

	metrics := e.GetMetricsAndReset()
	if metrics.Total != 1 {
		t.Fatalf("expected Total=1, got %d", metrics.Total)
	}
	if metrics.Reads != 1 {
		t.Fatalf("expected Reads=1, got %d", metrics.Reads)
	}

	// Reset zeroes the running window: a second call with no new arrivals
	// reports nothing.
	again := e.GetMetricsAndReset()
	if again.Total != 0 {
		t.Fatalf("expected Total=0 after reset, got %d", again.Total)
	}
}

func TestRequestAlgorithmChange_UnknownPolicy(t *testing.T) {
	e, _, _ := newTestEngine(t, "SJF", 0)
	if e.RequestAlgorithmChange("not-a-real-policy") {
		t.Fatalf("switching to an unknown policy should fail")
	}
}

func TestRequestAlgorithmChange_MigratesPending(t *testing.T) {
	e, wg, released := newTestEngine(t, "SJF", 0)

	if !e.AddRequest("file-f", model.Write, 0, 4096, "req-1", 0, nil) {
		t.Fatalf("AddRequest failed: %v", e.LastError())
	}

	// Switch into a timeline-backed policy; the pending request queued
	// under SJF's per-file list must survive the migration and still be
	// dispatchable afterward.
	wg.Add(1)
	if !e.RequestAlgorithmChange("TO") {
		t.Fatalf("RequestAlgorithmChange failed: %v", e.LastError())
	}
	waitOrTimeout(t, wg)

	if len(*released) != 1 || (*released)[0] != "req-1" {
		t.Fatalf("expected req-1 to survive the migration and dispatch, got %v", *released)
	}
}

func TestExit_IsIdempotentAndClosesEngine(t *testing.T) {
	e, ok := Init(func(interface{}) {}, nil, "", 0)
	if !ok {
		t.Fatalf("Init failed")
	}
	e.Exit()
	e.Exit() // must not panic or block

	if e.AddRequest("file-g", model.Read, 0, 4096, nil, 0, nil) {
		t.Fatalf("AddRequest on a closed engine should fail")
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for dispatch")
	}
}
