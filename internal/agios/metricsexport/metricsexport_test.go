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

package metricsexport

import "testing"

func TestPushFunctions_SafeToCall(t *testing.T) {
	// Other tests in this package may have already called Enable; this only
	// documents the no-op contract, not the literal initial state.
	ObserveRequest("read")
	SetPending(1, 1)
	SetAverages(10, 20)
	SetBandwidth("SJF", 1000)
	ObservePolicyChange()
}

func TestEnable_ActivatesPushes(t *testing.T) {
	Enable("")
	if !Enabled() {
		t.Fatalf("expected Enabled() to report true after Enable")
	}
	ObserveRequest("write")
	SetPending(5, 2)
	SetBandwidth("MLF", 2048)
	ObservePolicyChange()
}
