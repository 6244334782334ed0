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

// Package alist holds small helpers shared across the engine's internal
// packages: a monotonic clock abstraction (so tests can inject time) and the
// iterative running-average used throughout the statistics module.
package alist

import "time"

// Clock returns the current monotonic time in nanoseconds since an
// unspecified epoch fixed at process start. Tests substitute FakeClock to
// get deterministic timestamps.
type Clock interface {
	NowNanos() int64
}

// SystemClock is the default Clock, backed by time.Now's monotonic reading.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock anchored at the current instant.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) NowNanos() int64 {
	return time.Since(c.start).Nanoseconds()
}

// FakeClock is a manually advanced Clock for deterministic tests.
type FakeClock struct {
	now int64
}

func NewFakeClock() *FakeClock { return &FakeClock{} }

func (c *FakeClock) NowNanos() int64 { return c.now }

func (c *FakeClock) Advance(d time.Duration) { c.now += d.Nanoseconds() }

func (c *FakeClock) Set(nanos int64) { c.now = nanos }

// UpdateIterativeAverage folds value into avg assuming count observations
// have been made so far (count includes the current one). avg should be
// seeded at -1 to mean "no data yet"; on the first observation the running
// average is simply the observed value.
//
// Grounded on common_functions.c's update_iterative_average: avg' = avg +
// (value-avg)/count for count>1, else value.
func UpdateIterativeAverage(avg float64, value float64, count int64) float64 {
	if count <= 1 {
		return value
	}
	return avg + (value-avg)/float64(count)
}

// Min returns the smaller of a and b.
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// AbsInt64 returns the absolute value of v.
func AbsInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
