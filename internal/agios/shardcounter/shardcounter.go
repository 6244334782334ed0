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

// Package shardcounter provides a striped, approximately-consistent counter
// used for the engine's hot in-flight request/file counters. They are read
// without taking the hashtable or timeline locks, trading exactness for
// reads that never contend with the many goroutines adding and dispatching
// requests concurrently.
//
// The striping and index-selection technique (padded per-stripe atomics,
// stripe chosen by an xorshift mix of an atomic round-robin cursor) is
// carried over from the sharded-counter core of this project's ancestor
// rate limiter; unlike that counter it has no notion of "available budget"
// or commit/refund reconciliation, it is just a fast concurrent accumulator.
package shardcounter

import (
	"runtime"
	"sync/atomic"
)

const cacheLinePad = 64

type stripe struct {
	v   int64
	_   [cacheLinePad - 8]byte
}

// Counter is a striped int64 counter. The zero value is not usable; use New.
type Counter struct {
	stripes []stripe
	rr      uint64 // round-robin cursor every Add mixes into a stripe index
}

// New creates a Counter with a number of stripes derived from GOMAXPROCS,
// capped to keep memory bounded for small systems and huge ones alike.
func New() *Counter {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		n = 1
	}
	if n > 64 {
		n = 64
	}
	return &Counter{stripes: make([]stripe, nextPow2(n))}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// idx xorshift-mixes the atomic round-robin cursor so concurrent callers
// fan out across stripes without needing goroutine-local storage or an
// external PRNG dependency.
func (c *Counter) idx() int {
	x := atomic.AddUint64(&c.rr, 1)
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	return int(x) & (len(c.stripes) - 1)
}

// Add adds delta (which may be negative) to the counter.
func (c *Counter) Add(delta int64) {
	i := c.idx()
	atomic.AddInt64(&c.stripes[i].v, delta)
}

// Load returns the current approximate total. It sums all stripes without
// locking; the result may be stale by a handful of in-flight updates.
func (c *Counter) Load() int64 {
	var total int64
	for i := range c.stripes {
		total += atomic.LoadInt64(&c.stripes[i].v)
	}
	return total
}
