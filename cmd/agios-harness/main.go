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

// agios-harness drives the scheduling engine with a synthetic workload so a
// policy's behavior can be observed and compared without wiring it into a
// real I/O path.
//
// In plain words (what this tool does):
//   - it generates a mix of sequential and random read/write requests across
//     a handful of synthetic files, spread across a handful of queue ids;
//   - it submits them to an agios.Engine running the requested policy,
//     immediately releasing each one from inside the dispatch callback
//     (there is no real I/O here, only the scheduling decision);
//   - it waits for everything to drain, then prints the served bytes,
//     elapsed time and the engine's request-size, offset-distance and
//     inter-arrival averages, and optionally CSV-dumps per-queue served
//     bytes (useful for checking WFQ/TWINS fairness).
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/esalvarez/agios/internal/agios/model"
	"github.com/esalvarez/agios/pkg/agios"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to an agios key=value config file")
		tracePath  = flag.String("trace", "", "if set, override the config and write a trace to this file")
		numReqs    = flag.Int("requests", 10000, "number of requests to submit")
		numFiles   = flag.Int("files", 4, "number of distinct synthetic files")
		numQueues  = flag.Int("queues", 2, "number of queue ids in play (relevant to SW/TWINS/WFQ)")
		policyName = flag.String("policy", "SJF", "starting algorithm: NOOP, TO, TO-agg, SW, SJF, MLF, aIOLi, TWINS, WFQ")
		csvPath    = flag.String("csv", "", "if set, write per-queue served-byte totals to this CSV file")
		seed       = flag.Int64("seed", 1, "PRNG seed for the synthetic workload")
	)
	flag.Parse()

	cfgPath := *configPath
	if *tracePath != "" {
		cfgPath = writeTempConfig(*configPath, *tracePath)
		defer os.Remove(cfgPath)
	}

	var (
		served   int64
		releases sync.WaitGroup
	)
	servedByQueue := make([]int64, *numQueues)

	engine, ok := agios.Init(func(userData interface{}) {
		r := userData.(*submitted)
		atomic.AddInt64(&served, r.length)
		atomic.AddInt64(&servedByQueue[r.queueID%int32(*numQueues)], r.length)
		releases.Done()
	}, nil, cfgPath, int32(*numQueues-1))
	if !ok {
		log.Fatalf("agios.Init failed (bad config or allocation failure at %q)", cfgPath)
	}
	defer engine.Exit()

	if !engine.RequestAlgorithmChange(*policyName) {
		log.Fatalf("unknown policy %q: %v", *policyName, engine.LastError())
	}

	rng := rand.New(rand.NewSource(*seed))
	files := make([]string, *numFiles)
	for i := range files {
		files[i] = fmt.Sprintf("file-%03d", i)
	}
	lastOffset := make([]int64, *numFiles)

	start := time.Now()
	releases.Add(*numReqs)
	for i := 0; i < *numReqs; i++ {
		fileIdx := rng.Intn(*numFiles)
		dir := model.Read
		if rng.Intn(2) == 1 {
			dir = model.Write
		}
		length := int64(4096 * (1 + rng.Intn(8)))
		offset := nextOffset(rng, &lastOffset[fileIdx], length)
		queueID := int32(rng.Intn(*numQueues))

		r := &submitted{fileID: files[fileIdx], length: length, queueID: queueID}
		fid, off, ln, q := r.fileID, offset, length, queueID
		if !engine.AddRequest(fid, dir, off, ln, r, q, func(userData interface{}) {
			// This callback runs instead of the engine-wide one passed to
			// Init, so it does that callback's accounting too.
			req := userData.(*submitted)
			engine.ReleaseRequest(req.fileID, dir, ln, off)
			atomic.AddInt64(&served, req.length)
			atomic.AddInt64(&servedByQueue[req.queueID%int32(*numQueues)], req.length)
			releases.Done()
		}) {
			log.Printf("AddRequest failed: %v", engine.LastError())
			releases.Done()
		}
	}
	releases.Wait()
	elapsed := time.Since(start)

	metrics := engine.GetMetricsAndReset()
	fmt.Printf("policy=%s requests=%d served_bytes=%d elapsed=%s\n", *policyName, *numReqs, served, elapsed)
	fmt.Printf("reads=%d writes=%d avg_size=%.1f max_size=%d avg_offset_distance=%.1f avg_inter_arrival_ns=%.1f\n",
		metrics.Reads, metrics.Writes, metrics.AvgSize, metrics.MaxSize, metrics.AvgOffsetDistance, metrics.AvgInterArrivalNs)

	if *csvPath != "" {
		if err := writeCSV(*csvPath, servedByQueue); err != nil {
			log.Fatalf("writing csv: %v", err)
		}
	}
}

// submitted is the user_data an in-flight request carries from AddRequest
// to its dispatch callback.
type submitted struct {
	fileID  string
	length  int64
	queueID int32
}

// nextOffset returns a mostly-sequential offset for a file, occasionally
// jumping to a random position, so the generated trace exercises both
// aggregation-friendly and worst-case access patterns.
func nextOffset(rng *rand.Rand, last *int64, length int64) int64 {
	if rng.Intn(10) == 0 {
		*last = int64(rng.Intn(1 << 24))
		return *last
	}
	offset := *last
	*last += length
	return offset
}

func writeCSV(path string, servedByQueue []int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"queue_id", "served_bytes"}); err != nil {
		return err
	}
	for i, bytes := range servedByQueue {
		if err := w.Write([]string{fmt.Sprintf("%d", i), fmt.Sprintf("%d", bytes)}); err != nil {
			return err
		}
	}
	return nil
}

// writeTempConfig copies basePath (if any) into a temp file with tracing
// forced on and pointed at tracePath, since -trace is a harness convenience
// layered on top of the engine's own config file format.
func writeTempConfig(basePath, tracePath string) string {
	var content string
	if basePath != "" {
		data, err := os.ReadFile(basePath)
		if err == nil {
			content = string(data)
		}
	}
	content += fmt.Sprintf("\ntrace = true\ntrace_file_prefix = %s\ntrace_file_sufix = \n", tracePath)

	tmp, err := os.CreateTemp("", "agios-harness-*.conf")
	if err != nil {
		log.Fatalf("creating temp config: %v", err)
	}
	defer tmp.Close()
	if _, err := tmp.WriteString(content); err != nil {
		log.Fatalf("writing temp config: %v", err)
	}
	return tmp.Name()
}
