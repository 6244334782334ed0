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

// Package metricsexport registers a small set of low-cardinality Prometheus
// collectors over the engine's global statistics and performance ring, and
// optionally starts a dedicated /metrics HTTP endpoint.
//
// Grounded on internal/ratelimiter/telemetry/churn/prom_counters.go
// (teacher): package-level collectors registered once via
// prometheus.MustRegister, an Enable-style activation gate so every public
// function is a safe no-op until configured, and a disposable
// net/http.Server serving promhttp.Handler() on a dedicated address.
package metricsexport

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agios_requests_total",
		Help: "Total requests submitted to the engine, by direction.",
	}, []string{"type"})

	pendingRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agios_pending_requests",
		Help: "Requests currently queued and not yet dispatched.",
	})

	pendingFiles = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agios_pending_files",
		Help: "Distinct files with at least one pending request.",
	})

	avgRequestSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agios_avg_request_size_bytes",
		Help: "Running average request size across all queues.",
	})

	avgInterArrival = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agios_avg_inter_arrival_ns",
		Help: "Running average nanoseconds between consecutive request arrivals.",
	})

	bandwidthByPolicy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agios_bandwidth_bytes_per_sec",
		Help: "Bandwidth achieved in the most recently closed performance epoch, by policy.",
	}, []string{"policy"})

	policyChangesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agios_policy_changes_total",
		Help: "Total number of dynamic scheduling policy switches.",
	})
)

func init() {
	prometheus.MustRegister(
		requestsTotal,
		pendingRequests,
		pendingFiles,
		avgRequestSize,
		avgInterArrival,
		bandwidthByPolicy,
		policyChangesTotal,
	)
}

var enabled atomic.Bool

// Enable activates metric pushes and, if addr is non-empty, starts a
// dedicated HTTP server exposing /metrics on addr. Calling it with an empty
// addr keeps metric pushes active but exposes nothing: useful when another
// component already serves promhttp.Handler() in the same process, mirroring
// churn.Config.MetricsAddr's optionality.
func Enable(addr string) {
	enabled.Store(true)
	if addr != "" {
		startServer(addr)
	}
}

// Enabled reports whether metric pushes currently do anything.
func Enabled() bool { return enabled.Load() }

func startServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}

// ObserveRequest records one submitted request of the given direction
// ("read" or "write").
func ObserveRequest(direction string) {
	if !enabled.Load() {
		return
	}
	requestsTotal.WithLabelValues(direction).Inc()
}

// SetPending pushes the current in-flight request and file counts.
func SetPending(requests, files int64) {
	if !enabled.Load() {
		return
	}
	pendingRequests.Set(float64(requests))
	pendingFiles.Set(float64(files))
}

// SetAverages pushes the current running averages for request size and
// inter-arrival time. A negative value (meaning "no data yet") is skipped.
func SetAverages(avgReqSize, avgInterArrivalNs float64) {
	if !enabled.Load() {
		return
	}
	if avgReqSize >= 0 {
		avgRequestSize.Set(avgReqSize)
	}
	if avgInterArrivalNs >= 0 {
		avgInterArrival.Set(avgInterArrivalNs)
	}
}

// SetBandwidth pushes the most recently observed bandwidth for policy.
func SetBandwidth(policyName string, bytesPerSec float64) {
	if !enabled.Load() {
		return
	}
	bandwidthByPolicy.WithLabelValues(policyName).Set(bytesPerSec)
}

// ObservePolicyChange increments the policy-change counter.
func ObservePolicyChange() {
	if !enabled.Load() {
		return
	}
	policyChangesTotal.Inc()
}
