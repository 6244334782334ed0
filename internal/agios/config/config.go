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

// Package config parses AGIOS's key=value text configuration file and the
// WFQ weights file, with typed defaults matching the original implementation.
//
// Grounded on agios_config.c's read_configuration_file and its
// config_agios_* default globals, reimplemented as a small hand-rolled
// scanner in the teacher's plain-stdlib style (bufio.Scanner, no external
// config library appears anywhere in the example pack for a flat key=value
// format, so none is introduced here).
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/esalvarez/agios/internal/agios/agioserr"
)

// Config holds every tunable AGIOS exposes, both the original engine's keys
// and the ambient additions (trace backend selection, metrics endpoint).
type Config struct {
	DefaultAlgorithm  string
	StartingAlgorithm string

	PerformanceValues        int
	SelectAlgorithmPeriod    time.Duration
	SelectAlgorithmMinReqNum int64

	WaitingTime  time.Duration
	AIOLiQuantum int64
	MLFQuantum   int64
	SWWindow     time.Duration
	TWINSWindow  time.Duration
	EnableSW     bool

	Trace             bool
	TraceFilePrefix   string
	TraceFileSuffix   string
	MaxTraceBufferSize int64

	TraceBackend    string // "file" | "redis"
	TraceRedisAddr  string
	MetricsAddr     string // empty disables the Prometheus endpoint

	WFQWeightsFile string // optional; see LoadWeights
}

// Default mirrors agios_config.c's compiled-in defaults.
func Default() *Config {
	return &Config{
		DefaultAlgorithm:         "SJF",
		StartingAlgorithm:        "SJF",
		PerformanceValues:        20,
		SelectAlgorithmPeriod:    5 * time.Second,
		SelectAlgorithmMinReqNum: 100,
		WaitingTime:              900 * time.Microsecond,
		AIOLiQuantum:             8192,
		MLFQuantum:               8192,
		SWWindow:                 time.Second,
		TWINSWindow:              time.Millisecond,
		EnableSW:                 false,
		Trace:                    false,
		TraceFilePrefix:          "agios_trace",
		TraceFileSuffix:          ".log",
		MaxTraceBufferSize:       1 << 20,
		TraceBackend:             "file",
	}
}

// Load reads a key=value text config file at path. A missing file is not an
// error: Default() is returned unchanged. Blank lines and lines starting
// with '#' are ignored, matching the original parser's comment handling.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", agioserr.ErrConfig, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: missing '='", agioserr.ErrConfig, lineNo)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if err := cfg.apply(key, value); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", agioserr.ErrConfig, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", agioserr.ErrConfig, err)
	}
	return cfg, nil
}

func (c *Config) apply(key, value string) error {
	switch key {
	case "default_algorithm":
		c.DefaultAlgorithm = value
	case "starting_algorithm":
		c.StartingAlgorithm = value
	case "performance_values":
		return setInt(&c.PerformanceValues, value)
	case "select_algorithm_period":
		return setDurationNanos(&c.SelectAlgorithmPeriod, value)
	case "select_algorithm_min_reqnumber":
		return setInt64(&c.SelectAlgorithmMinReqNum, value)
	case "waiting_time":
		return setDurationNanos(&c.WaitingTime, value)
	case "aioli_quantum":
		return setInt64(&c.AIOLiQuantum, value)
	case "mlf_quantum":
		return setInt64(&c.MLFQuantum, value)
	case "sw_window":
		return setDurationNanos(&c.SWWindow, value)
	case "twins_window":
		return setDurationNanos(&c.TWINSWindow, value)
	case "enable_SW":
		return setBool(&c.EnableSW, value)
	case "trace":
		return setBool(&c.Trace, value)
	case "trace_file_prefix":
		c.TraceFilePrefix = value
	case "trace_file_sufix":
		c.TraceFileSuffix = value
	case "max_trace_buffer_size":
		return setInt64(&c.MaxTraceBufferSize, value)
	case "trace_backend":
		if value != "file" && value != "redis" {
			return fmt.Errorf("unknown trace_backend %q", value)
		}
		c.TraceBackend = value
	case "trace_redis_addr":
		c.TraceRedisAddr = value
	case "metrics_addr":
		c.MetricsAddr = value
	case "wfq_weights_file":
		c.WFQWeightsFile = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, value string) error {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setDurationNanos(dst *time.Duration, value string) error {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return err
	}
	*dst = time.Duration(n)
	return nil
}

func setBool(dst *bool, value string) error {
	switch value {
	case "1", "true", "TRUE", "True":
		*dst = true
	case "0", "false", "FALSE", "False":
		*dst = false
	default:
		return fmt.Errorf("invalid boolean %q", value)
	}
	return nil
}

// LoadWeights reads a WFQ weights file: whitespace-separated positive
// decimal integers, one per queue, in queue-id order (queue 0's weight
// first). Comment lines starting with '#' are skipped.
func LoadWeights(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", agioserr.ErrConfig, err)
	}
	defer f.Close()

	var weights []int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, tok := range strings.Fields(line) {
			weight, err := strconv.ParseInt(tok, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", agioserr.ErrConfig, err)
			}
			weights = append(weights, weight)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", agioserr.ErrConfig, err)
	}
	return weights, nil
}
