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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.conf"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DefaultAlgorithm != "SJF" {
		t.Fatalf("expected default algorithm SJF, got %s", cfg.DefaultAlgorithm)
	}
}

func TestLoad_ParsesKnownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agios.conf")
	content := "# comment\n\nstarting_algorithm = MLF\nwaiting_time = 500000\nenable_SW = true\nmetrics_addr = :9090\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StartingAlgorithm != "MLF" {
		t.Fatalf("expected MLF, got %s", cfg.StartingAlgorithm)
	}
	if cfg.WaitingTime != 500_000*time.Nanosecond {
		t.Fatalf("expected waiting time 500000ns, got %v", cfg.WaitingTime)
	}
	if !cfg.EnableSW {
		t.Fatalf("expected enable_SW true")
	}
	if cfg.MetricsAddr != ":9090" {
		t.Fatalf("expected metrics addr :9090, got %s", cfg.MetricsAddr)
	}
}

func TestLoad_RejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	if err := os.WriteFile(path, []byte("not_a_real_key = 1\n"), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestLoadWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.conf")
	content := "# comment\n1 4\n2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write weights file: %v", err)
	}

	weights, err := LoadWeights(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(weights) != 3 || weights[0] != 1 || weights[1] != 4 || weights[2] != 2 {
		t.Fatalf("unexpected weights: %v", weights)
	}
}
