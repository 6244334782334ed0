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

package trace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSink_WriteAndFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	sink, err := NewFileSink(path, 1<<20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sink.WriteLine(100, "/data/a", 'R', 0, 4096); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sink.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), "/data/a") || !strings.Contains(string(data), "R") {
		t.Fatalf("unexpected trace line: %q", string(data))
	}
}

func TestFileSink_FlushesOnceBufferBudgetExceeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	sink, err := NewFileSink(path, 8) // tiny budget: the 13-byte line below forces an auto-flush
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sink.Close()

	if err := sink.WriteLine(1, "/f", 'W', 0, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected auto-flush once buffer budget exceeded")
	}
}

type capturingPusher struct {
	key    string
	values []interface{}
}

func (c *capturingPusher) RPush(ctx context.Context, key string, values ...interface{}) error {
	c.key = key
	c.values = append(c.values, values...)
	return nil
}

func TestRedisSink_PushesFormattedLine(t *testing.T) {
	cap := &capturingPusher{}
	sink := &RedisSink{client: cap, key: "agios:trace"}

	if err := sink.WriteLine(5, "/data/b", 'R', 10, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cap.key != "agios:trace" {
		t.Fatalf("expected key agios:trace, got %s", cap.key)
	}
	if len(cap.values) != 1 {
		t.Fatalf("expected 1 pushed value, got %d", len(cap.values))
	}
}
