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

// Package agioslog is a thin prefix wrapper over the standard log package,
// matching the plain stdlib logging the teacher's command-line entry points
// use (no structured logging library appears anywhere in the example pack).
package agioslog

import "log"

var std = log.New(log.Writer(), "[agios] ", log.LstdFlags)

// Printf logs an informational line.
func Printf(format string, args ...interface{}) {
	std.Printf(format, args...)
}

// NotFoundf logs a release/cancel miss: expected under normal operation, so
// this is always a log line, never a fatal error.
func NotFoundf(format string, args ...interface{}) {
	std.Printf("not found: "+format, args...)
}

// Fatalf logs and terminates the process. Reserved for internal invariant
// violations, the kind an assertion would catch in a debug build: a
// scheduling pass observing a data structure in a state that should be
// impossible, not a data condition a caller could trigger.
func Fatalf(format string, args ...interface{}) {
	std.Fatalf(format, args...)
}
