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

// Package agioserr defines the sentinel errors returned by the agios engine
// and its internal components. Callers should use errors.Is against these
// values rather than comparing strings.
package agioserr

import "errors"

var (
	// ErrAlloc is returned when an internal allocation or initialization step
	// fails (mirrors the "PANIC! cannot allocate memory" paths of the engine
	// this library was modeled after).
	ErrAlloc = errors.New("agios: allocation failed")

	// ErrInvalidArgument is returned when a caller supplies a malformed
	// request: zero-length file handle, negative length, unknown direction.
	ErrInvalidArgument = errors.New("agios: invalid argument")

	// ErrConfig is returned when a configuration file or key=value pair
	// cannot be parsed, or references an unknown policy.
	ErrConfig = errors.New("agios: invalid configuration")

	// ErrUnknownPolicy is returned when a named scheduling policy does not
	// match any registered policy.
	ErrUnknownPolicy = errors.New("agios: unknown scheduling policy")

	// ErrNotFound is returned by release/cancel when no matching in-flight
	// request exists for the given handle and extent.
	ErrNotFound = errors.New("agios: request not found")

	// ErrMigration is returned when a dynamic policy change could not
	// complete because the data structures were in an inconsistent state.
	ErrMigration = errors.New("agios: migration failed")

	// ErrClosed is returned by any operation attempted after Exit has been
	// called on the engine.
	ErrClosed = errors.New("agios: engine closed")
)
