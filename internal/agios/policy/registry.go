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

package policy

import "github.com/esalvarez/agios/internal/agios/agioserr"

// Factory builds a fresh Policy instance. Policies that carry per-instance
// state (TWINS's current window, WFQ's credit ledger) must not be shared
// across concurrent engines, so the registry hands out constructors rather
// than singletons.
type Factory func() Policy

// Registry is the fixed set of selectable policy names, mirroring
// agios_config.c's algorithm name table.
var Registry = map[string]Factory{
	"NOOP":   func() Policy { return NOOP{} },
	"TO":     func() Policy { return TO{} },
	"TO-agg": func() Policy { return TOAgg{} },
	"SW":     func() Policy { return SW{} },
	"SJF":    func() Policy { return SJF{} },
	"MLF":    func() Policy { return MLF{} },
	"aIOLi":  func() Policy { return AIOLi{} },
	"TWINS":  func() Policy { return &TWINS{} },
	"WFQ":    func() Policy { return &WFQ{} },
}

// New constructs the named policy, or ErrUnknownPolicy if name is not in
// Registry.
func New(name string) (Policy, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, agioserr.ErrUnknownPolicy
	}
	return factory(), nil
}

// DefaultAlgorithm mirrors config_agios_default_algorithm's default of SJF.
const DefaultAlgorithm = "SJF"
