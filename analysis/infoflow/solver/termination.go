// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package solver

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

// A TerminationReason explains why a solver was forced to terminate before reaching its fixed point.
type TerminationReason interface {
	fmt.Stringer
	// Combine returns a reason that represents both the receiver and other
	Combine(other TerminationReason) TerminationReason
}

// OutOfMemoryReason is the reason of a termination triggered by memory pressure
type OutOfMemoryReason struct {
	// UsedBytes is the heap size observed when the threshold was reached
	UsedBytes uint64
}

func (r OutOfMemoryReason) String() string {
	return fmt.Sprintf("memory threshold reached (%d MB used)", r.UsedBytes/(1<<20))
}

// Combine implements TerminationReason
func (r OutOfMemoryReason) Combine(other TerminationReason) TerminationReason {
	return Combine(r, other)
}

// TimeoutReason is the reason of a termination triggered by the timeout watcher
type TimeoutReason struct {
	Elapsed time.Duration
	Timeout time.Duration
}

func (r TimeoutReason) String() string {
	return fmt.Sprintf("timeout reached after %s (timeout %s)", r.Elapsed.Round(time.Millisecond), r.Timeout)
}

// Combine implements TerminationReason
func (r TimeoutReason) Combine(other TerminationReason) TerminationReason { return Combine(r, other) }

// UserAbortReason is the reason of a termination requested by the user
type UserAbortReason struct{}

func (r UserAbortReason) String() string { return "aborted by user" }

// Combine implements TerminationReason
func (r UserAbortReason) Combine(other TerminationReason) TerminationReason { return Combine(r, other) }

// MultiReason is the combination of several termination reasons
type MultiReason struct {
	Reasons []TerminationReason
}

func (r MultiReason) String() string {
	parts := lo.Map(r.Reasons, func(x TerminationReason, _ int) string { return x.String() })
	return strings.Join(parts, ", ")
}

// Combine implements TerminationReason
func (r MultiReason) Combine(other TerminationReason) TerminationReason { return Combine(r, other) }

// Combine merges two termination reasons. Nil reasons are ignored, and combined reasons are flattened such that a
// MultiReason never contains another MultiReason.
func Combine(a, b TerminationReason) TerminationReason {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	var reasons []TerminationReason
	for _, r := range []TerminationReason{a, b} {
		if m, ok := r.(MultiReason); ok {
			reasons = append(reasons, m.Reasons...)
		} else {
			reasons = append(reasons, r)
		}
	}
	return MultiReason{Reasons: reasons}
}

// IsTimeout returns true if r is or contains a TimeoutReason
func IsTimeout(r TerminationReason) bool {
	return containsReason(r, func(x TerminationReason) bool { _, ok := x.(TimeoutReason); return ok })
}

// IsOutOfMemory returns true if r is or contains an OutOfMemoryReason
func IsOutOfMemory(r TerminationReason) bool {
	return containsReason(r, func(x TerminationReason) bool { _, ok := x.(OutOfMemoryReason); return ok })
}

func containsReason(r TerminationReason, f func(TerminationReason) bool) bool {
	if m, ok := r.(MultiReason); ok {
		return lo.SomeBy(m.Reasons, f)
	}
	return r != nil && f(r)
}
