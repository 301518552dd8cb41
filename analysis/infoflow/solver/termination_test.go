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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestCombine(t *testing.T) {
	timeout := TimeoutReason{Elapsed: 2 * time.Second, Timeout: time.Second}
	oom := OutOfMemoryReason{UsedBytes: 3 << 20}

	if r := Combine(nil, timeout); r != timeout {
		t.Errorf("combining with nil should return the other reason, got %v", r)
	}
	if r := Combine(oom, nil); r != oom {
		t.Errorf("combining with nil should return the other reason, got %v", r)
	}

	r := timeout.Combine(oom).Combine(UserAbortReason{})
	expected := MultiReason{Reasons: []TerminationReason{timeout, oom, UserAbortReason{}}}
	if diff := cmp.Diff(expected, r); diff != "" {
		t.Errorf("unexpected combination (-want +got):\n%s", diff)
	}
	if !IsTimeout(r) || !IsOutOfMemory(r) {
		t.Errorf("the combination should contain both reasons")
	}
	if IsTimeout(oom) || IsOutOfMemory(nil) {
		t.Errorf("unexpected reason match")
	}
	want := "timeout reached after 2s (timeout 1s), memory threshold reached (3 MB used), aborted by user"
	if s := r.String(); s != want {
		t.Errorf("unexpected description %q", s)
	}
}
