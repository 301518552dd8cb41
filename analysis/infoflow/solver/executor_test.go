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
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutorRunsNestedTasks(t *testing.T) {
	e := newExecutor(t, 2)
	var count atomic.Int64
	var spawn func(depth int)
	spawn = func(depth int) {
		count.Add(1)
		if depth == 0 {
			return
		}
		for i := 0; i < 2; i++ {
			e.Execute(func() { spawn(depth - 1) })
		}
	}
	e.Execute(func() { spawn(6) })
	if err := e.AwaitCompletion(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c := count.Load(); c != 127 {
		t.Errorf("expected 127 tasks to run, got %d", c)
	}
	if e.ActiveTasks() != 0 {
		t.Errorf("no task should be active after completion")
	}
}

func TestExecutorInterrupt(t *testing.T) {
	e := newExecutor(t, 1)
	release := make(chan struct{})
	var ran atomic.Int64
	e.Execute(func() { <-release })
	for i := 0; i < 10; i++ {
		e.Execute(func() { ran.Add(1) })
	}
	e.Interrupt()
	close(release)
	if err := e.AwaitCompletion(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ran.Load() != 0 {
		t.Errorf("queued tasks should be dropped after an interrupt, %d ran", ran.Load())
	}
	e.Execute(func() { ran.Add(1) })
	if ran.Load() != 0 || e.ActiveTasks() != 0 {
		t.Errorf("an interrupted executor ignores new tasks")
	}
	e.Reset()
	e.Execute(func() { ran.Add(1) })
	if err := e.AwaitCompletion(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ran.Load() != 1 {
		t.Errorf("a reset executor runs new tasks")
	}
}

func TestExecutorAwaitContext(t *testing.T) {
	e := newExecutor(t, 1)
	release := make(chan struct{})
	defer close(release)
	e.Execute(func() { <-release })
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.AwaitCompletion(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected the deadline to be exceeded, got %v", err)
	}
}
