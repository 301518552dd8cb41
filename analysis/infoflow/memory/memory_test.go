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

package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/awslabs/ar-go-ifds/analysis/infoflow/results"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/solver"
	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
)

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher did not terminate")
	}
}

func TestWarningSystemFiresOncePerCrossing(t *testing.T) {
	ws, err := NewWarningSystem(nil, 1000, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ws.Threshold() != 500 {
		t.Errorf("expected threshold 500, got %d", ws.Threshold())
	}
	var used uint64
	ws.SetUsageFunc(func() uint64 { return used })
	var calls []uint64
	ws.AddListener(func(u, budget uint64) {
		if budget != 1000 {
			t.Errorf("expected budget 1000, got %d", budget)
		}
		calls = append(calls, u)
	})

	for _, u := range []uint64{100, 600, 700, 200, 800} {
		used = u
		ws.Check()
	}
	if diff := cmp.Diff([]uint64{600, 800}, calls); diff != "" {
		t.Errorf("unexpected notifications (-want +got):\n%s", diff)
	}
}

func TestWarningSystemRejectsInvalidThreshold(t *testing.T) {
	for _, f := range []float64{0, -0.1, 1.5} {
		if _, err := NewWarningSystem(nil, 1000, f); err == nil {
			t.Errorf("expected an error for threshold %f", f)
		}
	}
}

func TestMemoryWatcherTerminatesSolvers(t *testing.T) {
	ctrl := gomock.NewController(t)
	s1 := NewMockSolver(ctrl)
	s2 := NewMockSolver(ctrl)
	removed := NewMockSolver(ctrl)
	s1.EXPECT().ForceTerminate(solver.OutOfMemoryReason{UsedBytes: 950}).Times(1)
	s2.EXPECT().ForceTerminate(solver.OutOfMemoryReason{UsedBytes: 950}).Times(1)

	res := results.NewInfoflowResults(false)
	w, err := NewMemoryWatcher(nil, res, 1000, 0.9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.WarningSystem().SetUsageFunc(func() uint64 { return 950 })
	w.AddSolver(s1)
	w.AddSolver(s2)
	w.AddSolver(removed)
	if !w.RemoveSolver(removed) {
		t.Errorf("expected solver to be removed")
	}
	if !w.WarningSystem().Check() {
		t.Fatalf("expected the threshold to be reached")
	}
	if diff := cmp.Diff([]string{MemoryThresholdReached}, res.Exceptions()); diff != "" {
		t.Errorf("unexpected exceptions (-want +got):\n%s", diff)
	}
	w.Close()
}

func TestMemoryWatcherPolls(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := NewMockSolver(ctrl)
	terminated := make(chan struct{})
	s.EXPECT().ForceTerminate(gomock.AssignableToTypeOf(solver.OutOfMemoryReason{})).
		Do(func(solver.TerminationReason) { close(terminated) })

	w, err := NewMemoryWatcher(nil, nil, 1000, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var used atomic.Uint64
	w.WarningSystem().SetUsageFunc(used.Load)
	w.WarningSystem().SetPollInterval(time.Millisecond)
	w.AddSolver(s)
	w.Start(context.Background())
	used.Store(700)
	waitFor(t, terminated)
	w.Close()
}

func TestTimeoutWatcherTerminatesRunningSolvers(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := NewMockSolver(ctrl)
	var listener solver.StatusListener
	s.EXPECT().AddStatusListener(gomock.Any()).Do(func(l solver.StatusListener) { listener = l })
	s.EXPECT().IsTerminated().Return(false).AnyTimes()
	s.EXPECT().ForceTerminate(gomock.AssignableToTypeOf(solver.TimeoutReason{})).Times(1)

	res := results.NewInfoflowResults(false)
	w := NewTimeoutWatcher(nil, 20*time.Millisecond, res)
	w.SetPollStep(time.Millisecond)
	var callbacks atomic.Int32
	w.SetCallback(func() { callbacks.Add(1) })
	w.AddSolver(s)
	listener.NotifySolverStarted(nil)
	w.Start(context.Background())
	waitFor(t, w.Done())

	if callbacks.Load() != 1 {
		t.Errorf("expected the callback to run once, got %d", callbacks.Load())
	}
	if diff := cmp.Diff([]string{TimeoutReached}, res.Exceptions()); diff != "" {
		t.Errorf("unexpected exceptions (-want +got):\n%s", diff)
	}
}

func TestTimeoutWatcherExitsWhenSolversAreDone(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := NewMockSolver(ctrl)
	var listener solver.StatusListener
	s.EXPECT().AddStatusListener(gomock.Any()).Do(func(l solver.StatusListener) { listener = l })
	s.EXPECT().IsTerminated().Return(true).AnyTimes()

	res := results.NewInfoflowResults(false)
	w := NewTimeoutWatcher(nil, time.Hour, res)
	w.SetPollStep(time.Millisecond)
	w.AddSolver(s)
	listener.NotifySolverStarted(nil)
	listener.NotifySolverTerminated(nil)
	w.Start(context.Background())
	waitFor(t, w.Done())
	if len(res.Exceptions()) != 0 {
		t.Errorf("unexpected exceptions %v", res.Exceptions())
	}
}

func TestTimeoutWatcherStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := NewMockSolver(ctrl)
	s.EXPECT().AddStatusListener(gomock.Any())
	s.EXPECT().IsTerminated().Return(false).AnyTimes()

	w := NewTimeoutWatcher(nil, time.Hour, nil)
	w.SetPollStep(time.Millisecond)
	w.AddSolver(s)
	w.Start(context.Background())
	w.Stop()
	waitFor(t, w.Done())

	w.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()
	waitFor(t, w.Done())
	if w.Timeout() != time.Hour {
		t.Errorf("unexpected timeout %s", w.Timeout())
	}
}
