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

//go:generate mockgen -source=watchers.go -destination=mock_solver_test.go -package=memory

import (
	"context"
	"sync"
	"time"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/results"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/solver"
)

// Solver is the part of a solver the watchers control
type Solver interface {
	ID() string
	ForceTerminate(reason solver.TerminationReason)
	IsTerminated() bool
	AddStatusListener(l solver.StatusListener)
}

// Messages recorded in the results when a watcher stops the solvers
const (
	MemoryThresholdReached = "Memory threshold reached"
	TimeoutReached         = "Timeout reached"
)

// MemoryWatcher terminates its solvers when the memory threshold is reached
type MemoryWatcher struct {
	logger  *config.LogGroup
	ws      *WarningSystem
	results *results.InfoflowResults

	mu      sync.Mutex
	solvers map[Solver]bool
}

// NewMemoryWatcher returns a watcher stopping the solvers at fraction of the budget in bytes (0 for the runtime
// budget). The results, if not nil, record the incident.
func NewMemoryWatcher(logger *config.LogGroup, res *results.InfoflowResults, budget uint64,
	fraction float64) (*MemoryWatcher, error) {
	if logger == nil {
		logger = config.NewNopLogGroup()
	}
	ws, err := NewWarningSystem(logger, budget, fraction)
	if err != nil {
		return nil, err
	}
	w := &MemoryWatcher{logger: logger, ws: ws, results: res, solvers: map[Solver]bool{}}
	ws.AddListener(func(used, _ uint64) {
		if w.results != nil {
			w.results.AddException(MemoryThresholdReached)
		}
		w.ForceTerminate(solver.OutOfMemoryReason{UsedBytes: used})
		w.logger.Warnf("Running out of memory, solvers terminated")
	})
	return w, nil
}

// WarningSystem returns the warning system of the watcher
func (w *MemoryWatcher) WarningSystem() *WarningSystem { return w.ws }

// AddSolver watches s
func (w *MemoryWatcher) AddSolver(s Solver) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.solvers[s] = true
}

// RemoveSolver stops watching s. It returns false if s was not watched.
func (w *MemoryWatcher) RemoveSolver(s Solver) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	ok := w.solvers[s]
	delete(w.solvers, s)
	return ok
}

// ClearSolvers stops watching all solvers
func (w *MemoryWatcher) ClearSolvers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.solvers = map[Solver]bool{}
}

// ForceTerminate terminates all the watched solvers with the reason
func (w *MemoryWatcher) ForceTerminate(reason solver.TerminationReason) {
	w.mu.Lock()
	solvers := make([]Solver, 0, len(w.solvers))
	for s := range w.solvers {
		solvers = append(solvers, s)
	}
	w.mu.Unlock()
	for _, s := range solvers {
		s.ForceTerminate(reason)
	}
}

// Start starts measuring the memory
func (w *MemoryWatcher) Start(ctx context.Context) { w.ws.Start(ctx) }

// Close stops the watcher and forgets the solvers
func (w *MemoryWatcher) Close() {
	w.ClearSolvers()
	w.ws.Close()
}

type solverState int

const (
	idle solverState = iota
	running
	done
)

// TimeoutWatcher terminates its solvers when they are still running after the timeout
type TimeoutWatcher struct {
	logger   *config.LogGroup
	timeout  time.Duration
	results  *results.InfoflowResults
	step     time.Duration
	callback func()

	mu       sync.Mutex
	solvers  map[Solver]solverState
	stopped  bool
	finished chan struct{}
}

// NewTimeoutWatcher returns a watcher with the timeout. The results, if not nil, record the incident.
func NewTimeoutWatcher(logger *config.LogGroup, timeout time.Duration, res *results.InfoflowResults) *TimeoutWatcher {
	if logger == nil {
		logger = config.NewNopLogGroup()
	}
	return &TimeoutWatcher{
		logger:  logger,
		timeout: timeout,
		results: res,
		step:    time.Second,
		solvers: map[Solver]solverState{},
	}
}

// Timeout returns the timeout of the watcher
func (w *TimeoutWatcher) Timeout() time.Duration { return w.timeout }

// SetPollStep sets the interval at which the watcher checks the solvers
func (w *TimeoutWatcher) SetPollStep(d time.Duration) { w.step = d }

// SetCallback sets a function called after the solvers have been stopped on timeout
func (w *TimeoutWatcher) SetCallback(f func()) { w.callback = f }

// statusListener forwards the notifications of one solver
type statusListener struct {
	w *TimeoutWatcher
	s Solver
}

func (l statusListener) NotifySolverStarted(*solver.Solver)    { l.w.setState(l.s, running) }
func (l statusListener) NotifySolverTerminated(*solver.Solver) { l.w.setState(l.s, done) }

func (w *TimeoutWatcher) setState(s Solver, state solverState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.solvers[s] = state
}

// AddSolver watches s
func (w *TimeoutWatcher) AddSolver(s Solver) {
	w.setState(s, idle)
	s.AddStatusListener(statusListener{w: w, s: s})
}

func (w *TimeoutWatcher) allTerminated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for s, state := range w.solvers {
		if state != done || !s.IsTerminated() {
			return false
		}
	}
	return true
}

func (w *TimeoutWatcher) isStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

// Start starts the countdown. The watcher stops by itself when all the solvers are done, when ctx is done or
// when Stop is called.
func (w *TimeoutWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	w.stopped = false
	w.finished = make(chan struct{})
	finished := w.finished
	w.mu.Unlock()

	start := time.Now()
	w.logger.Debugf("Timeout watcher started (%s)", w.timeout)
	go func() {
		defer close(finished)
		allTerminated := w.allTerminated()
		elapsed := time.Duration(0)
		for !w.isStopped() {
			if elapsed = time.Since(start); elapsed >= w.timeout {
				break
			}
			if allTerminated = w.allTerminated(); allTerminated {
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.step):
			}
		}
		if !w.isStopped() && !allTerminated {
			w.logger.Warnf("Timeout reached, stopping the solvers...")
			if w.results != nil {
				w.results.AddException(TimeoutReached)
			}
			reason := solver.TimeoutReason{Elapsed: elapsed, Timeout: w.timeout}
			w.mu.Lock()
			solvers := make([]Solver, 0, len(w.solvers))
			for s := range w.solvers {
				solvers = append(solvers, s)
			}
			w.mu.Unlock()
			for _, s := range solvers {
				s.ForceTerminate(reason)
			}
			if w.callback != nil {
				w.callback()
			}
		}
		w.logger.Debugf("Timeout watcher terminated")
	}()
}

// Done returns a channel closed when the watcher started last has exited, or nil if it was never started
func (w *TimeoutWatcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finished
}

// Stop stops the watcher without terminating the solvers
func (w *TimeoutWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
}

// Reset marks all the solvers idle so that the watcher can be started again
func (w *TimeoutWatcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = false
	for s := range w.solvers {
		w.solvers[s] = idle
	}
}
