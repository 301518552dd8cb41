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
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/panjf2000/ants/v2"
)

// ErrExecutorClosed is returned when tasks are submitted to an executor that has been closed
var ErrExecutorClosed = errors.New("executor closed")

// Executor runs the edge processing tasks of one or more solvers on a pool of workers. Tasks are queued in an
// unbounded queue, such that tasks can submit new tasks without blocking the workers.
//
// An interrupted executor drops the queued tasks and ignores new ones until it is Reset. When solvers share the
// executor, each solver holds its own interrupt (InterruptBy) and the executor resumes once all of them released it
// (ResetBy).
type Executor struct {
	pool    *ants.Pool
	tasks   *queue.Queue
	workers int

	mu     sync.Mutex
	active int
	idle   chan struct{}
	errs   []error

	holdsMu     sync.Mutex
	holds       map[any]bool
	interrupted atomic.Bool
	closed      atomic.Bool
}

// NewExecutor starts an executor with the given number of workers. If numWorkers is not positive, the number of
// CPUs is used.
func NewExecutor(numWorkers int) (*Executor, error) {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	pool, err := ants.NewPool(numWorkers)
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}
	e := &Executor{
		pool:    pool,
		tasks:   queue.New(64),
		workers: numWorkers,
		idle:    make(chan struct{}),
	}
	close(e.idle)
	for i := 0; i < numWorkers; i++ {
		if err := pool.Submit(e.work); err != nil {
			pool.Release()
			return nil, fmt.Errorf("could not start worker: %w", err)
		}
	}
	return e, nil
}

func (e *Executor) work() {
	for {
		items, err := e.tasks.Get(1)
		if err != nil {
			// queue disposed
			return
		}
		for _, item := range items {
			e.run(item.(func()))
		}
	}
}

func (e *Executor) run(task func()) {
	defer e.done()
	defer func() {
		if r := recover(); r != nil {
			e.mu.Lock()
			e.errs = append(e.errs, fmt.Errorf("panic in solver task: %v\n%s", r, debug.Stack()))
			e.mu.Unlock()
		}
	}()
	if e.interrupted.Load() {
		return
	}
	task()
}

func (e *Executor) done() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active--
	if e.active == 0 {
		close(e.idle)
	}
}

// Execute schedules the task. Tasks submitted while the executor is interrupted or closed are dropped.
func (e *Executor) Execute(task func()) {
	if e.interrupted.Load() || e.closed.Load() {
		return
	}
	e.mu.Lock()
	if e.active == 0 {
		e.idle = make(chan struct{})
	}
	e.active++
	e.mu.Unlock()
	if err := e.tasks.Put(task); err != nil {
		e.done()
	}
}

// AwaitCompletion blocks until no task is queued or running, or until ctx is done. It returns the errors raised
// by the tasks since the last call, or the error of the context.
func (e *Executor) AwaitCompletion(ctx context.Context) error {
	for {
		e.mu.Lock()
		if e.active == 0 {
			errs := e.errs
			e.errs = nil
			e.mu.Unlock()
			return errors.Join(errs...)
		}
		idle := e.idle
		e.mu.Unlock()
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ActiveTasks returns the number of tasks queued or running
func (e *Executor) ActiveTasks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Workers returns the number of workers of the executor
func (e *Executor) Workers() int { return e.workers }

// Interrupt drops the queued tasks. Running tasks complete normally.
func (e *Executor) Interrupt() { e.interrupted.Store(true) }

// InterruptBy interrupts the executor on behalf of owner, until owner calls ResetBy
func (e *Executor) InterruptBy(owner any) {
	e.holdsMu.Lock()
	defer e.holdsMu.Unlock()
	if e.holds == nil {
		e.holds = map[any]bool{}
	}
	e.holds[owner] = true
	e.interrupted.Store(true)
}

// IsInterrupted returns true if the executor has been interrupted and not reset since
func (e *Executor) IsInterrupted() bool { return e.interrupted.Load() }

// Reset makes an interrupted executor accept tasks again, whoever interrupted it
func (e *Executor) Reset() {
	e.holdsMu.Lock()
	defer e.holdsMu.Unlock()
	e.holds = nil
	e.interrupted.Store(false)
}

// ResetBy releases the interrupt of owner. The executor accepts tasks again once no owner holds an interrupt.
func (e *Executor) ResetBy(owner any) {
	e.holdsMu.Lock()
	defer e.holdsMu.Unlock()
	delete(e.holds, owner)
	if len(e.holds) == 0 {
		e.interrupted.Store(false)
	}
}

// Close stops the workers. Queued tasks are dropped. The executor cannot be used after Close.
func (e *Executor) Close() {
	if e.closed.Swap(true) {
		return
	}
	dropped := e.tasks.Dispose()
	for range dropped {
		e.done()
	}
	e.pool.Release()
}
