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

// Package memory contains the watchers that stop the solvers when the analysis runs out of memory or time.
package memory

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/awslabs/ar-go-ifds/analysis/config"
)

// DefaultBudget is the memory budget used when neither the configuration nor the Go runtime limit one
const DefaultBudget uint64 = 8 << 30

// DefaultPollInterval is the interval at which the heap is measured
const DefaultPollInterval = 100 * time.Millisecond

// ThresholdListener is called when the heap crosses the threshold of a warning system
type ThresholdListener func(used, budget uint64)

// UsageFunc returns the number of bytes currently in use
type UsageFunc func() uint64

// HeapUsage returns the bytes of the heap allocated and not yet freed
func HeapUsage() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// RuntimeBudget returns the soft memory limit of the Go runtime, or DefaultBudget if there is none
func RuntimeBudget() uint64 {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return DefaultBudget
	}
	return uint64(limit)
}

// WarningSystem polls the heap usage and calls its listeners when the usage crosses a fraction of the budget.
// Listeners fire once per crossing: the usage has to fall below the threshold before they can fire again.
type WarningSystem struct {
	logger    *config.LogGroup
	budget    uint64
	threshold uint64
	usage     UsageFunc
	interval  time.Duration

	mu        sync.Mutex
	listeners []ThresholdListener
	above     bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewWarningSystem returns a warning system firing when fraction of budget bytes are in use. A zero budget
// means the runtime budget.
func NewWarningSystem(logger *config.LogGroup, budget uint64, fraction float64) (*WarningSystem, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("memory threshold %f not in (0, 1]", fraction)
	}
	if logger == nil {
		logger = config.NewNopLogGroup()
	}
	if budget == 0 {
		budget = RuntimeBudget()
	}
	ws := &WarningSystem{
		logger:    logger,
		budget:    budget,
		threshold: uint64(float64(budget) * fraction),
		usage:     HeapUsage,
		interval:  DefaultPollInterval,
	}
	logger.Debugf("Registered a memory warning system for %.1f MiB", float64(ws.threshold)/(1<<20))
	return ws, nil
}

// SetUsageFunc replaces the measure of the memory in use. Must be called before Start.
func (ws *WarningSystem) SetUsageFunc(f UsageFunc) { ws.usage = f }

// SetPollInterval sets the interval between two measures. Must be called before Start.
func (ws *WarningSystem) SetPollInterval(d time.Duration) { ws.interval = d }

// Threshold returns the number of bytes at which the listeners fire
func (ws *WarningSystem) Threshold() uint64 { return ws.threshold }

// AddListener registers a listener
func (ws *WarningSystem) AddListener(l ThresholdListener) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.listeners = append(ws.listeners, l)
}

// Check measures the usage once and fires the listeners if the threshold has been crossed since the last check.
// It returns true if the listeners were called.
func (ws *WarningSystem) Check() bool {
	used := ws.usage()
	ws.mu.Lock()
	if used < ws.threshold {
		ws.above = false
		ws.mu.Unlock()
		return false
	}
	if ws.above {
		ws.mu.Unlock()
		return false
	}
	ws.above = true
	listeners := append([]ThresholdListener(nil), ws.listeners...)
	ws.mu.Unlock()

	ws.logger.Infof("Triggering memory warning at %d MB (%d MB budget)", used/(1<<20), ws.budget/(1<<20))
	for _, l := range listeners {
		l(used, ws.budget)
	}
	return true
}

// Start polls the usage until ctx is done or Close is called
func (ws *WarningSystem) Start(ctx context.Context) {
	ws.mu.Lock()
	if ws.cancel != nil {
		ws.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	ws.cancel = cancel
	ws.done = make(chan struct{})
	done := ws.done
	ws.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(ws.interval)
		defer ticker.Stop()
		for {
			ws.Check()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Close stops polling and waits for the poller to exit
func (ws *WarningSystem) Close() {
	ws.mu.Lock()
	cancel, done := ws.cancel, ws.done
	ws.cancel = nil
	ws.mu.Unlock()
	if cancel == nil {
		return
	}
	ws.logger.Debugf("Shutting down the memory warning system")
	cancel()
	<-done
}
