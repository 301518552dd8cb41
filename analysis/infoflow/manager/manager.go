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

// Package manager contains the state shared by the solvers and the flow functions of one taint analysis.
package manager

import (
	"sync"
	"sync/atomic"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/aliasing"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/results"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/solver"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/sourcesink"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/analysis/summaries"
)

// Manager holds the components of the analysis. It implements the environments that the source/sink managers,
// the taint wrappers and the alias strategies are initialized with.
//
// The forward solver and the aliasing facade are set after construction, since they need the manager to be
// created.
type Manager struct {
	// Config is the configuration of the analysis
	Config *config.Config

	logger       *config.LogGroup
	program      *ir.Program
	cfg          icfg.ICFG
	apf          *data.AccessPathFactory
	typeUtils    *data.TypeUtils
	sourceSinks  sourcesink.Manager
	taintWrapper summaries.TaintWrapper
	results      *results.TaintPropagationResults

	forwardSolver *solver.Solver
	aliasing      *aliasing.Aliasing

	aborted atomic.Bool

	errors     map[string][]error
	errorMutex sync.Mutex
}

// New returns a manager for the analysis of the program over the graph g. The taint wrapper may be nil.
func New(cfg *config.Config, logger *config.LogGroup, g icfg.ICFG, ssm sourcesink.Manager,
	wrapper summaries.TaintWrapper) *Manager {
	if logger == nil {
		logger = config.NewNopLogGroup()
	}
	p := g.Program()
	apf := data.NewAccessPathFactory(cfg.Options, p)
	return &Manager{
		Config:       cfg,
		logger:       logger,
		program:      p,
		cfg:          g,
		apf:          apf,
		typeUtils:    apf.TypeUtils(),
		sourceSinks:  ssm,
		taintWrapper: wrapper,
		results:      results.NewTaintPropagationResults(),
		errors:       map[string][]error{},
	}
}

// ICFG returns the forward interprocedural control-flow graph
func (m *Manager) ICFG() icfg.ICFG { return m.cfg }

// Program returns the program being analyzed
func (m *Manager) Program() *ir.Program { return m.program }

// AccessPathFactory returns the factory creating all the access paths of the analysis
func (m *Manager) AccessPathFactory() *data.AccessPathFactory { return m.apf }

// TypeUtils returns the type checker of the flow functions
func (m *Manager) TypeUtils() *data.TypeUtils { return m.typeUtils }

// SourceSinkManager returns the manager classifying statements as sources and sinks
func (m *Manager) SourceSinkManager() sourcesink.Manager { return m.sourceSinks }

// TaintWrapper returns the taint wrapper, nil if library calls are not modeled
func (m *Manager) TaintWrapper() summaries.TaintWrapper { return m.taintWrapper }

// Results returns the collector of the taints found at sinks
func (m *Manager) Results() *results.TaintPropagationResults { return m.results }

// Logger returns the logger of the analysis
func (m *Manager) Logger() *config.LogGroup { return m.logger }

// Options returns the options of the analysis
func (m *Manager) Options() config.Options { return m.Config.Options }

// ForwardSolver returns the solver of the taint propagation
func (m *Manager) ForwardSolver() *solver.Solver { return m.forwardSolver }

// SetForwardSolver sets the solver of the taint propagation
func (m *Manager) SetForwardSolver(s *solver.Solver) { m.forwardSolver = s }

// Aliasing returns the aliasing facade
func (m *Manager) Aliasing() *aliasing.Aliasing { return m.aliasing }

// SetAliasing sets the aliasing facade
func (m *Manager) SetAliasing(a *aliasing.Aliasing) { m.aliasing = a }

// IsAnalysisAborted returns true once Abort has been called
func (m *Manager) IsAnalysisAborted() bool { return m.aborted.Load() }

// Abort marks the analysis as aborted. Components that compute caches on the fly stop doing so.
func (m *Manager) Abort() { m.aborted.Store(true) }

// StaticFieldTrackingEnabled returns true if taints on static fields are tracked
func (m *Manager) StaticFieldTrackingEnabled() bool {
	return m.Config.StaticFieldTracking != config.StaticFieldTrackingNone
}

// FlowSensitiveAliasing returns true if aliases found before the statement that created the original taint stay
// inactive until they reach that statement
func (m *Manager) FlowSensitiveAliasing() bool {
	switch m.Config.AliasingAlgorithm {
	case config.AliasingFlowSensitive, config.AliasingPtsBased:
		return true
	}
	return false
}

// AddError adds an error with key and error e to the state.
func (m *Manager) AddError(key string, e error) {
	m.errorMutex.Lock()
	defer m.errorMutex.Unlock()
	if e != nil {
		m.errors[key] = append(m.errors[key], e)
	}
}

// CheckError checks whether there is an error in the state, and if there is, returns the first it encounters and
// deletes it. The slice returned contains all the errors associated with one single error key.
func (m *Manager) CheckError() []error {
	m.errorMutex.Lock()
	defer m.errorMutex.Unlock()
	for e, errs := range m.errors {
		delete(m.errors, e)
		return errs
	}
	return nil
}

// HasErrors returns true if the state has an error. Unlike CheckError, this is non-destructive.
func (m *Manager) HasErrors() bool {
	m.errorMutex.Lock()
	defer m.errorMutex.Unlock()
	for _, errs := range m.errors {
		if len(errs) > 0 {
			return true
		}
	}
	return false
}

// Cleanup drops the state that is not needed to report results
func (m *Manager) Cleanup() {
	if m.aliasing != nil {
		m.aliasing.Cleanup()
	}
}
