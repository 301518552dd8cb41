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

package river

import (
	"fmt"
	"sync"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/aliasing"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/manager"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/problems"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/solver"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/sourcesink"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/samber/lo"
)

// SecondaryFlowListener records the secondary sinks reached by the secondary flows. For each primary sink, it
// knows the methods called on the receiver of the sink before the sink was reached.
type SecondaryFlowListener struct {
	cfm     sourcesink.ConditionalFlowManager
	results *manager.Manager

	mu    sync.RWMutex
	calls map[ir.Stmt]map[*ir.Method]bool
}

// NewSecondaryFlowListener returns a listener checking statements against the secondary sinks of cfm. The
// results of the secondary manager record an abstraction for each secondary sink reached.
func NewSecondaryFlowListener(cfm sourcesink.ConditionalFlowManager, secondary *manager.Manager) *SecondaryFlowListener {
	return &SecondaryFlowListener{cfm: cfm, results: secondary, calls: map[ir.Stmt]map[*ir.Method]bool{}}
}

// notifyFlowIn is called for each fact flowing into a call statement of the secondary problem
func (l *SecondaryFlowListener) notifyFlowIn(stmt ir.Stmt, abs *data.Abstraction) {
	if abs.IsZero() || abs.SourceContext() == nil {
		return
	}
	ie := stmt.InvokeExpr()
	if ie == nil || !l.cfm.IsSecondarySink(stmt) {
		return
	}
	v := abs.AccessPath().PlainValue()
	if v == nil {
		return
	}
	// the tracked object is the receiver, an argument, or was produced by the call
	assign, isAssign := stmt.(*ir.AssignStmt)
	if ie.Base != v && ie.ArgIndex(v) < 0 && (!isAssign || assign.Left != ir.Value(v)) {
		return
	}
	primary := abs.SourceContext().Stmt

	l.mu.Lock()
	methods := l.calls[primary]
	if methods == nil {
		methods = map[*ir.Method]bool{}
		l.calls[primary] = methods
	}
	isNew := !methods[ie.Method]
	methods[ie.Method] = true
	l.mu.Unlock()

	if isNew && l.results != nil {
		l.results.Results().AddResult(
			data.NewAbstractionAtSink([]data.Definition{sourcesink.SecondarySink()}, abs, stmt))
	}
}

// HasSecondaryFlows implements sourcesink.SecondaryFlows
func (l *SecondaryFlowListener) HasSecondaryFlows() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.calls) > 0
}

// SecondaryCallsFrom implements sourcesink.SecondaryFlows
func (l *SecondaryFlowListener) SecondaryCallsFrom(primarySink ir.Stmt) []*ir.Method {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return lo.Keys(l.calls[primarySink])
}

// secondaryProblem is the backward alias problem with a listener notified of the facts reaching calls
type secondaryProblem struct {
	*problems.AliasProblem
	listener *SecondaryFlowListener
}

func (p *secondaryProblem) FlowFunctions() solver.FlowFunctions { return p }

func (p *secondaryProblem) CallFlow(d1 *data.Abstraction, callSite ir.Stmt, callee *ir.Method,
	d2 *data.Abstraction) []*data.Abstraction {
	p.listener.notifyFlowIn(callSite, d2)
	return p.AliasProblem.CallFlow(d1, callSite, callee, d2)
}

func (p *secondaryProblem) CallToReturnFlow(d1 *data.Abstraction, callSite, returnSite ir.Stmt,
	d2 *data.Abstraction) []*data.Abstraction {
	p.listener.notifyFlowIn(callSite, d2)
	return p.AliasProblem.CallToReturnFlow(d1, callSite, returnSite, d2)
}

// SecondaryDomain is the summary domain of the secondary problems
const SecondaryDomain = "secondary"

func (p *secondaryProblem) SummaryDomain() string { return SecondaryDomain }

// Analysis is the secondary flow analysis attached to a forward analysis
type Analysis struct {
	manager   *manager.Manager
	solver    *solver.Solver
	listener  *SecondaryFlowListener
	generator *SecondaryFlowGenerator
}

// New returns the secondary analysis of the forward problem managed by primary. The secondary solver shares the
// executor of the forward solver, so the forward solver only completes once the secondary flows are done. An
// error is returned if the source/sink manager of the analysis knows no conditional sinks.
func New(primary *manager.Manager, fwd *problems.InfoflowProblem, executor *solver.Executor,
	group *solver.PeerGroup) (*Analysis, error) {
	cfm, ok := primary.SourceSinkManager().(sourcesink.ConditionalFlowManager)
	if !ok {
		return nil, fmt.Errorf("additional flows enabled but the source/sink manager has no conditional sinks")
	}
	cfg := *primary.Config
	cfg.AliasingAlgorithm = config.AliasingNone
	// the secondary problem has no sinks: it only records the secondary sinks it reaches
	mgr := manager.New(&cfg, primary.Logger(), primary.ICFG(), nil, primary.TaintWrapper())
	mgr.SetAliasing(aliasing.New(aliasing.None{}, mgr))

	listener := NewSecondaryFlowListener(cfm, mgr)
	problem := &secondaryProblem{
		AliasProblem: problems.NewAliasProblem(mgr, nil, fwd.ZeroValue()),
		listener:     listener,
	}
	s := solver.NewSolver("secondary", problem, executor, group, primary.Logger())
	s.Configure(cfg.Options)
	a := &Analysis{
		manager:   mgr,
		solver:    s,
		listener:  listener,
		generator: NewSecondaryFlowGenerator(fwd.RuleBase(), s),
	}
	fwd.AddRule(a.generator)
	return a, nil
}

// Solver returns the secondary solver
func (a *Analysis) Solver() *solver.Solver { return a.solver }

// Manager returns the manager of the secondary problem
func (a *Analysis) Manager() *manager.Manager { return a.manager }

// Flows returns the secondary flows found so far
func (a *Analysis) Flows() *SecondaryFlowListener { return a.listener }

// Results returns the secondary sinks reached
func (a *Analysis) Results() []*data.AbstractionAtSink { return a.manager.Results().Results() }

// Cleanup releases the memory of the secondary solver
func (a *Analysis) Cleanup() {
	a.solver.Cleanup()
	a.manager.Cleanup()
}
