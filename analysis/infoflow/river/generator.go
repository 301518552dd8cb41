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

// Package river implements the secondary flows of conditional sinks. A conditional sink only reports a leak if
// the object it is called on is connected to some other calls, e.g. a stream that was obtained from a network
// connection. When a taint reaches a conditional sink, the receiver of the call is tracked backwards by a
// secondary solver, and the calls found on its way are checked against the conditions once the analysis is done.
package river

import (
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/problems"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/solver"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/sourcesink"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// SecondaryFlowGenerator is a forward rule that starts a secondary flow on the receiver of every conditional sink
// reached by a taint. It never changes the facts of the forward problem.
type SecondaryFlowGenerator struct {
	problems.RuleBase
	secondary *solver.Solver
}

// NewSecondaryFlowGenerator returns the rule sending the secondary flows to the solver
func NewSecondaryFlowGenerator(b problems.RuleBase, secondary *solver.Solver) *SecondaryFlowGenerator {
	return &SecondaryFlowGenerator{RuleBase: b, secondary: secondary}
}

// isReadAt returns true if the call reads the value tainted by ap
func isReadAt(ie *ir.InvokeExpr, ap *data.AccessPath) bool {
	v := ap.PlainValue()
	if v == nil {
		return false
	}
	if ie.Base == v {
		return true
	}
	return ie.ArgIndex(v) >= 0
}

// CallToReturnFlow implements problems.Rule
func (r *SecondaryFlowGenerator) CallToReturnFlow(d1, source *data.Abstraction, stmt ir.Stmt,
	_ *problems.KillFlags) []*data.Abstraction {
	if source.IsZero() || !source.IsAbstractionActive() {
		return nil
	}
	ie := stmt.InvokeExpr()
	if ie == nil || !ie.IsInstance() || !isReadAt(ie, source.AccessPath()) {
		return nil
	}
	baseType := ie.Base.Type()
	if baseType == nil || !baseType.IsReference() {
		return nil
	}
	mgr := r.Manager()
	cfm, ok := mgr.SourceSinkManager().(sourcesink.ConditionalFlowManager)
	if !ok || !cfm.IsConditionalSink(stmt, mgr.Program().Class(baseType.Name())) {
		return nil
	}
	ap := mgr.AccessPathFactory().CreateAccessPath(ie.Base, true)
	if ap == nil {
		return nil
	}

	// the secondary taint remembers the primary sink it started from
	sc := data.NewSourceContext(sourcesink.ConditionalSecondarySource(), ap, stmt, nil)
	abs := r.Zero().NewSourceAbstraction(sc.Definition, ap, stmt, nil, false, false).
		DeriveNewAbstractionWithTurnUnit(stmt).
		InjectSourceContext(sc)
	abs.SetCorrespondingCallSite(stmt)
	mgr.Logger().Tracef("Secondary flow on %s starting at %s", ap, stmt)
	for _, pred := range mgr.ICFG().PredsOf(stmt) {
		r.secondary.ProcessEdge(solver.PathEdge{D1: d1, Target: pred, D2: abs})
	}
	return nil
}
