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

package aliasing

import (
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/solver"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// FlowSensitive searches aliases on demand with a backward solver. When a heap taint is created at a statement,
// an inactive copy is sent backwards from the predecessors of the statement. The backward problem looks for the
// definitions of the aliases and injects them into the forward solver, where they stay inactive until they reach
// the statement that created the original taint.
type FlowSensitive struct {
	env     Environment
	bSolver *solver.Solver
}

// NewFlowSensitive returns the strategy sending alias queries to the backward solver
func NewFlowSensitive(env Environment, backward *solver.Solver) *FlowSensitive {
	return &FlowSensitive{env: env, bSolver: backward}
}

func (s *FlowSensitive) ComputeAliasTaints(d1 *data.Abstraction, src ir.Stmt, target ir.Value,
	taintSet *data.AbstractionSet, m *ir.Method, newAbs *data.Abstraction) {
	bwAbs := newAbs.DeriveInactiveAbstraction(src)
	if bwAbs == nil {
		return
	}
	for _, pred := range s.env.ICFG().PredsOf(src) {
		s.bSolver.ProcessEdge(solver.PathEdge{D1: d1, Target: pred, D2: bwAbs})
	}
}

func (s *FlowSensitive) IsInteractive() bool { return false }

func (s *FlowSensitive) MayAlias(ap1, ap2 *data.AccessPath) bool { return false }

// InjectCallingContext makes the calling context of the forward solver known to the backward solver, such that
// aliases found in the callee can be returned to the caller
func (s *FlowSensitive) InjectCallingContext(d3 *data.Abstraction, fSolver *solver.Solver, callee *ir.Method,
	callSite ir.Stmt, source, d1 *data.Abstraction) {
	s.bSolver.InjectContext(callee, d3, callSite, source, d1)
}

func (s *FlowSensitive) IsFlowSensitive() bool { return true }

func (s *FlowSensitive) RequiresAnalysisOnReturn() bool { return false }

func (s *FlowSensitive) HasProcessedMethod(*ir.Method) bool { return true }

func (s *FlowSensitive) IsLazyAnalysis() bool { return false }

func (s *FlowSensitive) Solver() *solver.Solver { return s.bSolver }

func (s *FlowSensitive) Cleanup() {
	s.bSolver.Cleanup()
}
