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
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// PathEdge is the edge (D1, Target, D2): D2 holds at Target when the method of Target was entered with D1
type PathEdge struct {
	D1     *data.Abstraction
	Target ir.Stmt
	D2     *data.Abstraction
}

func (e PathEdge) String() string {
	return "<" + e.D1.String() + "> -> <" + e.Target.String() + ", " + e.D2.String() + ">"
}

// Seed is a set of facts that hold at a statement when the analysis starts
type Seed struct {
	Stmt  ir.Stmt
	Facts []*data.Abstraction
}

// FlowFunctions compute the facts that hold after a statement from a fact that holds before it. A nil or empty
// result kills the fact.
type FlowFunctions interface {
	// NormalFlow maps d2 at curr to the facts at succ, in the context d1
	NormalFlow(d1 *data.Abstraction, curr, succ ir.Stmt, d2 *data.Abstraction) []*data.Abstraction

	// CallFlow maps d2 at the call site to the entry facts of the callee, in the context d1
	CallFlow(d1 *data.Abstraction, callSite ir.Stmt, callee *ir.Method, d2 *data.Abstraction) []*data.Abstraction

	// ReturnFlow maps the fact d2 at the exit statement of the callee, entered with calleeD1, to the facts at the
	// return site. callSite and returnSite are nil for returns into unknown callers. callerD1s are the contexts of
	// the callers at the call site.
	ReturnFlow(callSite ir.Stmt, callee *ir.Method, exit, returnSite ir.Stmt, calleeD1, d2 *data.Abstraction,
		callerD1s []*data.Abstraction) []*data.Abstraction

	// CallToReturnFlow maps d2 at the call site to the facts at the return site that do not go through the callees
	CallToReturnFlow(d1 *data.Abstraction, callSite, returnSite ir.Stmt, d2 *data.Abstraction) []*data.Abstraction
}

// Problem is a tabulation problem over an ICFG
type Problem interface {
	// ICFG is the graph the problem is solved on. Backward problems return a backwards view.
	ICFG() icfg.ICFG
	// ZeroValue is the fact that always holds
	ZeroValue() *data.Abstraction
	// InitialSeeds are the facts that hold when the analysis starts
	InitialSeeds() []Seed
	// FlowFunctions of the problem
	FlowFunctions() FlowFunctions
	// FollowReturnsPastSeeds propagates the returns of methods without known calling context to all the callers
	FollowReturnsPastSeeds() bool
	// SummaryDomain identifies the problems whose end summaries can be shared in a peer group
	SummaryDomain() string
}

// StatusListener is notified when a solver starts and terminates
type StatusListener interface {
	NotifySolverStarted(s *Solver)
	NotifySolverTerminated(s *Solver)
}

// ScheduleTarget tells which kind of step produced an edge
type ScheduleTarget int

// Schedule targets
const (
	// NormalStep edges stay in the same method
	NormalStep ScheduleTarget = iota
	// CallStep edges enter a callee
	CallStep
	// ReturnStep edges return to a caller
	ReturnStep
)

// SchedulingStrategy decides which edges are processed in their own task
type SchedulingStrategy interface {
	// Inline returns true if an edge produced by a step of the given kind is processed by the task that produced
	// it, instead of being submitted to the executor
	Inline(kind ScheduleTarget) bool
}

type eachEdge struct{}

func (eachEdge) Inline(ScheduleTarget) bool { return false }

type threadByMethod struct{}

func (threadByMethod) Inline(k ScheduleTarget) bool { return k == NormalStep }

// SchedulingEachEdge processes every edge in its own task
var SchedulingEachEdge SchedulingStrategy = eachEdge{}

// SchedulingStrategyThreadByMethod follows the edges of a method in the task that entered the method, and
// submits new tasks for calls and returns only
var SchedulingStrategyThreadByMethod SchedulingStrategy = threadByMethod{}
