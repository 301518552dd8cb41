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
	"strings"
	"sync"
	"testing"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

type testDef string

func (d testDef) String() string { return string(d) }

// localTaints is a problem tracking tainted locals through assignments, calls and returns. Calls to the sink
// method record the tainted arguments.
type localTaints struct {
	g       icfg.ICFG
	f       *data.AccessPathFactory
	zero    *data.Abstraction
	seeds   []Seed
	sink    *ir.Method
	crashAt ir.Stmt

	mu          sync.Mutex
	leaks       map[ir.Stmt]bool
	normalFlows map[*ir.Method]int
}

func (p *localTaints) ICFG() icfg.ICFG                      { return p.g }
func (p *localTaints) ZeroValue() *data.Abstraction         { return p.zero }
func (p *localTaints) InitialSeeds() []Seed                 { return p.seeds }
func (p *localTaints) FlowFunctions() FlowFunctions         { return p }
func (p *localTaints) FollowReturnsPastSeeds() bool         { return false }
func (p *localTaints) SummaryDomain() string                { return "locals" }
func (p *localTaints) tainted(d *data.Abstraction) ir.Value { return d.AccessPath().PlainValue() }

func (p *localTaints) leakCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leaks)
}

func (p *localTaints) normalFlowsIn(m *ir.Method) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.normalFlows[m]
}

func (p *localTaints) NormalFlow(d1 *data.Abstraction, curr, succ ir.Stmt, d2 *data.Abstraction) []*data.Abstraction {
	if curr == p.crashAt {
		panic("crash")
	}
	p.mu.Lock()
	p.normalFlows[curr.Method()]++
	p.mu.Unlock()
	if d2.IsZero() {
		return []*data.Abstraction{d2}
	}
	as, ok := curr.(*ir.AssignStmt)
	if !ok {
		return []*data.Abstraction{d2}
	}
	if as.Right == p.tainted(d2) {
		return []*data.Abstraction{d2, d2.DeriveNewAbstraction(p.f.CreateAccessPath(as.Left, true), curr)}
	}
	if as.Left == p.tainted(d2) {
		return nil
	}
	return []*data.Abstraction{d2}
}

func (p *localTaints) CallFlow(d1 *data.Abstraction, callSite ir.Stmt, callee *ir.Method,
	d2 *data.Abstraction) []*data.Abstraction {
	if d2.IsZero() {
		return nil
	}
	var res []*data.Abstraction
	for i, arg := range callSite.InvokeExpr().Args {
		if arg == p.tainted(d2) {
			ap := p.f.CreateAccessPath(callee.Body().Params[i], true)
			res = append(res, d2.DeriveNewAbstraction(ap, callSite))
		}
	}
	return res
}

func (p *localTaints) ReturnFlow(callSite ir.Stmt, callee *ir.Method, exit, returnSite ir.Stmt,
	calleeD1, d2 *data.Abstraction, callerD1s []*data.Abstraction) []*data.Abstraction {
	ret, ok := exit.(*ir.ReturnStmt)
	as, isAssign := callSite.(*ir.AssignStmt)
	if !ok || !isAssign || ret.Op != p.tainted(d2) {
		return nil
	}
	return []*data.Abstraction{d2.DeriveNewAbstraction(p.f.CreateAccessPath(as.Left, true), callSite)}
}

func (p *localTaints) CallToReturnFlow(d1 *data.Abstraction, callSite, returnSite ir.Stmt,
	d2 *data.Abstraction) []*data.Abstraction {
	if d2.IsZero() {
		return []*data.Abstraction{d2}
	}
	ie := callSite.InvokeExpr()
	if ie.Method == p.sink {
		for _, arg := range ie.Args {
			if arg == p.tainted(d2) {
				p.mu.Lock()
				p.leaks[callSite] = true
				p.mu.Unlock()
			}
		}
	}
	if as, ok := callSite.(*ir.AssignStmt); ok && as.Left == p.tainted(d2) {
		return nil
	}
	return []*data.Abstraction{d2}
}

type testProgram struct {
	p       *ir.Program
	g       *icfg.ProgramICFG
	main    *ir.Method
	id      *ir.Method
	sink    *ir.Method
	entry   ir.Stmt
	a       *ir.Local
	call1   ir.Stmt
	call2   ir.Stmt
	sinkB   ir.Stmt
	sinkC   ir.Stmt
	sinkOld ir.Stmt
}

// buildProgram returns the program
//
//	main() { nop; b = id(a); c = id(a); sink(b); sink(c); a = "x"; sink(a) }
//	id(p) { r = p; return r }
func buildProgram(t *testing.T) testProgram {
	p := ir.NewProgram()
	lib := p.AddClass("lib.Sinks", nil)
	lib.Library = true
	sink := lib.AddMethod("sink", []*ir.Type{ir.String}, ir.Void, true)

	c := p.AddClass("t.Main", nil)
	id := c.AddMethod("id", []*ir.Type{ir.String}, ir.String, true)
	ib := ir.NewBodyBuilder(id)
	param := ib.Param(0, "p")
	r := ib.Local("r", ir.String)
	ib.Assign(r, param)
	ib.Return(r)
	ib.Finish()

	main := c.AddMethod("main", nil, ir.Void, true)
	mb := ir.NewBodyBuilder(main)
	a := mb.Local("a", ir.String)
	b := mb.Local("b", ir.String)
	cl := mb.Local("c", ir.String)
	entry := mb.Nop()
	call1 := mb.Assign(b, ir.NewStaticInvoke(id, a))
	call2 := mb.Assign(cl, ir.NewStaticInvoke(id, a))
	sinkB := mb.Invoke(ir.NewStaticInvoke(sink, b))
	sinkC := mb.Invoke(ir.NewStaticInvoke(sink, cl))
	mb.Assign(a, ir.StringConstant("x"))
	sinkOld := mb.Invoke(ir.NewStaticInvoke(sink, a))
	mb.ReturnVoid()
	mb.Finish()

	g, err := icfg.New(p, nil)
	if err != nil {
		t.Fatalf("could not build icfg: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return testProgram{p: p, g: g, main: main, id: id, sink: sink, entry: entry, a: a, call1: call1,
		call2: call2, sinkB: sinkB, sinkC: sinkC, sinkOld: sinkOld}
}

func newLocalTaints(tp testProgram) *localTaints {
	f := data.NewAccessPathFactory(config.NewDefault().Options, tp.p)
	zero := data.ZeroAbstraction(false)
	src := zero.NewSourceAbstraction(testDef("a"), f.CreateAccessPath(tp.a, true), tp.entry, nil, false, false)
	return &localTaints{
		g:           tp.g,
		f:           f,
		zero:        zero,
		seeds:       []Seed{{Stmt: tp.entry, Facts: []*data.Abstraction{src}}},
		sink:        tp.sink,
		leaks:       map[ir.Stmt]bool{},
		normalFlows: map[*ir.Method]int{},
	}
}

func newExecutor(t *testing.T, workers int) *Executor {
	e, err := NewExecutor(workers)
	if err != nil {
		t.Fatalf("could not create executor: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func checkLeaks(t *testing.T, tp testProgram, p *localTaints) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.leaks[tp.sinkB] || !p.leaks[tp.sinkC] {
		t.Errorf("expected leaks at %s and %s, got %v", tp.sinkB, tp.sinkC, p.leaks)
	}
	if p.leaks[tp.sinkOld] {
		t.Errorf("a is overwritten before %s", tp.sinkOld)
	}
}

func TestSolve(t *testing.T) {
	for _, strategy := range []SchedulingStrategy{SchedulingEachEdge, SchedulingStrategyThreadByMethod} {
		tp := buildProgram(t)
		problem := newLocalTaints(tp)
		s := NewSolver("forward", problem, newExecutor(t, 4), nil, nil)
		s.SetSchedulingStrategy(strategy)
		s.SetMemoryManager(NewMemoryManager(ShortenIfEqual, EraseNothing))
		if err := s.Solve(context.Background()); err != nil {
			t.Fatalf("solve failed: %v", err)
		}
		checkLeaks(t, tp, problem)
		if !s.IsTerminated() || s.IsKilled() {
			t.Errorf("solver should have terminated normally")
		}
		// the body of id is propagated once for the entry fact p, even though it is called twice
		if n := problem.normalFlowsIn(tp.id); n != 2 {
			t.Errorf("expected 2 normal flows in id, got %d", n)
		}
	}
}

func TestIdempotentEdges(t *testing.T) {
	tp := buildProgram(t)
	problem := newLocalTaints(tp)
	e := newExecutor(t, 2)
	s := NewSolver("forward", problem, e, nil, nil)
	if err := s.Solve(context.Background()); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	count, edges, leaks := s.PropagationCount(), s.JumpFunctionCount(), problem.leakCount()

	seed := problem.seeds[0]
	s.ProcessEdge(PathEdge{D1: problem.zero, Target: seed.Stmt, D2: seed.Facts[0]})
	if err := e.AwaitCompletion(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.PropagationCount() != count || s.JumpFunctionCount() != edges {
		t.Errorf("processing a known edge again scheduled new edges: %d -> %d", count, s.PropagationCount())
	}
	if problem.leakCount() != leaks {
		t.Errorf("processing a known edge again changed the results")
	}
}

func TestSummaryReuseInPeerGroup(t *testing.T) {
	tp := buildProgram(t)
	group := NewPeerGroup()
	e := newExecutor(t, 1)

	first := newLocalTaints(tp)
	s1 := NewSolver("first", first, e, group, nil)
	if err := s1.Solve(context.Background()); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if group.SummaryCount() == 0 {
		t.Fatalf("expected the first solver to record end summaries")
	}

	second := newLocalTaints(tp)
	s2 := NewSolver("second", second, e, group, nil)
	if err := s2.Solve(context.Background()); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	checkLeaks(t, tp, second)
	if n := second.normalFlowsIn(tp.id); n != 0 {
		t.Errorf("the second solver should reuse the summaries of id, but propagated %d edges in it", n)
	}
	if n := s2.SummaryApplications(); n != 2 {
		t.Errorf("expected the summary of id to be applied at both call sites, got %d", n)
	}
	if len(group.Solvers()) != 2 {
		t.Errorf("expected two solvers in the group")
	}
	if len(s2.Incoming(tp.id, second.zero)) != 0 {
		t.Errorf("no call enters id with the zero fact")
	}
}

func TestMaxCalleesPerCallSite(t *testing.T) {
	tp := buildProgram(t)
	problem := newLocalTaints(tp)
	s := NewSolver("forward", problem, newExecutor(t, 2), nil, nil)
	s.SetMaxCalleesPerCallSite(0)
	if err := s.Solve(context.Background()); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if problem.normalFlowsIn(tp.id) != 0 {
		t.Errorf("id has too many callees and should be skipped")
	}
	if problem.leakCount() != 0 {
		t.Errorf("without entering id, b and c are not tainted")
	}
}

func TestForceTerminateAndReset(t *testing.T) {
	tp := buildProgram(t)
	problem := newLocalTaints(tp)
	s := NewSolver("forward", problem, newExecutor(t, 2), nil, nil)

	s.ForceTerminate(TimeoutReason{})
	s.ForceTerminate(OutOfMemoryReason{UsedBytes: 1 << 30})
	if err := s.Solve(context.Background()); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if !s.IsKilled() || s.PropagationCount() != 0 {
		t.Errorf("a killed solver should not propagate anything")
	}
	reason := s.TerminationReason()
	if !IsTimeout(reason) || !IsOutOfMemory(reason) {
		t.Errorf("expected both reasons to be combined, got %s", reason)
	}

	s.Reset()
	if s.IsKilled() || s.TerminationReason() != nil {
		t.Fatalf("reset should clear the termination state")
	}
	if err := s.Solve(context.Background()); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	checkLeaks(t, tp, problem)
}

func TestPanicInFlowFunction(t *testing.T) {
	tp := buildProgram(t)
	problem := newLocalTaints(tp)
	problem.crashAt = tp.entry
	s := NewSolver("forward", problem, newExecutor(t, 1), nil, nil)
	err := s.Solve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "crash") {
		t.Errorf("expected the panic to be reported, got %v", err)
	}
}

type statusRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *statusRecorder) NotifySolverStarted(s *Solver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "start "+s.ID())
}

func (r *statusRecorder) NotifySolverTerminated(s *Solver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "end "+s.ID())
}

func TestStatusListeners(t *testing.T) {
	tp := buildProgram(t)
	s := NewSolver("forward", newLocalTaints(tp), newExecutor(t, 1), nil, nil)
	r := &statusRecorder{}
	s.AddStatusListener(r)
	if err := s.Solve(context.Background()); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if len(r.events) != 2 || r.events[0] != "start forward" || r.events[1] != "end forward" {
		t.Errorf("unexpected notifications %v", r.events)
	}
}

func TestResetWithKilledPeer(t *testing.T) {
	tp := buildProgram(t)
	group := NewPeerGroup()
	e := newExecutor(t, 2)
	forward := NewSolver("forward", newLocalTaints(tp), e, group, nil)
	backward := NewSolver("backward", newLocalTaints(tp), e, group, nil)

	forward.ForceTerminate(TimeoutReason{})
	backward.ForceTerminate(TimeoutReason{})
	forward.Reset()
	if !e.IsInterrupted() {
		t.Errorf("the executor should stay interrupted while the backward solver is killed")
	}
	if !backward.IsKilled() {
		t.Errorf("resetting a solver should not reset its peers")
	}
	backward.Reset()
	if e.IsInterrupted() {
		t.Errorf("the executor should resume once all its solvers are reset")
	}

	problem := newLocalTaints(tp)
	s := NewSolver("third", problem, e, nil, nil)
	if err := s.Solve(context.Background()); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	checkLeaks(t, tp, problem)
}
