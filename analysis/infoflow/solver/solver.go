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
	"sync"
	"sync/atomic"
	"time"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/internal/funcutil"
)

type edgeKey struct {
	d1 data.AbstractionKey
	n  ir.Stmt
	d2 data.AbstractionKey
}

func keyOf(d1 *data.Abstraction, n ir.Stmt, d2 *data.Abstraction) edgeKey {
	return edgeKey{d1: d1.Key(), n: n, d2: d2.Key()}
}

// worklist holds the edges a task processes itself
type worklist struct {
	edges []PathEdge
}

func (w *worklist) push(e PathEdge) { w.edges = append(w.edges, e) }

func (w *worklist) pop() (PathEdge, bool) {
	if len(w.edges) == 0 {
		return PathEdge{}, false
	}
	e := w.edges[len(w.edges)-1]
	w.edges = w.edges[:len(w.edges)-1]
	return e, true
}

// Solver computes the fixed point of a Problem. The zero value is not usable; use NewSolver.
type Solver struct {
	id       string
	problem  Problem
	icfg     icfg.ICFG
	ff       FlowFunctions
	zero     *data.Abstraction
	domain   string
	executor *Executor
	group    *PeerGroup
	logger   *config.LogGroup

	// jumpFunctions maps the path edges that have been scheduled to the fact propagated with the edge
	jumpFunctions funcutil.SyncMap[edgeKey, *data.Abstraction]

	memoryManager            MemoryManager
	scheduling               SchedulingStrategy
	followReturnsPastSeeds   bool
	maxJoinPointAbstractions int
	maxCalleesPerCallSite    int
	maxAbstractionPathLength int

	propagationCount    atomic.Int64
	summaryApplications atomic.Int64
	killed              atomic.Bool
	finished            atomic.Bool

	reasonMu sync.Mutex
	reason   TerminationReason

	listenersMu sync.Mutex
	listeners   []StatusListener
}

// NewSolver returns a solver for the problem running its tasks on the executor. The solver joins the peer group;
// if group is nil, the solver gets a group of its own.
func NewSolver(id string, problem Problem, executor *Executor, group *PeerGroup, logger *config.LogGroup) *Solver {
	if group == nil {
		group = NewPeerGroup()
	}
	if logger == nil {
		logger = config.NewNopLogGroup()
	}
	s := &Solver{
		id:                       id,
		problem:                  problem,
		icfg:                     problem.ICFG(),
		ff:                       problem.FlowFunctions(),
		zero:                     problem.ZeroValue(),
		domain:                   problem.SummaryDomain(),
		executor:                 executor,
		group:                    group,
		logger:                   logger,
		scheduling:               SchedulingEachEdge,
		followReturnsPastSeeds:   problem.FollowReturnsPastSeeds(),
		maxJoinPointAbstractions: config.DefaultMaxJoinPointAbstractions,
		maxCalleesPerCallSite:    config.DefaultMaxCalleesPerCallSite,
		maxAbstractionPathLength: config.DefaultMaxAbstractionPathLength,
	}
	group.AddSolver(s)
	return s
}

// Configure sets the solver limits and scheduling strategy from the analysis options
func (s *Solver) Configure(opts config.Options) {
	s.maxJoinPointAbstractions = opts.MaxJoinPointAbstractions
	if opts.SingleJoinPointAbstraction {
		s.maxJoinPointAbstractions = 0
	}
	s.maxCalleesPerCallSite = opts.MaxCalleesPerCallSite
	s.maxAbstractionPathLength = opts.MaxAbstractionPathLength
	s.followReturnsPastSeeds = s.followReturnsPastSeeds || opts.FollowReturnsPastSeeds
	if opts.SchedulingStrategy == config.SchedulingThreads {
		s.scheduling = SchedulingStrategyThreadByMethod
	}
}

// ID returns the name of the solver
func (s *Solver) ID() string { return s.id }

func (s *Solver) String() string { return s.id }

// Problem returns the problem solved by s
func (s *Solver) Problem() Problem { return s.problem }

// PeerGroup returns the group of the solver
func (s *Solver) PeerGroup() *PeerGroup { return s.group }

// SetPeerGroup moves the solver to another group. Must be called before solving.
func (s *Solver) SetPeerGroup(g *PeerGroup) {
	s.group = g
	g.AddSolver(s)
}

// SetMemoryManager sets the manager called on every generated fact. nil disables memory management.
func (s *Solver) SetMemoryManager(m MemoryManager) { s.memoryManager = m }

// MemoryManager returns the memory manager of the solver, or nil
func (s *Solver) MemoryManager() MemoryManager { return s.memoryManager }

// SetFollowReturnsPastSeeds sets whether returns from methods without calling context go to all callers
func (s *Solver) SetFollowReturnsPastSeeds(b bool) { s.followReturnsPastSeeds = b }

// SetMaxJoinPointAbstractions bounds the neighbors kept per fact. Negative means unbounded.
func (s *Solver) SetMaxJoinPointAbstractions(n int) { s.maxJoinPointAbstractions = n }

// SetMaxCalleesPerCallSite skips call sites with more callees. Negative means unbounded.
func (s *Solver) SetMaxCalleesPerCallSite(n int) { s.maxCalleesPerCallSite = n }

// SetMaxAbstractionPathLength drops facts with longer propagation paths. Negative means unbounded.
func (s *Solver) SetMaxAbstractionPathLength(n int) { s.maxAbstractionPathLength = n }

// SetSchedulingStrategy sets the scheduling strategy
func (s *Solver) SetSchedulingStrategy(strategy SchedulingStrategy) { s.scheduling = strategy }

// AddStatusListener registers a listener notified when the solver starts and terminates
func (s *Solver) AddStatusListener(l StatusListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Solver) statusListeners() []StatusListener {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	return append([]StatusListener(nil), s.listeners...)
}

// PropagationCount returns the number of edges scheduled by the solver
func (s *Solver) PropagationCount() int64 { return s.propagationCount.Load() }

// SummaryApplications returns the number of times end summaries have been applied at call sites
func (s *Solver) SummaryApplications() int64 { return s.summaryApplications.Load() }

// Solve propagates the initial seeds of the problem until the fixed point is reached, the solver is terminated,
// or ctx is done. Errors raised by the tasks are returned; the results found so far remain valid.
func (s *Solver) Solve(ctx context.Context) error {
	s.finished.Store(false)
	for _, l := range s.statusListeners() {
		l.NotifySolverStarted(s)
	}
	start := time.Now()
	s.logger.Debugf("Solver %s started", s.id)

	s.submitInitialSeeds()
	err := s.executor.AwaitCompletion(ctx)
	if ctx.Err() != nil {
		s.ForceTerminate(UserAbortReason{})
		// in-flight tasks complete, queued tasks are dropped
		err = errors.Join(err, s.executor.AwaitCompletion(context.Background()))
	}

	s.finished.Store(true)
	s.logger.Debugf("Solver %s terminated after %s with %d propagations", s.id, time.Since(start),
		s.PropagationCount())
	for _, l := range s.statusListeners() {
		l.NotifySolverTerminated(s)
	}
	if err != nil {
		return fmt.Errorf("solver %s: %w", s.id, err)
	}
	return nil
}

func (s *Solver) submitInitialSeeds() {
	for _, seed := range s.problem.InitialSeeds() {
		for _, d := range seed.Facts {
			s.propagate(s.zero, seed.Stmt, d, nil, false, NormalStep, nil)
		}
		s.jumpFunctions.PutIfAbsent(keyOf(s.zero, seed.Stmt, s.zero), s.zero)
	}
}

// ProcessEdge schedules the edge. It is used to inject facts computed by other solvers.
func (s *Solver) ProcessEdge(edge PathEdge) bool {
	s.propagate(edge.D1, edge.Target, edge.D2, nil, false, NormalStep, nil)
	return true
}

// InjectContext registers the calling context (callSite, d1, d2) for the entry fact d3 of callee, and applies
// the end summaries the solver already has for it
func (s *Solver) InjectContext(callee *ir.Method, d3 *data.Abstraction, callSite ir.Stmt, d2, d1 *data.Abstraction) {
	s.group.AddIncoming(s, callee, d3, callSite, d1, d2)
	s.applyEndSummaryOnCall(d1, callSite, d2, s.icfg.ReturnSitesOfCallAt(callSite), callee, d3, nil)
}

// ForceTerminate stops the solver: no new edge is scheduled and queued edges are dropped. Can be called from any
// goroutine. The reason is combined with the reasons of earlier terminations.
func (s *Solver) ForceTerminate(reason TerminationReason) {
	s.reasonMu.Lock()
	s.reason = Combine(s.reason, reason)
	s.reasonMu.Unlock()
	s.killed.Store(true)
	s.executor.InterruptBy(s)
	s.logger.Debugf("Solver %s forcibly terminated: %s", s.id, reason)
}

// Reset brings a terminated solver back to a state where it can be solved again. Results are not discarded.
// The shared executor only resumes once every solver killed on it has been reset.
func (s *Solver) Reset() {
	s.reasonMu.Lock()
	s.reason = nil
	s.reasonMu.Unlock()
	s.killed.Store(false)
	s.finished.Store(false)
	s.executor.ResetBy(s)
}

// IsTerminated returns true if the solver was killed or has reached its fixed point
func (s *Solver) IsTerminated() bool { return s.killed.Load() || s.finished.Load() }

// IsKilled returns true if the solver was forcibly terminated
func (s *Solver) IsKilled() bool { return s.killed.Load() }

// TerminationReason returns the reason the solver was killed, or nil
func (s *Solver) TerminationReason() TerminationReason {
	s.reasonMu.Lock()
	defer s.reasonMu.Unlock()
	return s.reason
}

// EndSummary returns the end summaries of m for the entry fact d3
func (s *Solver) EndSummary(m *ir.Method, d3 *data.Abstraction) []*EndSummary {
	return s.group.endSummaries(s.domain, m, d3)
}

// Incoming returns the calling contexts recorded by s for the entry fact d3 of m
func (s *Solver) Incoming(m *ir.Method, d3 *data.Abstraction) []*IncomingRecord {
	return s.group.Incoming(s, m, d3)
}

// JumpFunctionCount returns the number of distinct path edges scheduled
func (s *Solver) JumpFunctionCount() int { return s.jumpFunctions.Len() }

// Cleanup drops the path edges of the solver. The shared tables of the peer group are kept.
func (s *Solver) Cleanup() {
	s.jumpFunctions.Clear()
}

func (s *Solver) schedule(edge PathEdge, kind ScheduleTarget, local *worklist) {
	if s.killed.Load() {
		return
	}
	s.propagationCount.Add(1)
	if local != nil && s.scheduling.Inline(kind) {
		local.push(edge)
		return
	}
	s.executor.Execute(func() { s.runTask(edge) })
}

func (s *Solver) runTask(first PathEdge) {
	local := &worklist{}
	local.push(first)
	for e, ok := local.pop(); ok; e, ok = local.pop() {
		if s.killed.Load() {
			return
		}
		s.executeEdge(e, local)
	}
}

func (s *Solver) executeEdge(edge PathEdge, local *worklist) {
	s.logger.Tracef("[%s] processing %s", s.id, edge)
	if s.icfg.IsCallStmt(edge.Target) {
		s.processCall(edge, local)
		return
	}
	if s.icfg.IsExitStmt(edge.Target) {
		s.processExit(edge, local)
	}
	if len(s.icfg.SuccsOf(edge.Target)) > 0 {
		s.processNormalFlow(edge, local)
	}
}

func (s *Solver) handleGenerated(input, output *data.Abstraction) *data.Abstraction {
	if s.memoryManager == nil || output == nil {
		return output
	}
	return s.memoryManager.HandleGeneratedMemoryObject(input, output)
}

func (s *Solver) shortenPredecessors(returned, incoming *data.Abstraction) *data.Abstraction {
	if s.memoryManager == nil {
		return returned
	}
	return s.memoryManager.ShortenPredecessors(returned, incoming)
}

// processCall handles an edge at a call site: facts enter the callees or reuse their summaries, and the
// call-to-return flow carries the facts that bypass the callees
func (s *Solver) processCall(edge PathEdge, local *worklist) {
	d1, n, d2 := edge.D1, edge.Target, edge.D2
	returnSites := s.icfg.ReturnSitesOfCallAt(n)
	callees := s.icfg.CalleesOfCallAt(n)
	if s.maxCalleesPerCallSite < 0 || len(callees) <= s.maxCalleesPerCallSite {
		for _, callee := range callees {
			if s.killed.Load() {
				return
			}
			if !callee.HasBody() {
				continue
			}
			res := s.ff.CallFlow(d1, n, callee, d2)
			if len(res) == 0 {
				continue
			}
			startPoints := s.icfg.StartPointsOf(callee)
			for _, d3 := range res {
				d3 = s.handleGenerated(d2, d3)
				if d3 == nil {
					continue
				}
				if !s.group.AddIncoming(s, callee, d3, n, d1, d2) {
					continue
				}
				if s.applyEndSummaryOnCall(d1, n, d2, returnSites, callee, d3, local) {
					continue
				}
				for _, sp := range startPoints {
					s.propagate(d3, sp, d3, n, false, CallStep, local)
				}
			}
		}
	} else {
		s.logger.Debugf("[%s] skipping %d callees of %s", s.id, len(callees), n)
	}

	for _, returnSite := range returnSites {
		for _, d3 := range s.ff.CallToReturnFlow(d1, n, returnSite, d2) {
			if d3 = s.handleGenerated(d2, d3); d3 != nil {
				s.propagate(d1, returnSite, d3, n, false, NormalStep, local)
			}
		}
	}
}

// applyEndSummaryOnCall maps the exit facts of the end summaries of callee for d3 to the return sites. It returns
// false if there is no summary yet.
func (s *Solver) applyEndSummaryOnCall(d1 *data.Abstraction, n ir.Stmt, d2 *data.Abstraction,
	returnSites []ir.Stmt, callee *ir.Method, d3 *data.Abstraction, local *worklist) bool {
	summaries := s.EndSummary(callee, d3)
	if len(summaries) == 0 {
		return false
	}
	for _, sum := range summaries {
		// acknowledge the other path into the callee
		sum.CalleeD1.AddNeighbor(d3)
		for _, returnSite := range returnSites {
			res := s.ff.ReturnFlow(n, callee, sum.Exit, returnSite, d3, sum.D4, []*data.Abstraction{d1})
			for _, d5 := range res {
				d5 = s.handleGenerated(sum.D4, d5)
				if d5 == nil {
					continue
				}
				s.propagate(d1, returnSite, s.shortenPredecessors(d5, d2), n, false, ReturnStep, local)
			}
		}
	}
	s.summaryApplications.Add(1)
	return true
}

// processExit records the end summary of the method and returns the exit fact to the callers
func (s *Solver) processExit(edge PathEdge, local *worklist) {
	d1, n, d2 := edge.D1, edge.Target, edge.D2
	m := s.icfg.MethodOf(n)
	if !s.addEndSummary(m, d1, n, d2) {
		return
	}

	incoming := s.group.Incoming(s, m, d1)
	bySite := map[ir.Stmt][]*IncomingRecord{}
	var sites []ir.Stmt
	for _, r := range incoming {
		if _, ok := bySite[r.CallSite]; !ok {
			sites = append(sites, r.CallSite)
		}
		bySite[r.CallSite] = append(bySite[r.CallSite], r)
	}
	for _, c := range sites {
		if s.killed.Load() {
			return
		}
		records := bySite[c]
		callerD1s := make([]*data.Abstraction, len(records))
		for i, r := range records {
			callerD1s[i] = r.D1
		}
		for _, returnSite := range s.icfg.ReturnSitesOfCallAt(c) {
			targets := s.ff.ReturnFlow(c, m, n, returnSite, d1, d2, callerD1s)
			if len(targets) == 0 {
				continue
			}
			for _, r := range records {
				for _, d5 := range targets {
					d5 = s.handleGenerated(d2, d5)
					if d5 == nil {
						continue
					}
					s.propagate(r.D1, returnSite, s.shortenPredecessors(d5, r.D2), c, false, ReturnStep, local)
				}
			}
		}
	}

	if s.followReturnsPastSeeds && d1.IsZero() && len(incoming) == 0 {
		s.followReturnPastSeed(m, n, d1, d2, local)
	}
}

// followReturnPastSeed returns a fact of a method analyzed without calling context to all the callers
func (s *Solver) followReturnPastSeed(m *ir.Method, n ir.Stmt, d1, d2 *data.Abstraction, local *worklist) {
	callers := s.icfg.CallersOf(m)
	for _, c := range callers {
		for _, returnSite := range s.icfg.ReturnSitesOfCallAt(c) {
			for _, d5 := range s.ff.ReturnFlow(c, m, n, returnSite, d1, d2, []*data.Abstraction{s.zero}) {
				d5 = s.handleGenerated(d2, d5)
				if d5 == nil {
					continue
				}
				if d5 != d2 && d5.CorrespondingCallSite() == nil {
					d5.SetCorrespondingCallSite(c)
				}
				s.propagate(s.zero, returnSite, d5, c, true, ReturnStep, local)
			}
		}
	}
	if len(callers) == 0 {
		// the return flow still registers the facts reaching the end of the method, e.g. as sinks
		s.ff.ReturnFlow(nil, m, n, nil, d1, d2, []*data.Abstraction{s.zero})
	}
}

// addEndSummary records the summary. Summaries are not recorded for the zero context. It returns false if the
// summary was already known.
func (s *Solver) addEndSummary(m *ir.Method, d1 *data.Abstraction, exit ir.Stmt, d2 *data.Abstraction) bool {
	if d1.IsZero() {
		return true
	}
	return s.group.addEndSummary(s.domain, m, d1, exit, d2)
}

func (s *Solver) processNormalFlow(edge PathEdge, local *worklist) {
	d1, n, d2 := edge.D1, edge.Target, edge.D2
	for _, succ := range s.icfg.SuccsOf(n) {
		for _, d3 := range s.ff.NormalFlow(d1, n, succ, d2) {
			if d3 != d2 {
				d3 = s.handleGenerated(d2, d3)
			}
			if d3 != nil {
				s.propagate(d1, succ, d3, nil, false, NormalStep, local)
			}
		}
	}
}

// propagate schedules the edge (d1, target, d2) unless an equal edge was already scheduled, in which case d2
// becomes a neighbor of the fact of the existing edge
func (s *Solver) propagate(d1 *data.Abstraction, target ir.Stmt, d2 *data.Abstraction, relatedCallSite ir.Stmt,
	isUnbalancedReturn bool, kind ScheduleTarget, local *worklist) {
	if s.killed.Load() {
		return
	}
	if s.memoryManager != nil {
		if d2 = s.memoryManager.HandleMemoryObject(d2); d2 == nil {
			return
		}
	}
	if s.maxAbstractionPathLength >= 0 && d2.PathLength() > s.maxAbstractionPathLength {
		return
	}

	existing, loaded := s.jumpFunctions.PutIfAbsent(keyOf(d1, target, d2), d2)
	if loaded {
		if existing != d2 {
			essential := s.memoryManager != nil && s.memoryManager.IsEssentialJoinPoint(d2, relatedCallSite)
			if s.maxJoinPointAbstractions < 0 || existing.NeighborCount() < s.maxJoinPointAbstractions || essential {
				existing.AddNeighbor(d2)
			}
		}
		return
	}
	// an inactive fact is useless if its active copy has been propagated already
	if active := d2.GetActiveCopy(); active != d2 {
		if _, ok := s.jumpFunctions.Load(keyOf(d1, target, active)); ok {
			return
		}
	}
	if isUnbalancedReturn {
		s.logger.Tracef("[%s] unbalanced return to %s", s.id, target)
	}
	s.schedule(PathEdge{D1: d1, Target: target, D2: d2}, kind, local)
}
