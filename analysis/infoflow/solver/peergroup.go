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
	"sync"

	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/internal/funcutil"
)

// IncomingRecord records that the method was entered with fact D3 from the call site CallSite, where D2 held in
// the caller under the calling context D1
type IncomingRecord struct {
	CallSite ir.Stmt
	D1       *data.Abstraction
	D2       *data.Abstraction
	D3       *data.Abstraction
}

// EndSummary is an exit fact D4 of a method at the exit statement Exit, for the entry fact CalleeD1
type EndSummary struct {
	Exit     ir.Stmt
	D4       *data.Abstraction
	CalleeD1 *data.Abstraction
}

type methodFact struct {
	method *ir.Method
	fact   data.AbstractionKey
}

type summaryKey struct {
	domain string
	methodFact
}

type ownedFact struct {
	owner *Solver
	methodFact
}

type incomingKey struct {
	callSite ir.Stmt
	d1       data.AbstractionKey
	d2       data.AbstractionKey
}

type incomingSet struct {
	mu      sync.Mutex
	records map[incomingKey]*IncomingRecord
	order   []*IncomingRecord
}

type summaryEntryKey struct {
	exit ir.Stmt
	d4   data.AbstractionKey
}

type summarySet struct {
	mu      sync.Mutex
	entries map[summaryEntryKey]*EndSummary
	order   []*EndSummary
}

// PeerGroup is the arena shared by cooperating solvers. It owns the incoming tables of its members, into which
// other members inject calling contexts, and the end summaries, which are shared by the solvers of the same
// summary domain: a summary computed by one solver is applied by the others instead of analyzing the method again.
type PeerGroup struct {
	mu      sync.Mutex
	solvers []*Solver

	incoming  funcutil.SyncMap[ownedFact, *incomingSet]
	summaries funcutil.SyncMap[summaryKey, *summarySet]
}

// NewPeerGroup returns an empty peer group
func NewPeerGroup() *PeerGroup {
	return &PeerGroup{}
}

// AddSolver makes s a member of the group. It is called by the solver when it joins the group.
func (g *PeerGroup) AddSolver(s *Solver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, x := range g.solvers {
		if x == s {
			return
		}
	}
	g.solvers = append(g.solvers, s)
}

// Solvers returns the members of the group
func (g *PeerGroup) Solvers() []*Solver {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Solver(nil), g.solvers...)
}

// AddIncoming records in the table of s that m was entered with d3 from callSite, where d2 held under the
// context d1. It returns false if an equal record already existed.
func (g *PeerGroup) AddIncoming(s *Solver, m *ir.Method, d3 *data.Abstraction, callSite ir.Stmt,
	d1, d2 *data.Abstraction) bool {
	set := g.incoming.PutIfAbsentElseGet(ownedFact{s, methodFact{m, d3.Key()}}, func() *incomingSet {
		return &incomingSet{records: map[incomingKey]*IncomingRecord{}}
	})
	k := incomingKey{callSite: callSite, d1: d1.Key(), d2: d2.Key()}
	set.mu.Lock()
	defer set.mu.Unlock()
	if _, ok := set.records[k]; ok {
		return false
	}
	r := &IncomingRecord{CallSite: callSite, D1: d1, D2: d2, D3: d3}
	set.records[k] = r
	set.order = append(set.order, r)
	return true
}

// Incoming returns the records of the calls that entered m with d3 in the table of s
func (g *PeerGroup) Incoming(s *Solver, m *ir.Method, d3 *data.Abstraction) []*IncomingRecord {
	set, ok := g.incoming.Load(ownedFact{s, methodFact{m, d3.Key()}})
	if !ok {
		return nil
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	return append([]*IncomingRecord(nil), set.order...)
}

// addEndSummary records the summary for the domain. If an equal summary exists, d4 becomes a neighbor of its exit
// fact and false is returned.
func (g *PeerGroup) addEndSummary(domain string, m *ir.Method, d1 *data.Abstraction, exit ir.Stmt,
	d4 *data.Abstraction) bool {
	set := g.summaries.PutIfAbsentElseGet(summaryKey{domain, methodFact{m, d1.Key()}}, func() *summarySet {
		return &summarySet{entries: map[summaryEntryKey]*EndSummary{}}
	})
	k := summaryEntryKey{exit: exit, d4: d4.Key()}
	set.mu.Lock()
	existing, ok := set.entries[k]
	if !ok {
		s := &EndSummary{Exit: exit, D4: d4, CalleeD1: d1}
		set.entries[k] = s
		set.order = append(set.order, s)
	}
	set.mu.Unlock()
	if ok {
		existing.D4.AddNeighbor(d4)
		return false
	}
	return true
}

func (g *PeerGroup) endSummaries(domain string, m *ir.Method, d1 *data.Abstraction) []*EndSummary {
	set, ok := g.summaries.Load(summaryKey{domain, methodFact{m, d1.Key()}})
	if !ok {
		return nil
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	return append([]*EndSummary(nil), set.order...)
}

// SummaryCount returns the number of end summaries recorded in the group
func (g *PeerGroup) SummaryCount() int {
	n := 0
	g.summaries.Range(func(_ summaryKey, s *summarySet) bool {
		s.mu.Lock()
		n += len(s.order)
		s.mu.Unlock()
		return true
	})
	return n
}

// Cleanup drops the incoming table and the end summaries
func (g *PeerGroup) Cleanup() {
	g.incoming.Clear()
	g.summaries.Clear()
}
