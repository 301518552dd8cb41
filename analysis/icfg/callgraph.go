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

package icfg

import (
	"sync"

	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/internal/funcutil"
	"github.com/samber/lo"
)

// CallGraph maps call sites to their possible callees
type CallGraph struct {
	mu      sync.RWMutex
	callees map[ir.Stmt][]*ir.Method
	callers map[*ir.Method][]ir.Stmt
}

// NewCallGraph returns an empty call graph
func NewCallGraph() *CallGraph {
	return &CallGraph{
		callees: map[ir.Stmt][]*ir.Method{},
		callers: map[*ir.Method][]ir.Stmt{},
	}
}

// AddEdge adds the edge from the call site to the callee, if it is not already in the graph
func (cg *CallGraph) AddEdge(site ir.Stmt, callee *ir.Method) {
	cg.mu.Lock()
	defer cg.mu.Unlock()
	if funcutil.Contains(cg.callees[site], callee) {
		return
	}
	cg.callees[site] = append(cg.callees[site], callee)
	cg.callers[callee] = append(cg.callers[callee], site)
}

// SetCallees replaces the callees of the call site
func (cg *CallGraph) SetCallees(site ir.Stmt, callees []*ir.Method) {
	cg.mu.Lock()
	defer cg.mu.Unlock()
	for _, old := range cg.callees[site] {
		cg.callers[old] = lo.Filter(cg.callers[old], func(s ir.Stmt, _ int) bool { return s != site })
	}
	cg.callees[site] = nil
	for _, callee := range callees {
		if funcutil.Contains(cg.callees[site], callee) {
			continue
		}
		cg.callees[site] = append(cg.callees[site], callee)
		cg.callers[callee] = append(cg.callers[callee], site)
	}
}

// Callees returns the callees of the call site
func (cg *CallGraph) Callees(site ir.Stmt) []*ir.Method {
	cg.mu.RLock()
	defer cg.mu.RUnlock()
	return cg.callees[site]
}

// Callers returns the call sites calling m
func (cg *CallGraph) Callers(m *ir.Method) []ir.Stmt {
	cg.mu.RLock()
	defer cg.mu.RUnlock()
	return cg.callers[m]
}

// Size returns the number of edges of the call graph
func (cg *CallGraph) Size() int {
	cg.mu.RLock()
	defer cg.mu.RUnlock()
	n := 0
	for _, callees := range cg.callees {
		n += len(callees)
	}
	return n
}

// BuildCHA builds the call graph of the program using class hierarchy analysis: a virtual call may reach the
// implementation of the method in every subtype of the declaring class.
func BuildCHA(p *ir.Program) *CallGraph {
	cg := NewCallGraph()
	for _, m := range p.Methods() {
		if !m.HasBody() {
			continue
		}
		for _, s := range m.Body().Stmts {
			ie := s.InvokeExpr()
			if ie == nil {
				continue
			}
			for _, callee := range chaTargets(p, ie) {
				cg.AddEdge(s, callee)
			}
		}
	}
	return cg
}

func chaTargets(p *ir.Program, ie *ir.InvokeExpr) []*ir.Method {
	declared := ie.Method
	if ie.Kind == ir.StaticInvoke || ie.Kind == ir.SpecialInvoke {
		return []*ir.Method{declared}
	}
	subSig := declared.SubSignature()
	var targets []*ir.Method
	for _, c := range p.SubtypesOf(declared.Class) {
		if c.IsInterface {
			continue
		}
		if m := p.ResolveMethod(c, subSig); m != nil && !funcutil.Contains(targets, m) {
			targets = append(targets, m)
		}
	}
	if len(targets) == 0 {
		// only the declaration is known, e.g. a library interface
		targets = append(targets, declared)
	}
	return targets
}
