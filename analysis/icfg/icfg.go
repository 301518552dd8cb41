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
	"fmt"
	"strconv"
	"sync"

	"github.com/allegro/bigcache"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/internal/graphutil"
)

// ICFG is the interprocedural control flow graph the solvers run on.
type ICFG interface {
	// SuccsOf returns the intraprocedural successors of s
	SuccsOf(s ir.Stmt) []ir.Stmt
	// PredsOf returns the intraprocedural predecessors of s
	PredsOf(s ir.Stmt) []ir.Stmt
	// MethodOf returns the method containing s
	MethodOf(s ir.Stmt) *ir.Method
	// IsCallStmt returns true if s contains an invocation
	IsCallStmt(s ir.Stmt) bool
	// CalleesOfCallAt returns the methods possibly invoked at s
	CalleesOfCallAt(s ir.Stmt) []*ir.Method
	// CallersOf returns the call sites that may invoke m
	CallersOf(m *ir.Method) []ir.Stmt
	// CallsFromWithin returns the call sites in the body of m
	CallsFromWithin(m *ir.Method) []ir.Stmt
	// ReturnSitesOfCallAt returns the statements control returns to after the call at s
	ReturnSitesOfCallAt(s ir.Stmt) []ir.Stmt
	// StartPointsOf returns the entry statements of m
	StartPointsOf(m *ir.Method) []ir.Stmt
	// EndPointsOf returns the exit statements of m
	EndPointsOf(m *ir.Method) []ir.Stmt
	// IsExitStmt returns true if s is an exit statement of its method
	IsExitStmt(s ir.Stmt) bool
	// IsStartPoint returns true if s is an entry statement of its method
	IsStartPoint(s ir.Stmt) bool
	// IsStaticFieldRead returns true if f is read in m or in a method transitively called by m
	IsStaticFieldRead(m *ir.Method, f *ir.Field) bool
	// IsStaticFieldUsed returns true if f is read or written in m or a method transitively called by m
	IsStaticFieldUsed(m *ir.Method, f *ir.Field) bool
	// MethodReadsValue returns true if a statement of m reads v
	MethodReadsValue(m *ir.Method, v ir.Value) bool
	// MethodWritesValue returns true if a statement of m assigns v
	MethodWritesValue(m *ir.Method, v ir.Value) bool
	// PostdominatorOf returns the immediate postdominator of s
	PostdominatorOf(s ir.Stmt) UnitContainer
	// Program returns the program the graph is built on
	Program() *ir.Program
}

// ProgramICFG is the forward ICFG of a program and its call graph
type ProgramICFG struct {
	program *ir.Program
	cg      *CallGraph

	staticOnce  sync.Once
	staticReads map[*ir.Method]map[*ir.Field]bool
	staticUses  map[*ir.Method]map[*ir.Field]bool

	cache    *bigcache.BigCache
	postdoms postdomCache
}

// New returns the ICFG of the program. If cg is nil, the call graph is built with class hierarchy analysis.
func New(p *ir.Program, cg *CallGraph) (*ProgramICFG, error) {
	if cg == nil {
		cg = BuildCHA(p)
	}
	cfg := bigcache.DefaultConfig(0)
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 4096
	cfg.MaxEntrySize = 8
	cfg.HardMaxCacheSize = 16
	cfg.Verbose = false
	cache, err := bigcache.NewBigCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not create the icfg cache: %w", err)
	}
	return &ProgramICFG{program: p, cg: cg, cache: cache}, nil
}

// CallGraph returns the call graph of the ICFG
func (g *ProgramICFG) CallGraph() *CallGraph { return g.cg }

// Close releases the cache of the ICFG
func (g *ProgramICFG) Close() error { return g.cache.Close() }

func (g *ProgramICFG) Program() *ir.Program { return g.program }

func (g *ProgramICFG) PostdominatorOf(s ir.Stmt) UnitContainer { return g.postdoms.of(s) }

func (g *ProgramICFG) SuccsOf(s ir.Stmt) []ir.Stmt { return s.Method().Body().Succs(s) }

func (g *ProgramICFG) PredsOf(s ir.Stmt) []ir.Stmt { return s.Method().Body().Preds(s) }

func (g *ProgramICFG) MethodOf(s ir.Stmt) *ir.Method { return s.Method() }

func (g *ProgramICFG) IsCallStmt(s ir.Stmt) bool { return s.InvokeExpr() != nil }

func (g *ProgramICFG) CalleesOfCallAt(s ir.Stmt) []*ir.Method { return g.cg.Callees(s) }

func (g *ProgramICFG) CallersOf(m *ir.Method) []ir.Stmt { return g.cg.Callers(m) }

func (g *ProgramICFG) CallsFromWithin(m *ir.Method) []ir.Stmt {
	if !m.HasBody() {
		return nil
	}
	var calls []ir.Stmt
	for _, s := range m.Body().Stmts {
		if s.InvokeExpr() != nil {
			calls = append(calls, s)
		}
	}
	return calls
}

func (g *ProgramICFG) ReturnSitesOfCallAt(s ir.Stmt) []ir.Stmt { return g.SuccsOf(s) }

func (g *ProgramICFG) StartPointsOf(m *ir.Method) []ir.Stmt {
	if !m.HasBody() {
		return nil
	}
	return m.Body().Heads()
}

func (g *ProgramICFG) EndPointsOf(m *ir.Method) []ir.Stmt {
	if !m.HasBody() {
		return nil
	}
	return m.Body().Tails()
}

func (g *ProgramICFG) IsExitStmt(s ir.Stmt) bool { return s.Method().Body().IsTail(s) }

func (g *ProgramICFG) IsStartPoint(s ir.Stmt) bool { return s.Index() == 0 }

func (g *ProgramICFG) IsStaticFieldRead(m *ir.Method, f *ir.Field) bool {
	g.staticOnce.Do(g.computeStaticFieldUsage)
	return g.staticReads[m][f]
}

func (g *ProgramICFG) IsStaticFieldUsed(m *ir.Method, f *ir.Field) bool {
	g.staticOnce.Do(g.computeStaticFieldUsage)
	return g.staticUses[m][f]
}

// computeStaticFieldUsage computes the static fields read and used by each method and its transitive callees,
// bottom-up over the strongly connected components of the call graph.
func (g *ProgramICFG) computeStaticFieldUsage() {
	methods := g.program.Methods()
	callees := func(m *ir.Method) []*ir.Method {
		var res []*ir.Method
		for _, s := range g.CallsFromWithin(m) {
			res = append(res, g.CalleesOfCallAt(s)...)
		}
		return res
	}
	reads := map[*ir.Method]map[*ir.Field]bool{}
	uses := map[*ir.Method]map[*ir.Field]bool{}
	for _, scc := range graphutil.StronglyConnectedComponents(methods, callees) {
		sccReads := map[*ir.Field]bool{}
		sccUses := map[*ir.Field]bool{}
		for _, m := range scc {
			directStaticFields(m, sccReads, sccUses)
			for _, callee := range callees(m) {
				for f := range reads[callee] {
					sccReads[f] = true
				}
				for f := range uses[callee] {
					sccUses[f] = true
				}
			}
		}
		for _, m := range scc {
			reads[m] = sccReads
			uses[m] = sccUses
		}
	}
	g.staticReads = reads
	g.staticUses = uses
}

func directStaticFields(m *ir.Method, reads map[*ir.Field]bool, uses map[*ir.Field]bool) {
	if !m.HasBody() {
		return
	}
	for _, s := range m.Body().Stmts {
		for _, v := range s.UseValues() {
			if sf, ok := v.(*ir.StaticFieldRef); ok {
				reads[sf.Field] = true
				uses[sf.Field] = true
			}
		}
		if sf, ok := ir.DefinedValue(s).(*ir.StaticFieldRef); ok {
			uses[sf.Field] = true
		}
	}
}

func (g *ProgramICFG) MethodReadsValue(m *ir.Method, v ir.Value) bool {
	return g.memoized("r", m, v, func() bool {
		for _, s := range m.Body().Stmts {
			for _, u := range s.UseValues() {
				if u == v {
					return true
				}
			}
		}
		return false
	})
}

func (g *ProgramICFG) MethodWritesValue(m *ir.Method, v ir.Value) bool {
	return g.memoized("w", m, v, func() bool {
		for _, s := range m.Body().Stmts {
			if _, isIdentity := s.(*ir.IdentityStmt); isIdentity {
				continue
			}
			if d := ir.DefinedValue(s); d != nil && d == v {
				return true
			}
		}
		return false
	})
}

// memoized caches the boolean result of compute for the query kind on (m, v)
func (g *ProgramICFG) memoized(kind string, m *ir.Method, v ir.Value, compute func() bool) bool {
	if !m.HasBody() {
		return false
	}
	key := kind + "|" + m.Signature() + "|" + valueKey(v)
	if b, err := g.cache.Get(key); err == nil && len(b) == 1 {
		return b[0] == 1
	}
	res := compute()
	var b byte
	if res {
		b = 1
	}
	// a failed insertion only means the result is recomputed next time
	_ = g.cache.Set(key, []byte{b})
	return res
}

func valueKey(v ir.Value) string {
	if l, ok := v.(*ir.Local); ok {
		return "l" + strconv.FormatInt(l.ID(), 10)
	}
	return fmt.Sprintf("v%p", v)
}
