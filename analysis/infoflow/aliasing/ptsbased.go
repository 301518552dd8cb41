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
	"sync"

	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/solver"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/analysis/pointsto"
)

type ptsQuery struct {
	method *ir.Method
	abs    data.AbstractionKey
}

// PtsBased computes the aliases of a new taint in bulk: every statement of the method reading or writing a value
// whose points-to set intersects the one of the taint gets an alias taint, which is injected into the forward
// solver at that statement. Aliases created before the statement of the taint are inactive.
type PtsBased struct {
	env Environment
	pts *pointsto.Result

	mu      sync.Mutex
	queries map[ptsQuery]map[data.AbstractionKey]bool
}

// NewPtsBased returns the strategy using the points-to result
func NewPtsBased(env Environment, pts *pointsto.Result) *PtsBased {
	return &PtsBased{env: env, pts: pts, queries: map[ptsQuery]map[data.AbstractionKey]bool{}}
}

func (s *PtsBased) ComputeAliasTaints(d1 *data.Abstraction, src ir.Stmt, target ir.Value,
	taintSet *data.AbstractionSet, m *ir.Method, newAbs *data.Abstraction) {
	s.computeInternal(d1, m, newAbs, nil, newAbs.AccessPath().TaintSubFields(), src)
}

// markQuery records that the aliases of newAbs in m have been computed for d1, and returns false if they
// already were
func (s *PtsBased) markQuery(d1 *data.Abstraction, m *ir.Method, newAbs *data.Abstraction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := ptsQuery{method: m, abs: newAbs.Key()}
	d1s, ok := s.queries[q]
	if !ok {
		d1s = map[data.AbstractionKey]bool{}
		s.queries[q] = d1s
	}
	if d1s[d1.Key()] {
		return false
	}
	d1s[d1.Key()] = true
	return true
}

//gocyclo:ignore
func (s *PtsBased) computeInternal(d1 *data.Abstraction, m *ir.Method, newAbs *data.Abstraction,
	appendFields []data.Fragment, taintSubFields bool, actStmt ir.Stmt) {
	if !s.markQuery(d1, m, newAbs) {
		return
	}
	apf := s.env.AccessPathFactory()
	ap := newAbs.AccessPath()

	// The prefixes of the path may have aliases too
	if ap.IsInstanceFieldRef() || (ap.IsStaticFieldRef() && ap.FieldCount() > 1) {
		appendList := append([]data.Fragment{*ap.LastFragment()}, appendFields...)
		prefix := newAbs.DeriveNewAbstraction(apf.DropLastField(ap), nil)
		if prefix != nil {
			s.computeInternal(d1, m, prefix, appendList, taintSubFields, actStmt)
		}
	}
	if ap.FieldCount() > 1 || !m.HasBody() {
		return
	}

	taintBase, taintFields := pathRoot(ap)
	beforeActUnit := actStmt != nil && actStmt.Method() == m
	fSolver := s.env.ForwardSolver()
	inject := func(abs *data.Abstraction, stmt ir.Stmt) {
		if abs == nil {
			return
		}
		if beforeActUnit {
			abs = abs.DeriveInactiveAbstraction(actStmt)
		}
		fSolver.ProcessEdge(solver.PathEdge{D1: d1, Target: stmt, D2: abs})
	}

	for _, stmt := range m.Body().Stmts {
		if stmt == actStmt {
			beforeActUnit = false
		}
		if ie := stmt.InvokeExpr(); ie != nil {
			baseAliases := false
			if ie.Base != nil && !ap.IsStaticFieldRef() {
				baseAliases = s.pts.MayAliasPaths(ie.Base, nil, ap.PlainValue(), nil)
			}
			argAliases := false
			for _, arg := range ie.Args {
				if l, ok := arg.(*ir.Local); ok && s.pts.MayAliasPaths(l, nil, taintBase, taintFields) {
					argAliases = true
					break
				}
			}
			if baseAliases || argAliases {
				newAP := apf.AppendFields(ap, appendFields, taintSubFields)
				if newAP != nil {
					inject(newAbs.DeriveNewAbstraction(newAP, stmt), stmt)
				}
			}
			continue
		}
		assign, ok := stmt.(*ir.AssignStmt)
		if !ok || !isAliasable(assign.Right) {
			continue
		}
		if len(appendFields) > 0 && s.aliasedAt(taintBase, taintFields, assign.Right) {
			leftAP := apf.CreateAccessPathWithFields(assign.Left, appendFields, taintSubFields)
			if leftAP != nil {
				left := newAbs.DeriveNewAbstraction(leftAP, stmt)
				if left != nil && beforeActUnit {
					left = left.DeriveInactiveAbstraction(actStmt)
				}
				if left != nil {
					s.computeInternal(d1, m, left, nil, taintSubFields, stmt)
				}
			}
		}
		if isAliasable(assign.Left) && s.aliasedAt(taintBase, taintFields, assign.Left) {
			rightAP := apf.CreateAccessPathWithFields(assign.Right, appendFields, taintSubFields)
			if rightAP != nil {
				inject(newAbs.DeriveNewAbstraction(rightAP, stmt), stmt)
			}
		}
	}
}

func isAliasable(v ir.Value) bool {
	switch v.(type) {
	case *ir.Local, *ir.InstanceFieldRef, *ir.StaticFieldRef, *ir.ArrayRef:
		return true
	}
	return false
}

// aliasedAt returns true if the value may point to an object designated by the root of the tainted path
func (s *PtsBased) aliasedAt(taintBase *ir.Local, taintFields []*ir.Field, v ir.Value) bool {
	var base *ir.Local
	var fields []*ir.Field
	switch x := v.(type) {
	case *ir.Local:
		base = x
	case *ir.InstanceFieldRef:
		base, fields = x.Base, []*ir.Field{x.Field}
	case *ir.StaticFieldRef:
		fields = []*ir.Field{x.Field}
	case *ir.ArrayRef:
		base = x.Base
	default:
		return false
	}
	return s.pts.MayAliasPaths(taintBase, taintFields, base, fields)
}

func (s *PtsBased) IsInteractive() bool { return false }

func (s *PtsBased) MayAlias(ap1, ap2 *data.AccessPath) bool { return false }

func (s *PtsBased) InjectCallingContext(*data.Abstraction, *solver.Solver, *ir.Method, ir.Stmt,
	*data.Abstraction, *data.Abstraction) {
}

func (s *PtsBased) IsFlowSensitive() bool { return false }

func (s *PtsBased) RequiresAnalysisOnReturn() bool { return true }

func (s *PtsBased) HasProcessedMethod(m *ir.Method) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for q := range s.queries {
		if q.method == m {
			return true
		}
	}
	return false
}

func (s *PtsBased) IsLazyAnalysis() bool { return false }

func (s *PtsBased) Solver() *solver.Solver { return nil }

func (s *PtsBased) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = map[ptsQuery]map[data.AbstractionKey]bool{}
}
