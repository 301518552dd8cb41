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
	"github.com/awslabs/ar-go-ifds/analysis/pointsto"
	"github.com/awslabs/ar-go-ifds/internal/funcutil"
)

// None is the strategy that never computes aliases
type None struct{}

func (None) ComputeAliasTaints(*data.Abstraction, ir.Stmt, ir.Value, *data.AbstractionSet, *ir.Method,
	*data.Abstraction) {
}

func (None) IsInteractive() bool { return false }

func (None) MayAlias(ap1, ap2 *data.AccessPath) bool { return false }

func (None) InjectCallingContext(*data.Abstraction, *solver.Solver, *ir.Method, ir.Stmt, *data.Abstraction,
	*data.Abstraction) {
}

func (None) IsFlowSensitive() bool { return false }

func (None) RequiresAnalysisOnReturn() bool { return false }

func (None) HasProcessedMethod(*ir.Method) bool { return false }

func (None) IsLazyAnalysis() bool { return false }

func (None) Solver() *solver.Solver { return nil }

func (None) Cleanup() {}

// Lazy is the interactive strategy: no alias is computed when a taint is created, instead the flow functions ask
// whether the values they read may alias a tainted access path. The answer comes from the points-to sets.
type Lazy struct {
	pts *pointsto.Result
}

// NewLazy returns the lazy strategy answering queries with the points-to result
func NewLazy(pts *pointsto.Result) *Lazy {
	return &Lazy{pts: pts}
}

func (l *Lazy) ComputeAliasTaints(*data.Abstraction, ir.Stmt, ir.Value, *data.AbstractionSet, *ir.Method,
	*data.Abstraction) {
}

func (l *Lazy) IsInteractive() bool { return true }

// MayAlias returns true if the paths are equal or if the objects designated by their base and first field may be
// the same
func (l *Lazy) MayAlias(ap1, ap2 *data.AccessPath) bool {
	if ap1 == ap2 || ap1.Equals(ap2) {
		return true
	}
	b1, f1 := pathRoot(ap1)
	b2, f2 := pathRoot(ap2)
	if (b1 == nil && len(f1) == 0) || (b2 == nil && len(f2) == 0) {
		return false
	}
	return l.pts.MayAliasPaths(b1, f1, b2, f2)
}

func (l *Lazy) InjectCallingContext(*data.Abstraction, *solver.Solver, *ir.Method, ir.Stmt, *data.Abstraction,
	*data.Abstraction) {
}

func (l *Lazy) IsFlowSensitive() bool { return true }

func (l *Lazy) RequiresAnalysisOnReturn() bool { return false }

func (l *Lazy) HasProcessedMethod(*ir.Method) bool { return true }

func (l *Lazy) IsLazyAnalysis() bool { return true }

func (l *Lazy) Solver() *solver.Solver { return nil }

func (l *Lazy) Cleanup() {}

// pathRoot returns the base and the first field of the access path, the parts the points-to analysis resolves
func pathRoot(ap *data.AccessPath) (*ir.Local, []*ir.Field) {
	switch {
	case ap.IsLocal():
		return ap.PlainValue(), nil
	case ap.IsInstanceFieldRef():
		return ap.PlainValue(), []*ir.Field{ap.FirstField()}
	case ap.IsStaticFieldRef():
		return nil, []*ir.Field{ap.FirstField()}
	}
	return nil, nil
}

// Implicit computes the aliases of taints created by implicit flows, from the field assignments of the method.
// It does not use a solver: the aliases are added to the taint set directly.
type Implicit struct {
	env     Environment
	methods funcutil.SyncMap[*ir.Method, map[string][]*data.AccessPath]
}

// NewImplicit returns the implicit flow strategy
func NewImplicit(env Environment) *Implicit {
	return &Implicit{env: env}
}

// globalAliases returns, for each field reference or local assigned from or to a field reference in m, the access
// paths it is assigned with, keyed by access path
func (s *Implicit) globalAliases(m *ir.Method) map[string][]*data.AccessPath {
	return s.methods.PutIfAbsentElseGet(m, func() map[string][]*data.AccessPath {
		res := map[string][]*data.AccessPath{}
		if !m.HasBody() {
			return res
		}
		apf := s.env.AccessPathFactory()
		for _, u := range m.Body().Stmts {
			assign, ok := u.(*ir.AssignStmt)
			if !ok {
				continue
			}
			if !(isFieldRef(assign.Left) && (isFieldRef(assign.Right) || isLocal(assign.Right))) &&
				!(isFieldRef(assign.Right) && isLocal(assign.Left)) {
				continue
			}
			apLeft := apf.CreateAccessPath(assign.Left, true)
			apRight := apf.CreateAccessPath(assign.Right, true)
			if apLeft == nil || apRight == nil {
				continue
			}
			res[apLeft.Key()] = appendUniquePath(res[apLeft.Key()], apRight)
			res[apRight.Key()] = appendUniquePath(res[apRight.Key()], apLeft)
		}
		return res
	})
}

func appendUniquePath(paths []*data.AccessPath, ap *data.AccessPath) []*data.AccessPath {
	for _, p := range paths {
		if p.Equals(ap) {
			return paths
		}
	}
	return append(paths, ap)
}

func isFieldRef(v ir.Value) bool {
	switch v.(type) {
	case *ir.InstanceFieldRef, *ir.StaticFieldRef:
		return true
	}
	return false
}

func isLocal(v ir.Value) bool {
	_, ok := v.(*ir.Local)
	return ok
}

// ComputeAliasTaints adds to taintSet the fields of newAbs appended to each alias of the base of the target
// field reference
func (s *Implicit) ComputeAliasTaints(d1 *data.Abstraction, src ir.Stmt, target ir.Value,
	taintSet *data.AbstractionSet, m *ir.Method, newAbs *data.Abstraction) {
	ref, ok := target.(*ir.InstanceFieldRef)
	if !ok || taintSet == nil {
		return
	}
	apf := s.env.AccessPathFactory()
	baseAP := apf.CreateAccessPath(ref.Base, true)
	if baseAP == nil {
		return
	}
	for _, ap := range s.globalAliases(m)[baseAP.Key()] {
		newAP := apf.Merge(ap, newAbs.AccessPath())
		aliasAbs := newAbs.DeriveNewAbstraction(newAP, nil)
		if aliasAbs == nil || !taintSet.Add(aliasAbs) {
			continue
		}
		if ap.IsInstanceFieldRef() {
			s.ComputeAliasTaints(d1, src, ir.FieldRef(ap.PlainValue(), ap.FirstField()), taintSet, m, aliasAbs)
		}
	}
}

func (s *Implicit) IsInteractive() bool { return false }

func (s *Implicit) MayAlias(ap1, ap2 *data.AccessPath) bool { return false }

func (s *Implicit) InjectCallingContext(*data.Abstraction, *solver.Solver, *ir.Method, ir.Stmt,
	*data.Abstraction, *data.Abstraction) {
}

func (s *Implicit) IsFlowSensitive() bool { return false }

func (s *Implicit) RequiresAnalysisOnReturn() bool { return true }

func (s *Implicit) HasProcessedMethod(m *ir.Method) bool {
	_, ok := s.methods.Load(m)
	return ok
}

func (s *Implicit) IsLazyAnalysis() bool { return false }

func (s *Implicit) Solver() *solver.Solver { return nil }

func (s *Implicit) Cleanup() {
	s.methods.Clear()
}
