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

// Package aliasing computes the aliases of tainted access paths. The Aliasing facade answers may- and must-alias
// queries for the flow functions and delegates the computation of new alias taints to a Strategy.
package aliasing

import (
	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/solver"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/internal/funcutil"
)

// Environment is the part of the analysis state the strategies need
type Environment interface {
	ICFG() icfg.ICFG
	AccessPathFactory() *data.AccessPathFactory
	// ForwardSolver is the solver into which the aliases found are injected
	ForwardSolver() *solver.Solver
	// IsAnalysisAborted returns true once the analysis has been stopped
	IsAnalysisAborted() bool
	Logger() *config.LogGroup
}

// Strategy computes the aliases of new taints
type Strategy interface {
	// ComputeAliasTaints computes the aliases of newAbs, created at src in method m under the context d1. Aliases
	// are either added to taintSet or injected into the solvers.
	ComputeAliasTaints(d1 *data.Abstraction, src ir.Stmt, target ir.Value, taintSet *data.AbstractionSet,
		m *ir.Method, newAbs *data.Abstraction)

	// IsInteractive returns true if the strategy answers MayAlias queries instead of computing aliases up front
	IsInteractive() bool

	// MayAlias returns true if the two access paths may alias. Only interactive strategies answer it.
	MayAlias(ap1, ap2 *data.AccessPath) bool

	// InjectCallingContext notifies the strategy that the forward solver entered callee with d3 from callSite,
	// where source held under the context d1
	InjectCallingContext(d3 *data.Abstraction, fSolver *solver.Solver, callee *ir.Method, callSite ir.Stmt,
		source, d1 *data.Abstraction)

	// IsFlowSensitive returns true if the aliases are inactive until their activation statement
	IsFlowSensitive() bool

	// RequiresAnalysisOnReturn returns true if aliases must be computed again when a taint returns to a caller
	RequiresAnalysisOnReturn() bool

	// HasProcessedMethod returns true if the strategy has computed aliases in m
	HasProcessedMethod(m *ir.Method) bool

	// IsLazyAnalysis returns true if aliases are resolved at their use
	IsLazyAnalysis() bool

	// Solver returns the solver of the strategy, nil if it has none
	Solver() *solver.Solver

	// Cleanup drops the state of the strategy
	Cleanup()
}

// Aliasing is the facade of the alias analysis used by the flow functions
type Aliasing struct {
	strategy         Strategy
	implicitStrategy Strategy
	env              Environment
	mustAlias        *LocalMustAlias
	excluded         funcutil.SyncSet[*ir.Method]
}

// New returns the facade using strategy to compute the aliases
func New(strategy Strategy, env Environment) *Aliasing {
	return &Aliasing{
		strategy:         strategy,
		implicitStrategy: NewImplicit(env),
		env:              env,
		mustAlias:        NewLocalMustAlias(),
	}
}

// Strategy returns the strategy computing the aliases
func (a *Aliasing) Strategy() Strategy { return a.strategy }

// ComputeAliases computes the aliases of newAbs, created at src by writing to target. Taints with an empty
// access path in d1 come from implicit flows, whose aliases are computed with the implicit flow strategy.
func (a *Aliasing) ComputeAliases(d1 *data.Abstraction, src ir.Stmt, target ir.Value, taintSet *data.AbstractionSet,
	m *ir.Method, newAbs *data.Abstraction) {
	if newAbs == nil || !CanHaveAliasesAP(newAbs.AccessPath()) {
		return
	}
	if !d1.AccessPath().IsEmpty() {
		a.strategy.ComputeAliasTaints(d1, src, target, taintSet, m, newAbs)
	} else if _, ok := target.(*ir.InstanceFieldRef); ok {
		a.implicitStrategy.ComputeAliasTaints(d1, src, target, taintSet, m, newAbs)
	}
}

// GetReferencedAPBase returns the part of the tainted access path referenced by the fields, or nil if the
// fields do not designate a prefix of the tainted path. A path tainting its sub fields is referenced by any
// extension of its fields.
func (a *Aliasing) GetReferencedAPBase(tainted *data.AccessPath, fields []*ir.Field) *data.AccessPath {
	frags := tainted.Fragments()
	for i, f := range fields {
		if i >= len(frags) {
			if tainted.TaintSubFields() {
				return tainted
			}
			return nil
		}
		if frags[i].Field != f {
			return nil
		}
	}
	return tainted
}

// MayAlias returns true if the two values may point to the same heap object. Constants never alias.
func (a *Aliasing) MayAlias(v1, v2 ir.Value) bool {
	if !data.CanContainValue(v1) || !data.CanContainValue(v2) {
		return false
	}
	if isConstant(v1) || isConstant(v2) {
		return false
	}
	if v1 == v2 {
		return true
	}
	if a.strategy.IsInteractive() {
		apf := a.env.AccessPathFactory()
		ap1 := apf.CreateAccessPath(v1, false)
		ap2 := apf.CreateAccessPath(v2, false)
		if ap1 == nil || ap2 == nil {
			return false
		}
		return a.strategy.MayAlias(ap1, ap2)
	}
	return false
}

// MayAliasAP returns the part of ap that is referenced by val, or nil if val cannot designate the tainted
// object
func (a *Aliasing) MayAliasAP(ap *data.AccessPath, val ir.Value) *data.AccessPath {
	if !data.CanContainValue(val) || isConstant(val) {
		return nil
	}
	if a.strategy.IsInteractive() {
		valAP := a.env.AccessPathFactory().CreateAccessPath(val, true)
		if valAP == nil || !a.strategy.MayAlias(ap, valAP) {
			return nil
		}
	} else {
		switch x := val.(type) {
		case *ir.Local:
			if ap.PlainValue() != x {
				return nil
			}
		case *ir.ArrayRef:
			if ap.PlainValue() != x.Base {
				return nil
			}
		case *ir.InstanceFieldRef:
			if !ap.IsLocal() && !ap.IsInstanceFieldRef() {
				return nil
			}
			if x.Base != ap.PlainValue() {
				return nil
			}
		}
	}
	var fields []*ir.Field
	switch x := val.(type) {
	case *ir.StaticFieldRef:
		if !ap.IsStaticFieldRef() {
			return nil
		}
		fields = []*ir.Field{x.Field}
	case *ir.InstanceFieldRef:
		fields = []*ir.Field{x.Field}
	}
	return a.GetReferencedAPBase(ap, fields)
}

// MustAliasFields returns true if the two fields are the same
func (a *Aliasing) MustAliasFields(f1, f2 *ir.Field) bool {
	return f1 == f2
}

// MustAlias returns true if the two locals point to the same object before the statement
func (a *Aliasing) MustAlias(l1, l2 *ir.Local, position ir.Stmt) bool {
	if l1 == l2 {
		return true
	}
	if !l1.Type().IsReference() || !l2.Type().IsReference() {
		return false
	}
	m := a.env.ICFG().MethodOf(position)
	if m == nil || a.excluded.Contains(m) || a.env.IsAnalysisAborted() {
		return false
	}
	return a.mustAlias.MustAlias(l1, l2, position)
}

// ExcludeMethodFromMustAlias disables the must-alias analysis in m
func (a *Aliasing) ExcludeMethodFromMustAlias(m *ir.Method) {
	a.excluded.Add(m)
}

// Cleanup drops the caches of the facade and of its strategies
func (a *Aliasing) Cleanup() {
	a.strategy.Cleanup()
	a.implicitStrategy.Cleanup()
	a.mustAlias.Clear()
}

func isConstant(v ir.Value) bool {
	_, ok := v.(*ir.Constant)
	return ok
}

// CanHaveAliases returns true if writing the tainted source to val at stmt may create aliases of val
func CanHaveAliases(stmt ir.Stmt, val ir.Value, source *data.Abstraction) bool {
	if def, ok := stmt.(*ir.AssignStmt); ok {
		if l, ok := def.Left.(*ir.Local); ok && l == source.AccessPath().PlainValue() {
			return false
		}
		switch val.(type) {
		case *ir.ArrayRef, *ir.InstanceFieldRef, *ir.StaticFieldRef:
			return true
		}
	}
	if val.Type() != nil && val.Type().IsPrimitive() {
		return false
	}
	if isConstant(val) {
		return false
	}
	if val.Type() != nil && val.Type().IsString() && !source.AccessPath().CanHaveImmutableAliases() {
		return false
	}
	switch x := val.(type) {
	case *ir.InstanceFieldRef, *ir.StaticFieldRef:
		return true
	case *ir.Local:
		return x.Type().IsArray()
	}
	return false
}

// CanHaveAliasesAP returns false for access paths designating immutable values
func CanHaveAliasesAP(ap *data.AccessPath) bool {
	if ap.BaseType() != nil && ap.BaseType().IsString() && !ap.CanHaveImmutableAliases() {
		return false
	}
	if ap.IsStaticFieldRef() {
		if t := ap.FirstFieldType(); t != nil && t.IsPrimitive() {
			return false
		}
	} else if ap.BaseType() != nil && ap.BaseType().IsPrimitive() {
		return false
	}
	return true
}

// BaseMatches returns true if the value is the base of the tainted access path: the base local itself, or a
// field reference whose field is the first field of the path
func BaseMatches(v ir.Value, source *data.Abstraction) bool {
	ap := source.AccessPath()
	switch x := v.(type) {
	case *ir.Local:
		return x == ap.PlainValue()
	case *ir.InstanceFieldRef:
		return x.Base == ap.PlainValue() && ap.FirstFieldMatches(x.Field)
	case *ir.StaticFieldRef:
		return ap.FirstFieldMatches(x.Field)
	}
	return false
}

// BaseMatchesStrict returns true if the value designates exactly the tainted access path, i.e. overwriting the
// value overwrites the whole taint
func BaseMatchesStrict(v ir.Value, source *data.Abstraction) bool {
	if !BaseMatches(v, source) {
		return false
	}
	switch v.(type) {
	case *ir.Local:
		return source.AccessPath().IsLocal()
	case *ir.InstanceFieldRef, *ir.StaticFieldRef:
		return source.AccessPath().FieldCount() == 1
	}
	return false
}
