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

package data

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Workiva/go-datastructures/set"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// Abstraction is a data flow fact: a tainted access path with the context of its propagation.
//
// An abstraction is immutable once it has been propagated. Derivations create new abstractions whose predecessor
// is the abstraction they were derived from, such that the abstractions form a DAG that is used to reconstruct
// paths. Two abstractions are equal when their access paths, source contexts, activation units, turn units,
// exception flags, postdominators, implicit flags and dependsOnCutAP flags are equal; the predecessor, neighbors,
// current statement and corresponding call site are not part of the identity.
type Abstraction struct {
	accessPath *AccessPath

	predecessor           *Abstraction
	currentStmt           ir.Stmt
	correspondingCallSite ir.Stmt
	sourceContext         *SourceContext

	// activationUnit is the statement at which an inactive alias becomes active. nil means active.
	activationUnit ir.Stmt
	// turnUnit is the statement at which a backward alias search turned into a forward propagation
	turnUnit        ir.Stmt
	exceptionThrown bool
	postdominators  []icfg.UnitContainer
	isImplicit      bool
	dependsOnCutAP  bool

	flowSensitiveAliasing bool
	pathLength            int

	key atomic.Pointer[AbstractionKey]

	neighborsMu sync.Mutex
	neighbors   *set.Set
}

// AbstractionKey is the comparable identity of an abstraction. Equal abstractions have equal keys.
type AbstractionKey struct {
	ap             string
	source         sourceContextKey
	activationUnit ir.Stmt
	turnUnit       ir.Stmt
	exception      bool
	postdoms       string
	cutAP          bool
	implicit       bool
}

// ZeroAbstraction returns a new zero abstraction. All abstractions derived from it carry the flow sensitive
// aliasing flag.
func ZeroAbstraction(flowSensitiveAliasing bool) *Abstraction {
	return &Abstraction{accessPath: zeroAccessPath, flowSensitiveAliasing: flowSensitiveAliasing}
}

// NewSourceAbstraction returns the abstraction of a taint created at a source statement
func (a *Abstraction) NewSourceAbstraction(def Definition, ap *AccessPath, stmt ir.Stmt, userData any,
	exceptionThrown bool, isImplicit bool) *Abstraction {
	return &Abstraction{
		accessPath:            ap,
		sourceContext:         NewSourceContext(def, ap, stmt, userData),
		currentStmt:           stmt,
		exceptionThrown:       exceptionThrown,
		isImplicit:            isImplicit,
		flowSensitiveAliasing: a.flowSensitiveAliasing,
	}
}

// derivedFrom returns a copy of the identity of original with access path p, without any path information
func derivedFrom(p *AccessPath, original *Abstraction) *Abstraction {
	abs := &Abstraction{accessPath: p}
	if original != nil {
		abs.sourceContext = original.sourceContext
		abs.exceptionThrown = original.exceptionThrown
		abs.activationUnit = original.activationUnit
		abs.turnUnit = original.turnUnit
		abs.postdominators = original.postdominators
		abs.dependsOnCutAP = original.dependsOnCutAP
		abs.isImplicit = original.isImplicit
		abs.flowSensitiveAliasing = original.flowSensitiveAliasing
	}
	return abs
}

// Clone returns an equal abstraction whose predecessor is a
func (a *Abstraction) Clone() *Abstraction {
	abs := derivedFrom(a.accessPath, a)
	abs.predecessor = a
	abs.pathLength = a.pathLength + 1
	return abs
}

// CloneWithContext returns an equal abstraction whose predecessor is a, at the statement with the corresponding
// call site
func (a *Abstraction) CloneWithContext(currentStmt ir.Stmt, callSite ir.Stmt) *Abstraction {
	abs := a.Clone()
	abs.currentStmt = currentStmt
	abs.correspondingCallSite = callSite
	return abs
}

// DeriveInactiveAbstraction returns the inactive copy of a that becomes active at the activation unit. Without flow
// sensitive aliasing, or if a is already inactive, a is returned.
func (a *Abstraction) DeriveInactiveAbstraction(activationUnit ir.Stmt) *Abstraction {
	if !a.flowSensitiveAliasing || !a.IsAbstractionActive() {
		return a
	}
	abs := a.DeriveNewAbstractionMutable(a.accessPath, nil)
	if abs == nil {
		return nil
	}
	abs.postdominators = nil
	abs.activationUnit = activationUnit
	abs.dependsOnCutAP = abs.dependsOnCutAP || abs.accessPath.IsCutOffApproximation()
	return abs
}

// DeriveNewAbstraction returns the abstraction for access path p at the statement. If neither the access path nor
// the statement change, a itself is returned.
func (a *Abstraction) DeriveNewAbstraction(p *AccessPath, currentStmt ir.Stmt) *Abstraction {
	return a.DeriveNewAbstractionImplicit(p, currentStmt, a.isImplicit)
}

// DeriveNewAbstractionImplicit is DeriveNewAbstraction with an explicit implicit flag
func (a *Abstraction) DeriveNewAbstractionImplicit(p *AccessPath, currentStmt ir.Stmt, isImplicit bool) *Abstraction {
	if p == nil {
		return nil
	}
	if a.accessPath.Equals(p) && a.currentStmt == currentStmt && a.isImplicit == isImplicit {
		return a
	}
	abs := a.DeriveNewAbstractionMutable(p, currentStmt)
	if abs == nil {
		return nil
	}
	abs.isImplicit = isImplicit
	return abs
}

// DeriveNewAbstractionMutable always returns a fresh abstraction for p at the statement, with a as predecessor.
// The result may be modified by the caller until it is propagated.
func (a *Abstraction) DeriveNewAbstractionMutable(p *AccessPath, currentStmt ir.Stmt) *Abstraction {
	if p == nil {
		return nil
	}
	if a.accessPath.Equals(p) && a.currentStmt == currentStmt {
		abs := a.Clone()
		abs.currentStmt = currentStmt
		return abs
	}
	abs := derivedFrom(p, a)
	abs.predecessor = a
	abs.currentStmt = currentStmt
	abs.pathLength = a.pathLength + 1
	if !p.IsEmpty() {
		abs.postdominators = nil
	}
	if !abs.IsAbstractionActive() {
		abs.dependsOnCutAP = abs.dependsOnCutAP || p.IsCutOffApproximation()
	}
	abs.sourceContext = nil
	return abs
}

// DeriveNewAbstractionOnThrow returns the abstraction of the exception thrown at the statement
func (a *Abstraction) DeriveNewAbstractionOnThrow(throwStmt ir.Stmt) *Abstraction {
	abs := a.Clone()
	abs.currentStmt = throwStmt
	abs.sourceContext = nil
	abs.exceptionThrown = true
	return abs
}

// DeriveNewAbstractionOnCatch returns the abstraction of the caught exception bound to ap
func (a *Abstraction) DeriveNewAbstractionOnCatch(ap *AccessPath) *Abstraction {
	abs := a.DeriveNewAbstractionMutable(ap, nil)
	if abs == nil {
		return nil
	}
	abs.exceptionThrown = false
	return abs
}

// DeriveNewAbstractionWithTurnUnit returns the abstraction with the turn unit, active and without source context
func (a *Abstraction) DeriveNewAbstractionWithTurnUnit(turnUnit ir.Stmt) *Abstraction {
	if a.turnUnit == turnUnit {
		return a
	}
	abs := a.Clone()
	abs.sourceContext = nil
	abs.activationUnit = nil
	abs.turnUnit = turnUnit
	return abs
}

// GetActiveCopy returns the active version of a
func (a *Abstraction) GetActiveCopy() *Abstraction {
	if a.IsAbstractionActive() {
		return a
	}
	abs := a.Clone()
	abs.sourceContext = nil
	abs.activationUnit = nil
	return abs
}

// DeriveConditionalAbstractionEnter returns the implicit-flow abstraction for entering the conditional region of
// the statement that ends at postdom
func (a *Abstraction) DeriveConditionalAbstractionEnter(postdom icfg.UnitContainer,
	conditionalUnit ir.Stmt) *Abstraction {
	for _, pd := range a.postdominators {
		if pd == postdom {
			return a
		}
	}
	abs := a.DeriveNewAbstractionMutable(emptyAccessPath, conditionalUnit)
	if abs == nil {
		return nil
	}
	postdoms := make([]icfg.UnitContainer, 0, len(abs.postdominators)+1)
	postdoms = append(postdoms, postdom)
	abs.postdominators = append(postdoms, abs.postdominators...)
	return abs
}

// DeriveConditionalAbstractionCall returns the implicit-flow abstraction entering a call made under a tainted
// condition. Postdominators are not carried into callees.
func (a *Abstraction) DeriveConditionalAbstractionCall(conditionalCallSite ir.Stmt) *Abstraction {
	abs := a.DeriveNewAbstractionMutable(emptyAccessPath, conditionalCallSite)
	if abs == nil {
		return nil
	}
	abs.postdominators = nil
	return abs
}

// DropTopPostdominator returns the abstraction after leaving the innermost conditional region
func (a *Abstraction) DropTopPostdominator() *Abstraction {
	if len(a.postdominators) == 0 {
		return a
	}
	abs := a.Clone()
	abs.sourceContext = nil
	abs.postdominators = a.postdominators[1:]
	return abs
}

// TopPostdominator returns the end of the innermost conditional region
func (a *Abstraction) TopPostdominator() (icfg.UnitContainer, bool) {
	if len(a.postdominators) == 0 {
		return icfg.UnitContainer{}, false
	}
	return a.postdominators[0], true
}

// IsTopPostdominator returns true if the innermost conditional region ends at s
func (a *Abstraction) IsTopPostdominator(s ir.Stmt) bool {
	pd, ok := a.TopPostdominator()
	return ok && pd.Stmt == s
}

// InjectSourceContext returns the abstraction with the source context, without path information
func (a *Abstraction) InjectSourceContext(sc *SourceContext) *Abstraction {
	if a.sourceContext != nil && a.sourceContext.Equals(sc) {
		return a
	}
	abs := a.Clone()
	abs.predecessor = nil
	abs.sourceContext = sc
	abs.currentStmt = a.currentStmt
	return abs
}

// IsAbstractionActive returns true if a represents an actual taint rather than an alias waiting for activation
func (a *Abstraction) IsAbstractionActive() bool { return a.activationUnit == nil }

// IsImplicit returns true if the taint was derived from a tainted condition
func (a *Abstraction) IsImplicit() bool { return a.isImplicit }

// AccessPath returns the tainted access path
func (a *Abstraction) AccessPath() *AccessPath { return a.accessPath }

// ActivationUnit returns the statement at which an inactive abstraction becomes active
func (a *Abstraction) ActivationUnit() ir.Stmt { return a.activationUnit }

// TurnUnit returns the statement at which the alias search turned
func (a *Abstraction) TurnUnit() ir.Stmt { return a.turnUnit }

// ExceptionThrown returns true if a taints a thrown exception
func (a *Abstraction) ExceptionThrown() bool { return a.exceptionThrown }

// SourceContext returns the source context, set only on abstractions created at sources
func (a *Abstraction) SourceContext() *SourceContext { return a.sourceContext }

// DependsOnCutAP returns true if an inactive abstraction was derived from a truncated access path
func (a *Abstraction) DependsOnCutAP() bool { return a.dependsOnCutAP }

// Predecessor returns the abstraction a was derived from
func (a *Abstraction) Predecessor() *Abstraction { return a.predecessor }

// CurrentStmt returns the statement at which a was created
func (a *Abstraction) CurrentStmt() ir.Stmt { return a.currentStmt }

// CorrespondingCallSite returns the call site a returned to, if any
func (a *Abstraction) CorrespondingCallSite() ir.Stmt { return a.correspondingCallSite }

// PathLength returns the number of derivations from the source
func (a *Abstraction) PathLength() int { return a.pathLength }

// FlowSensitiveAliasing returns true if the analysis creates inactive aliases
func (a *Abstraction) FlowSensitiveAliasing() bool { return a.flowSensitiveAliasing }

// IsZero returns true for the zero abstraction
func (a *Abstraction) IsZero() bool { return a.accessPath == zeroAccessPath }

// SetPredecessor sets the predecessor. Only valid before the abstraction is propagated.
func (a *Abstraction) SetPredecessor(p *Abstraction) { a.predecessor = p }

// SetCurrentStmt sets the current statement. Only valid before the abstraction is propagated.
func (a *Abstraction) SetCurrentStmt(s ir.Stmt) { a.currentStmt = s }

// SetCorrespondingCallSite sets the call site. Only valid before the abstraction is propagated.
func (a *Abstraction) SetCorrespondingCallSite(s ir.Stmt) { a.correspondingCallSite = s }

// Key returns the comparable identity of the abstraction
func (a *Abstraction) Key() AbstractionKey {
	if k := a.key.Load(); k != nil {
		return *k
	}
	k := &AbstractionKey{
		ap:             a.accessPath.Key(),
		source:         a.sourceContext.key(),
		activationUnit: a.activationUnit,
		turnUnit:       a.turnUnit,
		exception:      a.exceptionThrown,
		cutAP:          a.dependsOnCutAP,
		implicit:       a.isImplicit,
	}
	if len(a.postdominators) > 0 {
		var sb strings.Builder
		for _, pd := range a.postdominators {
			fmt.Fprintf(&sb, "%p/%p;", pd.Stmt, pd.Method)
		}
		k.postdoms = sb.String()
	}
	a.key.Store(k)
	return *k
}

// Equals returns true if both abstractions have the same identity
func (a *Abstraction) Equals(other *Abstraction) bool {
	if a == other {
		return true
	}
	if a == nil || other == nil {
		return false
	}
	return a.Key() == other.Key()
}

// Entails returns true if a taints everything other taints, with the same context
func (a *Abstraction) Entails(other *Abstraction) bool {
	if !a.accessPath.Entails(other.accessPath) {
		return false
	}
	k1, k2 := a.Key(), other.Key()
	k1.ap, k2.ap = "", ""
	return k1 == k2
}

// AddNeighbor records that other is equal to a but was derived along a different path. It returns false if
// other is a, or carries the same path information as a or one of the existing neighbors.
func (a *Abstraction) AddNeighbor(other *Abstraction) bool {
	if other == a || samePathInfo(a, other) {
		return false
	}
	a.neighborsMu.Lock()
	defer a.neighborsMu.Unlock()
	if a.neighbors == nil {
		a.neighbors = set.New()
	}
	for _, n := range a.neighbors.Flatten() {
		if samePathInfo(n.(*Abstraction), other) {
			return false
		}
	}
	a.neighbors.Add(other)
	return true
}

func samePathInfo(a, b *Abstraction) bool {
	return a.predecessor == b.predecessor && a.currentStmt == b.currentStmt &&
		a.correspondingCallSite == b.correspondingCallSite
}

// Neighbors returns the abstractions equal to a that were derived along other paths
func (a *Abstraction) Neighbors() []*Abstraction {
	a.neighborsMu.Lock()
	defer a.neighborsMu.Unlock()
	if a.neighbors == nil {
		return nil
	}
	items := a.neighbors.Flatten()
	res := make([]*Abstraction, len(items))
	for i, n := range items {
		res[i] = n.(*Abstraction)
	}
	return res
}

// NeighborCount returns the number of neighbors
func (a *Abstraction) NeighborCount() int {
	a.neighborsMu.Lock()
	defer a.neighborsMu.Unlock()
	if a.neighbors == nil {
		return 0
	}
	return int(a.neighbors.Len())
}

func (a *Abstraction) String() string {
	var sb strings.Builder
	if !a.IsAbstractionActive() {
		sb.WriteString("_")
	}
	sb.WriteString(a.accessPath.String())
	sb.WriteString(" | ")
	if a.turnUnit == nil && a.activationUnit != nil {
		sb.WriteString(a.activationUnit.String())
	}
	if a.turnUnit != nil {
		sb.WriteString(a.turnUnit.String())
	}
	sb.WriteString(">>")
	return sb.String()
}
