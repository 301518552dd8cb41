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

// Package problems contains the tabulation problems of the taint analysis: the forward taint propagation, the
// backward alias search, and the propagation rules the forward problem is made of.
package problems

import (
	"sync"

	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/manager"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// ActivationTable records the call sites at which inactive aliases become active. An alias found by the backward
// search is activated at the statement that created the original taint; when that statement is inside a callee,
// the call sites leading to it activate the alias as well.
//
// The table is shared by the forward and the alias problem of an analysis.
type ActivationTable struct {
	mu        sync.RWMutex
	callSites map[ir.Stmt]map[ir.Stmt]bool
}

// NewActivationTable returns an empty table
func NewActivationTable() *ActivationTable {
	return &ActivationTable{callSites: map[ir.Stmt]map[ir.Stmt]bool{}}
}

// Register records that callSite activates the aliases whose activation unit is the one of abs. It returns false
// if nothing was recorded: abs has no activation unit, the call site is known already, or the inactive abs does
// not come from callee.
func (t *ActivationTable) Register(callSite ir.Stmt, callee *ir.Method, abs *data.Abstraction) bool {
	unit := abs.ActivationUnit()
	if unit == nil || callSite == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	sites, ok := t.callSites[unit]
	if !ok {
		sites = map[ir.Stmt]bool{}
		t.callSites[unit] = sites
	}
	if sites[callSite] {
		return false
	}
	if !abs.IsAbstractionActive() && unit.Method() != callee {
		found := false
		for site := range sites {
			if site.Method() == callee {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	sites[callSite] = true
	return true
}

// IsActivating returns true if callSite activates the aliases with the activation unit
func (t *ActivationTable) IsActivating(callSite, activationUnit ir.Stmt) bool {
	if callSite == nil || activationUnit == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.callSites[activationUnit][callSite]
}

// Len returns the number of activation units with registered call sites
func (t *ActivationTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.callSites)
}

// base is the state shared by the problems
type base struct {
	mgr        *manager.Manager
	zero       *data.Abstraction
	activation *ActivationTable
}

func (b *base) registerActivationCallSite(callSite ir.Stmt, callee *ir.Method, abs *data.Abstraction) bool {
	if !b.mgr.FlowSensitiveAliasing() {
		return false
	}
	return b.activation.Register(callSite, callee, abs)
}

func (b *base) isCallSiteActivatingTaint(callSite, activationUnit ir.Stmt) bool {
	if !b.mgr.FlowSensitiveAliasing() {
		return false
	}
	return b.activation.IsActivating(callSite, activationUnit)
}

// isExcluded returns true for the methods whose bodies are not analyzed
func isExcluded(m *ir.Method) bool {
	return m == nil || !m.HasBody()
}

// isExceptionHandler returns true for the statement binding the exception caught by a handler
func isExceptionHandler(s ir.Stmt) bool {
	if id, ok := s.(*ir.IdentityStmt); ok {
		_, isCatch := id.Right.(*ir.CaughtExceptionRef)
		return isCatch
	}
	return false
}

// hasValidCallees returns true if one of the callees at the call site has a body
func hasValidCallees(mgr *manager.Manager, call ir.Stmt) bool {
	for _, callee := range mgr.ICFG().CalleesOfCallAt(call) {
		if callee.HasBody() {
			return true
		}
	}
	return false
}

// plain returns the base local of ap as a value. A path without base local yields a nil interface, so that it
// never aliases anything.
func plain(ap *data.AccessPath) ir.Value {
	if l := ap.PlainValue(); l != nil {
		return l
	}
	return nil
}

// isPlain returns true if v is the base local of ap
func isPlain(v ir.Value, ap *data.AccessPath) bool {
	l, ok := v.(*ir.Local)
	return ok && l != nil && l == ap.PlainValue()
}

// selectBase returns the value whose taint flows into the expression v
func selectBase(v ir.Value, keepArrayRef bool) ir.Value {
	switch x := v.(type) {
	case *ir.ArrayRef:
		if !keepArrayRef {
			return x.Base
		}
	case *ir.CastExpr:
		return x.Op
	case *ir.NewArrayExpr:
		return x.Size
	case *ir.InstanceOfExpr:
		return x.Op
	}
	return v
}

// selectBases returns the operands of v whose taint flows into v
func selectBases(v ir.Value, keepArrayRef bool) []ir.Value {
	switch x := v.(type) {
	case *ir.BinopExpr:
		return []ir.Value{selectBase(x.X, keepArrayRef), selectBase(x.Y, keepArrayRef)}
	case *ir.UnopExpr:
		return []ir.Value{selectBase(x.X, keepArrayRef)}
	case *ir.PhiExpr:
		res := make([]ir.Value, 0, len(x.Args))
		for _, a := range x.Args {
			res = append(res, selectBase(a, keepArrayRef))
		}
		return res
	}
	return []ir.Value{selectBase(v, keepArrayRef)}
}

// isPrimitive returns true if t is a known primitive type
func isPrimitive(t *ir.Type) bool {
	return t != nil && t.IsPrimitive()
}

// typeOf returns the type of v, nil for a nil value
func typeOf(v ir.Value) *ir.Type {
	if v == nil {
		return nil
	}
	return v.Type()
}
