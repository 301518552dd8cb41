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

package summaries

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/samber/lo"
)

// Environment gives the taint wrappers access to the analysis they serve
type Environment interface {
	ICFG() icfg.ICFG
	AccessPathFactory() *data.AccessPathFactory
}

// TaintWrapper models the effect of library calls on taints, in place of an analysis of the callee
type TaintWrapper interface {
	// Initialize is called once before the analysis starts
	Initialize(env Environment) error
	// TaintsForMethod returns the taints that hold after the call at stmt, given that taint holds before it. A nil
	// result means the wrapper has no model for the call; an empty non-nil result means all taints are killed.
	TaintsForMethod(stmt ir.Stmt, d1, taint *data.Abstraction) []*data.Abstraction
	// IsExclusive returns true if the wrapper fully models the call for the taint, such that the callee must not be
	// analyzed
	IsExclusive(stmt ir.Stmt, taint *data.Abstraction) bool
	// AliasesForMethod returns the taints that hold before the call at stmt, given that taint holds after it. Used
	// by the backward alias search. nil means no model.
	AliasesForMethod(stmt ir.Stmt, d1, taint *data.Abstraction) []*data.Abstraction
	// SupportsCallee returns true if the wrapper has a model for m
	SupportsCallee(m *ir.Method) bool
	// SupportsCallSite returns true if the wrapper may produce taints at the call site
	SupportsCallSite(stmt ir.Stmt) bool
	// WrapperHits returns the number of calls that the wrapper modeled
	WrapperHits() int64
	// WrapperMisses returns the number of calls that the wrapper did not model
	WrapperMisses() int64
}

// counters implements the hit and miss statistics of the wrappers
type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) count(hit bool) bool {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return hit
}

// WrapperHits implements TaintWrapper
func (c *counters) WrapperHits() int64 { return c.hits.Load() }

// WrapperMisses implements TaintWrapper
func (c *counters) WrapperMisses() int64 { return c.misses.Load() }

// toAbstractions turns the access paths computed for taint at stmt into abstractions. The taint itself is kept for
// its own access path. Returns nil for an empty set of access paths.
func toAbstractions(stmt ir.Stmt, taint *data.Abstraction, aps []*data.AccessPath) []*data.Abstraction {
	if len(aps) == 0 {
		return nil
	}
	res := make([]*data.Abstraction, 0, len(aps))
	for _, ap := range aps {
		if ap == nil {
			continue
		}
		if ap == taint.AccessPath() {
			res = append(res, taint)
		} else if abs := taint.DeriveNewAbstraction(ap, stmt); abs != nil {
			res = append(res, abs)
		}
	}
	return uniqueAbstractions(res)
}

// uniqueAbstractions removes the abstractions equal to an earlier one
func uniqueAbstractions(abs []*data.Abstraction) []*data.Abstraction {
	return lo.UniqBy(abs, func(a *data.Abstraction) data.AbstractionKey { return a.Key() })
}

// addAccessPath appends ap to aps if it is not nil and not already present
func addAccessPath(aps []*data.AccessPath, ap *data.AccessPath) []*data.AccessPath {
	if ap == nil || lo.Contains(aps, ap) {
		return aps
	}
	return append(aps, ap)
}

// TaintWrapperSet combines several wrappers: the taints of all the wrappers are unioned, and a call is exclusive
// if one wrapper is exclusive for it
type TaintWrapperSet struct {
	counters
	wrappers []TaintWrapper
}

// NewTaintWrapperSet returns the combination of the wrappers
func NewTaintWrapperSet(wrappers ...TaintWrapper) *TaintWrapperSet {
	return &TaintWrapperSet{wrappers: lo.Filter(wrappers, func(w TaintWrapper, _ int) bool { return w != nil })}
}

// Add adds a wrapper to the set
func (s *TaintWrapperSet) Add(w TaintWrapper) { s.wrappers = append(s.wrappers, w) }

// Wrappers returns the wrappers of the set
func (s *TaintWrapperSet) Wrappers() []TaintWrapper { return s.wrappers }

// Initialize implements TaintWrapper
func (s *TaintWrapperSet) Initialize(env Environment) error {
	for _, w := range s.wrappers {
		if err := w.Initialize(env); err != nil {
			return err
		}
	}
	return nil
}

// TaintsForMethod implements TaintWrapper
func (s *TaintWrapperSet) TaintsForMethod(stmt ir.Stmt, d1, taint *data.Abstraction) []*data.Abstraction {
	var res []*data.Abstraction
	for _, w := range s.wrappers {
		res = append(res, w.TaintsForMethod(stmt, d1, taint)...)
	}
	res = uniqueAbstractions(res)
	s.count(len(res) > 0)
	if len(res) == 0 {
		return nil
	}
	return res
}

// IsExclusive implements TaintWrapper
func (s *TaintWrapperSet) IsExclusive(stmt ir.Stmt, taint *data.Abstraction) bool {
	return lo.SomeBy(s.wrappers, func(w TaintWrapper) bool { return w.IsExclusive(stmt, taint) })
}

// AliasesForMethod implements TaintWrapper
func (s *TaintWrapperSet) AliasesForMethod(stmt ir.Stmt, d1, taint *data.Abstraction) []*data.Abstraction {
	var res []*data.Abstraction
	for _, w := range s.wrappers {
		res = append(res, w.AliasesForMethod(stmt, d1, taint)...)
	}
	if len(res) == 0 {
		return nil
	}
	return uniqueAbstractions(res)
}

// SupportsCallee implements TaintWrapper
func (s *TaintWrapperSet) SupportsCallee(m *ir.Method) bool {
	return lo.SomeBy(s.wrappers, func(w TaintWrapper) bool { return w.SupportsCallee(m) })
}

// SupportsCallSite implements TaintWrapper
func (s *TaintWrapperSet) SupportsCallSite(stmt ir.Stmt) bool {
	return lo.SomeBy(s.wrappers, func(w TaintWrapper) bool { return w.SupportsCallSite(stmt) })
}

// IdentityTaintWrapper models every library call as propagating the taint of the receiver or an argument to the
// return value, and keeping the incoming taint
type IdentityTaintWrapper struct {
	counters
	env Environment
}

// NewIdentityTaintWrapper returns an identity wrapper
func NewIdentityTaintWrapper() *IdentityTaintWrapper { return &IdentityTaintWrapper{} }

// Initialize implements TaintWrapper
func (w *IdentityTaintWrapper) Initialize(env Environment) error {
	w.env = env
	return nil
}

// TaintsForMethod implements TaintWrapper
func (w *IdentityTaintWrapper) TaintsForMethod(stmt ir.Stmt, _, taint *data.Abstraction) []*data.Abstraction {
	ie := stmt.InvokeExpr()
	if ie == nil || !ie.Method.Class.IsSystem() {
		return nil
	}
	ap := taint.AccessPath()
	if ap.IsStaticFieldRef() {
		return []*data.Abstraction{taint}
	}
	aps := []*data.AccessPath{ap}
	if assign, ok := stmt.(*ir.AssignStmt); ok && isCallOperand(ie, ap.PlainValue()) {
		aps = addAccessPath(aps, w.env.AccessPathFactory().CreateAccessPath(assign.Left, ap.TaintSubFields()))
	}
	return toAbstractions(stmt, taint, aps)
}

// IsExclusive implements TaintWrapper
func (w *IdentityTaintWrapper) IsExclusive(stmt ir.Stmt, taint *data.Abstraction) bool {
	ie := stmt.InvokeExpr()
	return w.count(ie != nil && isCallOperand(ie, taint.AccessPath().PlainValue()))
}

// AliasesForMethod implements TaintWrapper
func (w *IdentityTaintWrapper) AliasesForMethod(ir.Stmt, *data.Abstraction, *data.Abstraction) []*data.Abstraction {
	return nil
}

// SupportsCallee implements TaintWrapper
func (w *IdentityTaintWrapper) SupportsCallee(*ir.Method) bool { return true }

// SupportsCallSite implements TaintWrapper
func (w *IdentityTaintWrapper) SupportsCallSite(ir.Stmt) bool { return true }

// isCallOperand returns true if v is the receiver or an argument of the call
func isCallOperand(ie *ir.InvokeExpr, v *ir.Local) bool {
	if v == nil {
		return false
	}
	if ie.Base == v {
		return true
	}
	return lo.SomeBy(ie.Args, func(a ir.Value) bool { return a == v })
}

// ParseMethodSignature splits a signature "<Class: ret name(params)>" into the class name and the sub-signature
func ParseMethodSignature(sig string) (className string, subSignature string, err error) {
	s := strings.TrimSpace(sig)
	if !strings.HasPrefix(s, "<") || !strings.HasSuffix(s, ">") {
		return "", "", fmt.Errorf("malformed method signature %q", sig)
	}
	s = s[1 : len(s)-1]
	i := strings.Index(s, ": ")
	if i < 0 {
		return "", "", fmt.Errorf("malformed method signature %q: missing class separator", sig)
	}
	className, subSignature = strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+2:])
	if className == "" || !strings.Contains(subSignature, "(") {
		return "", "", fmt.Errorf("malformed method signature %q", sig)
	}
	return className, subSignature, nil
}
