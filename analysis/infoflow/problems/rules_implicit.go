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

package problems

import (
	"sync"

	"github.com/awslabs/ar-go-ifds/analysis/infoflow/aliasing"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// ImplicitRule tracks the implicit flows: the values assigned under a condition that depends on a taint are
// tainted. Inside the conditional region, the taint is represented by an abstraction with an empty access path
// and the postdominator that ends the region.
type ImplicitRule struct {
	RuleBase

	mu sync.Mutex
	// implicitTargets are the call sites entered under a tainted condition, with the contexts they were entered in
	implicitTargets map[ir.Stmt]*data.AbstractionSet
}

// NewImplicitRule returns the implicit flow rule
func NewImplicitRule(b RuleBase) *ImplicitRule {
	return &ImplicitRule{RuleBase: b, implicitTargets: map[ir.Stmt]*data.AbstractionSet{}}
}

// leaveConditional handles leaving the innermost conditional region at stmt. It returns the abstraction after
// the region, nil if the taint dies with the region.
func (r *ImplicitRule) leaveConditional(stmt ir.Stmt, source *data.Abstraction, k *KillFlags) (*data.Abstraction, bool) {
	if !source.IsTopPostdominator(stmt) {
		return source, false
	}
	dropped := source.DropTopPostdominator()
	if _, ok := dropped.TopPostdominator(); dropped.AccessPath().IsEmpty() && !ok {
		k.KillAll = true
		return nil, true
	}
	return dropped, true
}

// NormalFlow enters the conditional region of a branch on a tainted value, and leaves regions at their
// postdominator
func (r *ImplicitRule) NormalFlow(_, source *data.Abstraction, stmt, _ ir.Stmt, k *KillFlags) []*data.Abstraction {
	if source.IsZero() {
		return nil
	}
	source, left := r.leaveConditional(stmt, source, k)
	if source == nil {
		return nil
	}
	var res []*data.Abstraction
	if left {
		k.KillSource = true
		res = append(res, source)
	}
	if !source.IsAbstractionActive() {
		return res
	}
	var cond ir.Value
	switch x := stmt.(type) {
	case *ir.IfStmt:
		cond = x.Cond
	case *ir.SwitchStmt:
		cond = x.Key
	default:
		return res
	}
	// inside a conditionally called method every assignment is tainted already
	if source.AccessPath().IsEmpty() {
		return res
	}
	for _, v := range ir.UsesOf(cond) {
		if !r.Aliasing().MayAlias(v, plain(source.AccessPath())) {
			continue
		}
		postdom := r.mgr.ICFG().PostdominatorOf(stmt)
		top, hasTop := source.TopPostdominator()
		if postdom.IsMethodExit() && hasTop && top.Stmt != nil && top.Stmt.Method() == stmt.Method() {
			continue
		}
		if abs := source.DeriveConditionalAbstractionEnter(postdom, stmt); abs != nil {
			res = append(res, abs)
		}
		break
	}
	return res
}

// CallFlow enters the callees called under a tainted condition with an empty access path
func (r *ImplicitRule) CallFlow(d1, source *data.Abstraction, stmt ir.Stmt, _ *ir.Method,
	k *KillFlags) []*data.Abstraction {
	if source.IsZero() {
		return nil
	}
	if r.leaveConditional(stmt, source, k); k.KillAll {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// explicit flows are not tracked in callees whose implicit flows are already tracked
	if contexts, ok := r.implicitTargets[stmt]; ok && (d1 == nil || contexts.Contains(d1)) {
		k.KillAll = true
		return nil
	}
	if source.AccessPath().IsEmpty() {
		if d1 != nil {
			contexts, ok := r.implicitTargets[stmt]
			if !ok {
				contexts = data.NewAbstractionSet()
				r.implicitTargets[stmt] = contexts
			}
			contexts.Add(d1)
		}
		if abs := source.DeriveConditionalAbstractionCall(stmt); abs != nil {
			return []*data.Abstraction{abs}
		}
		return nil
	}
	if _, ok := source.TopPostdominator(); ok {
		k.KillAll = true
	}
	return nil
}

// CallToReturnFlow reports the calls to sinks under tainted conditions and taints the results of calls made
// under tainted conditions
func (r *ImplicitRule) CallToReturnFlow(d1, source *data.Abstraction, stmt ir.Stmt,
	k *KillFlags) []*data.Abstraction {
	if source.IsZero() {
		return nil
	}
	if r.leaveConditional(stmt, source, k); k.KillAll {
		return nil
	}
	_, hasTop := source.TopPostdominator()
	ssm := r.mgr.SourceSinkManager()
	if source.IsAbstractionActive() && ssm != nil {
		report := source.AccessPath().IsEmpty() || hasTop
		if !report {
			// a tainted receiver makes the calls on this conditional as well
			m := r.mgr.ICFG().MethodOf(stmt)
			if body := m.Body(); body != nil && body.This != nil && source.AccessPath().FirstField() == nil &&
				r.Aliasing().MayAlias(body.This, plain(source.AccessPath())) {
				report = true
			}
		}
		if report {
			if info := ssm.SinkInfo(stmt, r.mgr, nil); info != nil {
				r.Results().AddResult(data.NewAbstractionAtSink(info.Definitions, source, stmt))
			}
		}
	}

	assign, ok := stmt.(*ir.AssignStmt)
	if !ok {
		return nil
	}
	top, _ := source.TopPostdominator()
	implicitTaint := (hasTop && top.Stmt != nil) || source.AccessPath().IsEmpty()
	if !implicitTaint {
		return nil
	}
	// locals assigned in conditionally called methods are not visible in the caller
	_, isField := assign.Left.(*ir.InstanceFieldRef)
	_, isStatic := assign.Left.(*ir.StaticFieldRef)
	if (d1 == nil || d1.AccessPath().IsEmpty()) && !isField && !isStatic {
		return nil
	}
	ap := r.mgr.AccessPathFactory().CreateAccessPath(assign.Left, true)
	if abs := source.DeriveNewAbstractionImplicit(ap, stmt, true); abs != nil {
		return []*data.Abstraction{abs}
	}
	return nil
}

// ReturnFlow taints the result of a conditionally called method that returns a constant, and drops the empty
// access paths at the method exit
func (r *ImplicitRule) ReturnFlow(callerD1s []*data.Abstraction, _, source *data.Abstraction, exit, _,
	callSite ir.Stmt, k *KillFlags) []*data.Abstraction {
	if source.IsZero() || !source.AccessPath().IsEmpty() {
		return nil
	}
	callerD1sConditional := false
	for _, d1 := range callerD1s {
		if d1.AccessPath().IsEmpty() {
			callerD1sConditional = true
			break
		}
	}
	ret, isReturn := exit.(*ir.ReturnStmt)
	assign, isAssign := callSite.(*ir.AssignStmt)
	if isReturn && isAssign {
		if _, isConst := ret.Op.(*ir.Constant); isConst {
			ap := r.mgr.AccessPathFactory().CopyWithNewValue(source.AccessPath(), assign.Left)
			abs := source.DeriveNewAbstraction(ap, exit)
			if abs == nil {
				return nil
			}
			res := data.NewAbstractionSet(abs)
			if aliasing.CanHaveAliases(assign, assign.Left, abs) && !callerD1sConditional {
				for _, d1 := range callerD1s {
					r.Aliasing().ComputeAliases(d1, callSite, assign.Left, res, r.mgr.ICFG().MethodOf(callSite), abs)
				}
			}
			return res.Items()
		}
	}
	k.KillAll = true
	return nil
}
