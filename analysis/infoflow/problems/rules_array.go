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
	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/aliasing"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// ArrayRule propagates taints through array lengths, array reads and array allocations
type ArrayRule struct {
	RuleBase
}

// NormalFlow handles n = len(a), y = a[i] and a = new T[n]
func (r *ArrayRule) NormalFlow(d1, source *data.Abstraction, stmt, _ ir.Stmt, _ *KillFlags) []*data.Abstraction {
	assign, ok := stmt.(*ir.AssignStmt)
	if !ok || source.IsZero() {
		return nil
	}
	ap := source.AccessPath()
	apf := r.mgr.AccessPathFactory()
	var newAbs *data.Abstraction

	switch right := assign.Right.(type) {
	case *ir.LengthExpr:
		if r.Aliasing().MayAlias(plain(ap), right.Op) {
			// only the contents are tainted
			if ap.ArrayTaintType() == data.Contents {
				return nil
			}
			lengthAP := apf.CreateAccessPathWithType(assign.Left, ir.Int, true, data.ContentsAndLength)
			newAbs = source.DeriveNewAbstraction(lengthAP, stmt)
		}
	case *ir.ArrayRef:
		if ap.ArrayTaintType() == data.Length {
			return nil
		}
		if r.Aliasing().MayAlias(right.Base, plain(ap)) {
			// one level of array typing is removed: T[][] becomes T[]
			var elem *ir.Type
			if t := ap.BaseType(); t != nil && t.IsArray() {
				elem = t.Elem()
			}
			elemAP := apf.CopyWithNewValueArray(ap, assign.Left, elem, false, ap.ArrayTaintType())
			newAbs = source.DeriveNewAbstraction(elemAP, stmt)
		} else if isPlain(right.Index, ap) && r.mgr.Config.ImplicitFlowMode != config.ImplicitNone {
			indexAP := apf.CopyWithNewValueArray(ap, assign.Left, nil, false, data.ContentsAndLength)
			newAbs = source.DeriveNewAbstraction(indexAP, stmt)
		}
	case *ir.NewArrayExpr:
		if r.Aliasing().MayAlias(plain(ap), right.Size) {
			sizeAP := apf.CopyWithNewValueArray(ap, assign.Left, nil, false, data.Length)
			newAbs = source.DeriveNewAbstraction(sizeAP, stmt)
		}
	}
	if newAbs == nil {
		return nil
	}
	res := data.NewAbstractionSet(newAbs)
	if aliasing.CanHaveAliases(stmt, assign.Left, newAbs) {
		r.Aliasing().ComputeAliases(d1, stmt, assign.Left, res, r.mgr.ICFG().MethodOf(stmt), newAbs)
	}
	return res.Items()
}

// ExceptionRule propagates taints through thrown and caught exceptions
type ExceptionRule struct {
	RuleBase
}

// NormalFlow binds a thrown taint to the local of the handler that catches it, and marks the taint of a thrown
// value as thrown
func (r *ExceptionRule) NormalFlow(_, source *data.Abstraction, stmt, _ ir.Stmt, k *KillFlags) []*data.Abstraction {
	if source.IsZero() {
		return nil
	}
	if source.ExceptionThrown() {
		if id, ok := stmt.(*ir.IdentityStmt); ok {
			if _, ok := id.Right.(*ir.CaughtExceptionRef); ok {
				k.KillSource = true
				ap := r.mgr.AccessPathFactory().CopyWithNewValue(source.AccessPath(), id.Left)
				if ap == nil {
					return nil
				}
				if abs := source.DeriveNewAbstractionOnCatch(ap); abs != nil {
					return []*data.Abstraction{abs}
				}
				return nil
			}
		}
	}
	if throw, ok := stmt.(*ir.ThrowStmt); ok && r.Aliasing().MayAlias(throw.Op, plain(source.AccessPath())) {
		k.KillSource = true
		return []*data.Abstraction{source.DeriveNewAbstractionOnThrow(stmt)}
	}
	return nil
}

// ReturnFlow returns a thrown taint to the handler of the caller
func (r *ExceptionRule) ReturnFlow(_ []*data.Abstraction, _, source *data.Abstraction, exit, returnSite, _ ir.Stmt,
	_ *KillFlags) []*data.Abstraction {
	throw, ok := exit.(*ir.ThrowStmt)
	if !ok || !isExceptionHandler(returnSite) || source.IsZero() {
		return nil
	}
	if r.Aliasing().MayAlias(throw.Op, plain(source.AccessPath())) {
		return []*data.Abstraction{source.DeriveNewAbstractionOnThrow(throw)}
	}
	return nil
}
