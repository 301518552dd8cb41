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

package pointsto

import (
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// This file generates the constraints of the method bodies.

func (a *analysis) generate() {
	for _, m := range a.program.Methods() {
		if !m.HasBody() {
			continue
		}
		if len(a.cg.Callers(m)) == 0 {
			a.genEntry(m)
		}
		for _, s := range m.Body().Stmts {
			a.genStmt(s)
		}
	}
}

// genEntry binds the receiver and reference parameters of a method without callers to synthetic objects
func (a *analysis) genEntry(m *ir.Method) {
	body := m.Body()
	if body.This != nil {
		a.addressOf(a.localNode(body.This), a.newObject(nil, body.This.Type(), "this of "+m.Signature()))
	}
	for _, p := range body.Params {
		if p != nil && isPointerLike(p.Type()) {
			a.addressOf(a.localNode(p), a.newObject(nil, p.Type(), "param "+p.Name+" of "+m.Signature()))
		}
	}
}

func isPointerLike(t *ir.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind() {
	case ir.ReferenceKind, ir.ArrayKind, ir.UnknownKind:
		return true
	}
	return false
}

func (a *analysis) genStmt(s ir.Stmt) {
	switch x := s.(type) {
	case *ir.AssignStmt:
		a.genAssign(s, x.Left, x.Right)
	case *ir.IdentityStmt:
		if _, ok := x.Right.(*ir.CaughtExceptionRef); ok {
			a.addCopy(a.localNode(x.Left), a.exception)
		}
	case *ir.InvokeStmt:
		a.genCall(s, x.Invoke, -1)
	case *ir.ReturnStmt:
		if l, ok := x.Op.(*ir.Local); ok {
			a.addCopy(a.returnNode(s.Method()), a.localNode(l))
		}
	case *ir.ThrowStmt:
		if l, ok := x.Op.(*ir.Local); ok {
			a.addCopy(a.exception, a.localNode(l))
		}
	}
}

func (a *analysis) genAssign(s ir.Stmt, left, right ir.Value) {
	switch l := left.(type) {
	case *ir.Local:
		a.genValue(s, a.localNode(l), right)
	case *ir.StaticFieldRef:
		a.genValue(s, a.staticNode(l.Field), right)
	case *ir.InstanceFieldRef:
		a.addStore(a.localNode(l.Base), l.Field, a.operand(s, right))
	case *ir.ArrayRef:
		a.addStore(a.localNode(l.Base), nil, a.operand(s, right))
	}
}

// operand returns the node holding the value; values other than locals are evaluated into a fresh node
func (a *analysis) operand(s ir.Stmt, v ir.Value) NodeID {
	if l, ok := v.(*ir.Local); ok {
		return a.localNode(l)
	}
	tmp := a.newNode()
	a.genValue(s, tmp, v)
	return tmp
}

// genValue generates the constraints of dst = v
func (a *analysis) genValue(s ir.Stmt, dst NodeID, v ir.Value) {
	switch x := v.(type) {
	case *ir.Local:
		a.addCopy(dst, a.localNode(x))
	case *ir.CastExpr:
		a.genValue(s, dst, x.Op)
	case *ir.PhiExpr:
		for _, arg := range x.Args {
			a.genValue(s, dst, arg)
		}
	case *ir.NewExpr:
		a.addressOf(dst, a.newObject(s, x.Type(), ""))
	case *ir.NewArrayExpr:
		a.addressOf(dst, a.newObject(s, x.Type(), ""))
	case *ir.InstanceFieldRef:
		a.addLoad(dst, a.localNode(x.Base), x.Field)
	case *ir.ArrayRef:
		a.addLoad(dst, a.localNode(x.Base), nil)
	case *ir.StaticFieldRef:
		a.addCopy(dst, a.staticNode(x.Field))
	case *ir.InvokeExpr:
		a.genCall(s, x, dst)
	}
}

// genCall binds the arguments to the parameters of the callees with bodies, and the return values to dst. A
// negative dst discards the result. Calls without analyzable callees allocate their reference result.
func (a *analysis) genCall(s ir.Stmt, ie *ir.InvokeExpr, dst NodeID) {
	analyzed := false
	for _, callee := range a.cg.Callees(s) {
		if !callee.HasBody() {
			continue
		}
		analyzed = true
		body := callee.Body()
		if ie.Base != nil && body.This != nil {
			a.addCopy(a.localNode(body.This), a.localNode(ie.Base))
		}
		for i, arg := range ie.Args {
			if i >= len(body.Params) || body.Params[i] == nil {
				continue
			}
			if l, ok := arg.(*ir.Local); ok {
				a.addCopy(a.localNode(body.Params[i]), a.localNode(l))
			}
		}
		if dst >= 0 {
			a.addCopy(dst, a.returnNode(callee))
		}
	}
	if !analyzed && dst >= 0 && isPointerLike(ie.Method.ReturnType) {
		a.addressOf(dst, a.newObject(s, ie.Method.ReturnType, ""))
	}
}

func (a *analysis) addressOf(dst NodeID, obj int) {
	a.addConstraint(&addrConstraint{dst: dst, obj: obj})
}

func (a *analysis) addCopy(dst, src NodeID) {
	if dst == src {
		return
	}
	a.addConstraint(&copyConstraint{dst: dst, src: src})
}

func (a *analysis) addLoad(dst, src NodeID, f *ir.Field) {
	a.addConstraint(&loadConstraint{field: f, dst: dst, src: src})
}

func (a *analysis) addStore(dst NodeID, f *ir.Field, src NodeID) {
	a.addConstraint(&storeConstraint{field: f, dst: dst, src: src})
}

func (a *analysis) addConstraint(c constraint) {
	a.constraints++
	a.logger.Tracef("constraint %s", c)
	switch x := c.(type) {
	case *addrConstraint:
		if a.nodes[x.dst].pts.Insert(x.obj) {
			a.work.Insert(int(x.dst))
		}
	case *copyConstraint:
		a.nodes[x.src].copyTo.Insert(int(x.dst))
	default:
		n := a.nodes[c.ptr()]
		n.complex = append(n.complex, c)
	}
}
