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

package ir

import "fmt"

// BodyBuilder appends statements to the body of a method. Jump targets that are not yet known can be set on the
// returned statements before calling Finish.
type BodyBuilder struct {
	body  *Body
	traps []trapSpec
	line  int
}

type trapSpec struct {
	begin, end Stmt
	handler    Stmt
	exception  *Type
}

// NewBodyBuilder starts the body of m. If m is an instance method, the receiver local "this" is bound.
func NewBodyBuilder(m *Method) *BodyBuilder {
	b := &BodyBuilder{body: &Body{Method: m, Params: make([]*Local, len(m.ParamTypes))}}
	if !m.Static {
		this := b.Local("this", m.Class.Type())
		b.body.This = this
		b.add(&IdentityStmt{Left: this, Right: &ThisRef{typ: m.Class.Type()}})
	}
	return b
}

// Local declares a new local
func (b *BodyBuilder) Local(name string, t *Type) *Local {
	l := &Local{id: newID(), Name: name, typ: t, method: b.body.Method}
	b.body.Locals = append(b.body.Locals, l)
	return l
}

// Param declares the local bound to the i-th parameter
func (b *BodyBuilder) Param(i int, name string) *Local {
	m := b.body.Method
	if i < 0 || i >= len(m.ParamTypes) {
		panic(fmt.Sprintf("parameter %d out of range for %s", i, m))
	}
	l := b.Local(name, m.ParamTypes[i])
	b.body.Params[i] = l
	b.add(&IdentityStmt{Left: l, Right: &ParameterRef{Index: i, typ: m.ParamTypes[i]}})
	return l
}

// This returns the receiver local, nil for static methods
func (b *BodyBuilder) This() *Local { return b.body.This }

// SetLine sets the source line of the statements added next
func (b *BodyBuilder) SetLine(line int) { b.line = line }

func (b *BodyBuilder) add(s Stmt) Stmt {
	base := s.base()
	base.method = b.body.Method
	base.index = len(b.body.Stmts)
	base.line = b.line
	b.body.Stmts = append(b.body.Stmts, s)
	return s
}

// Assign appends left = right
func (b *BodyBuilder) Assign(left, right Value) *AssignStmt {
	return b.add(&AssignStmt{Left: left, Right: right}).(*AssignStmt)
}

// Invoke appends an invocation whose result is discarded
func (b *BodyBuilder) Invoke(e *InvokeExpr) *InvokeStmt {
	return b.add(&InvokeStmt{Invoke: e}).(*InvokeStmt)
}

// Return appends return v
func (b *BodyBuilder) Return(v Value) *ReturnStmt {
	return b.add(&ReturnStmt{Op: v}).(*ReturnStmt)
}

// ReturnVoid appends return
func (b *BodyBuilder) ReturnVoid() *ReturnVoidStmt {
	return b.add(&ReturnVoidStmt{}).(*ReturnVoidStmt)
}

// If appends a conditional jump. target may be nil and set later.
func (b *BodyBuilder) If(cond Value, target Stmt) *IfStmt {
	return b.add(&IfStmt{Cond: cond, Target: target}).(*IfStmt)
}

// Goto appends an unconditional jump. target may be nil and set later.
func (b *BodyBuilder) Goto(target Stmt) *GotoStmt {
	return b.add(&GotoStmt{Target: target}).(*GotoStmt)
}

// Switch appends a multi-way jump
func (b *BodyBuilder) Switch(key Value, targets []Stmt, def Stmt) *SwitchStmt {
	return b.add(&SwitchStmt{Key: key, Targets: targets, Default: def}).(*SwitchStmt)
}

// Throw appends throw v
func (b *BodyBuilder) Throw(v Value) *ThrowStmt {
	return b.add(&ThrowStmt{Op: v}).(*ThrowStmt)
}

// Nop appends a statement that does nothing
func (b *BodyBuilder) Nop() *NopStmt {
	return b.add(&NopStmt{}).(*NopStmt)
}

// Catch appends the identity statement binding l to the caught exception. It is the first statement of a handler.
func (b *BodyBuilder) Catch(l *Local) *IdentityStmt {
	return b.add(&IdentityStmt{Left: l, Right: &CaughtExceptionRef{typ: l.Type()}}).(*IdentityStmt)
}

// Trap registers an exception handler for the statements from begin (inclusive) to end (exclusive).
// A nil end means until the handler.
func (b *BodyBuilder) Trap(begin, end, handler Stmt, exception *Type) {
	b.traps = append(b.traps, trapSpec{begin: begin, end: end, handler: handler, exception: exception})
}

// Finish sets the body of the method and computes its control flow graph.
func (b *BodyBuilder) Finish() *Body {
	if len(b.body.Stmts) == 0 {
		b.ReturnVoid()
	}
	for _, s := range b.body.Stmts {
		switch x := s.(type) {
		case *IfStmt:
			if x.Target == nil {
				panic(fmt.Sprintf("if without target in %s", b.body.Method))
			}
		case *GotoStmt:
			if x.Target == nil {
				panic(fmt.Sprintf("goto without target in %s", b.body.Method))
			}
		}
	}
	for _, t := range b.traps {
		end := t.handler.Index()
		if t.end != nil {
			end = t.end.Index()
		}
		b.body.Traps = append(b.body.Traps,
			&Trap{Begin: t.begin.Index(), End: end, Handler: t.handler, Exception: t.exception})
	}
	b.body.computeCFG()
	b.body.Method.body = b.body
	return b.body
}

// FieldRef returns base.f
func FieldRef(base *Local, f *Field) *InstanceFieldRef {
	return &InstanceFieldRef{Base: base, Field: f}
}

// StaticRef returns the reference to the static field f
func StaticRef(f *Field) *StaticFieldRef { return &StaticFieldRef{Field: f} }

// ArrayElem returns base[index]
func ArrayElem(base *Local, index Value) *ArrayRef { return &ArrayRef{Base: base, Index: index} }

// Length returns lengthof op
func Length(op Value) *LengthExpr { return &LengthExpr{Op: op} }

// NewArray returns the allocation of an array of size elements of type elem
func NewArray(elem *Type, size Value) *NewArrayExpr { return &NewArrayExpr{Elem: elem, Size: size} }

// InstanceOf returns op instanceof t
func InstanceOf(op Value, t *Type) *InstanceOfExpr { return &InstanceOfExpr{Op: op, Check: t} }
