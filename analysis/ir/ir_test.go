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

import "testing"

func TestBodyControlFlow(t *testing.T) {
	p := NewProgram()
	c := p.AddClass("example.A", nil)
	m := c.AddMethod("f", []*Type{Int}, Int, true)
	b := NewBodyBuilder(m)
	x := b.Param(0, "x")
	y := b.Local("y", Int)
	cond := b.If(NewBinop("<", x, IntConstant(0), Bool), nil)
	b.Assign(y, IntConstant(1))
	jump := b.Goto(nil)
	cond.Target = b.Assign(y, IntConstant(2))
	jump.Target = b.Return(y)
	body := b.Finish()

	if !m.HasBody() || m.Body() != body {
		t.Fatalf("method should have the body")
	}
	if n := len(body.Succs(cond)); n != 2 {
		t.Errorf("if should have 2 successors, got %d", n)
	}
	ret := body.Stmts[len(body.Stmts)-1]
	if n := len(body.Preds(ret)); n != 2 {
		t.Errorf("return should have 2 predecessors, got %d", n)
	}
	if tails := body.Tails(); len(tails) != 1 || tails[0] != ret {
		t.Errorf("the only tail should be the return, got %v", tails)
	}
	if body.ParamIndex(x) != 0 || body.ParamLocal(0) != x {
		t.Errorf("x should be bound to the first parameter")
	}
	if m.Signature() != "<example.A: int f(int)>" {
		t.Errorf("unexpected signature %s", m.Signature())
	}
}

func TestExceptionalSuccessors(t *testing.T) {
	p := NewProgram()
	exc := p.AddClass("errors.Failure", nil)
	c := p.AddClass("example.B", nil)
	callee := c.AddMethod("g", nil, Void, true)
	m := c.AddMethod("f", nil, Void, true)
	b := NewBodyBuilder(m)
	e := b.Local("e", exc.Type())
	call := b.Invoke(NewStaticInvoke(callee))
	throw := b.Throw(e)
	end := b.ReturnVoid()
	handler := b.Catch(e)
	b.Goto(end)
	b.Trap(call, handler, handler, exc.Type())
	body := b.Finish()

	if succs := body.Succs(call); len(succs) != 2 {
		t.Errorf("call in trap should have the handler as successor, got %v", succs)
	}
	if succs := body.Succs(throw); len(succs) != 1 || succs[0] != handler {
		t.Errorf("throw in trap should go to the handler, got %v", succs)
	}
	if body.IsTail(throw) {
		t.Errorf("caught throw should not be a tail")
	}
}

func TestSubtyping(t *testing.T) {
	p := NewProgram()
	itf := p.AddInterface("maps.Map")
	hm := p.AddClass("maps.HashMap", nil)
	p.Implement(hm, itf)
	lhm := p.AddClass("maps.LinkedHashMap", hm)

	if !p.IsSubtype(lhm.Type(), itf.Type()) {
		t.Errorf("LinkedHashMap should be a Map")
	}
	if p.IsSubtype(itf.Type(), hm.Type()) {
		t.Errorf("Map should not be a HashMap")
	}
	if !p.IsSubtype(ArrayOf(lhm.Type()), ArrayOf(hm.Type())) {
		t.Errorf("arrays should be covariant")
	}
	if p.IsSubtype(ArrayOf(Int), ArrayOf(Byte)) {
		t.Errorf("primitive arrays are invariant")
	}
	if !p.IsSubtype(String, Object) || !p.IsSubtype(Null, hm.Type()) {
		t.Errorf("strings and null are objects")
	}
	if got := len(p.SubtypesOf(itf)); got != 3 {
		t.Errorf("Map should have 3 subtypes including itself, got %d", got)
	}
}

func TestGoTypeNames(t *testing.T) {
	p := NewProgram()
	if p.Class(ObjectClassName) == nil || Object.Name() != "any" {
		t.Errorf("the root class should be any, got %s", Object)
	}
	c := p.AddClass("net/http.Request", nil)
	m := c.AddMethod("Equal", []*Type{Object, ArrayOf(Byte)}, Bool, false)
	if m.SubSignature() != "bool Equal(any,byte[])" {
		t.Errorf("unexpected sub-signature %s", m.SubSignature())
	}
	if String.Name() != "string" || RefType("string") != String || Float.Name() != "float64" {
		t.Errorf("unexpected basic type names %s %s", String, Float)
	}
	if c.IsSystem() {
		t.Errorf("only library classes are system classes")
	}
	c.Library = true
	if !c.IsSystem() {
		t.Errorf("library class should be a system class")
	}
}
