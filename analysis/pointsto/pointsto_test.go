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
	"testing"

	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

type testProgram struct {
	p                         *ir.Program
	f, s                      *ir.Field
	a1, a2, a3, b, x, r, y, z *ir.Local
	lib                       *ir.Local
	libCall                   ir.Stmt
	param                     *ir.Local
	entryParam                *ir.Local
}

func buildProgram() testProgram {
	p := ir.NewProgram()
	bClass := p.AddClass("app.B", nil)
	aClass := p.AddClass("app.A", nil)
	f := aClass.AddField("f", bClass.Type(), false)
	s := aClass.AddField("S", aClass.Type(), true)
	libClass := p.AddClass("lib.Factory", nil)
	libClass.Library = true
	makeB := libClass.AddMethod("make", nil, bClass.Type(), true)

	main := p.AddClass("app.Main", nil)
	id := main.AddMethod("id", []*ir.Type{aClass.Type()}, aClass.Type(), true)
	ib := ir.NewBodyBuilder(id)
	param := ib.Param(0, "p")
	ib.Return(param)
	ib.Finish()

	handler := main.AddMethod("handle", []*ir.Type{bClass.Type()}, ir.Void, true)
	hb := ir.NewBodyBuilder(handler)
	entryParam := hb.Param(0, "req")
	hb.ReturnVoid()
	hb.Finish()

	run := main.AddMethod("run", nil, ir.Void, true)
	b := ir.NewBodyBuilder(run)
	tp := testProgram{p: p, f: f, s: s, param: param, entryParam: entryParam}
	tp.a1 = b.Local("a1", aClass.Type())
	tp.a2 = b.Local("a2", aClass.Type())
	tp.a3 = b.Local("a3", aClass.Type())
	tp.b = b.Local("b", bClass.Type())
	tp.x = b.Local("x", bClass.Type())
	tp.r = b.Local("r", aClass.Type())
	tp.y = b.Local("y", bClass.Type())
	tp.z = b.Local("z", aClass.Type())
	tp.lib = b.Local("lib", bClass.Type())
	arr := b.Local("arr", ir.ArrayOf(bClass.Type()))

	b.Assign(tp.a1, ir.NewObject(aClass.Type()))
	b.Assign(tp.a2, ir.NewObject(aClass.Type()))
	b.Assign(tp.b, ir.NewObject(bClass.Type()))
	b.Assign(ir.FieldRef(tp.a1, f), tp.b)
	b.Assign(tp.x, ir.FieldRef(tp.a1, f))
	b.Assign(tp.a3, tp.a1)
	b.Assign(tp.r, ir.NewStaticInvoke(id, tp.a2))
	b.Assign(arr, ir.NewArray(bClass.Type(), ir.IntConstant(1)))
	b.Assign(ir.ArrayElem(arr, ir.IntConstant(0)), tp.b)
	b.Assign(tp.y, ir.ArrayElem(arr, ir.IntConstant(0)))
	b.Assign(ir.StaticRef(s), tp.a1)
	b.Assign(tp.z, ir.StaticRef(s))
	tp.libCall = b.Assign(tp.lib, ir.NewStaticInvoke(makeB))
	b.ReturnVoid()
	b.Finish()
	return tp
}

func TestMayAlias(t *testing.T) {
	tp := buildProgram()
	res := Analyze(tp.p, nil, nil)

	tests := []struct {
		name   string
		l1, l2 *ir.Local
		want   bool
	}{
		{"copy", tp.a1, tp.a3, true},
		{"distinct allocations", tp.a1, tp.a2, false},
		{"field load", tp.x, tp.b, true},
		{"call return", tp.r, tp.a2, true},
		{"call return other", tp.r, tp.a1, false},
		{"parameter", tp.param, tp.a2, true},
		{"array element", tp.y, tp.b, true},
		{"static field", tp.z, tp.a1, true},
		{"static field other", tp.z, tp.a2, false},
		{"library result", tp.lib, tp.b, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := res.MayAlias(tt.l1, tt.l2); got != tt.want {
				t.Errorf("MayAlias(%s, %s) = %v, want %v", tt.l1, tt.l2, got, tt.want)
			}
		})
	}
}

func TestFieldSensitivity(t *testing.T) {
	tp := buildProgram()
	res := Analyze(tp.p, nil, nil)

	if !res.MayAliasPaths(tp.a1, []*ir.Field{tp.f}, tp.b, nil) {
		t.Errorf("a1.f should alias b")
	}
	if !res.MayAliasPaths(tp.a3, []*ir.Field{tp.f}, tp.x, nil) {
		t.Errorf("a3.f should alias x through a1")
	}
	if res.MayAliasPaths(tp.a2, []*ir.Field{tp.f}, tp.b, nil) {
		t.Errorf("a2.f is never written")
	}
	if got := res.PointsToPath(nil, []*ir.Field{tp.s, tp.f}); len(got) != 1 {
		t.Errorf("A.S.f should point to the object of b, got %v", got)
	}
	objs := res.PointsTo(tp.a1)
	if len(objs) != 1 {
		t.Fatalf("a1 should point to one object, got %v", objs)
	}
	if got := res.FieldPointsTo(objs[0], tp.f); len(got) != 1 || got[0] != res.PointsTo(tp.b)[0] {
		t.Errorf("unexpected field points-to set %v", got)
	}
}

func TestSyntheticObjects(t *testing.T) {
	tp := buildProgram()
	res := Analyze(tp.p, nil, nil)

	libObjs := res.PointsTo(tp.lib)
	if len(libObjs) != 1 || libObjs[0].Site != tp.libCall {
		t.Errorf("the library result should be allocated at the call, got %v", libObjs)
	}
	entry := res.PointsTo(tp.entryParam)
	if len(entry) != 1 || entry[0].Site != nil || entry[0].Label == "" {
		t.Errorf("parameters of methods without callers point to an entry object, got %v", entry)
	}
	if len(res.PointsTo(tp.param)) != 1 {
		t.Errorf("parameters of called methods only point to their arguments")
	}
}

func TestMayAliasValues(t *testing.T) {
	tp := buildProgram()
	res := Analyze(tp.p, nil, nil)

	if !res.MayAliasValues(ir.FieldRef(tp.a3, tp.f), tp.x) {
		t.Errorf("a3.f should alias x")
	}
	if !res.MayAliasValues(ir.StaticRef(tp.s), tp.a3) {
		t.Errorf("A.S should alias a3")
	}
	if res.MayAliasValues(ir.FieldRef(tp.a2, tp.f), tp.b) {
		t.Errorf("a2.f is never written")
	}
	if res.MayAliasValues(ir.IntConstant(1), tp.b) {
		t.Errorf("constants never alias")
	}
	if got := res.PointsToValue(tp.a1); len(got) != 1 {
		t.Errorf("a1 should point to one object, got %v", got)
	}
}
