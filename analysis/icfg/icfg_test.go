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

package icfg

import (
	"testing"

	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

type testProgram struct {
	p       *ir.Program
	main    *ir.Method
	helper  *ir.Method
	leaf    *ir.Method
	call    ir.Stmt
	field   *ir.Field
	virtual ir.Stmt
	impls   []*ir.Method
}

// buildProgram builds main -> helper -> leaf, where leaf reads a static field, and a virtual call in main
// on an interface with two implementations.
func buildProgram() testProgram {
	p := ir.NewProgram()
	c := p.AddClass("example.Main", nil)
	f := c.AddField("counter", ir.Int, true)
	itf := p.AddInterface("example.Runner")
	run := itf.AddMethod("run", nil, ir.Void, false)
	var impls []*ir.Method
	for _, name := range []string{"example.R1", "example.R2"} {
		rc := p.AddClass(name, nil)
		p.Implement(rc, itf)
		m := rc.AddMethod("run", nil, ir.Void, false)
		ir.NewBodyBuilder(m).Finish()
		impls = append(impls, m)
	}

	leaf := c.AddMethod("leaf", nil, ir.Int, true)
	lb := ir.NewBodyBuilder(leaf)
	x := lb.Local("x", ir.Int)
	lb.Assign(x, ir.StaticRef(f))
	lb.Return(x)
	lb.Finish()

	helper := c.AddMethod("helper", nil, ir.Int, true)
	hb := ir.NewBodyBuilder(helper)
	y := hb.Local("y", ir.Int)
	hb.Assign(y, ir.NewStaticInvoke(leaf))
	hb.Return(y)
	hb.Finish()

	main := c.AddMethod("main", []*ir.Type{itf.Type()}, ir.Void, true)
	mb := ir.NewBodyBuilder(main)
	r := mb.Param(0, "r")
	z := mb.Local("z", ir.Int)
	call := mb.Assign(z, ir.NewStaticInvoke(helper))
	virtual := mb.Invoke(ir.NewInterfaceInvoke(r, run))
	mb.Assign(ir.StaticRef(f), z)
	mb.ReturnVoid()
	mb.Finish()
	return testProgram{p: p, main: main, helper: helper, leaf: leaf, call: call, field: f, virtual: virtual,
		impls: impls}
}

func TestCallGraphCHA(t *testing.T) {
	tp := buildProgram()
	cg := BuildCHA(tp.p)
	callees := cg.Callees(tp.virtual)
	if len(callees) != 2 {
		t.Fatalf("interface call should have 2 callees, got %v", callees)
	}
	for _, impl := range tp.impls {
		found := false
		for _, c := range callees {
			found = found || c == impl
		}
		if !found {
			t.Errorf("missing callee %s", impl)
		}
	}
	if callers := cg.Callers(tp.helper); len(callers) != 1 || callers[0] != tp.call {
		t.Errorf("helper should be called once from main, got %v", callers)
	}
	if cg.Size() != 4 {
		t.Errorf("expected 4 call edges, got %d", cg.Size())
	}
}

func TestStaticFieldUsage(t *testing.T) {
	tp := buildProgram()
	g, err := New(tp.p, nil)
	if err != nil {
		t.Fatalf("could not build icfg: %v", err)
	}
	defer g.Close()
	if !g.IsStaticFieldRead(tp.helper, tp.field) {
		t.Errorf("helper transitively reads the field")
	}
	if !g.IsStaticFieldRead(tp.leaf, tp.field) {
		t.Errorf("leaf reads the field")
	}
	if g.IsStaticFieldRead(tp.impls[0], tp.field) {
		t.Errorf("R1.run does not read the field")
	}
	if !g.IsStaticFieldUsed(tp.main, tp.field) {
		t.Errorf("main writes the field")
	}
}

func TestMethodReadsWritesValue(t *testing.T) {
	tp := buildProgram()
	g, err := New(tp.p, nil)
	if err != nil {
		t.Fatalf("could not build icfg: %v", err)
	}
	defer g.Close()
	r := tp.main.Body().ParamLocal(0)
	z := ir.DefinedValue(tp.call)
	if !g.MethodReadsValue(tp.main, r) {
		t.Errorf("main reads r")
	}
	// parameter binding is not a write
	if g.MethodWritesValue(tp.main, r) {
		t.Errorf("main does not write r")
	}
	if !g.MethodWritesValue(tp.main, z) || !g.MethodReadsValue(tp.main, z) {
		t.Errorf("main reads and writes z")
	}
	// second query is served from the cache
	if !g.MethodWritesValue(tp.main, z) {
		t.Errorf("cached answer differs")
	}
}

func TestBackwards(t *testing.T) {
	tp := buildProgram()
	g, err := New(tp.p, nil)
	if err != nil {
		t.Fatalf("could not build icfg: %v", err)
	}
	defer g.Close()
	b := Backwards(g)
	body := tp.main.Body()
	ret := body.Stmts[len(body.Stmts)-1]
	if sp := b.StartPointsOf(tp.main); len(sp) != 1 || sp[0] != ret {
		t.Errorf("backward start point should be the return, got %v", sp)
	}
	if !b.IsStartPoint(ret) || b.IsExitStmt(ret) {
		t.Errorf("return is the backward start point")
	}
	if !b.IsExitStmt(body.Stmts[0]) {
		t.Errorf("first statement is the backward exit")
	}
	succs := b.SuccsOf(tp.virtual)
	if len(succs) != 1 || succs[0] != tp.call {
		t.Errorf("backward successor of the virtual call should be the helper call, got %v", succs)
	}
	if rs := b.ReturnSitesOfCallAt(tp.virtual); len(rs) != 1 || rs[0] != tp.call {
		t.Errorf("backward return site should be the predecessor, got %v", rs)
	}
	if b.Forward() != g {
		t.Errorf("forward view should be the base graph")
	}
}

func TestPostdominators(t *testing.T) {
	p := ir.NewProgram()
	c := p.AddClass("example.P", nil)
	m := c.AddMethod("f", []*ir.Type{ir.Int}, ir.Int, true)
	b := ir.NewBodyBuilder(m)
	x := b.Param(0, "x")
	y := b.Local("y", ir.Int)
	cond := b.If(ir.NewBinop("<", x, ir.IntConstant(0), ir.Bool), nil)
	thenAssign := b.Assign(y, ir.IntConstant(1))
	jump := b.Goto(nil)
	cond.Target = b.Assign(y, ir.IntConstant(2))
	ret := b.Return(y)
	jump.Target = ret
	b.Finish()

	g, err := New(p, nil)
	if err != nil {
		t.Fatalf("could not build icfg: %v", err)
	}
	defer g.Close()
	if pd := g.PostdominatorOf(cond); pd.Stmt != ret {
		t.Errorf("the join point should postdominate the branch, got %v", pd)
	}
	if pd := g.PostdominatorOf(thenAssign); pd.Stmt != jump {
		t.Errorf("the goto should postdominate the assignment, got %v", pd)
	}
	if pd := g.PostdominatorOf(ret); !pd.IsMethodExit() || pd.Method != m {
		t.Errorf("the return is postdominated by the method exit, got %v", pd)
	}
}
