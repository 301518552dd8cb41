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

package aliasing

import (
	"testing"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/solver"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/analysis/pointsto"
)

type testEnv struct {
	icfg    icfg.ICFG
	apf     *data.AccessPathFactory
	aborted bool
}

func (e *testEnv) ICFG() icfg.ICFG                            { return e.icfg }
func (e *testEnv) AccessPathFactory() *data.AccessPathFactory { return e.apf }
func (e *testEnv) ForwardSolver() *solver.Solver              { return nil }
func (e *testEnv) IsAnalysisAborted() bool                    { return e.aborted }
func (e *testEnv) Logger() *config.LogGroup                   { return config.NewNopLogGroup() }

type fixture struct {
	p       *ir.Program
	env     *testEnv
	m       *ir.Method
	f, g    *ir.Field
	x, y, z *ir.Local
	o, q    *ir.Local
	n       *ir.Local
	s3      ir.Stmt
	join    ir.Stmt
	load    ir.Stmt
}

// newFixture builds
//
//	x = new A; y = x; z = new A; if n < 0 goto join; y = z; join: nop; q = o.f; return
func newFixture(t *testing.T) fixture {
	p := ir.NewProgram()
	bClass := p.AddClass("example.B", nil)
	aClass := p.AddClass("example.A", nil)
	f := aClass.AddField("f", bClass.Type(), false)
	g := bClass.AddField("g", ir.String, false)
	m := aClass.AddMethod("run", []*ir.Type{aClass.Type()}, ir.Void, true)
	b := ir.NewBodyBuilder(m)
	fx := fixture{p: p, m: m, f: f, g: g}
	fx.o = b.Param(0, "o")
	fx.x = b.Local("x", aClass.Type())
	fx.y = b.Local("y", aClass.Type())
	fx.z = b.Local("z", aClass.Type())
	fx.q = b.Local("q", bClass.Type())
	fx.n = b.Local("n", ir.Int)
	b.Assign(fx.x, ir.NewObject(aClass.Type()))
	b.Assign(fx.y, fx.x)
	fx.s3 = b.Assign(fx.z, ir.NewObject(aClass.Type()))
	cond := b.If(ir.NewBinop("<", fx.n, ir.IntConstant(0), ir.Bool), nil)
	b.Assign(fx.y, fx.z)
	fx.join = b.Nop()
	cond.Target = fx.join
	fx.load = b.Assign(fx.q, ir.FieldRef(fx.o, f))
	b.ReturnVoid()
	b.Finish()

	graph, err := icfg.New(p, icfg.BuildCHA(p))
	if err != nil {
		t.Fatalf("could not build the icfg: %v", err)
	}
	t.Cleanup(func() { graph.Close() })
	fx.env = &testEnv{icfg: graph, apf: data.NewAccessPathFactory(config.NewDefault().Options, p)}
	return fx
}

func (fx fixture) source(ap *data.AccessPath) *data.Abstraction {
	return data.ZeroAbstraction(true).NewSourceAbstraction(nil, ap, fx.load, nil, false, false)
}

func TestMustAlias(t *testing.T) {
	fx := newFixture(t)
	a := New(None{}, fx.env)

	if !a.MustAlias(fx.x, fx.y, fx.s3) {
		t.Errorf("y = x, so x and y must alias after the copy")
	}
	if a.MustAlias(fx.x, fx.z, fx.s3) {
		t.Errorf("z is not defined yet")
	}
	if a.MustAlias(fx.x, fx.y, fx.join) {
		t.Errorf("y may be z at the join point")
	}
	if a.MustAlias(fx.y, fx.z, fx.join) {
		t.Errorf("y may be x at the join point")
	}
	if !a.MustAlias(fx.x, fx.x, fx.join) {
		t.Errorf("a local always aliases itself")
	}
	if a.MustAlias(fx.n, fx.x, fx.join) {
		t.Errorf("primitives never alias")
	}

	a.ExcludeMethodFromMustAlias(fx.m)
	if a.MustAlias(fx.x, fx.y, fx.s3) {
		t.Errorf("excluded methods are not analyzed")
	}
	b := New(None{}, &testEnv{icfg: fx.env.icfg, apf: fx.env.apf, aborted: true})
	if b.MustAlias(fx.x, fx.y, fx.s3) {
		t.Errorf("no must-alias answer once the analysis is aborted")
	}
}

func TestMayAliasAP(t *testing.T) {
	fx := newFixture(t)
	a := New(None{}, fx.env)
	apf := fx.env.apf
	xf := apf.CreateAccessPathWithFields(fx.o, []data.Fragment{data.NewFragment(fx.f)}, false)
	xAll := apf.CreateAccessPath(fx.o, true)
	xOnly := apf.CreateAccessPath(fx.o, false)

	tests := []struct {
		name string
		ap   *data.AccessPath
		val  ir.Value
		want *data.AccessPath
	}{
		{"base local", xf, fx.o, xf},
		{"same field", xf, ir.FieldRef(fx.o, fx.f), xf},
		{"other local", xf, fx.y, nil},
		{"constant", xf, ir.IntConstant(1), nil},
		{"sub fields", xAll, ir.FieldRef(fx.o, fx.f), xAll},
		{"no sub fields", xOnly, ir.FieldRef(fx.o, fx.f), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.MayAliasAP(tt.ap, tt.val); got != tt.want {
				t.Errorf("MayAliasAP(%s, %s) = %v, want %v", tt.ap, tt.val, got, tt.want)
			}
		})
	}
	if a.MayAlias(fx.x, fx.y) {
		t.Errorf("non-interactive strategies only alias equal values")
	}
	if !a.MayAlias(fx.x, fx.x) {
		t.Errorf("a value aliases itself")
	}
}

func TestBaseMatches(t *testing.T) {
	fx := newFixture(t)
	apf := fx.env.apf
	of := fx.source(apf.CreateAccessPathWithFields(fx.o, []data.Fragment{data.NewFragment(fx.f)}, false))

	if !BaseMatches(fx.o, of) || BaseMatchesStrict(fx.o, of) {
		t.Errorf("o is the base of o.f, but writing o does not overwrite o.f only")
	}
	if !BaseMatchesStrict(ir.FieldRef(fx.o, fx.f), of) {
		t.Errorf("o.f designates the whole taint")
	}
	if BaseMatches(ir.FieldRef(fx.q, fx.g), of) || BaseMatches(fx.x, of) {
		t.Errorf("unrelated values must not match")
	}
	if !CanHaveAliasesAP(of.AccessPath()) {
		t.Errorf("heap objects can have aliases")
	}
	if CanHaveAliasesAP(apf.CreateAccessPath(fx.n, true)) {
		t.Errorf("primitives cannot have aliases")
	}
	if !CanHaveAliases(fx.load, ir.FieldRef(fx.o, fx.f), of) {
		t.Errorf("field writes can create aliases")
	}
	if CanHaveAliases(fx.load, ir.IntConstant(1), of) {
		t.Errorf("constants cannot have aliases")
	}
}

func TestLazyStrategy(t *testing.T) {
	fx := newFixture(t)
	pts := pointsto.Analyze(fx.p, nil, nil)
	a := New(NewLazy(pts), fx.env)

	if !a.Strategy().IsInteractive() || !a.Strategy().IsLazyAnalysis() {
		t.Fatalf("the lazy strategy is interactive")
	}
	if !a.MayAlias(fx.x, fx.y) {
		t.Errorf("y = x")
	}
	if !a.MayAlias(fx.z, fx.y) {
		t.Errorf("y = z")
	}
	if a.MayAlias(fx.x, fx.z) {
		t.Errorf("x and z are distinct allocations")
	}
	xAP := fx.env.apf.CreateAccessPath(fx.x, true)
	if a.MayAliasAP(xAP, fx.y) == nil {
		t.Errorf("the taint of x is visible through y")
	}
	if a.MayAliasAP(xAP, fx.z) != nil {
		t.Errorf("the taint of x is not visible through z")
	}
}

func TestImplicitStrategy(t *testing.T) {
	fx := newFixture(t)
	s := NewImplicit(fx.env)
	apf := fx.env.apf
	qg := apf.CreateAccessPathWithFields(fx.q, []data.Fragment{data.NewFragment(fx.g)}, false)
	newAbs := fx.source(qg)
	taints := data.NewAbstractionSet()

	s.ComputeAliasTaints(data.ZeroAbstraction(true), fx.load, ir.FieldRef(fx.q, fx.g), taints, fx.m, newAbs)
	if taints.Len() != 1 {
		t.Fatalf("expected one alias, got %v", taints.Items())
	}
	got := taints.Items()[0].AccessPath()
	if got.PlainValue() != fx.o || got.FieldCount() != 2 || got.FirstField() != fx.f || got.LastField() != fx.g {
		t.Errorf("expected o.f.g, got %s", got)
	}
	if !s.HasProcessedMethod(fx.m) {
		t.Errorf("the aliases of the method should be cached")
	}
	s.Cleanup()
	if s.HasProcessedMethod(fx.m) {
		t.Errorf("cleanup should drop the cache")
	}
}
