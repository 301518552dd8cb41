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
	_ "embed"
	"errors"
	"os"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/google/go-cmp/cmp"
)

//go:embed testdata/invalid.yaml
var invalidSummaries []byte

type testEnv struct {
	g *icfg.ProgramICFG
	f *data.AccessPathFactory
}

func (e testEnv) ICFG() icfg.ICFG                            { return e.g }
func (e testEnv) AccessPathFactory() *data.AccessPathFactory { return e.f }

type fixture struct {
	p    *ir.Program
	env  testEnv
	zero *data.Abstraction

	mapClass *ir.Class
	m        *ir.Local
	v        *ir.Local
	x        *ir.Local
	y        *ir.Local
	putA     ir.Stmt
	getA     ir.Stmt
	getB     ir.Stmt
	size     ir.Stmt
	clr      ir.Stmt

	builder       *ir.Class
	fancy         *ir.Class
	sb            *ir.Local
	fb            *ir.Local
	s             *ir.Local
	r             *ir.Local
	out           *ir.Local
	out2          *ir.Local
	appendCall    ir.Stmt
	toString      ir.Stmt
	fancyToString ir.Stmt

	list        *ir.Local
	listAdd     ir.Stmt
	listClear   ir.Stmt
	unknownCall ir.Stmt
}

func newFixture(t *testing.T) *fixture {
	p := ir.NewProgram()
	lib := func(name string, super *ir.Class) *ir.Class {
		c := p.AddClass(name, super)
		c.Library = true
		return c
	}
	mapClass := lib("lib.Map", nil)
	put := mapClass.AddMethod("put", []*ir.Type{ir.Object, ir.Object}, ir.Object, false)
	get := mapClass.AddMethod("get", []*ir.Type{ir.Object}, ir.Object, false)
	clear := mapClass.AddMethod("clear", nil, ir.Void, false)
	size := mapClass.AddMethod("size", nil, ir.Int, false)

	builder := lib("lib.Builder", nil)
	appendM := builder.AddMethod("append", []*ir.Type{ir.String}, builder.Type(), false)
	toString := builder.AddMethod("toString", nil, ir.String, false)
	fancy := lib("lib.FancyBuilder", builder)
	fancyToString := fancy.AddMethod("toString", nil, ir.String, false)

	list := lib("lib.List", nil)
	add := list.AddMethod("add", []*ir.Type{ir.Object}, ir.Void, false)
	clearList := list.AddMethod("clear", nil, ir.Void, false)

	other := lib("other.Thing", nil)
	frob := other.AddMethod("frob", []*ir.Type{ir.String}, ir.String, true)

	app := p.AddClass("app.Main", nil)
	run := app.AddMethod("run", nil, ir.Void, true)
	b := ir.NewBodyBuilder(run)
	fx := &fixture{p: p, mapClass: mapClass, builder: builder, fancy: fancy}
	fx.m = b.Local("m", mapClass.Type())
	fx.v = b.Local("v", ir.String)
	fx.x = b.Local("x", ir.Object)
	fx.y = b.Local("y", ir.Object)
	n := b.Local("n", ir.Int)
	fx.putA = b.Invoke(ir.NewVirtualInvoke(fx.m, put, ir.StringConstant("a"), fx.v))
	fx.getA = b.Assign(fx.x, ir.NewVirtualInvoke(fx.m, get, ir.StringConstant("a")))
	fx.getB = b.Assign(fx.y, ir.NewVirtualInvoke(fx.m, get, ir.StringConstant("b")))
	fx.size = b.Assign(n, ir.NewVirtualInvoke(fx.m, size))
	fx.clr = b.Invoke(ir.NewVirtualInvoke(fx.m, clear))

	fx.sb = b.Local("sb", builder.Type())
	fx.fb = b.Local("fb", fancy.Type())
	fx.s = b.Local("s", ir.String)
	fx.r = b.Local("r", builder.Type())
	fx.out = b.Local("out", ir.String)
	fx.out2 = b.Local("out2", ir.String)
	fx.appendCall = b.Assign(fx.r, ir.NewVirtualInvoke(fx.sb, appendM, fx.s))
	fx.toString = b.Assign(fx.out, ir.NewVirtualInvoke(fx.sb, toString))
	fx.fancyToString = b.Assign(fx.out2, ir.NewVirtualInvoke(fx.fb, fancyToString))

	fx.list = b.Local("list", list.Type())
	fx.listAdd = b.Invoke(ir.NewVirtualInvoke(fx.list, add, fx.v))
	fx.listClear = b.Invoke(ir.NewVirtualInvoke(fx.list, clearList))
	fx.unknownCall = b.Assign(fx.out, ir.NewStaticInvoke(frob, fx.s))
	b.ReturnVoid()
	b.Finish()

	g, err := icfg.New(p, nil)
	if err != nil {
		t.Fatalf("could not build icfg: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	fx.env = testEnv{g: g, f: data.NewAccessPathFactory(config.NewDefault().Options, p)}
	fx.zero = data.ZeroAbstraction(false)
	return fx
}

func (fx *fixture) taint(v ir.Value, stmt ir.Stmt) *data.Abstraction {
	return fx.zero.NewSourceAbstraction(nil, fx.env.f.CreateAccessPath(v, true), stmt, nil, false, false)
}

func (fx *fixture) summaryWrapper(t *testing.T) *SummaryTaintWrapper {
	provider, err := NewYAMLSummaryProviderFromFiles(config.NewNopLogGroup(), "testdata/summaries")
	if err != nil {
		t.Fatalf("could not load summaries: %v", err)
	}
	w := NewSummaryTaintWrapper(provider)
	if err := w.Initialize(fx.env); err != nil {
		t.Fatalf("could not initialize wrapper: %v", err)
	}
	return w
}

// find returns the abstraction whose access path is rooted at v
func find(abs []*data.Abstraction, v *ir.Local) *data.Abstraction {
	for _, a := range abs {
		if a.AccessPath().PlainValue() == v {
			return a
		}
	}
	return nil
}

func TestParseYAMLErrors(t *testing.T) {
	classes, _, err := ParseYAML(invalidSummaries)
	if err == nil {
		t.Fatalf("expected errors for invalid summaries")
	}
	if len(classes) != 0 {
		t.Errorf("invalid classes should be dropped, got %d", len(classes))
	}
	var flowErr *InvalidFlowSpecificationError
	if !errors.As(err, &flowErr) {
		t.Errorf("expected an invalid flow error, got %v", err)
	}
	for _, msg := range []string{"return values cannot be sources", "undefined gap", "without name"} {
		if !strings.Contains(err.Error(), msg) {
			t.Errorf("error %q should mention %q", err, msg)
		}
	}
}

func TestMethodFlowValidate(t *testing.T) {
	tests := []struct {
		name  string
		flow  MethodFlow
		valid bool
	}{
		{"param to return", MethodFlow{Method: "m", Source: FlowEndpoint{Kind: Parameter},
			Sink: FlowSink{FlowEndpoint: FlowEndpoint{Kind: Return}}}, true},
		{"no method", MethodFlow{Source: FlowEndpoint{Kind: Parameter},
			Sink: FlowSink{FlowEndpoint: FlowEndpoint{Kind: Return}}}, false},
		{"gap base without gap", MethodFlow{Method: "m", Source: FlowEndpoint{Kind: Field},
			Sink: FlowSink{FlowEndpoint: FlowEndpoint{Kind: GapBaseObject}}}, false},
		{"types length", MethodFlow{Method: "m", Source: FlowEndpoint{Kind: Field, AccessPath: []string{"a", "b"},
			AccessPathTypes: []string{"int"}}, Sink: FlowSink{FlowEndpoint: FlowEndpoint{Kind: Return}}}, false},
		{"constrained without constraint", MethodFlow{Method: "m",
			Source: FlowEndpoint{Kind: Field, AccessPath: []string{"e"}, Constrained: true},
			Sink:   FlowSink{FlowEndpoint: FlowEndpoint{Kind: Return}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.flow.Validate()
			if (err == nil) != tt.valid {
				t.Errorf("Validate() = %v, want valid=%v", err, tt.valid)
			}
		})
	}
}

func TestReverseFlow(t *testing.T) {
	f := &MethodFlow{Method: "get", Source: FlowEndpoint{Kind: Field, AccessPath: []string{"item"}},
		Sink: FlowSink{FlowEndpoint: FlowEndpoint{Kind: Return}}, IsAlias: true}
	rev := f.Reverse()
	if rev.Source.Kind != Return || rev.Sink.Kind != Field || rev.Sink.AccessPath[0] != "item" {
		t.Errorf("unexpected reverse flow %s", rev)
	}
	if reverseFlowForAlias(&MethodFlow{Method: "get", Source: FlowEndpoint{Kind: Parameter},
		Sink: FlowSink{FlowEndpoint: FlowEndpoint{Kind: Return}}}) != nil {
		t.Errorf("flows that are not aliases cannot be reversed")
	}
	prim := &MethodFlow{Method: "len", Source: FlowEndpoint{Kind: Field, AccessPath: []string{"n"},
		AccessPathTypes: []string{"int"}}, Sink: FlowSink{FlowEndpoint: FlowEndpoint{Kind: Return}}, IsAlias: true}
	if reverseFlowForAlias(prim) != nil {
		t.Errorf("primitive values cannot alias")
	}
}

func TestYAMLLazyLoading(t *testing.T) {
	fsys := fstest.MapFS{
		"sums/summaries.yaml": {Data: []byte("classes:\n  - name: eager.C\n    flows:\n" +
			"      - {method: f, source: {kind: parameter, param: 0}, sink: {kind: return}}\n")},
		"sums/lazy.C.yaml": {Data: []byte("classes:\n  - name: lazy.C\n    flows:\n" +
			"      - {method: g, source: {kind: field}, sink: {kind: return}}\n")},
		"sums/bad.C.yaml": {Data: []byte("classes:\n  - name: bad.C\n    flows:\n" +
			"      - {method: g, source: {kind: return}, sink: {kind: field}}\n")},
	}
	p, err := NewYAMLSummaryProvider(config.NewNopLogGroup(), fsys, "sums")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.loaded.ClassFlows("lazy.C") != nil {
		t.Errorf("lazy class should not be loaded before it is requested")
	}
	if !p.SupportsClass("lazy.C") || !p.SupportsClass("eager.C") {
		t.Errorf("both classes should be supported")
	}
	want := []string{"bad.C", "eager.C", "lazy.C"}
	if diff := cmp.Diff(want, p.AllClassesWithSummaries()); diff != "" {
		t.Errorf("classes mismatch (-want +got):\n%s", diff)
	}
	if s := p.MethodFlows("lazy.C", "any g()"); s.IsEmpty() {
		t.Errorf("expected flows for lazy.C.g")
	}
	if p.Errors() != nil {
		t.Errorf("no error expected yet, got %v", p.Errors())
	}
	if err := p.LoadAll(); err == nil || !strings.Contains(err.Error(), "bad.C") {
		t.Errorf("expected an error for bad.C, got %v", err)
	}
}

func TestSplitFunctionName(t *testing.T) {
	tests := []struct {
		fn, class, method string
		isMethod          bool
	}{
		{"strings.Join", "strings", "Join", false},
		{"encoding/json.Marshal", "encoding/json", "Marshal", false},
		{"(*bytes.Buffer).WriteString", "bytes.Buffer", "WriteString", true},
		{"(net/http.Header).Get", "net/http.Header", "Get", true},
		{"gopkg.in/yaml.v3.Marshal", "gopkg.in/yaml.v3", "Marshal", false},
	}
	for _, tt := range tests {
		c, m, isMethod := SplitFunctionName(tt.fn)
		if c != tt.class || m != tt.method || isMethod != tt.isMethod {
			t.Errorf("SplitFunctionName(%q) = (%q, %q, %v)", tt.fn, c, m, isMethod)
		}
	}
}

func TestLibrarySummaries(t *testing.T) {
	p := LibrarySummaries()
	if err := p.Validate(); err != nil {
		t.Fatalf("library summaries are invalid: %v", err)
	}
	join := p.MethodFlows("strings", "Join")
	if join.IsEmpty() {
		t.Fatalf("expected flows for strings.Join")
	}
	returns := 0
	for _, f := range join.FlowsFor("Join") {
		if f.Sink.Kind == Return {
			returns++
		}
	}
	if returns != 2 {
		t.Errorf("both arguments of strings.Join flow to the result, got %d flows", returns)
	}
	ws := p.MethodFlows("bytes.Buffer", "WriteString")
	if ws.IsEmpty() || !anyFlow(ws.FlowsFor("WriteString"), func(f *MethodFlow) bool {
		return f.Source.Kind == Parameter && f.Source.ParamIndex == 0 && f.Sink.Kind == Field
	}) {
		t.Errorf("the argument of WriteString should flow to the receiver")
	}
	if !p.IsMethodExcluded("fmt", "Println") {
		t.Errorf("fmt.Println has no flows and should be excluded")
	}
	if !IsStdPackageName("net/http") || !IsStdPackageName("runtime/debug") || IsStdPackageName("github.com/x/y") {
		t.Errorf("unexpected standard package classification")
	}
	if !IsSummaryRequired("(*sync.Once).Do") {
		t.Errorf("sync.Once.Do calls its argument")
	}
}

func anyFlow(flows []*MethodFlow, pred func(*MethodFlow) bool) bool {
	for _, f := range flows {
		if pred(f) {
			return true
		}
	}
	return false
}

func TestSummaryWrapperKeyConstraints(t *testing.T) {
	fx := newFixture(t)
	w := fx.summaryWrapper(t)

	res := w.TaintsForMethod(fx.putA, fx.zero, fx.taint(fx.v, fx.putA))
	mapTaint := find(res, fx.m)
	if mapTaint == nil {
		t.Fatalf("put should taint the map, got %v", res)
	}
	if find(res, fx.v) == nil {
		t.Errorf("the incoming taint should be kept")
	}
	first := mapTaint.AccessPath().FirstFragment()
	if first == nil || first.Field.Name != "entries" {
		t.Fatalf("expected a taint on the entries, got %s", mapTaint.AccessPath())
	}
	if diff := cmp.Diff([]string{"a"}, first.Context); diff != "" {
		t.Errorf("context mismatch (-want +got):\n%s", diff)
	}

	if got := find(w.TaintsForMethod(fx.getA, fx.zero, mapTaint), fx.x); got == nil {
		t.Errorf("get with the same key should taint the result")
	}
	resB := w.TaintsForMethod(fx.getB, fx.zero, mapTaint)
	if find(resB, fx.y) != nil {
		t.Errorf("get with another key should not taint the result")
	}
	if len(resB) != 1 || resB[0] != mapTaint {
		t.Errorf("the map taint should be kept unchanged, got %v", resB)
	}

	if got := w.TaintsForMethod(fx.clr, fx.zero, mapTaint); got == nil || len(got) != 0 {
		t.Errorf("clear should kill the entries taint, got %v", got)
	}
	if got := w.TaintsForMethod(fx.size, fx.zero, mapTaint); len(got) != 1 || got[0] != mapTaint {
		t.Errorf("excluded methods keep the taint, got %v", got)
	}
	if !w.IsExclusive(fx.size, mapTaint) {
		t.Errorf("the map summaries are exclusive for the class")
	}
}

func TestSummaryWrapperAliasFlows(t *testing.T) {
	fx := newFixture(t)
	w := fx.summaryWrapper(t)

	res := w.TaintsForMethod(fx.appendCall, fx.zero, fx.taint(fx.s, fx.appendCall))
	sbTaint := find(res, fx.sb)
	if sbTaint == nil || sbTaint.AccessPath().FirstField().Name != "buf" {
		t.Fatalf("append should taint sb.buf, got %v", res)
	}
	rTaint := find(res, fx.r)
	if rTaint == nil || rTaint.AccessPath().FirstField().Name != "buf" {
		t.Errorf("the returned builder aliases the receiver and should be tainted, got %v", res)
	}
	if got := find(w.TaintsForMethod(fx.toString, fx.zero, sbTaint), fx.out); got == nil {
		t.Errorf("toString should taint its result")
	}

	aliases := w.AliasesForMethod(fx.appendCall, fx.zero, rTaint)
	if a := find(aliases, fx.sb); a == nil {
		t.Errorf("the receiver should be found as an alias of the result, got %v", aliases)
	} else if a.CorrespondingCallSite() != fx.appendCall {
		t.Errorf("aliases should record the call site")
	}
	if find(aliases, fx.r) != rTaint {
		t.Errorf("the incoming taint should be kept")
	}
}

func TestSummaryWrapperHierarchy(t *testing.T) {
	fx := newFixture(t)
	w := fx.summaryWrapper(t)
	fbTaint := fx.zero.NewSourceAbstraction(nil,
		fx.env.f.CreateAccessPathWithFields(fx.fb, []data.Fragment{data.NewFragment(fx.builder.AddField("buf",
			ir.String, false))}, true), fx.fancyToString, nil, false, false)
	if got := find(w.TaintsForMethod(fx.fancyToString, fx.zero, fbTaint), fx.out2); got == nil {
		t.Errorf("summaries of the super class should apply to the sub class")
	}
}

func TestSummaryWrapperFallback(t *testing.T) {
	fx := newFixture(t)
	w := fx.summaryWrapper(t)
	taint := fx.taint(fx.s, fx.unknownCall)
	if got := w.TaintsForMethod(fx.unknownCall, fx.zero, taint); got != nil {
		t.Errorf("no model expected without fallback, got %v", got)
	}
	if w.IsExclusive(fx.unknownCall, taint) {
		t.Errorf("unknown classes are not exclusive")
	}

	w = NewSummaryTaintWrapper(NewMemorySummaryProvider())
	w.SetFallbackWrapper(NewIdentityTaintWrapper())
	if err := w.Initialize(fx.env); err != nil {
		t.Fatal(err)
	}
	if got := find(w.TaintsForMethod(fx.unknownCall, fx.zero, taint), fx.out); got == nil {
		t.Errorf("the identity fallback should taint the result")
	}
	if w.WrapperHits()+w.WrapperMisses() != 0 {
		t.Errorf("TaintsForMethod should not count hits")
	}
	w.IsExclusive(fx.unknownCall, taint)
	if w.WrapperHits() != 1 {
		t.Errorf("expected one hit through the fallback, got %d", w.WrapperHits())
	}
}

func TestEasyTaintWrapper(t *testing.T) {
	fx := newFixture(t)
	f, err := os.Open("testdata/easy.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w, err := ParseEasyTaintWrapper(f)
	if err != nil {
		t.Fatalf("could not parse wrapper: %v", err)
	}
	if err := w.Initialize(fx.env); err != nil {
		t.Fatal(err)
	}

	res := w.TaintsForMethod(fx.listAdd, fx.zero, fx.taint(fx.v, fx.listAdd))
	listTaint := find(res, fx.list)
	if listTaint == nil {
		t.Fatalf("add should taint the list, got %v", res)
	}
	if got := w.TaintsForMethod(fx.listClear, fx.zero, listTaint); got == nil || len(got) != 0 {
		t.Errorf("clear should kill the list taint, got %v", got)
	}
	if !w.IsExclusive(fx.listAdd, listTaint) {
		t.Errorf("wrapped classes are exclusive")
	}
	if w.SupportsCallee(fx.unknownCall.InvokeExpr().Method) {
		t.Errorf("classes outside the include prefixes are not supported")
	}

	if _, err := ParseEasyTaintWrapper(strings.NewReader("not a signature\n")); err == nil {
		t.Errorf("expected a parse error")
	}
}

func TestTaintWrapperSet(t *testing.T) {
	fx := newFixture(t)
	easy := NewEasyTaintWrapper()
	easy.AddIncludePrefix("lib.")
	easy.AddMethodForWrapping("lib.List", "void add(any)")
	set := NewTaintWrapperSet(fx.summaryWrapper(t), easy, nil)
	if len(set.Wrappers()) != 2 {
		t.Fatalf("nil wrappers should be dropped")
	}
	if err := set.Initialize(fx.env); err != nil {
		t.Fatal(err)
	}
	if find(set.TaintsForMethod(fx.listAdd, fx.zero, fx.taint(fx.v, fx.listAdd)), fx.list) == nil {
		t.Errorf("the set should apply the easy wrapper")
	}
	if find(set.TaintsForMethod(fx.putA, fx.zero, fx.taint(fx.v, fx.putA)), fx.m) == nil {
		t.Errorf("the set should apply the summaries")
	}
	if set.WrapperHits() != 2 {
		t.Errorf("expected two hits, got %d", set.WrapperHits())
	}
	if !set.SupportsCallSite(fx.putA) {
		t.Errorf("the summary wrapper supports put")
	}
}

func TestParseMethodSignature(t *testing.T) {
	c, sub, err := ParseMethodSignature("<lib.List: void add(java.lang.Object)>")
	if err != nil || c != "lib.List" || sub != "void add(any)" {
		t.Errorf("unexpected result (%q, %q, %v)", c, sub, err)
	}
	for _, bad := range []string{"lib.List: void add()", "<lib.List void add()>", "<: x>"} {
		if _, _, err := ParseMethodSignature(bad); err == nil {
			t.Errorf("expected an error for %q", bad)
		}
	}
}
