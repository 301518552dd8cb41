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

package sourcesink

import (
	_ "embed"
	"testing"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

//go:embed testdata/config.yaml
var testConfig []byte

type testEnv struct {
	g *icfg.ProgramICFG
	f *data.AccessPathFactory
}

func (e testEnv) ICFG() icfg.ICFG                            { return e.g }
func (e testEnv) AccessPathFactory() *data.AccessPathFactory { return e.f }

type fixture struct {
	p          *ir.Program
	env        testEnv
	get        *ir.Method
	send       *ir.Method
	write      *ir.Method
	flush      *ir.Method
	writer     *ir.Class
	buffer     *ir.Class
	secret     *ir.Field
	source     ir.Stmt
	sink       ir.Stmt
	writeCall  ir.Stmt
	flushCall  ir.Stmt
	fieldRead  ir.Stmt
	s, w, x    *ir.Local
	handler    *ir.Method
	handlerArg ir.Stmt
}

func newFixture(t *testing.T) fixture {
	p := ir.NewProgram()
	src := p.AddClass("lib.Source", nil)
	src.Library = true
	get := src.AddMethod("get", nil, ir.String, true)
	snk := p.AddClass("lib.Sink", nil)
	snk.Library = true
	send := snk.AddMethod("send", []*ir.Type{ir.String}, ir.Void, true)
	writer := p.AddClass("lib.Writer", nil)
	writer.Library = true
	write := writer.AddMethod("write", []*ir.Type{ir.String}, ir.Void, false)
	flush := writer.AddMethod("flush", nil, ir.Void, false)
	buffer := p.AddClass("lib.BufferWriter", writer)
	buffer.Library = true
	listener := p.AddInterface("lib.Listener")
	listener.Library = true
	onEvent := listener.AddMethod("onEvent", []*ir.Type{ir.String}, ir.Void, false)

	app := p.AddClass("app.Main", nil)
	secret := app.AddField("secret", ir.String, false)
	impl := p.AddClass("app.Handler", nil)
	p.Implement(impl, listener)
	handler := impl.AddMethod("onEvent", []*ir.Type{ir.String}, ir.Void, false)
	hb := ir.NewBodyBuilder(handler)
	hb.Param(0, "event")
	hb.ReturnVoid()
	hb.Finish()
	_ = onEvent

	main := app.AddMethod("run", []*ir.Type{writer.Type()}, ir.Void, false)
	b := ir.NewBodyBuilder(main)
	w := b.Param(0, "w")
	s := b.Local("s", ir.String)
	x := b.Local("x", ir.String)
	source := b.Assign(s, ir.NewStaticInvoke(get))
	sink := b.Invoke(ir.NewStaticInvoke(send, s))
	writeCall := b.Invoke(ir.NewVirtualInvoke(w, write, s))
	flushCall := b.Invoke(ir.NewVirtualInvoke(w, flush))
	fieldRead := b.Assign(x, ir.FieldRef(b.This(), secret))
	b.ReturnVoid()
	b.Finish()

	g, err := icfg.New(p, nil)
	if err != nil {
		t.Fatalf("could not build icfg: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	f := data.NewAccessPathFactory(config.NewDefault().Options, p)
	return fixture{p: p, env: testEnv{g: g, f: f}, get: get, send: send, write: write, flush: flush,
		writer: writer, buffer: buffer, secret: secret, source: source, sink: sink, writeCall: writeCall,
		flushCall: flushCall, fieldRead: fieldRead, s: s, w: w, x: x, handler: handler,
		handlerArg: handler.Body().Stmts[1]}
}

func TestKind(t *testing.T) {
	if k := KindFromFlags(true, true); k != Both || !k.IsSink() || !k.IsSource() {
		t.Errorf("expected both, got %s", k)
	}
	if k := Source.Add(Sink); k != Both {
		t.Errorf("source + sink should be both, got %s", k)
	}
	if k := Both.Remove(Source); k != Sink {
		t.Errorf("both - source should be sink, got %s", k)
	}
	if k := Sink.Remove(Sink); k != Neither {
		t.Errorf("sink - sink should be neither, got %s", k)
	}
}

func TestDefaultManager(t *testing.T) {
	fx := newFixture(t)
	sm := NewDefaultManager(nil, []string{fx.get.Signature()}, []string{fx.send.Signature()},
		[]string{fx.handler.Signature()}, nil)
	sm.Initialize(fx.p)

	si := sm.SourceInfo(fx.source, fx.env)
	if si == nil {
		t.Fatalf("expected %s to be a source", fx.source)
	}
	aps := si.AccessPaths()
	if len(aps) != 1 || aps[0].PlainValue() != fx.s || !aps[0].TaintSubFields() {
		t.Errorf("expected the source to taint s with sub fields, got %v", aps)
	}
	if defs := si.AllDefinitions(); len(defs) != 1 || defs[0].String() != fx.get.Signature() {
		t.Errorf("unexpected definitions %v", defs)
	}
	if sm.SourceInfo(fx.sink, fx.env) != nil {
		t.Errorf("the sink call is not a source")
	}
	if sm.SinkInfo(fx.sink, fx.env, fx.env.f.CreateAccessPath(fx.s, true)) == nil {
		t.Errorf("expected %s to be a sink", fx.sink)
	}
	if sm.SinkInfo(fx.source, fx.env, nil) != nil {
		t.Errorf("the source call is not a sink")
	}
	// parameters of the handler are sources
	hi := sm.SourceInfo(fx.handlerArg, fx.env)
	if hi == nil || len(hi.AccessPaths()) != 1 {
		t.Fatalf("expected the handler parameter to be a source")
	}
}

func TestConfigManager(t *testing.T) {
	fx := newFixture(t)
	cfg, err := config.LoadBytes("config.yaml", testConfig)
	if err != nil {
		t.Fatalf("could not load config: %v", err)
	}
	sm := NewConfigManager(config.NewNopLogGroup(), cfg, fx.p)
	sm.Initialize(fx.p)

	if sm.SourceInfo(fx.source, fx.env) == nil {
		t.Errorf("expected %s to be a source", fx.source)
	}
	fi := sm.SourceInfo(fx.fieldRead, fx.env)
	if fi == nil {
		t.Fatalf("expected the read of the secret field to be a source")
	}
	if ap := fi.AccessPaths()[0]; ap.PlainValue() != fx.x {
		t.Errorf("expected the field source to taint x, got %s", ap)
	}

	// write is a sink for its first argument only
	apS := fx.env.f.CreateAccessPath(fx.s, true)
	apW := fx.env.f.CreateAccessPath(fx.w, true)
	if sm.SinkInfo(fx.writeCall, fx.env, apS) == nil {
		t.Errorf("expected the argument of write to be a sink")
	}
	if sm.SinkInfo(fx.writeCall, fx.env, apW) != nil {
		t.Errorf("the receiver of write should not be a sink")
	}
	if sm.SinkInfo(fx.sink, fx.env, apS) == nil {
		t.Errorf("expected send to be a sink")
	}
}

func TestConditionalSinks(t *testing.T) {
	fx := newFixture(t)
	cfg, err := config.LoadBytes("config.yaml", testConfig)
	if err != nil {
		t.Fatalf("could not load config: %v", err)
	}
	sm := NewConfigManager(nil, cfg, fx.p)
	sm.Initialize(fx.p)

	if !sm.IsConditionalSink(fx.writeCall, fx.writer) {
		t.Errorf("expected write to be a conditional sink")
	}
	if sm.IsConditionalSink(fx.writeCall, fx.buffer) {
		t.Errorf("buffer writers are excluded from the condition")
	}
	if sm.IsConditionalSink(fx.sink, fx.writer) {
		t.Errorf("static calls are never conditional sinks")
	}
	if !sm.IsSecondarySink(fx.flushCall) {
		t.Errorf("expected flush to be a secondary sink")
	}
	if sm.IsSecondarySink(fx.writeCall) {
		t.Errorf("write is not referenced by any condition")
	}
	sm.RegisterSecondarySink(fx.write)
	if !sm.IsSecondarySink(fx.writeCall) {
		t.Errorf("write should be a secondary sink once registered")
	}
}

type fakeFlows map[ir.Stmt][]*ir.Method

func (f fakeFlows) HasSecondaryFlows() bool { return len(f) > 0 }

func (f fakeFlows) SecondaryCallsFrom(s ir.Stmt) []*ir.Method { return f[s] }

func TestAdditionalFlowCondition(t *testing.T) {
	fx := newFixture(t)
	cond := NewAdditionalFlowCondition(fx.p, nil, []string{fx.flush.Signature()}, []string{"lib.BufferWriter"})
	if cond.Evaluate(fx.writeCall, fx.writer.Type(), fakeFlows{}) {
		t.Errorf("condition cannot hold without secondary flows")
	}
	flows := fakeFlows{fx.writeCall: {fx.flush}}
	if !cond.Evaluate(fx.writeCall, fx.writer.Type(), flows) {
		t.Errorf("flush is reached from the sink, the condition should hold")
	}
	if cond.Evaluate(fx.sink, fx.writer.Type(), flows) {
		t.Errorf("no secondary flow starts at %s", fx.sink)
	}
	if cond.Evaluate(fx.writeCall, fx.buffer.Type(), flows) {
		t.Errorf("buffer writers are excluded")
	}
	empty := NewAdditionalFlowCondition(fx.p, nil, nil, nil)
	if !empty.Evaluate(fx.writeCall, nil, nil) {
		t.Errorf("an empty condition always holds")
	}
	if refs := cond.ReferencedMethods(); len(refs) != 1 || refs[0] != fx.flush {
		t.Errorf("expected %v to be referenced, got %v", fx.flush, refs)
	}
}

func TestIsTaintVisible(t *testing.T) {
	fx := newFixture(t)
	this := fx.source.Method().Body().This
	apField := fx.env.f.CreateAccessPath(ir.FieldRef(this, fx.secret), true)
	if IsTaintVisible(apField, fx.send) {
		t.Errorf("library code cannot read application fields")
	}
	if !IsTaintVisible(apField, fx.handler) {
		t.Errorf("application code sees every field")
	}
	if !IsTaintVisible(fx.env.f.CreateAccessPath(fx.s, true), fx.send) {
		t.Errorf("a tainted local is visible everywhere")
	}
}

func TestAccessPathTuple(t *testing.T) {
	fx := newFixture(t)
	this := fx.source.Method().Body().This
	tuple := &AccessPathTuple{Fields: []string{"secret"}, Kind: Source}
	ap := tuple.ToAccessPath(this, fx.env.f, false)
	if ap == nil || ap.FirstField() != fx.secret {
		t.Fatalf("expected this.secret, got %v", ap)
	}
	missing := &AccessPathTuple{Fields: []string{"nope"}, Kind: Source}
	if missing.ToAccessPath(this, fx.env.f, false) != nil {
		t.Errorf("unknown fields cannot be resolved")
	}
}
