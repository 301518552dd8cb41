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

package infoflow

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/memory"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/results"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/sourcesink"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/analysis/summaries"
	"github.com/samber/lo"
)

type program struct {
	p      *ir.Program
	main   *ir.Class
	box    *ir.Class
	f      *ir.Field
	source *ir.Method
	sink   *ir.Method
}

func newProgram() program {
	p := ir.NewProgram()
	api := p.AddClass("lib.Api", nil)
	api.Library = true
	box := p.AddClass("t.Box", nil)
	return program{
		p:      p,
		main:   p.AddClass("t.Main", nil),
		box:    box,
		f:      box.AddField("f", ir.String, false),
		source: api.AddMethod("source", nil, ir.String, true),
		sink:   api.AddMethod("sink", []*ir.Type{ir.String}, ir.Void, true),
	}
}

func (pr program) manager() sourcesink.Manager {
	return sourcesink.NewDefaultManager(nil, []string{pr.source.Signature()}, []string{pr.sink.Signature()}, nil, nil)
}

// aliasProgram builds
//
//	main() { a = new Box; b = a; s = source(); a.f = s; x = b.f; sink(x) }
func aliasProgram(pr program) (src, leak ir.Stmt) {
	m := pr.main.AddMethod("main", nil, ir.Void, true)
	b := ir.NewBodyBuilder(m)
	a := b.Local("a", pr.box.Type())
	bl := b.Local("b", pr.box.Type())
	s := b.Local("s", ir.String)
	x := b.Local("x", ir.String)
	b.Assign(a, ir.NewObject(pr.box.Type()))
	b.Assign(bl, a)
	src = b.Assign(s, ir.NewStaticInvoke(pr.source))
	b.Assign(ir.FieldRef(a, pr.f), s)
	b.Assign(x, ir.FieldRef(bl, pr.f))
	leak = b.Invoke(ir.NewStaticInvoke(pr.sink, x))
	b.ReturnVoid()
	b.Finish()
	return src, leak
}

func runInfoflow(t *testing.T, cfg *config.Config, pr program) *results.InfoflowResults {
	t.Helper()
	inf, err := New(cfg, config.NewNopLogGroup())
	if err != nil {
		t.Fatalf("could not create the analysis: %v", err)
	}
	inf.SourceSinkManager = pr.manager()
	res, err := inf.Run(context.Background(), pr.p)
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if res == nil || res != inf.Results() {
		t.Fatalf("expected the results of the run")
	}
	return res
}

func TestAliasingStrategies(t *testing.T) {
	for _, tc := range []struct {
		algorithm string
		found     bool
	}{
		{config.AliasingFlowSensitive, true},
		{config.AliasingPtsBased, true},
		{config.AliasingLazy, true},
		{config.AliasingNone, false},
	} {
		t.Run(tc.algorithm, func(t *testing.T) {
			pr := newProgram()
			src, leak := aliasProgram(pr)
			cfg := config.NewDefault()
			cfg.AliasingAlgorithm = tc.algorithm
			cfg.NumWorkers = 2
			res := runInfoflow(t, cfg, pr)
			if got := res.IsPathBetween(leak, src); got != tc.found {
				t.Errorf("expected path between source and sink: %v, got %v", tc.found, got)
			}
			if res.TerminationState() != results.TerminationSuccess {
				t.Errorf("unexpected termination state %s", res.TerminationState())
			}
		})
	}
}

// main() { s = source(); t = s; sink(t) }
func TestComputePaths(t *testing.T) {
	pr := newProgram()
	m := pr.main.AddMethod("main", nil, ir.Void, true)
	b := ir.NewBodyBuilder(m)
	s := b.Local("s", ir.String)
	tl := b.Local("t", ir.String)
	src := b.Assign(s, ir.NewStaticInvoke(pr.source))
	assign := b.Assign(tl, s)
	leak := b.Invoke(ir.NewStaticInvoke(pr.sink, tl))
	b.ReturnVoid()
	b.Finish()

	cfg := config.NewDefault()
	cfg.ComputePaths = true
	res := runInfoflow(t, cfg, pr)
	all := res.Results()
	if len(all) != 1 {
		t.Fatalf("expected one result, got %d", len(all))
	}
	path := all[0].Source.Path
	if len(path) < 2 {
		t.Fatalf("expected a path from the source to the sink, got %v", path)
	}
	if path[0] != src || path[len(path)-1] != leak {
		t.Errorf("expected a path from %v to %v, got %v", src, leak, path)
	}
	if !lo.Contains(path, ir.Stmt(assign)) {
		t.Errorf("expected %v on the path %v", assign, path)
	}
	perf := res.Performance()
	if perf.SourceCount != 1 || perf.SinkCount != 1 {
		t.Errorf("expected one source and one sink, got %d and %d", perf.SourceCount, perf.SinkCount)
	}
	if perf.EdgePropagationCount == 0 {
		t.Errorf("expected propagations to be counted")
	}
}

func TestRunWithoutSources(t *testing.T) {
	pr := newProgram()
	m := pr.main.AddMethod("main", nil, ir.Void, true)
	b := ir.NewBodyBuilder(m)
	u := b.Local("u", ir.String)
	b.Invoke(ir.NewStaticInvoke(pr.sink, u))
	b.ReturnVoid()
	b.Finish()

	inf, err := New(config.NewDefault(), config.NewNopLogGroup())
	if err != nil {
		t.Fatalf("could not create the analysis: %v", err)
	}
	inf.SourceSinkManager = pr.manager()
	calls := 0
	inf.AddResultsAvailableHandler(func(g icfg.ICFG, res *results.InfoflowResults) {
		calls++
		if g == nil {
			t.Errorf("expected the icfg of the run")
		}
	})
	res, err := inf.Run(context.Background(), pr.p)
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if !res.IsEmpty() {
		t.Errorf("expected no results, got %d", res.Size())
	}
	if calls != 1 {
		t.Errorf("expected the handler to be called once, got %d", calls)
	}
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	cfg := config.NewDefault()
	cfg.AliasingAlgorithm = "unknown"
	if _, err := New(cfg, nil); !errors.Is(err, config.ErrUnsupportedConfiguration) {
		t.Errorf("expected an unsupported configuration error, got %v", err)
	}
	if _, err := New(nil, nil); !errors.Is(err, config.ErrUnsupportedConfiguration) {
		t.Errorf("expected an unsupported configuration error, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	pr := newProgram()
	aliasProgram(pr)
	inf, err := New(config.NewDefault(), config.NewNopLogGroup())
	if err != nil {
		t.Fatalf("could not create the analysis: %v", err)
	}
	inf.SourceSinkManager = pr.manager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, _ := inf.Run(ctx, pr.p)
	if res == nil {
		t.Fatalf("results must not be nil")
	}
	if res.TerminationState()&results.AbortedByUser == 0 {
		t.Errorf("expected the analysis to be aborted, got %s", res.TerminationState())
	}
}

// get() { s = source(); return s }
// main() { x = get(); sink(x) }
func TestSourceInCalleeReachesCaller(t *testing.T) {
	pr := newProgram()
	get := pr.main.AddMethod("get", nil, ir.String, true)
	gb := ir.NewBodyBuilder(get)
	s := gb.Local("s", ir.String)
	src := gb.Assign(s, ir.NewStaticInvoke(pr.source))
	gb.Return(s)
	gb.Finish()

	m := pr.main.AddMethod("main", nil, ir.Void, true)
	b := ir.NewBodyBuilder(m)
	x := b.Local("x", ir.String)
	b.Assign(x, ir.NewStaticInvoke(get))
	leak := b.Invoke(ir.NewStaticInvoke(pr.sink, x))
	b.ReturnVoid()
	b.Finish()

	res := runInfoflow(t, config.NewDefault(), pr)
	if !res.IsPathBetween(leak, src) {
		t.Errorf("expected a flow from the source in get to the sink in main")
	}
}

const mapSummaries = `classes:
  - name: lib.Map
    exclusive: true
    flows:
      - method: put
        source: {kind: parameter, param: 1}
        sink: {kind: field, accesspath: [entries], constrained: true}
        constraints: [{kind: key, param: 0}]
      - method: get
        source: {kind: field, accesspath: [entries], constrained: true}
        sink: {kind: return}
        constraints: [{kind: key, param: 0}]
`

// main() { m = new Map; s = source(); m.put("a", s); x = m.get("a"); sink(x); y = m.get("b"); sink(y) }
func TestMapKeysThroughSummaries(t *testing.T) {
	pr := newProgram()
	mapClass := pr.p.AddClass("lib.Map", nil)
	mapClass.Library = true
	put := mapClass.AddMethod("put", []*ir.Type{ir.Object, ir.Object}, ir.Object, false)
	get := mapClass.AddMethod("get", []*ir.Type{ir.Object}, ir.Object, false)

	m := pr.main.AddMethod("main", nil, ir.Void, true)
	b := ir.NewBodyBuilder(m)
	ml := b.Local("m", mapClass.Type())
	s := b.Local("s", ir.String)
	x := b.Local("x", ir.Object)
	y := b.Local("y", ir.Object)
	b.Assign(ml, ir.NewObject(mapClass.Type()))
	src := b.Assign(s, ir.NewStaticInvoke(pr.source))
	b.Invoke(ir.NewVirtualInvoke(ml, put, ir.StringConstant("a"), s))
	b.Assign(x, ir.NewVirtualInvoke(ml, get, ir.StringConstant("a")))
	sameKey := b.Invoke(ir.NewStaticInvoke(pr.sink, x))
	b.Assign(y, ir.NewVirtualInvoke(ml, get, ir.StringConstant("b")))
	otherKey := b.Invoke(ir.NewStaticInvoke(pr.sink, y))
	b.ReturnVoid()
	b.Finish()

	fsys := fstest.MapFS{"sums/maps.yaml": {Data: []byte(mapSummaries)}}
	provider, err := summaries.NewYAMLSummaryProvider(config.NewNopLogGroup(), fsys, "sums")
	if err != nil {
		t.Fatalf("could not load summaries: %v", err)
	}

	inf, err := New(config.NewDefault(), config.NewNopLogGroup())
	if err != nil {
		t.Fatalf("could not create the analysis: %v", err)
	}
	inf.SourceSinkManager = pr.manager()
	inf.TaintWrapper = summaries.NewSummaryTaintWrapper(provider)
	res, err := inf.Run(context.Background(), pr.p)
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if res.Size() != 1 || !res.IsPathBetween(sameKey, src) {
		t.Errorf("expected one flow through the entry of key a, got %d results", res.Size())
	}
	if res.ContainsSink(otherKey) {
		t.Errorf("the entry of key b is not tainted")
	}
}

// slowWrapper delays every library call on a tainted value
type slowWrapper struct {
	*summaries.IdentityTaintWrapper
	delay time.Duration
}

func (w slowWrapper) TaintsForMethod(stmt ir.Stmt, d1, taint *data.Abstraction) []*data.Abstraction {
	time.Sleep(w.delay)
	return w.IdentityTaintWrapper.TaintsForMethod(stmt, d1, taint)
}

// main() { s = source(); t = frob(s); sink(t) }
func TestDataFlowTimeout(t *testing.T) {
	pr := newProgram()
	frob := pr.p.Class("lib.Api").AddMethod("frob", []*ir.Type{ir.String}, ir.String, true)
	m := pr.main.AddMethod("main", nil, ir.Void, true)
	b := ir.NewBodyBuilder(m)
	s := b.Local("s", ir.String)
	tl := b.Local("t", ir.String)
	b.Assign(s, ir.NewStaticInvoke(pr.source))
	b.Assign(tl, ir.NewStaticInvoke(frob, s))
	b.Invoke(ir.NewStaticInvoke(pr.sink, tl))
	b.ReturnVoid()
	b.Finish()

	cfg := config.NewDefault()
	cfg.DataFlowTimeout = 1
	inf, err := New(cfg, config.NewNopLogGroup())
	if err != nil {
		t.Fatalf("could not create the analysis: %v", err)
	}
	inf.SourceSinkManager = pr.manager()
	inf.TaintWrapper = slowWrapper{IdentityTaintWrapper: summaries.NewIdentityTaintWrapper(), delay: 3 * time.Second}
	res, _ := inf.Run(context.Background(), pr.p)
	if res == nil {
		t.Fatalf("results must not be nil")
	}
	if !lo.Contains(res.Exceptions(), memory.TimeoutReached) {
		t.Errorf("expected %q in the exceptions, got %v", memory.TimeoutReached, res.Exceptions())
	}
	if res.TerminationState()&results.DataFlowTimeout == 0 {
		t.Errorf("expected a data flow timeout, got %s", res.TerminationState())
	}
}
