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

package river

import (
	"context"
	"sort"
	"testing"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/aliasing"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/manager"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/problems"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/results"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/solver"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/sourcesink"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/google/go-cmp/cmp"
)

// network is a library where writing to a stream is only a leak if the stream comes from a connection
type network struct {
	p         *ir.Program
	main      *ir.Class
	conn      *ir.Class
	stream    *ir.Class
	source    *ir.Method
	sink      *ir.Method
	getStream *ir.Method
	write     *ir.Method
}

func newNetwork() network {
	p := ir.NewProgram()
	api := p.AddClass("lib.Api", nil)
	api.Library = true
	conn := p.AddClass("lib.Conn", nil)
	conn.Library = true
	stream := p.AddClass("lib.Stream", nil)
	stream.Library = true
	return network{
		p:         p,
		main:      p.AddClass("t.Main", nil),
		conn:      conn,
		stream:    stream,
		source:    api.AddMethod("source", nil, ir.String, true),
		sink:      api.AddMethod("sink", []*ir.Type{ir.String}, ir.Void, true),
		getStream: conn.AddMethod("getStream", nil, stream.Type(), false),
		write:     stream.AddMethod("write", []*ir.Type{ir.String}, ir.Void, false),
	}
}

// analyze runs the forward analysis with secondary flows from the seeds, post-processes the results and returns
// the indexes of the sinks left
func analyze(t *testing.T, n network, seeds ...ir.Stmt) ([]int, *Analysis) {
	g, err := icfg.New(n.p, nil)
	if err != nil {
		t.Fatalf("could not build icfg: %v", err)
	}
	t.Cleanup(func() { g.Close() })

	write := sourcesink.NewMethodDefinition(n.write.Signature())
	write.Conditions = []sourcesink.Condition{
		sourcesink.NewAdditionalFlowCondition(n.p, []string{"lib.Conn"}, nil, nil),
	}
	ssm := sourcesink.NewDefinitionManager(nil,
		[]data.Definition{sourcesink.NewMethodDefinition(n.source.Signature())},
		[]data.Definition{sourcesink.NewMethodDefinition(n.sink.Signature()), write})
	ssm.Initialize(n.p)

	cfg := config.NewDefault()
	cfg.AliasingAlgorithm = config.AliasingNone
	cfg.AdditionalFlowsEnabled = true
	mgr := manager.New(cfg, nil, g, ssm, nil)
	mgr.SetAliasing(aliasing.New(aliasing.None{}, mgr))

	e, err := solver.NewExecutor(2)
	if err != nil {
		t.Fatalf("could not create executor: %v", err)
	}
	t.Cleanup(e.Close)

	fwd := problems.NewInfoflowProblem(mgr, problems.NewActivationTable())
	secondary, err := New(mgr, fwd, e, nil)
	if err != nil {
		t.Fatalf("could not create the secondary analysis: %v", err)
	}
	fSolver := solver.NewSolver("forward", fwd, e, nil, nil)
	fSolver.Configure(cfg.Options)
	mgr.SetForwardSolver(fSolver)
	for _, s := range seeds {
		fwd.AddInitialSeed(s)
	}
	if err := fSolver.Solve(context.Background()); err != nil {
		t.Fatalf("solver failed: %v", err)
	}

	res := results.NewInfoflowResults(false)
	pb := results.NewContextInsensitivePathBuilder(nil, false, 1)
	if err := pb.ComputeTaintPaths(context.Background(), mgr.Results().Results(), res); err != nil {
		t.Fatalf("path reconstruction failed: %v", err)
	}
	NewConditionalFlowPostProcessor(nil, secondary.Flows()).Process(res)

	var sinks []int
	for _, s := range res.Sinks() {
		sinks = append(sinks, s.Stmt.Index())
	}
	sort.Ints(sinks)
	return sinks, secondary
}

// main() { c = new Conn; os = c.getStream(); s = source(); os.write(s) }
func TestConditionHoldsOnSecondaryFlow(t *testing.T) {
	n := newNetwork()
	m := n.main.AddMethod("main", nil, ir.Void, true)
	b := ir.NewBodyBuilder(m)
	c := b.Local("c", n.conn.Type())
	os := b.Local("os", n.stream.Type())
	s := b.Local("s", ir.String)
	b.Assign(c, ir.NewObject(n.conn.Type()))
	b.Assign(os, ir.NewVirtualInvoke(c, n.getStream))
	src := b.Assign(s, ir.NewStaticInvoke(n.source))
	leak := b.Invoke(ir.NewVirtualInvoke(os, n.write, s))
	b.ReturnVoid()
	b.Finish()

	got, secondary := analyze(t, n, src)
	if diff := cmp.Diff([]int{leak.Index()}, got); diff != "" {
		t.Errorf("unexpected sinks (-want +got):\n%s", diff)
	}
	if !secondary.Flows().HasSecondaryFlows() {
		t.Fatalf("expected a secondary flow")
	}
	if calls := secondary.Flows().SecondaryCallsFrom(leak); len(calls) != 1 || calls[0] != n.getStream {
		t.Errorf("expected %v to be called on the secondary flow, got %v", n.getStream, calls)
	}
	if len(secondary.Results()) != 1 {
		t.Errorf("expected one secondary sink, got %d", len(secondary.Results()))
	}
}

// main() { os = new Stream; s = source(); os.write(s); sink(s) }
func TestConditionFailsWithoutSecondaryFlow(t *testing.T) {
	n := newNetwork()
	m := n.main.AddMethod("main", nil, ir.Void, true)
	b := ir.NewBodyBuilder(m)
	os := b.Local("os", n.stream.Type())
	s := b.Local("s", ir.String)
	b.Assign(os, ir.NewObject(n.stream.Type()))
	src := b.Assign(s, ir.NewStaticInvoke(n.source))
	b.Invoke(ir.NewVirtualInvoke(os, n.write, s))
	leak := b.Invoke(ir.NewStaticInvoke(n.sink, s))
	b.ReturnVoid()
	b.Finish()

	got, secondary := analyze(t, n, src)
	if diff := cmp.Diff([]int{leak.Index()}, got); diff != "" {
		t.Errorf("unexpected sinks (-want +got):\n%s", diff)
	}
	if secondary.Flows().HasSecondaryFlows() {
		t.Errorf("unexpected secondary flows")
	}
}

type fakeFlows map[ir.Stmt][]*ir.Method

func (f fakeFlows) HasSecondaryFlows() bool                          { return len(f) > 0 }
func (f fakeFlows) SecondaryCallsFrom(primarySink ir.Stmt) []*ir.Method { return f[primarySink] }

func TestPostProcessorKeepsUnconditionalDefinitions(t *testing.T) {
	n := newNetwork()
	m := n.main.AddMethod("main", nil, ir.Void, true)
	b := ir.NewBodyBuilder(m)
	os := b.Local("os", n.stream.Type())
	s := b.Local("s", ir.String)
	src := b.Assign(s, ir.NewStaticInvoke(n.source))
	sinkStmt := b.Invoke(ir.NewVirtualInvoke(os, n.write, s))
	b.ReturnVoid()
	b.Finish()

	conditional := sourcesink.NewMethodDefinition(n.write.Signature())
	conditional.Conditions = []sourcesink.Condition{
		sourcesink.NewAdditionalFlowCondition(n.p, nil, []string{n.getStream.Signature()}, nil),
	}
	source := &results.ResultSourceInfo{Definition: sourcesink.NewMethodDefinition(n.source.Signature()), Stmt: src}

	res := results.NewInfoflowResults(false)
	res.AddResult(&results.ResultSinkInfo{Definitions: []data.Definition{conditional}, Stmt: sinkStmt}, source)
	if removed := NewConditionalFlowPostProcessor(nil, fakeFlows{}).Process(res); removed != 1 {
		t.Errorf("expected one result removed, got %d", removed)
	}

	res.AddResult(&results.ResultSinkInfo{Definitions: []data.Definition{conditional}, Stmt: sinkStmt}, source)
	flows := fakeFlows{sinkStmt: {n.getStream}}
	if removed := NewConditionalFlowPostProcessor(nil, flows).Process(res); removed != 0 {
		t.Errorf("expected the result to be kept, %d removed", removed)
	}

	plain := sourcesink.NewMethodDefinition(n.write.Signature())
	res = results.NewInfoflowResults(false)
	res.AddResult(&results.ResultSinkInfo{Definitions: []data.Definition{conditional, plain}, Stmt: sinkStmt}, source)
	if removed := NewConditionalFlowPostProcessor(nil, fakeFlows{}).Process(res); removed != 0 {
		t.Errorf("expected the result to be kept, %d removed", removed)
	}
}
