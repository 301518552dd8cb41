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

package results

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/google/go-cmp/cmp"
)

type def string

func (d *def) String() string { return string(*d) }

type fixture struct {
	apf                   *data.AccessPathFactory
	src, copy1, copy2, sk ir.Stmt
	x, y, z               *ir.Local
	srcDef, sinkDef       *def
}

// newFixture builds x = source(); y = x; z = x; sink(y)
func newFixture() fixture {
	p := ir.NewProgram()
	c := p.AddClass("example.Main", nil)
	source := c.AddMethod("source", nil, ir.String, true)
	sink := c.AddMethod("sink", []*ir.Type{ir.String}, ir.Void, true)
	m := c.AddMethod("main", nil, ir.Void, true)
	b := ir.NewBodyBuilder(m)
	x := b.Local("x", ir.String)
	y := b.Local("y", ir.String)
	z := b.Local("z", ir.String)
	src := b.Assign(x, ir.NewStaticInvoke(source))
	c1 := b.Assign(y, x)
	c2 := b.Assign(z, x)
	sk := b.Invoke(ir.NewStaticInvoke(sink, y))
	b.ReturnVoid()
	b.Finish()
	sd, kd := def("source"), def("sink")
	return fixture{
		apf: data.NewAccessPathFactory(config.NewDefault().Options, p),
		src: src, copy1: c1, copy2: c2, sk: sk, x: x, y: y, z: z, srcDef: &sd, sinkDef: &kd,
	}
}

func (f fixture) sourceAbs() *data.Abstraction {
	return data.ZeroAbstraction(false).NewSourceAbstraction(f.srcDef, f.apf.CreateAccessPath(f.x, true), f.src,
		nil, false, false)
}

func TestTaintPropagationResultsNeighbors(t *testing.T) {
	f := newFixture()
	src := f.sourceAbs()
	viaY := src.DeriveNewAbstraction(f.apf.CreateAccessPath(f.y, true), f.copy1)
	viaY2 := src.DeriveNewAbstraction(f.apf.CreateAccessPath(f.y, true), f.copy2)

	r := NewTaintPropagationResults()
	var notified int
	r.AddResultAvailableHandler(ResultHandlerFunc(func(*data.AbstractionAtSink) bool {
		notified++
		return true
	}))
	if !r.AddResult(data.NewAbstractionAtSink([]data.Definition{f.sinkDef}, viaY, f.sk)) {
		t.Errorf("first result should be new")
	}
	if r.AddResult(data.NewAbstractionAtSink([]data.Definition{f.sinkDef}, viaY2, f.sk)) {
		t.Errorf("equal result should be reported as a duplicate")
	}
	if r.Size() != 1 {
		t.Fatalf("equal results should be merged, got %d", r.Size())
	}
	if notified != 2 {
		t.Errorf("handler should be notified of both results, got %d", notified)
	}
	if n := r.Results()[0].Abstraction.NeighborCount(); n != 1 {
		t.Errorf("second derivation should be a neighbor, got %d neighbors", n)
	}

	if r.Stopped() {
		t.Errorf("no handler asked to stop")
	}
	r.AddResultAvailableHandler(ResultHandlerFunc(func(*data.AbstractionAtSink) bool { return false }))
	viaZ := src.DeriveNewAbstraction(f.apf.CreateAccessPath(f.z, true), f.copy2)
	if !r.AddResult(data.NewAbstractionAtSink([]data.Definition{f.sinkDef}, viaZ, f.sk)) {
		t.Errorf("result on another access path should be new")
	}
	if !r.Stopped() {
		t.Errorf("a handler returning false should stop the analysis")
	}
}

func TestPathBuilderSources(t *testing.T) {
	f := newFixture()
	src := f.sourceAbs()
	viaY := src.DeriveNewAbstraction(f.apf.CreateAccessPath(f.y, true), f.copy1)

	r := NewTaintPropagationResults()
	r.AddResult(data.NewAbstractionAtSink([]data.Definition{f.sinkDef}, viaY, f.sk))

	res := NewInfoflowResults(false)
	b := NewContextInsensitivePathBuilder(config.NewNopLogGroup(), false, 2)
	if err := b.ComputeTaintPaths(context.Background(), r.Results(), res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Size() != 1 {
		t.Fatalf("expected one result, got %d", res.Size())
	}
	if !res.IsPathBetween(f.sk, f.src) {
		t.Errorf("missing flow from %s to %s", f.src, f.sk)
	}
	if !res.ContainsSink(f.sk) || res.ContainsSink(f.copy1) {
		t.Errorf("only the sink call should be a sink")
	}
	if !res.IsPathBetweenMethods("<example.Main: void sink(string)>",
		"<example.Main: string source()>") {
		t.Errorf("flow between the source and sink methods should be found")
	}
}

func TestPathBuilderPaths(t *testing.T) {
	f := newFixture()
	src := f.sourceAbs()
	viaY := src.DeriveNewAbstraction(f.apf.CreateAccessPath(f.y, true), f.copy1)
	viaZ := src.DeriveNewAbstraction(f.apf.CreateAccessPath(f.z, true), f.copy2)
	viaZY := viaZ.DeriveNewAbstraction(f.apf.CreateAccessPath(f.y, true), f.copy1)

	r := NewTaintPropagationResults()
	r.AddResult(data.NewAbstractionAtSink([]data.Definition{f.sinkDef}, viaY, f.sk))
	r.AddResult(data.NewAbstractionAtSink([]data.Definition{f.sinkDef}, viaZY, f.sk))

	res := NewInfoflowResults(false)
	b := NewContextInsensitivePathBuilder(config.NewNopLogGroup(), true, 1)
	if err := b.ComputeTaintPaths(context.Background(), r.Results(), res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var paths [][]ir.Stmt
	for _, x := range res.Results() {
		paths = append(paths, x.Source.Path)
	}
	want := [][]ir.Stmt{
		{f.src, f.copy1, f.sk},
		{f.src, f.copy2, f.copy1, f.sk},
	}
	if diff := cmp.Diff(want, paths, cmp.Comparer(func(a, b ir.Stmt) bool { return a == b })); diff != "" {
		t.Errorf("unexpected paths (-want +got):\n%s", diff)
	}

	agnostic := NewInfoflowResults(true)
	if err := b.ComputeTaintPaths(context.Background(), r.Results(), agnostic); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agnostic.Size() != 1 {
		t.Errorf("path agnostic results should merge paths, got %d", agnostic.Size())
	}
}

func TestInfoflowResultsBookkeeping(t *testing.T) {
	f := newFixture()
	res := NewInfoflowResults(true)
	if !res.IsEmpty() {
		t.Errorf("new results should be empty")
	}
	sink := &ResultSinkInfo{Stmt: f.sk, AccessPath: f.apf.CreateAccessPath(f.y, true)}
	source := &ResultSourceInfo{Stmt: f.src, AccessPath: f.apf.CreateAccessPath(f.x, true), Definition: f.srcDef}
	if !res.AddResult(sink, source) || res.AddResult(sink, source) {
		t.Errorf("the second insertion of the same flow should be reported as a duplicate")
	}
	res.AddException("Timeout reached")
	res.AddException("Timeout reached")
	if diff := cmp.Diff([]string{"Timeout reached"}, res.Exceptions()); diff != "" {
		t.Errorf("exceptions (-want +got):\n%s", diff)
	}
	res.AddTerminationState(DataFlowTimeout)
	res.AddTerminationState(AbortedByUser)
	if s := res.TerminationState(); s&DataFlowTimeout == 0 || s&AbortedByUser == 0 || s&DataFlowOutOfMemory != 0 {
		t.Errorf("unexpected termination state %s", s)
	}
	res.Remove(sink, source)
	if !res.IsEmpty() || len(res.Sinks()) != 0 {
		t.Errorf("removing the only source should remove the sink")
	}
}

func TestWriteReports(t *testing.T) {
	f := newFixture()
	ir.SetLine(f.src, 3)
	ir.SetLine(f.sk, 6)
	res := NewInfoflowResults(true)
	sink := &ResultSinkInfo{Stmt: f.sk, AccessPath: f.apf.CreateAccessPath(f.y, true)}
	source := &ResultSourceInfo{
		Stmt:       f.src,
		AccessPath: f.apf.CreateAccessPath(f.x, true),
		Definition: f.srcDef,
		Path:       []ir.Stmt{f.src, f.copy1, f.sk},
	}
	res.AddResult(sink, source)

	dir := t.TempDir()
	names, err := res.WriteReports(dir)
	if err != nil {
		t.Fatalf("could not write reports: %v", err)
	}
	if len(names) != 1 || filepath.Dir(names[0]) != dir {
		t.Fatalf("expected one report in %s, got %v", dir, names)
	}
	content, err := os.ReadFile(names[0])
	if err != nil {
		t.Fatalf("could not read report: %v", err)
	}
	main := f.src.Method().Signature()
	want := strings.Join([]string{
		"Source: " + f.src.String(),
		"At: " + main + ":3",
		"Sink: " + f.sk.String(),
		"At: " + main + ":6",
		"Trace:",
		main + ":3",
		main + ":0",
		main + ":6",
		"",
	}, "\n")
	if diff := cmp.Diff(want, string(content)); diff != "" {
		t.Errorf("unexpected report (-want +got):\n%s", diff)
	}
}
