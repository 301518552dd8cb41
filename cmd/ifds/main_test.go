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


package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/google/go-cmp/cmp"
)

// execute runs the root command with the arguments and returns its output
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, verbose, noColor, timeout, dotOutput, showCycles = "", false, false, 0, "", false
	loadOpts.Dir = ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := Execute(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if diff := cmp.Diff("ifds "+Version+"\n", out); diff != "" {
		t.Errorf("unexpected output (-want +got):\n%s", diff)
	}
}

func TestUsageErrors(t *testing.T) {
	if _, err := execute(t, "taint"); !errors.Is(err, errNoPackages) {
		t.Errorf("expected a missing package error, got %v", err)
	}
	if _, err := execute(t, "callgraph"); !errors.Is(err, errNoPackages) {
		t.Errorf("expected a missing package error, got %v", err)
	}
	if _, err := execute(t, "taint", "./..."); !errors.Is(err, errMissingConfig) {
		t.Errorf("expected a missing config error, got %v", err)
	}
	_, err := execute(t, "taint", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "./...")
	if err == nil || hint(err) == "" {
		t.Errorf("expected an error with a hint for a missing config file, got %v", err)
	}
}

func TestHint(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want bool
	}{
		{errNoPackages, true},
		{fmt.Errorf("taint: %w", errMissingConfig), true},
		{fmt.Errorf("invalid configuration: %w", config.ErrUnsupportedConfiguration), true},
		{context.Canceled, true},
		{errors.New("other"), false},
	} {
		if got := hint(tc.err) != ""; got != tc.want {
			t.Errorf("hint(%v) present = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestWriteDOT(t *testing.T) {
	p := ir.NewProgram()
	c := p.AddClass("example.com/app", nil)
	helper := c.AddMethod("helper", nil, ir.Void, true)
	hb := ir.NewBodyBuilder(helper)
	hb.ReturnVoid()
	hb.Finish()
	m := c.AddMethod("main", nil, ir.Void, true)
	b := ir.NewBodyBuilder(m)
	b.Invoke(ir.NewStaticInvoke(helper))
	b.ReturnVoid()
	b.Finish()

	cg := callgraphOf(p, icfg.BuildCHA(p))
	var out bytes.Buffer
	if err := writeDOT(&out, cg); err != nil {
		t.Fatalf("could not write DOT: %v", err)
	}
	s := out.String()
	if !strings.HasPrefix(s, "digraph callgraph {") || !strings.Contains(s, "->") {
		t.Errorf("unexpected DOT output:\n%s", s)
	}
	out.Reset()
	if err := writeCycles(&out, cg); err != nil || out.Len() != 0 {
		t.Errorf("expected no cycle, got %q (%v)", out.String(), err)
	}
}

func TestWriteCycles(t *testing.T) {
	p := ir.NewProgram()
	c := p.AddClass("example.com/app", nil)
	loop := c.AddMethod("loop", nil, ir.Void, true)
	b := ir.NewBodyBuilder(loop)
	b.Invoke(ir.NewStaticInvoke(loop))
	b.ReturnVoid()
	b.Finish()

	var out bytes.Buffer
	if err := writeCycles(&out, callgraphOf(p, icfg.BuildCHA(p))); err != nil {
		t.Fatalf("could not write cycles: %v", err)
	}
	want := loop.Signature() + " -> " + loop.Signature() + "\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("unexpected cycles (-want +got):\n%s", diff)
	}
}

func TestTaintCommand(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	cfg := `taint-tracking-problems:
  - sources:
      - package: example.com/basic
        method: Source
    sinks:
      - package: example.com/basic
        method: Sink
`
	if err := os.WriteFile(cfgFile, []byte(cfg), 0600); err != nil {
		t.Fatalf("could not write config: %v", err)
	}
	dir := filepath.Join("..", "..", "analysis", "ssafrontend", "testdata", "src", "basic")
	out, err := execute(t, "taint", "--config", cfgFile, "--dir", dir, "--timeout", "60", "./...")
	if err != nil {
		t.Fatalf("taint failed: %v", err)
	}
	if !strings.Contains(out, "A source has reached a sink") || strings.Contains(out, "\n0 flow(s) found") {
		t.Errorf("expected flows in the output:\n%s", out)
	}
}
