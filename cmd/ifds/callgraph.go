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
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/analysis/ssafrontend"
	"github.com/awslabs/ar-go-ifds/internal/funcutil"
	"github.com/awslabs/ar-go-ifds/internal/graphutil"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gonum.org/v1/gonum/graph/encoding/dot"
)

var (
	dotOutput  string
	showCycles bool

	callgraphCmd = &cobra.Command{
		Use:   "callgraph [flags] <package path(s)>",
		Short: "Print the call graph of the analyzed methods in DOT format, or its cycles",
		Args:  requirePackages,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			logger := config.NewLogGroup(cfg)
			lp, err := ssafrontend.Load(logger, loadOpts, args...)
			if err != nil {
				return fmt.Errorf("could not load program: %w", err)
			}
			out := cmd.OutOrStdout()
			if dotOutput != "" {
				f, err := os.Create(dotOutput)
				if err != nil {
					return fmt.Errorf("could not create %s: %w", dotOutput, err)
				}
				defer f.Close()
				out = f
			}
			cg := callgraphOf(lp.Program, lp.CallGraph())
			if showCycles {
				return writeCycles(out, cg)
			}
			return writeDOT(out, cg)
		},
	}
)

func init() {
	fs := pflag.NewFlagSet("callgraph", pflag.ContinueOnError)
	fs.StringVarP(&dotOutput, "output", "o", "", "output file, stdout if empty")
	fs.BoolVar(&showCycles, "cycles", false, "print the recursive call cycles instead of the graph")
	callgraphCmd.Flags().AddFlagSet(fs)
}

// callgraphOf returns the call graph restricted to the methods with a body outside the libraries and their callees
func callgraphOf(p *ir.Program, cg *icfg.CallGraph) *graphutil.CGraph {
	callees := func(m *ir.Method) []*ir.Method {
		if !m.HasBody() {
			return nil
		}
		var res []*ir.Method
		for _, s := range m.Body().Stmts {
			for _, c := range cg.Callees(s) {
				if !funcutil.Contains(res, c) {
					res = append(res, c)
				}
			}
		}
		return res
	}
	var methods []*ir.Method
	for _, m := range p.Methods() {
		if m.HasBody() && !m.Class.Library {
			methods = append(methods, m)
		}
	}
	for _, m := range methods {
		for _, c := range callees(m) {
			if !funcutil.Contains(methods, c) {
				methods = append(methods, c)
			}
		}
	}
	return graphutil.NewCallgraphIterator(methods, callees)
}

// writeDOT writes the call graph in DOT format
func writeDOT(w io.Writer, cg *graphutil.CGraph) error {
	b, err := dot.Marshal(cg, "callgraph", "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal call graph: %w", err)
	}
	_, err = w.Write(b)
	return err
}

// writeCycles writes one line per elementary cycle of the call graph
func writeCycles(w io.Writer, cg *graphutil.CGraph) error {
	for _, cycle := range graphutil.MethodCycles(cg) {
		names := lo.Map(cycle, func(m *ir.Method, _ int) string { return m.Signature() })
		names = append(names, names[0])
		if _, err := fmt.Fprintln(w, strings.Join(names, " -> ")); err != nil {
			return err
		}
	}
	return nil
}
