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
	"time"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/results"
	"github.com/awslabs/ar-go-ifds/analysis/ssafrontend"
	"github.com/awslabs/ar-go-ifds/internal/formatutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	timeout int

	taintCmd = &cobra.Command{
		Use:   "taint [flags] <package path(s)>",
		Short: "Report the flows from the sources to the sinks of the config",
		Args:  requirePackages,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("timeout") {
				cfg.DataFlowTimeout = timeout
			}
			return runTaint(cmd, cfg, args)
		},
	}
)

func init() {
	fs := pflag.NewFlagSet("taint", pflag.ContinueOnError)
	fs.IntVar(&timeout, "timeout", 0, "data flow timeout in seconds, 0 for none")
	taintCmd.Flags().AddFlagSet(fs)
}

func runTaint(cmd *cobra.Command, cfg *config.Config, patterns []string) error {
	logger := config.NewLogGroup(cfg)
	logger.Infof(formatutil.Faint("Reading sources"))
	lp, err := ssafrontend.Load(logger, loadOpts, patterns...)
	if err != nil {
		return fmt.Errorf("could not load program: %w", err)
	}

	inf, err := infoflow.New(cfg, logger)
	if err != nil {
		return err
	}
	inf.CallGraph = lp.CallGraph()

	start := time.Now()
	res, err := inf.Run(cmd.Context(), lp.Program)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	logger.Infof("Analysis took %3.4f s", time.Since(start).Seconds())
	printFlows(cmd, res)
	if s := res.TerminationState(); s != results.TerminationSuccess {
		logger.Warnf("Analysis ended early (%s), the results may be incomplete", s)
	}
	return nil
}

// printFlows prints one line per flow found on the command output
func printFlows(cmd *cobra.Command, res *results.InfoflowResults) {
	out := cmd.OutOrStdout()
	for _, r := range res.Results() {
		fmt.Fprintf(out, "%s in %s:\n\tSink: %s\n\t\t[%s]\n\tSource: %s\n\t\t[%s]\n",
			formatutil.Red("A source has reached a sink"),
			r.Sink.Stmt.Method().Name,
			r.Sink.Stmt, results.Position(r.Sink.Stmt),
			r.Source.Stmt, results.Position(r.Source.Stmt))
	}
	fmt.Fprintf(out, "%d flow(s) found\n", res.Size())
}
