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

// Package infoflow runs the taint analysis of a program. The Infoflow driver builds the analysis manager, the
// forward solver and the solvers of the alias and secondary flow analyses, runs them under the memory and timeout
// watchers, and reconstructs the results from the abstractions that reached the sinks.
package infoflow

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/aliasing"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/manager"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/memory"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/problems"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/results"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/river"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/solver"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/sourcesink"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/analysis/pointsto"
	"github.com/awslabs/ar-go-ifds/analysis/summaries"
	"golang.org/x/sync/errgroup"
)

// ResultsHandler is called with the final results of every run
type ResultsHandler func(g icfg.ICFG, res *results.InfoflowResults)

// Infoflow is the driver of the taint analysis
type Infoflow struct {
	Config *config.Config
	Logger *config.LogGroup

	// SourceSinkManager classifies the statements. If nil, the sources and sinks of the config are used.
	SourceSinkManager sourcesink.Manager
	// TaintWrapper models the library calls. If nil, the wrapper is built from the summary and wrapper files of
	// the config, on top of the built-in library summaries.
	TaintWrapper summaries.TaintWrapper
	// CallGraph resolves the callees. If nil, the call graph is computed with class hierarchy analysis.
	CallGraph *icfg.CallGraph

	handlers []ResultsHandler
	results  *results.InfoflowResults
}

// New returns a driver for the configuration. The configuration is validated.
func New(cfg *config.Config, logger *config.LogGroup) (*Infoflow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: missing configuration", config.ErrUnsupportedConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = config.NewLogGroup(cfg)
	}
	return &Infoflow{Config: cfg, Logger: logger, results: results.NewInfoflowResults(cfg.PathAgnosticResults)}, nil
}

// AddResultsAvailableHandler registers a handler called at the end of every run
func (inf *Infoflow) AddResultsAvailableHandler(h ResultsHandler) {
	inf.handlers = append(inf.handlers, h)
}

// Results returns the results of the last run. They are never nil.
func (inf *Infoflow) Results() *results.InfoflowResults { return inf.results }

// run holds the components of one run of the analysis
type run struct {
	inf       *Infoflow
	g         *icfg.ProgramICFG
	mgr       *manager.Manager
	executor  *solver.Executor
	fwd       *problems.InfoflowProblem
	fSolver   *solver.Solver
	bSolver   *solver.Solver
	secondary *river.Analysis
	res       *results.InfoflowResults
}

// solvers returns the solvers of the run
func (r *run) solvers() []*solver.Solver {
	s := []*solver.Solver{r.fSolver}
	if r.bSolver != nil {
		s = append(s, r.bSolver)
	}
	if r.secondary != nil {
		s = append(s, r.secondary.Solver())
	}
	return s
}

// Run analyzes the program. The results are returned even when an error occurs; they then hold what was found
// before the error.
func (inf *Infoflow) Run(ctx context.Context, p *ir.Program) (*results.InfoflowResults, error) {
	start := time.Now()
	cfg := inf.Config
	res := results.NewInfoflowResults(cfg.PathAgnosticResults)
	inf.results = res

	r, err := inf.setup(p, res)
	if r != nil && r.g != nil {
		defer r.g.Close()
	}
	if r != nil && r.executor != nil {
		defer r.executor.Close()
	}
	if err != nil {
		res.AddException(err.Error())
		return res, err
	}
	perf := results.PerformanceData{CallgraphConstruction: time.Since(start)}

	seeds := r.addSeeds(p)
	perf.SourceCount = seeds
	if seeds == 0 {
		inf.Logger.Warnf("No sources found, aborting analysis")
		inf.finish(r, perf, start)
		return res, nil
	}
	inf.Logger.Infof("Source lookup done, found %d sources", seeds)

	propagationStart := time.Now()
	err = inf.propagate(ctx, r)
	perf.TaintPropagation = time.Since(propagationStart)
	perf.MaxMemoryMB = memory.HeapUsage() >> 20
	for _, s := range r.solvers() {
		if s == r.fSolver {
			perf.EdgePropagationCount += s.PropagationCount()
		} else {
			perf.AliasPropagationCount += s.PropagationCount()
		}
		perf.SummaryApplications += s.SummaryApplications()
	}
	if errs := r.mgr.CheckError(); len(errs) > 0 {
		err = errors.Join(append([]error{err}, errs...)...)
	}

	pathStart := time.Now()
	if perr := inf.reconstructPaths(ctx, r); perr != nil {
		err = errors.Join(err, perr)
	}
	perf.PathReconstruction = time.Since(pathStart)
	perf.SinkCount = len(res.Sinks())

	if r.secondary != nil {
		river.NewConditionalFlowPostProcessor(inf.Logger, r.secondary.Flows()).Process(res)
		inf.Logger.Debugf("%d secondary sinks reached", len(r.secondary.Results()))
	}
	inf.finish(r, perf, start)
	if err != nil {
		return res, fmt.Errorf("taint analysis: %w", err)
	}
	return res, nil
}

// setup builds the components of the run. The returned run holds the resources to release even on error.
//
//gocyclo:ignore
func (inf *Infoflow) setup(p *ir.Program, res *results.InfoflowResults) (*run, error) {
	cfg := inf.Config
	logger := inf.Logger
	r := &run{inf: inf, res: res}

	g, err := icfg.New(p, inf.CallGraph)
	if err != nil {
		return r, err
	}
	r.g = g
	logger.Infof("Call graph has %d edges", g.CallGraph().Size())

	ssm := inf.SourceSinkManager
	if ssm == nil {
		ssm = sourcesink.NewConfigManager(logger, cfg, p)
	}
	ssm.Initialize(p)

	wrapper := inf.TaintWrapper
	if wrapper == nil {
		if wrapper, err = TaintWrapperFor(cfg, logger); err != nil {
			return r, err
		}
	}

	r.mgr = manager.New(cfg, logger, g, ssm, wrapper)
	if err := wrapper.Initialize(r.mgr); err != nil {
		return r, fmt.Errorf("could not initialize the taint wrapper: %w", err)
	}

	workers := cfg.NumWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if r.executor, err = solver.NewExecutor(workers); err != nil {
		return r, err
	}

	group := solver.NewPeerGroup()
	memoryManager := solver.NewMemoryManager(solver.ShorteningModeOf(cfg.PathShortening), solver.EraseNothing)
	activation := problems.NewActivationTable()
	r.fwd = problems.NewInfoflowProblem(r.mgr, activation)

	var strategy aliasing.Strategy
	switch cfg.AliasingAlgorithm {
	case config.AliasingFlowSensitive:
		r.bSolver = solver.NewSolver("backward", problems.NewAliasProblem(r.mgr, activation, r.fwd.ZeroValue()),
			r.executor, group, logger)
		r.bSolver.Configure(cfg.Options)
		r.bSolver.SetMemoryManager(memoryManager)
		strategy = aliasing.NewFlowSensitive(r.mgr, r.bSolver)
	case config.AliasingPtsBased:
		strategy = aliasing.NewPtsBased(r.mgr, pointsto.Analyze(p, g.CallGraph(), logger))
	case config.AliasingLazy:
		strategy = aliasing.NewLazy(pointsto.Analyze(p, g.CallGraph(), logger))
	case config.AliasingNone:
		strategy = aliasing.None{}
	default:
		return r, fmt.Errorf("%w: aliasing algorithm %q", config.ErrUnsupportedConfiguration, cfg.AliasingAlgorithm)
	}
	r.mgr.SetAliasing(aliasing.New(strategy, r.mgr))

	r.fSolver = solver.NewSolver("forward", r.fwd, r.executor, group, logger)
	r.fSolver.Configure(cfg.Options)
	r.fSolver.SetMemoryManager(memoryManager)
	r.mgr.SetForwardSolver(r.fSolver)

	if cfg.AdditionalFlowsEnabled {
		if r.secondary, err = river.New(r.mgr, r.fwd, r.executor, nil); err != nil {
			return r, err
		}
		r.secondary.Solver().SetMemoryManager(memoryManager)
	}
	return r, nil
}

// addSeeds places the zero fact at every source statement of the program and returns the number of seeds
func (r *run) addSeeds(p *ir.Program) int {
	ssm := r.mgr.SourceSinkManager()
	n := 0
	for _, m := range p.Methods() {
		if !m.HasBody() {
			continue
		}
		for _, s := range m.Body().Stmts {
			if ssm.SourceInfo(s, r.mgr) != nil {
				r.fwd.AddInitialSeed(s)
				n++
			}
		}
	}
	return n
}

// propagate runs the solvers under the watchers until they complete
func (inf *Infoflow) propagate(ctx context.Context, r *run) error {
	cfg := inf.Config
	eg, ctx := errgroup.WithContext(ctx)

	if cfg.MemoryThreshold > 0 {
		mw, err := memory.NewMemoryWatcher(inf.Logger, r.res, cfg.MaxMemory<<20, cfg.MemoryThreshold)
		if err != nil {
			return err
		}
		for _, s := range r.solvers() {
			mw.AddSolver(s)
		}
		mw.Start(ctx)
		defer mw.Close()
	}

	if cfg.HasDataFlowTimeout() {
		tw := memory.NewTimeoutWatcher(inf.Logger, time.Duration(cfg.DataFlowTimeout)*time.Second, r.res)
		// only the forward solver reports its status: the other solvers run on its executor
		tw.AddSolver(r.fSolver)
		tw.SetCallback(func() {
			reason := solver.TimeoutReason{Timeout: tw.Timeout()}
			for _, s := range r.solvers()[1:] {
				s.ForceTerminate(reason)
			}
		})
		tw.Start(ctx)
		eg.Go(func() error {
			<-tw.Done()
			return nil
		})
	}

	inf.Logger.Infof("Starting taint propagation")
	eg.Go(func() error { return r.fSolver.Solve(ctx) })
	err := eg.Wait()

	reason := r.fSolver.TerminationReason()
	switch {
	case reason == nil:
	case solver.IsTimeout(reason):
		r.res.AddTerminationState(results.DataFlowTimeout)
	case solver.IsOutOfMemory(reason):
		r.res.AddTerminationState(results.DataFlowOutOfMemory)
	default:
		r.res.AddTerminationState(results.AbortedByUser)
	}
	if reason != nil {
		inf.Logger.Warnf("Taint propagation terminated early: %s", reason)
	}
	inf.Logger.Infof("Taint propagation done, %d abstractions reached sinks", r.mgr.Results().Size())
	return err
}

// reconstructPaths turns the abstractions that reached the sinks into results, within the result timeout
func (inf *Infoflow) reconstructPaths(ctx context.Context, r *run) error {
	cfg := inf.Config
	if cfg.ResultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.ResultTimeout)*time.Second)
		defer cancel()
	}
	pb := results.NewContextInsensitivePathBuilder(inf.Logger, cfg.ComputePaths, r.executor.Workers())
	err := pb.ComputeTaintPaths(ctx, r.mgr.Results().Results(), r.res)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			r.res.AddTerminationState(results.PathReconstructionTimeout)
			r.res.AddException("Path reconstruction timeout reached")
			return nil
		}
		r.res.AddTerminationState(results.AbortedByUser)
		return err
	}
	return nil
}

// finish records the performance data, releases the solvers and notifies the handlers
func (inf *Infoflow) finish(r *run, perf results.PerformanceData, start time.Time) {
	perf.TotalRuntime = time.Since(start)
	r.res.SetPerformance(perf)
	inf.Logger.Infof("Analysis done: %s", perf)
	r.res.Log(inf.Logger)
	if inf.Config.ReportsDir != "" {
		names, err := r.res.WriteReports(inf.Config.ReportsDir)
		if err != nil {
			inf.Logger.Errorf("Could not write reports: %v", err)
		}
		for _, n := range names {
			inf.Logger.Infof("Report in %s", n)
		}
	}

	for _, s := range r.solvers() {
		s.Cleanup()
	}
	if r.secondary != nil {
		r.secondary.Cleanup()
	}
	r.mgr.Cleanup()
	for _, h := range inf.handlers {
		h(r.g, r.res)
	}
}

// TaintWrapperFor returns the taint wrapper described by the configuration: the easy taint wrappers of the
// wrapper files, then the summaries of the summary files and the built-in library summaries
func TaintWrapperFor(cfg *config.Config, logger *config.LogGroup) (summaries.TaintWrapper, error) {
	var wrappers []summaries.TaintWrapper
	for _, f := range cfg.WrapperFiles {
		w, err := summaries.LoadEasyTaintWrapper(cfg.RelPath(f))
		if err != nil {
			return nil, err
		}
		wrappers = append(wrappers, w)
	}
	providers := []summaries.Provider{}
	if len(cfg.SummaryFiles) > 0 {
		files := make([]string, len(cfg.SummaryFiles))
		for i, f := range cfg.SummaryFiles {
			files[i] = cfg.RelPath(f)
		}
		provider, err := summaries.NewYAMLSummaryProviderFromFiles(logger, files...)
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}
	providers = append(providers, summaries.LibrarySummaries())
	wrappers = append(wrappers, summaries.NewSummaryTaintWrapper(summaries.NewMergingSummaryProvider(providers...)))
	if len(wrappers) == 1 {
		return wrappers[0], nil
	}
	return summaries.NewTaintWrapperSet(wrappers...), nil
}
