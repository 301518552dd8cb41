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
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/internal/formatutil"
	"github.com/samber/lo"
)

// TerminationState is a set of flags describing how the analysis ended
type TerminationState int

// Termination flags
const (
	TerminationSuccess TerminationState = 0

	DataFlowTimeout TerminationState = 1 << iota
	DataFlowOutOfMemory
	PathReconstructionTimeout
	PathReconstructionOutOfMemory
	AbortedByUser
)

func (s TerminationState) String() string {
	if s == TerminationSuccess {
		return "success"
	}
	var parts []string
	for flag, name := range map[TerminationState]string{
		DataFlowTimeout:               "data flow timeout",
		DataFlowOutOfMemory:           "data flow out of memory",
		PathReconstructionTimeout:     "path reconstruction timeout",
		PathReconstructionOutOfMemory: "path reconstruction out of memory",
		AbortedByUser:                 "aborted",
	} {
		if s&flag != 0 {
			parts = append(parts, name)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

// ResultSinkInfo describes the sink end of a result
type ResultSinkInfo struct {
	Definitions []data.Definition
	AccessPath  *data.AccessPath
	Stmt        ir.Stmt
}

func (s *ResultSinkInfo) String() string {
	return fmt.Sprintf("%s in %s", s.Stmt, s.Stmt.Method().Signature())
}

// ResultSourceInfo describes the source end of a result and optionally the path from the source to the sink
type ResultSourceInfo struct {
	Definition data.Definition
	AccessPath *data.AccessPath
	Stmt       ir.Stmt
	UserData   any
	// Path lists the statements from the source to the sink, if paths are computed
	Path []ir.Stmt
	// PathAccessPaths lists the tainted access path at each statement of Path
	PathAccessPaths []*data.AccessPath
}

func (s *ResultSourceInfo) String() string {
	return fmt.Sprintf("%s in %s", s.Stmt, s.Stmt.Method().Signature())
}

// Result is one source to sink flow
type Result struct {
	Sink   *ResultSinkInfo
	Source *ResultSourceInfo
}

// PerformanceData records the cost of the analysis phases
type PerformanceData struct {
	CallgraphConstruction  time.Duration
	TaintPropagation       time.Duration
	PathReconstruction     time.Duration
	TotalRuntime           time.Duration
	MaxMemoryMB            uint64
	EdgePropagationCount   int64
	AliasPropagationCount  int64
	SummaryApplications    int64
	SourceCount, SinkCount int
}

func (p PerformanceData) String() string {
	return fmt.Sprintf("propagation %s, paths %s, total %s, %d edges (%d for aliases), %d summary applications, "+
		"max memory %d MB", p.TaintPropagation, p.PathReconstruction, p.TotalRuntime, p.EdgePropagationCount,
		p.AliasPropagationCount, p.SummaryApplications, p.MaxMemoryMB)
}

type sinkKey struct {
	stmt ir.Stmt
	ap   string
}

type sourceKey struct {
	stmt ir.Stmt
	ap   string
	def  data.Definition
	path string
}

// InfoflowResults are the final results of an analysis: the sources reaching each sink, with the notes recorded
// when the analysis did not end normally. It is safe for concurrent use.
type InfoflowResults struct {
	mu          sync.RWMutex
	sinks       map[sinkKey]*ResultSinkInfo
	sinkOrder   []sinkKey
	sources     map[sinkKey]map[sourceKey]*ResultSourceInfo
	exceptions  []string
	termination TerminationState
	performance PerformanceData
	pathAgnostic bool
}

// NewInfoflowResults returns empty results. With pathAgnostic set, results with the same source and sink are
// recorded once, whatever their path.
func NewInfoflowResults(pathAgnostic bool) *InfoflowResults {
	return &InfoflowResults{
		sinks:        map[sinkKey]*ResultSinkInfo{},
		sources:      map[sinkKey]map[sourceKey]*ResultSourceInfo{},
		pathAgnostic: pathAgnostic,
	}
}

func keyOfSink(s *ResultSinkInfo) sinkKey {
	k := sinkKey{stmt: s.Stmt}
	if s.AccessPath != nil {
		k.ap = s.AccessPath.Key()
	}
	return k
}

func (r *InfoflowResults) keyOfSource(s *ResultSourceInfo) sourceKey {
	k := sourceKey{stmt: s.Stmt, def: s.Definition}
	if s.AccessPath != nil {
		k.ap = s.AccessPath.Key()
	}
	if !r.pathAgnostic {
		var sb strings.Builder
		for _, st := range s.Path {
			fmt.Fprintf(&sb, "%p;", st)
		}
		k.path = sb.String()
	}
	return k
}

// AddResult records a flow from the source to the sink. It returns false if the flow was already recorded.
func (r *InfoflowResults) AddResult(sink *ResultSinkInfo, source *ResultSourceInfo) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sk := keyOfSink(sink)
	if _, ok := r.sinks[sk]; !ok {
		r.sinks[sk] = sink
		r.sinkOrder = append(r.sinkOrder, sk)
		r.sources[sk] = map[sourceKey]*ResultSourceInfo{}
	}
	srcKey := r.keyOfSource(source)
	if _, ok := r.sources[sk][srcKey]; ok {
		return false
	}
	r.sources[sk][srcKey] = source
	return true
}

// AddAll adds all the results and notes of other
func (r *InfoflowResults) AddAll(other *InfoflowResults) {
	if other == nil || other == r {
		return
	}
	for _, res := range other.Results() {
		r.AddResult(res.Sink, res.Source)
	}
	for _, e := range other.Exceptions() {
		r.AddException(e)
	}
	r.SetTerminationState(r.TerminationState() | other.TerminationState())
}

// Remove deletes the flow from the source to the sink. The sink is deleted when it has no source left.
func (r *InfoflowResults) Remove(sink *ResultSinkInfo, source *ResultSourceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sk := keyOfSink(sink)
	srcs, ok := r.sources[sk]
	if !ok {
		return
	}
	delete(srcs, r.keyOfSource(source))
	if len(srcs) == 0 {
		delete(r.sources, sk)
		delete(r.sinks, sk)
		r.sinkOrder = lo.Without(r.sinkOrder, sk)
	}
}

// Results returns all the flows, grouped by sink in the order in which the sinks were found
func (r *InfoflowResults) Results() []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []Result
	for _, sk := range r.sinkOrder {
		srcs := lo.Values(r.sources[sk])
		sort.Slice(srcs, func(i, j int) bool { return sourceLess(srcs[i], srcs[j]) })
		for _, src := range srcs {
			res = append(res, Result{Sink: r.sinks[sk], Source: src})
		}
	}
	return res
}

func sourceLess(a, b *ResultSourceInfo) bool {
	ma, mb := a.Stmt.Method().Signature(), b.Stmt.Method().Signature()
	if ma != mb {
		return ma < mb
	}
	if a.Stmt.Index() != b.Stmt.Index() {
		return a.Stmt.Index() < b.Stmt.Index()
	}
	return len(a.Path) < len(b.Path)
}

// Sinks returns the sinks reached by some source
func (r *InfoflowResults) Sinks() []*ResultSinkInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.sinkOrder, func(k sinkKey, _ int) *ResultSinkInfo { return r.sinks[k] })
}

// SourcesOf returns the sources reaching the sink
func (r *InfoflowResults) SourcesOf(sink *ResultSinkInfo) []*ResultSourceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.sources[keyOfSink(sink)])
}

// Size returns the number of flows
func (r *InfoflowResults) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, srcs := range r.sources {
		n += len(srcs)
	}
	return n
}

// IsEmpty returns true if no flow was found
func (r *InfoflowResults) IsEmpty() bool { return r.Size() == 0 }

// ContainsSink returns true if some flow reaches the sink statement
func (r *InfoflowResults) ContainsSink(s ir.Stmt) bool {
	return lo.SomeBy(r.Sinks(), func(x *ResultSinkInfo) bool { return x.Stmt == s })
}

// ContainsSinkMethod returns true if some flow reaches a call to the method with the signature
func (r *InfoflowResults) ContainsSinkMethod(signature string) bool {
	return lo.SomeBy(r.Sinks(), func(x *ResultSinkInfo) bool {
		ie := x.Stmt.InvokeExpr()
		return ie != nil && ie.Method.Signature() == signature
	})
}

// IsPathBetween returns true if a flow from the source statement reaches the sink statement
func (r *InfoflowResults) IsPathBetween(sink, source ir.Stmt) bool {
	return lo.SomeBy(r.Results(), func(x Result) bool { return x.Sink.Stmt == sink && x.Source.Stmt == source })
}

// IsPathBetweenMethods returns true if a flow from a call to the source method reaches a call to the sink method
func (r *InfoflowResults) IsPathBetweenMethods(sinkSignature, sourceSignature string) bool {
	callsTo := func(s ir.Stmt, sig string) bool {
		ie := s.InvokeExpr()
		return ie != nil && ie.Method.Signature() == sig
	}
	return lo.SomeBy(r.Results(), func(x Result) bool {
		return callsTo(x.Sink.Stmt, sinkSignature) && callsTo(x.Source.Stmt, sourceSignature)
	})
}

// AddException records a note explaining why the results may be incomplete
func (r *InfoflowResults) AddException(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !lo.Contains(r.exceptions, msg) {
		r.exceptions = append(r.exceptions, msg)
	}
}

// Exceptions returns the notes recorded during the analysis
func (r *InfoflowResults) Exceptions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.exceptions...)
}

// SetTerminationState sets the termination flags
func (r *InfoflowResults) SetTerminationState(s TerminationState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.termination = s
}

// AddTerminationState adds the flags to the termination state
func (r *InfoflowResults) AddTerminationState(s TerminationState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.termination |= s
}

// TerminationState returns the termination flags
func (r *InfoflowResults) TerminationState() TerminationState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.termination
}

// Performance returns the performance data of the analysis
func (r *InfoflowResults) Performance() PerformanceData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.performance
}

// SetPerformance sets the performance data of the analysis
func (r *InfoflowResults) SetPerformance(p PerformanceData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.performance = p
}

// Log prints the results with the logger
func (r *InfoflowResults) Log(logger *config.LogGroup) {
	results := r.Results()
	if len(results) == 0 {
		logger.Infof("No results found.")
	}
	for _, res := range results {
		logger.Infof("%s %s", formatutil.Red("Sink:"), res.Sink)
		logger.Infof("\t%s %s", formatutil.Green("Source:"), res.Source)
		for i, s := range res.Source.Path {
			ap := ""
			if i < len(res.Source.PathAccessPaths) && res.Source.PathAccessPaths[i] != nil {
				ap = " [" + res.Source.PathAccessPaths[i].String() + "]"
			}
			logger.Debugf("\t\t%s%s", s, ap)
		}
	}
	for _, e := range r.Exceptions() {
		logger.Warnf("%s", e)
	}
}
