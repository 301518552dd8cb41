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
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/internal/funcutil"
)

// ResultHandler is notified of each result found during the propagation. Returning false asks the analysis to
// stop the propagation.
type ResultHandler interface {
	OnResultAvailable(r *data.AbstractionAtSink) bool
}

// ResultHandlerFunc adapts a function to the ResultHandler interface
type ResultHandlerFunc func(r *data.AbstractionAtSink) bool

// OnResultAvailable implements ResultHandler
func (f ResultHandlerFunc) OnResultAvailable(r *data.AbstractionAtSink) bool { return f(r) }

// TaintPropagationResults collects the abstractions that reached a sink during the propagation. It is safe for
// concurrent use.
type TaintPropagationResults struct {
	results funcutil.SyncMap[data.AbstractionAtSinkKey, *data.AbstractionAtSink]

	handlersMu sync.RWMutex
	handlers   []ResultHandler
	stopped    atomic.Bool
}

// NewTaintPropagationResults returns an empty collector
func NewTaintPropagationResults() *TaintPropagationResults {
	return &TaintPropagationResults{}
}

// AddResult records the result. Equal results found along different paths become neighbors of the first one,
// such that all the paths can be reconstructed. It returns false if an equal result was already recorded.
// Handlers are notified of every result; a handler returning false sets the stop request (see Stopped).
func (r *TaintPropagationResults) AddResult(res *data.AbstractionAtSink) bool {
	abs := res.Abstraction.DeriveNewAbstractionMutable(res.Abstraction.AccessPath(), res.SinkStmt)
	if abs == nil {
		return true
	}
	abs.SetCorrespondingCallSite(res.SinkStmt)
	res = &data.AbstractionAtSink{SinkDefinitions: res.SinkDefinitions, Abstraction: abs, SinkStmt: res.SinkStmt}

	existing, loaded := r.results.PutIfAbsent(res.Key(), res)
	if loaded {
		existing.Abstraction.AddNeighbor(res.Abstraction)
	}

	r.handlersMu.RLock()
	defer r.handlersMu.RUnlock()
	for _, h := range r.handlers {
		if !h.OnResultAvailable(res) {
			r.stopped.Store(true)
		}
	}
	return !loaded
}

// Stopped returns true once a result handler asked to stop the propagation
func (r *TaintPropagationResults) Stopped() bool {
	return r.stopped.Load()
}

// AddResultAvailableHandler registers a handler notified of every new result
func (r *TaintPropagationResults) AddResultAvailableHandler(h ResultHandler) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Results returns the results, ordered by sink statement
func (r *TaintPropagationResults) Results() []*data.AbstractionAtSink {
	res := r.results.Values()
	sort.SliceStable(res, func(i, j int) bool { return res[i].String() < res[j].String() })
	return res
}

// Size returns the number of distinct results
func (r *TaintPropagationResults) Size() int { return r.results.Len() }

// IsEmpty returns true if no result has been found
func (r *TaintPropagationResults) IsEmpty() bool { return r.results.Len() == 0 }

func (r *TaintPropagationResults) String() string {
	var sb strings.Builder
	for _, res := range r.Results() {
		sb.WriteString("Abstraction: ")
		sb.WriteString(res.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
