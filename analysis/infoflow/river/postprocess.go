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
	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/results"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/sourcesink"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// ConditionalFlowPostProcessor removes the results at conditional sinks whose conditions do not hold
type ConditionalFlowPostProcessor struct {
	logger *config.LogGroup
	flows  sourcesink.SecondaryFlows
}

// NewConditionalFlowPostProcessor returns a post processor evaluating the conditions against flows
func NewConditionalFlowPostProcessor(logger *config.LogGroup, flows sourcesink.SecondaryFlows) *ConditionalFlowPostProcessor {
	if logger == nil {
		logger = config.NewNopLogGroup()
	}
	return &ConditionalFlowPostProcessor{logger: logger, flows: flows}
}

// Process removes the results of res that only reach conditional sinks with failing conditions. A result is kept
// as soon as one of its sink definitions is unconditional or has a condition that holds. It returns the number
// of results removed.
func (pp *ConditionalFlowPostProcessor) Process(res *results.InfoflowResults) int {
	if res == nil {
		return 0
	}
	removed := 0
	for _, r := range res.Results() {
		if pp.holds(r) {
			continue
		}
		res.Remove(r.Sink, r.Source)
		removed++
	}
	if removed > 0 {
		pp.logger.Infof("Removed %d results whose sink conditions do not hold", removed)
	}
	return removed
}

func (pp *ConditionalFlowPostProcessor) holds(r results.Result) bool {
	var baseType *ir.Type
	if r.Source != nil && r.Source.AccessPath != nil {
		baseType = r.Source.AccessPath.BaseType()
	}
	if len(r.Sink.Definitions) == 0 {
		return true
	}
	for _, def := range r.Sink.Definitions {
		md, ok := def.(*sourcesink.MethodDefinition)
		if !ok || len(md.Conditions) == 0 {
			return true
		}
		for _, c := range md.Conditions {
			if c.Evaluate(r.Sink.Stmt, baseType, pp.flows) {
				return true
			}
		}
	}
	return false
}
