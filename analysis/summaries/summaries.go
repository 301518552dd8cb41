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

// Package summaries models library methods with flow summaries instead of analyzing their code. A summary
// lists, for each method, the flows from its parameters, receiver and their fields to its receiver, parameters
// and return value. Taint wrappers apply the summaries at call sites during the analysis.
package summaries

import (
	"errors"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// MethodSummaries are the flows and clears of a set of methods, indexed by method. A method is identified either
// by its sub-signature, or by its name when the language has no overloading.
type MethodSummaries struct {
	flows  map[string][]*MethodFlow
	clears map[string][]*MethodClear
	gaps   map[int]*GapDefinition
}

// NewMethodSummaries returns an empty set of summaries
func NewMethodSummaries() *MethodSummaries {
	return &MethodSummaries{
		flows:  map[string][]*MethodFlow{},
		clears: map[string][]*MethodClear{},
		gaps:   map[int]*GapDefinition{},
	}
}

// AddFlow adds the flow unless an equal flow is already present
func (s *MethodSummaries) AddFlow(f *MethodFlow) {
	if lo.SomeBy(s.flows[f.Method], func(x *MethodFlow) bool { return x.Equal(f) }) {
		return
	}
	s.flows[f.Method] = append(s.flows[f.Method], f)
}

// AddClear adds the clear
func (s *MethodSummaries) AddClear(c *MethodClear) {
	s.clears[c.Method] = append(s.clears[c.Method], c)
}

// AddGap registers the gap definition
func (s *MethodSummaries) AddGap(g *GapDefinition) { s.gaps[g.ID] = g }

// Gap returns the gap with the id
func (s *MethodSummaries) Gap(id int) *GapDefinition { return s.gaps[id] }

// Merge adds all the flows, clears and gaps of other
func (s *MethodSummaries) Merge(other *MethodSummaries) {
	if other == nil {
		return
	}
	for _, fs := range other.flows {
		for _, f := range fs {
			s.AddFlow(f)
		}
	}
	for _, cs := range other.clears {
		for _, c := range cs {
			s.AddClear(c)
		}
	}
	for _, g := range other.gaps {
		s.AddGap(g)
	}
}

// key returns the index of the method in the summaries: the sub-signature if present, otherwise the method name
// extracted from it
func (s *MethodSummaries) key(subSignature string) string {
	if _, ok := s.flows[subSignature]; ok {
		return subSignature
	}
	if _, ok := s.clears[subSignature]; ok {
		return subSignature
	}
	return MethodNameOf(subSignature)
}

// FlowsFor returns the flows of the method with the sub-signature
func (s *MethodSummaries) FlowsFor(subSignature string) []*MethodFlow {
	return s.flows[s.key(subSignature)]
}

// ClearsFor returns the clears of the method with the sub-signature
func (s *MethodSummaries) ClearsFor(subSignature string) []*MethodClear {
	return s.clears[s.key(subSignature)]
}

// FilterForMethod returns the summaries of the method with the sub-signature only
func (s *MethodSummaries) FilterForMethod(subSignature string) *MethodSummaries {
	res := NewMethodSummaries()
	k := s.key(subSignature)
	for _, f := range s.flows[k] {
		res.AddFlow(f)
	}
	for _, c := range s.clears[k] {
		res.AddClear(c)
	}
	for _, f := range s.flows[k] {
		for _, e := range []FlowEndpoint{f.Source, f.Sink.FlowEndpoint} {
			if e.Gap != nil {
				if g := s.gaps[*e.Gap]; g != nil {
					res.AddGap(g)
				}
			}
		}
	}
	return res
}

// FilterForAliases returns the summaries restricted to the alias flows
func (s *MethodSummaries) FilterForAliases() *MethodSummaries {
	res := NewMethodSummaries()
	for _, fs := range s.flows {
		for _, f := range fs {
			if f.IsAlias {
				res.AddFlow(f)
			}
		}
	}
	for _, cs := range s.clears {
		for _, c := range cs {
			res.AddClear(c)
		}
	}
	return res
}

// Flows returns all the flows, ordered by method
func (s *MethodSummaries) Flows() []*MethodFlow {
	var res []*MethodFlow
	for _, k := range s.Methods() {
		res = append(res, s.flows[k]...)
	}
	return res
}

// Methods returns the summarized methods in order
func (s *MethodSummaries) Methods() []string {
	keys := lo.Uniq(append(lo.Keys(s.flows), lo.Keys(s.clears)...))
	sort.Strings(keys)
	return keys
}

// HasClears returns true if some method has a clear
func (s *MethodSummaries) HasClears() bool {
	return lo.SomeBy(lo.Values(s.clears), func(cs []*MethodClear) bool { return len(cs) > 0 })
}

// IsEmpty returns true if the summaries contain no flow and no clear
func (s *MethodSummaries) IsEmpty() bool {
	return s == nil || (len(s.flows) == 0 && len(s.clears) == 0)
}

// Validate checks all the flows and returns all the errors found
func (s *MethodSummaries) Validate() error {
	var errs []error
	for _, f := range s.Flows() {
		if err := f.Validate(); err != nil {
			errs = append(errs, err)
		}
		for _, e := range []FlowEndpoint{f.Source, f.Sink.FlowEndpoint} {
			if e.Gap != nil && s.gaps[*e.Gap] == nil {
				errs = append(errs, &InvalidFlowSpecificationError{Flow: f, Method: f.Method,
					Msg: "reference to undefined gap"})
			}
		}
	}
	return errors.Join(errs...)
}

// ClassMethodSummaries are the summaries of the methods of one class
type ClassMethodSummaries struct {
	ClassName  string
	Superclass string
	Interfaces []string
	// ExclusiveForClass states that the summaries cover every method of the class: calls to methods without flows
	// have no effect on taints
	ExclusiveForClass bool
	Methods           *MethodSummaries
}

// NewClassMethodSummaries returns empty summaries for the class
func NewClassMethodSummaries(className string) *ClassMethodSummaries {
	return &ClassMethodSummaries{ClassName: className, Methods: NewMethodSummaries()}
}

// IsEmpty returns true if the class has no summarized method
func (c *ClassMethodSummaries) IsEmpty() bool { return c == nil || c.Methods.IsEmpty() }

// Merge adds the summaries of other
func (c *ClassMethodSummaries) Merge(other *ClassMethodSummaries) {
	if other == nil {
		return
	}
	if c.Superclass == "" {
		c.Superclass = other.Superclass
	}
	c.Interfaces = lo.Uniq(append(c.Interfaces, other.Interfaces...))
	c.ExclusiveForClass = c.ExclusiveForClass || other.ExclusiveForClass
	c.Methods.Merge(other.Methods)
}

// MethodNameOf returns the name of the method in a sub-signature "ret name(params)". A plain name is returned
// unchanged.
func MethodNameOf(subSignature string) string {
	s := subSignature
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, ' '); i >= 0 {
		s = s[i+1:]
	}
	return s
}
