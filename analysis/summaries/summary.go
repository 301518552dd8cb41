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

package summaries

import (
	"strings"
)

// Summary is a compact form of the flows of a Go function, indexed by argument position. For methods, position 0
// is the receiver.
type Summary struct {
	// Args maps each argument position to the positions that are tainted after the call if that argument is
	// tainted. Args[0] = [0,1] means a taint on the first argument also taints the second one.
	Args [][]int
	// Rets maps each argument position to the results it flows to. A non-empty entry taints the result of the call.
	Rets [][]int
}

// NoDataFlowPropagation is the summary of functions without data flow
var NoDataFlowPropagation = Summary{Rets: [][]int{}, Args: [][]int{}}

// SingleVarArgPropagation is the summary of functions whose only argument flows to the result
var SingleVarArgPropagation = Summary{Args: [][]int{{0}}, Rets: [][]int{{0}}}

// TwoArgPropagation is the summary of functions whose two arguments flow to the result
var TwoArgPropagation = Summary{Args: [][]int{{0}, {1}}, Rets: [][]int{{0}, {0}}}

// FormatterPropagation is the summary of formatting functions such as Sprintf
var FormatterPropagation = Summary{Args: [][]int{{0}, {1}}, Rets: [][]int{{0}, {0}}}

// HasFlows returns true if some argument flows to another location
func (s Summary) HasFlows() bool {
	for i, targets := range s.Args {
		for _, j := range targets {
			if j != i {
				return true
			}
		}
	}
	for _, r := range s.Rets {
		if len(r) > 0 {
			return true
		}
	}
	return false
}

// MethodFlows converts the summary into flows of the method. Receiver positions become Field endpoints when
// isMethod is set.
func (s Summary) MethodFlows(method string, isMethod bool) []*MethodFlow {
	endpoint := func(pos int) FlowEndpoint {
		if isMethod {
			if pos == 0 {
				return FlowEndpoint{Kind: Field}
			}
			return FlowEndpoint{Kind: Parameter, ParamIndex: pos - 1}
		}
		return FlowEndpoint{Kind: Parameter, ParamIndex: pos}
	}
	var res []*MethodFlow
	for i, targets := range s.Args {
		for _, j := range targets {
			if j == i {
				continue
			}
			res = append(res, &MethodFlow{
				Method: method,
				Source: endpoint(i),
				Sink:   FlowSink{FlowEndpoint: endpoint(j), TaintSubFields: true},
			})
		}
	}
	for i, rets := range s.Rets {
		if len(rets) == 0 {
			continue
		}
		res = append(res, &MethodFlow{
			Method: method,
			Source: endpoint(i),
			Sink:   FlowSink{FlowEndpoint: FlowEndpoint{Kind: Return}, TaintSubFields: true},
		})
	}
	return res
}

// SplitFunctionName splits the name of a Go function as printed by the SSA package into the name of the class
// holding it and the method name. Functions of a package belong to the class named after the package path;
// methods belong to the class of the receiver type:
//
//	"strings.Join"                -> ("strings", "Join", false)
//	"(*bytes.Buffer).WriteString" -> ("bytes.Buffer", "WriteString", true)
func SplitFunctionName(fn string) (className string, method string, isMethod bool) {
	fn = strings.TrimSpace(fn)
	if strings.HasPrefix(fn, "(") {
		end := strings.Index(fn, ")")
		if end < 0 {
			return "", fn, false
		}
		recv := strings.TrimPrefix(fn[1:end], "*")
		return recv, strings.TrimPrefix(fn[end+1:], "."), true
	}
	slash := strings.LastIndex(fn, "/")
	dot := strings.Index(fn[slash+1:], ".")
	if dot < 0 {
		return "", fn, false
	}
	dot += slash + 1
	return fn[:dot], fn[dot+1:], false
}

// IsStdPackageName returns true if the package path is in the standard library
func IsStdPackageName(name string) bool {
	if stdPackages[name] {
		return true
	}
	for _, prefix := range []string{"runtime", "internal", "vendor/"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// IsSummaryRequired returns true if the function must be analyzed from its body even when it belongs to a library,
// because it calls its arguments
func IsSummaryRequired(fn string) bool { return requiredBodies[fn] }

// LibrarySummaries returns the provider of the built-in summaries of the Go standard library and some common
// modules
func LibrarySummaries() *MemorySummaryProvider {
	p := NewMemorySummaryProvider()
	for _, table := range []map[string]Summary{stdlibSummaries, otherSummaries} {
		for fn, s := range table {
			className, method, isMethod := SplitFunctionName(fn)
			if className == "" {
				continue
			}
			if !s.HasFlows() {
				p.Exclude(className, method)
				continue
			}
			c := NewClassMethodSummaries(className)
			for _, f := range s.MethodFlows(method, isMethod) {
				c.Methods.AddFlow(f)
			}
			p.Add(c)
		}
	}
	return p
}
