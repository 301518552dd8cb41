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

package problems

import (
	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/aliasing"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/manager"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/results"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// KillFlags are set by the rules to remove facts. KillSource removes the incoming fact from the output of the
// flow function; KillAll removes every output, including the ones of the other rules.
type KillFlags struct {
	KillSource bool
	KillAll    bool
}

// Rule is one concern of the forward taint propagation. The outputs of all the rules are merged by the
// RuleManager. A nil result means the rule does not produce facts.
type Rule interface {
	// NormalFlow is applied to the fact source at stmt, flowing to dest
	NormalFlow(d1, source *data.Abstraction, stmt, dest ir.Stmt, k *KillFlags) []*data.Abstraction
	// CallFlow is applied to the fact source at the call stmt, entering callee
	CallFlow(d1, source *data.Abstraction, stmt ir.Stmt, callee *ir.Method, k *KillFlags) []*data.Abstraction
	// CallToReturnFlow is applied to the fact source at the call stmt, flowing over the call
	CallToReturnFlow(d1, source *data.Abstraction, stmt ir.Stmt, k *KillFlags) []*data.Abstraction
	// ReturnFlow is applied to the fact source at the exit statement of a callee, returning to callSite
	ReturnFlow(callerD1s []*data.Abstraction, calleeD1, source *data.Abstraction, exit, returnSite, callSite ir.Stmt,
		k *KillFlags) []*data.Abstraction
}

// RuleBase implements Rule without producing or killing facts. Rules embed it and override the flows they handle.
type RuleBase struct {
	mgr        *manager.Manager
	zero       *data.Abstraction
	activation *ActivationTable
}

// NewRuleBase returns the base of a rule of the analysis managed by mgr
func NewRuleBase(mgr *manager.Manager, zero *data.Abstraction, activation *ActivationTable) RuleBase {
	return RuleBase{mgr: mgr, zero: zero, activation: activation}
}

// Manager returns the manager of the analysis
func (r RuleBase) Manager() *manager.Manager { return r.mgr }

// Zero returns the zero fact of the forward problem
func (r RuleBase) Zero() *data.Abstraction { return r.zero }

// Aliasing returns the aliasing facade of the analysis
func (r RuleBase) Aliasing() *aliasing.Aliasing { return r.mgr.Aliasing() }

// Results returns the results of the analysis
func (r RuleBase) Results() *results.TaintPropagationResults { return r.mgr.Results() }

func (r RuleBase) registerActivationCallSite(callSite ir.Stmt, callee *ir.Method, abs *data.Abstraction) bool {
	if r.activation == nil || !r.mgr.FlowSensitiveAliasing() {
		return false
	}
	return r.activation.Register(callSite, callee, abs)
}

// NormalFlow does nothing
func (RuleBase) NormalFlow(*data.Abstraction, *data.Abstraction, ir.Stmt, ir.Stmt, *KillFlags) []*data.Abstraction {
	return nil
}

// CallFlow does nothing
func (RuleBase) CallFlow(*data.Abstraction, *data.Abstraction, ir.Stmt, *ir.Method, *KillFlags) []*data.Abstraction {
	return nil
}

// CallToReturnFlow does nothing
func (RuleBase) CallToReturnFlow(*data.Abstraction, *data.Abstraction, ir.Stmt, *KillFlags) []*data.Abstraction {
	return nil
}

// ReturnFlow does nothing
func (RuleBase) ReturnFlow([]*data.Abstraction, *data.Abstraction, *data.Abstraction, ir.Stmt, ir.Stmt, ir.Stmt,
	*KillFlags) []*data.Abstraction {
	return nil
}

// RuleManager applies an ordered list of rules and merges their outputs
type RuleManager struct {
	rules []Rule
}

// NewRuleManager returns the manager of the default rules for the options of mgr, followed by the extra rules
func NewRuleManager(mgr *manager.Manager, zero *data.Abstraction, activation *ActivationTable,
	extra ...Rule) *RuleManager {
	b := NewRuleBase(mgr, zero, activation)
	opts := mgr.Options()
	rules := []Rule{
		&SourceRule{RuleBase: b},
		&SinkRule{RuleBase: b},
		&StaticRule{RuleBase: b},
	}
	if opts.EnableArrayTracking {
		rules = append(rules, &ArrayRule{RuleBase: b})
	}
	if opts.EnableExceptionTracking {
		rules = append(rules, &ExceptionRule{RuleBase: b})
	}
	if mgr.TaintWrapper() != nil {
		rules = append(rules, &WrapperRule{RuleBase: b})
	}
	if opts.ImplicitFlowMode == config.ImplicitAll {
		rules = append(rules, NewImplicitRule(b))
	}
	rules = append(rules, &StrongUpdateRule{RuleBase: b})
	if opts.EnableTypeChecking {
		rules = append(rules, &TypingRule{RuleBase: b})
	}
	rules = append(rules, &SkipSystemClassRule{RuleBase: b})
	if opts.StopAfterFirstKFlows > 0 {
		rules = append(rules, &StopAfterFirstKRule{RuleBase: b})
	}
	rules = append(rules, extra...)
	return &RuleManager{rules: rules}
}

// NewRuleManagerWith returns a manager of exactly the rules given
func NewRuleManagerWith(rules ...Rule) *RuleManager {
	return &RuleManager{rules: rules}
}

// Rules returns the rules in application order
func (rm *RuleManager) Rules() []Rule { return rm.rules }

// NormalFlow applies the rules to a normal edge. The incoming fact is kept unless a rule kills it.
func (rm *RuleManager) NormalFlow(d1, source *data.Abstraction, stmt, dest ir.Stmt,
	k *KillFlags) *data.AbstractionSet {
	res := data.NewAbstractionSet()
	for _, r := range rm.rules {
		out := r.NormalFlow(d1, source, stmt, dest, k)
		if k.KillAll {
			return nil
		}
		res.AddAll(out)
	}
	if !k.KillSource {
		res.Add(source)
	}
	return res
}

// CallFlow applies the rules to a call edge
func (rm *RuleManager) CallFlow(d1, source *data.Abstraction, stmt ir.Stmt, callee *ir.Method,
	k *KillFlags) *data.AbstractionSet {
	res := data.NewAbstractionSet()
	for _, r := range rm.rules {
		out := r.CallFlow(d1, source, stmt, callee, k)
		if k.KillAll {
			return nil
		}
		res.AddAll(out)
	}
	return res
}

// CallToReturnFlow applies the rules to a call-to-return edge. If addSource is set, the incoming fact is kept
// unless a rule kills it.
func (rm *RuleManager) CallToReturnFlow(d1, source *data.Abstraction, stmt ir.Stmt, k *KillFlags,
	addSource bool) *data.AbstractionSet {
	res := data.NewAbstractionSet()
	for _, r := range rm.rules {
		out := r.CallToReturnFlow(d1, source, stmt, k)
		if k.KillAll {
			return nil
		}
		res.AddAll(out)
	}
	if addSource && !k.KillSource {
		res.Add(source)
	}
	return res
}

// ReturnFlow applies the rules to a return edge
func (rm *RuleManager) ReturnFlow(callerD1s []*data.Abstraction, calleeD1, source *data.Abstraction,
	exit, returnSite, callSite ir.Stmt, k *KillFlags) *data.AbstractionSet {
	res := data.NewAbstractionSet()
	for _, r := range rm.rules {
		out := r.ReturnFlow(callerD1s, calleeD1, source, exit, returnSite, callSite, k)
		if k.KillAll {
			return nil
		}
		res.AddAll(out)
	}
	return res
}
