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
	"sync/atomic"

	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// SourceRule creates the taints at the source statements. The zero fact never survives a statement: it is
// replaced by the taints of the source, or killed.
type SourceRule struct {
	RuleBase
}

func (r *SourceRule) propagate(d1, source *data.Abstraction, stmt ir.Stmt, k *KillFlags,
	killIfNotSource bool) []*data.Abstraction {
	if !source.IsZero() {
		return nil
	}
	k.KillSource = true
	ssm := r.mgr.SourceSinkManager()
	if ssm == nil {
		if killIfNotSource {
			k.KillAll = true
		}
		return nil
	}
	info := ssm.SourceInfo(stmt, r.mgr)
	if info == nil || len(info.AccessPaths()) == 0 {
		if killIfNotSource {
			k.KillAll = true
		}
		return nil
	}

	res := data.NewAbstractionSet()
	m := r.mgr.ICFG().MethodOf(stmt)
	for _, ap := range info.AccessPaths() {
		defs := info.DefinitionsFor(ap)
		if len(defs) == 0 {
			defs = []data.Definition{nil}
		}
		for _, def := range defs {
			abs := source.NewSourceAbstraction(def, ap, stmt, info.UserData, false, false)
			if stmt.InvokeExpr() != nil {
				abs.SetCorrespondingCallSite(stmt)
			}
			res.Add(abs)
			for _, v := range sourceValues(stmt) {
				if !ap.StartsWith(v) {
					continue
				}
				// the definition may taint the object behind a local, so strings are the only exception
				if !v.Type().IsString() || ap.CanHaveImmutableAliases() {
					r.Aliasing().ComputeAliases(d1, stmt, v, res, m, abs)
				}
			}
		}
	}
	return res.Items()
}

// sourceValues returns the values defined and used by the statement
func sourceValues(stmt ir.Stmt) []ir.Value {
	var vals []ir.Value
	if def := ir.DefinedValue(stmt); def != nil {
		vals = append(vals, ir.UsesOf(def)...)
	}
	return append(vals, stmt.UseValues()...)
}

// NormalFlow creates the taints of a source statement
func (r *SourceRule) NormalFlow(d1, source *data.Abstraction, stmt, _ ir.Stmt, k *KillFlags) []*data.Abstraction {
	return r.propagate(d1, source, stmt, k, true)
}

// CallToReturnFlow creates the taints of a source call
func (r *SourceRule) CallToReturnFlow(d1, source *data.Abstraction, stmt ir.Stmt, k *KillFlags) []*data.Abstraction {
	return r.propagate(d1, source, stmt, k, false)
}

// CallFlow does not propagate into source methods, unless they are inspected
func (r *SourceRule) CallFlow(_, _ *data.Abstraction, stmt ir.Stmt, _ *ir.Method, k *KillFlags) []*data.Abstraction {
	if r.mgr.Config.InspectSources || r.mgr.SourceSinkManager() == nil {
		return nil
	}
	if r.mgr.SourceSinkManager().SourceInfo(stmt, r.mgr) != nil {
		k.KillAll = true
	}
	return nil
}

// SinkRule reports the taints reaching sinks. Once a result handler asks to stop, the rule kills all the facts.
type SinkRule struct {
	RuleBase
	killState atomic.Bool
}

// report records the result. A fact whose result was already recorded still flows past the sink: within a calling
// context equal edges never reach the rule twice, so a duplicate comes from another context that needs the fact.
func (r *SinkRule) report(defs []data.Definition, source *data.Abstraction, stmt ir.Stmt) {
	res := r.Results()
	res.AddResult(data.NewAbstractionAtSink(defs, source, stmt))
	if res.Stopped() {
		r.killState.Store(true)
	}
}

func (r *SinkRule) checkForSink(source *data.Abstraction, stmt ir.Stmt, v ir.Value) {
	ssm := r.mgr.SourceSinkManager()
	if ssm == nil || !source.IsAbstractionActive() {
		return
	}
	for _, val := range selectBases(v, false) {
		if r.Aliasing().MayAlias(val, plain(source.AccessPath())) {
			if info := ssm.SinkInfo(stmt, r.mgr, source.AccessPath()); info != nil {
				r.report(info.Definitions, source, stmt)
			}
		}
	}
}

// NormalFlow reports taints flowing into sink statements: returned values, branch conditions and assigned values
func (r *SinkRule) NormalFlow(_, source *data.Abstraction, stmt, _ ir.Stmt, k *KillFlags) []*data.Abstraction {
	switch x := stmt.(type) {
	case *ir.ReturnStmt:
		r.checkForSink(source, stmt, x.Op)
	case *ir.IfStmt:
		r.checkForSink(source, stmt, x.Cond)
	case *ir.SwitchStmt:
		r.checkForSink(source, stmt, x.Key)
	case *ir.AssignStmt:
		r.checkForSink(source, stmt, x.Right)
	}
	k.KillAll = k.KillAll || r.killState.Load()
	return nil
}

// CallFlow does not propagate into sink methods, unless they are inspected
func (r *SinkRule) CallFlow(_, _ *data.Abstraction, stmt ir.Stmt, _ *ir.Method, k *KillFlags) []*data.Abstraction {
	if !r.mgr.Config.InspectSinks && r.mgr.SourceSinkManager() != nil &&
		r.mgr.SourceSinkManager().SinkInfo(stmt, r.mgr, nil) != nil {
		k.KillAll = true
	}
	k.KillAll = k.KillAll || r.killState.Load()
	return nil
}

// CallToReturnFlow reports the taints passed to a sink call
func (r *SinkRule) CallToReturnFlow(_, source *data.Abstraction, stmt ir.Stmt, k *KillFlags) []*data.Abstraction {
	ssm := r.mgr.SourceSinkManager()
	if ssm != nil && source.IsAbstractionActive() && !source.IsZero() && !source.AccessPath().IsStaticFieldRef() {
		if stmt.InvokeExpr() == nil || r.isTaintVisibleInCallee(stmt, source) {
			if info := ssm.SinkInfo(stmt, r.mgr, source.AccessPath()); info != nil {
				r.report(info.Definitions, source, stmt)
			}
		}
	}
	k.KillAll = k.KillAll || r.killState.Load()
	return nil
}

// ReturnFlow reports the taints returned by a method whose return statement is a sink
func (r *SinkRule) ReturnFlow(_ []*data.Abstraction, _, source *data.Abstraction, exit, _, _ ir.Stmt,
	k *KillFlags) []*data.Abstraction {
	ret, ok := exit.(*ir.ReturnStmt)
	ssm := r.mgr.SourceSinkManager()
	if ok && ssm != nil && source.IsAbstractionActive() && !source.IsZero() {
		ap := source.AccessPath()
		if (ap.IsLocal() || ap.TaintSubFields()) && r.Aliasing().MayAlias(plain(ap), ret.Op) {
			if info := ssm.SinkInfo(ret, r.mgr, ap); info != nil {
				r.report(info.Definitions, source, ret)
			}
		}
	}
	k.KillAll = k.KillAll || r.killState.Load()
	return nil
}

// isTaintVisibleInCallee returns true if the taint is reachable from the receiver or an argument of the call
func (r *SinkRule) isTaintVisibleInCallee(stmt ir.Stmt, source *data.Abstraction) bool {
	ie := stmt.InvokeExpr()
	ap := source.AccessPath()
	if base := plain(ap); base != nil {
		for _, arg := range ie.Args {
			if r.Aliasing().MayAlias(arg, base) && (ap.TaintSubFields() || ap.IsLocal()) {
				return true
			}
		}
	}
	return ie.Base != nil && ie.Base == ap.PlainValue()
}
