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
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// StrongUpdateRule kills the taints whose location is overwritten
type StrongUpdateRule struct {
	RuleBase
}

// NormalFlow kills the taint on the left side of an assignment. Array elements are never strongly updated.
func (r *StrongUpdateRule) NormalFlow(_, source *data.Abstraction, stmt, _ ir.Stmt, k *KillFlags) []*data.Abstraction {
	assign, ok := stmt.(*ir.AssignStmt)
	if !ok || source.IsZero() {
		return nil
	}
	if _, isArray := assign.Left.(*ir.ArrayRef); isArray {
		return nil
	}
	// an alias created at this statement must survive it
	if !source.IsAbstractionActive() && source.CurrentStmt() == stmt {
		return nil
	}
	// neither does a taint that has just been activated
	if pred := source.Predecessor(); pred != nil && !pred.IsAbstractionActive() && source.IsAbstractionActive() &&
		pred.ActivationUnit() == stmt && source.AccessPath().Equals(pred.AccessPath()) {
		return nil
	}

	ap := source.AccessPath()
	switch {
	case ap.IsInstanceFieldRef():
		switch left := assign.Left.(type) {
		case *ir.InstanceFieldRef:
			var baseAliases bool
			if source.IsAbstractionActive() {
				baseAliases = r.Aliasing().MustAlias(left.Base, ap.PlainValue(), stmt)
			} else {
				baseAliases = left.Base == ap.PlainValue()
			}
			if baseAliases && r.Aliasing().MustAliasFields(left.Field, ap.FirstField()) {
				k.KillAll = true
			}
		case *ir.Local:
			if r.Aliasing().MustAlias(left, ap.PlainValue(), stmt) {
				k.KillAll = true
			}
		}
	case ap.IsStaticFieldRef():
		if left, ok := assign.Left.(*ir.StaticFieldRef); ok && r.Aliasing().MustAliasFields(left.Field, ap.FirstField()) {
			k.KillAll = true
		}
	case ap.IsLocal():
		if isPlain(assign.Left, ap) {
			// the other rules may taint the left side again from the right side
			found := false
			for _, u := range ir.UsesOf(assign.Right) {
				if isPlain(u, ap) {
					found = true
					break
				}
			}
			k.KillAll = !found
			k.KillSource = true
		}
	}
	return nil
}

// CallToReturnFlow kills the taint of a local overwritten by the result of the call
func (r *StrongUpdateRule) CallToReturnFlow(_, source *data.Abstraction, stmt ir.Stmt,
	k *KillFlags) []*data.Abstraction {
	assign, ok := stmt.(*ir.AssignStmt)
	if !ok || source.IsZero() || source.AccessPath().IsStaticFieldRef() {
		return nil
	}
	if left, ok := assign.Left.(*ir.Local); ok && r.Aliasing().MayAlias(left, plain(source.AccessPath())) {
		k.KillSource = true
	}
	return nil
}

// StaticRule propagates the taints of static fields into the callees that read them and back to the callers
type StaticRule struct {
	RuleBase
}

func (r *StaticRule) tracking() bool {
	return r.mgr.Config.StaticFieldTracking != config.StaticFieldTrackingNone
}

// CallFlow passes a static taint into the callee if the callee reads the field
func (r *StaticRule) CallFlow(_, source *data.Abstraction, stmt ir.Stmt, callee *ir.Method,
	k *KillFlags) []*data.Abstraction {
	if !r.tracking() {
		if callee.IsStaticInitializer() {
			k.KillAll = true
		}
		return nil
	}
	ap := source.AccessPath()
	if ap.IsStaticFieldRef() && r.mgr.ICFG().IsStaticFieldRead(callee, ap.FirstField()) {
		if abs := source.DeriveNewAbstraction(ap, stmt); abs != nil {
			return []*data.Abstraction{abs}
		}
	}
	return nil
}

// ReturnFlow returns static taints to the caller
func (r *StaticRule) ReturnFlow(_ []*data.Abstraction, _, source *data.Abstraction, exit, _, callSite ir.Stmt,
	k *KillFlags) []*data.Abstraction {
	ap := source.AccessPath()
	if !ap.IsStaticFieldRef() {
		return nil
	}
	if !r.tracking() {
		k.KillAll = true
		return nil
	}
	if callSite != nil {
		r.registerActivationCallSite(callSite, r.mgr.ICFG().MethodOf(exit), source)
	}
	if abs := source.DeriveNewAbstraction(ap, exit); abs != nil {
		return []*data.Abstraction{abs}
	}
	return nil
}

// systemMethods are the methods whose effect on taints is nil. Calls to them are skipped.
var systemMethods = map[string]map[string]bool{
	ir.ObjectClassName: {"<init>": true, "<clinit>": true},
	"runtime":          {"KeepAlive": true, "Gosched": true, "GC": true},
}

func isSystemMethod(m *ir.Method) bool {
	if m == nil || m.Class == nil {
		return false
	}
	return systemMethods[m.Class.Name][m.Name]
}

// SkipSystemClassRule skips the calls to the system methods that cannot affect taints
type SkipSystemClassRule struct {
	RuleBase
}

// CallFlow does not enter system methods
func (r *SkipSystemClassRule) CallFlow(_, _ *data.Abstraction, _ ir.Stmt, callee *ir.Method,
	k *KillFlags) []*data.Abstraction {
	if isSystemMethod(callee) {
		k.KillAll = true
	}
	return nil
}

// CallToReturnFlow passes the taint over calls to system methods
func (r *SkipSystemClassRule) CallToReturnFlow(_, source *data.Abstraction, stmt ir.Stmt,
	_ *KillFlags) []*data.Abstraction {
	if ie := stmt.InvokeExpr(); ie != nil && isSystemMethod(ie.Method) && !source.IsZero() {
		return []*data.Abstraction{source}
	}
	return nil
}

// StopAfterFirstKRule kills all the facts once enough results have been found
type StopAfterFirstKRule struct {
	RuleBase
}

func (r *StopAfterFirstKRule) check(k *KillFlags) {
	if r.Results().Size() >= r.mgr.Config.StopAfterFirstKFlows {
		k.KillAll = true
	}
}

// NormalFlow kills all the facts once enough results have been found
func (r *StopAfterFirstKRule) NormalFlow(_, _ *data.Abstraction, _, _ ir.Stmt, k *KillFlags) []*data.Abstraction {
	r.check(k)
	return nil
}

// CallFlow kills all the facts once enough results have been found
func (r *StopAfterFirstKRule) CallFlow(_, _ *data.Abstraction, _ ir.Stmt, _ *ir.Method,
	k *KillFlags) []*data.Abstraction {
	r.check(k)
	return nil
}

// CallToReturnFlow kills all the facts once enough results have been found
func (r *StopAfterFirstKRule) CallToReturnFlow(_, _ *data.Abstraction, _ ir.Stmt, k *KillFlags) []*data.Abstraction {
	r.check(k)
	return nil
}

// ReturnFlow kills all the facts once enough results have been found
func (r *StopAfterFirstKRule) ReturnFlow(_ []*data.Abstraction, _, _ *data.Abstraction, _, _, _ ir.Stmt,
	k *KillFlags) []*data.Abstraction {
	r.check(k)
	return nil
}

// TypingRule kills the taints that flow through impossible casts
type TypingRule struct {
	RuleBase
}

// NormalFlow kills the taint of a value cast to an incompatible type
func (r *TypingRule) NormalFlow(_, source *data.Abstraction, stmt, _ ir.Stmt, k *KillFlags) []*data.Abstraction {
	if source.IsZero() || source.AccessPath().IsStaticFieldRef() {
		return nil
	}
	assign, ok := stmt.(*ir.AssignStmt)
	if !ok {
		return nil
	}
	if cast, ok := assign.Right.(*ir.CastExpr); ok && isPlain(cast.Op, source.AccessPath()) {
		if !r.mgr.TypeUtils().CheckCastAP(source.AccessPath(), cast.Type()) {
			k.KillAll = true
		}
	}
	return nil
}
