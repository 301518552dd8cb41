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
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// WrapperRule applies the taint wrapper at library calls
type WrapperRule struct {
	RuleBase
}

// wrapperTaints returns the taints after the call computed by the wrapper with their aliases. The second result
// is false if the wrapper has no model for the call.
func (r *WrapperRule) wrapperTaints(d1 *data.Abstraction, stmt ir.Stmt, source *data.Abstraction) ([]*data.Abstraction, bool) {
	wrapper := r.mgr.TaintWrapper()
	if source.IsZero() || wrapper == nil {
		return nil, false
	}
	ap := source.AccessPath()
	ie := stmt.InvokeExpr()
	if !ap.IsStaticFieldRef() && !ap.IsEmpty() {
		found := ie.Base != nil && r.Aliasing().MayAlias(ie.Base, plain(ap))
		for _, arg := range ie.Args {
			if found {
				break
			}
			found = r.Aliasing().MayAlias(plain(ap), arg)
		}
		if !found {
			return nil, false
		}
	}
	// the wrapper is not applied to the sources
	if !r.mgr.Config.InspectSources && r.mgr.SourceSinkManager() != nil &&
		r.mgr.SourceSinkManager().SourceInfo(stmt, r.mgr) != nil {
		return nil, false
	}

	taints := wrapper.TaintsForMethod(stmt, d1, source)
	if taints == nil {
		return nil, false
	}
	res := data.NewAbstractionSet(taints...)
	m := r.mgr.ICFG().MethodOf(stmt)
	for _, abs := range taints {
		if abs.Equals(source) {
			continue
		}
		// a new taint on an object must be propagated backwards, since the object may have aliases
		val := abs.AccessPath()
		bt := val.BaseType()
		taintsObjectValue := bt != nil && bt.IsReference() && (!bt.IsString() || val.CanHaveImmutableAliases())
		taintsStaticField := r.mgr.Config.StaticFieldTracking != config.StaticFieldTrackingNone &&
			val.IsStaticFieldRef() && !isPrimitive(val.FirstFieldType())
		overwritten := false
		if def := ir.DefinedValue(stmt); def != nil {
			overwritten = aliasing.BaseMatches(def, abs)
		}
		if overwritten {
			continue
		}
		complete := val.CompleteValue()
		if taintsStaticField || (taintsObjectValue && val.TaintSubFields()) ||
			(complete != nil && aliasing.CanHaveAliases(stmt, complete, abs)) {
			r.Aliasing().ComputeAliases(d1, stmt, plain(val), res, m, abs)
		}
	}
	return res.Items(), true
}

// CallToReturnFlow returns the taints computed by the wrapper. A wrapper result that contains the incoming access
// path replaces the incoming taint, and an empty result kills it.
func (r *WrapperRule) CallToReturnFlow(d1, source *data.Abstraction, stmt ir.Stmt, k *KillFlags) []*data.Abstraction {
	taints, ok := r.wrapperTaints(d1, stmt, source)
	if !ok {
		return nil
	}
	if len(taints) == 0 {
		k.KillSource = true
		return nil
	}
	for _, abs := range taints {
		if abs.AccessPath().Equals(source.AccessPath()) {
			if abs != source {
				k.KillSource = true
			}
			break
		}
	}
	return taints
}

// CallFlow does not enter the callees that the wrapper models exclusively
func (r *WrapperRule) CallFlow(_, source *data.Abstraction, stmt ir.Stmt, _ *ir.Method,
	k *KillFlags) []*data.Abstraction {
	if w := r.mgr.TaintWrapper(); w != nil && w.IsExclusive(stmt, source) {
		k.KillAll = true
	}
	return nil
}
