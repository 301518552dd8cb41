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
	"sync"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/aliasing"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/manager"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/solver"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// InfoflowDomain is the summary domain of the forward taint problems
const InfoflowDomain = "infoflow"

// InfoflowProblem is the forward taint propagation. The flow functions map the access paths across statements,
// calls and returns; everything else (sources, sinks, arrays, exceptions, wrappers, implicit flows) is done by
// the rules.
type InfoflowProblem struct {
	base
	rules *RuleManager

	mu    sync.Mutex
	seeds []solver.Seed
}

// NewInfoflowProblem returns the forward problem of the analysis managed by mgr. The activation table must be the
// one of the alias problem of the same analysis.
func NewInfoflowProblem(mgr *manager.Manager, activation *ActivationTable) *InfoflowProblem {
	zero := data.ZeroAbstraction(mgr.FlowSensitiveAliasing())
	return &InfoflowProblem{
		base:  base{mgr: mgr, zero: zero, activation: activation},
		rules: NewRuleManager(mgr, zero, activation),
	}
}

// RuleBase returns a base for the additional rules of the problem
func (p *InfoflowProblem) RuleBase() RuleBase {
	return NewRuleBase(p.mgr, p.zero, p.activation)
}

// AddRule appends a rule after the default rules. Rules must be added before the problem is solved.
func (p *InfoflowProblem) AddRule(r Rule) {
	p.rules.rules = append(p.rules.rules, r)
}

// RuleManager returns the rules of the problem
func (p *InfoflowProblem) RuleManager() *RuleManager { return p.rules }

// AddInitialSeed makes the zero fact hold at the statement
func (p *InfoflowProblem) AddInitialSeed(stmt ir.Stmt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeds = append(p.seeds, solver.Seed{Stmt: stmt, Facts: []*data.Abstraction{p.zero}})
}

// Activation returns the activation table of the problem
func (p *InfoflowProblem) Activation() *ActivationTable { return p.activation }

// ICFG implements solver.Problem
func (p *InfoflowProblem) ICFG() icfg.ICFG { return p.mgr.ICFG() }

// ZeroValue implements solver.Problem
func (p *InfoflowProblem) ZeroValue() *data.Abstraction { return p.zero }

// InitialSeeds implements solver.Problem
func (p *InfoflowProblem) InitialSeeds() []solver.Seed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]solver.Seed(nil), p.seeds...)
}

// FlowFunctions implements solver.Problem
func (p *InfoflowProblem) FlowFunctions() solver.FlowFunctions { return p }

// FollowReturnsPastSeeds implements solver.Problem
func (p *InfoflowProblem) FollowReturnsPastSeeds() bool { return p.mgr.Config.FollowReturnsPastSeeds }

// SummaryDomain implements solver.Problem
func (p *InfoflowProblem) SummaryDomain() string { return InfoflowDomain }

func (p *InfoflowProblem) staticTracking() bool {
	return p.mgr.Config.StaticFieldTracking != config.StaticFieldTrackingNone
}

// NormalFlow implements solver.FlowFunctions
func (p *InfoflowProblem) NormalFlow(d1 *data.Abstraction, curr, succ ir.Stmt,
	d2 *data.Abstraction) []*data.Abstraction {
	source := d2
	if !source.IsAbstractionActive() && curr == source.ActivationUnit() {
		source = source.GetActiveCopy()
	}
	var k KillFlags
	res := p.rules.NormalFlow(d1, source, curr, succ, &k)
	if k.KillAll {
		return nil
	}
	if assign, ok := curr.(*ir.AssignStmt); ok && !source.IsZero() {
		res.AddAll(p.createNewTaintOnAssignment(assign, selectBases(assign.Right, true), d1, source))
	}
	return res.Items()
}

// createNewTaintOnAssignment returns the taints of the left side of the assignment, plus the source, when one of
// the right values carries the taint of source
//
//gocyclo:ignore
func (p *InfoflowProblem) createNewTaintOnAssignment(assign *ir.AssignStmt, rightVals []ir.Value,
	d1, source *data.Abstraction) []*data.Abstraction {
	left := assign.Left
	ap := source.AccessPath()
	addLeft := false

	top, hasTop := source.TopPostdominator()
	if (hasTop && top.Stmt != nil) || ap.IsEmpty() {
		// locals assigned in conditionally called methods are not visible in the caller
		_, isField := left.(*ir.InstanceFieldRef)
		_, isStatic := left.(*ir.StaticFieldRef)
		if (d1 == nil || d1.AccessPath().IsEmpty()) && !isField && !isStatic {
			return []*data.Abstraction{source}
		}
		addLeft = ap.IsEmpty()
	}

	// a = x with an inactive taint on x does not taint a, while an inactive x.f does taint a.f
	rightType := typeOf(assign.Right)
	aliasOverwritten := !addLeft && !source.IsAbstractionActive() &&
		aliasing.BaseMatchesStrict(assign.Right, source) && rightType != nil && rightType.IsReference() &&
		!source.DependsOnCutAP()

	mappedAP := ap
	var targetType *ir.Type
	cutFirst := false
	if !addLeft && !aliasOverwritten {
		for _, rv := range rightVals {
			switch x := rv.(type) {
			case *ir.StaticFieldRef:
				if m := p.mgr.Aliasing().MayAliasAP(ap, x); m != nil && p.staticTracking() {
					addLeft, cutFirst, mappedAP = true, true, m
				}
			case *ir.InstanceFieldRef:
				if t := x.Base.Type(); t != nil && t.Kind() == ir.NullKind {
					return nil
				}
				if m := p.mgr.Aliasing().MayAliasAP(ap, x); m != nil {
					addLeft, mappedAP = true, m
					cutFirst = m.FieldCount() > 0 && m.FirstField() == x.Field
				} else if p.mgr.Aliasing().MayAlias(x.Base, plain(ap)) && ap.FieldCount() == 0 && ap.TaintSubFields() {
					// x tainted with all its fields taints y on y = x.f
					if baseAP := p.mgr.AccessPathFactory().CreateAccessPath(x.Base, true); baseAP != nil {
						addLeft, mappedAP = true, baseAP
						targetType = x.Field.Type
					}
				}
			case *ir.Local:
				if ap.IsInstanceFieldRef() {
					if p.mgr.Aliasing().MayAlias(x, plain(ap)) {
						addLeft = true
						targetType = ap.BaseType()
					}
					break
				}
				addLeft, targetType = p.genericMatch(assign, rv, ap)
			default:
				addLeft, targetType = p.genericMatch(assign, rv, ap)
			}
			if addLeft {
				break
			}
		}
	}
	if !addLeft {
		return nil
	}

	// inactive primitive taints have no aliases to wait for
	if lt := typeOf(left); !source.IsAbstractionActive() && lt != nil &&
		(lt.IsPrimitive() || (lt.IsString() && !ap.CanHaveImmutableAliases())) {
		return []*data.Abstraction{source}
	}

	res := data.NewAbstractionSet()
	target := source
	if !mappedAP.Equals(ap) {
		target = source.DeriveNewAbstraction(mappedAP, nil)
	}
	if target != nil {
		p.addTaintViaStmt(d1, assign, target, res, cutFirst, targetType)
	}
	res.Add(source)
	return res.Items()
}

// genericMatch handles y = x, y = x[i] and the operands of expressions
func (p *InfoflowProblem) genericMatch(assign *ir.AssignStmt, rv ir.Value, ap *data.AccessPath) (bool, *ir.Type) {
	if !p.mgr.Aliasing().MayAlias(rv, plain(ap)) {
		return false, nil
	}
	if _, isNewArray := assign.Right.(*ir.NewArrayExpr); isNewArray {
		return false, nil
	}
	if _, isArray := rv.(*ir.ArrayRef); isArray && !p.mgr.Config.EnableArrayTracking {
		return false, nil
	}
	return true, ap.BaseType()
}

// addTaintViaStmt adds the taint of the left side of the assignment to taintSet, with its aliases
func (p *InfoflowProblem) addTaintViaStmt(d1 *data.Abstraction, assign *ir.AssignStmt, taint *data.Abstraction,
	taintSet *data.AbstractionSet, cutFirst bool, targetType *ir.Type) {
	left := assign.Left
	if _, ok := left.(*ir.StaticFieldRef); ok && !p.staticTracking() {
		return
	}
	apf := p.mgr.AccessPathFactory()
	ap := taint.AccessPath()

	var newAbs *data.Abstraction
	if !ap.IsEmpty() {
		if _, ok := left.(*ir.ArrayRef); ok && targetType != nil {
			targetType = arrayOrAddDimension(targetType)
		}
		switch right := assign.Right.(type) {
		case *ir.CastExpr:
			targetType = right.Type()
		case *ir.InstanceOfExpr:
			newAbs = taint.DeriveNewAbstraction(
				apf.CreateAccessPathWithType(left, ir.Bool, true, data.ContentsAndLength), assign)
		}
	}

	arrayType := ap.ArrayTaintType()
	if _, ok := left.(*ir.ArrayRef); ok && p.mgr.Config.EnableArrayTracking {
		arrayType = data.Contents
	}

	if newAbs == nil {
		if ap.IsEmpty() {
			newAbs = taint.DeriveNewAbstractionImplicit(apf.CreateAccessPath(left, true), assign, true)
		} else {
			newAbs = taint.DeriveNewAbstraction(apf.CopyWithNewValueArray(ap, left, targetType, cutFirst, arrayType),
				assign)
		}
	}
	if newAbs == nil {
		return
	}
	taintSet.Add(newAbs)
	if aliasing.CanHaveAliases(assign, left, newAbs) {
		p.mgr.Aliasing().ComputeAliases(d1, assign, left, taintSet, p.mgr.ICFG().MethodOf(assign), newAbs)
	}
}

// maxArrayDepth bounds the array types built while tracking stores into arrays
const maxArrayDepth = 3

// arrayOrAddDimension returns the type of an array holding elements of type t
func arrayOrAddDimension(t *ir.Type) *ir.Type {
	if t.ArrayDepth() >= maxArrayDepth {
		return nil
	}
	return ir.ArrayOf(t)
}

// mapAccessPathToCallee returns the access paths of the callee designating the tainted object: the receiver and
// the parameters that alias the base of ap
func (p *InfoflowProblem) mapAccessPathToCallee(callee *ir.Method, ie *ir.InvokeExpr,
	ap *data.AccessPath) []*data.AccessPath {
	if ap.IsEmpty() || ie == nil {
		return nil
	}
	body := callee.Body()
	if body == nil {
		return nil
	}
	apf := p.mgr.AccessPathFactory()
	var res []*data.AccessPath
	if !ap.IsStaticFieldRef() && !callee.Static && ie.Base != nil && body.This != nil &&
		p.mgr.Aliasing().MayAlias(ie.Base, plain(ap)) &&
		p.mgr.TypeUtils().HasCompatibleTypesForCall(ap, callee.Class) {
		if m := apf.CopyWithNewValue(ap, body.This); m != nil {
			res = append(res, m)
		}
	}
	if callee.IsStaticInitializer() {
		return res
	}
	for i, arg := range ie.Args {
		if !p.mgr.Aliasing().MayAlias(arg, plain(ap)) {
			continue
		}
		param := body.ParamLocal(i)
		if param == nil {
			continue
		}
		if m := apf.CopyWithNewValue(ap, param); m != nil {
			res = append(res, m)
		}
	}
	return res
}

// CallFlow implements solver.FlowFunctions
func (p *InfoflowProblem) CallFlow(d1 *data.Abstraction, callSite ir.Stmt, callee *ir.Method,
	d2 *data.Abstraction) []*data.Abstraction {
	if !callee.HasBody() {
		return nil
	}
	res := p.callTargets(d1, callSite, callee, d2)
	if d1 != nil {
		for _, abs := range res {
			p.mgr.Aliasing().Strategy().InjectCallingContext(abs, p.mgr.ForwardSolver(), callee, callSite, d2, d1)
		}
	}
	return res
}

func (p *InfoflowProblem) callTargets(d1 *data.Abstraction, callSite ir.Stmt, callee *ir.Method,
	source *data.Abstraction) []*data.Abstraction {
	if source.IsZero() || isExcluded(callee) {
		return nil
	}
	if !source.IsAbstractionActive() && source.ActivationUnit() == callSite {
		source = source.GetActiveCopy()
	}
	var k KillFlags
	res := p.rules.CallFlow(d1, source, callSite, callee, &k)
	if k.KillAll {
		return nil
	}
	mapped := p.mapAccessPathToCallee(callee, callSite.InvokeExpr(), source.AccessPath())
	lazy := p.mgr.Aliasing().Strategy().IsLazyAnalysis()
	for _, ap := range mapped {
		// a value never read in the callee need not be propagated through it
		if lazy || source.IsImplicit() || p.mgr.ICFG().MethodReadsValue(callee, ap.PlainValue()) {
			res.Add(source.DeriveNewAbstraction(ap, callSite))
		}
	}
	return res.Items()
}

// ReturnFlow implements solver.FlowFunctions
//
//gocyclo:ignore
func (p *InfoflowProblem) ReturnFlow(callSite ir.Stmt, callee *ir.Method, exit, returnSite ir.Stmt,
	calleeD1, d2 *data.Abstraction, callerD1s []*data.Abstraction) []*data.Abstraction {
	if d2.IsZero() {
		return nil
	}
	callerD1sConditional := false
	for _, d1 := range callerD1s {
		if d1.AccessPath().IsEmpty() {
			callerD1sConditional = true
			break
		}
	}

	source := d2
	if !source.IsAbstractionActive() && callSite != nil &&
		(callSite == source.ActivationUnit() || p.isCallSiteActivatingTaint(callSite, source.ActivationUnit())) {
		source = source.GetActiveCopy()
	}
	// an alias activated inside the callee is never activated in the caller
	if !source.IsAbstractionActive() && source.ActivationUnit().Method() == callee {
		return nil
	}

	var k KillFlags
	res := p.rules.ReturnFlow(callerD1s, calleeD1, source, exit, returnSite, callSite, &k)
	if k.KillAll || callSite == nil {
		return nil
	}

	strategy := p.mgr.Aliasing().Strategy()
	apf := p.mgr.AccessPathFactory()
	ap := source.AccessPath()
	callerMethod := p.mgr.ICFG().MethodOf(callSite)
	if strategy.IsLazyAnalysis() && aliasing.CanHaveAliasesAP(ap) {
		res.Add(source)
	}

	body := callee.Body()
	if !ap.IsStaticFieldRef() && !callee.IsStaticInitializer() && body != nil {
		ie := callSite.InvokeExpr()
		assign, isAssign := callSite.(*ir.AssignStmt)

		// returned value
		if ret, ok := exit.(*ir.ReturnStmt); ok && isAssign && !isExceptionHandler(returnSite) &&
			p.mgr.Aliasing().MayAlias(ret.Op, plain(ap)) {
			if abs := source.DeriveNewAbstraction(apf.CopyWithNewValue(ap, assign.Left), exit); abs != nil {
				res.Add(abs)
				if strategy.RequiresAnalysisOnReturn() {
					for _, d1 := range callerD1s {
						p.mgr.Aliasing().ComputeAliases(d1, callSite, assign.Left, res, callerMethod, abs)
					}
				}
			}
		}

		// parameters
		parameterAliases := false
		for i, param := range body.Params {
			if i >= len(ie.Args) {
				break
			}
			arg := ie.Args[i]
			// an argument overwritten by the call result keeps no taint from the callee
			if isAssign && arg == assign.Left {
				continue
			}
			if !p.mgr.Aliasing().MayAlias(param, plain(ap)) {
				continue
			}
			parameterAliases = true
			if !data.CanContainValue(arg) || !p.mgr.TypeUtils().CheckCastAP(ap, arg.Type()) {
				continue
			}
			// primitives and strings have no aliases to map back
			if bt := ap.BaseType(); isPrimitive(bt) || (bt != nil && bt.IsString() && !ap.CanHaveImmutableAliases()) {
				continue
			}
			// the object itself is passed by value, only its fields can change
			if !ap.TaintSubFields() {
				continue
			}
			// a parameter overwritten in the callee is assumed overwritten on all paths
			if p.mgr.ICFG().MethodWritesValue(callee, param) {
				continue
			}
			if abs := source.DeriveNewAbstraction(apf.CopyWithNewValueTyped(ap, arg, ap.BaseType(), false),
				exit); abs != nil {
				res.Add(abs)
			}
		}

		// receiver
		if !callee.Static && body.This != nil && !parameterAliases && ie.Base != nil &&
			p.mgr.Aliasing().MayAlias(body.This, plain(ap)) &&
			p.mgr.TypeUtils().CheckCastAP(ap, body.This.Type()) {
			if abs := source.DeriveNewAbstraction(apf.CopyWithNewValue(ap, ie.Base), exit); abs != nil {
				res.Add(abs)
			}
		}
	}

	for _, abs := range res.Items() {
		// aliases of implicit taints are computed when leaving the last conditionally called method
		if (abs.IsImplicit() && !callerD1sConditional) || strategy.RequiresAnalysisOnReturn() {
			for _, d1 := range callerD1s {
				p.mgr.Aliasing().ComputeAliases(d1, callSite, nil, res, callerMethod, abs)
			}
		}
	}
	items := res.Items()
	for _, abs := range items {
		if abs != source {
			abs.SetCorrespondingCallSite(callSite)
		}
	}
	return items
}

// CallToReturnFlow implements solver.FlowFunctions
//
//gocyclo:ignore
func (p *InfoflowProblem) CallToReturnFlow(d1 *data.Abstraction, callSite, returnSite ir.Stmt,
	d2 *data.Abstraction) []*data.Abstraction {
	source := d2
	if !source.IsAbstractionActive() &&
		(callSite == source.ActivationUnit() || p.isCallSiteActivatingTaint(callSite, source.ActivationUnit())) {
		source = source.GetActiveCopy()
	}

	var k KillFlags
	res := p.rules.CallToReturnFlow(d1, source, callSite, &k, false)
	if k.KillAll {
		return nil
	}
	passOn := !k.KillSource
	if source.IsZero() {
		return res.Items()
	}
	// the implicit taints of a conditionally called method flow over all its calls
	if top, ok := source.TopPostdominator(); ok && top.Stmt == nil {
		return []*data.Abstraction{source}
	}

	ie := callSite.InvokeExpr()
	ap := source.AccessPath()
	ssm := p.mgr.SourceSinkManager()
	isSource := ssm != nil && ssm.SourceInfo(callSite, p.mgr) != nil
	isSink := ssm != nil && ssm.SinkInfo(callSite, p.mgr, nil) != nil
	wrapper := p.mgr.TaintWrapper()

	if passOn && ie.Base != nil && (p.mgr.Config.InspectSources || !isSource) &&
		(p.mgr.Config.InspectSinks || !isSink) && ap.IsInstanceFieldRef() &&
		(hasValidCallees(p.mgr, callSite) || (wrapper != nil && wrapper.IsExclusive(callSite, source))) {
		// the taint goes through the callees if all of them read it
		callees := p.mgr.ICFG().CalleesOfCallAt(callSite)
		allCalleesRead := len(callees) > 0
	outer:
		for _, callee := range callees {
			if isExcluded(callee) {
				allCalleesRead = false
				break
			}
			for _, mapped := range p.mapAccessPathToCallee(callee, ie, ap) {
				if !p.mgr.ICFG().MethodReadsValue(callee, mapped.PlainValue()) {
					allCalleesRead = false
					break outer
				}
			}
		}
		if allCalleesRead {
			if p.mgr.Aliasing().MayAlias(ie.Base, plain(ap)) {
				passOn = false
			}
			for _, arg := range ie.Args {
				if !passOn {
					break
				}
				if p.mgr.Aliasing().MayAlias(arg, plain(ap)) {
					passOn = false
				}
			}
			if ap.IsStaticFieldRef() {
				passOn = false
			}
		}
	}

	// static fields that the callee does not use are not propagated into it
	if ap.IsStaticFieldRef() && !p.mgr.ICFG().IsStaticFieldUsed(ie.Method, ap.FirstField()) {
		passOn = true
	}
	// implicit taints flow over conditionally called methods
	if _, ok := source.TopPostdominator(); ok || ap.IsEmpty() {
		passOn = true
	}
	if passOn {
		res.Add(source)
	}

	items := res.Items()
	for _, abs := range items {
		if abs != source {
			abs.SetCorrespondingCallSite(callSite)
		}
	}
	return items
}
