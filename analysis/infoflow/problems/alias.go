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
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/aliasing"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/manager"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/solver"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// AliasDomain is the summary domain of the backward alias problems
const AliasDomain = "alias"

// AliasProblem searches the aliases of heap taints backwards, from the statement that created the taint. Every
// alias found is injected into the forward solver, inactive until it reaches the statement that created the
// original taint. The problem has no seeds: its edges are submitted by the flow sensitive aliasing strategy.
type AliasProblem struct {
	base
	cfg *icfg.BackwardsICFG
}

// NewAliasProblem returns the backward problem of the analysis managed by mgr. zero is the zero fact of the
// forward problem.
func NewAliasProblem(mgr *manager.Manager, activation *ActivationTable, zero *data.Abstraction) *AliasProblem {
	return &AliasProblem{
		base: base{mgr: mgr, zero: zero, activation: activation},
		cfg:  icfg.Backwards(mgr.ICFG()),
	}
}

// ICFG implements solver.Problem
func (p *AliasProblem) ICFG() icfg.ICFG { return p.cfg }

// ZeroValue implements solver.Problem
func (p *AliasProblem) ZeroValue() *data.Abstraction { return p.zero }

// InitialSeeds implements solver.Problem
func (p *AliasProblem) InitialSeeds() []solver.Seed { return nil }

// FlowFunctions implements solver.Problem
func (p *AliasProblem) FlowFunctions() solver.FlowFunctions { return p }

// FollowReturnsPastSeeds implements solver.Problem. Aliases found in a method with unknown callers are returned
// to all the callers.
func (p *AliasProblem) FollowReturnsPastSeeds() bool { return true }

// SummaryDomain implements solver.Problem
func (p *AliasProblem) SummaryDomain() string { return AliasDomain }

func (p *AliasProblem) staticTracking() bool {
	return p.mgr.Config.StaticFieldTracking != config.StaticFieldTrackingNone
}

// checkAbstraction drops the aliases of primitive values, which cannot have any
func checkAbstraction(abs *data.Abstraction) *data.Abstraction {
	if abs == nil {
		return nil
	}
	ap := abs.AccessPath()
	if ap.IsStaticFieldRef() {
		if isPrimitive(ap.FirstFieldType()) {
			return nil
		}
	} else if isPrimitive(ap.BaseType()) {
		return nil
	}
	return abs
}

// inject sends the alias to the forward solver, after the statement where it was found
func (p *AliasProblem) inject(d1 *data.Abstraction, stmt ir.Stmt, abs *data.Abstraction) {
	fSolver := p.mgr.ForwardSolver()
	if fSolver == nil {
		return
	}
	// the predecessors in the backward graph are the forward successors
	for _, succ := range p.cfg.PredsOf(stmt) {
		fSolver.ProcessEdge(solver.PathEdge{D1: d1, Target: succ, D2: abs})
	}
}

// NormalFlow implements solver.FlowFunctions
func (p *AliasProblem) NormalFlow(d1 *data.Abstraction, curr, succ ir.Stmt,
	d2 *data.Abstraction) []*data.Abstraction {
	if d2.IsZero() {
		return nil
	}
	if _, ok := curr.(*ir.AssignStmt); !ok {
		if _, ok := curr.(*ir.IdentityStmt); !ok {
			return []*data.Abstraction{d2}
		}
	}
	res := p.computeAliases(curr, d1, d2)
	// the first statement of a method is not the source of any edge of the backward graph
	if _, ok := succ.(*ir.AssignStmt); ok && p.cfg.IsExitStmt(succ) {
		var out []*data.Abstraction
		for _, abs := range res {
			out = append(out, p.computeAliases(succ, d1, abs)...)
		}
		return out
	}
	return res
}

// computeAliases returns the facts before the definition stmt, given that source holds after it
//
//gocyclo:ignore
func (p *AliasProblem) computeAliases(stmt ir.Stmt, d1, source *data.Abstraction) []*data.Abstraction {
	if source.IsZero() {
		return nil
	}
	if _, ok := stmt.(*ir.IdentityStmt); ok {
		return []*data.Abstraction{source}
	}
	assign, ok := stmt.(*ir.AssignStmt)
	if !ok {
		return nil
	}
	res := data.NewAbstractionSet()
	ap := source.AccessPath()
	apf := p.mgr.AccessPathFactory()
	tu := p.mgr.TypeUtils()

	left := selectBase(assign.Left, true)
	leftMatches := aliasing.BaseMatches(left, source)
	if !leftMatches {
		res.Add(source)
	} else {
		// the whole value is defined here, the alias search turns around
		p.inject(d1, stmt, source)
	}

	right := selectBase(assign.Right, false)
	_, rightIsLocal := right.(*ir.Local)
	_, rightIsInstanceField := right.(*ir.InstanceFieldRef)
	_, rightIsStatic := right.(*ir.StaticFieldRef)
	rightIsField := rightIsInstanceField || rightIsStatic
	if leftMatches && !rightIsLocal && !rightIsField {
		return nil
	}
	switch assign.Right.(type) {
	case *ir.Constant, *ir.NewArrayExpr, *ir.BinopExpr, *ir.UnopExpr:
		return res.Items()
	}
	if _, ok := right.(*ir.Constant); ok {
		return res.Items()
	}

	rightType := typeOf(right)
	aliasOverwritten := aliasing.BaseMatchesStrict(right, source) && rightType != nil && rightType.IsReference() &&
		!source.DependsOnCutAP()

	if !aliasOverwritten && !isPrimitive(rightType) {
		// b = a with a tainted makes b an alias, whose own aliases are defined above
		var newLeft *data.Abstraction
		switch r := right.(type) {
		case *ir.InstanceFieldRef:
			if ap.IsInstanceFieldRef() && r.Base == ap.PlainValue() && ap.FirstFieldMatches(r.Field) {
				newLeft = checkAbstraction(source.DeriveNewAbstraction(
					apf.CopyWithNewValueTyped(ap, left, ap.FirstFieldType(), true), stmt))
			}
		case *ir.StaticFieldRef:
			if p.staticTracking() && ap.IsStaticFieldRef() && ap.FirstFieldMatches(r.Field) {
				newLeft = checkAbstraction(source.DeriveNewAbstraction(
					apf.CopyWithNewValueTyped(ap, left, ap.BaseType(), true), stmt))
			}
		case *ir.Local:
			if r != ap.PlainValue() {
				break
			}
			newType := ap.BaseType()
			if _, ok := left.(*ir.ArrayRef); ok {
				if newType != nil {
					newType = arrayOrAddDimension(newType)
				}
			} else if _, ok := assign.Right.(*ir.ArrayRef); ok {
				if newType != nil && newType.IsArray() {
					newType = newType.Elem()
				}
			} else if !tu.CheckCastAP(ap, typeOf(assign.Left)) {
				return nil
			}
			switch x := assign.Right.(type) {
			case *ir.CastExpr:
				// the cast was realizable, so the value had the target type
				if t := x.Type(); t != nil && !t.IsArray() {
					newType = t
				}
			case *ir.LengthExpr, *ir.InstanceOfExpr:
				return res.Items()
			}
			newLeft = checkAbstraction(source.DeriveNewAbstraction(
				apf.CopyWithNewValueTyped(ap, left, newType, false), stmt))
		}
		if newLeft != nil && !newLeft.AccessPath().Equals(ap) {
			res.Add(newLeft)
			p.inject(d1, stmt, newLeft)
		}
	}

	// a = b with a tainted makes b an alias as well
	if (rightIsLocal || rightIsField) && !isPrimitive(typeOf(left)) {
		addRight := false
		cutFirst := false
		var targetType *ir.Type
		switch l := left.(type) {
		case *ir.InstanceFieldRef:
			if ap.IsInstanceFieldRef() && l.Base == ap.PlainValue() && ap.FirstFieldMatches(l.Field) {
				targetType = ap.FirstFieldType()
				addRight, cutFirst = true, true
			}
		case *ir.Local:
			if ap.IsInstanceFieldRef() {
				if l == ap.PlainValue() {
					targetType = ap.BaseType()
					addRight = true
				}
			} else if l == ap.PlainValue() {
				if !tu.CheckCastAP(ap, rightType) {
					return nil
				}
				targetType = ap.BaseType()
				addRight = true
			}
		case *ir.ArrayRef:
			if l.Base == ap.PlainValue() && ap.ArrayTaintType() != data.Length {
				targetType = ap.BaseType()
				addRight = true
			}
		}

		if addRight && targetType != nil {
			if _, ok := assign.Right.(*ir.ArrayRef); ok {
				targetType = arrayOrAddDimension(targetType)
			} else if _, ok := left.(*ir.ArrayRef); ok {
				if targetType.IsArray() {
					targetType = targetType.Elem()
				}
				if !tu.CheckCast(rightType, targetType) {
					addRight = false
				}
			}
		}
		if _, ok := assign.Right.(*ir.LengthExpr); ok {
			targetType = nil
		}
		if addRight && !tu.CheckCast(rightType, targetType) {
			addRight = false
		}
		if addRight && rightIsStatic && !p.staticTracking() {
			addRight = false
		}
		if addRight {
			newAbs := checkAbstraction(source.DeriveNewAbstraction(
				apf.CopyWithNewValueTyped(ap, right, targetType, cutFirst), stmt))
			if newAbs != nil && !newAbs.AccessPath().Equals(ap) {
				res.Add(newAbs)
				p.inject(d1, stmt, newAbs)
			}
		}
	}
	return res.Items()
}

// CallFlow implements solver.FlowFunctions
//
//gocyclo:ignore
func (p *AliasProblem) CallFlow(d1 *data.Abstraction, callSite ir.Stmt, callee *ir.Method,
	d2 *data.Abstraction) []*data.Abstraction {
	body := callee.Body()
	if body == nil || d2.IsZero() || isExcluded(callee) {
		return nil
	}
	ap := d2.AccessPath()
	ssm := p.mgr.SourceSinkManager()
	if ssm != nil {
		if !p.mgr.Config.InspectSources && ssm.SourceInfo(callSite, p.mgr) != nil {
			return nil
		}
		if !p.mgr.Config.InspectSinks && ssm.SinkInfo(callSite, p.mgr, nil) != nil {
			return nil
		}
	}
	// an alias activated at the call comes from the callee
	if !d2.IsAbstractionActive() &&
		(d2.ActivationUnit() == callSite || p.isCallSiteActivatingTaint(callSite, d2.ActivationUnit())) {
		return nil
	}
	if callee.IsStaticInitializer() && !p.staticTracking() {
		return nil
	}
	if w := p.mgr.TaintWrapper(); w != nil && w.IsExclusive(callSite, d2) {
		return nil
	}
	if ap.IsStaticFieldRef() && !p.mgr.ICFG().IsStaticFieldRead(callee, ap.FirstField()) {
		return nil
	}

	apf := p.mgr.AccessPathFactory()
	ie := callSite.InvokeExpr()
	res := data.NewAbstractionSet()

	// the returned values alias the left side of the call
	if assign, ok := callSite.(*ir.AssignStmt); ok && assign.Left == plain(ap) {
		for _, s := range body.Stmts {
			ret, ok := s.(*ir.ReturnStmt)
			if !ok {
				continue
			}
			switch ret.Op.(type) {
			case *ir.Local, *ir.InstanceFieldRef, *ir.StaticFieldRef:
				if p.mgr.TypeUtils().CheckCastAP(ap, ret.Op.Type()) {
					res.Add(checkAbstraction(d2.DeriveNewAbstraction(
						apf.CopyWithNewValueTyped(ap, ret.Op, nil, false), callSite)))
				}
			}
		}
	}

	if p.staticTracking() && ap.IsStaticFieldRef() {
		res.Add(checkAbstraction(d2.DeriveNewAbstraction(ap, callSite)))
	}

	if !ap.IsStaticFieldRef() && !callee.Static && body.This != nil && ie.Base != nil &&
		ie.Base == ap.PlainValue() && p.mgr.TypeUtils().HasCompatibleTypesForCall(ap, callee.Class) {
		isArg := false
		for _, arg := range ie.Args {
			if arg == plain(ap) {
				isArg = true
				break
			}
		}
		if !isArg {
			res.Add(checkAbstraction(d2.DeriveNewAbstraction(apf.CopyWithNewValue(ap, body.This), callSite)))
		}
	}

	if !ap.IsStaticFieldRef() {
		for i, arg := range ie.Args {
			if arg != plain(ap) {
				continue
			}
			if param := body.ParamLocal(i); param != nil {
				res.Add(checkAbstraction(d2.DeriveNewAbstraction(apf.CopyWithNewValue(ap, param), callSite)))
			}
		}
	}

	items := res.Items()
	if fSolver := p.mgr.ForwardSolver(); fSolver != nil {
		for _, abs := range items {
			fSolver.InjectContext(callee, abs, callSite, d2, d1)
		}
	}
	return items
}

// ReturnFlow implements solver.FlowFunctions. The backward graph returns from the first statement of the callee
// to the statement before the call, where the return value does not exist yet.
//
//gocyclo:ignore
func (p *AliasProblem) ReturnFlow(callSite ir.Stmt, callee *ir.Method, exit, returnSite ir.Stmt,
	calleeD1, d2 *data.Abstraction, callerD1s []*data.Abstraction) []*data.Abstraction {
	if d2.IsZero() || callSite == nil {
		return nil
	}
	ap := d2.AccessPath()
	if p.staticTracking() && ap.IsStaticFieldRef() {
		p.registerActivationCallSite(callSite, callee, d2)
		return []*data.Abstraction{d2}
	}
	body := callee.Body()
	if body == nil {
		return nil
	}
	apf := p.mgr.AccessPathFactory()
	tu := p.mgr.TypeUtils()
	ie := callSite.InvokeExpr()
	sourceBase := plain(ap)
	res := data.NewAbstractionSet()

	parameterAliases := false
	for i, param := range body.Params {
		if param != sourceBase || i >= len(ie.Args) {
			continue
		}
		parameterAliases = true
		arg := ie.Args[i]
		if !data.CanContainValue(arg) || !tu.CheckCastAP(ap, arg.Type()) {
			continue
		}
		if bt := ap.BaseType(); isPrimitive(bt) || (bt != nil && bt.IsString() && !ap.CanHaveImmutableAliases()) {
			continue
		}
		if p.mgr.ICFG().MethodWritesValue(callee, param) {
			continue
		}
		abs := checkAbstraction(d2.DeriveNewAbstraction(apf.CopyWithNewValueTyped(ap, arg, ap.BaseType(), false),
			exit))
		if abs == nil {
			continue
		}
		res.Add(abs)
		p.registerActivationCallSite(callSite, callee, abs)

		fSolver := p.mgr.ForwardSolver()
		if fSolver == nil {
			continue
		}
		// foo(o, o) makes the two parameters aliases in the callee
		for j, other := range ie.Args {
			if j == i || other != arg {
				continue
			}
			if otherParam := body.ParamLocal(j); otherParam != nil {
				if paramAbs := checkAbstraction(d2.DeriveNewAbstraction(apf.CopyWithNewValue(ap, otherParam),
					exit)); paramAbs != nil {
					fSolver.ProcessEdge(solver.PathEdge{D1: calleeD1, Target: exit, D2: paramAbs})
				}
			}
		}
		// b = foo(a) with foo returning its parameter makes b an alias without any assignment in foo
		if _, ok := callSite.(*ir.AssignStmt); ok {
			for _, end := range p.mgr.ICFG().EndPointsOf(callee) {
				if ret, ok := end.(*ir.ReturnStmt); ok && ret.Op == sourceBase {
					fSolver.ProcessEdge(solver.PathEdge{D1: calleeD1, Target: ret, D2: d2})
				}
			}
		}
	}

	if !callee.Static && body.This != nil && body.This == ap.PlainValue() && !parameterAliases &&
		ie.Base != nil && tu.HasCompatibleTypesForCall(ap, callee.Class) {
		if abs := checkAbstraction(d2.DeriveNewAbstraction(apf.CopyWithNewValue(ap, ie.Base), exit)); abs != nil {
			res.Add(abs)
			p.registerActivationCallSite(callSite, callee, abs)
		}
	}

	items := res.Items()
	for _, abs := range items {
		if abs != d2 {
			abs.SetCorrespondingCallSite(callSite)
		}
	}
	return items
}

// CallToReturnFlow implements solver.FlowFunctions
func (p *AliasProblem) CallToReturnFlow(d1 *data.Abstraction, callSite, returnSite ir.Stmt,
	d2 *data.Abstraction) []*data.Abstraction {
	if d2.IsZero() {
		return nil
	}
	ie := callSite.InvokeExpr()
	assign, isAssign := callSite.(*ir.AssignStmt)
	ap := d2.AccessPath()

	if w := p.mgr.TaintWrapper(); w != nil {
		if aliases := w.AliasesForMethod(callSite, d1, d2); len(aliases) > 0 {
			var passOn []*data.Abstraction
			for _, abs := range aliases {
				if !isAssign || assign.Left != plain(abs.AccessPath()) {
					passOn = append(passOn, abs)
				}
				if abs != d2 {
					p.inject(d1, callSite, abs)
				}
			}
			return passOn
		}
	}

	// taints on values the callees cannot see flow over the call
	callees := p.mgr.ICFG().CalleesOfCallAt(callSite)
	mustPropagate := len(callees) == 0 || isExcluded(ie.Method)
	if ap.IsStaticFieldRef() {
		if !mustPropagate && p.mgr.ICFG().IsStaticFieldUsed(ie.Method, ap.FirstField()) {
			return nil
		}
		return []*data.Abstraction{d2}
	}
	// the return value is defined by the call
	if isAssign && assign.Left == plain(ap) {
		return nil
	}
	if !mustPropagate {
		if ie.Base != nil && ie.Base == ap.PlainValue() {
			return nil
		}
		for _, arg := range ie.Args {
			if arg == plain(ap) {
				return nil
			}
		}
	}
	return []*data.Abstraction{d2}
}
