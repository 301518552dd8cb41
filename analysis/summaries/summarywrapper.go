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
	"strconv"
	"strings"

	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/samber/lo"
)

// summaryTaint is a taint expressed relative to a call: a parameter, the receiver or the return value, followed by
// resolved fields
type summaryTaint struct {
	kind           FlowKind
	paramIndex     int
	baseType       *ir.Type
	fields         []data.Fragment
	taintSubFields bool
}

func (t *summaryTaint) key() string {
	var sb strings.Builder
	sb.WriteString(t.kind.String())
	sb.WriteByte('/')
	if t.kind == Parameter {
		sb.WriteString(strconv.Itoa(t.paramIndex))
	}
	for _, f := range t.fields {
		sb.WriteByte('.')
		sb.WriteString(f.String())
	}
	if t.taintSubFields {
		sb.WriteByte('*')
	}
	return sb.String()
}

// propagator is one element of the worklist of the summary application
type propagator struct {
	taint *summaryTaint
	stmt  ir.Stmt
	d1    *data.Abstraction
	d2    *data.Abstraction
}

// classFlows are the summaries found for a call in one class
type classFlows struct {
	className string
	flows     *MethodSummaries
}

// SummaryTaintWrapper applies method summaries from a Provider at the call sites of summarized methods. Calls
// to gaps are not followed into client code: flows starting or ending at a gap are ignored.
type SummaryTaintWrapper struct {
	counters
	provider Provider
	env      Environment
	fallback TaintWrapper
}

// NewSummaryTaintWrapper returns a wrapper over the summaries of the provider
func NewSummaryTaintWrapper(provider Provider) *SummaryTaintWrapper {
	return &SummaryTaintWrapper{provider: provider}
}

// SetFallbackWrapper sets the wrapper used for the classes the provider has no summaries for
func (w *SummaryTaintWrapper) SetFallbackWrapper(fallback TaintWrapper) { w.fallback = fallback }

// Provider returns the summary provider of the wrapper
func (w *SummaryTaintWrapper) Provider() Provider { return w.provider }

// Initialize implements TaintWrapper
func (w *SummaryTaintWrapper) Initialize(env Environment) error {
	w.env = env
	if w.fallback != nil {
		return w.fallback.Initialize(env)
	}
	return nil
}

func (w *SummaryTaintWrapper) program() *ir.Program {
	return w.env.AccessPathFactory().TypeUtils().Program()
}

// TaintsForMethod implements TaintWrapper
func (w *SummaryTaintWrapper) TaintsForMethod(stmt ir.Stmt, d1, taint *data.Abstraction) []*data.Abstraction {
	ie := stmt.InvokeExpr()
	if ie == nil {
		return []*data.Abstraction{taint}
	}
	if taint.IsZero() {
		return nil
	}
	m := ie.Method
	flows, classSupported := w.flowsForMethod(stmt, m, taint.AccessPath())
	aps, kill := w.computeTaintsForMethod(stmt, d1, taint, flows)

	var res []*data.Abstraction
	wasEqualToIncoming := false
	for _, ap := range aps {
		if ap == taint.AccessPath() {
			wasEqualToIncoming = true
			res = append(res, taint)
		} else if abs := taint.DeriveNewAbstraction(ap, stmt); abs != nil {
			res = append(res, abs)
		}
	}

	if !kill && len(res) == 0 && !w.provider.IsMethodExcluded(m.Class.Name, m.SubSignature()) {
		if classSupported {
			return []*data.Abstraction{taint}
		}
		if w.fallback != nil {
			return w.fallback.TaintsForMethod(stmt, d1, taint)
		}
		return nil
	}
	if !kill {
		if len(res) == 0 {
			return []*data.Abstraction{taint}
		}
		if !wasEqualToIncoming {
			res = append(res, taint)
		}
	}
	if res == nil {
		return []*data.Abstraction{}
	}
	return uniqueAbstractions(res)
}

// computeTaintsForMethod applies the flows to the taint and returns the resulting access paths, and whether the
// incoming taint is killed by the call
func (w *SummaryTaintWrapper) computeTaintsForMethod(stmt ir.Stmt, d1, taint *data.Abstraction,
	flows []classFlows) ([]*data.AccessPath, bool) {
	if len(flows) == 0 {
		return nil, false
	}
	taints, kill := w.taintsFromAccessPathOnCall(taint.AccessPath(), stmt, false)
	if len(taints) == 0 {
		return nil, kill
	}
	var res []*data.AccessPath
	for _, cf := range flows {
		var workList []*propagator
		for _, t := range taints {
			killed, prevent := w.clearsTaint(cf.flows, t, stmt)
			kill = kill || killed
			if !prevent {
				workList = append(workList, &propagator{taint: t, stmt: stmt, d1: d1, d2: taint})
			}
		}
		for _, ap := range w.applyFlowsIterative(cf, workList, stmt) {
			res = addAccessPath(res, ap)
		}
	}
	return res, kill
}

// clearsTaint returns whether a clear of the summaries matches the taint, and whether that clear prevents the
// propagation of the other flows
func (w *SummaryTaintWrapper) clearsTaint(s *MethodSummaries, t *summaryTaint, stmt ir.Stmt) (bool, bool) {
	subSig := stmt.InvokeExpr().Method.SubSignature()
	for _, c := range s.ClearsFor(subSig) {
		if w.endpointMatchesTaint(c.Source, nil, t, stmt) {
			return true, c.PreventPropagation
		}
	}
	return false, false
}

// applyFlowsIterative applies the flows of the class to the propagators in the work list until a fixpoint is
// reached, and returns the access paths of the taints obtained at the call site
func (w *SummaryTaintWrapper) applyFlowsIterative(cf classFlows, workList []*propagator,
	stmt ir.Stmt) []*data.AccessPath {
	subSig := stmt.InvokeExpr().Method.SubSignature()
	methodFlows := cf.flows.FlowsFor(subSig)
	done := map[string]bool{}
	for _, p := range workList {
		done[p.taint.key()] = true
	}
	maxLength := w.env.AccessPathFactory().MaxLength()

	var res []*data.AccessPath
	for len(workList) > 0 {
		cur := workList[0]
		workList = workList[1:]
		for _, flow := range methodFlows {
			next := w.applyFlow(cf.className, flow, cur)
			if next == nil {
				if rev := reverseFlowForAlias(flow); rev != nil {
					next = w.applyFlow(cf.className, rev, cur)
				}
			}
			if next == nil {
				continue
			}
			if maxLength >= 0 && len(next.taint.fields) > maxLength {
				next.taint.fields = next.taint.fields[:maxLength]
				next.taint.taintSubFields = true
			}
			if ap := w.accessPathFromTaint(next.taint, stmt); ap != nil {
				res = addAccessPath(res, ap)
			}
			if k := next.taint.key(); !done[k] && !flow.Final {
				done[k] = true
				workList = append(workList, next)
			}
		}
	}
	return res
}

// applyFlow applies one flow to the taint of the propagator and returns the propagator of the resulting taint,
// or nil if the flow does not apply
func (w *SummaryTaintWrapper) applyFlow(className string, flow *MethodFlow, p *propagator) *propagator {
	t := p.taint
	if flow.Source.Gap != nil || flow.Sink.Gap != nil {
		return nil
	}
	if flow.Source.BaseType != "" && !w.isCastCompatible(t.baseType, typeFromString(flow.Source.BaseType)) {
		return nil
	}
	if !w.flowMatchesTaint(flow, t, p.stmt) {
		return nil
	}
	newTaint := w.sinkTaint(className, flow, t, p.stmt)
	if newTaint == nil {
		return nil
	}
	// x = f(y) with y inactive only taints x when fields remain
	if p.d2 != nil && !p.d2.IsAbstractionActive() && !p.d2.DependsOnCutAP() && flow.Sink.Kind == Return &&
		len(newTaint.fields) == 0 {
		return nil
	}
	return &propagator{taint: newTaint, stmt: p.stmt, d1: p.d1, d2: p.d2}
}

// reverseFlowForAlias returns the reversed flow if the flow is an aliasing relationship between heap objects
func reverseFlowForAlias(flow *MethodFlow) *MethodFlow {
	if !flow.IsAlias {
		return nil
	}
	if !canTypeAlias(lastFieldType(flow.Source)) || !canTypeAlias(lastFieldType(flow.Sink.FlowEndpoint)) {
		return nil
	}
	return flow.Reverse()
}

func lastFieldType(e FlowEndpoint) string {
	if n := len(e.AccessPathTypes); n > 0 {
		return e.AccessPathTypes[n-1]
	}
	if e.HasAccessPath() {
		return ""
	}
	return e.BaseType
}

// canTypeAlias returns false for the types whose values cannot have aliases
func canTypeAlias(typeName string) bool {
	t := typeFromString(typeName)
	return t == nil || !(t.IsPrimitive() || t.IsString())
}

func (w *SummaryTaintWrapper) flowMatchesTaint(flow *MethodFlow, t *summaryTaint, stmt ir.Stmt) bool {
	return w.endpointMatchesTaint(flow.Source, flow.Constraints, t, stmt)
}

// endpointMatchesTaint returns true if the taint is at the source location of a flow or clear
func (w *SummaryTaintWrapper) endpointMatchesTaint(src FlowEndpoint, constraints []FlowConstraint,
	t *summaryTaint, stmt ir.Stmt) bool {
	match := src.Kind == Parameter && t.kind == Parameter && t.paramIndex == src.ParamIndex
	match = match || src.Kind == Field && (t.kind == GapBaseObject || t.kind == Field)
	// for aliases, the return value matches every exit
	match = match || src.Kind == Return && src.Gap == nil && t.kind == Return
	if !match || !compareFields(t, src) {
		return false
	}
	if !src.Constrained {
		return true
	}
	var taintCtx []string
	if len(t.fields) > 0 {
		taintCtx = t.fields[0].Context
	}
	return data.ContextMatches(concretizeConstraints(constraints, stmt), taintCtx)
}

// compareFields returns true if the fields of the taint match those of the flow source
func compareFields(t *summaryTaint, src FlowEndpoint) bool {
	if len(t.fields) < len(src.AccessPath) && (!t.taintSubFields || src.MatchStrict) {
		return false
	}
	for i := 0; i < len(t.fields) && i < len(src.AccessPath); i++ {
		_, name, _ := parseFieldName(src.AccessPath[i])
		if t.fields[i].Field.Name != name {
			return false
		}
	}
	return true
}

// concretizeConstraints returns the container context designated by the constraints at the call. A key that is
// not a constant is unknown and represented by the empty string.
func concretizeConstraints(constraints []FlowConstraint, stmt ir.Stmt) []string {
	if len(constraints) == 0 || stmt == nil || stmt.InvokeExpr() == nil {
		return nil
	}
	ie := stmt.InvokeExpr()
	ctx := make([]string, len(constraints))
	for i, c := range constraints {
		if c.ParamIndex < len(ie.Args) {
			if k, ok := ie.Args[c.ParamIndex].(*ir.Constant); ok {
				ctx[i] = k.Value
			}
		}
	}
	return ctx
}

func hasInformation(ctx []string) bool {
	return lo.SomeBy(ctx, func(s string) bool { return s != "" })
}

// sinkTaint computes the taint at the sink of the flow
//
//gocyclo:ignore
func (w *SummaryTaintWrapper) sinkTaint(className string, flow *MethodFlow, t *summaryTaint,
	stmt ir.Stmt) *summaryTaint {
	src, sink := flow.Source, flow.Sink

	var remaining []data.Fragment
	if !flow.CutSubFields {
		remaining = remainingFields(src, t)
	}
	sinkFields := w.resolveFields(className, sink.FlowEndpoint)
	appended := append(append([]data.Fragment(nil), sinkFields...), remaining...)

	lastCommon := lo.Min([]int{len(src.AccessPath), len(t.fields)})
	sinkType := w.assignmentType(sink.FlowEndpoint, sinkFields, stmt)
	taintType := t.baseType
	if lastCommon > 0 {
		taintType = t.fields[lastCommon-1].Type
	}

	if flow.typeChecking() && sinkType != nil && taintType != nil && sink.Kind == Field &&
		!sinkType.IsPrimitive() && !w.isCastCompatible(taintType, sinkType) {
		found := false
		for st := sinkType; st.IsArray() && !found; {
			st = st.Elem()
			found = w.isCastCompatible(taintType, st)
		}
		for tt := taintType; tt.IsArray() && !found; {
			tt = tt.Elem()
			found = w.isCastCompatible(tt, sinkType)
		}
		if !found {
			return nil
		}
	}

	kind := sink.Kind
	if kind == GapBaseObject && len(remaining) > 0 {
		kind = Field
	}

	newBase := w.env.AccessPathFactory().TypeUtils().MorePreciseType(taintType, sinkType)
	if newBase == nil {
		newBase = sinkType
	}
	baseType := newBase
	if len(sinkFields) > 0 {
		if newBase != nil {
			appended[len(sinkFields)-1] = appended[len(sinkFields)-1].WithType(newBase)
		}
		baseType = typeFromString(sink.BaseType)
	}

	if sink.Constrained && len(appended) > 0 {
		if ctx := concretizeConstraints(flow.Constraints, stmt); hasInformation(ctx) {
			appended[0] = appended[0].WithContext(ctx...)
		}
	}

	return &summaryTaint{
		kind:           kind,
		paramIndex:     sink.ParamIndex,
		baseType:       baseType,
		fields:         appended,
		taintSubFields: sink.TaintSubFields || t.taintSubFields,
	}
}

// remainingFields returns the fields of the taint below the source of the flow
func remainingFields(src FlowEndpoint, t *summaryTaint) []data.Fragment {
	if !src.HasAccessPath() {
		return t.fields
	}
	if len(t.fields) <= len(src.AccessPath) {
		return nil
	}
	return t.fields[len(src.AccessPath):]
}

// assignmentType returns the type of the location written by a sink
func (w *SummaryTaintWrapper) assignmentType(e FlowEndpoint, fields []data.Fragment, stmt ir.Stmt) *ir.Type {
	if len(fields) > 0 {
		return fields[len(fields)-1].Type
	}
	if e.BaseType != "" {
		return typeFromString(e.BaseType)
	}
	ie := stmt.InvokeExpr()
	if ie == nil {
		return nil
	}
	switch e.Kind {
	case Parameter:
		if e.ParamIndex < len(ie.Method.ParamTypes) {
			return ie.Method.ParamTypes[e.ParamIndex]
		}
	case Return:
		return ie.Method.ReturnType
	case Field:
		return ie.Method.Class.Type()
	}
	return nil
}

func (w *SummaryTaintWrapper) isCastCompatible(baseType, checkType *ir.Type) bool {
	if baseType == nil || checkType == nil {
		return true
	}
	tu := w.env.AccessPathFactory().TypeUtils()
	if data.IsObjectLikeType(baseType) {
		return checkType.IsReference() || data.IsObjectLikeType(checkType)
	}
	if data.IsObjectLikeType(checkType) {
		return baseType.IsReference()
	}
	return baseType == checkType || tu.CheckCast(baseType, checkType) || tu.CheckCast(checkType, baseType)
}

// resolveFields turns the field names of the endpoint into fields of the program. Fields of classes that the
// program does not declare are added to it.
func (w *SummaryTaintWrapper) resolveFields(className string, e FlowEndpoint) []data.Fragment {
	if !e.HasAccessPath() {
		return nil
	}
	p := w.program()
	owner := className
	if e.BaseType != "" {
		owner = e.BaseType
	}
	res := make([]data.Fragment, 0, len(e.AccessPath))
	for i, s := range e.AccessPath {
		fieldClass, name, typeName := parseFieldName(s)
		if fieldClass == "" {
			fieldClass = owner
		}
		if typeName == "" && i < len(e.AccessPathTypes) {
			typeName = e.AccessPathTypes[i]
		}
		c := p.Class(fieldClass)
		if c == nil {
			c = p.AddClass(fieldClass, nil)
			c.Library = true
		}
		f := c.Field(name)
		if f == nil {
			ft := typeFromString(typeName)
			if ft == nil {
				ft = ir.Unknown
			}
			f = c.AddField(name, ft, false)
		}
		frag := data.NewFragment(f)
		if t := typeFromString(typeName); t != nil {
			frag = frag.WithType(t)
		}
		res = append(res, frag)
		owner = ""
		if frag.Type != nil && frag.Type.Kind() == ir.ReferenceKind {
			owner = frag.Type.Name()
		}
		if owner == "" {
			owner = className
		}
	}
	return res
}

// parseFieldName splits a field of a summary access path. Fields are either plain names, resolved against the
// owner of the access path, or signatures "<Class: type name>".
func parseFieldName(s string) (className, name, typeName string) {
	if !strings.HasPrefix(s, "<") || !strings.HasSuffix(s, ">") {
		return "", s, ""
	}
	body := s[1 : len(s)-1]
	i := strings.Index(body, ": ")
	if i < 0 {
		return "", body, ""
	}
	className = body[:i]
	parts := strings.Fields(body[i+2:])
	if len(parts) != 2 {
		return className, body[i+2:], ""
	}
	return className, parts[1], parts[0]
}

var primitiveTypeNames = map[string]bool{
	"byte": true, "int": true, "bool": true, "rune": true, "uintptr": true,
	"int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"float32": true, "float64": true, "complex64": true, "complex128": true,
}

// typeFromString returns the type with the name used in summaries, nil for the empty name
func typeFromString(name string) *ir.Type {
	switch {
	case name == "":
		return nil
	case name == "void":
		return ir.Void
	case name == ir.String.Name():
		return ir.String
	case primitiveTypeNames[name]:
		return ir.PrimType(name)
	case strings.HasSuffix(name, "[]"):
		return ir.ArrayOf(typeFromString(strings.TrimSuffix(name, "[]")))
	case strings.HasPrefix(name, "[]"):
		return ir.ArrayOf(typeFromString(strings.TrimPrefix(name, "[]")))
	}
	return ir.RefType(strings.TrimPrefix(name, "*"))
}

// taintsFromAccessPathOnCall returns the taints relative to the call for the access path. With
// matchReturnedValues, an access path rooted at the value defined by the call is a return taint, and the incoming
// taint is killed.
func (w *SummaryTaintWrapper) taintsFromAccessPathOnCall(ap *data.AccessPath, stmt ir.Stmt,
	matchReturnedValues bool) ([]*summaryTaint, bool) {
	ie := stmt.InvokeExpr()
	v := ap.PlainValue()
	var res []*summaryTaint
	kill := false
	newTaint := func(kind FlowKind, idx int) *summaryTaint {
		return &summaryTaint{kind: kind, paramIndex: idx, baseType: ap.BaseType(), fields: ap.Fragments(),
			taintSubFields: ap.TaintSubFields()}
	}
	if v == nil {
		return nil, false
	}
	if ie.Base != nil && ie.Base == v {
		res = append(res, newTaint(Field, -1))
	}
	for i, a := range ie.Args {
		if a == ir.Value(v) {
			res = append(res, newTaint(Parameter, i))
		}
	}
	if matchReturnedValues {
		if assign, ok := stmt.(*ir.AssignStmt); ok && assign.Left == ir.Value(v) {
			res = append(res, newTaint(Return, -1))
			kill = true
		}
	}
	return res, kill
}

// accessPathFromTaint returns the access path at the call site designated by the taint, or nil
func (w *SummaryTaintWrapper) accessPathFromTaint(t *summaryTaint, stmt ir.Stmt) *data.AccessPath {
	ie := stmt.InvokeExpr()
	factory := w.env.AccessPathFactory()
	var v ir.Value
	baseType := t.baseType
	switch t.kind {
	case Return:
		assign, ok := stmt.(*ir.AssignStmt)
		if !ok {
			return nil
		}
		v = assign.Left
	case Parameter:
		if t.paramIndex < 0 || t.paramIndex >= len(ie.Args) || !data.CanContainValue(ie.Args[t.paramIndex]) {
			return nil
		}
		v = ie.Args[t.paramIndex]
		baseType = factory.TypeUtils().MorePreciseType(v.Type(), t.baseType)
	case Field:
		if ie.Base != nil {
			v = ie.Base
		} else if ie.Method.ReturnType != ir.Void {
			// a package-level function writing to its result
			assign, ok := stmt.(*ir.AssignStmt)
			if !ok {
				return nil
			}
			v = assign.Left
		} else {
			return nil
		}
	default:
		return nil
	}
	return factory.Create(v, baseType, t.fields, t.taintSubFields, false, data.ContentsAndLength, false)
}

// flowsForMethod returns the summaries applicable to the call of m at stmt, and whether some class of the
// receiver's hierarchy is supported by the provider
func (w *SummaryTaintWrapper) flowsForMethod(stmt ir.Stmt, m *ir.Method, ap *data.AccessPath) ([]classFlows, bool) {
	subSig := m.SubSignature()
	supported := false
	var candidates []*ir.Class
	if c := w.summaryDeclaringClass(stmt, ap); c != nil {
		candidates = append(candidates, c)
	}
	candidates = append(candidates, m.Class)

	seen := map[string]bool{}
	for _, c := range candidates {
		for _, name := range w.hierarchyNames(c) {
			if seen[name] {
				continue
			}
			seen[name] = true
			if w.provider.SupportsClass(name) {
				supported = true
			}
			if s := w.provider.MethodFlows(name, subSig); !s.IsEmpty() {
				return []classFlows{{className: name, flows: s}}, true
			}
		}
	}

	var res []classFlows
	if stmt != nil && w.env != nil && !m.Static && !m.IsConstructor() && !m.IsStaticInitializer() {
		for _, callee := range w.env.ICFG().CalleesOfCallAt(stmt) {
			if s := w.provider.MethodFlows(callee.Class.Name, subSig); !s.IsEmpty() {
				supported = true
				res = append(res, classFlows{className: callee.Class.Name, flows: s})
			}
		}
	}
	return res, supported
}

// summaryDeclaringClass returns the class of the receiver, using the more precise type of the tainted access path
// when the receiver is tainted
func (w *SummaryTaintWrapper) summaryDeclaringClass(stmt ir.Stmt, ap *data.AccessPath) *ir.Class {
	if stmt == nil {
		return nil
	}
	ie := stmt.InvokeExpr()
	if ie == nil || ie.Base == nil {
		return nil
	}
	var declared *ir.Type
	if ap != nil && ie.Base == ap.PlainValue() {
		declared = ap.BaseType()
	}
	declared = w.env.AccessPathFactory().TypeUtils().MorePreciseType(declared, ie.Base.Type())
	if declared == nil || declared.Kind() != ir.ReferenceKind {
		return nil
	}
	return w.program().Class(declared.Name())
}

// hierarchyNames returns the class, its super classes and interfaces, and the super classes declared in the
// summaries for library classes
func (w *SummaryTaintWrapper) hierarchyNames(c *ir.Class) []string {
	var res []string
	seen := map[string]bool{}
	var walk func(name string, cls *ir.Class)
	walk = func(name string, cls *ir.Class) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		res = append(res, name)
		if cls != nil {
			if cls.Super != nil {
				walk(cls.Super.Name, cls.Super)
			}
			for _, itf := range cls.Interfaces {
				walk(itf.Name, itf)
			}
		}
		if cms := w.provider.ClassFlows(name); cms != nil {
			walk(cms.Superclass, nil)
			for _, itf := range cms.Interfaces {
				walk(itf, nil)
			}
		}
	}
	walk(c.Name, c)
	return res
}

// IsExclusive implements TaintWrapper
func (w *SummaryTaintWrapper) IsExclusive(stmt ir.Stmt, taint *data.Abstraction) bool {
	if w.SupportsCallSite(stmt) {
		return w.count(true)
	}
	if w.fallback != nil && w.fallback.IsExclusive(stmt, taint) {
		return w.count(true)
	}
	if ie := stmt.InvokeExpr(); ie != nil && ie.Method.Class != nil {
		if cms := w.provider.ClassFlows(ie.Method.Class.Name); cms != nil && cms.ExclusiveForClass {
			return w.count(true)
		}
		if w.provider.SupportsClass(ie.Method.Class.Name) {
			return w.count(true)
		}
	}
	return w.count(false)
}

// SupportsCallee implements TaintWrapper
func (w *SummaryTaintWrapper) SupportsCallee(m *ir.Method) bool {
	if m.Class == nil {
		return false
	}
	cms := w.provider.ClassFlows(m.Class.Name)
	if cms == nil {
		return false
	}
	if cms.ExclusiveForClass {
		return true
	}
	return !cms.Methods.FilterForMethod(m.SubSignature()).IsEmpty()
}

// SupportsCallSite implements TaintWrapper
func (w *SummaryTaintWrapper) SupportsCallSite(stmt ir.Stmt) bool {
	ie := stmt.InvokeExpr()
	if ie == nil {
		return false
	}
	if w.SupportsCallee(ie.Method) {
		return true
	}
	if w.env == nil {
		return false
	}
	return lo.SomeBy(w.env.ICFG().CalleesOfCallAt(stmt), func(callee *ir.Method) bool {
		return !callee.IsStaticInitializer() && w.SupportsCallee(callee)
	})
}

// AliasesForMethod implements TaintWrapper. Only alias flows are applied, in both directions.
func (w *SummaryTaintWrapper) AliasesForMethod(stmt ir.Stmt, d1, taint *data.Abstraction) []*data.Abstraction {
	ie := stmt.InvokeExpr()
	if ie == nil {
		return []*data.Abstraction{taint}
	}
	flows, _ := w.flowsForMethod(stmt, ie.Method, taint.AccessPath())
	if len(flows) == 0 {
		if w.fallback != nil {
			return w.fallback.AliasesForMethod(stmt, d1, taint)
		}
		return nil
	}
	taints, kill := w.taintsFromAccessPathOnCall(taint.AccessPath(), stmt, true)
	if len(taints) == 0 {
		return []*data.Abstraction{}
	}

	var res []*data.AccessPath
	for _, cf := range flows {
		aliasFlows := classFlows{className: cf.className, flows: cf.flows.FilterForAliases()}
		if aliasFlows.flows.IsEmpty() {
			continue
		}
		var workList []*propagator
		for _, t := range taints {
			killed, prevent := w.clearsTaint(aliasFlows.flows, t, stmt)
			kill = kill || killed
			if !prevent {
				workList = append(workList, &propagator{taint: t, stmt: stmt, d1: d1, d2: taint})
			}
		}
		for _, ap := range w.applyFlowsIterative(aliasFlows, workList, stmt) {
			res = addAccessPath(res, ap)
		}
	}

	if len(res) == 0 {
		if kill {
			return []*data.Abstraction{}
		}
		return []*data.Abstraction{taint}
	}
	var abs []*data.Abstraction
	if !kill {
		abs = append(abs, taint)
	}
	for _, ap := range res {
		if ap == taint.AccessPath() {
			continue
		}
		if newAbs := taint.DeriveNewAbstraction(ap, stmt); newAbs != nil {
			newAbs.SetCorrespondingCallSite(stmt)
			abs = append(abs, newAbs)
		}
	}
	return uniqueAbstractions(abs)
}
