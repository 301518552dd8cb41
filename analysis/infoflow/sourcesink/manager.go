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

package sourcesink

import (
	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/samber/lo"
)

// Environment gives the source/sink managers access to the analysis they serve
type Environment interface {
	ICFG() icfg.ICFG
	AccessPathFactory() *data.AccessPathFactory
}

// Manager classifies statements as sources and sinks
type Manager interface {
	// Initialize resolves the definitions in the program. It is called once before the analysis starts.
	Initialize(p *ir.Program)
	// SourceInfo returns the source information of s, nil if s is not a source
	SourceInfo(s ir.Stmt, env Environment) *SourceInfo
	// SinkInfo returns the sink information of s for a taint on ap, nil if s is not a sink for ap. A nil ap asks
	// whether s is a sink for any taint.
	SinkInfo(s ir.Stmt, env Environment, ap *data.AccessPath) *SinkInfo
}

// ConditionalFlowManager is implemented by managers that know conditional sinks
type ConditionalFlowManager interface {
	Manager
	// IsConditionalSink returns true if s calls a conditional sink on a receiver of class baseClass
	IsConditionalSink(s ir.Stmt, baseClass *ir.Class) bool
	// IsSecondarySink returns true if s calls a method referenced by the condition of a conditional sink
	IsSecondarySink(s ir.Stmt) bool
	// RegisterSecondarySink marks m as a secondary sink
	RegisterSecondarySink(m *ir.Method)
}

// IsTaintVisible returns false when a taint on ap cannot be observed inside callee: library code cannot read
// fields declared by application classes.
func IsTaintVisible(ap *data.AccessPath, callee *ir.Method) bool {
	if ap == nil || callee == nil || !callee.Class.IsSystem() {
		return true
	}
	f := ap.FirstField()
	if f == nil || f.Class == nil {
		return true
	}
	return f.Class.IsSystem()
}

// DefinitionManager is a Manager backed by source and sink definitions. Definitions are registered by
// signature and resolved against the program in Initialize.
type DefinitionManager struct {
	logger *config.LogGroup

	sourceDefs []data.Definition
	sinkDefs   []data.Definition

	hierarchy hierarchy

	sourceMethods  map[*ir.Method][]data.Definition
	sinkMethods    map[*ir.Method][]data.Definition
	sinkReturns    map[*ir.Method][]data.Definition
	callbacks      map[*ir.Method][]data.Definition
	sourceFields   map[*ir.Field][]data.Definition
	sinkFields     map[*ir.Field][]data.Definition
	sourceStmts    map[ir.Stmt][]data.Definition
	sinkStmts      map[ir.Stmt][]data.Definition
	excluded       map[*ir.Method]bool
	condSinks      map[*ir.Method][]*MethodDefinition
	condExcluded   map[*ir.Method]map[*ir.Class]bool
	secondaryMeths map[*ir.Method]bool
	secondaryClass map[*ir.Class]bool
}

// NewDefinitionManager returns a manager for the source and sink definitions
func NewDefinitionManager(logger *config.LogGroup, sources, sinks []data.Definition) *DefinitionManager {
	if logger == nil {
		logger = config.NewNopLogGroup()
	}
	return &DefinitionManager{logger: logger, sourceDefs: sources, sinkDefs: sinks, excluded: map[*ir.Method]bool{}}
}

// Exclude prevents sources and sinks from being found inside m
func (sm *DefinitionManager) Exclude(m *ir.Method) { sm.excluded[m] = true }

// Initialize implements Manager
//
//gocyclo:ignore
func (sm *DefinitionManager) Initialize(p *ir.Program) {
	sm.sourceMethods = map[*ir.Method][]data.Definition{}
	sm.sinkMethods = map[*ir.Method][]data.Definition{}
	sm.sinkReturns = map[*ir.Method][]data.Definition{}
	sm.callbacks = map[*ir.Method][]data.Definition{}
	sm.sourceFields = map[*ir.Field][]data.Definition{}
	sm.sinkFields = map[*ir.Field][]data.Definition{}
	sm.sourceStmts = map[ir.Stmt][]data.Definition{}
	sm.sinkStmts = map[ir.Stmt][]data.Definition{}
	sm.condSinks = map[*ir.Method][]*MethodDefinition{}
	sm.condExcluded = map[*ir.Method]map[*ir.Class]bool{}
	sm.secondaryMeths = map[*ir.Method]bool{}
	sm.secondaryClass = map[*ir.Class]bool{}

	methods := map[string]*ir.Method{}
	fields := map[string]*ir.Field{}
	for _, c := range p.Classes() {
		for _, m := range c.Methods() {
			methods[m.Signature()] = m
		}
		for _, f := range c.Fields() {
			fields[f.Signature()] = f
		}
	}

	var callbackDefs []*MethodDefinition
	for _, def := range sm.sourceDefs {
		switch d := def.(type) {
		case *MethodDefinition:
			if d.CallType == Callback {
				callbackDefs = append(callbackDefs, d)
			} else if m := methods[d.Signature]; m != nil {
				sm.sourceMethods[m] = append(sm.sourceMethods[m], d)
			}
		case *FieldDefinition:
			if f := fields[d.FieldSignature]; f != nil {
				sm.sourceFields[f] = append(sm.sourceFields[f], d)
			}
		case *StatementDefinition:
			sm.sourceStmts[d.Stmt] = append(sm.sourceStmts[d.Stmt], d)
		}
	}
	for _, def := range sm.sinkDefs {
		switch d := def.(type) {
		case *MethodDefinition:
			m := methods[d.Signature]
			if m == nil {
				continue
			}
			if d.CallType == Return {
				sm.sinkReturns[m] = append(sm.sinkReturns[m], d)
				continue
			}
			if len(d.Conditions) > 0 {
				sm.registerConditionalSink(m, d)
			}
			sm.sinkMethods[m] = append(sm.sinkMethods[m], d)
		case *FieldDefinition:
			if f := fields[d.FieldSignature]; f != nil {
				sm.sinkFields[f] = append(sm.sinkFields[f], d)
			}
		case *StatementDefinition:
			sm.sinkStmts[d.Stmt] = append(sm.sinkStmts[d.Stmt], d)
		}
	}
	sm.collectCallbacks(p, methods, callbackDefs)
	sm.logger.Debugf("Source/sink manager initialized with %d source methods, %d sink methods, %d callbacks",
		len(sm.sourceMethods), len(sm.sinkMethods), len(sm.callbacks))
}

func (sm *DefinitionManager) registerConditionalSink(m *ir.Method, d *MethodDefinition) {
	sm.condSinks[m] = append(sm.condSinks[m], d)
	excl := sm.condExcluded[m]
	if excl == nil {
		excl = map[*ir.Class]bool{}
		sm.condExcluded[m] = excl
	}
	for _, cond := range d.Conditions {
		for _, x := range cond.ReferencedMethods() {
			sm.secondaryMeths[x] = true
		}
		for _, x := range cond.ReferencedClasses() {
			sm.secondaryClass[x] = true
		}
		for _, x := range cond.ExcludedClasses() {
			excl[x] = true
		}
	}
}

// collectCallbacks finds the application methods overriding the callback definitions
func (sm *DefinitionManager) collectCallbacks(p *ir.Program, methods map[string]*ir.Method,
	defs []*MethodDefinition) {
	for _, d := range defs {
		declared := methods[d.Signature]
		if declared == nil {
			continue
		}
		for _, c := range p.SubtypesOf(declared.Class) {
			if c.IsSystem() {
				continue
			}
			if m := c.MethodBySubSignature(declared.SubSignature()); m != nil && m.HasBody() {
				sm.callbacks[m] = append(sm.callbacks[m], d)
			}
		}
	}
}

// lookupMethod finds the definitions of the callee of s in table, trying the declared callee, the methods it
// overrides and finally the callees in the ICFG
func (sm *DefinitionManager) lookupMethod(s ir.Stmt, env Environment,
	table map[*ir.Method][]data.Definition) []data.Definition {
	ie := s.InvokeExpr()
	if ie == nil || len(table) == 0 {
		return nil
	}
	if defs := table[ie.Method]; len(defs) > 0 {
		return defs
	}
	subSig := ie.Method.SubSignature()
	for _, parent := range sm.hierarchy.parentsOf(ie.Method.Class) {
		if m := parent.MethodBySubSignature(subSig); m != nil {
			if defs := table[m]; len(defs) > 0 {
				return defs
			}
		}
	}
	if env != nil && env.ICFG() != nil {
		for _, m := range env.ICFG().CalleesOfCallAt(s) {
			if defs := table[m]; len(defs) > 0 {
				return defs
			}
		}
	}
	return nil
}

// SourceInfo implements Manager
func (sm *DefinitionManager) SourceInfo(s ir.Stmt, env Environment) *SourceInfo {
	if sm.excluded[s.Method()] {
		return nil
	}
	f := env.AccessPathFactory()
	if defs := sm.sourceStmts[s]; len(defs) > 0 {
		return NewSourceInfo(statementSourcePairs(s, defs, f), nil)
	}
	if defs := sm.lookupMethod(s, env, sm.sourceMethods); len(defs) > 0 {
		return NewSourceInfo(callSourcePairs(s, defs, f), nil)
	}
	if is, ok := s.(*ir.IdentityStmt); ok {
		if pr, ok := is.Right.(*ir.ParameterRef); ok {
			if defs := sm.callbacks[s.Method()]; len(defs) > 0 {
				return NewSourceInfo(callbackSourcePairs(is.Left, pr.Index, defs, f), nil)
			}
		}
	}
	if as, ok := s.(*ir.AssignStmt); ok {
		var field *ir.Field
		switch r := as.Right.(type) {
		case *ir.InstanceFieldRef:
			field = r.Field
		case *ir.StaticFieldRef:
			field = r.Field
		}
		if defs := sm.sourceFields[field]; field != nil && len(defs) > 0 {
			pairs := lo.Map(defs, func(d data.Definition, _ int) APDef {
				return APDef{AccessPath: f.Create(as.Left, nil, nil, true, false, data.ContentsAndLength, false),
					Definition: d}
			})
			return NewSourceInfo(pairs, nil)
		}
	}
	return nil
}

// SinkInfo implements Manager
func (sm *DefinitionManager) SinkInfo(s ir.Stmt, env Environment, ap *data.AccessPath) *SinkInfo {
	if sm.excluded[s.Method()] {
		return nil
	}
	if defs := sm.sinkStmts[s]; len(defs) > 0 {
		return NewSinkInfo(defs...)
	}
	if ie := s.InvokeExpr(); ie != nil {
		if !IsTaintVisible(ap, ie.Method) {
			return nil
		}
		defs := sm.lookupMethod(s, env, sm.sinkMethods)
		defs = lo.Filter(defs, func(d data.Definition, _ int) bool { return sinkMatchesTaint(d, ie, ap) })
		if len(defs) > 0 {
			return NewSinkInfo(defs...)
		}
		return nil
	}
	switch x := s.(type) {
	case *ir.AssignStmt:
		var field *ir.Field
		switch l := x.Left.(type) {
		case *ir.InstanceFieldRef:
			field = l.Field
		case *ir.StaticFieldRef:
			field = l.Field
		}
		if defs := sm.sinkFields[field]; field != nil && len(defs) > 0 {
			return NewSinkInfo(defs...)
		}
	case *ir.ReturnStmt:
		if defs := sm.sinkReturns[s.Method()]; len(defs) > 0 {
			return NewSinkInfo(defs...)
		}
	}
	return nil
}

// IsConditionalSink implements ConditionalFlowManager
func (sm *DefinitionManager) IsConditionalSink(s ir.Stmt, baseClass *ir.Class) bool {
	ie := s.InvokeExpr()
	if ie == nil || !ie.IsInstance() {
		return false
	}
	if len(sm.condSinks[ie.Method]) > 0 {
		return !sm.isExcludedInCondition(ie.Method, baseClass)
	}
	subSig := ie.Method.SubSignature()
	for _, parent := range sm.hierarchy.parentsOf(ie.Method.Class) {
		if m := parent.MethodBySubSignature(subSig); m != nil && len(sm.condSinks[m]) > 0 {
			return !sm.isExcludedInCondition(m, baseClass)
		}
	}
	return false
}

func (sm *DefinitionManager) isExcludedInCondition(sink *ir.Method, baseClass *ir.Class) bool {
	excl := sm.condExcluded[sink]
	if len(excl) == 0 {
		return false
	}
	return (baseClass != nil && sm.hierarchy.isSubclassOfAny(baseClass, excl)) ||
		sm.hierarchy.isSubclassOfAny(sink.Class, excl)
}

// IsSecondarySink implements ConditionalFlowManager
func (sm *DefinitionManager) IsSecondarySink(s ir.Stmt) bool {
	ie := s.InvokeExpr()
	if ie == nil || !ie.IsInstance() {
		return false
	}
	if sm.secondaryMeths[ie.Method] || sm.secondaryClass[ie.Method.Class] {
		return true
	}
	subSig := ie.Method.SubSignature()
	for _, parent := range sm.hierarchy.parentsOf(ie.Method.Class) {
		if sm.secondaryClass[parent] {
			return true
		}
		if m := parent.MethodBySubSignature(subSig); m != nil && sm.secondaryMeths[m] {
			return true
		}
	}
	return false
}

// RegisterSecondarySink implements ConditionalFlowManager
func (sm *DefinitionManager) RegisterSecondarySink(m *ir.Method) { sm.secondaryMeths[m] = true }

// statementSourcePairs taints the value defined by s, or the locals of the statement definitions
func statementSourcePairs(s ir.Stmt, defs []data.Definition, f *data.AccessPathFactory) []APDef {
	var pairs []APDef
	for _, def := range defs {
		sd, ok := def.(*StatementDefinition)
		if ok && sd.Local != nil {
			tuples := sd.AccessPaths
			if len(tuples) == 0 {
				tuples = []*AccessPathTuple{BlankSourceTuple()}
			}
			for _, t := range tuples {
				pairs = append(pairs, APDef{AccessPath: t.ToAccessPath(sd.Local, f, false), Definition: def})
			}
			continue
		}
		if v := ir.DefinedValue(s); v != nil {
			pairs = append(pairs, APDef{
				AccessPath: f.Create(v, nil, nil, true, false, data.ContentsAndLength, false), Definition: def})
		}
	}
	return pairs
}

// callSourcePairs computes the access paths tainted by a call to a source method
//
//gocyclo:ignore
func callSourcePairs(s ir.Stmt, defs []data.Definition, f *data.AccessPathFactory) []APDef {
	ie := s.InvokeExpr()
	var pairs []APDef
	add := func(def data.Definition, base ir.Value, tuples []*AccessPathTuple) {
		if base == nil {
			return
		}
		for _, t := range tuples {
			if t.Kind.IsSource() {
				pairs = append(pairs, APDef{AccessPath: t.ToAccessPath(base, f, false), Definition: def})
			}
		}
	}
	for _, def := range defs {
		md, ok := def.(*MethodDefinition)
		if !ok || md.IsSimple() {
			// Taint the return value if there is one, or else the receiver
			ret := ie.Method.ReturnType
			if as, ok := s.(*ir.AssignStmt); ok && ret != nil && ret != ir.Void {
				pairs = append(pairs, APDef{
					AccessPath: f.Create(as.Left, nil, nil, true, false, data.ContentsAndLength, false),
					Definition: def})
			} else if ie.IsInstance() && (ret == nil || ret == ir.Void) {
				pairs = append(pairs, APDef{AccessPath: f.CreateAccessPath(ie.Base, true), Definition: def})
			}
			continue
		}
		if ie.IsInstance() {
			add(def, ie.Base, md.BaseObjects)
		}
		for i, tuples := range md.Parameters {
			if i < len(ie.Args) {
				add(def, ie.Args[i], tuples)
			}
		}
		if as, ok := s.(*ir.AssignStmt); ok {
			add(def, as.Left, md.ReturnValues)
		}
	}
	return pairs
}

// callbackSourcePairs taints the parameter local of a callback whose definition marks the parameter as a source
func callbackSourcePairs(param *ir.Local, index int, defs []data.Definition, f *data.AccessPathFactory) []APDef {
	var pairs []APDef
	for _, def := range defs {
		md, ok := def.(*MethodDefinition)
		if !ok {
			continue
		}
		tuples := md.Parameters[index]
		if md.IsSimple() {
			tuples = []*AccessPathTuple{BlankSourceTuple()}
		}
		for _, t := range tuples {
			if t.Kind.IsSource() {
				pairs = append(pairs, APDef{AccessPath: t.ToAccessPath(param, f, false), Definition: def})
			}
		}
	}
	return pairs
}

// sinkMatchesTaint checks that the tainted access path is passed to the call at a position the definition
// declares as a sink. A nil access path matches any definition.
func sinkMatchesTaint(def data.Definition, ie *ir.InvokeExpr, ap *data.AccessPath) bool {
	md, ok := def.(*MethodDefinition)
	if ap == nil || !ok || md.IsSimple() {
		return true
	}
	base := ap.PlainValue()
	if base == nil {
		return true
	}
	matches := func(v ir.Value, tuples []*AccessPathTuple) bool {
		if v != base {
			return false
		}
		return lo.SomeBy(tuples, func(t *AccessPathTuple) bool { return t.Kind.IsSink() })
	}
	if ie.IsInstance() && matches(ie.Base, md.BaseObjects) {
		return true
	}
	for i, tuples := range md.Parameters {
		if i < len(ie.Args) && matches(ie.Args[i], tuples) {
			return true
		}
	}
	return false
}
