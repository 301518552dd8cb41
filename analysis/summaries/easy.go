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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/internal/funcutil"
	"github.com/samber/lo"
)

// wrapType is the model of a method in an EasyTaintWrapper
type wrapType int

const (
	notRegistered wrapType = iota
	createTaint
	killTaint
	excludeTaint
)

var (
	equalsSubSignature   = fmt.Sprintf("%s Equal(%s)", ir.Bool, ir.Object)
	hashCodeSubSignature = fmt.Sprintf("%s Hash()", ir.PrimType("uint64"))
)

// EasyTaintWrapper is a coarse taint wrapper driven by lists of methods: methods in the create list taint their
// receiver and return value when an argument is tainted, methods in the kill list remove the taint of their
// receiver, and methods in the exclude list do not propagate the taint of their receiver to the return value.
// Only classes whose names start with an include prefix are modeled.
type EasyTaintWrapper struct {
	counters
	env Environment

	classList   map[string]map[string]bool
	excludeList map[string]map[string]bool
	killList    map[string]map[string]bool
	includeList []string

	// AggressiveMode models every call on a tainted receiver as exclusive
	AggressiveMode bool
	// AlwaysModelEqualsHashCode treats the Equal and Hash methods as creating taints
	AlwaysModelEqualsHashCode bool

	cache funcutil.SyncMap[*ir.Method, wrapType]
}

// NewEasyTaintWrapper returns an empty easy wrapper
func NewEasyTaintWrapper() *EasyTaintWrapper {
	return &EasyTaintWrapper{
		classList:                 map[string]map[string]bool{},
		excludeList:               map[string]map[string]bool{},
		killList:                  map[string]map[string]bool{},
		AlwaysModelEqualsHashCode: true,
	}
}

// LoadEasyTaintWrapper reads the wrapper definition file
func LoadEasyTaintWrapper(filename string) (*EasyTaintWrapper, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open taint wrapper file: %w", err)
	}
	defer f.Close()
	w, err := ParseEasyTaintWrapper(f)
	if err != nil {
		return nil, fmt.Errorf("taint wrapper file %s: %w", filename, err)
	}
	return w, nil
}

// ParseEasyTaintWrapper reads the line-based wrapper definition format: one method signature per line, "~" prefixes
// the methods to exclude, "-" the methods that kill taints, "^" the include prefixes, and "%" starts comments.
func ParseEasyTaintWrapper(r io.Reader) (*EasyTaintWrapper, error) {
	w := NewEasyTaintWrapper()
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		var target map[string]map[string]bool
		switch line[0] {
		case '^':
			w.AddIncludePrefix(line[1:])
			continue
		case '~':
			target, line = w.excludeList, line[1:]
		case '-':
			target, line = w.killList, line[1:]
		default:
			target = w.classList
		}
		className, subSig, err := ParseMethodSignature(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		addEntry(target, className, subSig)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return w, nil
}

func addEntry(list map[string]map[string]bool, className, subSig string) {
	if list[className] == nil {
		list[className] = map[string]bool{}
	}
	list[className][subSig] = true
}

// AddIncludePrefix adds a prefix of the classes modeled by the wrapper
func (w *EasyTaintWrapper) AddIncludePrefix(prefix string) {
	w.includeList = append(w.includeList, prefix)
}

// AddMethodForWrapping registers a method that creates taints
func (w *EasyTaintWrapper) AddMethodForWrapping(className, subSig string) {
	addEntry(w.classList, className, subSig)
}

// AddMethodToExclude registers a method that does not taint its return value
func (w *EasyTaintWrapper) AddMethodToExclude(className, subSig string) {
	addEntry(w.excludeList, className, subSig)
}

// AddMethodToKill registers a method that removes the taint of its receiver
func (w *EasyTaintWrapper) AddMethodToKill(className, subSig string) {
	addEntry(w.killList, className, subSig)
}

// Initialize implements TaintWrapper
func (w *EasyTaintWrapper) Initialize(env Environment) error {
	w.env = env
	return nil
}

func (w *EasyTaintWrapper) isIncluded(c *ir.Class) bool {
	return lo.SomeBy(w.includeList, func(prefix string) bool { return strings.HasPrefix(c.Name, prefix) })
}

func (w *EasyTaintWrapper) isEqualsOrHashCode(subSig string) bool {
	return w.AlwaysModelEqualsHashCode && (subSig == equalsSubSignature || subSig == hashCodeSubSignature)
}

// TaintsForMethod implements TaintWrapper
//
//gocyclo:ignore
func (w *EasyTaintWrapper) TaintsForMethod(stmt ir.Stmt, _, taint *data.Abstraction) []*data.Abstraction {
	ie := stmt.InvokeExpr()
	if ie == nil {
		return nil
	}
	ap := taint.AccessPath()
	factory := w.env.AccessPathFactory()
	m := ie.Method
	var aps []*data.AccessPath

	// a method without body cannot modify the taint, unless it overwrites the tainted local
	if !m.HasBody() {
		if ap.IsStaticFieldRef() || ir.DefinedValue(stmt) == nil || ir.DefinedValue(stmt) != ir.Value(ap.PlainValue()) {
			aps = addAccessPath(aps, ap)
		}
	}
	if ap.IsStaticFieldRef() {
		return toAbstractions(stmt, taint, []*data.AccessPath{ap})
	}

	subSig := m.SubSignature()
	equalsOrHash := w.isEqualsOrHashCode(subSig)
	supported := len(w.includeList) == 0 || w.isIncluded(m.Class)
	if !supported && !w.AggressiveMode && !equalsOrHash {
		return toAbstractions(stmt, taint, aps)
	}

	wt := w.wrapTypeOf(m)
	if ie.IsInstance() && (ap.IsEmpty() || ie.Base == ap.PlainValue()) {
		if wt == killTaint {
			return []*data.Abstraction{}
		}
		if assign, ok := stmt.(*ir.AssignStmt); ok && wt != excludeTaint && isTaintVisible(ap, m) {
			aps = addAccessPath(aps, factory.CreateAccessPath(assign.Left, true))
		}
		aps = addAccessPath(aps, ap)
	}

	if supported && wt == createTaint {
		doTaint := ap.IsEmpty()
		if !doTaint && !equalsOrHash {
			doTaint = lo.SomeBy(ie.Args, func(a ir.Value) bool { return a == ir.Value(ap.PlainValue()) })
		}
		if doTaint {
			if assign, ok := stmt.(*ir.AssignStmt); ok {
				aps = addAccessPath(aps, factory.CreateAccessPath(assign.Left, true))
			}
			if ie.IsInstance() {
				aps = addAccessPath(aps, factory.CreateAccessPath(ie.Base, true))
			}
			aps = addAccessPath(aps, ap)
		}
	}
	return toAbstractions(stmt, taint, aps)
}

// isTaintVisible returns false when library code cannot read the fields of the taint
func isTaintVisible(ap *data.AccessPath, callee *ir.Method) bool {
	if !callee.Class.IsSystem() {
		return true
	}
	f := ap.FirstField()
	return f == nil || f.Class == nil || f.Class.IsSystem()
}

func (w *EasyTaintWrapper) hasWrappedMethodsForClass(c *ir.Class) bool {
	return w.classList[c.Name] != nil || w.killList[c.Name] != nil
}

// IsExclusive implements TaintWrapper
func (w *EasyTaintWrapper) IsExclusive(stmt ir.Stmt, taint *data.Abstraction) bool {
	ie := stmt.InvokeExpr()
	if ie == nil {
		return w.count(false)
	}
	if w.hasWrappedMethodsForClass(ie.Method.Class) {
		return w.count(true)
	}
	if w.AggressiveMode && ie.IsInstance() && ie.Base == taint.AccessPath().PlainValue() {
		return w.count(true)
	}
	return w.count(w.wrapTypeOf(ie.Method) != notRegistered)
}

// AliasesForMethod implements TaintWrapper
func (w *EasyTaintWrapper) AliasesForMethod(ir.Stmt, *data.Abstraction, *data.Abstraction) []*data.Abstraction {
	return nil
}

// SupportsCallee implements TaintWrapper
func (w *EasyTaintWrapper) SupportsCallee(m *ir.Method) bool {
	return w.AggressiveMode || w.isEqualsOrHashCode(m.SubSignature()) || w.isIncluded(m.Class)
}

// SupportsCallSite implements TaintWrapper
func (w *EasyTaintWrapper) SupportsCallSite(stmt ir.Stmt) bool {
	ie := stmt.InvokeExpr()
	if ie == nil || !w.SupportsCallee(ie.Method) {
		return false
	}
	if !w.AggressiveMode && w.wrapTypeOf(ie.Method) != createTaint {
		return false
	}
	if ie.IsInstance() {
		return true
	}
	return lo.SomeBy(ie.Args, func(a ir.Value) bool {
		_, isConst := a.(*ir.Constant)
		return !isConst
	})
}

func (w *EasyTaintWrapper) wrapTypeOf(m *ir.Method) wrapType {
	if wt, ok := w.cache.Load(m); ok {
		return wt
	}
	wt := w.computeWrapType(m.SubSignature(), m.Class)
	w.cache.Store(m, wt)
	return wt
}

func (w *EasyTaintWrapper) computeWrapType(subSig string, c *ir.Class) wrapType {
	if w.isEqualsOrHashCode(subSig) {
		return createTaint
	}
	if !w.isIncluded(c) {
		return notRegistered
	}
	if c.IsInterface {
		return w.interfaceWrapType(subSig, c, map[*ir.Class]bool{})
	}
	for cur := c; cur != nil; cur = cur.Super {
		if wt := w.directWrapType(cur.Name, subSig); wt != notRegistered {
			return wt
		}
		for _, itf := range cur.Interfaces {
			if wt := w.interfaceWrapType(subSig, itf, map[*ir.Class]bool{}); wt != notRegistered {
				return wt
			}
		}
	}
	return notRegistered
}

func (w *EasyTaintWrapper) interfaceWrapType(subSig string, itf *ir.Class, seen map[*ir.Class]bool) wrapType {
	if seen[itf] {
		return notRegistered
	}
	seen[itf] = true
	if wt := w.directWrapType(itf.Name, subSig); wt != notRegistered {
		return wt
	}
	for _, super := range itf.Interfaces {
		if wt := w.interfaceWrapType(subSig, super, seen); wt != notRegistered {
			return wt
		}
	}
	return notRegistered
}

func (w *EasyTaintWrapper) directWrapType(className, subSig string) wrapType {
	if w.isEqualsOrHashCode(subSig) {
		return createTaint
	}
	switch {
	case w.classList[className][subSig]:
		return createTaint
	case w.excludeList[className][subSig]:
		return excludeTaint
	case w.killList[className][subSig]:
		return killTaint
	}
	return notRegistered
}
