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
	"fmt"
	"sync"

	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/samber/lo"
)

// SecondaryFlows gives access to the results of the secondary flow analysis
type SecondaryFlows interface {
	// HasSecondaryFlows returns true if some secondary flow was found
	HasSecondaryFlows() bool
	// SecondaryCallsFrom returns the methods called on the secondary flows that started at the primary sink
	SecondaryCallsFrom(primarySink ir.Stmt) []*ir.Method
}

// Condition is a condition attached to a sink definition. A result at the sink is only kept if the condition
// holds once all flows are known.
type Condition interface {
	// Evaluate returns true if the condition holds for a result at sinkStmt whose source access path has the base
	// type sourceBaseType
	Evaluate(sinkStmt ir.Stmt, sourceBaseType *ir.Type, flows SecondaryFlows) bool
	// ReferencedMethods are the methods that secondary flows must be able to reach
	ReferencedMethods() []*ir.Method
	// ReferencedClasses are the classes whose methods secondary flows must be able to reach
	ReferencedClasses() []*ir.Class
	// ExcludedClasses are the base classes for which the sink never holds
	ExcludedClasses() []*ir.Class
}

// AdditionalFlowCondition holds when a secondary flow starting at the sink reaches a call to one of
// SignaturesOnPath and a call to a method of one of ClassNamesOnPath. Empty lists are not checked.
type AdditionalFlowCondition struct {
	ClassNamesOnPath   []string
	SignaturesOnPath   []string
	ExcludedClassNames []string

	program   *ir.Program
	hierarchy *hierarchy
	once      sync.Once
	methods   map[*ir.Method]bool
	classes   map[*ir.Class]bool
	excluded  map[*ir.Class]bool
}

// NewAdditionalFlowCondition returns the condition resolved in the program p
func NewAdditionalFlowCondition(p *ir.Program, classNames, signatures, excluded []string) *AdditionalFlowCondition {
	return &AdditionalFlowCondition{
		ClassNamesOnPath:   classNames,
		SignaturesOnPath:   signatures,
		ExcludedClassNames: excluded,
		program:            p,
		hierarchy:          &hierarchy{},
	}
}

func (c *AdditionalFlowCondition) resolve() {
	c.once.Do(func() {
		c.methods = map[*ir.Method]bool{}
		c.classes = map[*ir.Class]bool{}
		c.excluded = map[*ir.Class]bool{}
		if c.program == nil {
			return
		}
		for _, sig := range c.SignaturesOnPath {
			if m := c.program.MethodBySignature(sig); m != nil {
				c.methods[m] = true
			}
		}
		for _, name := range c.ClassNamesOnPath {
			if cl := c.program.Class(name); cl != nil {
				c.classes[cl] = true
			}
		}
		for _, name := range c.ExcludedClassNames {
			if cl := c.program.Class(name); cl != nil {
				c.excluded[cl] = true
			}
		}
	})
}

// IsEmpty returns true if the condition does not check anything
func (c *AdditionalFlowCondition) IsEmpty() bool {
	return len(c.ClassNamesOnPath) == 0 && len(c.SignaturesOnPath) == 0
}

// Evaluate implements Condition
func (c *AdditionalFlowCondition) Evaluate(sinkStmt ir.Stmt, sourceBaseType *ir.Type, flows SecondaryFlows) bool {
	if c.IsEmpty() {
		return true
	}
	if flows == nil || !flows.HasSecondaryFlows() {
		return false
	}
	c.resolve()
	if sourceBaseType != nil && c.program != nil {
		if cl := c.program.Class(sourceBaseType.Name()); cl != nil && c.hierarchy.isSubclassOfAny(cl, c.excluded) {
			return false
		}
	}
	reached := flows.SecondaryCallsFrom(sinkStmt)
	sigMatch := len(c.SignaturesOnPath) == 0 || lo.SomeBy(reached, c.methodMatches)
	classMatch := len(c.ClassNamesOnPath) == 0 || lo.SomeBy(reached, func(m *ir.Method) bool {
		return c.hierarchy.isSubclassOfAny(m.Class, c.classes)
	})
	return sigMatch && classMatch
}

// methodMatches returns true if m or a method it overrides is on the path
func (c *AdditionalFlowCondition) methodMatches(m *ir.Method) bool {
	if c.methods[m] {
		return true
	}
	subSig := m.SubSignature()
	for _, parent := range c.hierarchy.parentsOf(m.Class) {
		if pm := parent.MethodBySubSignature(subSig); pm != nil && c.methods[pm] {
			return true
		}
	}
	return false
}

// ReferencedMethods implements Condition
func (c *AdditionalFlowCondition) ReferencedMethods() []*ir.Method {
	c.resolve()
	return lo.Keys(c.methods)
}

// ReferencedClasses implements Condition
func (c *AdditionalFlowCondition) ReferencedClasses() []*ir.Class {
	c.resolve()
	return lo.Keys(c.classes)
}

// ExcludedClasses implements Condition
func (c *AdditionalFlowCondition) ExcludedClasses() []*ir.Class {
	c.resolve()
	return lo.Keys(c.excluded)
}

func (c *AdditionalFlowCondition) String() string {
	return fmt.Sprintf("additional flow condition: classes on path %v, signatures on path %v, excluded %v",
		c.ClassNamesOnPath, c.SignaturesOnPath, c.ExcludedClassNames)
}
