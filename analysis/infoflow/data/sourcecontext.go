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

package data

import (
	"fmt"

	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// Definition is a source or sink definition. Implementations must be comparable; pointers are the usual choice.
type Definition interface {
	fmt.Stringer
}

// SourceContext records where a taint was created: the definition of the source, the tainted access path and the
// source statement. UserData must be comparable.
type SourceContext struct {
	Definition Definition
	AccessPath *AccessPath
	Stmt       ir.Stmt
	UserData   any
}

// NewSourceContext returns a source context
func NewSourceContext(def Definition, ap *AccessPath, stmt ir.Stmt, userData any) *SourceContext {
	return &SourceContext{Definition: def, AccessPath: ap, Stmt: stmt, UserData: userData}
}

type sourceContextKey struct {
	def      Definition
	ap       string
	stmt     ir.Stmt
	userData any
}

func (sc *SourceContext) key() sourceContextKey {
	if sc == nil {
		return sourceContextKey{}
	}
	k := sourceContextKey{def: sc.Definition, stmt: sc.Stmt, userData: sc.UserData}
	if sc.AccessPath != nil {
		k.ap = sc.AccessPath.Key()
	}
	return k
}

// Equals returns true if both contexts have equal definitions, access paths, statements and user data
func (sc *SourceContext) Equals(other *SourceContext) bool {
	if sc == other {
		return true
	}
	if sc == nil || other == nil {
		return false
	}
	return sc.key() == other.key()
}

func (sc *SourceContext) String() string {
	if sc.Stmt == nil {
		return sc.AccessPath.String()
	}
	return sc.AccessPath.String() + " in " + sc.Stmt.String()
}

// AbstractionAtSink is an abstraction that reached a sink statement
type AbstractionAtSink struct {
	SinkDefinitions []Definition
	Abstraction     *Abstraction
	SinkStmt        ir.Stmt
}

// NewAbstractionAtSink returns the result for abs at the sink statement. The turn unit of the abstraction is
// cleared, such that results found during backward and forward propagation compare equal.
func NewAbstractionAtSink(defs []Definition, abs *Abstraction, sinkStmt ir.Stmt) *AbstractionAtSink {
	if abs.TurnUnit() != nil {
		abs = abs.DeriveNewAbstractionWithTurnUnit(nil)
	}
	return &AbstractionAtSink{SinkDefinitions: defs, Abstraction: abs, SinkStmt: sinkStmt}
}

// AbstractionAtSinkKey is a comparable identity of results
type AbstractionAtSinkKey struct {
	abs  AbstractionKey
	defs string
	sink ir.Stmt
}

// Key returns the comparable identity of the result
func (a *AbstractionAtSink) Key() AbstractionAtSinkKey {
	defs := ""
	for _, d := range a.SinkDefinitions {
		defs += fmt.Sprintf("%p;", d)
	}
	return AbstractionAtSinkKey{abs: a.Abstraction.Key(), defs: defs, sink: a.SinkStmt}
}

func (a *AbstractionAtSink) String() string {
	return a.Abstraction.String() + " at " + a.SinkStmt.String()
}
