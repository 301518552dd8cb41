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
	"strings"

	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// Kind tells whether an access path tuple designates a source, a sink, both or neither
type Kind int

// Kinds of access path tuples
const (
	Undefined Kind = iota
	Source
	Sink
	Neither
	Both
)

// KindFromFlags returns the kind corresponding to the flags
func KindFromFlags(isSink, isSource bool) Kind {
	switch {
	case isSink && isSource:
		return Both
	case isSource:
		return Source
	case isSink:
		return Sink
	default:
		return Neither
	}
}

// IsSource returns true for Source and Both
func (k Kind) IsSource() bool { return k == Source || k == Both }

// IsSink returns true for Sink and Both
func (k Kind) IsSink() bool { return k == Sink || k == Both }

// Add returns the kind that has the roles of k and other
func (k Kind) Add(other Kind) Kind {
	return KindFromFlags(k.IsSink() || other.IsSink(), k.IsSource() || other.IsSource())
}

// Remove returns the kind that has the roles of k minus the roles of other
func (k Kind) Remove(other Kind) Kind {
	if k == Undefined {
		return k
	}
	return KindFromFlags(k.IsSink() && !other.IsSink(), k.IsSource() && !other.IsSource())
}

func (k Kind) String() string {
	switch k {
	case Source:
		return "source"
	case Sink:
		return "sink"
	case Neither:
		return "neither"
	case Both:
		return "both"
	default:
		return "undefined"
	}
}

// AccessPathTuple describes an access path relative to a base value by names: an optional base type, field names
// and field types. An empty tuple designates the base value itself.
type AccessPathTuple struct {
	BaseType    string
	Fields      []string
	FieldTypes  []string
	Kind        Kind
	Description string
}

// BlankSourceTuple returns a tuple designating the value itself as a source
func BlankSourceTuple() *AccessPathTuple { return &AccessPathTuple{Kind: Source} }

// BlankSinkTuple returns a tuple designating the value itself as a sink
func BlankSinkTuple() *AccessPathTuple { return &AccessPathTuple{Kind: Sink} }

// ToAccessPath resolves the tuple on base. Fields that do not exist in the program make the tuple unresolvable,
// in which case it returns nil.
func (t *AccessPathTuple) ToAccessPath(base ir.Value, f *data.AccessPathFactory,
	canHaveImmutableAliases bool) *data.AccessPath {
	if len(t.Fields) == 0 {
		return f.Create(base, nil, nil, true, false, data.ContentsAndLength, canHaveImmutableAliases)
	}
	if base == nil || base.Type() == nil {
		return nil
	}
	p := f.TypeUtils().Program()
	cur := base.Type()
	if t.BaseType != "" {
		cur = ir.RefType(t.BaseType)
	}
	fragments := make([]data.Fragment, 0, len(t.Fields))
	for i, name := range t.Fields {
		if p == nil || cur == nil {
			return nil
		}
		class := p.Class(cur.Name())
		if class == nil {
			return nil
		}
		field := class.Field(name)
		if field == nil {
			return nil
		}
		frag := data.NewFragment(field)
		if i < len(t.FieldTypes) && t.FieldTypes[i] != "" {
			frag = frag.WithType(ir.RefType(t.FieldTypes[i]))
		}
		fragments = append(fragments, frag)
		cur = frag.Type
	}
	return f.Create(base, nil, fragments, true, false, data.ContentsAndLength, canHaveImmutableAliases)
}

func (t *AccessPathTuple) String() string {
	s := t.Kind.String()
	if len(t.Fields) > 0 {
		s += " ." + strings.Join(t.Fields, ".")
	}
	return s
}

// CallType distinguishes method definitions that match call sites from definitions matching the parameters of
// callbacks and definitions matching the return statements of the method itself
type CallType int

// Call types of method definitions
const (
	MethodCall CallType = iota
	Callback
	Return
)

// MethodDefinition is a source or sink definition identified by a method signature. A definition without any
// access path tuple is a simple definition: sources taint the return value (or the receiver of void methods),
// sinks match any argument and the receiver.
type MethodDefinition struct {
	Signature    string
	BaseObjects  []*AccessPathTuple
	Parameters   map[int][]*AccessPathTuple
	ReturnValues []*AccessPathTuple
	CallType     CallType
	Conditions   []Condition
}

// NewMethodDefinition returns a simple definition for the method signature
func NewMethodDefinition(signature string) *MethodDefinition {
	return &MethodDefinition{Signature: signature}
}

// IsSimple returns true if the definition does not have any access path tuple
func (d *MethodDefinition) IsSimple() bool {
	return len(d.BaseObjects) == 0 && len(d.Parameters) == 0 && len(d.ReturnValues) == 0
}

// AddParameter adds the tuple for the parameter at index i
func (d *MethodDefinition) AddParameter(i int, t *AccessPathTuple) *MethodDefinition {
	if d.Parameters == nil {
		d.Parameters = map[int][]*AccessPathTuple{}
	}
	d.Parameters[i] = append(d.Parameters[i], t)
	return d
}

func (d *MethodDefinition) String() string {
	switch d.CallType {
	case Callback:
		return "callback " + d.Signature
	case Return:
		return "return " + d.Signature
	}
	return d.Signature
}

// FieldDefinition is a source or sink definition identified by a field signature. Reads of a source field taint
// the value read. Writes of a tainted value into a sink field are leaks.
type FieldDefinition struct {
	FieldSignature string
	AccessPaths    []*AccessPathTuple
}

func (d *FieldDefinition) String() string { return d.FieldSignature }

// StatementDefinition designates one specific statement as a source or sink for a local
type StatementDefinition struct {
	Stmt        ir.Stmt
	Local       *ir.Local
	AccessPaths []*AccessPathTuple
}

func (d *StatementDefinition) String() string {
	return fmt.Sprintf("%s in %s", d.Local, d.Stmt)
}

type secondaryDefinition struct {
	name string
}

func (d *secondaryDefinition) String() string { return d.name }

var (
	conditionalSecondarySource = &secondaryDefinition{name: "conditional secondary source"}
	secondarySink              = &secondaryDefinition{name: "secondary sink"}
)

// ConditionalSecondarySource is the definition of the taints that start secondary flows at conditional sinks
func ConditionalSecondarySource() data.Definition { return conditionalSecondarySource }

// SecondarySink is the definition of the calls reached by secondary flows
func SecondarySink() data.Definition { return secondarySink }
