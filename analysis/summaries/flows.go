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
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FlowKind is the kind of location a summarized flow starts or ends at
type FlowKind int

const (
	// Parameter is the argument at ParamIndex
	Parameter FlowKind = iota
	// Field is the receiver of the call, or a field reachable from it
	Field
	// Return is the value returned by the call
	Return
	// GapBaseObject is the receiver of a call to a gap
	GapBaseObject
)

var flowKindNames = map[FlowKind]string{
	Parameter:     "parameter",
	Field:         "field",
	Return:        "return",
	GapBaseObject: "gapbaseobject",
}

func (k FlowKind) String() string {
	if s, ok := flowKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("FlowKind(%d)", int(k))
}

// MarshalYAML implements yaml.Marshaler
func (k FlowKind) MarshalYAML() (any, error) { return k.String(), nil }

// UnmarshalYAML implements yaml.Unmarshaler
func (k *FlowKind) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	for kind, name := range flowKindNames {
		if strings.EqualFold(name, s) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("line %d: unknown flow kind %q", n.Line, s)
}

// GapDefinition is a call inside a summarized method to a method whose implementation is unknown when the
// summary is written, typically a callback
type GapDefinition struct {
	ID        int    `yaml:"id"`
	Signature string `yaml:"signature"`
}

func (g *GapDefinition) String() string { return fmt.Sprintf("gap %d (%s)", g.ID, g.Signature) }

// ConstraintKind is the kind of a flow constraint
type ConstraintKind int

const (
	// KeyConstraint restricts a flow to the container entries whose key is the argument at ParamIndex
	KeyConstraint ConstraintKind = iota
	// IndexConstraint restricts a flow to the container entries whose index is the argument at ParamIndex
	IndexConstraint
)

var constraintKindNames = map[ConstraintKind]string{
	KeyConstraint:   "key",
	IndexConstraint: "index",
}

func (k ConstraintKind) String() string {
	if s, ok := constraintKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ConstraintKind(%d)", int(k))
}

// MarshalYAML implements yaml.Marshaler
func (k ConstraintKind) MarshalYAML() (any, error) { return k.String(), nil }

// UnmarshalYAML implements yaml.Unmarshaler
func (k *ConstraintKind) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	for kind, name := range constraintKindNames {
		if strings.EqualFold(name, s) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("line %d: unknown constraint kind %q", n.Line, s)
}

// FlowConstraint relates a container field of a flow to an argument of the call
type FlowConstraint struct {
	Kind       ConstraintKind `yaml:"kind"`
	ParamIndex int            `yaml:"param"`
}

// FlowEndpoint is a location in a summary: a parameter, the receiver or the return value, followed by an optional
// sequence of fields
type FlowEndpoint struct {
	Kind       FlowKind `yaml:"kind"`
	ParamIndex int      `yaml:"param,omitempty"`
	// BaseType is the expected type of the base value, empty if any type matches
	BaseType string `yaml:"basetype,omitempty"`
	// AccessPath lists field names, relative to the base value
	AccessPath []string `yaml:"accesspath,omitempty"`
	// AccessPathTypes are the declared types of the fields in AccessPath
	AccessPathTypes []string `yaml:"accesspathtypes,omitempty"`
	Gap             *int     `yaml:"gap,omitempty"`
	// MatchStrict requires the incoming taint to have at least all the fields of the access path
	MatchStrict bool `yaml:"matchstrict,omitempty"`
	// Constrained marks a first field whose container context is given by the flow constraints
	Constrained bool `yaml:"constrained,omitempty"`
}

// HasAccessPath returns true if the endpoint designates a field of the base value
func (e FlowEndpoint) HasAccessPath() bool { return len(e.AccessPath) > 0 }

// IsThis returns true if the endpoint is the receiver itself
func (e FlowEndpoint) IsThis() bool { return e.Kind == Field && !e.HasAccessPath() }

func (e FlowEndpoint) String() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Kind == Parameter {
		fmt.Fprintf(&sb, " %d", e.ParamIndex)
	}
	if e.HasAccessPath() {
		sb.WriteString(" ." + strings.Join(e.AccessPath, "."))
	}
	if e.Gap != nil {
		fmt.Fprintf(&sb, " in gap %d", *e.Gap)
	}
	return sb.String()
}

func (e FlowEndpoint) equal(o FlowEndpoint) bool {
	if e.Kind != o.Kind || e.ParamIndex != o.ParamIndex || e.BaseType != o.BaseType ||
		e.MatchStrict != o.MatchStrict || e.Constrained != o.Constrained {
		return false
	}
	if (e.Gap == nil) != (o.Gap == nil) || (e.Gap != nil && *e.Gap != *o.Gap) {
		return false
	}
	return strings.Join(e.AccessPath, ".") == strings.Join(o.AccessPath, ".")
}

// FlowSink is the target of a summarized flow
type FlowSink struct {
	FlowEndpoint `yaml:",inline"`
	// TaintSubFields taints everything reachable from the target
	TaintSubFields bool `yaml:"taintsubfields,omitempty"`
}

// MethodFlow summarizes one data flow of a method from Source to Sink
type MethodFlow struct {
	// Method is the sub-signature or the name of the summarized method
	Method string       `yaml:"method"`
	Source FlowEndpoint `yaml:"source"`
	Sink   FlowSink     `yaml:"sink"`
	// IsAlias marks flows that also hold backwards, such as a getter returning a field
	IsAlias bool `yaml:"alias,omitempty"`
	// TypeChecking enables the compatibility check between the taint and the sink types. Defaults to true.
	TypeChecking *bool `yaml:"typechecking,omitempty"`
	// CutSubFields drops the fields of the taint below the source
	CutSubFields bool `yaml:"cutsubfields,omitempty"`
	// Final flows are not combined with other flows of the method
	Final       bool             `yaml:"final,omitempty"`
	Constraints []FlowConstraint `yaml:"constraints,omitempty"`
}

func (f *MethodFlow) String() string {
	return fmt.Sprintf("{%s Source: [%s] Sink: [%s]}", f.Method, f.Source, f.Sink.FlowEndpoint)
}

// Equal returns true if both flows describe the same flow
func (f *MethodFlow) Equal(o *MethodFlow) bool {
	if f == o {
		return true
	}
	if f == nil || o == nil {
		return false
	}
	return f.Method == o.Method && f.Source.equal(o.Source) && f.Sink.equal(o.Sink.FlowEndpoint) &&
		f.Sink.TaintSubFields == o.Sink.TaintSubFields && f.IsAlias == o.IsAlias && f.Final == o.Final &&
		f.CutSubFields == o.CutSubFields
}

// IsCoarserThan returns true if every taint produced by o is also produced by f
func (f *MethodFlow) IsCoarserThan(o *MethodFlow) bool {
	if f.Equal(o) {
		return true
	}
	coarser := func(a, b FlowEndpoint) bool {
		if a.Kind != b.Kind || a.ParamIndex != b.ParamIndex || a.BaseType != b.BaseType {
			return false
		}
		if len(a.AccessPath) > len(b.AccessPath) {
			return false
		}
		for i := range a.AccessPath {
			if a.AccessPath[i] != b.AccessPath[i] {
				return false
			}
		}
		return true
	}
	return coarser(f.Source, o.Source) && coarser(f.Sink.FlowEndpoint, o.Sink.FlowEndpoint)
}

// Reverse returns the flow from the sink back to the source, used to find aliases
func (f *MethodFlow) Reverse() *MethodFlow {
	src := f.Sink.FlowEndpoint
	sink := FlowSink{FlowEndpoint: f.Source, TaintSubFields: f.Sink.TaintSubFields}
	if f.Source.Kind == Field && !f.Source.HasAccessPath() && f.Source.Gap != nil {
		sink.Kind = GapBaseObject
		sink.TaintSubFields = false
	}
	if f.Sink.Kind == GapBaseObject {
		src.Kind = Field
		sink.TaintSubFields = true
	}
	return &MethodFlow{
		Method:       f.Method,
		Source:       src,
		Sink:         sink,
		IsAlias:      f.IsAlias,
		TypeChecking: f.TypeChecking,
		CutSubFields: f.CutSubFields,
		Final:        f.Final,
		Constraints:  f.Constraints,
	}
}

// typeChecking returns whether sink types must be checked against the taint
func (f *MethodFlow) typeChecking() bool { return f.TypeChecking == nil || *f.TypeChecking }

// Validate checks that the flow is well-formed
func (f *MethodFlow) Validate() error {
	invalid := func(msg string) error { return &InvalidFlowSpecificationError{Flow: f, Method: f.Method, Msg: msg} }
	if f.Method == "" {
		return invalid("flow without method")
	}
	if f.Source.Kind == Return && f.Source.Gap == nil {
		return invalid("return values cannot be sources")
	}
	if f.Sink.Kind == GapBaseObject && f.Sink.Gap == nil {
		return invalid("gap base flows must always be linked with gaps")
	}
	for _, e := range []FlowEndpoint{f.Source, f.Sink.FlowEndpoint} {
		if e.Kind == Parameter && e.ParamIndex < 0 {
			return invalid(fmt.Sprintf("negative parameter index %d", e.ParamIndex))
		}
		if len(e.AccessPathTypes) > 0 && len(e.AccessPathTypes) != len(e.AccessPath) {
			return invalid("access path and type array must be of equal length")
		}
		if e.Constrained && !e.HasAccessPath() {
			return invalid("constrained endpoint without access path")
		}
	}
	if (f.Source.Constrained || f.Sink.Constrained) && len(f.Constraints) == 0 {
		return invalid("constrained endpoint without constraints")
	}
	for _, c := range f.Constraints {
		if c.ParamIndex < 0 {
			return invalid(fmt.Sprintf("constraint on negative parameter index %d", c.ParamIndex))
		}
	}
	return nil
}

// MethodClear is a summary entry that removes the taint of a location, such as a map's Clear method
type MethodClear struct {
	Method string       `yaml:"method"`
	Source FlowEndpoint `yaml:"source"`
	// PreventPropagation kills the incoming taint without applying other flows
	PreventPropagation bool `yaml:"preventpropagation,omitempty"`
}

// InvalidFlowSpecificationError is returned when a summary contains a malformed flow
type InvalidFlowSpecificationError struct {
	Flow   *MethodFlow
	Method string
	Msg    string
}

func (e *InvalidFlowSpecificationError) Error() string {
	if e.Flow != nil {
		return fmt.Sprintf("invalid flow %s in %s: %s", e.Flow, e.Method, e.Msg)
	}
	return fmt.Sprintf("invalid flow specification in %s: %s", e.Method, e.Msg)
}
