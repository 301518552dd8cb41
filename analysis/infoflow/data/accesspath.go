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
	"strings"

	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// ArrayTaintType tells which part of an array is tainted
type ArrayTaintType int

const (
	// ContentsAndLength taints the elements and the length of the array
	ContentsAndLength ArrayTaintType = iota
	// Contents taints only the elements
	Contents
	// Length taints only the length
	Length
)

func (t ArrayTaintType) String() string {
	switch t {
	case Contents:
		return "contents"
	case Length:
		return "length"
	default:
		return "contents+length"
	}
}

// Fragment is one field access of an access path. Context optionally restricts the fragment to some container
// keys, e.g. the constant key under which a value was stored in a map. An empty string in the context matches any
// key.
type Fragment struct {
	Field   *ir.Field
	Type    *ir.Type
	Context []string
}

// NewFragment returns the fragment for field f with the declared type of the field
func NewFragment(f *ir.Field) Fragment {
	return Fragment{Field: f, Type: f.Type}
}

// HasContext returns true if the fragment is restricted to container keys
func (f Fragment) HasContext() bool { return f.Context != nil }

// WithContext returns a copy of the fragment restricted to the keys
func (f Fragment) WithContext(keys ...string) Fragment {
	return Fragment{Field: f.Field, Type: f.Type, Context: keys}
}

// WithType returns a copy of the fragment with another type
func (f Fragment) WithType(t *ir.Type) Fragment {
	return Fragment{Field: f.Field, Type: t, Context: f.Context}
}

// Entails returns true if every location described by f is described by other
func (f Fragment) Entails(other Fragment) bool {
	if f.Field != other.Field {
		return false
	}
	return ContextEntails(f.Context, other.Context)
}

// ContextEntails returns true if the context c1 covers c2. A nil context covers everything.
func ContextEntails(c1, c2 []string) bool {
	if c1 == nil {
		return true
	}
	if c2 == nil || len(c1) != len(c2) {
		return false
	}
	for i := range c1 {
		if c1[i] != "" && c1[i] != c2[i] {
			return false
		}
	}
	return true
}

// ContextMatches returns true if two contexts may describe the same key
func ContextMatches(c1, c2 []string) bool {
	if c1 == nil || c2 == nil {
		return true
	}
	if len(c1) != len(c2) {
		return false
	}
	for i := range c1 {
		if c1[i] != "" && c2[i] != "" && c1[i] != c2[i] {
			return false
		}
	}
	return true
}

func (f Fragment) String() string {
	s := f.Field.Name
	if f.Context != nil {
		s += "@[" + strings.Join(f.Context, ",") + "]"
	}
	return s
}

// AccessPath is a symbolic tainted location: a base local (nil for static fields) followed by field accesses.
// Access paths are created by an AccessPathFactory, which interns them: two equal access paths built by the same
// factory are the same pointer.
type AccessPath struct {
	value     *ir.Local
	baseType  *ir.Type
	fragments []Fragment

	taintSubFields          bool
	cutOffApproximation     bool
	arrayTaintType          ArrayTaintType
	canHaveImmutableAliases bool

	key string
}

var (
	zeroAccessPath = &AccessPath{
		value:    nil,
		baseType: ir.Null,
		key:      "<zero>",
	}
	emptyAccessPath = &AccessPath{
		taintSubFields: true,
		key:            "<empty>",
	}
)

// ZeroAccessPath returns the access path of the zero abstraction
func ZeroAccessPath() *AccessPath { return zeroAccessPath }

// EmptyAccessPath returns the access path without base and fields, used for implicit flows
func EmptyAccessPath() *AccessPath { return emptyAccessPath }

// CanContainValue returns true if v can be the root of an access path
func CanContainValue(v ir.Value) bool {
	switch v.(type) {
	case *ir.Local, *ir.InstanceFieldRef, *ir.StaticFieldRef, *ir.ArrayRef:
		return true
	}
	return false
}

// Key returns a string that uniquely identifies the access path
func (ap *AccessPath) Key() string { return ap.key }

// Equals returns true if both access paths describe the same locations with the same flags
func (ap *AccessPath) Equals(other *AccessPath) bool {
	if ap == other {
		return true
	}
	if ap == nil || other == nil {
		return false
	}
	return ap.key == other.key
}

// PlainValue returns the base local, nil for static field paths
func (ap *AccessPath) PlainValue() *ir.Local { return ap.value }

// BaseType returns the type of the base
func (ap *AccessPath) BaseType() *ir.Type { return ap.baseType }

// Fragments returns the field accesses of the path. The returned slice must not be modified.
func (ap *AccessPath) Fragments() []Fragment { return ap.fragments }

// FieldCount returns the number of fragments
func (ap *AccessPath) FieldCount() int { return len(ap.fragments) }

// TaintSubFields returns true if all the fields reachable from the path are tainted too
func (ap *AccessPath) TaintSubFields() bool { return ap.taintSubFields }

// IsCutOffApproximation returns true if the path was truncated at the maximum length
func (ap *AccessPath) IsCutOffApproximation() bool { return ap.cutOffApproximation }

// ArrayTaintType returns which part of an array base is tainted
func (ap *AccessPath) ArrayTaintType() ArrayTaintType { return ap.arrayTaintType }

// CanHaveImmutableAliases returns true if aliases of an immutable base should be tracked
func (ap *AccessPath) CanHaveImmutableAliases() bool { return ap.canHaveImmutableAliases }

// IsEmpty returns true for the access path without base and fields
func (ap *AccessPath) IsEmpty() bool {
	return ap.value == nil && len(ap.fragments) == 0 && ap != zeroAccessPath
}

// IsZero returns true for the access path of the zero abstraction
func (ap *AccessPath) IsZero() bool { return ap == zeroAccessPath }

// IsLocal returns true if the path is a local without fields
func (ap *AccessPath) IsLocal() bool { return ap.value != nil && len(ap.fragments) == 0 }

// IsInstanceFieldRef returns true if the path is a local followed by fields
func (ap *AccessPath) IsInstanceFieldRef() bool { return ap.value != nil && len(ap.fragments) > 0 }

// IsStaticFieldRef returns true if the path is rooted in a static field
func (ap *AccessPath) IsStaticFieldRef() bool { return ap.value == nil && len(ap.fragments) > 0 }

// IsFieldRef returns true if the path has at least one field
func (ap *AccessPath) IsFieldRef() bool { return len(ap.fragments) > 0 }

// FirstFragment returns the first fragment, or nil
func (ap *AccessPath) FirstFragment() *Fragment {
	if len(ap.fragments) == 0 {
		return nil
	}
	return &ap.fragments[0]
}

// LastFragment returns the last fragment, or nil
func (ap *AccessPath) LastFragment() *Fragment {
	if len(ap.fragments) == 0 {
		return nil
	}
	return &ap.fragments[len(ap.fragments)-1]
}

// FirstField returns the first field, or nil
func (ap *AccessPath) FirstField() *ir.Field {
	if len(ap.fragments) == 0 {
		return nil
	}
	return ap.fragments[0].Field
}

// LastField returns the last field, or nil
func (ap *AccessPath) LastField() *ir.Field {
	if len(ap.fragments) == 0 {
		return nil
	}
	return ap.fragments[len(ap.fragments)-1].Field
}

// FirstFieldType returns the type of the first fragment, or nil
func (ap *AccessPath) FirstFieldType() *ir.Type {
	if len(ap.fragments) == 0 {
		return nil
	}
	return ap.fragments[0].Type
}

// LastFieldType returns the type of the last fragment, or the base type if there is no fragment
func (ap *AccessPath) LastFieldType() *ir.Type {
	if len(ap.fragments) == 0 {
		return ap.baseType
	}
	return ap.fragments[len(ap.fragments)-1].Type
}

// FirstFieldMatches returns true if the first field is f
func (ap *AccessPath) FirstFieldMatches(f *ir.Field) bool {
	return len(ap.fragments) > 0 && ap.fragments[0].Field == f
}

// CompleteValue returns the value denoted by the base and the first field
func (ap *AccessPath) CompleteValue() ir.Value {
	f := ap.FirstField()
	if ap.value == nil {
		if f == nil {
			return nil
		}
		return ir.StaticRef(f)
	}
	if f == nil {
		return ap.value
	}
	return ir.FieldRef(ap.value, f)
}

// StartsWith returns true if v is the base of the path: the local itself, or the base and first field of a
// field reference.
func (ap *AccessPath) StartsWith(v ir.Value) bool {
	switch x := v.(type) {
	case *ir.Local:
		return ap.value == x
	case *ir.StaticFieldRef:
		return ap.value == nil && ap.FirstField() == x.Field
	case *ir.InstanceFieldRef:
		return ap.value == x.Base && ap.FirstField() == x.Field
	}
	return false
}

// Entails returns true if every location tainted by a2 is tainted by ap
func (ap *AccessPath) Entails(a2 *AccessPath) bool {
	if ap.IsEmpty() || a2.IsEmpty() {
		return false
	}
	if (ap.value == nil) != (a2.value == nil) {
		return false
	}
	if ap.value != nil && ap.value != a2.value {
		return false
	}
	if !ap.taintSubFields && a2.taintSubFields {
		return false
	}
	if ap.arrayTaintType != ContentsAndLength && ap.arrayTaintType != a2.arrayTaintType {
		return false
	}
	if len(ap.fragments) > len(a2.fragments) {
		return false
	}
	for i := range ap.fragments {
		if !ap.fragments[i].Entails(a2.fragments[i]) {
			return false
		}
	}
	return true
}

func (ap *AccessPath) String() string {
	if ap == zeroAccessPath {
		return "<zero>"
	}
	if ap == emptyAccessPath {
		return "<empty>"
	}
	var sb strings.Builder
	if ap.value != nil {
		sb.WriteString(ap.value.Name)
		if ap.baseType != nil {
			sb.WriteString("(" + ap.baseType.String() + ")")
		}
	}
	for i, f := range ap.fragments {
		if i > 0 || sb.Len() > 0 {
			sb.WriteString(".")
		}
		if ap.value == nil && i == 0 {
			sb.WriteString(f.Field.Class.ShortName() + ".")
		}
		sb.WriteString(f.String())
	}
	if ap.taintSubFields {
		sb.WriteString(" *")
	}
	switch ap.arrayTaintType {
	case ContentsAndLength:
		if ap.baseType != nil && ap.baseType.IsArray() {
			sb.WriteString(" <+length>")
		}
	case Length:
		sb.WriteString(" <length>")
	}
	return sb.String()
}
