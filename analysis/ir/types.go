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

package ir

import (
	"sync"
)

// TypeKind classifies types
type TypeKind int

const (
	UnknownKind TypeKind = iota
	VoidKind
	PrimitiveKind
	StringKind
	ReferenceKind
	ArrayKind
	NullKind
)

// Type is an interned type: two types with the same name are the same pointer.
type Type struct {
	kind TypeKind
	name string
	elem *Type
}

var types sync.Map // string -> *Type

func internType(kind TypeKind, name string, elem *Type) *Type {
	if t, ok := types.Load(name); ok {
		return t.(*Type)
	}
	t, _ := types.LoadOrStore(name, &Type{kind: kind, name: name, elem: elem})
	return t.(*Type)
}

// Predefined types
var (
	Void    = internType(VoidKind, "void", nil)
	Int     = internType(PrimitiveKind, "int", nil)
	Bool    = internType(PrimitiveKind, "bool", nil)
	Float   = internType(PrimitiveKind, "float64", nil)
	Byte    = internType(PrimitiveKind, "byte", nil)
	String  = internType(StringKind, "string", nil)
	Null    = internType(NullKind, "null_type", nil)
	Unknown = internType(UnknownKind, "unknown", nil)
	Object  = internType(ReferenceKind, ObjectClassName, nil)
)

// PrimType returns the primitive type with that name
func PrimType(name string) *Type {
	return internType(PrimitiveKind, name, nil)
}

// RefType returns the reference type of the class with that name
func RefType(name string) *Type {
	if name == String.name {
		return String
	}
	return internType(ReferenceKind, name, nil)
}

// ArrayOf returns the type of arrays of elem
func ArrayOf(elem *Type) *Type {
	return internType(ArrayKind, elem.name+"[]", elem)
}

// Kind returns the kind of the type
func (t *Type) Kind() TypeKind { return t.kind }

// Name returns the name of the type
func (t *Type) Name() string { return t.name }

func (t *Type) String() string { return t.name }

// Elem returns the element type of an array type, nil otherwise
func (t *Type) Elem() *Type { return t.elem }

// IsPrimitive returns true for primitive types
func (t *Type) IsPrimitive() bool { return t.kind == PrimitiveKind }

// IsArray returns true for array types
func (t *Type) IsArray() bool { return t.kind == ArrayKind }

// IsString returns true for the string type
func (t *Type) IsString() bool { return t.kind == StringKind }

// IsReference returns true for the types whose values are heap references, including strings and arrays
func (t *Type) IsReference() bool {
	return t.kind == ReferenceKind || t.kind == ArrayKind || t.kind == StringKind || t.kind == NullKind
}

// IsImmutable returns true for types whose values cannot be modified through an alias
func (t *Type) IsImmutable() bool {
	return t.kind == PrimitiveKind || t.kind == StringKind
}

// ArrayDepth returns the number of array dimensions of the type
func (t *Type) ArrayDepth() int {
	d := 0
	for cur := t; cur != nil && cur.kind == ArrayKind; cur = cur.elem {
		d++
	}
	return d
}
