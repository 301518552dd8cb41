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

import "github.com/awslabs/ar-go-ifds/analysis/ir"

// TypeUtils answers the type compatibility questions of access paths against the class hierarchy of a program.
// A nil program makes every check succeed.
type TypeUtils struct {
	program *ir.Program
	enabled bool
}

// NewTypeUtils returns the type utilities for the program. When enabled is false, all casts are compatible.
func NewTypeUtils(p *ir.Program, enabled bool) *TypeUtils {
	return &TypeUtils{program: p, enabled: enabled}
}

// Program returns the program whose hierarchy is used, possibly nil
func (u *TypeUtils) Program() *ir.Program { return u.program }

// IsObjectLikeType returns true for types that any reference type may be stored into
func IsObjectLikeType(t *ir.Type) bool {
	if t == nil {
		return false
	}
	switch t.Name() {
	case ir.ObjectClassName, "interface {}", "interface{}":
		return true
	}
	return t.Kind() == ir.UnknownKind
}

// MorePreciseType returns the more specific of two types, or nil if they are incompatible
func (u *TypeUtils) MorePreciseType(t1, t2 *ir.Type) *ir.Type {
	switch {
	case t1 == nil:
		return t2
	case t2 == nil:
		return t1
	case t1 == t2:
		return t1
	case IsObjectLikeType(t1) || t1.Kind() == ir.NullKind:
		return t2
	case IsObjectLikeType(t2) || t2.Kind() == ir.NullKind:
		return t1
	case t1.IsPrimitive() && t2.IsPrimitive():
		return nil
	case u.program == nil:
		return t1
	case u.program.IsSubtype(t1, t2):
		return t1
	case u.program.IsSubtype(t2, t1):
		return t2
	case t1.IsArray() && t2.IsArray():
		elem := u.MorePreciseType(t1.Elem(), t2.Elem())
		if elem == nil {
			return nil
		}
		return ir.ArrayOf(elem)
	}
	return nil
}

// CheckCast returns true if a value of type src may be stored into a location of type dst
func (u *TypeUtils) CheckCast(dst, src *ir.Type) bool {
	if !u.enabled || u.program == nil || dst == nil || src == nil || dst == src {
		return true
	}
	if IsObjectLikeType(dst) || IsObjectLikeType(src) || src.Kind() == ir.NullKind {
		return true
	}
	if dst.IsPrimitive() && src.IsPrimitive() {
		return true
	}
	if dst.IsPrimitive() != src.IsPrimitive() {
		return dst.IsString() || src.IsString()
	}
	if dst.IsArray() != src.IsArray() {
		return false
	}
	if dst.IsArray() {
		return u.CheckCast(dst.Elem(), src.Elem())
	}
	if u.program.IsSubtype(src, dst) || u.program.IsSubtype(dst, src) {
		return true
	}
	// a subclass of one may implement the other
	dc, sc := u.program.Class(dst.Name()), u.program.Class(src.Name())
	if dc == nil || sc == nil {
		return true
	}
	return dc.IsInterface || sc.IsInterface
}

// CheckCastAP returns true if the value tainted by ap may be cast to t
func (u *TypeUtils) CheckCastAP(ap *AccessPath, t *ir.Type) bool {
	if !u.enabled {
		return true
	}
	if ap.IsStaticFieldRef() && ap.FieldCount() == 1 {
		return u.CheckCast(t, ap.FirstFieldType())
	}
	return u.CheckCast(t, ap.BaseType())
}

// HasCompatibleTypesForCall returns true if the base of ap may be the receiver of a method declared in class c
func (u *TypeUtils) HasCompatibleTypesForCall(ap *AccessPath, c *ir.Class) bool {
	if !u.enabled || c == nil {
		return true
	}
	if ap.IsFieldRef() && ap.PlainValue() == nil {
		return u.CheckCast(c.Type(), ap.FirstFieldType())
	}
	return u.CheckCast(c.Type(), ap.BaseType())
}
