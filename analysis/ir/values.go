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
	"fmt"
	"strconv"
	"strings"
)

// Value is an operand of a statement
type Value interface {
	Type() *Type
	String() string
}

// Local is a local variable of a method body
type Local struct {
	id     int64
	Name   string
	typ    *Type
	method *Method
}

// InstanceFieldRef is base.field
type InstanceFieldRef struct {
	Base  *Local
	Field *Field
}

// StaticFieldRef is Class.field
type StaticFieldRef struct {
	Field *Field
}

// ArrayRef is base[index]
type ArrayRef struct {
	Base  *Local
	Index Value
}

// Constant is a literal value
type Constant struct {
	typ   *Type
	Value string
}

// NewExpr allocates an object of class type
type NewExpr struct {
	typ *Type
}

// NewArrayExpr allocates an array
type NewArrayExpr struct {
	Elem *Type
	Size Value
}

// LengthExpr is the length of an array
type LengthExpr struct {
	Op Value
}

// CastExpr is a type conversion
type CastExpr struct {
	Op  Value
	typ *Type
}

// InstanceOfExpr is a type test
type InstanceOfExpr struct {
	Op    Value
	Check *Type
}

// BinopExpr is a binary operation
type BinopExpr struct {
	Op  string
	X   Value
	Y   Value
	typ *Type
}

// UnopExpr is a unary operation
type UnopExpr struct {
	Op  string
	X   Value
	typ *Type
}

// PhiExpr merges values coming from different predecessors
type PhiExpr struct {
	Args []Value
	typ  *Type
}

// InvokeKind distinguishes the dispatch mode of an invocation
type InvokeKind int

const (
	StaticInvoke InvokeKind = iota
	VirtualInvoke
	InterfaceInvoke
	SpecialInvoke
)

// InvokeExpr is a method invocation. Base is nil for static invocations.
type InvokeExpr struct {
	Kind   InvokeKind
	Method *Method
	Base   *Local
	Args   []Value
}

// ParameterRef is the value of a parameter on method entry
type ParameterRef struct {
	Index int
	typ   *Type
}

// ThisRef is the value of the receiver on method entry
type ThisRef struct {
	typ *Type
}

// CaughtExceptionRef is the exception caught by a handler
type CaughtExceptionRef struct {
	typ *Type
}

// ID returns the unique identifier of the local
func (l *Local) ID() int64 { return l.id }

// Method returns the method declaring the local
func (l *Local) Method() *Method { return l.method }

func (l *Local) Type() *Type { return l.typ }

func (l *Local) String() string { return l.Name }

func (r *InstanceFieldRef) Type() *Type { return r.Field.Type }

func (r *InstanceFieldRef) String() string { return r.Base.Name + "." + r.Field.Name }

func (r *StaticFieldRef) Type() *Type { return r.Field.Type }

func (r *StaticFieldRef) String() string { return r.Field.Class.ShortName() + "." + r.Field.Name }

func (r *ArrayRef) Type() *Type {
	if r.Base.typ.IsArray() {
		return r.Base.typ.elem
	}
	return Unknown
}

func (r *ArrayRef) String() string { return r.Base.Name + "[" + r.Index.String() + "]" }

// NewConstant returns a constant of type t
func NewConstant(t *Type, v string) *Constant { return &Constant{typ: t, Value: v} }

// StringConstant returns a string literal
func StringConstant(s string) *Constant { return &Constant{typ: String, Value: s} }

// IntConstant returns an integer literal
func IntConstant(i int) *Constant { return &Constant{typ: Int, Value: strconv.Itoa(i)} }

// NullConstant returns the null literal
func NullConstant() *Constant { return &Constant{typ: Null, Value: "null"} }

func (c *Constant) Type() *Type { return c.typ }

func (c *Constant) String() string {
	if c.typ == String {
		return strconv.Quote(c.Value)
	}
	return c.Value
}

// NewObject returns an allocation of an object of type t
func NewObject(t *Type) *NewExpr { return &NewExpr{typ: t} }

func (e *NewExpr) Type() *Type { return e.typ }

func (e *NewExpr) String() string { return "new " + e.typ.String() }

func (e *NewArrayExpr) Type() *Type { return ArrayOf(e.Elem) }

func (e *NewArrayExpr) String() string { return fmt.Sprintf("newarray (%s)[%s]", e.Elem, e.Size) }

func (e *LengthExpr) Type() *Type { return Int }

func (e *LengthExpr) String() string { return "lengthof " + e.Op.String() }

// NewCast returns the cast of op to t
func NewCast(op Value, t *Type) *CastExpr { return &CastExpr{Op: op, typ: t} }

func (e *CastExpr) Type() *Type { return e.typ }

func (e *CastExpr) String() string { return "(" + e.typ.String() + ") " + e.Op.String() }

func (e *InstanceOfExpr) Type() *Type { return Bool }

func (e *InstanceOfExpr) String() string { return e.Op.String() + " instanceof " + e.Check.String() }

// NewBinop returns the binary operation x op y of type t
func NewBinop(op string, x, y Value, t *Type) *BinopExpr {
	return &BinopExpr{Op: op, X: x, Y: y, typ: t}
}

func (e *BinopExpr) Type() *Type { return e.typ }

func (e *BinopExpr) String() string { return e.X.String() + " " + e.Op + " " + e.Y.String() }

// NewUnop returns the unary operation op x of type t
func NewUnop(op string, x Value, t *Type) *UnopExpr { return &UnopExpr{Op: op, X: x, typ: t} }

func (e *UnopExpr) Type() *Type { return e.typ }

func (e *UnopExpr) String() string { return e.Op + e.X.String() }

// NewPhi returns a phi node of type t
func NewPhi(t *Type, args ...Value) *PhiExpr { return &PhiExpr{Args: args, typ: t} }

func (e *PhiExpr) Type() *Type { return e.typ }

func (e *PhiExpr) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return "phi(" + strings.Join(args, ", ") + ")"
}

// NewStaticInvoke returns a static invocation of m
func NewStaticInvoke(m *Method, args ...Value) *InvokeExpr {
	return &InvokeExpr{Kind: StaticInvoke, Method: m, Args: args}
}

// NewVirtualInvoke returns a virtual invocation of m on base
func NewVirtualInvoke(base *Local, m *Method, args ...Value) *InvokeExpr {
	return &InvokeExpr{Kind: VirtualInvoke, Method: m, Base: base, Args: args}
}

// NewInterfaceInvoke returns an interface invocation of m on base
func NewInterfaceInvoke(base *Local, m *Method, args ...Value) *InvokeExpr {
	return &InvokeExpr{Kind: InterfaceInvoke, Method: m, Base: base, Args: args}
}

// NewSpecialInvoke returns a non-virtual invocation of m on base, e.g. a constructor call
func NewSpecialInvoke(base *Local, m *Method, args ...Value) *InvokeExpr {
	return &InvokeExpr{Kind: SpecialInvoke, Method: m, Base: base, Args: args}
}

func (e *InvokeExpr) Type() *Type { return e.Method.ReturnType }

func (e *InvokeExpr) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	callee := e.Method.Class.ShortName() + "." + e.Method.Name
	if e.Base != nil {
		callee = e.Base.Name + "." + e.Method.Name
	}
	return callee + "(" + strings.Join(args, ", ") + ")"
}

// IsInstance returns true if the invocation has a receiver
func (e *InvokeExpr) IsInstance() bool { return e.Base != nil }

// ArgIndex returns the index of v in the arguments, or -1
func (e *InvokeExpr) ArgIndex(v Value) int {
	for i, a := range e.Args {
		if a == v {
			return i
		}
	}
	return -1
}

func (r *ParameterRef) Type() *Type { return r.typ }

func (r *ParameterRef) String() string { return fmt.Sprintf("@parameter%d: %s", r.Index, r.typ) }

func (r *ThisRef) Type() *Type { return r.typ }

func (r *ThisRef) String() string { return "@this: " + r.typ.String() }

func (r *CaughtExceptionRef) Type() *Type { return r.typ }

func (r *CaughtExceptionRef) String() string { return "@caughtexception" }

// UsesOf returns v and all the values nested inside v.
func UsesOf(v Value) []Value {
	if v == nil {
		return nil
	}
	res := []Value{v}
	switch x := v.(type) {
	case *InstanceFieldRef:
		res = append(res, x.Base)
	case *ArrayRef:
		res = append(res, x.Base)
		res = append(res, UsesOf(x.Index)...)
	case *NewArrayExpr:
		res = append(res, UsesOf(x.Size)...)
	case *LengthExpr:
		res = append(res, UsesOf(x.Op)...)
	case *CastExpr:
		res = append(res, UsesOf(x.Op)...)
	case *InstanceOfExpr:
		res = append(res, UsesOf(x.Op)...)
	case *BinopExpr:
		res = append(res, UsesOf(x.X)...)
		res = append(res, UsesOf(x.Y)...)
	case *UnopExpr:
		res = append(res, UsesOf(x.X)...)
	case *PhiExpr:
		for _, a := range x.Args {
			res = append(res, UsesOf(a)...)
		}
	case *InvokeExpr:
		if x.Base != nil {
			res = append(res, x.Base)
		}
		for _, a := range x.Args {
			res = append(res, UsesOf(a)...)
		}
	}
	return res
}

// BaseLocal returns the local at the root of a local, field reference or array reference, nil otherwise
func BaseLocal(v Value) *Local {
	switch x := v.(type) {
	case *Local:
		return x
	case *InstanceFieldRef:
		return x.Base
	case *ArrayRef:
		return x.Base
	}
	return nil
}
