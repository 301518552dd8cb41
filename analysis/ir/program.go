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
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// ObjectClassName is the name of the root of the class hierarchy
const ObjectClassName = "any"

var nextID int64

func newID() int64 { return atomic.AddInt64(&nextID, 1) }

// Program is a set of classes with their fields and methods.
type Program struct {
	mu         sync.RWMutex
	classes    map[string]*Class
	classOrder []*Class
	subclasses map[*Class][]*Class
}

// NewProgram returns a program that contains only the root class
func NewProgram() *Program {
	p := &Program{classes: map[string]*Class{}, subclasses: map[*Class][]*Class{}}
	root := p.AddClass(ObjectClassName, nil)
	root.Library = true
	return p
}

// Class is a class, or a package for free functions and globals.
type Class struct {
	Name        string
	Super       *Class
	Interfaces  []*Class
	IsInterface bool
	// Library is true for classes of which only the signatures are known
	Library bool
	// PackagePath overrides the package derived from the name, for package paths that contain dots
	PackagePath string

	program *Program
	fields  map[string]*Field
	methods []*Method
}

// Field is an instance or static field of a class
type Field struct {
	id     int64
	Name   string
	Type   *Type
	Class  *Class
	Static bool
}

// Method is a method declaration with an optional body
type Method struct {
	Class      *Class
	Name       string
	ParamTypes []*Type
	ReturnType *Type
	Static     bool

	body *Body
}

// AddClass adds a class to the program. If super is nil and name is not the root class, the class extends the root
// class. If the class already exists, it is returned unchanged.
func (p *Program) AddClass(name string, super *Class) *Class {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.classes[name]; ok {
		return c
	}
	if super == nil && name != ObjectClassName {
		super = p.classes[ObjectClassName]
	}
	c := &Class{Name: name, Super: super, program: p, fields: map[string]*Field{}}
	p.classes[name] = c
	p.classOrder = append(p.classOrder, c)
	if super != nil {
		p.subclasses[super] = append(p.subclasses[super], c)
	}
	return c
}

// AddInterface adds an interface to the program
func (p *Program) AddInterface(name string) *Class {
	c := p.AddClass(name, nil)
	c.IsInterface = true
	return c
}

// Implement records that c implements the interface itf
func (p *Program) Implement(c *Class, itf *Class) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c.Interfaces = append(c.Interfaces, itf)
	p.subclasses[itf] = append(p.subclasses[itf], c)
}

// Class returns the class with that name, or nil
func (p *Program) Class(name string) *Class {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.classes[name]
}

// Classes returns the classes in the order they have been added
func (p *Program) Classes() []*Class {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*Class(nil), p.classOrder...)
}

// Methods returns all the methods of the program
func (p *Program) Methods() []*Method {
	var ms []*Method
	for _, c := range p.Classes() {
		ms = append(ms, c.methods...)
	}
	return ms
}

// MethodBySignature returns the method with that signature, or nil
func (p *Program) MethodBySignature(sig string) *Method {
	for _, m := range p.Methods() {
		if m.Signature() == sig {
			return m
		}
	}
	return nil
}

// DirectSubtypes returns the classes that directly extend or implement c
func (p *Program) DirectSubtypes(c *Class) []*Class {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*Class(nil), p.subclasses[c]...)
}

// SubtypesOf returns c and all its transitive subtypes
func (p *Program) SubtypesOf(c *Class) []*Class {
	seen := map[*Class]bool{}
	var res []*Class
	var visit func(*Class)
	visit = func(x *Class) {
		if seen[x] {
			return
		}
		seen[x] = true
		res = append(res, x)
		for _, s := range p.DirectSubtypes(x) {
			visit(s)
		}
	}
	visit(c)
	return res
}

// IsSubclass returns true if sub is sup or one of its subtypes
func (p *Program) IsSubclass(sub *Class, sup *Class) bool {
	if sub == nil || sup == nil {
		return false
	}
	if sub == sup || sup.Name == ObjectClassName {
		return true
	}
	if p.IsSubclass(sub.Super, sup) {
		return true
	}
	for _, itf := range sub.Interfaces {
		if p.IsSubclass(itf, sup) {
			return true
		}
	}
	return false
}

// IsSubtype returns true if a value of type sub can be stored in a location of type sup.
// Unknown types are compatible with everything.
func (p *Program) IsSubtype(sub *Type, sup *Type) bool {
	switch {
	case sub == sup:
		return true
	case sub.kind == UnknownKind || sup.kind == UnknownKind:
		return true
	case sub.kind == NullKind:
		return sup.IsReference()
	case sup == Object:
		return sub.IsReference()
	case sub.IsArray() && sup.IsArray():
		if sub.elem.IsPrimitive() || sup.elem.IsPrimitive() {
			return sub.elem == sup.elem
		}
		return p.IsSubtype(sub.elem, sup.elem)
	case sub.kind == ReferenceKind && sup.kind == ReferenceKind:
		return p.IsSubclass(p.Class(sub.name), p.Class(sup.name))
	}
	return false
}

// ResolveMethod looks up the method with the sub-signature in c and its super classes
func (p *Program) ResolveMethod(c *Class, subSig string) *Method {
	for cur := c; cur != nil; cur = cur.Super {
		if m := cur.MethodBySubSignature(subSig); m != nil {
			return m
		}
	}
	return nil
}

// Type returns the reference type of the class
func (c *Class) Type() *Type { return RefType(c.Name) }

// Program returns the program that contains c
func (c *Class) Program() *Program { return c.program }

// IsSystem returns true if the class is a library class, whose code is not analyzed
func (c *Class) IsSystem() bool { return c.Library }

// Package returns the package part of the class name
func (c *Class) Package() string {
	if c.PackagePath != "" {
		return c.PackagePath
	}
	if i := strings.LastIndex(c.Name, "."); i >= 0 {
		return c.Name[:i]
	}
	return c.Name
}

// ShortName returns the class name without its package
func (c *Class) ShortName() string {
	if c.PackagePath != "" {
		if c.Name == c.PackagePath {
			return c.Name[strings.LastIndex(c.Name, "/")+1:]
		}
		return strings.TrimPrefix(c.Name, c.PackagePath+".")
	}
	if i := strings.LastIndex(c.Name, "."); i >= 0 {
		return c.Name[i+1:]
	}
	return c.Name
}

func (c *Class) String() string { return c.Name }

// AddField adds a field to the class, or returns the existing field with the same name
func (c *Class) AddField(name string, t *Type, static bool) *Field {
	c.program.mu.Lock()
	defer c.program.mu.Unlock()
	if f, ok := c.fields[name]; ok {
		return f
	}
	f := &Field{id: newID(), Name: name, Type: t, Class: c, Static: static}
	c.fields[name] = f
	return f
}

// Field returns the field with that name in c or its super classes, or nil
func (c *Class) Field(name string) *Field {
	for cur := c; cur != nil; cur = cur.Super {
		c.program.mu.RLock()
		f := cur.fields[name]
		c.program.mu.RUnlock()
		if f != nil {
			return f
		}
	}
	return nil
}

// Fields returns the fields declared in the class, sorted by name
func (c *Class) Fields() []*Field {
	c.program.mu.RLock()
	defer c.program.mu.RUnlock()
	fs := make([]*Field, 0, len(c.fields))
	for _, f := range c.fields {
		fs = append(fs, f)
	}
	sort.Slice(fs, func(i, j int) bool { return fs[i].Name < fs[j].Name })
	return fs
}

// AddMethod declares a method in the class. The body is added with a [BodyBuilder].
func (c *Class) AddMethod(name string, params []*Type, ret *Type, static bool) *Method {
	if ret == nil {
		ret = Void
	}
	m := &Method{Class: c, Name: name, ParamTypes: params, ReturnType: ret, Static: static}
	if existing := c.MethodBySubSignature(m.SubSignature()); existing != nil {
		return existing
	}
	c.program.mu.Lock()
	c.methods = append(c.methods, m)
	c.program.mu.Unlock()
	return m
}

// Methods returns the methods declared in the class
func (c *Class) Methods() []*Method {
	c.program.mu.RLock()
	defer c.program.mu.RUnlock()
	return append([]*Method(nil), c.methods...)
}

// MethodBySubSignature returns the method declared in c with that sub-signature, or nil
func (c *Class) MethodBySubSignature(subSig string) *Method {
	c.program.mu.RLock()
	defer c.program.mu.RUnlock()
	for _, m := range c.methods {
		if m.SubSignature() == subSig {
			return m
		}
	}
	return nil
}

// MethodByName returns the first method declared in c with that name, or nil
func (c *Class) MethodByName(name string) *Method {
	c.program.mu.RLock()
	defer c.program.mu.RUnlock()
	for _, m := range c.methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// ID returns a unique identifier of the field
func (f *Field) ID() int64 { return f.id }

// Signature returns the signature <Class: type name> of the field
func (f *Field) Signature() string {
	return fmt.Sprintf("<%s: %s %s>", f.Class.Name, f.Type, f.Name)
}

func (f *Field) String() string { return f.Name }

// SubSignature returns "ret name(params)"
func (m *Method) SubSignature() string {
	params := make([]string, len(m.ParamTypes))
	for i, p := range m.ParamTypes {
		params[i] = p.String()
	}
	return fmt.Sprintf("%s %s(%s)", m.ReturnType, m.Name, strings.Join(params, ","))
}

// Signature returns "<Class: ret name(params)>"
func (m *Method) Signature() string {
	return "<" + m.Class.Name + ": " + m.SubSignature() + ">"
}

func (m *Method) String() string { return m.Signature() }

// HasBody returns true if the method has a body
func (m *Method) HasBody() bool { return m.body != nil }

// Body returns the body of the method, nil if the method has no body
func (m *Method) Body() *Body { return m.body }

// IsConstructor returns true for instance initializers
func (m *Method) IsConstructor() bool { return m.Name == "<init>" }

// IsStaticInitializer returns true for class initializers
func (m *Method) IsStaticInitializer() bool { return m.Name == "<clinit>" }

// ParamCount returns the number of parameters, not counting the receiver
func (m *Method) ParamCount() int { return len(m.ParamTypes) }
