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
	"strings"
)

// Stmt is a statement of a method body
type Stmt interface {
	// Method returns the method containing the statement
	Method() *Method
	// Index returns the position of the statement in the body
	Index() int
	// Line returns the source line of the statement, 0 if unknown
	Line() int
	// InvokeExpr returns the invocation contained in the statement, nil if there is none
	InvokeExpr() *InvokeExpr
	// UseValues returns all the values read by the statement, including nested values
	UseValues() []Value
	String() string

	base() *stmtBase
}

type stmtBase struct {
	method *Method
	index  int
	line   int
}

func (s *stmtBase) Method() *Method         { return s.method }
func (s *stmtBase) Index() int              { return s.index }
func (s *stmtBase) Line() int               { return s.line }
func (s *stmtBase) InvokeExpr() *InvokeExpr { return nil }
func (s *stmtBase) UseValues() []Value      { return nil }
func (s *stmtBase) base() *stmtBase         { return s }

// SetLine sets the source line of the statement
func SetLine(s Stmt, line int) { s.base().line = line }

// AssignStmt is Left = Right. Left is a local, a field reference or an array reference.
type AssignStmt struct {
	stmtBase
	Left  Value
	Right Value
}

// IdentityStmt binds a local to a parameter, the receiver or a caught exception
type IdentityStmt struct {
	stmtBase
	Left  *Local
	Right Value
}

// InvokeStmt is an invocation whose result is discarded
type InvokeStmt struct {
	stmtBase
	Invoke *InvokeExpr
}

// ReturnStmt returns Op
type ReturnStmt struct {
	stmtBase
	Op Value
}

// ReturnVoidStmt returns without a value
type ReturnVoidStmt struct {
	stmtBase
}

// IfStmt jumps to Target when Cond holds
type IfStmt struct {
	stmtBase
	Cond   Value
	Target Stmt
}

// GotoStmt jumps to Target
type GotoStmt struct {
	stmtBase
	Target Stmt
}

// ThrowStmt throws Op
type ThrowStmt struct {
	stmtBase
	Op Value
}

// SwitchStmt jumps to one of Targets or Default depending on Key
type SwitchStmt struct {
	stmtBase
	Key     Value
	Targets []Stmt
	Default Stmt
}

// NopStmt does nothing. Used as jump target.
type NopStmt struct {
	stmtBase
}

func (s *AssignStmt) InvokeExpr() *InvokeExpr {
	ie, _ := s.Right.(*InvokeExpr)
	return ie
}

func (s *AssignStmt) UseValues() []Value {
	uses := UsesOf(s.Right)
	switch l := s.Left.(type) {
	case *InstanceFieldRef:
		uses = append(uses, l.Base)
	case *ArrayRef:
		uses = append(uses, l.Base)
		uses = append(uses, UsesOf(l.Index)...)
	}
	return uses
}

func (s *AssignStmt) String() string { return s.Left.String() + " = " + s.Right.String() }

func (s *IdentityStmt) UseValues() []Value { return []Value{s.Right} }

func (s *IdentityStmt) String() string { return s.Left.String() + " := " + s.Right.String() }

func (s *InvokeStmt) InvokeExpr() *InvokeExpr { return s.Invoke }

func (s *InvokeStmt) UseValues() []Value { return UsesOf(s.Invoke) }

func (s *InvokeStmt) String() string { return s.Invoke.String() }

func (s *ReturnStmt) UseValues() []Value { return UsesOf(s.Op) }

func (s *ReturnStmt) String() string { return "return " + s.Op.String() }

func (s *ReturnVoidStmt) String() string { return "return" }

func (s *IfStmt) UseValues() []Value { return UsesOf(s.Cond) }

func (s *IfStmt) String() string { return fmt.Sprintf("if %s goto #%d", s.Cond, s.Target.Index()) }

func (s *GotoStmt) String() string { return fmt.Sprintf("goto #%d", s.Target.Index()) }

func (s *ThrowStmt) UseValues() []Value { return UsesOf(s.Op) }

func (s *ThrowStmt) String() string { return "throw " + s.Op.String() }

func (s *SwitchStmt) UseValues() []Value { return UsesOf(s.Key) }

func (s *SwitchStmt) String() string {
	targets := make([]string, len(s.Targets))
	for i, t := range s.Targets {
		targets[i] = fmt.Sprintf("#%d", t.Index())
	}
	return fmt.Sprintf("switch %s [%s] default #%d", s.Key, strings.Join(targets, " "), s.Default.Index())
}

func (s *NopStmt) String() string { return "nop" }

// DefinedValue returns the value written by the statement, nil if there is none
func DefinedValue(s Stmt) Value {
	switch x := s.(type) {
	case *AssignStmt:
		return x.Left
	case *IdentityStmt:
		return x.Left
	}
	return nil
}

// IsBranch returns true for statements with more than one possible successor within the body
func IsBranch(s Stmt) bool {
	switch s.(type) {
	case *IfStmt, *SwitchStmt:
		return true
	}
	return false
}

// Trap is an exception handler: exceptions of type Exception thrown by statements with index in [Begin, End)
// are caught by Handler.
type Trap struct {
	Begin     int
	End       int
	Handler   Stmt
	Exception *Type
}

// Body is the list of statements of a method with its control flow graph
type Body struct {
	Method *Method
	Locals []*Local
	Stmts  []Stmt
	This   *Local
	Params []*Local
	Traps  []*Trap

	succs [][]Stmt
	preds [][]Stmt
}

// Succs returns the successors of s in the control flow graph, including exceptional successors
func (b *Body) Succs(s Stmt) []Stmt { return b.succs[s.Index()] }

// Preds returns the predecessors of s in the control flow graph
func (b *Body) Preds(s Stmt) []Stmt { return b.preds[s.Index()] }

// Heads returns the entry statements of the body
func (b *Body) Heads() []Stmt {
	if len(b.Stmts) == 0 {
		return nil
	}
	return []Stmt{b.Stmts[0]}
}

// Tails returns the statements after which the method returns or throws to its caller
func (b *Body) Tails() []Stmt {
	var tails []Stmt
	for _, s := range b.Stmts {
		if b.IsTail(s) {
			tails = append(tails, s)
		}
	}
	return tails
}

// IsTail returns true if the method returns or may throw to its caller after s
func (b *Body) IsTail(s Stmt) bool {
	switch s.(type) {
	case *ReturnStmt, *ReturnVoidStmt:
		return true
	case *ThrowStmt:
		return b.handlerOf(s) == nil
	}
	return len(b.succs[s.Index()]) == 0
}

// HandlerOf returns the first handler whose range covers s, nil if there is none
func (b *Body) handlerOf(s Stmt) Stmt {
	for _, t := range b.Traps {
		if s.Index() >= t.Begin && s.Index() < t.End {
			return t.Handler
		}
	}
	return nil
}

// ParamLocal returns the local bound to the i-th parameter, nil if there is none
func (b *Body) ParamLocal(i int) *Local {
	if i < 0 || i >= len(b.Params) {
		return nil
	}
	return b.Params[i]
}

// ParamIndex returns the index of the parameter bound to l, or -1
func (b *Body) ParamIndex(l *Local) int {
	for i, p := range b.Params {
		if p == l && p != nil {
			return i
		}
	}
	return -1
}

func (b *Body) computeCFG() {
	n := len(b.Stmts)
	b.succs = make([][]Stmt, n)
	b.preds = make([][]Stmt, n)
	add := func(from Stmt, to Stmt) {
		if to == nil {
			return
		}
		for _, x := range b.succs[from.Index()] {
			if x == to {
				return
			}
		}
		b.succs[from.Index()] = append(b.succs[from.Index()], to)
		b.preds[to.Index()] = append(b.preds[to.Index()], from)
	}
	next := func(i int) Stmt {
		if i+1 < n {
			return b.Stmts[i+1]
		}
		return nil
	}
	for i, s := range b.Stmts {
		switch x := s.(type) {
		case *GotoStmt:
			add(s, x.Target)
		case *IfStmt:
			add(s, next(i))
			add(s, x.Target)
		case *SwitchStmt:
			for _, t := range x.Targets {
				add(s, t)
			}
			add(s, x.Default)
		case *ReturnStmt, *ReturnVoidStmt:
		case *ThrowStmt:
			add(s, b.handlerOf(s))
		default:
			add(s, next(i))
			if s.InvokeExpr() != nil {
				add(s, b.handlerOf(s))
			}
		}
	}
}

func (b *Body) String() string {
	var sb strings.Builder
	sb.WriteString(b.Method.Signature())
	sb.WriteString(" {\n")
	for _, s := range b.Stmts {
		fmt.Fprintf(&sb, "  #%d: %s\n", s.Index(), s)
	}
	sb.WriteString("}\n")
	return sb.String()
}
