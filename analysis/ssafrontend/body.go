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

package ssafrontend

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"

	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"golang.org/x/tools/go/ssa"
)

// bodyBuilder lowers the instructions of an SSA function into statements.
//
// Addresses are identified with the values they point to: a load or a store through a field or an element address
// reads or writes the field or the element, a load or a store through any other pointer reads or writes the local
// holding the pointer. Maps and channels are arrays: an update writes an element, a lookup reads one.
type bodyBuilder struct {
	t      *translator
	fn     *ssa.Function
	b      *ir.BodyBuilder
	locals map[ssa.Value]*ir.Local
	labels []ir.Stmt
	jumps  []jump
	temps  int
}

// jump is a branch whose target is the first statement of a block
type jump struct {
	stmt  ir.Stmt
	block int
}

func newBodyBuilder(t *translator, fn *ssa.Function, m *ir.Method) *bodyBuilder {
	return &bodyBuilder{
		t:      t,
		fn:     fn,
		b:      ir.NewBodyBuilder(m),
		locals: map[ssa.Value]*ir.Local{},
		labels: make([]ir.Stmt, len(fn.Blocks)),
	}
}

func (bb *bodyBuilder) build() *ir.Body {
	bb.bindParams()
	for _, blk := range bb.fn.Blocks {
		bb.labels[blk.Index] = bb.b.Nop()
		for _, instr := range blk.Instrs {
			if pos := bb.position(instr.Pos()); pos.IsValid() {
				bb.b.SetLine(pos.Line)
			}
			bb.instruction(instr)
		}
	}
	for _, j := range bb.jumps {
		switch s := j.stmt.(type) {
		case *ir.IfStmt:
			s.Target = bb.labels[j.block]
		case *ir.GotoStmt:
			s.Target = bb.labels[j.block]
		}
	}
	return bb.b.Finish()
}

func (bb *bodyBuilder) position(pos token.Pos) token.Position {
	if !pos.IsValid() || bb.t.prog.Fset == nil {
		return token.Position{}
	}
	return bb.t.prog.Fset.Position(pos)
}

// bindParams binds the receiver and the parameters. The free variables of a closure are loaded from the fields of
// the closure object.
func (bb *bodyBuilder) bindParams() {
	params := bb.fn.Params
	if len(bb.fn.FreeVars) == 0 && bb.fn.Signature.Recv() != nil && len(params) > 0 {
		bb.locals[params[0]] = bb.b.This()
		params = params[1:]
	}
	for i, p := range params {
		bb.locals[p] = bb.b.Param(i, p.Name())
	}
	if len(bb.fn.FreeVars) == 0 {
		return
	}
	c := bb.t.closureClass(bb.fn)
	for _, fv := range bb.fn.FreeVars {
		bb.b.Assign(bb.local(fv), ir.FieldRef(bb.b.This(), c.Field(fv.Name())))
	}
}

func (bb *bodyBuilder) local(v ssa.Value) *ir.Local {
	if l, ok := bb.locals[v]; ok {
		return l
	}
	l := bb.b.Local(v.Name(), bb.t.typeOf(v.Type()))
	bb.locals[v] = l
	return l
}

func (bb *bodyBuilder) temp(t *ir.Type) *ir.Local {
	bb.temps++
	return bb.b.Local(fmt.Sprintf("$tmp%d", bb.temps), t)
}

// operand returns the value of v as an operand of a statement: a local or a constant
func (bb *bodyBuilder) operand(v ssa.Value) ir.Value {
	switch x := v.(type) {
	case *ssa.Const:
		return bb.constant(x)
	case *ssa.Global:
		tmp := bb.temp(bb.t.typeOf(deref(x.Type())))
		bb.b.Assign(tmp, ir.StaticRef(bb.t.global(x)))
		return tmp
	case *ssa.Function:
		return ir.NewConstant(bb.t.typeOf(x.Type()), x.String())
	case *ssa.Builtin:
		return ir.NewConstant(ir.Unknown, x.Name())
	}
	return bb.local(v)
}

func (bb *bodyBuilder) operands(vs []ssa.Value) []ir.Value {
	res := make([]ir.Value, len(vs))
	for i, v := range vs {
		res[i] = bb.operand(v)
	}
	return res
}

// base returns a local holding the value of v
func (bb *bodyBuilder) base(v ssa.Value) *ir.Local {
	op := bb.operand(v)
	if l, ok := op.(*ir.Local); ok {
		return l
	}
	tmp := bb.temp(op.Type())
	bb.b.Assign(tmp, op)
	return tmp
}

func (bb *bodyBuilder) constant(c *ssa.Const) ir.Value {
	switch {
	case c.Value == nil:
		return ir.NullConstant()
	case c.Value.Kind() == constant.String:
		return ir.StringConstant(constant.StringVal(c.Value))
	}
	return ir.NewConstant(bb.t.typeOf(c.Type()), c.Value.ExactString())
}

// addr returns the location an address points to
func (bb *bodyBuilder) addr(v ssa.Value) ir.Value {
	switch x := v.(type) {
	case *ssa.FieldAddr:
		return ir.FieldRef(bb.base(x.X), bb.t.field(x.X.Type(), x.Field))
	case *ssa.IndexAddr:
		return ir.ArrayElem(bb.base(x.X), bb.operand(x.Index))
	case *ssa.Global:
		return ir.StaticRef(bb.t.global(x))
	}
	return bb.base(v)
}

// element returns the single element standing for the contents of a channel
func (bb *bodyBuilder) element(ch ssa.Value) ir.Value {
	return ir.ArrayElem(bb.base(ch), ir.IntConstant(0))
}

func (bb *bodyBuilder) assign(v ssa.Value, right ir.Value) {
	bb.b.Assign(bb.local(v), right)
}

//gocyclo:ignore
func (bb *bodyBuilder) instruction(instr ssa.Instruction) {
	switch x := instr.(type) {
	case *ssa.DebugRef, *ssa.RunDefers:
	case *ssa.Alloc:
		if arr, ok := deref(x.Type()).Underlying().(*types.Array); ok {
			bb.assign(x, ir.NewArray(bb.t.typeOf(arr.Elem()), ir.IntConstant(int(arr.Len()))))
		} else {
			bb.assign(x, ir.NewObject(bb.t.typeOf(x.Type())))
		}
	case *ssa.Store:
		val := bb.operand(x.Val)
		bb.b.Assign(bb.addr(x.Addr), val)
	case *ssa.UnOp:
		switch x.Op {
		case token.MUL:
			bb.assign(x, bb.addr(x.X))
		case token.ARROW:
			bb.assign(x, bb.element(x.X))
		default:
			bb.assign(x, ir.NewUnop(x.Op.String(), bb.operand(x.X), bb.t.typeOf(x.Type())))
		}
	case *ssa.BinOp:
		bb.assign(x, ir.NewBinop(x.Op.String(), bb.operand(x.X), bb.operand(x.Y), bb.t.typeOf(x.Type())))
	case *ssa.Call:
		bb.call(x)
	case *ssa.Go:
		bb.call(x)
	case *ssa.Defer:
		// deferred calls are executed where they are deferred
		bb.call(x)
	case *ssa.ChangeType:
		bb.assign(x, bb.operand(x.X))
	case *ssa.Convert:
		bb.assign(x, bb.operand(x.X))
	case *ssa.ChangeInterface:
		bb.assign(x, bb.operand(x.X))
	case *ssa.MakeInterface:
		bb.assign(x, bb.operand(x.X))
	case *ssa.SliceToArrayPointer:
		bb.assign(x, bb.operand(x.X))
	case *ssa.Slice:
		bb.assign(x, bb.operand(x.X))
	case *ssa.Range:
		bb.assign(x, bb.operand(x.X))
	case *ssa.Next:
		bb.assign(x, bb.operand(x.Iter))
	case *ssa.Extract:
		bb.assign(x, bb.operand(x.Tuple))
	case *ssa.TypeAssert:
		if x.CommaOk {
			bb.assign(x, bb.operand(x.X))
		} else {
			bb.assign(x, ir.NewCast(bb.operand(x.X), bb.t.typeOf(x.AssertedType)))
		}
	case *ssa.Field:
		bb.assign(x, ir.FieldRef(bb.base(x.X), bb.t.field(x.X.Type(), x.Field)))
	case *ssa.FieldAddr:
		bb.assign(x, bb.addr(x))
	case *ssa.Index:
		bb.assign(x, ir.ArrayElem(bb.base(x.X), bb.operand(x.Index)))
	case *ssa.IndexAddr:
		bb.assign(x, bb.addr(x))
	case *ssa.Lookup:
		if b, ok := x.X.Type().Underlying().(*types.Basic); ok && b.Info()&types.IsString != 0 {
			bb.assign(x, bb.operand(x.X))
		} else {
			bb.assign(x, ir.ArrayElem(bb.base(x.X), bb.operand(x.Index)))
		}
	case *ssa.MapUpdate:
		val := bb.operand(x.Value)
		bb.b.Assign(ir.ArrayElem(bb.base(x.Map), bb.operand(x.Key)), val)
	case *ssa.Send:
		val := bb.operand(x.X)
		bb.b.Assign(bb.element(x.Chan), val)
	case *ssa.MakeMap:
		bb.assign(x, ir.NewObject(bb.t.typeOf(x.Type())))
	case *ssa.MakeChan:
		bb.assign(x, ir.NewObject(bb.t.typeOf(x.Type())))
	case *ssa.MakeSlice:
		elem := x.Type().Underlying().(*types.Slice).Elem()
		bb.assign(x, ir.NewArray(bb.t.typeOf(elem), bb.operand(x.Len)))
	case *ssa.MakeClosure:
		bb.makeClosure(x)
	case *ssa.Phi:
		bb.assign(x, ir.NewPhi(bb.t.typeOf(x.Type()), bb.operands(x.Edges)...))
	case *ssa.Select:
		bb.selectRecv(x)
	case *ssa.If:
		s := bb.b.If(bb.operand(x.Cond), nil)
		g := bb.b.Goto(nil)
		succs := x.Block().Succs
		bb.jumps = append(bb.jumps, jump{stmt: s, block: succs[0].Index}, jump{stmt: g, block: succs[1].Index})
	case *ssa.Jump:
		g := bb.b.Goto(nil)
		bb.jumps = append(bb.jumps, jump{stmt: g, block: x.Block().Succs[0].Index})
	case *ssa.Return:
		bb.ret(x)
	case *ssa.Panic:
		bb.b.Throw(bb.operand(x.X))
	default:
		bb.t.logger.Debugf("Unsupported instruction %T in %s", instr, bb.fn)
		if v, ok := instr.(ssa.Value); ok {
			bb.assign(v, ir.NewConstant(ir.Unknown, "?"))
		}
	}
}

func (bb *bodyBuilder) ret(x *ssa.Return) {
	switch len(x.Results) {
	case 0:
		bb.b.ReturnVoid()
	case 1:
		bb.b.Return(bb.operand(x.Results[0]))
	default:
		tuple := bb.temp(bb.t.resultType(bb.fn.Signature.Results()))
		bb.b.Assign(tuple, ir.NewPhi(tuple.Type(), bb.operands(x.Results)...))
		bb.b.Return(tuple)
	}
}

// makeClosure allocates the closure object and stores the bindings in its fields
func (bb *bodyBuilder) makeClosure(x *ssa.MakeClosure) {
	fn, ok := x.Fn.(*ssa.Function)
	if !ok {
		bb.assign(x, ir.NewObject(bb.t.typeOf(x.Type())))
		return
	}
	c := bb.t.closureClass(fn)
	l := bb.local(x)
	bb.b.Assign(l, ir.NewObject(c.Type()))
	for i, binding := range x.Bindings {
		val := bb.operand(binding)
		bb.b.Assign(ir.FieldRef(l, c.Field(fn.FreeVars[i].Name())), val)
	}
}

// selectRecv merges the elements of the channels a select may receive from
func (bb *bodyBuilder) selectRecv(x *ssa.Select) {
	var received []ir.Value
	for _, st := range x.States {
		if st.Dir != types.RecvOnly {
			continue
		}
		tmp := bb.temp(ir.Unknown)
		bb.b.Assign(tmp, bb.element(st.Chan))
		received = append(received, tmp)
	}
	if len(received) == 0 {
		bb.assign(x, ir.IntConstant(0))
		return
	}
	bb.assign(x, ir.NewPhi(bb.t.typeOf(x.Type()), received...))
}

// call lowers a call, a go or a defer instruction
func (bb *bodyBuilder) call(instr ssa.CallInstruction) {
	c := instr.Common()
	var ie *ir.InvokeExpr
	dynamic := false
	switch fv := c.Value.(type) {
	case *ssa.Builtin:
		bb.builtin(fv, c.Args, instr.Value())
		return
	case *ssa.Function:
		if !c.IsInvoke() {
			ie = bb.staticCall(fv, c.Args)
		}
	case *ssa.MakeClosure:
		if fn, ok := fv.Fn.(*ssa.Function); ok && !c.IsInvoke() {
			ie = ir.NewSpecialInvoke(bb.base(fv), bb.t.method(fn), bb.operands(c.Args)...)
		}
	}
	switch {
	case ie != nil:
	case c.IsInvoke():
		m := bb.t.interfaceMethod(c.Value.Type(), c.Method)
		ie = ir.NewInterfaceInvoke(bb.base(c.Value), m, bb.operands(c.Args)...)
	default:
		ie = ir.NewInterfaceInvoke(bb.base(c.Value), bb.t.dynamicMethod(c.Signature()), bb.operands(c.Args)...)
		dynamic = true
	}

	var s ir.Stmt
	if v := instr.Value(); v != nil && ie.Method.ReturnType != ir.Void {
		s = bb.b.Assign(bb.local(v), ie)
	} else {
		s = bb.b.Invoke(ie)
	}
	if dynamic {
		bb.t.dynamic[s] = instr
	}
}

func (bb *bodyBuilder) staticCall(fn *ssa.Function, args []ssa.Value) *ir.InvokeExpr {
	m := bb.t.method(fn)
	if m.Static {
		return ir.NewStaticInvoke(m, bb.operands(args)...)
	}
	if len(fn.FreeVars) > 0 {
		// a closure called without its bindings, e.g. a bound method wrapper
		return nil
	}
	if len(args) == 0 {
		return nil
	}
	return ir.NewSpecialInvoke(bb.base(args[0]), m, bb.operands(args[1:])...)
}

// builtin lowers the calls of built-in functions that move data
func (bb *bodyBuilder) builtin(fn *ssa.Builtin, args []ssa.Value, v *ssa.Call) {
	switch fn.Name() {
	case "len", "cap":
		if v != nil && len(args) == 1 {
			bb.assign(v, ir.Length(bb.operand(args[0])))
		}
	case "append":
		if v != nil {
			bb.assign(v, ir.NewPhi(bb.t.typeOf(v.Type()), bb.operands(args)...))
		}
	case "copy":
		if len(args) == 2 {
			src := bb.operand(args[1])
			bb.b.Assign(ir.ArrayElem(bb.base(args[0]), ir.IntConstant(0)), src)
		}
	case "recover":
		if v != nil {
			bb.assign(v, ir.NullConstant())
		}
	default:
		if v != nil {
			bb.assign(v, ir.NewConstant(bb.t.typeOf(v.Type()), fn.Name()))
		}
	}
}
