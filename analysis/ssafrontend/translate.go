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
	"go/token"
	"go/types"
	"sort"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/analysis/summaries"
	"github.com/awslabs/ar-go-ifds/internal/analysisutil"
	"golang.org/x/tools/go/callgraph/cha"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// syntheticClass holds the functions that belong to no package
const syntheticClass = "synthetic"

// dynamicCallMethod is the name of the method invoked on function values
const dynamicCallMethod = "call"

// Stats are the statistics of a translation
type Stats struct {
	Functions    int
	Bodies       int
	Classes      int
	DynamicCalls int
}

// Translation is the program translated from an SSA program
type Translation struct {
	Program *ir.Program
	Stats   Stats

	prog    *ssa.Program
	methods map[*ssa.Function]*ir.Method
	// functions maps the methods with a body to their function
	functions map[*ir.Method]*ssa.Function
	// dynamic are the calls of function values, resolved with the SSA call graph
	dynamic map[ir.Stmt]ssa.CallInstruction
}

// MethodOf returns the method translated from fn, nil if fn was not translated
func (tr *Translation) MethodOf(fn *ssa.Function) *ir.Method { return tr.methods[fn] }

// Position returns the source position of the statement. Only the file and the line are set, the position is
// invalid if the statement does not come from a function with a body.
func (tr *Translation) Position(s ir.Stmt) token.Position {
	fn, ok := tr.functions[s.Method()]
	if !ok {
		return token.Position{}
	}
	return token.Position{Filename: tr.prog.Fset.Position(fn.Pos()).Filename, Line: s.Line()}
}

// CallGraph returns the call graph of the translated program. Method calls are resolved with class hierarchy
// analysis on the translated program, calls of function values with class hierarchy analysis on the SSA program.
func (tr *Translation) CallGraph() *icfg.CallGraph {
	cg := icfg.BuildCHA(tr.Program)
	if len(tr.dynamic) == 0 {
		return cg
	}
	g := cha.CallGraph(tr.prog)
	for s, site := range tr.dynamic {
		node := g.Nodes[site.Parent()]
		if node == nil {
			continue
		}
		var callees []*ir.Method
		for _, e := range node.Out {
			if e.Site != site {
				continue
			}
			if m := tr.methods[e.Callee.Func]; m != nil && m.ParamCount() == s.InvokeExpr().Method.ParamCount() {
				callees = append(callees, m)
			}
		}
		if len(callees) > 0 {
			cg.SetCallees(s, callees)
		}
	}
	return cg
}

type translator struct {
	*Translation
	logger  *config.LogGroup
	exclude []string

	globals map[*ssa.Global]*ir.Field
	// interfaces and concrete are the named types, in the order they are declared
	interfaces []declaredType
	concrete   []declaredType
}

type declaredType struct {
	class *ir.Class
	typ   types.Type
}

// Translate translates all the functions of the SSA program. Functions of the standard library and functions in the
// excluded files are only declared. The excluded paths must be absolute.
func Translate(prog *ssa.Program, logger *config.LogGroup, exclude []string) *Translation {
	if logger == nil {
		logger = config.NewNopLogGroup()
	}
	t := &translator{
		Translation: &Translation{
			Program:   ir.NewProgram(),
			prog:      prog,
			methods:   map[*ssa.Function]*ir.Method{},
			functions: map[*ir.Method]*ssa.Function{},
			dynamic:   map[ir.Stmt]ssa.CallInstruction{},
		},
		logger:  logger,
		exclude: exclude,
		globals: map[*ssa.Global]*ir.Field{},
	}

	var fns []*ssa.Function
	for fn := range ssautil.AllFunctions(prog) {
		fns = append(fns, fn)
	}
	// declared functions come before the synthetic wrappers that may share their method
	sort.Slice(fns, func(i, j int) bool {
		si, sj := fns[i].Synthetic != "", fns[j].Synthetic != ""
		if si != sj {
			return sj
		}
		return fns[i].String() < fns[j].String()
	})
	for _, fn := range fns {
		t.method(fn)
	}
	for _, fn := range fns {
		m := t.methods[fn]
		if len(fn.Blocks) == 0 || t.isLibrary(fn) || m.HasBody() {
			continue
		}
		if len(t.exclude) > 0 && analysisutil.IsExcluded(prog.Fset.Position(fn.Pos()).Filename, t.exclude) {
			t.logger.Debugf("Excluded %s", fn)
			continue
		}
		newBodyBuilder(t, fn, m).build()
		t.functions[m] = fn
		t.Stats.Bodies++
	}
	t.linkInterfaces()
	t.Stats.Functions = len(fns)
	t.Stats.Classes = len(t.Program.Classes())
	t.Stats.DynamicCalls = len(t.dynamic)
	return t.Translation
}

func (t *translator) isLibrary(fn *ssa.Function) bool {
	path := pkgPath(fn)
	return path != "" && summaries.IsStdPackageName(path) && !summaries.IsSummaryRequired(fn.String())
}

// linkInterfaces records the interfaces implemented by each named type
func (t *translator) linkInterfaces() {
	for _, itf := range t.interfaces {
		it, ok := itf.typ.Underlying().(*types.Interface)
		if !ok || it.Empty() {
			continue
		}
		for _, c := range t.concrete {
			if types.Implements(c.typ, it) || types.Implements(types.NewPointer(c.typ), it) {
				t.Program.Implement(c.class, itf.class)
			}
		}
	}
}

// method returns the method of fn, declaring it the first time. Functions with free variables are methods of their
// closure class, whose fields hold the free variables.
func (t *translator) method(fn *ssa.Function) *ir.Method {
	if m, ok := t.methods[fn]; ok {
		return m
	}
	var c *ir.Class
	static := true
	sig := fn.Signature
	switch {
	case len(fn.FreeVars) > 0:
		c = t.closureClass(fn)
		static = false
	case sig.Recv() != nil:
		c = t.classOf(sig.Recv().Type())
		static = false
	default:
		c = t.packageClass(pkgPath(fn))
	}
	m := c.MethodByName(fn.Name())
	if m == nil {
		m = c.AddMethod(fn.Name(), t.paramTypes(sig), t.resultType(sig.Results()), static)
	}
	t.methods[fn] = m
	return m
}

// closureClass returns the class of the closures of fn, with a field for each free variable
func (t *translator) closureClass(fn *ssa.Function) *ir.Class {
	path := pkgPath(fn)
	name := fn.Name()
	if path != "" {
		name = path + "." + name
	}
	c := t.Program.Class(name)
	if c != nil {
		return c
	}
	c = t.Program.AddClass(name, nil)
	if path != "" {
		c.PackagePath = path
		c.Library = summaries.IsStdPackageName(path)
	}
	for _, fv := range fn.FreeVars {
		c.AddField(fv.Name(), t.typeOf(fv.Type()), false)
	}
	return c
}

// interfaceMethod returns the method of the interface type recv called by an invoke-mode call
func (t *translator) interfaceMethod(recv types.Type, fn *types.Func) *ir.Method {
	c := t.classOf(recv)
	if m := c.MethodByName(fn.Name()); m != nil {
		return m
	}
	sig := fn.Type().(*types.Signature)
	return c.AddMethod(fn.Name(), t.paramTypes(sig), t.resultType(sig.Results()), false)
}

// dynamicMethod returns the method standing for the calls of function values of type sig
func (t *translator) dynamicMethod(sig *types.Signature) *ir.Method {
	name := types.TypeString(sig, nil)
	c := t.Program.Class(name)
	if c == nil {
		c = t.Program.AddInterface(name)
		c.Library = true
	}
	if m := c.MethodByName(dynamicCallMethod); m != nil {
		return m
	}
	return c.AddMethod(dynamicCallMethod, t.paramTypes(sig), t.resultType(sig.Results()), false)
}

func (t *translator) paramTypes(sig *types.Signature) []*ir.Type {
	params := make([]*ir.Type, sig.Params().Len())
	for i := range params {
		params[i] = t.typeOf(sig.Params().At(i).Type())
	}
	return params
}

// resultType returns the type of the results. Multiple results are a single tuple value.
func (t *translator) resultType(results *types.Tuple) *ir.Type {
	switch results.Len() {
	case 0:
		return ir.Void
	case 1:
		return t.typeOf(results.At(0).Type())
	}
	return ir.RefType(types.TypeString(results, nil))
}

// packageClass returns the class holding the functions and globals of the package
func (t *translator) packageClass(path string) *ir.Class {
	if path == "" {
		path = syntheticClass
	}
	if c := t.Program.Class(path); c != nil {
		return c
	}
	c := t.Program.AddClass(path, nil)
	c.PackagePath = path
	c.Library = summaries.IsStdPackageName(path)
	return c
}

// classOf returns the class of the type, dereferencing pointers
func (t *translator) classOf(typ types.Type) *ir.Class {
	typ = deref(typ)
	name := types.TypeString(typ, nil)
	if c := t.Program.Class(name); c != nil {
		return c
	}
	path := ""
	if named, ok := typ.(*types.Named); ok && named.Obj().Pkg() != nil {
		path = named.Obj().Pkg().Path()
	}
	var c *ir.Class
	if _, ok := typ.Underlying().(*types.Interface); ok {
		c = t.Program.AddInterface(name)
		t.interfaces = append(t.interfaces, declaredType{class: c, typ: typ})
	} else {
		c = t.Program.AddClass(name, nil)
		if named, ok := typ.(*types.Named); ok && !isGeneric(named) {
			t.concrete = append(t.concrete, declaredType{class: c, typ: typ})
		}
	}
	if path != "" {
		c.PackagePath = path
		c.Library = summaries.IsStdPackageName(path)
	}
	return c
}

// field returns the i-th field of the struct typ points to
func (t *translator) field(typ types.Type, i int) *ir.Field {
	typ = deref(typ)
	c := t.classOf(typ)
	st, ok := typ.Underlying().(*types.Struct)
	if !ok || i >= st.NumFields() {
		return c.AddField("?", ir.Unknown, false)
	}
	v := st.Field(i)
	if f := c.Field(v.Name()); f != nil {
		return f
	}
	return c.AddField(v.Name(), t.typeOf(v.Type()), false)
}

// global returns the static field of the global
func (t *translator) global(g *ssa.Global) *ir.Field {
	if f, ok := t.globals[g]; ok {
		return f
	}
	path := ""
	if g.Pkg != nil {
		path = g.Pkg.Pkg.Path()
	}
	c := t.packageClass(path)
	f := c.Field(g.Name())
	if f == nil {
		f = c.AddField(g.Name(), t.typeOf(deref(g.Type())), true)
	}
	t.globals[g] = f
	return f
}

// typeOf translates a Go type. Named types with a struct or interface underlying type are classes, other named
// types are their underlying type. Slices and arrays are arrays.
func (t *translator) typeOf(typ types.Type) *ir.Type {
	switch x := typ.(type) {
	case *types.Basic:
		return basicType(x)
	case *types.Pointer:
		switch deref(x).Underlying().(type) {
		case *types.Struct, *types.Interface:
			return t.typeOf(x.Elem())
		}
		return ir.RefType(types.TypeString(x, nil))
	case *types.Named:
		switch x.Underlying().(type) {
		case *types.Struct, *types.Interface:
			return t.classOf(x).Type()
		}
		return t.typeOf(x.Underlying())
	case *types.Slice:
		return ir.ArrayOf(t.typeOf(x.Elem()))
	case *types.Array:
		return ir.ArrayOf(t.typeOf(x.Elem()))
	case *types.Interface:
		if x.Empty() {
			return ir.Object
		}
		return t.classOf(x).Type()
	case *types.Struct:
		return t.classOf(x).Type()
	case *types.TypeParam:
		return ir.Object
	}
	return ir.RefType(types.TypeString(typ, nil))
}

func basicType(b *types.Basic) *ir.Type {
	info := b.Info()
	switch {
	case info&types.IsString != 0:
		return ir.String
	case info&types.IsBoolean != 0:
		return ir.Bool
	case b.Kind() == types.Uint8:
		return ir.Byte
	case info&types.IsInteger != 0:
		return ir.Int
	case info&types.IsFloat != 0:
		return ir.Float
	case b.Kind() == types.UntypedNil:
		return ir.Null
	case b.Kind() == types.UnsafePointer:
		return ir.Object
	}
	return ir.PrimType(b.Name())
}

// isGeneric returns true for generic types that are not instantiated
func isGeneric(n *types.Named) bool {
	return n.TypeParams().Len() > 0 && n.TypeArgs().Len() == 0
}

func deref(typ types.Type) types.Type {
	if p, ok := typ.Underlying().(*types.Pointer); ok {
		return p.Elem()
	}
	return typ
}

// pkgPath returns the path of the package of fn, or of the object it wraps for synthetic functions
func pkgPath(fn *ssa.Function) string {
	if fn.Pkg != nil {
		return fn.Pkg.Pkg.Path()
	}
	if obj := fn.Object(); obj != nil && obj.Pkg() != nil {
		return obj.Pkg().Path()
	}
	return ""
}
