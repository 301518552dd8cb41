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

// Package pointsto implements a flow-insensitive, field-sensitive inclusion-based (Andersen) points-to analysis
// over the ir. Abstract objects are allocation sites; library calls without bodies allocate their result at the
// call site, and the parameters of methods without callers point to synthetic entry objects.
package pointsto

import (
	"fmt"
	"time"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/icfg"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"golang.org/x/tools/container/intsets"
)

// Object is an abstract heap object
type Object struct {
	id int
	// Site is the statement allocating the object, nil for synthetic objects
	Site ir.Stmt
	// Type is the type of the allocated object
	Type *ir.Type
	// Label describes synthetic objects
	Label string
}

// ID returns the index of the object in the analysis result
func (o *Object) ID() int { return o.id }

func (o *Object) String() string {
	if o.Site != nil {
		return fmt.Sprintf("o%d(%s@%s)", o.id, o.Type, o.Site)
	}
	return fmt.Sprintf("o%d(%s)", o.id, o.Label)
}

type node struct {
	pts     intsets.Sparse
	prevPts intsets.Sparse
	copyTo  intsets.Sparse
	complex []constraint
}

type fieldKey struct {
	obj   int
	field *ir.Field
}

// analysis holds the state of the constraint generation and solving
type analysis struct {
	program *ir.Program
	cg      *icfg.CallGraph
	logger  *config.LogGroup

	nodes   []*node
	objects []*Object
	work    intsets.Sparse

	locals    map[*ir.Local]NodeID
	statics   map[*ir.Field]NodeID
	returns   map[*ir.Method]NodeID
	fields    map[fieldKey]NodeID
	exception NodeID

	constraints int
}

func (a *analysis) newNode() NodeID {
	a.nodes = append(a.nodes, &node{})
	return NodeID(len(a.nodes) - 1)
}

func (a *analysis) newObject(site ir.Stmt, t *ir.Type, label string) int {
	o := &Object{id: len(a.objects), Site: site, Type: t, Label: label}
	a.objects = append(a.objects, o)
	return o.id
}

func (a *analysis) localNode(l *ir.Local) NodeID {
	if id, ok := a.locals[l]; ok {
		return id
	}
	id := a.newNode()
	a.locals[l] = id
	return id
}

func (a *analysis) staticNode(f *ir.Field) NodeID {
	if id, ok := a.statics[f]; ok {
		return id
	}
	id := a.newNode()
	a.statics[f] = id
	return id
}

func (a *analysis) returnNode(m *ir.Method) NodeID {
	if id, ok := a.returns[m]; ok {
		return id
	}
	id := a.newNode()
	a.returns[m] = id
	return id
}

// fieldNode returns the node of the field of the object; a nil field stands for the elements of an array
func (a *analysis) fieldNode(obj int, f *ir.Field) NodeID {
	k := fieldKey{obj: obj, field: f}
	if id, ok := a.fields[k]; ok {
		return id
	}
	id := a.newNode()
	a.fields[k] = id
	return id
}

// Result is the solution of the points-to analysis
type Result struct {
	a *analysis
}

// Analyze computes the points-to sets of the program. The call graph is computed with CHA when cg is nil.
func Analyze(p *ir.Program, cg *icfg.CallGraph, logger *config.LogGroup) *Result {
	if cg == nil {
		cg = icfg.BuildCHA(p)
	}
	if logger == nil {
		logger = config.NewNopLogGroup()
	}
	a := &analysis{
		program: p,
		cg:      cg,
		logger:  logger,
		locals:  map[*ir.Local]NodeID{},
		statics: map[*ir.Field]NodeID{},
		returns: map[*ir.Method]NodeID{},
		fields:  map[fieldKey]NodeID{},
	}
	start := time.Now()
	a.exception = a.newNode()
	a.generate()
	a.solve()
	logger.Debugf("Points-to analysis: %d nodes, %d objects, %d constraints in %s", len(a.nodes),
		len(a.objects), a.constraints, time.Since(start))
	return &Result{a: a}
}

func (r *Result) objectsOf(s *intsets.Sparse) []*Object {
	ids := s.AppendTo(nil)
	res := make([]*Object, len(ids))
	for i, id := range ids {
		res[i] = r.a.objects[id]
	}
	return res
}

// Objects returns all the abstract objects of the program
func (r *Result) Objects() []*Object { return r.a.objects }

// PointsTo returns the objects the local may point to
func (r *Result) PointsTo(l *ir.Local) []*Object {
	id, ok := r.a.locals[l]
	if !ok {
		return nil
	}
	return r.objectsOf(&r.a.nodes[id].pts)
}

// StaticPointsTo returns the objects the static field may point to
func (r *Result) StaticPointsTo(f *ir.Field) []*Object {
	id, ok := r.a.statics[f]
	if !ok {
		return nil
	}
	return r.objectsOf(&r.a.nodes[id].pts)
}

// FieldPointsTo returns the objects the field of o may point to. A nil field stands for the array elements.
func (r *Result) FieldPointsTo(o *Object, f *ir.Field) []*Object {
	id, ok := r.a.fields[fieldKey{obj: o.id, field: f}]
	if !ok {
		return nil
	}
	return r.objectsOf(&r.a.nodes[id].pts)
}

// pathSet returns the set of objects designated by base.f1...fn, or by the static field f1 followed by
// f2...fn when base is nil
func (r *Result) pathSet(base *ir.Local, fields []*ir.Field) *intsets.Sparse {
	cur := &intsets.Sparse{}
	switch {
	case base != nil:
		if id, ok := r.a.locals[base]; ok {
			cur.Copy(&r.a.nodes[id].pts)
		}
	case len(fields) > 0 && fields[0] != nil && fields[0].Static:
		if id, ok := r.a.statics[fields[0]]; ok {
			cur.Copy(&r.a.nodes[id].pts)
		}
		fields = fields[1:]
	default:
		return cur
	}
	for _, f := range fields {
		next := &intsets.Sparse{}
		for _, o := range cur.AppendTo(nil) {
			if id, ok := r.a.fields[fieldKey{obj: o, field: f}]; ok {
				next.UnionWith(&r.a.nodes[id].pts)
			}
		}
		cur = next
		if cur.IsEmpty() {
			break
		}
	}
	return cur
}

// PointsToPath returns the objects base.f1...fn may point to. If base is nil, the first field must be static.
func (r *Result) PointsToPath(base *ir.Local, fields []*ir.Field) []*Object {
	return r.objectsOf(r.pathSet(base, fields))
}

// MayAlias returns true if the two locals may point to the same object
func (r *Result) MayAlias(l1, l2 *ir.Local) bool {
	if l1 == l2 {
		return true
	}
	return r.MayAliasPaths(l1, nil, l2, nil)
}

// MayAliasPaths returns true if the two access paths may designate the same object
func (r *Result) MayAliasPaths(b1 *ir.Local, f1 []*ir.Field, b2 *ir.Local, f2 []*ir.Field) bool {
	return r.pathSet(b1, f1).Intersects(r.pathSet(b2, f2))
}

// valueSet returns the objects designated by a local, a field reference, or the array of an array reference
func (r *Result) valueSet(v ir.Value) *intsets.Sparse {
	switch x := v.(type) {
	case *ir.Local:
		return r.pathSet(x, nil)
	case *ir.InstanceFieldRef:
		return r.pathSet(x.Base, []*ir.Field{x.Field})
	case *ir.StaticFieldRef:
		return r.pathSet(nil, []*ir.Field{x.Field})
	case *ir.ArrayRef:
		return r.pathSet(x.Base, nil)
	case *ir.CastExpr:
		return r.valueSet(x.Op)
	}
	return &intsets.Sparse{}
}

// PointsToValue returns the objects a local or a field reference may point to. For an array reference, these are
// the objects of the array itself.
func (r *Result) PointsToValue(v ir.Value) []*Object {
	return r.objectsOf(r.valueSet(v))
}

// MayAliasValues returns true if the two values may designate the same object
func (r *Result) MayAliasValues(v1, v2 ir.Value) bool {
	return r.valueSet(v1).Intersects(r.valueSet(v2))
}
