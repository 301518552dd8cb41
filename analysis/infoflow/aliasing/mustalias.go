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

package aliasing

import (
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/internal/funcutil"
)

// valueNumber identifies the object held by a local. Numbers are named after the place they are created at, so
// that the fixed point computation is deterministic:
//   - {nil, l} is the initial value of l on method entry
//   - {s, nil} is the value defined by the statement s
//   - {s, l} is the merge of different values of l at the join point s
type valueNumber struct {
	stmt  ir.Stmt
	local *ir.Local
}

type numbering map[*ir.Local]valueNumber

func (n numbering) get(l *ir.Local) valueNumber {
	if v, ok := n[l]; ok {
		return v
	}
	return valueNumber{local: l}
}

// LocalMustAlias is an intraprocedural must-alias analysis of locals. Two locals must alias before a statement
// when they hold the same value number on every path reaching the statement. Results are computed once per
// method and cached.
type LocalMustAlias struct {
	methods funcutil.SyncMap[*ir.Method, []numbering]
}

// NewLocalMustAlias returns an analysis with an empty cache
func NewLocalMustAlias() *LocalMustAlias {
	return &LocalMustAlias{}
}

// MustAlias returns true if l1 and l2 point to the same object before stmt
func (a *LocalMustAlias) MustAlias(l1, l2 *ir.Local, stmt ir.Stmt) bool {
	if l1 == l2 {
		return true
	}
	m := stmt.Method()
	if m == nil || !m.HasBody() {
		return false
	}
	in := a.methods.PutIfAbsentElseGet(m, func() []numbering { return computeNumbering(m.Body()) })
	if stmt.Index() >= len(in) || in[stmt.Index()] == nil {
		return false
	}
	n := in[stmt.Index()]
	return n.get(l1) == n.get(l2)
}

// Clear drops the cached results
func (a *LocalMustAlias) Clear() {
	a.methods.Clear()
}

// computeNumbering returns the value numbers of the locals before each statement of the body. Unreachable
// statements have a nil numbering.
func computeNumbering(body *ir.Body) []numbering {
	in := make([]numbering, len(body.Stmts))
	out := make([]numbering, len(body.Stmts))
	work := append([]ir.Stmt(nil), body.Heads()...)
	queued := map[ir.Stmt]bool{}
	for _, s := range work {
		queued[s] = true
	}
	for len(work) > 0 {
		s := work[0]
		work = work[1:]
		queued[s] = false

		before := mergeNumberings(s, body, out)
		in[s.Index()] = before
		after := transfer(s, before)
		if old := out[s.Index()]; old != nil && equalNumberings(old, after) {
			continue
		}
		out[s.Index()] = after
		for _, succ := range body.Succs(s) {
			if !queued[succ] {
				queued[succ] = true
				work = append(work, succ)
			}
		}
	}
	return in
}

// mergeNumberings returns the numbering before s from the numberings after its visited predecessors. A local
// with different numbers on different paths gets the merge number of s.
func mergeNumberings(s ir.Stmt, body *ir.Body, out []numbering) numbering {
	var inputs []numbering
	for _, h := range body.Heads() {
		if h == s {
			inputs = append(inputs, numbering{})
		}
	}
	for _, p := range body.Preds(s) {
		if n := out[p.Index()]; n != nil {
			inputs = append(inputs, n)
		}
	}
	res := numbering{}
	if len(inputs) == 0 {
		return res
	}
	for _, n := range inputs {
		for l := range n {
			if _, done := res[l]; done {
				continue
			}
			v := inputs[0].get(l)
			for _, other := range inputs[1:] {
				if other.get(l) != v {
					v = valueNumber{stmt: s, local: l}
					break
				}
			}
			res[l] = v
		}
	}
	return res
}

func equalNumberings(a, b numbering) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || v != w {
			return false
		}
	}
	return true
}

// transfer applies the effect of s on the numbering
func transfer(s ir.Stmt, before numbering) numbering {
	after := make(numbering, len(before)+1)
	for k, v := range before {
		after[k] = v
	}
	switch x := s.(type) {
	case *ir.AssignStmt:
		l, ok := x.Left.(*ir.Local)
		if !ok {
			return after
		}
		switch r := x.Right.(type) {
		case *ir.Local:
			after[l] = before.get(r)
		case *ir.CastExpr:
			if rl, ok := r.Op.(*ir.Local); ok {
				after[l] = before.get(rl)
			} else {
				after[l] = valueNumber{stmt: s}
			}
		default:
			after[l] = valueNumber{stmt: s}
		}
	case *ir.IdentityStmt:
		after[x.Left] = valueNumber{stmt: s}
	}
	return after
}
