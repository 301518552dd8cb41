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

package icfg

import (
	"sync"

	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// UnitContainer is either a statement or, when Stmt is nil, the exit of Method.
type UnitContainer struct {
	Stmt   ir.Stmt
	Method *ir.Method
}

// IsMethodExit returns true if the container stands for the exit of the method
func (u UnitContainer) IsMethodExit() bool { return u.Stmt == nil }

func (u UnitContainer) String() string {
	if u.Stmt != nil {
		return u.Stmt.String()
	}
	if u.Method != nil {
		return "exit of " + u.Method.Signature()
	}
	return "<none>"
}

// postdominators computes the immediate postdominator of each statement of body with the iterative algorithm of
// Cooper, Harvey and Kennedy on the reversed control flow graph. A -1 entry stands for the virtual exit node,
// -2 for statements from which the exit is unreachable.
func postdominators(body *ir.Body) []int {
	n := len(body.Stmts)
	exit := n
	// predecessors in the reversed graph are the forward successors, plus the exit for tails
	revPreds := func(i int) []int {
		s := body.Stmts[i]
		var res []int
		for _, succ := range body.Succs(s) {
			res = append(res, succ.Index())
		}
		if body.IsTail(s) {
			res = append(res, exit)
		}
		return res
	}
	// postorder of the reversed graph from the exit
	order := make([]int, n+1)
	for i := range order {
		order[i] = -1
	}
	var post []int
	visited := make([]bool, n+1)
	var dfs func(v int)
	dfs = func(v int) {
		visited[v] = true
		var next []int
		if v == exit {
			for _, t := range body.Tails() {
				next = append(next, t.Index())
			}
		} else {
			for _, p := range body.Preds(body.Stmts[v]) {
				next = append(next, p.Index())
			}
		}
		for _, w := range next {
			if !visited[w] {
				dfs(w)
			}
		}
		order[v] = len(post)
		post = append(post, v)
	}
	dfs(exit)

	idom := make([]int, n+1)
	for i := range idom {
		idom[i] = -1
	}
	idom[exit] = exit
	intersect := func(a, b int) int {
		for a != b {
			for order[a] < order[b] {
				a = idom[a]
			}
			for order[b] < order[a] {
				b = idom[b]
			}
		}
		return a
	}
	for changed := true; changed; {
		changed = false
		for i := len(post) - 1; i >= 0; i-- {
			v := post[i]
			if v == exit {
				continue
			}
			newIdom := -1
			for _, p := range revPreds(v) {
				if idom[p] == -1 {
					continue
				}
				if newIdom == -1 {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}
			if newIdom != -1 && idom[v] != newIdom {
				idom[v] = newIdom
				changed = true
			}
		}
	}
	res := make([]int, n)
	for i := 0; i < n; i++ {
		switch {
		case !visited[i] || idom[i] == -1:
			res[i] = -2
		case idom[i] == exit:
			res[i] = -1
		default:
			res[i] = idom[i]
		}
	}
	return res
}

type postdomCache struct {
	m sync.Map // *ir.Method -> []int
}

func (c *postdomCache) of(s ir.Stmt) UnitContainer {
	m := s.Method()
	if m == nil || !m.HasBody() {
		return UnitContainer{}
	}
	v, ok := c.m.Load(m)
	if !ok {
		v, _ = c.m.LoadOrStore(m, postdominators(m.Body()))
	}
	ipdom := v.([]int)[s.Index()]
	if ipdom < 0 {
		return UnitContainer{Method: m}
	}
	return UnitContainer{Stmt: m.Body().Stmts[ipdom], Method: m}
}
