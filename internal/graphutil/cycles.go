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


package graphutil

import (
	"sort"

	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/yourbasic/graph"
)

// FindAllElementaryCycles returns the elementary cycles of the graph, with Johnson's algorithm from
// "Finding All the Elementary Circuits of a Directed Graph" (1975).
// Each cycle lists the node ids on the cycle, starting and ending with the same node.
func FindAllElementaryCycles(cg *CGraph) [][]int64 {
	j := &johnson{g: cg}
	for start := 0; start < cg.Order(); {
		least, component := leastComponent(cg, start)
		if least < 0 {
			break
		}
		j.component = component
		j.blocked = map[int64]bool{}
		j.blist = map[int64]map[int64]bool{}
		j.stack = j.stack[:0]
		j.circuit(least, least)
		start = int(least) + 1
	}
	return j.cycles
}

// leastComponent returns the least node of the cyclic strongly connected components of the subgraph induced by the
// nodes from start on, with the nodes of its component. It returns -1 when that subgraph has no cycle.
func leastComponent(cg *CGraph, start int) (int64, map[int64]bool) {
	var best []int
	least := -1
	for _, scc := range graph.StrongComponents(inducedFrom{cg, start}) {
		sort.Ints(scc)
		if scc[0] < start || (len(scc) == 1 && !cg.HasEdgeFromTo(int64(scc[0]), int64(scc[0]))) {
			continue
		}
		if least < 0 || scc[0] < least {
			least = scc[0]
			best = scc
		}
	}
	if least < 0 {
		return -1, nil
	}
	component := make(map[int64]bool, len(best))
	for _, v := range best {
		component[int64(v)] = true
	}
	return int64(least), component
}

// inducedFrom is the subgraph induced by the nodes from min on. The other nodes are isolated.
type inducedFrom struct {
	g   *CGraph
	min int
}

func (s inducedFrom) Order() int { return s.g.Order() }

func (s inducedFrom) Visit(v int, do func(w int, c int64) (skip bool)) (aborted bool) {
	if v < s.min {
		return false
	}
	return s.g.Visit(v, func(w int, c int64) bool { return w >= s.min && do(w, c) })
}

type johnson struct {
	g         *CGraph
	component map[int64]bool
	blocked   map[int64]bool
	blist     map[int64]map[int64]bool
	stack     []int64
	cycles    [][]int64
}

func (j *johnson) unblock(u int64) {
	j.blocked[u] = false
	for w := range j.blist[u] {
		delete(j.blist[u], w)
		if j.blocked[w] {
			j.unblock(w)
		}
	}
}

func (j *johnson) circuit(v, s int64) bool {
	found := false
	j.stack = append(j.stack, v)
	j.blocked[v] = true
	for _, w := range j.g.succs[v] {
		if !j.component[w] {
			continue
		}
		if w == s {
			cycle := append(append([]int64{}, j.stack...), s)
			j.cycles = append(j.cycles, cycle)
			found = true
		} else if !j.blocked[w] && j.circuit(w, s) {
			found = true
		}
	}
	if found {
		j.unblock(v)
	} else {
		for _, w := range j.g.succs[v] {
			if !j.component[w] {
				continue
			}
			if j.blist[w] == nil {
				j.blist[w] = map[int64]bool{}
			}
			j.blist[w][v] = true
		}
	}
	j.stack = j.stack[:len(j.stack)-1]
	return found
}

// MethodCycles returns the elementary cycles of the call graph as lists of methods, i.e. the recursions of the
// program. The cycles are sorted by length and then by the signature of their first method.
func MethodCycles(cg *CGraph) [][]*ir.Method {
	cycles := FindAllElementaryCycles(cg)
	res := make([][]*ir.Method, len(cycles))
	for i, cycle := range cycles {
		for _, id := range cycle[:len(cycle)-1] {
			res[i] = append(res[i], cg.nodes[id].Method)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if len(res[i]) != len(res[j]) {
			return len(res[i]) < len(res[j])
		}
		return res[i][0].Signature() < res[j][0].Signature()
	})
	return res
}
