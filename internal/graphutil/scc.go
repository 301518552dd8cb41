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

// StronglyConnectedComponents returns the strongly connected components of the graph over nodes, with Tarjan's
// algorithm. The order within a component is arbitrary. The components are in reverse topological order: the
// components reachable from a component come before it, which is the order of bottom-up summary computations.
// The traversal keeps its own stack, call graphs of large programs can be deep.
func StronglyConnectedComponents[T comparable](nodes []T, successors func(T) []T) [][]T {
	type frame struct {
		node  T
		succs []T
		next  int
	}
	index := map[T]int{}
	lowlink := map[T]int{}
	onStack := map[T]bool{}
	var stack []T
	var frames []frame
	var sccs [][]T

	enter := func(v T) {
		index[v] = len(index)
		lowlink[v] = index[v]
		stack = append(stack, v)
		onStack[v] = true
		frames = append(frames, frame{node: v, succs: successors(v)})
	}

	for _, root := range nodes {
		if _, ok := index[root]; ok {
			continue
		}
		enter(root)
		for len(frames) > 0 {
			top := len(frames) - 1
			v := frames[top].node
			if frames[top].next < len(frames[top].succs) {
				w := frames[top].succs[frames[top].next]
				frames[top].next++
				if _, ok := index[w]; !ok {
					enter(w)
				} else if onStack[w] && index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
				continue
			}
			frames = frames[:top]
			if top > 0 {
				if parent := frames[top-1].node; lowlink[v] < lowlink[parent] {
					lowlink[parent] = lowlink[v]
				}
			}
			if lowlink[v] != index[v] {
				continue
			}
			var scc []T
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}
	return sccs
}

// ComponentIndex maps every node to the index of its component in sccs
func ComponentIndex[T comparable](sccs [][]T) map[T]int {
	idx := make(map[T]int)
	for i, scc := range sccs {
		for _, x := range scc {
			idx[x] = i
		}
	}
	return idx
}

// IsRecursive returns true if the component contains a cycle, i.e. it has more than one node or its only node is
// its own successor.
func IsRecursive[T comparable](scc []T, successors func(T) []T) bool {
	if len(scc) > 1 {
		return true
	}
	for _, s := range successors(scc[0]) {
		if s == scc[0] {
			return true
		}
	}
	return false
}
