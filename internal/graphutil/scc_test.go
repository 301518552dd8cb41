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
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type intGraph map[int][]int

func (g intGraph) nodes() []int {
	var ks []int
	for k := range g {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	return ks
}

func (g intGraph) successors(n int) []int { return g[n] }

func (g intGraph) reaches(x, y int) bool {
	visited := map[int]bool{x: true}
	queue := []int{x}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, s := range g[n] {
			if !visited[s] {
				visited[s] = true
				queue = append(queue, s)
			}
		}
	}
	return visited[y]
}

// checkComponents checks that every node is in exactly one component, that the nodes of a component reach each
// other and that no component reaches a component after it
func checkComponents(g intGraph, sccs [][]int) error {
	seen := map[int]bool{}
	for i, scc := range sccs {
		for _, x := range scc {
			if seen[x] {
				return fmt.Errorf("node %d in two components", x)
			}
			seen[x] = true
			for _, y := range scc {
				if !g.reaches(x, y) {
					return fmt.Errorf("%d does not reach %d in its component", x, y)
				}
			}
			for _, later := range sccs[i+1:] {
				for _, y := range later {
					if g.reaches(x, y) {
						return fmt.Errorf("%d reaches %d of a later component", x, y)
					}
				}
			}
		}
	}
	if len(seen) != len(g) {
		return fmt.Errorf("%d nodes in components, want %d", len(seen), len(g))
	}
	return nil
}

func randomGraph(size int, seed int64) intGraph {
	g := intGraph{}
	r := rand.New(rand.NewSource(seed))
	for i := 0; i < size; i++ {
		g[i] = []int{}
		for j := 0; j < 3; j++ {
			if r.Float32() < 0.7 {
				g[i] = append(g[i], r.Intn(size))
			}
		}
	}
	return g
}

func TestSCC(t *testing.T) {
	graphs := []intGraph{
		{0: {0}},
		{0: {}},
		{0: {0, 1}, 1: {}},
		{0: {1, 2}, 1: {3}, 2: {1}, 3: {}},
		{0: {1, 2}, 1: {3}, 2: {1, 0}, 3: {}},
		{0: {3, 1}, 1: {0}, 2: {1}, 3: {3}},
	}
	for i := 0; i < 50; i++ {
		graphs = append(graphs, randomGraph(10+i, 68348438+int64(i)))
	}
	for _, g := range graphs {
		if err := checkComponents(g, StronglyConnectedComponents(g.nodes(), g.successors)); err != nil {
			t.Fatalf("%v\nin: %v", err, g)
		}
	}
}

func TestSCCDeepChain(t *testing.T) {
	const n = 100000
	g := intGraph{}
	for i := 0; i < n-1; i++ {
		g[i] = []int{i + 1}
	}
	g[n-1] = []int{0}
	sccs := StronglyConnectedComponents([]int{0}, g.successors)
	if len(sccs) != 1 || len(sccs[0]) != n {
		t.Fatalf("expected a single component of %d nodes, got %d components", n, len(sccs))
	}
}

func TestComponentIndexAndRecursion(t *testing.T) {
	g := intGraph{0: {1}, 1: {0}, 2: {2}, 3: {0}}
	sccs := StronglyConnectedComponents(g.nodes(), g.successors)
	idx := ComponentIndex(sccs)
	if idx[0] != idx[1] || idx[0] == idx[3] {
		t.Fatalf("0 and 1 should share a component distinct from 3's: %v", idx)
	}
	if !IsRecursive(sccs[idx[0]], g.successors) || !IsRecursive(sccs[idx[2]], g.successors) {
		t.Errorf("components of 0 and 2 are recursive")
	}
	if IsRecursive(sccs[idx[3]], g.successors) {
		t.Errorf("component of 3 is not recursive")
	}
	sizes := []int{}
	for _, scc := range sccs {
		sizes = append(sizes, len(scc))
	}
	sort.Ints(sizes)
	if diff := cmp.Diff([]int{1, 1, 2}, sizes); diff != "" {
		t.Errorf("component sizes (-want +got):\n%s", diff)
	}
}
