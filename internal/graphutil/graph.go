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
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/simple"
)

// CGraph is a call graph over a fixed list of methods, the id of a method is its position in the list.
// It implements gonum's graph.Directed for the DOT encoding, and yourbasic's graph.Iterator.
type CGraph struct {
	nodes []CNode
	ids   map[*ir.Method]int64
	// succs and preds are sorted, without duplicates
	succs [][]int64
	preds [][]int64
}

// NewCallgraphIterator returns the call graph over methods, where callees returns the methods called from a
// method. Callees that are not in methods are ignored.
func NewCallgraphIterator(methods []*ir.Method, callees func(*ir.Method) []*ir.Method) *CGraph {
	n := len(methods)
	cg := &CGraph{
		nodes: make([]CNode, n),
		ids:   make(map[*ir.Method]int64, n),
		succs: make([][]int64, n),
		preds: make([][]int64, n),
	}
	for i, m := range methods {
		cg.nodes[i] = CNode{Method: m, id: int64(i)}
		cg.ids[m] = int64(i)
	}
	for i, m := range methods {
		for _, callee := range callees(m) {
			j, ok := cg.ids[callee]
			if !ok || slices.Contains(cg.succs[i], j) {
				continue
			}
			cg.succs[i] = append(cg.succs[i], j)
			cg.preds[j] = append(cg.preds[j], int64(i))
		}
		slices.Sort(cg.succs[i])
	}
	return cg
}

// NodeOf returns the node of the method, and false if the method is not in the graph
func (c *CGraph) NodeOf(m *ir.Method) (CNode, bool) {
	id, ok := c.ids[m]
	if !ok {
		return CNode{}, false
	}
	return c.nodes[id], true
}

func (c *CGraph) valid(id int64) bool { return id >= 0 && id < int64(len(c.nodes)) }

func (c *CGraph) nodesOf(ids []int64) graph.Nodes {
	ns := make([]graph.Node, len(ids))
	for i, id := range ids {
		ns[i] = c.nodes[id]
	}
	return iterator.NewOrderedNodes(ns)
}

// Order is the number of nodes, for graph.Iterator
func (c *CGraph) Order() int { return len(c.nodes) }

// Visit calls do on the successors of v in increasing order, for graph.Iterator
func (c *CGraph) Visit(v int, do func(w int, c int64) (skip bool)) (aborted bool) {
	if !c.valid(int64(v)) {
		return false
	}
	for _, w := range c.succs[v] {
		if do(int(w), 1) {
			return true
		}
	}
	return false
}

// Node returns the node with the id, nil if there is none
func (c *CGraph) Node(id int64) graph.Node {
	if !c.valid(id) {
		return nil
	}
	return c.nodes[id]
}

// Nodes returns all the nodes, ordered by id
func (c *CGraph) Nodes() graph.Nodes {
	ns := make([]graph.Node, len(c.nodes))
	for i, n := range c.nodes {
		ns[i] = n
	}
	return iterator.NewOrderedNodes(ns)
}

// From returns the callees of the node
func (c *CGraph) From(id int64) graph.Nodes {
	if !c.valid(id) {
		return iterator.NewOrderedNodes(nil)
	}
	return c.nodesOf(c.succs[id])
}

// To returns the callers of the node
func (c *CGraph) To(id int64) graph.Nodes {
	if !c.valid(id) {
		return iterator.NewOrderedNodes(nil)
	}
	return c.nodesOf(c.preds[id])
}

// HasEdgeFromTo returns whether uid calls vid
func (c *CGraph) HasEdgeFromTo(uid, vid int64) bool {
	if !c.valid(uid) {
		return false
	}
	_, found := slices.BinarySearch(c.succs[uid], vid)
	return found
}

// HasEdgeBetween returns whether one of the nodes calls the other
func (c *CGraph) HasEdgeBetween(xid, yid int64) bool {
	return c.HasEdgeFromTo(xid, yid) || c.HasEdgeFromTo(yid, xid)
}

// Edge returns the edge from uid to vid, nil if there is none
func (c *CGraph) Edge(uid, vid int64) graph.Edge {
	if !c.HasEdgeFromTo(uid, vid) {
		return nil
	}
	return simple.Edge{F: c.nodes[uid], T: c.nodes[vid]}
}

// CNode is a method in a CGraph
type CNode struct {
	Method *ir.Method
	id     int64
}

// ID returns the id of the node
func (n CNode) ID() int64 { return n.id }

func (n CNode) String() string {
	if n.Method == nil {
		return ""
	}
	return n.Method.Signature()
}

// DOTID labels the nodes of the DOT encoding with the method signatures
func (n CNode) DOTID() string { return n.String() }
