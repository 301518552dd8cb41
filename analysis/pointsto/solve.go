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

package pointsto

import (
	"golang.org/x/tools/container/intsets"
)

// solve propagates the points-to sets along the copy edges until no set changes. Complex constraints are
// solved with the difference between the current set of their node and the set at their last visit, and may
// add copy edges.
func (a *analysis) solve() {
	var delta intsets.Sparse
	var id int
	iterations := 0
	for a.work.TakeMin(&id) {
		iterations++
		n := a.nodes[id]
		delta.Difference(&n.pts, &n.prevPts)
		if delta.IsEmpty() {
			continue
		}
		n.prevPts.Copy(&n.pts)

		for _, c := range n.complex {
			c.solve(a, &delta)
		}
		for _, dst := range n.copyTo.AppendTo(nil) {
			if a.nodes[dst].pts.UnionWith(&delta) {
				a.work.Insert(dst)
			}
		}
	}
	a.logger.Tracef("Points-to solver converged after %d iterations", iterations)
}

// addCopyEdge adds the edge src -> dst during solving, and propagates the objects already seen at src
func (a *analysis) addCopyEdge(src, dst NodeID) {
	if src == dst {
		return
	}
	s := a.nodes[src]
	if !s.copyTo.Insert(int(dst)) {
		return
	}
	if a.nodes[dst].pts.UnionWith(&s.pts) {
		a.work.Insert(int(dst))
	}
}
