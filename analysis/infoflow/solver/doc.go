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

/*
Package solver implements the interprocedural worklist solver that computes the fixed point of path edge
propagation for a tabulation problem.

A path edge (d1, n, d2) means that the fact d2 holds at statement n when the enclosing method was entered with
the calling context d1. Edges are processed by a pool of workers shared by all the solvers of an analysis. The
solver keeps end summaries per method and entry fact, such that a method analyzed once for an entry fact is not
analyzed again at other call sites. The incoming table that records the callers of each method and entry fact is
owned by a PeerGroup, which lets forward and backward solvers share calling contexts.

Solvers can be terminated from any goroutine with ForceTerminate; the edges being processed complete and the
results gathered so far are kept.
*/
package solver
