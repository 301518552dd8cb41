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

import "github.com/awslabs/ar-go-ifds/analysis/ir"

// BackwardsICFG is the reversed view of an ICFG: the successors of a statement are its predecessors in the original
// graph, methods start at their exit statements and calls return to the predecessors of the call site.
type BackwardsICFG struct {
	ICFG
}

// Backwards returns the reversed view of base
func Backwards(base ICFG) *BackwardsICFG {
	return &BackwardsICFG{ICFG: base}
}

// Forward returns the ICFG the view was built from
func (b *BackwardsICFG) Forward() ICFG { return b.ICFG }

func (b *BackwardsICFG) SuccsOf(s ir.Stmt) []ir.Stmt { return b.ICFG.PredsOf(s) }

func (b *BackwardsICFG) PredsOf(s ir.Stmt) []ir.Stmt { return b.ICFG.SuccsOf(s) }

func (b *BackwardsICFG) ReturnSitesOfCallAt(s ir.Stmt) []ir.Stmt { return b.ICFG.PredsOf(s) }

func (b *BackwardsICFG) StartPointsOf(m *ir.Method) []ir.Stmt { return b.ICFG.EndPointsOf(m) }

func (b *BackwardsICFG) EndPointsOf(m *ir.Method) []ir.Stmt { return b.ICFG.StartPointsOf(m) }

func (b *BackwardsICFG) IsExitStmt(s ir.Stmt) bool { return b.ICFG.IsStartPoint(s) }

func (b *BackwardsICFG) IsStartPoint(s ir.Stmt) bool { return b.ICFG.IsExitStmt(s) }
