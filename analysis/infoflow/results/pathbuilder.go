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

package results

import (
	"context"
	"fmt"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxPathsPerSink bounds the number of paths reconstructed for one result
const DefaultMaxPathsPerSink = 100

// PathBuilder reconstructs the sources of the abstractions that reached a sink
type PathBuilder struct {
	// ComputePaths requests the statement paths from source to sink in addition to the sources
	ComputePaths bool
	// MaxPathsPerSink bounds the number of paths followed per result when paths are computed
	MaxPathsPerSink int
	// NumWorkers is the number of results processed concurrently
	NumWorkers int

	logger *config.LogGroup
}

// NewContextInsensitivePathBuilder returns a path builder that follows predecessors and neighbors without
// matching calls and returns
func NewContextInsensitivePathBuilder(logger *config.LogGroup, computePaths bool, numWorkers int) *PathBuilder {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &PathBuilder{
		ComputePaths:    computePaths,
		MaxPathsPerSink: DefaultMaxPathsPerSink,
		NumWorkers:      numWorkers,
		logger:          logger,
	}
}

// ComputeTaintPaths adds to into one result per source reaching each sink abstraction. It returns the context's
// error if it is cancelled before all results are processed; the results found so far are kept.
func (b *PathBuilder) ComputeTaintPaths(ctx context.Context, res []*data.AbstractionAtSink,
	into *InfoflowResults) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.NumWorkers)
	for _, r := range res {
		r := r
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b.buildFor(gctx, r, into)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("path reconstruction interrupted: %w", err)
	}
	return nil
}

type pathNode struct {
	abs    *data.Abstraction
	parent *pathNode
}

func (n *pathNode) contains(abs *data.Abstraction) bool {
	for x := n; x != nil; x = x.parent {
		if x.abs == abs {
			return true
		}
	}
	return false
}

func (b *PathBuilder) buildFor(ctx context.Context, r *data.AbstractionAtSink, into *InfoflowResults) {
	sink := &ResultSinkInfo{
		Definitions: r.SinkDefinitions,
		AccessPath:  r.Abstraction.AccessPath(),
		Stmt:        r.SinkStmt,
	}
	if b.ComputePaths {
		b.walkPaths(ctx, r, sink, into)
	} else {
		b.walkSources(ctx, r, sink, into)
	}
}

// walkSources visits every abstraction reachable through predecessors and neighbors once
func (b *PathBuilder) walkSources(ctx context.Context, r *data.AbstractionAtSink, sink *ResultSinkInfo,
	into *InfoflowResults) {
	visited := map[*data.Abstraction]bool{}
	stack := []*data.Abstraction{r.Abstraction}
	for len(stack) > 0 {
		if ctx.Err() != nil {
			return
		}
		abs := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[abs] {
			continue
		}
		visited[abs] = true
		if sc := abs.SourceContext(); sc != nil {
			into.AddResult(sink, sourceInfo(sc, nil, nil))
		}
		if p := abs.Predecessor(); p != nil {
			stack = append(stack, p)
		}
		stack = append(stack, abs.Neighbors()...)
	}
}

// walkPaths enumerates the acyclic derivation chains from the sink abstraction back to a source
func (b *PathBuilder) walkPaths(ctx context.Context, r *data.AbstractionAtSink, sink *ResultSinkInfo,
	into *InfoflowResults) {
	found := 0
	stack := []*pathNode{{abs: r.Abstraction}}
	for len(stack) > 0 && found < b.MaxPathsPerSink {
		if ctx.Err() != nil {
			return
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		abs := n.abs
		if sc := abs.SourceContext(); sc != nil && abs.Predecessor() == nil {
			stmts, aps := pathOf(n)
			if into.AddResult(sink, sourceInfo(sc, stmts, aps)) {
				found++
			}
		}
		for _, next := range append(abs.Neighbors(), abs) {
			p := next.Predecessor()
			if next != abs {
				// a neighbor stands for the same fact reached along another derivation
				if n.parent.contains(next) {
					continue
				}
				stack = append(stack, &pathNode{abs: next, parent: n.parent})
				continue
			}
			if p != nil && !n.contains(p) {
				stack = append(stack, &pathNode{abs: p, parent: n})
			}
		}
	}
	if found >= b.MaxPathsPerSink && b.logger != nil {
		b.logger.Debugf("path limit reached for %s", r)
	}
}

// pathOf returns the statements and access paths from the source (the node n) to the sink (the root)
func pathOf(n *pathNode) ([]ir.Stmt, []*data.AccessPath) {
	var stmts []ir.Stmt
	var aps []*data.AccessPath
	for x := n; x != nil; x = x.parent {
		s := x.abs.CurrentStmt()
		if s == nil || (len(stmts) > 0 && stmts[len(stmts)-1] == s) {
			continue
		}
		stmts = append(stmts, s)
		aps = append(aps, x.abs.AccessPath())
	}
	return stmts, aps
}

func sourceInfo(sc *data.SourceContext, path []ir.Stmt, aps []*data.AccessPath) *ResultSourceInfo {
	return &ResultSourceInfo{
		Definition:      sc.Definition,
		AccessPath:      sc.AccessPath,
		Stmt:            sc.Stmt,
		UserData:        sc.UserData,
		Path:            path,
		PathAccessPaths: aps,
	}
}
