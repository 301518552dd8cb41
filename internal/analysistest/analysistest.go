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


// Package analysistest checks the flows reported by the analysis of a Go program against the flows annotated in its
// sources. A comment "@Source(id1, id2)" marks the line of a source, a comment "@Sink(id1)" marks the line of a sink
// reached by the sources with the same identifiers.
package analysistest

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/results"
	"github.com/awslabs/ar-go-ifds/analysis/ssafrontend"
	"github.com/awslabs/ar-go-ifds/internal/funcutil"
	"github.com/samber/lo"
)

// LoadTest loads the packages in the directory dir with the config.yaml of dir
func LoadTest(t *testing.T, dir string) (*ssafrontend.LoadedProgram, *config.Config) {
	t.Helper()
	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("error loading config: %v", err)
	}
	lp, err := ssafrontend.Load(config.NewNopLogGroup(), ssafrontend.Options{Dir: dir}, "./...")
	if err != nil {
		t.Fatalf("error loading packages: %v", err)
	}
	return lp, cfg
}

// Match annotations of the form "@Source(id1, id2, id3)"
var SourceRegex = regexp.MustCompile(`//.*@Source\(((?:\s*\w\s*,?)+)\)`)
var SinkRegex = regexp.MustCompile(`//.*@Sink\(((?:\s*\w\s*,?)+)\)`)

// LPos is a position without column. Filenames are absolute.
type LPos struct {
	Filename string
	Line     int
}

func (p LPos) String() string {
	return fmt.Sprintf("%s:%d", p.Filename, p.Line)
}

// Flows maps sink positions to the positions of the sources reaching them
type Flows map[LPos]map[LPos]bool

func (f Flows) add(sink, source LPos) {
	if _, ok := f[sink]; !ok {
		f[sink] = map[LPos]bool{}
	}
	f[sink][source] = true
}

// GetExpectedSourceToSink parses the Go files in dir and its subdirectories and looks for comments @Source(id) and
// @Sink(id) to construct the expected flows.
func GetExpectedSourceToSink(dir string) (Flows, error) {
	fset := token.NewFileSet()
	sources := map[string][]LPos{}
	sinks := map[string][]LPos{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") {
			return err
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return err
		}
		for _, c := range f.Comments {
			for _, c1 := range c.List {
				pos, err := lpos(fset.Position(c1.Pos()))
				if err != nil {
					return err
				}
				for _, id := range annotationIds(SourceRegex, c1.Text) {
					sources[id] = append(sources[id], pos)
				}
				for _, id := range annotationIds(SinkRegex, c1.Text) {
					sinks[id] = append(sinks[id], pos)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	expected := Flows{}
	for id, sinkPositions := range sinks {
		for _, sink := range sinkPositions {
			for _, source := range sources[id] {
				expected.add(sink, source)
			}
		}
	}
	return expected, nil
}

func annotationIds(re *regexp.Regexp, text string) []string {
	a := re.FindStringSubmatch(text)
	if len(a) < 2 {
		return nil
	}
	return lo.Map(strings.Split(a[1], ","), func(s string, _ int) string { return strings.TrimSpace(s) })
}

// ReportedFlows returns the flows of the results, at the positions of the translated program
func ReportedFlows(tr *ssafrontend.Translation, res *results.InfoflowResults) (Flows, error) {
	reported := Flows{}
	for _, r := range res.Results() {
		sink, err := lpos(tr.Position(r.Sink.Stmt))
		if err != nil {
			return nil, err
		}
		source, err := lpos(tr.Position(r.Source.Stmt))
		if err != nil {
			return nil, err
		}
		reported.add(sink, source)
	}
	return reported, nil
}

// CheckFlows reports an error for each expected flow that was not reported and each reported flow that was not
// expected
func CheckFlows(t *testing.T, expected, reported Flows) {
	t.Helper()
	for _, msg := range difference(expected, reported) {
		t.Errorf("missing flow %s", msg)
	}
	for _, msg := range difference(reported, expected) {
		t.Errorf("unexpected flow %s", msg)
	}
}

// difference returns the flows of a that are not in b, sorted
func difference(a, b Flows) []string {
	var msgs []string
	for sink, sources := range a {
		for source := range sources {
			if !b[sink][source] {
				msgs = append(msgs, fmt.Sprintf("from source at %s to sink at %s", source, sink))
			}
		}
	}
	sort.Strings(msgs)
	return msgs
}

// lpos drops the column of the position and makes its filename absolute
func lpos(pos token.Position) (LPos, error) {
	if pos.Filename == "" {
		return LPos{}, fmt.Errorf("invalid position %v", pos)
	}
	abs, err := filepath.Abs(pos.Filename)
	if err != nil {
		return LPos{}, err
	}
	return LPos{Filename: abs, Line: pos.Line}, nil
}

// SinkLines returns the lines of the sinks, sorted
func (f Flows) SinkLines() []int {
	lines := map[int]bool{}
	for p := range f {
		lines[p.Line] = true
	}
	return funcutil.SetToOrderedSlice(lines)
}
