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
	"bufio"
	"fmt"
	"os"

	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// Position returns the method and line of the statement, as "<signature>:line"
func Position(s ir.Stmt) string {
	if s == nil || s.Method() == nil {
		return "?"
	}
	return fmt.Sprintf("%s:%d", s.Method().Signature(), s.Line())
}

// WriteReports writes one flow-*.out file per result in dir and returns the names of the files.
// Each file lists the source, the sink and the trace from the source to the sink, if paths were computed.
func (r *InfoflowResults) WriteReports(dir string) ([]string, error) {
	var names []string
	for _, res := range r.Results() {
		name, err := writeReport(dir, res)
		if err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}

func writeReport(dir string, res Result) (string, error) {
	tmp, err := os.CreateTemp(dir, "flow-*.out")
	if err != nil {
		return "", fmt.Errorf("could not create report: %w", err)
	}
	defer tmp.Close()

	w := bufio.NewWriter(tmp)
	fmt.Fprintf(w, "Source: %s\n", res.Source.Stmt)
	fmt.Fprintf(w, "At: %s\n", Position(res.Source.Stmt))
	fmt.Fprintf(w, "Sink: %s\n", res.Sink.Stmt)
	fmt.Fprintf(w, "At: %s\n", Position(res.Sink.Stmt))
	if len(res.Source.Path) > 0 {
		fmt.Fprintf(w, "Trace:\n")
		for i, s := range res.Source.Path {
			if i < len(res.Source.PathAccessPaths) && res.Source.PathAccessPaths[i] != nil {
				fmt.Fprintf(w, "%s [%s]\n", Position(s), res.Source.PathAccessPaths[i])
			} else {
				fmt.Fprintf(w, "%s\n", Position(s))
			}
		}
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("could not write report %s: %w", tmp.Name(), err)
	}
	return tmp.Name(), nil
}
