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

// ifds runs the taint analysis on Go packages.
//
// Usage:
//
//	ifds taint --config config.yaml [--verbose] [--timeout N] <package path(s)>
//	ifds callgraph [--config config.yaml] [--output file.dot] <package path(s)>
//	ifds version
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/internal/formatutil"
)

var (
	errNoPackages    = errors.New("no package to analyze")
	errMissingConfig = errors.New("missing configuration file")
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", formatutil.Red("error:"), err)
		if h := hint(err); h != "" {
			fmt.Fprintf(os.Stderr, "%s %s\n", formatutil.Faint("hint:"), h)
		}
		os.Exit(2)
	}
}

// hint returns a suggestion to fix the error, or the empty string
func hint(err error) string {
	switch {
	case errors.Is(err, errNoPackages):
		return "pass the packages to analyze, e.g. ./..."
	case errors.Is(err, errMissingConfig):
		return "pass a config file declaring sources and sinks with --config"
	case errors.Is(err, config.ErrUnsupportedConfiguration):
		return "check the options and the taint-tracking-problems of the config file"
	case errors.Is(err, os.ErrNotExist):
		return "check that the config file and the files it references exist"
	case errors.Is(err, context.Canceled):
		return "the analysis was interrupted"
	}
	return ""
}
