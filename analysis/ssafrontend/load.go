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

// Package ssafrontend loads Go packages, builds their SSA form and translates it into the program representation
// of the analysis.
//
// Each package becomes a class named after the package path that holds the package's functions and globals. Each
// named type becomes a class holding the type's fields and methods, interfaces become interface classes implemented
// by the types that satisfy them. Pointers to named types are represented by the class of the named type.
//
// Functions of the standard library are declared without bodies: their effects are modelled by the taint wrappers.
package ssafrontend

import (
	"fmt"
	"go/token"
	"os"
	"time"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/internal/analysisutil"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// PkgLoadMode is the default loading mode of the frontend. We load all possible information.
const PkgLoadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedCompiledGoFiles |
	packages.NeedImports |
	packages.NeedDeps |
	packages.NeedExportFile |
	packages.NeedTypes |
	packages.NeedSyntax |
	packages.NeedTypesInfo |
	packages.NeedTypesSizes |
	packages.NeedModule

// LoadedProgram is a loaded Go program with its translation
type LoadedProgram struct {
	// SSA is the SSA version of the program
	SSA *ssa.Program
	// Packages are the SSA packages of the patterns that were loaded
	Packages []*ssa.Package
	// Translation is the translation of the SSA program
	*Translation
}

// Options of the loader
type Options struct {
	// Dir is the directory in which the patterns are resolved. The current directory is used when empty.
	Dir string
	// Platform sets GOOS when not empty
	Platform string
	// Tests loads the test packages
	Tests bool
	// BuildMode is the SSA builder mode
	BuildMode ssa.BuilderMode
	// Exclude lists files and directories whose functions are declared without bodies
	Exclude []string
}

// Load loads the packages matching the patterns, builds their SSA form and translates it.
// To understand how to specify the patterns, look at the documentation of packages.Load.
func Load(logger *config.LogGroup, opts Options, patterns ...string) (*LoadedProgram, error) {
	if logger == nil {
		logger = config.NewNopLogGroup()
	}
	start := time.Now()
	cfg := &packages.Config{
		Mode:  PkgLoadMode,
		Tests: opts.Tests,
		Dir:   opts.Dir,
		Fset:  token.NewFileSet(),
	}
	if opts.Platform != "" {
		cfg.Env = append(os.Environ(), fmt.Sprintf("GOOS=%s", opts.Platform))
	}

	// load, parse and type check the given packages
	initialPackages, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load packages: %w", err)
	}
	if len(initialPackages) == 0 {
		return nil, fmt.Errorf("no packages match %v", patterns)
	}
	if n := packages.PrintErrors(initialPackages); n > 0 {
		return nil, fmt.Errorf("%d errors found while loading packages", n)
	}

	// construct SSA for all the packages we have loaded
	program, ssaPackages := ssautil.AllPackages(initialPackages, opts.BuildMode)
	for i, p := range ssaPackages {
		if p == nil {
			return nil, fmt.Errorf("cannot build SSA for package %s", initialPackages[i])
		}
	}
	program.Build()
	deps := 0
	analysisutil.VisitPackages(initialPackages, func(*packages.Package) bool {
		deps++
		return true
	})
	logger.Infof("Loaded %d packages (%d with dependencies) in %.2fs", len(ssaPackages), deps,
		time.Since(start).Seconds())

	start = time.Now()
	tr := Translate(program, logger, analysisutil.MakeAbsolute(opts.Exclude))
	logger.Infof("Translated %d functions (%d with bodies, %d dynamic calls) in %.2fs",
		tr.Stats.Functions, tr.Stats.Bodies, tr.Stats.DynamicCalls, time.Since(start).Seconds())
	return &LoadedProgram{SSA: program, Packages: ssaPackages, Translation: tr}, nil
}
