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

package sourcesink

import (
	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// NewDefaultManager returns a manager for method signatures: calls to sources taint their return value (or their
// receiver), calls to sinks leak any tainted argument. The parameters of the parameterTaintMethods are sources and
// the values returned by the returnTaintMethods are leaks.
func NewDefaultManager(logger *config.LogGroup, sources, sinks, parameterTaintMethods,
	returnTaintMethods []string) *DefinitionManager {
	var sourceDefs, sinkDefs []data.Definition
	for _, sig := range sources {
		sourceDefs = append(sourceDefs, NewMethodDefinition(sig))
	}
	for _, sig := range parameterTaintMethods {
		sourceDefs = append(sourceDefs, &MethodDefinition{Signature: sig, CallType: Callback})
	}
	for _, sig := range sinks {
		sinkDefs = append(sinkDefs, NewMethodDefinition(sig))
	}
	for _, sig := range returnTaintMethods {
		sinkDefs = append(sinkDefs, &MethodDefinition{Signature: sig, CallType: Return})
	}
	return NewDefinitionManager(logger, sourceDefs, sinkDefs)
}

// MethodCodeIdentifier returns the code identifier of m. Methods of package-level classes have no class.
func MethodCodeIdentifier(m *ir.Method) config.CodeIdentifier {
	cid := config.CodeIdentifier{Package: m.Class.Package(), Method: m.Name}
	if m.Class.PackagePath == "" || m.Class.Name != m.Class.PackagePath {
		cid.Class = m.Class.ShortName()
	}
	return cid
}

// FieldCodeIdentifier returns the code identifier of f
func FieldCodeIdentifier(f *ir.Field) config.CodeIdentifier {
	cid := config.CodeIdentifier{Package: f.Class.Package(), Field: f.Name}
	if f.Class.PackagePath == "" || f.Class.Name != f.Class.PackagePath {
		cid.Class = f.Class.ShortName()
	}
	if f.Type != nil {
		cid.Type = f.Type.Name()
	}
	return cid
}

// NewConfigManager returns a manager for the sources, sinks and conditional sinks of all the taint tracking
// problems of the config. The code identifiers are matched against the methods and fields of the program.
//
//gocyclo:ignore
func NewConfigManager(logger *config.LogGroup, cfg *config.Config, p *ir.Program) *DefinitionManager {
	var sources, sinks []data.Definition
	for _, c := range p.Classes() {
		for _, m := range c.Methods() {
			cid := MethodCodeIdentifier(m)
			for _, ts := range cfg.TaintTrackingProblems {
				for _, spec := range ts.Sources {
					if spec.Field == "" && cid.Matches(spec) {
						sources = append(sources, methodDefinitionFor(m, spec, true))
					}
				}
				for _, spec := range ts.Sinks {
					if spec.Field == "" && cid.Matches(spec) {
						sinks = append(sinks, methodDefinitionFor(m, spec, false))
					}
				}
				for i := range ts.ConditionalSinks {
					cs := &ts.ConditionalSinks[i]
					if cs.Sink.Field == "" && cid.Matches(cs.Sink) {
						def := methodDefinitionFor(m, cs.Sink, false)
						def.Conditions = append(def.Conditions, NewAdditionalFlowCondition(p, cs.ClassNamesOnPath,
							cs.SignaturesOnPath, cs.ExcludedClassNames))
						sinks = append(sinks, def)
					}
				}
			}
		}
		for _, f := range c.Fields() {
			cid := FieldCodeIdentifier(f)
			for _, ts := range cfg.TaintTrackingProblems {
				for _, spec := range ts.Sources {
					if spec.Field != "" && cid.Matches(spec) {
						sources = append(sources, &FieldDefinition{FieldSignature: f.Signature()})
					}
				}
				for _, spec := range ts.Sinks {
					if spec.Field != "" && cid.Matches(spec) {
						sinks = append(sinks, &FieldDefinition{FieldSignature: f.Signature()})
					}
				}
			}
		}
	}
	if logger != nil {
		logger.Infof("Found %d source and %d sink definitions in the program", len(sources), len(sinks))
	}
	return NewDefinitionManager(logger, sources, sinks)
}

// methodDefinitionFor translates the target of the code identifier into access path tuples
func methodDefinitionFor(m *ir.Method, spec config.CodeIdentifier, isSource bool) *MethodDefinition {
	def := NewMethodDefinition(m.Signature())
	tuple := BlankSinkTuple
	if isSource {
		tuple = BlankSourceTuple
	}
	switch spec.Target {
	case "":
	case config.TargetReturn:
		if isSource {
			def.ReturnValues = append(def.ReturnValues, tuple())
		} else {
			def.CallType = Return
		}
	case config.TargetBase:
		def.BaseObjects = append(def.BaseObjects, tuple())
	case config.TargetArgs:
		for i := range m.ParamTypes {
			def.AddParameter(i, tuple())
		}
	default:
		if i := spec.TargetArgIndex(); i >= 0 {
			def.AddParameter(i, tuple())
		}
	}
	return def
}
