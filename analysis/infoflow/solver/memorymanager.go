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

package solver

import (
	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
)

// ShorteningMode controls how predecessor chains are shortened when facts are returned from callees
type ShorteningMode int

// Shortening modes
const (
	// NeverShorten keeps the complete predecessor chains
	NeverShorten ShorteningMode = iota
	// ShortenIfEqual replaces a fact returned from a callee by the fact at the call site if they are equal
	ShortenIfEqual
	// AlwaysShorten skips the callee in the predecessor chain of every fact returned from a callee
	AlwaysShorten
)

// ShorteningModeOf returns the mode of the path-shortening option
func ShorteningModeOf(option string) ShorteningMode {
	switch option {
	case config.ShorteningNone:
		return NeverShorten
	case config.ShorteningAlways:
		return AlwaysShorten
	default:
		return ShortenIfEqual
	}
}

// ErasureMode controls which path information is erased from generated facts
type ErasureMode int

// Erasure modes
const (
	EraseNothing ErasureMode = iota
	// KeepOnlyContextData erases the current statement of facts that have no corresponding call site
	KeepOnlyContextData
	// EraseAll erases the current statements and call sites. Results can no longer be mapped to paths.
	EraseAll
)

// A MemoryManager reduces the memory used by the facts generated during propagation
type MemoryManager interface {
	// HandleMemoryObject is called on every fact before it is propagated. Returning nil drops the fact.
	HandleMemoryObject(obj *data.Abstraction) *data.Abstraction
	// HandleGeneratedMemoryObject is called on every fact output generated by a flow function from input.
	// Returning nil drops the fact.
	HandleGeneratedMemoryObject(input, output *data.Abstraction) *data.Abstraction
	// ShortenPredecessors returns the fact to propagate at a return site for a fact returned from a callee,
	// where incoming was the fact at the call site
	ShortenPredecessors(returned, incoming *data.Abstraction) *data.Abstraction
	// IsEssentialJoinPoint returns true if abs must be kept as a neighbor when it joins an equal fact
	IsEssentialJoinPoint(abs *data.Abstraction, relatedCallSite ir.Stmt) bool
}

// AbstractionMemoryManager is the default memory manager. It compacts the chains of facts created inside a single
// flow function and erases path data according to its erasure mode.
//
// Outputs are only mutated when they are fresh, i.e. when they are not the input of the flow function.
type AbstractionMemoryManager struct {
	shortening ShorteningMode
	erasure    ErasureMode
}

// NewMemoryManager returns a memory manager
func NewMemoryManager(shortening ShorteningMode, erasure ErasureMode) *AbstractionMemoryManager {
	return &AbstractionMemoryManager{shortening: shortening, erasure: erasure}
}

// Shortening returns the shortening mode of the manager
func (m *AbstractionMemoryManager) Shortening() ShorteningMode { return m.shortening }

// HandleMemoryObject implements MemoryManager
func (m *AbstractionMemoryManager) HandleMemoryObject(obj *data.Abstraction) *data.Abstraction {
	return obj
}

// HandleGeneratedMemoryObject implements MemoryManager
func (m *AbstractionMemoryManager) HandleGeneratedMemoryObject(input, output *data.Abstraction) *data.Abstraction {
	if output == nil || input == output {
		return output
	}
	if m.shortening != NeverShorten {
		// A flow function may build a chain of facts. Only the last one is needed.
		if pred := output.Predecessor(); pred != nil && pred != input {
			output.SetPredecessor(input)
		}
		if input.Equals(output) && (output.CurrentStmt() == nil || output.CurrentStmt() == input.CurrentStmt()) {
			return input
		}
	}
	switch m.erasure {
	case EraseAll:
		output.SetCurrentStmt(nil)
		output.SetCorrespondingCallSite(nil)
	case KeepOnlyContextData:
		if output.CorrespondingCallSite() == nil {
			output.SetCurrentStmt(nil)
		}
	}
	return output
}

// ShortenPredecessors implements MemoryManager
func (m *AbstractionMemoryManager) ShortenPredecessors(returned, incoming *data.Abstraction) *data.Abstraction {
	switch m.shortening {
	case AlwaysShorten:
		if returned != incoming && incoming != nil {
			res := returned.Clone()
			res.SetPredecessor(incoming)
			return res
		}
	case ShortenIfEqual:
		if incoming != nil && returned.Equals(incoming) {
			return incoming
		}
	}
	return returned
}

// IsEssentialJoinPoint implements MemoryManager. Without shortening, joins at return sites are kept such that
// paths through every calling context can be reconstructed.
func (m *AbstractionMemoryManager) IsEssentialJoinPoint(abs *data.Abstraction, relatedCallSite ir.Stmt) bool {
	return m.shortening == NeverShorten && relatedCallSite != nil
}
