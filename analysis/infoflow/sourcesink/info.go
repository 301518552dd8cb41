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
	"github.com/awslabs/ar-go-ifds/analysis/infoflow/data"
	"github.com/samber/lo"
)

// SourceInfo is the classification of a statement as a source: the access paths it taints, each with the
// definitions that made it a source
type SourceInfo struct {
	UserData any

	aps  []*data.AccessPath
	defs map[*data.AccessPath][]data.Definition
}

// APDef is an access path tainted by a source with its definition
type APDef struct {
	AccessPath *data.AccessPath
	Definition data.Definition
}

// NewSourceInfo returns the source information for the pairs. Pairs with a nil access path are ignored. Returns
// nil if no pair remains.
func NewSourceInfo(pairs []APDef, userData any) *SourceInfo {
	si := &SourceInfo{UserData: userData, defs: map[*data.AccessPath][]data.Definition{}}
	for _, p := range pairs {
		if p.AccessPath == nil {
			continue
		}
		prev, ok := si.defs[p.AccessPath]
		if !ok {
			si.aps = append(si.aps, p.AccessPath)
		}
		if p.Definition != nil && !lo.Contains(prev, p.Definition) {
			si.defs[p.AccessPath] = append(prev, p.Definition)
		} else if !ok {
			si.defs[p.AccessPath] = prev
		}
	}
	if len(si.aps) == 0 {
		return nil
	}
	return si
}

// NewSingleSourceInfo returns the source information tainting a single access path
func NewSingleSourceInfo(def data.Definition, ap *data.AccessPath) *SourceInfo {
	return NewSourceInfo([]APDef{{AccessPath: ap, Definition: def}}, nil)
}

// AccessPaths returns the access paths tainted by the source, in insertion order
func (si *SourceInfo) AccessPaths() []*data.AccessPath { return si.aps }

// DefinitionsFor returns the definitions under which ap is tainted
func (si *SourceInfo) DefinitionsFor(ap *data.AccessPath) []data.Definition { return si.defs[ap] }

// AllDefinitions returns all the definitions of the source
func (si *SourceInfo) AllDefinitions() []data.Definition {
	var all []data.Definition
	for _, ap := range si.aps {
		for _, d := range si.defs[ap] {
			if !lo.Contains(all, d) {
				all = append(all, d)
			}
		}
	}
	return all
}

// SinkInfo is the classification of a statement as a sink
type SinkInfo struct {
	Definitions []data.Definition
	UserData    any
}

// NewSinkInfo returns the sink information with the definitions
func NewSinkInfo(defs ...data.Definition) *SinkInfo {
	return &SinkInfo{Definitions: defs}
}
