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

package data

import (
	"strconv"
	"strings"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/internal/funcutil"
)

// AccessPathFactory creates the access paths of an analysis. It enforces the maximum access path length and
// interns the paths it creates.
type AccessPathFactory struct {
	maxLength    int
	typeChecking bool
	types        *TypeUtils
	interned     funcutil.SyncMap[string, *AccessPath]
}

// NewAccessPathFactory returns a factory for the options. p is used for type checking and may be nil.
func NewAccessPathFactory(opts config.Options, p *ir.Program) *AccessPathFactory {
	return &AccessPathFactory{
		maxLength:    opts.AccessPathLength,
		typeChecking: opts.EnableTypeChecking,
		types:        NewTypeUtils(p, opts.EnableTypeChecking),
	}
}

// MaxLength returns the maximum number of fragments of the paths created. Negative means unbounded.
func (f *AccessPathFactory) MaxLength() int { return f.maxLength }

// TypeUtils returns the type utilities used by the factory
func (f *AccessPathFactory) TypeUtils() *TypeUtils { return f.types }

// Size returns the number of distinct access paths created
func (f *AccessPathFactory) Size() int { return f.interned.Len() }

// CreateAccessPath returns the access path for v, or nil if v cannot be tainted
func (f *AccessPathFactory) CreateAccessPath(v ir.Value, taintSubFields bool) *AccessPath {
	return f.Create(v, nil, nil, taintSubFields, false, ContentsAndLength, false)
}

// CreateAccessPathWithType returns the access path for v with an explicit base type and array taint type
func (f *AccessPathFactory) CreateAccessPathWithType(v ir.Value, t *ir.Type, taintSubFields bool,
	arrayType ArrayTaintType) *AccessPath {
	return f.Create(v, t, nil, taintSubFields, false, arrayType, false)
}

// CreateAccessPathWithFields returns the access path for v followed by the fragments
func (f *AccessPathFactory) CreateAccessPathWithFields(v ir.Value, fragments []Fragment,
	taintSubFields bool) *AccessPath {
	return f.Create(v, nil, fragments, taintSubFields, false, ContentsAndLength, false)
}

// Create is the general constructor of access paths. v is a local, a field reference, an array reference or nil
// for a static path given entirely by the fragments. It returns nil when no valid access path exists, e.g. when
// v is a constant or the types are incompatible.
//
//gocyclo:ignore
func (f *AccessPathFactory) Create(v ir.Value, valType *ir.Type, appending []Fragment, taintSubFields bool,
	cutFirstField bool, arrayType ArrayTaintType, canHaveImmutableAliases bool) *AccessPath {
	if v != nil && !CanContainValue(v) {
		return nil
	}
	if v == nil && len(appending) == 0 {
		return nil
	}

	var base *ir.Local
	var baseType *ir.Type
	var fragments []Fragment

	switch x := v.(type) {
	case *ir.InstanceFieldRef:
		base = x.Base
		baseType = x.Base.Type()
		first := NewFragment(x.Field)
		if valType != nil {
			first = first.WithType(valType)
		}
		fragments = append([]Fragment{first}, appending...)
	case *ir.StaticFieldRef:
		first := NewFragment(x.Field)
		if valType != nil {
			first = first.WithType(valType)
		}
		fragments = append([]Fragment{first}, appending...)
	case *ir.ArrayRef:
		base = x.Base
		baseType = valType
		if baseType == nil {
			baseType = x.Base.Type()
		}
		fragments = append(fragments, appending...)
	case *ir.Local:
		base = x
		baseType = valType
		if baseType == nil {
			baseType = x.Type()
		}
		fragments = append(fragments, appending...)
	default:
		fragments = append(fragments, appending...)
	}

	if cutFirstField && len(fragments) > 0 {
		fragments = fragments[1:]
	}

	if f.typeChecking {
		if base != nil && base.Type() != baseType {
			baseType = f.types.MorePreciseType(baseType, base.Type())
			if baseType == nil {
				return nil
			}
		}
		if base != nil && baseType != nil && len(fragments) > 0 && !baseType.IsArray() &&
			fragments[0].Field.Class != nil && !fragments[0].Field.Static {
			baseType = f.types.MorePreciseType(baseType, fragments[0].Field.Class.Type())
			if baseType == nil {
				return nil
			}
		}
		for i := 0; i < len(fragments)-1; i++ {
			cur := fragments[i].Type
			if cur == nil || cur.IsArray() || fragments[i+1].Field.Class == nil {
				continue
			}
			if t := f.types.MorePreciseType(cur, fragments[i+1].Field.Class.Type()); t != nil && t != cur {
				fragments[i] = fragments[i].WithType(t)
			}
		}
	}

	// only heap objects have fields
	if base != nil && base.Type() != nil && base.Type().IsArray() && len(fragments) > 0 {
		if elem := base.Type().Elem(); elem != nil && elem.IsPrimitive() {
			return nil
		}
	}
	if baseType != nil && baseType.IsPrimitive() && len(fragments) > 0 {
		return nil
	}
	for i := 0; i+1 < len(fragments); i++ {
		if t := fragments[i].Type; t != nil && t.IsPrimitive() {
			return nil
		}
	}

	cutOff := false
	if f.maxLength >= 0 && len(fragments) > f.maxLength {
		taintSubFields = true
		cutOff = true
		fragments = fragments[:f.maxLength]
	}
	if len(fragments) == 0 {
		fragments = nil
		if base == nil {
			// a static field path without any field cannot be tracked
			return nil
		}
	}

	ap := &AccessPath{
		value:                   base,
		baseType:                baseType,
		fragments:               fragments,
		taintSubFields:          taintSubFields,
		cutOffApproximation:     cutOff,
		arrayTaintType:          arrayType,
		canHaveImmutableAliases: canHaveImmutableAliases,
	}
	ap.key = accessPathKey(ap)
	return f.intern(ap)
}

func (f *AccessPathFactory) intern(ap *AccessPath) *AccessPath {
	old, _ := f.interned.PutIfAbsent(ap.key, ap)
	return old
}

func accessPathKey(ap *AccessPath) string {
	var sb strings.Builder
	if ap.value != nil {
		sb.WriteString("l")
		sb.WriteString(strconv.FormatInt(ap.value.ID(), 10))
	} else {
		sb.WriteString("s")
	}
	if ap.baseType != nil {
		sb.WriteString(":" + ap.baseType.Name())
	}
	for _, fr := range ap.fragments {
		sb.WriteString("|f")
		sb.WriteString(strconv.FormatInt(fr.Field.ID(), 10))
		if fr.Type != nil {
			sb.WriteString(":" + fr.Type.Name())
		}
		if fr.Context != nil {
			sb.WriteString("@")
			for _, c := range fr.Context {
				sb.WriteString(strconv.Quote(c))
			}
		}
	}
	sb.WriteString("|")
	for _, b := range []bool{ap.taintSubFields, ap.cutOffApproximation, ap.canHaveImmutableAliases} {
		if b {
			sb.WriteString("1")
		} else {
			sb.WriteString("0")
		}
	}
	sb.WriteString(strconv.Itoa(int(ap.arrayTaintType)))
	return sb.String()
}

// CopyWithNewValue returns the access path with the base replaced by v, keeping the fields of original
func (f *AccessPathFactory) CopyWithNewValue(original *AccessPath, v ir.Value) *AccessPath {
	return f.CopyWithNewValueArray(original, v, original.baseType, false, original.arrayTaintType)
}

// CopyWithNewValueTyped returns the access path with the base replaced by v of type newType. If cutFirstField is
// set, the first field of original is dropped, e.g. when mapping x.f to y on y = x.f.
func (f *AccessPathFactory) CopyWithNewValueTyped(original *AccessPath, v ir.Value, newType *ir.Type,
	cutFirstField bool) *AccessPath {
	return f.CopyWithNewValueArray(original, v, newType, cutFirstField, original.arrayTaintType)
}

// CopyWithNewValueArray is CopyWithNewValueTyped with an explicit array taint type
func (f *AccessPathFactory) CopyWithNewValueArray(original *AccessPath, v ir.Value, newType *ir.Type,
	cutFirstField bool, arrayType ArrayTaintType) *AccessPath {
	if l, ok := v.(*ir.Local); ok && original.value == l && original.baseType == newType &&
		original.arrayTaintType == arrayType && !cutFirstField {
		return original
	}
	newAP := f.Create(v, newType, original.fragments, original.taintSubFields, cutFirstField, arrayType,
		original.canHaveImmutableAliases)
	if newAP != nil && newAP.Equals(original) {
		return original
	}
	return newAP
}

// AppendFields returns original followed by the fragments toAppend
func (f *AccessPathFactory) AppendFields(original *AccessPath, toAppend []Fragment, taintSubFields bool) *AccessPath {
	if len(toAppend) == 0 {
		return original
	}
	fragments := make([]Fragment, 0, len(original.fragments)+len(toAppend))
	fragments = append(fragments, original.fragments...)
	fragments = append(fragments, toAppend...)
	if original.value == nil {
		return f.Create(nil, nil, fragments, taintSubFields, false, original.arrayTaintType,
			original.canHaveImmutableAliases)
	}
	return f.Create(original.value, original.baseType, fragments, taintSubFields, false, original.arrayTaintType,
		original.canHaveImmutableAliases)
}

// Merge appends the fields of ap2 to ap1
func (f *AccessPathFactory) Merge(ap1, ap2 *AccessPath) *AccessPath {
	return f.AppendFields(ap1, ap2.fragments, ap2.taintSubFields)
}

// DropLastField returns the access path without its last fragment
func (f *AccessPathFactory) DropLastField(ap *AccessPath) *AccessPath {
	if len(ap.fragments) == 0 {
		return ap
	}
	fragments := ap.fragments[:len(ap.fragments)-1]
	if ap.value == nil {
		return f.Create(nil, nil, fragments, ap.taintSubFields, false, ap.arrayTaintType,
			ap.canHaveImmutableAliases)
	}
	return f.Create(ap.value, ap.baseType, fragments, ap.taintSubFields, false, ap.arrayTaintType,
		ap.canHaveImmutableAliases)
}

// WithTaintSubFields returns the access path with the taintSubFields flag set to the value
func (f *AccessPathFactory) WithTaintSubFields(ap *AccessPath, taintSubFields bool) *AccessPath {
	if ap.taintSubFields == taintSubFields || ap.IsZero() || ap.IsEmpty() {
		return ap
	}
	if ap.value == nil {
		return f.Create(nil, nil, ap.fragments, taintSubFields, false, ap.arrayTaintType,
			ap.canHaveImmutableAliases)
	}
	return f.Create(ap.value, ap.baseType, ap.fragments, taintSubFields, false, ap.arrayTaintType,
		ap.canHaveImmutableAliases)
}
