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

package config

import (
	"regexp"
	"strconv"
	"strings"
)

// A CodeIdentifier identifies a code element that is a source, sink, etc..
// A code identifier can be identified from its package, class, method, field
// or type, or any combination of those.
// Target selects which value of a matched call is concerned: "return" (the default for sources), "base", "args"
// (the default for sinks) or "arg:<n>".
type CodeIdentifier struct {
	Package string
	Class   string
	Method  string
	Field   string
	Type    string
	Target  string
	// This will not be part of the yaml config
	computedRegexs *CodeIdentifierRegex
}

type CodeIdentifierRegex struct {
	packageRegex *regexp.Regexp
	classRegex   *regexp.Regexp
	methodRegex  *regexp.Regexp
	fieldRegex   *regexp.Regexp
	typeRegex    *regexp.Regexp
}

// Targets of a code identifier
const (
	TargetReturn = "return"
	TargetBase   = "base"
	TargetArgs   = "args"
	targetArg    = "arg:"
)

// CompileRegexes compiles the strings in the code identifier into regexes. It compiles all identifiers into regexes
// or none.
func CompileRegexes(cid CodeIdentifier) CodeIdentifier {
	var regexes [5]*regexp.Regexp
	for i, s := range []string{cid.Package, cid.Class, cid.Method, cid.Field, cid.Type} {
		r, err := regexp.Compile(s)
		if err != nil {
			return cid
		}
		regexes[i] = r
	}
	cid.computedRegexs = &CodeIdentifierRegex{
		packageRegex: regexes[0],
		classRegex:   regexes[1],
		methodRegex:  regexes[2],
		fieldRegex:   regexes[3],
		typeRegex:    regexes[4],
	}
	return cid
}

// Matches returns true if cid, which identifies a concrete code element, matches the specification spec.
func (cid CodeIdentifier) Matches(spec CodeIdentifier) bool {
	return cid.equalOnNonEmptyFields(spec)
}

// equalOnNonEmptyFields returns true if each of the receiver's fields are either equal to the corresponding
// argument's field, or the argument's field is empty
func (cid *CodeIdentifier) equalOnNonEmptyFields(cidRef CodeIdentifier) bool {
	if cidRef.computedRegexs != nil {
		return matchOrEmpty(cidRef.computedRegexs.packageRegex, cidRef.Package, cid.Package) &&
			matchOrEmpty(cidRef.computedRegexs.classRegex, cidRef.Class, cid.Class) &&
			matchOrEmpty(cidRef.computedRegexs.methodRegex, cidRef.Method, cid.Method) &&
			matchOrEmpty(cidRef.computedRegexs.fieldRegex, cidRef.Field, cid.Field) &&
			matchOrEmpty(cidRef.computedRegexs.typeRegex, cidRef.Type, cid.Type)
	}
	return ((cid.Package == cidRef.Package) || (cidRef.Package == "")) &&
		((cid.Class == cidRef.Class) || (cidRef.Class == "")) &&
		((cid.Method == cidRef.Method) || (cidRef.Method == "")) &&
		((cid.Field == cidRef.Field) || (cidRef.Field == "")) &&
		((cid.Type == cidRef.Type) || (cidRef.Type == ""))
}

func matchOrEmpty(r *regexp.Regexp, spec string, s string) bool {
	return spec == "" || r.MatchString(s)
}

// TargetArgIndex returns the argument index designated by a target of the form "arg:<n>", or -1.
func (cid CodeIdentifier) TargetArgIndex() int {
	if !strings.HasPrefix(cid.Target, targetArg) {
		return -1
	}
	i, err := strconv.Atoi(strings.TrimPrefix(cid.Target, targetArg))
	if err != nil || i < 0 {
		return -1
	}
	return i
}

func (cid CodeIdentifier) String() string {
	var parts []string
	for _, p := range [][2]string{{"package", cid.Package}, {"class", cid.Class}, {"method", cid.Method},
		{"field", cid.Field}, {"type", cid.Type}, {"target", cid.Target}} {
		if p[1] != "" {
			parts = append(parts, p[0]+"="+p[1])
		}
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// ExistsCid is true if there is some x in a such that f(x) is true.
func ExistsCid(a []CodeIdentifier, f func(identifier CodeIdentifier) bool) bool {
	for _, x := range a {
		if f(x) {
			return true
		}
	}
	return false
}
