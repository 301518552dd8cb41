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


// Package analysisutil contains helpers for the loading of the analyzed packages.
package analysisutil

import (
	"path/filepath"
	"strings"
)

// MakeAbsolute returns the paths made absolute with respect to the current directory. A trailing separator is
// kept, since it changes how the path matches files.
func MakeAbsolute(paths []string) []string {
	result := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if strings.HasSuffix(p, "/") && !strings.HasSuffix(abs, "/") {
			abs += "/"
		}
		result = append(result, abs)
	}
	return result
}

// IsExcluded returns true when one of the paths excludes the file. A path ending in .go excludes that file only,
// any other path excludes the files in the directory and its subdirectories.
func IsExcluded(filename string, exclude []string) bool {
	for _, e := range exclude {
		switch {
		case strings.HasSuffix(e, ".go"):
			if filename == e {
				return true
			}
		case strings.HasSuffix(e, "/"):
			if strings.HasPrefix(filename, e) {
				return true
			}
		default:
			if strings.HasPrefix(filename, e+"/") {
				return true
			}
		}
	}
	return false
}
