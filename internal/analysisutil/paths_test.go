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


package analysisutil

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestIsExcluded(t *testing.T) {
	exclude := []string{"/src/app/gen", "/src/app/internal/", "/src/app/main_gen.go"}
	for _, tc := range []struct {
		file string
		want bool
	}{
		{"/src/app/gen/types.go", true},
		{"/src/app/generated/types.go", false},
		{"/src/app/internal/x/y.go", true},
		{"/src/app/main_gen.go", true},
		{"/src/app/main.go", false},
	} {
		if got := IsExcluded(tc.file, exclude); got != tc.want {
			t.Errorf("IsExcluded(%s) = %v, want %v", tc.file, got, tc.want)
		}
	}
}

func TestMakeAbsolute(t *testing.T) {
	abs := MakeAbsolute([]string{"/root/x", "rel/dir/", "rel/file.go"})
	if abs[0] != "/root/x" {
		t.Errorf("absolute paths are kept, got %s", abs[0])
	}
	for _, p := range abs[1:] {
		if !filepath.IsAbs(p) {
			t.Errorf("expected an absolute path, got %s", p)
		}
	}
	if !strings.HasSuffix(abs[1], "rel/dir/") || !strings.HasSuffix(abs[2], "rel/file.go") {
		t.Errorf("unexpected paths %v", abs)
	}
}
