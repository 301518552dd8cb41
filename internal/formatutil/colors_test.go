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


package formatutil

import "testing"

func TestColor(t *testing.T) {
	defer SetColors(false)
	SetColors(false)
	if got := Red("sink", 1); got != "sink1" {
		t.Errorf("expected plain text without colors, got %q", got)
	}
	SetColors(true)
	if got := Green("source"); got != "\033[1;32msource\033[0m" {
		t.Errorf("expected colored text, got %q", got)
	}
}
