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


// Package formatutil colors the text printed by the tools.
package formatutil

import (
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/term"
)

// colors is 1 when the escape sequences are printed
var colors atomic.Int32

func init() {
	SetColors(term.IsTerminal(int(os.Stdout.Fd())))
}

// SetColors turns the colors on or off. They are on by default when the standard output is a terminal.
func SetColors(on bool) {
	if on {
		colors.Store(1)
	} else {
		colors.Store(0)
	}
}

var (
	Bold   = Color("\033[1m%s\033[0m")
	Faint  = Color("\033[2m%s\033[0m")
	Red    = Color("\033[1;31m%s\033[0m")
	Green  = Color("\033[1;32m%s\033[0m")
	Yellow = Color("\033[1;33m%s\033[0m")
)

// Color returns a function printing its arguments with the escape sequence format. The arguments are printed
// as-is when the colors are off.
func Color(format string) func(...any) string {
	return func(args ...any) string {
		s := fmt.Sprint(args...)
		if colors.Load() == 0 {
			return s
		}
		return fmt.Sprintf(format, s)
	}
}
