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


package funcutil

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// MapInPlace replaces every element x of the slice by f(x)
func MapInPlace[T any](a []T, f func(T) T) {
	for i, x := range a {
		a[i] = f(x)
	}
}

// Exists returns true when f holds for some element of a
func Exists[T any](a []T, f func(T) bool) bool {
	return slices.IndexFunc(a, f) >= 0
}

// Contains returns true when x is an element of a
func Contains[T comparable](a []T, x T) bool {
	return slices.Contains(a, x)
}

// SetToOrderedSlice returns the elements of the set, in increasing order. Elements mapped to false are not in
// the set.
func SetToOrderedSlice[T constraints.Ordered](set map[T]bool) []T {
	s := make([]T, 0, len(set))
	for x, in := range set {
		if in {
			s = append(s, x)
		}
	}
	slices.Sort(s)
	return s
}
