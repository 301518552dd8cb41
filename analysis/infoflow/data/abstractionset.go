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

// AbstractionSet is an insertion-ordered set of abstractions. Abstractions are compared with Equals: adding an
// abstraction equal to one already in the set keeps the first one. The zero value is an empty set. An
// AbstractionSet is not safe for concurrent use.
type AbstractionSet struct {
	index map[AbstractionKey]int
	items []*Abstraction
}

// NewAbstractionSet returns a set containing the non-nil abstractions
func NewAbstractionSet(abs ...*Abstraction) *AbstractionSet {
	s := &AbstractionSet{}
	for _, a := range abs {
		s.Add(a)
	}
	return s
}

// Add adds a to the set and returns true if no equal abstraction was present. Nil is ignored.
func (s *AbstractionSet) Add(a *Abstraction) bool {
	if a == nil {
		return false
	}
	if s.index == nil {
		s.index = map[AbstractionKey]int{}
	}
	k := a.Key()
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = len(s.items)
	s.items = append(s.items, a)
	return true
}

// AddAll adds all the abstractions
func (s *AbstractionSet) AddAll(abs []*Abstraction) {
	for _, a := range abs {
		s.Add(a)
	}
}

// Contains returns true if an abstraction equal to a is in the set
func (s *AbstractionSet) Contains(a *Abstraction) bool {
	if a == nil || s.index == nil {
		return false
	}
	_, ok := s.index[a.Key()]
	return ok
}

// Get returns the abstraction of the set equal to a, or nil
func (s *AbstractionSet) Get(a *Abstraction) *Abstraction {
	if a == nil || s.index == nil {
		return nil
	}
	if i, ok := s.index[a.Key()]; ok {
		return s.items[i]
	}
	return nil
}

// Remove removes the abstraction equal to a. The order of the remaining abstractions is preserved.
func (s *AbstractionSet) Remove(a *Abstraction) bool {
	if a == nil || s.index == nil {
		return false
	}
	i, ok := s.index[a.Key()]
	if !ok {
		return false
	}
	delete(s.index, a.Key())
	s.items = append(s.items[:i], s.items[i+1:]...)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].Key()] = j
	}
	return true
}

// Len returns the size of the set
func (s *AbstractionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Items returns the abstractions in insertion order. The slice must not be modified.
func (s *AbstractionSet) Items() []*Abstraction {
	if s == nil {
		return nil
	}
	return s.items
}
