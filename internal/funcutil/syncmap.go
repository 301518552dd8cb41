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
	"sync"
	"sync/atomic"
)

// SyncMap is a typed wrapper around sync.Map. The zero value is ready to use.
type SyncMap[K comparable, V any] struct {
	m    sync.Map
	size int64
}

// Load returns the value stored for k, if any.
func (s *SyncMap[K, V]) Load(k K) (V, bool) {
	v, ok := s.m.Load(k)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// PutIfAbsent stores v for k if there was no value for k. It returns the previous value and true if one existed.
func (s *SyncMap[K, V]) PutIfAbsent(k K, v V) (V, bool) {
	old, loaded := s.m.LoadOrStore(k, v)
	if !loaded {
		atomic.AddInt64(&s.size, 1)
	}
	return old.(V), loaded
}

// PutIfAbsentElseGet returns the value stored for k, storing the result of mk() first if there was none.
// mk may be called even when the value ends up not being stored.
func (s *SyncMap[K, V]) PutIfAbsentElseGet(k K, mk func() V) V {
	if v, ok := s.m.Load(k); ok {
		return v.(V)
	}
	v, _ := s.PutIfAbsent(k, mk())
	return v
}

// Store sets the value for k.
func (s *SyncMap[K, V]) Store(k K, v V) {
	if _, loaded := s.m.Swap(k, v); !loaded {
		atomic.AddInt64(&s.size, 1)
	}
}

// Delete removes k from the map.
func (s *SyncMap[K, V]) Delete(k K) {
	if _, loaded := s.m.LoadAndDelete(k); loaded {
		atomic.AddInt64(&s.size, -1)
	}
}

// Range calls f sequentially on each key and value. Iteration stops when f returns false.
func (s *SyncMap[K, V]) Range(f func(k K, v V) bool) {
	s.m.Range(func(k, v any) bool { return f(k.(K), v.(V)) })
}

// Len returns the number of entries in the map.
func (s *SyncMap[K, V]) Len() int {
	return int(atomic.LoadInt64(&s.size))
}

// Clear removes all entries.
func (s *SyncMap[K, V]) Clear() {
	s.m.Range(func(k, _ any) bool {
		s.Delete(k.(K))
		return true
	})
}

// Values returns a snapshot of the values of the map.
func (s *SyncMap[K, V]) Values() []V {
	var r []V
	s.m.Range(func(_, v any) bool {
		r = append(r, v.(V))
		return true
	})
	return r
}

// SyncSet is a set backed by a SyncMap.
type SyncSet[K comparable] struct {
	m SyncMap[K, struct{}]
}

// Add adds k to the set and returns true if it was not already there.
func (s *SyncSet[K]) Add(k K) bool {
	_, loaded := s.m.PutIfAbsent(k, struct{}{})
	return !loaded
}

// Contains returns true if k is in the set.
func (s *SyncSet[K]) Contains(k K) bool {
	_, ok := s.m.Load(k)
	return ok
}

// Len returns the size of the set.
func (s *SyncSet[K]) Len() int { return s.m.Len() }

// Items returns a snapshot of the elements in the set.
func (s *SyncSet[K]) Items() []K {
	var r []K
	s.m.Range(func(k K, _ struct{}) bool {
		r = append(r, k)
		return true
	})
	return r
}

// Clear removes all elements.
func (s *SyncSet[K]) Clear() { s.m.Clear() }
