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
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCollections(t *testing.T) {
	a := []int{3, 1, 2}
	if !Contains(a, 2) || Contains(a, 4) {
		t.Errorf("unexpected membership in %v", a)
	}
	if !Exists(a, func(x int) bool { return x > 2 }) || Exists(a, func(x int) bool { return x > 3 }) {
		t.Errorf("unexpected existence in %v", a)
	}
	MapInPlace(a, func(x int) int { return x * 10 })
	if diff := cmp.Diff([]int{30, 10, 20}, a); diff != "" {
		t.Errorf("MapInPlace (-want +got):\n%s", diff)
	}
	got := SetToOrderedSlice(map[string]bool{"b": true, "a": true, "c": false})
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Errorf("SetToOrderedSlice (-want +got):\n%s", diff)
	}
}

func TestSyncMapConcurrentPuts(t *testing.T) {
	var m SyncMap[int, int]
	var s SyncSet[int]
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.PutIfAbsent(i, w)
				s.Add(i)
			}
		}(w)
	}
	wg.Wait()
	if m.Len() != 100 || s.Len() != 100 {
		t.Fatalf("expected 100 entries, got %d in the map and %d in the set", m.Len(), s.Len())
	}
	items := s.Items()
	sort.Ints(items)
	if items[0] != 0 || items[99] != 99 {
		t.Errorf("unexpected set items %v", items)
	}
	m.Delete(0)
	if _, ok := m.Load(0); ok || m.Len() != 99 {
		t.Errorf("deleted key is still present")
	}
}
