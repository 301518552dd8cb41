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

package sourcesink

import (
	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"github.com/awslabs/ar-go-ifds/internal/funcutil"
)

// hierarchy memoizes the parent classes and interfaces of classes. Super classes come first, walking upwards,
// such that the nearest definition of a method is found first.
type hierarchy struct {
	parents funcutil.SyncMap[*ir.Class, []*ir.Class]
}

func (h *hierarchy) parentsOf(c *ir.Class) []*ir.Class {
	if c == nil {
		return nil
	}
	return h.parents.PutIfAbsentElseGet(c, func() []*ir.Class {
		var res []*ir.Class
		seen := map[*ir.Class]bool{}
		add := func(x *ir.Class) {
			if !seen[x] {
				seen[x] = true
				res = append(res, x)
			}
		}
		if c.IsInterface {
			add(c)
		}
		for cur := c; cur != nil && !c.IsInterface; cur = cur.Super {
			add(cur)
		}
		n := len(res)
		for i := 0; i < n; i++ {
			for _, itf := range res[i].Interfaces {
				for _, x := range h.parentsOf(itf) {
					add(x)
				}
			}
		}
		return res
	})
}

// isSubclassOfAny returns true if c, one of its super classes or one of its interfaces is in classes
func (h *hierarchy) isSubclassOfAny(c *ir.Class, classes map[*ir.Class]bool) bool {
	for _, x := range h.parentsOf(c) {
		if classes[x] {
			return true
		}
	}
	return false
}
