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

package pointsto

import (
	"fmt"

	"github.com/awslabs/ar-go-ifds/analysis/ir"
	"golang.org/x/tools/container/intsets"
)

// NodeID identifies a pointer node: a local, a static field, the return value of a method, or a field of an
// abstract object
type NodeID int

type constraint interface {
	// For a complex constraint, returns the NodeID of the pointer
	// to which it is attached. For addr and copy, returns dst.
	ptr() NodeID

	// solve is called for complex constraints when the pts of the node to which they are attached has changed.
	// delta holds the objects added since the last call.
	solve(a *analysis, delta *intsets.Sparse)

	String() string
}

// dst = &obj
// pts(dst) ⊇ {obj}
// A base constraint used to initialize the solver's pt sets
type addrConstraint struct {
	dst NodeID // (ptr)
	obj int
}

func (c *addrConstraint) ptr() NodeID { return c.dst }

func (c *addrConstraint) solve(*analysis, *intsets.Sparse) {}

func (c *addrConstraint) String() string { return fmt.Sprintf("n%d = &o%d", c.dst, c.obj) }

// dst = src
// A simple constraint represented directly as a copyTo graph edge.
type copyConstraint struct {
	dst NodeID // (ptr)
	src NodeID
}

func (c *copyConstraint) ptr() NodeID { return c.dst }

func (c *copyConstraint) solve(*analysis, *intsets.Sparse) {}

func (c *copyConstraint) String() string { return fmt.Sprintf("n%d = n%d", c.dst, c.src) }

// dst = src.field, or dst = src[*] when field is nil
// A complex constraint attached to src (the pointer)
type loadConstraint struct {
	field *ir.Field
	dst   NodeID
	src   NodeID // (ptr)
}

func (c *loadConstraint) ptr() NodeID { return c.src }

func (c *loadConstraint) solve(a *analysis, delta *intsets.Sparse) {
	for _, o := range delta.AppendTo(nil) {
		a.addCopyEdge(a.fieldNode(o, c.field), c.dst)
	}
}

func (c *loadConstraint) String() string {
	return fmt.Sprintf("n%d = n%d.%s", c.dst, c.src, fieldName(c.field))
}

// dst.field = src, or dst[*] = src when field is nil
// A complex constraint attached to dst (the pointer)
type storeConstraint struct {
	field *ir.Field
	dst   NodeID // (ptr)
	src   NodeID
}

func (c *storeConstraint) ptr() NodeID { return c.dst }

func (c *storeConstraint) solve(a *analysis, delta *intsets.Sparse) {
	for _, o := range delta.AppendTo(nil) {
		a.addCopyEdge(c.src, a.fieldNode(o, c.field))
	}
}

func (c *storeConstraint) String() string {
	return fmt.Sprintf("n%d.%s = n%d", c.dst, fieldName(c.field), c.src)
}

func fieldName(f *ir.Field) string {
	if f == nil {
		return "[*]"
	}
	return f.Name
}
