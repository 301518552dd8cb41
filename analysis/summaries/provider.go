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

package summaries

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Provider gives access to method summaries by class
type Provider interface {
	// MethodFlows returns the summaries of the method with the sub-signature in the class, nil if there are none
	MethodFlows(className, subSignature string) *MethodSummaries
	// ClassFlows returns all the summaries of the class, nil if there are none
	ClassFlows(className string) *ClassMethodSummaries
	// SupportsClass returns true if the provider has summaries for the class
	SupportsClass(className string) bool
	// AllClassesWithSummaries returns the names of the classes with summaries
	AllClassesWithSummaries() []string
	// IsMethodExcluded returns true if the method is explicitly known to have no flows
	IsMethodExcluded(className, subSignature string) bool
}

// MemorySummaryProvider is a Provider over summaries held in memory. It is safe for concurrent use.
type MemorySummaryProvider struct {
	mu       sync.RWMutex
	classes  map[string]*ClassMethodSummaries
	excluded map[string]map[string]bool
}

// NewMemorySummaryProvider returns a provider over the class summaries
func NewMemorySummaryProvider(classes ...*ClassMethodSummaries) *MemorySummaryProvider {
	p := &MemorySummaryProvider{
		classes:  map[string]*ClassMethodSummaries{},
		excluded: map[string]map[string]bool{},
	}
	for _, c := range classes {
		p.Add(c)
	}
	return p
}

// Add merges the summaries of the class into the provider
func (p *MemorySummaryProvider) Add(c *ClassMethodSummaries) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.classes[c.ClassName]; ok {
		old.Merge(c)
		return
	}
	p.classes[c.ClassName] = c
}

// AddFlow adds one flow for the method of the class
func (p *MemorySummaryProvider) AddFlow(className string, f *MethodFlow) {
	c := NewClassMethodSummaries(className)
	c.Methods.AddFlow(f)
	p.Add(c)
}

// Exclude marks the method as having no flows
func (p *MemorySummaryProvider) Exclude(className, method string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.excluded[className] == nil {
		p.excluded[className] = map[string]bool{}
	}
	p.excluded[className][method] = true
}

// MethodFlows implements Provider
func (p *MemorySummaryProvider) MethodFlows(className, subSignature string) *MethodSummaries {
	c := p.ClassFlows(className)
	if c.IsEmpty() {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := c.Methods.FilterForMethod(subSignature)
	if s.IsEmpty() {
		return nil
	}
	return s
}

// ClassFlows implements Provider
func (p *MemorySummaryProvider) ClassFlows(className string) *ClassMethodSummaries {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.classes[className]
}

// SupportsClass implements Provider
func (p *MemorySummaryProvider) SupportsClass(className string) bool {
	return p.ClassFlows(className) != nil
}

// AllClassesWithSummaries implements Provider
func (p *MemorySummaryProvider) AllClassesWithSummaries() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := lo.Keys(p.classes)
	sort.Strings(names)
	return names
}

// IsMethodExcluded implements Provider
func (p *MemorySummaryProvider) IsMethodExcluded(className, subSignature string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ex := p.excluded[className]
	return ex[subSignature] || ex[MethodNameOf(subSignature)]
}

// Validate validates all the summaries of the provider
func (p *MemorySummaryProvider) Validate() error {
	for _, name := range p.AllClassesWithSummaries() {
		if err := p.ClassFlows(name).Methods.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MergingSummaryProvider combines several providers. For a class summarized by several providers, the flows are
// merged.
type MergingSummaryProvider struct {
	providers []Provider
}

// NewMergingSummaryProvider returns the combination of the providers
func NewMergingSummaryProvider(providers ...Provider) *MergingSummaryProvider {
	return &MergingSummaryProvider{providers: lo.Filter(providers, func(p Provider, _ int) bool { return p != nil })}
}

// MethodFlows implements Provider
func (m *MergingSummaryProvider) MethodFlows(className, subSignature string) *MethodSummaries {
	var res *MethodSummaries
	for _, p := range m.providers {
		s := p.MethodFlows(className, subSignature)
		if s.IsEmpty() {
			continue
		}
		if res == nil {
			res = NewMethodSummaries()
		}
		res.Merge(s)
	}
	return res
}

// ClassFlows implements Provider
func (m *MergingSummaryProvider) ClassFlows(className string) *ClassMethodSummaries {
	var res *ClassMethodSummaries
	for _, p := range m.providers {
		c := p.ClassFlows(className)
		if c == nil {
			continue
		}
		if res == nil {
			res = NewClassMethodSummaries(className)
		}
		res.Merge(c)
	}
	return res
}

// SupportsClass implements Provider
func (m *MergingSummaryProvider) SupportsClass(className string) bool {
	return lo.SomeBy(m.providers, func(p Provider) bool { return p.SupportsClass(className) })
}

// AllClassesWithSummaries implements Provider
func (m *MergingSummaryProvider) AllClassesWithSummaries() []string {
	var names []string
	for _, p := range m.providers {
		names = append(names, p.AllClassesWithSummaries()...)
	}
	names = lo.Uniq(names)
	sort.Strings(names)
	return names
}

// IsMethodExcluded implements Provider
func (m *MergingSummaryProvider) IsMethodExcluded(className, subSignature string) bool {
	return lo.SomeBy(m.providers, func(p Provider) bool { return p.IsMethodExcluded(className, subSignature) })
}
