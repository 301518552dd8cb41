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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// yamlFile is the format of a summary file
type yamlFile struct {
	Classes []yamlClass `yaml:"classes"`
}

type yamlClass struct {
	Name       string           `yaml:"name"`
	Superclass string           `yaml:"superclass,omitempty"`
	Interfaces []string         `yaml:"interfaces,omitempty"`
	Exclusive  bool             `yaml:"exclusive,omitempty"`
	Gaps       []*GapDefinition `yaml:"gaps,omitempty"`
	Flows      []*MethodFlow    `yaml:"flows,omitempty"`
	Clears     []*MethodClear   `yaml:"clears,omitempty"`
	// Excluded lists the methods known to have no flows
	Excluded []string `yaml:"excluded,omitempty"`
}

// ParseYAML parses and validates summaries in the YAML format
func ParseYAML(b []byte) ([]*ClassMethodSummaries, map[string][]string, error) {
	var f yamlFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, nil, fmt.Errorf("could not parse summaries: %w", err)
	}
	var res []*ClassMethodSummaries
	excluded := map[string][]string{}
	var errs []error
	for _, yc := range f.Classes {
		if yc.Name == "" {
			errs = append(errs, fmt.Errorf("class summaries without name"))
			continue
		}
		c := NewClassMethodSummaries(yc.Name)
		c.Superclass = yc.Superclass
		c.Interfaces = yc.Interfaces
		c.ExclusiveForClass = yc.Exclusive
		for _, g := range yc.Gaps {
			c.Methods.AddGap(g)
		}
		for _, fl := range yc.Flows {
			c.Methods.AddFlow(fl)
		}
		for _, cl := range yc.Clears {
			c.Methods.AddClear(cl)
		}
		if err := c.Methods.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("class %s: %w", yc.Name, err))
			continue
		}
		excluded[yc.Name] = yc.Excluded
		res = append(res, c)
	}
	return res, excluded, errors.Join(errs...)
}

// YAMLSummaryProvider loads summaries from YAML files. A file named after a class (for example
// "strings.Builder.yaml") is only read when the summaries of that class are first requested; other files are
// read when the provider is created.
type YAMLSummaryProvider struct {
	fsys   fs.FS
	logger *config.LogGroup

	mu      sync.Mutex
	lazy    map[string]string // class name -> file still to load
	loaded  *MemorySummaryProvider
	loadErr []error
}

// NewYAMLSummaryProvider returns a provider over the .yaml files found under root in fsys
func NewYAMLSummaryProvider(logger *config.LogGroup, fsys fs.FS, root string) (*YAMLSummaryProvider, error) {
	p := &YAMLSummaryProvider{
		fsys:   fsys,
		logger: logger,
		lazy:   map[string]string{},
		loaded: NewMemorySummaryProvider(),
	}
	var eager []string
	err := fs.WalkDir(fsys, root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAMLFile(name) {
			return nil
		}
		base := strings.TrimSuffix(strings.TrimSuffix(path.Base(name), ".yaml"), ".yml")
		if isClassFileName(base) {
			p.lazy[base] = name
		} else {
			eager = append(eager, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not list summary files in %s: %w", root, err)
	}
	for _, name := range eager {
		if err := p.loadFile(name); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NewYAMLSummaryProviderFromFiles returns a provider over the files or directories on disk
func NewYAMLSummaryProviderFromFiles(logger *config.LogGroup, paths ...string) (Provider, error) {
	var providers []Provider
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("summary file: %w", err)
		}
		dir, root := p, "."
		if !info.IsDir() {
			dir, root = filepath.Dir(p), filepath.Base(p)
		}
		yp, err := NewYAMLSummaryProvider(logger, os.DirFS(dir), root)
		if err != nil {
			return nil, err
		}
		providers = append(providers, yp)
	}
	if len(providers) == 1 {
		return providers[0], nil
	}
	return NewMergingSummaryProvider(providers...), nil
}

func isYAMLFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// isClassFileName returns true for file names that designate one class: a qualified name without the
// "summaries" prefix used for multi-class files
func isClassFileName(base string) bool {
	return strings.Contains(base, ".") && !strings.HasPrefix(base, "summaries")
}

func (p *YAMLSummaryProvider) loadFile(name string) error {
	b, err := fs.ReadFile(p.fsys, name)
	if err != nil {
		return fmt.Errorf("could not read summary file %s: %w", name, err)
	}
	classes, excluded, err := ParseYAML(b)
	if err != nil {
		return fmt.Errorf("summary file %s: %w", name, err)
	}
	for _, c := range classes {
		p.loaded.Add(c)
		for _, m := range excluded[c.ClassName] {
			p.loaded.Exclude(c.ClassName, m)
		}
	}
	if p.logger != nil {
		p.logger.Debugf("Loaded summaries for %d classes from %s", len(classes), name)
	}
	return nil
}

// ensureLoaded loads the file of the class if it has not been loaded yet
func (p *YAMLSummaryProvider) ensureLoaded(className string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name, ok := p.lazy[className]
	if !ok {
		return
	}
	delete(p.lazy, className)
	if err := p.loadFile(name); err != nil {
		p.loadErr = append(p.loadErr, err)
		if p.logger != nil {
			p.logger.Errorf("%v", err)
		}
	}
}

// LoadAll loads all the remaining files and returns the errors met while loading
func (p *YAMLSummaryProvider) LoadAll() error {
	p.mu.Lock()
	pending := lo.Keys(p.lazy)
	p.mu.Unlock()
	sort.Strings(pending)
	for _, c := range pending {
		p.ensureLoaded(c)
	}
	return p.Errors()
}

// Errors returns the errors met while loading files lazily
func (p *YAMLSummaryProvider) Errors() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.loadErr...)
}

// MethodFlows implements Provider
func (p *YAMLSummaryProvider) MethodFlows(className, subSignature string) *MethodSummaries {
	p.ensureLoaded(className)
	return p.loaded.MethodFlows(className, subSignature)
}

// ClassFlows implements Provider
func (p *YAMLSummaryProvider) ClassFlows(className string) *ClassMethodSummaries {
	p.ensureLoaded(className)
	return p.loaded.ClassFlows(className)
}

// SupportsClass implements Provider
func (p *YAMLSummaryProvider) SupportsClass(className string) bool {
	p.mu.Lock()
	_, pending := p.lazy[className]
	p.mu.Unlock()
	return pending || p.loaded.SupportsClass(className)
}

// AllClassesWithSummaries implements Provider
func (p *YAMLSummaryProvider) AllClassesWithSummaries() []string {
	p.mu.Lock()
	names := append(lo.Keys(p.lazy), p.loaded.AllClassesWithSummaries()...)
	p.mu.Unlock()
	names = lo.Uniq(names)
	sort.Strings(names)
	return names
}

// IsMethodExcluded implements Provider
func (p *YAMLSummaryProvider) IsMethodExcluded(className, subSignature string) bool {
	p.ensureLoaded(className)
	return p.loaded.IsMethodExcluded(className, subSignature)
}
