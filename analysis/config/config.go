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

package config

import (
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/awslabs/ar-go-ifds/internal/funcutil"
	"gopkg.in/yaml.v3"
)

var (
	// The global config file
	configFile string

	// ErrUnsupportedConfiguration is wrapped by all the errors returned by Validate
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")
)

// SetGlobalConfig sets the global config filename
func SetGlobalConfig(filename string) {
	configFile = filename
}

// LoadGlobal loads the config file that has been set by SetGlobalConfig
func LoadGlobal() (*Config, error) {
	return Load(configFile)
}

// Config contains the options of the data flow engine and the taint tracking problems it should solve.
// If some field is not defined in the config file, it will be empty/zero in the struct.
// private fields are not populated from a yaml file, but computed after initialization
type Config struct {
	Options

	sourceFile string

	// TaintTrackingProblems lists the taint tracking specifications
	TaintTrackingProblems []TaintSpec `yaml:"taint-tracking-problems"`

	// SummaryFiles is a list of yaml files containing method summaries. Paths are relative to the config file.
	SummaryFiles []string `yaml:"summary-files"`

	// WrapperFiles is a list of files in the "easy taint wrapper" format. Paths are relative to the config file.
	WrapperFiles []string `yaml:"wrapper-files"`
}

// TaintSpec contains code identifiers that identify a specific taint tracking problem
type TaintSpec struct {
	// Sinks is the list of sinks for the taint analysis
	Sinks []CodeIdentifier

	// Sources is the list of sources for the taint analysis
	Sources []CodeIdentifier

	// ConditionalSinks are sinks that are only reported when the secondary flow condition holds
	ConditionalSinks []ConditionalSinkSpec `yaml:"conditional-sinks"`
}

// ConditionalSinkSpec is a sink whose results are kept only if a secondary flow starting from the object the data
// flows into reaches one of the methods or classes of the condition
type ConditionalSinkSpec struct {
	Sink CodeIdentifier

	// SignaturesOnPath are method signatures that must be reached by the secondary flow
	SignaturesOnPath []string `yaml:"signatures-on-path"`

	// ClassNamesOnPath are class names whose methods must be reached by the secondary flow
	ClassNamesOnPath []string `yaml:"class-names-on-path"`

	// ExcludedClassNames are base classes for which the sink is never reported
	ExcludedClassNames []string `yaml:"excluded-class-names"`
}

// Options are the solver and analysis options
type Options struct {
	// ReportsDir is the directory where the reports are written. Empty means no report files.
	ReportsDir string `xml:"reports-dir,attr" yaml:"reports-dir"`

	// AccessPathLength bounds the number of fields in an access path. Negative means unbounded.
	AccessPathLength int `xml:"access-path-length,attr" yaml:"access-path-length"`

	// StaticFieldTracking is one of none or context-flow-sensitive
	StaticFieldTracking string `xml:"static-field-tracking,attr" yaml:"static-field-tracking"`

	// AliasingAlgorithm is one of none, flow-sensitive, pts-based or lazy
	AliasingAlgorithm string `xml:"aliasing-algorithm,attr" yaml:"aliasing-algorithm"`

	// PathShortening is one of none, shorten-if-equal or always
	PathShortening string `xml:"path-shortening,attr" yaml:"path-shortening"`

	// ImplicitFlowMode is one of none, array-accesses or all
	ImplicitFlowMode string `xml:"implicit-flow-mode,attr" yaml:"implicit-flow-mode"`

	// EnableExceptionTracking tracks taints through thrown exceptions
	EnableExceptionTracking bool `xml:"enable-exceptions,attr" yaml:"enable-exceptions"`

	// EnableArrayTracking tracks taints through array elements and array lengths
	EnableArrayTracking bool `xml:"enable-arrays,attr" yaml:"enable-arrays"`

	// EnableTypeChecking drops taints on casts to incompatible types
	EnableTypeChecking bool `xml:"enable-type-checking,attr" yaml:"enable-type-checking"`

	// DataFlowTimeout is the timeout of the data flow solvers, in seconds. 0 means no timeout.
	DataFlowTimeout int `xml:"data-flow-timeout,attr" yaml:"data-flow-timeout"`

	// ResultTimeout is the timeout of the path reconstruction, in seconds. 0 means no timeout.
	ResultTimeout int `xml:"result-timeout,attr" yaml:"result-timeout"`

	// MemoryThreshold is the fraction of MaxMemory at which the solvers are stopped
	MemoryThreshold float64 `xml:"memory-threshold,attr" yaml:"memory-threshold"`

	// MaxMemory is the memory budget of the analysis in megabytes. 0 means the watcher uses the Go runtime limit.
	MaxMemory uint64 `xml:"max-memory,attr" yaml:"max-memory"`

	// StopAfterFirstKFlows stops the analysis once that many results are found. 0 means no limit.
	StopAfterFirstKFlows int `xml:"stop-after-first-k-flows,attr" yaml:"stop-after-first-k-flows"`

	// SingleJoinPointAbstraction keeps a single abstraction per join point, losing paths
	SingleJoinPointAbstraction bool `xml:"single-join-point-abstraction,attr" yaml:"single-join-point-abstraction"`

	// MaxJoinPointAbstractions bounds the number of neighbors kept at a join point. Negative means unbounded.
	MaxJoinPointAbstractions int `xml:"max-join-point-abstractions,attr" yaml:"max-join-point-abstractions"`

	// MaxCalleesPerCallSite skips call sites with more callees. Negative means unbounded.
	MaxCalleesPerCallSite int `xml:"max-callees-per-call-site,attr" yaml:"max-callees-per-call-site"`

	// MaxAbstractionPathLength drops abstractions with longer propagation paths. Negative means unbounded.
	MaxAbstractionPathLength int `xml:"max-abstraction-path-length,attr" yaml:"max-abstraction-path-length"`

	// InspectSources lets the analysis propagate taints into source methods
	InspectSources bool `xml:"inspect-sources,attr" yaml:"inspect-sources"`

	// InspectSinks lets the analysis propagate taints into sink methods
	InspectSinks bool `xml:"inspect-sinks,attr" yaml:"inspect-sinks"`

	// FollowReturnsPastSeeds propagates returns of methods that have no incoming context into all their callers
	FollowReturnsPastSeeds bool `xml:"follow-returns-past-seeds,attr" yaml:"follow-returns-past-seeds"`

	// AdditionalFlowsEnabled runs the secondary flow analysis for conditional sinks
	AdditionalFlowsEnabled bool `xml:"additional-flows,attr" yaml:"additional-flows"`

	// PathAgnosticResults considers results equal when source and sink are equal, regardless of the path
	PathAgnosticResults bool `xml:"path-agnostic-results,attr" yaml:"path-agnostic-results"`

	// ComputePaths reconstructs the source to sink paths of the results
	ComputePaths bool `xml:"compute-paths,attr" yaml:"compute-paths"`

	// NumWorkers is the size of the solver worker pool. 0 means the number of CPUs.
	NumWorkers int `xml:"num-workers,attr" yaml:"num-workers"`

	// SchedulingStrategy is one of each-edge or method-thread
	SchedulingStrategy string `xml:"scheduling-strategy,attr" yaml:"scheduling-strategy"`

	// LogLevel controls the verbosity of the tool
	LogLevel int `xml:"log-level,attr" yaml:"log-level"`
}

// Values of the string-valued options
const (
	StaticFieldTrackingNone                 = "none"
	StaticFieldTrackingContextFlowSensitive = "context-flow-sensitive"

	AliasingNone          = "none"
	AliasingFlowSensitive = "flow-sensitive"
	AliasingPtsBased      = "pts-based"
	AliasingLazy          = "lazy"

	ShorteningNone    = "none"
	ShortenIfEqual    = "shorten-if-equal"
	ShorteningAlways  = "always"
	ImplicitNone      = "none"
	ImplicitArrays    = "array-accesses"
	ImplicitAll       = "all"
	SchedulingEach    = "each-edge"
	SchedulingThreads = "method-thread"
)

// Default values of numeric options
const (
	DefaultAccessPathLength         = 5
	DefaultMaxCalleesPerCallSite    = 75
	DefaultMaxAbstractionPathLength = 100
	DefaultMaxJoinPointAbstractions = 10
	DefaultMemoryThreshold          = 0.9
)

// NewDefault returns a config with the default options and no taint tracking problem.
func NewDefault() *Config {
	return &Config{
		sourceFile:            "",
		TaintTrackingProblems: nil,
		SummaryFiles:          []string{},
		WrapperFiles:          []string{},
		Options: Options{
			AccessPathLength:         DefaultAccessPathLength,
			StaticFieldTracking:      StaticFieldTrackingContextFlowSensitive,
			AliasingAlgorithm:        AliasingFlowSensitive,
			PathShortening:           ShortenIfEqual,
			ImplicitFlowMode:         ImplicitNone,
			EnableExceptionTracking:  true,
			EnableArrayTracking:      true,
			EnableTypeChecking:       true,
			MemoryThreshold:          DefaultMemoryThreshold,
			MaxJoinPointAbstractions: DefaultMaxJoinPointAbstractions,
			MaxCalleesPerCallSite:    DefaultMaxCalleesPerCallSite,
			MaxAbstractionPathLength: DefaultMaxAbstractionPathLength,
			FollowReturnsPastSeeds:   true,
			SchedulingStrategy:       SchedulingEach,
			LogLevel:                 int(InfoLevel),
		},
	}
}

// Load reads a configuration from a file
func Load(filename string) (*Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	return LoadBytes(filename, b)
}

// LoadBytes parses the configuration in b. The filename is used to resolve relative paths.
func LoadBytes(filename string, b []byte) (*Config, error) {
	cfg := NewDefault()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config file: %w", err)
	}
	cfg.sourceFile = filename

	// If logLevel has not been specified (i.e. it is 0) set the default to Info
	if cfg.LogLevel == 0 {
		cfg.LogLevel = int(InfoLevel)
	}

	for i := range cfg.TaintTrackingProblems {
		tSpec := &cfg.TaintTrackingProblems[i]
		funcutil.MapInPlace(tSpec.Sinks, CompileRegexes)
		funcutil.MapInPlace(tSpec.Sources, CompileRegexes)
		for j := range tSpec.ConditionalSinks {
			tSpec.ConditionalSinks[j].Sink = CompileRegexes(tSpec.ConditionalSinks[j].Sink)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.ReportsDir != "" {
		if err := os.Mkdir(cfg.ReportsDir, 0750); err != nil && !os.IsExist(err) {
			return nil, fmt.Errorf("could not create directory %s", cfg.ReportsDir)
		}
	}
	return cfg, nil
}

// Validate checks that the option values are supported
//
//gocyclo:ignore
func (c Config) Validate() error {
	check := func(name, value string, allowed ...string) error {
		if !funcutil.Contains(allowed, value) {
			return fmt.Errorf("%w: %s %q, expected one of %v", ErrUnsupportedConfiguration, name, value, allowed)
		}
		return nil
	}
	if err := check("static-field-tracking", c.StaticFieldTracking,
		StaticFieldTrackingNone, StaticFieldTrackingContextFlowSensitive); err != nil {
		return err
	}
	if err := check("aliasing-algorithm", c.AliasingAlgorithm,
		AliasingNone, AliasingFlowSensitive, AliasingPtsBased, AliasingLazy); err != nil {
		return err
	}
	if err := check("path-shortening", c.PathShortening,
		ShorteningNone, ShortenIfEqual, ShorteningAlways); err != nil {
		return err
	}
	if err := check("implicit-flow-mode", c.ImplicitFlowMode, ImplicitNone, ImplicitArrays, ImplicitAll); err != nil {
		return err
	}
	if err := check("scheduling-strategy", c.SchedulingStrategy, SchedulingEach, SchedulingThreads); err != nil {
		return err
	}
	if c.MemoryThreshold < 0 || c.MemoryThreshold > 1 {
		return fmt.Errorf("%w: memory-threshold must be in [0,1], got %v", ErrUnsupportedConfiguration,
			c.MemoryThreshold)
	}
	if c.DataFlowTimeout < 0 || c.ResultTimeout < 0 {
		return fmt.Errorf("%w: timeouts cannot be negative", ErrUnsupportedConfiguration)
	}
	if c.StopAfterFirstKFlows < 0 {
		return fmt.Errorf("%w: stop-after-first-k-flows cannot be negative", ErrUnsupportedConfiguration)
	}
	if c.ImplicitFlowMode != ImplicitNone && c.AliasingAlgorithm == AliasingPtsBased {
		return fmt.Errorf("%w: implicit flows cannot be combined with pts-based aliasing",
			ErrUnsupportedConfiguration)
	}
	if c.AdditionalFlowsEnabled && !c.HasConditionalSinks() {
		return fmt.Errorf("%w: additional flows enabled but no conditional sink is specified",
			ErrUnsupportedConfiguration)
	}
	return nil
}

// RelPath returns filename path relative to the config source file
func (c Config) RelPath(filename string) string {
	if path.IsAbs(filename) {
		return filename
	}
	return path.Join(path.Dir(c.sourceFile), filename)
}

// HasConditionalSinks returns true if some taint tracking problem declares a conditional sink
func (c Config) HasConditionalSinks() bool {
	return funcutil.Exists(c.TaintTrackingProblems, func(t TaintSpec) bool { return len(t.ConditionalSinks) > 0 })
}

// Below are functions used to query the configuration on specific facts

func (c Config) isSomeTaintSpecCid(cid CodeIdentifier, f func(t TaintSpec, cid CodeIdentifier) bool) bool {
	for _, x := range c.TaintTrackingProblems {
		if f(x, cid) {
			return true
		}
	}
	return false
}

// IsSomeSource returns true if the code identifier matches any source in the config
func (c Config) IsSomeSource(cid CodeIdentifier) bool {
	return c.isSomeTaintSpecCid(cid, func(t TaintSpec, cid2 CodeIdentifier) bool { return t.IsSource(cid2) })
}

// IsSomeSink returns true if the code identifier matches any sink in the config
func (c Config) IsSomeSink(cid CodeIdentifier) bool {
	return c.isSomeTaintSpecCid(cid, func(t TaintSpec, cid2 CodeIdentifier) bool { return t.IsSink(cid2) })
}

// IsSource returns true if the code identifier matches a source specification in the config file
func (ts TaintSpec) IsSource(cid CodeIdentifier) bool {
	return ExistsCid(ts.Sources, cid.equalOnNonEmptyFields)
}

// IsSink returns true if the code identifier matches a sink specification in the config file
func (ts TaintSpec) IsSink(cid CodeIdentifier) bool {
	return ExistsCid(ts.Sinks, cid.equalOnNonEmptyFields)
}

// ConditionalSink returns the conditional sink specification matching the code identifier, if any
func (ts TaintSpec) ConditionalSink(cid CodeIdentifier) *ConditionalSinkSpec {
	for i := range ts.ConditionalSinks {
		if cid.equalOnNonEmptyFields(ts.ConditionalSinks[i].Sink) {
			return &ts.ConditionalSinks[i]
		}
	}
	return nil
}

// Verbose returns true is the configuration verbosity setting is larger than Info (i.e. Debug or Trace)
func (c Config) Verbose() bool {
	return c.LogLevel >= int(DebugLevel)
}

// HasDataFlowTimeout returns true if the solvers are subject to a timeout
func (c Config) HasDataFlowTimeout() bool {
	return c.DataFlowTimeout > 0
}
