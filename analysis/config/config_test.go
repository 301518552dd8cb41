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
	"bytes"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

//go:embed testdata
var testfsys embed.FS

func checkEqualOnNonEmptyFields(t *testing.T, cid1 CodeIdentifier, cid2 CodeIdentifier) {
	cid2c := CompileRegexes(cid2)
	if !cid1.equalOnNonEmptyFields(cid2c) {
		t.Errorf("%v should be equal modulo empty fields to %v", cid1, cid2)
	}
}

func checkNotEqualOnNonEmptyFields(t *testing.T, cid1 CodeIdentifier, cid2 CodeIdentifier) {
	cid2c := CompileRegexes(cid2)
	if cid1.equalOnNonEmptyFields(cid2c) {
		t.Errorf("%v should not be equal modulo empty fields to %v", cid1, cid2)
	}
}

func TestCodeIdentifier_equalOnNonEmptyFields_selfEquals(t *testing.T) {
	cid1 := CodeIdentifier{Package: "a", Method: "b"}
	checkEqualOnNonEmptyFields(t, cid1, cid1)
}

func TestCodeIdentifier_equalOnNonEmptyFields_emptyMatchesAny(t *testing.T) {
	cid1 := CodeIdentifier{Package: "a", Class: "b", Method: "i", Field: "c", Type: "d"}
	cid2 := CodeIdentifier{Package: "de", Class: "234jbn", Method: "ef", Field: "23kjb", Type: "d"}
	checkEqualOnNonEmptyFields(t, cid1, CodeIdentifier{})
	checkEqualOnNonEmptyFields(t, cid2, CodeIdentifier{})
}

func TestCodeIdentifier_equalOnNonEmptyFields_oneDiff(t *testing.T) {
	cid1 := CodeIdentifier{Package: "a", Class: "b"}
	cid2 := CodeIdentifier{Package: "a"}
	checkEqualOnNonEmptyFields(t, cid1, cid2)
	checkNotEqualOnNonEmptyFields(t, cid2, cid1)
}

func TestCodeIdentifier_equalOnNonEmptyFields_regexes(t *testing.T) {
	cid1 := CodeIdentifier{Package: "main", Method: "b"}
	cid1bis := CodeIdentifier{Package: "command-line-arguments", Method: "b"}
	cid2 := CodeIdentifier{Package: "(main)|(command-line-arguments)$"}
	checkEqualOnNonEmptyFields(t, cid1, cid2)
	checkEqualOnNonEmptyFields(t, cid1bis, cid2)
}

func TestCodeIdentifier_TargetArgIndex(t *testing.T) {
	for target, expected := range map[string]int{"arg:2": 2, "arg:x": -1, "return": -1, "": -1, "arg:-1": -1} {
		if i := (CodeIdentifier{Target: target}).TargetArgIndex(); i != expected {
			t.Errorf("target %q: expected %d, got %d", target, expected, i)
		}
	}
}

func loadFromTestDir(filename string) (string, *Config, error) {
	filename = filepath.Join("testdata", filename)
	b, err := testfsys.ReadFile(filename)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read file %v: %v", filename, err)
	}
	config, err := LoadBytes(filename, b)
	if err != nil {
		return filename, nil, fmt.Errorf("failed to load file %v: %w", filename, err)
	}
	return filename, config, err
}

func TestNewDefault(t *testing.T) {
	c := NewDefault()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if c.AccessPathLength != DefaultAccessPathLength {
		t.Errorf("default access path length should be %d", DefaultAccessPathLength)
	}
	if c.MaxCalleesPerCallSite != 75 || c.MaxAbstractionPathLength != 100 {
		t.Errorf("unexpected default solver bounds: %d %d", c.MaxCalleesPerCallSite, c.MaxAbstractionPathLength)
	}
	if c.HasDataFlowTimeout() {
		t.Errorf("default config should not have a timeout")
	}
	if !c.FollowReturnsPastSeeds {
		t.Errorf("returns of methods reached from a seed should be followed by default")
	}
	c, err := LoadBytes("inline.yaml", []byte("options:\n  follow-returns-past-seeds: false\n"))
	if err != nil {
		t.Fatalf("could not load config: %v", err)
	}
	if c.FollowReturnsPastSeeds {
		t.Errorf("follow-returns-past-seeds: false should override the default")
	}
}

func TestLoadNonExistentFileReturnsError(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "does-not-exist.yaml"))
	if c != nil || err == nil {
		t.Errorf("Expected error and nil value when trying to load non existent file.")
	}
}

func TestLoadBadFormatFileReturnsError(t *testing.T) {
	_, config, err := loadFromTestDir("bad_format.yaml")
	if config != nil || err == nil {
		t.Errorf("Expected error and nil value when trying to load a badly formatted file.")
	}
}

func TestLoadUnsupportedOptionFailsFast(t *testing.T) {
	for _, name := range []string{"bad_aliasing.yaml", "additional_no_conditional.yaml"} {
		_, config, err := loadFromTestDir(name)
		if config != nil || !errors.Is(err, ErrUnsupportedConfiguration) {
			t.Errorf("%s: expected an unsupported configuration error, got %v", name, err)
		}
	}
}

func TestLoadMisc(t *testing.T) {
	fileName, config, err := loadFromTestDir("config.yaml")
	if err != nil {
		t.Fatalf("could not load %s: %v", fileName, err)
	}
	if config.LogLevel != int(InfoLevel) {
		t.Errorf("log level should default to info")
	}
	if !config.IsSomeSource(CodeIdentifier{Package: "a", Method: "b"}) {
		t.Errorf("a.b should be a source")
	}
	if !config.IsSomeSink(CodeIdentifier{Package: "c", Method: "d"}) {
		t.Errorf("c.d should be a sink")
	}
	if config.IsSomeSink(CodeIdentifier{Package: "a", Method: "b"}) {
		t.Errorf("a.b should not be a sink")
	}
}

//gocyclo:ignore
func TestLoadFullConfig(t *testing.T) {
	fileName, config, err := loadFromTestDir("full-config.yaml")
	if config == nil || err != nil {
		t.Fatalf("Could not load %s: %v", fileName, err)
	}
	if config.LogLevel != int(TraceLevel) {
		t.Error("full config should have set trace")
	}
	if config.AccessPathLength != 3 {
		t.Error("full config should set access-path-length to 3")
	}
	if config.StaticFieldTracking != StaticFieldTrackingNone {
		t.Error("full config should disable static field tracking")
	}
	if config.AliasingAlgorithm != AliasingPtsBased {
		t.Error("full config should use pts-based aliasing")
	}
	if config.PathShortening != ShorteningAlways || config.EnableExceptionTracking {
		t.Error("full config should set path shortening and disable exceptions")
	}
	if config.DataFlowTimeout != 30 || config.ResultTimeout != 10 || !config.HasDataFlowTimeout() {
		t.Error("full config should set the timeouts")
	}
	if config.MemoryThreshold != 0.8 || config.StopAfterFirstKFlows != 2 || config.MaxCalleesPerCallSite != -1 {
		t.Error("full config numeric options not loaded")
	}
	if !config.FollowReturnsPastSeeds || config.NumWorkers != 4 || config.SchedulingStrategy != SchedulingThreads {
		t.Error("full config solver options not loaded")
	}
	if config.RelPath(config.SummaryFiles[0]) != filepath.Join("testdata", "summaries.yaml") {
		t.Errorf("summary files should be relative to the config file, got %s", config.RelPath(config.SummaryFiles[0]))
	}
	if !config.HasConditionalSinks() {
		t.Fatal("full config should have a conditional sink")
	}
	ts := config.TaintTrackingProblems[0]
	if !ts.IsSource(CodeIdentifier{Package: "some/package", Method: "Read"}) {
		t.Error("the source package should be matched as a regex")
	}
	if ts.Sources[0].TargetArgIndex() != 1 {
		t.Error("the source should target the second argument")
	}
	cs := ts.ConditionalSink(CodeIdentifier{Package: "bufio", Class: "Writer", Method: "Write"})
	if cs == nil || len(cs.ClassNamesOnPath) != 1 || cs.ExcludedClassNames[0] != "bytes.Buffer" {
		t.Errorf("conditional sink not loaded correctly: %v", cs)
	}
}

func TestLogGroupLevels(t *testing.T) {
	c := NewDefault()
	c.LogLevel = int(WarnLevel)
	l := NewLogGroup(c)
	buf := &bytes.Buffer{}
	l.SetAllOutput(buf)
	l.Infof("hidden %d", 1)
	l.Warnf("shown %d", 2)
	l.Errorf("shown %d", 3)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should not be printed at warn level: %s", out)
	}
	if !strings.Contains(out, "shown 2") || !strings.Contains(out, "shown 3") {
		t.Errorf("warn and error messages should be printed: %s", out)
	}
	l.SetLevel(TraceLevel)
	l.Tracef("trace %s", "me")
	if !strings.Contains(buf.String(), "trace me") {
		t.Errorf("trace message should be printed after raising the level")
	}
}
