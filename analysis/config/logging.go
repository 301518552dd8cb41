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
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type LogLevel int

const (
	// ErrLevel=1 - the minimum level of logging.
	ErrLevel LogLevel = iota + 1

	// WarnLevel=2 - the level for logging warnings, and errors
	WarnLevel

	// InfoLevel=3 - the level for logging high-level information, results
	InfoLevel

	// DebugLevel=4 - the level for debugging information. The tool will run properly on large programs with
	// that level of debug information.
	DebugLevel

	// TraceLevel=5 - the level for tracing. The solvers log every processed edge at that level, use it only on
	// small programs.
	TraceLevel
)

func (l LogLevel) zerologLevel() zerolog.Level {
	switch l {
	case ErrLevel:
		return zerolog.ErrorLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case DebugLevel:
		return zerolog.DebugLevel
	case TraceLevel:
		return zerolog.TraceLevel
	default:
		if l > TraceLevel {
			return zerolog.TraceLevel
		}
		return zerolog.Disabled
	}
}

// LogGroup is a leveled logger shared by the components of an analysis.
type LogGroup struct {
	mu     sync.RWMutex
	level  LogLevel
	logger zerolog.Logger
}

// NewLogGroup returns a log group that is configured to the logging settings stored inside the config
func NewLogGroup(config *Config) *LogGroup {
	level := InfoLevel
	if config != nil && config.LogLevel != 0 {
		level = LogLevel(config.LogLevel)
	}
	l := &LogGroup{level: level}
	l.SetAllOutput(os.Stderr)
	return l
}

// NewNopLogGroup returns a log group that discards everything. Used mostly in tests.
func NewNopLogGroup() *LogGroup {
	return &LogGroup{level: ErrLevel, logger: zerolog.Nop()}
}

// SetAllOutput sets the output writer of the log group. Terminals get the colored console output.
func (l *LogGroup) SetAllOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out io.Writer = w
	if f, ok := w.(*os.File); ok {
		out = zerolog.ConsoleWriter{Out: f, TimeFormat: time.Kitchen}
	}
	l.logger = zerolog.New(out).Level(l.level.zerologLevel()).With().Timestamp().Logger()
}

// SetLevel changes the level of the log group
func (l *LogGroup) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.logger = l.logger.Level(level.zerologLevel())
}

// Level returns the level of the log group
func (l *LogGroup) Level() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// Logger returns the underlying logger, for components that log structured fields
func (l *LogGroup) Logger() *zerolog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lg := l.logger
	return &lg
}

func (l *LogGroup) enabled(level LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level >= level
}

// Tracef prints at trace level. Arguments are handled in the manner of Printf
func (l *LogGroup) Tracef(format string, v ...any) {
	if l.enabled(TraceLevel) {
		l.Logger().Trace().Msgf(format, v...)
	}
}

// Debugf prints at debug level. Arguments are handled in the manner of Printf
func (l *LogGroup) Debugf(format string, v ...any) {
	if l.enabled(DebugLevel) {
		l.Logger().Debug().Msgf(format, v...)
	}
}

// Infof prints at info level. Arguments are handled in the manner of Printf
func (l *LogGroup) Infof(format string, v ...any) {
	if l.enabled(InfoLevel) {
		l.Logger().Info().Msgf(format, v...)
	}
}

// Warnf prints at warning level. Arguments are handled in the manner of Printf
func (l *LogGroup) Warnf(format string, v ...any) {
	if l.enabled(WarnLevel) {
		l.Logger().Warn().Msgf(format, v...)
	}
}

// Errorf prints at error level. Arguments are handled in the manner of Printf
func (l *LogGroup) Errorf(format string, v ...any) {
	if l.enabled(ErrLevel) {
		l.Logger().Error().Msgf(format, v...)
	}
}

// GetDebug returns a standard library logger writing at debug level, for applications that need a logger as input
func (l *LogGroup) GetDebug() *log.Logger {
	return log.New(levelWriter{l, zerolog.DebugLevel}, "", 0)
}

// GetError returns a standard library logger writing at error level
func (l *LogGroup) GetError() *log.Logger {
	return log.New(levelWriter{l, zerolog.ErrorLevel}, "", 0)
}

type levelWriter struct {
	l     *LogGroup
	level zerolog.Level
}

func (w levelWriter) Write(p []byte) (int, error) {
	lg := w.l.Logger()
	lg.WithLevel(w.level).Msg(string(trimNewline(p)))
	return len(p), nil
}

func trimNewline(p []byte) []byte {
	if n := len(p); n > 0 && p[n-1] == '\n' {
		return p[:n-1]
	}
	return p
}
