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

package main

import (
	"context"
	"fmt"

	"github.com/awslabs/ar-go-ifds/analysis/config"
	"github.com/awslabs/ar-go-ifds/analysis/ssafrontend"
	"github.com/awslabs/ar-go-ifds/internal/formatutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configPath string
	verbose    bool
	noColor    bool
	loadOpts   ssafrontend.Options

	rootCmd = &cobra.Command{
		Use:           "ifds",
		Short:         "Static taint analysis of Go programs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if noColor {
				formatutil.SetColors(false)
			}
		},
	}
)

// Execute executes the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().AddFlagSet(globalFlags())
	rootCmd.AddCommand(taintCmd)
	rootCmd.AddCommand(callgraphCmd)
	rootCmd.AddCommand(versionCmd)
}

func globalFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("global", pflag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "config file path")
	fs.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	fs.BoolVar(&noColor, "no-color", false, "print without colors")
	fs.StringVar(&loadOpts.Dir, "dir", "", "directory in which the package patterns are resolved")
	fs.StringVar(&loadOpts.Platform, "platform", "", "GOOS of the analyzed packages")
	fs.BoolVar(&loadOpts.Tests, "tests", false, "analyze the test packages too")
	fs.StringSliceVar(&loadOpts.Exclude, "exclude", nil, "files and directories whose functions are not analyzed")
	return fs
}

// requirePackages is the argument validator of the commands that load packages
func requirePackages(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w\nUsage:\n  %s", errNoPackages, cmd.UseLine())
	}
	return nil
}

// loadConfig loads the config file given with --config, or the default config when required is false and no
// file was given. --verbose raises the log level to debug.
func loadConfig(required bool) (*config.Config, error) {
	var cfg *config.Config
	if configPath == "" {
		if required {
			return nil, errMissingConfig
		}
		cfg = config.NewDefault()
	} else {
		config.SetGlobalConfig(configPath)
		c, err := config.LoadGlobal()
		if err != nil {
			return nil, fmt.Errorf("could not load config %s: %w", configPath, err)
		}
		cfg = c
	}
	if verbose && cfg.LogLevel < int(config.DebugLevel) {
		cfg.LogLevel = int(config.DebugLevel)
	}
	return cfg, nil
}
