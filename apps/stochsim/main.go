// Copyright 2024 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command stochsim runs the canned simulation and inference scenarios of
// the stochastic engine. The single positional argument selects the
// scenario; an optional TOML file overrides the ensemble size, step count,
// time increment and random seed.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
)

type Flags struct {
	LogLevel logging.Level
	Scenario string // positional scenario selector
	Config   string // optional TOML override file
	CSV      bool   // dump CSV format; default: text
}

func parseFlags(args []string) (*Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("stochsim", flag.ExitOnError)
	flags.LogLevel = logging.Info
	fs.Var(&flags.LogLevel, "log-level", "Log level: debug, info, warning, error")
	fs.StringVar(&flags.Config, "conf", "", "optional TOML override file")
	fs.BoolVar(&flags.CSV, "csv", false, "print tables in CSV format; default: text")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, errors.Reason("expected one scenario argument, one of: %s",
			strings.Join(scenarioNames(), ", "))
	}
	flags.Scenario = fs.Arg(0)
	if _, ok := scenarios[flags.Scenario]; !ok {
		return nil, errors.Reason("unknown scenario '%s'; expected one of: %s",
			flags.Scenario, strings.Join(scenarioNames(), ", "))
	}
	return &flags, nil
}

// Overrides are the run parameters a TOML config file may replace.
type Overrides struct {
	N     int     `toml:"N"`
	Steps int     `toml:"steps"`
	DT    float64 `toml:"dt"`
	Seed  uint64  `toml:"seed"`
}

func parseOverrides(path string) (*Overrides, error) {
	var o Overrides
	if path == "" {
		return &o, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open config file %s", path)
	}
	defer f.Close()

	d := toml.NewDecoder(f)
	if err := d.Decode(&o); err != nil {
		return nil, errors.Annotate(err, "failed to read config file %s", path)
	}
	return &o, nil
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runScenario(ctx context.Context, flags *Flags, w io.Writer) error {
	over, err := parseOverrides(flags.Config)
	if err != nil {
		return errors.Annotate(err, "failed to parse overrides")
	}
	s := scenarios[flags.Scenario]
	logging.Infof(ctx, "running scenario %s: %s", flags.Scenario, s.desc)
	if err := s.run(ctx, &runEnv{over: over, csv: flags.CSV, w: w}); err != nil {
		return errors.Annotate(err, "scenario %s failed", flags.Scenario)
	}
	return nil
}

func main() {
	ctx := context.Background()
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		ctx = logging.Use(ctx, logging.DefaultGoLogger(logging.Info))
		logging.Errorf(ctx, "failed to parse flags: %s", err.Error())
		os.Exit(1)
	}
	ctx = logging.Use(ctx, logging.DefaultGoLogger(flags.LogLevel))

	if err := runScenario(ctx, flags, os.Stdout); err != nil {
		logging.Errorf(ctx, err.Error())
		os.Exit(1)
	}
}
