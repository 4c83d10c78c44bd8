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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stockparfait/logging"
	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(t *testing.T) {
	t.Parallel()

	tmpdir, tmpdirErr := os.MkdirTemp("", "test_stochsim")
	defer os.RemoveAll(tmpdir)

	Convey("Setup succeeded", t, func() {
		So(tmpdirErr, ShouldBeNil)
	})

	Convey("parseFlags", t, func() {
		Convey("accepts a scenario with options", func() {
			flags, err := parseFlags([]string{
				"-log-level", "warning", "-csv", "R1"})
			So(err, ShouldBeNil)
			So(flags.Scenario, ShouldEqual, "R1")
			So(flags.LogLevel, ShouldEqual, logging.Warning)
			So(flags.CSV, ShouldBeTrue)
		})

		Convey("rejects a missing scenario", func() {
			_, err := parseFlags([]string{"-csv"})
			So(err, ShouldNotBeNil)
		})

		Convey("rejects an unknown scenario", func() {
			_, err := parseFlags([]string{"R99"})
			So(err, ShouldNotBeNil)
		})
	})

	Convey("parseOverrides", t, func() {
		Convey("empty path yields zero overrides", func() {
			o, err := parseOverrides("")
			So(err, ShouldBeNil)
			So(o.N, ShouldEqual, 0)
			So(o.Seed, ShouldEqual, 0)
		})

		Convey("TOML file overrides run parameters", func() {
			path := filepath.Join(tmpdir, "overrides.toml")
			So(testutil.WriteFile(path, `
N = 20
steps = 10
dt = 0.5
seed = 7
`), ShouldBeNil)
			o, err := parseOverrides(path)
			So(err, ShouldBeNil)
			So(o.N, ShouldEqual, 20)
			So(o.Steps, ShouldEqual, 10)
			So(o.DT, ShouldEqual, 0.5)
			So(o.Seed, ShouldEqual, 7)
		})

		Convey("missing file fails", func() {
			_, err := parseOverrides(filepath.Join(tmpdir, "no-such.toml"))
			So(err, ShouldNotBeNil)
		})
	})

	Convey("runScenario", t, func() {
		ctx := context.Background()

		Convey("R1 prints the textbook recurrence values", func() {
			flags, err := parseFlags([]string{"R1"})
			So(err, ShouldBeNil)
			var buf bytes.Buffer
			So(runScenario(ctx, flags, &buf), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, "Equilibrium probabilities")
			So(buf.String(), ShouldContainSubstring, "0.4")
			So(buf.String(), ShouldContainSubstring, "2.5")
			So(buf.String(), ShouldContainSubstring, "5")
		})

		Convey("R2.3 prints the gambler absorption tables", func() {
			flags, err := parseFlags([]string{"R2.3"})
			So(err, ShouldBeNil)
			var buf bytes.Buffer
			So(runScenario(ctx, flags, &buf), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, "[1 5]")
			So(buf.String(), ShouldContainSubstring, "0.75")
		})

		Convey("R3.3 prints the transition count and MLE tables", func() {
			flags, err := parseFlags([]string{"R3.3"})
			So(err, ShouldBeNil)
			var buf bytes.Buffer
			So(runScenario(ctx, flags, &buf), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, "Transition counts")
			So(buf.String(), ShouldContainSubstring, "Transition MLE")
		})

		Convey("overrides shrink a generative run", func() {
			path := filepath.Join(tmpdir, "small.toml")
			So(testutil.WriteFile(path, "N = 10\nsteps = 5\n"), ShouldBeNil)
			flags, err := parseFlags([]string{"-conf", path, "R2"})
			So(err, ShouldBeNil)
			var buf bytes.Buffer
			So(runScenario(ctx, flags, &buf), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, "Run statistics")
		})

		Convey("CSV output renders without alignment", func() {
			flags, err := parseFlags([]string{"-csv", "R1"})
			So(err, ShouldBeNil)
			var buf bytes.Buffer
			So(runScenario(ctx, flags, &buf), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, "0.4,0.2,0.4")
		})

		Convey("every scenario runs to completion", func() {
			path := filepath.Join(tmpdir, "tiny.toml")
			So(testutil.WriteFile(path, "N = 10\nsteps = 10\n"), ShouldBeNil)
			for _, name := range scenarioNames() {
				flags, err := parseFlags([]string{"-conf", path, name})
				So(err, ShouldBeNil)
				var buf bytes.Buffer
				So(runScenario(ctx, flags, &buf), ShouldBeNil)
				So(buf.Len(), ShouldBeGreaterThan, 0)
			}
		})
	})
}
