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
	"context"
	"fmt"
	"io"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/iterator"
	"github.com/stockparfait/stochastic/engine"
	"github.com/stockparfait/stochastic/message"
	"github.com/stockparfait/stochastic/table"
)

// runEnv carries the per-run environment into a scenario: the parameter
// overrides, the output format and the output writer.
type runEnv struct {
	over *Overrides
	csv  bool
	w    io.Writer
}

// write renders one report table in the selected format.
func (env *runEnv) write(t *table.Table) error {
	if env.csv {
		return t.WriteCSV(env.w)
	}
	if err := t.WriteText(env.w); err != nil {
		return err
	}
	_, err := fmt.Fprintln(env.w)
	return err
}

// config builds an engine config from a JSON literal plus the overrides.
func (env *runEnv) config(js string) (*engine.Config, error) {
	var cfg engine.Config
	if err := message.FromJSON(&cfg, []byte(js)); err != nil {
		return nil, errors.Annotate(err, "invalid scenario config")
	}
	if env.over.N > 0 {
		cfg.N = env.over.N
	}
	if env.over.Steps > 0 {
		cfg.Steps = env.over.Steps
	}
	if env.over.DT > 0 {
		cfg.DT = env.over.DT
	}
	cfg.Seed = 42
	if env.over.Seed != 0 {
		cfg.Seed = env.over.Seed
	}
	return &cfg, nil
}

// writeRunStats renders the end-of-run statistics block.
func (env *runEnv) writeRunStats(stats *engine.RunStats) error {
	t := table.New("Run statistics", "statistic", "value")
	t.AddRow(table.Cells{"mean count", fmt.Sprintf("%.6g", stats.MeanCount)})
	t.AddRow(table.Cells{"mean intensity", fmt.Sprintf("%.6g", stats.MeanIntensity)})
	t.AddRow(table.Cells{"coherence time", fmt.Sprintf("%.6g", stats.CoherenceTime)})
	t.AddRow(table.Cells{"coherence intervals", fmt.Sprintf("%.6g", stats.CoherenceIntervals)})
	t.AddRow(table.Cells{"correlation 0-lag", fmt.Sprintf("%.6g", stats.Corr0)})
	t.AddRow(table.Cells{"degeneracy param", fmt.Sprintf("%.6g", stats.Degeneracy)})
	t.AddRow(table.Cells{"SNR", fmt.Sprintf("%.6g", stats.SNR)})
	t.AddRow(table.Cells{"rel. error", fmt.Sprintf("%.6g", stats.RelError)})
	if err := env.write(t); err != nil {
		return err
	}
	if stats.TrProbs != nil {
		if err := env.write(table.New("Transition MLE").AddMatrix(stats.TrProbs)); err != nil {
			return err
		}
	}
	return nil
}

// endStats extracts the end event's statistics block from a finished run.
func endStats(events []engine.Event) (*engine.RunStats, error) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == engine.EndEvent {
			return events[i].Stats, nil
		}
	}
	return nil, errors.Reason("no end event in the run")
}

type scenario struct {
	desc string
	run  func(ctx context.Context, env *runEnv) error
}

var scenarios = map[string]scenario{
	"R1":   {"mean recurrence of a three-state chain", runRecurrence},
	"R2":   {"two-state symmetric generative run", runTwoState},
	"R2.1": {"non-ergodic sparse input", runNonErgodic},
	"R2.3": {"five-state gambler first absorption", runGambler},
	"R2.4": {"two-state MLE recovery", runMLERecovery},
	"R3":   {"learning round trip on generated events", runLearnRoundTrip},
	"R3.1": {"learning with hidden symbols", runLearnHidden},
	"R3.2": {"stateless learning", runLearnStateless},
	"R3.3": {"learning on the 35 canned events", runLearnCanned},
	"R4.1": {"Karhunen-Loeve intensity run", runGauss},
	"R4.2": {"Wiener and Ornstein-Uhlenbeck walks", runWalks},
}

func runRecurrence(ctx context.Context, env *runEnv) error {
	cfg, err := env.config(`
{
  "markov": [[0.5, 0.25, 0.25], [0.5, 0, 0.5], [0.25, 0.25, 0.5]],
  "N": 1,
  "steps": 0
}`)
	if err != nil {
		return err
	}
	e, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	eqT := table.New("Equilibrium probabilities")
	eqT.AddRow(table.Floats(e.Equilibrium()))
	if err := env.write(eqT); err != nil {
		return err
	}
	return env.write(table.New("Mean recurrence times").AddMatrix(e.Recurrence()))
}

func runTwoState(ctx context.Context, env *runEnv) error {
	cfg, err := env.config(`
{
  "markov": [[0.5, 0.5], [0.5, 0.5]],
  "N": 1000,
  "steps": 200
}`)
	if err != nil {
		return err
	}
	e, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	events, err := e.Run()
	if err != nil {
		return err
	}
	stats, err := endStats(events)
	if err != nil {
		return err
	}
	return env.writeRunStats(stats)
}

func runNonErgodic(ctx context.Context, env *runEnv) error {
	cfg, err := env.config(`
{
  "markov": {"states": 3, "0": {"1": 0.8, "2": 0.1}, "1": {"0": 0.1}},
  "N": 100,
  "steps": 50
}`)
	if err != nil {
		return err
	}
	e, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	if _, err := e.Run(); err != nil {
		return err
	}
	t := table.New(fmt.Sprintf("Ergodic: %t; mean recurrence times", e.Ergodic()))
	return env.write(t.AddMatrix(e.Recurrence()))
}

func runGambler(ctx context.Context, env *runEnv) error {
	cfg, err := env.config(`
{
  "markov": [
    [1, 0, 0, 0, 0],
    [0.5, 0, 0.5, 0, 0],
    [0, 0.5, 0, 0.5, 0],
    [0, 0, 0.5, 0, 0.5],
    [0, 0, 0, 0, 1]
  ],
  "N": 1,
  "steps": 0
}`)
	if err != nil {
		return err
	}
	e, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	times, probs, states := e.Absorption()
	t := table.New(fmt.Sprintf("Absorbing states (one-based): %v", states))
	t.AddRow(table.Floats(times))
	if err := env.write(t); err != nil {
		return err
	}
	return env.write(table.New("Absorption probabilities").AddMatrix(probs))
}

func runMLERecovery(ctx context.Context, env *runEnv) error {
	cfg, err := env.config(`
{
  "markov": [[0.1, 0.9], [0.1, 0.9]],
  "N": 500,
  "steps": 500,
  "batch": 50
}`)
	if err != nil {
		return err
	}
	e, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	events, err := e.Run()
	if err != nil {
		return err
	}
	stats, err := endStats(events)
	if err != nil {
		return err
	}
	return env.writeRunStats(stats)
}

// generateObservations runs a generative two-state engine and converts its
// jump events into a learning feed.
func generateObservations(ctx context.Context, env *runEnv, hideEvery int) ([]engine.Observation, error) {
	cfg, err := env.config(`
{
  "markov": [[0.3, 0.7], [0.4, 0.6]],
  "N": 50,
  "steps": 100
}`)
	if err != nil {
		return nil, err
	}
	e, err := engine.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	events, err := e.Run()
	if err != nil {
		return nil, err
	}
	var obs []engine.Observation
	for _, ev := range events {
		if ev.Kind != engine.JumpEvent {
			continue
		}
		symbol := fmt.Sprintf("%d", ev.State)
		if hideEvery > 0 && len(obs)%hideEvery == 0 {
			symbol = "hidden"
		}
		obs = append(obs, engine.Observation{
			Member: ev.Member,
			Symbol: symbol,
			T:      ev.T,
		})
	}
	return obs, nil
}

func runLearn(ctx context.Context, env *runEnv, obs []engine.Observation) error {
	cfg, err := env.config(`
{
  "markov": [[0.5, 0.5], [0.5, 0.5]],
  "N": 50,
  "batch": 50,
  "learn": true
}`)
	if err != nil {
		return err
	}
	e, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	sup := e.Supervisor()
	const batchSize = 10
	for i := 0; i < len(obs); i += batchSize {
		end := i + batchSize
		if end > len(obs) {
			end = len(obs)
		}
		sup(obs[i:end])
	}
	sup(nil)
	stats, err := endStats(e.Store())
	if err != nil {
		return err
	}
	counts := table.New("Transition counts")
	for _, row := range stats.TrCounts {
		cells := make(table.Cells, len(row))
		for i, c := range row {
			cells[i] = fmt.Sprintf("%d", c)
		}
		counts.AddRow(cells)
	}
	if err := env.write(counts); err != nil {
		return err
	}
	return env.writeRunStats(stats)
}

func runLearnRoundTrip(ctx context.Context, env *runEnv) error {
	obs, err := generateObservations(ctx, env, 0)
	if err != nil {
		return err
	}
	return runLearn(ctx, env, obs)
}

func runLearnHidden(ctx context.Context, env *runEnv) error {
	obs, err := generateObservations(ctx, env, 7)
	if err != nil {
		return err
	}
	return runLearn(ctx, env, obs)
}

func runLearnStateless(ctx context.Context, env *runEnv) error {
	cfg, err := env.config(`{"wiener": {}, "N": 10, "learn": true}`)
	if err != nil {
		return err
	}
	e, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	sup := e.Supervisor()
	for i := 0; i < 100; i++ {
		sup([]engine.Observation{{Member: i % 10, Value: 0.5, T: float64(i) * 0.1}})
	}
	sup(nil)
	stats, err := endStats(e.Store())
	if err != nil {
		return err
	}
	return env.writeRunStats(stats)
}

// cannedEvents are the 35 canned learning events: 5 members alternating
// between the two states on a uniform time grid.
func cannedEvents() []engine.Observation {
	var obs []engine.Observation
	for i := 0; i < 35; i++ {
		obs = append(obs, engine.Observation{
			Member: i % 5,
			Symbol: fmt.Sprintf("%d", i%2),
			T:      float64(i) * 0.1,
		})
	}
	return obs
}

func runLearnCanned(ctx context.Context, env *runEnv) error {
	return runLearn(ctx, env, cannedEvents())
}

func runGauss(ctx context.Context, env *runEnv) error {
	cfg, err := env.config(`
{
  "gauss": {
    "values": [1.0, 0.5, 0.25],
    "vectors": [
      [0.7, 0.1, 0.2, 0.1, 0.05],
      [0.1, 0.7, 0.3, 0.2, 0.1],
      [0.05, 0.1, 0.5, 0.6, 0.3]
    ],
    "dim": 5,
    "mean": 2.0
  },
  "N": 100,
  "steps": 10,
  "dt": 0.1
}`)
	if err != nil {
		return err
	}
	e, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	events, err := e.Run()
	if err != nil {
		return err
	}
	stats, err := endStats(events)
	if err != nil {
		return err
	}
	return env.writeRunStats(stats)
}

// walkRun is one concurrent walk run: its report title and final stats.
type walkRun struct {
	name  string
	js    string
	stats *engine.RunStats
}

// runWalks runs the Wiener and Ornstein-Uhlenbeck engines concurrently:
// independent engine instances share no mutable state.
func runWalks(ctx context.Context, env *runEnv) error {
	runs := []walkRun{
		{name: "Wiener walk",
			js: `{"wiener": {"m": 4.0}, "N": 100, "steps": 50, "dt": 0.25}`},
		{name: "Ornstein-Uhlenbeck walk",
			js: `{"ornstein": {"theta": 0.5, "sigma": 1.0}, "N": 100, "steps": 50, "dt": 0.25}`},
	}

	run := func(r walkRun) walkRun {
		cfg, err := env.config(r.js)
		if err != nil {
			return r
		}
		e, err := engine.New(ctx, cfg)
		if err != nil {
			return r
		}
		events, err := e.Run()
		if err != nil {
			return r
		}
		r.stats, _ = endStats(events)
		return r
	}
	pm := iterator.ParallelMap(ctx, 2, iterator.FromSlice(runs), run)
	defer pm.Close()
	results := iterator.Reduce[walkRun, []walkRun](pm, []walkRun{},
		func(r walkRun, acc []walkRun) []walkRun { return append(acc, r) })

	for _, r := range results {
		if r.stats == nil {
			return errors.Reason("%s run failed", r.name)
		}
		t := table.New(r.name, "statistic", "value")
		t.AddRow(table.Cells{"mean count", fmt.Sprintf("%.6g", r.stats.MeanCount)})
		t.AddRow(table.Cells{"mean intensity", fmt.Sprintf("%.6g", r.stats.MeanIntensity)})
		if err := env.write(t); err != nil {
			return err
		}
	}
	return nil
}
