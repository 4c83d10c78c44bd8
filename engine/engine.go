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

// Package engine implements the ensemble stepper: N independent sample
// paths advanced in lockstep over a discrete time grid, with transition and
// holding-time accumulators, autocorrelation tracking, observation
// emission, and maximum-likelihood estimation over the accumulated counts.
// It runs generatively (drawing paths from a configured process) or in
// learning mode (consuming an external event stream and estimating the
// generator).
package engine

import (
	"context"
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"

	"golang.org/x/exp/rand"
)

// Engine is one simulation instance. It owns all accumulators exclusively;
// distinct instances share no mutable state and may run on parallel
// goroutines.
type Engine struct {
	ctx    context.Context
	config *Config
	m      *model

	t float64 // current simulation time
	s int     // current step index

	u  []int     // current state per member
	uv []float64 // current value per member (stateless)
	u0 []int     // state at t=0
	u1 []int     // previous step's state, scratch per step
	uh []float64 // next scheduled jump time (CT) or last event time (learning)
	uk []float64 // accumulated jump count or value
	uw []float64 // cumulative walk per member (stateless)
	un [][]int   // occupation counts per member and state

	n0   [][]int     // from-initial-to-current transition counts
	n1   [][]int     // one-step from -> to transition counts
	cumH [][]float64 // accumulated holding time per (from, to)
	cumN [][]int     // jump counts per (from, to)

	gamma   []float64 // correlation statistic per step
	samples float64   // cumulative member-observation count

	store []Event // all recorded events, delivered by the sync pipe
	out   []Event // events pending async delivery
	jumps int     // total jump events emitted

	obs [][]float64 // accumulated observations for the emission MLE

	halt        bool
	finished    bool
	sinkFailed  bool
	mleWarned   bool
	unknownSyms map[string]bool
	rand        *rand.Rand
}

// New creates an engine from a fully initialized Config. Configuration
// errors are fatal: no event is emitted and no step can be taken.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	if cfg == nil {
		return nil, errors.Reason("config is nil")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	r := rand.New(rand.NewSource(seed))
	m, err := resolve(ctx, cfg, r)
	if err != nil {
		return nil, errors.Annotate(err, "failed to resolve config")
	}
	e := &Engine{
		ctx:         ctx,
		config:      cfg,
		m:           m,
		rand:        r,
		unknownSyms: make(map[string]bool),
	}
	n := cfg.N
	e.u = make([]int, n)
	e.uv = make([]float64, n)
	e.u0 = make([]int, n)
	e.u1 = make([]int, n)
	e.uh = make([]float64, n)
	e.uk = make([]float64, n)
	e.uw = make([]float64, n)
	k := m.k
	if k > 0 {
		e.un = make([][]int, n)
		for i := range e.un {
			e.un[i] = make([]int, k)
		}
		e.n0 = intMatrix(k)
		e.n1 = intMatrix(k)
		e.cumN = intMatrix(k)
		e.cumH = make([][]float64, k)
		for i := range e.cumH {
			e.cumH[i] = make([]float64, k)
		}
		// Generative members start in equilibrium when it is known; learning
		// members always start in state 0.
		if m.ergodic && !cfg.Learn {
			cum := make([]float64, k)
			copy(cum, m.eq)
			for i := 1; i < k; i++ {
				cum[i] += cum[i-1]
			}
			for i := range e.u {
				u := e.rand.Float64()
				for j, c := range cum {
					if u < c {
						e.u[i] = j
						break
					}
					e.u[i] = k - 1
				}
			}
		}
		copy(e.u0, e.u)
	}
	return e, nil
}

func intMatrix(k int) [][]int {
	m := make([][]int, k)
	for i := range m {
		m[i] = make([]int, k)
	}
	return m
}

// Config returns the engine's configuration.
func (e *Engine) Config() *Config { return e.config }

// K is the number of discrete states; 0 for a stateless process.
func (e *Engine) K() int { return e.m.k }

// Step returns the current step index.
func (e *Engine) Step() int { return e.s }

// Time returns the current simulation time.
func (e *Engine) Time() float64 { return e.t }

// Jumps returns the total number of jump events emitted so far.
func (e *Engine) Jumps() int { return e.jumps }

// P returns the resolved transition matrix rows, or nil for a stateless
// process.
func (e *Engine) P() [][]float64 { return e.m.p }

// Recurrence returns the mean-recurrence matrix rows.
func (e *Engine) Recurrence() [][]float64 { return e.m.rt }

// Equilibrium returns the equilibrium state probabilities.
func (e *Engine) Equilibrium() []float64 { return e.m.eq }

// Ergodic reports whether the mean-recurrence solver found the chain
// ergodic.
func (e *Engine) Ergodic() bool { return e.m.ergodic }

// Absorption returns the first-absorption solver result.
func (e *Engine) Absorption() (times []float64, probs [][]float64, states []int) {
	if e.m.ab == nil || e.m.ab.Empty() {
		return nil, nil, nil
	}
	return e.m.ab.Times, e.m.ab.Probs.ToRows(), e.m.ab.States
}

// Theta returns the Dirichlet posterior tables of the Bayesian network, or
// nil when the process is not bayes.
func (e *Engine) Theta() [][][]float64 {
	if e.m.bayes == nil {
		return nil
	}
	return e.m.bayes.theta
}

// record passes an event through the filter and delivers it to the stores
// and the optional sink.
func (e *Engine) record(ev Event) {
	if e.config.Filter != nil && !e.config.Filter(&ev) {
		return
	}
	e.store = append(e.store, ev)
	e.out = append(e.out, ev)
	if e.config.Sink == nil {
		return
	}
	if err := e.config.Sink.Push(ev); err != nil {
		if !e.sinkFailed {
			e.sinkFailed = true
			logging.Warningf(e.ctx, "sink refused an event: %s", err.Error())
			e.store = append(e.store, Event{
				Kind: ErrorEvent, T: ev.T, At: ev.At, Err: err.Error(),
			})
		}
	}
}

// advance runs one generative step: draws every member's transition,
// updates all counters, and emits the step's events.
func (e *Engine) advance() {
	if e.m.k > 0 {
		e.stepCategorical()
	} else {
		e.stepStateless()
	}
	gamma := 0.0
	if len(e.gamma) > 0 {
		gamma = e.gamma[len(e.gamma)-1]
	}
	walk := 0.0
	if e.m.k == 0 && len(e.uv) > 0 {
		walk = e.uv[0]
	}
	e.record(Event{Kind: StepEvent, T: e.t, At: e.s, Gamma: gamma, Walk: walk})
	e.t += e.config.DT
	e.s++
	if e.config.Batch > 0 && e.s%e.config.Batch == 1 {
		e.record(Event{
			Kind: BatchEvent, T: e.t, At: e.s, Batch: e.batchStats(),
		})
	}
}

func (e *Engine) stepCategorical() {
	e.gamma = append(e.gamma, e.statCorr())
	copy(e.u1, e.u)
	for n := range e.u {
		from := e.u[n]
		to := e.m.kernel.Next(from, e.t)
		if from == to {
			continue
		}
		held := 0.0
		hold := 0.0
		if e.config.CTMode {
			held = e.t - e.uh[n]
			hold = e.m.expDev(e.rand, from, to)
			e.m.rt[from][from] = hold
		}
		e.cumH[from][to] += held
		e.cumN[from][to]++
		e.u[n] = to
		e.uk[n]++
		e.uh[n] = e.t + hold
		var obs []float64
		if e.m.emission != nil {
			obs = e.m.emission[to].Sample()
			e.obs = append(e.obs, obs)
		}
		e.jumps++
		e.record(Event{
			Kind: JumpEvent, T: e.t, At: e.s,
			Member: n, State: to, Hold: hold, Obs: obs,
		})
	}
	for n := range e.u {
		e.n0[e.u0[n]][e.u[n]]++
		e.n1[e.u1[n]][e.u[n]]++
		e.un[n][e.u[n]]++
	}
	if e.m.bayes != nil {
		e.m.bayes.update(e.u, e.un)
	}
}

func (e *Engine) stepStateless() {
	for n := range e.uv {
		v := e.m.intensity.Value(n, e.s, e.t)
		e.uv[n] = v
		e.uk[n] += v
		if e.m.wiener != nil {
			e.uw[n] = e.m.wiener.Walk(n)
		}
	}
}

// learnBatch consumes one batch of time-ordered external events as a
// single learning step.
func (e *Engine) learnBatch(batch []Observation) error {
	if e.m.k > 0 {
		for _, ev := range batch {
			if ev.Member < 0 || ev.Member >= e.config.N {
				return errors.Reason("event member %d out of range [0..%d)",
					ev.Member, e.config.N)
			}
			from := e.u[ev.Member]
			to := 0
			if i, ok := e.m.symbols.Index(ev.Symbol); ok {
				to = i
			} else if !e.unknownSyms[ev.Symbol] {
				// Unknown and hidden symbols map to state 0.
				e.unknownSyms[ev.Symbol] = true
				logging.Warningf(e.ctx, "unknown state symbol '%s' mapped to 0",
					ev.Symbol)
			}
			e.cumH[from][to] += ev.T - e.uh[ev.Member]
			e.cumN[from][to]++
			e.n1[from][to]++
			e.uk[ev.Member]++
			e.u[ev.Member] = to
			e.uh[ev.Member] = ev.T
			obs := []float64{ev.X, ev.Y, ev.Z}
			e.obs = append(e.obs, obs)
			e.jumps++
			e.record(Event{
				Kind: JumpEvent, T: e.t, At: e.s,
				Member: ev.Member, State: to, Obs: obs,
			})
		}
	} else {
		for _, ev := range batch {
			if ev.Member < 0 || ev.Member >= e.config.N {
				return errors.Reason("event member %d out of range [0..%d)",
					ev.Member, e.config.N)
			}
			e.uv[ev.Member] += ev.Value
			e.uk[ev.Member] += ev.Value
		}
	}
	e.record(Event{Kind: StepEvent, T: e.t, At: e.s})
	e.t += e.config.DT
	e.s++
	if e.config.Batch > 0 && e.s%e.config.Batch == 1 {
		e.record(Event{Kind: BatchEvent, T: e.t, At: e.s, Batch: e.batchStats()})
	}
	return nil
}

// finish emits the terminal end event with the final statistics block.
func (e *Engine) finish() {
	if e.finished {
		return
	}
	e.finished = true
	e.record(Event{Kind: EndEvent, T: e.t, At: e.s, Stats: e.runStats()})
}
