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

package engine

import (
	"context"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/stochastic/chain"
	"github.com/stockparfait/stochastic/linalg"
	"github.com/stockparfait/stochastic/message"
	"github.com/stockparfait/stochastic/mixture"
	"github.com/stockparfait/stochastic/numeric"
	"github.com/stockparfait/stochastic/process"

	"golang.org/x/exp/rand"
)

// model is the canonical internal shape of a resolved configuration: the
// pre-computed tables and samplers the stepper runs on.
type model struct {
	k         int         // number of discrete states; 0 = stateless
	p         [][]float64 // transition matrix
	cum       [][]float64 // row-wise cumulative of p
	rt        [][]float64 // mean recurrence; diagonal mutates per jump in CT mode
	rates     [][]float64 // jump rates for continuous-time holding draws
	eq        []float64   // equilibrium probabilities
	ergodic   bool
	ab        *chain.AbsorptionResult
	symbols   *chain.Symbols
	corrMap   []int
	kernel    process.Kernel
	intensity process.Intensity
	wiener    *process.Wiener // retained for walk readout
	emission  []*mixture.MVN
	bayes     *bayesModel
	declaredP bool // a transition matrix was given, enabling rel. error
}

// bayesModel holds the Dirichlet conditional tables of the Bayesian
// network. Parent configurations are indexed by mixed-radix integers.
type bayesModel struct {
	net   [][]int
	alpha float64
	k     int
	count [][][]float64 // node -> parent key -> state
	theta [][][]float64
}

func newBayesModel(net [][]int, alpha float64, k int) *bayesModel {
	b := &bayesModel{net: net, alpha: alpha, k: k}
	b.count = make([][][]float64, len(net))
	b.theta = make([][][]float64, len(net))
	for i, parents := range net {
		rows := 1
		for range parents {
			rows *= k
		}
		b.count[i] = make([][]float64, rows)
		b.theta[i] = make([][]float64, rows)
		for j := 0; j < rows; j++ {
			b.count[i][j] = make([]float64, k)
			b.theta[i][j] = make([]float64, k)
			for s := 0; s < k; s++ {
				b.theta[i][j][s] = 1.0 / float64(k) // flat prior mean
			}
		}
	}
	return b
}

// parentKey folds the parent states of node i into a table row index.
func (b *bayesModel) parentKey(i int, u []int) int {
	key := 0
	stride := 1
	for _, parent := range b.net[i] {
		state := 0
		if parent >= 0 && parent < len(u) {
			state = u[parent]
		}
		key += state * stride
		stride *= b.k
	}
	return key
}

// update accumulates the occupation counts into the conditional tables and
// recomputes the Dirichlet posterior means.
func (b *bayesModel) update(u []int, un [][]int) {
	for i := range b.net {
		if i >= len(un) {
			break
		}
		j := b.parentKey(i, u)
		countSum := 0.0
		for s := 0; s < b.k; s++ {
			b.count[i][j][s] += float64(un[i][s])
			countSum += b.count[i][j][s]
		}
		den := countSum + b.alpha*float64(b.k)
		for s := 0; s < b.k; s++ {
			b.theta[i][j][s] = (b.count[i][j][s] + b.alpha) / den
		}
	}
}

// resolveMatrix builds the transition matrix from whichever selector is
// set, plus the jump-rate matrix for continuous-time holding draws.
func resolveMatrix(cfg *Config) (linalg.Matrix, [][]float64, error) {
	var none linalg.Matrix
	switch {
	case len(cfg.Alpha) > 0:
		p, err := chain.FromAlpha(cfg.Alpha)
		if err != nil {
			return none, nil, errors.Annotate(err, "invalid alpha")
		}
		k := p.Rows()
		rates := make([][]float64, k)
		for i := range rates {
			rates[i] = make([]float64, k)
		}
		idx := 0
		for i := 0; i < k; i++ {
			for j := i + 1; j < k; j++ {
				rates[i][j] = cfg.Alpha[idx]
				rates[j][i] = cfg.Alpha[idx]
				idx++
			}
		}
		return p, rates, nil

	case len(cfg.P) > 0:
		p, err := chain.FromPairs(cfg.P)
		if err != nil {
			return none, nil, errors.Annotate(err, "invalid p")
		}
		return p, rateDefaults(p, cfg.DT), nil

	case cfg.Markov != nil:
		p, err := resolveMarkov(cfg)
		if err != nil {
			return none, nil, err
		}
		return p, rateDefaults(p, cfg.DT), nil

	case cfg.Gillespie > 0:
		// Rate-only input: start from the uniform chain; the holding-time
		// ratios drive the kernel.
		k := cfg.Gillespie
		rows := make([][]float64, k)
		for i := range rows {
			rows[i] = make([]float64, k)
			for j := range rows[i] {
				rows[i][j] = 1.0 / float64(k)
			}
		}
		p, err := chain.FromDense(rows)
		if err != nil {
			return none, nil, errors.Annotate(err, "invalid gillespie input")
		}
		return p, rateDefaults(p, cfg.DT), nil

	case cfg.Bayes != nil:
		p, err := resolveProposal(cfg.Bayes)
		if err != nil {
			return none, nil, err
		}
		return p, rateDefaults(p, cfg.DT), nil
	}
	return none, nil, errors.Reason("no categorical process selector")
}

// rateDefaults derives per-unit-time jump rates from step probabilities.
func rateDefaults(p linalg.Matrix, dt float64) [][]float64 {
	k := p.Rows()
	rates := make([][]float64, k)
	for i := range rates {
		rates[i] = make([]float64, k)
		for j := range rates[i] {
			if i != j {
				rates[i][j] = p.At(i, j) / dt
			}
		}
	}
	return rates
}

// resolveMarkov parses the markov selector: dense rows or a sparse dict of
// {"states": K, "from": {"to": prob}} with optional composite keys over the
// emission grid dims.
func resolveMarkov(cfg *Config) (linalg.Matrix, error) {
	var none linalg.Matrix
	switch v := cfg.Markov.(type) {
	case []interface{}:
		rows, err := message.AsFloatRows(v)
		if err != nil {
			return none, errors.Annotate(err, "invalid dense markov matrix")
		}
		return chain.FromDense(rows)

	case map[string]interface{}:
		states := 0
		entries := make(map[string]map[string]float64)
		for key, val := range v {
			if key == "states" {
				f, ok := val.(float64)
				if !ok {
					return none, errors.Reason("states is not a number: %v", val)
				}
				states = int(f)
				continue
			}
			row, ok := val.(map[string]interface{})
			if !ok {
				return none, errors.Reason("row '%s' is not an object: %v", key, val)
			}
			probs := make(map[string]float64, len(row))
			for to, pv := range row {
				f, ok := pv.(float64)
				if !ok {
					return none, errors.Reason(
						"probability '%s' -> '%s' is not a number: %v", key, to, pv)
				}
				probs[to] = f
			}
			entries[key] = probs
		}
		var dims []int
		if cfg.EmP != nil {
			dims = cfg.EmP.Dims
		}
		if states == 0 && len(dims) > 0 {
			states = 1
			for _, d := range dims {
				states *= d
			}
		}
		return chain.FromSparse(states, entries, dims)
	}
	return none, errors.Reason("markov must be a matrix or a sparse dict")
}

// resolveProposal builds the Metropolis-Hastings proposal matrix of the
// Bayesian process: dense rows, upper-triangular list, or uniform.
func resolveProposal(cfg *BayesConfig) (linalg.Matrix, error) {
	var none linalg.Matrix
	k := cfg.States
	switch v := cfg.P.(type) {
	case nil:
		rows := make([][]float64, k)
		for i := range rows {
			rows[i] = make([]float64, k)
			for j := range rows[i] {
				rows[i][j] = 1.0 / float64(k)
			}
		}
		return chain.FromDense(rows)
	case []interface{}:
		if len(v) > 0 {
			if _, ok := v[0].([]interface{}); ok {
				rows, err := message.AsFloatRows(v)
				if err != nil {
					return none, errors.Annotate(err, "invalid bayes proposal")
				}
				return chain.FromDense(rows)
			}
		}
		pairs, err := message.AsFloats(v)
		if err != nil {
			return none, errors.Annotate(err, "invalid bayes proposal")
		}
		return chain.FromPairs(pairs)
	}
	return none, errors.Reason("bayes proposal must be a matrix or a list")
}

// resolveSymbols builds the symbol table from the symbols selector or the
// identity of size k.
func resolveSymbols(symbols interface{}, k int) (*chain.Symbols, error) {
	switch v := symbols.(type) {
	case nil:
		return chain.NewSymbols(k), nil
	case float64:
		if int(v) != k {
			return nil, errors.Reason("symbols count %d != %d states", int(v), k)
		}
		return chain.NewSymbols(k), nil
	case map[string]interface{}:
		m := make(map[string]int, len(v))
		for label, iv := range v {
			f, ok := iv.(float64)
			if !ok {
				return nil, errors.Reason("symbol '%s' index is not a number: %v",
					label, iv)
			}
			m[label] = int(f)
		}
		if len(m) != k {
			return nil, errors.Reason("%d symbols for %d states", len(m), k)
		}
		return chain.SymbolsFromMap(m)
	case []interface{}:
		labels := make([]string, len(v))
		for i, lv := range v {
			s, ok := lv.(string)
			if !ok {
				return nil, errors.Reason("symbol %d is not a string: %v", i, lv)
			}
			labels[i] = s
		}
		if len(labels) != k {
			return nil, errors.Reason("%d symbols for %d states", len(labels), k)
		}
		return chain.SymbolsFromList(labels)
	}
	return nil, errors.Reason("unsupported symbols value: %v", symbols)
}

// resolveEmission builds the per-state observation samplers.
func resolveEmission(cfg *EmissionConfig, r *rand.Rand) ([]*mixture.MVN, error) {
	if len(cfg.Mu) > 0 {
		return mixture.FromMoments(cfg.Mu, cfg.Sigma)
	}
	return mixture.Grid(r, cfg.Dims, cfg.Weights)
}

// resolve normalizes the configuration into the canonical model: the
// transition tables, solvers' outputs, kernels and emission samplers.
func resolve(ctx context.Context, cfg *Config, r *rand.Rand) (*model, error) {
	m := &model{}

	if cfg.Stateless() {
		switch {
		case cfg.Gauss != nil:
			m.intensity = process.NewGauss(cfg.Gauss.Values, cfg.Gauss.Vectors,
				cfg.Gauss.Ref, cfg.Gauss.Dim, cfg.Gauss.Mean, cfg.DT)
		case cfg.Wiener != nil:
			w := process.NewWiener(cfg.Wiener.M, cfg.N)
			m.intensity = w
			m.wiener = w
		case cfg.Ornstein != nil:
			m.intensity = process.NewOrnstein(cfg.Ornstein.Theta,
				cfg.Ornstein.Sigma, cfg.N)
		}
		if cfg.Seed != 0 {
			m.intensity.Seed(cfg.Seed + 1)
		}
		return m, nil
	}

	p, rates, err := resolveMatrix(cfg)
	if err != nil {
		return nil, errors.Annotate(err, "failed to resolve transition matrix")
	}
	m.k = p.Rows()
	m.p = p.ToRows()
	m.cum = chain.Cumulative(p).ToRows()
	m.rates = rates
	m.declaredP = len(cfg.P) > 0 || cfg.Markov != nil || len(cfg.Alpha) > 0

	rec, err := chain.Recurrence(ctx, p)
	if err != nil {
		return nil, errors.Annotate(err, "mean-recurrence solver failed")
	}
	m.rt = rec.H.ToRows()
	m.eq = rec.Eq
	m.ergodic = rec.Ergodic

	ab, err := chain.Absorption(p)
	if err != nil {
		logging.Warningf(ctx, "first-absorption solver failed: %s", err.Error())
		ab = &chain.AbsorptionResult{}
	}
	m.ab = ab

	m.symbols, err = resolveSymbols(cfg.Symbols, m.k)
	if err != nil {
		return nil, errors.Annotate(err, "failed to resolve symbols")
	}
	m.corrMap = chain.CorrLabels(m.k)

	switch {
	case cfg.Bayes != nil:
		m.kernel = process.NewBayes(m.p, m.cum, m.eq)
		m.bayes = newBayesModel(cfg.Bayes.Net, cfg.Bayes.Alpha, m.k)
	case cfg.Gillespie > 0:
		m.kernel = process.NewGillespie(m.rt)
	default:
		m.kernel = process.NewMarkov(m.cum)
	}
	if cfg.Seed != 0 {
		m.kernel.Seed(cfg.Seed + 1)
	}

	if cfg.EmP != nil {
		em, err := resolveEmission(cfg.EmP, r)
		if err != nil {
			return nil, errors.Annotate(err, "failed to resolve emissions")
		}
		if len(em) != m.k {
			return nil, errors.Reason("%d emission samplers for %d states",
				len(em), m.k)
		}
		if cfg.Seed != 0 {
			for i, e := range em {
				e.Seed(cfg.Seed + uint64(i) + 2)
			}
		}
		m.emission = em
	}
	return m, nil
}

// expDev draws the holding time for a jump in continuous-time mode.
func (m *model) expDev(r *rand.Rand, from, to int) float64 {
	rate := m.rates[from][to]
	if rate <= 0 {
		return 0.0
	}
	return numeric.ExpDev(r, 1.0/rate)
}
