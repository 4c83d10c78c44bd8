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

package process

import (
	"math"

	"github.com/stockparfait/stochastic/numeric"

	"golang.org/x/exp/rand"
)

// Markov samples state jumps from the cumulative rows of a transition
// matrix by inverse-CDF draws.
type Markov struct {
	cum  [][]float64
	rand *rand.Rand
}

var _ Kernel = &Markov{}

// NewMarkov creates a Markov kernel from the row-wise cumulative transition
// matrix.
func NewMarkov(cum [][]float64) *Markov {
	return &Markov{cum: cum, rand: newRand()}
}

func (k *Markov) Next(from int, t float64) int {
	return drawRow(k.cum[from], k.rand.Float64())
}

func (k *Markov) Seed(seed uint64) {
	k.rand = rand.New(rand.NewSource(seed))
}

// Gillespie samples state jumps driven by holding-time ratios: the chance
// of jumping from `from` to j is proportional to RT[j][j] / RT[from][from],
// where RT holds the current mean holding times on its diagonal.
type Gillespie struct {
	rt   [][]float64 // shared with the engine; diagonal mutates per jump in CT mode
	rand *rand.Rand
}

var _ Kernel = &Gillespie{}

// NewGillespie creates a Gillespie kernel over the holding-time matrix. The
// matrix is captured by reference: the engine's per-jump diagonal updates
// are visible to the kernel.
func NewGillespie(rt [][]float64) *Gillespie {
	return &Gillespie{rt: rt, rand: newRand()}
}

func (k *Gillespie) Next(from int, t float64) int {
	n := len(k.rt)
	q := make([]float64, n)
	ref := k.rt[from][from]
	if ref == 0 {
		return from
	}
	for j := 0; j < n; j++ {
		if j == from {
			continue
		}
		q[j] = k.rt[j][j] / ref
	}
	numeric.CumSum(q)
	total := q[n-1]
	if total <= 0 || math.IsNaN(total) {
		return from
	}
	return drawRow(q, k.rand.Float64()*total)
}

func (k *Gillespie) Seed(seed uint64) {
	k.rand = rand.New(rand.NewSource(seed))
}

// Bayes samples state jumps by Metropolis-Hastings: proposals come from the
// cumulative transition rows, and acceptance balances the target
// distribution pi against the proposal asymmetry.
type Bayes struct {
	p    [][]float64 // proposal probabilities
	cum  [][]float64 // cumulative rows of p
	pi   []float64   // target distribution
	rand *rand.Rand
}

var _ Kernel = &Bayes{}

// NewBayes creates a Metropolis-Hastings kernel with proposal matrix p (and
// its cumulative rows) targeting the distribution pi.
func NewBayes(p, cum [][]float64, pi []float64) *Bayes {
	return &Bayes{p: p, cum: cum, pi: pi, rand: newRand()}
}

func (k *Bayes) Next(from int, t float64) int {
	to := drawRow(k.cum[from], k.rand.Float64())
	if to == from {
		return from
	}
	num := k.pi[to] * k.p[to][from]
	den := k.pi[from] * k.p[from][to]
	alpha := 1.0
	if den > 0 && num < den {
		alpha = num / den
	}
	if k.rand.Float64() <= alpha {
		return to
	}
	return from
}

func (k *Bayes) Seed(seed uint64) {
	k.rand = rand.New(rand.NewSource(seed))
}

// SetTarget replaces the target distribution, e.g. after a Dirichlet
// posterior update.
func (k *Bayes) SetTarget(pi []float64) { k.pi = pi }
