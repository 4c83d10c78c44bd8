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
	"math/cmplx"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Gauss is the stateless Karhunen-Loeve intensity generator: a random
// superposition of eigenmodes whose squared amplitude is the expected event
// count in one sample interval.
type Gauss struct {
	values  []float64   // eigenvalues
	vectors [][]float64 // eigenvectors, vectors[n][t]
	ref     float64     // reference eigenvalue
	dim     int         // temporal dimension
	mean    float64     // expected events
	dt      float64
	rand    *rand.Rand
}

var _ Intensity = &Gauss{}

// NewGauss creates a Karhunen-Loeve intensity from the eigendecomposition.
func NewGauss(values []float64, vectors [][]float64, ref float64, dim int, mean, dt float64) *Gauss {
	return &Gauss{
		values:  values,
		vectors: vectors,
		ref:     ref,
		dim:     dim,
		mean:    mean,
		dt:      dt,
		rand:    newRand(),
	}
}

func (g *Gauss) Value(n, s int, t float64) float64 {
	if s >= g.dim {
		return g.mean
	}
	var a complex128
	for i, v := range g.values {
		phi := g.rand.Float64() * math.Pi
		b := complex(math.Sqrt(math.Exp(g.mean*v/g.ref)), 0) *
			cmplx.Exp(complex(0, phi))
		a += b * complex(g.vectors[i][s], 0)
	}
	abs := cmplx.Abs(a)
	return abs * abs * g.dt
}

func (g *Gauss) Seed(seed uint64) {
	g.rand = rand.New(rand.NewSource(seed))
}

// Wiener is the Brownian walk intensity: each member accumulates floor(M*t)
// standard normal increments, scaled by 1/sqrt(M).
type Wiener struct {
	m      float64 // walk steps per unit time
	walks  []float64
	walked []int
	norm   distuv.Normal
}

var _ Intensity = &Wiener{}

// NewWiener creates a Wiener kernel for n members with M walk steps per
// unit time.
func NewWiener(m float64, n int) *Wiener {
	return &Wiener{
		m:      m,
		walks:  make([]float64, n),
		walked: make([]int, n),
		norm:   distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(rand.Uint64())},
	}
}

func (w *Wiener) Value(n, s int, t float64) float64 {
	target := int(math.Floor(w.m * t))
	for w.walked[n] < target {
		w.walks[n] += w.norm.Rand()
		w.walked[n]++
	}
	return w.walks[n] / math.Sqrt(w.m)
}

// Walk is the raw cumulative walk of member n.
func (w *Wiener) Walk(n int) float64 { return w.walks[n] }

func (w *Wiener) Seed(seed uint64) {
	w.norm.Src = rand.NewSource(seed)
}

// Ornstein is the Ornstein-Uhlenbeck walk, realized as an exponentially
// time-changed Wiener walk: X(t) = a * exp(-theta*t) * W(exp(2*theta*t)-1)
// with a = sigma / sqrt(2*theta).
type Ornstein struct {
	theta float64
	a     float64
	hist  [][]float64 // per-member walk history, one sample per step
	walk  []float64
	norm  distuv.Normal
}

var _ Intensity = &Ornstein{}

// NewOrnstein creates an Ornstein-Uhlenbeck kernel for n members.
func NewOrnstein(theta, sigma float64, n int) *Ornstein {
	return &Ornstein{
		theta: theta,
		a:     sigma / math.Sqrt(2.0*theta),
		hist:  make([][]float64, n),
		walk:  make([]float64, n),
		norm:  distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(rand.Uint64())},
	}
}

func (o *Ornstein) Value(n, s int, t float64) float64 {
	o.walk[n] += o.norm.Rand()
	o.hist[n] = append(o.hist[n], o.walk[n])
	idx := int(math.Floor(math.Exp(2.0*o.theta*t) - 1.0))
	w := 0.0
	if idx >= 0 && idx < len(o.hist[n]) {
		w = o.hist[n][idx]
	}
	return o.a * math.Exp(-o.theta*t) * w
}

func (o *Ornstein) Seed(seed uint64) {
	o.norm.Src = rand.NewSource(seed)
}
