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

// Package mixture implements the multivariate-normal emission samplers and
// the Gaussian-mixture maximum-likelihood estimator used for observation
// modeling.
package mixture

import (
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/stochastic/numeric"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// MVN is a multivariate normal sampler with its own random source.
type MVN struct {
	mu    []float64
	sigma *mat.SymDense
	dist  *distmv.Normal
}

// NewMVN creates a multivariate normal sampler. sigma must be symmetric
// positive definite.
func NewMVN(mu []float64, sigma [][]float64) (*MVN, error) {
	if len(sigma) != len(mu) {
		return nil, errors.Reason("sigma has %d rows for %d dimensions",
			len(sigma), len(mu))
	}
	s := mat.NewSymDense(len(mu), nil)
	for i, row := range sigma {
		if len(row) != len(mu) {
			return nil, errors.Reason("sigma row %d has %d columns for %d dimensions",
				i, len(row), len(mu))
		}
		for j := i; j < len(row); j++ {
			s.SetSym(i, j, row[j])
		}
	}
	return newMVN(mu, s, rand.NewSource(uint64(time.Now().UnixNano())))
}

func newMVN(mu []float64, sigma *mat.SymDense, src rand.Source) (*MVN, error) {
	dist, ok := distmv.NewNormal(mu, sigma, src)
	if !ok {
		return nil, errors.Reason("sigma is not positive definite")
	}
	muCopy := make([]float64, len(mu))
	copy(muCopy, mu)
	return &MVN{mu: muCopy, sigma: sigma, dist: dist}, nil
}

// Dim is the dimensionality of the samples.
func (d *MVN) Dim() int { return len(d.mu) }

// Mu returns a copy of the mean vector.
func (d *MVN) Mu() []float64 {
	res := make([]float64, len(d.mu))
	copy(res, d.mu)
	return res
}

// Sigma returns a copy of the covariance matrix as rows.
func (d *MVN) Sigma() [][]float64 {
	n := len(d.mu)
	res := make([][]float64, n)
	for i := 0; i < n; i++ {
		res[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			res[i][j] = d.sigma.At(i, j)
		}
	}
	return res
}

// Sample draws one observation vector.
func (d *MVN) Sample() []float64 {
	return d.dist.Rand(nil)
}

// LogProb is the log density at x.
func (d *MVN) LogProb(x []float64) float64 {
	return d.dist.LogProb(x)
}

// Copy shallow-copies the sampler with a fresh random source, so the copy
// can be sampled independently and in parallel with the original.
func (d *MVN) Copy() *MVN {
	cp, err := newMVN(d.mu, d.sigma, rand.NewSource(uint64(time.Now().UnixNano())))
	if err != nil { // the original was valid, so this cannot happen
		panic(err)
	}
	return cp
}

// Seed resets the random source. Mostly used in tests.
func (d *MVN) Seed(seed uint64) {
	cp, err := newMVN(d.mu, d.sigma, rand.NewSource(seed))
	if err != nil {
		panic(err)
	}
	*d = *cp
}

// Grid builds one emission sampler per state of the product space
// [0..dims[0]) x ... Each state's mean is its grid point shifted by 1/2 per
// component, and its covariance is (L*L^T) ⊙ (w⊗w) for a random lower
// triangular L with entries in [0, 1) and the user weights w.
func Grid(r *rand.Rand, dims []int, weights []float64) ([]*MVN, error) {
	if len(weights) != len(dims) {
		return nil, errors.Reason("%d weights for %d grid dimensions",
			len(weights), len(dims))
	}
	points := numeric.Permutations(dims)
	if points == nil {
		return nil, errors.Reason("invalid grid dimensions: %v", dims)
	}
	d := len(dims)
	res := make([]*MVN, len(points))
	for k, pt := range points {
		mu := make([]float64, d)
		for i, x := range pt {
			mu[i] = float64(x) + 0.5
		}
		l := mat.NewDense(d, d, nil)
		for i := 0; i < d; i++ {
			for j := 0; j <= i; j++ {
				l.Set(i, j, r.Float64())
			}
		}
		var llt mat.Dense
		llt.Mul(l, l.T())
		sigma := make([][]float64, d)
		for i := range sigma {
			sigma[i] = make([]float64, d)
			for j := range sigma[i] {
				sigma[i][j] = llt.At(i, j) * weights[i] * weights[j]
			}
			// Keep the diagonal away from zero so the covariance stays PD.
			sigma[i][i] += 1e-6
		}
		mvn, err := NewMVN(mu, sigma)
		if err != nil {
			return nil, errors.Annotate(err, "failed to build emission %d", k)
		}
		res[k] = mvn
	}
	return res, nil
}

// FromMoments builds one emission sampler per state from explicit means and
// covariances.
func FromMoments(mu [][]float64, sigma [][][]float64) ([]*MVN, error) {
	if len(sigma) != len(mu) {
		return nil, errors.Reason("%d covariances for %d means", len(sigma), len(mu))
	}
	res := make([]*MVN, len(mu))
	for k := range mu {
		mvn, err := NewMVN(mu[k], sigma[k])
		if err != nil {
			return nil, errors.Annotate(err, "failed to build emission %d", k)
		}
		res[k] = mvn
	}
	return res, nil
}
