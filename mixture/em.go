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

package mixture

import (
	"context"
	"math"
	"runtime"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/parallel"
	"github.com/stockparfait/stochastic/message"

	"golang.org/x/exp/rand"
)

// Component is one fitted Gaussian of a mixture.
type Component struct {
	Weight float64
	Mu     []float64
	Sigma  [][]float64
}

// EMConfig is a set of configuration parameters for the EM estimator
// suitable for use in user config file schema.
type EMConfig struct {
	MaxIter   int     `json:"max iterations" default:"100"`
	Tol       float64 `json:"tolerance" default:"1e-6"` // relative log-likelihood delta
	BatchSize int     `json:"batch size" default:"256"`
	Workers   int     `json:"workers"` // default: 2*runtime.NumCPU()
	Seed      int     `json:"seed"`    // 0 = derived from data size and dimension
	Reg       float64 `json:"regularization" default:"1e-6"`
}

var _ message.Message = &EMConfig{}

func (c *EMConfig) InitMessage(js interface{}) error {
	if err := message.Init(c, js); err != nil {
		return errors.Annotate(err, "failed to init EMConfig")
	}
	if c.Workers <= 0 {
		c.Workers = 2 * runtime.NumCPU()
	}
	if c.MaxIter < 1 {
		return errors.Reason("max iterations=%d must be >= 1", c.MaxIter)
	}
	if c.BatchSize < 1 {
		return errors.Reason("batch size=%d must be >= 1", c.BatchSize)
	}
	return nil
}

// DefaultEMConfig creates an EMConfig with all the default values.
func DefaultEMConfig() *EMConfig {
	var c EMConfig
	if err := c.InitMessage(map[string]interface{}{}); err != nil {
		panic(errors.Annotate(err, "failed to init default EMConfig"))
	}
	return &c
}

// emPartial accumulates per-batch E-step sums.
type emPartial struct {
	nk     []float64     // responsibility mass per component
	sumX   [][]float64   // sum of gamma * x per component
	sumXX  [][][]float64 // sum of gamma * x x^T per component
	logLik float64
}

func newEMPartial(k, d int) *emPartial {
	p := &emPartial{
		nk:    make([]float64, k),
		sumX:  make([][]float64, k),
		sumXX: make([][][]float64, k),
	}
	for i := 0; i < k; i++ {
		p.sumX[i] = make([]float64, d)
		p.sumXX[i] = make([][]float64, d)
		for r := 0; r < d; r++ {
			p.sumXX[i][r] = make([]float64, d)
		}
	}
	return p
}

func (p *emPartial) merge(other *emPartial) {
	for k := range p.nk {
		p.nk[k] += other.nk[k]
		for r := range p.sumX[k] {
			p.sumX[k][r] += other.sumX[k][r]
			for c := range p.sumXX[k][r] {
				p.sumXX[k][r][c] += other.sumXX[k][r][c]
			}
		}
	}
	p.logLik += other.logLik
}

// accumulate adds one observation's responsibilities to the partial sums.
func (p *emPartial) accumulate(x []float64, logW []float64, dists []*MVN) {
	k := len(logW)
	logP := make([]float64, k)
	maxLog := math.Inf(-1)
	for i := 0; i < k; i++ {
		logP[i] = logW[i] + dists[i].LogProb(x)
		if logP[i] > maxLog {
			maxLog = logP[i]
		}
	}
	if math.IsInf(maxLog, -1) { // zero density everywhere; skip the point
		return
	}
	total := 0.0
	for i := 0; i < k; i++ {
		logP[i] = math.Exp(logP[i] - maxLog)
		total += logP[i]
	}
	p.logLik += maxLog + math.Log(total)
	for i := 0; i < k; i++ {
		gamma := logP[i] / total
		p.nk[i] += gamma
		for r, xr := range x {
			p.sumX[i][r] += gamma * xr
			for c, xc := range x {
				p.sumXX[i][r][c] += gamma * xr * xc
			}
		}
	}
}

// emJobsIter fans the E-step out over observation batches.
type emJobsIter struct {
	obs   [][]float64
	i     int
	batch int
	logW  []float64
	dists []*MVN
	dim   int
}

var _ parallel.JobsIter = &emJobsIter{}

func (it *emJobsIter) Next() (parallel.Job, error) {
	if it.i >= len(it.obs) {
		return nil, parallel.Done
	}
	end := it.i + it.batch
	if end > len(it.obs) {
		end = len(it.obs)
	}
	batch := it.obs[it.i:end]
	it.i = end
	// Each job evaluates densities through private copies of them.
	dists := make([]*MVN, len(it.dists))
	for i, d := range it.dists {
		dists[i] = d.Copy()
	}
	logW := it.logW
	dim := it.dim
	job := func() interface{} {
		p := newEMPartial(len(logW), dim)
		for _, x := range batch {
			p.accumulate(x, logW, dists)
		}
		return p
	}
	return job, nil
}

// EM fits a k-component Gaussian mixture to the observations by
// expectation-maximization. The E-step is computed in parallel batches.
// A nil cfg uses the defaults.
func EM(ctx context.Context, obs [][]float64, k int, cfg *EMConfig) ([]Component, error) {
	if cfg == nil {
		cfg = DefaultEMConfig()
	}
	if k < 1 {
		return nil, errors.Reason("k=%d must be >= 1", k)
	}
	if len(obs) < k {
		return nil, errors.Reason("%d observations for %d components", len(obs), k)
	}
	dim := len(obs[0])
	for i, x := range obs {
		if len(x) != dim {
			return nil, errors.Reason("observation %d has %d dimensions, expected %d",
				i, len(x), dim)
		}
	}

	weights, dists, err := emInit(obs, k, dim, cfg)
	if err != nil {
		return nil, errors.Annotate(err, "failed to init EM")
	}

	prevLogLik := math.Inf(-1)
	for iter := 0; iter < cfg.MaxIter; iter++ {
		logW := make([]float64, k)
		for i, w := range weights {
			if w <= 0 {
				w = 1e-12
			}
			logW[i] = math.Log(w)
		}
		it := &emJobsIter{
			obs: obs, batch: cfg.BatchSize, logW: logW, dists: dists, dim: dim,
		}
		total := newEMPartial(k, dim)
		m := parallel.Map(ctx, cfg.Workers, it)
		for {
			v, err := m.Next()
			if err != nil { // can only be parallel.Done
				break
			}
			total.merge(v.(*emPartial))
		}

		weights, dists = emUpdate(total, len(obs), dim, cfg, dists)
		if math.Abs(total.logLik-prevLogLik) < cfg.Tol*math.Abs(prevLogLik) {
			break
		}
		prevLogLik = total.logLik
	}

	res := make([]Component, k)
	for i := 0; i < k; i++ {
		res[i] = Component{
			Weight: weights[i],
			Mu:     dists[i].Mu(),
			Sigma:  dists[i].Sigma(),
		}
	}
	return res, nil
}

// emInit seeds the mixture with k distinct observations as means and the
// global diagonal covariance.
func emInit(obs [][]float64, k, dim int, cfg *EMConfig) ([]float64, []*MVN, error) {
	src := rand.NewSource(uint64(cfg.Seed))
	if cfg.Seed == 0 {
		src = rand.NewSource(uint64(len(obs)*7919 + dim))
	}
	r := rand.New(src)

	// Global per-dimension variance for the initial covariances.
	mean := make([]float64, dim)
	for _, x := range obs {
		for d, v := range x {
			mean[d] += v
		}
	}
	for d := range mean {
		mean[d] /= float64(len(obs))
	}
	vars := make([]float64, dim)
	for _, x := range obs {
		for d, v := range x {
			dev := v - mean[d]
			vars[d] += dev * dev
		}
	}
	for d := range vars {
		vars[d] = vars[d]/float64(len(obs)) + cfg.Reg
	}

	weights := make([]float64, k)
	dists := make([]*MVN, k)
	picks := r.Perm(len(obs))
	for i := 0; i < k; i++ {
		weights[i] = 1.0 / float64(k)
		mu := obs[picks[i]]
		sigma := make([][]float64, dim)
		for d := range sigma {
			sigma[d] = make([]float64, dim)
			sigma[d][d] = vars[d]
		}
		mvn, err := NewMVN(mu, sigma)
		if err != nil {
			return nil, nil, errors.Annotate(err, "failed to init component %d", i)
		}
		dists[i] = mvn
	}
	return weights, dists, nil
}

// emUpdate is the M-step: recompute weights, means and covariances from the
// accumulated responsibilities. A component whose responsibility mass has
// collapsed, or whose covariance degenerated, keeps its previous density.
func emUpdate(p *emPartial, n, dim int, cfg *EMConfig, prev []*MVN) ([]float64, []*MVN) {
	k := len(p.nk)
	weights := make([]float64, k)
	dists := make([]*MVN, k)
	for i := 0; i < k; i++ {
		nk := p.nk[i]
		weights[i] = nk / float64(n)
		if nk < 1e-8 {
			dists[i] = prev[i]
			continue
		}
		mu := make([]float64, dim)
		for d := range mu {
			mu[d] = p.sumX[i][d] / nk
		}
		sigma := make([][]float64, dim)
		for r := range sigma {
			sigma[r] = make([]float64, dim)
			for c := range sigma[r] {
				sigma[r][c] = p.sumXX[i][r][c]/nk - mu[r]*mu[c]
			}
			sigma[r][r] += cfg.Reg
		}
		mvn, err := NewMVN(mu, sigma)
		if err != nil {
			dists[i] = prev[i]
			continue
		}
		dists[i] = mvn
	}
	return weights, dists
}
