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
	"math"

	"github.com/stockparfait/logging"
	"github.com/stockparfait/stochastic/mixture"
	"github.com/stockparfait/stochastic/numeric"
)

// statCorr computes the current value of the stationary correlation
// statistic: sum over (i, j) of map[i]*map[j] * N0[i][j] / samples. It
// returns 1 before any samples are accumulated, and advances the sample
// count by the ensemble size afterwards.
func (e *Engine) statCorr() float64 {
	cor := 1.0
	if e.samples > 0 {
		cor = 0.0
		for i := range e.n0 {
			if e.m.corrMap[i] == 0 {
				continue
			}
			for j := range e.n0[i] {
				cor += float64(e.m.corrMap[i]*e.m.corrMap[j]) *
					float64(e.n0[i][j]) / e.samples
			}
		}
	}
	e.samples += float64(e.config.N)
	return cor
}

// coherenceTime integrates the normalized autocorrelation into the
// coherence time Tc: roughly one statistically independent sample per Tc.
func (e *Engine) coherenceTime() float64 {
	if len(e.gamma) == 0 || e.gamma[0] == 0 {
		return 0.0
	}
	steps := float64(len(e.gamma))
	sum := 0.0
	for tau, g := range e.gamma {
		sum += math.Abs(g) * (1.0 - float64(tau)/steps)
	}
	return e.config.DT / (2.0 * e.gamma[0]) * sum
}

// countFreq builds the count-frequency histogram F[m] = #{members with
// floor(count) = m}, of length floor(max count) + 1.
func (e *Engine) countFreq() []int {
	max := numeric.Max(e.uk)
	if max < 0 {
		max = 0
	}
	freq := make([]int, int(math.Floor(max))+1)
	for _, k := range e.uk {
		i := int(math.Floor(k))
		if i < 0 { // walks can go negative; fold into the zero bucket
			i = 0
		}
		freq[i]++
	}
	return freq
}

// mleHoldingTimes estimates the mean holding time per (from, to) as
// cumH/cumN. Cells with no observations degrade to 0; the first such cell
// is logged once.
func (e *Engine) mleHoldingTimes() [][]float64 {
	res := make([][]float64, e.m.k)
	for i := range res {
		res[i] = make([]float64, e.m.k)
		for j := range res[i] {
			if i == j {
				continue
			}
			if e.cumN[i][j] == 0 {
				if !e.mleWarned {
					e.mleWarned = true
					logging.Warningf(e.ctx,
						"no observed jumps %d -> %d; holding-time MLE degraded to 0", i, j)
				}
				continue
			}
			res[i][j] = e.cumH[i][j] / float64(e.cumN[i][j])
		}
	}
	return res
}

// mleTrProbs estimates the transition probabilities by row-normalizing the
// one-step transition counts N1 (every member-step including stays in
// generative mode; every consumed event in learning mode). Unobserved rows
// degrade to all zeros.
func (e *Engine) mleTrProbs() [][]float64 {
	res := make([][]float64, e.m.k)
	for i := range res {
		res[i] = make([]float64, e.m.k)
		total := 0
		for _, c := range e.n1[i] {
			total += c
		}
		if total == 0 {
			continue
		}
		for j, c := range e.n1[i] {
			res[i][j] = float64(c) / float64(total)
		}
	}
	return res
}

// relError is the relative error of the P[0][0] estimate against the
// declared transition matrix; 0 when no matrix was declared.
func (e *Engine) relError(mle [][]float64) float64 {
	if !e.m.declaredP || len(mle) == 0 || e.m.p[0][0] == 0 {
		return 0.0
	}
	return math.Abs(mle[0][0]-e.m.p[0][0]) / e.m.p[0][0]
}

// mleEmission fits the Gaussian mixture to the accumulated observations.
// Estimation faults degrade to a nil mixture with a logged warning.
func (e *Engine) mleEmission() []mixture.Component {
	k := e.m.k
	if k == 0 || len(e.obs) < k {
		return nil
	}
	em, err := mixture.EM(e.ctx, e.obs, k, e.config.EM)
	if err != nil {
		logging.Warningf(e.ctx, "emission MLE failed: %s", err.Error())
		return nil
	}
	return em
}

// batchStats assembles the periodic batch report.
func (e *Engine) batchStats() *BatchStats {
	freq := e.countFreq()
	prob := make([]float64, len(freq))
	for i, f := range freq {
		prob[i] = float64(f) / float64(e.config.N)
	}
	mleTr := e.mleTrProbs()
	cor := 1.0
	if len(e.gamma) > 0 {
		cor = e.gamma[len(e.gamma)-1]
	}
	return &BatchStats{
		CountFreq: freq,
		CountProb: prob,
		RelError:  e.relError(mleTr),
		EMEvents:  e.mleEmission(),
		TrProbs:   mleTr,
		StatCorr:  cor,
	}
}

// runStats assembles the end-of-run statistics block.
func (e *Engine) runStats() *RunStats {
	kbar := numeric.Avg(e.uk)
	total := e.t
	tc := e.coherenceTime()
	intervals := 0.0
	if tc > 0 {
		intervals = total / tc
	}
	delta := 0.0
	if intervals > 0 {
		delta = kbar / intervals
	}
	corr0 := 0.0
	if len(e.gamma) > 0 {
		corr0 = e.gamma[0]
	}
	meanIntensity := 0.0
	if total > 0 {
		meanIntensity = kbar / total
	}
	stats := &RunStats{
		CountFreq:          e.countFreq(),
		MeanCount:          kbar,
		CoherenceTime:      tc,
		CoherenceIntervals: intervals,
		Corr0:              corr0,
		MeanIntensity:      meanIntensity,
		Degeneracy:         delta,
		SNR:                math.Sqrt(kbar / (1.0 + delta)),
	}
	if e.m.k > 0 {
		stats.HoldingTimes = e.mleHoldingTimes()
		stats.TrProbs = e.mleTrProbs()
		stats.RelError = e.relError(stats.TrProbs)
		stats.EMProbs = e.mleEmission()
		counts := make([][]int, e.m.k)
		for i := range counts {
			counts[i] = make([]int, e.m.k)
			copy(counts[i], e.n1[i])
		}
		stats.TrCounts = counts
	}
	return stats
}
