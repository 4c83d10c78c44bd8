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

package chain

import (
	"context"
	"math"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/stochastic/linalg"
	"github.com/stockparfait/stochastic/numeric"
)

// ergodicDetEps: below this |det| the chain is treated as non-ergodic.
const ergodicDetEps = 1e-3

// RecurrenceResult holds the mean-recurrence matrix H and the equilibrium
// distribution of an ergodic chain. For a non-ergodic chain H is all zeros,
// Eq falls back to uniform and Ergodic is false.
type RecurrenceResult struct {
	H       linalg.Matrix // H[i][j] = expected time to first reach j from i
	Eq      []float64     // equilibrium state probabilities
	Ergodic bool
}

// Recurrence derives the mean-recurrence matrix and the equilibrium
// distribution from a row-stochastic transition matrix.
//
// The equilibrium row vector w solves w = w*P via the partition
// P = [[p00, Pu], [Pl, Pk]]: w_k = -Pu * (Pk - I)^-1 up to scale, anchored
// at w[0] = 1 and renormalized. H then follows from the fundamental matrix
// Z = (I - P + W)^-1 where every row of W is w:
// H[i][j] = (Z[j][j] - Z[i][j]) / w[j], and H[j][j] = 1 / w[j].
func Recurrence(ctx context.Context, p linalg.Matrix) (*RecurrenceResult, error) {
	k := p.Rows()
	if k == 0 || p.Cols() != k {
		return nil, errors.Reason("transition matrix is %dx%d, must be square",
			k, p.Cols())
	}
	if k == 1 {
		return &RecurrenceResult{
			H:       linalg.New(1, 1, []float64{1.0}),
			Eq:      []float64{1.0},
			Ergodic: true,
		}, nil
	}

	rest := make([]int, k-1)
	for i := range rest {
		rest[i] = i + 1
	}
	pu := p.Slice([]int{0}, rest)  // 1 x (k-1)
	pk := p.Slice(rest, rest)      // (k-1) x (k-1)
	a := linalg.Sub(pk, linalg.Eye(k-1))
	if math.Abs(linalg.Det(a)) < ergodicDetEps {
		logging.Warningf(ctx, "process is not ergodic: |det(Pk - I)| < %g",
			ergodicDetEps)
		eq := make([]float64, k)
		for i := range eq {
			eq[i] = 1.0 / float64(k)
		}
		return &RecurrenceResult{H: linalg.Zeros(k, k), Eq: eq}, nil
	}
	aInv, err := linalg.Inv(a)
	if err != nil {
		return nil, errors.Annotate(err, "failed to invert Pk - I")
	}
	wk := linalg.Scale(-1.0, linalg.Mul(pu, aInv)) // 1 x (k-1)
	w := make([]float64, k)
	w[0] = 1.0
	for j := 1; j < k; j++ {
		w[j] = wk.At(0, j-1)
	}
	total := numeric.Sum(w)
	for j := range w {
		w[j] /= total
	}

	bigW := linalg.Zeros(k, k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			bigW.Set(i, j, w[j])
		}
	}
	z, err := linalg.Inv(linalg.Add(linalg.Sub(linalg.Eye(k), p), bigW))
	if err != nil {
		return nil, errors.Annotate(err, "failed to invert fundamental matrix")
	}

	h := linalg.Zeros(k, k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			if i == j {
				h.Set(i, j, 1.0/w[j])
				continue
			}
			h.Set(i, j, (z.At(j, j)-z.At(i, j))/w[j])
		}
	}
	return &RecurrenceResult{H: h, Eq: w, Ergodic: true}, nil
}
