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
	"github.com/stockparfait/errors"
	"github.com/stockparfait/stochastic/linalg"
)

// absorbingEps: a state k is absorbing when P[k][k] = 1 within this epsilon.
const absorbingEps = 1e-9

// AbsorptionResult holds first-absorption quantities computed on the
// transient states of a chain with absorbing states.
type AbsorptionResult struct {
	Times []float64     // expected steps to absorption per transient state
	Probs linalg.Matrix // transient x absorbing destination probabilities
	// States lists the absorbing states one-based, as consumed downstream.
	States []int
}

// Empty reports whether the chain has no transient/absorbing partition.
func (r *AbsorptionResult) Empty() bool { return len(r.States) == 0 }

// Absorption partitions the states into absorbing (P[k][k] = 1) and
// transient ones, and computes the expected absorption times N*1 and the
// destination probabilities N*R with N = (I - Q)^-1 on the transient
// submatrix Q. When either partition is empty, the result is empty.
func Absorption(p linalg.Matrix) (*AbsorptionResult, error) {
	k := p.Rows()
	if k == 0 || p.Cols() != k {
		return nil, errors.Reason("transition matrix is %dx%d, must be square",
			k, p.Cols())
	}
	var transient, absorbing []int
	for i := 0; i < k; i++ {
		if p.At(i, i) >= 1.0-absorbingEps {
			absorbing = append(absorbing, i)
			continue
		}
		transient = append(transient, i)
	}
	if len(absorbing) == 0 || len(transient) == 0 {
		return &AbsorptionResult{}, nil
	}

	q := p.Slice(transient, transient)
	r := p.Slice(transient, absorbing)
	n, err := linalg.Inv(linalg.Sub(linalg.Eye(len(transient)), q))
	if err != nil {
		return nil, errors.Annotate(err, "failed to invert I - Q")
	}

	times := make([]float64, len(transient))
	ones := linalg.Ones(len(transient), 1)
	nt := linalg.Mul(n, ones)
	for i := range times {
		times[i] = nt.At(i, 0)
	}

	states := make([]int, len(absorbing))
	for i, s := range absorbing {
		states[i] = s + 1 // one-based for downstream consumers
	}
	return &AbsorptionResult{
		Times:  times,
		Probs:  linalg.Mul(n, r),
		States: states,
	}, nil
}
