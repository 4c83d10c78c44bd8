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

// Package numeric implements small numerical utilities shared by the
// stochastic engine: deviates, compensated sums, slice reductions and
// mixed-radix index enumeration.
package numeric

import (
	"math"

	"github.com/stockparfait/errors"

	"golang.org/x/exp/rand"
)

// ExpDev draws an exponential deviate with the given mean: -mean * ln(U) for
// U uniform in (0, 1).
func ExpDev(r *rand.Rand, mean float64) float64 {
	u := r.Float64()
	for u == 0.0 {
		u = r.Float64()
	}
	return -mean * math.Log(u)
}

// CumSum replaces xs in place with its cumulative sums. The summation is
// Kahan-compensated to keep long probability rows from drifting.
func CumSum(xs []float64) {
	sum := 0.0
	c := 0.0 // compensation term
	for i, x := range xs {
		y := x - c
		t := sum + y
		c = (t - sum) - y
		sum = t
		xs[i] = sum
	}
}

// Sum of the slice elements.
func Sum(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum
}

// Avg is the arithmetic mean; 0 for an empty slice.
func Avg(xs []float64) float64 {
	if len(xs) == 0 {
		return 0.0
	}
	return Sum(xs) / float64(len(xs))
}

// Max of the slice elements; 0 for an empty slice.
func Max(xs []float64) float64 {
	if len(xs) == 0 {
		return 0.0
	}
	max := xs[0]
	for _, x := range xs[1:] {
		if x > max {
			max = x
		}
	}
	return max
}

// Permutations enumerates the Cartesian product [0..dims[0]) x ... x
// [0..dims[D-1]) with the first dimension varying fastest. The result has
// prod(dims) rows of D elements each. Returns nil if any dimension is < 1.
func Permutations(dims []int) [][]int {
	size := 1
	for _, d := range dims {
		if d < 1 {
			return nil
		}
		size *= d
	}
	res := make([][]int, size)
	for i := 0; i < size; i++ {
		v := make([]int, len(dims))
		rem := i
		for d, dim := range dims {
			v[d] = rem % dim
			rem /= dim
		}
		res[i] = v
	}
	return res
}

// PermutationsFunc enumerates the same product as Permutations, mapping each
// component through f(i, max) where max is the component's dimension. A
// typical f normalizes components into [0, 1) as i/max.
func PermutationsFunc(dims []int, f func(i, max int) float64) [][]float64 {
	perms := Permutations(dims)
	res := make([][]float64, len(perms))
	for i, p := range perms {
		v := make([]float64, len(p))
		for d, x := range p {
			v[d] = f(x, dims[d])
		}
		res[i] = v
	}
	return res
}

// MixedRadixIndex folds the digits into a single index over the product
// space of dims, the first digit being the least significant:
// idx = sum_d digits[d] * prod_{d' < d} dims[d'].
func MixedRadixIndex(digits, dims []int) (int, error) {
	if len(digits) != len(dims) {
		return 0, errors.Reason("digits rank [%d] != dims rank [%d]",
			len(digits), len(dims))
	}
	idx := 0
	stride := 1
	for d, x := range digits {
		if x < 0 || x >= dims[d] {
			return 0, errors.Reason("digit[%d]=%d out of range [0..%d)",
				d, x, dims[d])
		}
		idx += x * stride
		stride *= dims[d]
	}
	return idx, nil
}
