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

// Package chain models finite-state Markov chain structure: construction of
// row-stochastic transition matrices from the various user input shapes,
// cumulative rows for inverse-CDF sampling, state symbol tables, and the
// mean-recurrence and first-absorption solvers.
package chain

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/stochastic/linalg"
	"github.com/stockparfait/stochastic/numeric"
)

// rowSumEps is the tolerance for user-supplied row sums.
const rowSumEps = 1e-3

// FromPairs builds a transition matrix from the (K^2-K)/2 upper-triangular
// probabilities, listed row by row. The lower triangle mirrors the upper
// one, and each diagonal element closes its row to sum to 1.
func FromPairs(p []float64) (linalg.Matrix, error) {
	n := len(p)
	k := int(math.Round((1.0 + math.Sqrt(1.0+8.0*float64(n))) / 2.0))
	if k*(k-1)/2 != n {
		return linalg.Matrix{}, errors.Reason(
			"%d upper-triangular entries do not form a square matrix", n)
	}
	m := linalg.Zeros(k, k)
	idx := 0
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			m.Set(i, j, p[idx])
			m.Set(j, i, p[idx])
			idx++
		}
	}
	if err := closeRows(m); err != nil {
		return linalg.Matrix{}, err
	}
	return m, nil
}

// FromAlpha builds a transition matrix from (K^2-K)/2 jump-rate amplitudes:
// the amplitudes are normalized into probabilities and treated as the
// upper-triangular input of FromPairs.
func FromAlpha(alpha []float64) (linalg.Matrix, error) {
	total := numeric.Sum(alpha)
	if total <= 0 {
		return linalg.Matrix{}, errors.Reason(
			"jump-rate amplitudes sum to %f, must be positive", total)
	}
	p := make([]float64, len(alpha))
	for i, a := range alpha {
		p[i] = a / total
	}
	return FromPairs(p)
}

// FromDense validates and copies a dense K x K transition matrix. Rows must
// sum to 1 within 1e-3; they are renormalized exactly on the way in.
func FromDense(rows [][]float64) (linalg.Matrix, error) {
	m, err := linalg.FromRows(rows)
	if err != nil {
		return linalg.Matrix{}, errors.Annotate(err, "invalid transition matrix")
	}
	if m.Rows() != m.Cols() {
		return linalg.Matrix{}, errors.Reason(
			"transition matrix is %dx%d, must be square", m.Rows(), m.Cols())
	}
	for i := 0; i < m.Rows(); i++ {
		sum := numeric.Sum(m.Row(i))
		if math.Abs(sum-1.0) > rowSumEps {
			return linalg.Matrix{}, errors.Reason(
				"row %d sums to %f, must sum to 1", i, sum)
		}
		for j := 0; j < m.Cols(); j++ {
			m.Set(i, j, m.At(i, j)/sum)
		}
	}
	return m, nil
}

// parseKey parses a composite state key like "0,1" into a flat state index.
// A single-component key is the index itself; a multi-component key is a
// mixed-radix index over dims, least-significant component first.
func parseKey(key string, dims []int, k int) (int, error) {
	parts := strings.Split(key, ",")
	digits := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, errors.Annotate(err, "invalid state key '%s'", key)
		}
		digits[i] = d
	}
	if len(digits) == 1 {
		if digits[0] < 0 || digits[0] >= k {
			return 0, errors.Reason("state key '%s' out of range [0..%d)", key, k)
		}
		return digits[0], nil
	}
	if len(digits) != len(dims) {
		return 0, errors.Reason(
			"state key '%s' has %d components, grid has %d dimensions",
			key, len(digits), len(dims))
	}
	idx, err := numeric.MixedRadixIndex(digits, dims)
	if err != nil {
		return 0, errors.Annotate(err, "invalid state key '%s'", key)
	}
	return idx, nil
}

// FromSparse builds a K x K transition matrix from a sparse map of
// {from: {to: prob}}. Keys may be composite ("i,j,...") indexing a product
// state space with the given grid dims. Unspecified entries are zero, and
// each diagonal element closes its row to sum to 1.
func FromSparse(states int, entries map[string]map[string]float64, dims []int) (linalg.Matrix, error) {
	if states < 1 {
		return linalg.Matrix{}, errors.Reason("states=%d must be >= 1", states)
	}
	m := linalg.Zeros(states, states)
	for fromKey, row := range entries {
		from, err := parseKey(fromKey, dims, states)
		if err != nil {
			return linalg.Matrix{}, errors.Annotate(err, "invalid 'from' key")
		}
		for toKey, prob := range row {
			to, err := parseKey(toKey, dims, states)
			if err != nil {
				return linalg.Matrix{}, errors.Annotate(err, "invalid 'to' key")
			}
			m.Set(from, to, prob)
		}
	}
	if err := closeRows(m); err != nil {
		return linalg.Matrix{}, err
	}
	return m, nil
}

// closeRows sets each diagonal element to 1 minus the off-diagonal row sum.
func closeRows(m linalg.Matrix) error {
	k := m.Rows()
	for i := 0; i < k; i++ {
		sum := 0.0
		for j := 0; j < k; j++ {
			if j != i {
				sum += m.At(i, j)
			}
		}
		if sum > 1.0+rowSumEps {
			return errors.Reason(
				"off-diagonal probabilities in row %d sum to %f > 1", i, sum)
		}
		diag := 1.0 - sum
		if diag < 0 {
			diag = 0
		}
		m.Set(i, i, diag)
	}
	return nil
}

// Cumulative computes the row-wise cumulative sums of a transition matrix
// for inverse-CDF sampling. Each row ends exactly at 1.
func Cumulative(p linalg.Matrix) linalg.Matrix {
	k := p.Rows()
	m := linalg.Zeros(k, k)
	for i := 0; i < k; i++ {
		row := p.Row(i)
		numeric.CumSum(row)
		row[k-1] = 1.0
		for j, x := range row {
			m.Set(i, j, x)
		}
	}
	return m
}

// CorrLabels builds the zero-mean integer labeling of states used as the
// scalar variate in the autocorrelation statistic: [0, +1, -1, +2, -2, ...]
// for odd K and [+1, -1, +2, -2, ...] for even K.
func CorrLabels(k int) []int {
	labels := make([]int, k)
	i := 0
	if k%2 == 1 {
		labels[0] = 0
		i = 1
	}
	v := 1
	for ; i < k; i += 2 {
		labels[i] = v
		labels[i+1] = -v
		v++
	}
	return labels
}

// Symbols maps user state labels to internal indices and back.
type Symbols struct {
	index map[string]int
	names []string
}

// NewSymbols creates an identity symbol table of size k with labels
// "0".."k-1".
func NewSymbols(k int) *Symbols {
	names := make([]string, k)
	index := make(map[string]int, k)
	for i := 0; i < k; i++ {
		names[i] = strconv.Itoa(i)
		index[names[i]] = i
	}
	return &Symbols{index: index, names: names}
}

// SymbolsFromMap creates a symbol table from a label -> index mapping.
func SymbolsFromMap(m map[string]int) (*Symbols, error) {
	names := make([]string, len(m))
	index := make(map[string]int, len(m))
	for label, i := range m {
		if i < 0 || i >= len(m) {
			return nil, errors.Reason(
				"symbol '%s' index %d out of range [0..%d)", label, i, len(m))
		}
		if names[i] != "" {
			return nil, errors.Reason(
				"symbols '%s' and '%s' map to the same index %d", names[i], label, i)
		}
		names[i] = label
		index[label] = i
	}
	return &Symbols{index: index, names: names}, nil
}

// SymbolsFromList creates a symbol table from a label list: the label's
// position is its index.
func SymbolsFromList(labels []string) (*Symbols, error) {
	m := make(map[string]int, len(labels))
	for i, label := range labels {
		if _, ok := m[label]; ok {
			return nil, errors.Reason("duplicate symbol '%s'", label)
		}
		m[label] = i
	}
	return SymbolsFromMap(m)
}

// Size is the number of states.
func (s *Symbols) Size() int { return len(s.names) }

// Index resolves a label to its state index.
func (s *Symbols) Index(label string) (int, bool) {
	i, ok := s.index[label]
	return i, ok
}

// Name returns the label of a state index.
func (s *Symbols) Name(i int) string {
	if i < 0 || i >= len(s.names) {
		return ""
	}
	return s.names[i]
}

// Names lists all labels in index order.
func (s *Symbols) Names() []string {
	res := make([]string, len(s.names))
	copy(res, s.names)
	return res
}

// Labels lists all labels sorted lexicographically, for stable debug output.
func (s *Symbols) Labels() []string {
	res := s.Names()
	sort.Strings(res)
	return res
}
