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

// Package linalg is a thin adapter over gonum's dense matrices. The chain
// solvers go through this package only, so the underlying matrix engine can
// be swapped without touching them.
package linalg

import (
	"github.com/stockparfait/errors"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a dense row-major 2-D matrix.
type Matrix struct {
	d *mat.Dense
}

// New creates a rows x cols matrix from row-major data. A nil data slice
// creates a zero matrix. It panics if data is non-nil and has the wrong
// length, matching gonum's behavior.
func New(rows, cols int, data []float64) Matrix {
	return Matrix{d: mat.NewDense(rows, cols, data)}
}

// Zeros creates a rows x cols zero matrix.
func Zeros(rows, cols int) Matrix {
	return New(rows, cols, nil)
}

// Ones creates a rows x cols matrix of ones.
func Ones(rows, cols int) Matrix {
	m := Zeros(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, 1.0)
		}
	}
	return m
}

// Eye creates the n x n identity matrix.
func Eye(n int) Matrix {
	m := Zeros(n, n)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1.0)
	}
	return m
}

// FromRows creates a matrix from a slice of equal-length rows.
func FromRows(rows [][]float64) (Matrix, error) {
	if len(rows) == 0 {
		return Matrix{}, errors.Reason("no rows")
	}
	cols := len(rows[0])
	m := Zeros(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return Matrix{}, errors.Reason(
				"row %d has %d columns, expected %d", i, len(r), cols)
		}
		for j, x := range r {
			m.Set(i, j, x)
		}
	}
	return m, nil
}

// Rows returns the number of rows.
func (m Matrix) Rows() int {
	r, _ := m.d.Dims()
	return r
}

// Cols returns the number of columns.
func (m Matrix) Cols() int {
	_, c := m.d.Dims()
	return c
}

// At reads the (i, j) element.
func (m Matrix) At(i, j int) float64 { return m.d.At(i, j) }

// Set writes the (i, j) element.
func (m Matrix) Set(i, j int, x float64) { m.d.Set(i, j, x) }

// Row copies the i'th row into a new slice.
func (m Matrix) Row(i int) []float64 {
	res := make([]float64, m.Cols())
	for j := range res {
		res[j] = m.At(i, j)
	}
	return res
}

// ToRows copies the matrix into a slice of rows.
func (m Matrix) ToRows() [][]float64 {
	res := make([][]float64, m.Rows())
	for i := range res {
		res[i] = m.Row(i)
	}
	return res
}

// Copy deep-copies the matrix.
func (m Matrix) Copy() Matrix {
	res := Zeros(m.Rows(), m.Cols())
	res.d.Copy(m.d)
	return res
}

// Slice extracts the submatrix of the given row and column index lists, in
// the order listed.
func (m Matrix) Slice(rows, cols []int) Matrix {
	res := Zeros(len(rows), len(cols))
	for i, r := range rows {
		for j, c := range cols {
			res.Set(i, j, m.At(r, c))
		}
	}
	return res
}

// Mul computes the matrix product a * b.
func Mul(a, b Matrix) Matrix {
	var d mat.Dense
	d.Mul(a.d, b.d)
	return Matrix{d: &d}
}

// Add computes the element-wise sum a + b.
func Add(a, b Matrix) Matrix {
	var d mat.Dense
	d.Add(a.d, b.d)
	return Matrix{d: &d}
}

// Sub computes the element-wise difference a - b.
func Sub(a, b Matrix) Matrix {
	var d mat.Dense
	d.Sub(a.d, b.d)
	return Matrix{d: &d}
}

// Scale multiplies every element of m by c.
func Scale(c float64, m Matrix) Matrix {
	var d mat.Dense
	d.Scale(c, m.d)
	return Matrix{d: &d}
}

// MulElem computes the element-wise (Hadamard) product a ⊙ b.
func MulElem(a, b Matrix) Matrix {
	var d mat.Dense
	d.MulElem(a.d, b.d)
	return Matrix{d: &d}
}

// Det computes the determinant of a square matrix.
func Det(m Matrix) float64 {
	return mat.Det(m.d)
}

// Inv computes the inverse of a square matrix.
func Inv(m Matrix) (Matrix, error) {
	var d mat.Dense
	if err := d.Inverse(m.d); err != nil {
		return Matrix{}, errors.Annotate(err, "matrix is not invertible")
	}
	return Matrix{d: &d}, nil
}
