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
	"testing"

	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

func rowSumsToOne(rows [][]float64) bool {
	for _, r := range rows {
		sum := 0.0
		for _, x := range r {
			sum += x
		}
		if math.Abs(sum-1.0) > 1e-9 {
			return false
		}
	}
	return true
}

func TestResolve(t *testing.T) {
	t.Parallel()

	Convey("FromPairs", t, func() {
		Convey("recovers K and mirrors the upper triangle", func() {
			// K=3: entries (0,1), (0,2), (1,2).
			m, err := FromPairs([]float64{0.25, 0.25, 0.5})
			So(err, ShouldBeNil)
			So(m.Rows(), ShouldEqual, 3)
			So(m.At(0, 1), ShouldEqual, 0.25)
			So(m.At(1, 0), ShouldEqual, 0.25)
			So(m.At(1, 2), ShouldEqual, 0.5)
			So(m.At(1, 1), ShouldEqual, 1.0-0.25-0.5)
			So(rowSumsToOne(m.ToRows()), ShouldBeTrue)
		})

		Convey("rejects a non-triangular count", func() {
			_, err := FromPairs([]float64{0.1, 0.2})
			So(err, ShouldNotBeNil)
		})
	})

	Convey("FromAlpha normalizes amplitudes first", t, func() {
		m, err := FromAlpha([]float64{1.0, 1.0, 2.0})
		So(err, ShouldBeNil)
		So(m.At(0, 1), ShouldEqual, 0.25)
		So(m.At(1, 2), ShouldEqual, 0.5)
		So(rowSumsToOne(m.ToRows()), ShouldBeTrue)

		_, err = FromAlpha([]float64{0.0, 0.0, 0.0})
		So(err, ShouldNotBeNil)
	})

	Convey("FromDense", t, func() {
		Convey("accepts and renormalizes a valid matrix", func() {
			m, err := FromDense([][]float64{
				{0.5, 0.25, 0.25},
				{0.5, 0.0, 0.5},
				{0.25, 0.25, 0.5},
			})
			So(err, ShouldBeNil)
			So(rowSumsToOne(m.ToRows()), ShouldBeTrue)
		})

		Convey("rejects a bad row sum", func() {
			_, err := FromDense([][]float64{{0.5, 0.1}, {0.5, 0.5}})
			So(err, ShouldNotBeNil)
		})

		Convey("rejects a non-square matrix", func() {
			_, err := FromDense([][]float64{{0.5, 0.5}})
			So(err, ShouldNotBeNil)
		})
	})

	Convey("FromSparse", t, func() {
		Convey("fills entries and closes rows", func() {
			m, err := FromSparse(3, map[string]map[string]float64{
				"0": {"1": 0.8, "2": 0.1},
				"1": {"0": 0.1},
			}, nil)
			So(err, ShouldBeNil)
			So(m.At(0, 0), ShouldAlmostEqual, 0.1, 1e-9)
			So(m.At(0, 1), ShouldEqual, 0.8)
			So(m.At(1, 1), ShouldAlmostEqual, 0.9, 1e-9)
			So(m.At(2, 2), ShouldEqual, 1.0) // absorbing by default
			So(rowSumsToOne(m.ToRows()), ShouldBeTrue)
		})

		Convey("composite keys index the product space", func() {
			// dims = [2, 2]: "1,1" -> 3, "0,1" -> 2.
			m, err := FromSparse(4, map[string]map[string]float64{
				"1,1": {"0,1": 0.5},
			}, []int{2, 2})
			So(err, ShouldBeNil)
			So(m.At(3, 2), ShouldEqual, 0.5)
			So(m.At(3, 3), ShouldEqual, 0.5)
		})

		Convey("key arity must match the grid rank", func() {
			_, err := FromSparse(4, map[string]map[string]float64{
				"1,1,0": {"0,1": 0.5},
			}, []int{2, 2})
			So(err, ShouldNotBeNil)
		})

		Convey("overfull rows are rejected", func() {
			_, err := FromSparse(2, map[string]map[string]float64{
				"0": {"1": 1.5},
			}, nil)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Cumulative rows are monotone and end at 1", t, func() {
		m, _ := FromDense([][]float64{
			{0.5, 0.25, 0.25},
			{0.5, 0.0, 0.5},
			{0.25, 0.25, 0.5},
		})
		c := Cumulative(m)
		for i := 0; i < c.Rows(); i++ {
			row := c.Row(i)
			for j := 1; j < len(row); j++ {
				So(row[j], ShouldBeGreaterThanOrEqualTo, row[j-1])
			}
			So(row[len(row)-1], ShouldEqual, 1.0)
		}
	})

	Convey("CorrLabels", t, func() {
		So(CorrLabels(3), ShouldResemble, []int{0, 1, -1})
		So(CorrLabels(4), ShouldResemble, []int{1, -1, 2, -2})
		So(CorrLabels(5), ShouldResemble, []int{0, 1, -1, 2, -2})

		Convey("labels are zero-mean", func() {
			for k := 2; k < 8; k++ {
				sum := 0
				for _, l := range CorrLabels(k) {
					sum += l
				}
				So(sum, ShouldEqual, 0)
			}
		})
	})

	Convey("Symbols", t, func() {
		Convey("identity table", func() {
			s := NewSymbols(3)
			So(s.Size(), ShouldEqual, 3)
			i, ok := s.Index("2")
			So(ok, ShouldBeTrue)
			So(i, ShouldEqual, 2)
			So(s.Name(0), ShouldEqual, "0")
		})

		Convey("from a map", func() {
			s, err := SymbolsFromMap(map[string]int{"up": 0, "down": 1})
			So(err, ShouldBeNil)
			i, ok := s.Index("down")
			So(ok, ShouldBeTrue)
			So(i, ShouldEqual, 1)
			_, ok = s.Index("sideways")
			So(ok, ShouldBeFalse)

			_, err = SymbolsFromMap(map[string]int{"a": 0, "b": 0})
			So(err, ShouldNotBeNil)
			_, err = SymbolsFromMap(map[string]int{"a": 5})
			So(err, ShouldNotBeNil)
		})

		Convey("from a list", func() {
			s, err := SymbolsFromList([]string{"up", "down"})
			So(err, ShouldBeNil)
			So(s.Names(), ShouldResemble, []string{"up", "down"})
			So(s.Labels(), ShouldResemble, []string{"down", "up"})

			_, err = SymbolsFromList([]string{"up", "up"})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSolvers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	Convey("Recurrence", t, func() {
		Convey("textbook three-state chain", func() {
			p, _ := FromDense([][]float64{
				{0.5, 0.25, 0.25},
				{0.5, 0.0, 0.5},
				{0.25, 0.25, 0.5},
			})
			r, err := Recurrence(ctx, p)
			So(err, ShouldBeNil)
			So(r.Ergodic, ShouldBeTrue)
			So(testutil.RoundSlice(r.Eq, 9), ShouldResemble, []float64{0.4, 0.2, 0.4})
			So(testutil.Round(r.H.At(0, 0), 9), ShouldEqual, 2.5)
			So(testutil.Round(r.H.At(1, 1), 9), ShouldEqual, 5.0)
			So(testutil.Round(r.H.At(2, 2), 9), ShouldEqual, 2.5)
		})

		Convey("H[i][i] = 1/eq[i] for an ergodic chain", func() {
			p, _ := FromPairs([]float64{0.3, 0.2, 0.4})
			r, err := Recurrence(ctx, p)
			So(err, ShouldBeNil)
			So(r.Ergodic, ShouldBeTrue)
			for i := 0; i < 3; i++ {
				So(testutil.Round(r.H.At(i, i)*r.Eq[i], 9), ShouldEqual, 1.0)
			}
		})

		Convey("K=1 is trivially ergodic", func() {
			p, _ := FromDense([][]float64{{1.0}})
			r, err := Recurrence(ctx, p)
			So(err, ShouldBeNil)
			So(r.Ergodic, ShouldBeTrue)
			So(r.H.At(0, 0), ShouldEqual, 1.0)
			So(r.Eq, ShouldResemble, []float64{1.0})
		})

		Convey("non-ergodic chain degrades to zeros with uniform eq", func() {
			p, err := FromSparse(3, map[string]map[string]float64{
				"0": {"1": 0.8, "2": 0.1},
				"1": {"0": 0.1},
			}, nil)
			So(err, ShouldBeNil)
			r, err := Recurrence(ctx, p)
			So(err, ShouldBeNil)
			So(r.Ergodic, ShouldBeFalse)
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					So(r.H.At(i, j), ShouldEqual, 0.0)
				}
			}
			So(testutil.RoundSlice(r.Eq, 9), ShouldResemble,
				testutil.RoundSlice([]float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, 9))
		})
	})

	Convey("Absorption", t, func() {
		Convey("five-state gambler's ruin", func() {
			p, _ := FromDense([][]float64{
				{1, 0, 0, 0, 0},
				{0.5, 0, 0.5, 0, 0},
				{0, 0.5, 0, 0.5, 0},
				{0, 0, 0.5, 0, 0.5},
				{0, 0, 0, 0, 1},
			})
			r, err := Absorption(p)
			So(err, ShouldBeNil)
			So(r.Empty(), ShouldBeFalse)
			So(testutil.RoundSlice(r.Times, 9), ShouldResemble, []float64{3, 4, 3})
			So(r.States, ShouldResemble, []int{1, 5})
			So(testutil.RoundSlice(r.Probs.Row(0), 9), ShouldResemble, []float64{0.75, 0.25})
			So(testutil.RoundSlice(r.Probs.Row(1), 9), ShouldResemble, []float64{0.5, 0.5})
			So(testutil.RoundSlice(r.Probs.Row(2), 9), ShouldResemble, []float64{0.25, 0.75})
		})

		Convey("destination probabilities per row sum to 1", func() {
			p, _ := FromDense([][]float64{
				{1, 0, 0},
				{0.3, 0.3, 0.4},
				{0, 0, 1},
			})
			r, err := Absorption(p)
			So(err, ShouldBeNil)
			for i := 0; i < len(r.Times); i++ {
				sum := 0.0
				for j := 0; j < r.Probs.Cols(); j++ {
					sum += r.Probs.At(i, j)
				}
				So(testutil.Round(sum, 9), ShouldEqual, 1.0)
			}
		})

		Convey("no absorbing states yields an empty result", func() {
			p, _ := FromPairs([]float64{0.5})
			r, err := Absorption(p)
			So(err, ShouldBeNil)
			So(r.Empty(), ShouldBeTrue)
		})

		Convey("all absorbing states yields an empty result", func() {
			p, _ := FromDense([][]float64{{1, 0}, {0, 1}})
			r, err := Absorption(p)
			So(err, ShouldBeNil)
			So(r.Empty(), ShouldBeTrue)
		})
	})
}
