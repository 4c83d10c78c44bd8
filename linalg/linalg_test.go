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

package linalg

import (
	"testing"

	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMatrix(t *testing.T) {
	t.Parallel()

	Convey("Constructors", t, func() {
		Convey("Eye and Zeros and Ones", func() {
			So(Eye(2).ToRows(), ShouldResemble, [][]float64{{1, 0}, {0, 1}})
			So(Zeros(1, 2).ToRows(), ShouldResemble, [][]float64{{0, 0}})
			So(Ones(2, 1).ToRows(), ShouldResemble, [][]float64{{1}, {1}})
		})

		Convey("FromRows checks shape", func() {
			m, err := FromRows([][]float64{{1, 2}, {3, 4}})
			So(err, ShouldBeNil)
			So(m.At(1, 0), ShouldEqual, 3.0)

			_, err = FromRows([][]float64{{1, 2}, {3}})
			So(err, ShouldNotBeNil)

			_, err = FromRows(nil)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Arithmetic", t, func() {
		a, _ := FromRows([][]float64{{1, 2}, {3, 4}})
		b, _ := FromRows([][]float64{{0, 1}, {1, 0}})

		Convey("Mul", func() {
			So(Mul(a, b).ToRows(), ShouldResemble, [][]float64{{2, 1}, {4, 3}})
		})

		Convey("Add, Sub, Scale, MulElem", func() {
			So(Add(a, b).ToRows(), ShouldResemble, [][]float64{{1, 3}, {4, 4}})
			So(Sub(a, b).ToRows(), ShouldResemble, [][]float64{{1, 1}, {2, 4}})
			So(Scale(2, a).ToRows(), ShouldResemble, [][]float64{{2, 4}, {6, 8}})
			So(MulElem(a, b).ToRows(), ShouldResemble, [][]float64{{0, 2}, {3, 0}})
		})
	})

	Convey("Inverse and determinant", t, func() {
		m, _ := FromRows([][]float64{{2, 0}, {0, 4}})
		So(testutil.Round(Det(m), 9), ShouldEqual, 8.0)
		inv, err := Inv(m)
		So(err, ShouldBeNil)
		So(testutil.RoundSlice(inv.Row(0), 9), ShouldResemble, []float64{0.5, 0.0})
		So(testutil.RoundSlice(inv.Row(1), 9), ShouldResemble, []float64{0.0, 0.25})

		Convey("Inverse round-trips to identity", func() {
			p := Mul(m, inv)
			So(testutil.RoundSlice(p.Row(0), 9), ShouldResemble, []float64{1.0, 0.0})
			So(testutil.RoundSlice(p.Row(1), 9), ShouldResemble, []float64{0.0, 1.0})
		})

		Convey("Singular matrix fails", func() {
			s, _ := FromRows([][]float64{{1, 1}, {1, 1}})
			_, err := Inv(s)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Slice by index lists", t, func() {
		m, _ := FromRows([][]float64{
			{1, 2, 3},
			{4, 5, 6},
			{7, 8, 9},
		})
		s := m.Slice([]int{0, 2}, []int{1, 2})
		So(s.ToRows(), ShouldResemble, [][]float64{{2, 3}, {8, 9}})
	})

	Convey("Copy decouples storage", t, func() {
		m, _ := FromRows([][]float64{{1, 2}})
		c := m.Copy()
		m.Set(0, 0, 9)
		So(c.At(0, 0), ShouldEqual, 1.0)
	})
}
