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

package table

import (
	"bytes"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTable(t *testing.T) {
	t.Parallel()

	Convey("Table rendering", t, func() {
		tbl := New("Transition MLE", "from/to", "0", "1")
		tbl.AddRow(Cells{"0", "0.10", "0.90"})
		tbl.AddRow(Cells{"1", "0.12", "0.88"})

		Convey("WriteText aligns columns under the title", func() {
			var buf bytes.Buffer
			So(tbl.WriteText(&buf), ShouldBeNil)
			lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
			So(lines[0], ShouldEqual, "Transition MLE")
			So(lines[1], ShouldContainSubstring, "from/to")
			So(lines[2], ShouldContainSubstring, "---")
			So(len(lines), ShouldEqual, 5)
			// All data lines share the same width.
			So(len(lines[3]), ShouldEqual, len(lines[1]))
		})

		Convey("WriteCSV emits header and rows", func() {
			var buf bytes.Buffer
			So(tbl.WriteCSV(&buf), ShouldBeNil)
			So(buf.String(), ShouldEqual,
				"from/to,0,1\n0,0.10,0.90\n1,0.12,0.88\n")
		})

		Convey("mismatched row size fails WriteText", func() {
			bad := New("bad", "a", "b")
			bad.AddRow(Cells{"only one"})
			var buf bytes.Buffer
			So(bad.WriteText(&buf), ShouldNotBeNil)
		})
	})

	Convey("Numeric rows", t, func() {
		Convey("Floats format compactly", func() {
			So(Floats{0.5, 2.0}.CSV(), ShouldResemble, []string{"0.5", "2"})
		})

		Convey("AddMatrix appends all rows", func() {
			tbl := New("H")
			tbl.AddMatrix([][]float64{{2.5, 5.0}, {5.0, 2.5}})
			So(len(tbl.Rows), ShouldEqual, 2)
			var buf bytes.Buffer
			So(tbl.WriteText(&buf), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, "2.5")
		})
	})
}
