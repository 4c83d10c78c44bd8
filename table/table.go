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

// Package table renders run reports: matrices and statistics blocks as
// aligned text or CSV.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/stockparfait/errors"
)

// Row is one table row.
type Row interface {
	CSV() []string // an encoding/csv compatible representation
}

// Cells is a plain string row.
type Cells []string

var _ Row = Cells{}

func (r Cells) CSV() []string { return r }

// Floats is a numeric row printed with a fixed precision.
type Floats []float64

var _ Row = Floats{}

func (r Floats) CSV() []string {
	res := make([]string, len(r))
	for i, x := range r {
		res[i] = fmt.Sprintf("%.6g", x)
	}
	return res
}

// Table is a titled list of rows with an optional header.
type Table struct {
	Title  string
	Header []string
	Rows   []Row
}

// New creates a table with the given title and optional column headers.
func New(title string, header ...string) *Table {
	return &Table{Title: title, Header: header}
}

// AddRow appends one or more rows.
func (t *Table) AddRow(rows ...Row) *Table {
	t.Rows = append(t.Rows, rows...)
	return t
}

// AddMatrix appends every row of a dense matrix.
func (t *Table) AddMatrix(m [][]float64) *Table {
	for _, row := range m {
		t.AddRow(Floats(row))
	}
	return t
}

// WriteCSV writes the rows to w in CSV format, header first when present.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if len(t.Header) > 0 {
		if err := cw.Write(t.Header); err != nil {
			return errors.Annotate(err, "failed to write header")
		}
	}
	for _, r := range t.Rows {
		if err := cw.Write(r.CSV()); err != nil {
			return errors.Annotate(err, "failed to write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Annotate(err, "failed to flush rows")
	}
	return nil
}

// WriteText writes the table as aligned columns for reading, preceded by
// its title.
func (t *Table) WriteText(w io.Writer) error {
	if t.Title != "" {
		if _, err := fmt.Fprintf(w, "%s\n", t.Title); err != nil {
			return errors.Annotate(err, "failed to write title")
		}
	}
	var widths []int
	measure := func(row []string) error {
		if len(widths) == 0 {
			widths = make([]int, len(row))
		}
		if len(row) != len(widths) {
			return errors.Reason("row size [%d] != expected size [%d]",
				len(row), len(widths))
		}
		for i, c := range row {
			if widths[i] < len(c) {
				widths[i] = len(c)
			}
		}
		return nil
	}
	if len(t.Header) > 0 {
		if err := measure(t.Header); err != nil {
			return errors.Annotate(err, "failed to measure header")
		}
	}
	for _, r := range t.Rows {
		if err := measure(r.CSV()); err != nil {
			return errors.Annotate(err, "failed to measure row")
		}
	}

	write := func(row []string) error {
		padded := make([]string, len(row))
		for i, c := range row {
			padded[i] = fmt.Sprintf("%[2]*[1]s", c, widths[i])
		}
		_, err := fmt.Fprintf(w, "%s\n", strings.Join(padded, " | "))
		return err
	}
	if len(t.Header) > 0 {
		if err := write(t.Header); err != nil {
			return errors.Annotate(err, "failed to write header")
		}
		dashes := make([]string, len(widths))
		for i, width := range widths {
			dashes[i] = strings.Repeat("-", width)
		}
		if err := write(dashes); err != nil {
			return errors.Annotate(err, "failed to write separator")
		}
	}
	for _, r := range t.Rows {
		if err := write(r.CSV()); err != nil {
			return errors.Annotate(err, "failed to write row")
		}
	}
	return nil
}
