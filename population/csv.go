package population

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/popsynth/popsynth/demographics"
)

// Columns is the flattened, ordered column layout of a population export.
// Numeric group sub-dimensions become dotted columns (e.g.
// "political_affiliation.economic").
type Columns struct {
	numeric     []numericColumn
	categorical []string
}

type numericColumn struct {
	attr string
	sub  string // empty for flat attributes
}

// ColumnsFor derives the export layout from a validated specification, in
// declared attribute order.
func ColumnsFor(spec *demographics.ValidSpec) Columns {
	var cols Columns
	for _, field := range spec.Numerical() {
		if field.IsGroup() {
			for _, sub := range field.Group {
				cols.numeric = append(cols.numeric, numericColumn{attr: field.Name, sub: sub.Name})
			}
			continue
		}
		cols.numeric = append(cols.numeric, numericColumn{attr: field.Name})
	}
	for _, field := range spec.Categorical() {
		cols.categorical = append(cols.categorical, field.Name)
	}
	return cols
}

// Header returns the CSV header row: id, numeric columns, categorical
// columns.
func (c Columns) Header() []string {
	header := make([]string, 0, 1+len(c.numeric)+len(c.categorical))
	header = append(header, "id")
	for _, col := range c.numeric {
		if col.sub != "" {
			header = append(header, col.attr+"."+col.sub)
		} else {
			header = append(header, col.attr)
		}
	}
	header = append(header, c.categorical...)
	return header
}

// WriteCSV writes the population as CSV rows in agent order, one row per
// agent, using the column layout of the generating specification.
func WriteCSV(w io.Writer, spec *demographics.ValidSpec, pop *Population) error {
	cols := ColumnsFor(spec)

	cw := csv.NewWriter(w)
	if err := cw.Write(cols.Header()); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	row := make([]string, 0, 1+len(cols.numeric)+len(cols.categorical))
	for _, agent := range pop.Agents {
		row = row[:0]
		row = append(row, strconv.Itoa(agent.ID))

		for _, col := range cols.numeric {
			v, ok := agent.Numerical[col.attr]
			if !ok {
				return fmt.Errorf("agent %d is missing numeric attribute %q", agent.ID, col.attr)
			}
			value := v.Scalar
			if col.sub != "" {
				value, ok = v.Sub[col.sub]
				if !ok {
					return fmt.Errorf("agent %d is missing sub-dimension %q of %q", agent.ID, col.sub, col.attr)
				}
			}
			row = append(row, strconv.FormatFloat(value, 'g', -1, 64))
		}

		for _, name := range cols.categorical {
			value, ok := agent.Categorical[name]
			if !ok {
				return fmt.Errorf("agent %d is missing categorical attribute %q", agent.ID, name)
			}
			row = append(row, value)
		}

		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write agent %d: %w", agent.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
