package warehouse

import (
	"fmt"
	"slices"

	"github.com/medicore/medidash/internal/query"
)

// Field describes one ResultTable column.
type Field struct {
	Name string     `json:"name"`
	Kind query.Kind `json:"kind"`
}

// ResultTable holds the rows of one panel query. Cells are int64
// (integer), float64 (decimal) or string (month, category).
// A table is never mutated after it is returned; reshaping
// produces a new table.
type ResultTable struct {
	Columns []Field `json:"columns"`
	Rows    [][]any `json:"rows"`
}

func newResultTable(cols []query.Column) ResultTable {
	fields := make([]Field, len(cols))
	for i, c := range cols {
		fields[i] = Field{Name: c.Name, Kind: c.Kind}
	}
	return ResultTable{Columns: fields, Rows: [][]any{}}
}

// Empty reports whether no rows qualified. An empty table is a
// valid "no data" state, not a failure.
func (t ResultTable) Empty() bool { return len(t.Rows) == 0 }

// Len returns the number of rows.
func (t ResultTable) Len() int { return len(t.Rows) }

// Index returns the position of the named column, or -1.
func (t ResultTable) Index(name string) int {
	return slices.IndexFunc(t.Columns, func(f Field) bool {
		return f.Name == name
	})
}

// Values returns every cell of the named column.
func (t ResultTable) Values(name string) []any {
	i := t.Index(name)
	if i < 0 {
		return nil
	}
	out := make([]any, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

func (t ResultTable) first(name string) any {
	i := t.Index(name)
	if i < 0 || t.Empty() {
		return nil
	}
	return t.Rows[0][i]
}

// Int returns the first-row value of a metric column, 0 when the
// table is empty.
func (t ResultTable) Int(name string) int64 {
	switch v := t.first(name).(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

// Float returns the first-row value of a metric column, 0 when
// the table is empty.
func (t ResultTable) Float(name string) float64 {
	switch v := t.first(name).(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return 0
}

// String returns the first-row value of a text column.
func (t ResultTable) String(name string) string {
	s, _ := t.first(name).(string)
	return s
}

// Melt unpivots the value columns into (id, varName, valueName)
// rows, one per input row and value column, for multi-series
// charts.
func (t ResultTable) Melt(
	id string, values []string, varName, valueName string,
) (ResultTable, error) {
	idIdx := t.Index(id)
	if idIdx < 0 {
		return ResultTable{}, fmt.Errorf("melt: no column %s", id)
	}
	valIdx := make([]int, len(values))
	kind := query.Integer
	for i, v := range values {
		valIdx[i] = t.Index(v)
		if valIdx[i] < 0 {
			return ResultTable{}, fmt.Errorf("melt: no column %s", v)
		}
		if t.Columns[valIdx[i]].Kind == query.Decimal {
			kind = query.Decimal
		} else if !t.Columns[valIdx[i]].Kind.Measure() {
			return ResultTable{}, fmt.Errorf(
				"melt: column %s is not a measure", v,
			)
		}
	}

	out := ResultTable{
		Columns: []Field{
			t.Columns[idIdx],
			{Name: varName, Kind: query.Category},
			{Name: valueName, Kind: kind},
		},
		Rows: make([][]any, 0, len(t.Rows)*len(values)),
	}
	for i, v := range values {
		for _, row := range t.Rows {
			cell := row[valIdx[i]]
			if kind == query.Decimal {
				cell = toFloat(cell)
			}
			out.Rows = append(out.Rows, []any{row[idIdx], v, cell})
		}
	}
	return out, nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
