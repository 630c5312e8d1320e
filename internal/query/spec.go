package query

import (
	"fmt"
	"strings"
)

// TopN is the row cap for ranked panels.
const TopN = 10

// Logical warehouse schemas. A Dialect maps them to physical names.
const (
	SchemaClinical  = "CLINICAL"
	SchemaBilling   = "BILLING"
	SchemaReference = "REFERENCE"
	SchemaExecutive = "EXECUTIVE"
)

// Kind is the type of an output column.
type Kind string

const (
	Integer  Kind = "integer"
	Decimal  Kind = "decimal"
	Month    Kind = "month"
	Category Kind = "category"
)

// Measure reports whether values of k are numeric.
func (k Kind) Measure() bool {
	return k == Integer || k == Decimal
}

// Table is a logical warehouse table.
type Table struct {
	Schema string
	Name   string
}

// Join is a LEFT JOIN onto the base table.
type Join struct {
	Table Table
	Alias string
	On    string
}

// Column maps an output column name to an aggregate expression.
type Column struct {
	Name string `json:"name"`
	Expr string `json:"-"`
	Kind Kind   `json:"kind"`
}

// Order is one ORDER BY term.
type Order struct {
	Expr string
	Desc bool
}

// Asc orders by expr ascending.
func Asc(expr string) Order { return Order{Expr: expr} }

// Desc orders by expr descending.
func Desc(expr string) Order { return Order{Expr: expr, Desc: true} }

// Statement is anything Build can render.
type Statement interface {
	// Columns returns the output schema in select order.
	Columns() []Column
	render(d Dialect, f FilterSet) (string, []any, error)
}

// Spec describes one panel's aggregate query. Specs are defined
// once and never mutated.
type Spec struct {
	Name       string
	Table      Table
	Alias      string
	Joins      []Join
	DateColumn string
	// Filters maps each dimension the panel honors to the column
	// it restricts. Dimensions not listed are ignored.
	Filters map[Dimension]string
	// Where holds static predicates that always apply.
	Where   []string
	Select  []Column
	GroupBy string
	OrderBy []Order
	Limit   int
}

// Columns implements Statement.
func (s Spec) Columns() []Column { return s.Select }

// Composite cross-joins single-row specs into one snapshot row.
// Each part becomes a CTE with its own date window.
type Composite struct {
	Name  string
	Parts []Spec
}

// Columns implements Statement.
func (c Composite) Columns() []Column {
	var cols []Column
	for _, p := range c.Parts {
		cols = append(cols, p.Select...)
	}
	return cols
}

// --- Expression combinators ---
//
// Every aggregate coalesces its result so an empty or all-null
// input yields 0 rather than NULL.

// Count counts qualifying rows.
func Count() string { return "COUNT(*)" }

// CountIf counts rows where cond holds.
func CountIf(cond string) string {
	return fmt.Sprintf(
		"COALESCE(SUM(CASE WHEN %s THEN 1 ELSE 0 END), 0)", cond,
	)
}

// Sum adds col, 0 when nothing qualifies.
func Sum(col string) string {
	return fmt.Sprintf("COALESCE(SUM(%s), 0)", col)
}

// Avg averages col, 0 when nothing qualifies.
func Avg(col string) string {
	return fmt.Sprintf("COALESCE(AVG(%s), 0)", col)
}

// Value reads a pre-aggregated column, 0 when null.
func Value(col string) string {
	return fmt.Sprintf("COALESCE(%s, 0)", col)
}

// Rate computes num as a percentage of den, 0 when den is 0.
func Rate(num, den string) string {
	return fmt.Sprintf(
		"COALESCE(%s * 100.0 / NULLIF(%s, 0), 0)", num, den,
	)
}

// Growth is the period-over-period percentage change of col,
// ordered by orderBy. The first period and periods following a
// zero yield 0.
func Growth(col, orderBy string) string {
	prev := fmt.Sprintf("LAG(%s) OVER (ORDER BY %s)", col, orderBy)
	return fmt.Sprintf(
		"COALESCE((%s - %s) * 100.0 / NULLIF(%s, 0), 0)",
		col, prev, prev,
	)
}

// Label replaces a null category with fallback.
func Label(col, fallback string) string {
	return fmt.Sprintf("COALESCE(%s, %s)", col, quote(fallback))
}

// IsTrue is a boolean flag test.
func IsTrue(col string) string { return col + " = TRUE" }

// quote renders a constant string literal. Only definition-time
// constants go through here; user values are always bound.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
