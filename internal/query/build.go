package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Query is a rendered, parameterized statement ready to execute.
type Query struct {
	SQL     string
	Args    []any
	Columns []Column
}

// Build renders st against f for dialect d. Filter values are
// always bound as arguments.
func Build(d Dialect, st Statement, f FilterSet) (Query, error) {
	if err := f.Range.Validate(); err != nil {
		return Query{}, err
	}
	sql, args, err := st.render(d, f.Normalize())
	if err != nil {
		return Query{}, err
	}
	return Query{
		SQL:     d.Rebind(sql),
		Args:    args,
		Columns: st.Columns(),
	}, nil
}

// predicates accumulates AND-joined WHERE terms and their args.
type predicates struct {
	terms []string
	args  []any
}

func (p *predicates) add(term string, args ...any) {
	p.terms = append(p.terms, term)
	p.args = append(p.args, args...)
}

// between applies the mandatory inclusive date window.
func (p *predicates) between(col string, r DateRange) {
	start, end := r.bounds()
	p.add(col+" >= ?", start)
	p.add(col+" <= ?", end)
}

// in restricts col to values. An empty selection adds nothing.
func (p *predicates) in(col string, values []string) {
	if len(values) == 0 {
		return
	}
	ph, args := inPlaceholders(values)
	p.add(col+" IN "+ph, args...)
}

func (p *predicates) String() string {
	return strings.Join(p.terms, "\n  AND ")
}

// inPlaceholders returns a "(?,?,...)" string and []any args for
// a slice of string values.
func inPlaceholders(values []string) (string, []any) {
	ph := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		ph[i] = "?"
		args[i] = v
	}
	return "(" + strings.Join(ph, ",") + ")", args
}

func (s Spec) validate() error {
	if s.Table.Name == "" {
		return fmt.Errorf("spec %s: no base table", s.Name)
	}
	if s.DateColumn == "" {
		return fmt.Errorf("spec %s: no date column", s.Name)
	}
	if len(s.Select) == 0 {
		return fmt.Errorf("spec %s: no select columns", s.Name)
	}
	for dim := range s.Filters {
		if _, ok := ParseDimension(string(dim)); !ok {
			return fmt.Errorf(
				"spec %s: unknown dimension %q", s.Name, dim,
			)
		}
	}
	return nil
}

// where builds the WHERE clause: date window, static predicates,
// then membership filters in Dimensions() order.
func (s Spec) where(f FilterSet) *predicates {
	p := &predicates{}
	p.between(s.DateColumn, f.Range)
	for _, w := range s.Where {
		p.add(w)
	}
	for _, dim := range Dimensions() {
		col, ok := s.Filters[dim]
		if !ok {
			continue
		}
		p.in(col, f.Values(dim))
	}
	return p
}

func (s Spec) render(d Dialect, f FilterSet) (string, []any, error) {
	if err := s.validate(); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT\n")
	for i, c := range s.Select {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString("  " + c.Expr + " AS " + c.Name)
	}

	b.WriteString("\nFROM " + d.Qualify(s.Table))
	if s.Alias != "" {
		b.WriteString(" " + s.Alias)
	}
	for _, j := range s.Joins {
		b.WriteString("\nLEFT JOIN " + d.Qualify(j.Table))
		if j.Alias != "" {
			b.WriteString(" " + j.Alias)
		}
		b.WriteString(" ON " + j.On)
	}

	where := s.where(f)
	b.WriteString("\nWHERE " + where.String())

	if s.GroupBy != "" {
		b.WriteString("\nGROUP BY " + s.GroupBy)
	}
	if len(s.OrderBy) > 0 {
		terms := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			terms[i] = o.Expr
			if o.Desc {
				terms[i] += " DESC"
			} else {
				terms[i] += " ASC"
			}
		}
		b.WriteString("\nORDER BY " + strings.Join(terms, ", "))
	}
	if s.Limit > 0 {
		b.WriteString("\nLIMIT " + strconv.Itoa(s.Limit))
	}
	return b.String(), where.args, nil
}

func (c Composite) render(
	d Dialect, f FilterSet,
) (string, []any, error) {
	if len(c.Parts) == 0 {
		return "", nil, fmt.Errorf("composite %s: no parts", c.Name)
	}
	seen := make(map[string]bool)
	var (
		ctes   []string
		fields []string
		names  []string
		args   []any
	)
	for _, p := range c.Parts {
		if p.Name == "" {
			return "", nil, errors.New("composite part has no name")
		}
		if p.GroupBy != "" {
			return "", nil, fmt.Errorf(
				"composite part %s must be a single row", p.Name,
			)
		}
		sql, partArgs, err := p.render(d, f)
		if err != nil {
			return "", nil, err
		}
		ctes = append(ctes, p.Name+" AS (\n"+sql+"\n)")
		args = append(args, partArgs...)
		names = append(names, p.Name)
		for _, col := range p.Select {
			if seen[col.Name] {
				return "", nil, fmt.Errorf(
					"composite %s: duplicate column %s",
					c.Name, col.Name,
				)
			}
			seen[col.Name] = true
			fields = append(fields, "  "+p.Name+"."+col.Name)
		}
	}
	sql := "WITH " + strings.Join(ctes, ",\n") +
		"\nSELECT\n" + strings.Join(fields, ",\n") +
		"\nFROM " + strings.Join(names, ", ")
	return sql, args, nil
}

// DistinctValues builds the option-list query for a filter widget:
// the sorted non-null distinct values of col.
func DistinctValues(d Dialect, t Table, col string) Query {
	return Query{
		SQL: "SELECT DISTINCT " + col +
			" FROM " + d.Qualify(t) +
			" WHERE " + col + " IS NOT NULL" +
			" ORDER BY " + col,
		Columns: []Column{{Name: col, Expr: col, Kind: Category}},
	}
}
