// Package dashboard defines the MediCore dashboards as catalogues
// of panel queries and runs them against a warehouse.
package dashboard

import (
	"errors"
	"fmt"
	"slices"

	"github.com/medicore/medidash/internal/query"
)

var (
	// ErrUnknownDashboard is returned for an unrecognized dashboard id.
	ErrUnknownDashboard = errors.New("unknown dashboard")
	// ErrUnknownPanel is returned for an unrecognized panel id.
	ErrUnknownPanel = errors.New("unknown panel")
	// ErrUnsupportedFilter is returned when a selection names a
	// dimension the dashboard does not offer.
	ErrUnsupportedFilter = errors.New("unsupported filter")
)

// Chart describes how a panel's rows are plotted. Multi-series
// charts read the table in long form (see Melt).
type Chart struct {
	Type      string   `json:"type"` // metric, line, area, bar
	X         string   `json:"x,omitempty"`
	Series    []string `json:"series,omitempty"`
	VarName   string   `json:"var_name,omitempty"`
	ValueName string   `json:"value_name,omitempty"`
}

// Long reports whether the chart plots several series from one
// wide table.
func (c Chart) Long() bool { return c.VarName != "" && len(c.Series) > 0 }

// Panel is one tile on a dashboard.
type Panel struct {
	ID        string
	Title     string
	Statement query.Statement
	// Growth, when set, replaces Statement while growth metrics
	// are switched on.
	Growth query.Statement
	Chart  Chart
	NoData string
}

// statement returns the query for the selected variant.
func (p Panel) statement(opts Options) (query.Statement, string) {
	if opts.Growth && p.Growth != nil {
		return p.Growth, "growth"
	}
	return p.Statement, "base"
}

// OptionSource names where a filter widget's choices come from.
type OptionSource struct {
	Dimension query.Dimension
	Table     query.Table
	Column    string
}

// Dashboard is a titled set of panels sharing one filter bar.
type Dashboard struct {
	ID      string
	Title   string
	Filters []OptionSource
	Panels  []Panel
	// Growth reports whether the dashboard offers a growth toggle.
	Growth bool
}

// Options are render switches that are not filters.
type Options struct {
	Growth bool `json:"growth"`
}

// Panel returns the panel with the given id.
func (d Dashboard) Panel(id string) (Panel, error) {
	i := slices.IndexFunc(d.Panels, func(p Panel) bool {
		return p.ID == id
	})
	if i < 0 {
		return Panel{}, fmt.Errorf("%w: %s/%s", ErrUnknownPanel, d.ID, id)
	}
	return d.Panels[i], nil
}

// Dimensions returns the filter dimensions the dashboard offers.
func (d Dashboard) Dimensions() []query.Dimension {
	dims := make([]query.Dimension, len(d.Filters))
	for i, f := range d.Filters {
		dims[i] = f.Dimension
	}
	return dims
}

// Check rejects selections on dimensions the dashboard does not
// offer. An empty selection is always accepted.
func (d Dashboard) Check(f query.FilterSet) error {
	offered := d.Dimensions()
	for _, dim := range query.Dimensions() {
		if len(f.Values(dim)) > 0 && !slices.Contains(offered, dim) {
			return fmt.Errorf(
				"%w: %s does not filter by %s",
				ErrUnsupportedFilter, d.ID, dim,
			)
		}
	}
	return nil
}

var catalogue = []Dashboard{clinical, revenue, executive}

// All returns every dashboard in display order.
func All() []Dashboard { return slices.Clone(catalogue) }

// Lookup returns the dashboard with the given id.
func Lookup(id string) (Dashboard, error) {
	for _, d := range catalogue {
		if d.ID == id {
			return d, nil
		}
	}
	return Dashboard{}, fmt.Errorf("%w: %s", ErrUnknownDashboard, id)
}
