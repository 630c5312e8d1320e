package dashboard

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/medicore/medidash/internal/memo"
	"github.com/medicore/medidash/internal/query"
	"github.com/medicore/medidash/internal/warehouse"
)

// Source is the warehouse a Runner queries. *warehouse.DB
// satisfies it.
type Source interface {
	Dialect() query.Dialect
	Run(ctx context.Context, q query.Query) (warehouse.ResultTable, error)
	Distinct(ctx context.Context, t query.Table, col string) ([]string, error)
}

// PanelResult is one rendered panel. An empty table is reported
// with Empty and the panel's no-data message, never as an error.
type PanelResult struct {
	Dashboard string                `json:"dashboard"`
	Panel     string                `json:"panel"`
	Title     string                `json:"title"`
	Chart     Chart                 `json:"chart"`
	Table     warehouse.ResultTable `json:"table"`
	Empty     bool                  `json:"empty"`
	Message   string                `json:"message,omitempty"`
}

// Long returns the table reshaped for the panel's multi-series
// chart, or the table itself when the chart plots one series.
func (r PanelResult) Long() (warehouse.ResultTable, error) {
	if !r.Chart.Long() {
		return r.Table, nil
	}
	return r.Table.Melt(
		r.Chart.X, r.Chart.Series, r.Chart.VarName, r.Chart.ValueName,
	)
}

// Runner executes dashboard panels with memoized results. Results
// stay valid until Invalidate; the warehouse is only read.
type Runner struct {
	src     Source
	tables  *memo.Cache[warehouse.ResultTable]
	options *memo.Cache[[]string]
}

// NewRunner returns a Runner reading from src.
func NewRunner(src Source) *Runner {
	return &Runner{
		src:     src,
		tables:  memo.New[warehouse.ResultTable](),
		options: memo.New[[]string](),
	}
}

// Invalidate drops every memoized result.
func (r *Runner) Invalidate() {
	r.tables.Reset()
	r.options.Reset()
}

// RunPanel renders one panel of a dashboard for f.
func (r *Runner) RunPanel(
	ctx context.Context, dashboardID, panelID string,
	f query.FilterSet, opts Options,
) (PanelResult, error) {
	d, err := Lookup(dashboardID)
	if err != nil {
		return PanelResult{}, err
	}
	p, err := d.Panel(panelID)
	if err != nil {
		return PanelResult{}, err
	}
	if err := d.Check(f); err != nil {
		return PanelResult{}, err
	}
	return r.runPanel(ctx, d, p, f, opts)
}

func (r *Runner) runPanel(
	ctx context.Context, d Dashboard, p Panel,
	f query.FilterSet, opts Options,
) (PanelResult, error) {
	st, variant := p.statement(opts)
	dialect := r.src.Dialect()
	q, err := query.Build(dialect, st, f)
	if err != nil {
		return PanelResult{}, fmt.Errorf(
			"building %s/%s: %w", d.ID, p.ID, err,
		)
	}

	key := memo.Key(dialect.String(), d.ID, p.ID, variant, f.Key())
	tbl, _, err := r.tables.Get(ctx, key,
		func(ctx context.Context) (warehouse.ResultTable, error) {
			return r.src.Run(ctx, q)
		})
	if err != nil {
		return PanelResult{}, fmt.Errorf(
			"running %s/%s: %w", d.ID, p.ID, err,
		)
	}

	res := PanelResult{
		Dashboard: d.ID,
		Panel:     p.ID,
		Title:     p.Title,
		Chart:     p.Chart,
		Table:     tbl,
	}
	if tbl.Empty() {
		res.Empty = true
		res.Message = p.NoData
	}
	return res, nil
}

// RunDashboard renders every panel concurrently and returns them
// in display order. Any panel failure fails the whole render.
func (r *Runner) RunDashboard(
	ctx context.Context, dashboardID string,
	f query.FilterSet, opts Options,
) ([]PanelResult, error) {
	d, err := Lookup(dashboardID)
	if err != nil {
		return nil, err
	}
	if err := d.Check(f); err != nil {
		return nil, err
	}
	if err := f.Range.Validate(); err != nil {
		return nil, err
	}

	results := make([]PanelResult, len(d.Panels))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range d.Panels {
		g.Go(func() error {
			res, err := r.runPanel(gctx, d, p, f, opts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// FilterOption is the choice list of one filter widget.
type FilterOption struct {
	Dimension query.Dimension `json:"dimension"`
	Values    []string        `json:"values"`
}

// FilterOptions returns the selectable values of each filter the
// dashboard offers, in filter-bar order.
func (r *Runner) FilterOptions(
	ctx context.Context, dashboardID string,
) ([]FilterOption, error) {
	d, err := Lookup(dashboardID)
	if err != nil {
		return nil, err
	}

	dialect := r.src.Dialect()
	out := make([]FilterOption, len(d.Filters))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range d.Filters {
		g.Go(func() error {
			key := memo.Key(
				dialect.String(), "options",
				dialect.Qualify(src.Table), src.Column,
			)
			vals, _, err := r.options.Get(gctx, key,
				func(ctx context.Context) ([]string, error) {
					return r.src.Distinct(ctx, src.Table, src.Column)
				})
			if err != nil {
				return fmt.Errorf(
					"loading %s options: %w", src.Dimension, err,
				)
			}
			out[i] = FilterOption{Dimension: src.Dimension, Values: vals}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
