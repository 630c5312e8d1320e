package dashboard

import (
	"context"
	"errors"
	"sync"

	"github.com/medicore/medidash/internal/query"
)

// ErrStale is returned by View.Refresh when a newer refresh began
// before this one finished. Its results are discarded.
var ErrStale = errors.New("refresh superseded by a newer one")

// View holds the rendered state of one dashboard for one viewer.
// Each filter change calls Refresh; only the latest refresh ever
// lands.
type View struct {
	runner    *Runner
	dashboard string

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	filters query.FilterSet
	opts    Options
	panels  []PanelResult
}

// NewView returns an empty view of the named dashboard.
func NewView(r *Runner, dashboardID string) (*View, error) {
	if _, err := Lookup(dashboardID); err != nil {
		return nil, err
	}
	return &View{runner: r, dashboard: dashboardID}, nil
}

// Refresh re-renders the dashboard for f, canceling any refresh
// still in flight.
func (v *View) Refresh(
	ctx context.Context, f query.FilterSet, opts Options,
) ([]PanelResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
	}
	v.gen++
	gen := v.gen
	v.cancel = cancel
	v.mu.Unlock()

	panels, err := v.runner.RunDashboard(ctx, v.dashboard, f, opts)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		return nil, ErrStale
	}
	v.cancel = nil
	if err != nil {
		return nil, err
	}
	v.filters = f
	v.opts = opts
	v.panels = panels
	return panels, nil
}

// Current returns the panels and inputs of the last refresh that
// completed without being superseded.
func (v *View) Current() ([]PanelResult, query.FilterSet, Options) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.panels, v.filters, v.opts
}
