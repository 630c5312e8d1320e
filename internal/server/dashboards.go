package server

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/medicore/medidash/internal/dashboard"
	"github.com/medicore/medidash/internal/query"
)

type panelInfo struct {
	ID     string          `json:"id"`
	Title  string          `json:"title"`
	Chart  dashboard.Chart `json:"chart"`
	Growth bool            `json:"growth"`
}

type dashboardInfo struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Dimensions []query.Dimension `json:"dimensions"`
	Growth     bool              `json:"growth"`
	Panels     []panelInfo       `json:"panels"`
}

type dashboardResponse struct {
	Dashboard string                  `json:"dashboard"`
	Title     string                  `json:"title"`
	Filters   query.FilterKey         `json:"filters"`
	Options   dashboard.Options       `json:"options"`
	Panels    []dashboard.PanelResult `json:"panels"`
}

func (s *Server) handleListDashboards(
	w http.ResponseWriter, _ *http.Request,
) {
	all := dashboard.All()
	out := make([]dashboardInfo, 0, len(all))
	for _, d := range all {
		info := dashboardInfo{
			ID:         d.ID,
			Title:      d.Title,
			Dimensions: d.Dimensions(),
			Growth:     d.Growth,
			Panels:     make([]panelInfo, 0, len(d.Panels)),
		}
		if info.Dimensions == nil {
			info.Dimensions = []query.Dimension{}
		}
		for _, p := range d.Panels {
			info.Panels = append(info.Panels, panelInfo{
				ID:     p.ID,
				Title:  p.Title,
				Chart:  p.Chart,
				Growth: p.Growth != nil,
			})
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"dashboards": out})
}

func (s *Server) handleGetDashboard(
	w http.ResponseWriter, r *http.Request,
) {
	id := r.PathValue("dashboard")
	d, err := dashboard.Lookup(id)
	if err != nil {
		writeRunError(w, "dashboard "+id, err)
		return
	}
	f, opts, ok := s.parseFilterSet(w, r)
	if !ok {
		return
	}

	panels, err := s.runner.RunDashboard(r.Context(), id, f, opts)
	if err != nil {
		writeRunError(w, "dashboard "+id, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse{
		Dashboard: d.ID,
		Title:     d.Title,
		Filters:   f.Key(),
		Options:   opts,
		Panels:    panels,
	})
}

func (s *Server) handleGetPanel(
	w http.ResponseWriter, r *http.Request,
) {
	id, panel := r.PathValue("dashboard"), r.PathValue("panel")
	f, opts, ok := s.parseFilterSet(w, r)
	if !ok {
		return
	}

	res, err := s.runner.RunPanel(r.Context(), id, panel, f, opts)
	if err != nil {
		writeRunError(w, "panel "+id+"/"+panel, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetOptions(
	w http.ResponseWriter, r *http.Request,
) {
	id := r.PathValue("dashboard")
	opts, err := s.runner.FilterOptions(r.Context(), id)
	if err != nil {
		writeRunError(w, "options "+id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dashboard": id,
		"filters":   opts,
	})
}

// parseFilterSet reads the filter bar from the query string.
// from/to default to the current calendar year; each dimension
// may repeat. extra names additional params the caller accepts.
// Unknown params are rejected.
func (s *Server) parseFilterSet(
	w http.ResponseWriter, r *http.Request, extra ...string,
) (query.FilterSet, dashboard.Options, bool) {
	q := r.URL.Query()
	var (
		f    query.FilterSet
		opts dashboard.Options
	)

	for name, vals := range q {
		switch name {
		case "from", "to":
		case "growth":
			switch strings.ToLower(q.Get("growth")) {
			case "true", "1":
				opts.Growth = true
			case "false", "0", "":
			default:
				writeError(w, http.StatusBadRequest,
					"growth must be true or false")
				return f, opts, false
			}
		default:
			if dim, ok := query.ParseDimension(name); ok {
				f = f.With(dim, nonEmpty(vals)...)
				continue
			}
			if !slices.Contains(extra, name) {
				writeError(w, http.StatusBadRequest,
					"unknown parameter: "+name)
				return f, opts, false
			}
		}
	}

	year := query.YearRange(s.now().Year())
	from, to := q.Get("from"), q.Get("to")
	if from == "" {
		from = year.Start.Format(query.DateFormat)
	}
	if to == "" {
		to = year.End.Format(query.DateFormat)
	}
	if !isValidDate(from) || !isValidDate(to) {
		writeError(w, http.StatusBadRequest,
			"invalid date format: use YYYY-MM-DD")
		return f, opts, false
	}
	rng, err := query.ParseDateRange(from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest,
			"from must not be after to")
		return f, opts, false
	}
	f.Range = rng
	return f, opts, true
}

// isValidDate checks that s is a well-formed YYYY-MM-DD string.
func isValidDate(s string) bool {
	_, err := time.Parse(query.DateFormat, s)
	return err == nil
}

func nonEmpty(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
