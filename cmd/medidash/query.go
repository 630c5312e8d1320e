package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/medicore/medidash/internal/config"
	"github.com/medicore/medidash/internal/dashboard"
	"github.com/medicore/medidash/internal/query"
	"github.com/medicore/medidash/internal/warehouse"
)

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// QueryConfig holds parsed CLI options for the query command.
type QueryConfig struct {
	Dashboard string
	Panel     string
	Filters   query.FilterSet
	Options   dashboard.Options
	Long      bool
}

const queryUsage = "usage: medidash query <dashboard> <panel> [flags]"

func parseQueryFlags(
	args []string, now time.Time,
) (QueryConfig, *flag.FlagSet, error) {
	if len(args) < 2 ||
		strings.HasPrefix(args[0], "-") || strings.HasPrefix(args[1], "-") {
		return QueryConfig{}, nil, errors.New(queryUsage)
	}

	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	year := query.YearRange(now.Year())
	from := fs.String("from", year.Start.Format(query.DateFormat),
		"Start of the date window (YYYY-MM-DD)")
	to := fs.String("to", year.End.Format(query.DateFormat),
		"End of the date window (YYYY-MM-DD)")
	lists := map[query.Dimension]*stringList{}
	for _, d := range query.Dimensions() {
		l := &stringList{}
		lists[d] = l
		fs.Var(l, strings.ReplaceAll(string(d), "_", "-"),
			"Filter on "+strings.ReplaceAll(string(d), "_", " ")+
				" (repeatable)")
	}
	growth := fs.Bool("growth", false, "Show growth metrics")
	long := fs.Bool("long", false, "Print multi-series panels in long format")
	config.RegisterWarehouseFlags(fs)

	if err := fs.Parse(args[2:]); err != nil {
		return QueryConfig{}, nil, err
	}
	if fs.NArg() > 0 {
		return QueryConfig{}, nil, fmt.Errorf(
			"unexpected arguments: %s\n%s",
			strings.Join(fs.Args(), " "), queryUsage,
		)
	}

	rng, err := query.ParseDateRange(*from, *to)
	if err != nil {
		return QueryConfig{}, nil, err
	}
	qc := QueryConfig{
		Dashboard: args[0],
		Panel:     args[1],
		Filters:   query.FilterSet{Range: rng},
		Options:   dashboard.Options{Growth: *growth},
		Long:      *long,
	}
	for d, l := range lists {
		qc.Filters = qc.Filters.With(d, *l...)
	}
	return qc, fs, nil
}

// Querier renders panels and option lists to a terminal.
type Querier struct {
	Runner *dashboard.Runner
	Out    io.Writer
}

// Query renders one panel as an aligned text table.
func (q *Querier) Query(ctx context.Context, qc QueryConfig) error {
	res, err := q.Runner.RunPanel(
		ctx, qc.Dashboard, qc.Panel, qc.Filters, qc.Options,
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(q.Out, "%s\n\n", res.Title)
	if res.Empty {
		fmt.Fprintln(q.Out, res.Message)
		return nil
	}
	tbl := res.Table
	if qc.Long {
		if tbl, err = res.Long(); err != nil {
			return err
		}
	}
	return writeTable(q.Out, tbl)
}

// Options prints each filter's choices, one filter per line.
func (q *Querier) Options(ctx context.Context, dashboardID string) error {
	opts, err := q.Runner.FilterOptions(ctx, dashboardID)
	if err != nil {
		return err
	}
	if len(opts) == 0 {
		fmt.Fprintf(q.Out, "%s has no filters.\n", dashboardID)
		return nil
	}
	for _, o := range opts {
		fmt.Fprintf(q.Out, "%s: %s\n",
			o.Dimension, strings.Join(o.Values, ", "))
	}
	return nil
}

func writeTable(w io.Writer, t warehouse.ResultTable) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	fmt.Fprintln(tw, strings.Join(names, "\t"))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func formatCell(v any) string {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'f', 2, 64)
	case string:
		return n
	}
	return fmt.Sprint(v)
}

func runQuery(args []string) {
	qc, fs, err := parseQueryFlags(args, time.Now())
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx := context.Background()
	wh := mustOpenWarehouse(ctx, cfg)
	defer wh.Close()

	q := &Querier{Runner: dashboard.NewRunner(wh), Out: os.Stdout}
	if err := q.Query(ctx, qc); err != nil {
		log.Fatalf("query: %v", err)
	}
}

func runOptions(args []string) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintln(os.Stderr, "usage: medidash options <dashboard> [flags]")
		os.Exit(2)
	}
	fs := flag.NewFlagSet("options", flag.ExitOnError)
	config.RegisterWarehouseFlags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}
	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx := context.Background()
	wh := mustOpenWarehouse(ctx, cfg)
	defer wh.Close()

	q := &Querier{Runner: dashboard.NewRunner(wh), Out: os.Stdout}
	if err := q.Options(ctx, args[0]); err != nil {
		log.Fatalf("options: %v", err)
	}
}
