// Package export writes panel results as Parquet files.
package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/medicore/medidash/internal/query"
	"github.com/medicore/medidash/internal/warehouse"
)

// Cell is one table cell in long format. Measures fill Number;
// months and categories fill Text.
type Cell struct {
	Row    int64    `parquet:"row"`
	Column string   `parquet:"column,dict"`
	Kind   string   `parquet:"kind,dict"`
	Text   *string  `parquet:"text,optional"`
	Number *float64 `parquet:"number,optional"`
}

// Cells flattens t row by row, columns in table order.
func Cells(t warehouse.ResultTable) []Cell {
	cells := make([]Cell, 0, len(t.Rows)*len(t.Columns))
	for r, row := range t.Rows {
		for i, f := range t.Columns {
			c := Cell{Row: int64(r), Column: f.Name, Kind: string(f.Kind)}
			switch v := row[i].(type) {
			case int64:
				n := float64(v)
				c.Number = &n
			case float64:
				c.Number = &v
			case string:
				if f.Kind == query.Month || f.Kind == query.Category {
					c.Text = &v
				}
			}
			cells = append(cells, c)
		}
	}
	return cells
}

// WriteParquet writes t to w as zstd-compressed Parquet and
// returns the number of cells written. meta is stored as file
// key/value metadata.
func WriteParquet(
	w io.Writer, t warehouse.ResultTable, meta map[string]string,
) (int, error) {
	opts := []parquet.WriterOption{
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.DataPageStatistics(true),
		parquet.CreatedBy("medidash", "1", ""),
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		opts = append(opts, parquet.KeyValueMetadata(k, meta[k]))
	}

	pw := parquet.NewGenericWriter[Cell](w, opts...)
	n, err := pw.Write(Cells(t))
	if err != nil {
		pw.Close()
		return n, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return n, fmt.Errorf("close parquet writer: %w", err)
	}
	return n, nil
}
