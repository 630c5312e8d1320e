package export

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/medidash/internal/query"
	"github.com/medicore/medidash/internal/warehouse"
)

func ptr[T any](v T) *T { return &v }

func revenueTrend() warehouse.ResultTable {
	return warehouse.ResultTable{
		Columns: []warehouse.Field{
			{Name: "MONTH_KEY", Kind: query.Month},
			{Name: "CLAIMS", Kind: query.Integer},
			{Name: "NET_REVENUE", Kind: query.Decimal},
		},
		Rows: [][]any{
			{"2025-01-01", int64(4), 120.5},
			{"2025-02-01", int64(2), 80.0},
		},
	}
}

func TestCells(t *testing.T) {
	got := Cells(revenueTrend())
	want := []Cell{
		{Row: 0, Column: "MONTH_KEY", Kind: "month", Text: ptr("2025-01-01")},
		{Row: 0, Column: "CLAIMS", Kind: "integer", Number: ptr(4.0)},
		{Row: 0, Column: "NET_REVENUE", Kind: "decimal", Number: ptr(120.5)},
		{Row: 1, Column: "MONTH_KEY", Kind: "month", Text: ptr("2025-02-01")},
		{Row: 1, Column: "CLAIMS", Kind: "integer", Number: ptr(2.0)},
		{Row: 1, Column: "NET_REVENUE", Kind: "decimal", Number: ptr(80.0)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Cells mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteParquetReadBack(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteParquet(&buf, revenueTrend(), map[string]string{
		"dashboard": "revenue",
		"panel":     "revenue_trend",
	})
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	data := buf.Bytes()
	rows, err := parquet.Read[Cell](bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	if diff := cmp.Diff(Cells(revenueTrend()), rows); diff != "" {
		t.Errorf("read back mismatch (-want +got):\n%s", diff)
	}

	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	v, ok := f.Lookup("panel")
	assert.True(t, ok)
	assert.Equal(t, "revenue_trend", v)
}

func TestWriteParquetEmptyTable(t *testing.T) {
	tbl := revenueTrend()
	tbl.Rows = [][]any{}

	var buf bytes.Buffer
	n, err := WriteParquet(&buf, tbl, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NotZero(t, buf.Len())
}
