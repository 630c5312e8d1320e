package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/medicore/medidash/internal/query"
)

// DefaultQueryTimeout bounds a single panel query.
const DefaultQueryTimeout = 30 * time.Second

// Options selects and configures the warehouse connection.
type Options struct {
	Driver       string
	DSN          string
	Database     string
	SchemaPrefix string
	QueryTimeout time.Duration
	MaxConns     int
}

// DB is a read-only handle on the analytics warehouse. It is
// passed explicitly to everything that queries; there is no
// process-wide session.
type DB struct {
	reader  *sql.DB
	dialect query.Dialect
	timeout time.Duration
}

// makeSQLiteDSN opens a local warehouse file read-only.
func makeSQLiteDSN(path string) string {
	params := url.Values{}
	params.Set("mode", "ro")
	params.Set("_busy_timeout", "5000")
	params.Set("_query_only", "true")
	if strings.HasPrefix(path, "file:") {
		path = strings.TrimPrefix(path, "file:")
	}
	return "file:" + path + "?" + params.Encode()
}

// Open connects to the warehouse described by opts and verifies
// the connection with a ping.
func Open(ctx context.Context, opts Options) (*DB, error) {
	dialect, err := query.NewDialect(
		opts.Driver, opts.Database, opts.SchemaPrefix,
	)
	if err != nil {
		return nil, err
	}
	if opts.DSN == "" {
		return nil, fmt.Errorf("warehouse DSN is required")
	}

	dsn := opts.DSN
	if opts.Driver == query.DriverSQLite {
		dsn = makeSQLiteDSN(opts.DSN)
	}
	reader, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening warehouse: %w", err)
	}
	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	reader.SetMaxOpenConns(maxConns)

	db := New(reader, dialect, opts.QueryTimeout)
	if err := db.Ping(ctx); err != nil {
		reader.Close()
		return nil, err
	}
	return db, nil
}

// New wraps an existing pool. A zero timeout uses
// DefaultQueryTimeout.
func New(
	conn *sql.DB, dialect query.Dialect, timeout time.Duration,
) *DB {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &DB{reader: conn, dialect: dialect, timeout: timeout}
}

// Dialect returns the SQL dialect of the connected warehouse.
func (db *DB) Dialect() query.Dialect { return db.dialect }

// Ping checks warehouse connectivity.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()
	if err := db.reader.PingContext(ctx); err != nil {
		return &QueryError{Op: "ping", Err: err}
	}
	return nil
}

// Close releases the connection pool.
func (db *DB) Close() error {
	return db.reader.Close()
}

// Run executes q once and returns its rows, typed by the
// declared column kinds. Zero qualifying rows is an empty table,
// not an error.
func (db *DB) Run(
	ctx context.Context, q query.Query,
) (ResultTable, error) {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	rows, err := db.reader.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return ResultTable{}, &QueryError{Op: "query", Err: err}
	}
	defer rows.Close()

	t := newResultTable(q.Columns)
	n := len(q.Columns)
	for rows.Next() {
		raw := make([]any, n)
		ptrs := make([]any, n)
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return ResultTable{}, &QueryError{Op: "scan", Err: err}
		}
		row := make([]any, n)
		for i, c := range q.Columns {
			v, err := normalize(raw[i], c.Kind)
			if err != nil {
				return ResultTable{}, &QueryError{
					Op:  "scan",
					Err: fmt.Errorf("column %s: %w", c.Name, err),
				}
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return ResultTable{}, &QueryError{Op: "iterate", Err: err}
	}
	return t, nil
}

// Distinct returns the sorted non-null values of col, used for
// filter option lists.
func (db *DB) Distinct(
	ctx context.Context, t query.Table, col string,
) ([]string, error) {
	res, err := db.Run(ctx, query.DistinctValues(db.dialect, t, col))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, res.Len())
	for _, row := range res.Rows {
		out = append(out, row[0].(string))
	}
	return out, nil
}

// normalize converts a driver value to the canonical Go type for
// kind. Null measures become 0 so no metric renders as null.
func normalize(v any, kind query.Kind) (any, error) {
	switch kind {
	case query.Integer:
		return asInt(v)
	case query.Decimal:
		return asFloat(v)
	case query.Month:
		return asDate(v), nil
	default:
		return asText(v), nil
	}
}

func asInt(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return parseInt(string(n))
	case string:
		return parseInt(n)
	}
	return 0, fmt.Errorf("unexpected integer type %T", v)
}

func parseInt(s string) (int64, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	// NUMBER(38,0) aggregates may come back as "5.000000".
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing integer %q: %w", s, err)
	}
	return int64(f), nil
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case []byte:
		return parseFloat(string(n))
	case string:
		return parseFloat(n)
	}
	return 0, fmt.Errorf("unexpected decimal type %T", v)
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing decimal %q: %w", s, err)
	}
	return f, nil
}

func asDate(v any) string {
	switch d := v.(type) {
	case time.Time:
		return d.UTC().Format(query.DateFormat)
	case []byte:
		return truncDate(string(d))
	case string:
		return truncDate(d)
	}
	return asText(v)
}

// truncDate keeps the YYYY-MM-DD part of a textual timestamp.
func truncDate(s string) string {
	if len(s) >= 10 {
		if _, err := time.Parse(query.DateFormat, s[:10]); err == nil {
			return s[:10]
		}
	}
	return s
}

func asText(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}
