// Package fixture writes warehouse-shaped test and demo data.
// The real warehouse schema is owned elsewhere; these tables
// mirror the columns the dashboards read.
package fixture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/medicore/medidash/internal/query"
)

// tableDef is a fixture table and its column DDL.
type tableDef struct {
	table   query.Table
	columns []string
}

var (
	Encounters  = query.Table{Schema: query.SchemaClinical, Name: "ENCOUNTERS"}
	LabResults  = query.Table{Schema: query.SchemaClinical, Name: "LAB_RESULTS"}
	Claims      = query.Table{Schema: query.SchemaBilling, Name: "CLAIMS"}
	ClaimLines  = query.Table{Schema: query.SchemaBilling, Name: "CLAIM_LINE_ITEMS"}
	Departments = query.Table{
		Schema: query.SchemaReference, Name: "DIM_DEPARTMENTS",
	}
	PatientVolume = query.Table{
		Schema: query.SchemaExecutive, Name: "KPI_PATIENT_VOLUME",
	}
	RevenueSummary = query.Table{
		Schema: query.SchemaExecutive, Name: "KPI_REVENUE_SUMMARY",
	}
	ClinicalOutcomes = query.Table{
		Schema: query.SchemaExecutive, Name: "KPI_CLINICAL_OUTCOMES",
	}
)

var schema = []tableDef{
	{Encounters, []string{
		"ENCOUNTER_ID TEXT PRIMARY KEY",
		"PATIENT_ID TEXT",
		"DEPARTMENT_NAME TEXT",
		"ENCOUNTER_TYPE TEXT",
		"ADMISSION_DATE DATE",
		"ENCOUNTER_MONTH DATE",
		"IS_INPATIENT_FLAG BOOLEAN",
		"IS_OUTPATIENT_FLAG BOOLEAN",
		"LENGTH_OF_STAY_DAYS DOUBLE PRECISION",
	}},
	{LabResults, []string{
		"LAB_RESULT_ID TEXT PRIMARY KEY",
		"ENCOUNTER_ID TEXT",
		"RESULT_DATE DATE",
		"RESULT_MONTH DATE",
		"IS_ABNORMAL BOOLEAN",
	}},
	{Claims, []string{
		"CLAIM_ID TEXT PRIMARY KEY",
		"PAYER_TYPE TEXT",
		"CLAIM_STATUS TEXT",
	}},
	{Departments, []string{
		"DEPARTMENT_ID INTEGER PRIMARY KEY",
		"DEPARTMENT_NAME TEXT",
	}},
	{ClaimLines, []string{
		"LINE_ID TEXT PRIMARY KEY",
		"CLAIM_ID TEXT",
		"DEPARTMENT_ID INTEGER",
		"PROCEDURE_CODE TEXT",
		"SERVICE_DATE DATE",
		"SERVICE_MONTH DATE",
		"LINE_BILLED_AMOUNT DOUBLE PRECISION",
		"LINE_NET_REVENUE DOUBLE PRECISION",
		"DENIAL_FLAG_NUMERIC INTEGER",
	}},
	{PatientVolume, []string{
		"MONTH_KEY DATE PRIMARY KEY",
		"TOTAL_DISTINCT_PATIENTS INTEGER",
		"TOTAL_ENCOUNTERS INTEGER",
	}},
	{RevenueSummary, []string{
		"MONTH_KEY DATE PRIMARY KEY",
		"TOTAL_BILLED_AMOUNT DOUBLE PRECISION",
		"TOTAL_PAID_AMOUNT DOUBLE PRECISION",
		"TOTAL_NET_REVENUE DOUBLE PRECISION",
		"DENIAL_RATE_PERCENT DOUBLE PRECISION",
	}},
	{ClinicalOutcomes, []string{
		"MONTH_KEY DATE PRIMARY KEY",
		"AVERAGE_LENGTH_OF_STAY DOUBLE PRECISION",
		"READMISSION_RATE_PERCENT DOUBLE PRECISION",
	}},
}

// Writer loads fixture rows through a read-write connection.
type Writer struct {
	db      *sql.DB
	dialect query.Dialect
	Path    string // set for sqlite fixtures
}

// NewWriter wraps a read-write connection for dialect d.
func NewWriter(conn *sql.DB, d query.Dialect) *Writer {
	return &Writer{db: conn, dialect: d}
}

// CreateSQLite creates a fresh sqlite warehouse file at path,
// replacing any existing one, and applies the schema.
func CreateSQLite(ctx context.Context, path string) (*Writer, error) {
	if err := os.Remove(path); err != nil &&
		!errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing existing warehouse: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating warehouse directory: %w", err)
	}
	conn, err := sql.Open(query.DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("opening fixture warehouse: %w", err)
	}
	conn.SetMaxOpenConns(1)
	w := NewWriter(conn, query.SQLite())
	w.Path = path
	if err := w.CreateSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return w, nil
}

// TB is the subset of testing.TB that NewSQLite needs. Keeping
// it local leaves the testing package out of cmd/testfixture.
type TB interface {
	Helper()
	TempDir() string
	Fatalf(format string, args ...any)
	Cleanup(func())
}

// NewSQLite creates a sqlite fixture warehouse in a temp dir and
// closes it when the test finishes.
func NewSQLite(t TB) *Writer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warehouse.db")
	w, err := CreateSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("creating fixture warehouse: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

// Close closes the write connection.
func (w *Writer) Close() error { return w.db.Close() }

// DB returns the read-write connection.
func (w *Writer) DB() *sql.DB { return w.db }

// CreateSchema creates every fixture table, and for qualifying
// dialects the schemas that hold them.
func (w *Writer) CreateSchema(ctx context.Context) error {
	created := make(map[string]bool)
	for _, def := range schema {
		name := w.dialect.Qualify(def.table)
		if i := strings.LastIndex(name, "."); i > 0 {
			sch := name[:i]
			if !created[sch] {
				if _, err := w.db.ExecContext(ctx,
					"CREATE SCHEMA IF NOT EXISTS "+sch,
				); err != nil {
					return fmt.Errorf("creating schema %s: %w", sch, err)
				}
				created[sch] = true
			}
		}
		ddl := "CREATE TABLE IF NOT EXISTS " + name +
			" (" + strings.Join(def.columns, ", ") + ")"
		if _, err := w.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("creating table %s: %w", name, err)
		}
	}
	return nil
}

// insert writes rows into t inside one transaction.
func (w *Writer) insert(
	ctx context.Context, t query.Table, cols []string, rows [][]any,
) error {
	if len(rows) == 0 {
		return nil
	}
	ph := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	stmt := w.dialect.Rebind(
		"INSERT INTO " + w.dialect.Qualify(t) +
			" (" + strings.Join(cols, ", ") + ") VALUES (" + ph + ")",
	)

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, stmt, row...); err != nil {
			return fmt.Errorf("inserting into %s: %w", t.Name, err)
		}
	}
	return tx.Commit()
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
