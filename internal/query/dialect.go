package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Driver names as registered with database/sql.
const (
	DriverSQLite    = "sqlite3"
	DriverPostgres  = "pgx"
	DriverMySQL     = "mysql"
	DriverSnowflake = "snowflake"
)

// Dialect captures the per-warehouse differences the builder
// cares about: placeholder syntax and table qualification.
type Dialect struct {
	driver       string
	database     string
	schemaPrefix string
}

// NewDialect returns the dialect for a database/sql driver name.
// database and schemaPrefix are only used by drivers that qualify
// tables (e.g. "MEDICORE_ANALYTICS_DB" and "DEV_").
func NewDialect(
	driver, database, schemaPrefix string,
) (Dialect, error) {
	switch driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	case DriverSnowflake:
		if database == "" {
			return Dialect{}, fmt.Errorf(
				"snowflake dialect requires a database name",
			)
		}
	default:
		return Dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
	return Dialect{
		driver:       driver,
		database:     database,
		schemaPrefix: schemaPrefix,
	}, nil
}

// SQLite returns the dialect used for local and test warehouses.
func SQLite() Dialect { return Dialect{driver: DriverSQLite} }

// Driver returns the database/sql driver name.
func (d Dialect) Driver() string { return d.driver }

// String identifies the dialect, including qualification, for
// use in cache keys.
func (d Dialect) String() string {
	return d.driver + ":" + d.database + ":" + d.schemaPrefix
}

// Qualify returns the physical name of a logical table.
func (d Dialect) Qualify(t Table) string {
	switch d.driver {
	case DriverSQLite:
		// Local warehouses keep every schema in one file.
		return t.Name
	case DriverSnowflake:
		return d.database + "." + d.schemaPrefix + t.Schema + "." + t.Name
	default:
		if t.Schema == "" {
			return t.Name
		}
		return d.schemaPrefix + t.Schema + "." + t.Name
	}
}

// Rebind rewrites '?' placeholders to the dialect's syntax.
// Question marks inside quoted literals are left alone.
func (d Dialect) Rebind(sql string) string {
	if d.driver != DriverPostgres {
		return sql
	}
	var b strings.Builder
	b.Grow(len(sql) + 16)
	n := 0
	inQuote := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
