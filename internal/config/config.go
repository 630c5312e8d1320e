package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/gjson"

	"github.com/medicore/medidash/internal/query"
	"github.com/medicore/medidash/internal/warehouse"
)

const (
	configFileName = "config.json"
	envFileName    = ".env"
	warehouseFile  = "warehouse.db"
)

// Warehouse selects the analytics warehouse connection.
type Warehouse struct {
	Driver       string        `json:"driver"`
	DSN          string        `json:"dsn,omitempty"`
	Database     string        `json:"database,omitempty"`
	SchemaPrefix string        `json:"schema_prefix,omitempty"`
	QueryTimeout time.Duration `json:"-"`
	MaxConns     int           `json:"max_conns,omitempty"`
}

// Config holds all application configuration.
type Config struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	DataDir        string        `json:"data_dir"`
	WriteTimeout   time.Duration `json:"-"`
	Warehouse      Warehouse     `json:"warehouse"`
	WatchWarehouse bool          `json:"watch_warehouse"`
}

// Default returns a Config with default values: a read-only
// sqlite warehouse in the data directory.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf(
			"determining home directory: %w", err,
		)
	}
	dataDir := filepath.Join(home, ".medidash")
	return Config{
		Host:         "127.0.0.1",
		Port:         8090,
		DataDir:      dataDir,
		WriteTimeout: 60 * time.Second,
		Warehouse: Warehouse{
			Driver:       query.DriverSQLite,
			DSN:          filepath.Join(dataDir, warehouseFile),
			QueryTimeout: warehouse.DefaultQueryTimeout,
			MaxConns:     4,
		},
	}, nil
}

// Load builds a Config by layering: defaults < config file <
// .env < env < flags. The provided FlagSet must already be parsed
// by the caller. Only flags that were explicitly set override the
// lower layers.
func Load(fs *flag.FlagSet) (Config, error) {
	cfg, err := LoadMinimal()
	if err != nil {
		return cfg, err
	}
	if err := applyFlags(&cfg, fs); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadMinimal builds a Config from defaults, the config file and
// the environment, without CLI flags.
func LoadMinimal() (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}

	env, err := newEnv(envFileName)
	if err != nil {
		return cfg, fmt.Errorf("loading %s: %w", envFileName, err)
	}
	if v := env.get("MEDIDASH_DATA_DIR"); v != "" {
		cfg.setDataDir(v)
	}
	if err := env.merge(filepath.Join(cfg.DataDir, envFileName)); err != nil {
		return cfg, fmt.Errorf("loading %s: %w", envFileName, err)
	}

	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	if err := cfg.loadEnv(env); err != nil {
		return cfg, fmt.Errorf("loading environment: %w", err)
	}
	return cfg, nil
}

// setDataDir moves the data dir, carrying the default sqlite
// warehouse path along with it.
func (c *Config) setDataDir(dir string) {
	if c.Warehouse.Driver == query.DriverSQLite &&
		c.Warehouse.DSN == filepath.Join(c.DataDir, warehouseFile) {
		c.Warehouse.DSN = filepath.Join(dir, warehouseFile)
	}
	c.DataDir = dir
}

func (c *Config) configPath() string {
	return filepath.Join(c.DataDir, configFileName)
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.configPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("parsing config: invalid JSON in %s", c.configPath())
	}

	root := gjson.ParseBytes(data)
	if v := root.Get("host"); v.Exists() {
		c.Host = v.String()
	}
	if v := root.Get("port"); v.Exists() {
		c.Port = int(v.Int())
	}
	if v := root.Get("watch_warehouse"); v.Exists() {
		c.WatchWarehouse = v.Bool()
	}

	wh := root.Get("warehouse")
	if v := wh.Get("driver"); v.Exists() {
		c.setDriver(v.String(), wh.Get("dsn").Exists())
	}
	if v := wh.Get("dsn"); v.Exists() {
		c.Warehouse.DSN = v.String()
	}
	if v := wh.Get("database"); v.Exists() {
		c.Warehouse.Database = v.String()
	}
	if v := wh.Get("schema_prefix"); v.Exists() {
		c.Warehouse.SchemaPrefix = v.String()
	}
	if v := wh.Get("max_conns"); v.Exists() {
		c.Warehouse.MaxConns = int(v.Int())
	}
	if v := wh.Get("query_timeout"); v.Exists() {
		d, err := time.ParseDuration(v.String())
		if err != nil {
			return fmt.Errorf("parsing warehouse.query_timeout: %w", err)
		}
		c.Warehouse.QueryTimeout = d
	}
	return nil
}

// env resolves variables from the process environment, falling
// back to values read from .env files. Real variables always win.
type env struct {
	file map[string]string
}

func newEnv(path string) (*env, error) {
	e := &env{file: map[string]string{}}
	return e, e.merge(path)
}

// merge adds variables from path that are not already known.
func (e *env) merge(path string) error {
	vals, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for k, v := range vals {
		if _, ok := e.file[k]; !ok {
			e.file[k] = v
		}
	}
	return nil
}

func (e *env) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return e.file[key]
}

func (c *Config) loadEnv(e *env) error {
	if v := e.get("MEDIDASH_WAREHOUSE_DRIVER"); v != "" {
		c.setDriver(v, e.get("MEDIDASH_WAREHOUSE_DSN") != "")
	}
	if v := e.get("MEDIDASH_WAREHOUSE_DSN"); v != "" {
		c.Warehouse.DSN = v
	}
	if v := e.get("MEDIDASH_WAREHOUSE_DATABASE"); v != "" {
		c.Warehouse.Database = v
	}
	if v := e.get("MEDIDASH_SCHEMA_PREFIX"); v != "" {
		c.Warehouse.SchemaPrefix = v
	}
	if v := e.get("MEDIDASH_QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing MEDIDASH_QUERY_TIMEOUT: %w", err)
		}
		c.Warehouse.QueryTimeout = d
	}
	return nil
}

// setDriver switches the warehouse driver. Moving off sqlite
// drops the local file DSN unless the same layer supplies one.
func (c *Config) setDriver(driver string, dsnGiven bool) {
	if c.Warehouse.Driver == query.DriverSQLite &&
		driver != query.DriverSQLite && !dsnGiven {
		c.Warehouse.DSN = ""
	}
	c.Warehouse.Driver = driver
}

// Validate checks that the configured warehouse can be opened.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := query.NewDialect(
		c.Warehouse.Driver, c.Warehouse.Database, c.Warehouse.SchemaPrefix,
	); err != nil {
		return err
	}
	if c.Warehouse.DSN == "" {
		return fmt.Errorf(
			"warehouse DSN is required for driver %s", c.Warehouse.Driver,
		)
	}
	if c.Warehouse.QueryTimeout <= 0 {
		return fmt.Errorf(
			"query timeout must be positive, got %s", c.Warehouse.QueryTimeout,
		)
	}
	return nil
}

// WarehouseOptions returns the connection options for
// warehouse.Open.
func (c *Config) WarehouseOptions() warehouse.Options {
	return warehouse.Options{
		Driver:       c.Warehouse.Driver,
		DSN:          c.Warehouse.DSN,
		Database:     c.Warehouse.Database,
		SchemaPrefix: c.Warehouse.SchemaPrefix,
		QueryTimeout: c.Warehouse.QueryTimeout,
		MaxConns:     c.Warehouse.MaxConns,
	}
}

// LocalWarehouse returns the sqlite file path when the warehouse
// is a local file.
func (c *Config) LocalWarehouse() (string, bool) {
	if c.Warehouse.Driver != query.DriverSQLite {
		return "", false
	}
	return c.Warehouse.DSN, true
}

// RegisterServeFlags registers serve-command flags on fs.
// The caller must call fs.Parse before passing fs to Load.
func RegisterServeFlags(fs *flag.FlagSet) {
	fs.String("host", "127.0.0.1", "Host to bind to")
	fs.Int("port", 8090, "Port to listen on")
	fs.Bool(
		"watch", false,
		"Reset caches when a local sqlite warehouse changes",
	)
	RegisterWarehouseFlags(fs)
}

// RegisterWarehouseFlags registers the connection flags shared by
// every subcommand that queries.
func RegisterWarehouseFlags(fs *flag.FlagSet) {
	fs.String("driver", query.DriverSQLite,
		"Warehouse driver: sqlite3, pgx, mysql, snowflake")
	fs.String("dsn", "", "Warehouse DSN (sqlite3: file path)")
	fs.String("database", "", "Warehouse database (snowflake)")
	fs.String("schema-prefix", "", "Prefix for warehouse schema names")
	fs.Duration("query-timeout", warehouse.DefaultQueryTimeout,
		"Per-query timeout")
}

// applyFlags copies explicitly-set flags from fs into cfg.
func applyFlags(cfg *Config, fs *flag.FlagSet) error {
	if fs == nil {
		return nil
	}
	var (
		err    error
		dsnSet bool
	)
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "dsn" {
			dsnSet = true
		}
	})
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = f.Value.String()
		case "port":
			// flag already validated the int; ignore parse error
			cfg.Port, _ = strconv.Atoi(f.Value.String())
		case "watch":
			cfg.WatchWarehouse = f.Value.String() == "true"
		case "driver":
			cfg.setDriver(f.Value.String(), dsnSet)
		case "dsn":
			cfg.Warehouse.DSN = f.Value.String()
		case "database":
			cfg.Warehouse.Database = f.Value.String()
		case "schema-prefix":
			cfg.Warehouse.SchemaPrefix = f.Value.String()
		case "query-timeout":
			d, perr := time.ParseDuration(f.Value.String())
			if perr != nil {
				err = fmt.Errorf("parsing -query-timeout: %w", perr)
			}
			cfg.Warehouse.QueryTimeout = d
		}
	})
	return err
}

// SaveWarehouse persists the warehouse section to the config
// file, keeping any other keys.
func (c *Config) SaveWarehouse(w Warehouse) error {
	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	existing := make(map[string]any)
	data, err := os.ReadFile(c.configPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf(
				"existing config is invalid, cannot update: %w",
				err,
			)
		}
	}

	section := map[string]any{"driver": w.Driver}
	if w.DSN != "" {
		section["dsn"] = w.DSN
	}
	if w.Database != "" {
		section["database"] = w.Database
	}
	if w.SchemaPrefix != "" {
		section["schema_prefix"] = w.SchemaPrefix
	}
	if w.QueryTimeout > 0 {
		section["query_timeout"] = w.QueryTimeout.String()
	}
	if w.MaxConns > 0 {
		section["max_conns"] = w.MaxConns
	}
	existing["warehouse"] = section

	out, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(c.configPath(), out, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	c.Warehouse = w
	return nil
}
