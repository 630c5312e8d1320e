package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medicore/medidash/internal/config"
	"github.com/medicore/medidash/internal/dashboard"
	"github.com/medicore/medidash/internal/server"
	"github.com/medicore/medidash/internal/warehouse"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

const (
	watcherDebounce = 500 * time.Millisecond
	shutdownTimeout = 10 * time.Second
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "query":
			runQuery(os.Args[2:])
			return
		case "options":
			runOptions(os.Args[2:])
			return
		case "serve":
			runServe(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("medidash %s (commit %s, built %s)\n",
				version, commit, buildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	runServe(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`medidash %s - MediCore analytics dashboards

Serves the clinical, revenue and executive dashboards as a JSON
API over a read-only analytics warehouse.

Usage:
  medidash [flags]                          Start the server (default command)
  medidash serve [flags]                    Start the server (explicit)
  medidash query <dashboard> <panel> [...]  Print one panel as a table
  medidash options <dashboard> [flags]      Print filter option lists
  medidash version                          Show version information
  medidash help                             Show this help

Server flags:
  -host string        Host to bind to (default "127.0.0.1")
  -port int           Port to listen on (default 8090)
  -watch              Reset caches when a local sqlite warehouse changes

Warehouse flags (all commands):
  -driver string      sqlite3, pgx, mysql or snowflake (default "sqlite3")
  -dsn string         Warehouse DSN (sqlite3: file path)
  -database string    Warehouse database (snowflake)
  -schema-prefix str  Prefix for warehouse schema names, e.g. DEV_
  -query-timeout dur  Per-query timeout (default 30s)

Query flags:
  -from, -to          Date window, YYYY-MM-DD (default: current year)
  -department, -encounter-type, -payer, -claim-status
                      Filter values; repeat for several
  -growth             Show growth metrics where the panel has them
  -long               Print multi-series panels in long format

Environment variables:
  MEDIDASH_DATA_DIR             Data directory (config.json, .env, debug.log)
  MEDIDASH_WAREHOUSE_DRIVER     Warehouse driver
  MEDIDASH_WAREHOUSE_DSN        Warehouse DSN
  MEDIDASH_WAREHOUSE_DATABASE   Warehouse database
  MEDIDASH_SCHEMA_PREFIX        Schema prefix
  MEDIDASH_QUERY_TIMEOUT        Per-query timeout

Data is stored in ~/.medidash/ by default.
`, version)
}

func runServe(args []string) {
	cfg := mustLoadConfig(args)
	setupLogFile(cfg.DataDir)

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	wh := mustOpenWarehouse(ctx, cfg)
	defer wh.Close()
	runner := dashboard.NewRunner(wh)

	stopWatcher := startWarehouseWatcher(cfg, runner)
	defer stopWatcher()

	port := server.FindAvailablePort(cfg.Host, cfg.Port)
	if port != cfg.Port {
		fmt.Printf("Port %d in use, using %d\n", cfg.Port, port)
	}
	cfg.Port = port

	srv := server.New(cfg, wh, runner,
		server.WithVersion(server.VersionInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		}),
	)

	fmt.Printf("medidash %s listening at http://%s:%d\n",
		version, cfg.Host, cfg.Port)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case <-ctx.Done():
		log.Println("Shutting down...")
		sctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}

func mustLoadConfig(args []string) config.Config {
	fs := flag.NewFlagSet("medidash", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			"Usage: medidash [serve] [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	config.RegisterServeFlags(fs)
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	return cfg
}

func mustOpenWarehouse(
	ctx context.Context, cfg config.Config,
) *warehouse.DB {
	wh, err := warehouse.Open(ctx, cfg.WarehouseOptions())
	if err != nil {
		log.Fatalf("opening warehouse: %v", err)
	}
	return wh
}

// startWarehouseWatcher resets the runner's caches whenever the
// local warehouse file changes. Remote warehouses are not
// watched.
func startWarehouseWatcher(
	cfg config.Config, runner *dashboard.Runner,
) func() {
	if !cfg.WatchWarehouse {
		return func() {}
	}
	path, ok := cfg.LocalWarehouse()
	if !ok {
		log.Printf(
			"warning: -watch ignored for %s warehouse",
			cfg.Warehouse.Driver,
		)
		return func() {}
	}

	watcher, err := warehouse.NewWatcher(path, watcherDebounce, func() {
		log.Println("Warehouse changed, clearing cached results")
		runner.Invalidate()
	})
	if err != nil {
		log.Printf("warning: warehouse watcher unavailable: %v", err)
		return func() {}
	}
	watcher.Start()
	return watcher.Stop
}
