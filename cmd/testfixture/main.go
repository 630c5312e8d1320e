package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/medicore/medidash/internal/config"
	"github.com/medicore/medidash/internal/fixture"
	"github.com/medicore/medidash/internal/query"
)

func main() {
	out := flag.String("out", "", "output warehouse path")
	year := flag.Int("year", time.Now().Year(), "calendar year to generate")
	perMonth := flag.Int("per-month", 200, "encounters per month")
	save := flag.Bool("save", false,
		"point the medidash config at the generated warehouse")
	flag.Parse()
	if *out == "" {
		fmt.Fprintln(os.Stderr, "usage: testfixture -out <path> [-year N] [-per-month N] [-save]")
		os.Exit(1)
	}
	if *perMonth < 1 {
		log.Fatalf("-per-month must be positive, got %d", *perMonth)
	}

	ctx := context.Background()
	w, err := fixture.CreateSQLite(ctx, *out)
	if err != nil {
		log.Fatalf("creating warehouse: %v", err)
	}
	defer w.Close()

	stats, err := fixture.Demo(ctx, w, *year, *perMonth)
	if err != nil {
		log.Fatalf("generating demo data: %v", err)
	}
	fmt.Printf("  encounters:  %d\n", stats.Encounters)
	fmt.Printf("  lab results: %d\n", stats.LabResults)
	fmt.Printf("  claim lines: %d\n", stats.ClaimLines)
	fmt.Printf("  months:      %d\n", stats.Months)
	fmt.Printf("Fixture warehouse written to %s\n", *out)

	if *save {
		if err := saveWarehouse(*out); err != nil {
			log.Fatalf("saving config: %v", err)
		}
	}
}

func saveWarehouse(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	cfg, err := config.LoadMinimal()
	if err != nil {
		return err
	}
	wh := cfg.Warehouse
	wh.Driver = query.DriverSQLite
	wh.DSN = abs
	wh.Database = ""
	wh.SchemaPrefix = ""
	if err := cfg.SaveWarehouse(wh); err != nil {
		return err
	}
	fmt.Printf("Config in %s now uses %s\n", cfg.DataDir, abs)
	return nil
}
