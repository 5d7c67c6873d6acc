package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

// verify_schema checks that a database file carries every table the
// pipeline expects. Useful after hand-editing a deployment's database
// or downgrading a build.
//
// Usage:
//   go run ./scripts/verify_schema -db ./data/tradepipe.db

var expectedTables = []string{
	"assets",
	"portfolios",
	"strategy_configs",
	"orders",
	"trades",
	"signals",
	"risk_events",
	"daily_snapshots",
	"candles",
	"backtest_runs",
}

func main() {
	dbPath := flag.String("db", "./data/tradepipe.db", "sqlite database path")
	flag.Parse()

	fmt.Printf("Verifying database at: %s\n", *dbPath)

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	missing := 0
	for _, table := range expectedTables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		switch {
		case err == sql.ErrNoRows:
			fmt.Printf("MISSING  %s\n", table)
			missing++
		case err != nil:
			log.Fatalf("Query failed: %v", err)
		default:
			fmt.Printf("ok       %s\n", table)
		}
	}

	if missing > 0 {
		log.Fatalf("%d of %d tables missing; run the service once to apply migrations", missing, len(expectedTables))
	}
	fmt.Println("schema looks complete")
}
