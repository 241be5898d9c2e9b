// deviation-scan runs one deviation scan from the command line, for ad-hoc
// sweeps and one-off jobs outside the in-process scheduler. The exit status
// reflects whether the scan completed, not whether it found deviations.
//
// Usage:
//   go run ./cmd/deviation-scan -year 2026 [-month 3]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"bitbucket.org/mmdatafocus/budget_backend/workflow"
)

func main() {
	now := time.Now()
	year := flag.Int("year", now.Year(), "Fiscal year to scan")
	month := flag.Int("month", 0, "Optional: scan a single month (1-12). 0 scans the whole year.")
	flag.Parse()

	if *month < 0 || *month > 12 {
		fmt.Fprintln(os.Stderr, "month must be between 1 and 12")
		os.Exit(1)
	}

	logger := config.GetLogger()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	config.ConnectRedisWithRetry()

	result, err := workflow.RunDeviationScan(context.Background(), logger, *year, *month, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "deviation scan failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("scanned %d plans: %d alerts raised, %d refreshed, %d errors\n",
		result.PlansScanned, result.AlertsRaised, result.AlertsUpdated, result.Errors)
}
