package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/patrickwarner/adtarget/internal/analytics"
	"github.com/patrickwarner/adtarget/internal/config"
	"github.com/patrickwarner/adtarget/internal/observability"
)

func main() {
	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var marketplace string
	var dsn string
	var limit int
	flag.StringVar(&marketplace, "marketplace", "", "marketplace ID")
	flag.StringVar(&dsn, "dsn", "", "ClickHouse DSN")
	flag.IntVar(&limit, "limit", 100, "max decisions to return")
	flag.Parse()

	if marketplace == "" {
		fmt.Fprintln(os.Stderr, "marketplace required")
		os.Exit(1)
	}
	if dsn == "" {
		cfg := config.Load()
		dsn = cfg.ClickHouseDSN
	}

	a, err := analytics.InitClickHouse(dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect clickhouse: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	decisions, err := a.GetDecisionsByMarketplace(marketplace, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query decisions: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(decisions); err != nil {
		fmt.Fprintf(os.Stderr, "encode decisions: %v\n", err)
		os.Exit(1)
	}
}
