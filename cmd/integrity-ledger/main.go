// Package main is the entry point for integrity-ledger, the results ledger
// export and listing tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bleepstore/integrity/internal/config"
	"github.com/bleepstore/integrity/internal/ledger"
)

const usage = "Usage: integrity-ledger <export|runs> [flags]"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "export":
		os.Exit(runExport(os.Args[2:]))
	case "runs":
		os.Exit(runRuns(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n%s\n", command, usage)
		os.Exit(1)
	}
}

// openLedger opens the ledger named by -db, falling back to the config file.
func openLedger(configPath, dbPath string) (*ledger.Store, error) {
	if dbPath == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		dbPath = cfg.Ledger.Path
	}
	if dbPath == "" {
		return nil, fmt.Errorf("no ledger: set ledger.path in the config or pass -db")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	return ledger.Open(dbPath)
}

func runExport(args []string) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "Config file path")
	dbPath := fs.String("db", "", "SQLite ledger path (overrides config)")
	runID := fs.String("run", "", "Export only this run")
	failed := fs.Bool("failed", false, "Export only failed results")
	output := fs.String("output", "-", "Output file path (- for stdout)")
	fs.Parse(args)

	store, err := openLedger(*configPath, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	var w io.Writer = os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output: %v\n", err)
			return 1
		}
		defer f.Close()
		w = f
	}

	opts := ledger.ExportOptions{RunID: *runID, FailedOnly: *failed}
	if err := store.Export(context.Background(), w, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting: %v\n", err)
		return 1
	}
	if *output != "-" {
		fmt.Fprintf(os.Stderr, "Exported to %s\n", *output)
	}
	return 0
}

func runRuns(args []string) int {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "Config file path")
	dbPath := fs.String("db", "", "SQLite ledger path (overrides config)")
	fs.Parse(args)

	store, err := openLedger(*configPath, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	runs, err := store.Runs(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing runs: %v\n", err)
		return 1
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tMODE\tSTARTED\tFINISHED\tPASSED\tFAILED")
	for _, r := range runs {
		finished := "-"
		if !r.FinishedAt.IsZero() {
			finished = r.FinishedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			r.RunID, r.Mode, r.StartedAt.Local().Format(time.DateTime), finished, r.Passed, r.Failed)
	}
	tw.Flush()
	return 0
}
