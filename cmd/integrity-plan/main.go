// Package main is the entry point for the declarative test-plan runner. A
// plan is an ordered list of storage operations, each with an expected
// outcome, executed against one bucket, key and payload file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bleepstore/integrity/internal/config"
	"github.com/bleepstore/integrity/internal/harness"
	"github.com/bleepstore/integrity/internal/invoker"
	"github.com/bleepstore/integrity/internal/logging"
	"github.com/bleepstore/integrity/internal/plan"
	"github.com/bleepstore/integrity/internal/report"
)

const mode = "plan"

type flags struct {
	configPath string
	body       string
	testPlan   string
	bucket     string
	key        string
	download   string
	logLevel   string
	logFormat  string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", config.DefaultPath, "path to configuration file")
	flag.StringVar(&f.body, "body", "", "payload file used by put-object and upload-part (required)")
	flag.StringVar(&f.testPlan, "test-plan", "", "test plan file, JSON or YAML (required)")
	flag.StringVar(&f.testPlan, "test_plan", "", "alias for -test-plan")
	flag.StringVar(&f.bucket, "bucket", "", "bucket name (default: random)")
	flag.StringVar(&f.key, "key", "", "object key (default: random)")
	flag.StringVar(&f.download, "download", "", "file get-object writes to (default: from config or ./s3-data-from-server.bin)")
	flag.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	flag.StringVar(&f.logFormat, "log-format", "", "log format: text, json (default: from config or text)")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "integrity-plan: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if f.download != "" {
		cfg.Paths.Download = f.download
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	if err := plan.ValidateInputs(f.body, f.testPlan); err != nil {
		return err
	}
	p, err := plan.Load(f.testPlan)
	if err != nil {
		return err
	}
	body, err := filepath.Abs(f.body)
	if err != nil {
		return err
	}
	download, err := filepath.Abs(cfg.Paths.Download)
	if err != nil {
		return err
	}
	tc := plan.NewContext(f.bucket, f.key, body, download)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inv, err := invoker.New(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize invoker: %w", err)
	}
	hr, err := harness.Begin(ctx, cfg, mode, slog.Default())
	if err != nil {
		return err
	}
	hr.Progress.Start(mode, hr.ID, len(p.Steps))

	rep := report.New(hr.ID, mode, cfg.Target.Endpoint, tc.Bucket)
	runner := plan.NewRunner(inv, plan.Options{
		Manifest:              cfg.Paths.Manifest,
		DropCompletedSessions: cfg.Plan.DropCompletedSessions,
		OnStep: func(sr plan.StepResult) {
			if sr.Skipped {
				return
			}
			res := stepResult(sr, tc)
			hr.Record(ctx, rep, res)
			report.PrintResult(os.Stdout, res)
		},
	}, slog.Default())

	_, runErr := runner.Run(ctx, p, tc)
	rep.PrintSummary(os.Stdout)
	return errors.Join(runErr, hr.End(ctx, rep))
}

func stepResult(sr plan.StepResult, tc *plan.Context) report.Result {
	name := fmt.Sprintf("%d %s", sr.Index, sr.Op)
	if sr.Description != "" {
		name += ": " + sr.Description
	}
	return report.Result{
		Name:          name,
		Mode:          mode,
		Category:      sr.Op,
		Key:           tc.Key,
		ExpectFailure: !sr.Expect,
		Passed:        sr.Passed(),
		Error:         sr.Error,
	}
}
