// Package main is the entry point for the automated integrity sweeps: the
// put/get and multipart scenario matrices run against an S3-compatible
// service, with optional corruption markers the service must reject.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bleepstore/integrity/internal/config"
	"github.com/bleepstore/integrity/internal/corruption"
	herr "github.com/bleepstore/integrity/internal/errors"
	"github.com/bleepstore/integrity/internal/harness"
	"github.com/bleepstore/integrity/internal/invoker"
	"github.com/bleepstore/integrity/internal/logging"
	"github.com/bleepstore/integrity/internal/matrix"
	"github.com/bleepstore/integrity/internal/payload"
	"github.com/bleepstore/integrity/internal/report"
	"github.com/bleepstore/integrity/internal/sweep"
)

// errFailed signals a sweep that ran to completion with failed scenarios.
var errFailed = errors.New("sweep failed")

type flags struct {
	configPath string

	autoPutGet    bool
	autoMultipart bool
	testPutGet    bool
	autoAll       bool

	bucket        string
	objectSize    int64
	body          string
	output        string
	iterations    int
	createObjects bool
	corruption    string
	dryRun        bool
	seed          string
	workers       int
	logLevel      string
	logFormat     string
	reportPath    string

	randomFile      string
	randomFileSize  int64
	randomFileFirst string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", config.DefaultPath, "path to configuration file")
	flag.BoolVar(&f.autoPutGet, "auto-test-put-get", false, "run the put/get matrix over every configured object size")
	flag.BoolVar(&f.autoMultipart, "auto-test-multipart", false, "run the multipart matrix")
	flag.BoolVar(&f.testPutGet, "test-put-get", false, "run a single put/get scenario of -object-size bytes")
	flag.BoolVar(&f.autoAll, "auto-test-all", false, "run both matrices for every corruption category (implies -create-objects)")
	flag.StringVar(&f.bucket, "bucket", "", "bucket to test in (default: from config or test)")
	flag.Int64Var(&f.objectSize, "object-size", 1<<20, "object size for -test-put-get")
	flag.StringVar(&f.body, "body", "", "payload file uploaded by each scenario (default: from config or ./s3-object.bin)")
	flag.StringVar(&f.output, "output", "", "file each object is downloaded to (default: from config or ./s3-object-output.bin)")
	flag.IntVar(&f.iterations, "iterations", 0, "put/get iterations per object size (default: from config or 1)")
	flag.BoolVar(&f.createObjects, "create-objects", false, "generate payload files instead of uploading existing ones")
	flag.StringVar(&f.corruption, "corruption", "", "corruption category (default: from config or none-on-write)")
	flag.BoolVar(&f.dryRun, "dry-run", false, "print each scenario and its commands without running them")
	flag.StringVar(&f.seed, "seed", "", "seed for payloads and corrupted-part choices (default: from config or integrity)")
	flag.IntVar(&f.workers, "workers", 0, "scenarios run at once (default: from config or 1)")
	flag.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	flag.StringVar(&f.logFormat, "log-format", "", "log format: text, json (default: from config or text)")
	flag.StringVar(&f.reportPath, "json", "", "write the JSON report to this path (default: from config)")
	flag.StringVar(&f.randomFile, "create-random-file", "", "write a random payload file and exit")
	flag.Int64Var(&f.randomFileSize, "random-file-size", 0, "size of the -create-random-file payload")
	flag.StringVar(&f.randomFileFirst, "random-file-first-byte", "", "byte 0 of the -create-random-file payload")
	flag.Parse()

	if err := run(f); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "integrity: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cfg, f)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if f.objectSize < 0 {
		return herr.ErrMissingRequiredInput.WithDetail("-object-size must not be negative, got %d", f.objectSize)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	if f.randomFile != "" {
		return createRandomFile(cfg.Sweep.Seed, f.randomFile, f.randomFileSize, f.randomFileFirst)
	}

	mode, err := selectMode(f)
	if err != nil {
		return err
	}
	spec, _, err := corruption.Parse(cfg.Sweep.Corruption)
	if err != nil {
		return err
	}
	if f.dryRun {
		// A dry run executes nothing, so it has nothing to record.
		cfg.Ledger.Path = ""
		cfg.Report.Path = ""
		cfg.Report.ArchiveURL = ""
		cfg.Metrics.Textfile = ""
	}

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

	sw := sweep.New(inv, payload.NewSeeded(cfg.Sweep.Seed), sweep.Options{
		RunID:           hr.ID,
		Endpoint:        cfg.Target.Endpoint,
		Bucket:          cfg.Sweep.Bucket,
		Body:            cfg.Paths.Body,
		Download:        cfg.Paths.Output,
		Manifest:        cfg.Paths.Manifest,
		Workers:         cfg.Sweep.Workers,
		CreateObjects:   f.createObjects,
		StampKeepMarker: cfg.Sweep.StampKeepMarker,
		DryRun:          f.dryRun,
		Describe:        invoker.Describe{Endpoint: cfg.Target.Endpoint, FaultHeader: cfg.FaultInjection.Header},
	}, slog.Default(),
		sweep.WithLedger(hr.Ledger),
		sweep.WithProgress(hr.Progress),
		sweep.WithOutput(os.Stdout),
	)

	m := matrix.Matrix{
		ObjectSizes: cfg.Sweep.ObjectSizes,
		PartSizes:   cfg.Sweep.PartSizes,
		PartCounts:  cfg.Sweep.PartCounts,
		Iterations:  cfg.Sweep.Iterations,
		Spec:        spec,
	}
	rep, runErr := runSweeps(ctx, sw, f, m, report.New(hr.ID, mode, cfg.Target.Endpoint, cfg.Sweep.Bucket))

	if !f.dryRun {
		rep.PrintSummary(os.Stdout)
	}
	endErr := hr.End(ctx, rep)
	if err := errors.Join(runErr, endErr); err != nil {
		return err
	}
	if !rep.OK() {
		return errFailed
	}
	return nil
}

// runSweeps runs the selected sweeps in the order the flags are listed and
// merges their results into rep.
func runSweeps(ctx context.Context, sw *sweep.Sweeper, f flags, m matrix.Matrix, rep *report.Report) (*report.Report, error) {
	if err := sw.Prepare(ctx); err != nil {
		return rep, err
	}

	var sweeps []func(context.Context, matrix.Matrix) (*report.Report, error)
	if f.testPutGet {
		single := m
		single.ObjectSizes = []int64{f.objectSize}
		sweeps = append(sweeps, func(ctx context.Context, _ matrix.Matrix) (*report.Report, error) {
			return sw.PutGet(ctx, single)
		})
	}
	switch {
	case f.autoPutGet:
		sweeps = append(sweeps, sw.PutGet)
	case f.autoMultipart:
		sweeps = append(sweeps, sw.Multipart)
	case f.autoAll:
		sweeps = append(sweeps, sw.All)
	}

	for _, fn := range sweeps {
		r, err := fn(ctx, m)
		rep.Merge(r)
		if err != nil {
			return rep, err
		}
	}
	rep.Finish()
	return rep, nil
}

func selectMode(f flags) (string, error) {
	switch {
	case f.autoAll:
		return sweep.ModeAll, nil
	case f.autoMultipart:
		return sweep.ModeMultipart, nil
	case f.autoPutGet, f.testPutGet:
		return sweep.ModePutGet, nil
	}
	return "", herr.ErrMissingRequiredInput.WithDetail(
		"one of -auto-test-put-get, -auto-test-multipart, -test-put-get, -auto-test-all or -create-random-file is required")
}

func createRandomFile(seed, path string, size int64, first string) error {
	if len(first) > 1 {
		return herr.ErrMissingRequiredInput.WithDetail("-random-file-first-byte must be a single byte, got %q", first)
	}
	spec := payload.ObjectSpec{Size: size}
	if first != "" {
		spec.Marker = first[0]
	}
	if err := payload.NewSeeded(seed).WriteFile(path, spec, first != ""); err != nil {
		return err
	}
	slog.Info("random file created", "path", path, "size", size, "first_byte", first)
	return nil
}

// applyFlags overrides config values with the flags that were set.
func applyFlags(cfg *config.Config, f flags) {
	if f.bucket != "" {
		cfg.Sweep.Bucket = f.bucket
	}
	if f.body != "" {
		cfg.Paths.Body = f.body
	}
	if f.output != "" {
		cfg.Paths.Output = f.output
	}
	if f.iterations != 0 {
		cfg.Sweep.Iterations = f.iterations
	}
	if f.corruption != "" {
		cfg.Sweep.Corruption = f.corruption
	}
	if f.seed != "" {
		cfg.Sweep.Seed = f.seed
	}
	if f.workers != 0 {
		cfg.Sweep.Workers = f.workers
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}
	if f.reportPath != "" {
		cfg.Report.Path = f.reportPath
	}
}
