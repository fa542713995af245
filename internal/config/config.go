// Package config handles loading and parsing of the integrity harness configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	herr "github.com/bleepstore/integrity/internal/errors"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file consulted when no -config flag is given.
const DefaultPath = "integrity.yaml"

// Config is the top-level configuration for the integrity harness.
type Config struct {
	Target         TargetConfig         `yaml:"target"`
	Invoker        InvokerConfig        `yaml:"invoker"`
	FaultInjection FaultInjectionConfig `yaml:"fault_injection"`
	Paths          PathsConfig          `yaml:"paths"`
	Sweep          SweepConfig          `yaml:"sweep"`
	Plan           PlanConfig           `yaml:"plan"`
	Logging        LoggingConfig        `yaml:"logging"`
	Ledger         LedgerConfig         `yaml:"ledger"`
	Status         StatusConfig         `yaml:"status"`
	Report         ReportConfig         `yaml:"report"`
	Metrics        MetricsConfig        `yaml:"metrics"`
}

// TargetConfig describes the object-storage service under test.
type TargetConfig struct {
	// Endpoint is the service URL (e.g., "http://127.0.0.1:9000"). Empty
	// means the AWS default endpoint for the region.
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	// AccessKey and SecretKey are optional static credentials. When empty the
	// standard AWS credential chain is used.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	// PathStyle forces path-style addressing, which most S3-compatible
	// services require.
	PathStyle bool `yaml:"path_style"`
}

// InvokerConfig selects how storage operations are executed.
type InvokerConfig struct {
	// Kind is "sdk" (in-process aws-sdk-go-v2) or "cli" (aws s3api subprocess).
	Kind string `yaml:"kind"`
	// AWSCLI is the path of the aws binary used by the cli invoker.
	AWSCLI string `yaml:"aws_cli"`
	// TimeoutSeconds bounds each invocation. Zero leaves calls unbounded.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// FaultInjectionConfig describes the service's fault-injection hook.
type FaultInjectionConfig struct {
	// Header is the request header carrying the fault directive.
	Header string `yaml:"header"`
	// Method is the HTTP method of the fault-injection request.
	Method string `yaml:"method"`
}

// PathsConfig holds scratch and payload file locations.
type PathsConfig struct {
	Body     string `yaml:"body"`
	Output   string `yaml:"output"`
	Download string `yaml:"download"`
	Manifest string `yaml:"manifest"`
}

// SweepConfig holds automated sweep settings.
type SweepConfig struct {
	Bucket      string  `yaml:"bucket"`
	Iterations  int     `yaml:"iterations"`
	Corruption  string  `yaml:"corruption"`
	ObjectSizes []int64 `yaml:"object_sizes"`
	PartSizes   []int64 `yaml:"part_sizes"`
	PartCounts  []int   `yaml:"part_counts"`
	// Seed makes generated payloads and corrupted-part choices reproducible.
	Seed string `yaml:"seed"`
	// Workers is the number of scenarios run at once. Results are only
	// reproducible with a single worker.
	Workers int `yaml:"workers"`
	// StampKeepMarker writes the neutral keep marker into byte 0 of payloads
	// that are not the corrupted one.
	StampKeepMarker bool `yaml:"stamp_keep_marker"`
}

// PlanConfig holds declarative test-plan settings.
type PlanConfig struct {
	// DropCompletedSessions removes a multipart session from the test context
	// once complete-multipart succeeds.
	DropCompletedSessions bool `yaml:"drop_completed_sessions"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LedgerConfig holds the results ledger settings.
type LedgerConfig struct {
	// Path is the SQLite database file. Empty disables the ledger.
	Path string `yaml:"path"`
}

// StatusConfig holds the progress/status server settings.
type StatusConfig struct {
	// Addr is the listen address. Empty disables the server.
	Addr string `yaml:"addr"`
}

// ReportConfig holds report output settings.
type ReportConfig struct {
	// Path is where the JSON report is written. Empty disables it.
	Path string `yaml:"path"`
	// ArchiveURL is an s3://, gs://, azblob:// or file:// destination the
	// report is uploaded to after the run. Empty disables archiving.
	ArchiveURL string `yaml:"archive_url"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// Textfile is a node-exporter textfile written at the end of a run.
	Textfile string `yaml:"textfile"`
}

// Default sweep dimensions.
var (
	DefaultObjectSizes = []int64{0, 1, 2, 4095, 4096, 4097, 1<<20 - 1, 1 << 20, 1<<20 + 100, 1 << 24}
	DefaultPartSizes   = []int64{5 << 20, 6 << 20}
	DefaultPartCounts  = []int{1, 2}
)

// Load reads a YAML configuration file from the given path and returns
// a parsed Config with defaults applied. A missing file at DefaultPath yields
// the defaults; any other unreadable path is ErrMissingRequiredInput.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && path == DefaultPath {
			return cfg, nil
		}
		return nil, herr.ErrMissingRequiredInput.WithDetail("reading config file %q: %v", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults for empty fields that YAML didn't set
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects sweep dimensions that cannot describe an object.
func (c *Config) Validate() error {
	if c.Sweep.Iterations < 0 {
		return herr.ErrMissingRequiredInput.WithDetail("sweep.iterations must not be negative, got %d", c.Sweep.Iterations)
	}
	for name, sizes := range map[string][]int64{"object_sizes": c.Sweep.ObjectSizes, "part_sizes": c.Sweep.PartSizes} {
		for _, v := range sizes {
			if v < 0 {
				return herr.ErrMissingRequiredInput.WithDetail("sweep.%s must not be negative, got %d", name, v)
			}
		}
	}
	for _, v := range c.Sweep.PartCounts {
		if v < 0 {
			return herr.ErrMissingRequiredInput.WithDetail("sweep.part_counts must not be negative, got %d", v)
		}
	}
	return nil
}

// Default returns a Config with sensible defaults. Boolean settings that
// default to true are set here, since applyDefaults cannot tell an explicit
// false from an unset field.
func Default() *Config {
	cfg := &Config{
		Target: TargetConfig{PathStyle: true},
		Sweep:  SweepConfig{StampKeepMarker: true},
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Target.Region == "" {
		cfg.Target.Region = "us-east-1"
	}
	if cfg.Invoker.Kind == "" {
		cfg.Invoker.Kind = "sdk"
	}
	if cfg.Invoker.AWSCLI == "" {
		cfg.Invoker.AWSCLI = "aws"
	}
	if cfg.FaultInjection.Header == "" {
		cfg.FaultInjection.Header = "x-seagate-faultinjection"
	}
	if cfg.FaultInjection.Method == "" {
		cfg.FaultInjection.Method = "PUT"
	}
	if cfg.Paths.Body == "" {
		cfg.Paths.Body = "./s3-object.bin"
	}
	if cfg.Paths.Output == "" {
		cfg.Paths.Output = "./s3-object-output.bin"
	}
	if cfg.Paths.Download == "" {
		cfg.Paths.Download = "./s3-data-from-server.bin"
	}
	if cfg.Paths.Manifest == "" {
		cfg.Paths.Manifest = "./parts.json"
	}
	if cfg.Sweep.Bucket == "" {
		cfg.Sweep.Bucket = "test"
	}
	if cfg.Sweep.Iterations == 0 {
		cfg.Sweep.Iterations = 1
	}
	if cfg.Sweep.Corruption == "" {
		cfg.Sweep.Corruption = "none-on-write"
	}
	if len(cfg.Sweep.ObjectSizes) == 0 {
		cfg.Sweep.ObjectSizes = append([]int64(nil), DefaultObjectSizes...)
	}
	if len(cfg.Sweep.PartSizes) == 0 {
		cfg.Sweep.PartSizes = append([]int64(nil), DefaultPartSizes...)
	}
	if len(cfg.Sweep.PartCounts) == 0 {
		cfg.Sweep.PartCounts = append([]int(nil), DefaultPartCounts...)
	}
	if cfg.Sweep.Seed == "" {
		cfg.Sweep.Seed = "integrity"
	}
	if cfg.Sweep.Workers < 1 {
		cfg.Sweep.Workers = 1
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
