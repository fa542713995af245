package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	herr "github.com/bleepstore/integrity/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "integrity.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	strs := []struct {
		name, got, want string
	}{
		{"Target.Region", cfg.Target.Region, "us-east-1"},
		{"Invoker.Kind", cfg.Invoker.Kind, "sdk"},
		{"Invoker.AWSCLI", cfg.Invoker.AWSCLI, "aws"},
		{"FaultInjection.Header", cfg.FaultInjection.Header, "x-seagate-faultinjection"},
		{"Paths.Body", cfg.Paths.Body, "./s3-object.bin"},
		{"Paths.Manifest", cfg.Paths.Manifest, "./parts.json"},
		{"Sweep.Bucket", cfg.Sweep.Bucket, "test"},
		{"Sweep.Corruption", cfg.Sweep.Corruption, "none-on-write"},
		{"Sweep.Seed", cfg.Sweep.Seed, "integrity"},
		{"Logging.Level", cfg.Logging.Level, "info"},
		{"Logging.Format", cfg.Logging.Format, "text"},
	}
	for _, tt := range strs {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}

	if !cfg.Target.PathStyle {
		t.Error("Target.PathStyle = false, want true")
	}
	if cfg.Invoker.TimeoutSeconds != 0 {
		t.Errorf("Invoker.TimeoutSeconds = %d, want 0", cfg.Invoker.TimeoutSeconds)
	}
	if cfg.Sweep.Iterations != 1 {
		t.Errorf("Sweep.Iterations = %d, want 1", cfg.Sweep.Iterations)
	}
	if cfg.Sweep.Workers != 1 {
		t.Errorf("Sweep.Workers = %d, want 1", cfg.Sweep.Workers)
	}
	if !reflect.DeepEqual(cfg.Sweep.ObjectSizes, DefaultObjectSizes) {
		t.Errorf("Sweep.ObjectSizes = %v, want %v", cfg.Sweep.ObjectSizes, DefaultObjectSizes)
	}
	if !reflect.DeepEqual(cfg.Sweep.PartSizes, DefaultPartSizes) {
		t.Errorf("Sweep.PartSizes = %v, want %v", cfg.Sweep.PartSizes, DefaultPartSizes)
	}
	if !reflect.DeepEqual(cfg.Sweep.PartCounts, DefaultPartCounts) {
		t.Errorf("Sweep.PartCounts = %v, want %v", cfg.Sweep.PartCounts, DefaultPartCounts)
	}
	if !cfg.Sweep.StampKeepMarker {
		t.Error("Sweep.StampKeepMarker = false, want true")
	}
	if cfg.Plan.DropCompletedSessions {
		t.Error("Plan.DropCompletedSessions = true, want false")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
target:
  endpoint: http://127.0.0.1:9000
  access_key: AKIA
  secret_key: secret
  path_style: false
invoker:
  kind: cli
  timeout_seconds: 30
sweep:
  bucket: integrity
  corruption: zero-on-write
  object_sizes: [0, 4096]
  workers: 4
  stamp_keep_marker: false
plan:
  drop_completed_sessions: true
logging:
  level: debug
  format: json
ledger:
  path: ./results.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	strs := []struct {
		name, got, want string
	}{
		{"Target.Endpoint", cfg.Target.Endpoint, "http://127.0.0.1:9000"},
		{"Target.Region", cfg.Target.Region, "us-east-1"},
		{"Invoker.Kind", cfg.Invoker.Kind, "cli"},
		{"Sweep.Bucket", cfg.Sweep.Bucket, "integrity"},
		{"Sweep.Corruption", cfg.Sweep.Corruption, "zero-on-write"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
		{"Ledger.Path", cfg.Ledger.Path, "./results.db"},
	}
	for _, tt := range strs {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}

	if cfg.Target.PathStyle {
		t.Error("Target.PathStyle = true, want false")
	}
	if cfg.Invoker.TimeoutSeconds != 30 {
		t.Errorf("Invoker.TimeoutSeconds = %d, want 30", cfg.Invoker.TimeoutSeconds)
	}
	if want := []int64{0, 4096}; !reflect.DeepEqual(cfg.Sweep.ObjectSizes, want) {
		t.Errorf("Sweep.ObjectSizes = %v, want %v", cfg.Sweep.ObjectSizes, want)
	}
	if !reflect.DeepEqual(cfg.Sweep.PartSizes, DefaultPartSizes) {
		t.Errorf("Sweep.PartSizes = %v, want %v", cfg.Sweep.PartSizes, DefaultPartSizes)
	}
	if cfg.Sweep.Workers != 4 {
		t.Errorf("Sweep.Workers = %d, want 4", cfg.Sweep.Workers)
	}
	if cfg.Sweep.StampKeepMarker {
		t.Error("Sweep.StampKeepMarker = true, want false")
	}
	if !cfg.Plan.DropCompletedSessions {
		t.Error("Plan.DropCompletedSessions = false, want true")
	}
}

func TestLoadMissingDefaultPath(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(DefaultPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Invoker.Kind != "sdk" {
		t.Errorf("Invoker.Kind = %q, want %q", cfg.Invoker.Kind, "sdk")
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, herr.ErrMissingRequiredInput) {
		t.Errorf("Load error = %v, want ErrMissingRequiredInput", err)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := writeConfig(t, "sweep: [unterminated")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("Load error = %v, want a parse error", err)
	}
}

func TestLoadRejectsNegativeDimensions(t *testing.T) {
	tests := []struct {
		name  string
		sweep string
		field string
	}{
		{"part count", "part_counts: [2, -1]", "part_counts"},
		{"part size", "part_sizes: [-5]", "part_sizes"},
		{"object size", "object_sizes: [0, -1]", "object_sizes"},
		{"iterations", "iterations: -3", "iterations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "sweep:\n  "+tt.sweep+"\n"))
			if !errors.Is(err, herr.ErrMissingRequiredInput) {
				t.Fatalf("Load error = %v, want ErrMissingRequiredInput", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Load error = %q, want it to name %s", err, tt.field)
			}
		})
	}
}

func TestValidateAcceptsZeroSizes(t *testing.T) {
	cfg := Default()
	cfg.Sweep.ObjectSizes = []int64{0}
	cfg.Sweep.PartCounts = []int{0}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
