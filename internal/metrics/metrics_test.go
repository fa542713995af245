package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/status", "/status"},
		{"/metrics", "/metrics"},
		{"/openapi.json", "/openapi.json"},
		{"/openapi.yaml", "/openapi"},
		{"/schemas/Progress.json", "/openapi"},
		{"/docs", "/docs"},
		{"/docs/", "/docs"},
		{"/docs/something", "/docs"},
		{"/", "/other"},
		{"/my-bucket/my-key", "/other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := NormalizePath(tt.path)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestMetricsRegistered(t *testing.T) {
	// Registering twice must not panic.
	Register()
	Register()

	// Verify that calling Inc/Observe on metrics does not panic.
	InvocationsTotal.WithLabelValues("put-object", Status(true)).Inc()
	InvocationDuration.WithLabelValues("put-object").Observe(0.01)
	ScenariosTotal.WithLabelValues("put-get", "none-on-write", "pass").Inc()
	PlanStepsTotal.WithLabelValues("upload-part", "pass").Inc()
	BytesVerifiedTotal.Add(4096)
	ObjectSize.Observe(4096)
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "200").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/health").Observe(0.001)

	if got := Status(false); got != "failure" {
		t.Errorf("Status(false) = %q, want %q", got, "failure")
	}
}

func TestWriteTextfile(t *testing.T) {
	Register()
	BytesVerifiedTotal.Add(1)

	path := filepath.Join(t.TempDir(), "integrity.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading textfile: %v", err)
	}
	if !strings.Contains(string(data), "integrity_bytes_verified_total") {
		t.Errorf("textfile missing integrity_bytes_verified_total:\n%s", data)
	}
}
